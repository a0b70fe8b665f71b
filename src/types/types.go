package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type OrderStatus string

const (
	ORDER_PENDING   OrderStatus = "pending"
	ORDER_COMPLETED OrderStatus = "completed"
	ORDER_CONFIRMED OrderStatus = "confirmed"
	ORDER_REJECTED  OrderStatus = "rejected"
	ORDER_CANCELLED OrderStatus = "cancelled"
)

// Terminal reports whether no further status transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == ORDER_CONFIRMED || s == ORDER_REJECTED || s == ORDER_CANCELLED
}

type ApprovalStatus string

const (
	APPROVAL_PENDING  ApprovalStatus = "pending_approval"
	APPROVAL_APPROVED ApprovalStatus = "approved"
	APPROVAL_REJECTED ApprovalStatus = "rejected"
)

type PaymentMethod string

const (
	PAYMENT_KHQR        PaymentMethod = "khqr"
	PAYMENT_CASH        PaymentMethod = "cash"
	PAYMENT_ON_DELIVERY PaymentMethod = "pay_on_delivery"
)

type SessionState string

const (
	SESSION_PENDING   SessionState = "pending"
	SESSION_COMPLETED SessionState = "completed"
	SESSION_EXPIRED   SessionState = "expired"
	SESSION_CANCELLED SessionState = "cancelled"
)

type SessionOrigin string

const (
	SESSION_FRESH       SessionOrigin = "fresh"
	SESSION_REGENERATED SessionOrigin = "regenerated"
)

type AcquirerStatus string

const (
	ACQUIRER_PAID   AcquirerStatus = "PAID"
	ACQUIRER_UNPAID AcquirerStatus = "UNPAID"
)

type CompletionSource string

const (
	SOURCE_POLLER     CompletionSource = "poller"
	SOURCE_SCREENSHOT CompletionSource = "screenshot"
	SOURCE_MANUAL     CompletionSource = "manual"
)

type VerificationStatus string

const (
	VERIFICATION_VERIFIED VerificationStatus = "verified"
	VERIFICATION_REJECTED VerificationStatus = "rejected"
)

type ItemType string

const (
	ITEM_STANDARD  ItemType = "standard"
	ITEM_CANCELLED ItemType = "cancelled"
)

type EventType string

const (
	EVENT_PAYMENT_COMPLETED EventType = "payment_completed"
	EVENT_ORDER_CANCELLED   EventType = "order_cancelled"
	EVENT_ORDER_REJECTED    EventType = "order_rejected"
	EVENT_REFUND_REQUESTED  EventType = "refund_requested"
)

type RegisterCustomerRequestBody struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequestBody struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type CreatePaymentRequestBody struct {
	OrderID  uint    `json:"order_id" binding:"required"`
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Currency string  `json:"currency" binding:"required,khqrcurrency"`
}

type CheckoutItem struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  uint `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderRequestBody struct {
	Items         []CheckoutItem `json:"items" binding:"required,min=1,dive"`
	PaymentMethod string         `json:"payment_method" binding:"required,oneof=khqr cash pay_on_delivery"`
}

type CancelOrderRequestBody struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes,omitempty"`
}

type RejectOrderRequestBody struct {
	Reason string `json:"reason" binding:"required"`
}

type CancelItemsRequestBody struct {
	ItemIDs []uint `json:"item_ids" binding:"required,min=1"`
	Reason  string `json:"reason" binding:"required"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type SessionURIParams struct {
	SessionID string `uri:"session_id" binding:"required,uuid"`
}

type PaymentURIParams struct {
	PaymentID string `uri:"payment_id" binding:"required,uuid"`
}

type Claims struct {
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}
