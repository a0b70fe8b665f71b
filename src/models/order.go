package models

import (
	"time"

	"cshop/src/types"
)

type Order struct {
	ID             uint                 `gorm:"primarykey" json:"id"`
	CustomerID     uint                 `gorm:"index" json:"customer_id"`
	OrderDate      time.Time            `json:"order_date"`
	TotalAmount    float64              `json:"total_amount"`
	Currency       string               `gorm:"default:'USD'" json:"currency"`
	Status         types.OrderStatus    `gorm:"default:'pending';index" json:"status"`
	ApprovalStatus types.ApprovalStatus `gorm:"default:'pending_approval'" json:"approval_status"`
	PaymentMethod  types.PaymentMethod  `json:"payment_method"`

	// TransactionID carries the KHQR fingerprint (or a derived hash for
	// cash / pay-on-delivery) once a payment intent exists for the order.
	TransactionID string `gorm:"index" json:"transaction_id,omitempty"`

	PaymentScreenshotPath     *string                   `json:"payment_screenshot_path,omitempty"`
	ScreenshotUploadedAt      *time.Time                `json:"screenshot_uploaded_at,omitempty"`
	PaymentVerificationStatus *types.VerificationStatus `json:"payment_verification_status,omitempty"`

	ApprovedBy         *uint      `json:"approved_by,omitempty"`
	ApprovalDate       *time.Time `json:"approval_date,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancellationNotes  *string    `json:"cancellation_notes,omitempty"`

	Customer *Customer   `gorm:"foreignKey:customer_id" json:"customer,omitempty"`
	Items    []OrderItem `gorm:"foreignKey:order_id" json:"items,omitempty"`

	types.Timestamps
}
