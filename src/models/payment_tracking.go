package models

import (
	"time"

	"cshop/src/types"
)

// PaymentTracking is the durable mirror of an in-memory payment session.
// The session store rehydrates live sessions from this table after a restart.
type PaymentTracking struct {
	ID          uint                `gorm:"primarykey" json:"id"`
	OrderID     uint                `gorm:"index" json:"order_id"`
	PaymentID   string              `gorm:"uniqueIndex" json:"payment_id"`
	MD5Hash     string              `gorm:"index" json:"md5_hash"`
	QRData      string              `json:"qr_data"`
	Amount      float64             `json:"amount"`
	Currency    string              `json:"currency"`
	Status      types.SessionState  `gorm:"index" json:"status"`
	CreatedFrom types.SessionOrigin `gorm:"default:'fresh'" json:"created_from"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}
