package models

import (
	"cshop/src/types"

	"github.com/google/uuid"
)

type Notification struct {
	ID         uuid.UUID       `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	CustomerID uint            `gorm:"index" json:"customer_id"`
	OrderID    *uint           `gorm:"uniqueIndex:idx_order_event" json:"order_id,omitempty"`
	EventType  types.EventType `gorm:"uniqueIndex:idx_order_event" json:"event_type"`
	Title      string          `json:"title"`
	Body       string          `json:"body,omitempty"`
	Read       bool            `gorm:"default:false" json:"read"`

	types.Timestamps
}
