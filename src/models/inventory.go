package models

import "time"

// InventoryChange is a signed audit row. Negative on reservation at checkout,
// positive on cancellation / rejection restore.
type InventoryChange struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	ProductID  uint      `gorm:"index" json:"product_id"`
	Changes    int       `json:"changes"`
	Reason     string    `json:"reason,omitempty"`
	OrderID    *uint     `gorm:"index" json:"order_id,omitempty"`
	ChangeDate time.Time `json:"change_date"`
}
