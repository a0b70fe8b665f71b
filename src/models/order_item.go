package models

import "cshop/src/types"

// OrderItem snapshots the product fields at sale time so that later product
// edits or deletion do not corrupt order history.
type OrderItem struct {
	ID        uint `gorm:"primarykey" json:"id"`
	OrderID   uint `gorm:"index" json:"order_id"`
	ProductID uint `gorm:"index" json:"product_id"`

	ProductName        string `json:"product_name"`
	ProductDescription string `json:"product_description,omitempty"`
	ProductCategory    string `json:"product_category,omitempty"`

	Quantity           uint           `json:"quantity"`
	Price              float64        `json:"price"`
	OriginalPrice      float64        `json:"original_price"`
	DiscountPercentage float64        `json:"discount_percentage,omitempty"`
	DiscountAmount     float64        `json:"discount_amount,omitempty"`
	Type               types.ItemType `gorm:"default:'standard'" json:"type"`

	types.Timestamps
}
