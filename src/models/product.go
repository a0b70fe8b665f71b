package models

import "cshop/src/types"

type Product struct {
	ID          uint    `gorm:"primarykey" json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
	Stock       int     `gorm:"default:0" json:"stock"`

	types.Timestamps
}
