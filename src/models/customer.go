package models

import (
	"time"

	"cshop/src/types"
)

type Customer struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	Name         string     `json:"name"`
	Email        string     `gorm:"uniqueIndex" json:"email"`
	Phone        string     `json:"phone,omitempty"`
	PasswordHash string     `json:"-"`
	Role         string     `gorm:"default:'customer'" json:"role,omitempty"`
	Verified     bool       `gorm:"default:false" json:"verified"`
	LastActive   *time.Time `json:"last_active,omitempty"`

	types.Timestamps
}
