package models

import "time"

// OrderScreenshot records one uploaded payment proof. (order_id, image_hash)
// is unique: re-uploading the same bytes rewrites metadata instead of adding
// a second row.
type OrderScreenshot struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	OrderID           uint      `gorm:"uniqueIndex:idx_order_image" json:"order_id"`
	ImageHash         string    `gorm:"uniqueIndex:idx_order_image;index" json:"image_hash"`
	FilePath          string    `json:"file_path"`
	UploadedAt        time.Time `json:"uploaded_at"`
	VerificationScore float64   `json:"verification_score"`
}
