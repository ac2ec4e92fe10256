package product

import (
	"time"
)

// Product represents a vendor listing. Deleting a product and changing its
// price are critical actions gated behind two-factor verification.
type Product struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Uuid        string     `gorm:"type:varchar(255);not null;unique" json:"uuid"`
	VendorID    uint       `gorm:"not null;index" json:"vendor_id"`
	Title       string     `gorm:"type:varchar(255);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	PriceCents  int64      `gorm:"not null" json:"price_cents"`
	Currency    string     `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Active      bool       `gorm:"default:true" json:"active"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}
