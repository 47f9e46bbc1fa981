package models

import "time"

// Product is a storefront item managed from the admin panel.
type Product struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	PriceCents  int64     `gorm:"not null" json:"price_cents"`
	Stock       int       `gorm:"not null;default:0" json:"stock"`
	// No column default: gorm omits zero-valued fields that carry one, which
	// would turn an explicit Active=false into true on create.
	Active bool `gorm:"index;not null" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Order statuses.
const (
	OrderPlaced    = "placed"
	OrderCancelled = "cancelled"
)

// Order records a storefront purchase.
type Order struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProductID  uint      `gorm:"index;not null" json:"product_id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	TotalCents int64     `gorm:"not null" json:"total_cents"`
	Status     string    `gorm:"size:16;not null;default:placed" json:"status"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
