package db

import (
	"math"
	"time"

	"gorm.io/gorm"
)

// Product represents a product row in the catalog database.
// The version column is the optimistic-concurrency token: every committed
// update must advance it by exactly one, and stale writers are detected by
// conditioning the UPDATE on the version they read.
type Product struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	SKU         string  `gorm:"column:sku;type:varchar(64);not null;uniqueIndex:uq_products_sku" json:"sku"`
	Name        string  `gorm:"type:varchar(255);not null;index:idx_products_name" json:"name"`
	Description string  `gorm:"type:varchar(1000)" json:"description,omitempty"`
	Price       float64 `gorm:"not null;default:0;check:chk_products_price_nonneg,price >= 0" json:"price"`
	Quantity    int     `gorm:"not null;default:0;check:chk_products_quantity_nonneg,quantity >= 0" json:"quantity"`

	Unit       string  `gorm:"type:varchar(32)" json:"unit,omitempty"`
	Brand      string  `gorm:"type:varchar(128);index:idx_products_brand" json:"brand,omitempty"`
	Category   string  `gorm:"type:varchar(128);index:idx_products_category" json:"category,omitempty"`
	VATRate    float64 `gorm:"column:vat_rate;not null;default:0;check:chk_products_vat_range,vat_rate >= 0 AND vat_rate <= 1" json:"vat_rate"`
	WeightGram *int    `gorm:"column:weight_gram" json:"weight_gram,omitempty"`
	VolumeML   *int    `gorm:"column:volume_ml" json:"volume_ml,omitempty"`
	IsActive   bool    `gorm:"column:is_active;not null;index:idx_products_is_active" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Version int `gorm:"not null;default:1" json:"version"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// BeforeCreate hook to set timestamps and the initial version
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.Version == 0 {
		p.Version = 1
	}
	return nil
}

// PriceWithVAT returns the gross price rounded to two decimals. Not persisted.
func (p *Product) PriceWithVAT() float64 {
	return math.Round(p.Price*(1+p.VATRate)*100) / 100
}
