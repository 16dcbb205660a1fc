package models

import (
	"time"
)

// Product is the stock authority for variant-less SKUs. Stock and SalesCount
// are only mutated through the inventory repository so every change happens
// inside the placing transaction.
type Product struct {
	ID          string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string           `gorm:"type:varchar(200);not null" json:"name"`
	Description string           `gorm:"type:text" json:"description"`
	Price       float64          `gorm:"type:decimal(10,2);not null" json:"price"`
	ImageURL    string           `gorm:"type:varchar(255)" json:"image_url"`
	Category    string           `gorm:"type:varchar(100);index" json:"category"`
	Stock       int              `gorm:"not null;default:0" json:"stock"`
	SalesCount  int              `gorm:"not null;default:0" json:"sales_count"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"variants,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// ProductVariant carries its own stock, independent of the parent product's,
// and an additive price delta on top of the product price.
type ProductVariant struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProductID       string    `gorm:"type:varchar(36);not null;index" json:"product_id"`
	Label           string    `gorm:"type:varchar(100);not null" json:"label"`
	AdditionalPrice float64   `gorm:"type:decimal(10,2);default:0" json:"additional_price"`
	Stock           int       `gorm:"not null;default:0" json:"stock"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ProductVariant) TableName() string {
	return "product_variants"
}
