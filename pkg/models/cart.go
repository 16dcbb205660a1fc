package models

import (
	"time"
)

// Cart statuses. A cart is owned by a user or by an anonymous guest,
// never both at once while active.
const (
	CartStatusActive    = "active"
	CartStatusMerged    = "merged"
	CartStatusConverted = "converted"
	CartStatusAbandoned = "abandoned"
)

type Cart struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       *string    `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	GuestID      *string    `gorm:"type:varchar(64);index" json:"guest_id,omitempty"`
	Status       string     `gorm:"type:varchar(20);default:'active';index" json:"status"`
	LastActivity time.Time  `json:"last_activity"`
	Items        []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Cart) TableName() string {
	return "carts"
}

// CartItem is one SKU line in a cart. Price and ProductData are snapshots
// taken at add-time so the cart renders without a catalog join.
type CartItem struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CartID      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_sku,priority:1" json:"cart_id"`
	ProductID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_sku,priority:2" json:"product_id"`
	VariantID   *string   `gorm:"type:varchar(36);uniqueIndex:idx_cart_sku,priority:3" json:"variant_id,omitempty"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	Price       float64   `gorm:"type:decimal(10,2)" json:"price"`
	ProductData string    `gorm:"type:text" json:"product_data"` // JSON snapshot: name, image, variant label
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

// ProductSnapshot is the denormalized display payload stored in
// CartItem.ProductData.
type ProductSnapshot struct {
	Name         string `json:"name"`
	ImageURL     string `json:"image_url"`
	VariantLabel string `json:"variant_label,omitempty"`
}

// OwnerKey identifies the cart's owner, the unit the snapshot cache is
// keyed by. Empty for carts that lost their owner markers.
func (c *Cart) OwnerKey() string {
	if c.UserID != nil {
		return "user:" + *c.UserID
	}
	if c.GuestID != nil {
		return "guest:" + *c.GuestID
	}
	return ""
}

// SameSKU reports whether two items reference the same purchasable unit.
func (i *CartItem) SameSKU(productID string, variantID *string) bool {
	if i.ProductID != productID {
		return false
	}
	if i.VariantID == nil || variantID == nil {
		return i.VariantID == nil && variantID == nil
	}
	return *i.VariantID == *variantID
}
