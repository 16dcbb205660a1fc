package models

import (
	"time"
)

// Order statuses. Only "pending" is entered at placement time; everything
// later is an admin transition recorded in the status ledger.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// orderTransitions is the legal transition table. Re-asserting the current
// status is always allowed and still appends a ledger entry.
var orderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func IsOrderStatus(s string) bool {
	_, ok := orderTransitions[s]
	return ok
}

func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is immutable after creation except for Status/PaymentStatus, which
// mirror the latest status ledger entry for fast reads. TotalAmount is
// computed once from the line items plus fees and never recomputed from
// current catalog prices.
type Order struct {
	ID          string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderNumber string  `gorm:"type:varchar(40);uniqueIndex;not null" json:"order_number"`
	UserID      *string `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	GuestID     *string `gorm:"type:varchar(64);index" json:"guest_id,omitempty"`
	Email       string  `gorm:"type:varchar(100);not null;index" json:"email"`

	ShippingName       string `gorm:"type:varchar(100);not null" json:"shipping_name"`
	ShippingAddress    string `gorm:"type:varchar(255);not null" json:"shipping_address"`
	ShippingCity       string `gorm:"type:varchar(100);not null" json:"shipping_city"`
	ShippingState      string `gorm:"type:varchar(100);not null" json:"shipping_state"`
	ShippingPostalCode string `gorm:"type:varchar(20);not null" json:"shipping_postal_code"`
	ShippingPhone      string `gorm:"type:varchar(20);not null" json:"shipping_phone"`

	PaymentMethod string `gorm:"type:varchar(40)" json:"payment_method"`
	PaymentStatus string `gorm:"type:varchar(20);default:'unpaid'" json:"payment_status"`
	Status        string `gorm:"type:varchar(20);default:'pending';index" json:"status"`

	Subtotal          float64 `gorm:"type:decimal(10,2)" json:"subtotal"`
	ShippingFee       float64 `gorm:"type:decimal(10,2)" json:"shipping_fee"`
	Tax               float64 `gorm:"type:decimal(10,2)" json:"tax"`
	Discount          float64 `gorm:"type:decimal(10,2)" json:"discount"`
	LoyaltyPointsUsed float64 `gorm:"type:decimal(10,2)" json:"loyalty_points_used"`
	TotalAmount       float64 `gorm:"type:decimal(10,2)" json:"total_amount"`

	Items         []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	StatusHistory []OrderStatusEntry `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"status_history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem captures a point-in-time copy of the purchased SKU. Immutable.
type OrderItem struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID    string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ProductID  string    `gorm:"type:varchar(36);not null" json:"product_id"`
	VariantID  *string   `gorm:"type:varchar(36)" json:"variant_id,omitempty"`
	Name       string    `gorm:"type:varchar(200)" json:"name"`
	UnitPrice  float64   `gorm:"type:decimal(10,2)" json:"unit_price"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	TotalPrice float64   `gorm:"type:decimal(10,2)" json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// OrderStatusEntry is one row of the append-only status ledger. Rows are
// never updated or deleted.
type OrderStatusEntry struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID   string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	Status    string    `gorm:"type:varchar(20);not null" json:"status"`
	Note      string    `gorm:"type:varchar(255)" json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderStatusEntry) TableName() string {
	return "order_statuses"
}
