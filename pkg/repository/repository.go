package repository

import (
	"context"
	"errors"
	"time"

	"github.com/example/storefront/pkg/models"
)

// ErrNotFound is returned by lookups when the row does not exist. Callers
// translate it into their own taxonomy; gorm never leaks past this package.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned by guarded updates when the row no longer matches
// the expected state, meaning a concurrent transaction got there first.
var ErrConflict = errors.New("concurrent modification")

// Store bundles the typed repositories behind one transactional boundary.
// Transaction runs fn against a Store whose repositories share a single
// database transaction; returning an error rolls everything back.
type Store interface {
	Carts() CartRepository
	Orders() OrderRepository
	Inventory() InventoryRepository
	Users() UserRepository
	Transaction(ctx context.Context, fn func(Store) error) error
}

// CartRepository exposes only the cart operations the services need.
type CartRepository interface {
	ByID(ctx context.Context, id string) (*models.Cart, error)
	ActiveByUser(ctx context.Context, userID string) (*models.Cart, error)
	ActiveByGuest(ctx context.Context, guestID string) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	// AssignToUser reassigns cart ownership: sets user_id, clears guest_id.
	AssignToUser(ctx context.Context, cartID, userID string) error
	SetStatus(ctx context.Context, cartID, status string) error
	Touch(ctx context.Context, cartID string, at time.Time) error

	Items(ctx context.Context, cartID string) ([]models.CartItem, error)
	AddItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error
	MoveItem(ctx context.Context, itemID, toCartID string) error
	DeleteItem(ctx context.Context, itemID string) error
}

type OrderRepository interface {
	// Create persists the order together with its items in one shot.
	Create(ctx context.Context, order *models.Order) error
	ByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Order, int64, error)
	AppendStatus(ctx context.Context, entry *models.OrderStatusEntry) error
	// UpdateCachedStatus refreshes the convenience status column on the
	// order row, guarded on the expected current status; the ledger stays
	// append-only. Returns ErrConflict when the guard misses, so two
	// concurrent transitions cannot both win.
	UpdateCachedStatus(ctx context.Context, orderID, from, to string) error
}

// InventoryRepository is the stock authority. The decrement calls are
// conditional single-statement updates so concurrent callers serialize on the
// row lock and at most one wins the last unit.
type InventoryRepository interface {
	Product(ctx context.Context, id string) (*models.Product, error)
	Variant(ctx context.Context, productID, variantID string) (*models.ProductVariant, error)
	// DecrementProductStock debits product stock and credits the sales
	// counter. Returns false when remaining stock is insufficient.
	DecrementProductStock(ctx context.Context, productID string, quantity int) (bool, error)
	DecrementVariantStock(ctx context.Context, variantID string, quantity int) (bool, error)
	RestoreProductStock(ctx context.Context, productID string, quantity int) error
	RestoreVariantStock(ctx context.Context, variantID string, quantity int) error
}

type UserRepository interface {
	ByID(ctx context.Context, id string) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}
