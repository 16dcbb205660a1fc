package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
)

func newTestStore(t *testing.T) (*repository.GormStore, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection: the in-memory database is shared and concurrent
	// transactions serialize instead of opening separate databases.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := repository.NewGormStore(db, 3, time.Millisecond)
	require.NoError(t, store.Migrate())
	return store, db
}

func newCartService(t *testing.T) (*service.CartService, *repository.GormStore, *gorm.DB) {
	t.Helper()
	store, db := newTestStore(t)
	return service.NewCartService(store, nil, zap.NewNop()), store, db
}

func testPolicy() config.CheckoutConfig {
	return config.CheckoutConfig{
		ShippingFee: 10,
		TaxRate:     0.10,
		TxRetries:   1,
	}
}

func newOrderService(t *testing.T) (*service.OrderService, *repository.GormStore, *gorm.DB) {
	t.Helper()
	store, db := newTestStore(t)
	svc := service.NewOrderService(store, testPolicy(), nil, nil, nil, zap.NewNop())
	return svc, store, db
}

// memoryCartCache is a map-backed stand-in for the Redis snapshot cache.
type memoryCartCache struct {
	mu    sync.Mutex
	carts map[string]*models.Cart
}

func newMemoryCartCache() *memoryCartCache {
	return &memoryCartCache{carts: make(map[string]*models.Cart)}
}

func (c *memoryCartCache) CacheCart(_ context.Context, cart *models.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[cart.OwnerKey()] = cart
	return nil
}

func (c *memoryCartCache) GetCachedCart(_ context.Context, owner string) (*models.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[owner]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cart, nil
}

func (c *memoryCartCache) InvalidateCart(_ context.Context, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, owner)
	return nil
}

func (c *memoryCartCache) has(owner string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.carts[owner]
	return ok
}

func seedProduct(t *testing.T, db *gorm.DB, id string, price float64, stock int) {
	t.Helper()
	require.NoError(t, db.Create(&models.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: price,
		Stock: stock,
	}).Error)
}

func seedVariant(t *testing.T, db *gorm.DB, id, productID string, delta float64, stock int) {
	t.Helper()
	require.NoError(t, db.Create(&models.ProductVariant{
		ID:              id,
		ProductID:       productID,
		Label:           "Variant " + id,
		AdditionalPrice: delta,
		Stock:           stock,
	}).Error)
}

func ptr(s string) *string {
	return &s
}

// assertTotalInvariant rechecks the order arithmetic for every scenario:
// total = subtotal + shipping + tax - discount - loyalty, and the subtotal
// is the sum of the line totals.
func assertTotalInvariant(t *testing.T, order *models.Order) {
	t.Helper()
	sub := 0.0
	for _, item := range order.Items {
		require.InDelta(t, item.UnitPrice*float64(item.Quantity), item.TotalPrice, 0.001)
		sub += item.TotalPrice
	}
	require.InDelta(t, sub, order.Subtotal, 0.001)
	want := order.Subtotal + order.ShippingFee + order.Tax - order.Discount - order.LoyaltyPointsUsed
	if want < 0 {
		want = 0
	}
	require.InDelta(t, want, order.TotalAmount, 0.001)
}
