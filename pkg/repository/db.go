package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	gosql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
)

// GormStore implements Store on top of a gorm handle. The same type serves
// both the root connection and in-flight transactions.
type GormStore struct {
	db      *gorm.DB
	retries int
	backoff time.Duration
}

// Open connects to MySQL, applies the schema, and configures the pool.
func Open(cfg *config.MySQLConfig, checkout *config.CheckoutConfig) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	store := NewGormStore(db, checkout.TxRetries, checkout.TxRetryBackoff)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewGormStore wraps an existing gorm handle. Tests use this with an
// in-memory database.
func NewGormStore(db *gorm.DB, retries int, backoff time.Duration) *GormStore {
	if retries < 1 {
		retries = 1
	}
	return &GormStore{db: db, retries: retries, backoff: backoff}
}

func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.ProductVariant{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *GormStore) Carts() CartRepository          { return &cartRepository{db: s.db} }
func (s *GormStore) Orders() OrderRepository        { return &orderRepository{db: s.db} }
func (s *GormStore) Inventory() InventoryRepository { return &inventoryRepository{db: s.db} }
func (s *GormStore) Users() UserRepository          { return &userRepository{db: s.db} }

// Transaction runs fn inside a database transaction, retrying a bounded
// number of times when MySQL reports a deadlock or lock-wait timeout.
func (s *GormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(NewGormStore(tx, 1, 0))
		})
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return err
}

// MySQL 1213 = deadlock victim, 1205 = lock wait timeout.
func isRetryable(err error) bool {
	var mysqlErr *gosql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
