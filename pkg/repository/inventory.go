package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/example/storefront/pkg/models"
)

type inventoryRepository struct {
	db *gorm.DB
}

func (r *inventoryRepository) Product(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &product, nil
}

func (r *inventoryRepository) Variant(ctx context.Context, productID, variantID string) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &variant, nil
}

// DecrementProductStock is a single conditional UPDATE so two concurrent
// orders for the last unit serialize on the row lock: the loser matches zero
// rows and reports insufficient stock instead of driving the counter
// negative. A product-level sale also advances the sales counter.
func (r *inventoryRepository) DecrementProductStock(ctx context.Context, productID string, quantity int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Updates(map[string]interface{}{
			"stock":       gorm.Expr("stock - ?", quantity),
			"sales_count": gorm.Expr("sales_count + ?", quantity),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to decrement product stock: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *inventoryRepository) DecrementVariantStock(ctx context.Context, variantID string, quantity int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ProductVariant{}).
		Where("id = ? AND stock >= ?", variantID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return false, fmt.Errorf("failed to decrement variant stock: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *inventoryRepository) RestoreProductStock(ctx context.Context, productID string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]interface{}{
			"stock":       gorm.Expr("stock + ?", quantity),
			"sales_count": gorm.Expr("sales_count - ?", quantity),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to restore product stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *inventoryRepository) RestoreVariantStock(ctx context.Context, variantID string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Update("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("failed to restore variant stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
