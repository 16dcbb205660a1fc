package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/example/storefront/pkg/models"
)

type cartRepository struct {
	db *gorm.DB
}

func (r *cartRepository) ByID(ctx context.Context, id string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&cart).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &cart, nil
}

func (r *cartRepository) ActiveByUser(ctx context.Context, userID string) (*models.Cart, error) {
	return r.activeBy(ctx, "user_id = ?", userID)
}

func (r *cartRepository) ActiveByGuest(ctx context.Context, guestID string) (*models.Cart, error) {
	return r.activeBy(ctx, "guest_id = ?", guestID)
}

func (r *cartRepository) activeBy(ctx context.Context, cond string, arg string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).Preload("Items").
		Where(cond, arg).
		Where("status = ?", models.CartStatusActive).
		Order("last_activity DESC").
		First(&cart).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &cart, nil
}

func (r *cartRepository) Create(ctx context.Context, cart *models.Cart) error {
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

func (r *cartRepository) AssignToUser(ctx context.Context, cartID, userID string) error {
	res := r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]interface{}{
			"user_id":  userID,
			"guest_id": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to assign cart: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cartRepository) SetStatus(ctx context.Context, cartID, status string) error {
	res := r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to set cart status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cartRepository) Touch(ctx context.Context, cartID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("last_activity", at).Error
}

func (r *cartRepository) Items(ctx context.Context, cartID string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	return items, nil
}

func (r *cartRepository) AddItem(ctx context.Context, item *models.CartItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

func (r *cartRepository) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity)
	if res.Error != nil {
		return fmt.Errorf("failed to update cart item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cartRepository) MoveItem(ctx context.Context, itemID, toCartID string) error {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("cart_id", toCartID)
	if res.Error != nil {
		return fmt.Errorf("failed to move cart item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, itemID string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", itemID).
		Delete(&models.CartItem{}).Error
}
