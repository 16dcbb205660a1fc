package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
)

// CartCache is the read-side snapshot cache, keyed by cart owner. The
// database stays authoritative; cache failures are logged and ignored.
type CartCache interface {
	CacheCart(ctx context.Context, cart *models.Cart) error
	GetCachedCart(ctx context.Context, owner string) (*models.Cart, error)
	InvalidateCart(ctx context.Context, owner string) error
}

// cacheOwner mirrors models.Cart.OwnerKey for an identity that may not
// have a cart yet.
func cacheOwner(identity Identity) string {
	if identity.UserID != "" {
		return "user:" + identity.UserID
	}
	if identity.GuestID != "" {
		return "guest:" + identity.GuestID
	}
	return ""
}

type CartService struct {
	store  repository.Store
	cache  CartCache
	logger *zap.Logger
}

func NewCartService(store repository.Store, cache CartCache, logger *zap.Logger) *CartService {
	return &CartService{store: store, cache: cache, logger: logger}
}

type AddItemInput struct {
	ProductID string
	VariantID *string
	Quantity  int
}

// AddItem puts quantity units of a SKU into the identity's active cart,
// creating the cart on first touch. Adding a SKU that is already present
// increments the existing line instead of duplicating it. The unit price and
// display data are snapshotted from the catalog at add time.
func (s *CartService) AddItem(ctx context.Context, identity Identity, in AddItemInput) (*models.Cart, error) {
	if !identity.Known() {
		return nil, ErrUnauthorized
	}
	if in.ProductID == "" {
		return nil, validationf("product id is required")
	}
	if in.Quantity < 1 {
		return nil, validationf("quantity must be at least 1")
	}

	var result *models.Cart
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		product, err := tx.Inventory().Product(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Kind: "product", ID: in.ProductID}
			}
			return err
		}

		price := product.Price
		snapshot := models.ProductSnapshot{Name: product.Name, ImageURL: product.ImageURL}
		if in.VariantID != nil {
			variant, err := tx.Inventory().Variant(ctx, in.ProductID, *in.VariantID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return &NotFoundError{Kind: "variant", ID: *in.VariantID}
				}
				return err
			}
			price += variant.AdditionalPrice
			snapshot.VariantLabel = variant.Label
		}

		cart, err := s.activeCart(ctx, tx, identity)
		if err != nil {
			return err
		}

		items, err := tx.Carts().Items(ctx, cart.ID)
		if err != nil {
			return err
		}
		merged := false
		for i := range items {
			if items[i].SameSKU(in.ProductID, in.VariantID) {
				if err := tx.Carts().UpdateItemQuantity(ctx, items[i].ID, items[i].Quantity+in.Quantity); err != nil {
					return err
				}
				merged = true
				break
			}
		}
		if !merged {
			data, err := json.Marshal(snapshot)
			if err != nil {
				return err
			}
			item := &models.CartItem{
				ID:          uuid.NewString(),
				CartID:      cart.ID,
				ProductID:   in.ProductID,
				VariantID:   in.VariantID,
				Quantity:    in.Quantity,
				Price:       price,
				ProductData: string(data),
			}
			if err := tx.Carts().AddItem(ctx, item); err != nil {
				return err
			}
		}

		if err := tx.Carts().Touch(ctx, cart.ID, time.Now()); err != nil {
			return err
		}

		result, err = tx.Carts().ByID(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.refreshCache(ctx, result)
	return result, nil
}

// UpdateItemQuantity sets the quantity of a SKU line; zero removes it.
func (s *CartService) UpdateItemQuantity(ctx context.Context, identity Identity, productID string, variantID *string, quantity int) (*models.Cart, error) {
	if !identity.Known() {
		return nil, ErrUnauthorized
	}
	if quantity < 0 {
		return nil, validationf("quantity must not be negative")
	}

	var result *models.Cart
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		cart, err := s.lookupActiveCart(ctx, tx, identity)
		if err != nil {
			return err
		}

		items, err := tx.Carts().Items(ctx, cart.ID)
		if err != nil {
			return err
		}
		var target *models.CartItem
		for i := range items {
			if items[i].SameSKU(productID, variantID) {
				target = &items[i]
				break
			}
		}
		if target == nil {
			return &NotFoundError{Kind: "product", ID: productID}
		}

		if quantity == 0 {
			if err := tx.Carts().DeleteItem(ctx, target.ID); err != nil {
				return err
			}
		} else {
			if err := tx.Carts().UpdateItemQuantity(ctx, target.ID, quantity); err != nil {
				return err
			}
		}

		if err := tx.Carts().Touch(ctx, cart.ID, time.Now()); err != nil {
			return err
		}
		result, err = tx.Carts().ByID(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.refreshCache(ctx, result)
	return result, nil
}

// GetCart returns the identity's active cart, or nil when it has none. The
// cache is consulted first; a miss or cache error falls through to the
// database and repopulates the snapshot.
func (s *CartService) GetCart(ctx context.Context, identity Identity) (*models.Cart, error) {
	if !identity.Known() {
		return nil, ErrUnauthorized
	}
	if s.cache != nil {
		cached, err := s.cache.GetCachedCart(ctx, cacheOwner(identity))
		if err == nil && cached != nil {
			return cached, nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("cart cache read failed", zap.Error(err))
		}
	}
	cart, err := s.lookupActiveCart(ctx, s.store, identity)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	s.refreshCache(ctx, cart)
	return cart, nil
}

// Reconcile merges the guest cart into the authenticated user's cart at
// login time. With no guest identity or no active guest cart it is a no-op.
// When the user has no active cart the guest cart is reassigned wholesale.
// Otherwise guest lines are folded in item by item: matching SKUs sum their
// quantities, the rest move over, and the guest cart ends up merged, a
// terminal status. The whole merge is one transaction; any failure leaves
// both carts exactly as they were.
func (s *CartService) Reconcile(ctx context.Context, userID, guestID string) (*models.Cart, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if guestID == "" {
		return s.GetCart(ctx, Identity{UserID: userID})
	}

	var resultID string
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		guestCart, err := tx.Carts().ActiveByGuest(ctx, guestID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Stale guest marker, nothing to merge.
				return nil
			}
			return err
		}

		userCart, err := tx.Carts().ActiveByUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			// Cheap path: hand the whole cart over.
			if err := tx.Carts().AssignToUser(ctx, guestCart.ID, userID); err != nil {
				return err
			}
			resultID = guestCart.ID
			return tx.Carts().Touch(ctx, guestCart.ID, time.Now())
		}
		if err != nil {
			return err
		}

		guestItems, err := tx.Carts().Items(ctx, guestCart.ID)
		if err != nil {
			return err
		}
		userItems, err := tx.Carts().Items(ctx, userCart.ID)
		if err != nil {
			return err
		}

		for i := range guestItems {
			gi := &guestItems[i]
			var match *models.CartItem
			for j := range userItems {
				if userItems[j].SameSKU(gi.ProductID, gi.VariantID) {
					match = &userItems[j]
					break
				}
			}
			if match != nil {
				if err := tx.Carts().UpdateItemQuantity(ctx, match.ID, match.Quantity+gi.Quantity); err != nil {
					return err
				}
				if err := tx.Carts().DeleteItem(ctx, gi.ID); err != nil {
					return err
				}
			} else {
				// No stock re-validation here; checkout is the gate.
				if err := tx.Carts().MoveItem(ctx, gi.ID, userCart.ID); err != nil {
					return err
				}
			}
		}

		if err := tx.Carts().SetStatus(ctx, guestCart.ID, models.CartStatusMerged); err != nil {
			return err
		}
		if err := tx.Carts().Touch(ctx, userCart.ID, time.Now()); err != nil {
			return err
		}
		resultID = userCart.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if resultID == "" {
		return s.GetCart(ctx, Identity{UserID: userID})
	}

	// The guest's snapshot is spent either way: the cart now belongs to the
	// user or its items moved into the user's cart.
	s.invalidateCache(ctx, cacheOwner(Identity{GuestID: guestID}))
	cart, err := s.store.Carts().ByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	s.refreshCache(ctx, cart)
	return cart, nil
}

// activeCart finds the identity's active cart, creating one on first touch.
func (s *CartService) activeCart(ctx context.Context, tx repository.Store, identity Identity) (*models.Cart, error) {
	cart, err := s.lookupActiveCart(ctx, tx, identity)
	if err == nil {
		return cart, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	cart = &models.Cart{
		ID:           uuid.NewString(),
		Status:       models.CartStatusActive,
		LastActivity: time.Now(),
	}
	if identity.Authenticated() {
		userID := identity.UserID
		cart.UserID = &userID
	} else {
		guestID := identity.GuestID
		cart.GuestID = &guestID
	}
	if err := tx.Carts().Create(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) lookupActiveCart(ctx context.Context, tx repository.Store, identity Identity) (*models.Cart, error) {
	var (
		cart *models.Cart
		err  error
	)
	if identity.Authenticated() {
		cart, err = tx.Carts().ActiveByUser(ctx, identity.UserID)
	} else {
		cart, err = tx.Carts().ActiveByGuest(ctx, identity.GuestID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Kind: "cart", ID: ""}
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) refreshCache(ctx context.Context, cart *models.Cart) {
	if s.cache == nil || cart == nil {
		return
	}
	if err := s.cache.CacheCart(ctx, cart); err != nil {
		s.logger.Warn("failed to cache cart", zap.String("cart_id", cart.ID), zap.Error(err))
	}
}

func (s *CartService) invalidateCache(ctx context.Context, owner string) {
	if s.cache == nil || owner == "" {
		return
	}
	if err := s.cache.InvalidateCart(ctx, owner); err != nil {
		s.logger.Warn("failed to invalidate cart cache", zap.String("owner", owner), zap.Error(err))
	}
}
