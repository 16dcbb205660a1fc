package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
)

// Auditor records and reads back order lifecycle events outside the
// transactional store.
type Auditor interface {
	CreateAuditLog(ctx context.Context, log *repository.AuditLog) error
	GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

type OrderService struct {
	store    repository.Store
	policy   config.CheckoutConfig
	notifier Notifier
	audit    Auditor
	cache    CartCache
	logger   *zap.Logger
}

func NewOrderService(store repository.Store, policy config.CheckoutConfig, notifier Notifier, audit Auditor, cache CartCache, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:    store,
		policy:   policy,
		notifier: notifier,
		audit:    audit,
		cache:    cache,
		logger:   logger,
	}
}

type OrderLineInput struct {
	ProductID string
	VariantID *string
	Quantity  int
}

type ShippingInput struct {
	Name       string
	Address    string
	City       string
	State      string
	PostalCode string
	Phone      string
}

type PlaceOrderInput struct {
	Items    []OrderLineInput
	CartID   string // alternative to Items: check out an existing cart
	Shipping ShippingInput
	Email    string
	Payment  string

	// Policy amounts, already resolved by whatever upstream owns discount
	// codes and loyalty points. Only the arithmetic happens here.
	DiscountCode      string
	DiscountAmount    float64
	LoyaltyPointsUsed float64

	CreateAccount bool
	AccountName   string
}

// NewAccount reports the credentials generated for a guest-upgrade order.
type NewAccount struct {
	UserID       string
	Email        string
	TempPassword string
}

type PlacedOrder struct {
	Order      *models.Order
	NewAccount *NewAccount
}

// PlaceOrder turns a line-item set plus shipping and payment details into a
// durable order with inventory debited, all-or-nothing. Every resolution,
// stock decrement, the order row, its items, the initial pending ledger
// entry, the optional new account, and the cart conversion share one
// transaction; any failure rolls the whole thing back. The confirmation
// notification and the audit document go out only after commit.
func (s *OrderService) PlaceOrder(ctx context.Context, identity Identity, in PlaceOrderInput) (*PlacedOrder, error) {
	if err := validatePlaceOrder(identity, in); err != nil {
		return nil, err
	}

	var (
		placed        *models.Order
		newAccount    *NewAccount
		convertCartID string
	)
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		lines := in.Items
		convertCartID = ""
		if len(lines) == 0 {
			cartLines, cartID, err := s.cartLines(ctx, tx, identity, in.CartID)
			if err != nil {
				return err
			}
			lines = cartLines
			convertCartID = cartID
		}
		if len(lines) == 0 {
			return validationf("order must contain at least one item")
		}

		userID := identity.UserID
		if userID == "" && in.CreateAccount {
			account, err := s.createAccount(ctx, tx, in)
			if err != nil {
				return err
			}
			newAccount = account
			userID = account.UserID
		}

		order := &models.Order{
			ID:                 uuid.NewString(),
			OrderNumber:        generateOrderNumber(),
			Email:              in.Email,
			ShippingName:       in.Shipping.Name,
			ShippingAddress:    in.Shipping.Address,
			ShippingCity:       in.Shipping.City,
			ShippingState:      in.Shipping.State,
			ShippingPostalCode: in.Shipping.PostalCode,
			ShippingPhone:      in.Shipping.Phone,
			PaymentMethod:      in.Payment,
			PaymentStatus:      "unpaid",
			Status:             models.OrderStatusPending,
			Discount:           in.DiscountAmount,
			LoyaltyPointsUsed:  in.LoyaltyPointsUsed,
		}
		if userID != "" {
			order.UserID = &userID
		}
		// Keep the guest marker on the order so the buyer can fetch it
		// with the same cookie before (or without) signing in.
		if identity.GuestID != "" {
			guestID := identity.GuestID
			order.GuestID = &guestID
		}

		subtotal := 0.0
		for _, line := range lines {
			item, err := s.fillLine(ctx, tx, order.ID, line)
			if err != nil {
				return err
			}
			subtotal += item.TotalPrice
			order.Items = append(order.Items, *item)
		}

		order.Subtotal = round2(subtotal)
		order.ShippingFee = s.shippingFee(order.Subtotal)
		order.Tax = round2(order.Subtotal * s.policy.TaxRate)
		total := round2(order.Subtotal + order.ShippingFee + order.Tax -
			order.Discount - order.LoyaltyPointsUsed)
		// Discounts and loyalty points arrive pre-resolved; an order never
		// charges less than zero.
		if total < 0 {
			total = 0
		}
		order.TotalAmount = total

		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		entry := &models.OrderStatusEntry{
			ID:      uuid.NewString(),
			OrderID: order.ID,
			Status:  models.OrderStatusPending,
			Note:    "Order placed",
		}
		if err := tx.Orders().AppendStatus(ctx, entry); err != nil {
			return err
		}

		if convertCartID != "" {
			if err := tx.Carts().SetStatus(ctx, convertCartID, models.CartStatusConverted); err != nil {
				return err
			}
		}

		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if convertCartID != "" && s.cache != nil {
		if cerr := s.cache.InvalidateCart(ctx, cacheOwner(identity)); cerr != nil {
			s.logger.Warn("failed to invalidate converted cart cache",
				zap.String("cart_id", convertCartID), zap.Error(cerr))
		}
	}

	s.afterCommit(placed, "place_order", bson.M{
		"order_number": placed.OrderNumber,
		"total_amount": placed.TotalAmount,
		"item_count":   len(placed.Items),
	})
	if s.notifier != nil {
		go func() {
			if err := s.notifier.OrderPlaced(context.Background(), placed); err != nil {
				s.logger.Warn("order confirmation failed",
					zap.String("order_id", placed.ID), zap.Error(err))
			}
		}()
	}

	return &PlacedOrder{Order: placed, NewAccount: newAccount}, nil
}

// fillLine resolves one requested line against the catalog, debits the
// authoritative stock (variant row when a variant is named, product row
// otherwise, never both), and returns the priced order item.
func (s *OrderService) fillLine(ctx context.Context, tx repository.Store, orderID string, line OrderLineInput) (*models.OrderItem, error) {
	product, err := tx.Inventory().Product(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Kind: "product", ID: line.ProductID}
		}
		return nil, err
	}

	unitPrice := product.Price
	name := product.Name
	sku := product.ID

	if line.VariantID != nil {
		variant, err := tx.Inventory().Variant(ctx, line.ProductID, *line.VariantID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, &NotFoundError{Kind: "variant", ID: *line.VariantID}
			}
			return nil, err
		}
		unitPrice += variant.AdditionalPrice
		name = fmt.Sprintf("%s (%s)", product.Name, variant.Label)
		sku = fmt.Sprintf("%s/%s", product.ID, variant.ID)

		ok, err := tx.Inventory().DecrementVariantStock(ctx, variant.ID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Re-read so the error reports the stock that defeated the
			// decrement, not the earlier snapshot.
			if fresh, rerr := tx.Inventory().Variant(ctx, line.ProductID, *line.VariantID); rerr == nil {
				variant = fresh
			}
			return nil, &InsufficientStockError{SKU: sku, Available: variant.Stock, Requested: line.Quantity}
		}
	} else {
		ok, err := tx.Inventory().DecrementProductStock(ctx, product.ID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			if fresh, rerr := tx.Inventory().Product(ctx, line.ProductID); rerr == nil {
				product = fresh
			}
			return nil, &InsufficientStockError{SKU: sku, Available: product.Stock, Requested: line.Quantity}
		}
	}

	return &models.OrderItem{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		ProductID:  line.ProductID,
		VariantID:  line.VariantID,
		Name:       name,
		UnitPrice:  unitPrice,
		Quantity:   line.Quantity,
		TotalPrice: round2(unitPrice * float64(line.Quantity)),
	}, nil
}

// cartLines loads the checkout lines from the identity's cart when the
// request names a cart instead of an explicit item list.
func (s *OrderService) cartLines(ctx context.Context, tx repository.Store, identity Identity, cartID string) ([]OrderLineInput, string, error) {
	if cartID == "" {
		return nil, "", nil
	}
	cart, err := tx.Carts().ByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", &NotFoundError{Kind: "cart", ID: cartID}
		}
		return nil, "", err
	}
	if !cartBelongsTo(cart, identity) {
		return nil, "", ErrForbidden
	}
	if cart.Status != models.CartStatusActive {
		return nil, "", validationf("cart is not active")
	}

	lines := make([]OrderLineInput, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, OrderLineInput{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return lines, cart.ID, nil
}

func cartBelongsTo(cart *models.Cart, identity Identity) bool {
	if cart.UserID != nil && identity.UserID != "" {
		return *cart.UserID == identity.UserID
	}
	if cart.GuestID != nil && identity.GuestID != "" {
		return *cart.GuestID == identity.GuestID
	}
	return false
}

func (s *OrderService) createAccount(ctx context.Context, tx repository.Store, in PlaceOrderInput) (*NewAccount, error) {
	if _, err := tx.Users().ByEmail(ctx, in.Email); err == nil {
		return nil, validationf("email %s is already registered", in.Email)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	password := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	name := in.AccountName
	if name == "" {
		name = in.Shipping.Name
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        in.Email,
		Phone:        in.Shipping.Phone,
		PasswordHash: string(hash),
	}
	if err := tx.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	return &NewAccount{UserID: user.ID, Email: user.Email, TempPassword: password}, nil
}

// UpdateStatus appends one row to the order's status ledger and refreshes
// the cached status column, atomically. Transitions must be legal per the
// table in models; re-asserting the current status is always legal and still
// appends. Moving to cancelled returns the debited stock.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, status, note string) (*models.Order, error) {
	if !models.IsOrderStatus(status) {
		return nil, validationf("unknown order status %q", status)
	}

	var updated *models.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().ByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Kind: "order", ID: orderID}
			}
			return err
		}
		if !models.CanTransition(order.Status, status) {
			return validationf("cannot transition order from %s to %s", order.Status, status)
		}

		if note == "" {
			note = fmt.Sprintf("Status changed from %s to %s", order.Status, status)
		}
		entry := &models.OrderStatusEntry{
			ID:      uuid.NewString(),
			OrderID: order.ID,
			Status:  status,
			Note:    note,
		}
		if err := tx.Orders().AppendStatus(ctx, entry); err != nil {
			return err
		}
		// The guarded update is the serialization point: of two concurrent
		// transitions reading the same starting status, only one matches the
		// guard. The loser rolls back its ledger entry, so a cancellation's
		// stock restore can never run twice.
		if err := tx.Orders().UpdateCachedStatus(ctx, order.ID, order.Status, status); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return validationf("order status changed concurrently, retry")
			}
			return err
		}

		if status == models.OrderStatusCancelled && order.Status != models.OrderStatusCancelled {
			if err := s.restoreStock(ctx, tx, order.Items); err != nil {
				return err
			}
		}

		updated, err = tx.Orders().ByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(updated, "update_order_status", bson.M{
		"status": status,
		"note":   note,
	})
	return updated, nil
}

func (s *OrderService) restoreStock(ctx context.Context, tx repository.Store, items []models.OrderItem) error {
	for _, item := range items {
		if item.VariantID != nil {
			if err := tx.Inventory().RestoreVariantStock(ctx, *item.VariantID, item.Quantity); err != nil {
				return err
			}
		} else {
			if err := tx.Inventory().RestoreProductStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.Orders().ByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Kind: "order", ID: orderID}
		}
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string, page, pageSize int) ([]models.Order, int64, error) {
	return s.store.Orders().ListByUser(ctx, userID, page, pageSize)
}

// AuditTrail returns the order's audit documents, newest first.
func (s *OrderService) AuditTrail(ctx context.Context, orderID string, limit int64) ([]*repository.AuditLog, error) {
	if _, err := s.store.Orders().ByID(ctx, orderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Kind: "order", ID: orderID}
		}
		return nil, err
	}
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.GetAuditLogs(ctx, orderID, limit)
}

func (s *OrderService) afterCommit(order *models.Order, action string, data bson.M) {
	if s.audit == nil {
		return
	}
	go func() {
		if err := s.audit.CreateAuditLog(context.Background(), &repository.AuditLog{
			Service:  "storefront",
			Action:   action,
			EntityID: order.ID,
			Data:     data,
		}); err != nil {
			s.logger.Warn("audit log failed",
				zap.String("order_id", order.ID),
				zap.String("action", action),
				zap.Error(err))
		}
	}()
}

func validatePlaceOrder(identity Identity, in PlaceOrderInput) error {
	if !identity.Known() {
		return ErrUnauthorized
	}
	if len(in.Items) == 0 && in.CartID == "" {
		return validationf("order must contain at least one item")
	}
	for _, line := range in.Items {
		if line.ProductID == "" {
			return validationf("item product id is required")
		}
		if line.Quantity < 1 {
			return validationf("item quantity must be at least 1")
		}
	}
	if in.Email == "" {
		return validationf("email is required")
	}
	missing := func(field, value string) error {
		if strings.TrimSpace(value) == "" {
			return validationf("shipping %s is required", field)
		}
		return nil
	}
	checks := []struct{ field, value string }{
		{"name", in.Shipping.Name},
		{"address", in.Shipping.Address},
		{"city", in.Shipping.City},
		{"state", in.Shipping.State},
		{"postal code", in.Shipping.PostalCode},
		{"phone", in.Shipping.Phone},
	}
	for _, c := range checks {
		if err := missing(c.field, c.value); err != nil {
			return err
		}
	}
	if in.DiscountAmount < 0 || in.LoyaltyPointsUsed < 0 {
		return validationf("discount and loyalty amounts must not be negative")
	}
	return nil
}

func (s *OrderService) shippingFee(subtotal float64) float64 {
	if s.policy.FreeShippingThreshold > 0 && subtotal >= s.policy.FreeShippingThreshold {
		return 0
	}
	return s.policy.ShippingFee
}

// generateOrderNumber builds the human-readable identifier handed to the
// customer. The uuid suffix keeps concurrent creations collision-free.
func generateOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), suffix)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
