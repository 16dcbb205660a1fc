package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
)

func shippingFixture() service.ShippingInput {
	return service.ShippingInput{
		Name:       "Jane Doe",
		Address:    "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Phone:      "555-0100",
	}
}

func placeOrderFixture(lines ...service.OrderLineInput) service.PlaceOrderInput {
	return service.PlaceOrderInput{
		Items:    lines,
		Shipping: shippingFixture(),
		Email:    "jane@example.com",
		Payment:  "card",
	}
}

func TestPlaceOrder_DebitsStockAndCreatesPending(t *testing.T) {
	orders, store, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()

	placed, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"},
		placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)

	order := placed.Order
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.NotEmpty(t, order.OrderNumber)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 200.0, order.Items[0].TotalPrice)
	assertTotalInvariant(t, order)

	product, err := store.Inventory().Product(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)
	assert.Equal(t, 2, product.SalesCount)

	// The initial ledger row exists and matches.
	loaded, err := orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.StatusHistory, 1)
	assert.Equal(t, models.OrderStatusPending, loaded.StatusHistory[0].Status)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	orders, store, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 1)
	ctx := context.Background()

	_, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"},
		placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 2}))
	require.True(t, service.IsInsufficientStock(err))

	var ise *service.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 1, ise.Available)
	assert.Equal(t, 2, ise.Requested)

	product, perr := store.Inventory().Product(ctx, "p1")
	require.NoError(t, perr)
	assert.Equal(t, 1, product.Stock)
	assert.Equal(t, 0, product.SalesCount)
}

func TestPlaceOrder_MixedVariantScenario(t *testing.T) {
	orders, store, db := newOrderService(t)
	seedProduct(t, db, "pa", 100, 5)
	seedProduct(t, db, "pb", 50, 10)
	seedVariant(t, db, "vx", "pb", 10, 3)
	ctx := context.Background()

	placed, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"}, placeOrderFixture(
		service.OrderLineInput{ProductID: "pa", Quantity: 2},
		service.OrderLineInput{ProductID: "pb", VariantID: ptr("vx"), Quantity: 1},
	))
	require.NoError(t, err)

	order := placed.Order
	require.Len(t, order.Items, 2)
	assert.Equal(t, 200.0, order.Items[0].TotalPrice)
	assert.Equal(t, 60.0, order.Items[1].TotalPrice)
	assert.Equal(t, 260.0, order.Subtotal)
	// shipping 10 + 10% tax on 260.
	assert.Equal(t, 10.0, order.ShippingFee)
	assert.Equal(t, 26.0, order.Tax)
	assert.Equal(t, 296.0, order.TotalAmount)
	assertTotalInvariant(t, order)

	product, err := store.Inventory().Product(ctx, "pa")
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)

	variant, err := store.Inventory().Variant(ctx, "pb", "vx")
	require.NoError(t, err)
	assert.Equal(t, 2, variant.Stock)

	// Variant sale debits the variant row only.
	parent, err := store.Inventory().Product(ctx, "pb")
	require.NoError(t, err)
	assert.Equal(t, 10, parent.Stock)
}

func TestPlaceOrder_VariantMismatch_NoMutation(t *testing.T) {
	orders, store, db := newOrderService(t)
	seedProduct(t, db, "pa", 100, 5)
	seedProduct(t, db, "pb", 50, 10)
	seedVariant(t, db, "vx", "pb", 10, 3)
	ctx := context.Background()

	// First line would debit pa before the bad variant line fails; the
	// rollback must undo it.
	_, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"}, placeOrderFixture(
		service.OrderLineInput{ProductID: "pa", Quantity: 2},
		service.OrderLineInput{ProductID: "pa", VariantID: ptr("vx"), Quantity: 1},
	))
	require.True(t, service.IsNotFound(err))

	product, perr := store.Inventory().Product(ctx, "pa")
	require.NoError(t, perr)
	assert.Equal(t, 5, product.Stock)
	assert.Equal(t, 0, product.SalesCount)

	variant, verr := store.Inventory().Variant(ctx, "pb", "vx")
	require.NoError(t, verr)
	assert.Equal(t, 3, variant.Stock)
}

func TestPlaceOrder_DiscountAndLoyaltyArithmetic(t *testing.T) {
	orders, _, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)

	in := placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1})
	in.DiscountAmount = 15
	in.LoyaltyPointsUsed = 5

	placed, err := orders.PlaceOrder(context.Background(), service.Identity{UserID: "u1"}, in)
	require.NoError(t, err)

	// 100 + 10 shipping + 10 tax - 15 - 5.
	assert.Equal(t, 100.0, placed.Order.TotalAmount)
	assertTotalInvariant(t, placed.Order)
}

func TestPlaceOrder_ValidatesShipping(t *testing.T) {
	orders, _, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)

	in := placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1})
	in.Shipping.City = ""

	_, err := orders.PlaceOrder(context.Background(), service.Identity{UserID: "u1"}, in)
	assert.True(t, service.IsValidation(err))
}

func TestPlaceOrder_RejectsEmptyOrder(t *testing.T) {
	orders, _, _ := newOrderService(t)

	in := service.PlaceOrderInput{Shipping: shippingFixture(), Email: "a@b.c"}
	_, err := orders.PlaceOrder(context.Background(), service.Identity{UserID: "u1"}, in)
	assert.True(t, service.IsValidation(err))
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	orders, store, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orders.PlaceOrder(ctx, service.Identity{UserID: "u1"},
				placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1}))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var ise *service.InsufficientStockError
			require.ErrorAs(t, err, &ise)
			// The loser reports the stock that actually defeated it.
			assert.Equal(t, 0, ise.Available)
		}
	}
	assert.Equal(t, 1, succeeded)

	product, err := store.Inventory().Product(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)
}

func TestPlaceOrder_FromCart_ConvertsCart(t *testing.T) {
	svc, store, db := newOrderService(t)
	carts := service.NewCartService(store, nil, zap.NewNop())
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()
	identity := service.Identity{GuestID: "g1"}

	cart, err := carts.AddItem(ctx, identity, service.AddItemInput{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)

	in := placeOrderFixture()
	in.CartID = cart.ID
	placed, err := svc.PlaceOrder(ctx, identity, in)
	require.NoError(t, err)

	require.Len(t, placed.Order.Items, 1)
	assert.Equal(t, 2, placed.Order.Items[0].Quantity)

	converted, err := store.Carts().ByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CartStatusConverted, converted.Status)
}

func TestPlaceOrder_ForeignCartForbidden(t *testing.T) {
	svc, store, db := newOrderService(t)
	carts := service.NewCartService(store, nil, zap.NewNop())
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()

	cart, err := carts.AddItem(ctx, service.Identity{GuestID: "g1"}, service.AddItemInput{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	in := placeOrderFixture()
	in.CartID = cart.ID
	_, err = svc.PlaceOrder(ctx, service.Identity{GuestID: "someone-else"}, in)
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestPlaceOrder_GuestUpgradeCreatesAccount(t *testing.T) {
	orders, store, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()

	in := placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1})
	in.CreateAccount = true
	in.AccountName = "Jane"

	placed, err := orders.PlaceOrder(ctx, service.Identity{GuestID: "g1"}, in)
	require.NoError(t, err)
	require.NotNil(t, placed.NewAccount)
	assert.NotEmpty(t, placed.NewAccount.TempPassword)

	user, err := store.Users().ByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane", user.Name)
	require.NotNil(t, placed.Order.UserID)
	assert.Equal(t, user.ID, *placed.Order.UserID)
}

func TestPlaceOrder_AccountRollsBackWithOrder(t *testing.T) {
	orders, store, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 0)
	ctx := context.Background()

	in := placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1})
	in.CreateAccount = true

	_, err := orders.PlaceOrder(ctx, service.Identity{GuestID: "g1"}, in)
	require.True(t, service.IsInsufficientStock(err))

	_, err = store.Users().ByEmail(ctx, "jane@example.com")
	assert.Error(t, err)
}

func TestUpdateStatus_AppendsLedger(t *testing.T) {
	orders, _, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()

	placed, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"},
		placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	updated, err := orders.UpdateStatus(ctx, placed.Order.ID, models.OrderStatusProcessing, "")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusProcessing, updated.Status)
	require.Len(t, updated.StatusHistory, 2)
	assert.Equal(t, models.OrderStatusPending, updated.StatusHistory[0].Status)
	assert.Equal(t, models.OrderStatusProcessing, updated.StatusHistory[1].Status)
	assert.NotEmpty(t, updated.StatusHistory[1].Note)
}

func TestUpdateStatus_ReplayAppendsWithoutRewriting(t *testing.T) {
	orders, _, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()

	placed, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"},
		placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	_, err = orders.UpdateStatus(ctx, placed.Order.ID, models.OrderStatusProcessing, "")
	require.NoError(t, err)
	first, err := orders.UpdateStatus(ctx, placed.Order.ID, models.OrderStatusShipped, "out the door")
	require.NoError(t, err)

	// Replaying the same status succeeds and appends another row; prior
	// rows are untouched.
	second, err := orders.UpdateStatus(ctx, placed.Order.ID, models.OrderStatusShipped, "")
	require.NoError(t, err)
	require.Len(t, second.StatusHistory, len(first.StatusHistory)+1)
	for i, entry := range first.StatusHistory {
		assert.Equal(t, entry.ID, second.StatusHistory[i].ID)
		assert.Equal(t, entry.Note, second.StatusHistory[i].Note)
	}
	assert.Equal(t, models.OrderStatusShipped, second.Status)
}

func TestUpdateStatus_IllegalTransition(t *testing.T) {
	orders, _, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()

	placed, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"},
		placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	// pending cannot jump straight to delivered.
	_, err = orders.UpdateStatus(ctx, placed.Order.ID, models.OrderStatusDelivered, "")
	assert.True(t, service.IsValidation(err))

	_, err = orders.UpdateStatus(ctx, placed.Order.ID, "weird", "")
	assert.True(t, service.IsValidation(err))
}

func TestUpdateStatus_UnknownOrder(t *testing.T) {
	orders, _, _ := newOrderService(t)

	_, err := orders.UpdateStatus(context.Background(), "missing", models.OrderStatusProcessing, "")
	assert.True(t, service.IsNotFound(err))
}

func TestPlaceOrder_OverDiscountFloorsAtZero(t *testing.T) {
	orders, _, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)

	in := placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1})
	in.DiscountAmount = 500

	placed, err := orders.PlaceOrder(context.Background(), service.Identity{UserID: "u1"}, in)
	require.NoError(t, err)

	assert.Equal(t, 0.0, placed.Order.TotalAmount)
	assertTotalInvariant(t, placed.Order)
}

func TestPlaceOrder_RecordsGuestMarker(t *testing.T) {
	orders, _, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)

	placed, err := orders.PlaceOrder(context.Background(), service.Identity{GuestID: "g1"},
		placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	require.NotNil(t, placed.Order.GuestID)
	assert.Equal(t, "g1", *placed.Order.GuestID)
	assert.Nil(t, placed.Order.UserID)
}

func TestUpdateStatus_CancelRestoresStock(t *testing.T) {
	orders, store, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()

	placed, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"},
		placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)

	_, err = orders.UpdateStatus(ctx, placed.Order.ID, models.OrderStatusCancelled, "customer request")
	require.NoError(t, err)

	product, err := store.Inventory().Product(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)
	assert.Equal(t, 0, product.SalesCount)
}

func TestUpdateStatus_ConcurrentCancelRestoresOnce(t *testing.T) {
	orders, store, db := newOrderService(t)
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()

	placed, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"},
		placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orders.UpdateStatus(ctx, placed.Order.ID, models.OrderStatusCancelled, "")
		}(i)
	}
	wg.Wait()

	// Whichever way the two calls interleave, the debited units come back
	// exactly once.
	for _, err := range errs {
		if err != nil {
			assert.True(t, service.IsValidation(err))
		}
	}
	product, err := store.Inventory().Product(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)
	assert.Equal(t, 0, product.SalesCount)
}

// memoryAuditor is a map-backed stand-in for the Mongo audit collection.
type memoryAuditor struct {
	mu   sync.Mutex
	logs map[string][]*repository.AuditLog
}

func newMemoryAuditor() *memoryAuditor {
	return &memoryAuditor{logs: make(map[string][]*repository.AuditLog)}
}

func (a *memoryAuditor) CreateAuditLog(_ context.Context, log *repository.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs[log.EntityID] = append(a.logs[log.EntityID], log)
	return nil
}

func (a *memoryAuditor) GetAuditLogs(_ context.Context, entityID string, limit int64) ([]*repository.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	logs := a.logs[entityID]
	if limit > 0 && int64(len(logs)) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func TestAuditTrail_ReadsBackEntries(t *testing.T) {
	store, db := newTestStore(t)
	audit := newMemoryAuditor()
	orders := service.NewOrderService(store, testPolicy(), nil, audit, nil, zap.NewNop())
	seedProduct(t, db, "p1", 100, 5)
	ctx := context.Background()

	placed, err := orders.PlaceOrder(ctx, service.Identity{UserID: "u1"},
		placeOrderFixture(service.OrderLineInput{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	require.NoError(t, audit.CreateAuditLog(ctx, &repository.AuditLog{
		Service: "storefront", Action: "update_order_status", EntityID: placed.Order.ID,
	}))

	logs, err := orders.AuditTrail(ctx, placed.Order.ID, 50)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, placed.Order.ID, logs[0].EntityID)

	_, err = orders.AuditTrail(ctx, "missing", 50)
	assert.True(t, service.IsNotFound(err))
}
