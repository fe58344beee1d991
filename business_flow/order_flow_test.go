package businessflow

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/amirphl/booster/app/services"
	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/repository"
	testingutil "github.com/amirphl/booster/testing"
	"github.com/amirphl/booster/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newOrderFlowForTest(db *gorm.DB, provider services.ProviderClient, settle time.Duration) OrderFlow {
	return NewOrderFlow(
		db,
		repository.NewBoostOrderRepository(db),
		repository.NewExpenseRepository(db),
		provider,
		settle,
		log.New(io.Discard, "", 0),
	)
}

func placeRequest(serviceID string, quantity int) PlaceOrderRequest {
	bucket := models.BucketTypeMorning
	return PlaceOrderRequest{
		Module:       testModule,
		TaskID:       "demand-1",
		ServiceID:    serviceID,
		Link:         "https://t.me/c/42",
		Quantity:     quantity,
		RelativeHour: utils.ToPtr(3),
		BucketType:   &bucket,
	}
}

func TestOrderFlowPlace(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		ctx := context.Background()
		orderRepo := repository.NewBoostOrderRepository(db)
		expenseRepo := repository.NewExpenseRepository(db)

		t.Run("PricedOrderRecordsExpense", func(t *testing.T) {
			provider := services.NewMockProviderClient()
			provider.PricePer1000 = decimal.NewFromInt(2)
			flow := newOrderFlowForTest(db, provider, 0)

			order, err := flow.Place(ctx, placeRequest("10", 500))
			require.NoError(t, err)
			require.NotNil(t, order)
			assert.Equal(t, models.BoostOrderStatusInProgress, order.Status)
			assert.True(t, order.Price.Equal(decimal.NewFromInt(1)))
			require.NotNil(t, order.ExpenseID)

			stored, err := orderRepo.ByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.BoostOrderStatusInProgress, stored.Status)
			assert.True(t, stored.Price.Equal(decimal.NewFromInt(1)))
			assert.Equal(t, order.ExternalOrderID, stored.ExternalOrderID)

			expense, err := expenseRepo.ByID(ctx, testModule, *order.ExpenseID)
			require.NoError(t, err)
			require.NotNil(t, expense)
			assert.Equal(t, "demand-1", expense.TaskID)
			assert.Equal(t, "10", expense.ServiceID)
			assert.Equal(t, 500, expense.Quantity)
			assert.True(t, expense.Price.Equal(decimal.NewFromInt(1)))
			require.NotNil(t, expense.RelativeHour)
			assert.Equal(t, 3, *expense.RelativeHour)
			require.NotNil(t, expense.BucketType)
			assert.Equal(t, "morning", *expense.BucketType)
		})

		t.Run("ZeroChargeLeavesOrderPending", func(t *testing.T) {
			provider := services.NewMockProviderClient()
			provider.ChargeFor = func(string, int) (decimal.Decimal, bool) { return decimal.Zero, true }
			flow := newOrderFlowForTest(db, provider, 0)

			order, err := flow.Place(ctx, placeRequest("20", 100))
			require.Error(t, err)
			assert.True(t, IsOrderPriceUnavailable(err))
			require.NotNil(t, order)
			assert.Equal(t, models.BoostOrderStatusPending, order.Status)
			assert.Nil(t, order.ExpenseID)

			stored, err := orderRepo.ByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.BoostOrderStatusPending, stored.Status)
			assert.True(t, stored.Price.IsZero())
		})

		t.Run("MissingChargeLeavesOrderPending", func(t *testing.T) {
			provider := services.NewMockProviderClient()
			provider.ChargeFor = func(string, int) (decimal.Decimal, bool) { return decimal.Zero, false }
			flow := newOrderFlowForTest(db, provider, 0)

			order, err := flow.Place(ctx, placeRequest("20", 100))
			assert.True(t, IsOrderPriceUnavailable(err))
			require.NotNil(t, order)
			assert.Nil(t, order.ExpenseID)
		})

		t.Run("StatusErrorLeavesOrderPending", func(t *testing.T) {
			provider := services.NewMockProviderClient()
			provider.StatusErr = errors.New("timeout")
			flow := newOrderFlowForTest(db, provider, 0)

			order, err := flow.Place(ctx, placeRequest("20", 100))
			assert.True(t, IsOrderPriceUnavailable(err))
			require.NotNil(t, order)
			assert.NotZero(t, order.ID)
		})

		t.Run("CreateFailureRecordsNothing", func(t *testing.T) {
			provider := services.NewMockProviderClient()
			provider.CreateErr = &services.ProviderError{Action: "add", Message: "Not enough funds"}
			flow := newOrderFlowForTest(db, provider, 0)

			before, err := orderRepo.Count(ctx, models.BoostOrderFilter{})
			require.NoError(t, err)

			order, err := flow.Place(ctx, placeRequest("30", 100))
			assert.Nil(t, order)
			assert.True(t, IsOrderNotCreated(err))

			after, err := orderRepo.Count(ctx, models.BoostOrderFilter{})
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})

		t.Run("CanceledWhileSettling", func(t *testing.T) {
			provider := services.NewMockProviderClient()
			flow := newOrderFlowForTest(db, provider, time.Hour)

			tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			order, err := flow.Place(tctx, placeRequest("10", 100))
			assert.True(t, IsOrderPriceUnavailable(err))
			require.NotNil(t, order)
			assert.Equal(t, models.BoostOrderStatusPending, order.Status)
		})

		t.Run("Validation", func(t *testing.T) {
			flow := newOrderFlowForTest(db, services.NewMockProviderClient(), 0)

			_, err := flow.Place(ctx, PlaceOrderRequest{Module: "likes", ServiceID: "1", Link: "l", Quantity: 1})
			assert.True(t, IsInvalidModule(err))

			_, err = flow.Place(ctx, PlaceOrderRequest{Module: testModule, Link: "l", Quantity: 1})
			assert.True(t, IsServiceIDRequired(err))

			_, err = flow.Place(ctx, PlaceOrderRequest{Module: testModule, ServiceID: "1", Quantity: 1})
			assert.True(t, IsTargetLinkRequired(err))

			_, err = flow.Place(ctx, PlaceOrderRequest{Module: testModule, ServiceID: "1", Link: "l"})
			assert.True(t, IsInvalidQuantity(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestOrderFlowExpenseExistsIffPriced(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		ctx := context.Background()
		provider := services.NewMockProviderClient()
		provider.ChargeFor = func(serviceID string, quantity int) (decimal.Decimal, bool) {
			switch serviceID {
			case "free":
				return decimal.Zero, true
			case "silent":
				return decimal.Zero, false
			default:
				return decimal.NewFromInt(int64(quantity)).Div(decimal.NewFromInt(100)), true
			}
		}
		flow := newOrderFlowForTest(db, provider, 0)

		for _, serviceID := range []string{"paid", "free", "silent", "paid", "free"} {
			_, _ = flow.Place(ctx, placeRequest(serviceID, 200))
		}

		orderRepo := repository.NewBoostOrderRepository(db)
		expenseRepo := repository.NewExpenseRepository(db)
		orders, err := orderRepo.ListByTask(ctx, "demand-1", testModule)
		require.NoError(t, err)
		require.Len(t, orders, 5)

		priced := 0
		for _, o := range orders {
			if o.Price.IsPositive() {
				priced++
				require.NotNil(t, o.ExpenseID)
				expense, err := expenseRepo.ByID(ctx, testModule, *o.ExpenseID)
				require.NoError(t, err)
				require.NotNil(t, expense)
				assert.True(t, expense.Price.Equal(o.Price))
			} else {
				assert.Nil(t, o.ExpenseID)
			}
		}
		assert.Equal(t, 2, priced)

		totals, err := expenseRepo.Totals(ctx, testModule, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), totals.Count)
		assert.True(t, totals.Spend.Equal(decimal.NewFromInt(4)))
		return nil
	})
	require.NoError(t, err)
}

// cancellingProvider cancels the caller's context once the upstream order exists
type cancellingProvider struct {
	services.ProviderClient
	cancel context.CancelFunc
}

func (p *cancellingProvider) CreateOrder(ctx context.Context, serviceID, link string, quantity int) (string, error) {
	id, err := p.ProviderClient.CreateOrder(ctx, serviceID, link, quantity)
	p.cancel()
	return id, err
}

// sweepingProvider completes the order in the ledger before answering the price poll
type sweepingProvider struct {
	services.ProviderClient
	orderRepo repository.BoostOrderRepository
}

func (p *sweepingProvider) GetStatus(ctx context.Context, ids []string) (map[string]services.ProviderOrderStatus, error) {
	for _, id := range ids {
		order, err := p.orderRepo.ByExternalID(ctx, id)
		if err != nil || order == nil {
			return nil, errors.New("order not recorded")
		}
		if _, err := p.orderRepo.MarkTerminal(ctx, order.ID, models.BoostOrderStatusCompleted, time.Now()); err != nil {
			return nil, err
		}
	}
	return p.ProviderClient.GetStatus(ctx, ids)
}

func TestOrderFlowLedgerOutlivesCaller(t *testing.T) {
	t.Run("CancelledAfterCreate", func(t *testing.T) {
		err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			provider := &cancellingProvider{ProviderClient: services.NewMockProviderClient(), cancel: cancel}
			flow := newOrderFlowForTest(db, provider, 0)

			order, err := flow.Place(ctx, placeRequest("10", 100))
			assert.True(t, IsOrderPriceUnavailable(err))
			require.NotNil(t, order)

			stored, err := repository.NewBoostOrderRepository(db).ByID(context.Background(), order.ID)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, models.BoostOrderStatusPending, stored.Status)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("CompletedDuringSettle", func(t *testing.T) {
		err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
			mock := services.NewMockProviderClient()
			mock.PricePer1000 = decimal.NewFromInt(2)
			provider := &sweepingProvider{ProviderClient: mock, orderRepo: repository.NewBoostOrderRepository(db)}
			flow := newOrderFlowForTest(db, provider, 0)

			order, err := flow.Place(context.Background(), placeRequest("10", 500))
			require.NoError(t, err)
			require.NotNil(t, order)
			assert.Equal(t, models.BoostOrderStatusCompleted, order.Status)
			assert.True(t, order.Price.Equal(decimal.NewFromInt(1)))
			require.NotNil(t, order.ExpenseID)
			return nil
		})
		require.NoError(t, err)
	})
}
