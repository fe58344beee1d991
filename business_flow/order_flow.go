package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/booster/app/services"
	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/repository"
	"github.com/amirphl/booster/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_orders_total",
			Help: "Orders placed at the provider partitioned by module and result",
		},
		[]string{"module", "result"},
	)

	spendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_spend_total",
			Help: "Sum of provider charges recorded as expenses",
		},
		[]string{"module"},
	)
)

// PlaceOrderRequest describes one purchase. RelativeHour and BucketType tag
// the expense when the order is placed by the pacing scheduler.
type PlaceOrderRequest struct {
	Module       models.BoostModule
	TaskID       string
	ServiceID    string
	Link         string
	Quantity     int
	RelativeHour *int
	BucketType   *models.BucketType
}

// OrderFlow places orders at the provider and keeps the ledger in step
type OrderFlow interface {
	// Place creates the order upstream, records it pending and then prices it.
	// When the provider reports no positive charge the pending order is
	// returned together with ErrOrderPriceUnavailable and no expense exists.
	Place(ctx context.Context, req PlaceOrderRequest) (*models.BoostOrder, error)
}

type OrderFlowImpl struct {
	db          *gorm.DB
	orderRepo   repository.BoostOrderRepository
	expenseRepo repository.ExpenseRepository
	provider    services.ProviderClient
	settleDelay time.Duration
	logger      *log.Logger
}

func NewOrderFlow(
	db *gorm.DB,
	orderRepo repository.BoostOrderRepository,
	expenseRepo repository.ExpenseRepository,
	provider services.ProviderClient,
	settleDelay time.Duration,
	logger *log.Logger,
) OrderFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &OrderFlowImpl{
		db:          db,
		orderRepo:   orderRepo,
		expenseRepo: expenseRepo,
		provider:    provider,
		settleDelay: settleDelay,
		logger:      logger,
	}
}

func (f *OrderFlowImpl) Place(ctx context.Context, req PlaceOrderRequest) (*models.BoostOrder, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}
	module := req.Module.String()

	externalID, err := f.provider.CreateOrder(ctx, req.ServiceID, req.Link, req.Quantity)
	if err != nil {
		ordersTotal.WithLabelValues(module, "create_failed").Inc()
		if errors.Is(err, services.ErrProviderNotConfigured) {
			f.logger.Printf("order: ERROR: %s order for task %s: %v", module, req.TaskID, err)
		} else {
			f.logger.Printf("order: WARN: provider rejected %s order of %d on service %s: %v", module, req.Quantity, req.ServiceID, err)
		}
		return nil, NewBusinessError("ORDER_CREATE_FAILED", "Provider did not create the order", fmt.Errorf("%w: %w", ErrOrderNotCreated, err))
	}

	// the order exists upstream from here on; ledger writes outlive a cancelled caller
	ledgerCtx := context.WithoutCancel(ctx)

	now := utils.UTCNow()
	order := &models.BoostOrder{
		TaskID:          req.TaskID,
		TaskType:        req.Module,
		ServiceID:       req.ServiceID,
		ExternalOrderID: externalID,
		Quantity:        req.Quantity,
		Price:           decimal.Zero,
		Status:          models.BoostOrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := f.orderRepo.Save(ledgerCtx, order); err != nil {
		// the order exists upstream, leave a trace of its id
		ordersTotal.WithLabelValues(module, "ledger_failed").Inc()
		f.logger.Printf("order: ERROR: failed to record %s order %s (service %s, quantity %d): %v", module, externalID, req.ServiceID, req.Quantity, err)
		return nil, NewBusinessError("ORDER_SAVE_FAILED", "Failed to record order", err)
	}

	if err := f.settle(ctx); err != nil {
		return f.unpriced(order, err)
	}

	statuses, err := f.provider.GetStatus(ctx, []string{externalID})
	if err != nil {
		return f.unpriced(order, err)
	}
	st, ok := statuses[externalID]
	if !ok || !st.Priced() {
		return f.unpriced(order, fmt.Errorf("no positive charge for order %s", externalID))
	}

	expense := &models.Expense{
		TaskID:       req.TaskID,
		Quantity:     req.Quantity,
		Price:        st.Charge,
		ServiceID:    req.ServiceID,
		RelativeHour: req.RelativeHour,
		CreatedAt:    utils.UTCNow(),
	}
	if req.BucketType != nil {
		expense.BucketType = utils.ToPtr(req.BucketType.String())
	}

	err = repository.WithTransaction(ledgerCtx, f.db, func(txCtx context.Context) error {
		if err := f.expenseRepo.Save(txCtx, req.Module, expense); err != nil {
			return err
		}
		return f.orderRepo.MarkPriced(txCtx, order.ID, st.Charge, expense.ID)
	})
	if err != nil {
		ordersTotal.WithLabelValues(module, "ledger_failed").Inc()
		f.logger.Printf("order: ERROR: failed to record charge %s of %s order %s: %v", st.Charge, module, externalID, err)
		return order, NewBusinessError("ORDER_PRICE_SAVE_FAILED", "Failed to record order price", fmt.Errorf("%w: %w", ErrOrderPriceUnavailable, err))
	}

	order.Price = st.Charge
	order.ExpenseID = &expense.ID
	if order.Status == models.BoostOrderStatusPending {
		order.Status = models.BoostOrderStatusInProgress
	}
	if fresh, err := f.orderRepo.ByID(ledgerCtx, order.ID); err == nil && fresh != nil {
		order = fresh
	}

	ordersTotal.WithLabelValues(module, "priced").Inc()
	spendTotal.WithLabelValues(module).Add(st.Charge.InexactFloat64())
	return order, nil
}

func (f *OrderFlowImpl) settle(ctx context.Context) error {
	if f.settleDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *OrderFlowImpl) unpriced(order *models.BoostOrder, cause error) (*models.BoostOrder, error) {
	ordersTotal.WithLabelValues(order.TaskType.String(), "unpriced").Inc()
	f.logger.Printf("order: WARN: %s order %s left unpriced: %v", order.TaskType, order.ExternalOrderID, cause)
	return order, NewBusinessError("ORDER_PRICE_UNAVAILABLE", "Order price unavailable", fmt.Errorf("%w: %w", ErrOrderPriceUnavailable, cause))
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if !req.Module.Valid() {
		return NewBusinessError("ORDER_INVALID_MODULE", "Invalid boost module", ErrInvalidModule)
	}
	if strings.TrimSpace(req.ServiceID) == "" {
		return NewBusinessError("ORDER_SERVICE_ID_REQUIRED", "Service id is required", ErrServiceIDRequired)
	}
	if strings.TrimSpace(req.Link) == "" {
		return NewBusinessError("ORDER_TARGET_LINK_REQUIRED", "Target link is required", ErrTargetLinkRequired)
	}
	if req.Quantity <= 0 {
		return NewBusinessError("ORDER_INVALID_QUANTITY", "Quantity must be positive", ErrInvalidQuantity)
	}
	return nil
}
