package scheduler

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/booster/config"
	businessflow "github.com/amirphl/booster/business_flow"
	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/repository"
	"github.com/amirphl/booster/utils"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var activeDemandsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "booster_active_demands",
	Help: "Pacing workers currently running in this process",
})

// BoostRequest asks for TotalQuantity units of Module for RefID, paced over
// the 24 hours following PublishTime. An empty BucketType is derived from the
// local publish hour in TimeZone.
type BoostRequest struct {
	Module        models.BoostModule
	RefID         string
	TargetLink    string
	TotalQuantity int
	PublishTime   time.Time
	TimeZone      string
	BucketType    models.BucketType
}

// BoostEngine owns the pacing workers of this process and the order sweeper
type BoostEngine struct {
	demandRepo repository.BoostDemandRepository
	distRepo   repository.DistributionRepository
	tariffRepo repository.TariffRepository
	orderRepo  repository.BoostOrderRepository
	rotation   businessflow.RotationFlow
	orders     businessflow.OrderFlow
	pacingCfg  config.PacingConfig
	sweepEvery time.Duration
	clock      utils.Clock
	logger     *log.Logger

	mu      sync.Mutex
	root    context.Context
	workers map[uint]context.CancelFunc
	wg      sync.WaitGroup
}

func NewBoostEngine(
	demandRepo repository.BoostDemandRepository,
	distRepo repository.DistributionRepository,
	tariffRepo repository.TariffRepository,
	orderRepo repository.BoostOrderRepository,
	rotation businessflow.RotationFlow,
	orders businessflow.OrderFlow,
	pacingCfg config.PacingConfig,
	rotationCfg config.RotationConfig,
	clock utils.Clock,
	logger *log.Logger,
) *BoostEngine {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	sweep := rotationCfg.OrderSweep
	if sweep <= 0 {
		sweep = 10 * time.Minute
	}
	return &BoostEngine{
		demandRepo: demandRepo,
		distRepo:   distRepo,
		tariffRepo: tariffRepo,
		orderRepo:  orderRepo,
		rotation:   rotation,
		orders:     orders,
		pacingCfg:  pacingCfg,
		sweepEvery: sweep,
		clock:      clock,
		logger:     logger,
		workers:    make(map[uint]context.CancelFunc),
	}
}

// Start resumes persisted demands when configured, launches the order sweeper
// and returns a stop function that cancels every worker and waits for them
func (e *BoostEngine) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	e.mu.Lock()
	e.root = ctx
	e.mu.Unlock()

	if e.pacingCfg.ResumeOnStart {
		if n, err := e.Resume(ctx); err != nil {
			e.logger.Printf("scheduler: resume failed: %v", err)
		} else if n > 0 {
			e.logger.Printf("scheduler: resumed %d demands", n)
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.sweepEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.sweepOrders(ctx)
			}
		}
	}()

	return func() {
		cancel()
		e.wg.Wait()
	}
}

// RequestBoost persists a demand and starts its pacing worker. A running
// demand for the same module and reference is returned instead, with existing set.
func (e *BoostEngine) RequestBoost(ctx context.Context, req BoostRequest) (demand *models.BoostDemand, existing bool, err error) {
	if !req.Module.Valid() {
		return nil, false, businessflow.NewBusinessError("BOOST_INVALID_MODULE", "Invalid boost module", businessflow.ErrInvalidModule)
	}
	refID := strings.TrimSpace(req.RefID)
	if refID == "" {
		return nil, false, businessflow.NewBusinessError("BOOST_REF_ID_REQUIRED", "Reference id is required", businessflow.ErrRefIDRequired)
	}
	link := strings.TrimSpace(req.TargetLink)
	if link == "" {
		return nil, false, businessflow.NewBusinessError("BOOST_TARGET_LINK_REQUIRED", "Target link is required", businessflow.ErrTargetLinkRequired)
	}
	if req.TotalQuantity <= 0 {
		return nil, false, businessflow.NewBusinessError("BOOST_INVALID_QUANTITY", "Total quantity must be positive", businessflow.ErrInvalidQuantity)
	}
	loc, err := utils.LoadZone(req.TimeZone)
	if err != nil {
		return nil, false, businessflow.NewBusinessError("BOOST_INVALID_TIME_ZONE", "Invalid time zone", businessflow.ErrInvalidTimeZone)
	}
	if req.BucketType != "" && !req.BucketType.Valid() {
		return nil, false, businessflow.NewBusinessError("BOOST_INVALID_BUCKET_TYPE", "Invalid bucket type", businessflow.ErrInvalidBucketType)
	}

	now := e.clock.Now()
	publish := req.PublishTime
	if publish.IsZero() {
		publish = now
	}
	if now.Sub(publish) >= models.DemandWindow {
		return nil, false, businessflow.NewBusinessError("BOOST_WINDOW_CLOSED", "Boost window has already elapsed", businessflow.ErrDemandWindowClosed)
	}

	local := publish.In(loc)
	bucket := req.BucketType
	if bucket == "" {
		bucket = models.BucketTypeForHour(local.Hour())
	}
	dayBucket := models.DayBucketFor(local)

	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.demandRepo.RunningByRef(ctx, req.Module, refID)
	if err != nil {
		return nil, false, businessflow.NewBusinessError("BOOST_LOOKUP_FAILED", "Failed to look up running demand", err)
	}
	if current != nil {
		e.spawnLocked(current)
		return current, true, nil
	}

	demand = models.NewBoostDemand(req.Module, refID, link, req.TotalQuantity, publish, loc.String(), bucket, dayBucket)
	if err := e.demandRepo.Save(ctx, demand); err != nil {
		return nil, false, businessflow.NewBusinessError("BOOST_SAVE_FAILED", "Failed to save demand", err)
	}
	e.logger.Printf("scheduler: demand id=%d %s ref=%s total=%d bucket=%s/%s accepted", demand.ID, demand.Module, refID, demand.OriginalTotal, bucket, dayBucket)

	e.spawnLocked(demand)
	return demand, false, nil
}

// StopBoost marks a running demand stopped; its worker exits on the next tick
func (e *BoostEngine) StopBoost(ctx context.Context, id uuid.UUID) (*models.BoostDemand, error) {
	demand, err := e.demandRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, businessflow.NewBusinessError("BOOST_LOOKUP_FAILED", "Failed to load demand", err)
	}
	if demand == nil {
		return nil, businessflow.NewBusinessError("BOOST_NOT_FOUND", "Boost demand not found", businessflow.ErrDemandNotFound)
	}

	changed, err := e.demandRepo.Finish(ctx, demand.ID, models.BoostDemandStatusStopped, e.clock.Now())
	if err != nil {
		return nil, businessflow.NewBusinessError("BOOST_STOP_FAILED", "Failed to stop demand", err)
	}
	if !changed {
		return nil, businessflow.NewBusinessError("BOOST_NOT_RUNNING", "Boost demand is not running", businessflow.ErrDemandNotRunning)
	}

	stopped, err := e.demandRepo.ByID(ctx, demand.ID)
	if err != nil || stopped == nil {
		return nil, businessflow.NewBusinessError("BOOST_LOOKUP_FAILED", "Failed to reload demand", err)
	}
	e.logger.Printf("scheduler: demand id=%d stopped", demand.ID)
	return stopped, nil
}

// GetBoost returns a demand with the orders placed for it
func (e *BoostEngine) GetBoost(ctx context.Context, id uuid.UUID) (*models.BoostDemand, []*models.BoostOrder, error) {
	demand, err := e.demandRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, nil, businessflow.NewBusinessError("BOOST_LOOKUP_FAILED", "Failed to load demand", err)
	}
	if demand == nil {
		return nil, nil, businessflow.NewBusinessError("BOOST_NOT_FOUND", "Boost demand not found", businessflow.ErrDemandNotFound)
	}

	orders, err := e.orderRepo.ListByTask(ctx, demand.UUID.String(), demand.Module)
	if err != nil {
		return nil, nil, businessflow.NewBusinessError("BOOST_ORDERS_FAILED", "Failed to list demand orders", err)
	}
	return demand, orders, nil
}

// GetServiceFor selects a service for a one-off order outside pacing
func (e *BoostEngine) GetServiceFor(ctx context.Context, module models.BoostModule, quantity int) string {
	return e.rotation.SelectService(ctx, module, quantity)
}

// SelectFor is GetServiceFor with the selection details
func (e *BoostEngine) SelectFor(ctx context.Context, module models.BoostModule, quantity int) businessflow.Selection {
	return e.rotation.Select(ctx, businessflow.SelectionRequest{Module: module, Quantity: quantity})
}

// Resume starts workers for persisted running demands. Demands whose window
// has elapsed are finished instead.
func (e *BoostEngine) Resume(ctx context.Context) (int, error) {
	demands, err := e.demandRepo.ListRunning(ctx)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now()
	resumed := 0

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range demands {
		if now.Sub(d.PublishTime) >= models.DemandWindow {
			if _, err := e.demandRepo.Finish(ctx, d.ID, models.BoostDemandStatusFinished, now); err != nil {
				e.logger.Printf("scheduler: WARN: finish stale demand id=%d failed: %v", d.ID, err)
			}
			continue
		}
		if e.spawnLocked(d) {
			resumed++
		}
	}
	return resumed, nil
}

// ActiveWorkers returns the number of pacing workers running in this process
func (e *BoostEngine) ActiveWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// spawnLocked starts the worker of demand unless one is already running; e.mu must be held
func (e *BoostEngine) spawnLocked(demand *models.BoostDemand) bool {
	if _, ok := e.workers[demand.ID]; ok {
		return false
	}

	parent := e.root
	if parent == nil {
		parent = context.Background()
	}
	if parent.Err() != nil {
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	e.workers[demand.ID] = cancel
	activeDemandsGauge.Inc()

	worker := NewPacingScheduler(demand.ID, e.demandRepo, e.distRepo, e.tariffRepo, e.rotation, e.orders, e.pacingCfg, e.clock, e.logger)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.workers, demand.ID)
			e.mu.Unlock()
			activeDemandsGauge.Dec()
		}()
		worker.Run(ctx)
	}()
	return true
}

func (e *BoostEngine) sweepOrders(ctx context.Context) {
	for _, module := range models.AllBoostModules {
		counts, err := e.rotation.RefreshActiveOrders(ctx, module, true)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			e.logger.Printf("scheduler: WARN: order sweep of %s failed: %v", module, err)
			continue
		}
		active := 0
		for _, n := range counts {
			active += n
		}
		if active > 0 {
			e.logger.Printf("scheduler: order sweep of %s: %d active orders", module, active)
		}
	}
}
