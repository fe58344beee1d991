// Package scheduler runs the long-lived pacing workers of the boost engine
package scheduler

import (
	"context"
	"log"
	"math"
	"runtime/debug"
	"time"

	"github.com/amirphl/booster/config"
	businessflow "github.com/amirphl/booster/business_flow"
	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/repository"
	"github.com/amirphl/booster/utils"
)

// PacingScheduler releases the quantity of one demand hour by hour following
// the distribution histogram of its bucket. Each relative hour is attempted at
// most once; the checkpoint is written whatever the outcome of its orders.
type PacingScheduler struct {
	demandID   uint
	demandRepo repository.BoostDemandRepository
	distRepo   repository.DistributionRepository
	tariffRepo repository.TariffRepository
	rotation   businessflow.RotationFlow
	orders     businessflow.OrderFlow
	cfg        config.PacingConfig
	clock      utils.Clock
	logger     *log.Logger
}

type orderPart struct {
	serviceID string
	quantity  int
}

func NewPacingScheduler(
	demandID uint,
	demandRepo repository.BoostDemandRepository,
	distRepo repository.DistributionRepository,
	tariffRepo repository.TariffRepository,
	rotation businessflow.RotationFlow,
	orders businessflow.OrderFlow,
	cfg config.PacingConfig,
	clock utils.Clock,
	logger *log.Logger,
) *PacingScheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.HourWindow <= 0 {
		cfg.HourWindow = 30 * time.Minute
	}
	if cfg.SplitRatio <= 0 || cfg.SplitRatio >= 1 {
		cfg.SplitRatio = 0.25
	}
	if cfg.SplitCap <= 0 {
		cfg.SplitCap = 50
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PacingScheduler{
		demandID:   demandID,
		demandRepo: demandRepo,
		distRepo:   distRepo,
		tariffRepo: tariffRepo,
		rotation:   rotation,
		orders:     orders,
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
	}
}

// Run ticks until the demand leaves the running state, its window elapses or ctx is done
func (p *PacingScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	if p.Tick(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.Tick(ctx) {
				return
			}
		}
	}
}

// Tick runs one scheduling step and reports whether the worker should exit
func (p *PacingScheduler) Tick(ctx context.Context) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("scheduler: ERROR: panic in demand id=%d tick: %v\n%s", p.demandID, r, debug.Stack())
			stop = false
		}
	}()

	demand, err := p.demandRepo.ByID(ctx, p.demandID)
	if err != nil {
		p.logger.Printf("scheduler: WARN: reload demand id=%d failed: %v", p.demandID, err)
		return false
	}
	if demand == nil {
		p.logger.Printf("scheduler: demand id=%d disappeared, stopping", p.demandID)
		return true
	}
	if demand.Status != models.BoostDemandStatusRunning {
		p.logger.Printf("scheduler: demand id=%d is %s, stopping", demand.ID, demand.Status)
		return true
	}

	now := p.clock.Now()
	hour := demand.RelativeHour(now)
	if hour > utils.HoursPerDemand {
		if _, err := p.demandRepo.Finish(ctx, demand.ID, models.BoostDemandStatusFinished, now); err != nil {
			p.logger.Printf("scheduler: WARN: finish demand id=%d failed: %v", demand.ID, err)
			return false
		}
		p.logger.Printf("scheduler: demand id=%d finished, %d of %d left undelivered", demand.ID, demand.TotalQuantityNeeded, demand.OriginalTotal)
		return true
	}
	if hour < 1 {
		// published in the future
		return false
	}
	if demand.HourCompleted(hour) {
		return false
	}

	offset := now.Sub(demand.PublishTime) - time.Duration(hour-1)*time.Hour
	if offset > p.cfg.HourWindow {
		return false
	}

	p.processHour(ctx, demand, hour)
	return false
}

func (p *PacingScheduler) processHour(ctx context.Context, demand *models.BoostDemand, hour int) {
	placed := 0
	defer func() {
		if _, err := p.demandRepo.CompleteHour(context.WithoutCancel(ctx), demand.ID, hour, placed); err != nil {
			p.logger.Printf("scheduler: ERROR: checkpoint demand id=%d hour=%d failed: %v", demand.ID, hour, err)
		}
	}()

	histogram, err := p.distRepo.Histogram(ctx, demand.BucketType, demand.DayBucket)
	if err != nil {
		p.logger.Printf("scheduler: WARN: histogram %s/%s unavailable: %v", demand.BucketType, demand.DayBucket, err)
		histogram = models.Histogram{}
	}
	percent, ok := histogram[hour]
	if !ok && hour == 1 {
		percent = utils.FirstHourDefaultPercent
	}

	sub := int(math.Floor(float64(demand.OriginalTotal) * percent / 100))
	if sub <= 0 {
		return
	}

	parts := p.plan(ctx, demand.Module, sub)
	for _, part := range parts {
		order, err := p.orders.Place(ctx, businessflow.PlaceOrderRequest{
			Module:       demand.Module,
			TaskID:       demand.UUID.String(),
			ServiceID:    part.serviceID,
			Link:         demand.TargetLink,
			Quantity:     part.quantity,
			RelativeHour: &hour,
			BucketType:   &demand.BucketType,
		})
		if order != nil {
			placed += part.quantity
		}
		if err != nil {
			p.logger.Printf("scheduler: WARN: demand id=%d hour=%d order of %d on service %s: %v", demand.ID, hour, part.quantity, part.serviceID, err)
			continue
		}
	}
	p.logger.Printf("scheduler: demand id=%d hour=%d released %d of %d (%.2f%%)", demand.ID, hour, placed, sub, percent)
}

// plan splits sub across the primary tariff and one other open tariff when
// that is legal, else sends all of it through a single selected service
func (p *PacingScheduler) plan(ctx context.Context, module models.BoostModule, sub int) []orderPart {
	if p.cfg.SplitEnabled {
		if parts, ok := p.splitPlan(ctx, module, sub); ok {
			return parts
		}
	}

	serviceID := p.rotation.SelectService(ctx, module, sub)
	if serviceID == "" {
		p.logger.Printf("scheduler: ERROR: no service id for %d units of %s", sub, module)
		return nil
	}
	return []orderPart{{serviceID: serviceID, quantity: sub}}
}

func (p *PacingScheduler) splitPlan(ctx context.Context, module models.BoostModule, sub int) ([]orderPart, bool) {
	head := min(p.cfg.SplitCap, int(math.Ceil(float64(sub)*p.cfg.SplitRatio)))
	rest := sub - head
	if head <= 0 || rest <= 0 {
		return nil, false
	}

	primary, err := p.tariffRepo.Primary(ctx, module)
	if err != nil {
		p.logger.Printf("scheduler: WARN: load primary tariff of %s failed: %v", module, err)
		return nil, false
	}
	if primary == nil || head < primary.MinLimit {
		return nil, false
	}

	sel := p.rotation.Select(ctx, businessflow.SelectionRequest{
		Module:            module,
		Quantity:          rest,
		ExcludeServiceIDs: []string{primary.ServiceID},
	})
	if sel.Fallback || sel.Reason != businessflow.OutcomeRoundRobin || sel.ServiceID == "" || sel.ServiceID == primary.ServiceID {
		return nil, false
	}

	return []orderPart{
		{serviceID: primary.ServiceID, quantity: head},
		{serviceID: sel.ServiceID, quantity: rest},
	}, true
}
