package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"slices"
	"sort"
	"time"

	"github.com/amirphl/booster/app/services"
	"github.com/amirphl/booster/config"
	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/repository"
	"github.com/amirphl/booster/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Selection outcomes, also used as metric labels
const (
	OutcomeRoundRobin       = "round_robin"
	OutcomePrimaryFallback  = "primary_fallback"
	OutcomeLowestIDFallback = "lowest_id_fallback"
	OutcomeDefault          = "default"
)

var rotationSelectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "booster_rotation_selections_total",
		Help: "Service selections partitioned by module and outcome",
	},
	[]string{"module", "outcome"},
)

// RotationLocker guards the round robin pointer across processes
type RotationLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// SelectionRequest asks for a service able to take Quantity units of Module.
// Tariffs whose service id is listed in ExcludeServiceIDs are not considered.
type SelectionRequest struct {
	Module            models.BoostModule
	Quantity          int
	ExcludeServiceIDs []string
}

// Selection is the outcome of a service selection. Fallback is true when no
// tariff was chosen and ServiceID is the module's default service.
type Selection struct {
	ServiceID string
	TariffID  *uint
	Fallback  bool
	Reason    string
}

// RotationFlow picks the upstream service for an order. Selection never
// fails: any internal error yields the module's default service id.
type RotationFlow interface {
	SelectService(ctx context.Context, module models.BoostModule, quantity int) string
	Select(ctx context.Context, req SelectionRequest) Selection
	// RefreshActiveOrders recounts unfinished orders per service, polling the
	// provider unless the cached counts are fresh and force is false
	RefreshActiveOrders(ctx context.Context, module models.BoostModule, force bool) (map[string]int, error)
}

type RotationFlowImpl struct {
	tariffRepo repository.TariffRepository
	stateRepo  repository.RotationStateRepository
	orderRepo  repository.BoostOrderRepository
	provider   services.ProviderClient
	locker     RotationLocker
	cfg        config.RotationConfig
	clock      utils.Clock
	logger     *log.Logger
}

// NewRotationFlow creates the rotation selector. locker may be nil unless the
// pointer mode is redis; a nil locker in redis mode degrades to best effort.
func NewRotationFlow(
	tariffRepo repository.TariffRepository,
	stateRepo repository.RotationStateRepository,
	orderRepo repository.BoostOrderRepository,
	provider services.ProviderClient,
	locker RotationLocker,
	cfg config.RotationConfig,
	clock utils.Clock,
	logger *log.Logger,
) RotationFlow {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RotationFlowImpl{
		tariffRepo: tariffRepo,
		stateRepo:  stateRepo,
		orderRepo:  orderRepo,
		provider:   provider,
		locker:     locker,
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
	}
}

// SelectService returns the service id for quantity units of module
func (f *RotationFlowImpl) SelectService(ctx context.Context, module models.BoostModule, quantity int) string {
	return f.Select(ctx, SelectionRequest{Module: module, Quantity: quantity}).ServiceID
}

// Select chooses among the eligible tariffs: round robin over the ones below
// the queue threshold, else the primary, else the lowest id.
func (f *RotationFlowImpl) Select(ctx context.Context, req SelectionRequest) (sel Selection) {
	module := req.Module
	defaultID := f.cfg.DefaultServiceIDs[module.String()]

	defer func() {
		if r := recover(); r != nil {
			f.logger.Printf("rotation: ERROR: panic selecting service for %s: %v\n%s", module, r, debug.Stack())
			sel = f.fallback(module, defaultID, "panic")
		}
	}()

	if !module.Valid() {
		f.logger.Printf("rotation: ERROR: invalid module %q", module)
		return f.fallback(module, defaultID, "invalid_module")
	}

	state, err := f.stateRepo.GetOrCreate(ctx, module, defaultID)
	if err != nil {
		f.logger.Printf("rotation: WARN: failed to load state of %s: %v", module, err)
		return f.fallback(module, defaultID, "state_unavailable")
	}
	if state.DefaultServiceID != "" {
		defaultID = state.DefaultServiceID
	}

	eligible, err := f.tariffRepo.ListEligible(ctx, module, req.Quantity)
	if err != nil {
		f.logger.Printf("rotation: WARN: failed to list tariffs of %s: %v", module, err)
		return f.fallback(module, defaultID, "tariffs_unavailable")
	}
	eligible = excludeServices(eligible, req.ExcludeServiceIDs)
	if len(eligible) == 0 {
		total, cerr := f.tariffRepo.Count(ctx, models.TariffFilter{Module: &module})
		if cerr == nil && total == 0 {
			f.logger.Printf("rotation: ERROR: %s: %v", module, ErrNoTariffs)
		}
		return f.fallback(module, defaultID, "no_eligible_tariffs")
	}

	counts, err := f.RefreshActiveOrders(ctx, module, false)
	if err != nil {
		if errors.Is(err, services.ErrProviderNotConfigured) {
			f.logger.Printf("rotation: ERROR: %s: %v", module, err)
			return f.fallback(module, defaultID, "provider_not_configured")
		}
		f.logger.Printf("rotation: WARN: admission refresh of %s failed: %v", module, err)
		return f.fallback(module, defaultID, "admission_unavailable")
	}

	threshold := f.cfg.QueueThreshold
	if threshold <= 0 {
		threshold = utils.QueueThreshold
	}
	open := make([]*models.Tariff, 0, len(eligible))
	for _, t := range eligible {
		if counts[t.ServiceID] < threshold {
			open = append(open, t)
		}
	}

	if len(open) > 0 {
		chosen := f.advancePointer(ctx, module, open)
		return f.selected(module, chosen, OutcomeRoundRobin)
	}

	for _, t := range eligible {
		if t.Primary() {
			return f.selected(module, t, OutcomePrimaryFallback)
		}
	}
	return f.selected(module, eligible[0], OutcomeLowestIDFallback)
}

// RefreshActiveOrders recounts the unfinished orders of module per service.
// Orders the provider reports as terminal are closed in the ledger; a failed
// poll leaves its whole batch counted as active.
func (f *RotationFlowImpl) RefreshActiveOrders(ctx context.Context, module models.BoostModule, force bool) (map[string]int, error) {
	state, err := f.stateRepo.GetOrCreate(ctx, module, f.cfg.DefaultServiceIDs[module.String()])
	if err != nil {
		return nil, err
	}

	ttl := f.cfg.CacheTTL
	if ttl <= 0 {
		ttl = utils.ActiveOrdersCacheTTL
	}
	now := f.clock.Now()
	if !force && state.CacheFresh(now, ttl) {
		return state.ActiveOrders(), nil
	}

	orders, err := f.orderRepo.ListActiveByModule(ctx, module)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]*models.BoostOrder)
	for _, o := range orders {
		groups[o.ServiceID] = append(groups[o.ServiceID], o)
	}
	serviceIDs := make([]string, 0, len(groups))
	for id := range groups {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)

	counts := make(map[string]int, len(groups))
	for _, serviceID := range serviceIDs {
		active, err := f.countActive(ctx, module, groups[serviceID], now)
		if err != nil {
			return nil, err
		}
		counts[serviceID] = active
	}

	if err := f.stateRepo.SaveActiveOrders(ctx, module, counts, now); err != nil {
		f.logger.Printf("rotation: WARN: failed to cache active orders of %s: %v", module, err)
	}
	return counts, nil
}

func (f *RotationFlowImpl) countActive(ctx context.Context, module models.BoostModule, group []*models.BoostOrder, now time.Time) (int, error) {
	active := 0
	for start := 0; start < len(group); start += utils.ProviderStatusBatchSize {
		batch := group[start:min(start+utils.ProviderStatusBatchSize, len(group))]
		ids := make([]string, 0, len(batch))
		for _, o := range batch {
			ids = append(ids, o.ExternalOrderID)
		}

		statuses, err := f.pollStatus(ctx, ids)
		if err != nil {
			if errors.Is(err, services.ErrProviderNotConfigured) {
				return 0, err
			}
			f.logger.Printf("rotation: WARN: status poll of %d %s orders failed, counting them as active: %v", len(batch), module, err)
			active += len(batch)
			continue
		}

		for _, o := range batch {
			st, ok := statuses[o.ExternalOrderID]
			if !ok {
				active++
				continue
			}
			status, terminal := st.LedgerStatus()
			if !terminal {
				active++
				continue
			}
			if _, err := f.orderRepo.MarkTerminal(ctx, o.ID, status, now); err != nil {
				f.logger.Printf("rotation: WARN: failed to mark order %d %s: %v", o.ID, status, err)
			}
		}
	}
	return active, nil
}

func (f *RotationFlowImpl) pollStatus(ctx context.Context, ids []string) (map[string]services.ProviderOrderStatus, error) {
	if f.cfg.StatusTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.StatusTimeout)
		defer cancel()
	}
	return f.provider.GetStatus(ctx, ids)
}

// advancePointer picks the round robin successor among open and persists it
// according to the configured pointer mode
func (f *RotationFlowImpl) advancePointer(ctx context.Context, module models.BoostModule, open []*models.Tariff) *models.Tariff {
	unlock := lockRotation(module)
	defer unlock()

	switch f.cfg.PointerMode {
	case config.PointerModeCAS:
		return f.advanceCAS(ctx, module, open)
	case config.PointerModeRedis:
		if f.locker == nil {
			f.logger.Printf("rotation: WARN: redis pointer mode without a lock client, falling back to best effort")
			return f.advanceBestEffort(ctx, module, open)
		}
		key := "rotation:" + module.String()
		ttl := f.cfg.LockTTL
		if ttl <= 0 {
			ttl = 5 * time.Second
		}
		token, ok, err := f.locker.TryLock(ctx, key, ttl)
		if err != nil || !ok {
			f.logger.Printf("rotation: WARN: rotation lock of %s not acquired (err=%v), falling back to best effort", module, err)
			return f.advanceBestEffort(ctx, module, open)
		}
		defer func() {
			if err := f.locker.Release(context.Background(), key, token); err != nil {
				f.logger.Printf("rotation: WARN: failed to release rotation lock of %s: %v", module, err)
			}
		}()
		return f.advanceBestEffort(ctx, module, open)
	default:
		return f.advanceBestEffort(ctx, module, open)
	}
}

func (f *RotationFlowImpl) advanceBestEffort(ctx context.Context, module models.BoostModule, open []*models.Tariff) *models.Tariff {
	last := f.lastUsed(ctx, module)
	chosen := nextRoundRobin(open, last)
	if err := f.stateRepo.UpdateLastUsed(ctx, module, chosen.ID); err != nil {
		f.logger.Printf("rotation: WARN: failed to persist pointer of %s: %v", module, err)
	}
	return chosen
}

func (f *RotationFlowImpl) advanceCAS(ctx context.Context, module models.BoostModule, open []*models.Tariff) *models.Tariff {
	retries := f.cfg.CASRetries
	if retries <= 0 {
		retries = 1
	}

	var chosen *models.Tariff
	for attempt := 0; attempt < retries; attempt++ {
		last := f.lastUsed(ctx, module)
		chosen = nextRoundRobin(open, last)
		swapped, err := f.stateRepo.CompareAndSwapLastUsed(ctx, module, last, chosen.ID)
		if err != nil {
			f.logger.Printf("rotation: WARN: pointer swap of %s failed: %v", module, err)
			return chosen
		}
		if swapped {
			return chosen
		}
	}
	f.logger.Printf("rotation: WARN: pointer of %s contended after %d attempts, using tariff %d", module, retries, chosen.ID)
	return chosen
}

func (f *RotationFlowImpl) lastUsed(ctx context.Context, module models.BoostModule) *uint {
	state, err := f.stateRepo.GetOrCreate(ctx, module, f.cfg.DefaultServiceIDs[module.String()])
	if err != nil {
		f.logger.Printf("rotation: WARN: failed to reload pointer of %s: %v", module, err)
		return nil
	}
	return state.LastUsedTariffID
}

func (f *RotationFlowImpl) selected(module models.BoostModule, t *models.Tariff, outcome string) Selection {
	rotationSelectionsTotal.WithLabelValues(module.String(), outcome).Inc()
	id := t.ID
	return Selection{
		ServiceID: t.ServiceID,
		TariffID:  &id,
		Reason:    outcome,
	}
}

func (f *RotationFlowImpl) fallback(module models.BoostModule, defaultID, reason string) Selection {
	rotationSelectionsTotal.WithLabelValues(module.String(), OutcomeDefault).Inc()
	if defaultID == "" {
		f.logger.Printf("rotation: ERROR: %s has no default service id (%s)", module, reason)
	}
	return Selection{
		ServiceID: defaultID,
		Fallback:  true,
		Reason:    fmt.Sprintf("%s: %s", OutcomeDefault, reason),
	}
}

// nextRoundRobin returns the tariff following last in ascending id order,
// wrapping around; the first tariff when last is unset or not among tariffs
func nextRoundRobin(tariffs []*models.Tariff, last *uint) *models.Tariff {
	if last == nil {
		return tariffs[0]
	}
	idx := slices.IndexFunc(tariffs, func(t *models.Tariff) bool { return t.ID == *last })
	if idx < 0 {
		return tariffs[0]
	}
	return tariffs[(idx+1)%len(tariffs)]
}

func excludeServices(tariffs []*models.Tariff, exclude []string) []*models.Tariff {
	if len(exclude) == 0 {
		return tariffs
	}
	out := make([]*models.Tariff, 0, len(tariffs))
	for _, t := range tariffs {
		if !slices.Contains(exclude, t.ServiceID) {
			out = append(out, t)
		}
	}
	return out
}
