package scheduler

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	businessflow "github.com/amirphl/booster/business_flow"
	"github.com/amirphl/booster/config"
	"github.com/amirphl/booster/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngineForTest(t *testing.T, env *pacingEnv) *BoostEngine {
	t.Helper()
	engine := NewBoostEngine(
		env.demandRepo,
		env.distRepo,
		env.tariffRepo,
		env.orderRepo,
		env.rotation,
		env.orders,
		env.pacingCfg,
		config.RotationConfig{OrderSweep: time.Hour},
		env.clock,
		env.logger,
	)
	stop := engine.Start(context.Background())
	t.Cleanup(stop)
	return engine
}

func boostRequest(refID string) BoostRequest {
	return BoostRequest{
		Module:        pacingModule,
		RefID:         refID,
		TargetLink:    "https://t.me/c/" + refID,
		TotalQuantity: 1000,
		PublishTime:   publishAt,
	}
}

func TestBoostEngineRequestBoost(t *testing.T) {
	ctx := context.Background()

	t.Run("StartsPacing", func(t *testing.T) {
		env := newPacingEnv(t, false)
		_, err := env.fixtures.CreateTariff(pacingModule, "P", 1, false)
		require.NoError(t, err)
		engine := newEngineForTest(t, env)

		demand, existing, err := engine.RequestBoost(ctx, boostRequest("post-7"))
		require.NoError(t, err)
		assert.False(t, existing)
		assert.Equal(t, models.BoostDemandStatusRunning, demand.Status)
		assert.Equal(t, 1000, demand.OriginalTotal)
		assert.Equal(t, models.BucketTypeMorning, demand.BucketType)
		assert.Equal(t, models.DayBucketWeekday, demand.DayBucket)

		// the first hour falls back to 5% of the total
		require.Eventually(t, func() bool {
			return len(env.reload(t, demand.ID).CompletedHours.Data()) == 1
		}, 2*time.Second, 10*time.Millisecond)

		got, orders, err := engine.GetBoost(ctx, demand.UUID)
		require.NoError(t, err)
		assert.Equal(t, 950, got.TotalQuantityNeeded)
		require.Len(t, orders, 1)
		assert.Equal(t, 50, orders[0].Quantity)
		assert.Equal(t, "P", orders[0].ServiceID)
	})

	t.Run("DuplicateReturnsRunningDemand", func(t *testing.T) {
		env := newPacingEnv(t, false)
		engine := newEngineForTest(t, env)

		first, existing, err := engine.RequestBoost(ctx, boostRequest("post-8"))
		require.NoError(t, err)
		require.False(t, existing)

		second, existing, err := engine.RequestBoost(ctx, boostRequest("post-8"))
		require.NoError(t, err)
		assert.True(t, existing)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, engine.ActiveWorkers())
	})

	t.Run("DerivesBucketFromLocalTime", func(t *testing.T) {
		env := newPacingEnv(t, false)
		// Saturday 22:30 UTC is Sunday 02:00 in Tehran
		publish := time.Date(2025, 3, 15, 22, 30, 0, 0, time.UTC)
		env.clock.Set(publish.Add(time.Minute))
		engine := newEngineForTest(t, env)

		req := boostRequest("post-9")
		req.PublishTime = publish
		req.TimeZone = "Asia/Tehran"
		demand, _, err := engine.RequestBoost(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.BucketTypeNight, demand.BucketType)
		assert.Equal(t, models.DayBucketWeekend, demand.DayBucket)
		assert.Equal(t, "Asia/Tehran", demand.TimeZone)

		req = boostRequest("post-10")
		req.PublishTime = publish
		req.BucketType = models.BucketTypeEvening
		demand, _, err = engine.RequestBoost(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.BucketTypeEvening, demand.BucketType)
	})

	t.Run("ZeroPublishTimeMeansNow", func(t *testing.T) {
		env := newPacingEnv(t, false)
		engine := newEngineForTest(t, env)

		req := boostRequest("post-11")
		req.PublishTime = time.Time{}
		demand, _, err := engine.RequestBoost(ctx, req)
		require.NoError(t, err)
		assert.True(t, demand.PublishTime.Equal(env.clock.Now()))
	})

	t.Run("Validation", func(t *testing.T) {
		env := newPacingEnv(t, false)
		engine := newEngineForTest(t, env)

		req := boostRequest("x")
		req.Module = "likes"
		_, _, err := engine.RequestBoost(ctx, req)
		assert.True(t, businessflow.IsInvalidModule(err))

		req = boostRequest(" ")
		_, _, err = engine.RequestBoost(ctx, req)
		assert.True(t, businessflow.IsRefIDRequired(err))

		req = boostRequest("x")
		req.TargetLink = ""
		_, _, err = engine.RequestBoost(ctx, req)
		assert.True(t, businessflow.IsTargetLinkRequired(err))

		req = boostRequest("x")
		req.TotalQuantity = 0
		_, _, err = engine.RequestBoost(ctx, req)
		assert.True(t, businessflow.IsInvalidQuantity(err))

		req = boostRequest("x")
		req.TimeZone = "Mars/Olympus"
		_, _, err = engine.RequestBoost(ctx, req)
		assert.True(t, businessflow.IsInvalidTimeZone(err))

		req = boostRequest("x")
		req.BucketType = "noon"
		_, _, err = engine.RequestBoost(ctx, req)
		assert.True(t, businessflow.IsInvalidBucketType(err))

		req = boostRequest("x")
		req.PublishTime = publishAt.Add(-25 * time.Hour)
		_, _, err = engine.RequestBoost(ctx, req)
		assert.True(t, businessflow.IsDemandWindowClosed(err))

		assert.Zero(t, engine.ActiveWorkers())
	})
}

func TestBoostEngineStopBoost(t *testing.T) {
	ctx := context.Background()
	env := newPacingEnv(t, false)
	engine := newEngineForTest(t, env)

	demand, _, err := engine.RequestBoost(ctx, boostRequest("post-12"))
	require.NoError(t, err)

	stopped, err := engine.StopBoost(ctx, demand.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.BoostDemandStatusStopped, stopped.Status)
	assert.NotNil(t, stopped.FinishedAt)

	require.Eventually(t, func() bool { return engine.ActiveWorkers() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = engine.StopBoost(ctx, demand.UUID)
	assert.True(t, businessflow.IsDemandNotRunning(err))

	_, err = engine.StopBoost(ctx, uuid.New())
	assert.True(t, businessflow.IsDemandNotFound(err))

	_, _, err = engine.GetBoost(ctx, uuid.New())
	assert.True(t, businessflow.IsDemandNotFound(err))

	// a stopped reference can be boosted again
	again, existing, err := engine.RequestBoost(ctx, boostRequest("post-12"))
	require.NoError(t, err)
	assert.False(t, existing)
	assert.NotEqual(t, demand.ID, again.ID)
}

func TestBoostEngineResume(t *testing.T) {
	ctx := context.Background()
	env := newPacingEnv(t, false)

	fresh, err := env.fixtures.CreateDemand(pacingModule, "fresh", 500, publishAt.Add(-2*time.Hour), models.BucketTypeMorning)
	require.NoError(t, err)
	stale, err := env.fixtures.CreateDemand(pacingModule, "stale", 500, publishAt.Add(-30*time.Hour), models.BucketTypeMorning)
	require.NoError(t, err)

	engine := newEngineForTest(t, env)

	n, err := engine.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, models.BoostDemandStatusFinished, env.reload(t, stale.ID).Status)
	assert.Equal(t, models.BoostDemandStatusRunning, env.reload(t, fresh.ID).Status)

	// a second resume does not double the workers
	n, err = engine.Resume(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, engine.ActiveWorkers())
}

func TestBoostEngineServiceLookup(t *testing.T) {
	ctx := context.Background()
	env := newPacingEnv(t, false)
	_, err := env.fixtures.CreateTariff(pacingModule, "P", 100, true)
	require.NoError(t, err)
	engine := newEngineForTest(t, env)

	assert.Equal(t, "P", engine.GetServiceFor(ctx, pacingModule, 500))

	sel := engine.SelectFor(ctx, pacingModule, 10)
	assert.Equal(t, "999", sel.ServiceID)
	assert.True(t, sel.Fallback)
}
