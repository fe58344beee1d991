package repository_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/repository"
	testingutil "github.com/amirphl/booster/testing"
	"github.com/amirphl/booster/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const module = models.BoostModuleNewViews

func TestTariffRepository(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		repo := repository.NewTariffRepository(db)
		fixtures := testingutil.NewTestFixtures(db)
		ctx := testingutil.CreateTestContext()

		a, err := fixtures.CreateTariff(module, "10", 100, true)
		require.NoError(t, err)
		b, err := fixtures.CreateTariff(module, "20", 10, false)
		require.NoError(t, err)
		_, err = fixtures.CreateTariff(models.BoostModuleOldViews, "30", 1, true)
		require.NoError(t, err)

		t.Run("ListEligible", func(t *testing.T) {
			eligible, err := repo.ListEligible(ctx, module, 50)
			require.NoError(t, err)
			require.Len(t, eligible, 1)
			assert.Equal(t, "20", eligible[0].ServiceID)

			eligible, err = repo.ListEligible(ctx, module, 100)
			require.NoError(t, err)
			require.Len(t, eligible, 2)
			assert.Equal(t, a.ID, eligible[0].ID)
			assert.Equal(t, b.ID, eligible[1].ID)
		})

		t.Run("InactiveExcluded", func(t *testing.T) {
			b.IsActive = utils.ToPtr(false)
			require.NoError(t, repo.SaveWithPrimary(ctx, b))
			defer func() {
				b.IsActive = utils.ToPtr(true)
				require.NoError(t, repo.SaveWithPrimary(ctx, b))
			}()

			eligible, err := repo.ListEligible(ctx, module, 1000)
			require.NoError(t, err)
			require.Len(t, eligible, 1)
			assert.Equal(t, a.ID, eligible[0].ID)
		})

		t.Run("PrimaryIsUniquePerModule", func(t *testing.T) {
			primary, err := repo.Primary(ctx, module)
			require.NoError(t, err)
			require.NotNil(t, primary)
			assert.Equal(t, a.ID, primary.ID)

			b.IsPrimary = utils.ToPtr(true)
			require.NoError(t, repo.SaveWithPrimary(ctx, b))

			primary, err = repo.Primary(ctx, module)
			require.NoError(t, err)
			require.NotNil(t, primary)
			assert.Equal(t, b.ID, primary.ID)

			count := 0
			all, err := repo.ListByModule(ctx, module)
			require.NoError(t, err)
			for _, tariff := range all {
				if utils.IsTrue(tariff.IsPrimary) {
					count++
				}
			}
			assert.Equal(t, 1, count)

			// the other module keeps its own primary
			other, err := repo.Primary(ctx, models.BoostModuleOldViews)
			require.NoError(t, err)
			require.NotNil(t, other)
			assert.Equal(t, "30", other.ServiceID)
		})

		t.Run("NoPrimary", func(t *testing.T) {
			primary, err := repo.Primary(ctx, models.BoostModuleSubscribers)
			require.NoError(t, err)
			assert.Nil(t, primary)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestRotationStateRepository(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		repo := repository.NewRotationStateRepository(db)
		ctx := testingutil.CreateTestContext()

		state, err := repo.GetOrCreate(ctx, module, "999")
		require.NoError(t, err)
		assert.Equal(t, "999", state.DefaultServiceID)
		assert.Nil(t, state.LastUsedTariffID)
		assert.False(t, state.CacheFresh(time.Now(), time.Minute))

		again, err := repo.GetOrCreate(ctx, module, "111")
		require.NoError(t, err)
		assert.Equal(t, state.ID, again.ID)
		assert.Equal(t, "999", again.DefaultServiceID)

		t.Run("CompareAndSwap", func(t *testing.T) {
			swapped, err := repo.CompareAndSwapLastUsed(ctx, module, nil, 5)
			require.NoError(t, err)
			assert.True(t, swapped)

			// a stale expectation loses
			swapped, err = repo.CompareAndSwapLastUsed(ctx, module, nil, 6)
			require.NoError(t, err)
			assert.False(t, swapped)

			swapped, err = repo.CompareAndSwapLastUsed(ctx, module, utils.ToPtr(uint(5)), 7)
			require.NoError(t, err)
			assert.True(t, swapped)

			current, err := repo.GetOrCreate(ctx, module, "")
			require.NoError(t, err)
			require.NotNil(t, current.LastUsedTariffID)
			assert.Equal(t, uint(7), *current.LastUsedTariffID)
		})

		t.Run("ActiveOrdersCache", func(t *testing.T) {
			checked := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
			require.NoError(t, repo.SaveActiveOrders(ctx, module, map[string]int{"10": 2, "20": 0}, checked))

			current, err := repo.GetOrCreate(ctx, module, "")
			require.NoError(t, err)
			assert.Equal(t, map[string]int{"10": 2, "20": 0}, current.ActiveOrders())
			assert.True(t, current.CacheFresh(checked.Add(4*time.Minute), 5*time.Minute))
			assert.False(t, current.CacheFresh(checked.Add(5*time.Minute), 5*time.Minute))
		})

		t.Run("DefaultService", func(t *testing.T) {
			require.NoError(t, repo.SetDefaultService(ctx, module, "555"))
			current, err := repo.GetOrCreate(ctx, module, "")
			require.NoError(t, err)
			assert.Equal(t, "555", current.DefaultServiceID)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestBoostOrderRepository(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		repo := repository.NewBoostOrderRepository(db)
		fixtures := testingutil.NewTestFixtures(db)
		ctx := testingutil.CreateTestContext()

		pending, err := fixtures.CreateOrder(module, "10", "1001", models.BoostOrderStatusPending)
		require.NoError(t, err)
		running, err := fixtures.CreateOrder(module, "10", "1002", models.BoostOrderStatusInProgress)
		require.NoError(t, err)
		_, err = fixtures.CreateOrder(module, "20", "1003", models.BoostOrderStatusCompleted)
		require.NoError(t, err)
		_, err = fixtures.CreateOrder(models.BoostModuleOldViews, "10", "1004", models.BoostOrderStatusPending)
		require.NoError(t, err)

		t.Run("ListActiveByModule", func(t *testing.T) {
			active, err := repo.ListActiveByModule(ctx, module)
			require.NoError(t, err)
			require.Len(t, active, 2)
			ids := []string{active[0].ExternalOrderID, active[1].ExternalOrderID}
			assert.ElementsMatch(t, []string{"1001", "1002"}, ids)
		})

		t.Run("ByExternalID", func(t *testing.T) {
			order, err := repo.ByExternalID(ctx, "1002")
			require.NoError(t, err)
			require.NotNil(t, order)
			assert.Equal(t, running.ID, order.ID)

			missing, err := repo.ByExternalID(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("MarkPriced", func(t *testing.T) {
			require.NoError(t, repo.MarkPriced(ctx, pending.ID, decimal.RequireFromString("0.75"), 42))

			order, err := repo.ByID(ctx, pending.ID)
			require.NoError(t, err)
			assert.Equal(t, models.BoostOrderStatusInProgress, order.Status)
			assert.True(t, order.Price.Equal(decimal.RequireFromString("0.75")))
			require.NotNil(t, order.ExpenseID)
			assert.Equal(t, uint(42), *order.ExpenseID)

			// an order is priced once
			assert.Error(t, repo.MarkPriced(ctx, pending.ID, decimal.NewFromInt(1), 43))
		})

		t.Run("MarkPricedAfterSweep", func(t *testing.T) {
			swept, err := fixtures.CreateOrder(module, "10", "1005", models.BoostOrderStatusCompleted)
			require.NoError(t, err)
			require.NoError(t, repo.MarkPriced(ctx, swept.ID, decimal.RequireFromString("0.4"), 44))

			order, err := repo.ByID(ctx, swept.ID)
			require.NoError(t, err)
			assert.Equal(t, models.BoostOrderStatusCompleted, order.Status)
			assert.True(t, order.Price.Equal(decimal.RequireFromString("0.4")))
			require.NotNil(t, order.ExpenseID)

			failed, err := fixtures.CreateOrder(module, "10", "1006", models.BoostOrderStatusFailed)
			require.NoError(t, err)
			assert.Error(t, repo.MarkPriced(ctx, failed.ID, decimal.NewFromInt(1), 45))
		})

		t.Run("MarkTerminal", func(t *testing.T) {
			at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
			changed, err := repo.MarkTerminal(ctx, running.ID, models.BoostOrderStatusCompleted, at)
			require.NoError(t, err)
			assert.True(t, changed)

			changed, err = repo.MarkTerminal(ctx, running.ID, models.BoostOrderStatusFailed, at)
			require.NoError(t, err)
			assert.False(t, changed)

			order, err := repo.ByID(ctx, running.ID)
			require.NoError(t, err)
			assert.Equal(t, models.BoostOrderStatusCompleted, order.Status)
			require.NotNil(t, order.CompletedAt)

			_, err = repo.MarkTerminal(ctx, running.ID, models.BoostOrderStatusPending, at)
			assert.Error(t, err)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestExpenseRepository(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		repo := repository.NewExpenseRepository(db)
		ctx := testingutil.CreateTestContext()
		day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

		for i, price := range []string{"1.5", "2.25", "4"} {
			require.NoError(t, repo.Save(ctx, module, &models.Expense{
				TaskID:    "demand-1",
				Quantity:  100 * (i + 1),
				Price:     decimal.RequireFromString(price),
				ServiceID: "10",
				CreatedAt: day.Add(time.Duration(i) * 24 * time.Hour),
			}))
		}
		require.NoError(t, repo.Save(ctx, models.BoostModuleSubscribers, &models.Expense{
			TaskID:    "demand-2",
			Quantity:  10,
			Price:     decimal.NewFromInt(9),
			ServiceID: "30",
			CreatedAt: day,
		}))

		t.Run("TotalsHalfOpen", func(t *testing.T) {
			totals, err := repo.Totals(ctx, module, day, day.Add(48*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(2), totals.Count)
			assert.Equal(t, int64(300), totals.Quantity)
			assert.True(t, totals.Spend.Equal(decimal.RequireFromString("3.75")))
		})

		t.Run("TablesAreSeparate", func(t *testing.T) {
			totals, err := repo.Totals(ctx, models.BoostModuleSubscribers, day, day.Add(72*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), totals.Count)

			rows, err := repo.ListRange(ctx, models.BoostModuleOldViews, day, day.Add(72*time.Hour))
			require.NoError(t, err)
			assert.Empty(t, rows)
		})

		t.Run("ListRange", func(t *testing.T) {
			rows, err := repo.ListRange(ctx, module, day.Add(24*time.Hour), day.Add(72*time.Hour))
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, 200, rows[0].Quantity)
			assert.Equal(t, 300, rows[1].Quantity)
		})

		t.Run("InvalidModule", func(t *testing.T) {
			err := repo.Save(ctx, "likes", &models.Expense{TaskID: "x", ServiceID: "1"})
			assert.Error(t, err)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestDistributionRepository(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		repo := repository.NewDistributionRepository(db)
		ctx := testingutil.CreateTestContext()

		require.NoError(t, repo.Upsert(ctx, []*models.DistributionEntry{
			{BucketType: models.BucketTypeMorning, DayBucket: models.DayBucketAny, RelativeHour: 1, Percent: 10},
			{BucketType: models.BucketTypeMorning, DayBucket: models.DayBucketAny, RelativeHour: 2, Percent: 5},
			{BucketType: models.BucketTypeMorning, DayBucket: models.DayBucketWeekend, RelativeHour: 2, Percent: 8},
		}))

		t.Run("WeekendOverridesAny", func(t *testing.T) {
			h, err := repo.Histogram(ctx, models.BucketTypeMorning, models.DayBucketWeekend)
			require.NoError(t, err)
			assert.Equal(t, 10.0, h[1])
			assert.Equal(t, 8.0, h[2])
		})

		t.Run("WeekdayFallsBackToAny", func(t *testing.T) {
			h, err := repo.Histogram(ctx, models.BucketTypeMorning, models.DayBucketWeekday)
			require.NoError(t, err)
			assert.Equal(t, 5.0, h[2])
			_, ok := h[3]
			assert.False(t, ok)
		})

		t.Run("UpsertUpdatesPercent", func(t *testing.T) {
			require.NoError(t, repo.Upsert(ctx, []*models.DistributionEntry{
				{BucketType: models.BucketTypeMorning, DayBucket: models.DayBucketAny, RelativeHour: 1, Percent: 12.5},
			}))
			h, err := repo.Histogram(ctx, models.BucketTypeMorning, models.DayBucketAny)
			require.NoError(t, err)
			assert.Equal(t, 12.5, h[1])
		})

		t.Run("RejectsHourOutOfRange", func(t *testing.T) {
			err := repo.Upsert(ctx, []*models.DistributionEntry{
				{BucketType: models.BucketTypeMorning, DayBucket: models.DayBucketAny, RelativeHour: 25, Percent: 1},
			})
			assert.Error(t, err)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestBoostDemandRepository(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		repo := repository.NewBoostDemandRepository(db)
		fixtures := testingutil.NewTestFixtures(db)
		ctx := testingutil.CreateTestContext()
		publish := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

		demand, err := fixtures.CreateDemand(module, "post-1", 100, publish, models.BucketTypeMorning)
		require.NoError(t, err)

		t.Run("Lookups", func(t *testing.T) {
			byUUID, err := repo.ByUUID(ctx, demand.UUID)
			require.NoError(t, err)
			require.NotNil(t, byUUID)
			assert.Equal(t, demand.ID, byUUID.ID)
			assert.True(t, byUUID.PublishTime.Equal(publish))

			running, err := repo.RunningByRef(ctx, module, "post-1")
			require.NoError(t, err)
			require.NotNil(t, running)
			assert.Equal(t, demand.ID, running.ID)

			none, err := repo.RunningByRef(ctx, models.BoostModuleOldViews, "post-1")
			require.NoError(t, err)
			assert.Nil(t, none)
		})

		t.Run("CompleteHour", func(t *testing.T) {
			updated, err := repo.CompleteHour(ctx, demand.ID, 2, 30)
			require.NoError(t, err)
			assert.Equal(t, []int{2}, updated.CompletedHours.Data())
			assert.Equal(t, 70, updated.TotalQuantityNeeded)

			updated, err = repo.CompleteHour(ctx, demand.ID, 1, 90)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 2}, updated.CompletedHours.Data())
			assert.Equal(t, 0, updated.TotalQuantityNeeded)

			// hours stay unique and the total stays floored
			updated, err = repo.CompleteHour(ctx, demand.ID, 1, 5)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 2}, updated.CompletedHours.Data())
			assert.Equal(t, 100, updated.OriginalTotal)
		})

		t.Run("Finish", func(t *testing.T) {
			at := publish.Add(25 * time.Hour)
			changed, err := repo.Finish(ctx, demand.ID, models.BoostDemandStatusFinished, at)
			require.NoError(t, err)
			assert.True(t, changed)

			changed, err = repo.Finish(ctx, demand.ID, models.BoostDemandStatusStopped, at)
			require.NoError(t, err)
			assert.False(t, changed)

			running, err := repo.ListRunning(ctx)
			require.NoError(t, err)
			assert.Empty(t, running)

			stored, err := repo.ByID(ctx, demand.ID)
			require.NoError(t, err)
			assert.Equal(t, models.BoostDemandStatusFinished, stored.Status)
			require.NotNil(t, stored.FinishedAt)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestWithTransactionRollsBack(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		expenses := repository.NewExpenseRepository(db)
		ctx := testingutil.CreateTestContext()
		boom := errors.New("boom")

		err := repository.WithTransaction(ctx, db, func(txCtx context.Context) error {
			if err := expenses.Save(txCtx, module, &models.Expense{TaskID: "t", ServiceID: "10", Quantity: 1, Price: decimal.NewFromInt(1)}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		totals, err := expenses.Totals(ctx, module, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, totals.Count)
		return nil
	})
	require.NoError(t, err)
}

func TestRotationPointerOnPostgres(t *testing.T) {
	if !testingutil.PostgresAvailable() {
		t.Skip("TEST_DB_HOST not set")
	}

	err := testingutil.TestWithDB(func(tdb *testingutil.TestDB) error {
		repo := repository.NewRotationStateRepository(tdb.DB)
		ctx := testingutil.CreateTestContext()

		_, err := repo.GetOrCreate(ctx, module, "999")
		require.NoError(t, err)

		// concurrent writers racing on the same expectation; exactly one wins
		const writers = 8
		results := make(chan bool, writers)
		for i := range writers {
			go func(next uint) {
				swapped, err := repo.CompareAndSwapLastUsed(ctx, module, nil, next)
				assert.NoError(t, err)
				results <- swapped
			}(uint(i + 1))
		}

		wins := 0
		for range writers {
			if <-results {
				wins++
			}
		}
		assert.Equal(t, 1, wins)
		return tdb.ClearAllTables()
	})
	require.NoError(t, err)
}

func TestBaseRepositoryBatchAndFilters(t *testing.T) {
	err := testingutil.TestWithSQLite(t.Name(), func(db *gorm.DB) error {
		repo := repository.NewBoostOrderRepository(db)
		ctx := testingutil.CreateTestContext()
		now := utils.UTCNow()

		var batch []*models.BoostOrder
		for i, status := range []models.BoostOrderStatus{
			models.BoostOrderStatusPending,
			models.BoostOrderStatusCompleted,
			models.BoostOrderStatusFailed,
		} {
			batch = append(batch, &models.BoostOrder{
				TaskID:          "demand-9",
				TaskType:        module,
				ServiceID:       "10",
				ExternalOrderID: strconv.Itoa(500 + i),
				Quantity:        10,
				Price:           decimal.Zero,
				Status:          status,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
		require.NoError(t, repo.SaveBatch(ctx, batch))
		require.NoError(t, repo.SaveBatch(ctx, nil))

		taskID := "demand-9"
		count, err := repo.Count(ctx, models.BoostOrderFilter{TaskID: &taskID})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		finished, err := repo.ByFilter(ctx, models.BoostOrderFilter{
			TaskID:   &taskID,
			Statuses: []models.BoostOrderStatus{models.BoostOrderStatusCompleted, models.BoostOrderStatusFailed},
		}, "id ASC", 1, 1)
		require.NoError(t, err)
		require.Len(t, finished, 1)
		assert.Equal(t, models.BoostOrderStatusFailed, finished[0].Status)

		other := "demand-0"
		exists, err := repo.Exists(ctx, models.BoostOrderFilter{TaskID: &other})
		require.NoError(t, err)
		assert.False(t, exists)

		missing, err := repo.ByID(ctx, 9999)
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)
}
