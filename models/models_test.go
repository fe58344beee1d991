package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestBoostModule(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		for _, m := range AllBoostModules {
			assert.True(t, m.Valid())
		}
		assert.False(t, BoostModule("likes").Valid())
	})

	t.Run("Parse", func(t *testing.T) {
		m, err := ParseBoostModule("new_views")
		require.NoError(t, err)
		assert.Equal(t, BoostModuleNewViews, m)

		_, err = ParseBoostModule("")
		assert.Error(t, err)
	})

	t.Run("ExpenseTableName", func(t *testing.T) {
		assert.Equal(t, "old_views_expenses", ExpenseTableName(BoostModuleOldViews))
		assert.Equal(t, "subscribers_expenses", ExpenseTableName(BoostModuleSubscribers))
	})

	t.Run("ScanValue", func(t *testing.T) {
		var m BoostModule
		require.NoError(t, m.Scan([]byte("subscribers")))
		assert.Equal(t, BoostModuleSubscribers, m)

		_, err := BoostModule("bogus").Value()
		assert.Error(t, err)
	})
}

func TestBoostOrderStatus(t *testing.T) {
	assert.False(t, BoostOrderStatusPending.Terminal())
	assert.False(t, BoostOrderStatusInProgress.Terminal())
	assert.True(t, BoostOrderStatusCompleted.Terminal())
	assert.True(t, BoostOrderStatusFailed.Terminal())
	assert.Equal(t, "boost_orders", BoostOrder{}.TableName())
}

func TestBucketTypeForHour(t *testing.T) {
	cases := map[int]BucketType{
		0:  BucketTypeNight,
		5:  BucketTypeNight,
		6:  BucketTypeMorning,
		11: BucketTypeMorning,
		12: BucketTypeDay,
		17: BucketTypeDay,
		18: BucketTypeEvening,
		23: BucketTypeEvening,
	}
	for hour, want := range cases {
		assert.Equal(t, want, BucketTypeForHour(hour), "hour %d", hour)
	}
}

func TestDayBucketFor(t *testing.T) {
	saturday := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, DayBucketWeekend, DayBucketFor(saturday))
	assert.Equal(t, DayBucketWeekday, DayBucketFor(monday))
}

func TestBoostDemand(t *testing.T) {
	publish := time.Date(2026, 10, 16, 9, 20, 0, 0, time.UTC)
	d := NewBoostDemand(BoostModuleNewViews, "42", "https://t.me/c/42", 1000, publish, "UTC", BucketTypeMorning, DayBucketWeekday)

	t.Run("RelativeHour", func(t *testing.T) {
		assert.Equal(t, 1, d.RelativeHour(publish))
		assert.Equal(t, 1, d.RelativeHour(publish.Add(59*time.Minute)))
		assert.Equal(t, 2, d.RelativeHour(publish.Add(time.Hour)))
		assert.Equal(t, 24, d.RelativeHour(publish.Add(23*time.Hour+59*time.Minute)))
		assert.Equal(t, 25, d.RelativeHour(publish.Add(24*time.Hour)))
		assert.Equal(t, 0, d.RelativeHour(publish.Add(-time.Minute)))
	})

	t.Run("CompletedHours", func(t *testing.T) {
		assert.False(t, d.HourCompleted(1))
		d.CompletedHours = datatypes.NewJSONType(d.WithCompletedHour(3))
		d.CompletedHours = datatypes.NewJSONType(d.WithCompletedHour(1))
		d.CompletedHours = datatypes.NewJSONType(d.WithCompletedHour(3))
		assert.Equal(t, []int{1, 3}, d.CompletedHours.Data())
		assert.True(t, d.HourCompleted(1))
	})

	t.Run("Defaults", func(t *testing.T) {
		assert.Equal(t, BoostDemandStatusRunning, d.Status)
		assert.Equal(t, 1000, d.OriginalTotal)
		assert.NotEqual(t, [16]byte{}, [16]byte(d.UUID))
	})
}
