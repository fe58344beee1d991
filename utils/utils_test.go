package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfWeek(t *testing.T) {
	// Thursday
	ts := time.Date(2026, 10, 15, 13, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), StartOfWeek(ts))

	// Sunday belongs to the week that started on the previous Monday
	sunday := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), StartOfWeek(sunday))
}

func TestStartOfMonth(t *testing.T) {
	ts := time.Date(2026, 2, 27, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(ts))
}

func TestLoadZone(t *testing.T) {
	loc, err := LoadZone("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadZone("Mars/Olympus")
	assert.Error(t, err)
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())

	var _ Clock = c
	var _ Clock = SystemClock{}
}

func TestToPtr(t *testing.T) {
	p := ToPtr(3)
	require.NotNil(t, p)
	assert.Equal(t, 3, *p)
	assert.True(t, IsTrue(ToPtr(true)))
	assert.False(t, IsTrue(nil))
}
