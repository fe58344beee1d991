package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// BucketType classifies a demand by the local hour it started in
type BucketType string

const (
	BucketTypeNight   BucketType = "night"
	BucketTypeMorning BucketType = "morning"
	BucketTypeDay     BucketType = "day"
	BucketTypeEvening BucketType = "evening"
)

// String returns the string representation of the bucket type
func (b BucketType) String() string {
	return string(b)
}

// Valid checks if the bucket type is known
func (b BucketType) Valid() bool {
	switch b {
	case BucketTypeNight, BucketTypeMorning, BucketTypeDay, BucketTypeEvening:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for BucketType
func (b *BucketType) Scan(value any) error {
	if value == nil {
		*b = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*b = BucketType(v)
	case []byte:
		*b = BucketType(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BucketType", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for BucketType
func (b BucketType) Value() (driver.Value, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid BucketType: %s", b)
	}
	return string(b), nil
}

// BucketTypeForHour maps a local hour of day to its bucket
func BucketTypeForHour(hour int) BucketType {
	switch {
	case hour < 6:
		return BucketTypeNight
	case hour < 12:
		return BucketTypeMorning
	case hour < 18:
		return BucketTypeDay
	default:
		return BucketTypeEvening
	}
}

// DayBucket separates histograms for weekdays and weekends.
// DayBucketAny is the fallback row set used when no specific entry exists.
type DayBucket string

const (
	DayBucketWeekday DayBucket = "weekday"
	DayBucketWeekend DayBucket = "weekend"
	DayBucketAny     DayBucket = "any"
)

// String returns the string representation of the day bucket
func (d DayBucket) String() string {
	return string(d)
}

// Valid checks if the day bucket is known
func (d DayBucket) Valid() bool {
	switch d {
	case DayBucketWeekday, DayBucketWeekend, DayBucketAny:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for DayBucket
func (d *DayBucket) Scan(value any) error {
	if value == nil {
		*d = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*d = DayBucket(v)
	case []byte:
		*d = DayBucket(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DayBucket", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for DayBucket
func (d DayBucket) Value() (driver.Value, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid DayBucket: %s", d)
	}
	return string(d), nil
}

// DayBucketFor returns weekend for Saturday and Sunday, weekday otherwise
func DayBucketFor(t time.Time) DayBucket {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return DayBucketWeekend
	default:
		return DayBucketWeekday
	}
}

// DistributionEntry is one cell of a pacing histogram.
// Table: boost_distributions
// Percentages of a histogram are not required to sum to 100.
type DistributionEntry struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	BucketType   BucketType `gorm:"type:varchar(16);not null;uniqueIndex:uk_boost_distributions_cell,priority:1" json:"bucket_type"`
	DayBucket    DayBucket  `gorm:"type:varchar(16);not null;uniqueIndex:uk_boost_distributions_cell,priority:2" json:"day_bucket"`
	RelativeHour int        `gorm:"not null;uniqueIndex:uk_boost_distributions_cell,priority:3" json:"relative_hour"`
	Percent      float64    `gorm:"not null" json:"percent"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

func (DistributionEntry) TableName() string {
	return "boost_distributions"
}

// Histogram maps a relative hour (1..24) to a percentage
type Histogram map[int]float64
