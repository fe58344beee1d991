package models

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BoostDemandStatus represents the lifecycle of a paced demand
type BoostDemandStatus string

const (
	BoostDemandStatusRunning  BoostDemandStatus = "running"
	BoostDemandStatusFinished BoostDemandStatus = "finished"
	BoostDemandStatusStopped  BoostDemandStatus = "stopped"
)

// String returns the string representation of the status
func (s BoostDemandStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s BoostDemandStatus) Valid() bool {
	switch s {
	case BoostDemandStatusRunning, BoostDemandStatusFinished, BoostDemandStatusStopped:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for BoostDemandStatus
func (s *BoostDemandStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = BoostDemandStatus(v)
	case []byte:
		*s = BoostDemandStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BoostDemandStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for BoostDemandStatus
func (s BoostDemandStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid BoostDemandStatus: %s", s)
	}
	return string(s), nil
}

// DemandWindow is how long a demand is paced after its publish time
const DemandWindow = 24 * time.Hour

// BoostDemand is a tracked boost target paced over 24 hours.
// Table: boost_demands
// CompletedHours is the per-hour checkpoint; an hour listed there is never
// attempted again, whatever the outcome of its orders.
type BoostDemand struct {
	ID                  uint                      `gorm:"primaryKey" json:"id"`
	UUID                uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:uk_boost_demands_uuid" json:"uuid"`
	Module              BoostModule               `gorm:"type:varchar(32);not null;index:idx_boost_demands_ref,priority:1" json:"module"`
	RefID               string                    `gorm:"size:128;not null;index:idx_boost_demands_ref,priority:2" json:"ref_id"`
	TargetLink          string                    `gorm:"type:text;not null" json:"target_link"`
	TotalQuantityNeeded int                       `gorm:"not null" json:"total_quantity_needed"`
	OriginalTotal       int                       `gorm:"not null" json:"original_total"`
	PublishTime         time.Time                 `gorm:"not null" json:"publish_time"`
	TimeZone            string                    `gorm:"size:64;not null" json:"time_zone"`
	BucketType          BucketType                `gorm:"type:varchar(16);not null" json:"bucket_type"`
	DayBucket           DayBucket                 `gorm:"type:varchar(16);not null" json:"day_bucket"`
	CompletedHours      datatypes.JSONType[[]int] `json:"completed_hours"`
	Status              BoostDemandStatus         `gorm:"type:varchar(16);not null;index:idx_boost_demands_status" json:"status"`
	CreatedAt           time.Time                 `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time                 `gorm:"not null" json:"updated_at"`
	FinishedAt          *time.Time                `json:"finished_at,omitempty"`
}

func (BoostDemand) TableName() string {
	return "boost_demands"
}

// RelativeHour returns floor((now-publish)/1h)+1
func (d BoostDemand) RelativeHour(now time.Time) int {
	elapsed := now.Sub(d.PublishTime)
	if elapsed < 0 {
		// before publish, floor toward negative infinity
		return int((elapsed-time.Hour+1)/time.Hour) + 1
	}
	return int(elapsed/time.Hour) + 1
}

// HourCompleted reports whether hour is in the checkpoint set
func (d BoostDemand) HourCompleted(hour int) bool {
	return slices.Contains(d.CompletedHours.Data(), hour)
}

// WithCompletedHour returns the checkpoint set extended by hour, sorted
func (d BoostDemand) WithCompletedHour(hour int) []int {
	hours := slices.Clone(d.CompletedHours.Data())
	if !slices.Contains(hours, hour) {
		hours = append(hours, hour)
	}
	slices.Sort(hours)
	return hours
}

// BoostDemandFilter represents filter criteria for demand queries
type BoostDemandFilter struct {
	ID     *uint
	UUID   *uuid.UUID
	Module *BoostModule
	RefID  *string
	Status *BoostDemandStatus
}

// NewBoostDemand builds a running demand with a fresh UUID and an empty checkpoint
func NewBoostDemand(module BoostModule, refID, link string, total int, publish time.Time, zone string, bucket BucketType, dayBucket DayBucket) *BoostDemand {
	now := time.Now().UTC()
	return &BoostDemand{
		UUID:                uuid.New(),
		Module:              module,
		RefID:               refID,
		TargetLink:          link,
		TotalQuantityNeeded: total,
		OriginalTotal:       total,
		PublishTime:         publish.UTC(),
		TimeZone:            zone,
		BucketType:          bucket,
		DayBucket:           dayBucket,
		CompletedHours:      datatypes.NewJSONType([]int{}),
		Status:              BoostDemandStatusRunning,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
