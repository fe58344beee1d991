package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BoostOrderStatus represents the lifecycle state of an upstream order
type BoostOrderStatus string

const (
	BoostOrderStatusPending    BoostOrderStatus = "pending"
	BoostOrderStatusInProgress BoostOrderStatus = "in_progress"
	BoostOrderStatusCompleted  BoostOrderStatus = "completed"
	BoostOrderStatusFailed     BoostOrderStatus = "failed"
)

// String returns the string representation of the status
func (s BoostOrderStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s BoostOrderStatus) Valid() bool {
	switch s {
	case BoostOrderStatusPending, BoostOrderStatusInProgress, BoostOrderStatusCompleted, BoostOrderStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed
func (s BoostOrderStatus) Terminal() bool {
	return s == BoostOrderStatusCompleted || s == BoostOrderStatusFailed
}

// Scan implements the sql.Scanner interface for BoostOrderStatus
func (s *BoostOrderStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = BoostOrderStatus(v)
	case []byte:
		*s = BoostOrderStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BoostOrderStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for BoostOrderStatus
func (s BoostOrderStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid BoostOrderStatus: %s", s)
	}
	return string(s), nil
}

// ActiveBoostOrderStatuses are the statuses counted by admission control
var ActiveBoostOrderStatuses = []BoostOrderStatus{
	BoostOrderStatusPending,
	BoostOrderStatusInProgress,
}

// BoostOrder is one purchase placed against an upstream tariff.
// Table: boost_orders
// The row is created as soon as the provider returns an order id, with a zero
// price, and is never modified again once its status is terminal.
type BoostOrder struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	TaskID          string           `gorm:"size:64;not null;index:idx_boost_orders_task,priority:1" json:"task_id"`
	TaskType        BoostModule      `gorm:"type:varchar(32);not null;index:idx_boost_orders_task,priority:2" json:"task_type"`
	ServiceID       string           `gorm:"size:64;not null;index:idx_boost_orders_service_status,priority:1" json:"service_id"`
	ExternalOrderID string           `gorm:"size:64;not null;index:idx_boost_orders_external_order_id" json:"external_order_id"`
	Quantity        int              `gorm:"not null" json:"quantity"`
	Price           decimal.Decimal  `gorm:"type:numeric(14,4);not null;default:0" json:"price"`
	Status          BoostOrderStatus `gorm:"type:varchar(16);not null;index:idx_boost_orders_service_status,priority:2" json:"status"`
	ExpenseID       *uint            `json:"expense_id,omitempty"`
	CreatedAt       time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"not null" json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

func (BoostOrder) TableName() string {
	return "boost_orders"
}

// BoostOrderFilter represents filter criteria for order queries
type BoostOrderFilter struct {
	ID              *uint
	TaskID          *string
	TaskType        *BoostModule
	ServiceID       *string
	ExternalOrderID *string
	Statuses        []BoostOrderStatus
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
}
