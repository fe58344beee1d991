package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is the spend record produced by an order that obtained a non-zero
// price. Each module keeps its expenses in its own table, see ExpenseTableName.
// Indexes live in the SQL migrations because index names are shared across tables.
type Expense struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	TaskID       string          `gorm:"size:64;not null" json:"task_id"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	Price        decimal.Decimal `gorm:"type:numeric(14,4);not null" json:"price"`
	ServiceID    string          `gorm:"size:64;not null" json:"service_id"`
	RelativeHour *int            `json:"relative_hour,omitempty"`
	BucketType   *string         `gorm:"size:16" json:"bucket_type,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
}

// ExpenseTableName returns the expense table of a module
func ExpenseTableName(module BoostModule) string {
	return module.String() + "_expenses"
}

// ExpenseTotals aggregates expenses over a period
type ExpenseTotals struct {
	Count    int64           `json:"count"`
	Quantity int64           `json:"quantity"`
	Spend    decimal.Decimal `json:"spend"`
}
