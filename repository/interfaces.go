// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/booster/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// TariffRepository defines operations for the tariff catalog
type TariffRepository interface {
	Repository[models.Tariff, models.TariffFilter]
	// ListEligible returns active tariffs of module with min_limit <= quantity, ascending by id
	ListEligible(ctx context.Context, module models.BoostModule, quantity int) ([]*models.Tariff, error)
	// Primary returns the active primary tariff of module, nil if none
	Primary(ctx context.Context, module models.BoostModule) (*models.Tariff, error)
	ListByModule(ctx context.Context, module models.BoostModule) ([]*models.Tariff, error)
	// SaveWithPrimary inserts or updates tariff, clearing is_primary on its siblings when it is primary
	SaveWithPrimary(ctx context.Context, tariff *models.Tariff) error
}

// RotationStateRepository defines operations for per-module rotation state
type RotationStateRepository interface {
	GetOrCreate(ctx context.Context, module models.BoostModule, defaultServiceID string) (*models.RotationState, error)
	UpdateLastUsed(ctx context.Context, module models.BoostModule, tariffID uint) error
	CompareAndSwapLastUsed(ctx context.Context, module models.BoostModule, expected *uint, next uint) (bool, error)
	SaveActiveOrders(ctx context.Context, module models.BoostModule, counts map[string]int, checkedAt time.Time) error
	SetDefaultService(ctx context.Context, module models.BoostModule, serviceID string) error
}

// BoostOrderRepository defines operations for the order ledger
type BoostOrderRepository interface {
	Repository[models.BoostOrder, models.BoostOrderFilter]
	ByExternalID(ctx context.Context, externalOrderID string) (*models.BoostOrder, error)
	// ListActiveByModule returns pending and in-progress orders of module
	ListActiveByModule(ctx context.Context, module models.BoostModule) ([]*models.BoostOrder, error)
	ListByTask(ctx context.Context, taskID string, module models.BoostModule) ([]*models.BoostOrder, error)
	// MarkPriced sets price and expense link on an unpriced pending or completed order; pending moves to in_progress
	MarkPriced(ctx context.Context, id uint, price decimal.Decimal, expenseID uint) error
	// MarkTerminal sets a terminal status; reports false when the row was already terminal
	MarkTerminal(ctx context.Context, id uint, status models.BoostOrderStatus, at time.Time) (bool, error)
}

// ExpenseRepository defines operations for the per-module expense tables
type ExpenseRepository interface {
	Save(ctx context.Context, module models.BoostModule, expense *models.Expense) error
	Totals(ctx context.Context, module models.BoostModule, from, to time.Time) (models.ExpenseTotals, error)
	ListRange(ctx context.Context, module models.BoostModule, from, to time.Time) ([]*models.Expense, error)
	ByID(ctx context.Context, module models.BoostModule, id uint) (*models.Expense, error)
}

// DistributionRepository defines operations for pacing histograms
type DistributionRepository interface {
	// Histogram returns the entries of bucket/dayBucket, falling back to day bucket any
	Histogram(ctx context.Context, bucket models.BucketType, dayBucket models.DayBucket) (models.Histogram, error)
	Upsert(ctx context.Context, entries []*models.DistributionEntry) error
}

// BoostDemandRepository defines operations for tracked demands
type BoostDemandRepository interface {
	Repository[models.BoostDemand, models.BoostDemandFilter]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.BoostDemand, error)
	// RunningByRef returns the running demand of (module, refID), nil if none
	RunningByRef(ctx context.Context, module models.BoostModule, refID string) (*models.BoostDemand, error)
	ListRunning(ctx context.Context) ([]*models.BoostDemand, error)
	// CompleteHour checkpoints hour and lowers the remaining quantity by placed, floored at zero
	CompleteHour(ctx context.Context, id uint, hour int, placed int) (*models.BoostDemand, error)
	// Finish moves a running demand to status; reports false when it was not running
	Finish(ctx context.Context, id uint, status models.BoostDemandStatus, at time.Time) (bool, error)
}
