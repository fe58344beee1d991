package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/utils"
	"gorm.io/gorm"
)

// ExpenseRepositoryImpl implements ExpenseRepository over one table per module
type ExpenseRepositoryImpl struct {
	DB *gorm.DB
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *gorm.DB) ExpenseRepository {
	return &ExpenseRepositoryImpl{DB: db}
}

func expenseTable(module models.BoostModule) (string, error) {
	if !module.Valid() {
		return "", fmt.Errorf("invalid boost module %q", module)
	}
	return models.ExpenseTableName(module), nil
}

// Save inserts an expense into the module's table
func (r *ExpenseRepositoryImpl) Save(ctx context.Context, module models.BoostModule, expense *models.Expense) error {
	table, err := expenseTable(module)
	if err != nil {
		return err
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = utils.UTCNow()
	}

	return runWrite(ctx, r.DB, func(db *gorm.DB) error {
		if err := db.Table(table).Create(expense).Error; err != nil {
			return fmt.Errorf("failed to save %s expense: %w", module, err)
		}
		return nil
	})
}

// ByID retrieves one expense of a module
func (r *ExpenseRepositoryImpl) ByID(ctx context.Context, module models.BoostModule, id uint) (*models.Expense, error) {
	table, err := expenseTable(module)
	if err != nil {
		return nil, err
	}

	var expense models.Expense
	err = dbFromContext(ctx, r.DB).Table(table).Where("id = ?", id).First(&expense).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find %s expense %d: %w", module, id, err)
	}
	return &expense, nil
}

// Totals aggregates the expenses created in [from, to)
func (r *ExpenseRepositoryImpl) Totals(ctx context.Context, module models.BoostModule, from, to time.Time) (models.ExpenseTotals, error) {
	var totals models.ExpenseTotals

	table, err := expenseTable(module)
	if err != nil {
		return totals, err
	}

	err = dbFromContext(ctx, r.DB).Table(table).
		Select("COUNT(*) AS count, COALESCE(SUM(quantity), 0) AS quantity, COALESCE(SUM(price), 0) AS spend").
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Scan(&totals).Error
	if err != nil {
		return totals, fmt.Errorf("failed to total %s expenses: %w", module, err)
	}
	return totals, nil
}

// ListRange returns the expenses created in [from, to), oldest first
func (r *ExpenseRepositoryImpl) ListRange(ctx context.Context, module models.BoostModule, from, to time.Time) ([]*models.Expense, error) {
	table, err := expenseTable(module)
	if err != nil {
		return nil, err
	}

	var expenses []*models.Expense
	err = dbFromContext(ctx, r.DB).Table(table).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Order("created_at ASC, id ASC").
		Find(&expenses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s expenses: %w", module, err)
	}
	return expenses, nil
}
