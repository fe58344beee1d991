package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BoostOrderRepositoryImpl implements BoostOrderRepository interface
type BoostOrderRepositoryImpl struct {
	*BaseRepository[models.BoostOrder, models.BoostOrderFilter]
}

// NewBoostOrderRepository creates a new order repository
func NewBoostOrderRepository(db *gorm.DB) BoostOrderRepository {
	return &BoostOrderRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BoostOrder, models.BoostOrderFilter](db),
	}
}

// applyFilter applies filter criteria to a GORM query
func (r *BoostOrderRepositoryImpl) applyFilter(query *gorm.DB, filter models.BoostOrderFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TaskID != nil {
		query = query.Where("task_id = ?", *filter.TaskID)
	}
	if filter.TaskType != nil {
		query = query.Where("task_type = ?", *filter.TaskType)
	}
	if filter.ServiceID != nil {
		query = query.Where("service_id = ?", *filter.ServiceID)
	}
	if filter.ExternalOrderID != nil {
		query = query.Where("external_order_id = ?", *filter.ExternalOrderID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, s.String())
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves orders based on filter criteria
func (r *BoostOrderRepositoryImpl) ByFilter(ctx context.Context, filter models.BoostOrderFilter, orderBy string, limit, offset int) ([]*models.BoostOrder, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.BoostOrder{}), filter)
	query = paginate(query, orderBy, limit, offset)

	var orders []*models.BoostOrder
	if err := query.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// Count returns the number of orders matching the filter
func (r *BoostOrderRepositoryImpl) Count(ctx context.Context, filter models.BoostOrderFilter) (int64, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.BoostOrder{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// Exists checks if any order matching the filter exists
func (r *BoostOrderRepositoryImpl) Exists(ctx context.Context, filter models.BoostOrderFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ByExternalID retrieves an order by the provider's order id
func (r *BoostOrderRepositoryImpl) ByExternalID(ctx context.Context, externalOrderID string) (*models.BoostOrder, error) {
	var order models.BoostOrder
	err := r.getDB(ctx).Where("external_order_id = ?", externalOrderID).Order("id DESC").First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find order %s: %w", externalOrderID, err)
	}
	return &order, nil
}

// ListActiveByModule returns pending and in-progress orders of a module
func (r *BoostOrderRepositoryImpl) ListActiveByModule(ctx context.Context, module models.BoostModule) ([]*models.BoostOrder, error) {
	filter := models.BoostOrderFilter{
		TaskType: &module,
		Statuses: models.ActiveBoostOrderStatuses,
	}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// ListByTask returns the orders placed for one task
func (r *BoostOrderRepositoryImpl) ListByTask(ctx context.Context, taskID string, module models.BoostModule) ([]*models.BoostOrder, error) {
	filter := models.BoostOrderFilter{
		TaskID:   &taskID,
		TaskType: &module,
	}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// MarkPriced records the price of an unpriced order. Pending orders move to
// in_progress; an order the sweeper already completed keeps its status.
func (r *BoostOrderRepositoryImpl) MarkPriced(ctx context.Context, id uint, price decimal.Decimal, expenseID uint) error {
	status := gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
		models.BoostOrderStatusPending.String(), models.BoostOrderStatusInProgress.String())

	return runWrite(ctx, r.DB, func(db *gorm.DB) error {
		res := db.Model(&models.BoostOrder{}).
			Where("id = ? AND expense_id IS NULL AND status IN ?", id, []string{
				models.BoostOrderStatusPending.String(),
				models.BoostOrderStatusCompleted.String(),
			}).
			Updates(map[string]any{
				"price":      price,
				"status":     status,
				"expense_id": expenseID,
				"updated_at": utils.UTCNow(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to price order %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("order %d is already priced or failed", id)
		}
		return nil
	})
}

// MarkTerminal sets completed or failed on an unfinished order. Terminal rows are left untouched.
func (r *BoostOrderRepositoryImpl) MarkTerminal(ctx context.Context, id uint, status models.BoostOrderStatus, at time.Time) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %s is not terminal", status)
	}

	var changed bool
	err := runWrite(ctx, r.DB, func(db *gorm.DB) error {
		res := db.Model(&models.BoostOrder{}).
			Where("id = ? AND status IN ?", id, []string{
				models.BoostOrderStatusPending.String(),
				models.BoostOrderStatusInProgress.String(),
			}).
			Updates(map[string]any{
				"status":       status,
				"completed_at": at.UTC(),
				"updated_at":   utils.UTCNow(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to finish order %d: %w", id, res.Error)
		}
		changed = res.RowsAffected == 1
		return nil
	})
	return changed, err
}
