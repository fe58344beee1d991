package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BoostDemandRepositoryImpl implements BoostDemandRepository interface
type BoostDemandRepositoryImpl struct {
	*BaseRepository[models.BoostDemand, models.BoostDemandFilter]
}

// NewBoostDemandRepository creates a new demand repository
func NewBoostDemandRepository(db *gorm.DB) BoostDemandRepository {
	return &BoostDemandRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BoostDemand, models.BoostDemandFilter](db),
	}
}

// applyFilter applies filter criteria to a GORM query
func (r *BoostDemandRepositoryImpl) applyFilter(query *gorm.DB, filter models.BoostDemandFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Module != nil {
		query = query.Where("module = ?", *filter.Module)
	}
	if filter.RefID != nil {
		query = query.Where("ref_id = ?", *filter.RefID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// ByFilter retrieves demands based on filter criteria
func (r *BoostDemandRepositoryImpl) ByFilter(ctx context.Context, filter models.BoostDemandFilter, orderBy string, limit, offset int) ([]*models.BoostDemand, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.BoostDemand{}), filter)
	query = paginate(query, orderBy, limit, offset)

	var demands []*models.BoostDemand
	if err := query.Find(&demands).Error; err != nil {
		return nil, fmt.Errorf("failed to list demands: %w", err)
	}
	return demands, nil
}

// Count returns the number of demands matching the filter
func (r *BoostDemandRepositoryImpl) Count(ctx context.Context, filter models.BoostDemandFilter) (int64, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.BoostDemand{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count demands: %w", err)
	}
	return count, nil
}

// Exists checks if any demand matching the filter exists
func (r *BoostDemandRepositoryImpl) Exists(ctx context.Context, filter models.BoostDemandFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ByUUID retrieves a demand by its public id
func (r *BoostDemandRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.BoostDemand, error) {
	items, err := r.ByFilter(ctx, models.BoostDemandFilter{UUID: &id}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// RunningByRef returns the running demand of a target
func (r *BoostDemandRepositoryImpl) RunningByRef(ctx context.Context, module models.BoostModule, refID string) (*models.BoostDemand, error) {
	status := models.BoostDemandStatusRunning
	filter := models.BoostDemandFilter{Module: &module, RefID: &refID, Status: &status}
	items, err := r.ByFilter(ctx, filter, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// ListRunning returns every running demand, oldest first
func (r *BoostDemandRepositoryImpl) ListRunning(ctx context.Context) ([]*models.BoostDemand, error) {
	status := models.BoostDemandStatusRunning
	return r.ByFilter(ctx, models.BoostDemandFilter{Status: &status}, "id ASC", 0, 0)
}

// CompleteHour adds hour to the checkpoint set and subtracts placed from the remaining total
func (r *BoostDemandRepositoryImpl) CompleteHour(ctx context.Context, id uint, hour int, placed int) (*models.BoostDemand, error) {
	var updated models.BoostDemand
	err := runWrite(ctx, r.DB, func(db *gorm.DB) error {
		err := db.First(&updated, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("demand %d not found", id)
			}
			return fmt.Errorf("failed to load demand %d: %w", id, err)
		}

		remaining := max(updated.TotalQuantityNeeded-max(placed, 0), 0)
		hours := updated.WithCompletedHour(hour)
		now := utils.UTCNow()

		err = db.Model(&models.BoostDemand{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"completed_hours":       datatypes.NewJSONType(hours),
				"total_quantity_needed": remaining,
				"updated_at":            now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to checkpoint demand %d hour %d: %w", id, hour, err)
		}

		updated.CompletedHours = datatypes.NewJSONType(hours)
		updated.TotalQuantityNeeded = remaining
		updated.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Finish moves a running demand to a final status
func (r *BoostDemandRepositoryImpl) Finish(ctx context.Context, id uint, status models.BoostDemandStatus, at time.Time) (bool, error) {
	if status == models.BoostDemandStatusRunning || !status.Valid() {
		return false, fmt.Errorf("invalid final demand status %q", status)
	}

	var changed bool
	err := runWrite(ctx, r.DB, func(db *gorm.DB) error {
		res := db.Model(&models.BoostDemand{}).
			Where("id = ? AND status = ?", id, models.BoostDemandStatusRunning).
			Updates(map[string]any{
				"status":      status,
				"finished_at": at.UTC(),
				"updated_at":  utils.UTCNow(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to finish demand %d: %w", id, res.Error)
		}
		changed = res.RowsAffected == 1
		return nil
	})
	return changed, err
}
