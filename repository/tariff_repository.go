package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/utils"
	"gorm.io/gorm"
)

// TariffRepositoryImpl implements TariffRepository interface
type TariffRepositoryImpl struct {
	*BaseRepository[models.Tariff, models.TariffFilter]
}

// NewTariffRepository creates a new tariff repository
func NewTariffRepository(db *gorm.DB) TariffRepository {
	return &TariffRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Tariff, models.TariffFilter](db),
	}
}

// applyFilter applies filter criteria to a GORM query
func (r *TariffRepositoryImpl) applyFilter(query *gorm.DB, filter models.TariffFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Module != nil {
		query = query.Where("module = ?", *filter.Module)
	}
	if filter.ServiceID != nil {
		query = query.Where("service_id = ?", *filter.ServiceID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.IsPrimary != nil {
		query = query.Where("is_primary = ?", *filter.IsPrimary)
	}
	if filter.MaxMinLimit != nil {
		query = query.Where("min_limit <= ?", *filter.MaxMinLimit)
	}
	return query
}

// ByFilter retrieves tariffs based on filter criteria
func (r *TariffRepositoryImpl) ByFilter(ctx context.Context, filter models.TariffFilter, orderBy string, limit, offset int) ([]*models.Tariff, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Tariff{}), filter)
	query = paginate(query, orderBy, limit, offset)

	var tariffs []*models.Tariff
	if err := query.Find(&tariffs).Error; err != nil {
		return nil, fmt.Errorf("failed to list tariffs: %w", err)
	}
	return tariffs, nil
}

// Count returns the number of tariffs matching the filter
func (r *TariffRepositoryImpl) Count(ctx context.Context, filter models.TariffFilter) (int64, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Tariff{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tariffs: %w", err)
	}
	return count, nil
}

// Exists checks if any tariff matching the filter exists
func (r *TariffRepositoryImpl) Exists(ctx context.Context, filter models.TariffFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListEligible returns active tariffs able to take quantity, ascending by id
func (r *TariffRepositoryImpl) ListEligible(ctx context.Context, module models.BoostModule, quantity int) ([]*models.Tariff, error) {
	filter := models.TariffFilter{
		Module:      &module,
		IsActive:    utils.ToPtr(true),
		MaxMinLimit: &quantity,
	}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// Primary returns the active primary tariff of a module
func (r *TariffRepositoryImpl) Primary(ctx context.Context, module models.BoostModule) (*models.Tariff, error) {
	var tariff models.Tariff
	err := r.getDB(ctx).
		Where("module = ? AND is_active = ? AND is_primary = ?", module, true, true).
		Order("id ASC").
		First(&tariff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find primary tariff of %s: %w", module, err)
	}
	return &tariff, nil
}

// ListByModule returns every tariff of a module, active or not
func (r *TariffRepositoryImpl) ListByModule(ctx context.Context, module models.BoostModule) ([]*models.Tariff, error) {
	return r.ByFilter(ctx, models.TariffFilter{Module: &module}, "id ASC", 0, 0)
}

// SaveWithPrimary inserts or updates a tariff. When the tariff is primary the
// flag is cleared on every other tariff of the module in the same transaction.
func (r *TariffRepositoryImpl) SaveWithPrimary(ctx context.Context, tariff *models.Tariff) error {
	if tariff == nil {
		return errors.New("tariff is nil")
	}

	return runWrite(ctx, r.DB, func(db *gorm.DB) error {
		now := utils.UTCNow()
		if tariff.IsActive == nil {
			tariff.IsActive = utils.ToPtr(true)
		}
		if tariff.IsPrimary == nil {
			tariff.IsPrimary = utils.ToPtr(false)
		}
		tariff.UpdatedAt = now

		// siblings first, the schema allows a single primary per module
		if tariff.Primary() {
			err := db.Model(&models.Tariff{}).
				Where("module = ? AND id <> ? AND is_primary = ?", tariff.Module, tariff.ID, true).
				Updates(map[string]any{"is_primary": false, "updated_at": now}).Error
			if err != nil {
				return fmt.Errorf("failed to clear sibling primary flags: %w", err)
			}
		}

		if tariff.ID == 0 {
			tariff.CreatedAt = now
			if err := db.Create(tariff).Error; err != nil {
				return fmt.Errorf("failed to create tariff: %w", err)
			}
			return nil
		}

		if err := db.Save(tariff).Error; err != nil {
			return fmt.Errorf("failed to update tariff %d: %w", tariff.ID, err)
		}
		return nil
	})
}
