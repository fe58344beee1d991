package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RotationStateRepositoryImpl implements RotationStateRepository interface
type RotationStateRepositoryImpl struct {
	DB *gorm.DB
}

// NewRotationStateRepository creates a new rotation state repository
func NewRotationStateRepository(db *gorm.DB) RotationStateRepository {
	return &RotationStateRepositoryImpl{DB: db}
}

func (r *RotationStateRepositoryImpl) byModule(ctx context.Context, module models.BoostModule) (*models.RotationState, error) {
	var state models.RotationState
	err := dbFromContext(ctx, r.DB).Where("module = ?", module).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load rotation state of %s: %w", module, err)
	}
	return &state, nil
}

// GetOrCreate returns the module's rotation state, creating it lazily
func (r *RotationStateRepositoryImpl) GetOrCreate(ctx context.Context, module models.BoostModule, defaultServiceID string) (*models.RotationState, error) {
	state, err := r.byModule(ctx, module)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	now := utils.UTCNow()
	state = &models.RotationState{
		Module:            module,
		DefaultServiceID:  defaultServiceID,
		ActiveOrdersCache: datatypes.NewJSONType(map[string]int{}),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	createErr := runWrite(ctx, r.DB, func(db *gorm.DB) error {
		return db.Create(state).Error
	})
	if createErr == nil {
		return state, nil
	}

	// another worker may have created the row concurrently
	existing, err := r.byModule(ctx, module)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("failed to create rotation state of %s: %w", module, createErr)
	}
	return existing, nil
}

// UpdateLastUsed overwrites the round robin pointer (last writer wins)
func (r *RotationStateRepositoryImpl) UpdateLastUsed(ctx context.Context, module models.BoostModule, tariffID uint) error {
	return runWrite(ctx, r.DB, func(db *gorm.DB) error {
		err := db.Model(&models.RotationState{}).
			Where("module = ?", module).
			Updates(map[string]any{"last_used_tariff_id": tariffID, "updated_at": utils.UTCNow()}).Error
		if err != nil {
			return fmt.Errorf("failed to update last used tariff of %s: %w", module, err)
		}
		return nil
	})
}

// CompareAndSwapLastUsed sets the pointer to next only if it still equals expected
func (r *RotationStateRepositoryImpl) CompareAndSwapLastUsed(ctx context.Context, module models.BoostModule, expected *uint, next uint) (bool, error) {
	var swapped bool
	err := runWrite(ctx, r.DB, func(db *gorm.DB) error {
		query := db.Model(&models.RotationState{}).Where("module = ?", module)
		if expected == nil {
			query = query.Where("last_used_tariff_id IS NULL")
		} else {
			query = query.Where("last_used_tariff_id = ?", *expected)
		}

		res := query.Updates(map[string]any{"last_used_tariff_id": next, "updated_at": utils.UTCNow()})
		if res.Error != nil {
			return fmt.Errorf("failed to swap last used tariff of %s: %w", module, res.Error)
		}
		swapped = res.RowsAffected == 1
		return nil
	})
	return swapped, err
}

// SaveActiveOrders stores the admission snapshot
func (r *RotationStateRepositoryImpl) SaveActiveOrders(ctx context.Context, module models.BoostModule, counts map[string]int, checkedAt time.Time) error {
	if counts == nil {
		counts = map[string]int{}
	}
	return runWrite(ctx, r.DB, func(db *gorm.DB) error {
		err := db.Model(&models.RotationState{}).
			Where("module = ?", module).
			Updates(map[string]any{
				"active_orders_cache":  datatypes.NewJSONType(counts),
				"last_orders_check_at": checkedAt.UTC(),
				"updated_at":           utils.UTCNow(),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to save active orders of %s: %w", module, err)
		}
		return nil
	})
}

// SetDefaultService changes the fallback service id of a module
func (r *RotationStateRepositoryImpl) SetDefaultService(ctx context.Context, module models.BoostModule, serviceID string) error {
	return runWrite(ctx, r.DB, func(db *gorm.DB) error {
		err := db.Model(&models.RotationState{}).
			Where("module = ?", module).
			Updates(map[string]any{"default_service_id": serviceID, "updated_at": utils.UTCNow()}).Error
		if err != nil {
			return fmt.Errorf("failed to set default service of %s: %w", module, err)
		}
		return nil
	})
}
