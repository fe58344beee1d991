package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DistributionRepositoryImpl implements DistributionRepository interface
type DistributionRepositoryImpl struct {
	DB *gorm.DB
}

// NewDistributionRepository creates a new distribution repository
func NewDistributionRepository(db *gorm.DB) DistributionRepository {
	return &DistributionRepositoryImpl{DB: db}
}

// Histogram loads bucket/dayBucket; hours missing there are taken from the any row set
func (r *DistributionRepositoryImpl) Histogram(ctx context.Context, bucket models.BucketType, dayBucket models.DayBucket) (models.Histogram, error) {
	dayBuckets := []string{models.DayBucketAny.String()}
	if dayBucket != models.DayBucketAny && dayBucket != "" {
		dayBuckets = append(dayBuckets, dayBucket.String())
	}

	var entries []*models.DistributionEntry
	err := dbFromContext(ctx, r.DB).
		Where("bucket_type = ? AND day_bucket IN ?", bucket, dayBuckets).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s histogram: %w", bucket, dayBucket, err)
	}

	histogram := make(models.Histogram, utils.HoursPerDemand)
	for _, e := range entries {
		if e.DayBucket == models.DayBucketAny {
			if _, ok := histogram[e.RelativeHour]; !ok {
				histogram[e.RelativeHour] = e.Percent
			}
			continue
		}
		histogram[e.RelativeHour] = e.Percent
	}
	return histogram, nil
}

// Upsert inserts entries or updates the percent of existing cells
func (r *DistributionRepositoryImpl) Upsert(ctx context.Context, entries []*models.DistributionEntry) error {
	if len(entries) == 0 {
		return nil
	}

	now := utils.UTCNow()
	for _, e := range entries {
		if !e.BucketType.Valid() || !e.DayBucket.Valid() {
			return fmt.Errorf("invalid distribution cell %s/%s", e.BucketType, e.DayBucket)
		}
		if e.RelativeHour < 1 || e.RelativeHour > utils.HoursPerDemand {
			return fmt.Errorf("relative hour %d out of range", e.RelativeHour)
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
	}

	return runWrite(ctx, r.DB, func(db *gorm.DB) error {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bucket_type"}, {Name: "day_bucket"}, {Name: "relative_hour"}},
			DoUpdates: clause.AssignmentColumns([]string{"percent", "updated_at"}),
		}).Create(&entries).Error
		if err != nil {
			return fmt.Errorf("failed to upsert distribution entries: %w", err)
		}
		return nil
	})
}
