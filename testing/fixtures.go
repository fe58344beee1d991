package testing

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/repository"
	"github.com/amirphl/booster/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *gorm.DB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *gorm.DB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTariff inserts an active tariff
func (tf *TestFixtures) CreateTariff(module models.BoostModule, serviceID string, minLimit int, primary bool) (*models.Tariff, error) {
	tariff := &models.Tariff{
		Module:       module,
		ServiceID:    serviceID,
		MinLimit:     minLimit,
		PricePer1000: decimal.RequireFromString("1.5"),
		IsActive:     utils.ToPtr(true),
		IsPrimary:    utils.ToPtr(primary),
	}
	if err := repository.NewTariffRepository(tf.DB).SaveWithPrimary(context.Background(), tariff); err != nil {
		return nil, fmt.Errorf("failed to create tariff %s: %w", serviceID, err)
	}
	return tariff, nil
}

// CreateOrder inserts an order in the given status
func (tf *TestFixtures) CreateOrder(module models.BoostModule, serviceID, externalID string, status models.BoostOrderStatus) (*models.BoostOrder, error) {
	now := utils.UTCNow()
	order := &models.BoostOrder{
		TaskID:          "fixture",
		TaskType:        module,
		ServiceID:       serviceID,
		ExternalOrderID: externalID,
		Quantity:        100,
		Price:           decimal.Zero,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tf.DB.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order %s: %w", externalID, err)
	}
	return order, nil
}

// CreateHistogram stores percentages for bucket under day bucket any
func (tf *TestFixtures) CreateHistogram(bucket models.BucketType, percents map[int]float64) error {
	entries := make([]*models.DistributionEntry, 0, len(percents))
	for hour, pct := range percents {
		entries = append(entries, &models.DistributionEntry{
			BucketType:   bucket,
			DayBucket:    models.DayBucketAny,
			RelativeHour: hour,
			Percent:      pct,
		})
	}
	return repository.NewDistributionRepository(tf.DB).Upsert(context.Background(), entries)
}

// CreateDemand inserts a running demand published at publish
func (tf *TestFixtures) CreateDemand(module models.BoostModule, refID string, total int, publish time.Time, bucket models.BucketType) (*models.BoostDemand, error) {
	demand := models.NewBoostDemand(module, refID, "https://t.me/c/"+refID, total, publish, "UTC", bucket, models.DayBucketAny)
	if err := repository.NewBoostDemandRepository(tf.DB).Save(context.Background(), demand); err != nil {
		return nil, fmt.Errorf("failed to create demand %s: %w", refID, err)
	}
	return demand, nil
}
