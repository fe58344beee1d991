package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tariff is a priced upstream service option for one module.
// Table: boost_tariffs
// At most one row per module has IsPrimary = true; the repository clears
// siblings inside the same transaction that sets a new primary.
type Tariff struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Module       BoostModule     `gorm:"type:varchar(32);not null;index:idx_boost_tariffs_module_active,priority:1" json:"module"`
	ServiceID    string          `gorm:"size:64;not null" json:"service_id"`
	MinLimit     int             `gorm:"not null;default:1" json:"min_limit"`
	PricePer1000 decimal.Decimal `gorm:"column:price_per_1000;type:numeric(12,4);not null" json:"price_per_1000"`
	IsActive     *bool           `gorm:"not null;default:true;index:idx_boost_tariffs_module_active,priority:2" json:"is_active"`
	IsPrimary    *bool           `gorm:"not null;default:false" json:"is_primary"`
	Comment      *string         `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (Tariff) TableName() string {
	return "boost_tariffs"
}

// Active reports whether the tariff may receive orders
func (t Tariff) Active() bool {
	return t.IsActive != nil && *t.IsActive
}

// Primary reports whether the tariff is the module's primary fallback
func (t Tariff) Primary() bool {
	return t.IsPrimary != nil && *t.IsPrimary
}

// TariffFilter represents filter criteria for tariff queries
type TariffFilter struct {
	ID          *uint
	Module      *BoostModule
	ServiceID   *string
	IsActive    *bool
	IsPrimary   *bool
	MaxMinLimit *int
}
