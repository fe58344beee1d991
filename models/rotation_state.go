package models

import (
	"time"

	"gorm.io/datatypes"
)

// RotationState holds the round-robin pointer and the admission cache of one module.
// Table: boost_rotation_states (unique by module)
// ActiveOrdersCache maps upstream service id to the number of unfinished orders
// observed at LastOrdersCheckAt.
type RotationState struct {
	ID                uint                               `gorm:"primaryKey" json:"id"`
	Module            BoostModule                        `gorm:"type:varchar(32);not null;uniqueIndex:uk_boost_rotation_states_module" json:"module"`
	LastUsedTariffID  *uint                              `json:"last_used_tariff_id,omitempty"`
	DefaultServiceID  string                             `gorm:"size:64;not null;default:''" json:"default_service_id"`
	ActiveOrdersCache datatypes.JSONType[map[string]int] `json:"active_orders_cache"`
	LastOrdersCheckAt *time.Time                         `json:"last_orders_check_at,omitempty"`
	CreatedAt         time.Time                          `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time                          `gorm:"not null" json:"updated_at"`
}

func (RotationState) TableName() string {
	return "boost_rotation_states"
}

// ActiveOrders returns a copy of the cached per-service active order counts
func (s RotationState) ActiveOrders() map[string]int {
	out := make(map[string]int)
	for k, v := range s.ActiveOrdersCache.Data() {
		out[k] = v
	}
	return out
}

// CacheFresh reports whether the admission cache is younger than ttl at now
func (s RotationState) CacheFresh(now time.Time, ttl time.Duration) bool {
	if s.LastOrdersCheckAt == nil {
		return false
	}
	return now.Sub(*s.LastOrdersCheckAt) < ttl
}
