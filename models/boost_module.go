// Package models contains domain entities for the boost scheduling engine
package models

import (
	"database/sql/driver"
	"fmt"
)

// BoostModule identifies a boost category; every module owns its tariff set,
// rotation state and expense table.
type BoostModule string

const (
	BoostModuleOldViews    BoostModule = "old_views"
	BoostModuleNewViews    BoostModule = "new_views"
	BoostModuleSubscribers BoostModule = "subscribers"
)

// AllBoostModules lists modules in a stable order
var AllBoostModules = []BoostModule{
	BoostModuleOldViews,
	BoostModuleNewViews,
	BoostModuleSubscribers,
}

// String returns the string representation of the module
func (m BoostModule) String() string {
	return string(m)
}

// Valid checks if the module is known
func (m BoostModule) Valid() bool {
	switch m {
	case BoostModuleOldViews, BoostModuleNewViews, BoostModuleSubscribers:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for BoostModule
func (m *BoostModule) Scan(value any) error {
	if value == nil {
		*m = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*m = BoostModule(v)
	case []byte:
		*m = BoostModule(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BoostModule", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for BoostModule
func (m BoostModule) Value() (driver.Value, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid BoostModule: %s", m)
	}
	return string(m), nil
}

// ParseBoostModule converts raw input into a BoostModule
func ParseBoostModule(raw string) (BoostModule, error) {
	m := BoostModule(raw)
	if !m.Valid() {
		return "", fmt.Errorf("unknown boost module %q", raw)
	}
	return m, nil
}
