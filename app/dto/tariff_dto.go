package dto

import "github.com/shopspring/decimal"

// AdminCreateTariffRequest represents the payload to add an upstream tariff to a module
type AdminCreateTariffRequest struct {
	Module       string          `json:"module" validate:"required,oneof=old_views new_views subscribers"`
	ServiceID    string          `json:"service_id" validate:"required,max=64"`
	MinLimit     int             `json:"min_limit" validate:"required,gte=1"`
	PricePer1000 decimal.Decimal `json:"price_per_1000"`
	IsActive     *bool           `json:"is_active,omitempty" validate:"omitempty"`
	IsPrimary    bool            `json:"is_primary"`
	Comment      *string         `json:"comment,omitempty" validate:"omitempty,max=1000"`
}

// AdminUpdateTariffRequest changes an existing tariff; omitted fields are kept
type AdminUpdateTariffRequest struct {
	ID           uint             `json:"id" validate:"required"`
	ServiceID    *string          `json:"service_id,omitempty" validate:"omitempty,max=64"`
	MinLimit     *int             `json:"min_limit,omitempty" validate:"omitempty,gte=1"`
	PricePer1000 *decimal.Decimal `json:"price_per_1000,omitempty"`
	IsActive     *bool            `json:"is_active,omitempty" validate:"omitempty"`
	IsPrimary    *bool            `json:"is_primary,omitempty" validate:"omitempty"`
	Comment      *string          `json:"comment,omitempty" validate:"omitempty,max=1000"`
}

// AdminTariffDTO represents a tariff for responses
type AdminTariffDTO struct {
	ID           uint    `json:"id"`
	Module       string  `json:"module"`
	ServiceID    string  `json:"service_id"`
	MinLimit     int     `json:"min_limit"`
	PricePer1000 string  `json:"price_per_1000"`
	IsActive     bool    `json:"is_active"`
	IsPrimary    bool    `json:"is_primary"`
	Comment      *string `json:"comment,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type AdminSaveTariffResponse struct {
	Message string         `json:"message"`
	Tariff  AdminTariffDTO `json:"tariff"`
}

type AdminListTariffsResponse struct {
	Message string           `json:"message"`
	Items   []AdminTariffDTO `json:"items"`
}
