package dto

import "time"

// RequestBoostRequest represents the payload a booster worker sends to start pacing a target
type RequestBoostRequest struct {
	Module        string    `json:"module" validate:"required,oneof=old_views new_views subscribers"`
	RefID         string    `json:"ref_id" validate:"required,max=128"`
	TargetLink    string    `json:"target_link" validate:"required,max=2048"`
	TotalQuantity int       `json:"total_quantity" validate:"required,gt=0"`
	PublishTime   time.Time `json:"publish_time" validate:"required"`
	TimeZone      string    `json:"time_zone,omitempty" validate:"omitempty,max=64"`
	// BucketType is derived from the publish hour when omitted
	BucketType string `json:"bucket_type,omitempty" validate:"omitempty,oneof=night morning day evening"`
}

// BoostDemandDTO represents a tracked demand for responses
type BoostDemandDTO struct {
	UUID                string  `json:"uuid"`
	Module              string  `json:"module"`
	RefID               string  `json:"ref_id"`
	TargetLink          string  `json:"target_link"`
	TotalQuantityNeeded int     `json:"total_quantity_needed"`
	OriginalTotal       int     `json:"original_total"`
	PublishTime         string  `json:"publish_time"`
	TimeZone            string  `json:"time_zone"`
	BucketType          string  `json:"bucket_type"`
	DayBucket           string  `json:"day_bucket"`
	CompletedHours      []int   `json:"completed_hours"`
	Status              string  `json:"status"`
	CreatedAt           string  `json:"created_at"`
	FinishedAt          *string `json:"finished_at,omitempty"`
}

// BoostOrderDTO represents one placed order for responses
type BoostOrderDTO struct {
	ID              uint    `json:"id"`
	ServiceID       string  `json:"service_id"`
	ExternalOrderID string  `json:"external_order_id"`
	Quantity        int     `json:"quantity"`
	Price           string  `json:"price"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

type RequestBoostResponse struct {
	Message string         `json:"message"`
	Demand  BoostDemandDTO `json:"demand"`
	// Existing is true when a running demand for the same reference was returned
	Existing bool `json:"existing"`
}

type GetBoostResponse struct {
	Message string          `json:"message"`
	Demand  BoostDemandDTO  `json:"demand"`
	Orders  []BoostOrderDTO `json:"orders"`
}

type StopBoostResponse struct {
	Message string         `json:"message"`
	Demand  BoostDemandDTO `json:"demand"`
}

// GetServiceRequest is bound from the query string of GET /services
type GetServiceRequest struct {
	Module   string `query:"module" validate:"required,oneof=old_views new_views subscribers"`
	Quantity int    `query:"quantity" validate:"required,gt=0"`
}

type GetServiceResponse struct {
	Module    string `json:"module"`
	Quantity  int    `json:"quantity"`
	ServiceID string `json:"service_id"`
	TariffID  *uint  `json:"tariff_id,omitempty"`
	Fallback  bool   `json:"fallback"`
	Reason    string `json:"reason"`
}
