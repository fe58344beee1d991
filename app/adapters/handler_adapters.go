// Package adapters provides adapter functions to bridge different layers of the application
package adapters

import (
	"context"
	"time"

	"github.com/amirphl/booster/app/dto"
	"github.com/amirphl/booster/app/handlers"
	"github.com/amirphl/booster/app/scheduler"
	"github.com/amirphl/booster/models"
	"github.com/google/uuid"
)

// HandlerBoostFlowAdapter adapts the boost engine to the handler BoostFlow
type HandlerBoostFlowAdapter struct {
	engine *scheduler.BoostEngine
}

// NewHandlerBoostFlowAdapter creates a new boost flow adapter
func NewHandlerBoostFlowAdapter(engine *scheduler.BoostEngine) handlers.BoostFlow {
	return &HandlerBoostFlowAdapter{engine: engine}
}

// RequestBoost converts the request DTO and starts pacing
func (a *HandlerBoostFlowAdapter) RequestBoost(ctx context.Context, req *dto.RequestBoostRequest) (*dto.RequestBoostResponse, error) {
	demand, existing, err := a.engine.RequestBoost(ctx, scheduler.BoostRequest{
		Module:        models.BoostModule(req.Module),
		RefID:         req.RefID,
		TargetLink:    req.TargetLink,
		TotalQuantity: req.TotalQuantity,
		PublishTime:   req.PublishTime,
		TimeZone:      req.TimeZone,
		BucketType:    models.BucketType(req.BucketType),
	})
	if err != nil {
		return nil, err
	}

	message := "Boost accepted"
	if existing {
		message = "Boost already running for this reference"
	}
	return &dto.RequestBoostResponse{
		Message:  message,
		Demand:   toBoostDemandDTO(demand),
		Existing: existing,
	}, nil
}

func (a *HandlerBoostFlowAdapter) GetBoost(ctx context.Context, id uuid.UUID) (*dto.GetBoostResponse, error) {
	demand, orders, err := a.engine.GetBoost(ctx, id)
	if err != nil {
		return nil, err
	}

	items := make([]dto.BoostOrderDTO, 0, len(orders))
	for _, o := range orders {
		items = append(items, toBoostOrderDTO(o))
	}
	return &dto.GetBoostResponse{
		Message: "Boost retrieved successfully",
		Demand:  toBoostDemandDTO(demand),
		Orders:  items,
	}, nil
}

func (a *HandlerBoostFlowAdapter) StopBoost(ctx context.Context, id uuid.UUID) (*dto.StopBoostResponse, error) {
	demand, err := a.engine.StopBoost(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.StopBoostResponse{
		Message: "Boost stopped",
		Demand:  toBoostDemandDTO(demand),
	}, nil
}

// GetService never fails; a fallback selection carries the module default
func (a *HandlerBoostFlowAdapter) GetService(ctx context.Context, req *dto.GetServiceRequest) (*dto.GetServiceResponse, error) {
	sel := a.engine.SelectFor(ctx, models.BoostModule(req.Module), req.Quantity)
	return &dto.GetServiceResponse{
		Module:    req.Module,
		Quantity:  req.Quantity,
		ServiceID: sel.ServiceID,
		TariffID:  sel.TariffID,
		Fallback:  sel.Fallback,
		Reason:    sel.Reason,
	}, nil
}

func toBoostDemandDTO(d *models.BoostDemand) dto.BoostDemandDTO {
	out := dto.BoostDemandDTO{
		UUID:                d.UUID.String(),
		Module:              d.Module.String(),
		RefID:               d.RefID,
		TargetLink:          d.TargetLink,
		TotalQuantityNeeded: d.TotalQuantityNeeded,
		OriginalTotal:       d.OriginalTotal,
		PublishTime:         d.PublishTime.UTC().Format(time.RFC3339),
		TimeZone:            d.TimeZone,
		BucketType:          string(d.BucketType),
		DayBucket:           string(d.DayBucket),
		CompletedHours:      d.CompletedHours.Data(),
		Status:              d.Status.String(),
		CreatedAt:           d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if out.CompletedHours == nil {
		out.CompletedHours = []int{}
	}
	if d.FinishedAt != nil {
		s := d.FinishedAt.UTC().Format(time.RFC3339)
		out.FinishedAt = &s
	}
	return out
}

func toBoostOrderDTO(o *models.BoostOrder) dto.BoostOrderDTO {
	out := dto.BoostOrderDTO{
		ID:              o.ID,
		ServiceID:       o.ServiceID,
		ExternalOrderID: o.ExternalOrderID,
		Quantity:        o.Quantity,
		Price:           o.Price.StringFixed(4),
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.CompletedAt != nil {
		s := o.CompletedAt.UTC().Format(time.RFC3339)
		out.CompletedAt = &s
	}
	return out
}
