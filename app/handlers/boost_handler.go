package handlers

import (
	"context"
	"log"

	"github.com/amirphl/booster/app/dto"
	businessflow "github.com/amirphl/booster/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// BoostFlow is the boost engine as seen by the HTTP layer
type BoostFlow interface {
	RequestBoost(ctx context.Context, req *dto.RequestBoostRequest) (*dto.RequestBoostResponse, error)
	GetBoost(ctx context.Context, id uuid.UUID) (*dto.GetBoostResponse, error)
	StopBoost(ctx context.Context, id uuid.UUID) (*dto.StopBoostResponse, error)
	GetService(ctx context.Context, req *dto.GetServiceRequest) (*dto.GetServiceResponse, error)
}

// BoostHandlerInterface defines the endpoints used by booster workers
type BoostHandlerInterface interface {
	RequestBoost(c fiber.Ctx) error
	GetBoost(c fiber.Ctx) error
	StopBoost(c fiber.Ctx) error
	GetService(c fiber.Ctx) error
}

type BoostHandler struct {
	flow      BoostFlow
	validator *validator.Validate
}

func NewBoostHandler(flow BoostFlow) BoostHandlerInterface {
	return &BoostHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// RequestBoost starts pacing a target over the 24 hours after its publish time.
// A running demand for the same module and reference is returned with existing set.
func (h *BoostHandler) RequestBoost(c fiber.Ctx) error {
	var req dto.RequestBoostRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/boosts")
	defer cancel()

	res, err := h.flow.RequestBoost(ctx, &req)
	if err != nil {
		return h.demandError(c, err, "Request boost failed", "BOOST_REQUEST_FAILED")
	}
	if res.Existing {
		return successResponse(c, fiber.StatusOK, res.Message, res)
	}
	return successResponse(c, fiber.StatusCreated, res.Message, res)
}

// GetBoost returns a demand with its checkpoint and placed orders
func (h *BoostHandler) GetBoost(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid boost id", "INVALID_BOOST_ID", nil)
	}

	ctx, cancel := requestContext(c, "/api/v1/boosts/:id")
	defer cancel()

	res, err := h.flow.GetBoost(ctx, id)
	if err != nil {
		return h.demandError(c, err, "Get boost failed", "BOOST_GET_FAILED")
	}
	return successResponse(c, fiber.StatusOK, res.Message, res)
}

// StopBoost stops a running demand; its worker exits on the next tick
func (h *BoostHandler) StopBoost(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid boost id", "INVALID_BOOST_ID", nil)
	}

	ctx, cancel := requestContext(c, "/api/v1/boosts/:id")
	defer cancel()

	res, err := h.flow.StopBoost(ctx, id)
	if err != nil {
		return h.demandError(c, err, "Stop boost failed", "BOOST_STOP_FAILED")
	}
	return successResponse(c, fiber.StatusOK, res.Message, res)
}

// GetService picks the upstream service for a one-off order. Selection never
// fails: a fallback service is returned with fallback set instead.
func (h *BoostHandler) GetService(c fiber.Ctx) error {
	var req dto.GetServiceRequest
	if err := c.Bind().Query(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/services")
	defer cancel()

	res, err := h.flow.GetService(ctx, &req)
	if err != nil {
		log.Println("Get service failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Get service failed", "SERVICE_SELECTION_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Service selected", res)
}

func (h *BoostHandler) demandError(c fiber.Ctx, err error, message, code string) error {
	switch {
	case businessflow.IsDemandNotFound(err):
		return errorResponse(c, fiber.StatusNotFound, "Boost demand not found", "BOOST_NOT_FOUND", nil)
	case businessflow.IsDemandNotRunning(err):
		return errorResponse(c, fiber.StatusConflict, "Boost demand is not running", "BOOST_NOT_RUNNING", nil)
	case businessflow.IsDemandWindowClosed(err):
		return errorResponse(c, fiber.StatusUnprocessableEntity, "Boost window has already elapsed", "BOOST_WINDOW_CLOSED", nil)
	case businessflow.IsInvalidModule(err):
		return errorResponse(c, fiber.StatusBadRequest, "Invalid boost module", "BOOST_INVALID_MODULE", nil)
	case businessflow.IsRefIDRequired(err):
		return errorResponse(c, fiber.StatusBadRequest, "Reference id is required", "BOOST_REF_ID_REQUIRED", nil)
	case businessflow.IsTargetLinkRequired(err):
		return errorResponse(c, fiber.StatusBadRequest, "Target link is required", "BOOST_TARGET_LINK_REQUIRED", nil)
	case businessflow.IsInvalidQuantity(err):
		return errorResponse(c, fiber.StatusBadRequest, "Total quantity must be positive", "BOOST_INVALID_QUANTITY", nil)
	case businessflow.IsInvalidTimeZone(err):
		return errorResponse(c, fiber.StatusBadRequest, "Invalid time zone", "BOOST_INVALID_TIME_ZONE", nil)
	case businessflow.IsInvalidBucketType(err):
		return errorResponse(c, fiber.StatusBadRequest, "Invalid bucket type", "BOOST_INVALID_BUCKET_TYPE", nil)
	}
	log.Println(message+":", err)
	return errorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}
