package handlers

import (
	"log"
	"strconv"

	"github.com/amirphl/booster/app/dto"
	businessflow "github.com/amirphl/booster/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// TariffAdminHandlerInterface defines handler methods for admin tariff operations
type TariffAdminHandlerInterface interface {
	CreateTariff(c fiber.Ctx) error
	UpdateTariff(c fiber.Ctx) error
	ListTariffs(c fiber.Ctx) error
}

// TariffAdminHandler implements admin tariff endpoints
type TariffAdminHandler struct {
	flow      businessflow.TariffFlow
	validator *validator.Validate
}

func NewTariffAdminHandler(flow businessflow.TariffFlow) TariffAdminHandlerInterface {
	return &TariffAdminHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// CreateTariff adds an upstream service to a module (admin only)
func (h *TariffAdminHandler) CreateTariff(c fiber.Ctx) error {
	var req dto.AdminCreateTariffRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/admin/tariffs")
	defer cancel()

	res, err := h.flow.AdminCreateTariff(ctx, &req)
	if err != nil {
		return h.tariffError(c, err, "Create tariff failed", "TARIFF_CREATE_FAILED")
	}
	return successResponse(c, fiber.StatusCreated, res.Message, res)
}

// UpdateTariff changes a tariff; the id comes from the path
func (h *TariffAdminHandler) UpdateTariff(c fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid tariff id", "INVALID_TARIFF_ID", nil)
	}

	var req dto.AdminUpdateTariffRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.ID = uint(id)
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/admin/tariffs/:id")
	defer cancel()

	res, err := h.flow.AdminUpdateTariff(ctx, &req)
	if err != nil {
		return h.tariffError(c, err, "Update tariff failed", "TARIFF_UPDATE_FAILED")
	}
	return successResponse(c, fiber.StatusOK, res.Message, res)
}

// ListTariffs returns the tariffs of ?module= ordered by id
func (h *TariffAdminHandler) ListTariffs(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/admin/tariffs")
	defer cancel()

	res, err := h.flow.AdminListTariffs(ctx, c.Query("module"))
	if err != nil {
		return h.tariffError(c, err, "List tariffs failed", "TARIFF_LIST_FAILED")
	}
	return successResponse(c, fiber.StatusOK, res.Message, res)
}

func (h *TariffAdminHandler) tariffError(c fiber.Ctx, err error, message, code string) error {
	switch {
	case businessflow.IsTariffNotFound(err):
		return errorResponse(c, fiber.StatusNotFound, "Tariff not found", "TARIFF_NOT_FOUND", nil)
	case businessflow.IsInvalidModule(err):
		return errorResponse(c, fiber.StatusBadRequest, "Invalid boost module", "TARIFF_INVALID_MODULE", nil)
	case businessflow.IsServiceIDRequired(err):
		return errorResponse(c, fiber.StatusBadRequest, "Service id is required", "TARIFF_SERVICE_ID_REQUIRED", nil)
	case businessflow.IsInvalidMinLimit(err):
		return errorResponse(c, fiber.StatusBadRequest, "Min limit must be at least 1", "TARIFF_INVALID_MIN_LIMIT", nil)
	case businessflow.IsInvalidPrice(err):
		return errorResponse(c, fiber.StatusBadRequest, "Price must not be negative", "TARIFF_INVALID_PRICE", nil)
	}
	log.Println(message+":", err)
	return errorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}
