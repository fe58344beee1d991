package handlers

import (
	"log"

	"github.com/amirphl/booster/app/dto"
	businessflow "github.com/amirphl/booster/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExpenseAdminHandlerInterface defines handler methods for admin expense reports
type ExpenseAdminHandlerInterface interface {
	Summary(c fiber.Ctx) error
	Export(c fiber.Ctx) error
}

type ExpenseAdminHandler struct {
	flow      businessflow.ExpenseReportFlow
	validator *validator.Validate
}

func NewExpenseAdminHandler(flow businessflow.ExpenseReportFlow) ExpenseAdminHandlerInterface {
	return &ExpenseAdminHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// Summary totals the spend of a module for the current week or month
func (h *ExpenseAdminHandler) Summary(c fiber.Ctx) error {
	var req dto.AdminExpenseSummaryRequest
	if err := c.Bind().Query(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/admin/expenses/summary")
	defer cancel()

	res, err := h.flow.AdminExpenseSummary(ctx, &req)
	if err != nil {
		return h.expenseError(c, err, "Expense summary failed", "EXPENSE_SUMMARY_FAILED")
	}
	return successResponse(c, fiber.StatusOK, res.Message, res)
}

// Export downloads the expenses of a date range as an xlsx workbook
func (h *ExpenseAdminHandler) Export(c fiber.Ctx) error {
	var req dto.AdminExpenseExportRequest
	if err := c.Bind().Query(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/admin/expenses/export")
	defer cancel()

	filename, data, err := h.flow.AdminExportExpenses(ctx, &req)
	if err != nil {
		return h.expenseError(c, err, "Expense export failed", "EXPENSE_EXPORT_FAILED")
	}
	c.Set("Content-Type", xlsxContentType)
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

func (h *ExpenseAdminHandler) expenseError(c fiber.Ctx, err error, message, code string) error {
	switch {
	case businessflow.IsInvalidModule(err):
		return errorResponse(c, fiber.StatusBadRequest, "Invalid boost module", "EXPENSE_INVALID_MODULE", nil)
	case businessflow.IsInvalidPeriod(err):
		return errorResponse(c, fiber.StatusBadRequest, "Period must be week or month", "EXPENSE_INVALID_PERIOD", nil)
	case businessflow.IsStartDateAfterEndDate(err):
		return errorResponse(c, fiber.StatusBadRequest, "Start date cannot be after end date", "EXPENSE_INVALID_RANGE", nil)
	}
	log.Println(message+":", err)
	return errorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}
