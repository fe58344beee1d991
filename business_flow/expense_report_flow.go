package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/booster/app/dto"
	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/repository"
	"github.com/amirphl/booster/utils"
	"github.com/xuri/excelize/v2"
)

// Report periods
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// ExpenseReportFlow reports spend recorded in the per-module expense tables
type ExpenseReportFlow interface {
	AdminExpenseSummary(ctx context.Context, req *dto.AdminExpenseSummaryRequest) (*dto.AdminExpenseSummaryResponse, error)
	// AdminExportExpenses renders the expenses as an xlsx workbook with one sheet per module
	AdminExportExpenses(ctx context.Context, req *dto.AdminExpenseExportRequest) (string, []byte, error)
}

type ExpenseReportFlowImpl struct {
	expenseRepo repository.ExpenseRepository
	clock       utils.Clock
}

func NewExpenseReportFlow(expenseRepo repository.ExpenseRepository, clock utils.Clock) ExpenseReportFlow {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ExpenseReportFlowImpl{expenseRepo: expenseRepo, clock: clock}
}

// AdminExpenseSummary totals the current calendar week (from Monday) or month in UTC
func (f *ExpenseReportFlowImpl) AdminExpenseSummary(ctx context.Context, req *dto.AdminExpenseSummaryRequest) (*dto.AdminExpenseSummaryResponse, error) {
	module, err := models.ParseBoostModule(req.Module)
	if err != nil {
		return nil, NewBusinessError("EXPENSE_INVALID_MODULE", "Invalid boost module", ErrInvalidModule)
	}

	now := f.clock.Now()
	var from, to time.Time
	switch req.Period {
	case PeriodWeek:
		from = utils.StartOfWeek(now)
		to = from.AddDate(0, 0, 7)
	case PeriodMonth:
		from = utils.StartOfMonth(now)
		to = from.AddDate(0, 1, 0)
	default:
		return nil, NewBusinessError("EXPENSE_INVALID_PERIOD", "Period must be week or month", ErrInvalidPeriod)
	}

	totals, err := f.expenseRepo.Totals(ctx, module, from, to)
	if err != nil {
		return nil, NewBusinessError("EXPENSE_SUMMARY_FAILED", "Failed to summarize expenses", err)
	}

	return &dto.AdminExpenseSummaryResponse{
		Message:  "Expense summary retrieved successfully",
		Module:   module.String(),
		Period:   req.Period,
		From:     from.Format(time.RFC3339),
		To:       to.Format(time.RFC3339),
		Count:    totals.Count,
		Quantity: totals.Quantity,
		Spend:    totals.Spend.StringFixed(4),
	}, nil
}

// AdminExportExpenses exports the expenses created between the start and end dates, both inclusive
func (f *ExpenseReportFlowImpl) AdminExportExpenses(ctx context.Context, req *dto.AdminExpenseExportRequest) (string, []byte, error) {
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return "", nil, NewBusinessError("VALIDATION_ERROR", "start_date must use YYYY-MM-DD", err)
	}
	end, err := time.Parse(time.DateOnly, req.EndDate)
	if err != nil {
		return "", nil, NewBusinessError("VALIDATION_ERROR", "end_date must use YYYY-MM-DD", err)
	}
	if start.After(end) {
		return "", nil, NewBusinessError("EXPENSE_INVALID_RANGE", "Start date cannot be after end date", ErrStartDateAfterEndDate)
	}

	modules := models.AllBoostModules
	if req.Module != "" {
		m, err := models.ParseBoostModule(req.Module)
		if err != nil {
			return "", nil, NewBusinessError("EXPENSE_INVALID_MODULE", "Invalid boost module", ErrInvalidModule)
		}
		modules = []models.BoostModule{m}
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	header := []string{"id", "task_id", "service_id", "quantity", "price", "relative_hour", "bucket_type", "created_at"}
	for i, module := range modules {
		rows, err := f.expenseRepo.ListRange(ctx, module, start, end.AddDate(0, 0, 1))
		if err != nil {
			return "", nil, NewBusinessError("FETCH_EXPENSES_FAILED", "Failed to fetch expenses", err)
		}

		name := module.String()
		if i == 0 {
			// Rename default sheet
			if err := xl.SetSheetName(xl.GetSheetName(0), name); err != nil {
				return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
			}
		} else if _, err := xl.NewSheet(name); err != nil {
			return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
		}
		_ = xl.SetSheetRow(name, "A1", &header)

		for ri, r := range rows {
			hour := ""
			if r.RelativeHour != nil {
				hour = strconv.Itoa(*r.RelativeHour)
			}
			bucket := ""
			if r.BucketType != nil {
				bucket = *r.BucketType
			}
			record := []any{
				r.ID,
				r.TaskID,
				r.ServiceID,
				r.Quantity,
				r.Price.InexactFloat64(),
				hour,
				bucket,
				r.CreatedAt.UTC().Format(time.RFC3339),
			}
			cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
			_ = xl.SetSheetRow(name, cellRef, &record)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("expenses_%s_%s.xlsx", req.StartDate, req.EndDate)
	return filename, buf.Bytes(), nil
}
