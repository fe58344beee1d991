package dto

// AdminExpenseSummaryRequest is bound from the query string of the summary endpoint
type AdminExpenseSummaryRequest struct {
	Module string `query:"module" validate:"required,oneof=old_views new_views subscribers"`
	Period string `query:"period" validate:"required,oneof=week month"`
}

type AdminExpenseSummaryResponse struct {
	Message  string `json:"message"`
	Module   string `json:"module"`
	Period   string `json:"period"`
	From     string `json:"from"`
	To       string `json:"to"`
	Count    int64  `json:"count"`
	Quantity int64  `json:"quantity"`
	Spend    string `json:"spend"`
}

// AdminExpenseExportRequest selects the expenses written to the spreadsheet.
// Dates use the 2006-01-02 layout; an empty module exports every module.
type AdminExpenseExportRequest struct {
	Module    string `query:"module" validate:"omitempty,oneof=old_views new_views subscribers"`
	StartDate string `query:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `query:"end_date" validate:"required,datetime=2006-01-02"`
}
