package core

import "github.com/shopspring/decimal"

// GroupBy selects how report rows are bucketed.
type GroupBy string

const (
	GroupByDay      GroupBy = "day"
	GroupByMonth    GroupBy = "month"
	GroupByCustomer GroupBy = "customer"
)

func (g GroupBy) Valid() bool {
	return g == GroupByDay || g == GroupByMonth || g == GroupByCustomer
}

// SeriesPoint is one chart-ready bucket of a report.
type SeriesPoint struct {
	Label       string          `json:"label"`
	TotalLiters decimal.Decimal `json:"total_liters"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthOverview is a compact profit summary for a specific year+month.
type MonthOverview struct {
	Period   Period          `json:"period"`
	Liters   decimal.Decimal `json:"liters"`
	Revenue  decimal.Decimal `json:"revenue"`
	Expenses decimal.Decimal `json:"expenses"`
	Profit   decimal.Decimal `json:"profit"`
}
