package report

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dairyflow/internal/core"
	"dairyflow/internal/records/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func addCustomer(t *testing.T, s *memory.Store, name string, mt core.MilkType, active bool) core.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), core.Customer{
		Name: name, MilkType: mt, DailyQuantity: dec("2"), RatePerLiter: dec("60"), Active: active,
	})
	require.NoError(t, err)
	return c
}

func addEntry(t *testing.T, s *memory.Store, customerID string, date core.Date, session core.Session, liters, rate string, delivered bool) {
	t.Helper()
	_, err := s.UpsertMilkEntry(context.Background(), core.MilkEntry{
		CustomerID: customerID, Date: date, Session: session,
		RegularQuantity: dec(liters), ExtraQuantity: decimal.Zero, RatePerLiter: dec(rate),
		Delivered: delivered,
	}.WithComputedTotal())
	require.NoError(t, err)
}

func addExpense(t *testing.T, s *memory.Store, categoryID string, date core.Date, amount string) {
	t.Helper()
	_, err := s.CreateExpense(context.Background(), core.Expense{CategoryID: categoryID, Date: date, Amount: dec(amount)})
	require.NoError(t, err)
}

func labels(points []core.SeriesPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Label
	}
	return out
}

func TestSeriesGroupsByDay(t *testing.T) {
	store := memory.New()
	c := addCustomer(t, store, "Ramesh", core.Cow, true)
	addEntry(t, store, c.ID, core.NewDate(2024, 12, 2), core.Morning, "5", "60", true)
	addEntry(t, store, c.ID, core.NewDate(2024, 12, 1), core.Morning, "10", "60", true)

	points, err := NewService(store, nil).Series(context.Background(), SeriesRequest{
		From: core.NewDate(2024, 12, 1), To: core.NewDate(2024, 12, 31), GroupBy: core.GroupByDay,
	})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "2024-12-01", points[0].Label)
	assert.True(t, points[0].TotalLiters.Equal(dec("10")))
	assert.True(t, points[0].TotalAmount.Equal(dec("600")))
	assert.Equal(t, "2024-12-02", points[1].Label)
	assert.True(t, points[1].TotalLiters.Equal(dec("5")))
}

func TestSeriesGroupsByMonth(t *testing.T) {
	store := memory.New()
	c := addCustomer(t, store, "Ramesh", core.Cow, true)
	addEntry(t, store, c.ID, core.NewDate(2024, 12, 31), core.Evening, "1", "60", true)
	addEntry(t, store, c.ID, core.NewDate(2024, 11, 3), core.Morning, "2", "60", true)
	addEntry(t, store, c.ID, core.NewDate(2024, 11, 4), core.Morning, "2", "60", true)
	addEntry(t, store, c.ID, core.NewDate(2024, 11, 5), core.Morning, "9", "60", false)

	points, err := NewService(store, nil).Series(context.Background(), SeriesRequest{
		From: core.NewDate(2024, 11, 1), To: core.NewDate(2024, 12, 31), GroupBy: core.GroupByMonth, Source: SourceMilk,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-11", "2024-12"}, labels(points))
	assert.True(t, points[0].TotalLiters.Equal(dec("4")), "undelivered rows are not counted")
}

func TestSeriesGroupsByCustomer(t *testing.T) {
	store := memory.New()
	asha := addCustomer(t, store, "Asha", core.Cow, true)
	bina := addCustomer(t, store, "Bina", core.Buffalo, true)
	chetan := addCustomer(t, store, "Chetan", core.Cow, true)
	day := core.NewDate(2024, 12, 1)
	addEntry(t, store, asha.ID, day, core.Morning, "1", "60", true)
	addEntry(t, store, bina.ID, day, core.Morning, "2", "80", true)
	addEntry(t, store, chetan.ID, day, core.Morning, "1", "60", true)

	points, err := NewService(store, nil).Series(context.Background(), SeriesRequest{
		From: day, To: day, GroupBy: core.GroupByCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bina", "Asha", "Chetan"}, labels(points))
	assert.True(t, points[0].TotalAmount.Equal(dec("160")))
}

func TestSeriesKeepsNamesakesApart(t *testing.T) {
	store := memory.New()
	first := addCustomer(t, store, "Ramesh", core.Cow, true)
	second := addCustomer(t, store, "Ramesh", core.Cow, true)
	day := core.NewDate(2024, 12, 1)
	addEntry(t, store, first.ID, day, core.Morning, "10", "60", true)
	addEntry(t, store, second.ID, day, core.Morning, "5", "60", true)

	points, err := NewService(store, nil).Series(context.Background(), SeriesRequest{
		From: day, To: day, GroupBy: core.GroupByCustomer,
	})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, []string{"Ramesh", "Ramesh"}, labels(points))
	assert.True(t, points[0].TotalLiters.Equal(dec("10")))
	assert.True(t, points[0].TotalAmount.Equal(dec("600")))
	assert.True(t, points[1].TotalLiters.Equal(dec("5")))
	assert.True(t, points[1].TotalAmount.Equal(dec("300")))
}

func TestSeriesExpenses(t *testing.T) {
	store := memory.New()
	addExpense(t, store, "", core.NewDate(2024, 12, 2), "100.50")
	addExpense(t, store, "", core.NewDate(2024, 12, 2), "20")
	addExpense(t, store, "", core.NewDate(2024, 12, 1), "5")
	addExpense(t, store, "", core.NewDate(2025, 1, 1), "999")
	svc := NewService(store, nil)

	points, err := svc.Series(context.Background(), SeriesRequest{
		From: core.NewDate(2024, 12, 1), To: core.NewDate(2024, 12, 31), GroupBy: core.GroupByDay, Source: SourceExpenses,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-12-01", "2024-12-02"}, labels(points))
	assert.True(t, points[1].TotalAmount.Equal(dec("120.5")))
	assert.True(t, points[1].TotalLiters.IsZero())

	_, err = svc.Series(context.Background(), SeriesRequest{
		From: core.NewDate(2024, 12, 1), To: core.NewDate(2024, 12, 31), GroupBy: core.GroupByCustomer, Source: SourceExpenses,
	})
	assert.True(t, core.IsValidation(err))
}

func TestSeriesIsIdempotent(t *testing.T) {
	store := memory.New()
	c := addCustomer(t, store, "Ramesh", core.Cow, true)
	addEntry(t, store, c.ID, core.NewDate(2024, 12, 1), core.Morning, "1.25", "58.5", true)
	addEntry(t, store, c.ID, core.NewDate(2024, 12, 1), core.Evening, "0.75", "58.5", true)
	svc := NewService(store, nil)
	req := SeriesRequest{From: core.NewDate(2024, 12, 1), To: core.NewDate(2024, 12, 31), GroupBy: core.GroupByDay}

	first, err := svc.Series(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Series(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSeriesValidation(t *testing.T) {
	svc := NewService(memory.New(), nil)
	from, to := core.NewDate(2024, 12, 1), core.NewDate(2024, 12, 31)
	tests := []struct {
		name string
		req  SeriesRequest
	}{
		{"missing range", SeriesRequest{GroupBy: core.GroupByDay}},
		{"reversed range", SeriesRequest{From: to, To: from, GroupBy: core.GroupByDay}},
		{"bad group", SeriesRequest{From: from, To: to, GroupBy: "week"}},
		{"bad source", SeriesRequest{From: from, To: to, GroupBy: core.GroupByDay, Source: "bills"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Series(context.Background(), tt.req)
			assert.True(t, core.IsValidation(err), "err = %v", err)
		})
	}
}

func TestExpensesByCategory(t *testing.T) {
	store := memory.New()
	feed, err := store.CreateCategory(context.Background(), core.ExpenseCategory{Name: "Feed"})
	require.NoError(t, err)
	vet, err := store.CreateCategory(context.Background(), core.ExpenseCategory{Name: "Veterinary"})
	require.NoError(t, err)
	day := core.NewDate(2024, 12, 10)
	addExpense(t, store, feed.ID, day, "300")
	addExpense(t, store, feed.ID, day, "200")
	addExpense(t, store, vet.ID, day, "150")
	addExpense(t, store, "", day, "150")

	got, err := NewService(store, nil).ExpensesByCategory(context.Background(), core.NewDate(2024, 12, 1), core.NewDate(2024, 12, 31))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Feed", got[0].Name)
	assert.True(t, got[0].Amount.Equal(dec("500")))
	assert.Equal(t, "Uncategorized", got[1].Name)
	assert.Equal(t, "Veterinary", got[2].Name)
}

func TestMonthlyPnL(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := addCustomer(t, store, "Ramesh", core.Cow, true)
	addEntry(t, store, c.ID, core.NewDate(2024, 11, 5), core.Morning, "150", "60", true)
	addExpense(t, store, "", core.NewDate(2024, 11, 20), "2500")
	addExpense(t, store, "", core.NewDate(2024, 12, 2), "100")
	_, err := store.CreateBill(ctx, core.Bill{
		BillNumber: "BILL-202411-00000001", CustomerID: c.ID, Month: 11, Year: 2024,
		TotalLiters: dec("150"), TotalAmount: dec("9000"), Discount: dec("500"), LateFee: dec("100"),
		FinalAmount: dec("8600"), Status: core.Unpaid,
	})
	require.NoError(t, err)

	months, err := NewService(store, nil).MonthlyPnL(ctx, core.NewDate(2024, 10, 15), core.NewDate(2024, 12, 1))
	require.NoError(t, err)
	require.Len(t, months, 3)
	assert.Equal(t, core.Period{Year: 2024, Month: 10}, months[0].Period)
	assert.True(t, months[0].Profit.IsZero())

	nov := months[1]
	assert.True(t, nov.Revenue.Equal(dec("8600")))
	assert.True(t, nov.Expenses.Equal(dec("2500")))
	assert.True(t, nov.Profit.Equal(dec("6100")))
	assert.True(t, nov.Liters.Equal(dec("150")))

	assert.True(t, months[2].Profit.Equal(dec("-100")))

	_, err = NewService(store, nil).MonthlyPnL(ctx, core.NewDate(2000, 1, 1), core.NewDate(2020, 1, 1))
	assert.True(t, core.IsValidation(err))
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	asha := addCustomer(t, store, "Asha", core.Cow, true)
	bina := addCustomer(t, store, "Bina", core.Buffalo, true)
	addCustomer(t, store, "Devi", core.Cow, false)

	today := core.NewDate(2024, 12, 10)
	addEntry(t, store, asha.ID, today, core.Morning, "2", "60", true)
	addEntry(t, store, asha.ID, today, core.Evening, "1", "60", true)
	addEntry(t, store, bina.ID, today, core.Morning, "3", "80", false)
	addEntry(t, store, bina.ID, core.NewDate(2024, 12, 1), core.Morning, "1", "80", true)
	addEntry(t, store, bina.ID, core.NewDate(2024, 11, 30), core.Morning, "9", "80", true)

	_, err := store.CreateBill(ctx, core.Bill{
		BillNumber: "BILL-202411-00000002", CustomerID: bina.ID, Month: 11, Year: 2024,
		TotalLiters: dec("9"), TotalAmount: dec("720"), Discount: decimal.Zero, LateFee: decimal.Zero,
		FinalAmount: dec("720"), Status: core.Unpaid,
	})
	require.NoError(t, err)

	d, err := NewService(store, nil).Dashboard(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, d.ActiveCustomers)
	assert.True(t, d.TodayLiters.Equal(dec("3")), "today = %s", d.TodayLiters)
	require.Len(t, d.TodayBySession, 2)
	assert.Equal(t, core.Morning, d.TodayBySession[0].Session)
	assert.True(t, d.TodayBySession[0].Liters.Equal(dec("2")))
	assert.True(t, d.TodayBySession[1].Liters.Equal(dec("1")))
	assert.True(t, d.MonthRevenue.Equal(dec("260")), "month = %s", d.MonthRevenue)
	assert.Equal(t, 1, d.UnpaidBills)
	assert.True(t, d.UnpaidAmount.Equal(dec("720")))
	assert.Equal(t, []MilkTypeCount{{MilkType: core.Cow, Customers: 1}, {MilkType: core.Buffalo, Customers: 1}}, d.MilkTypes)

	_, err = NewService(store, nil).Dashboard(ctx, core.Date{})
	assert.True(t, core.IsValidation(err))
}
