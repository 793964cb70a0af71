package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dairyflow/internal/core"
	"dairyflow/internal/records"
)

func seedCustomer(t *testing.T, s *Store) core.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), core.Customer{
		Name:          "Asha",
		MilkType:      core.Cow,
		DailyQuantity: decimal.NewFromInt(2),
		RatePerLiter:  decimal.NewFromInt(60),
		Active:        true,
	})
	require.NoError(t, err)
	return c
}

func testBill(customerID, number string) core.Bill {
	return core.Bill{
		BillNumber:  number,
		CustomerID:  customerID,
		Month:       11,
		Year:        2024,
		TotalAmount: decimal.NewFromInt(100),
		FinalAmount: decimal.NewFromInt(100),
		Status:      core.Unpaid,
	}
}

func TestCreateBillRejectsSecondBillForPeriod(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	_, err := s.CreateBill(ctx, testBill(c.ID, "BILL-202411-aaaa0001"))
	require.NoError(t, err)

	_, err = s.CreateBill(ctx, testBill(c.ID, "BILL-202411-aaaa0002"))
	require.ErrorIs(t, err, core.ErrDuplicateBill)

	bills, err := s.ListBills(ctx, records.BillFilter{CustomerID: c.ID})
	require.NoError(t, err)
	assert.Len(t, bills, 1)
}

func TestFindBill(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	_, found, err := s.FindBill(ctx, c.ID, core.Period{Year: 2024, Month: 11})
	require.NoError(t, err)
	assert.False(t, found)

	created, err := s.CreateBill(ctx, testBill(c.ID, "BILL-202411-aaaa0001"))
	require.NoError(t, err)

	got, found, err := s.FindBill(ctx, c.ID, core.Period{Year: 2024, Month: 11})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.ID, got.ID)
}

func TestUpsertMilkEntryKeepsOneRowPerSlot(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	day := core.NewDate(2024, 11, 3)

	first, err := s.UpsertMilkEntry(ctx, core.MilkEntry{
		CustomerID: c.ID, Date: day, Session: core.Morning,
		RegularQuantity: decimal.NewFromInt(2), RatePerLiter: decimal.NewFromInt(60),
	})
	require.NoError(t, err)

	second, err := s.UpsertMilkEntry(ctx, core.MilkEntry{
		CustomerID: c.ID, Date: day, Session: core.Morning,
		RegularQuantity: decimal.NewFromInt(3), RatePerLiter: decimal.NewFromInt(60), Delivered: true,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = s.UpsertMilkEntry(ctx, core.MilkEntry{
		CustomerID: c.ID, Date: day, Session: core.Evening,
		RegularQuantity: decimal.NewFromInt(1), RatePerLiter: decimal.NewFromInt(60),
	})
	require.NoError(t, err)

	entries, err := s.ListMilkEntries(ctx, records.MilkEntryFilter{CustomerID: c.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, core.Morning, entries[0].Session)
	assert.True(t, entries[0].RegularQuantity.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, core.Evening, entries[1].Session)
}

func TestUpdateMilkEntryRejectsTakenSlot(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	day := core.NewDate(2024, 11, 3)

	_, err := s.UpsertMilkEntry(ctx, core.MilkEntry{CustomerID: c.ID, Date: day, Session: core.Morning})
	require.NoError(t, err)
	evening, err := s.UpsertMilkEntry(ctx, core.MilkEntry{CustomerID: c.ID, Date: day, Session: core.Evening})
	require.NoError(t, err)

	evening.Session = core.Morning
	_, err = s.UpdateMilkEntry(ctx, evening)
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestUpsertMilkEntryUnknownCustomer(t *testing.T) {
	s := New()
	_, err := s.UpsertMilkEntry(context.Background(), core.MilkEntry{
		CustomerID: "missing", Date: core.NewDate(2024, 11, 3), Session: core.Morning,
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	bill, err := s.CreateBill(ctx, testBill(c.ID, "BILL-202411-aaaa0001"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(tx records.Tx) error {
		_, err := tx.Payments().CreatePayment(ctx, core.Payment{
			BillID: bill.ID, CustomerID: c.ID, Amount: bill.FinalAmount,
			Mode: core.Cash, Date: core.NewDate(2024, 12, 1),
		})
		require.NoError(t, err)
		b := bill
		b.Status = core.Paid
		if _, err := tx.Bills().UpdateBill(ctx, b); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Unpaid, got.Status)

	payments, err := s.ListPayments(ctx, records.PaymentFilter{IncludePending: true})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestWithinTxCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	bill, err := s.CreateBill(ctx, testBill(c.ID, "BILL-202411-aaaa0001"))
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx records.Tx) error {
		b := bill
		b.Status = core.Paid
		if _, err := tx.Bills().UpdateBill(ctx, b); err != nil {
			return err
		}
		_, err := tx.Payments().CreatePayment(ctx, core.Payment{
			BillID: bill.ID, CustomerID: c.ID, Amount: bill.FinalAmount,
			Mode: core.UPI, Date: core.NewDate(2024, 12, 1),
		})
		return err
	})
	require.NoError(t, err)

	got, err := s.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Paid, got.Status)

	payments, err := s.ListPayments(ctx, records.PaymentFilter{BillID: bill.ID})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, core.PaymentCommitted, payments[0].State)
}

func TestWithinTxRollsBackWhenContextEnds(t *testing.T) {
	s := New()
	c := seedCustomer(t, s)
	bill, err := s.CreateBill(context.Background(), testBill(c.ID, "BILL-202411-aaaa0001"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	err = s.WithinTx(ctx, func(tx records.Tx) error {
		b := bill
		b.Status = core.Paid
		if _, err := tx.Bills().UpdateBill(ctx, b); err != nil {
			return err
		}
		_, err := tx.Payments().CreatePayment(ctx, core.Payment{
			BillID: bill.ID, CustomerID: c.ID, Amount: bill.FinalAmount,
			Mode: core.Cash, Date: core.NewDate(2024, 12, 1),
		})
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)

	got, err := s.GetBill(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Unpaid, got.Status)

	payments, err := s.ListPayments(context.Background(), records.PaymentFilter{IncludePending: true})
	require.NoError(t, err)
	assert.Empty(t, payments)

	called := false
	err = s.WithinTx(ctx, func(records.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestListPaymentsHidesPending(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	bill, err := s.CreateBill(ctx, testBill(c.ID, "BILL-202411-aaaa0001"))
	require.NoError(t, err)

	_, err = s.CreatePayment(ctx, core.Payment{
		BillID: bill.ID, CustomerID: c.ID, Amount: bill.FinalAmount,
		Mode: core.Cash, Date: core.NewDate(2024, 12, 1), State: core.PaymentPending,
	})
	require.NoError(t, err)

	visible, err := s.ListPayments(ctx, records.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := s.ListPayments(ctx, records.PaymentFilter{IncludePending: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteCustomerWithBillsConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	_, err := s.CreateBill(ctx, testBill(c.ID, "BILL-202411-aaaa0001"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteCustomer(ctx, c.ID), core.ErrConflict)
	assert.ErrorIs(t, s.DeleteCustomer(ctx, "missing"), core.ErrNotFound)
}

func TestDeleteCategoryClearsExpenses(t *testing.T) {
	ctx := context.Background()
	s := New()
	cat, err := s.CreateCategory(ctx, core.ExpenseCategory{Name: "Feed"})
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, core.ExpenseCategory{Name: "feed"})
	require.ErrorIs(t, err, core.ErrConflict)

	exp, err := s.CreateExpense(ctx, core.Expense{
		CategoryID: cat.ID, Date: core.NewDate(2024, 11, 2), Amount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCategory(ctx, cat.ID))
	list, err := s.ListExpenses(ctx, records.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, exp.ID, list[0].ID)
	assert.Empty(t, list[0].CategoryID)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetSetting(ctx, "billing")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.PutSetting(ctx, "billing", []byte(`{"late_fee_amount":"50"}`)))
	got, err := s.GetSetting(ctx, "billing")
	require.NoError(t, err)
	assert.JSONEq(t, `{"late_fee_amount":"50"}`, string(got))
}

func TestNewFromFilesSeedsCategories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_categories.txt"),
		[]byte("# comment\nFeed|wheat\nFeed|wheat\n\nFuel\n"), 0o644))

	s := NewFromFiles(dir)
	cats, err := s.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Feed", cats[0].Name)
	assert.Equal(t, "wheat", cats[0].Icon)
	assert.Equal(t, "Fuel", cats[1].Name)
}

func TestNewFromFilesFallsBackToDefaults(t *testing.T) {
	s := NewFromFiles(t.TempDir())
	cats, err := s.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, cats, len(DefaultCategories))
}
