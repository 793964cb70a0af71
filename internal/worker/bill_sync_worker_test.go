package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dairyflow/internal/core"
	"dairyflow/internal/records/memory"
	"dairyflow/internal/sheets"
	sheetsmem "dairyflow/internal/sheets/memory"
)

func seedBill(t *testing.T, store *memory.Store, number string, month int) core.Bill {
	t.Helper()
	ctx := context.Background()
	c, err := store.CreateCustomer(ctx, core.Customer{
		Name:          "Ramesh Kumar",
		MilkType:      core.Cow,
		DailyQuantity: decimal.RequireFromString("5"),
		RatePerLiter:  decimal.RequireFromString("60"),
		Active:        true,
	})
	require.NoError(t, err)
	b, err := store.CreateBill(ctx, core.Bill{
		BillNumber:  number,
		CustomerID:  c.ID,
		Month:       month,
		Year:        2024,
		TotalLiters: decimal.RequireFromString("150"),
		TotalAmount: decimal.RequireFromString("9000"),
		Discount:    decimal.RequireFromString("500"),
		LateFee:     decimal.RequireFromString("100"),
		FinalAmount: decimal.RequireFromString("8600"),
		Status:      core.Unpaid,
	})
	require.NoError(t, err)
	return b
}

type failingWriter struct{ err error }

func (f failingWriter) AppendBill(context.Context, sheets.BillRow) (string, error) {
	return "", f.err
}
func (f failingWriter) UpdateBillStatus(context.Context, sheets.BillRow) error { return f.err }

func TestHandleBillEventGenerated(t *testing.T) {
	store := memory.New()
	bill := seedBill(t, store, "BILL-202411-abcd1234", 11)
	writer := sheetsmem.New()
	w := NewBillSyncWorker(store, writer, nil)

	err := w.HandleBillEvent(context.Background(), core.BillEvent{Type: core.BillGenerated, BillID: bill.ID})
	require.NoError(t, err)

	rows := writer.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "BILL-202411-abcd1234", rows[0].BillNumber)
	assert.Equal(t, "Ramesh Kumar", rows[0].Customer)
	assert.Equal(t, "2024-11", rows[0].Period)
	assert.Equal(t, "8600.00", rows[0].FinalAmount)
	assert.Equal(t, "unpaid", rows[0].Status)
}

func TestHandleBillEventPaid(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	bill := seedBill(t, store, "BILL-1", 11)
	writer := sheetsmem.New()
	w := NewBillSyncWorker(store, writer, nil)

	require.NoError(t, w.HandleBillEvent(ctx, core.BillEvent{Type: core.BillGenerated, BillID: bill.ID}))

	mode := core.UPI
	paidOn := core.NewDate(2024, 12, 5)
	bill.Status = core.Paid
	bill.PaymentMode = &mode
	bill.PaymentDate = &paidOn
	_, err := store.UpdateBill(ctx, bill)
	require.NoError(t, err)

	require.NoError(t, w.HandleBillEvent(ctx, core.BillEvent{Type: core.BillPaid, BillID: bill.ID}))
	rows := writer.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "paid", rows[0].Status)
	assert.Equal(t, "upi", rows[0].PaymentMode)
	assert.Equal(t, "2024-12-05", rows[0].PaymentDate)
}

func TestHandleBillEventPaidWithoutRowAppends(t *testing.T) {
	store := memory.New()
	bill := seedBill(t, store, "BILL-1", 11)
	writer := sheetsmem.New()
	w := NewBillSyncWorker(store, writer, nil)

	require.NoError(t, w.HandleBillEvent(context.Background(), core.BillEvent{Type: core.BillPaid, BillID: bill.ID}))
	assert.Len(t, writer.Rows(), 1)
}

func TestHandleBillEventMissingBillIsSkipped(t *testing.T) {
	writer := sheetsmem.New()
	w := NewBillSyncWorker(memory.New(), writer, nil)

	err := w.HandleBillEvent(context.Background(), core.BillEvent{Type: core.BillGenerated, BillID: "gone"})
	require.NoError(t, err)
	assert.Empty(t, writer.Rows())
}

func TestHandleBillEventWriterFailure(t *testing.T) {
	store := memory.New()
	bill := seedBill(t, store, "BILL-1", 11)
	boom := errors.New("quota exceeded")
	w := NewBillSyncWorker(store, failingWriter{err: boom}, nil)

	err := w.HandleBillEvent(context.Background(), core.BillEvent{Type: core.BillGenerated, BillID: bill.ID})
	require.ErrorIs(t, err, boom)
}

func TestSyncPeriod(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedBill(t, store, "BILL-NOV", 11)
	seedBill(t, store, "BILL-DEC", 12)
	writer := sheetsmem.New()
	w := NewBillSyncWorker(store, writer, nil)

	n, err := w.SyncPeriod(ctx, core.Period{Year: 2024, Month: 11})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows := writer.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "BILL-NOV", rows[0].BillNumber)

	_, err = w.SyncPeriod(ctx, core.Period{Year: 2024, Month: 13})
	require.Error(t, err)
}

func TestSyncPeriodReportsFailures(t *testing.T) {
	store := memory.New()
	seedBill(t, store, "BILL-NOV", 11)
	w := NewBillSyncWorker(store, failingWriter{err: errors.New("down")}, nil)

	n, err := w.SyncPeriod(context.Background(), core.Period{Year: 2024, Month: 11})
	require.Error(t, err)
	assert.Equal(t, 0, n)
}
