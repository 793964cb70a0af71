package memory

import (
	"context"
	"errors"
	"testing"

	ports "dairyflow/internal/sheets"
)

func TestWriterAppendAndReplay(t *testing.T) {
	w := New()
	ctx := context.Background()

	ref, err := w.AppendBill(ctx, ports.BillRow{BillNumber: "BILL-1", Status: "unpaid"})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	if _, err := w.AppendBill(ctx, ports.BillRow{BillNumber: "BILL-2", Status: "unpaid"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	ref, err = w.AppendBill(ctx, ports.BillRow{BillNumber: "BILL-1", Status: "paid"})
	if err != nil || ref != "mem:1" {
		t.Fatalf("replay should reuse row 1: ref=%q err=%v", ref, err)
	}

	rows := w.Rows()
	if len(rows) != 2 || rows[0].Status != "paid" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if _, err := w.AppendBill(ctx, ports.BillRow{}); err == nil {
		t.Fatal("expected error for empty bill number")
	}
}

func TestWriterUpdateBillStatus(t *testing.T) {
	w := New()
	ctx := context.Background()

	if err := w.UpdateBillStatus(ctx, ports.BillRow{BillNumber: "BILL-1"}); !errors.Is(err, ports.ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}

	_, _ = w.AppendBill(ctx, ports.BillRow{BillNumber: "BILL-1", FinalAmount: "8600.00", Status: "unpaid"})
	err := w.UpdateBillStatus(ctx, ports.BillRow{BillNumber: "BILL-1", Status: "paid", PaymentMode: "cash", PaymentDate: "2024-12-05"})
	if err != nil {
		t.Fatalf("UpdateBillStatus: %v", err)
	}
	got := w.Rows()[0]
	if got.Status != "paid" || got.PaymentMode != "cash" || got.PaymentDate != "2024-12-05" {
		t.Errorf("status not updated: %+v", got)
	}
	if got.FinalAmount != "8600.00" {
		t.Errorf("amount should be kept, got %q", got.FinalAmount)
	}
}
