package worker

import (
	"context"
	"errors"
	"fmt"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
	"dairyflow/internal/sheets"
)

// Store is the part of the Record Store the worker reads.
type Store interface {
	GetBill(ctx context.Context, id string) (core.Bill, error)
	ListBills(ctx context.Context, f records.BillFilter) ([]core.Bill, error)
	GetCustomer(ctx context.Context, id string) (core.Customer, error)
}

// BillSyncWorker mirrors bills from the Record Store into a spreadsheet.
// Events carry only identifiers; the bill is always reloaded.
type BillSyncWorker struct {
	store  Store
	sheets sheets.BillWriter
	logger *log.Logger
}

func NewBillSyncWorker(store Store, writer sheets.BillWriter, logger *log.Logger) *BillSyncWorker {
	if logger == nil {
		logger = log.Discard(log.ComponentWorker)
	}
	return &BillSyncWorker{store: store, sheets: writer, logger: logger}
}

// HandleBillEvent processes a single bill event from AMQP. A bill that no
// longer exists is skipped without error so the delivery is not requeued.
func (w *BillSyncWorker) HandleBillEvent(ctx context.Context, e core.BillEvent) error {
	w.logger.InfoContext(ctx, "Processing bill event",
		"type", string(e.Type),
		log.FieldBillID, e.BillID)

	bill, err := w.store.GetBill(ctx, e.BillID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Bill no longer exists, skipping",
			log.FieldBillID, e.BillID,
			log.FieldBillNumber, e.BillNumber)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get bill from storage: %w", err)
	}
	row := sheets.NewBillRow(bill, w.customerName(ctx, bill.CustomerID))

	switch e.Type {
	case core.BillPaid:
		err = w.sheets.UpdateBillStatus(ctx, row)
		if errors.Is(err, sheets.ErrRowNotFound) {
			_, err = w.sheets.AppendBill(ctx, row)
		}
	default:
		_, err = w.sheets.AppendBill(ctx, row)
	}
	if err != nil {
		return fmt.Errorf("sync bill %s to sheets: %w", bill.BillNumber, err)
	}

	w.logger.InfoContext(ctx, "Successfully synced bill",
		log.FieldBillID, bill.ID,
		log.FieldBillNumber, bill.BillNumber,
		"status", string(bill.Status))
	return nil
}

// SyncPeriod rewrites every bill of p. It recovers rows for events lost
// while the worker was down.
func (w *BillSyncWorker) SyncPeriod(ctx context.Context, p core.Period) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	bills, err := w.store.ListBills(ctx, records.BillFilter{Period: &p})
	if err != nil {
		return 0, fmt.Errorf("list bills for %s: %w", p.Key(), err)
	}

	synced, failed := 0, 0
	for _, b := range bills {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if _, err := w.sheets.AppendBill(ctx, sheets.NewBillRow(b, w.customerName(ctx, b.CustomerID))); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync bill",
				log.FieldBillNumber, b.BillNumber,
				log.FieldError, err.Error())
			failed++
			continue
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Period sync completed",
		"period", p.Key(),
		"total", len(bills),
		"synced", synced,
		"errors", failed)
	if failed > 0 {
		return synced, fmt.Errorf("%d of %d bills failed to sync for %s", failed, len(bills), p.Key())
	}
	return synced, nil
}

// customerName falls back to the customer ID when the customer cannot be read.
func (w *BillSyncWorker) customerName(ctx context.Context, id string) string {
	c, err := w.store.GetCustomer(ctx, id)
	if err != nil {
		w.logger.WarnContext(ctx, "Customer lookup failed, using id",
			log.FieldCustomerID, id,
			log.FieldError, err.Error())
		return id
	}
	return c.Name
}
