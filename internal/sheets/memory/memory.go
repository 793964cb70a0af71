package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "dairyflow/internal/sheets"
)

// Writer keeps bill rows in memory, keyed by bill number in insertion order.
type Writer struct {
	mu    sync.Mutex
	rows  []ports.BillRow
	index map[string]int
}

var _ ports.BillWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{index: map[string]int{}}
}

// AppendBill stores the row and returns a synthetic row reference.
func (w *Writer) AppendBill(_ context.Context, r ports.BillRow) (string, error) {
	if r.BillNumber == "" {
		return "", errors.New("bill number is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if i, ok := w.index[r.BillNumber]; ok {
		w.rows[i] = r
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	w.rows = append(w.rows, r)
	w.index[r.BillNumber] = len(w.rows) - 1
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

func (w *Writer) UpdateBillStatus(_ context.Context, r ports.BillRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.index[r.BillNumber]
	if !ok {
		return fmt.Errorf("%s: %w", r.BillNumber, ports.ErrRowNotFound)
	}
	w.rows[i].Status = r.Status
	w.rows[i].PaymentMode = r.PaymentMode
	w.rows[i].PaymentDate = r.PaymentDate
	return nil
}

// Rows returns a copy of the stored rows.
func (w *Writer) Rows() []ports.BillRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ports.BillRow(nil), w.rows...)
}
