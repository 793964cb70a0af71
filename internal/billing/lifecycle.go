package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
)

type LifecycleStore interface {
	records.BillStore
	records.PaymentStore
}

type MarkPaidRequest struct {
	BillID string           `json:"bill_id"`
	Mode   core.PaymentMode `json:"payment_mode"`
	// Date defaults to today when zero.
	Date core.Date `json:"payment_date"`
	// RecordPayment also creates a Payment row for the bill's final amount.
	RecordPayment bool   `json:"record_payment"`
	Notes         string `json:"notes,omitempty"`
}

func (r MarkPaidRequest) validate() error {
	if strings.TrimSpace(r.BillID) == "" {
		return &core.ValidationError{Field: "bill_id", Msg: "is required"}
	}
	if !r.Mode.Valid() {
		return &core.ValidationError{Field: "payment_mode", Msg: "must be cash, online or upi"}
	}
	if len(r.Notes) > 500 {
		return &core.ValidationError{Field: "notes", Msg: "too long (max 500 characters)"}
	}
	return nil
}

// Lifecycle moves bills from unpaid to paid. There is no reverse transition.
type Lifecycle struct {
	store  LifecycleStore
	tx     records.Transactor
	events Publisher
	logger *log.Logger
	guard  *inflight
	now    func() time.Time
}

// NewLifecycle uses the store's transactions when it implements
// records.Transactor and the pending/committed two-phase write otherwise.
func NewLifecycle(store LifecycleStore, events Publisher, logger *log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.Discard(log.ComponentBilling)
	}
	l := &Lifecycle{
		store:  store,
		events: events,
		logger: logger,
		guard:  newInflight(),
		now:    time.Now,
	}
	if tx, ok := store.(records.Transactor); ok {
		l.tx = tx
	}
	return l
}

func markPaid(b core.Bill, mode core.PaymentMode, date core.Date) core.Bill {
	b.Status = core.Paid
	b.PaymentMode = &mode
	b.PaymentDate = &date
	return b
}

func paymentFor(b core.Bill, req MarkPaidRequest, date core.Date, state core.PaymentState) core.Payment {
	return core.Payment{
		BillID:     b.ID,
		CustomerID: b.CustomerID,
		Amount:     b.FinalAmount,
		Mode:       req.Mode,
		Date:       date,
		Notes:      strings.TrimSpace(req.Notes),
		State:      state,
	}
}

// MarkPaid settles an unpaid bill. A bill already paid returns
// core.ErrAlreadyPaid and is left untouched.
func (l *Lifecycle) MarkPaid(ctx context.Context, req MarkPaidRequest) (core.Bill, *core.Payment, error) {
	if err := req.validate(); err != nil {
		return core.Bill{}, nil, err
	}
	if !l.guard.acquire(req.BillID) {
		return core.Bill{}, nil, fmt.Errorf("bill %s is already being updated: %w", req.BillID, core.ErrConflict)
	}
	defer l.guard.release(req.BillID)

	date := req.Date
	if date.IsZero() {
		date = core.DateOf(l.now())
	}

	var (
		bill    core.Bill
		payment *core.Payment
		err     error
	)
	if l.tx != nil {
		bill, payment, err = l.markPaidTx(ctx, req, date)
	} else {
		bill, payment, err = l.markPaidTwoPhase(ctx, req, date)
	}
	if err != nil {
		return core.Bill{}, nil, err
	}

	log.NewStructuredLogger(l.logger).LogBillPaid(ctx, bill.ID, bill.BillNumber, bill.CustomerID,
		bill.Period().Key(), string(req.Mode))
	publish(ctx, l.events, l.logger, core.BillPaid, bill)
	return bill, payment, nil
}

func (l *Lifecycle) markPaidTx(ctx context.Context, req MarkPaidRequest, date core.Date) (core.Bill, *core.Payment, error) {
	var (
		bill    core.Bill
		payment *core.Payment
	)
	err := l.tx.WithinTx(ctx, func(tx records.Tx) error {
		current, err := tx.Bills().GetBill(ctx, req.BillID)
		if err != nil {
			return err
		}
		if current.IsPaid() {
			return fmt.Errorf("%s: %w", current.BillNumber, core.ErrAlreadyPaid)
		}
		bill, err = tx.Bills().UpdateBill(ctx, markPaid(current, req.Mode, date))
		if err != nil {
			return fmt.Errorf("update bill: %w", err)
		}
		if req.RecordPayment {
			p, err := tx.Payments().CreatePayment(ctx, paymentFor(current, req, date, core.PaymentCommitted))
			if err != nil {
				return fmt.Errorf("create payment: %w", err)
			}
			payment = &p
		}
		return nil
	})
	return bill, payment, err
}

// markPaidTwoPhase writes a pending payment, flips the bill, then commits
// the payment. A failed bill update deletes the pending payment again.
func (l *Lifecycle) markPaidTwoPhase(ctx context.Context, req MarkPaidRequest, date core.Date) (core.Bill, *core.Payment, error) {
	current, err := l.store.GetBill(ctx, req.BillID)
	if err != nil {
		return core.Bill{}, nil, err
	}
	if current.IsPaid() {
		return core.Bill{}, nil, fmt.Errorf("%s: %w", current.BillNumber, core.ErrAlreadyPaid)
	}

	var pending *core.Payment
	if req.RecordPayment {
		p, err := l.store.CreatePayment(ctx, paymentFor(current, req, date, core.PaymentPending))
		if err != nil {
			return core.Bill{}, nil, fmt.Errorf("create payment: %w", err)
		}
		pending = &p
	}

	bill, err := l.store.UpdateBill(ctx, markPaid(current, req.Mode, date))
	if err != nil {
		if pending != nil {
			if delErr := l.store.DeletePayment(ctx, pending.ID); delErr != nil {
				l.logger.ErrorContext(ctx, "Failed to roll back pending payment",
					log.FieldBillID, current.ID,
					"payment_id", pending.ID,
					log.FieldError, delErr)
			}
		}
		return core.Bill{}, nil, fmt.Errorf("update bill: %w", err)
	}

	if pending == nil {
		return bill, nil, nil
	}
	pending.State = core.PaymentCommitted
	committed, err := l.store.UpdatePayment(ctx, *pending)
	if err != nil {
		// Left pending; ReconcilePending commits it later.
		l.logger.ErrorContext(ctx, "Failed to commit payment",
			log.FieldBillID, bill.ID,
			"payment_id", pending.ID,
			log.FieldError, err)
		pending.State = core.PaymentPending
		return bill, pending, nil
	}
	return bill, &committed, nil
}

// ReconcileResult counts what ReconcilePending did.
type ReconcileResult struct {
	Committed int `json:"committed"`
	Removed   int `json:"removed"`
}

// ReconcilePending finishes interrupted two-phase writes older than
// olderThan: a pending payment whose bill is paid is committed, one whose
// bill is still unpaid or gone is deleted.
func (l *Lifecycle) ReconcilePending(ctx context.Context, olderThan time.Duration) (ReconcileResult, error) {
	var res ReconcileResult
	payments, err := l.store.ListPayments(ctx, records.PaymentFilter{IncludePending: true})
	if err != nil {
		return res, fmt.Errorf("list payments: %w", err)
	}
	for _, p := range payments {
		if p.State != core.PaymentPending || l.now().Sub(p.CreatedAt) < olderThan {
			continue
		}
		bill, err := l.store.GetBill(ctx, p.BillID)
		switch {
		case err == nil && bill.IsPaid():
			p.State = core.PaymentCommitted
			if _, err := l.store.UpdatePayment(ctx, p); err != nil {
				return res, fmt.Errorf("commit payment %s: %w", p.ID, err)
			}
			res.Committed++
		case err == nil || errors.Is(err, core.ErrNotFound):
			if err := l.store.DeletePayment(ctx, p.ID); err != nil {
				return res, fmt.Errorf("delete payment %s: %w", p.ID, err)
			}
			res.Removed++
		default:
			return res, fmt.Errorf("load bill %s: %w", p.BillID, err)
		}
	}
	if res.Committed > 0 || res.Removed > 0 {
		l.logger.InfoContext(ctx, "Reconciled pending payments", "committed", res.Committed, "removed", res.Removed)
	}
	return res, nil
}

func (l *Lifecycle) GetBill(ctx context.Context, id string) (core.Bill, error) {
	return l.store.GetBill(ctx, id)
}

func (l *Lifecycle) ListBills(ctx context.Context, f records.BillFilter) ([]core.Bill, error) {
	return l.store.ListBills(ctx, f)
}

func (l *Lifecycle) ListPayments(ctx context.Context, f records.PaymentFilter) ([]core.Payment, error) {
	return l.store.ListPayments(ctx, f)
}

type ModeTotal struct {
	Mode   core.PaymentMode `json:"payment_mode"`
	Count  int              `json:"count"`
	Amount decimal.Decimal  `json:"amount"`
}

type PaymentSummary struct {
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
	ByMode []ModeTotal     `json:"by_mode"`
}

// PaymentSummary totals committed payments in [from, to] by mode. Zero dates
// leave that side open.
func (l *Lifecycle) PaymentSummary(ctx context.Context, from, to core.Date) (PaymentSummary, error) {
	payments, err := l.store.ListPayments(ctx, records.PaymentFilter{From: from, To: to})
	if err != nil {
		return PaymentSummary{}, fmt.Errorf("list payments: %w", err)
	}
	byMode := map[core.PaymentMode]*ModeTotal{}
	out := PaymentSummary{Total: decimal.Zero}
	for _, m := range core.PaymentModes() {
		byMode[m] = &ModeTotal{Mode: m, Amount: decimal.Zero}
	}
	for _, p := range payments {
		out.Count++
		out.Total = out.Total.Add(p.Amount)
		if mt, ok := byMode[p.Mode]; ok {
			mt.Count++
			mt.Amount = mt.Amount.Add(p.Amount)
		}
	}
	for _, m := range core.PaymentModes() {
		out.ByMode = append(out.ByMode, *byMode[m])
	}
	return out, nil
}
