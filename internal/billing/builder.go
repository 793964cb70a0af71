package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
	"dairyflow/internal/settings"
)

// Defaults supplies the billing and session configuration at call time.
type Defaults interface {
	Billing() settings.Billing
	App() settings.App
}

// Publisher announces committed bill changes.
type Publisher interface {
	PublishBillEvent(ctx context.Context, e core.BillEvent) error
}

type BuilderStore interface {
	records.CustomerStore
	records.MilkEntryStore
	records.BillStore
}

type GenerateRequest struct {
	CustomerID string `json:"customer_id"`
	Month      int    `json:"month"`
	Year       int    `json:"year"`
	// Discount and LateFee override the billing settings when set.
	Discount           *decimal.Decimal `json:"discount,omitempty"`
	LateFee            *decimal.Decimal `json:"late_fee,omitempty"`
	IncludeUndelivered bool             `json:"include_undelivered,omitempty"`
}

func (r GenerateRequest) Period() core.Period {
	return core.Period{Year: r.Year, Month: r.Month}
}

func (r GenerateRequest) validate() error {
	if strings.TrimSpace(r.CustomerID) == "" {
		return &core.ValidationError{Field: "customer_id", Msg: "is required"}
	}
	if err := r.Period().Validate(); err != nil {
		return err
	}
	if r.Discount != nil && r.Discount.IsNegative() {
		return &core.ValidationError{Field: "discount", Msg: "cannot be negative"}
	}
	if r.LateFee != nil && r.LateFee.IsNegative() {
		return &core.ValidationError{Field: "late_fee", Msg: "cannot be negative"}
	}
	return nil
}

// Builder creates bills from aggregated milk entries.
type Builder struct {
	store      BuilderStore
	aggregator *Aggregator
	defaults   Defaults
	events     Publisher
	logger     *log.Logger
	guard      *inflight
	suffix     func() string
}

func NewBuilder(store BuilderStore, defaults Defaults, events Publisher, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Discard(log.ComponentBilling)
	}
	return &Builder{
		store:      store,
		aggregator: NewAggregator(store),
		defaults:   defaults,
		events:     events,
		logger:     logger,
		guard:      newInflight(),
		suffix:     randomSuffix,
	}
}

func randomSuffix() string {
	return uuid.NewString()[:8]
}

// BillNumber formats BILL-{year}{month:02}-{suffix}.
func BillNumber(p core.Period, suffix string) string {
	return fmt.Sprintf("BILL-%04d%02d-%s", p.Year, p.Month, suffix)
}

// FinalAmount is total - discount + lateFee, rounded to paise.
func FinalAmount(total, discount, lateFee decimal.Decimal) decimal.Decimal {
	return core.RoundMoney(total.Sub(discount).Add(lateFee))
}

// Adjust resolves the discount and late fee for a bill total. Explicit
// values win over settings; the discount never pushes the final amount
// below zero.
func Adjust(total decimal.Decimal, discount, lateFee *decimal.Decimal, cfg settings.Billing) (d, l, final decimal.Decimal) {
	switch {
	case discount != nil:
		d = *discount
	case cfg.DiscountEnabled:
		d = core.RoundMoney(total.Mul(cfg.DiscountPercentage).Div(decimal.NewFromInt(100)))
	default:
		d = decimal.Zero
	}
	switch {
	case lateFee != nil:
		l = *lateFee
	case cfg.IncludeLateFee:
		l = cfg.LateFeeAmount
	default:
		l = decimal.Zero
	}
	d, l = core.RoundMoney(d), core.RoundMoney(l)
	if ceiling := total.Add(l); d.GreaterThan(ceiling) {
		d = core.RoundMoney(ceiling)
	}
	return d, l, FinalAmount(total, d, l)
}

// GenerateBill creates the unpaid bill of one customer for one month.
func (b *Builder) GenerateBill(ctx context.Context, req GenerateRequest) (core.Bill, error) {
	if err := req.validate(); err != nil {
		return core.Bill{}, err
	}
	period := req.Period()

	key := req.CustomerID + "|" + period.Key()
	if !b.guard.acquire(key) {
		return core.Bill{}, fmt.Errorf("bill for %s %s is already being generated: %w", req.CustomerID, period.Key(), core.ErrConflict)
	}
	defer b.guard.release(key)

	if _, err := b.store.GetCustomer(ctx, req.CustomerID); err != nil {
		return core.Bill{}, err
	}

	if existing, found, err := b.store.FindBill(ctx, req.CustomerID, period); err != nil {
		return core.Bill{}, fmt.Errorf("check existing bill: %w", err)
	} else if found {
		return core.Bill{}, fmt.Errorf("%s for %s: %w", existing.BillNumber, period.Label(), core.ErrDuplicateBill)
	}

	agg, err := b.aggregator.Aggregate(ctx, AggregateRequest{
		CustomerID:         req.CustomerID,
		From:               period.FirstDay(),
		To:                 period.LastDay(),
		IncludeUndelivered: req.IncludeUndelivered,
		EntriesPerDay:      b.entriesPerDay(),
	})
	if err != nil {
		return core.Bill{}, err
	}
	if agg.Empty() {
		return core.Bill{}, fmt.Errorf("%s: %w", period.Label(), core.ErrNoEntries)
	}

	discount, lateFee, final := Adjust(agg.TotalAmount, req.Discount, req.LateFee, b.billingDefaults())

	bill, err := b.store.CreateBill(ctx, core.Bill{
		BillNumber:  BillNumber(period, b.suffix()),
		CustomerID:  req.CustomerID,
		Month:       period.Month,
		Year:        period.Year,
		TotalLiters: agg.TotalLiters,
		TotalAmount: agg.TotalAmount,
		Discount:    discount,
		LateFee:     lateFee,
		FinalAmount: final,
		Status:      core.Unpaid,

		IncludeUndelivered: req.IncludeUndelivered,
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateBill) {
			return core.Bill{}, err
		}
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}

	log.NewStructuredLogger(b.logger).LogBillGenerated(ctx, bill.ID, bill.BillNumber, bill.CustomerID,
		period.Key(), bill.FinalAmount.StringFixed(2))
	b.publish(ctx, core.BillGenerated, bill)

	return bill, nil
}

func (b *Builder) entriesPerDay() int {
	if b.defaults == nil {
		return settings.DefaultApp().EntriesPerDay
	}
	return b.defaults.App().EntriesPerDay
}

func (b *Builder) billingDefaults() settings.Billing {
	if b.defaults == nil {
		return settings.Billing{}
	}
	return b.defaults.Billing()
}

func (b *Builder) publish(ctx context.Context, t core.BillEventType, bill core.Bill) {
	publish(ctx, b.events, b.logger, t, bill)
}

func publish(ctx context.Context, p Publisher, logger *log.Logger, t core.BillEventType, bill core.Bill) {
	if p == nil {
		logger.DebugContext(ctx, "No event publisher configured, skipping", log.FieldEventType, string(t))
		return
	}
	err := p.PublishBillEvent(ctx, core.BillEvent{
		Type:       t,
		BillID:     bill.ID,
		BillNumber: bill.BillNumber,
		CustomerID: bill.CustomerID,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		// The bill is committed; the mirror catches up on the next event.
		logger.ErrorContext(ctx, "Failed to publish bill event",
			log.FieldEventType, string(t),
			log.FieldBillID, bill.ID,
			log.FieldError, err)
	}
}

// OutcomeStatus classifies one customer's result in a batch run.
type OutcomeStatus string

const (
	OutcomeCreated          OutcomeStatus = "created"
	OutcomeSkippedDuplicate OutcomeStatus = "skipped_duplicate"
	OutcomeSkippedEmpty     OutcomeStatus = "skipped_empty"
	OutcomeFailed           OutcomeStatus = "failed"
)

type Outcome struct {
	CustomerID   string        `json:"customer_id"`
	CustomerName string        `json:"customer_name"`
	Status       OutcomeStatus `json:"status"`
	Bill         *core.Bill    `json:"bill,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type BatchResult struct {
	Period   core.Period `json:"period"`
	Outcomes []Outcome   `json:"outcomes"`
	Created  int         `json:"created"`
	Skipped  int         `json:"skipped"`
	Failed   int         `json:"failed"`
}

// GenerateAll bills every active customer for the period. A failure for one
// customer is recorded and the run continues.
func (b *Builder) GenerateAll(ctx context.Context, period core.Period) (BatchResult, error) {
	if err := period.Validate(); err != nil {
		return BatchResult{}, err
	}
	customers, err := b.store.ListCustomers(ctx, records.CustomerFilter{ActiveOnly: true})
	if err != nil {
		return BatchResult{}, fmt.Errorf("list active customers: %w", err)
	}

	res := BatchResult{Period: period, Outcomes: make([]Outcome, 0, len(customers))}
	for _, c := range customers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		o := Outcome{CustomerID: c.ID, CustomerName: c.Name}
		bill, err := b.GenerateBill(ctx, GenerateRequest{CustomerID: c.ID, Month: period.Month, Year: period.Year})
		switch {
		case err == nil:
			o.Status = OutcomeCreated
			o.Bill = &bill
			res.Created++
		case errors.Is(err, core.ErrDuplicateBill):
			o.Status = OutcomeSkippedDuplicate
			res.Skipped++
		case errors.Is(err, core.ErrNoEntries):
			o.Status = OutcomeSkippedEmpty
			res.Skipped++
		default:
			o.Status = OutcomeFailed
			o.Error = err.Error()
			res.Failed++
			b.logger.WarnContext(ctx, "Bill generation failed",
				log.FieldCustomerID, c.ID,
				log.FieldPeriod, period.Key(),
				log.FieldError, err)
		}
		res.Outcomes = append(res.Outcomes, o)
	}

	b.logger.InfoContext(ctx, "Batch bill generation finished",
		log.FieldPeriod, period.Key(),
		"created", res.Created,
		"skipped", res.Skipped,
		"failed", res.Failed)
	return res, nil
}
