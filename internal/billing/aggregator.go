// Package billing turns milk entries into monthly bills and moves bills
// through their paid lifecycle.
package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
	"dairyflow/internal/records"
)

// AggregateRequest selects the entries of one customer over an inclusive
// date range.
type AggregateRequest struct {
	CustomerID string
	From       core.Date
	To         core.Date
	// IncludeUndelivered also counts rows whose delivered flag is false.
	IncludeUndelivered bool
	// EntriesPerDay is 1 or 2; zero means 2.
	EntriesPerDay int
}

// SessionTotal is the subtotal of one session over the range.
type SessionTotal struct {
	Session core.Session    `json:"session"`
	Entries int             `json:"entries"`
	Liters  decimal.Decimal `json:"liters"`
	Amount  decimal.Decimal `json:"amount"`
}

type Aggregation struct {
	CustomerID  string           `json:"customer_id"`
	From        core.Date        `json:"from"`
	To          core.Date        `json:"to"`
	Entries     []core.MilkEntry `json:"entries"`
	TotalLiters decimal.Decimal  `json:"total_liters"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	BySession   []SessionTotal   `json:"by_session"`
}

// Empty reports that no entry matched, which is distinct from entries that
// sum to zero.
func (a Aggregation) Empty() bool { return len(a.Entries) == 0 }

// Aggregator sums milk entries. It only reads.
type Aggregator struct {
	entries records.MilkEntryStore
}

func NewAggregator(entries records.MilkEntryStore) *Aggregator {
	return &Aggregator{entries: entries}
}

func (r AggregateRequest) validate() error {
	if strings.TrimSpace(r.CustomerID) == "" {
		return &core.ValidationError{Field: "customer_id", Msg: "is required"}
	}
	if r.From.IsZero() || r.To.IsZero() {
		return &core.ValidationError{Field: "range", Msg: "from and to are required"}
	}
	if r.To.Before(r.From.Time) {
		return &core.ValidationError{Field: "range", Msg: "to is before from"}
	}
	if r.EntriesPerDay != 0 && r.EntriesPerDay != 1 && r.EntriesPerDay != 2 {
		return &core.ValidationError{Field: "entries_per_day", Msg: "must be 1 or 2"}
	}
	return nil
}

func (a *Aggregator) Aggregate(ctx context.Context, req AggregateRequest) (Aggregation, error) {
	if err := req.validate(); err != nil {
		return Aggregation{}, err
	}

	rows, err := a.entries.ListMilkEntries(ctx, records.MilkEntryFilter{
		CustomerID:    req.CustomerID,
		From:          req.From,
		To:            req.To,
		DeliveredOnly: !req.IncludeUndelivered,
	})
	if err != nil {
		return Aggregation{}, fmt.Errorf("list milk entries: %w", err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return records.LessMilkEntry(rows[i], rows[j]) })

	out := Aggregation{
		CustomerID:  req.CustomerID,
		From:        req.From,
		To:          req.To,
		Entries:     rows,
		TotalLiters: decimal.Zero,
		TotalAmount: decimal.Zero,
	}

	sessions := map[core.Session]*SessionTotal{}
	for _, e := range rows {
		if req.EntriesPerDay == 1 && e.Session != core.Morning {
			return Aggregation{}, &core.ValidationError{
				Field: "session",
				Msg:   fmt.Sprintf("entry %s on %s is %s but one entry per day is configured", e.ID, e.Date, e.Session),
			}
		}
		qty := e.Quantity()
		amt := e.Amount()
		out.TotalLiters = out.TotalLiters.Add(qty)
		out.TotalAmount = out.TotalAmount.Add(amt)

		st, ok := sessions[e.Session]
		if !ok {
			st = &SessionTotal{Session: e.Session, Liters: decimal.Zero, Amount: decimal.Zero}
			sessions[e.Session] = st
		}
		st.Entries++
		st.Liters = st.Liters.Add(qty)
		st.Amount = st.Amount.Add(amt)
	}
	out.TotalAmount = core.RoundMoney(out.TotalAmount)

	for _, s := range []core.Session{core.Morning, core.Evening} {
		if st, ok := sessions[s]; ok {
			out.BySession = append(out.BySession, *st)
		}
	}
	return out, nil
}
