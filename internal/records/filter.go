package records

import (
	"strings"

	"dairyflow/internal/core"
)

// Match reports whether c satisfies the filter.
func (f CustomerFilter) Match(c core.Customer) bool {
	if f.ActiveOnly && !c.Active {
		return false
	}
	if f.MilkType != "" && c.MilkType != f.MilkType {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(c.Name), q) && !strings.Contains(c.Phone, q) {
			return false
		}
	}
	return true
}

// Match reports whether e satisfies the filter.
func (f MilkEntryFilter) Match(e core.MilkEntry) bool {
	if f.CustomerID != "" && e.CustomerID != f.CustomerID {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To.Time) {
		return false
	}
	if f.Session != "" && e.Session != f.Session {
		return false
	}
	if f.DeliveredOnly && !e.Delivered {
		return false
	}
	return true
}

// BillEntries selects the entries a bill was computed from, with the
// delivery policy the bill was generated under.
func BillEntries(b core.Bill) MilkEntryFilter {
	p := b.Period()
	return MilkEntryFilter{
		CustomerID:    b.CustomerID,
		From:          p.FirstDay(),
		To:            p.LastDay(),
		DeliveredOnly: !b.IncludeUndelivered,
	}
}

// Match reports whether b satisfies the filter.
func (f BillFilter) Match(b core.Bill) bool {
	if f.CustomerID != "" && b.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Period != nil && (b.Year != f.Period.Year || b.Month != f.Period.Month) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(b.BillNumber), q) && !strings.HasPrefix(b.CustomerID, q) {
			return false
		}
	}
	return true
}

// Match reports whether p satisfies the filter.
func (f PaymentFilter) Match(p core.Payment) bool {
	if !f.IncludePending && p.State == core.PaymentPending {
		return false
	}
	if f.BillID != "" && p.BillID != f.BillID {
		return false
	}
	if f.CustomerID != "" && p.CustomerID != f.CustomerID {
		return false
	}
	if f.Mode != "" && p.Mode != f.Mode {
		return false
	}
	if !f.From.IsZero() && p.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && p.Date.After(f.To.Time) {
		return false
	}
	return true
}

// Match reports whether e satisfies the filter.
func (f ExpenseFilter) Match(e core.Expense) bool {
	if f.CategoryID != "" && e.CategoryID != f.CategoryID {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To.Time) {
		return false
	}
	return true
}

// SessionRank orders morning before evening.
func SessionRank(s core.Session) int {
	if s == core.Evening {
		return 1
	}
	return 0
}

// LessMilkEntry is the canonical entry ordering: date, session, customer.
func LessMilkEntry(a, b core.MilkEntry) bool {
	if !a.Date.Equal(b.Date.Time) {
		return a.Date.Before(b.Date.Time)
	}
	if ra, rb := SessionRank(a.Session), SessionRank(b.Session); ra != rb {
		return ra < rb
	}
	return a.CustomerID < b.CustomerID
}
