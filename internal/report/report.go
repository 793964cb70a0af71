// Package report builds read-only dashboard and chart views over the Record
// Store. Every view is recomputed from stored rows; nothing is cached here.
package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
)

const (
	monthLayout  = "2006-01"
	maxPnLMonths = 120
)

type Source string

const (
	SourceMilk     Source = "milk"
	SourceExpenses Source = "expenses"
)

func (s Source) Valid() bool { return s == SourceMilk || s == SourceExpenses }

// Store is the read side the reports need.
type Store interface {
	records.CustomerStore
	records.MilkEntryStore
	records.BillStore
	records.ExpenseStore
}

type SeriesRequest struct {
	From    core.Date    `json:"from"`
	To      core.Date    `json:"to"`
	GroupBy core.GroupBy `json:"group_by"`
	Source  Source       `json:"source"`
}

func (r SeriesRequest) validate() error {
	if err := validateRange(r.From, r.To); err != nil {
		return err
	}
	if !r.GroupBy.Valid() {
		return &core.ValidationError{Field: "group_by", Msg: "must be day, month or customer"}
	}
	if !r.Source.Valid() {
		return &core.ValidationError{Field: "source", Msg: "must be milk or expenses"}
	}
	if r.Source == SourceExpenses && r.GroupBy == core.GroupByCustomer {
		return &core.ValidationError{Field: "group_by", Msg: "customer grouping applies to milk only"}
	}
	return nil
}

func validateRange(from, to core.Date) error {
	if from.IsZero() || to.IsZero() {
		return &core.ValidationError{Field: "from", Msg: "date range is required"}
	}
	if to.Before(from.Time) {
		return &core.ValidationError{Field: "to", Msg: "must not be before from"}
	}
	return nil
}

type Service struct {
	store  Store
	logger *log.Logger
}

func NewService(store Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard(log.ComponentReport)
	}
	return &Service{store: store, logger: logger}
}

// Series buckets delivered milk or expenses over [From, To]. Day and month
// buckets are chronological; customer buckets are ordered by amount
// descending, then label.
func (s *Service) Series(ctx context.Context, req SeriesRequest) ([]core.SeriesPoint, error) {
	if req.Source == "" {
		req.Source = SourceMilk
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	b := newBuckets()
	switch req.Source {
	case SourceMilk:
		entries, err := s.store.ListMilkEntries(ctx, records.MilkEntryFilter{
			From: req.From, To: req.To, DeliveredOnly: true,
		})
		if err != nil {
			return nil, fmt.Errorf("list milk entries: %w", err)
		}
		var names map[string]string
		if req.GroupBy == core.GroupByCustomer {
			if names, err = s.customerNames(ctx); err != nil {
				return nil, err
			}
		}
		for _, e := range entries {
			key, label := milkBucket(req.GroupBy, e, names)
			b.add(key, label, e.Quantity(), e.Amount())
		}
	case SourceExpenses:
		expenses, err := s.store.ListExpenses(ctx, records.ExpenseFilter{From: req.From, To: req.To})
		if err != nil {
			return nil, fmt.Errorf("list expenses: %w", err)
		}
		for _, e := range expenses {
			label := dateLabel(req.GroupBy, e.Date)
			b.add(label, label, decimal.Zero, e.Amount)
		}
	}
	return b.points(req.GroupBy), nil
}

func (s *Service) customerNames(ctx context.Context) (map[string]string, error) {
	customers, err := s.store.ListCustomers(ctx, records.CustomerFilter{})
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.ID] = c.Name
	}
	return names, nil
}

// milkBucket returns the bucket key and display label for e. Customer buckets
// are keyed by ID so customers sharing a name stay separate.
func milkBucket(g core.GroupBy, e core.MilkEntry, names map[string]string) (key, label string) {
	if g == core.GroupByCustomer {
		if n, ok := names[e.CustomerID]; ok {
			return e.CustomerID, n
		}
		return e.CustomerID, e.CustomerID
	}
	label = dateLabel(g, e.Date)
	return label, label
}

func dateLabel(g core.GroupBy, d core.Date) string {
	if g == core.GroupByMonth {
		return d.Format(monthLayout)
	}
	return d.String()
}

type bucket struct {
	key   string
	point core.SeriesPoint
}

type buckets struct {
	order []string
	byKey map[string]*bucket
}

func newBuckets() *buckets {
	return &buckets{byKey: map[string]*bucket{}}
}

func (b *buckets) add(key, label string, liters, amount decimal.Decimal) {
	bk, ok := b.byKey[key]
	if !ok {
		bk = &bucket{key: key, point: core.SeriesPoint{Label: label, TotalLiters: decimal.Zero, TotalAmount: decimal.Zero}}
		b.byKey[key] = bk
		b.order = append(b.order, key)
	}
	bk.point.TotalLiters = bk.point.TotalLiters.Add(liters)
	bk.point.TotalAmount = bk.point.TotalAmount.Add(amount)
}

func (b *buckets) points(g core.GroupBy) []core.SeriesPoint {
	all := make([]bucket, 0, len(b.order))
	for _, key := range b.order {
		bk := *b.byKey[key]
		bk.point.TotalAmount = core.RoundMoney(bk.point.TotalAmount)
		all = append(all, bk)
	}
	if g == core.GroupByCustomer {
		sort.SliceStable(all, func(i, j int) bool {
			if c := all[i].point.TotalAmount.Cmp(all[j].point.TotalAmount); c != 0 {
				return c > 0
			}
			if all[i].point.Label != all[j].point.Label {
				return all[i].point.Label < all[j].point.Label
			}
			return all[i].key < all[j].key
		})
	} else {
		// ISO labels sort chronologically.
		sort.SliceStable(all, func(i, j int) bool { return all[i].key < all[j].key })
	}
	out := make([]core.SeriesPoint, len(all))
	for i, bk := range all {
		out[i] = bk.point
	}
	return out
}

// ExpensesByCategory totals expenses in [from, to] per category name, largest
// first. Expenses without a category are reported as "Uncategorized".
func (s *Service) ExpensesByCategory(ctx context.Context, from, to core.Date) ([]core.CategoryAmount, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpenses(ctx, records.ExpenseFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	totals := map[string]decimal.Decimal{}
	for _, e := range expenses {
		name, ok := names[e.CategoryID]
		if !ok {
			name = "Uncategorized"
		}
		totals[name] = totals[name].Add(e.Amount)
	}
	out := make([]core.CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		out = append(out, core.CategoryAmount{Name: name, Amount: core.RoundMoney(amount)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// MonthlyPnL returns one overview per month touched by [from, to]. Revenue is
// the sum of bill final amounts for the month, liters the delivered volume.
func (s *Service) MonthlyPnL(ctx context.Context, from, to core.Date) ([]core.MonthOverview, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	first, last := core.PeriodOf(from), core.PeriodOf(to)
	if (last.Year-first.Year)*12+last.Month-first.Month >= maxPnLMonths {
		return nil, &core.ValidationError{Field: "to", Msg: fmt.Sprintf("range exceeds %d months", maxPnLMonths)}
	}

	var (
		entries  []core.MilkEntry
		expenses []core.Expense
		bills    []core.Bill
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.store.ListMilkEntries(gctx, records.MilkEntryFilter{
			From: first.FirstDay(), To: last.LastDay(), DeliveredOnly: true,
		})
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpenses(gctx, records.ExpenseFilter{From: first.FirstDay(), To: last.LastDay()})
		return err
	})
	g.Go(func() error {
		var err error
		bills, err = s.store.ListBills(gctx, records.BillFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load monthly totals: %w", err)
	}

	var months []core.MonthOverview
	index := map[string]int{}
	for p := first; p.Key() <= last.Key(); p = p.Next() {
		index[p.Key()] = len(months)
		months = append(months, core.MonthOverview{
			Period:   p,
			Liters:   decimal.Zero,
			Revenue:  decimal.Zero,
			Expenses: decimal.Zero,
			Profit:   decimal.Zero,
		})
	}
	for _, e := range entries {
		if i, ok := index[core.PeriodOf(e.Date).Key()]; ok {
			months[i].Liters = months[i].Liters.Add(e.Quantity())
		}
	}
	for _, e := range expenses {
		if i, ok := index[core.PeriodOf(e.Date).Key()]; ok {
			months[i].Expenses = months[i].Expenses.Add(e.Amount)
		}
	}
	for _, b := range bills {
		if i, ok := index[b.Period().Key()]; ok {
			months[i].Revenue = months[i].Revenue.Add(b.FinalAmount)
		}
	}
	for i := range months {
		months[i].Revenue = core.RoundMoney(months[i].Revenue)
		months[i].Expenses = core.RoundMoney(months[i].Expenses)
		months[i].Profit = months[i].Revenue.Sub(months[i].Expenses)
	}
	return months, nil
}
