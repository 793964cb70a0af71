package report

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"dairyflow/internal/core"
	"dairyflow/internal/records"
)

type SessionLiters struct {
	Session core.Session    `json:"session"`
	Liters  decimal.Decimal `json:"liters"`
	Amount  decimal.Decimal `json:"amount"`
}

type MilkTypeCount struct {
	MilkType  core.MilkType `json:"milk_type"`
	Customers int           `json:"customers"`
}

// Dashboard is the landing-page snapshot for one day.
type Dashboard struct {
	Date            core.Date       `json:"date"`
	ActiveCustomers int             `json:"active_customers"`
	TodayLiters     decimal.Decimal `json:"today_liters"`
	TodayBySession  []SessionLiters `json:"today_by_session"`
	// MonthRevenue is the delivered milk amount from the first of the month
	// up to Date.
	MonthRevenue decimal.Decimal `json:"month_revenue"`
	UnpaidBills  int             `json:"unpaid_bills"`
	UnpaidAmount decimal.Decimal `json:"unpaid_amount"`
	MilkTypes    []MilkTypeCount `json:"milk_types"`
}

// Dashboard loads the independent figures concurrently.
func (s *Service) Dashboard(ctx context.Context, date core.Date) (Dashboard, error) {
	if err := date.Validate(); err != nil {
		return Dashboard{}, err
	}

	var (
		customers []core.Customer
		month     []core.MilkEntry
		unpaid    []core.Bill
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customers, err = s.store.ListCustomers(gctx, records.CustomerFilter{ActiveOnly: true})
		if err != nil {
			return fmt.Errorf("list customers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		month, err = s.store.ListMilkEntries(gctx, records.MilkEntryFilter{
			From: core.PeriodOf(date).FirstDay(), To: date, DeliveredOnly: true,
		})
		if err != nil {
			return fmt.Errorf("list milk entries: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		unpaid, err = s.store.ListBills(gctx, records.BillFilter{Status: core.Unpaid})
		if err != nil {
			return fmt.Errorf("list bills: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		Date:            date,
		ActiveCustomers: len(customers),
		TodayLiters:     decimal.Zero,
		MonthRevenue:    decimal.Zero,
		UnpaidBills:     len(unpaid),
		UnpaidAmount:    decimal.Zero,
	}

	sessions := []core.Session{core.Morning, core.Evening}
	today := map[core.Session]*SessionLiters{}
	for _, sess := range sessions {
		today[sess] = &SessionLiters{Session: sess, Liters: decimal.Zero, Amount: decimal.Zero}
	}
	for _, e := range month {
		d.MonthRevenue = d.MonthRevenue.Add(e.Amount())
		if !e.Date.Equal(date.Time) {
			continue
		}
		if sl, ok := today[e.Session]; ok {
			sl.Liters = sl.Liters.Add(e.Quantity())
			sl.Amount = sl.Amount.Add(e.Amount())
		}
		d.TodayLiters = d.TodayLiters.Add(e.Quantity())
	}
	for _, sess := range sessions {
		d.TodayBySession = append(d.TodayBySession, *today[sess])
	}
	d.MonthRevenue = core.RoundMoney(d.MonthRevenue)

	for _, b := range unpaid {
		d.UnpaidAmount = d.UnpaidAmount.Add(b.FinalAmount)
	}

	counts := map[core.MilkType]int{}
	for _, c := range customers {
		counts[c.MilkType]++
	}
	for _, mt := range []core.MilkType{core.Cow, core.Buffalo} {
		d.MilkTypes = append(d.MilkTypes, MilkTypeCount{MilkType: mt, Customers: counts[mt]})
	}

	s.logger.DebugContext(ctx, "Dashboard computed",
		"date", date.String(),
		"active_customers", d.ActiveCustomers,
		"unpaid_bills", d.UnpaidBills)
	return d, nil
}
