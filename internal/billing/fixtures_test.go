package billing

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dairyflow/internal/core"
	"dairyflow/internal/records/memory"
	"dairyflow/internal/settings"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixedDefaults struct {
	billing settings.Billing
	app     settings.App
}

func (f fixedDefaults) Billing() settings.Billing { return f.billing }
func (f fixedDefaults) App() settings.App         { return f.app }

func plainDefaults() fixedDefaults {
	return fixedDefaults{app: settings.DefaultApp()}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.BillEvent
}

func (p *recordingPublisher) PublishBillEvent(_ context.Context, e core.BillEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []core.BillEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.BillEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func addCustomer(t *testing.T, s *memory.Store, name string) core.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), core.Customer{
		Name:          name,
		MilkType:      core.Cow,
		DailyQuantity: dec("5"),
		RatePerLiter:  dec("60"),
		Active:        true,
	})
	require.NoError(t, err)
	return c
}

func addEntry(t *testing.T, s *memory.Store, customerID string, date core.Date, session core.Session, regular, extra, rate string, delivered bool) core.MilkEntry {
	t.Helper()
	e, err := s.UpsertMilkEntry(context.Background(), core.MilkEntry{
		CustomerID:      customerID,
		Date:            date,
		Session:         session,
		RegularQuantity: dec(regular),
		ExtraQuantity:   dec(extra),
		RatePerLiter:    dec(rate),
		Delivered:       delivered,
	}.WithComputedTotal())
	require.NoError(t, err)
	return e
}
