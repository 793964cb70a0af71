package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
	"dairyflow/internal/settings"
)

// AppSource supplies the delivery model (entries per day).
type AppSource interface {
	App() settings.App
}

type MilkStore interface {
	records.CustomerStore
	records.MilkEntryStore
}

// Slot identifies one delivery: a customer, a day and a session.
type Slot struct {
	CustomerID string       `json:"customer_id"`
	Date       core.Date    `json:"date"`
	Session    core.Session `json:"session"`
}

// MilkService maintains the daily delivery sheet.
type MilkService struct {
	store  MilkStore
	app    AppSource
	logger *log.Logger
}

func NewMilkService(store MilkStore, app AppSource, logger *log.Logger) *MilkService {
	if logger == nil {
		logger = log.Discard(log.ComponentApp)
	}
	return &MilkService{store: store, app: app, logger: logger}
}

func (s *MilkService) entriesPerDay() int {
	if s.app == nil {
		return settings.DefaultApp().EntriesPerDay
	}
	return s.app.App().EntriesPerDay
}

func (s *MilkService) checkSession(session core.Session) error {
	if !session.Valid() {
		return &core.ValidationError{Field: "session", Msg: "must be morning or evening"}
	}
	if s.entriesPerDay() == 1 && session != core.Morning {
		return &core.ValidationError{Field: "session", Msg: "only morning is recorded with one entry per day"}
	}
	return nil
}

func (s *MilkService) checkSlot(slot Slot) error {
	if slot.CustomerID == "" {
		return &core.ValidationError{Field: "customer_id", Msg: "is required"}
	}
	if err := slot.Date.Validate(); err != nil {
		return err
	}
	return s.checkSession(slot.Session)
}

// defaultEntry builds the row a customer's standing order implies. The daily
// quantity is split evenly across sessions.
func (s *MilkService) defaultEntry(c core.Customer, date core.Date, session core.Session) core.MilkEntry {
	regular := c.DailyQuantity
	if n := s.entriesPerDay(); n > 1 {
		regular = regular.Div(decimal.NewFromInt(int64(n))).Round(3)
	}
	return core.MilkEntry{
		CustomerID:      c.ID,
		Date:            date,
		Session:         session,
		RegularQuantity: regular,
		ExtraQuantity:   decimal.Zero,
		RatePerLiter:    c.RatePerLiter,
	}.WithComputedTotal()
}

func (s *MilkService) find(ctx context.Context, slot Slot) (core.MilkEntry, bool, error) {
	entries, err := s.store.ListMilkEntries(ctx, records.MilkEntryFilter{
		CustomerID: slot.CustomerID, From: slot.Date, To: slot.Date, Session: slot.Session,
	})
	if err != nil {
		return core.MilkEntry{}, false, fmt.Errorf("list milk entries: %w", err)
	}
	if len(entries) == 0 {
		return core.MilkEntry{}, false, nil
	}
	return entries[0], true, nil
}

// Day lists every entry recorded on date, optionally for one session.
func (s *MilkService) Day(ctx context.Context, date core.Date, session core.Session) ([]core.MilkEntry, error) {
	if err := date.Validate(); err != nil {
		return nil, err
	}
	if session != "" {
		if err := s.checkSession(session); err != nil {
			return nil, err
		}
	}
	return s.store.ListMilkEntries(ctx, records.MilkEntryFilter{From: date, To: date, Session: session})
}

type SeedResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// SeedDay creates an undelivered entry from each active customer's defaults
// for every customer that has none in the slot yet. Existing rows are kept.
func (s *MilkService) SeedDay(ctx context.Context, date core.Date, session core.Session) (SeedResult, error) {
	var res SeedResult
	if err := date.Validate(); err != nil {
		return res, err
	}
	if err := s.checkSession(session); err != nil {
		return res, err
	}
	customers, err := s.store.ListCustomers(ctx, records.CustomerFilter{ActiveOnly: true})
	if err != nil {
		return res, fmt.Errorf("list customers: %w", err)
	}
	existing, err := s.store.ListMilkEntries(ctx, records.MilkEntryFilter{From: date, To: date, Session: session})
	if err != nil {
		return res, fmt.Errorf("list milk entries: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, e := range existing {
		have[e.CustomerID] = true
	}

	for _, c := range customers {
		if have[c.ID] {
			res.Existing++
			continue
		}
		if _, err := s.store.UpsertMilkEntry(ctx, s.defaultEntry(c, date, session)); err != nil {
			return res, fmt.Errorf("seed entry for %s: %w", c.ID, err)
		}
		res.Created++
	}
	s.logger.InfoContext(ctx, "Daily sheet seeded",
		"date", date.String(),
		"session", string(session),
		"created", res.Created,
		"existing", res.Existing)
	return res, nil
}

// ToggleDelivery flips the delivered flag of the slot. A slot with no entry
// is created from the customer's defaults and marked delivered.
func (s *MilkService) ToggleDelivery(ctx context.Context, slot Slot) (core.MilkEntry, error) {
	if err := s.checkSlot(slot); err != nil {
		return core.MilkEntry{}, err
	}
	e, ok, err := s.find(ctx, slot)
	if err != nil {
		return core.MilkEntry{}, err
	}
	if !ok {
		c, err := s.store.GetCustomer(ctx, slot.CustomerID)
		if err != nil {
			return core.MilkEntry{}, err
		}
		e = s.defaultEntry(c, slot.Date, slot.Session)
		e.Delivered = true
		return s.store.UpsertMilkEntry(ctx, e)
	}
	e.Delivered = !e.Delivered
	return s.store.UpdateMilkEntry(ctx, e)
}

// SetExtraQuantity records extra liters for the slot, clamping negatives to
// zero and recomputing the total at the entry's own rate.
func (s *MilkService) SetExtraQuantity(ctx context.Context, slot Slot, extra decimal.Decimal) (core.MilkEntry, error) {
	if err := s.checkSlot(slot); err != nil {
		return core.MilkEntry{}, err
	}
	if extra.IsNegative() {
		extra = decimal.Zero
	}
	e, ok, err := s.find(ctx, slot)
	if err != nil {
		return core.MilkEntry{}, err
	}
	if !ok {
		c, err := s.store.GetCustomer(ctx, slot.CustomerID)
		if err != nil {
			return core.MilkEntry{}, err
		}
		e = s.defaultEntry(c, slot.Date, slot.Session)
		e.ExtraQuantity = extra.Round(3)
		return s.store.UpsertMilkEntry(ctx, e.WithComputedTotal())
	}
	e.ExtraQuantity = extra.Round(3)
	return s.store.UpdateMilkEntry(ctx, e.WithComputedTotal())
}

type SessionTotal struct {
	Session core.Session    `json:"session"`
	Liters  decimal.Decimal `json:"liters"`
	Amount  decimal.Decimal `json:"amount"`
}

type DayTotals struct {
	Date     core.Date       `json:"date"`
	Sessions []SessionTotal  `json:"sessions"`
	Liters   decimal.Decimal `json:"liters"`
	Amount   decimal.Decimal `json:"amount"`
}

// DayTotals sums delivered entries on date per session.
func (s *MilkService) DayTotals(ctx context.Context, date core.Date) (DayTotals, error) {
	if err := date.Validate(); err != nil {
		return DayTotals{}, err
	}
	entries, err := s.store.ListMilkEntries(ctx, records.MilkEntryFilter{From: date, To: date, DeliveredOnly: true})
	if err != nil {
		return DayTotals{}, fmt.Errorf("list milk entries: %w", err)
	}

	sessions := []core.Session{core.Morning}
	if s.entriesPerDay() > 1 {
		sessions = append(sessions, core.Evening)
	}
	bySession := map[core.Session]*SessionTotal{}
	out := DayTotals{Date: date, Liters: decimal.Zero, Amount: decimal.Zero}
	for _, sess := range sessions {
		bySession[sess] = &SessionTotal{Session: sess, Liters: decimal.Zero, Amount: decimal.Zero}
	}
	for _, e := range entries {
		st, ok := bySession[e.Session]
		if !ok {
			continue
		}
		st.Liters = st.Liters.Add(e.Quantity())
		st.Amount = st.Amount.Add(e.Amount())
		out.Liters = out.Liters.Add(e.Quantity())
		out.Amount = out.Amount.Add(e.Amount())
	}
	for _, sess := range sessions {
		st := *bySession[sess]
		st.Amount = core.RoundMoney(st.Amount)
		out.Sessions = append(out.Sessions, st)
	}
	out.Amount = core.RoundMoney(out.Amount)
	return out, nil
}
