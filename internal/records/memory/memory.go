package memory

import (
	"bufio"
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dairyflow/internal/core"
	"dairyflow/internal/records"
)

type entryKey struct {
	customerID string
	date       string
	session    core.Session
}

type billKey struct {
	customerID  string
	year, month int
}

// Store is an in-process Record Store. Uniqueness of bills per period and of
// entries per slot is enforced by index maps, mirroring the SQL constraints.
type Store struct {
	mu sync.Mutex

	customers  map[string]core.Customer
	entries    map[string]core.MilkEntry
	entryIndex map[entryKey]string
	bills      map[string]core.Bill
	billIndex  map[billKey]string
	payments   map[string]core.Payment
	expenses   map[string]core.Expense
	categories map[string]core.ExpenseCategory
	settings   map[string][]byte

	now   func() time.Time
	newID func() string
}

var (
	_ records.Store      = (*Store)(nil)
	_ records.Transactor = (*Store)(nil)
)

func New() *Store {
	return &Store{
		customers:  map[string]core.Customer{},
		entries:    map[string]core.MilkEntry{},
		entryIndex: map[entryKey]string{},
		bills:      map[string]core.Bill{},
		billIndex:  map[billKey]string{},
		payments:   map[string]core.Payment{},
		expenses:   map[string]core.Expense{},
		categories: map[string]core.ExpenseCategory{},
		settings:   map[string][]byte{},
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// NewFromFiles creates a store with expense categories seeded from
// base/seed_categories.txt, one "name" or "name|icon" per line.
func NewFromFiles(base string) *Store {
	s := New()
	lines := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(lines) == 0 {
		lines = DefaultCategories
	}
	for _, line := range lines {
		name, icon, _ := strings.Cut(line, "|")
		_, _ = s.CreateCategory(context.Background(), core.ExpenseCategory{Name: strings.TrimSpace(name), Icon: strings.TrimSpace(icon)})
	}
	return s
}

// DefaultCategories seeds a fresh store.
var DefaultCategories = []string{
	"Feed|wheat", "Veterinary|stethoscope", "Labour|users", "Transport|truck",
	"Equipment|wrench", "Utilities|zap", "Other|circle",
}

// WithClock overrides the timestamp source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Customers

func (s *Store) ListCustomers(_ context.Context, f records.CustomerFilter) ([]core.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (core.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return core.Customer{}, fmt.Errorf("customer %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) CreateCustomer(_ context.Context, c core.Customer) (core.Customer, error) {
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = s.newID()
	}
	if _, exists := s.customers[c.ID]; exists {
		return core.Customer{}, fmt.Errorf("customer %s: %w", c.ID, core.ErrConflict)
	}
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.customers[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCustomer(_ context.Context, c core.Customer) (core.Customer, error) {
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.customers[c.ID]
	if !ok {
		return core.Customer{}, fmt.Errorf("customer %s: %w", c.ID, core.ErrNotFound)
	}
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = s.now()
	s.customers[c.ID] = c
	return c, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[id]; !ok {
		return fmt.Errorf("customer %s: %w", id, core.ErrNotFound)
	}
	for _, b := range s.bills {
		if b.CustomerID == id {
			return fmt.Errorf("customer %s has bills: %w", id, core.ErrConflict)
		}
	}
	for _, e := range s.entries {
		if e.CustomerID == id {
			return fmt.Errorf("customer %s has milk entries: %w", id, core.ErrConflict)
		}
	}
	delete(s.customers, id)
	return nil
}

// Milk entries

func (s *Store) ListMilkEntries(_ context.Context, f records.MilkEntryFilter) ([]core.MilkEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.MilkEntry, 0)
	for _, e := range s.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return records.LessMilkEntry(out[i], out[j]) })
	return out, nil
}

func (s *Store) GetMilkEntry(_ context.Context, id string) (core.MilkEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return core.MilkEntry{}, fmt.Errorf("milk entry %s: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (s *Store) UpsertMilkEntry(_ context.Context, e core.MilkEntry) (core.MilkEntry, error) {
	if err := e.Validate(); err != nil {
		return core.MilkEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[e.CustomerID]; !ok {
		return core.MilkEntry{}, fmt.Errorf("customer %s: %w", e.CustomerID, core.ErrNotFound)
	}
	key := entryKey{customerID: e.CustomerID, date: e.Date.String(), session: e.Session}
	if id, exists := s.entryIndex[key]; exists {
		e.ID = id
		e.CreatedAt = s.entries[id].CreatedAt
	} else {
		e.ID = s.newID()
		e.CreatedAt = s.now()
		s.entryIndex[key] = e.ID
	}
	s.entries[e.ID] = e
	return e, nil
}

func (s *Store) UpdateMilkEntry(_ context.Context, e core.MilkEntry) (core.MilkEntry, error) {
	if err := e.Validate(); err != nil {
		return core.MilkEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[e.ID]
	if !ok {
		return core.MilkEntry{}, fmt.Errorf("milk entry %s: %w", e.ID, core.ErrNotFound)
	}
	oldKey := entryKey{customerID: prev.CustomerID, date: prev.Date.String(), session: prev.Session}
	newKey := entryKey{customerID: e.CustomerID, date: e.Date.String(), session: e.Session}
	if newKey != oldKey {
		if _, taken := s.entryIndex[newKey]; taken {
			return core.MilkEntry{}, fmt.Errorf("milk entry for %s %s %s: %w", e.CustomerID, e.Date, e.Session, core.ErrConflict)
		}
		delete(s.entryIndex, oldKey)
		s.entryIndex[newKey] = e.ID
	}
	e.CreatedAt = prev.CreatedAt
	s.entries[e.ID] = e
	return e, nil
}

// Bills

func (s *Store) ListBills(_ context.Context, f records.BillFilter) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listBills(f), nil
}

func (s *Store) listBills(f records.BillFilter) []core.Bill {
	out := make([]core.Bill, 0)
	for _, b := range s.bills {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month > out[j].Month
		}
		return out[i].BillNumber < out[j].BillNumber
	})
	return out
}

func (s *Store) GetBill(_ context.Context, id string) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBill(id)
}

func (s *Store) getBill(id string) (core.Bill, error) {
	b, ok := s.bills[id]
	if !ok {
		return core.Bill{}, fmt.Errorf("bill %s: %w", id, core.ErrNotFound)
	}
	return b, nil
}

func (s *Store) FindBill(_ context.Context, customerID string, p core.Period) (core.Bill, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.billIndex[billKey{customerID: customerID, year: p.Year, month: p.Month}]
	if !ok {
		return core.Bill{}, false, nil
	}
	return s.bills[id], true, nil
}

func (s *Store) CreateBill(_ context.Context, b core.Bill) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBill(b)
}

func (s *Store) createBill(b core.Bill) (core.Bill, error) {
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	if _, ok := s.customers[b.CustomerID]; !ok {
		return core.Bill{}, fmt.Errorf("customer %s: %w", b.CustomerID, core.ErrNotFound)
	}
	key := billKey{customerID: b.CustomerID, year: b.Year, month: b.Month}
	if _, exists := s.billIndex[key]; exists {
		return core.Bill{}, fmt.Errorf("customer %s %s: %w", b.CustomerID, b.Period().Key(), core.ErrDuplicateBill)
	}
	for _, other := range s.bills {
		if other.BillNumber == b.BillNumber {
			return core.Bill{}, fmt.Errorf("bill number %s: %w", b.BillNumber, core.ErrConflict)
		}
	}
	if b.ID == "" {
		b.ID = s.newID()
	}
	b.CreatedAt = s.now()
	b.UpdatedAt = b.CreatedAt
	s.bills[b.ID] = b
	s.billIndex[key] = b.ID
	return b, nil
}

func (s *Store) UpdateBill(_ context.Context, b core.Bill) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBill(b)
}

func (s *Store) updateBill(b core.Bill) (core.Bill, error) {
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	prev, ok := s.bills[b.ID]
	if !ok {
		return core.Bill{}, fmt.Errorf("bill %s: %w", b.ID, core.ErrNotFound)
	}
	if prev.CustomerID != b.CustomerID || prev.Year != b.Year || prev.Month != b.Month {
		return core.Bill{}, fmt.Errorf("bill %s: period and customer are immutable: %w", b.ID, core.ErrConflict)
	}
	b.CreatedAt = prev.CreatedAt
	b.UpdatedAt = s.now()
	s.bills[b.ID] = b
	return b, nil
}

// Payments

func (s *Store) ListPayments(_ context.Context, f records.PaymentFilter) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPayments(f), nil
}

func (s *Store) listPayments(f records.PaymentFilter) []core.Payment {
	out := make([]core.Payment, 0)
	for _, p := range s.payments {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) CreatePayment(_ context.Context, p core.Payment) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPayment(p)
}

func (s *Store) createPayment(p core.Payment) (core.Payment, error) {
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}
	if _, ok := s.bills[p.BillID]; !ok {
		return core.Payment{}, fmt.Errorf("bill %s: %w", p.BillID, core.ErrNotFound)
	}
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.State == "" {
		p.State = core.PaymentCommitted
	}
	p.CreatedAt = s.now()
	s.payments[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePayment(_ context.Context, p core.Payment) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePayment(p)
}

func (s *Store) updatePayment(p core.Payment) (core.Payment, error) {
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}
	prev, ok := s.payments[p.ID]
	if !ok {
		return core.Payment{}, fmt.Errorf("payment %s: %w", p.ID, core.ErrNotFound)
	}
	p.CreatedAt = prev.CreatedAt
	s.payments[p.ID] = p
	return p, nil
}

func (s *Store) DeletePayment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletePayment(id)
}

func (s *Store) deletePayment(id string) error {
	if _, ok := s.payments[id]; !ok {
		return fmt.Errorf("payment %s: %w", id, core.ErrNotFound)
	}
	delete(s.payments, id)
	return nil
}

// Expenses

func (s *Store) ListExpenses(_ context.Context, f records.ExpenseFilter) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0)
	for _, e := range s.expenses {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CategoryID != "" {
		if _, ok := s.categories[e.CategoryID]; !ok {
			return core.Expense{}, fmt.Errorf("category %s: %w", e.CategoryID, core.ErrNotFound)
		}
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	e.CreatedAt = s.now()
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ExpenseCategory, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.ExpenseCategory) (core.ExpenseCategory, error) {
	if err := c.Validate(); err != nil {
		return core.ExpenseCategory{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.categories {
		if strings.EqualFold(other.Name, c.Name) {
			return core.ExpenseCategory{}, fmt.Errorf("category %q: %w", c.Name, core.ErrConflict)
		}
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	c.CreatedAt = s.now()
	s.categories[c.ID] = c
	return c, nil
}

// DeleteCategory removes the category; expenses keep their rows with the
// category cleared, matching ON DELETE SET NULL.
func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	delete(s.categories, id)
	for eid, e := range s.expenses {
		if e.CategoryID == id {
			e.CategoryID = ""
			s.expenses[eid] = e
		}
	}
	return nil
}

// Settings

func (s *Store) GetSetting(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	if !ok {
		return nil, fmt.Errorf("setting %s: %w", key, core.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) PutSetting(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = append([]byte(nil), value...)
	return nil
}

// Transactions

// WithinTx holds the store lock for the whole of fn and restores bills and
// payments if fn fails or ctx is done by the time fn returns.
func (s *Store) WithinTx(ctx context.Context, fn func(tx records.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	bills := maps.Clone(s.bills)
	billIndex := maps.Clone(s.billIndex)
	payments := maps.Clone(s.payments)

	err := fn(txView{s: s})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.bills, s.billIndex, s.payments = bills, billIndex, payments
		return err
	}
	return nil
}

// txView calls the unlocked variants; the caller already holds s.mu.
type txView struct{ s *Store }

func (t txView) Bills() records.BillStore       { return txBills(t) }
func (t txView) Payments() records.PaymentStore { return txPayments(t) }

type txBills txView

func (t txBills) ListBills(_ context.Context, f records.BillFilter) ([]core.Bill, error) {
	return t.s.listBills(f), nil
}

func (t txBills) GetBill(_ context.Context, id string) (core.Bill, error) {
	return t.s.getBill(id)
}

func (t txBills) FindBill(_ context.Context, customerID string, p core.Period) (core.Bill, bool, error) {
	id, ok := t.s.billIndex[billKey{customerID: customerID, year: p.Year, month: p.Month}]
	if !ok {
		return core.Bill{}, false, nil
	}
	return t.s.bills[id], true, nil
}

func (t txBills) CreateBill(_ context.Context, b core.Bill) (core.Bill, error) {
	return t.s.createBill(b)
}

func (t txBills) UpdateBill(_ context.Context, b core.Bill) (core.Bill, error) {
	return t.s.updateBill(b)
}

type txPayments txView

func (t txPayments) ListPayments(_ context.Context, f records.PaymentFilter) ([]core.Payment, error) {
	return t.s.listPayments(f), nil
}

func (t txPayments) CreatePayment(_ context.Context, p core.Payment) (core.Payment, error) {
	return t.s.createPayment(p)
}

func (t txPayments) UpdatePayment(_ context.Context, p core.Payment) (core.Payment, error) {
	return t.s.updatePayment(p)
}

func (t txPayments) DeletePayment(_ context.Context, id string) error {
	return t.s.deletePayment(id)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
