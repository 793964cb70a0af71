package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"dairyflow/internal/core"
	"dairyflow/internal/records"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	ledger
	db *sql.DB
}

var (
	_ records.Store      = (*SQLiteRepository)(nil)
	_ records.Transactor = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; a transaction owns the connection until it ends.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		ledger: ledger{q: New(db), now: time.Now, newID: uuid.NewString},
		db:     db,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithinTx runs fn inside a database transaction, rolling back when fn fails.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(tx records.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	l := ledger{q: r.q.WithTx(tx), now: r.now, newID: r.newID}
	if err := fn(sqlTx{l}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqlTx struct{ l ledger }

func (t sqlTx) Bills() records.BillStore       { return t.l }
func (t sqlTx) Payments() records.PaymentStore { return t.l }

// ledger implements every table port over a Queries handle, which is either
// the pool or an open transaction.
type ledger struct {
	q     *Queries
	now   func() time.Time
	newID func() string
}

// Customers

func (l ledger) ListCustomers(ctx context.Context, f records.CustomerFilter) ([]core.Customer, error) {
	out, err := l.q.ListCustomers(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return out, nil
}

func (l ledger) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	c, err := l.q.GetCustomer(ctx, id)
	return c, mapErr(err, "customer "+id)
}

func (l ledger) CreateCustomer(ctx context.Context, c core.Customer) (core.Customer, error) {
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	if c.ID == "" {
		c.ID = l.newID()
	}
	c.CreatedAt = l.now()
	c.UpdatedAt = c.CreatedAt
	if err := l.q.InsertCustomer(ctx, c); err != nil {
		return core.Customer{}, mapInsertErr(err, "customer "+c.ID)
	}
	return c, nil
}

func (l ledger) UpdateCustomer(ctx context.Context, c core.Customer) (core.Customer, error) {
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	c.UpdatedAt = l.now()
	created, err := l.q.UpdateCustomer(ctx, c)
	if err != nil {
		return core.Customer{}, mapErr(err, "customer "+c.ID)
	}
	c.CreatedAt = created
	return c, nil
}

func (l ledger) DeleteCustomer(ctx context.Context, id string) error {
	n, err := l.q.DeleteCustomer(ctx, id)
	if err != nil {
		return mapErr(err, "customer "+id)
	}
	if n == 0 {
		return fmt.Errorf("customer %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Milk entries

func (l ledger) ListMilkEntries(ctx context.Context, f records.MilkEntryFilter) ([]core.MilkEntry, error) {
	out, err := l.q.ListMilkEntries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list milk entries: %w", err)
	}
	return out, nil
}

func (l ledger) GetMilkEntry(ctx context.Context, id string) (core.MilkEntry, error) {
	e, err := l.q.GetMilkEntry(ctx, id)
	return e, mapErr(err, "milk entry "+id)
}

func (l ledger) UpsertMilkEntry(ctx context.Context, e core.MilkEntry) (core.MilkEntry, error) {
	if err := e.Validate(); err != nil {
		return core.MilkEntry{}, err
	}
	e.ID = l.newID()
	e.CreatedAt = l.now()
	id, created, err := l.q.UpsertMilkEntry(ctx, e)
	if err != nil {
		return core.MilkEntry{}, mapInsertErr(err, "milk entry for customer "+e.CustomerID)
	}
	e.ID, e.CreatedAt = id, created
	return e, nil
}

func (l ledger) UpdateMilkEntry(ctx context.Context, e core.MilkEntry) (core.MilkEntry, error) {
	if err := e.Validate(); err != nil {
		return core.MilkEntry{}, err
	}
	created, err := l.q.UpdateMilkEntry(ctx, e)
	if err != nil {
		return core.MilkEntry{}, mapErr(err, "milk entry "+e.ID)
	}
	e.CreatedAt = created
	return e, nil
}

// Bills

func (l ledger) ListBills(ctx context.Context, f records.BillFilter) ([]core.Bill, error) {
	out, err := l.q.ListBills(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return out, nil
}

func (l ledger) GetBill(ctx context.Context, id string) (core.Bill, error) {
	b, err := l.q.GetBill(ctx, id)
	return b, mapErr(err, "bill "+id)
}

func (l ledger) FindBill(ctx context.Context, customerID string, p core.Period) (core.Bill, bool, error) {
	b, err := l.q.FindBill(ctx, customerID, p)
	if err == sql.ErrNoRows {
		return core.Bill{}, false, nil
	}
	if err != nil {
		return core.Bill{}, false, fmt.Errorf("find bill: %w", err)
	}
	return b, true, nil
}

func (l ledger) CreateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	if b.ID == "" {
		b.ID = l.newID()
	}
	b.CreatedAt = l.now()
	b.UpdatedAt = b.CreatedAt
	if err := l.q.InsertBill(ctx, b); err != nil {
		return core.Bill{}, mapInsertErr(err, fmt.Sprintf("bill %s for %s", b.BillNumber, b.Period().Key()))
	}

	slog.InfoContext(ctx, "Bill saved to SQLite",
		"id", b.ID,
		"bill_number", b.BillNumber,
		"customer_id", b.CustomerID,
		"final_amount", b.FinalAmount.StringFixed(2))

	return b, nil
}

func (l ledger) UpdateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	prev, err := l.GetBill(ctx, b.ID)
	if err != nil {
		return core.Bill{}, err
	}
	if prev.CustomerID != b.CustomerID || prev.Year != b.Year || prev.Month != b.Month {
		return core.Bill{}, fmt.Errorf("bill %s: period and customer are immutable: %w", b.ID, core.ErrConflict)
	}
	b.CreatedAt = prev.CreatedAt
	b.UpdatedAt = l.now()
	n, err := l.q.UpdateBill(ctx, b)
	if err != nil {
		return core.Bill{}, mapErr(err, "bill "+b.ID)
	}
	if n == 0 {
		return core.Bill{}, fmt.Errorf("bill %s: %w", b.ID, core.ErrNotFound)
	}
	return b, nil
}

// Payments

func (l ledger) ListPayments(ctx context.Context, f records.PaymentFilter) ([]core.Payment, error) {
	out, err := l.q.ListPayments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

func (l ledger) CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}
	if p.ID == "" {
		p.ID = l.newID()
	}
	if p.State == "" {
		p.State = core.PaymentCommitted
	}
	p.CreatedAt = l.now()
	if err := l.q.InsertPayment(ctx, p); err != nil {
		return core.Payment{}, mapInsertErr(err, "payment for bill "+p.BillID)
	}
	return p, nil
}

func (l ledger) UpdatePayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}
	created, err := l.q.UpdatePayment(ctx, p)
	if err != nil {
		return core.Payment{}, mapErr(err, "payment "+p.ID)
	}
	p.CreatedAt = created
	return p, nil
}

func (l ledger) DeletePayment(ctx context.Context, id string) error {
	n, err := l.q.DeletePayment(ctx, id)
	if err != nil {
		return mapErr(err, "payment "+id)
	}
	if n == 0 {
		return fmt.Errorf("payment %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Expenses

func (l ledger) ListExpenses(ctx context.Context, f records.ExpenseFilter) ([]core.Expense, error) {
	out, err := l.q.ListExpenses(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

func (l ledger) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = l.newID()
	}
	e.CreatedAt = l.now()
	if err := l.q.InsertExpense(ctx, e); err != nil {
		return core.Expense{}, mapInsertErr(err, "expense")
	}
	return e, nil
}

func (l ledger) DeleteExpense(ctx context.Context, id string) error {
	n, err := l.q.DeleteExpense(ctx, id)
	if err != nil {
		return mapErr(err, "expense "+id)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (l ledger) ListCategories(ctx context.Context) ([]core.ExpenseCategory, error) {
	out, err := l.q.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (l ledger) CreateCategory(ctx context.Context, c core.ExpenseCategory) (core.ExpenseCategory, error) {
	if err := c.Validate(); err != nil {
		return core.ExpenseCategory{}, err
	}
	if c.ID == "" {
		c.ID = l.newID()
	}
	c.CreatedAt = l.now()
	if err := l.q.InsertCategory(ctx, c); err != nil {
		return core.ExpenseCategory{}, mapInsertErr(err, fmt.Sprintf("category %q", c.Name))
	}
	return c, nil
}

func (l ledger) DeleteCategory(ctx context.Context, id string) error {
	n, err := l.q.DeleteCategory(ctx, id)
	if err != nil {
		return mapErr(err, "category "+id)
	}
	if n == 0 {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Settings

func (l ledger) GetSetting(ctx context.Context, key string) ([]byte, error) {
	v, err := l.q.GetSetting(ctx, key)
	if err != nil {
		return nil, mapErr(err, "setting "+key)
	}
	return []byte(v), nil
}

func (l ledger) PutSetting(ctx context.Context, key string, value []byte) error {
	if err := l.q.PutSetting(ctx, key, string(value), l.now()); err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}
