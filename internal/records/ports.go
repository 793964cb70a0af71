// Package records defines the Record Store contract: one port per logical
// table (customers, milk_entries, bills, payments, expenses,
// expense_categories, app_settings). Implementations live in
// records/memory and storage.
package records

import (
	"context"

	"dairyflow/internal/core"
)

type (
	CustomerFilter struct {
		ActiveOnly bool
		MilkType   core.MilkType
		Search     string // case-insensitive match on name or phone
	}

	// MilkEntryFilter selects entries; zero values mean "any". From and To
	// are inclusive.
	MilkEntryFilter struct {
		CustomerID    string
		From          core.Date
		To            core.Date
		Session       core.Session
		DeliveredOnly bool
	}

	BillFilter struct {
		CustomerID string
		Status     core.BillStatus
		Period     *core.Period
		Search     string // bill number or customer id prefix
	}

	PaymentFilter struct {
		BillID     string
		CustomerID string
		Mode       core.PaymentMode
		From       core.Date
		To         core.Date
		// IncludePending also returns rows left in the pending state.
		IncludePending bool
	}

	ExpenseFilter struct {
		CategoryID string
		From       core.Date
		To         core.Date
	}
)

// Ports for the persistence collaborator.
type (
	CustomerStore interface {
		ListCustomers(ctx context.Context, f CustomerFilter) ([]core.Customer, error)
		GetCustomer(ctx context.Context, id string) (core.Customer, error)
		CreateCustomer(ctx context.Context, c core.Customer) (core.Customer, error)
		UpdateCustomer(ctx context.Context, c core.Customer) (core.Customer, error)
		DeleteCustomer(ctx context.Context, id string) error
	}

	// MilkEntryStore lists entries ordered by date, then session, then customer.
	MilkEntryStore interface {
		ListMilkEntries(ctx context.Context, f MilkEntryFilter) ([]core.MilkEntry, error)
		GetMilkEntry(ctx context.Context, id string) (core.MilkEntry, error)
		// UpsertMilkEntry inserts the entry, or replaces the row already held
		// for the same (customer, date, session).
		UpsertMilkEntry(ctx context.Context, e core.MilkEntry) (core.MilkEntry, error)
		UpdateMilkEntry(ctx context.Context, e core.MilkEntry) (core.MilkEntry, error)
	}

	// BillStore must refuse a second bill for the same customer and period
	// with core.ErrDuplicateBill, independently of any caller pre-check.
	BillStore interface {
		ListBills(ctx context.Context, f BillFilter) ([]core.Bill, error)
		GetBill(ctx context.Context, id string) (core.Bill, error)
		FindBill(ctx context.Context, customerID string, p core.Period) (core.Bill, bool, error)
		CreateBill(ctx context.Context, b core.Bill) (core.Bill, error)
		UpdateBill(ctx context.Context, b core.Bill) (core.Bill, error)
	}

	PaymentStore interface {
		ListPayments(ctx context.Context, f PaymentFilter) ([]core.Payment, error)
		CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error)
		UpdatePayment(ctx context.Context, p core.Payment) (core.Payment, error)
		DeletePayment(ctx context.Context, id string) error
	}

	ExpenseStore interface {
		ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, error)
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, id string) error
		ListCategories(ctx context.Context) ([]core.ExpenseCategory, error)
		CreateCategory(ctx context.Context, c core.ExpenseCategory) (core.ExpenseCategory, error)
		DeleteCategory(ctx context.Context, id string) error
	}

	// SettingsStore holds raw JSON payloads keyed by setting name. A missing
	// key returns core.ErrNotFound.
	SettingsStore interface {
		GetSetting(ctx context.Context, key string) ([]byte, error)
		PutSetting(ctx context.Context, key string, value []byte) error
	}

	// Tx is the slice of the store available inside a transaction.
	Tx interface {
		Bills() BillStore
		Payments() PaymentStore
	}

	// Transactor runs fn atomically: either every write made through tx is
	// kept or none is.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(tx Tx) error) error
	}

	// Store is the full Record Store.
	Store interface {
		CustomerStore
		MilkEntryStore
		BillStore
		PaymentStore
		ExpenseStore
		SettingsStore
	}
)
