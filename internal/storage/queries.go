package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"dairyflow/internal/core"
	"dairyflow/internal/records"
)

type scanner interface {
	Scan(dest ...any) error
}

// where accumulates AND-ed predicates and their arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func timeText(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDate(s string) core.Date {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Customers

const customerColumns = `id, name, phone, address, milk_type, daily_quantity, rate_per_liter, is_active, created_at, updated_at`

func scanCustomer(row scanner) (core.Customer, error) {
	var (
		c                core.Customer
		created, updated string
		milkType         string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &milkType, &c.DailyQuantity,
		&c.RatePerLiter, &c.Active, &created, &updated); err != nil {
		return core.Customer{}, err
	}
	c.MilkType = core.MilkType(milkType)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

func (q *Queries) ListCustomers(ctx context.Context, f records.CustomerFilter) ([]core.Customer, error) {
	var w where
	if f.ActiveOnly {
		w.add("is_active = 1")
	}
	if f.MilkType != "" {
		w.add("milk_type = ?", string(f.MilkType))
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		w.add("(lower(name) LIKE ? OR phone LIKE ?)", "%"+s+"%", "%"+s+"%")
	}
	rows, err := q.db.QueryContext(ctx, "SELECT "+customerColumns+" FROM customers"+w.String()+" ORDER BY name, id", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	return scanCustomer(q.db.QueryRowContext(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = ?", id))
}

func (q *Queries) InsertCustomer(ctx context.Context, c core.Customer) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Phone, c.Address, string(c.MilkType), c.DailyQuantity, c.RatePerLiter, c.Active,
		timeText(c.CreatedAt), timeText(c.UpdatedAt))
	return err
}

// UpdateCustomer returns the preserved created_at of the row.
func (q *Queries) UpdateCustomer(ctx context.Context, c core.Customer) (time.Time, error) {
	var created string
	err := q.db.QueryRowContext(ctx, `UPDATE customers
SET name = ?, phone = ?, address = ?, milk_type = ?, daily_quantity = ?, rate_per_liter = ?, is_active = ?, updated_at = ?
WHERE id = ?
RETURNING created_at`,
		c.Name, c.Phone, c.Address, string(c.MilkType), c.DailyQuantity, c.RatePerLiter, c.Active,
		timeText(c.UpdatedAt), c.ID).Scan(&created)
	return parseTime(created), err
}

func (q *Queries) DeleteCustomer(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Milk entries

const milkEntryColumns = `id, customer_id, date, session, regular_quantity, extra_quantity, rate_per_liter, delivered, total_amount, created_at`

func scanMilkEntry(row scanner) (core.MilkEntry, error) {
	var (
		e                      core.MilkEntry
		date, session, created string
	)
	if err := row.Scan(&e.ID, &e.CustomerID, &date, &session, &e.RegularQuantity, &e.ExtraQuantity,
		&e.RatePerLiter, &e.Delivered, &e.TotalAmount, &created); err != nil {
		return core.MilkEntry{}, err
	}
	e.Date = parseDate(date)
	e.Session = core.Session(session)
	e.CreatedAt = parseTime(created)
	return e, nil
}

func (q *Queries) ListMilkEntries(ctx context.Context, f records.MilkEntryFilter) ([]core.MilkEntry, error) {
	var w where
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if !f.From.IsZero() {
		w.add("date >= ?", f.From.String())
	}
	if !f.To.IsZero() {
		w.add("date <= ?", f.To.String())
	}
	if f.Session != "" {
		w.add("session = ?", string(f.Session))
	}
	if f.DeliveredOnly {
		w.add("delivered = 1")
	}
	rows, err := q.db.QueryContext(ctx, "SELECT "+milkEntryColumns+" FROM milk_entries"+w.String()+
		" ORDER BY date, CASE session WHEN 'morning' THEN 0 ELSE 1 END, customer_id", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.MilkEntry
	for rows.Next() {
		e, err := scanMilkEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *Queries) GetMilkEntry(ctx context.Context, id string) (core.MilkEntry, error) {
	return scanMilkEntry(q.db.QueryRowContext(ctx, "SELECT "+milkEntryColumns+" FROM milk_entries WHERE id = ?", id))
}

// UpsertMilkEntry writes the row for (customer, date, session) and returns
// the id and created_at of the stored row, which are the existing ones when
// the slot was already taken.
func (q *Queries) UpsertMilkEntry(ctx context.Context, e core.MilkEntry) (string, time.Time, error) {
	var id, created string
	err := q.db.QueryRowContext(ctx, `INSERT INTO milk_entries (`+milkEntryColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (customer_id, date, session) DO UPDATE SET
    regular_quantity = excluded.regular_quantity,
    extra_quantity = excluded.extra_quantity,
    rate_per_liter = excluded.rate_per_liter,
    delivered = excluded.delivered,
    total_amount = excluded.total_amount
RETURNING id, created_at`,
		e.ID, e.CustomerID, e.Date.String(), string(e.Session), e.RegularQuantity, e.ExtraQuantity,
		e.RatePerLiter, e.Delivered, e.TotalAmount, timeText(e.CreatedAt)).Scan(&id, &created)
	return id, parseTime(created), err
}

func (q *Queries) UpdateMilkEntry(ctx context.Context, e core.MilkEntry) (time.Time, error) {
	var created string
	err := q.db.QueryRowContext(ctx, `UPDATE milk_entries
SET customer_id = ?, date = ?, session = ?, regular_quantity = ?, extra_quantity = ?, rate_per_liter = ?, delivered = ?, total_amount = ?
WHERE id = ?
RETURNING created_at`,
		e.CustomerID, e.Date.String(), string(e.Session), e.RegularQuantity, e.ExtraQuantity,
		e.RatePerLiter, e.Delivered, e.TotalAmount, e.ID).Scan(&created)
	return parseTime(created), err
}

// Bills

const billColumns = `id, bill_number, customer_id, month, year, total_liters, total_amount, discount, late_fee, final_amount, status, payment_mode, payment_date, include_undelivered, created_at, updated_at`

func scanBill(row scanner) (core.Bill, error) {
	var (
		b                core.Bill
		status           string
		mode, paidOn     sql.NullString
		created, updated string
	)
	if err := row.Scan(&b.ID, &b.BillNumber, &b.CustomerID, &b.Month, &b.Year, &b.TotalLiters,
		&b.TotalAmount, &b.Discount, &b.LateFee, &b.FinalAmount, &status, &mode, &paidOn,
		&b.IncludeUndelivered, &created, &updated); err != nil {
		return core.Bill{}, err
	}
	b.Status = core.BillStatus(status)
	if mode.Valid {
		m := core.PaymentMode(mode.String)
		b.PaymentMode = &m
	}
	if paidOn.Valid {
		d := parseDate(paidOn.String)
		b.PaymentDate = &d
	}
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return b, nil
}

func billPayment(b core.Bill) (mode, paidOn sql.NullString) {
	if b.PaymentMode != nil {
		mode = nullString(string(*b.PaymentMode))
	}
	if b.PaymentDate != nil {
		paidOn = nullString(b.PaymentDate.String())
	}
	return mode, paidOn
}

func (q *Queries) ListBills(ctx context.Context, f records.BillFilter) ([]core.Bill, error) {
	var w where
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.Period != nil {
		w.add("year = ? AND month = ?", f.Period.Year, f.Period.Month)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		w.add("(lower(bill_number) LIKE ? OR customer_id LIKE ?)", "%"+s+"%", s+"%")
	}
	rows, err := q.db.QueryContext(ctx, "SELECT "+billColumns+" FROM bills"+w.String()+
		" ORDER BY year DESC, month DESC, bill_number", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *Queries) GetBill(ctx context.Context, id string) (core.Bill, error) {
	return scanBill(q.db.QueryRowContext(ctx, "SELECT "+billColumns+" FROM bills WHERE id = ?", id))
}

func (q *Queries) FindBill(ctx context.Context, customerID string, p core.Period) (core.Bill, error) {
	return scanBill(q.db.QueryRowContext(ctx, "SELECT "+billColumns+" FROM bills WHERE customer_id = ? AND year = ? AND month = ?",
		customerID, p.Year, p.Month))
}

func (q *Queries) InsertBill(ctx context.Context, b core.Bill) error {
	mode, paidOn := billPayment(b)
	_, err := q.db.ExecContext(ctx, `INSERT INTO bills (`+billColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.BillNumber, b.CustomerID, b.Month, b.Year, b.TotalLiters, b.TotalAmount, b.Discount,
		b.LateFee, b.FinalAmount, string(b.Status), mode, paidOn, b.IncludeUndelivered,
		timeText(b.CreatedAt), timeText(b.UpdatedAt))
	return err
}

// UpdateBill rewrites the mutable columns; customer and period stay fixed.
func (q *Queries) UpdateBill(ctx context.Context, b core.Bill) (int64, error) {
	mode, paidOn := billPayment(b)
	res, err := q.db.ExecContext(ctx, `UPDATE bills
SET bill_number = ?, total_liters = ?, total_amount = ?, discount = ?, late_fee = ?, final_amount = ?,
    status = ?, payment_mode = ?, payment_date = ?, updated_at = ?
WHERE id = ?`,
		b.BillNumber, b.TotalLiters, b.TotalAmount, b.Discount, b.LateFee, b.FinalAmount,
		string(b.Status), mode, paidOn, timeText(b.UpdatedAt), b.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Payments

const paymentColumns = `id, bill_id, customer_id, amount, payment_mode, payment_date, notes, state, created_at`

func scanPayment(row scanner) (core.Payment, error) {
	var (
		p                          core.Payment
		mode, date, state, created string
	)
	if err := row.Scan(&p.ID, &p.BillID, &p.CustomerID, &p.Amount, &mode, &date, &p.Notes,
		&state, &created); err != nil {
		return core.Payment{}, err
	}
	p.Mode = core.PaymentMode(mode)
	p.Date = parseDate(date)
	p.State = core.PaymentState(state)
	p.CreatedAt = parseTime(created)
	return p, nil
}

func (q *Queries) ListPayments(ctx context.Context, f records.PaymentFilter) ([]core.Payment, error) {
	var w where
	if !f.IncludePending {
		w.add("state = ?", string(core.PaymentCommitted))
	}
	if f.BillID != "" {
		w.add("bill_id = ?", f.BillID)
	}
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.Mode != "" {
		w.add("payment_mode = ?", string(f.Mode))
	}
	if !f.From.IsZero() {
		w.add("payment_date >= ?", f.From.String())
	}
	if !f.To.IsZero() {
		w.add("payment_date <= ?", f.To.String())
	}
	rows, err := q.db.QueryContext(ctx, "SELECT "+paymentColumns+" FROM payments"+w.String()+
		" ORDER BY payment_date DESC, created_at DESC", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) InsertPayment(ctx context.Context, p core.Payment) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BillID, p.CustomerID, p.Amount, string(p.Mode), p.Date.String(), p.Notes,
		string(p.State), timeText(p.CreatedAt))
	return err
}

func (q *Queries) UpdatePayment(ctx context.Context, p core.Payment) (time.Time, error) {
	var created string
	err := q.db.QueryRowContext(ctx, `UPDATE payments
SET amount = ?, payment_mode = ?, payment_date = ?, notes = ?, state = ?
WHERE id = ?
RETURNING created_at`,
		p.Amount, string(p.Mode), p.Date.String(), p.Notes, string(p.State), p.ID).Scan(&created)
	return parseTime(created), err
}

func (q *Queries) DeletePayment(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Expenses

const expenseColumns = `id, category_id, date, amount, description, receipt_url, created_at`

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e             core.Expense
		category      sql.NullString
		date, created string
	)
	if err := row.Scan(&e.ID, &category, &date, &e.Amount, &e.Description, &e.ReceiptURL, &created); err != nil {
		return core.Expense{}, err
	}
	e.CategoryID = category.String
	e.Date = parseDate(date)
	e.CreatedAt = parseTime(created)
	return e, nil
}

func (q *Queries) ListExpenses(ctx context.Context, f records.ExpenseFilter) ([]core.Expense, error) {
	var w where
	if f.CategoryID != "" {
		w.add("category_id = ?", f.CategoryID)
	}
	if !f.From.IsZero() {
		w.add("date >= ?", f.From.String())
	}
	if !f.To.IsZero() {
		w.add("date <= ?", f.To.String())
	}
	rows, err := q.db.QueryContext(ctx, "SELECT "+expenseColumns+" FROM expenses"+w.String()+
		" ORDER BY date DESC, created_at DESC", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *Queries) InsertExpense(ctx context.Context, e core.Expense) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nullString(e.CategoryID), e.Date.String(), e.Amount, e.Description, e.ReceiptURL, timeText(e.CreatedAt))
	return err
}

func (q *Queries) DeleteExpense(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ListCategories(ctx context.Context) ([]core.ExpenseCategory, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT id, name, icon, created_at FROM expense_categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.ExpenseCategory
	for rows.Next() {
		var (
			c       core.ExpenseCategory
			created string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) InsertCategory(ctx context.Context, c core.ExpenseCategory) error {
	_, err := q.db.ExecContext(ctx, "INSERT INTO expense_categories (id, name, icon, created_at) VALUES (?, ?, ?, ?)",
		c.ID, c.Name, c.Icon, timeText(c.CreatedAt))
	return err
}

func (q *Queries) DeleteCategory(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, "DELETE FROM expense_categories WHERE id = ?", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Settings

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := q.db.QueryRowContext(ctx, "SELECT value FROM app_settings WHERE key = ?", key).Scan(&v)
	return v, err
}

func (q *Queries) PutSetting(ctx context.Context, key, value string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, timeText(at))
	return err
}
