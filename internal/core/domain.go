package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

const (
	Cow     MilkType = "cow"
	Buffalo MilkType = "buffalo"

	Morning Session = "morning"
	Evening Session = "evening"

	Unpaid BillStatus = "unpaid"
	Paid   BillStatus = "paid"

	Cash   PaymentMode = "cash"
	Online PaymentMode = "online"
	UPI    PaymentMode = "upi"

	PaymentPending   PaymentState = "pending"
	PaymentCommitted PaymentState = "committed"
)

type (
	MilkType     string
	Session      string
	BillStatus   string
	PaymentMode  string
	PaymentState string

	Date struct {
		time.Time
	}

	Customer struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		Phone         string          `json:"phone,omitempty"`
		Address       string          `json:"address,omitempty"`
		MilkType      MilkType        `json:"milk_type"`
		DailyQuantity decimal.Decimal `json:"daily_quantity"`
		RatePerLiter  decimal.Decimal `json:"rate_per_liter"`
		Active        bool            `json:"is_active"`
		CreatedAt     time.Time       `json:"created_at"`
		UpdatedAt     time.Time       `json:"updated_at"`
	}

	// MilkEntry is one delivery slot for a customer. The rate is captured when
	// the entry is created and is not re-read from the customer afterwards.
	MilkEntry struct {
		ID              string              `json:"id"`
		CustomerID      string              `json:"customer_id"`
		Date            Date                `json:"date"`
		Session         Session             `json:"session"`
		RegularQuantity decimal.Decimal     `json:"regular_quantity"`
		ExtraQuantity   decimal.Decimal     `json:"extra_quantity"`
		RatePerLiter    decimal.Decimal     `json:"rate_per_liter"`
		Delivered       bool                `json:"delivered"`
		TotalAmount     decimal.NullDecimal `json:"total_amount"`
		CreatedAt       time.Time           `json:"created_at"`
	}

	Bill struct {
		ID          string          `json:"id"`
		BillNumber  string          `json:"bill_number"`
		CustomerID  string          `json:"customer_id"`
		Month       int             `json:"month"`
		Year        int             `json:"year"`
		TotalLiters decimal.Decimal `json:"total_liters"`
		TotalAmount decimal.Decimal `json:"total_amount"`
		Discount    decimal.Decimal `json:"discount"`
		LateFee     decimal.Decimal `json:"late_fee"`
		FinalAmount decimal.Decimal `json:"final_amount"`
		Status      BillStatus      `json:"status"`
		PaymentMode *PaymentMode    `json:"payment_mode,omitempty"`
		PaymentDate *Date           `json:"payment_date,omitempty"`

		// IncludeUndelivered records whether undelivered entries were
		// counted when the totals were computed.
		IncludeUndelivered bool      `json:"include_undelivered"`
		CreatedAt          time.Time `json:"created_at"`
		UpdatedAt          time.Time `json:"updated_at"`
	}

	Payment struct {
		ID         string          `json:"id"`
		BillID     string          `json:"bill_id"`
		CustomerID string          `json:"customer_id"`
		Amount     decimal.Decimal `json:"amount"`
		Mode       PaymentMode     `json:"payment_mode"`
		Date       Date            `json:"payment_date"`
		Notes      string          `json:"notes,omitempty"`
		State      PaymentState    `json:"state"`
		CreatedAt  time.Time       `json:"created_at"`
	}

	ExpenseCategory struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Icon      string    `json:"icon,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	Expense struct {
		ID          string          `json:"id"`
		CategoryID  string          `json:"category_id,omitempty"`
		Date        Date            `json:"date"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description,omitempty"`
		ReceiptURL  string          `json:"receipt_url,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Msg: "must be YYYY-MM-DD"}
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return &ValidationError{Field: "date", Msg: "cannot be zero"}
	}
	return nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m MilkType) Valid() bool { return m == Cow || m == Buffalo }

func (s Session) Valid() bool { return s == Morning || s == Evening }

func (s BillStatus) Valid() bool { return s == Unpaid || s == Paid }

func (m PaymentMode) Valid() bool { return m == Cash || m == Online || m == UPI }

// PaymentModes lists the accepted modes in display order.
func PaymentModes() []PaymentMode { return []PaymentMode{Cash, Online, UPI} }

func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Msg: "is required"}
	}
	if len(c.Name) > 120 {
		return &ValidationError{Field: "name", Msg: "too long (max 120 characters)"}
	}
	if !c.MilkType.Valid() {
		return &ValidationError{Field: "milk_type", Msg: "must be cow or buffalo"}
	}
	if c.DailyQuantity.IsNegative() {
		return &ValidationError{Field: "daily_quantity", Msg: "cannot be negative"}
	}
	if c.RatePerLiter.IsNegative() {
		return &ValidationError{Field: "rate_per_liter", Msg: "cannot be negative"}
	}
	return nil
}

// Quantity is the delivered volume of the entry in liters.
func (e MilkEntry) Quantity() decimal.Decimal {
	return e.RegularQuantity.Add(e.ExtraQuantity)
}

// Amount returns the stored total, or (regular + extra) × rate when the
// row has none.
func (e MilkEntry) Amount() decimal.Decimal {
	if e.TotalAmount.Valid {
		return e.TotalAmount.Decimal
	}
	return RoundMoney(e.Quantity().Mul(e.RatePerLiter))
}

// WithComputedTotal returns a copy whose TotalAmount reflects the current
// quantities and rate.
func (e MilkEntry) WithComputedTotal() MilkEntry {
	e.TotalAmount = decimal.NewNullDecimal(RoundMoney(e.Quantity().Mul(e.RatePerLiter)))
	return e
}

func (e MilkEntry) Validate() error {
	if strings.TrimSpace(e.CustomerID) == "" {
		return &ValidationError{Field: "customer_id", Msg: "is required"}
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !e.Session.Valid() {
		return &ValidationError{Field: "session", Msg: "must be morning or evening"}
	}
	if e.RegularQuantity.IsNegative() {
		return &ValidationError{Field: "regular_quantity", Msg: "cannot be negative"}
	}
	if e.ExtraQuantity.IsNegative() {
		return &ValidationError{Field: "extra_quantity", Msg: "cannot be negative"}
	}
	if e.RatePerLiter.IsNegative() {
		return &ValidationError{Field: "rate_per_liter", Msg: "cannot be negative"}
	}
	return nil
}

// Period returns the billing period the bill covers.
func (b Bill) Period() Period {
	return Period{Year: b.Year, Month: b.Month}
}

// IsPaid reports whether the bill has been settled.
func (b Bill) IsPaid() bool { return b.Status == Paid }

func (b Bill) Validate() error {
	if strings.TrimSpace(b.CustomerID) == "" {
		return &ValidationError{Field: "customer_id", Msg: "is required"}
	}
	if err := b.Period().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.BillNumber) == "" {
		return &ValidationError{Field: "bill_number", Msg: "is required"}
	}
	if !b.Status.Valid() {
		return &ValidationError{Field: "status", Msg: "must be paid or unpaid"}
	}
	if b.Discount.IsNegative() || b.LateFee.IsNegative() {
		return &ValidationError{Field: "discount", Msg: "adjustments cannot be negative"}
	}
	return nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.BillID) == "" {
		return &ValidationError{Field: "bill_id", Msg: "is required"}
	}
	if strings.TrimSpace(p.CustomerID) == "" {
		return &ValidationError{Field: "customer_id", Msg: "is required"}
	}
	if !p.Mode.Valid() {
		return &ValidationError{Field: "payment_mode", Msg: "must be cash, online or upi"}
	}
	if !p.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Msg: "must be positive"}
	}
	return p.Date.Validate()
}

func (c ExpenseCategory) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Msg: "is required"}
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Msg: "must be positive"}
	}
	if len(e.Description) > 200 {
		return &ValidationError{Field: "description", Msg: "too long (max 200 characters)"}
	}
	return nil
}
