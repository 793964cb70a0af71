package sheets

import (
	"context"
	"errors"

	"dairyflow/internal/core"
)

// ErrRowNotFound is returned when a bill has no row in the sheet yet.
var ErrRowNotFound = errors.New("bill row not found")

// Header is the first row of every bills sheet.
var Header = []string{
	"Bill Number", "Customer", "Period", "Liters", "Amount", "Discount",
	"Late Fee", "Final Amount", "Status", "Payment Mode", "Payment Date",
}

// BillRow is the sheet projection of a bill.
type BillRow struct {
	BillNumber  string
	Customer    string
	Year        int
	Period      string
	Liters      string
	Amount      string
	Discount    string
	LateFee     string
	FinalAmount string
	Status      string
	PaymentMode string
	PaymentDate string
}

// NewBillRow flattens a bill for the sheet. Amounts keep two decimals and
// liters three.
func NewBillRow(b core.Bill, customerName string) BillRow {
	row := BillRow{
		BillNumber:  b.BillNumber,
		Customer:    customerName,
		Year:        b.Year,
		Period:      b.Period().Key(),
		Liters:      b.TotalLiters.StringFixed(3),
		Amount:      b.TotalAmount.StringFixed(2),
		Discount:    b.Discount.StringFixed(2),
		LateFee:     b.LateFee.StringFixed(2),
		FinalAmount: b.FinalAmount.StringFixed(2),
		Status:      string(b.Status),
	}
	if b.PaymentMode != nil {
		row.PaymentMode = string(*b.PaymentMode)
	}
	if b.PaymentDate != nil {
		row.PaymentDate = b.PaymentDate.String()
	}
	return row
}

// Values returns the cells in Header order.
func (r BillRow) Values() []any {
	return []any{
		r.BillNumber, r.Customer, r.Period, r.Liters, r.Amount, r.Discount,
		r.LateFee, r.FinalAmount, r.Status, r.PaymentMode, r.PaymentDate,
	}
}

// Ports for outbound adapters.
type (
	// BillWriter mirrors bills into a spreadsheet keyed by bill number.
	BillWriter interface {
		// AppendBill writes the row, overwriting an existing row for the
		// same bill number so redelivered events do not duplicate it.
		AppendBill(ctx context.Context, row BillRow) (rowRef string, err error)

		// UpdateBillStatus rewrites the status, mode and payment date cells.
		// It returns ErrRowNotFound when the bill was never appended.
		UpdateBillStatus(ctx context.Context, row BillRow) error
	}
)
