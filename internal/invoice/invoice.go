// Package invoice renders a bill and its milk entries as a PDF document.
package invoice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
)

// Document is everything printed on one invoice.
type Document struct {
	Bill     core.Bill
	Customer core.Customer
	Entries  []core.MilkEntry
	Header   string
	Footer   string
	IssuedOn core.Date
}

func (d Document) validate() error {
	if d.Bill.ID == "" || d.Bill.BillNumber == "" {
		return &core.ValidationError{Field: "bill", Msg: "is required"}
	}
	if d.Customer.ID != d.Bill.CustomerID {
		return &core.ValidationError{Field: "customer", Msg: "does not match the bill"}
	}
	return nil
}

// Line is one entry row of the invoice table.
type Line struct {
	Date    string
	Session string
	Regular string
	Extra   string
	Total   string
	Rate    string
	Amount  string
}

// Lines formats the entry table in date then session order as given.
func Lines(entries []core.MilkEntry) []Line {
	out := make([]Line, 0, len(entries))
	for _, e := range entries {
		out = append(out, Line{
			Date:    e.Date.String(),
			Session: string(e.Session),
			Regular: e.RegularQuantity.StringFixed(2),
			Extra:   e.ExtraQuantity.StringFixed(2),
			Total:   e.Quantity().StringFixed(2),
			Rate:    money(e.RatePerLiter),
			Amount:  money(e.Amount()),
		})
	}
	return out
}

// money avoids the rupee glyph, which the built-in PDF fonts cannot encode.
func money(d decimal.Decimal) string {
	return "Rs. " + d.StringFixed(2)
}

// Filename returns "Invoice_<bill number>_<customer name>.pdf" with runs of
// whitespace in the name replaced by underscores.
func Filename(b core.Bill, c core.Customer) string {
	return fmt.Sprintf("Invoice_%s_%s.pdf", b.BillNumber, strings.Join(strings.Fields(c.Name), "_"))
}

// Render builds the PDF for doc.
func Render(ctx context.Context, doc Document) (io.Reader, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	issued := doc.IssuedOn
	if issued.IsZero() {
		issued = core.DateOf(time.Now())
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	header := doc.Header
	if header == "" {
		header = "Invoice"
	}
	m.AddRow(12, text.NewCol(12, header, props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Center}))
	m.AddRow(8, text.NewCol(12, "Farm Management System", props.Text{Size: 10, Align: align.Center}))

	b := doc.Bill
	m.AddRow(18,
		col.New(6).Add(
			text.New("Invoice: "+b.BillNumber, props.Text{Top: 0}),
			text.New("Period: "+b.Period().Label(), props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Date: "+issued.String(), props.Text{Top: 0, Align: align.Right}),
			text.New("Status: "+string(b.Status), props.Text{Top: 5, Align: align.Right}),
		),
	)

	customer := col.New(12).Add(text.New("Bill To:", props.Text{Style: fontstyle.Bold}))
	top := 5.0
	for _, s := range []string{doc.Customer.Name, doc.Customer.Phone, doc.Customer.Address} {
		if s == "" {
			continue
		}
		customer = customer.Add(text.New(s, props.Text{Top: top}))
		top += 5
	}
	m.AddRow(top+5, customer)

	head := props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	m.AddRow(8,
		text.NewCol(2, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Session", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Regular", head),
		text.NewCol(1, "Extra", head),
		text.NewCol(2, "Total", head),
		text.NewCol(2, "Rate", head),
		text.NewCol(2, "Amount", head),
	)
	m.AddRow(2, line.NewCol(12))

	cell := props.Text{Size: 9, Align: align.Right}
	for _, l := range Lines(doc.Entries) {
		m.AddRow(6,
			text.NewCol(2, l.Date, props.Text{Size: 9}),
			text.NewCol(2, l.Session, props.Text{Size: 9}),
			text.NewCol(1, l.Regular, cell),
			text.NewCol(1, l.Extra, cell),
			text.NewCol(2, l.Total, cell),
			text.NewCol(2, l.Rate, cell),
			text.NewCol(2, l.Amount, cell),
		)
	}
	m.AddRow(2, line.NewCol(12))

	summary := func(label, value string, style fontstyle.Type) {
		m.AddRow(7,
			col.New(7),
			text.NewCol(3, label, props.Text{Size: 9, Style: style}),
			text.NewCol(2, value, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}
	summary("Total Liters:", core.FormatLiters(b.TotalLiters), fontstyle.Normal)
	summary("Subtotal:", money(b.TotalAmount), fontstyle.Normal)
	if b.Discount.IsPositive() {
		summary("Discount:", "-"+money(b.Discount), fontstyle.Normal)
	}
	if b.LateFee.IsPositive() {
		summary("Late Fee:", "+"+money(b.LateFee), fontstyle.Normal)
	}
	summary("Total Amount:", money(b.FinalAmount), fontstyle.Bold)

	if doc.Footer != "" {
		m.AddRow(15, text.NewCol(12, doc.Footer, props.Text{Top: 8, Size: 9, Align: align.Center}))
	}

	pdf, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate invoice %s: %w", b.BillNumber, err)
	}
	return bytes.NewReader(pdf.GetBytes()), nil
}
