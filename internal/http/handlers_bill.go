package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"dairyflow/internal/billing"
	"dairyflow/internal/core"
	"dairyflow/internal/invoice"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
)

type payRequest struct {
	Mode          core.PaymentMode `json:"payment_mode"`
	Date          core.Date        `json:"payment_date"`
	RecordPayment *bool            `json:"record_payment"`
	Notes         string           `json:"notes"`
}

type payResponse struct {
	Bill    core.Bill     `json:"bill"`
	Payment *core.Payment `json:"payment,omitempty"`
}

// billFilter reads the list filters. A period applies only when both month
// and year are given.
func billFilter(r *http.Request) (records.BillFilter, error) {
	q := r.URL.Query()
	f := records.BillFilter{
		CustomerID: sanitizeInput(q.Get("customer_id")),
		Status:     core.BillStatus(sanitizeInput(q.Get("status"))),
		Search:     sanitizeInput(q.Get("search")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, &core.ValidationError{Field: "status", Msg: "must be paid or unpaid"}
	}
	if q.Get("month") != "" || q.Get("year") != "" {
		month, errM := strconv.Atoi(strings.TrimSpace(q.Get("month")))
		year, errY := strconv.Atoi(strings.TrimSpace(q.Get("year")))
		if errM != nil || errY != nil {
			return f, &core.ValidationError{Field: "month", Msg: "month and year must both be numbers"}
		}
		p := core.Period{Year: year, Month: month}
		if err := p.Validate(); err != nil {
			return f, err
		}
		f.Period = &p
	}
	return f, nil
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	f, err := billFilter(r)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	bills, err := s.deps.Lifecycle.ListBills(r.Context(), f)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(nonNil(bills)).Write(w)
}

func (s *Server) handleGenerateBill(w http.ResponseWriter, r *http.Request) {
	var req billing.GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpGenerate, err)
		return
	}
	bill, err := s.deps.Builder.GenerateBill(r.Context(), req)
	if err != nil {
		s.fail(w, r, log.OpGenerate, err)
		return
	}
	NewJSONResponse().Created("/api/bills/" + bill.ID).Data(bill).Write(w)
}

// handleGenerateAll bills every active customer. An empty body bills the
// previous month.
func (s *Server) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	period := core.PeriodOf(s.today()).Previous()
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &period); err != nil {
			s.fail(w, r, log.OpGenerate, err)
			return
		}
	}
	res, err := s.deps.Builder.GenerateAll(r.Context(), period)
	if err != nil {
		s.fail(w, r, log.OpGenerate, err)
		return
	}
	NewJSONResponse().Data(res).Write(w)
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.deps.Lifecycle.GetBill(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(bill).Write(w)
}

// handlePayBill marks a bill paid. A payment row is recorded unless the
// body sets record_payment to false.
func (s *Server) handlePayBill(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpPay, err)
		return
	}
	record := true
	if req.RecordPayment != nil {
		record = *req.RecordPayment
	}
	bill, payment, err := s.deps.Lifecycle.MarkPaid(r.Context(), billing.MarkPaidRequest{
		BillID:        r.PathValue("id"),
		Mode:          req.Mode,
		Date:          req.Date,
		RecordPayment: record,
		Notes:         sanitizeInput(req.Notes),
	})
	if err != nil {
		s.fail(w, r, log.OpPay, err)
		return
	}
	NewJSONResponse().Data(payResponse{Bill: bill, Payment: payment}).Write(w)
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bill, err := s.deps.Lifecycle.GetBill(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRender, err)
		return
	}
	customer, err := s.deps.Customers.Get(ctx, bill.CustomerID)
	if err != nil {
		s.fail(w, r, log.OpRender, err)
		return
	}
	entries, err := s.deps.Entries.ListMilkEntries(ctx, records.BillEntries(bill))
	if err != nil {
		s.fail(w, r, log.OpRender, err)
		return
	}
	cfg := s.deps.Settings.Billing()
	pdf, err := invoice.Render(ctx, invoice.Document{
		Bill:     bill,
		Customer: customer,
		Entries:  entries,
		Header:   cfg.InvoiceHeader,
		Footer:   cfg.InvoiceFooter,
		IssuedOn: s.today(),
	})
	if err != nil {
		s.fail(w, r, log.OpRender, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+invoice.Filename(bill, customer)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, pdf); err != nil {
		s.logger.WarnContext(ctx, "Invoice write interrupted", log.FieldBillID, bill.ID, log.FieldError, err)
	}
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := ParseDateRange(q, false)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	mode := core.PaymentMode(sanitizeInput(q.Get("mode")))
	if mode != "" && !mode.Valid() {
		s.fail(w, r, log.OpList, &core.ValidationError{Field: "mode", Msg: "must be cash, online or upi"})
		return
	}
	payments, err := s.deps.Lifecycle.ListPayments(r.Context(), records.PaymentFilter{
		BillID:     sanitizeInput(q.Get("bill_id")),
		CustomerID: sanitizeInput(q.Get("customer_id")),
		Mode:       mode,
		From:       from,
		To:         to,
	})
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(nonNil(payments)).Write(w)
}

func (s *Server) handlePaymentSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := ParseDateRange(r.URL.Query(), false)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	summary, err := s.deps.Lifecycle.PaymentSummary(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(summary).Write(w)
}
