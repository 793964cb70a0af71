package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dairyflow/internal/billing"
	"dairyflow/internal/core"
	"dairyflow/internal/records/memory"
	"dairyflow/internal/report"
	"dairyflow/internal/services"
	"dairyflow/internal/settings"
)

type testServer struct {
	*Server
	store *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	mgr := settings.NewManager(store, nil)
	deps := Deps{
		Customers: services.NewCustomerService(store, mgr, nil),
		Milk:      services.NewMilkService(store, mgr, nil),
		Expenses:  services.NewExpenseService(store, nil),
		Builder:   billing.NewBuilder(store, mgr, nil, nil),
		Lifecycle: billing.NewLifecycle(store, nil, nil),
		Reports:   report.NewService(store, nil),
		Settings:  mgr,
		Entries:   store,
	}
	s := NewServer(":0", deps, nil)
	s.now = func() time.Time { return time.Date(2024, 12, 15, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return &testServer{Server: s, store: store}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	switch b := body.(type) {
	case nil:
		r = httptest.NewRequest(method, target, nil)
	case string:
		r = httptest.NewRequest(method, target, strings.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = httptest.NewRequest(method, target, bytes.NewReader(raw))
		r.Header.Set("Content-Type", "application/json")
	}
	r.RemoteAddr = "203.0.113.5:40000"
	w := httptest.NewRecorder()
	ts.Handler.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d, body %s", w.Code, want, w.Body.String())
	}
}

func (ts *testServer) createCustomer(t *testing.T, name string) core.Customer {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/customers", map[string]any{
		"name": name, "milk_type": "cow", "daily_quantity": "2",
	})
	expectStatus(t, w, http.StatusCreated)
	return decodeBody[core.Customer](t, w)
}

func (ts *testServer) deliver(t *testing.T, customerID, date string) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/milk-entries/toggle", map[string]any{
		"customer_id": customerID, "date": date, "session": "morning",
	})
	expectStatus(t, w, http.StatusOK)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody[map[string]any](t, w)["status"]; got != "ok" {
		t.Errorf("status = %v", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestReady(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodGet, "/readyz", nil), http.StatusOK)

	ts.deps.Ready = func(context.Context) error { return errors.New("database is locked") }
	w := ts.do(t, http.MethodGet, "/readyz", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)
	if !strings.Contains(w.Body.String(), "database is locked") {
		t.Errorf("body should name the failed check: %s", w.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/healthz", nil)
	w := ts.do(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "http_requests_total 2") {
		t.Errorf("metrics output:\n%s", w.Body.String())
	}
}

func TestCustomers(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Asha")
	if !c.RatePerLiter.Equal(decimal.NewFromInt(60)) {
		t.Errorf("rate = %s, want configured cow rate 60", c.RatePerLiter)
	}

	w := ts.do(t, http.MethodGet, "/api/customers/"+c.ID, nil)
	expectStatus(t, w, http.StatusOK)

	w = ts.do(t, http.MethodPost, "/api/customers/"+c.ID+"/deactivate", nil)
	expectStatus(t, w, http.StatusOK)
	if decodeBody[core.Customer](t, w).Active {
		t.Error("customer should be inactive")
	}

	w = ts.do(t, http.MethodGet, "/api/customers?active=true", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody[[]core.Customer](t, w); len(got) != 0 {
		t.Errorf("active customers = %d, want 0", len(got))
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty list should encode as [], got %s", w.Body.String())
	}

	expectStatus(t, ts.do(t, http.MethodDelete, "/api/customers/"+c.ID, nil), http.StatusNoContent)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/customers/"+c.ID, nil), http.StatusNotFound)
}

func TestRequestErrors(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing name", map[string]any{"milk_type": "cow", "daily_quantity": "1"}, http.StatusUnprocessableEntity},
		{"unknown field", map[string]any{"name": "A", "milk_type": "cow", "colour": "white"}, http.StatusBadRequest},
		{"malformed json", `{"name": `, http.StatusBadRequest},
		{"empty body", "", http.StatusBadRequest},
		{"wrong type", map[string]any{"name": 42}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/customers", tt.body)
			expectStatus(t, w, tt.want)
			if decodeBody[ErrorBody](t, w).Error == "" {
				t.Error("error body should carry a message")
			}
		})
	}
}

func TestBillingFlow(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Asha")
	ts.deliver(t, c.ID, "2024-11-10")
	ts.deliver(t, c.ID, "2024-11-11")

	req := map[string]any{"customer_id": c.ID, "month": 11, "year": 2024}
	w := ts.do(t, http.MethodPost, "/api/bills", req)
	expectStatus(t, w, http.StatusCreated)
	bill := decodeBody[core.Bill](t, w)
	if !bill.TotalLiters.Equal(decimal.NewFromInt(2)) || !bill.FinalAmount.Equal(decimal.NewFromInt(120)) {
		t.Errorf("bill liters %s final %s, want 2 and 120", bill.TotalLiters, bill.FinalAmount)
	}
	if w.Header().Get("Location") != "/api/bills/"+bill.ID {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}

	expectStatus(t, ts.do(t, http.MethodPost, "/api/bills", req), http.StatusConflict)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/bills",
		map[string]any{"customer_id": c.ID, "month": 12, "year": 2024}), http.StatusUnprocessableEntity)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/bills",
		map[string]any{"customer_id": c.ID, "month": 13, "year": 2024}), http.StatusUnprocessableEntity)

	w = ts.do(t, http.MethodGet, "/api/bills?month=11&year=2024&status=unpaid", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody[[]core.Bill](t, w); len(got) != 1 {
		t.Fatalf("unpaid bills = %d, want 1", len(got))
	}

	w = ts.do(t, http.MethodPost, "/api/bills/"+bill.ID+"/pay",
		map[string]any{"payment_mode": "upi", "payment_date": "2024-12-05"})
	expectStatus(t, w, http.StatusOK)
	paid := decodeBody[payResponse](t, w)
	if paid.Bill.Status != core.Paid || paid.Payment == nil {
		t.Fatalf("pay response = %+v", paid)
	}
	if !paid.Payment.Amount.Equal(bill.FinalAmount) {
		t.Errorf("payment amount %s, want %s", paid.Payment.Amount, bill.FinalAmount)
	}

	expectStatus(t, ts.do(t, http.MethodPost, "/api/bills/"+bill.ID+"/pay",
		map[string]any{"payment_mode": "cash"}), http.StatusConflict)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/bills/missing/pay",
		map[string]any{"payment_mode": "cash"}), http.StatusNotFound)

	w = ts.do(t, http.MethodGet, "/api/payments/summary?from=2024-12-01&to=2024-12-31", nil)
	expectStatus(t, w, http.StatusOK)
	summary := decodeBody[billing.PaymentSummary](t, w)
	if summary.Count != 1 || !summary.Total.Equal(decimal.NewFromInt(120)) {
		t.Errorf("summary = %+v", summary)
	}
}

func TestGenerateAllDefaultsToPreviousMonth(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createCustomer(t, "Asha")
	ts.createCustomer(t, "Bina")
	ts.deliver(t, a.ID, "2024-11-03")

	w := ts.do(t, http.MethodPost, "/api/bills/generate-all", nil)
	expectStatus(t, w, http.StatusOK)
	res := decodeBody[billing.BatchResult](t, w)
	if res.Period != (core.Period{Year: 2024, Month: 11}) {
		t.Errorf("period = %+v, want November 2024", res.Period)
	}
	if res.Created != 1 || res.Skipped != 1 {
		t.Errorf("created %d skipped %d, want 1 and 1", res.Created, res.Skipped)
	}
}

func TestInvoicePDF(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Asha Devi")
	ts.deliver(t, c.ID, "2024-11-10")
	w := ts.do(t, http.MethodPost, "/api/bills", map[string]any{"customer_id": c.ID, "month": 11, "year": 2024})
	expectStatus(t, w, http.StatusCreated)
	bill := decodeBody[core.Bill](t, w)

	w = ts.do(t, http.MethodGet, "/api/bills/"+bill.ID+"/invoice.pdf", nil)
	expectStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "Asha_Devi.pdf") {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestInvoiceFollowsBillDeliveryPolicy(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Asha Devi")
	ts.deliver(t, c.ID, "2024-11-10")
	ts.deliver(t, c.ID, "2024-11-11")
	ts.deliver(t, c.ID, "2024-11-11") // toggled back to undelivered

	w := ts.do(t, http.MethodPost, "/api/bills", map[string]any{
		"customer_id": c.ID, "month": 11, "year": 2024, "include_undelivered": true,
	})
	expectStatus(t, w, http.StatusCreated)
	bill := decodeBody[core.Bill](t, w)
	if !bill.IncludeUndelivered || !bill.TotalLiters.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("bill = include_undelivered %v, liters %s; want true, 2", bill.IncludeUndelivered, bill.TotalLiters)
	}

	w = ts.do(t, http.MethodGet, "/api/bills/"+bill.ID, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody[core.Bill](t, w); !got.IncludeUndelivered {
		t.Error("stored bill lost include_undelivered")
	}

	w = ts.do(t, http.MethodGet, "/api/bills/"+bill.ID+"/invoice.pdf", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestDashboardCache(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Asha")

	w := ts.do(t, http.MethodGet, "/api/dashboard?date=2024-11-10", nil)
	expectStatus(t, w, http.StatusOK)
	if w.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first read X-Cache = %q", w.Header().Get("X-Cache"))
	}
	w = ts.do(t, http.MethodGet, "/api/dashboard?date=2024-11-10", nil)
	if w.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second read X-Cache = %q", w.Header().Get("X-Cache"))
	}

	ts.deliver(t, c.ID, "2024-11-10")
	w = ts.do(t, http.MethodGet, "/api/dashboard?date=2024-11-10", nil)
	if w.Header().Get("X-Cache") != "MISS" {
		t.Errorf("a write should invalidate the cache, X-Cache = %q", w.Header().Get("X-Cache"))
	}
	d := decodeBody[report.Dashboard](t, w)
	if !d.TodayLiters.Equal(decimal.NewFromInt(1)) {
		t.Errorf("today liters = %s, want 1", d.TodayLiters)
	}
}

func TestReports(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCustomer(t, "Asha")
	ts.deliver(t, c.ID, "2024-11-10")
	ts.deliver(t, c.ID, "2024-11-12")

	w := ts.do(t, http.MethodGet, "/api/reports/series?from=2024-11-01&to=2024-11-30&group_by=day", nil)
	expectStatus(t, w, http.StatusOK)
	points := decodeBody[[]core.SeriesPoint](t, w)
	if len(points) != 2 || points[0].Label != "2024-11-10" {
		t.Errorf("points = %+v", points)
	}

	expectStatus(t, ts.do(t, http.MethodGet,
		"/api/reports/series?from=2024-11-01&to=2024-11-30&group_by=customer&source=expenses", nil),
		http.StatusUnprocessableEntity)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/reports/series?from=11/01/2024", nil),
		http.StatusUnprocessableEntity)

	w = ts.do(t, http.MethodGet, "/api/reports/pnl?from=2024-11-01&to=2024-11-30", nil)
	expectStatus(t, w, http.StatusOK)
	if rows := decodeBody[[]core.MonthOverview](t, w); len(rows) != 1 {
		t.Errorf("pnl rows = %d, want 1", len(rows))
	}
}

func TestExpenses(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/expense-categories", map[string]any{"name": "Feed"})
	expectStatus(t, w, http.StatusCreated)
	cat := decodeBody[core.ExpenseCategory](t, w)

	w = ts.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"category_id": cat.ID, "date": "2024-12-01", "amount": "450.50", "description": "Fodder",
	})
	expectStatus(t, w, http.StatusCreated)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"date": "2024-12-01", "amount": "-1",
	}), http.StatusUnprocessableEntity)

	w = ts.do(t, http.MethodGet, "/api/expenses?from=2024-12-01&to=2024-12-31", nil)
	expectStatus(t, w, http.StatusOK)
	list := decodeBody[expenseList](t, w)
	if len(list.Expenses) != 1 || !list.Total.Equal(decimal.RequireFromString("450.5")) {
		t.Errorf("list = %+v", list)
	}
}

func TestSettings(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/settings/billing", nil), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/settings/theme", nil), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodPut, "/api/settings/app", `{"entries_per_day": 3}`), http.StatusUnprocessableEntity)

	w := ts.do(t, http.MethodPut, "/api/settings/app", `{"entries_per_day": 1}`)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody[settings.App](t, w); got.EntriesPerDay != 1 || got.AppName != "DairyFlow" {
		t.Errorf("app settings = %+v", got)
	}

	w = ts.do(t, http.MethodGet, "/api/settings", nil)
	expectStatus(t, w, http.StatusOK)
	if all := decodeBody[map[string]json.RawMessage](t, w); len(all) != len(settings.Keys()) {
		t.Errorf("settings keys = %d", len(all))
	}
}

func TestTraceMethodBlocked(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, "TRACE", "/api/customers", nil), http.StatusMethodNotAllowed)
}
