package http

import (
	"net/http"
	"strings"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/report"
)

// handleSeries serves chart series. from and to default to the current
// month; group_by defaults to day and source to milk.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month := core.PeriodOf(s.today())
	from, err := ParseDateParam(q, "from", month.FirstDay())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	to, err := ParseDateParam(q, "to", month.LastDay())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	req := report.SeriesRequest{
		From:    from,
		To:      to,
		GroupBy: core.GroupBy(strings.ToLower(sanitizeInput(q.Get("group_by")))),
		Source:  report.Source(strings.ToLower(sanitizeInput(q.Get("source")))),
	}
	if req.GroupBy == "" {
		req.GroupBy = core.GroupByDay
	}
	if req.Source == "" {
		req.Source = report.SourceMilk
	}

	key := strings.Join([]string{string(req.Source), string(req.GroupBy), from.String(), to.String()}, "|")
	if points, ok := s.seriesCache.Get(key); ok {
		NewJSONResponse().Header("X-Cache", "HIT").Data(points).Write(w)
		return
	}
	points, err := s.deps.Reports.Series(r.Context(), req)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	points = nonNil(points)
	s.seriesCache.Set(key, points)
	NewJSONResponse().Header("X-Cache", "MISS").Data(points).Write(w)
}

// handlePnL serves the month-by-month profit table. The range defaults to
// the last twelve months including the current one.
func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current := core.PeriodOf(s.today())
	start := current
	for i := 0; i < 11; i++ {
		start = start.Previous()
	}
	from, err := ParseDateParam(q, "from", start.FirstDay())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	to, err := ParseDateParam(q, "to", current.LastDay())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}

	key := from.String() + "|" + to.String()
	if rows, ok := s.pnlCache.Get(key); ok {
		NewJSONResponse().Header("X-Cache", "HIT").Data(rows).Write(w)
		return
	}
	rows, err := s.deps.Reports.MonthlyPnL(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	rows = nonNil(rows)
	s.pnlCache.Set(key, rows)
	NewJSONResponse().Header("X-Cache", "MISS").Data(rows).Write(w)
}

func (s *Server) handleExpensesByCategory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month := core.PeriodOf(s.today())
	from, err := ParseDateParam(q, "from", month.FirstDay())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	to, err := ParseDateParam(q, "to", month.LastDay())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	rows, err := s.deps.Reports.ExpensesByCategory(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(nonNil(rows)).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDateParam(r.URL.Query(), "date", s.today())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	key := date.String()
	if d, ok := s.dashboardCache.Get(key); ok {
		NewJSONResponse().Header("X-Cache", "HIT").Data(d).Write(w)
		return
	}
	d, err := s.deps.Reports.Dashboard(r.Context(), date)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	s.dashboardCache.Set(key, d)
	NewJSONResponse().Header("X-Cache", "MISS").Data(d).Write(w)
}

// nonNil makes empty results encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
