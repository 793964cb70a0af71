package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"dairyflow/internal/billing"
	"dairyflow/internal/cache"
	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/middleware/ratelimit"
	"dairyflow/internal/middleware/security"
	"dairyflow/internal/middleware/trace"
	"dairyflow/internal/records"
	"dairyflow/internal/report"
	"dairyflow/internal/services"
	"dairyflow/internal/settings"
)

const (
	viewCacheSize = 200
	viewCacheTTL  = time.Minute
)

// Deps are the collaborators the handlers call. Ready is optional and backs
// the readiness probe.
type Deps struct {
	Customers *services.CustomerService
	Milk      *services.MilkService
	Expenses  *services.ExpenseService
	Builder   *billing.Builder
	Lifecycle *billing.Lifecycle
	Reports   *report.Service
	Settings  *settings.Manager
	// Entries loads the lines printed on an invoice.
	Entries records.MilkEntryStore
	Ready   func(ctx context.Context) error
}

type appMetrics struct {
	uptime time.Time
}

// Server is the JSON API.
type Server struct {
	http.Server
	deps   Deps
	logger *log.Logger
	now    func() time.Time

	traceMiddleware  *trace.Middleware
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter

	caches         *cache.Manager
	dashboardCache *cache.LRUCache[report.Dashboard]
	seriesCache    *cache.LRUCache[[]core.SeriesPoint]
	pnlCache       *cache.LRUCache[[]core.MonthOverview]

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard(log.ComponentHTTP)
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		deps:             deps,
		logger:           logger,
		now:              time.Now,
		securityDetector: security.NewDetector(logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: 120,
			SkipSafeMethods:   true,
		}),
		caches:         cache.NewManager(logger.WithComponent(log.ComponentCache)),
		dashboardCache: cache.NewLRUCache[report.Dashboard](viewCacheSize, viewCacheTTL),
		seriesCache:    cache.NewLRUCache[[]core.SeriesPoint](viewCacheSize, viewCacheTTL),
		pnlCache:       cache.NewLRUCache[[]core.MonthOverview](viewCacheSize, viewCacheTTL),
		appMetrics:     appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	s.caches.Register(s.dashboardCache)
	s.caches.Register(s.seriesCache)
	s.caches.Register(s.pnlCache)
	s.caches.StartCleanup(5 * time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, try again later").Write(w)
	})

	var handler http.Handler = mux
	handler = s.invalidateOnWrite(handler)
	handler = limit(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/customers", s.handleListCustomers)
	mux.HandleFunc("POST /api/customers", s.handleCreateCustomer)
	mux.HandleFunc("GET /api/customers/{id}", s.handleGetCustomer)
	mux.HandleFunc("PUT /api/customers/{id}", s.handleUpdateCustomer)
	mux.HandleFunc("DELETE /api/customers/{id}", s.handleDeleteCustomer)
	mux.HandleFunc("POST /api/customers/{id}/deactivate", s.handleDeactivateCustomer)

	mux.HandleFunc("GET /api/milk-entries", s.handleListMilkEntries)
	mux.HandleFunc("GET /api/milk-entries/totals", s.handleDayTotals)
	mux.HandleFunc("POST /api/milk-entries/toggle", s.handleToggleDelivery)
	mux.HandleFunc("POST /api/milk-entries/extra", s.handleSetExtra)
	mux.HandleFunc("POST /api/milk-entries/seed", s.handleSeedDay)

	mux.HandleFunc("GET /api/bills", s.handleListBills)
	mux.HandleFunc("POST /api/bills", s.handleGenerateBill)
	mux.HandleFunc("POST /api/bills/generate-all", s.handleGenerateAll)
	mux.HandleFunc("GET /api/bills/{id}", s.handleGetBill)
	mux.HandleFunc("POST /api/bills/{id}/pay", s.handlePayBill)
	mux.HandleFunc("GET /api/bills/{id}/invoice.pdf", s.handleInvoice)

	mux.HandleFunc("GET /api/payments", s.handleListPayments)
	mux.HandleFunc("GET /api/payments/summary", s.handlePaymentSummary)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/expense-categories", s.handleListCategories)
	mux.HandleFunc("POST /api/expense-categories", s.handleCreateCategory)
	mux.HandleFunc("DELETE /api/expense-categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/reports/series", s.handleSeries)
	mux.HandleFunc("GET /api/reports/pnl", s.handlePnL)
	mux.HandleFunc("GET /api/reports/expenses-by-category", s.handleExpensesByCategory)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)

	mux.HandleFunc("GET /api/settings", s.handleListSettings)
	mux.HandleFunc("GET /api/settings/{key}", s.handleGetSetting)
	mux.HandleFunc("PUT /api/settings/{key}", s.handlePutSetting)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// invalidateOnWrite drops the cached read views after every successful
// write request.
func (s *Server) invalidateOnWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status != 0 && rec.status < 400 {
			s.caches.InvalidateAll()
		}
	})
}

// fail writes the response for err and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorFor(err)
	if resp.statusCode >= 500 {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
				log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", ""))
	}
	resp.Write(w)
}

func (s *Server) today() core.Date {
	return core.DateOf(s.now())
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
