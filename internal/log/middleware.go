package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	// Return default logger if not found
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.InfoContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogBillGenerated logs a newly created bill
func (sl *StructuredLogger) LogBillGenerated(ctx context.Context, billID, billNumber, customerID, period, finalAmount string) {
	fields := NewFields().
		WithBill(billID, billNumber, customerID, period).
		WithAmount(finalAmount).
		WithOperation(OpGenerate).
		WithComponent(ComponentBilling)

	sl.logger.InfoContext(ctx, "Bill generated", fields.ToSlice()...)
}

// LogBillPaid logs a bill transition to paid
func (sl *StructuredLogger) LogBillPaid(ctx context.Context, billID, billNumber, customerID, period, mode string) {
	fields := NewFields().
		WithBill(billID, billNumber, customerID, period).
		WithOperation(OpPay).
		WithComponent(ComponentBilling)
	fields[FieldPaymentMode] = mode

	sl.logger.InfoContext(ctx, "Bill marked paid", fields.ToSlice()...)
}

// LogExpenseCreated logs a recorded expense
func (sl *StructuredLogger) LogExpenseCreated(ctx context.Context, expenseID, date, amount string) {
	fields := NewFields().
		WithAmount(amount).
		WithOperation(OpCreate).
		WithComponent(ComponentApp)
	fields[FieldExpenseID] = expenseID
	fields["date"] = date

	sl.logger.InfoContext(ctx, "Expense created", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}