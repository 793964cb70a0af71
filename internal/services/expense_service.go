package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
)

type ExpenseInput struct {
	CategoryID  string          `json:"category_id"`
	Date        core.Date       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ReceiptURL  string          `json:"receipt_url"`
}

// ExpenseService records farm expenses and manages their categories.
type ExpenseService struct {
	store  records.ExpenseStore
	logger *log.Logger
}

func NewExpenseService(store records.ExpenseStore, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Discard(log.ComponentApp)
	}
	return &ExpenseService{store: store, logger: logger}
}

// CreateExpense validates and saves an expense. An unknown category returns
// core.ErrNotFound.
func (s *ExpenseService) CreateExpense(ctx context.Context, in ExpenseInput) (core.Expense, error) {
	e := core.Expense{
		CategoryID:  strings.TrimSpace(in.CategoryID),
		Date:        in.Date,
		Amount:      core.RoundMoney(in.Amount),
		Description: strings.TrimSpace(in.Description),
		ReceiptURL:  strings.TrimSpace(in.ReceiptURL),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	log.NewStructuredLogger(s.logger).LogExpenseCreated(ctx, created.ID, created.Date.String(), created.Amount.String())
	return created, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

func (s *ExpenseService) ListExpenses(ctx context.Context, f records.ExpenseFilter) ([]core.Expense, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From.Time) {
		return nil, &core.ValidationError{Field: "to", Msg: "must not be before from"}
	}
	return s.store.ListExpenses(ctx, f)
}

// Total sums the expenses matching f.
func (s *ExpenseService) Total(ctx context.Context, f records.ExpenseFilter) (decimal.Decimal, error) {
	expenses, err := s.ListExpenses(ctx, f)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total, nil
}

func (s *ExpenseService) ListCategories(ctx context.Context) ([]core.ExpenseCategory, error) {
	return s.store.ListCategories(ctx)
}

// CreateCategory adds a category. Names are unique ignoring case.
func (s *ExpenseService) CreateCategory(ctx context.Context, name, icon string) (core.ExpenseCategory, error) {
	c := core.ExpenseCategory{Name: strings.TrimSpace(name), Icon: strings.TrimSpace(icon)}
	if err := c.Validate(); err != nil {
		return core.ExpenseCategory{}, err
	}
	created, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.ExpenseCategory{}, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

// DeleteCategory removes a category; its expenses become uncategorized.
func (s *ExpenseService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}
