package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
	"dairyflow/internal/services"
)

type expenseList struct {
	Expenses []core.Expense  `json:"expenses"`
	Total    decimal.Decimal `json:"total"`
}

type categoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := ParseDateRange(q, false)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	f := records.ExpenseFilter{CategoryID: sanitizeInput(q.Get("category_id")), From: from, To: to}
	expenses, err := s.deps.Expenses.ListExpenses(r.Context(), f)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	total, err := s.deps.Expenses.Total(r.Context(), f)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(expenseList{Expenses: nonNil(expenses), Total: core.RoundMoney(total)}).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in services.ExpenseInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	in.Description = sanitizeInput(in.Description)
	if in.Date.IsZero() {
		in.Date = s.today()
	}
	e, err := s.deps.Expenses.CreateExpense(r.Context(), in)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Created("").Data(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Expenses.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Expenses.ListCategories(r.Context())
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(nonNil(cats)).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	c, err := s.deps.Expenses.CreateCategory(r.Context(), sanitizeInput(req.Name), sanitizeInput(req.Icon))
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Created("").Data(c).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Expenses.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
