package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/services"
)

type extraRequest struct {
	services.Slot
	ExtraQuantity decimal.Decimal `json:"extra_quantity"`
}

type seedRequest struct {
	Date    core.Date    `json:"date"`
	Session core.Session `json:"session"`
}

// handleListMilkEntries returns the daily sheet. date defaults to today.
func (s *Server) handleListMilkEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := ParseDateParam(q, "date", s.today())
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	entries, err := s.deps.Milk.Day(r.Context(), date, core.Session(sanitizeInput(q.Get("session"))))
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(nonNil(entries)).Write(w)
}

func (s *Server) handleDayTotals(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDateParam(r.URL.Query(), "date", s.today())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	totals, err := s.deps.Milk.DayTotals(r.Context(), date)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(totals).Write(w)
}

func (s *Server) handleToggleDelivery(w http.ResponseWriter, r *http.Request) {
	var slot services.Slot
	if err := decodeJSON(w, r, &slot); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	e, err := s.deps.Milk.ToggleDelivery(r.Context(), slot)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(e).Write(w)
}

func (s *Server) handleSetExtra(w http.ResponseWriter, r *http.Request) {
	var req extraRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	e, err := s.deps.Milk.SetExtraQuantity(r.Context(), req.Slot, req.ExtraQuantity)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(e).Write(w)
}

func (s *Server) handleSeedDay(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	if req.Session == "" {
		req.Session = core.Morning
	}
	res, err := s.deps.Milk.SeedDay(r.Context(), req.Date, req.Session)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Data(res).Write(w)
}
