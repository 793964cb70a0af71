package http

import (
	"net/http"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
	"dairyflow/internal/services"
)

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly, err := ParseBoolParam(q, "active")
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	customers, err := s.deps.Customers.List(r.Context(), records.CustomerFilter{
		ActiveOnly: activeOnly,
		MilkType:   core.MilkType(sanitizeInput(q.Get("milk_type"))),
		Search:     sanitizeInput(q.Get("search")),
	})
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(nonNil(customers)).Write(w)
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var in services.CustomerInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	c, err := s.deps.Customers.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Created("/api/customers/" + c.ID).Data(c).Write(w)
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Customers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(c).Write(w)
}

func (s *Server) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var in services.CustomerInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	c, err := s.deps.Customers.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(c).Write(w)
}

func (s *Server) handleDeactivateCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Customers.Deactivate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(c).Write(w)
}

func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Customers.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
