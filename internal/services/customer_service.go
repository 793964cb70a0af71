package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
	"dairyflow/internal/settings"
)

// RateSource supplies the default per-liter rates for new customers.
type RateSource interface {
	MilkRates() settings.MilkRates
}

// CustomerInput carries the editable customer fields. A nil rate falls back
// to the configured rate for the milk type.
type CustomerInput struct {
	Name          string           `json:"name"`
	Phone         string           `json:"phone"`
	Address       string           `json:"address"`
	MilkType      core.MilkType    `json:"milk_type"`
	DailyQuantity decimal.Decimal  `json:"daily_quantity"`
	RatePerLiter  *decimal.Decimal `json:"rate_per_liter"`
	Active        *bool            `json:"is_active"`
}

type CustomerService struct {
	store  records.CustomerStore
	rates  RateSource
	logger *log.Logger
}

func NewCustomerService(store records.CustomerStore, rates RateSource, logger *log.Logger) *CustomerService {
	if logger == nil {
		logger = log.Discard(log.ComponentApp)
	}
	return &CustomerService{store: store, rates: rates, logger: logger}
}

func (s *CustomerService) defaultRate(t core.MilkType) decimal.Decimal {
	if s.rates == nil {
		return settings.DefaultMilkRates().RateFor(t)
	}
	return s.rates.MilkRates().RateFor(t)
}

func (in CustomerInput) apply(c core.Customer, rate decimal.Decimal) core.Customer {
	c.Name = strings.TrimSpace(in.Name)
	c.Phone = strings.TrimSpace(in.Phone)
	c.Address = strings.TrimSpace(in.Address)
	c.MilkType = in.MilkType
	c.DailyQuantity = in.DailyQuantity.Round(3)
	c.RatePerLiter = core.RoundMoney(rate)
	if in.Active != nil {
		c.Active = *in.Active
	}
	return c
}

// Create adds an active customer.
func (s *CustomerService) Create(ctx context.Context, in CustomerInput) (core.Customer, error) {
	rate := s.defaultRate(in.MilkType)
	if in.RatePerLiter != nil {
		rate = *in.RatePerLiter
	}
	c := in.apply(core.Customer{Active: true}, rate)
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	created, err := s.store.CreateCustomer(ctx, c)
	if err != nil {
		return core.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	s.logger.InfoContext(ctx, "Customer created",
		log.FieldCustomerID, created.ID,
		"milk_type", string(created.MilkType))
	return created, nil
}

// Update replaces the editable fields of an existing customer. A nil rate
// keeps the customer's current rate.
func (s *CustomerService) Update(ctx context.Context, id string, in CustomerInput) (core.Customer, error) {
	current, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return core.Customer{}, err
	}
	rate := current.RatePerLiter
	if in.RatePerLiter != nil {
		rate = *in.RatePerLiter
	}
	c := in.apply(current, rate)
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	updated, err := s.store.UpdateCustomer(ctx, c)
	if err != nil {
		return core.Customer{}, fmt.Errorf("update customer %s: %w", id, err)
	}
	return updated, nil
}

// Deactivate keeps the customer and their history but excludes them from
// daily sheets and batch billing.
func (s *CustomerService) Deactivate(ctx context.Context, id string) (core.Customer, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return core.Customer{}, err
	}
	if !c.Active {
		return c, nil
	}
	c.Active = false
	updated, err := s.store.UpdateCustomer(ctx, c)
	if err != nil {
		return core.Customer{}, fmt.Errorf("deactivate customer %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Customer deactivated", log.FieldCustomerID, id)
	return updated, nil
}

// Delete removes a customer with no bills or entries; otherwise the store
// returns core.ErrConflict.
func (s *CustomerService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteCustomer(ctx, id); err != nil {
		return fmt.Errorf("delete customer %s: %w", id, err)
	}
	return nil
}

func (s *CustomerService) Get(ctx context.Context, id string) (core.Customer, error) {
	return s.store.GetCustomer(ctx, id)
}

func (s *CustomerService) List(ctx context.Context, f records.CustomerFilter) ([]core.Customer, error) {
	if f.MilkType != "" && !f.MilkType.Valid() {
		return nil, &core.ValidationError{Field: "milk_type", Msg: "must be cow or buffalo"}
	}
	return s.store.ListCustomers(ctx, f)
}
