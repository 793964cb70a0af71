// Package settings holds the typed app_settings payloads and a Manager that
// loads them once and reloads a key after every save.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/records"
)

const (
	KeyMilkRates = "milk_rates"
	KeyBilling   = "billing"
	KeyApp       = "app"
)

// Keys lists every known settings key.
func Keys() []string { return []string{KeyMilkRates, KeyBilling, KeyApp} }

type MilkRates struct {
	CowRate     decimal.Decimal `json:"cow_rate"`
	BuffaloRate decimal.Decimal `json:"buffalo_rate"`
}

type Billing struct {
	AutoBillGeneration bool            `json:"auto_bill_generation"`
	IncludeLateFee     bool            `json:"include_late_fee"`
	LateFeeAmount      decimal.Decimal `json:"late_fee_amount"`
	DiscountEnabled    bool            `json:"discount_enabled"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	InvoiceHeader      string          `json:"invoice_header"`
	InvoiceFooter      string          `json:"invoice_footer"`
}

type App struct {
	AppName       string `json:"app_name"`
	Notifications bool   `json:"notifications"`
	EmailAlerts   bool   `json:"email_alerts"`
	EntriesPerDay int    `json:"entries_per_day"`
}

func DefaultMilkRates() MilkRates {
	return MilkRates{CowRate: decimal.NewFromInt(60), BuffaloRate: decimal.NewFromInt(80)}
}

func DefaultBilling() Billing {
	return Billing{
		AutoBillGeneration: true,
		LateFeeAmount:      decimal.NewFromInt(50),
		DiscountPercentage: decimal.NewFromInt(5),
		InvoiceHeader:      "DairyFlow Farm",
		InvoiceFooter:      "Thank you for your business!",
	}
}

func DefaultApp() App {
	return App{AppName: "DairyFlow", Notifications: true, EntriesPerDay: 2}
}

// RateFor returns the configured rate for a milk type.
func (r MilkRates) RateFor(t core.MilkType) decimal.Decimal {
	if t == core.Buffalo {
		return r.BuffaloRate
	}
	return r.CowRate
}

func (r MilkRates) Validate() error {
	if r.CowRate.IsNegative() {
		return &core.ValidationError{Field: "cow_rate", Msg: "cannot be negative"}
	}
	if r.BuffaloRate.IsNegative() {
		return &core.ValidationError{Field: "buffalo_rate", Msg: "cannot be negative"}
	}
	return nil
}

func (b Billing) Validate() error {
	if b.LateFeeAmount.IsNegative() {
		return &core.ValidationError{Field: "late_fee_amount", Msg: "cannot be negative"}
	}
	if b.DiscountPercentage.IsNegative() || b.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return &core.ValidationError{Field: "discount_percentage", Msg: "must be between 0 and 100"}
	}
	return nil
}

func (a App) Validate() error {
	if strings.TrimSpace(a.AppName) == "" {
		return &core.ValidationError{Field: "app_name", Msg: "is required"}
	}
	if a.EntriesPerDay != 1 && a.EntriesPerDay != 2 {
		return &core.ValidationError{Field: "entries_per_day", Msg: "must be 1 or 2"}
	}
	return nil
}

// Manager is the process-wide view of app_settings.
type Manager struct {
	store  records.SettingsStore
	logger *log.Logger

	mu      sync.RWMutex
	rates   MilkRates
	billing Billing
	app     App
}

// NewManager returns a manager holding defaults until Load is called.
func NewManager(store records.SettingsStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard(log.ComponentSettings)
	}
	return &Manager{
		store:   store,
		logger:  logger,
		rates:   DefaultMilkRates(),
		billing: DefaultBilling(),
		app:     DefaultApp(),
	}
}

// Load reads all keys from the store. Missing keys keep their defaults and
// missing fields inside a stored payload keep theirs too.
func (m *Manager) Load(ctx context.Context) error {
	rates := DefaultMilkRates()
	billing := DefaultBilling()
	app := DefaultApp()

	if err := m.read(ctx, KeyMilkRates, &rates); err != nil {
		return err
	}
	if err := m.read(ctx, KeyBilling, &billing); err != nil {
		return err
	}
	if err := m.read(ctx, KeyApp, &app); err != nil {
		return err
	}
	for key, v := range map[string]interface{ Validate() error }{KeyMilkRates: rates, KeyBilling: billing, KeyApp: app} {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}

	m.mu.Lock()
	m.rates, m.billing, m.app = rates, billing, app
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Settings loaded",
		"entries_per_day", app.EntriesPerDay,
		"auto_bill_generation", billing.AutoBillGeneration)
	return nil
}

func (m *Manager) read(ctx context.Context, key string, dst any) error {
	raw, err := m.store.GetSetting(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read setting %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode setting %s: %w", key, err)
	}
	return nil
}

func (m *Manager) MilkRates() MilkRates {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rates
}

func (m *Manager) Billing() Billing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.billing
}

func (m *Manager) App() App {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.app
}

func (m *Manager) SaveMilkRates(ctx context.Context, v MilkRates) error {
	return m.save(ctx, KeyMilkRates, v)
}

func (m *Manager) SaveBilling(ctx context.Context, v Billing) error {
	return m.save(ctx, KeyBilling, v)
}

func (m *Manager) SaveApp(ctx context.Context, v App) error {
	return m.save(ctx, KeyApp, v)
}

func (m *Manager) save(ctx context.Context, key string, v interface{ Validate() error }) error {
	if err := v.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	if err := m.store.PutSetting(ctx, key, raw); err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return m.Load(ctx)
}

// Get returns the current value for key.
func (m *Manager) Get(key string) (any, error) {
	switch key {
	case KeyMilkRates:
		return m.MilkRates(), nil
	case KeyBilling:
		return m.Billing(), nil
	case KeyApp:
		return m.App(), nil
	}
	return nil, fmt.Errorf("setting %s: %w", key, core.ErrNotFound)
}

// Put decodes raw over the current value for key, saves it and returns the
// stored result.
func (m *Manager) Put(ctx context.Context, key string, raw []byte) (any, error) {
	var err error
	switch key {
	case KeyMilkRates:
		v := m.MilkRates()
		if err = decode(raw, &v); err == nil {
			err = m.SaveMilkRates(ctx, v)
		}
	case KeyBilling:
		v := m.Billing()
		if err = decode(raw, &v); err == nil {
			err = m.SaveBilling(ctx, v)
		}
	case KeyApp:
		v := m.App()
		if err = decode(raw, &v); err == nil {
			err = m.SaveApp(ctx, v)
		}
	default:
		return nil, fmt.Errorf("setting %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.Get(key)
}

func decode(raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return &core.ValidationError{Field: "body", Msg: "invalid JSON: " + err.Error()}
	}
	return nil
}
