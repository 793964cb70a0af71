package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dairyflow/internal/core"
	"dairyflow/internal/records"
	"dairyflow/internal/records/memory"
	"dairyflow/internal/settings"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixedRates settings.MilkRates

func (f fixedRates) MilkRates() settings.MilkRates { return settings.MilkRates(f) }

type fixedApp settings.App

func (f fixedApp) App() settings.App { return settings.App(f) }

func TestCustomerCreateUsesConfiguredRate(t *testing.T) {
	ctx := context.Background()
	svc := NewCustomerService(memory.New(), fixedRates{CowRate: dec("62"), BuffaloRate: dec("85")}, nil)

	c, err := svc.Create(ctx, CustomerInput{Name: "  Asha ", MilkType: core.Buffalo, DailyQuantity: dec("2")})
	require.NoError(t, err)
	assert.Equal(t, "Asha", c.Name)
	assert.True(t, c.Active)
	assert.True(t, c.RatePerLiter.Equal(dec("85")))

	explicit := dec("70")
	c, err = svc.Create(ctx, CustomerInput{Name: "Bina", MilkType: core.Cow, DailyQuantity: dec("1"), RatePerLiter: &explicit})
	require.NoError(t, err)
	assert.True(t, c.RatePerLiter.Equal(dec("70")))
}

func TestCustomerCreateWithoutRateSource(t *testing.T) {
	svc := NewCustomerService(memory.New(), nil, nil)
	c, err := svc.Create(context.Background(), CustomerInput{Name: "Asha", MilkType: core.Cow, DailyQuantity: dec("2")})
	require.NoError(t, err)
	assert.True(t, c.RatePerLiter.Equal(dec("60")))
}

func TestCustomerCreateValidation(t *testing.T) {
	svc := NewCustomerService(memory.New(), nil, nil)
	tests := []struct {
		name string
		in   CustomerInput
	}{
		{"empty name", CustomerInput{Name: " ", MilkType: core.Cow}},
		{"bad milk type", CustomerInput{Name: "Asha", MilkType: "goat"}},
		{"negative quantity", CustomerInput{Name: "Asha", MilkType: core.Cow, DailyQuantity: dec("-1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			assert.True(t, core.IsValidation(err), "err = %v", err)
		})
	}
}

func TestCustomerUpdateKeepsRate(t *testing.T) {
	ctx := context.Background()
	svc := NewCustomerService(memory.New(), nil, nil)
	c, err := svc.Create(ctx, CustomerInput{Name: "Asha", MilkType: core.Cow, DailyQuantity: dec("2")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, c.ID, CustomerInput{Name: "Asha Devi", Phone: "12345", MilkType: core.Cow, DailyQuantity: dec("3")})
	require.NoError(t, err)
	assert.Equal(t, "Asha Devi", updated.Name)
	assert.True(t, updated.DailyQuantity.Equal(dec("3")))
	assert.True(t, updated.RatePerLiter.Equal(dec("60")))
	assert.True(t, updated.Active)

	_, err = svc.Update(ctx, "missing", CustomerInput{Name: "X", MilkType: core.Cow})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCustomerDeactivate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewCustomerService(store, nil, nil)
	c, err := svc.Create(ctx, CustomerInput{Name: "Asha", MilkType: core.Cow, DailyQuantity: dec("2")})
	require.NoError(t, err)

	got, err := svc.Deactivate(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	active, err := svc.List(ctx, records.CustomerFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.List(ctx, records.CustomerFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.List(ctx, records.CustomerFilter{MilkType: "goat"})
	assert.True(t, core.IsValidation(err))
}
