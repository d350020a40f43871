package billing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlanPricing(t *testing.T) {
	pricing := DefaultPlanPricing()

	assert.True(t, decimal.NewFromInt(750).Equal(pricing.Price(PlanMonthly)))
	assert.True(t, decimal.NewFromInt(7500).Equal(pricing.Price(PlanYearly)))
	assert.True(t, pricing.Price(PlanEnterprise).IsZero())
	assert.True(t, pricing.Price("unknown").IsZero())
}

func TestParsePricing(t *testing.T) {
	t.Run("overrides listed plans", func(t *testing.T) {
		pricing, err := ParsePricing([]byte(`
plans:
  monthly: 800
  yearly: "8000.50"
`))
		require.NoError(t, err)
		assert.Equal(t, "800", pricing.Price(PlanMonthly).String())
		assert.Equal(t, "8000.5", pricing.Price(PlanYearly).String())
		assert.True(t, pricing.Price(PlanEnterprise).IsZero())
	})

	t.Run("empty document keeps defaults", func(t *testing.T) {
		pricing, err := ParsePricing([]byte(``))
		require.NoError(t, err)
		assert.Equal(t, DefaultPlanPricing(), pricing)
	})

	t.Run("unknown plan", func(t *testing.T) {
		_, err := ParsePricing([]byte("plans:\n  weekly: 10\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown plan")
	})

	t.Run("negative price", func(t *testing.T) {
		_, err := ParsePricing([]byte("plans:\n  monthly: -1\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not be negative")
	})

	t.Run("invalid price", func(t *testing.T) {
		_, err := ParsePricing([]byte("plans:\n  monthly: abc\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid price")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := ParsePricing([]byte("plans: [\n"))
		require.Error(t, err)
	})
}

func TestLoadPricing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  monthly: 900\n"), 0o600))

	pricing, err := LoadPricing(path)
	require.NoError(t, err)
	assert.Equal(t, "900", pricing.Price(PlanMonthly).String())

	_, err = LoadPricing(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
