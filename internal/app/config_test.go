package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigShopDefaults(t *testing.T) {
	t.Setenv("SHOP_TAX_RATE", "8.25")
	t.Setenv("SHOP_LABOR_RATE", "125.50")
	t.Setenv("SHOP_CURRENCY", "eur")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	shop, err := cfg.Shop()
	require.NoError(t, err)

	assert.True(t, shop.TaxRate.Equal(decimal.RequireFromString("8.25")))
	assert.True(t, shop.LaborRate.Equal(decimal.RequireFromString("125.5")))
	assert.Equal(t, 30, shop.PaymentTermsDays)
	assert.Equal(t, "EUR", shop.Currency)
	assert.True(t, cfg.BillingAutoInvoice)

	opts := shop.InvoiceOptions(cfg.InvoiceNumberMaxAttempts)
	assert.Equal(t, 5, opts.NumberAttempts)
	assert.Equal(t, "EUR", opts.Terms.Currency)
	assert.True(t, shop.WorkOrderDefaults().LaborRate.Equal(shop.LaborRate))
}

func TestLoadConfigRejectsBadShopSettings(t *testing.T) {
	for name, env := range map[string][2]string{
		"tax over 100":   {"SHOP_TAX_RATE", "101"},
		"tax not number": {"SHOP_TAX_RATE", "eight"},
		"negative labor": {"SHOP_LABOR_RATE", "-1"},
		"currency":       {"SHOP_CURRENCY", "DOLLARS"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadConfigConnectionSettings(t *testing.T) {
	t.Setenv("PG_MAX_CONNS", "25")
	t.Setenv("PG_MAX_CONN_LIFETIME", "5m")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	pool := cfg.PoolOptions()
	assert.EqualValues(t, 25, pool.MaxConns)
	assert.EqualValues(t, 1, pool.MinConns)
	assert.Equal(t, 5*time.Minute, pool.MaxConnLifetime)

	redisOpts := cfg.RedisOptions()
	assert.Equal(t, "redis:6380", redisOpts.Addr)
	assert.Equal(t, 3, redisOpts.Asynq().DB)
	assert.Equal(t, "pw", redisOpts.Asynq().Password)
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "")
	assert.False(t, InTestMode())
	t.Setenv(testModeEnv, "true")
	assert.True(t, InTestMode())
	t.Setenv(testModeEnv, "1")
	assert.True(t, InTestMode())
	t.Setenv(testModeEnv, "yes please")
	assert.False(t, InTestMode())
}
