package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "BRL", cfg.Currency.Base)
	assert.Equal(t, 15*time.Minute, cfg.Auth.JWTExpiry)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=ledger sslmode=disable", cfg.DSN())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	yml := `
db:
  driver: sqlite
  sqlite_path: /tmp/from-file.db
oracle:
  timeout: 2s
  static_quotes: ["PETR4.SA=36.50:BRL"]
currency:
  base: USD
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SQLITE_PATH", "/tmp/from-env.db")
	t.Setenv("STATIC_RATES", "USD=5.00, EUR=5.40")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "/tmp/from-env.db", cfg.DSN())
	assert.Equal(t, 2*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, []string{"PETR4.SA=36.50:BRL"}, cfg.Oracle.StaticQuotes)
	assert.Equal(t, []string{"USD=5.00", "EUR=5.40"}, cfg.Oracle.StaticRates)
	assert.Equal(t, "USD", cfg.Currency.Base)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("port", func(t *testing.T) {
		t.Setenv("DB_PORT", "abc")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("currency", func(t *testing.T) {
		t.Setenv("BASE_CURRENCY", "ZZZ")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		_, err := Load()
		assert.Error(t, err)
	})
}
