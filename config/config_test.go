package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 90, cfg.HistoryDays)
	assert.Equal(t, 7*24*time.Hour, cfg.SignedURLTTL)
	assert.Equal(t, DuplicatesAllow, cfg.InvoiceDuplicates)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
database_path: /tmp/from-file.db
pricing:
  cost_per_kwh: 1.5
  currency: EUR
history_days: 30
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	t.Setenv(configFileEnv, path)
	t.Setenv("COST_PER_KWH", "2.00")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-file.db", cfg.DatabasePath)
	assert.Equal(t, "EUR", cfg.Pricing.Currency)
	assert.Equal(t, 2.0, cfg.Pricing.CostPerKWh)
	assert.Equal(t, 30, cfg.HistoryDays)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.HistoryDays = 400
	cfg.InvoiceDuplicates = "sometimes"
	cfg.Storage = StorageS3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HISTORY_DAYS")
	assert.Contains(t, err.Error(), "INVOICE_DUPLICATES")
	assert.Contains(t, err.Error(), "S3_ENDPOINT")
}
