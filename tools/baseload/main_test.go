package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/config"
)

func TestConfirm(t *testing.T) {
	assert.True(t, confirm(strings.NewReader("yes\n")))
	assert.True(t, confirm(strings.NewReader("  YES  \n")))
	assert.True(t, confirm(strings.NewReader("yes")))
	assert.False(t, confirm(strings.NewReader("y\n")))
	assert.False(t, confirm(strings.NewReader("")))
}

func TestReadPassword_FromEnvironment(t *testing.T) {
	t.Setenv("ZAPTEC_PASSWORD", "secret")
	password, err := readPassword()
	require.NoError(t, err)
	assert.Equal(t, "secret", password)
}

func TestRun_RejectsInvalidOptions(t *testing.T) {
	cfg := config.Defaults()
	cfg.DatabasePath = t.TempDir() + "/baseload.db"

	err := run(cfg, options{username: "user@example.com", days: 0, assumeYes: true}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history-days")

	t.Setenv("ZAPTEC_PASSWORD", "secret")
	err = run(cfg, options{username: "", days: 30, assumeYes: true}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZAPTEC_PASSWORD")
}
