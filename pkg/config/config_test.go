package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "Alpha", cfg.Device.Name)
	assert.Empty(t, cfg.Device.Address)
	assert.Equal(t, "K9-ROVER", cfg.Unit.Callsign)
	assert.Equal(t, "CCVFD-SAR", cfg.Unit.Team)
	assert.Equal(t, "SAR Canine", cfg.Unit.Role)
	assert.Equal(t, "239.2.3.1:6969", cfg.Output.Dest)
	assert.Equal(t, 30*time.Second, cfg.Output.Stale)
	assert.Equal(t, 247, cfg.Link.MTU)
	assert.Equal(t, 150*time.Millisecond, cfg.Link.SettleDelay)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  name: "Alpha 200i"
unit:
  callsign: "K9-SCOUT"
output:
  dest: "192.168.1.50:4242"
link:
  reconnect_backoff: 10s
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Alpha 200i", cfg.Device.Name)
	assert.Equal(t, "K9-SCOUT", cfg.Unit.Callsign)
	assert.Equal(t, "192.168.1.50:4242", cfg.Output.Dest)
	assert.Equal(t, 10*time.Second, cfg.Link.ReconnectBackoff)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Unset fields keep their defaults.
	assert.Equal(t, "CCVFD-SAR", cfg.Unit.Team)
	assert.Equal(t, 247, cfg.Link.MTU)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: loud"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	logger := cfg.NewLogger()
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
