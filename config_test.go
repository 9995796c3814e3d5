package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bluemon/bluez"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bluemon.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
adapter = "hci1"
log_level = "debug"
manager_path = "/org/bluez/hci1"
publish_prefix = "/com/example/monitors"
timeout = "5s"
type = "or_patterns"
rssi_low_threshold = -80
rssi_high_threshold = -40
rssi_sampling_period = 0

[[pattern]]
start = 0
ad_type = 9
content_hex = "4b6974"
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "hci1", cfg.Adapter)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "/com/example/monitors/", cfg.Session.PublishPrefix)
	assert.Equal(t, 5*time.Second, cfg.Session.Timeout)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci1"), cfg.Manager)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci1"), cfg.Session.ManagerPath)
	assert.Equal(t, "org.bluez", cfg.Session.Service)
	assert.Equal(t, int16(-80), cfg.Monitor.RSSILowThreshold)
	assert.Equal(t, int16(-40), cfg.Monitor.RSSIHighThreshold)
	assert.Equal(t, uint16(0), cfg.Monitor.RSSISamplingPeriod)
	assert.Equal(t, uint16(1), cfg.Monitor.RSSILowTimeout, "unset keys keep defaults")
	assert.Equal(t, []bluez.Pattern{{StartPosition: 0, ADType: 9, Content: []byte("Kit")}}, cfg.Monitor.Patterns)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	def := defaultConfig()
	assert.Equal(t, def.Session, cfg.Session)
	assert.Equal(t, def.LogLevel, cfg.LogLevel)
	assert.Empty(t, cfg.Manager, "the selected adapter manages monitors")
	assert.Equal(t, "or_patterns", cfg.Monitor.Type)
	assert.Empty(t, cfg.Monitor.Patterns)
}

func TestLoadConfigErrors(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":    `colour = "blue"`,
		"bad level":      `log_level = "loud"`,
		"bad timeout":    `timeout = "soon"`,
		"zero timeout":   `timeout = "0s"`,
		"neg timeout":    `timeout = "-1s"`,
		"bad manager":    `manager_path = "org/bluez"`,
		"bad prefix":     `publish_prefix = "relative/path"`,
		"bad pattern":    "[[pattern]]\ncontent_hex = \"zz\"",
		"malformed toml": `adapter = `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
