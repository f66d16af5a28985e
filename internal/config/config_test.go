// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "console", cfg.Logger().Format)
	assert.Equal(t, "headless-mcp", cfg.Logger().ServiceName)
	assert.Equal(t, "green", cfg.Logger().Colors.Info)
	assert.Equal(t, 60*time.Second, cfg.Browser().LaunchTimeout)
	assert.Equal(t, 30*time.Second, cfg.Browser().ActionTimeout)
	assert.Equal(t, 10*time.Second, cfg.Browser().ShutdownTimeout)
	assert.Empty(t, cfg.Browser().Args)
	assert.Equal(t, "mcp-puppeteer_", cfg.Server().ToolPrefix)
	assert.Equal(t, "mcp-puppeteer", cfg.Server().Name)
	assert.False(t, cfg.Metrics().Enabled)

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Logger Format", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.LoggerCfg.Format = "xml"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger.format")
	})

	t.Run("Browser Timeouts", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.ActionTimeout = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "action_timeout must be a positive duration")

		cfg = NewDefaultConfig()
		cfg.BrowserCfg.LaunchTimeout = -time.Second
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "launch_timeout")
	})

	t.Run("Browser Args", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.Args = []string{"--lang=en-US", "--", "disable-gpu"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "args[1]")
		assert.Contains(t, err.Error(), "malformed browser flag")

		cfg.BrowserCfg.Args = []string{"--lang=en-US", "disable-gpu", "--window-size=1280,720"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Server Settings", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ServerCfg.Name = "  "
		assert.Error(t, cfg.Validate())

		cfg = NewDefaultConfig()
		cfg.ServerCfg.ToolPrefix = "bad prefix"
		assert.Error(t, cfg.Validate())

		cfg = NewDefaultConfig()
		cfg.ServerCfg.RateLimit = 5
		cfg.ServerCfg.Burst = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "burst")

		cfg.ServerCfg.Burst = 2
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Metrics Address", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.MetricsCfg.Enabled = true
		cfg.MetricsCfg.Address = ""
		assert.Error(t, cfg.Validate())
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
  format: json
  log_file: ~/headless-mcp.log
browser:
  exec_path: /opt/chromium/chrome
  args:
    - --lang=en-US
  action_timeout: 5s
server:
  tool_prefix: "pw_"
  rate_limit: 2.5
  burst: 3
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	home, err := homedir.Dir()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, "json", cfg.Logger().Format)
	assert.Equal(t, home+"/headless-mcp.log", cfg.Logger().LogFile)
	assert.Equal(t, "/opt/chromium/chrome", cfg.Browser().ExecPath)
	assert.Equal(t, []string{"--lang=en-US"}, cfg.Browser().Args)
	assert.Equal(t, 5*time.Second, cfg.Browser().ActionTimeout)
	// Untouched values keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.Browser().LaunchTimeout)
	assert.Equal(t, "pw_", cfg.Server().ToolPrefix)
	assert.Equal(t, 2.5, cfg.Server().RateLimit)
	assert.Equal(t, 3, cfg.Server().Burst)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("browser.shutdown_timeout", "0s")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
