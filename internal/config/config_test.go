package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imagepkg "github.com/youruser/imageviewer/internal/image"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())

	assert.Equal(t, int64(5242880), cfg.Loader.MaxBytes)
	assert.Equal(t, 10*time.Second, cfg.Loader.Timeout)
	assert.Equal(t, "Image-Viewer/1.0", cfg.Loader.UserAgent)
	assert.False(t, cfg.Loader.BlockPrivateNetworks)

	assert.Equal(t, imagepkg.Size{Width: 400, Height: 300}, cfg.Viewer.Target())
	assert.True(t, cfg.Viewer.StaleGuard)
	assert.False(t, cfg.Viewer.SingleFlight)

	assert.Equal(t, []string{"clicked"}, cfg.Bridge.Events)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FromEnvironment(t *testing.T) {
	env := map[string]string{
		"IMGVIEW_SERVER_PORT":                   "9000",
		"IMGVIEW_LOADER_ALLOWED_EXTENSIONS":     "png,.JPG",
		"IMGVIEW_LOADER_MAX_BYTES":              "1024",
		"IMGVIEW_LOADER_TIMEOUT":                "250ms",
		"IMGVIEW_LOADER_BLOCK_PRIVATE_NETWORKS": "true",
		"IMGVIEW_VIEWER_WIDTH":                  "800",
		"IMGVIEW_VIEWER_STALE_GUARD":            "false",
		"IMGVIEW_BRIDGE_SCRIPT_TIMEOUT":         "500ms",
		"IMGVIEW_BRIDGE_EVENTS":                 "clicked,hovered",
		"IMGVIEW_LOGGING_LEVEL":                 "debug",
		"IMGVIEW_LOGGING_DEVELOPMENT":           "true",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 800, cfg.Viewer.Width)
	assert.Equal(t, 300, cfg.Viewer.Height)
	assert.False(t, cfg.Viewer.StaleGuard)
	assert.Equal(t, 500*time.Millisecond, cfg.Bridge.ScriptTimeout)
	assert.Equal(t, []string{"clicked", "hovered"}, cfg.Bridge.Events)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	p := cfg.Loader.Policy()
	assert.Equal(t, []string{"png", ".JPG"}, p.AllowedExtensions)
	assert.Equal(t, int64(1024), p.MaxBytes)
	assert.Equal(t, 250*time.Millisecond, p.Timeout)
	assert.True(t, p.BlockPrivateNetworks)
}

func TestLoad_IgnoresUnprefixedKeys(t *testing.T) {
	t.Setenv("PORT", "1234")
	t.Setenv("LEVEL", "error")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_BadValue(t *testing.T) {
	t.Setenv("IMGVIEW_LOADER_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "server port"},
		{"no extensions", func(c *Config) { c.Loader.AllowedExtensions = nil }, "allowed extensions"},
		{"zero budget", func(c *Config) { c.Loader.MaxBytes = 0 }, "max bytes"},
		{"zero timeout", func(c *Config) { c.Loader.Timeout = 0 }, "loader timeout"},
		{"negative size", func(c *Config) { c.Viewer.Width = -1 }, "viewer size"},
		{"zero history", func(c *Config) { c.Bridge.HistorySize = 0 }, "history size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPolicy_CopiesExtensions(t *testing.T) {
	cfg := Default()
	p := cfg.Loader.Policy()
	p.AllowedExtensions[0] = ".tiff"
	assert.Equal(t, ".jpg", cfg.Loader.AllowedExtensions[0])
}
