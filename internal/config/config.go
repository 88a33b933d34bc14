package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"

	imagepkg "github.com/youruser/imageviewer/internal/image"
)

// Prefix is prepended to every environment key, e.g. IMGVIEW_LOADER_MAX_BYTES.
// Keys come from split field names only, so bare names like PORT are never read.
const Prefix = "IMGVIEW"

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Loader  LoaderConfig
	Viewer  ViewerConfig
	Bridge  BridgeConfig
	Logging LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `split_words:"true" default:"8080"`
	Host            string        `split_words:"true" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

// LoaderConfig holds the image pipeline limits.
type LoaderConfig struct {
	AllowedExtensions    []string      `split_words:"true" default:".jpg,.jpeg,.png,.gif,.bmp,.webp"`
	MaxBytes             int64         `split_words:"true" default:"5242880"`
	Timeout              time.Duration `split_words:"true" default:"10s"`
	UserAgent            string        `split_words:"true" default:"Image-Viewer/1.0"`
	MaxPixels            int64         `split_words:"true" default:"67108864"`
	BlockPrivateNetworks bool          `split_words:"true" default:"false"`
}

// ViewerConfig holds the display area and completion rules.
type ViewerConfig struct {
	Width        int  `split_words:"true" default:"400"`
	Height       int  `split_words:"true" default:"300"`
	StaleGuard   bool `split_words:"true" default:"true"`
	SingleFlight bool `split_words:"true" default:"false"`
}

// BridgeConfig holds the page bridge settings.
type BridgeConfig struct {
	ScriptPath    string        `split_words:"true"`
	ScriptTimeout time.Duration `split_words:"true" default:"2s"`
	HistorySize   int           `split_words:"true" default:"100"`
	Events        []string      `split_words:"true" default:"clicked"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `split_words:"true" default:"info"`
	Development bool   `split_words:"true" default:"false"`
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Loader: LoaderConfig{
			AllowedExtensions: append([]string(nil), imagepkg.DefaultExtensions...),
			MaxBytes:          imagepkg.DefaultMaxBytes,
			Timeout:           imagepkg.DefaultTimeout,
			UserAgent:         imagepkg.DefaultUserAgent,
			MaxPixels:         imagepkg.DefaultMaxPixels,
		},
		Viewer: ViewerConfig{
			Width:      400,
			Height:     300,
			StaleGuard: true,
		},
		Bridge: BridgeConfig{
			ScriptTimeout: 2 * time.Second,
			HistorySize:   100,
			Events:        []string{"clicked"},
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("server port %q is not a valid port", c.Server.Port))
	}
	if len(c.Loader.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("loader allowed extensions must not be empty"))
	}
	if c.Loader.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("loader max bytes must be positive, got %d", c.Loader.MaxBytes))
	}
	if c.Loader.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("loader timeout must be positive, got %s", c.Loader.Timeout))
	}
	if c.Loader.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("loader max pixels must be positive, got %d", c.Loader.MaxPixels))
	}
	if c.Viewer.Width < 0 || c.Viewer.Height < 0 {
		errs = append(errs, fmt.Errorf("viewer size %dx%d must not be negative", c.Viewer.Width, c.Viewer.Height))
	}
	if c.Bridge.ScriptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("bridge script timeout must be positive, got %s", c.Bridge.ScriptTimeout))
	}
	if c.Bridge.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("bridge history size must be positive, got %d", c.Bridge.HistorySize))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Policy converts the loader section into pipeline limits.
func (l LoaderConfig) Policy() imagepkg.Policy {
	return imagepkg.Policy{
		AllowedExtensions:    append([]string(nil), l.AllowedExtensions...),
		MaxBytes:             l.MaxBytes,
		Timeout:              l.Timeout,
		UserAgent:            l.UserAgent,
		MaxPixels:            l.MaxPixels,
		BlockPrivateNetworks: l.BlockPrivateNetworks,
	}
}

// Target is the initial display area.
func (v ViewerConfig) Target() imagepkg.Size {
	return imagepkg.Size{Width: v.Width, Height: v.Height}
}
