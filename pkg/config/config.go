// Package config loads termview settings from a TOML file with sensible
// defaults for every field.
//
// The configuration file lives at $XDG_CONFIG_HOME/termview/config.toml (or
// the platform equivalent). A missing file is not an error: defaults apply.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/joouha/termview/pkg/errors"
)

// Config holds all user-tunable settings.
type Config struct {
	Graphics GraphicsConfig `toml:"graphics"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`
}

// GraphicsConfig controls graphics protocol selection and terminal
// metrics.
type GraphicsConfig struct {
	// Protocol preference: "", "sixel", "kitty", "iterm" or "none".
	Protocol string `toml:"protocol"`

	// Force enables graphics output even when the terminal does not
	// advertise support, and enables multiplexer passthrough.
	Force bool `toml:"force"`

	// CellWidth and CellHeight override the detected cell pixel size.
	CellWidth  int `toml:"cell_width"`
	CellHeight int `toml:"cell_height"`
}

// CacheConfig controls the persistent conversion cache.
type CacheConfig struct {
	// Backend: "none", "file" or "redis".
	Backend string `toml:"backend"`

	// Dir is the file backend's directory. Defaults to the user cache
	// directory.
	Dir string `toml:"dir"`

	// Redis connection settings.
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`

	// TTLHours caps entry lifetime; 0 means no expiry.
	TTLHours int `toml:"ttl_hours"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level: "debug", "info", "warn" or "error".
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Graphics: GraphicsConfig{Protocol: ""},
		Cache:    CacheConfig{Backend: "file"},
		Log:      LogConfig{Level: "info"},
	}
}

// Path returns the config file location for the current user.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "locating user config directory")
	}
	return filepath.Join(dir, "termview", "config.toml"), nil
}

// CacheDir returns the directory for the file cache backend, honoring the
// configured override.
func (c Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "locating user cache directory")
	}
	return filepath.Join(dir, "termview"), nil
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return cfg, err
		}
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "reading config file")
	}

	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parsing config file")
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Graphics.Protocol {
	case "", "none", "sixel", "kitty", "iterm":
	default:
		return errors.New(errors.ErrCodeInvalidConfig,
			"graphics.protocol must be one of: none, sixel, kitty, iterm")
	}
	switch c.Cache.Backend {
	case "", "none", "file", "redis":
	default:
		return errors.New(errors.ErrCodeInvalidConfig,
			"cache.backend must be one of: none, file, redis")
	}
	return nil
}
