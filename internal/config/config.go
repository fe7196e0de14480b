// Package config loads stockbook settings from a TOML file, STOCKBOOK_*
// environment variables and an optional .env file.
//
// Precedence, highest first: environment, config file, defaults.
// DATABASE_URL is honoured as a fallback for remote.dsn.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/stockbook/stockbook/internal/logging"
	"github.com/stockbook/stockbook/internal/probe"
)

// FileName is the config file name looked up in the working directory and
// the data directory.
const FileName = "stockbook.toml"

// Config is the full stockbook configuration.
type Config struct {
	DB        DBConfig        `mapstructure:"db" toml:"db"`
	Remote    RemoteConfig    `mapstructure:"remote" toml:"remote"`
	Probe     ProbeConfig     `mapstructure:"probe" toml:"probe"`
	Sync      SyncConfig      `mapstructure:"sync" toml:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard"`
	Log       logging.Config  `mapstructure:"log" toml:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" toml:"-"`
}

// DBConfig locates the local database.
type DBConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// RemoteConfig locates the remote replica.
type RemoteConfig struct {
	// DSN is a Postgres connection string; empty runs local-only.
	DSN     string        `mapstructure:"dsn" toml:"dsn"`
	Timeout time.Duration `mapstructure:"timeout" toml:"timeout"`
	// AutoMigrate creates the remote tables on first connect.
	AutoMigrate bool `mapstructure:"auto_migrate" toml:"auto_migrate"`
}

// ProbeConfig controls the connectivity check.
type ProbeConfig struct {
	// Address is host:port; empty derives it from the remote DSN.
	Address string        `mapstructure:"address" toml:"address"`
	Timeout time.Duration `mapstructure:"timeout" toml:"timeout"`
}

// SyncConfig controls sync triggers and batching.
type SyncConfig struct {
	Interval  time.Duration `mapstructure:"interval" toml:"interval"`
	BatchSize int           `mapstructure:"batch_size" toml:"batch_size"`
	Watch     bool          `mapstructure:"watch" toml:"watch"`
	Debounce  time.Duration `mapstructure:"debounce" toml:"debounce"`
}

// DashboardConfig controls the daemon's WebSocket dashboard.
type DashboardConfig struct {
	// Port 0 disables the dashboard.
	Port int    `mapstructure:"port" toml:"port"`
	Host string `mapstructure:"host" toml:"host"`
}

// DataDir returns the default data directory: $STOCKBOOK_HOME if set,
// else ~/.stockbook.
func DataDir() string {
	if dir := os.Getenv("STOCKBOOK_HOME"); dir != "" {
		return expandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stockbook"
	}
	return filepath.Join(home, ".stockbook")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DB: DBConfig{Path: filepath.Join(DataDir(), "stockbook.db")},
		Remote: RemoteConfig{
			Timeout:     30 * time.Second,
			AutoMigrate: true,
		},
		Probe: ProbeConfig{Timeout: 3 * time.Second},
		Sync: SyncConfig{
			Interval: 24 * time.Hour,
			Watch:    true,
			Debounce: 2 * time.Second,
		},
		Dashboard: DashboardConfig{Host: "127.0.0.1"},
		Log: logging.Config{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Stderr:     true,
		},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("db.path", d.DB.Path)
	v.SetDefault("remote.dsn", d.Remote.DSN)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.auto_migrate", d.Remote.AutoMigrate)
	v.SetDefault("probe.address", d.Probe.Address)
	v.SetDefault("probe.timeout", d.Probe.Timeout)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.batch_size", d.Sync.BatchSize)
	v.SetDefault("sync.watch", d.Sync.Watch)
	v.SetDefault("sync.debounce", d.Sync.Debounce)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("log.stderr", d.Log.Stderr)
}

// Load reads the configuration. An explicit path must exist; with an empty
// path, stockbook.toml is looked up in the working directory and then in
// DataDir, and a missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(".")
		v.AddConfigPath(DataDir())
	}

	v.SetEnvPrefix("STOCKBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if cfg.Remote.DSN == "" {
		cfg.Remote.DSN = os.Getenv("DATABASE_URL")
	}
	cfg.DB.Path = expandHome(cfg.DB.Path)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout cannot be negative")
	}
	if c.Probe.Timeout < 0 {
		return fmt.Errorf("probe.timeout cannot be negative")
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval cannot be negative")
	}
	if c.Sync.BatchSize < 0 {
		return fmt.Errorf("sync.batch_size cannot be negative (got %d)", c.Sync.BatchSize)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range (got %d)", c.Dashboard.Port)
	}
	return nil
}

// ProbeAddress returns the address to probe: probe.address if set, else
// the remote host, else probe.DefaultAddress.
func (c *Config) ProbeAddress() string {
	if c.Probe.Address != "" {
		return c.Probe.Address
	}
	if addr := probe.AddressFromDSN(c.Remote.DSN); addr != "" {
		return addr
	}
	return probe.DefaultAddress
}

// WriteDefault writes cfg as TOML to path, refusing to overwrite an
// existing file unless force is set.
func WriteDefault(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# stockbook configuration")
	fmt.Fprintln(f, "# Environment variables override these values, e.g. STOCKBOOK_REMOTE_DSN.")
	fmt.Fprintln(f)

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
