// Package config loads engine settings from file, environment, and flags
// via viper. Precedence, highest first: flags, TASKHIVE_* environment
// variables, config file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the sync engine.
type Config struct {
	// ServerURL is the websocket endpoint of the remote gateway.
	ServerURL string `mapstructure:"server_url"`

	// DataDir holds the local database, session file, and logs.
	DataDir string `mapstructure:"data_dir"`

	// AuthToken, when set, skips the interactive login on daemon start.
	AuthToken string `mapstructure:"auth_token"`

	// ReconnectBackoff is the fixed wait between redial attempts.
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`

	// RemarkPollInterval is the remark watch poll cadence.
	RemarkPollInterval time.Duration `mapstructure:"remark_poll_interval"`

	// EventBuffer is the per-subscription change event buffer size.
	EventBuffer int `mapstructure:"event_buffer"`

	// RulesFile optionally overrides the notification routing table.
	RulesFile string `mapstructure:"rules_file"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig controls log output and rotation.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"` // empty means stderr only
	MaxSize int    `mapstructure:"max_size_mb"`
	MaxAge  int    `mapstructure:"max_age_days"`
	Backups int    `mapstructure:"backups"`
	Console bool   `mapstructure:"console"`
}

// DatabasePath is the SQLite file under DataDir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "taskhive.db")
}

// SessionPath is the persisted session file under DataDir.
func (c Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskhive"
	}
	return filepath.Join(home, ".taskhive")
}

// setDefaults registers every default on v. Called before binding so env
// and file values override cleanly.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "wss://api.taskhive.dev/sync")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("reconnect_backoff", 10*time.Second)
	v.SetDefault("remark_poll_interval", 3*time.Second)
	v.SetDefault("event_buffer", 256)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.backups", 3)
	v.SetDefault("log.console", true)
}

// Load reads config from path, or from DataDir/config.yaml when path is
// empty. A missing file is not an error; defaults and environment apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TASKHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url must be set")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect_backoff must be positive, got %s", c.ReconnectBackoff)
	}
	if c.RemarkPollInterval <= 0 {
		return fmt.Errorf("remark_poll_interval must be positive, got %s", c.RemarkPollInterval)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
