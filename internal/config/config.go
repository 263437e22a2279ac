// Package config loads and validates rserved's configuration:
// RSERVED_* environment variables, then a YAML config file, then
// defaults, in that precedence order. No CLI flag overrides a config
// value; the CLI only chooses which file is read.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is rserved's full static configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Admin     AdminConfig     `mapstructure:"admin" yaml:"admin"`
	Ledger    LedgerConfig    `mapstructure:"ledger" yaml:"ledger"`
	Archive   ArchiveConfig   `mapstructure:"archive" yaml:"archive"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// ServerConfig covers the listener/supervisor.
type ServerConfig struct {
	BindAddress     string        `mapstructure:"bind_address" yaml:"bind_address"`
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536" yaml:"port"`
	Workdir         string        `mapstructure:"workdir" validate:"required" yaml:"workdir"`
	MaxConnections  int           `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
	LocalOnly       bool          `mapstructure:"local_only" yaml:"local_only"`
	InputCeiling    int32         `mapstructure:"input_ceiling" validate:"gte=0" yaml:"input_ceiling"`
}

// MetricsConfig holds the metrics settings. They are loaded and
// validated but not read by `rserved start`: the Prometheus endpoint is
// served as GET /metrics on the admin API, at Admin.Addr.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// AdminConfig configures the JWT-gated admin HTTP surface.
type AdminConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// LedgerConfig configures the badger-backed session audit ledger.
type LedgerConfig struct {
	Path string `mapstructure:"path" validate:"required" yaml:"path"`
}

// ArchiveConfig configures the optional S3 workdir archival backend.
// A zero value keeps the no-op/local default.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Bucket  string `mapstructure:"bucket" validate:"required_if=Enabled true" yaml:"bucket"`
	Region  string `mapstructure:"region" yaml:"region"`
	Prefix  string `mapstructure:"prefix" yaml:"prefix"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`
}

// TransportConfig configures the optional TLS transport adapter.
// Disabled by default, leaving connections as plain net.Conn.
type TransportConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	CertFile string `mapstructure:"cert_file" validate:"required_if=Enabled true" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" validate:"required_if=Enabled true" yaml:"key_file"`
}

// DefaultConfig returns rserved's built-in defaults: workdir root
// /tmp/Rserv, listening port 6311, local-only policy on.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
		Server: ServerConfig{
			BindAddress:     "127.0.0.1",
			Port:            6311,
			Workdir:         "/tmp/Rserv",
			MaxConnections:  0,
			ShutdownTimeout: 5 * time.Second,
			LocalOnly:       true,
			InputCeiling:    2044,
		},
		Metrics:   MetricsConfig{Enabled: false, Addr: ":9090"},
		Admin:     AdminConfig{Enabled: false, Addr: ":9191"},
		Ledger:    LedgerConfig{Path: "/tmp/Rserv/ledger"},
		Archive:   ArchiveConfig{Enabled: false},
		Telemetry: TelemetryConfig{Enabled: false, ServiceName: "rserved", SampleRate: 1.0},
		Transport: TransportConfig{Enabled: false},
	}
}

// Load loads configuration from, in increasing precedence: defaults, a
// YAML config file, and RSERVED_*-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	cfg := DefaultConfig()
	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if found {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}
	applyEnvOverrides(v, cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("RSERVED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

// applyEnvOverrides layers environment variables on top of whatever was
// loaded from file or defaults. Every config field has an RSERVED_*
// override, named after its key with dots replaced by underscores.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	setString("logging.level", &cfg.Logging.Level)
	setString("logging.format", &cfg.Logging.Format)
	setString("logging.output", &cfg.Logging.Output)

	setString("server.bind_address", &cfg.Server.BindAddress)
	setInt("server.port", &cfg.Server.Port)
	setString("server.workdir", &cfg.Server.Workdir)
	setInt("server.max_connections", &cfg.Server.MaxConnections)
	setBool("server.local_only", &cfg.Server.LocalOnly)
	if v.IsSet("server.shutdown_timeout") {
		cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	}
	if v.IsSet("server.input_ceiling") {
		cfg.Server.InputCeiling = v.GetInt32("server.input_ceiling")
	}

	setBool("metrics.enabled", &cfg.Metrics.Enabled)
	setString("metrics.addr", &cfg.Metrics.Addr)

	setBool("admin.enabled", &cfg.Admin.Enabled)
	setString("admin.addr", &cfg.Admin.Addr)
	setString("admin.jwt_secret", &cfg.Admin.JWTSecret)

	setString("ledger.path", &cfg.Ledger.Path)

	setBool("archive.enabled", &cfg.Archive.Enabled)
	setString("archive.bucket", &cfg.Archive.Bucket)
	setString("archive.region", &cfg.Archive.Region)
	setString("archive.prefix", &cfg.Archive.Prefix)

	setBool("telemetry.enabled", &cfg.Telemetry.Enabled)
	setString("telemetry.service_name", &cfg.Telemetry.ServiceName)
	if v.IsSet("telemetry.sample_rate") {
		cfg.Telemetry.SampleRate = v.GetFloat64("telemetry.sample_rate")
	}

	setBool("transport.enabled", &cfg.Transport.Enabled)
	setString("transport.cert_file", &cfg.Transport.CertFile)
	setString("transport.key_file", &cfg.Transport.KeyFile)
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rserved")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rserved")
}

// Validate runs struct-tag validation over cfg using
// go-playground/validator.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}
