// Package config provides configuration management for modmetrics.
//
// Configuration is read from environment variables once at startup and the
// resulting Config value is passed into the pipeline at construction; no
// other package reads ambient process state.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/modmetrics/modmetrics/internal/errors"
)

// Config holds all configuration settings for modmetrics.
type Config struct {
	ModbusURL    string
	ModbusUnitID uint8
	ReadTimeout  time.Duration

	InputSchemaPath   string
	HoldingSchemaPath string

	PollInterval time.Duration
	SinkTimeout  time.Duration
	SourceName   string

	InfluxEnabled bool
	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string

	PushEnabled bool
	PushURL     string
	PushJob     string

	Port      string
	LogLevel  string // "debug", "info", "warn", "error"
	LogFormat string // "json", "text"
}

// Load reads configuration from environment variables and returns a Config.
func Load() Config {
	cfg := Config{}

	cfg.loadDeviceSettings()
	cfg.loadScheduleSettings()
	cfg.loadSinkSettings()
	cfg.loadServerSettings()
	cfg.loadLoggingSettings()

	return cfg
}

func (cfg *Config) loadDeviceSettings() {
	cfg.ModbusURL = os.Getenv("MODBUS_URL")

	cfg.ModbusUnitID = 1
	if v := os.Getenv("MODBUS_UNIT_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 255 {
			cfg.ModbusUnitID = uint8(n)
		}
	}

	cfg.ReadTimeout = loadDuration("READ_TIMEOUT", 5*time.Second)

	cfg.InputSchemaPath = os.Getenv("INPUT_SCHEMA_PATH")
	cfg.HoldingSchemaPath = os.Getenv("HOLDING_SCHEMA_PATH")

	cfg.SourceName = os.Getenv("SOURCE_NAME")
	if cfg.SourceName == "" {
		if u, err := url.Parse(cfg.ModbusURL); err == nil && u.Hostname() != "" {
			cfg.SourceName = u.Hostname()
		}
	}
}

func (cfg *Config) loadScheduleSettings() {
	cfg.PollInterval = loadDuration("POLL_INTERVAL", 10*time.Second)
	cfg.SinkTimeout = loadDuration("SINK_TIMEOUT", 10*time.Second)
}

func (cfg *Config) loadSinkSettings() {
	cfg.InfluxURL = os.Getenv("INFLUX_URL")
	cfg.InfluxToken = os.Getenv("INFLUX_TOKEN")
	cfg.InfluxOrg = os.Getenv("INFLUX_ORG")
	cfg.InfluxBucket = os.Getenv("INFLUX_BUCKET")
	cfg.InfluxEnabled = cfg.InfluxURL != ""
	if strings.ToLower(os.Getenv("INFLUX_ENABLED")) == "false" {
		cfg.InfluxEnabled = false
	}

	cfg.PushURL = os.Getenv("PUSHGATEWAY_URL")
	cfg.PushJob = os.Getenv("PUSHGATEWAY_JOB")
	if cfg.PushJob == "" {
		cfg.PushJob = "modmetrics"
	}
	cfg.PushEnabled = cfg.PushURL != ""
	if strings.ToLower(os.Getenv("PUSHGATEWAY_ENABLED")) == "false" {
		cfg.PushEnabled = false
	}
}

func (cfg *Config) loadServerSettings() {
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "9100"
	}
}

func (cfg *Config) loadLoggingSettings() {
	cfg.LogLevel = "info"
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.LogFormat = "text"
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
}

func loadDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if sec, err := strconv.Atoi(v); err == nil {
			return time.Duration(sec) * time.Second
		}
	}
	return def
}

// Validate checks the configuration for consistency and required values.
func (cfg Config) Validate() error {
	if err := cfg.validateDevice(); err != nil {
		return err
	}
	if err := cfg.validateSchedule(); err != nil {
		return err
	}
	if err := cfg.validateSinks(); err != nil {
		return err
	}
	return cfg.validateLogSettings()
}

func (cfg Config) validateDevice() error {
	if cfg.ModbusURL == "" {
		return &errors.ConfigurationError{Field: "MODBUS_URL", Reason: "required"}
	}
	u, err := url.Parse(cfg.ModbusURL)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return &errors.ConfigurationError{Field: "MODBUS_URL", Value: cfg.ModbusURL, Reason: "not a valid device URL"}
	}
	if cfg.InputSchemaPath == "" && cfg.HoldingSchemaPath == "" {
		return &errors.ConfigurationError{Field: "INPUT_SCHEMA_PATH", Reason: "at least one of INPUT_SCHEMA_PATH or HOLDING_SCHEMA_PATH is required"}
	}
	if cfg.ReadTimeout <= 0 {
		return &errors.ConfigurationError{Field: "READ_TIMEOUT", Value: cfg.ReadTimeout.String(), Reason: "must be positive"}
	}
	return nil
}

func (cfg Config) validateSchedule() error {
	if cfg.PollInterval <= 0 {
		return &errors.ConfigurationError{Field: "POLL_INTERVAL", Value: cfg.PollInterval.String(), Reason: "must be positive"}
	}
	if cfg.SinkTimeout <= 0 {
		return &errors.ConfigurationError{Field: "SINK_TIMEOUT", Value: cfg.SinkTimeout.String(), Reason: "must be positive"}
	}
	return nil
}

func (cfg Config) validateSinks() error {
	if !cfg.InfluxEnabled && !cfg.PushEnabled {
		return &errors.ConfigurationError{Field: "INFLUX_URL", Reason: "no sink configured: set INFLUX_URL or PUSHGATEWAY_URL"}
	}
	if cfg.InfluxEnabled {
		if cfg.InfluxToken == "" {
			return &errors.ConfigurationError{Field: "INFLUX_TOKEN", Reason: "required when the InfluxDB sink is enabled"}
		}
		if cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
			return &errors.ConfigurationError{Field: "INFLUX_ORG", Reason: "INFLUX_ORG and INFLUX_BUCKET required when the InfluxDB sink is enabled"}
		}
	}
	if cfg.PushEnabled && cfg.PushJob == "" {
		return &errors.ConfigurationError{Field: "PUSHGATEWAY_JOB", Reason: "cannot be empty when the push sink is enabled"}
	}
	return nil
}

func (cfg Config) validateLogSettings() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if cfg.LogLevel != "" && !contains(validLogLevels, cfg.LogLevel) {
		return &errors.ConfigurationError{Field: "LOG_LEVEL", Value: cfg.LogLevel, Reason: fmt.Sprintf("valid options: %v", validLogLevels)}
	}

	validLogFormats := []string{"json", "text"}
	if cfg.LogFormat != "" && !contains(validLogFormats, cfg.LogFormat) {
		return &errors.ConfigurationError{Field: "LOG_FORMAT", Value: cfg.LogFormat, Reason: fmt.Sprintf("valid options: %v", validLogFormats)}
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
