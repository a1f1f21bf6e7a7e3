package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Netflix/go-env"
)

const (
	StoreDriverSupabase = "supabase"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	Environment string `toml:"-"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`
	// messages store
	StoreDriver         string `toml:"store_driver"`
	MessagesTable       string `toml:"messages_table"`
	StoreTimeoutSeconds int    `toml:"store_timeout_seconds"`
	// http
	CorsAllowedOrigins []string `toml:"cors_allowed_origins"`
	LambdaBasePath     string   `toml:"lambda_base_path"`
	// prometheus
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
}

func Default() *Config {
	return &Config{
		Environment:           "development",
		Host:                  "0.0.0.0",
		Port:                  8000,
		LogLevel:              "info",
		LogToStdout:           true,
		StoreDriver:           StoreDriverSupabase,
		MessagesTable:         "messages",
		StoreTimeoutSeconds:   10,
		CorsAllowedOrigins:    []string{"*"},
		PrometheusMetricsHost: "localhost",
		PrometheusMetricsPort: "9090",
	}
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverSupabase, StoreDriverPostgres:
	default:
		return fmt.Errorf("unknown store driver: %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MessagesTable == "" {
		return errors.New("messages table not set")
	}
	if c.StoreTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid store timeout: %d", c.StoreTimeoutSeconds)
	}
	return nil
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

// Load reads the TOML config file and returns the config for the given env.
// Keys missing from the file keep their default values.
func Load(env, path string) (*Config, error) {
	t := &Toml{
		Development: Default(),
		Production:  Default(),
	}
	if _, err := toml.DecodeFile(path, t); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env [%s] not found", env)
	}
	cfg.Environment = strings.ToLower(env)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Secrets are read from the process environment once, at startup.
type Secrets struct {
	SupabaseURL      string `env:"SUPABASE_URL"`
	SupabaseKey      string `env:"SUPABASE_KEY"`
	DatabaseURL      string `env:"DATABASE_URL"`
	Port             int    `env:"PORT"`
	SentryDSN        string `env:"SENTRY_DSN"`
	HoneycombEnabled bool   `env:"HONEYCOMB_ENABLED"`
}

func LoadSecrets() (*Secrets, error) {
	var secrets Secrets
	if _, err := env.UnmarshalFromEnviron(&secrets); err != nil {
		return nil, fmt.Errorf("unmarshal env: %w", err)
	}
	return &secrets, nil
}

// ApplyTo lets the PORT env var override the configured port.
func (s *Secrets) ApplyTo(cfg *Config) {
	if s.Port > 0 {
		cfg.Port = s.Port
	}
}

// Credentials returns the store credentials the given driver needs,
// keyed by their env var name.
func (s *Secrets) Credentials(driver string) map[string]string {
	if driver == StoreDriverPostgres {
		return map[string]string{
			"DATABASE_URL": s.DatabaseURL,
		}
	}
	return map[string]string{
		"SUPABASE_URL": s.SupabaseURL,
		"SUPABASE_KEY": s.SupabaseKey,
	}
}
