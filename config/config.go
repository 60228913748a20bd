// Package config loads FORGE's process configuration: process
// environment variables (with their defaults), overlaid by a YAML file
// with ${NAME} environment placeholders, validated before any component
// starts. This is the single
// table described in spec.md §6 ("Configuration (one table, effects
// only)") — the struct here is the in-process mirror of it.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration surface named in spec.md §6.
type Config struct {
	Gateway       GatewayConfig       `yaml:"gateway"`
	Database      DatabaseConfig      `yaml:"database"`
	Node          NodeConfig          `yaml:"node"`
	Worker        WorkerConfig        `yaml:"worker"`
	Function      FunctionConfig      `yaml:"function"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type GatewayConfig struct {
	Port           int `yaml:"port" env:"GATEWAY_PORT" envDefault:"8080" validate:"min=1,max=65535"`
	GRPCPort       int `yaml:"grpc_port" env:"GATEWAY_GRPC_PORT" envDefault:"8081" validate:"min=1,max=65535"`
	MaxConnections int `yaml:"max_connections" env:"GATEWAY_MAX_CONNECTIONS" envDefault:"10000" validate:"min=1"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url" env:"DATABASE_URL,required" validate:"required"`
	MigrationsPath string `yaml:"migrations_path" env:"DATABASE_MIGRATIONS_PATH" envDefault:"migrations"`
	MaxOpenConns   int32  `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10" validate:"min=1"`
	MinConns       int32  `yaml:"min_conns" env:"DATABASE_MIN_CONNS" envDefault:"2"`
}

type NodeConfig struct {
	Roles              []string `yaml:"roles" env:"NODE_ROLES" envSeparator:"," envDefault:"worker"`
	WorkerCapabilities []string `yaml:"worker_capabilities" env:"NODE_WORKER_CAPABILITIES" envSeparator:","`
}

type WorkerConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" env:"WORKER_MAX_CONCURRENT_JOBS" envDefault:"10" validate:"min=1"`
	PollIntervalMs    int `yaml:"poll_interval_ms" env:"WORKER_POLL_INTERVAL_MS" envDefault:"500" validate:"min=10"`
}

type FunctionConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" env:"FUNCTION_TIMEOUT_SECS" envDefault:"30" validate:"min=1"`
}

type ObservabilityConfig struct {
	Level         string  `yaml:"level" env:"OBSERVABILITY_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	SampleRate    float64 `yaml:"sample_rate" env:"OBSERVABILITY_SAMPLE_RATE" envDefault:"1.0" validate:"min=0,max=1"`
	RetentionDays int     `yaml:"retention_days" env:"OBSERVABILITY_RETENTION_DAYS" envDefault:"30" validate:"min=1"`
	SentryDSN     string  `yaml:"sentry_dsn" env:"SENTRY_DSN"`
}

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load optionally seeds the environment from a .env file first
// (godotenv never overrides an already-set variable), fills the struct
// from process environment variables and their defaults via struct
// tags, then reads path (if non-empty) as YAML with ${NAME} placeholders
// expanded against the OS environment, so any value the file sets
// overrides the environment's, and validates the result.
//
// path may be empty: a fully environment-driven deployment never needs
// a file on disk.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// env.Parse fills in envDefault values unconditionally when the OS
	// variable is unset, so it must run before the YAML overlay: a file
	// that sets gateway.port should not be clobbered by GATEWAY_PORT's
	// default just because the operator didn't export it explicitly.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded := expandEnv(string(raw))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

// expandEnv substitutes ${NAME} placeholders with the OS environment
// value, leaving the placeholder in place when the variable is unset
// (surfacing an obvious error downstream rather than silently becoming
// an empty string).
func expandEnv(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}
