package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	AuthMode            string        `mapstructure:"AUTH_MODE"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir       string        `mapstructure:"MIGRATIONS_DIR"`
	RulesSource         string        `mapstructure:"RULES_SOURCE"`
	AWSRegion           string        `mapstructure:"AWS_REGION"`
	S3Endpoint          string        `mapstructure:"S3_ENDPOINT"`
	LabWindowDays       int           `mapstructure:"LAB_WINDOW_DAYS"`
	BatchConcurrency    int           `mapstructure:"BATCH_CONCURRENCY"`
	AuditKafkaBrokers   []string      `mapstructure:"AUDIT_KAFKA_BROKERS"`
	AuditKafkaTopic     string        `mapstructure:"AUDIT_KAFKA_TOPIC"`
	AuditBreakerTimeout time.Duration `mapstructure:"AUDIT_BREAKER_TIMEOUT"`
	OTLPEndpoint        string        `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRate   float64       `mapstructure:"TRACING_SAMPLE_RATE"`
	MetricsEnabled      bool          `mapstructure:"METRICS_ENABLED"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var envKeys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"RULES_SOURCE", "AWS_REGION", "S3_ENDPOINT",
	"LAB_WINDOW_DAYS", "BATCH_CONCURRENCY",
	"AUDIT_KAFKA_BROKERS", "AUDIT_KAFKA_TOPIC", "AUDIT_BREAKER_TIMEOUT",
	"OTLP_ENDPOINT", "TRACING_SAMPLE_RATE", "METRICS_ENABLED",
	"CORS_ORIGINS", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("RULES_SOURCE", "builtin")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("LAB_WINDOW_DAYS", 30)
	v.SetDefault("BATCH_CONCURRENCY", 8)
	v.SetDefault("AUDIT_KAFKA_TOPIC", "medsafety.audit")
	v.SetDefault("AUDIT_BREAKER_TIMEOUT", "30s")
	v.SetDefault("TRACING_SAMPLE_RATE", 1.0)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "15s")

	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.AuditKafkaBrokers = splitList(cfg.AuditKafkaBrokers, v.GetString("AUDIT_KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: medsafety is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: requests without a bearer token act as the dev clinician.")
	}

	return cfg, nil
}

// splitList normalises comma separated env values; viper may or may not have
// split them already depending on the source.
func splitList(parsed []string, raw string) []string {
	if raw != "" {
		parsed = strings.Split(raw, ",")
	}
	var out []string
	for _, s := range parsed {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. An explicit AUTH_MODE
// wins; otherwise development maps to "development" and everything else to
// "jwt".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// LabWindow is the recency window applied to abnormal lab results.
func (c *Config) LabWindow() time.Duration {
	return time.Duration(c.LabWindowDays) * 24 * time.Hour
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when AUTH_MODE is \"jwt\"")
	}
	if c.IsProduction() && mode == "development" {
		return fmt.Errorf("AUTH_MODE=development is not allowed in production")
	}
	if c.LabWindowDays <= 0 {
		return fmt.Errorf("LAB_WINDOW_DAYS must be positive, got %d", c.LabWindowDays)
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive, got %d", c.BatchConcurrency)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be within [0,1], got %v", c.TracingSampleRate)
	}
	if c.RulesSource == "" {
		return fmt.Errorf("RULES_SOURCE must not be empty")
	}
	return nil
}
