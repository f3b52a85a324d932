package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Retention RetentionConfig `mapstructure:"retention"`
	Alerts    AlertConfig     `mapstructure:"alerts"`
	Sessions  SessionConfig   `mapstructure:"sessions"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"` // development | production
}

// IsProduction reports whether user-visible error messages must be generic.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

type DatabaseConfig struct {
	// postgres://... or sqlite://path (sqlite://:memory: for throwaway stores)
	DSN                    string `mapstructure:"dsn"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	// Empty Addr keeps the error-rate window in process memory.
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	WindowPrefix string `mapstructure:"window_prefix"`
}

type LoggingConfig struct {
	Level             string   `mapstructure:"level"`
	EnableAPI         bool     `mapstructure:"enable_api"`
	EnableError       bool     `mapstructure:"enable_error"`
	EnableActivity    bool     `mapstructure:"enable_activity"`
	EnableAsync       bool     `mapstructure:"enable_async"`
	BatchSize         int      `mapstructure:"batch_size"`
	BatchTimeoutMs    int      `mapstructure:"batch_timeout_ms"`
	MaxQueueSize      int      `mapstructure:"max_queue_size"`
	MaxPayloadSize    int      `mapstructure:"max_payload_size"`
	Sanitization      bool     `mapstructure:"sanitization"`
	MaskIP            bool     `mapstructure:"mask_ip"`
	ExcludedEndpoints []string `mapstructure:"excluded_endpoints"`
	SensitiveFields   []string `mapstructure:"sensitive_fields"`
	TrackedActivities []string `mapstructure:"tracked_activities"`
}

func (l LoggingConfig) BatchTimeout() time.Duration {
	return time.Duration(l.BatchTimeoutMs) * time.Millisecond
}

type RetentionConfig struct {
	APIDays      int `mapstructure:"api_days"`
	ErrorDays    int `mapstructure:"error_days"`
	ActivityDays int `mapstructure:"activity_days"`
	FrontendDays int `mapstructure:"frontend_days"`
}

type AlertConfig struct {
	ErrorRateThreshold float64 `mapstructure:"error_rate_threshold"` // errors per second
	WindowSeconds      int     `mapstructure:"window_seconds"`
	CooldownSeconds    int     `mapstructure:"cooldown_seconds"`
	ResponseTimeMs     int     `mapstructure:"response_time_ms"`
	ConcurrentUsers    int     `mapstructure:"concurrent_users"`
}

type SessionConfig struct {
	TimeoutHours int `mapstructure:"timeout_hours"`
	SweepMinutes int `mapstructure:"sweep_minutes"`
}

type IngestionConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	// How long a replayed upload with the same X-Idempotency-Key is answered from memory.
	IdempotencyTTLMinutes int `mapstructure:"idempotency_ttl_minutes"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type AuthConfig struct {
	// AdminKey guards the log query API; empty leaves it open.
	AdminKey string `mapstructure:"admin_key"`
	// JWTSecret enables verified bearer-token identity; empty skips verification.
	JWTSecret string `mapstructure:"jwt_secret"`
}

// DefaultSensitiveFields are matched case-insensitively as key substrings.
var DefaultSensitiveFields = []string{
	"password", "token", "authorization", "secret", "key", "apiKey",
	"accessToken", "refreshToken", "ssn", "creditCard", "cvv", "pin", "cookie",
}

var DefaultExcludedEndpoints = []string{"/health", "/metrics", "/favicon.ico"}

var DefaultTrackedActivities = []string{
	"LOGIN", "LOGOUT", "LOGIN_FAILED", "PASSWORD_CHANGE", "SESSION_START", "SESSION_END",
	"CREATE_CUSTOMER", "UPDATE_CUSTOMER", "DELETE_CUSTOMER", "VIEW_CUSTOMER",
	"VIEW_LEDGER", "CREATE_LEDGER_ENTRY",
	"CREATE_INVOICE", "UPDATE_INVOICE", "DELETE_INVOICE", "PRINT_INVOICE",
	"CREATE_ORDER", "UPDATE_ORDER", "DELETE_ORDER",
	"CREATE_PAYMENT_VOUCHER", "UPDATE_PAYMENT_VOUCHER",
	"CREATE_RECOVERY", "UPDATE_RECOVERY",
	"VIEW_TURNOVER_REPORT", "VIEW_REPORT",
	"EXPORT_DATA", "EXPORT_LOGS", "RESOLVE_ERROR", "PAGE_VIEW", "SEARCH",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.dsn", "sqlite://ledgerlog.db")
	v.SetDefault("database.cleanup_interval_minutes", 60)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.window_prefix", "ledgerlog:errwin")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.enable_api", true)
	v.SetDefault("logging.enable_error", true)
	v.SetDefault("logging.enable_activity", true)
	v.SetDefault("logging.enable_async", true)
	v.SetDefault("logging.batch_size", 100)
	v.SetDefault("logging.batch_timeout_ms", 5000)
	v.SetDefault("logging.max_queue_size", 10000)
	v.SetDefault("logging.max_payload_size", 10240)
	v.SetDefault("logging.sanitization", true)
	v.SetDefault("logging.mask_ip", false)
	v.SetDefault("logging.excluded_endpoints", DefaultExcludedEndpoints)
	v.SetDefault("logging.sensitive_fields", DefaultSensitiveFields)
	v.SetDefault("logging.tracked_activities", DefaultTrackedActivities)

	v.SetDefault("retention.api_days", 90)
	v.SetDefault("retention.error_days", 365)
	v.SetDefault("retention.activity_days", 90)
	v.SetDefault("retention.frontend_days", 30)

	v.SetDefault("alerts.error_rate_threshold", 0.05)
	v.SetDefault("alerts.window_seconds", 300)
	v.SetDefault("alerts.cooldown_seconds", 60)
	v.SetDefault("alerts.response_time_ms", 5000)
	v.SetDefault("alerts.concurrent_users", 100)

	v.SetDefault("sessions.timeout_hours", 24)
	v.SetDefault("sessions.sweep_minutes", 60)

	v.SetDefault("ingestion.rate_per_second", 10)
	v.SetDefault("ingestion.burst", 20)
	v.SetDefault("ingestion.idempotency_ttl_minutes", 10)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("auth.admin_key", "")
	v.SetDefault("auth.jwt_secret", "")
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// e.g. LEDGERLOG_LOGGING_BATCH_SIZE, LEDGERLOG_ALERTS_ERROR_RATE_THRESHOLD
	v.SetEnvPrefix("ledgerlog")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	normalizeLists(&cfg)

	return &cfg, nil
}

// Default returns the configuration with every default applied and no file or env lookup.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	normalizeLists(&cfg)
	return &cfg
}

// Env vars deliver lists as a single comma separated string.
func normalizeLists(cfg *Config) {
	cfg.Logging.ExcludedEndpoints = splitList(cfg.Logging.ExcludedEndpoints)
	cfg.Logging.SensitiveFields = splitList(cfg.Logging.SensitiveFields)
	cfg.Logging.TrackedActivities = splitList(cfg.Logging.TrackedActivities)
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
