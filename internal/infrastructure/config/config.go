package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Admission AdmissionConfig
	Commit    CommitConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Path            string // sqlite database file
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port for the redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds the settings needed to verify access tokens issued by the
// authentication service.
type JWTConfig struct {
	Secret string
	Issuer string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// AdmissionConfig holds quota admission settings.
type AdmissionConfig struct {
	Window        time.Duration
	Store         string // memory or redis
	SweepInterval time.Duration
	KeyPrefix     string
	// Policy is built from admission.quotas.<tier>.<feature> during Load and is
	// never nil on a loaded Config.
	Policy *admission.QuotaPolicy
}

// CommitConfig holds the retry budget for storage commits.
type CommitConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// MaxCommitAttempts bounds commit.max_attempts so the doubled backoff stays finite.
const MaxCommitAttempts = 10

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ExportInterval    time.Duration
	ServiceName       string
	Insecure          bool
	SamplingRatio     float64
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with EDU_ prefix (e.g., EDU_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return build(v)
}

// LoadFile loads configuration from an explicit TOML file plus environment
// overrides.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("EDU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Admission: AdmissionConfig{
			Window:        v.GetDuration("admission.window"),
			Store:         v.GetString("admission.store"),
			SweepInterval: v.GetDuration("admission.sweep_interval"),
			KeyPrefix:     v.GetString("admission.key_prefix"),
		},
		Commit: CommitConfig{
			MaxAttempts:  v.GetInt("commit.max_attempts"),
			InitialDelay: v.GetDuration("commit.initial_delay"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	table, err := quotaTable(v)
	if err != nil {
		return nil, fmt.Errorf("invalid admission quotas: %w", err)
	}
	policy, err := admission.NewQuotaPolicy(cfg.Admission.Window, table)
	if err != nil {
		return nil, fmt.Errorf("invalid admission quotas: %w", err)
	}
	cfg.Admission.Policy = policy

	return cfg, nil
}

// quotaTable overlays admission.quotas.<tier>.<feature> onto the default table.
// Unknown tiers or features and non-integer limits are rejected.
func quotaTable(v *viper.Viper) (admission.QuotaTable, error) {
	for name, row := range v.GetStringMap("admission.quotas") {
		if _, err := account.ParseTier(name); err != nil {
			return nil, fmt.Errorf("admission.quotas: unknown tier %q", name)
		}
		features, ok := row.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("admission.quotas.%s must be a table of feature limits", name)
		}
		for feature := range features {
			if _, err := admission.ParseFeature(feature); err != nil {
				return nil, fmt.Errorf("admission.quotas.%s: unknown feature %q", name, feature)
			}
		}
	}

	table := admission.DefaultQuotaTable()
	for _, tier := range account.Tiers() {
		for _, feature := range admission.Features() {
			key := fmt.Sprintf("admission.quotas.%s.%s", tier, feature)
			if !v.IsSet(key) {
				continue
			}
			limit, err := quotaLimit(v.Get(key))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			table[tier][feature] = limit
		}
	}
	return table, nil
}

func quotaLimit(raw interface{}) (int, error) {
	if f, ok := raw.(float64); ok && f != math.Trunc(f) {
		return 0, fmt.Errorf("limit must be an integer, got %v", raw)
	}
	limit, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer, got %v", raw)
	}
	return limit, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "cozmic-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "cozmiclearning.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "cozmic"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "cozmic-auth"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// AI-backed features are slow; leave room for the call plus commit retries.
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Admission.Window == 0 {
		cfg.Admission.Window = admission.DefaultWindow
	}
	if cfg.Admission.Store == "" {
		cfg.Admission.Store = "memory"
	}
	if cfg.Admission.SweepInterval == 0 {
		cfg.Admission.SweepInterval = 10 * time.Minute
	}
	if cfg.Admission.KeyPrefix == "" {
		cfg.Admission.KeyPrefix = "admission:window:"
	}
	if cfg.Commit.MaxAttempts == 0 {
		cfg.Commit.MaxAttempts = 3
	}
	if cfg.Commit.InitialDelay == 0 {
		cfg.Commit.InitialDelay = 100 * time.Millisecond
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "cozmic-backend"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Admission.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("admission.store must be memory or redis, got %q", c.Admission.Store)
	}
	if c.Admission.SweepInterval < 0 {
		return fmt.Errorf("admission.sweep_interval cannot be negative")
	}

	if c.Commit.MaxAttempts < 1 || c.Commit.MaxAttempts > MaxCommitAttempts {
		return fmt.Errorf("commit.max_attempts must be within [1, %d], got %d", MaxCommitAttempts, c.Commit.MaxAttempts)
	}
	if c.Commit.InitialDelay < 0 {
		return fmt.Errorf("commit.initial_delay cannot be negative")
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be within [0, 1], got %v", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		// Wait on SQLITE_BUSY inside the driver briefly before surfacing the
		// lock to the committer's retry loop.
		return "file:" + d.Path + "?_busy_timeout=50&_journal_mode=WAL&_foreign_keys=on"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
