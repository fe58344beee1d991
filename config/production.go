// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Provider   ProviderConfig   `json:"provider"`
	Rotation   RotationConfig   `json:"rotation"`
	Pacing     PacingConfig     `json:"pacing"`
	Auth       AuthConfig       `json:"auth"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	TrustedProxies  []string      `json:"trusted_proxies"`
	ProxyHeader     string        `json:"proxy_header"`
	GlobalRateLimit int           `json:"global_rate_limit"`
	RateLimitWindow time.Duration `json:"rate_limit_window"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled             bool          `json:"enabled"`
	RedisURL            string        `json:"redis_url"`
	RedisDB             int           `json:"redis_db"`
	RedisPrefix         string        `json:"redis_prefix"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
}

// ProviderConfig describes the upstream order provider
type ProviderConfig struct {
	Mode           string        `json:"mode"` // http, mock
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"-"`
	ProxyURL       string        `json:"proxy_url"`
	InsecureTLS    bool          `json:"insecure_tls"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RatePerSecond  float64       `json:"rate_per_second"`
	RateBurst      int           `json:"rate_burst"`
}

// RotationConfig tunes service selection
type RotationConfig struct {
	CacheTTL          time.Duration     `json:"cache_ttl"`
	QueueThreshold    int               `json:"queue_threshold"`
	PointerMode       string            `json:"pointer_mode"` // none, cas, redis
	CASRetries        int               `json:"cas_retries"`
	LockTTL           time.Duration     `json:"lock_ttl"`
	DefaultServiceIDs map[string]string `json:"default_service_ids"`
	StatusTimeout     time.Duration     `json:"status_timeout"`
	OrderSweep        time.Duration     `json:"order_sweep"`
}

// PacingConfig tunes the hourly scheduler
type PacingConfig struct {
	TickInterval     time.Duration `json:"tick_interval"`
	HourWindow       time.Duration `json:"hour_window"`
	PriceSettleDelay time.Duration `json:"price_settle_delay"`
	SplitEnabled     bool          `json:"split_enabled"`
	SplitRatio       float64       `json:"split_ratio"`
	SplitCap         int           `json:"split_cap"`
	ResumeOnStart    bool          `json:"resume_on_start"`
}

// AuthConfig holds the service token settings of the inbound API
type AuthConfig struct {
	ServiceJWTSecret string        `json:"-"`
	Issuer           string        `json:"issuer"`
	Audience         string        `json:"audience"`
	TokenTTL         time.Duration `json:"token_ttl"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// Pointer write modes of the rotation selector
const (
	PointerModeNone  = "none"
	PointerModeCAS   = "cas"
	PointerModeRedis = "redis"
)

func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "booster"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1024*1024), // 1MB
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			GlobalRateLimit: getEnvInt("GLOBAL_RATE_LIMIT", 600),
			RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/booster/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:             getEnvBool("CACHE_ENABLED", false),
			RedisURL:            getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:             getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:         getEnvString("CACHE_REDIS_PREFIX", "booster:"),
			HealthCheckInterval: getEnvDuration("CACHE_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		Provider: ProviderConfig{
			Mode:           getEnvString("PROVIDER_MODE", "http"),
			BaseURL:        getEnvString("PROVIDER_BASE_URL", ""),
			APIKey:         getEnvString("PROVIDER_API_KEY", ""),
			ProxyURL:       getEnvString("PROVIDER_PROXY_URL", ""),
			InsecureTLS:    getEnvBool("PROVIDER_INSECURE_TLS", true),
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 20*time.Second),
			RatePerSecond:  getEnvFloat("PROVIDER_RATE_PER_SEC", 5),
			RateBurst:      getEnvInt("PROVIDER_RATE_BURST", 5),
		},
		Rotation: RotationConfig{
			CacheTTL:       getEnvDuration("ROTATION_CACHE_TTL", 5*time.Minute),
			QueueThreshold: getEnvInt("ROTATION_QUEUE_THRESHOLD", 2),
			PointerMode:    getEnvString("ROTATION_POINTER_MODE", PointerModeNone),
			CASRetries:     getEnvInt("ROTATION_CAS_RETRIES", 3),
			LockTTL:        getEnvDuration("ROTATION_LOCK_TTL", 5*time.Second),
			DefaultServiceIDs: map[string]string{
				"old_views":   getEnvString("ROTATION_DEFAULT_SERVICE_OLD_VIEWS", ""),
				"new_views":   getEnvString("ROTATION_DEFAULT_SERVICE_NEW_VIEWS", ""),
				"subscribers": getEnvString("ROTATION_DEFAULT_SERVICE_SUBSCRIBERS", ""),
			},
			StatusTimeout: getEnvDuration("ROTATION_STATUS_TIMEOUT", 15*time.Second),
			OrderSweep:    getEnvDuration("ORDER_SWEEP_INTERVAL", 10*time.Minute),
		},
		Pacing: PacingConfig{
			TickInterval:     getEnvDuration("PACING_TICK_INTERVAL", 1*time.Minute),
			HourWindow:       getEnvDuration("PACING_HOUR_WINDOW", 30*time.Minute),
			PriceSettleDelay: getEnvDuration("PRICE_SETTLE_DELAY", 2*time.Second),
			SplitEnabled:     getEnvBool("PACING_SPLIT_ENABLED", true),
			SplitRatio:       getEnvFloat("PACING_SPLIT_RATIO", 0.25),
			SplitCap:         getEnvInt("PACING_SPLIT_CAP", 50),
			ResumeOnStart:    getEnvBool("PACING_RESUME_ON_START", true),
		},
		Auth: AuthConfig{
			ServiceJWTSecret: getEnvString("SERVICE_JWT_SECRET", ""),
			Issuer:           getEnvString("SERVICE_JWT_ISSUER", "booster"),
			Audience:         getEnvString("SERVICE_JWT_AUDIENCE", "booster-workers"),
			TokenTTL:         getEnvDuration("SERVICE_JWT_TTL", 24*time.Hour),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration.
// A missing provider API key is not an error here; the engine then places no
// orders and every selection returns the module's default service.
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		if !slices.Contains(validLevels, cfg.Logging.Level) {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errors = append(errors, "LOG_FILE_PATH is required when logging to a file")
	}

	// Validate provider configuration
	switch cfg.Provider.Mode {
	case "http":
		if cfg.Provider.BaseURL == "" {
			errors = append(errors, "PROVIDER_BASE_URL is required for the http provider")
		}
	case "mock":
	default:
		errors = append(errors, "PROVIDER_MODE must be one of: [http mock]")
	}
	if cfg.Provider.RequestTimeout <= 0 {
		errors = append(errors, "PROVIDER_REQUEST_TIMEOUT must be positive")
	}
	if cfg.Provider.RatePerSecond < 0 {
		errors = append(errors, "PROVIDER_RATE_PER_SEC must not be negative")
	}

	// Validate rotation configuration
	if cfg.Rotation.CacheTTL <= 0 {
		errors = append(errors, "ROTATION_CACHE_TTL must be positive")
	}
	if cfg.Rotation.QueueThreshold < 1 {
		errors = append(errors, "ROTATION_QUEUE_THRESHOLD must be at least 1")
	}
	switch cfg.Rotation.PointerMode {
	case PointerModeNone, PointerModeCAS:
	case PointerModeRedis:
		if !cfg.Cache.Enabled {
			errors = append(errors, "CACHE_ENABLED is required when ROTATION_POINTER_MODE is redis")
		}
	default:
		errors = append(errors, "ROTATION_POINTER_MODE must be one of: [none cas redis]")
	}

	// Validate pacing configuration
	if cfg.Pacing.TickInterval <= 0 {
		errors = append(errors, "PACING_TICK_INTERVAL must be positive")
	}
	if cfg.Pacing.HourWindow <= 0 || cfg.Pacing.HourWindow > time.Hour {
		errors = append(errors, "PACING_HOUR_WINDOW must be within (0, 1h]")
	}
	if cfg.Pacing.SplitRatio <= 0 || cfg.Pacing.SplitRatio >= 1 {
		errors = append(errors, "PACING_SPLIT_RATIO must be within (0, 1)")
	}
	if cfg.Pacing.SplitCap < 1 {
		errors = append(errors, "PACING_SPLIT_CAP must be at least 1")
	}

	// Validate auth configuration
	if len(cfg.Auth.ServiceJWTSecret) < 32 {
		errors = append(errors, "SERVICE_JWT_SECRET must be at least 32 characters long")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
