package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// Insecure defaults that must never reach production
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"internal-service-secret":              true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Redis          RedisConfig
	Billing        BillingConfig
	Sync           SyncConfig
	Cache          CacheConfig
	Quotas         models.QuotaTable
	InternalSecret string
}

type ServerConfig struct {
	Port     string
	Mode     string
	LogLevel string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type BillingConfig struct {
	ServiceURL string
}

type SyncConfig struct {
	Interval   time.Duration
	Jitter     time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

type CacheConfig struct {
	FreshFor  time.Duration
	RetainFor time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     getEnv("SERVER_PORT", "8006"),
			Mode:     getEnv("GIN_MODE", "release"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "gemdesign_user"),
			Password: getEnv("DB_PASSWORD", "gemdesign_pass"),
			DBName:   getEnv("DB_NAME", "gemdesign_db"),
			Schema:   getEnv("DB_SCHEMA", "entitlement"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Billing: BillingConfig{
			ServiceURL: getEnv("BILLING_SERVICE_URL", "http://localhost:8003"),
		},
		Sync: SyncConfig{
			Interval:   getEnvDuration("SYNC_INTERVAL", time.Minute),
			Jitter:     getEnvDuration("SYNC_JITTER", 10*time.Second),
			StaleAfter: getEnvDuration("SYNC_STALE_AFTER", 5*time.Minute),
			BatchSize:  getEnvInt("SYNC_BATCH_SIZE", 100),
		},
		Cache: CacheConfig{
			FreshFor:  getEnvDuration("CACHE_FRESH_FOR", time.Minute),
			RetainFor: getEnvDuration("CACHE_RETAIN_FOR", 24*time.Hour),
		},
		Quotas: models.QuotaTable{
			models.TierFree:       getEnvInt("QUOTA_FREE_DOCUMENTS", 2),
			models.TierBase:       getEnvInt("QUOTA_BASE_DOCUMENTS", 10),
			models.TierPro:        getEnvInt("QUOTA_PRO_DOCUMENTS", 50),
			models.TierEnterprise: getEnvInt("QUOTA_ENTERPRISE_DOCUMENTS", models.MaxDocumentsUnlimited),
		},
		InternalSecret: getEnv("INTERNAL_SECRET", ""),
	}
}

// Validate checks that secrets are set to secure values and that the quota
// table is total. Called once at startup; the resolver relies on it.
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	if err := c.Quotas.Validate(); err != nil {
		return err
	}

	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be at least 1")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
