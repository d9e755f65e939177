package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	StoreDriver         string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir       string        `mapstructure:"MIGRATIONS_DIR"`
	MongoURI            string        `mapstructure:"MONGO_URI"`
	MongoDatabase       string        `mapstructure:"MONGO_DATABASE"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	SlotCacheTTL        time.Duration `mapstructure:"SLOT_CACHE_TTL"`
	AuthSecret          string        `mapstructure:"AUTH_SECRET"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ClockUTCOffsetHours int           `mapstructure:"CLOCK_UTC_OFFSET_HOURS"`
	BlockOnOngoing      bool          `mapstructure:"BLOCK_ON_ONGOING"`
	ReportServiceURL    string        `mapstructure:"REPORT_SERVICE_URL"`
	ReportServiceSecret string        `mapstructure:"REPORT_SERVICE_SECRET"`
}

var envKeys = []string{
	"PORT", "ENV", "STORE_DRIVER",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"MONGO_URI", "MONGO_DATABASE",
	"REDIS_URL", "SLOT_CACHE_TTL",
	"AUTH_SECRET", "AUTH_ISSUER", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"CLOCK_UTC_OFFSET_HOURS", "BLOCK_ON_ONGOING",
	"REPORT_SERVICE_URL", "REPORT_SERVICE_SECRET",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("MONGO_DATABASE", "careslot")
	v.SetDefault("SLOT_CACHE_TTL", "60s")
	v.SetDefault("AUTH_ISSUER", "careslot")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("CLOCK_UTC_OFFSET_HOURS", 8)
	v.SetDefault("BLOCK_ON_ONGOING", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required when STORE_DRIVER is %q", DriverMongo)
		}
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a signing secret is mandatory, and the clock offset must be a real zone.
func (c *Config) Validate() error {
	if c.StoreDriver != DriverPostgres && c.StoreDriver != DriverMongo {
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMongo, c.StoreDriver)
	}
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when ENV=%q", c.Env)
	}
	if c.AuthSecret != "" && len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters, got %d", len(c.AuthSecret))
	}
	if c.ClockUTCOffsetHours < -12 || c.ClockUTCOffsetHours > 14 {
		return fmt.Errorf("CLOCK_UTC_OFFSET_HOURS must be between -12 and 14, got %d", c.ClockUTCOffsetHours)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.ReportServiceURL != "" && c.ReportServiceSecret == "" {
		return fmt.Errorf("REPORT_SERVICE_SECRET is required when REPORT_SERVICE_URL is set")
	}
	return nil
}
