package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/ngenohkevin/circulation/internal/models"
)

type Config struct {
	Server      ServerConfig       `mapstructure:"server"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Redis       RedisConfig        `mapstructure:"redis"`
	JWT         JWTConfig          `mapstructure:"jwt"`
	Store       StoreConfig        `mapstructure:"store"`
	Locks       LocksConfig        `mapstructure:"locks"`
	Circulation CirculationConfig  `mapstructure:"circulation"`
	Staff       []models.StaffUser `mapstructure:"staff"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	URL      string `mapstructure:"url"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	URL      string `mapstructure:"url"`
	Enabled  bool   `mapstructure:"enabled"`
}

type JWTConfig struct {
	PrivateKey  string `mapstructure:"private_key"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

// StoreConfig selects the persistence backend: "memory" or "postgres"
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// LocksConfig selects the keyed lock backend: "local" or "redis"
type LocksConfig struct {
	Backend        string `mapstructure:"backend"`
	TTLSeconds     int    `mapstructure:"ttl_seconds"`
	MaxWaitSeconds int    `mapstructure:"max_wait_seconds"`
}

// CirculationConfig holds the lending rules
type CirculationConfig struct {
	MaxActiveCheckouts int            `mapstructure:"max_active_checkouts"`
	FinePerDay         string         `mapstructure:"fine_per_day"`
	RenewalDays        int            `mapstructure:"renewal_days"`
	ReservationDays    int            `mapstructure:"reservation_days"`
	HoldDays           int            `mapstructure:"hold_days"`
	DefaultLoanDays    int            `mapstructure:"default_loan_days"`
	NewReleaseDays     int            `mapstructure:"new_release_days"`
	LoanDays           map[string]int `mapstructure:"loan_days"`
}

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
	LockBackendLocal    = "local"
	LockBackendRedis    = "redis"
)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.circulation")
	v.AddConfigPath("/etc/circulation")

	v.SetEnvPrefix("CIRC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "circulation")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("jwt.expiry_hours", 24)
	v.SetDefault("store.driver", StoreDriverMemory)
	v.SetDefault("locks.backend", LockBackendLocal)
	v.SetDefault("locks.ttl_seconds", 10)
	v.SetDefault("locks.max_wait_seconds", 5)
	v.SetDefault("circulation.max_active_checkouts", 20)
	v.SetDefault("circulation.fine_per_day", "0.50")
	v.SetDefault("circulation.renewal_days", 14)
	v.SetDefault("circulation.reservation_days", 7)
	v.SetDefault("circulation.hold_days", 7)
	v.SetDefault("circulation.default_loan_days", 14)
	v.SetDefault("circulation.new_release_days", 3)
	v.SetDefault("circulation.loan_days", map[string]int{
		string(models.CategoryBook):      28,
		string(models.CategoryVideo):     7,
		string(models.CategoryAudiobook): 7,
	})

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		v.Set("database.url", dbURL)
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		v.Set("redis.url", redisURL)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory, StoreDriverPostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Locks.Backend {
	case LockBackendLocal, LockBackendRedis:
	default:
		return fmt.Errorf("unknown lock backend %q", c.Locks.Backend)
	}

	if c.Locks.Backend == LockBackendRedis && !c.Redis.Enabled {
		return errors.New("redis lock backend requires redis.enabled")
	}

	if c.Circulation.MaxActiveCheckouts <= 0 {
		return fmt.Errorf("circulation.max_active_checkouts must be positive, got %d", c.Circulation.MaxActiveCheckouts)
	}

	return nil
}
