package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	MySQL       MySQLConfig       `yaml:"mysql"`
	Redis       RedisConfig       `yaml:"redis"`
	BloomFilter BloomFilterConfig `yaml:"bloom_filter"`
	Snowflake   SnowflakeConfig   `yaml:"snowflake"`
	KeyGen      KeyGenConfig      `yaml:"keygen"`
	// StyleDefaults is the merge base for QR style resolution; keys absent
	// from a stored style blob fall back to these values.
	StyleDefaults map[string]string `yaml:"style_defaults"`
	RateLimit     RateLimitConfig   `yaml:"rate_limit"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
}

// MySQLConfig represents MySQL configuration
type MySQLConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BloomFilterConfig represents Bloom filter configuration
type BloomFilterConfig struct {
	Capacity          uint    `yaml:"capacity"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

// SnowflakeConfig represents Snowflake ID generator configuration
type SnowflakeConfig struct {
	DatacenterID int64 `yaml:"datacenter_id"`
	WorkerID     int64 `yaml:"worker_id"`
}

// KeyGenConfig controls random key generation. At least one of the
// alphabet flags must be enabled; when all are false the loader enables
// the full alphabet.
type KeyGenConfig struct {
	Length      int  `yaml:"length"`
	Lowercase   bool `yaml:"lowercase"`
	Uppercase   bool `yaml:"uppercase"`
	Digits      bool `yaml:"digits"`
	MaxAttempts int  `yaml:"max_attempts"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
	// Limit is the number of requests allowed per Window seconds,
	// tracked per client IP and path.
	Limit  int `yaml:"limit"`
	Window int `yaml:"window"`
}

// DSN returns MySQL data source name. clientFoundRows makes UPDATE report
// matched rows instead of changed rows, so updates that write an identical
// value still count the row they touched.
func (m *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// Addr returns Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load loads configuration from file. The result is passed explicitly to
// component constructors; there is no package-level accessor.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	if host := os.Getenv("MYSQL_HOST"); host != "" {
		cfg.MySQL.Host = host
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis.Host = host
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.KeyGen.Length <= 0 {
		cfg.KeyGen.Length = 10
	}
	if cfg.KeyGen.MaxAttempts <= 0 {
		cfg.KeyGen.MaxAttempts = 10
	}
	if !cfg.KeyGen.Lowercase && !cfg.KeyGen.Uppercase && !cfg.KeyGen.Digits {
		cfg.KeyGen.Lowercase = true
		cfg.KeyGen.Uppercase = true
		cfg.KeyGen.Digits = true
	}
	if cfg.RateLimit.Limit <= 0 {
		cfg.RateLimit.Limit = 100
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = 60
	}
}
