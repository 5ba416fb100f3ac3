package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Settlement SettlementConfig `yaml:"settlement"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Redis      RedisConfig      `yaml:"redis"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// GatewayConfig configures the external payment processor client.
type GatewayConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"` // cap on outgoing gateway calls
}

// SettlementConfig is the money-split policy. All percentages are whole
// numbers; amounts are computed in minor currency units with floor rounding.
type SettlementConfig struct {
	PlatformFeePercent    int `yaml:"platform_fee_percent"`
	AcceptanceWindowHours int `yaml:"acceptance_window_hours"`
	// Progress ratio (percent) assumed for reassignment payouts when a
	// project was sold with zero revisions. Product policy, pending sign-off.
	FallbackProgressPercent int `yaml:"fallback_progress_percent"`
}

// SweeperConfig controls the acceptance-deadline sweep.
type SweeperConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	BatchSize       int `yaml:"batch_size"`
	Concurrency     int `yaml:"concurrency"`
}

// WebhookConfig secures the inbound payment-captured webhook.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
		cfg = &fileCfg
	}

	cfg.applyDefaults()
	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "songcraft.db",
		},
		JWT: JWTConfig{
			Secret:     "songcraft-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Gateway: GatewayConfig{
			BaseURL:        "https://api.payment-gateway.example",
			TimeoutSeconds: 15,
			RateLimitRPS:   10,
		},
		Settlement: SettlementConfig{
			PlatformFeePercent:      15,
			AcceptanceWindowHours:   48,
			FallbackProgressPercent: 50,
		},
		Sweeper: SweeperConfig{
			IntervalMinutes: 5,
			BatchSize:       50,
			Concurrency:     5,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
	}
}

// applyDefaults fills zero values with safe defaults so a partial config
// file still yields a runnable service.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Server.Port == "" {
		c.Server.Port = def.Server.Port
	}
	if c.Server.Mode == "" {
		c.Server.Mode = def.Server.Mode
	}
	if c.Database.Driver == "" {
		c.Database = def.Database
	}
	if c.JWT.ExpireHour == 0 {
		c.JWT.ExpireHour = def.JWT.ExpireHour
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = def.Gateway.TimeoutSeconds
	}
	if c.Gateway.RateLimitRPS == 0 {
		c.Gateway.RateLimitRPS = def.Gateway.RateLimitRPS
	}
	if c.Settlement.PlatformFeePercent == 0 {
		c.Settlement.PlatformFeePercent = def.Settlement.PlatformFeePercent
	}
	if c.Settlement.AcceptanceWindowHours == 0 {
		c.Settlement.AcceptanceWindowHours = def.Settlement.AcceptanceWindowHours
	}
	if c.Settlement.FallbackProgressPercent == 0 {
		c.Settlement.FallbackProgressPercent = def.Settlement.FallbackProgressPercent
	}
	if c.Sweeper.IntervalMinutes == 0 {
		c.Sweeper.IntervalMinutes = def.Sweeper.IntervalMinutes
	}
	if c.Sweeper.BatchSize == 0 {
		c.Sweeper.BatchSize = def.Sweeper.BatchSize
	}
	if c.Sweeper.Concurrency == 0 {
		c.Sweeper.Concurrency = def.Sweeper.Concurrency
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if baseURL := os.Getenv("GATEWAY_BASE_URL"); baseURL != "" {
		c.Gateway.BaseURL = baseURL
	}
	if apiKey := os.Getenv("GATEWAY_API_KEY"); apiKey != "" {
		c.Gateway.APIKey = apiKey
	}
	if secret := os.Getenv("PAYMENT_WEBHOOK_SECRET"); secret != "" {
		c.Webhook.Secret = secret
	}
	if pct := os.Getenv("PLATFORM_FEE_PERCENT"); pct != "" {
		if v, err := strconv.Atoi(pct); err == nil && v >= 0 && v < 100 {
			c.Settlement.PlatformFeePercent = v
		}
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
