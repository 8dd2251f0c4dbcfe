package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"fixora/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendFailover = "failover"

	TransportLocal = "local"
	TransportLog   = "log"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Sync       SyncConfig       `yaml:"sync"`
	API        APIConfig        `yaml:"api"`
	Client     ClientConfig     `yaml:"client"`
	Matching   MatchingConfig   `yaml:"matching"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Backup     BackupConfig     `yaml:"backup"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type StoreConfig struct {
	Backend    string        `yaml:"backend"`
	SQLitePath string        `yaml:"sqlite_path"`
	CASRetries int           `yaml:"cas_retries"`
	CASBackoff time.Duration `yaml:"cas_backoff"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type SyncConfig struct {
	Transport     string        `yaml:"transport"`
	ConsumerID    string        `yaml:"consumer_id"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Retention     time.Duration `yaml:"retention"`
	CompactEvery  time.Duration `yaml:"compact_every"`
	NotifyChannel string        `yaml:"notify_channel"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ClientConfig configures the REST transport used when a remote backend serves the core.
type ClientConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	HeaderAPIKey string        `yaml:"header_api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type MatchingConfig struct {
	DefaultLat float64 `yaml:"default_lat"`
	DefaultLng float64 `yaml:"default_lng"`
	SeedPath   string  `yaml:"seed_path"`
	SeedDemo   bool    `yaml:"seed_demo"`
}

// MonitoringConfig holds one metrics port per process role so that api and
// bot can run on the same host from one file.
type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
	BotPrometheusPort int  `yaml:"bot_prometheus_port"`
}

// PortFor returns the metrics port of a process role ("api" or "bot").
func (m MonitoringConfig) PortFor(role string) int {
	if role == "bot" {
		return m.BotPrometheusPort
	}
	return m.PrometheusPort
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config at configPath, expanding ${VAR} references from the
// environment. A .env file next to the process is loaded first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for sqlite backend")
		}
	case BackendRedis, BackendFailover:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for %s backend", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Sync.Transport {
	case TransportLocal:
		if c.Store.Backend != BackendMemory {
			return errors.New("sync.transport=local only reaches contexts in this process; use it with store.backend=memory")
		}
	case TransportLog:
	default:
		return fmt.Errorf("unknown sync transport %q", c.Sync.Transport)
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == c.Monitoring.BotPrometheusPort {
		return fmt.Errorf("monitoring.bot_prometheus_port must differ from monitoring.prometheus_port (%d)", c.Monitoring.PrometheusPort)
	}

	if c.Sync.Retention < 0 {
		return errors.New("sync.retention must not be negative")
	}

	return nil
}

func (c *Config) applyDefaults() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Store.CASRetries == 0 {
		c.Store.CASRetries = 5
	}
	if c.Store.CASBackoff == 0 {
		c.Store.CASBackoff = 10 * time.Millisecond
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "fixora"
	}

	c.Sync.Transport = strings.ToLower(strings.TrimSpace(c.Sync.Transport))
	if c.Sync.Transport == "" {
		c.Sync.Transport = TransportLog
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = time.Second
	}
	if c.Sync.Retention == 0 {
		c.Sync.Retention = 24 * time.Hour
	}
	if c.Sync.CompactEvery == 0 {
		c.Sync.CompactEvery = 10 * time.Minute
	}
	if c.Sync.NotifyChannel == "" {
		c.Sync.NotifyChannel = "fixora_sync"
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 5000
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	// Both processes usually share one file; default to the server's header.
	if c.Client.HeaderAPIKey == "" {
		c.Client.HeaderAPIKey = c.API.Auth.HeaderAPIKey
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = 10 * time.Second
	}
	if c.Client.PollInterval == 0 {
		c.Client.PollInterval = 3 * time.Second
	}

	if c.Matching.DefaultLat == 0 && c.Matching.DefaultLng == 0 {
		c.Matching.DefaultLat = models.DefaultLatitude
		c.Matching.DefaultLng = models.DefaultLongitude
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.BotPrometheusPort == 0 {
		c.Monitoring.BotPrometheusPort = c.Monitoring.PrometheusPort + 1
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

// DefaultOrigin returns the configured fallback origin for matching.
func (c *Config) DefaultOrigin() models.Coordinate {
	return models.NewCoordinate(c.Matching.DefaultLat, c.Matching.DefaultLng)
}

// ValidateProfessionals checks seed professionals before they reach the store.
func ValidateProfessionals(professionals []models.Professional) error {
	ids := make(map[string]bool)
	for _, p := range professionals {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("professional '%s' has empty ID", p.Name)
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate professional ID found: %s", p.ID)
		}
		ids[p.ID] = true
		if _, ok := models.NormalizeProfession(p.Profession); !ok {
			return fmt.Errorf("professional %s has unknown profession %q", p.ID, p.Profession)
		}
	}
	return nil
}
