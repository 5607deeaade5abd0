package config

import (
	"fmt"
	"os"
	"time"

	validator "github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime"`  // seconds
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time"` // seconds
}

type RedisConfig struct {
	Address  string `koanf:"address" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type BusConfig struct {
	URL                 string `koanf:"url" validate:"required"`
	SubscribeQueueGroup string `koanf:"subscribe_queue_group"`
}

type RegistryConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	RefreshInterval time.Duration `koanf:"refresh_interval"` // seconds
	Strategy        string        `koanf:"strategy"`
	Enabled         bool          `koanf:"enabled"`
}

func (c *RegistryConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`  // seconds
	WriteTimeout time.Duration `koanf:"write_timeout"` // seconds
	IdleTimeout  time.Duration `koanf:"idle_timeout"`  // seconds
}

type BackoffConfig struct {
	Base   time.Duration `koanf:"base"` // seconds
	Cap    time.Duration `koanf:"cap"`  // seconds
	Jitter float64       `koanf:"jitter"`
}

type DeliveryConfig struct {
	SchedulerInterval time.Duration `koanf:"scheduler_interval"` // seconds
	Workers           int           `koanf:"workers"`
	MaxRetries        int           `koanf:"max_retries"`
	ProviderTimeout   time.Duration `koanf:"provider_timeout"` // seconds
	DrainTimeout      time.Duration `koanf:"drain_timeout"`    // seconds
	InAppSyncDelivery bool          `koanf:"in_app_synchronous_delivery"`
	Backoff           BackoffConfig `koanf:"backoff"`
}

type BatchConfig struct {
	MaxRecipients int `koanf:"max_recipients"`
}

type DedupConfig struct {
	Size  int `koanf:"size"`
	Evict int `koanf:"evict"`
}

type AuditConfig struct {
	RetentionDaysSecurity int `koanf:"retention_days_security"`
	RetentionDaysAuth     int `koanf:"retention_days_auth"`
	RetentionDaysData     int `koanf:"retention_days_data"`
}

type EmailProviderConfig struct {
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"api_key"`
	From     string `koanf:"from"`
}

type PushProviderConfig struct {
	ProjectID          string `koanf:"project_id"`
	ServiceAccountJSON string `koanf:"service_account_json"`
	Enabled            bool   `koanf:"enabled"`
}

type SMSProviderConfig struct {
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"api_key"`
	From     string `koanf:"from"`
}

type Config struct {
	Database           DatabaseConfig      `koanf:"database"`
	Redis              RedisConfig         `koanf:"redis"`
	Bus                BusConfig           `koanf:"bus"`
	Registry           RegistryConfig      `koanf:"registry"`
	NotificationServer ServerConfig        `koanf:"notification_server"`
	AuditServer        ServerConfig        `koanf:"audit_server"`
	Delivery           DeliveryConfig      `koanf:"delivery"`
	Batch              BatchConfig         `koanf:"batch"`
	Dedup              DedupConfig         `koanf:"dedup_cache"`
	Audit              AuditConfig         `koanf:"audit"`
	Email              EmailProviderConfig `koanf:"email"`
	Push               PushProviderConfig  `koanf:"push"`
	SMS                SMSProviderConfig   `koanf:"sms"`
}

// LoadConfig reads .env (when present) and the process environment into a
// validated Config. Environment variables override file values and use "."
// nesting, e.g. database.host.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(".env"); err == nil {
		if err := k.Load(file.Provider(".env"), dotenv.Parser()); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	var config Config
	sections := map[string]any{
		"database":            &config.Database,
		"redis":               &config.Redis,
		"bus":                 &config.Bus,
		"registry":            &config.Registry,
		"notification_server": &config.NotificationServer,
		"audit_server":        &config.AuditServer,
		"delivery":            &config.Delivery,
		"batch":               &config.Batch,
		"dedup_cache":         &config.Dedup,
		"audit":               &config.Audit,
		"email":               &config.Email,
		"push":                &config.Push,
		"sms":                 &config.SMS,
	}
	for key, dst := range sections {
		if err := k.Unmarshal(key, dst); err != nil {
			return nil, fmt.Errorf("error unmarshaling %s config: %w", key, err)
		}
	}

	// Durations are configured in seconds.
	config.NotificationServer.ReadTimeout = time.Duration(k.Int("notification_server.read_timeout")) * time.Second
	config.NotificationServer.WriteTimeout = time.Duration(k.Int("notification_server.write_timeout")) * time.Second
	config.NotificationServer.IdleTimeout = time.Duration(k.Int("notification_server.idle_timeout")) * time.Second
	config.AuditServer.ReadTimeout = time.Duration(k.Int("audit_server.read_timeout")) * time.Second
	config.AuditServer.WriteTimeout = time.Duration(k.Int("audit_server.write_timeout")) * time.Second
	config.AuditServer.IdleTimeout = time.Duration(k.Int("audit_server.idle_timeout")) * time.Second
	config.Delivery.SchedulerInterval = time.Duration(k.Int("delivery.scheduler_interval")) * time.Second
	config.Delivery.ProviderTimeout = time.Duration(k.Int("delivery.provider_timeout")) * time.Second
	config.Delivery.DrainTimeout = time.Duration(k.Int("delivery.drain_timeout")) * time.Second
	config.Delivery.Backoff.Base = time.Duration(k.Int("delivery.backoff.base")) * time.Second
	config.Delivery.Backoff.Cap = time.Duration(k.Int("delivery.backoff.cap")) * time.Second
	config.Registry.RefreshInterval = time.Duration(k.Int("registry.refresh_interval")) * time.Second

	// Defaults to on; an unset flag must not read as false.
	if !k.Exists("delivery.in_app_synchronous_delivery") {
		config.Delivery.InAppSyncDelivery = true
	}

	config.applyDefaults()

	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Bus.SubscribeQueueGroup == "" {
		c.Bus.SubscribeQueueGroup = "event-pipeline"
	}
	if c.Registry.RefreshInterval <= 0 {
		c.Registry.RefreshInterval = 15 * time.Second
	}
	if c.Registry.Strategy == "" {
		c.Registry.Strategy = "round_robin"
	}
	if c.Delivery.SchedulerInterval <= 0 {
		c.Delivery.SchedulerInterval = 30 * time.Second
	}
	if c.Delivery.Workers <= 0 {
		c.Delivery.Workers = 8
	}
	if c.Delivery.MaxRetries <= 0 {
		c.Delivery.MaxRetries = 3
	}
	if c.Delivery.ProviderTimeout <= 0 {
		c.Delivery.ProviderTimeout = 30 * time.Second
	}
	if c.Delivery.DrainTimeout <= 0 {
		c.Delivery.DrainTimeout = 20 * time.Second
	}
	if c.Delivery.Backoff.Base <= 0 {
		c.Delivery.Backoff.Base = 30 * time.Second
	}
	if c.Delivery.Backoff.Cap <= 0 {
		c.Delivery.Backoff.Cap = time.Hour
	}
	if c.Delivery.Backoff.Jitter <= 0 {
		c.Delivery.Backoff.Jitter = 0.5
	}
	if c.Batch.MaxRecipients <= 0 {
		c.Batch.MaxRecipients = 1000
	}
	if c.Dedup.Size <= 0 {
		c.Dedup.Size = 10000
	}
	if c.Dedup.Evict <= 0 {
		c.Dedup.Evict = 5000
	}
	if c.Audit.RetentionDaysSecurity <= 0 {
		c.Audit.RetentionDaysSecurity = 7 * 365
	}
	if c.Audit.RetentionDaysAuth <= 0 {
		c.Audit.RetentionDaysAuth = 3 * 365
	}
	if c.Audit.RetentionDaysData <= 0 {
		c.Audit.RetentionDaysData = 365
	}
}

// GetDatabaseDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
