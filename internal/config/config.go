package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"cubenotary/internal/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Payments      PaymentsConfig      `yaml:"payments"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Google        GoogleConfig        `yaml:"google"`
	Reminders     ReminderConfig      `yaml:"reminders"`
	Exports       ExportConfig        `yaml:"exports"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// PricingConfig holds fees as decimal strings keyed by service name.
type PricingConfig struct {
	Currency string            `yaml:"currency"`
	Fees     map[string]string `yaml:"fees"`
}

type PaymentsConfig struct {
	StripeSecretKey string        `yaml:"stripe_secret_key"`
	WebhookSecret   string        `yaml:"webhook_secret"`
	AmountTolerance string        `yaml:"amount_tolerance"`
	DedupeTTL       time.Duration `yaml:"dedupe_ttl"`
}

type NotificationsConfig struct {
	Email    EmailConfig    `yaml:"email"`
	SMS      SMSConfig      `yaml:"sms"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

type SMSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	AdminPhone string `yaml:"admin_phone"`
}

type TelegramConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BotToken    string `yaml:"bot_token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
	Debug       bool   `yaml:"debug"`
	// Commands starts the operator command bot on the same token.
	Commands bool    `yaml:"commands"`
	Admins   []int64 `yaml:"admins"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string     `yaml:"credentials_file"`
	BookingSpreadSheetID  string     `yaml:"bookings_spreadsheet_id"`
	Sync                  SyncConfig `yaml:"sync"`
}

// SyncConfig tunes retries of the Sheets mirror worker. Zero values fall back
// to the worker defaults.
type SyncConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Jitter       float64       `yaml:"jitter"`
}

type ReminderConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// feeEnv lists the environment variables that override individual fees.
var feeEnv = map[models.ServiceType]string{
	models.ServiceGeneralNotary:   "NOTARY_FEE",
	models.ServiceApostille:       "APOSTILLE_FEE",
	models.ServicePowerOfAttorney: "POA_FEE",
	models.ServiceRON:             "RON_FEE",
	models.ServiceMobileNotary:    "MOBILE_FEE",
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
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
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Pricing.FeeSchedule(); err != nil {
		return err
	}

	tol, err := c.Payments.Tolerance()
	if err != nil {
		return err
	}
	if tol.IsNegative() {
		return errors.New("payments.amount_tolerance must not be negative")
	}

	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth is enabled but no api_keys are configured")
	}
	for _, k := range c.API.Auth.APIKeys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key %q has an empty key", k.Name)
		}
	}

	if c.Notifications.Telegram.Enabled && c.Notifications.Telegram.BotToken == "" {
		return errors.New("telegram notifications require bot_token")
	}

	return nil
}

// FeeSchedule parses the configured fees on top of the built-in price list.
func (p PricingConfig) FeeSchedule() (models.FeeSchedule, error) {
	fees := models.DefaultFees()
	for name, raw := range p.Fees {
		st := models.ServiceType(name)
		if !st.Valid() {
			return nil, fmt.Errorf("pricing: unknown service %q", name)
		}
		fee, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("pricing: fee for %q: %w", name, err)
		}
		if !fee.IsPositive() {
			return nil, fmt.Errorf("pricing: fee for %q must be positive", name)
		}
		fees[st] = fee
	}
	return fees, nil
}

func (p PaymentsConfig) Tolerance() (decimal.Decimal, error) {
	if p.AmountTolerance == "" {
		return decimal.New(1, -2), nil
	}
	tol, err := decimal.NewFromString(p.AmountTolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("payments.amount_tolerance: %w", err)
	}
	return tol, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "cubenotary"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 5 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if len(c.API.CORS.AllowedOrigins) == 0 {
		c.API.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Pricing.Currency == "" {
		c.Pricing.Currency = models.DefaultCurrency
	}
	if c.Payments.DedupeTTL == 0 {
		c.Payments.DedupeTTL = models.DefaultWebhookDedupeTTL * time.Second
	}
	if c.Notifications.Email.SMTPPort == 0 {
		c.Notifications.Email.SMTPPort = 587
	}
	if c.Reminders.Schedule == "" {
		c.Reminders.Schedule = models.ReminderCron
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}

// applyEnvOverrides lets the fee env variables win over the YAML price list.
func (c *Config) applyEnvOverrides() {
	for st, env := range feeEnv {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			continue
		}
		if c.Pricing.Fees == nil {
			c.Pricing.Fees = make(map[string]string)
		}
		c.Pricing.Fees[string(st)] = v
	}
}
