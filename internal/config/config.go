package config

import (
	"errors"
	"fmt"
	"os"

	"villaops/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App            AppConfig         `yaml:"app"`
	Database       DatabaseConfig    `yaml:"database"`
	Redis          RedisConfig       `yaml:"redis"`
	Backup         BackupConfig      `yaml:"backup"`
	Monitoring     MonitoringConfig  `yaml:"monitoring"`
	Logging        LoggingConfig     `yaml:"logging"`
	API            APIConfig         `yaml:"api"`
	Telegram       TelegramConfig    `yaml:"telegram"`
	Google         GoogleConfig      `yaml:"google"`
	Exports        ExportConfig      `yaml:"exports"`
	Booking        BookingConfig     `yaml:"booking"`
	Approvals      ApprovalConfig    `yaml:"approvals"`
	Webhooks       WebhookConfig     `yaml:"webhooks"`
	Realtime       RealtimeConfig    `yaml:"realtime"`
	PropertiesFile string            `yaml:"properties_file"`
	Properties     []models.Property `yaml:"properties"`
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

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
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

type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	Debug          bool    `yaml:"debug"`
	ManagerChatIDs []int64 `yaml:"manager_chat_ids"`
	DigestTime     string  `yaml:"digest_time"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type BookingConfig struct {
	MaxAdvanceDays        int  `yaml:"max_advance_days"`
	MaxNights             int  `yaml:"max_nights"`
	AutoCleaningJobs      bool `yaml:"auto_cleaning_jobs"`
	CleaningStartHour     int  `yaml:"cleaning_start_hour"`
	CleaningDurationHours int  `yaml:"cleaning_duration_hours"`
}

type ApprovalConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	EscalateConflicts   bool    `yaml:"escalate_conflicts"`
}

type WebhookConfig struct {
	// Secrets maps a webhook source name to its shared secret.
	Secrets      map[string]string `yaml:"secrets"`
	SecretHeader string            `yaml:"secret_header"`
}

type RealtimeConfig struct {
	Channel          string `yaml:"channel"`
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
	CacheTTLSeconds  int    `yaml:"cache_ttl_seconds"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
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
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Approvals.ConfidenceThreshold <= 0 || c.Approvals.ConfidenceThreshold > 1 {
		return fmt.Errorf("approvals.confidence_threshold must be in (0, 1], got %v", c.Approvals.ConfidenceThreshold)
	}
	if c.Booking.CleaningStartHour < 0 || c.Booking.CleaningStartHour > 23 {
		return fmt.Errorf("booking.cleaning_start_hour must be 0-23, got %d", c.Booking.CleaningStartHour)
	}
	if c.API.GRPC.TLS.Enabled && (c.API.GRPC.TLS.CertFile == "" || c.API.GRPC.TLS.KeyFile == "") {
		return errors.New("api.grpc.tls requires cert_file and key_file")
	}

	return ValidateProperties(c.Properties)
}

func ValidateProperties(properties []models.Property) error {
	ids := make(map[int64]bool)
	for _, p := range properties {
		if p.ID == 0 {
			return fmt.Errorf("property '%s' has invalid ID 0", p.Name)
		}
		if p.Name == "" {
			return fmt.Errorf("property %d has no name", p.ID)
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate property ID found: %d", p.ID)
		}
		ids[p.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "villaops"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = 730
	}
	if c.Booking.MaxNights == 0 {
		c.Booking.MaxNights = 90
	}
	if c.Booking.CleaningStartHour == 0 {
		c.Booking.CleaningStartHour = 11
	}
	if c.Booking.CleaningDurationHours == 0 {
		c.Booking.CleaningDurationHours = 4
	}

	if c.Approvals.ConfidenceThreshold == 0 {
		c.Approvals.ConfidenceThreshold = 0.8
	}

	if c.Webhooks.SecretHeader == "" {
		c.Webhooks.SecretHeader = "x-webhook-secret"
	}

	if c.Realtime.Channel == "" {
		c.Realtime.Channel = "villaops:changes"
	}
	if c.Realtime.SubscriberBuffer == 0 {
		c.Realtime.SubscriberBuffer = models.SubscriberBuffer
	}
	if c.Realtime.CacheTTLSeconds == 0 {
		c.Realtime.CacheTTLSeconds = models.DefaultCacheTTL
	}

	if c.Telegram.DigestTime == "" {
		c.Telegram.DigestTime = fmt.Sprintf("%02d:00", models.ReminderHour)
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
