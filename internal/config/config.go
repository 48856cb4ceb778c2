// Package config reads settings from the environment, after loading a
// .env file when one exists.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultDBDriver     = "sqlite"
	DefaultDBPath       = "leads.db"
	DefaultHTTPAddr     = ":8080"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultMailPort     = 587
	DefaultRateLimit    = 120
	DefaultBackupKeep   = 7
	DefaultCORSOrigins  = "http://localhost:5173"
	DefaultMailFrom     = "leadflow@localhost"
	DefaultBackupPeriod = 24 * time.Hour
	DefaultWATemplate   = "lead_contacted"
)

type Config struct {
	DB       DBConfig
	HTTP     HTTPConfig
	Log      LogConfig
	AMQP     AMQPConfig
	Mail     MailConfig
	WhatsApp WhatsAppConfig
	Backup   BackupConfig
}

type DBConfig struct {
	Driver string // sqlite or postgres
	Path   string // sqlite file
	URL    string // postgres DSN
}

func (c DBConfig) IsPostgres() bool {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "postgres", "postgresql":
		return true
	}
	return false
}

type HTTPConfig struct {
	Addr               string
	CORSOrigins        []string
	RateLimitPerMinute int
}

type LogConfig struct {
	Level  string
	Format string
}

type AMQPConfig struct {
	URL string
}

func (c AMQPConfig) Enabled() bool { return c.URL != "" }

type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	NotifyTo string
}

func (c MailConfig) Enabled() bool { return c.Host != "" && c.NotifyTo != "" }

type WhatsAppConfig struct {
	AccessToken string
	PhoneID     string
	NotifyTo    string
	Template    string
}

func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneID != "" && c.NotifyTo != ""
}

type BackupConfig struct {
	Dir      string
	Interval time.Duration
	Keep     int
}

func (c BackupConfig) Enabled() bool { return c.Dir != "" }

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		DB: DBConfig{
			Driver: getEnv("DB_DRIVER", DefaultDBDriver),
			Path:   getEnv("DB_PATH", DefaultDBPath),
			URL:    os.Getenv("DATABASE_URL"),
		},
		HTTP: HTTPConfig{
			Addr:        getEnv("HTTP_ADDR", DefaultHTTPAddr),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", DefaultCORSOrigins)),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", DefaultLogLevel),
			Format: getEnv("LOG_FORMAT", DefaultLogFormat),
		},
		AMQP: AMQPConfig{
			URL: os.Getenv("AMQP_URL"),
		},
		Mail: MailConfig{
			Host:     os.Getenv("MAIL_HOST"),
			User:     os.Getenv("MAIL_USER"),
			Password: os.Getenv("MAIL_PASS"),
			From:     getEnv("MAIL_FROM", DefaultMailFrom),
			NotifyTo: os.Getenv("NOTIFY_EMAIL"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken: os.Getenv("WHATSAPP_ACCESS_TOKEN"),
			PhoneID:     os.Getenv("WHATSAPP_PHONE_ID"),
			NotifyTo:    os.Getenv("WHATSAPP_NOTIFY_TO"),
			Template:    getEnv("WHATSAPP_TEMPLATE", DefaultWATemplate),
		},
		Backup: BackupConfig{
			Dir: os.Getenv("BACKUP_DIR"),
		},
	}

	var err error
	if cfg.HTTP.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", DefaultRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.Mail.Port, err = getInt("MAIL_PORT", DefaultMailPort); err != nil {
		return Config{}, err
	}
	if cfg.Backup.Keep, err = getInt("BACKUP_KEEP", DefaultBackupKeep); err != nil {
		return Config{}, err
	}
	if cfg.Backup.Interval, err = getDuration("BACKUP_INTERVAL", DefaultBackupPeriod); err != nil {
		return Config{}, err
	}

	if cfg.DB.IsPostgres() && cfg.DB.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=%s", cfg.DB.Driver)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
