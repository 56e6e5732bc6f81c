package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port       string `envconfig:"PORT" default:"3000"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"inhouse_attendance"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiresIn int    `envconfig:"JWT_EXPIRES_IN" default:"43200"` // minutes, 30 days

	AdminEmail    string `envconfig:"ADMIN_EMAIL" default:"admin@example.com"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD" default:"admin123"`
	AdminFullName string `envconfig:"ADMIN_FULL_NAME" default:"Administrador Sistema"`

	// Biometrics
	EncryptionKey      string        `envconfig:"BIOMETRIC_ENCRYPTION_KEY" required:"true"`
	MatcherURL         string        `envconfig:"BIOMETRIC_MATCHER_URL"`
	MatchThreshold     int           `envconfig:"BIOMETRIC_MATCH_THRESHOLD" default:"60"`
	DefaultInHouseID   string        `envconfig:"BIOMETRIC_DEFAULT_INHOUSE_ID"`
	TemplateCacheTTL   time.Duration `envconfig:"TEMPLATE_CACHE_TTL" default:"10m"`
	TemplateCacheSize  int           `envconfig:"TEMPLATE_CACHE_SIZE" default:"10000"`
	TerminalTOTPSecret string        `envconfig:"TERMINAL_TOTP_SECRET"`

	Timezone  string `envconfig:"TIMEZONE" default:"America/Bogota"`
	ClientURL string `envconfig:"CLIENT_URL" default:"http://localhost:5173"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Notifications, all optional
	SMTPHost     string   `envconfig:"SMTP_HOST"`
	SMTPPort     int      `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string   `envconfig:"SMTP_USER"`
	SMTPPass     string   `envconfig:"SMTP_PASS"`
	NotifyEmails []string `envconfig:"NOTIFY_EMAILS"`
	AMQPURL      string   `envconfig:"AMQP_URL"`
	AMQPExchange string   `envconfig:"AMQP_EXCHANGE" default:"attendance"`

	loc *time.Location
}

// Load reads the environment and rejects an unknown TIMEZONE, since work
// dates are computed in it.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	c.loc = loc
	if c.TemplateCacheSize <= 0 {
		return nil, fmt.Errorf("TEMPLATE_CACHE_SIZE must be positive, got %d", c.TemplateCacheSize)
	}
	return &c, nil
}

// Location returns the zone resolved by Load. A Config built by hand
// resolves Timezone on the fly and falls back to UTC.
func (c *Config) Location() *time.Location {
	if c.loc != nil {
		return c.loc
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTExpiresIn) * time.Minute
}

type TerminalConfig struct {
	ServerURL     string        `envconfig:"SERVER_URL" default:"http://localhost:3000/api"`
	ReaderURL     string        `envconfig:"READER_URL" default:"http://127.0.0.1:15896"`
	OTPSecret     string        `envconfig:"TERMINAL_TOTP_SECRET"`
	InHouseID     string        `envconfig:"INHOUSE_ID"`
	PollInterval  time.Duration `envconfig:"READER_POLL_INTERVAL" default:"5s"`
	CaptureWindow time.Duration `envconfig:"CAPTURE_WINDOW" default:"10s"`
	SuccessDwell  time.Duration `envconfig:"SUCCESS_DWELL" default:"5s"`
	FailureDwell  time.Duration `envconfig:"FAILURE_DWELL" default:"3s"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string        `envconfig:"LOG_FORMAT" default:"text"`
}

func LoadTerminal() (*TerminalConfig, error) {
	var c TerminalConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
