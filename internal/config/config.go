package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Поддерживаемые почтовые провайдеры.
const (
	EmailProviderResend   = "resend"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderMailgun  = "mailgun"
	EmailProviderPostmark = "postmark"
	EmailProviderSMTP     = "smtp"
	EmailProviderLog      = "log"
)

type Config struct {
	Port string `validate:"required,numeric"`

	DatabaseURL string
	DbHost      string
	DbPort      string
	DbUser      string
	DbPass      string
	DbName      string
	DbSSLMode   string

	Storage        string        `validate:"oneof=postgres memory"` // postgres|memory
	StorageTimeout time.Duration `validate:"gt=0"`
	StorageRetries int           `validate:"gte=0,lte=10"`

	JWTSecret string

	Log      string
	LogLevel string
	Env      string // dev|prod

	EmailProvider string `validate:"oneof=resend sendgrid mailgun postmark smtp log"`
	EmailAPIKey   string
	EmailFrom     string `validate:"omitempty,email"`
	EmailFromName string
	EmailDomain   string // только для mailgun
	EmailTimeout  time.Duration `validate:"gt=0"`

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string

	AppURL string `validate:"required,url"`

	PasswordResetTTL             time.Duration `validate:"gt=0"`
	PasswordResetUniformResponse bool
	ResetSweepInterval           time.Duration
	ResetSweepRetention          time.Duration `validate:"gte=0"`
}

// LoadConfig загружает .env, читает переменные окружения и выставляет дефолты.
// Ничего не логирует, чтобы не создавать зависимость от logger.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	def := func(v, d string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return d
		}
		return v
	}

	cfg := &Config{
		Port:        def(os.Getenv("PORT"), "8080"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DbHost:      os.Getenv("DB_HOST"),
		DbPort:      def(os.Getenv("DB_PORT"), "5432"),
		DbUser:      os.Getenv("DB_USER"),
		DbPass:      os.Getenv("DB_PASSWORD"),
		DbName:      os.Getenv("DB_NAME"),
		DbSSLMode:   def(os.Getenv("DB_SSLMODE"), "disable"),
		Storage:     strings.ToLower(def(os.Getenv("STORAGE"), "postgres")),

		JWTSecret: os.Getenv("JWT_SECRET"),

		Log:      os.Getenv("LOG"),
		LogLevel: strings.ToLower(def(os.Getenv("LOGLEVEL"), "info")),
		Env:      strings.ToLower(def(os.Getenv("ENV"), "prod")),

		EmailProvider: strings.ToLower(def(os.Getenv("EMAIL_PROVIDER"), EmailProviderLog)),
		EmailAPIKey:   os.Getenv("EMAIL_API_KEY"),
		EmailFrom:     os.Getenv("EMAIL_FROM"),
		EmailFromName: def(os.Getenv("EMAIL_FROM_NAME"), "SkinVault"),
		EmailDomain:   os.Getenv("EMAIL_DOMAIN"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     def(os.Getenv("SMTP_PORT"), "587"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),

		AppURL: strings.TrimRight(def(os.Getenv("APP_URL"), os.Getenv("FRONTEND_URL")), "/"),
	}

	var err error
	if cfg.StorageTimeout, err = durationEnv("STORAGE_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.EmailTimeout, err = durationEnv("EMAIL_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.ResetSweepInterval, err = durationEnv("RESET_SWEEP_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if cfg.ResetSweepRetention, err = durationEnv("RESET_SWEEP_RETENTION", "0s"); err != nil {
		return nil, err
	}

	ttlMin, err := strconv.Atoi(def(os.Getenv("PASSWORD_RESET_TTL_MIN"), "60"))
	if err != nil {
		return nil, fmt.Errorf("PASSWORD_RESET_TTL_MIN: %w", err)
	}
	cfg.PasswordResetTTL = time.Duration(ttlMin) * time.Minute

	if cfg.StorageRetries, err = strconv.Atoi(def(os.Getenv("STORAGE_RETRIES"), "3")); err != nil {
		return nil, fmt.Errorf("STORAGE_RETRIES: %w", err)
	}

	if v := strings.TrimSpace(os.Getenv("PASSWORD_RESET_UNIFORM_RESPONSE")); v != "" {
		if cfg.PasswordResetUniformResponse, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("PASSWORD_RESET_UNIFORM_RESPONSE: %w", err)
		}
	}

	return cfg, nil
}

func durationEnv(key, def string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		v = def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Validate возвращает предупреждения и фатальную ошибку (если критично).
func (c *Config) Validate() (warnings []string, err error) {
	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Критичные: БД (если не in-memory)
	if c.Storage == "postgres" && c.DatabaseURL == "" && (c.DbHost == "" || c.DbUser == "" || c.DbName == "") {
		return nil, fmt.Errorf("incomplete DB config (DATABASE_URL or DB_HOST/DB_USER/DB_NAME)")
	}

	switch c.EmailProvider {
	case EmailProviderResend, EmailProviderSendGrid, EmailProviderPostmark:
		if c.EmailAPIKey == "" || c.EmailFrom == "" {
			return nil, fmt.Errorf("EMAIL_API_KEY and EMAIL_FROM are required for provider %q", c.EmailProvider)
		}
	case EmailProviderMailgun:
		if c.EmailAPIKey == "" || c.EmailFrom == "" || c.EmailDomain == "" {
			return nil, fmt.Errorf("EMAIL_API_KEY, EMAIL_FROM and EMAIL_DOMAIN are required for mailgun")
		}
	case EmailProviderSMTP:
		if c.SMTPHost == "" || c.SMTPUser == "" {
			warnings = append(warnings, "SMTP is not fully configured")
		}
	case EmailProviderLog:
		warnings = append(warnings, "EMAIL_PROVIDER=log: reset links are only written to the log")
	}

	// Без JWT_SECRET админские ручки недоступны, это только предупреждение
	if strings.TrimSpace(c.JWTSecret) == "" {
		warnings = append(warnings, "JWT_SECRET is empty, admin endpoints are disabled")
	}

	if c.Storage == "memory" && c.Env != "dev" {
		warnings = append(warnings, "STORAGE=memory outside of dev: tokens are lost on restart")
	}

	if c.ResetSweepInterval <= 0 {
		warnings = append(warnings, "RESET_SWEEP_INTERVAL is not positive, periodic sweep disabled")
	}

	return warnings, nil
}

// GetDSN — полная DSN (с паролем)
func (c *Config) GetDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DbUser, c.DbPass, c.DbHost, c.DbPort, c.DbName, c.DbSSLMode,
	)
}

// GetDSNSafe — DSN без пароля (для логов)
func (c *Config) GetDSNSafe() string {
	if c.DatabaseURL != "" {
		return "DATABASE_URL (hidden)"
	}
	return fmt.Sprintf(
		"postgres://%s:***@%s:%s/%s?sslmode=%s",
		c.DbUser, c.DbHost, c.DbPort, c.DbName, c.DbSSLMode,
	)
}
