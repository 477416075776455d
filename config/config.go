package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	// Основные настройки приложения
	App AppConfigStruct `json:"app"`

	// База данных
	Database DatabaseConfig `json:"database"`

	// Redis
	Redis RedisConfig `json:"redis"`

	// JWT
	JWT JWTConfig `json:"jwt"`

	// CORS
	CORS CORSConfig `json:"cors"`

	// Безопасность
	Security SecurityConfig `json:"security"`

	// Логирование
	Logging LoggingConfig `json:"logging"`

	// Загрузка файлов
	Uploads UploadsConfig `json:"uploads"`

	// Бизнес-параметры (НДС, сроки оплаты)
	Business BusinessConfig `json:"business"`

	// Внешние сервисы
	External ExternalConfig `json:"external"`
}

type AppConfigStruct struct {
	Env              string `json:"env"`
	Port             string `json:"port"`
	Host             string `json:"host"`
	BaseURL          string `json:"base_url"`
	Version          string `json:"version"`
	Debug            bool   `json:"debug"`
	SchedulerEnabled bool   `json:"scheduler_enabled"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"` // postgres, sqlite
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	Path            string        `json:"path"` // путь к файлу SQLite
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool          `json:"enabled"`
	Host     string        `json:"host"`
	Port     string        `json:"port"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	URL      string        `json:"url"`
	Timeout  time.Duration `json:"timeout"`
	MaxConns int           `json:"max_connections"`
}

type JWTConfig struct {
	Secret           string        `json:"secret"`
	ExpiresIn        time.Duration `json:"expires_in"`
	RefreshExpiresIn time.Duration `json:"refresh_expires_in"`
	Issuer           string        `json:"issuer"`
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type SecurityConfig struct {
	RateLimitRequests int           `json:"rate_limit_requests"`
	RateLimitWindow   time.Duration `json:"rate_limit_window"`
	AuthRateLimit     int           `json:"auth_rate_limit"`
	UserRateLimit     int           `json:"user_rate_limit"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type UploadsConfig struct {
	Dir           string `json:"dir"`
	PublicPath    string `json:"public_path"`
	MaxUploadSize int64  `json:"max_upload_size"`
	MaxPhotos     int    `json:"max_photos"`
}

type BusinessConfig struct {
	DefaultTaxRate     decimal.Decimal `json:"default_tax_rate"`
	InvoiceDueDays     int             `json:"invoice_due_days"`
	QuoteValidityDays  int             `json:"quote_validity_days"`
	Currency           string          `json:"currency"`
	CompanyDisplayName string          `json:"company_display_name"`
}

type ExternalConfig struct {
	// Email (SendGrid)
	SendGridAPIKey string `json:"-"`
	MailFrom       string `json:"mail_from"`
	MailFromName   string `json:"mail_from_name"`

	// Telegram
	TelegramBotToken string `json:"-"`
	TelegramChatID   string `json:"telegram_chat_id"`

	// Внешний реестр соответствия BATUTA
	ComplianceRegistryURL string `json:"compliance_registry_url"`
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	// Загружаем .env файл если он существует
	_ = godotenv.Load()

	config := &Config{
		App: AppConfigStruct{
			Env:              getEnv("APP_ENV", "development"),
			Port:             getEnv("APP_PORT", "8080"),
			Host:             getEnv("APP_HOST", "0.0.0.0"),
			BaseURL:          getEnv("BACKEND_URL", "http://localhost:8080"),
			Version:          getEnv("API_VERSION", "v1"),
			Debug:            getEnvBool("DEBUG_MODE", false),
			SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "fieldservice_db"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			Path:            getEnv("DB_PATH", "fieldservice.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 300*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			URL:      getEnv("REDIS_URL", ""),
			Timeout:  getEnvDuration("REDIS_TIMEOUT", 5*time.Second),
			MaxConns: getEnvInt("REDIS_MAX_CONNECTIONS", 10),
		},
		JWT: JWTConfig{
			Secret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
			ExpiresIn:        getEnvDuration("JWT_EXPIRES_IN", 15*time.Minute),
			RefreshExpiresIn: getEnvDuration("JWT_REFRESH_EXPIRES_IN", 168*time.Hour),
			Issuer:           getEnv("JWT_ISSUER", "fieldservice-crm"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvInt("CORS_MAX_AGE", 86400),
		},
		Security: SecurityConfig{
			RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			AuthRateLimit:     getEnvInt("AUTH_RATE_LIMIT", 10),
			UserRateLimit:     getEnvInt("USER_RATE_LIMIT_REQUESTS", 300),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Uploads: UploadsConfig{
			Dir:           getEnv("UPLOAD_DIR", "uploads"),
			PublicPath:    getEnv("UPLOAD_PUBLIC_PATH", "/uploads"),
			MaxUploadSize: int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 10)) << 20,
			MaxPhotos:     getEnvInt("MAX_REPORT_PHOTOS", 10),
		},
		Business: BusinessConfig{
			DefaultTaxRate:     getEnvDecimal("QUOTE_DEFAULT_TAX_RATE", decimal.NewFromInt(20)),
			InvoiceDueDays:     getEnvInt("INVOICE_DUE_DAYS", 30),
			QuoteValidityDays:  getEnvInt("QUOTE_VALIDITY_DAYS", 30),
			Currency:           getEnv("CURRENCY", "EUR"),
			CompanyDisplayName: getEnv("COMPANY_DISPLAY_NAME", "Field Service CRM"),
		},
		External: ExternalConfig{
			SendGridAPIKey:        getEnv("SENDGRID_API_KEY", ""),
			MailFrom:              getEnv("MAIL_FROM", "no-reply@example.com"),
			MailFromName:          getEnv("MAIL_FROM_NAME", "Field Service CRM"),
			TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:        getEnv("TELEGRAM_CHAT_ID", ""),
			ComplianceRegistryURL: getEnv("COMPLIANCE_REGISTRY_URL", ""),
		},
	}

	// Валидация критически важных настроек
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	// Проверяем обязательные поля для продакшена
	if c.App.Env == "production" {
		if c.JWT.Secret == "" || c.JWT.Secret == "dev-secret-change-me" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
		}
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required in production")
		}
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME cannot be empty")
		}
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER cannot be empty")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.Database.Driver)
	}

	if c.Business.DefaultTaxRate.IsNegative() {
		return fmt.Errorf("QUOTE_DEFAULT_TAX_RATE cannot be negative")
	}

	return nil
}

// NewLogger создает логгер приложения по настройкам логирования
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}

// Вспомогательные функции для получения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("Invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		logrus.Warnf("Invalid boolean value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("Invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
		logrus.Warnf("Invalid decimal value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшене
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// GetDatabaseDSN возвращает строку подключения к БД
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// GetAdminDSN возвращает DSN к служебной БД postgres (для создания рабочей БД)
func (c *Config) GetAdminDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.SSLMode)
}

// GetRedisAddr возвращает адрес Redis
func (c *Config) GetRedisAddr() string {
	if c.Redis.URL != "" {
		return c.Redis.URL
	}
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// LogConfig выводит конфигурацию в лог (без секретных данных)
func (c *Config) LogConfig(logger *logrus.Logger) {
	logger.WithFields(logrus.Fields{
		"environment":   c.App.Env,
		"port":          c.App.Port,
		"db_driver":     c.Database.Driver,
		"db_host":       c.Database.Host,
		"db_name":       c.Database.Name,
		"redis_enabled": c.Redis.Enabled,
		"redis_addr":    c.GetRedisAddr(),
		"jwt_issuer":    c.JWT.Issuer,
		"upload_dir":    c.Uploads.Dir,
		"sendgrid":      c.External.SendGridAPIKey != "",
		"telegram":      c.External.TelegramBotToken != "",
		"scheduler":     c.App.SchedulerEnabled,
	}).Info("Application configuration")
}
