package testutils

import (
	"io"
	"time"

	"backend_fieldservice/config"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TestConfig возвращает конфигурацию для тестов без обращения к окружению
func TestConfig(uploadDir string) *config.Config {
	return &config.Config{
		App: config.AppConfigStruct{
			Env:     "test",
			Port:    "0",
			BaseURL: "http://localhost",
			Version: "v1",
		},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
		JWT: config.JWTConfig{
			Secret:           "test-secret-key-for-testing-only",
			ExpiresIn:        15 * time.Minute,
			RefreshExpiresIn: time.Hour,
			Issuer:           "fieldservice-test",
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
		Security: config.SecurityConfig{
			RateLimitRequests: 1000,
			RateLimitWindow:   time.Minute,
			AuthRateLimit:     100,
			UserRateLimit:     1000,
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
		Uploads: config.UploadsConfig{
			Dir:           uploadDir,
			PublicPath:    "/uploads",
			MaxUploadSize: 5 << 20,
			MaxPhotos:     10,
		},
		Business: config.BusinessConfig{
			DefaultTaxRate:     decimal.NewFromInt(20),
			InvoiceDueDays:     30,
			QuoteValidityDays:  30,
			Currency:           "EUR",
			CompanyDisplayName: "Field Service Test",
		},
	}
}

// TestLogger логгер, который ничего не выводит
func TestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
