package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend_fieldservice/api"
	"backend_fieldservice/config"
	"backend_fieldservice/database"
	"backend_fieldservice/services"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout время на корректное завершение активных запросов
const shutdownTimeout = 15 * time.Second

// initDB инициализирует подключение к базе данных
func initDB(cfg *config.Config, log *logrus.Logger) *gorm.DB {
	log.Info("🔧 Инициализация базы данных...")

	// Создаем базу данных, если она не существует
	if err := database.CreateDatabaseIfNotExists(cfg, log); err != nil {
		log.WithError(err).Fatal("❌ Ошибка при создании базы данных")
	}

	db, err := database.ConnectDatabase(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("❌ Ошибка подключения к базе данных")
	}

	log.Info("✅ База данных успешно инициализирована")
	return db
}

// initRedis подключает Redis; без него сервис работает без кэша, лимитов и межузловой доставки событий
func initRedis(cfg *config.Config, log *logrus.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		log.Info("Redis отключен конфигурацией")
		return nil
	}
	client, err := database.InitRedis(cfg, log)
	if err != nil {
		log.WithError(err).Warn("⚠️ Redis недоступен, продолжаем без него")
		return nil
	}
	return client
}

// realtime выбирает транспорт событий: Redis pub/sub для нескольких экземпляров или внутрипроцессный хаб
type realtime interface {
	services.Publisher
	services.Subscriber
}

func newRealtime(client *redis.Client, log *logrus.Logger) realtime {
	if client != nil {
		return services.NewRedisPublisher(client, log)
	}
	return services.NewHub()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("❌ Ошибка загрузки конфигурации")
	}
	log := cfg.NewLogger()
	cfg.LogConfig(log)

	db := initDB(cfg, log)
	redisClient := initRedis(cfg, log)
	events := newRealtime(redisClient, log)

	// Побочные эффекты рабочих процессов
	notifications := services.NewNotificationService(db, events, log)
	effects := &services.SideEffects{
		Notifications: notifications,
		Mailer:        services.NewMailer(cfg.External, log),
		Alerter:       services.NewAdminAlerter(cfg.External, log),
		Log:           log,
	}

	// Бизнес-сервисы
	tokens := services.NewTokenService(cfg.JWT)
	auth := services.NewAuthService(db, tokens, log)
	quotes := services.NewQuoteService(db, cfg.Business, effects, log)
	billing := services.NewBillingService(db, cfg.Business, effects, log)
	cache := services.NewCacheService(redisClient, log)

	var scheduler *services.SchedulerService
	if cfg.App.SchedulerEnabled {
		scheduler = services.NewSchedulerService(billing, quotes, cache, log)
		if err := scheduler.Start(); err != nil {
			log.WithError(err).Fatal("❌ Не удалось запустить планировщик")
		}
	}

	router := api.SetupRouter(api.Dependencies{
		Config:        cfg,
		DB:            db,
		Redis:         redisClient,
		Log:           log,
		Auth:          auth,
		Users:         services.NewUserService(db, log),
		Catalog:       services.NewCatalogService(db, effects, log),
		Requests:      services.NewRequestService(db, effects, log),
		Quotes:        quotes,
		Missions:      services.NewMissionService(db, billing, effects, log),
		Reports:       services.NewReportService(db, services.NewComplianceClient(cfg.External.ComplianceRegistryURL, log), effects, log),
		Billing:       billing,
		Messaging:     services.NewMessagingService(db, effects, log),
		Notifications: notifications,
		Subscriber:    events,
		Dashboard:     services.NewDashboardService(db, cache, log),
		Cache:         cache,
		Scheduler:     scheduler,
		Uploads:       services.NewUploadService(cfg.Uploads, log),
		PDF:           services.NewPDFService(cfg.Uploads, cfg.Business, log),
		Export:        services.NewExportService(log),
	})

	srv := &http.Server{
		Addr:              cfg.App.Host + ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("🚀 Сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("❌ Ошибка HTTP-сервера")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Получен сигнал завершения, останавливаем сервер...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Ошибка при остановке сервера")
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Warn("Ошибка при закрытии Redis")
		}
	}
	log.Info("Сервер остановлен")
}
