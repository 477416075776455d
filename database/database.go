package database

import (
	"database/sql"
	"fmt"
	"time"

	"backend_fieldservice/config"
	"backend_fieldservice/models"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CreateDatabaseIfNotExists создает базу данных PostgreSQL, если она не существует
func CreateDatabaseIfNotExists(cfg *config.Config, log *logrus.Logger) error {
	if cfg.Database.Driver != "postgres" {
		return nil
	}

	// Подключаемся к служебной БД postgres
	db, err := sql.Open("postgres", cfg.GetAdminDSN())
	if err != nil {
		return fmt.Errorf("не удалось подключиться к PostgreSQL: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("не удалось проверить подключение к PostgreSQL: %w", err)
	}

	var exists bool
	query := "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1);"
	if err := db.QueryRow(query, cfg.Database.Name).Scan(&exists); err != nil {
		return fmt.Errorf("ошибка при проверке существования базы данных: %w", err)
	}

	if exists {
		log.Infof("✅ База данных '%s' уже существует", cfg.Database.Name)
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("CREATE DATABASE %q;", cfg.Database.Name)); err != nil {
		return fmt.Errorf("не удалось создать базу данных '%s': %w", cfg.Database.Name, err)
	}

	log.Infof("✅ База данных '%s' успешно создана", cfg.Database.Name)
	return nil
}

// ConnectDatabase инициализирует подключение к БД выбранного драйвера и выполняет миграции
func ConnectDatabase(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg)),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.Path)
	default:
		dialector = postgres.Open(cfg.GetDatabaseDSN())
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к базе данных: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить пул соединений: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.WithField("driver", cfg.Database.Driver).Info("✅ Успешно подключено к базе данных")

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("ошибка автомиграции: %w", err)
	}
	log.Info("✅ Автомиграция моделей выполнена успешно")

	if err := CreatePerformanceIndexes(db, log); err != nil {
		log.WithError(err).Warn("⚠️ Не удалось создать индексы производительности")
	}

	return db, nil
}

// Migrate выполняет автомиграцию всех моделей
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// Организации и пользователи
		&models.Company{},
		&models.User{},

		// Каталог
		&models.ServiceType{},
		&models.Product{},
		&models.Equipment{},
		&models.EquipmentComponent{},

		// Рабочий процесс
		&models.Request{},
		&models.Quote{},
		&models.QuoteItem{},
		&models.Mission{},
		&models.Report{},

		// Биллинг
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.Payment{},

		// Коммуникации
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.Notification{},

		// Контент сайта
		&models.SiteCustomization{},
	)
}

// Ping проверяет доступность БД
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func gormLogLevel(cfg *config.Config) logger.LogLevel {
	if cfg.App.Debug && !cfg.IsProduction() {
		return logger.Info
	}
	return logger.Warn
}
