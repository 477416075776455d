package database

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Type    string // btree, gin
}

// PerformanceIndexes составные индексы для типовых выборок
var PerformanceIndexes = []DatabaseIndex{
	// Миссии: выборки техника/клиента по статусу и дате
	{
		Name:    "idx_missions_technician_status",
		Table:   "missions",
		Columns: []string{"technician_id", "status"},
		Type:    "btree",
	},
	{
		Name:    "idx_missions_client_status",
		Table:   "missions",
		Columns: []string{"client_id", "status"},
		Type:    "btree",
	},
	{
		Name:    "idx_missions_status_scheduled",
		Table:   "missions",
		Columns: []string{"status", "scheduled_date"},
		Type:    "btree",
	},

	// Предложения
	{
		Name:    "idx_quotes_client_status",
		Table:   "quotes",
		Columns: []string{"client_id", "status"},
		Type:    "btree",
	},
	{
		Name:    "idx_quotes_status_valid_until",
		Table:   "quotes",
		Columns: []string{"status", "valid_until"},
		Type:    "btree",
	},

	// Счета: планировщик просрочки и выборка клиента
	{
		Name:    "idx_invoices_status_due",
		Table:   "invoices",
		Columns: []string{"status", "due_date"},
		Type:    "btree",
	},
	{
		Name:    "idx_invoices_client_created",
		Table:   "invoices",
		Columns: []string{"client_id", "created_at"},
		Type:    "btree",
	},

	// Заявки
	{
		Name:    "idx_requests_client_status",
		Table:   "requests",
		Columns: []string{"client_id", "status"},
		Type:    "btree",
	},

	// Отчеты
	{
		Name:    "idx_reports_mission_status",
		Table:   "reports",
		Columns: []string{"mission_id", "status"},
		Type:    "btree",
	},

	// Сообщения
	{
		Name:    "idx_messages_conversation_created",
		Table:   "messages",
		Columns: []string{"conversation_id", "created_at"},
		Type:    "btree",
	},

	// Полнотекстовый поиск по адресу и описанию миссий (только PostgreSQL)
	{
		Name:    "idx_missions_fulltext",
		Table:   "missions",
		Columns: []string{"address", "description"},
		Type:    "gin",
	},
}

// CreatePerformanceIndexes создает индексы производительности
func CreatePerformanceIndexes(db *gorm.DB, log *logrus.Logger) error {
	for _, index := range PerformanceIndexes {
		if index.Type == "gin" && db.Dialector.Name() != "postgres" {
			continue
		}
		if err := CreateIndex(db, index); err != nil {
			// Продолжаем создание других индексов даже если один упал
			log.WithError(err).Warnf("Failed to create index %s", index.Name)
			continue
		}
		log.Debugf("Created index: %s", index.Name)
	}
	return nil
}

// CreateIndex создает отдельный индекс
func CreateIndex(db *gorm.DB, index DatabaseIndex) error {
	var sql string

	switch index.Type {
	case "gin":
		expr := make([]string, len(index.Columns))
		for i, col := range index.Columns {
			expr[i] = fmt.Sprintf("COALESCE(%s, '')", col)
		}
		sql = fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('simple', %s))",
			index.Name, index.Table, strings.Join(expr, " || ' ' || "),
		)
	default:
		uniqueStr := ""
		if index.Unique {
			uniqueStr = "UNIQUE "
		}
		sql = fmt.Sprintf(
			"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			uniqueStr, index.Name, index.Table, strings.Join(index.Columns, ", "),
		)
	}

	return db.Exec(sql).Error
}

// DropIndex удаляет индекс
func DropIndex(db *gorm.DB, indexName string) error {
	return db.Exec(fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)).Error
}
