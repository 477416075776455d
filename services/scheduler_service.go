package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Расписания фоновых задач (формат с секундами)
const (
	OverdueInvoicesSchedule = "0 0 * * * *" // каждый час
	ExpireQuotesSchedule    = "0 30 2 * * *" // ежедневно в 02:30
)

// jobTimeout ограничивает время выполнения одной задачи
const jobTimeout = 2 * time.Minute

// SchedulerService запускает периодические задачи: просрочка счетов и истечение предложений
type SchedulerService struct {
	cron    *cron.Cron
	billing *BillingService
	quotes  *QuoteService
	cache   *CacheService
	log     *logrus.Logger
}

// NewSchedulerService создает новый экземпляр SchedulerService
func NewSchedulerService(billing *BillingService, quotes *QuoteService, cache *CacheService, log *logrus.Logger) *SchedulerService {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &SchedulerService{
		cron:    c,
		billing: billing,
		quotes:  quotes,
		cache:   cache,
		log:     log,
	}
}

// Start регистрирует задачи и запускает планировщик
func (ss *SchedulerService) Start() error {
	if _, err := ss.cron.AddFunc(OverdueInvoicesSchedule, ss.MarkOverdueInvoices); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	if _, err := ss.cron.AddFunc(ExpireQuotesSchedule, ss.ExpireQuotes); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	ss.cron.Start()
	ss.log.Info("⏰ Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и дожидается завершения текущих задач
func (ss *SchedulerService) Stop() {
	<-ss.cron.Stop().Done()
	ss.log.Info("Планировщик задач остановлен")
}

// MarkOverdueInvoices переводит просроченные счета в overdue
func (ss *SchedulerService) MarkOverdueInvoices() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	count, err := ss.billing.MarkOverdue(ctx)
	if err != nil {
		ss.log.WithError(err).Error("❌ Ошибка пометки просроченных счетов")
		return
	}
	if count > 0 {
		ss.cache.InvalidateDashboards(ctx)
	}
	ss.log.WithField("count", count).Info("Просроченные счета обработаны")
}

// ExpireQuotes переводит отправленные предложения с истекшим сроком в expired
func (ss *SchedulerService) ExpireQuotes() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	count, err := ss.quotes.ExpireStale(ctx)
	if err != nil {
		ss.log.WithError(err).Error("❌ Ошибка обработки истекших предложений")
		return
	}
	if count > 0 {
		ss.cache.InvalidateDashboards(ctx)
	}
	ss.log.WithField("count", count).Info("Истекшие предложения обработаны")
}

// Jobs возвращает сведения о зарегистрированных задачах
func (ss *SchedulerService) Jobs() []map[string]interface{} {
	entries := ss.cron.Entries()
	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       int(e.ID),
			"next_run": e.Next,
			"prev_run": e.Prev,
		})
	}
	return jobs
}
