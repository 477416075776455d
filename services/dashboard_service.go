package services

import (
	"context"
	"sort"
	"time"

	"backend_fieldservice/database"
	"backend_fieldservice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DashboardStats статистика панели управления с учетом роли
type DashboardStats struct {
	Role string `json:"role"`

	MissionsByStatus map[string]int64 `json:"missions_by_status"`
	TotalMissions    int64            `json:"total_missions"`
	PendingRequests  int64            `json:"pending_requests"`
	QuotesAwaiting   int64            `json:"quotes_awaiting"`
	AcceptedQuotes   int64            `json:"accepted_quotes"`
	Reports          int64            `json:"reports"`
	UnpaidInvoices   int64            `json:"unpaid_invoices"`
	OverdueInvoices  int64            `json:"overdue_invoices"`
	Revenue          decimal.Decimal  `json:"revenue"`
	Outstanding      decimal.Decimal  `json:"outstanding"`
	UnreadMessages   int64            `json:"unread_messages"`

	// Только для администратора
	UsersByRole map[string]int64 `json:"users_by_role,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
}

// DashboardService считает статистику и кэширует ее в Redis
type DashboardService struct {
	db    *gorm.DB
	cache *CacheService
	log   *logrus.Logger
	now   func() time.Time
}

// NewDashboardService создает новый экземпляр DashboardService
func NewDashboardService(db *gorm.DB, cache *CacheService, log *logrus.Logger) *DashboardService {
	return &DashboardService{db: db, cache: cache, log: log, now: time.Now}
}

type statusCount struct {
	Status string
	Count  int64
}

// Stats возвращает статистику для пользователя; результат кэшируется на 5 минут
func (s *DashboardService) Stats(ctx context.Context, actor *models.User) (*DashboardStats, error) {
	key := database.DashboardCacheKey(actor.Role, actor.ID)

	var cached DashboardStats
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	stats, err := s.compute(ctx, actor)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, key, stats, DashboardCacheTTL)
	return stats, nil
}

func (s *DashboardService) compute(ctx context.Context, actor *models.User) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &DashboardStats{
		Role:             actor.Role,
		MissionsByStatus: map[string]int64{},
		Revenue:          decimal.Zero,
		Outstanding:      decimal.Zero,
		LastUpdated:      s.now(),
	}

	missions := db.Model(&models.Mission{})
	requests := db.Model(&models.Request{}).Where("status = ?", models.RequestPending)
	quotes := db.Model(&models.Quote{})
	reports := db.Model(&models.Report{})
	invoices := func() *gorm.DB { return db.Model(&models.Invoice{}) }

	switch actor.Role {
	case models.RoleTechnician:
		missions = missions.Where("technician_id = ?", actor.ID)
		requests = db.Model(&models.Request{}).Where("assigned_technician_id = ? AND status = ?", actor.ID, models.RequestAssigned)
		quotes = quotes.Where("technician_id = ? OR created_by_id = ?", actor.ID, actor.ID)
		reports = reports.Where("technician_id = ?", actor.ID)
		invoices = nil
	case models.RoleClient:
		missions = missions.Where("client_id = ?", actor.ID)
		requests = requests.Where("client_id = ?", actor.ID)
		quotes = quotes.Where("client_id = ?", actor.ID)
		reports = reports.Joins("JOIN missions ON missions.id = reports.mission_id").Where("missions.client_id = ?", actor.ID)
		invoices = func() *gorm.DB { return db.Model(&models.Invoice{}).Where("client_id = ?", actor.ID) }
	}

	var byStatus []statusCount
	if err := missions.Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		stats.MissionsByStatus[row.Status] = row.Count
		stats.TotalMissions += row.Count
	}

	if err := requests.Count(&stats.PendingRequests).Error; err != nil {
		return nil, err
	}
	if err := quotes.Session(&gorm.Session{}).Where("status = ?", models.QuoteSent).Count(&stats.QuotesAwaiting).Error; err != nil {
		return nil, err
	}
	if err := quotes.Session(&gorm.Session{}).Where("status = ?", models.QuoteAccepted).Count(&stats.AcceptedQuotes).Error; err != nil {
		return nil, err
	}
	if err := reports.Count(&stats.Reports).Error; err != nil {
		return nil, err
	}

	if invoices != nil {
		open := []models.InvoiceStatus{models.InvoicePending, models.InvoiceOverdue}
		if err := invoices().Where("status IN ?", open).Count(&stats.UnpaidInvoices).Error; err != nil {
			return nil, err
		}
		if err := invoices().Where("status = ?", models.InvoiceOverdue).Count(&stats.OverdueInvoices).Error; err != nil {
			return nil, err
		}
		if err := invoices().Select("COALESCE(SUM(paid_amount), 0)").Where("status <> ?", models.InvoiceCancelled).Scan(&stats.Revenue).Error; err != nil {
			return nil, err
		}
		if err := invoices().Select("COALESCE(SUM(total_amount - paid_amount), 0)").Where("status IN ?", open).Scan(&stats.Outstanding).Error; err != nil {
			return nil, err
		}
	}

	if err := db.Model(&models.ConversationParticipant{}).Where("user_id = ?", actor.ID).
		Select("COALESCE(SUM(unread_count), 0)").Scan(&stats.UnreadMessages).Error; err != nil {
		return nil, err
	}

	if actor.IsAdmin() {
		var roles []struct {
			Role  string
			Count int64
		}
		if err := db.Model(&models.User{}).Select("role, COUNT(*) AS count").Group("role").Scan(&roles).Error; err != nil {
			return nil, err
		}
		stats.UsersByRole = map[string]int64{}
		for _, r := range roles {
			stats.UsersByRole[r.Role] = r.Count
		}
	}
	return stats, nil
}

// ActivityItem элемент ленты последних событий
type ActivityItem struct {
	ID        uint      `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// RecentActivity возвращает последние изменения миссий и предложений, видимые пользователю
func (s *DashboardService) RecentActivity(ctx context.Context, actor *models.User, limit int) ([]ActivityItem, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	db := s.db.WithContext(ctx)

	missions := db.Model(&models.Mission{})
	quotes := db.Model(&models.Quote{})
	switch actor.Role {
	case models.RoleTechnician:
		missions = missions.Where("technician_id = ?", actor.ID)
		quotes = quotes.Where("technician_id = ? OR created_by_id = ?", actor.ID, actor.ID)
	case models.RoleClient:
		missions = missions.Where("client_id = ?", actor.ID)
		quotes = quotes.Where("client_id = ? AND status <> ?", actor.ID, models.QuoteDraft)
	}

	var ms []models.Mission
	if err := missions.Order("updated_at DESC").Limit(limit).Find(&ms).Error; err != nil {
		return nil, err
	}
	var qs []models.Quote
	if err := quotes.Order("updated_at DESC").Limit(limit).Find(&qs).Error; err != nil {
		return nil, err
	}

	items := make([]ActivityItem, 0, len(ms)+len(qs))
	for _, m := range ms {
		items = append(items, ActivityItem{ID: m.ID, Type: models.EntityMission, Title: m.MissionNumber + " " + m.Title, Status: string(m.Status), Timestamp: m.UpdatedAt})
	}
	for _, q := range qs {
		items = append(items, ActivityItem{ID: q.ID, Type: models.EntityQuote, Title: q.Reference + " " + q.Title, Status: string(q.Status), Timestamp: q.UpdatedAt})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
