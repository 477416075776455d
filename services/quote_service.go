package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend_fieldservice/config"
	"backend_fieldservice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// referenceAttempts число попыток выдать уникальный номер документа
const referenceAttempts = 5

// QuoteItemInput позиция предложения во входных данных
type QuoteItemInput struct {
	Description   string          `json:"description"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	ItemType      string          `json:"item_type"`
	EquipmentID   *uint           `json:"equipment_id"`
	ServiceTypeID *uint           `json:"service_type_id"`
}

// QuoteInput данные для создания предложения
type QuoteInput struct {
	Title        string
	ClientID     uint
	TechnicianID *uint
	RequestID    *uint
	Items        []QuoteItemInput
	TaxRate      *decimal.Decimal
	ValidUntil   *time.Time
	Notes        string
	Terms        string
}

// QuoteUpdateInput изменяемые поля предложения (nil означает «без изменений»)
type QuoteUpdateInput struct {
	Title        *string
	TechnicianID *uint
	Items        []QuoteItemInput
	TaxRate      *decimal.Decimal
	ValidUntil   *time.Time
	Notes        *string
	Terms        *string
	Status       *models.QuoteStatus
}

// ListFilter общие параметры выборки списков
type ListFilter struct {
	Status string
	Search string
	Page   int
	Limit  int
}

// paginate применяет страницу и размер выборки; Limit <= 0 отключает пагинацию
func (f ListFilter) paginate(db *gorm.DB) *gorm.DB {
	if f.Limit <= 0 {
		return db
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	return db.Offset((page - 1) * f.Limit).Limit(f.Limit)
}

// QuoteService управляет коммерческими предложениями
type QuoteService struct {
	db      *gorm.DB
	cfg     config.BusinessConfig
	effects *SideEffects
	log     *logrus.Logger
	now     func() time.Time
}

// NewQuoteService создает новый экземпляр QuoteService
func NewQuoteService(db *gorm.DB, cfg config.BusinessConfig, effects *SideEffects, log *logrus.Logger) *QuoteService {
	return &QuoteService{db: db, cfg: cfg, effects: effects, log: log, now: time.Now}
}

// validateQuoteItems проверяет позиции предложения
func validateQuoteItems(items []QuoteItemInput) error {
	verr := &ValidationError{}
	if len(items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.Description) == "" {
			verr.Add(field+".description", "is required")
		}
		if item.Quantity < 1 {
			verr.Add(field+".quantity", "must be at least 1")
		}
		if item.UnitPrice.IsNegative() {
			verr.Add(field+".unit_price", "must not be negative")
		}
		if item.ItemType != models.ItemTypeService && item.ItemType != models.ItemTypeEquipment {
			verr.Add(field+".item_type", "must be service or equipment")
		}
	}
	return verr.OrNil()
}

func buildQuoteItems(in []QuoteItemInput) []models.QuoteItem {
	items := make([]models.QuoteItem, len(in))
	for i, it := range in {
		items[i] = models.QuoteItem{
			Description:   strings.TrimSpace(it.Description),
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			ItemType:      it.ItemType,
			EquipmentID:   it.EquipmentID,
			ServiceTypeID: it.ServiceTypeID,
			Position:      i,
		}
	}
	return items
}

// loadUserWithRole загружает пользователя и проверяет его роль
func loadUserWithRole(tx *gorm.DB, id uint, role, field string) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(field, "user not found")
		}
		return nil, err
	}
	if user.Role != role {
		return nil, NewValidationError(field, "user must have role "+role)
	}
	return &user, nil
}

// nextYearSequence считает документы текущего года и возвращает следующий номер
func nextYearSequence(tx *gorm.DB, model interface{}, now time.Time) (int, error) {
	var count int64
	if err := tx.Unscoped().Model(model).Where("created_at >= ?", models.YearStart(now)).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count) + 1, nil
}

// Create создает предложение (администратор или техник)
func (s *QuoteService) Create(ctx context.Context, actor *models.User, in QuoteInput) (*models.Quote, error) {
	if !actor.IsAdmin() && !actor.IsTechnician() {
		return nil, ErrForbidden
	}
	verr := &ValidationError{}
	if in.ClientID == 0 {
		verr.Add("client_id", "is required")
	}
	if in.TaxRate != nil && in.TaxRate.IsNegative() {
		verr.Add("tax_rate", "must not be negative")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if err := validateQuoteItems(in.Items); err != nil {
		return nil, err
	}

	now := s.now()
	taxRate := s.cfg.DefaultTaxRate
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}
	validUntil := in.ValidUntil
	if validUntil == nil {
		v := now.AddDate(0, 0, s.cfg.QuoteValidityDays)
		validUntil = &v
	}

	quote := &models.Quote{
		Title:       in.Title,
		ClientID:    in.ClientID,
		CreatedByID: actor.ID,
		RequestID:   in.RequestID,
		Items:       buildQuoteItems(in.Items),
		Status:      models.QuoteDraft,
		TaxRate:     taxRate,
		ValidUntil:  validUntil,
		Notes:       in.Notes,
		Terms:       in.Terms,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadUserWithRole(tx, in.ClientID, models.RoleClient, "client_id"); err != nil {
			return err
		}

		switch {
		case in.TechnicianID != nil:
			if _, err := loadUserWithRole(tx, *in.TechnicianID, models.RoleTechnician, "technician_id"); err != nil {
				return err
			}
			quote.TechnicianID = in.TechnicianID
		case actor.IsTechnician():
			quote.TechnicianID = uintPtr(actor.ID)
		}

		if in.RequestID != nil {
			var req models.Request
			if err := tx.First(&req, *in.RequestID).Error; err != nil {
				return NewValidationError("request_id", "request not found")
			}
			if req.ClientID != in.ClientID {
				return NewValidationError("request_id", "request belongs to another client")
			}
			if req.Status.CanTransitionTo(models.RequestQuoted) == nil {
				if err := tx.Model(&req).Update("status", models.RequestQuoted).Error; err != nil {
					return err
				}
			}
		}

		seq, err := nextYearSequence(tx, &models.Quote{}, now)
		if err != nil {
			return err
		}
		return createWithReference(tx, quote, func(attempt int) {
			quote.ID = 0
			quote.Reference = models.QuoteReference(now.Year(), seq+attempt)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"quote_id": quote.ID, "reference": quote.Reference, "total": quote.Total.String()}).
		Info("✅ Предложение создано")

	if quote.TechnicianID != nil {
		s.effects.Notify(ctx, []NotificationDraft{{
			RecipientID: *quote.TechnicianID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationQuoteCreated,
			Message:     fmt.Sprintf("Quote %s has been created", quote.Reference),
			Entity:      models.RelatedEntity{ID: quote.ID, Type: models.EntityQuote},
		}})
	}
	return s.load(ctx, quote.ID)
}

func (s *QuoteService) load(ctx context.Context, id uint) (*models.Quote, error) {
	var quote models.Quote
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Client").Preload("Client.Company").Preload("Technician").
		First(&quote, id).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &quote, nil
}

// canView проверяет право чтения предложения по идентификаторам
func canViewQuote(actor *models.User, q *models.Quote) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTechnician:
		return q.CreatedByID == actor.ID || (q.TechnicianID != nil && *q.TechnicianID == actor.ID)
	case models.RoleClient:
		return q.ClientID == actor.ID && q.Status != models.QuoteDraft
	}
	return false
}

func canEditQuote(actor *models.User, q *models.Quote) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsTechnician() && (q.CreatedByID == actor.ID || (q.TechnicianID != nil && *q.TechnicianID == actor.ID))
}

// Get возвращает предложение с проверкой доступа
func (s *QuoteService) Get(ctx context.Context, actor *models.User, id uint) (*models.Quote, error) {
	quote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewQuote(actor, quote) {
		return nil, ErrForbidden
	}
	return quote, nil
}

// List возвращает предложения в пределах роли пользователя
func (s *QuoteService) List(ctx context.Context, actor *models.User, f ListFilter) ([]models.Quote, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Quote{})

	switch actor.Role {
	case models.RoleClient:
		query = query.Where("client_id = ? AND status <> ?", actor.ID, models.QuoteDraft)
	case models.RoleTechnician:
		query = query.Where("technician_id = ? OR created_by_id = ?", actor.ID, actor.ID)
	}

	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(reference) LIKE ? OR LOWER(title) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var quotes []models.Quote
	err := query.Preload("Client").Preload("Technician").Preload("Items").
		Order("created_at DESC, id DESC").
		Scopes(f.paginate).
		Find(&quotes).Error
	return quotes, total, err
}

// manualQuoteStatus сообщает, может ли сотрудник выставить статус напрямую.
// accepted и rejected ставит только Respond, mission_assigned ставит MissionService.Create.
func manualQuoteStatus(s models.QuoteStatus) bool {
	switch s {
	case models.QuoteAccepted, models.QuoteRejected, models.QuoteMissionAssigned:
		return false
	}
	return true
}

// Update изменяет предложение; итоги пересчитываются, смена статуса проверяется
func (s *QuoteService) Update(ctx context.Context, actor *models.User, id uint, in QuoteUpdateInput) (*models.Quote, error) {
	quote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEditQuote(actor, quote) {
		return nil, ErrForbidden
	}

	oldStatus := quote.Status
	if in.Status != nil {
		if err := oldStatus.CanTransitionTo(*in.Status); err != nil {
			return nil, err
		}
		if *in.Status != oldStatus && !manualQuoteStatus(*in.Status) {
			return nil, fmt.Errorf("%w: quote status %s is set by the client response or mission creation", ErrInvalidTransition, *in.Status)
		}
	}
	if in.Items != nil {
		if oldStatus == models.QuoteAccepted || oldStatus == models.QuoteMissionAssigned {
			return nil, fmt.Errorf("%w: items of a %s quote cannot be modified", ErrConflict, oldStatus)
		}
		if err := validateQuoteItems(in.Items); err != nil {
			return nil, err
		}
	}
	if in.TaxRate != nil && in.TaxRate.IsNegative() {
		return nil, NewValidationError("tax_rate", "must not be negative")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.TechnicianID != nil {
			if _, err := loadUserWithRole(tx, *in.TechnicianID, models.RoleTechnician, "technician_id"); err != nil {
				return err
			}
			quote.TechnicianID = in.TechnicianID
			quote.Technician = nil
		}
		if in.Title != nil {
			quote.Title = *in.Title
		}
		if in.TaxRate != nil {
			quote.TaxRate = *in.TaxRate
		}
		if in.ValidUntil != nil {
			quote.ValidUntil = in.ValidUntil
		}
		if in.Notes != nil {
			quote.Notes = *in.Notes
		}
		if in.Terms != nil {
			quote.Terms = *in.Terms
		}
		if in.Items != nil {
			if err := tx.Where("quote_id = ?", quote.ID).Delete(&models.QuoteItem{}).Error; err != nil {
				return err
			}
			quote.Items = buildQuoteItems(in.Items)
		}
		if in.Status != nil && *in.Status != oldStatus {
			quote.Status = *in.Status
			if quote.Status == models.QuoteSent {
				now := s.now()
				quote.SentAt = &now
			}
		}
		return tx.Omit("Client", "Technician").Save(quote).Error
	})
	if err != nil {
		return nil, err
	}

	if quote.Status != oldStatus {
		s.notifyStatusChange(ctx, actor, quote, oldStatus)
	}
	return s.load(ctx, quote.ID)
}

func (s *QuoteService) notifyStatusChange(ctx context.Context, actor *models.User, quote *models.Quote, oldStatus models.QuoteStatus) {
	msg := fmt.Sprintf("Quote %s status changed from %s to %s", quote.Reference, oldStatus, quote.Status)
	entity := models.RelatedEntity{ID: quote.ID, Type: models.EntityQuote}
	drafts := []NotificationDraft{{
		RecipientID: quote.ClientID,
		SenderID:    uintPtr(actor.ID),
		Type:        models.NotificationQuoteStatusChanged,
		Message:     msg,
		Entity:      entity,
	}}
	if quote.TechnicianID != nil {
		drafts = append(drafts, NotificationDraft{
			RecipientID: *quote.TechnicianID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationQuoteStatusChanged,
			Message:     msg,
			Entity:      entity,
		})
	}
	s.effects.Notify(ctx, drafts)
}

// Send переводит черновик в статус sent и уведомляет клиента
func (s *QuoteService) Send(ctx context.Context, actor *models.User, id uint) (*models.Quote, error) {
	status := models.QuoteSent
	quote, err := s.Update(ctx, actor, id, QuoteUpdateInput{Status: &status})
	if err != nil {
		return nil, err
	}
	s.effects.Email(ctx, quote.Client,
		fmt.Sprintf("Quote %s", quote.Reference),
		fmt.Sprintf("A new quote %s for %s %s is awaiting your response.", quote.Reference, quote.Total.StringFixed(2), s.cfg.Currency))
	return quote, nil
}

// Respond фиксирует ответ клиента: принять или отклонить предложение
func (s *QuoteService) Respond(ctx context.Context, actor *models.User, id uint, accept bool, comments string) (*models.Quote, error) {
	if !actor.IsClient() {
		return nil, ErrForbidden
	}
	quote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if quote.ClientID != actor.ID {
		return nil, ErrForbidden
	}

	target := models.QuoteRejected
	if accept {
		target = models.QuoteAccepted
	}
	if quote.Status != models.QuoteSent {
		return nil, fmt.Errorf("%w: quote %s -> %s", ErrInvalidTransition, quote.Status, target)
	}
	now := s.now()
	if quote.IsExpired(now) {
		return nil, fmt.Errorf("%w: quote has expired", ErrConflict)
	}

	quote.Status = target
	quote.RespondedAt = &now
	quote.ClientComments = comments
	if err := s.db.WithContext(ctx).Omit("Client", "Technician").Save(quote).Error; err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"quote_id": quote.ID, "status": quote.Status, "client_id": actor.ID}).
		Info("Клиент ответил на предложение")

	msg := fmt.Sprintf("Client %s has %s quote %s", actor.FullName(), target, quote.Reference)
	entity := models.RelatedEntity{ID: quote.ID, Type: models.EntityQuote}
	drafts := s.effects.AdminDrafts(ctx, uintPtr(actor.ID), models.NotificationQuoteResponded, msg, entity)
	if quote.TechnicianID != nil {
		drafts = append(drafts, NotificationDraft{
			RecipientID: *quote.TechnicianID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationQuoteResponded,
			Message:     msg,
			Entity:      entity,
		})
		s.effects.Email(ctx, quote.Technician, "Quote "+string(target), msg)
	}
	s.effects.Notify(ctx, drafts)
	s.effects.Alert("Quote "+string(target), msg)

	return quote, nil
}

// Delete удаляет предложение, если на него не ссылаются миссии или платежи
func (s *QuoteService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	var quote models.Quote
	if err := s.db.WithContext(ctx).First(&quote, id).Error; err != nil {
		return notFoundOr(err)
	}
	var missions, payments int64
	s.db.WithContext(ctx).Model(&models.Mission{}).Where("quote_id = ?", id).Count(&missions)
	s.db.WithContext(ctx).Model(&models.Payment{}).Where("quote_id = ?", id).Count(&payments)
	if missions > 0 || payments > 0 {
		return fmt.Errorf("%w: quote is referenced by missions or payments", ErrConflict)
	}
	return s.db.WithContext(ctx).Select("Items").Delete(&quote).Error
}

// ExpireStale переводит просроченные отправленные предложения в expired
func (s *QuoteService) ExpireStale(ctx context.Context) (int, error) {
	now := s.now()
	var quotes []models.Quote
	if err := s.db.WithContext(ctx).
		Where("status = ? AND valid_until IS NOT NULL AND valid_until < ?", models.QuoteSent, now).
		Find(&quotes).Error; err != nil {
		return 0, err
	}

	expired := 0
	for i := range quotes {
		q := &quotes[i]
		if err := q.Status.CanTransitionTo(models.QuoteExpired); err != nil {
			continue
		}
		q.Status = models.QuoteExpired
		if err := s.db.WithContext(ctx).Save(q).Error; err != nil {
			s.log.WithError(err).WithField("quote_id", q.ID).Warn("⚠️ Не удалось пометить предложение истекшим")
			continue
		}
		expired++
	}
	return expired, nil
}
