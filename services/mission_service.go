package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend_fieldservice/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MissionInput данные для создания миссии
type MissionInput struct {
	Title         string
	Description   string
	ServiceTypeID uint
	ClientID      uint
	TechnicianID  uint
	QuoteID       uint
	ScheduledDate *time.Time
	Address       string
	Priority      string
	Status        models.MissionStatus
	Notes         string
}

// MissionUpdateInput изменяемые поля миссии
type MissionUpdateInput struct {
	Title         *string
	Description   *string
	TechnicianID  *uint
	ScheduledDate *time.Time
	Address       *string
	Priority      *string
	Notes         *string
	Status        *models.MissionStatus
}

// MissionService управляет выездами техников
type MissionService struct {
	db      *gorm.DB
	billing *BillingService
	effects *SideEffects
	log     *logrus.Logger
	now     func() time.Time
}

// NewMissionService создает новый экземпляр MissionService
func NewMissionService(db *gorm.DB, billing *BillingService, effects *SideEffects, log *logrus.Logger) *MissionService {
	return &MissionService{db: db, billing: billing, effects: effects, log: log, now: time.Now}
}

func (in MissionInput) validate() error {
	verr := &ValidationError{}
	if in.ServiceTypeID == 0 {
		verr.Add("service_type_id", "is required")
	}
	if in.ClientID == 0 {
		verr.Add("client_id", "is required")
	}
	if in.TechnicianID == 0 {
		verr.Add("technician_id", "is required")
	}
	if in.QuoteID == 0 {
		verr.Add("quote_id", "is required")
	}
	if in.ScheduledDate == nil || in.ScheduledDate.IsZero() {
		verr.Add("scheduled_date", "is required")
	}
	if strings.TrimSpace(in.Address) == "" {
		verr.Add("address", "is required")
	}
	if in.Priority != "" && !models.ValidPriority(in.Priority) {
		verr.Add("priority", "must be one of low, medium, high, urgent")
	}
	if in.Status != "" && !in.Status.Valid() {
		verr.Add("status", "unknown mission status")
	}
	return verr.OrNil()
}

// Create создает миссию (только администратор).
// Миссия, перевод предложения в mission_assigned и, для завершенной миссии,
// счет с обратной ссылкой фиксируются одной транзакцией.
func (s *MissionService) Create(ctx context.Context, actor *models.User, in MissionInput) (*models.Mission, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.MissionPending
	}
	if err := models.MissionPending.CanTransitionTo(status); err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	now := s.now()
	mission := &models.Mission{
		Title:         in.Title,
		Description:   in.Description,
		ServiceTypeID: in.ServiceTypeID,
		ClientID:      in.ClientID,
		TechnicianID:  in.TechnicianID,
		QuoteID:       in.QuoteID,
		Status:        status,
		Priority:      priority,
		ScheduledDate: *in.ScheduledDate,
		Address:       strings.TrimSpace(in.Address),
		Notes:         in.Notes,
	}
	if status == models.MissionCompleted {
		mission.CompletedAt = &now
	}

	var quote models.Quote
	var invoice *models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var serviceType models.ServiceType
		if err := tx.First(&serviceType, in.ServiceTypeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewValidationError("service_type_id", "service type not found")
			}
			return err
		}
		if _, err := loadUserWithRole(tx, in.ClientID, models.RoleClient, "client_id"); err != nil {
			return err
		}
		if _, err := loadUserWithRole(tx, in.TechnicianID, models.RoleTechnician, "technician_id"); err != nil {
			return err
		}
		if err := tx.First(&quote, in.QuoteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewValidationError("quote_id", "quote not found")
			}
			return err
		}
		if quote.ClientID != in.ClientID {
			return NewValidationError("quote_id", "quote belongs to another client")
		}
		if quote.Status != models.QuoteAccepted {
			return fmt.Errorf("%w: quote %s is %s, an accepted quote is required", ErrInvalidTransition, quote.Reference, quote.Status)
		}

		if err := createWithReference(tx, mission, func(attempt int) {
			mission.ID = 0
			mission.MissionNumber = models.MissionNumber(now.Add(time.Duration(attempt) * time.Millisecond))
		}); err != nil {
			return err
		}

		quote.Status = models.QuoteMissionAssigned
		if err := tx.Save(&quote).Error; err != nil {
			return fmt.Errorf("не удалось обновить предложение: %w", err)
		}

		if mission.Status == models.MissionCompleted {
			inv, err := s.billing.GenerateForMissionTx(tx, mission)
			if err != nil {
				return err
			}
			invoice = inv
			mission.InvoiceID = &inv.ID
			if err := tx.Model(mission).Update("invoice_id", inv.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"mission_id":     mission.ID,
		"mission_number": mission.MissionNumber,
		"quote_id":       quote.ID,
		"status":         mission.Status,
	}).Info("✅ Миссия создана")

	entity := models.RelatedEntity{ID: mission.ID, Type: models.EntityMission}
	drafts := []NotificationDraft{
		{
			RecipientID: mission.TechnicianID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationMissionAssigned,
			Message:     fmt.Sprintf("Mission %s has been assigned to you for %s", mission.MissionNumber, mission.ScheduledDate.Format("02/01/2006 15:04")),
			Entity:      entity,
		},
		{
			RecipientID: mission.ClientID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationMissionAssigned,
			Message:     fmt.Sprintf("Mission %s has been scheduled for quote %s", mission.MissionNumber, quote.Reference),
			Entity:      entity,
		},
	}
	s.effects.Notify(ctx, drafts)
	s.afterInvoice(ctx, actor, invoice)

	return s.load(ctx, mission.ID)
}

// afterInvoice уведомляет клиента о сгенерированном счете
func (s *MissionService) afterInvoice(ctx context.Context, actor *models.User, invoice *models.Invoice) {
	if invoice == nil {
		return
	}
	msg := fmt.Sprintf("Invoice %s for %s %s has been issued", invoice.InvoiceNumber, invoice.TotalAmount.StringFixed(2), invoice.Currency)
	s.effects.Notify(ctx, []NotificationDraft{{
		RecipientID: invoice.ClientID,
		SenderID:    uintPtr(actor.ID),
		Type:        models.NotificationInvoiceGenerated,
		Message:     msg,
		Entity:      models.RelatedEntity{ID: invoice.ID, Type: models.EntityInvoice},
	}})
	s.effects.Alert("Invoice generated", msg)
}

func (s *MissionService) load(ctx context.Context, id uint) (*models.Mission, error) {
	var mission models.Mission
	err := s.db.WithContext(ctx).
		Preload("ServiceType").Preload("Client").Preload("Technician").Preload("Quote").
		First(&mission, id).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &mission, nil
}

func canViewMission(actor *models.User, m *models.Mission) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTechnician:
		return m.TechnicianID == actor.ID
	case models.RoleClient:
		return m.ClientID == actor.ID
	}
	return false
}

// Get возвращает миссию с проверкой доступа
func (s *MissionService) Get(ctx context.Context, actor *models.User, id uint) (*models.Mission, error) {
	mission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewMission(actor, mission) {
		return nil, ErrForbidden
	}
	return mission, nil
}

// List возвращает миссии с учетом роли, статуса и поиска
func (s *MissionService) List(ctx context.Context, actor *models.User, f ListFilter) ([]models.Mission, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Mission{})

	switch actor.Role {
	case models.RoleClient:
		query = query.Where("missions.client_id = ?", actor.ID)
	case models.RoleTechnician:
		query = query.Where("missions.technician_id = ?", actor.ID)
	}
	if f.Status != "" {
		query = query.Where("missions.status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.
			Joins("LEFT JOIN users AS mc ON mc.id = missions.client_id").
			Joins("LEFT JOIN users AS mt ON mt.id = missions.technician_id").
			Where(`LOWER(missions.mission_number) LIKE ? OR LOWER(missions.address) LIKE ?
				OR LOWER(mc.first_name || ' ' || mc.last_name) LIKE ?
				OR LOWER(mt.first_name || ' ' || mt.last_name) LIKE ?`, like, like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var missions []models.Mission
	err := query.Preload("ServiceType").Preload("Client").Preload("Technician").
		Order("missions.scheduled_date DESC, missions.id DESC").
		Scopes(f.paginate).Find(&missions).Error
	return missions, total, err
}

// Update изменяет миссию (администратор или назначенный техник).
// Переход в completed создает счет в той же транзакции, если его еще нет.
func (s *MissionService) Update(ctx context.Context, actor *models.User, id uint, in MissionUpdateInput) (*models.Mission, error) {
	mission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case actor.IsAdmin():
	case actor.IsTechnician() && mission.IsAssignedTo(actor.ID):
		if in.TechnicianID != nil && *in.TechnicianID != mission.TechnicianID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	oldStatus := mission.Status
	oldTechnician := mission.TechnicianID
	if in.Status != nil {
		if err := oldStatus.CanTransitionTo(*in.Status); err != nil {
			return nil, err
		}
	}
	if in.Priority != nil && !models.ValidPriority(*in.Priority) {
		return nil, NewValidationError("priority", "must be one of low, medium, high, urgent")
	}

	var invoice *models.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.TechnicianID != nil && *in.TechnicianID != mission.TechnicianID {
			if _, err := loadUserWithRole(tx, *in.TechnicianID, models.RoleTechnician, "technician_id"); err != nil {
				return err
			}
			mission.TechnicianID = *in.TechnicianID
		}
		if in.Title != nil {
			mission.Title = *in.Title
		}
		if in.Description != nil {
			mission.Description = *in.Description
		}
		if in.ScheduledDate != nil {
			mission.ScheduledDate = *in.ScheduledDate
		}
		if in.Address != nil {
			if strings.TrimSpace(*in.Address) == "" {
				return NewValidationError("address", "is required")
			}
			mission.Address = strings.TrimSpace(*in.Address)
		}
		if in.Priority != nil {
			mission.Priority = *in.Priority
		}
		if in.Notes != nil {
			mission.Notes = *in.Notes
		}

		if in.Status != nil && *in.Status != oldStatus {
			now := s.now()
			mission.Status = *in.Status
			switch mission.Status {
			case models.MissionInProgress:
				mission.StartedAt = &now
			case models.MissionCompleted:
				mission.CompletedAt = &now
				if mission.InvoiceID == nil {
					inv, err := s.billing.GenerateForMissionTx(tx, mission)
					if err != nil {
						return err
					}
					invoice = inv
					mission.InvoiceID = &inv.ID
				}
			}
		}

		return tx.Omit("ServiceType", "Client", "Technician", "Quote").Save(mission).Error
	})
	if err != nil {
		return nil, err
	}

	entity := models.RelatedEntity{ID: mission.ID, Type: models.EntityMission}
	var drafts []NotificationDraft
	if mission.Status != oldStatus {
		msg := fmt.Sprintf("Mission %s status changed from %s to %s", mission.MissionNumber, oldStatus, mission.Status)
		for _, recipient := range []uint{mission.TechnicianID, mission.ClientID} {
			drafts = append(drafts, NotificationDraft{
				RecipientID: recipient,
				SenderID:    uintPtr(actor.ID),
				Type:        models.NotificationMissionStatusChanged,
				Message:     msg,
				Entity:      entity,
			})
		}
	}
	if mission.TechnicianID != oldTechnician {
		drafts = append([]NotificationDraft{{
			RecipientID: mission.TechnicianID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationMissionAssigned,
			Message:     fmt.Sprintf("Mission %s has been assigned to you", mission.MissionNumber),
			Entity:      entity,
		}}, drafts...)
	}
	s.effects.Notify(ctx, drafts)
	s.afterInvoice(ctx, actor, invoice)

	return s.load(ctx, mission.ID)
}

// Delete удаляет миссию (только администратор).
// При наличии отчетов или счета требуется force; отчеты удаляются, счет сохраняется.
func (s *MissionService) Delete(ctx context.Context, actor *models.User, id uint, force bool) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	var mission models.Mission
	if err := s.db.WithContext(ctx).First(&mission, id).Error; err != nil {
		return notFoundOr(err)
	}

	var reports int64
	if err := s.db.WithContext(ctx).Model(&models.Report{}).Where("mission_id = ?", id).Count(&reports).Error; err != nil {
		return err
	}
	if (reports > 0 || mission.InvoiceID != nil) && !force {
		return fmt.Errorf("%w: mission has %d report(s) and invoice=%t; use force=true", ErrConflict, reports, mission.InvoiceID != nil)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("mission_id = ?", id).Delete(&models.Report{}).Error; err != nil {
			return err
		}
		return tx.Delete(&mission).Error
	})
}
