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

// RequestInput данные новой заявки
type RequestInput struct {
	Title         string
	Description   string
	Address       string
	Priority      string
	ServiceTypeID *uint
	PreferredDate *time.Time
	ClientID      uint // используется только администратором
}

// RequestUpdateInput изменяемые поля заявки
type RequestUpdateInput struct {
	Title         *string
	Description   *string
	Address       *string
	Priority      *string
	ServiceTypeID *uint
	PreferredDate *time.Time
	Status        *models.RequestStatus
}

// RequestService управляет заявками клиентов
type RequestService struct {
	db      *gorm.DB
	effects *SideEffects
	log     *logrus.Logger
	now     func() time.Time
}

// NewRequestService создает новый экземпляр RequestService
func NewRequestService(db *gorm.DB, effects *SideEffects, log *logrus.Logger) *RequestService {
	return &RequestService{db: db, effects: effects, log: log, now: time.Now}
}

// Create регистрирует заявку. Клиент создает заявку от своего имени,
// администратор может указать клиента явно.
func (s *RequestService) Create(ctx context.Context, actor *models.User, in RequestInput, attachments []models.Attachment) (*models.Request, error) {
	clientID := actor.ID
	switch {
	case actor.IsClient():
	case actor.IsAdmin() && in.ClientID != 0:
		clientID = in.ClientID
	default:
		return nil, ErrForbidden
	}

	verr := &ValidationError{}
	if strings.TrimSpace(in.Description) == "" {
		verr.Add("description", "is required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	} else if !models.ValidPriority(in.Priority) {
		verr.Add("priority", "must be one of low, medium, high, urgent")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	now := s.now()
	request := &models.Request{
		Title:         in.Title,
		Description:   in.Description,
		Address:       in.Address,
		Priority:      in.Priority,
		ClientID:      clientID,
		ServiceTypeID: in.ServiceTypeID,
		Status:        models.RequestPending,
		PreferredDate: in.PreferredDate,
		Attachments:   attachments,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if clientID != actor.ID {
			if _, err := loadUserWithRole(tx, clientID, models.RoleClient, "client_id"); err != nil {
				return err
			}
		}
		if in.ServiceTypeID != nil {
			var count int64
			if err := tx.Model(&models.ServiceType{}).Where("id = ?", *in.ServiceTypeID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return NewValidationError("service_type_id", "service type not found")
			}
		}
		seq, err := nextYearSequence(tx, &models.Request{}, now)
		if err != nil {
			return err
		}
		return createWithReference(tx, request, func(attempt int) {
			request.ID = 0
			request.Reference = models.RequestReference(now.Year(), seq+attempt)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"request_id": request.ID, "reference": request.Reference}).Info("✅ Заявка создана")

	msg := fmt.Sprintf("New service request %s has been submitted", request.Reference)
	s.effects.Notify(ctx, s.effects.AdminDrafts(ctx, uintPtr(actor.ID), models.NotificationRequestCreated, msg,
		models.RelatedEntity{ID: request.ID, Type: models.EntityRequest}))

	return s.load(ctx, request.ID)
}

func (s *RequestService) load(ctx context.Context, id uint) (*models.Request, error) {
	var request models.Request
	if err := s.db.WithContext(ctx).
		Preload("Client").Preload("ServiceType").Preload("AssignedTechnician").
		First(&request, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &request, nil
}

func canViewRequest(actor *models.User, r *models.Request) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleClient:
		return r.ClientID == actor.ID
	case models.RoleTechnician:
		return r.AssignedTechnicianID != nil && *r.AssignedTechnicianID == actor.ID
	}
	return false
}

// Get возвращает заявку с проверкой доступа
func (s *RequestService) Get(ctx context.Context, actor *models.User, id uint) (*models.Request, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewRequest(actor, request) {
		return nil, ErrForbidden
	}
	return request, nil
}

// List возвращает заявки: клиенту свои, технику назначенные, администратору все
func (s *RequestService) List(ctx context.Context, actor *models.User, f ListFilter) ([]models.Request, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Request{})
	switch actor.Role {
	case models.RoleClient:
		query = query.Where("client_id = ?", actor.ID)
	case models.RoleTechnician:
		query = query.Where("assigned_technician_id = ?", actor.ID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(reference) LIKE ? OR LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var requests []models.Request
	err := query.Preload("Client").Preload("ServiceType").Preload("AssignedTechnician").
		Order("created_at DESC, id DESC").
		Scopes(f.paginate).Find(&requests).Error
	return requests, total, err
}

// Update изменяет заявку. Клиент может править только свою заявку в статусе pending,
// смена статуса доступна администратору и назначенному технику.
func (s *RequestService) Update(ctx context.Context, actor *models.User, id uint, in RequestUpdateInput) (*models.Request, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewRequest(actor, request) {
		return nil, ErrForbidden
	}
	if actor.IsClient() {
		if in.Status != nil && *in.Status != models.RequestCancelled {
			return nil, ErrForbidden
		}
		if request.Status != models.RequestPending && in.Status == nil {
			return nil, fmt.Errorf("%w: request can only be edited while pending", ErrConflict)
		}
	}

	oldStatus := request.Status
	if in.Status != nil {
		if err := request.Status.CanTransitionTo(*in.Status); err != nil {
			return nil, err
		}
		request.Status = *in.Status
	}
	if in.Priority != nil {
		if !models.ValidPriority(*in.Priority) {
			return nil, NewValidationError("priority", "must be one of low, medium, high, urgent")
		}
		request.Priority = *in.Priority
	}
	if in.Title != nil {
		request.Title = *in.Title
	}
	if in.Description != nil {
		if strings.TrimSpace(*in.Description) == "" {
			return nil, NewValidationError("description", "is required")
		}
		request.Description = *in.Description
	}
	if in.Address != nil {
		request.Address = *in.Address
	}
	if in.ServiceTypeID != nil {
		request.ServiceTypeID = in.ServiceTypeID
	}
	if in.PreferredDate != nil {
		request.PreferredDate = in.PreferredDate
	}

	if err := s.db.WithContext(ctx).Omit("Client", "ServiceType", "AssignedTechnician").Save(request).Error; err != nil {
		return nil, err
	}

	if oldStatus != request.Status && request.ClientID != actor.ID {
		s.effects.Notify(ctx, []NotificationDraft{{
			RecipientID: request.ClientID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationRequestStatusChanged,
			Message:     fmt.Sprintf("Request %s is now %s", request.Reference, request.Status),
			Entity:      models.RelatedEntity{ID: request.ID, Type: models.EntityRequest},
		}})
	}
	return s.load(ctx, request.ID)
}

// AssignTechnician назначает техника на заявку (только администратор)
func (s *RequestService) AssignTechnician(ctx context.Context, actor *models.User, id, technicianID uint) (*models.Request, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	var request models.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&request, id).Error; err != nil {
			return notFoundOr(err)
		}
		if _, err := loadUserWithRole(tx, technicianID, models.RoleTechnician, "technician_id"); err != nil {
			return err
		}
		if err := request.Status.CanTransitionTo(models.RequestAssigned); err != nil {
			return err
		}
		return tx.Model(&request).Updates(map[string]interface{}{
			"assigned_technician_id": technicianID,
			"status":                 models.RequestAssigned,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	entity := models.RelatedEntity{ID: request.ID, Type: models.EntityRequest}
	s.effects.Notify(ctx, []NotificationDraft{
		{
			RecipientID: technicianID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationRequestAssigned,
			Message:     fmt.Sprintf("Request %s has been assigned to you", request.Reference),
			Entity:      entity,
		},
		{
			RecipientID: request.ClientID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationRequestAssigned,
			Message:     fmt.Sprintf("A technician has been assigned to your request %s", request.Reference),
			Entity:      entity,
		},
	})
	return s.load(ctx, request.ID)
}

// Delete удаляет заявку; клиент может удалить только свою заявку в статусе pending
func (s *RequestService) Delete(ctx context.Context, actor *models.User, id uint) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case actor.IsAdmin():
	case actor.IsClient() && request.ClientID == actor.ID:
		if request.Status != models.RequestPending {
			return fmt.Errorf("%w: only pending requests can be deleted", ErrConflict)
		}
	default:
		return ErrForbidden
	}

	var quotes int64
	if err := s.db.WithContext(ctx).Model(&models.Quote{}).Where("request_id = ?", id).Count(&quotes).Error; err != nil {
		return err
	}
	if quotes > 0 {
		return fmt.Errorf("%w: request has quotes", ErrConflict)
	}
	if err := s.db.WithContext(ctx).Delete(&models.Request{}, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
