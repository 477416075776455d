package services

import (
	"context"
	"fmt"
	"time"

	"backend_fieldservice/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationDraft уведомление, ожидающее записи и доставки
type NotificationDraft struct {
	RecipientID uint
	SenderID    *uint
	Type        string
	Message     string
	Entity      models.RelatedEntity
}

// NotificationService сохраняет уведомления и публикует их в реальном времени
type NotificationService struct {
	db        *gorm.DB
	publisher Publisher
	log       *logrus.Logger
}

// NewNotificationService создает новый экземпляр NotificationService
func NewNotificationService(db *gorm.DB, publisher Publisher, log *logrus.Logger) *NotificationService {
	return &NotificationService{db: db, publisher: publisher, log: log}
}

// Notify сохраняет уведомление и отправляет событие newNotification получателю.
// Ошибка публикации только логируется: запись остается доступной через список.
func (s *NotificationService) Notify(ctx context.Context, draft NotificationDraft) (*models.Notification, error) {
	n := models.Notification{
		RecipientID:       draft.RecipientID,
		SenderID:          draft.SenderID,
		Type:              draft.Type,
		Message:           draft.Message,
		RelatedEntityType: draft.Entity.Type,
	}
	if draft.Entity.ID != 0 {
		id := draft.Entity.ID
		n.RelatedEntityID = &id
	}

	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("не удалось сохранить уведомление: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, n.RecipientID, EventNewNotification, n); err != nil {
			s.log.WithError(err).WithField("recipient_id", n.RecipientID).Warn("⚠️ Не удалось доставить уведомление в реальном времени")
		}
	}
	return &n, nil
}

// Dispatch отправляет пакет уведомлений, пропуская автора события и дубликаты получателей.
// Вызывается после фиксации транзакции; ошибки не прерывают запрос.
func (s *NotificationService) Dispatch(ctx context.Context, drafts []NotificationDraft) {
	seen := make(map[uint]bool, len(drafts))
	for _, d := range drafts {
		if d.RecipientID == 0 || seen[d.RecipientID] {
			continue
		}
		if d.SenderID != nil && *d.SenderID == d.RecipientID {
			continue
		}
		seen[d.RecipientID] = true
		if _, err := s.Notify(ctx, d); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"recipient_id": d.RecipientID,
				"type":         d.Type,
			}).Warn("⚠️ Уведомление не создано")
		}
	}
}

// AdminDrafts формирует уведомления для всех активных администраторов
func (s *NotificationService) AdminDrafts(ctx context.Context, senderID *uint, notificationType, message string, entity models.RelatedEntity) []NotificationDraft {
	var adminIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Pluck("id", &adminIDs).Error; err != nil {
		s.log.WithError(err).Warn("⚠️ Не удалось получить список администраторов")
		return nil
	}

	drafts := make([]NotificationDraft, 0, len(adminIDs))
	for _, id := range adminIDs {
		drafts = append(drafts, NotificationDraft{
			RecipientID: id,
			SenderID:    senderID,
			Type:        notificationType,
			Message:     message,
			Entity:      entity,
		})
	}
	return drafts
}

// NotificationFilter параметры выборки уведомлений
type NotificationFilter struct {
	UnreadOnly bool
	Page       int
	Limit      int
}

// List возвращает уведомления пользователя с пагинацией
func (s *NotificationService) List(ctx context.Context, userID uint, f NotificationFilter) ([]models.Notification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", userID)
	if f.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Notification
	err := query.Preload("Sender").
		Order("created_at DESC, id DESC").
		Scopes(ListFilter{Page: f.Page, Limit: f.Limit}.paginate).
		Find(&items).Error
	return items, total, err
}

// UnreadCount возвращает количество непрочитанных уведомлений
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead отмечает уведомление прочитанным (только свое)
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if n.RecipientID != userID {
		return nil, ErrForbidden
	}
	if !n.IsRead {
		now := time.Now()
		n.IsRead = true
		n.ReadAt = &now
		if err := s.db.WithContext(ctx).Save(&n).Error; err != nil {
			return nil, err
		}
	}
	return &n, nil
}

// MarkAllRead отмечает все уведомления пользователя прочитанными
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	return res.RowsAffected, res.Error
}

// Delete удаляет уведомление пользователя
func (s *NotificationService) Delete(ctx context.Context, userID, id uint) error {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return notFoundOr(err)
	}
	if n.RecipientID != userID {
		return ErrForbidden
	}
	return s.db.WithContext(ctx).Delete(&n).Error
}
