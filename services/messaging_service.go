package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backend_fieldservice/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// lastMessagePreviewLength длина сводки последнего сообщения
const lastMessagePreviewLength = 120

// ConversationInput данные новой переписки
type ConversationInput struct {
	Subject        string
	MissionID      *uint
	ParticipantIDs []uint
}

// MessagingService управляет перепиской между пользователями
type MessagingService struct {
	db      *gorm.DB
	effects *SideEffects
	log     *logrus.Logger
	now     func() time.Time
}

// NewMessagingService создает новый экземпляр MessagingService
func NewMessagingService(db *gorm.DB, effects *SideEffects, log *logrus.Logger) *MessagingService {
	return &MessagingService{db: db, effects: effects, log: log, now: time.Now}
}

func preview(content string, attachments []models.Attachment) string {
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) > 0 {
		return fmt.Sprintf("📎 %d attachment(s)", len(attachments))
	}
	runes := []rune(content)
	if len(runes) > lastMessagePreviewLength {
		return string(runes[:lastMessagePreviewLength]) + "…"
	}
	return content
}

// CreateConversation создает переписку. Создатель всегда становится участником,
// имя и роль участников сохраняются снимком на момент создания.
func (s *MessagingService) CreateConversation(ctx context.Context, actor *models.User, in ConversationInput) (*models.Conversation, error) {
	ids := []uint{actor.ID}
	seen := map[uint]bool{actor.ID: true}
	for _, id := range in.ParticipantIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) < 2 {
		return nil, NewValidationError("participant_ids", "at least one other participant is required")
	}
	if in.MissionID != nil {
		if _, err := s.checkMissionAccess(ctx, actor, *in.MissionID); err != nil {
			return nil, err
		}
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) != len(ids) {
		return nil, NewValidationError("participant_ids", "unknown participant")
	}
	if actor.IsClient() {
		// клиент может писать только администраторам и техникам
		for _, u := range users {
			if u.ID != actor.ID && u.IsClient() {
				return nil, ErrForbidden
			}
		}
	}

	conversation := &models.Conversation{Subject: strings.TrimSpace(in.Subject), MissionID: in.MissionID}
	for _, u := range users {
		conversation.Participants = append(conversation.Participants, models.ConversationParticipant{
			UserID: u.ID,
			Name:   u.FullName(),
			Role:   u.Role,
		})
	}
	if err := s.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, err
	}
	return conversation, nil
}

// ListConversations возвращает переписки пользователя, свежие первыми
func (s *MessagingService) ListConversations(ctx context.Context, actor *models.User) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", actor.ID).
		Preload("Participants").
		Order("conversations.last_message_at DESC, conversations.id DESC").
		Find(&conversations).Error
	return conversations, err
}

func (s *MessagingService) loadConversation(ctx context.Context, actor *models.User, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := s.db.WithContext(ctx).Preload("Participants").First(&conversation, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if conversation.Participant(actor.ID) == nil && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return &conversation, nil
}

// GetConversation возвращает переписку вместе с сообщениями
func (s *MessagingService) GetConversation(ctx context.Context, actor *models.User, id uint) (*models.Conversation, []models.Message, error) {
	conversation, err := s.loadConversation(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	var messages []models.Message
	if err := s.db.WithContext(ctx).Preload("Sender").
		Where("conversation_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, nil, err
	}
	return conversation, messages, nil
}

// SendMessage добавляет сообщение в переписку, обновляет сводку и увеличивает
// счетчики непрочитанного у всех участников, кроме отправителя
func (s *MessagingService) SendMessage(ctx context.Context, actor *models.User, conversationID uint, content string, attachments []models.Attachment) (*models.Message, error) {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return nil, NewValidationError("content", "message content or attachment is required")
	}
	conversation, err := s.loadConversation(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation.Participant(actor.ID) == nil {
		return nil, ErrForbidden
	}

	now := s.now()
	message := &models.Message{
		ConversationID: &conversation.ID,
		MissionID:      conversation.MissionID,
		SenderID:       actor.ID,
		Content:        content,
		Attachments:    attachments,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conversation.ID).Updates(map[string]interface{}{
			"last_message":    preview(content, attachments),
			"last_sender_id":  actor.ID,
			"last_message_at": now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id <> ?", conversation.ID, actor.ID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
	})
	if err != nil {
		return nil, err
	}

	var drafts []NotificationDraft
	for _, p := range conversation.Participants {
		drafts = append(drafts, NotificationDraft{
			RecipientID: p.UserID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationNewMessage,
			Message:     fmt.Sprintf("New message from %s", actor.FullName()),
			Entity:      models.RelatedEntity{ID: conversation.ID, Type: models.EntityConversation},
		})
	}
	s.effects.Notify(ctx, drafts)

	message.Sender = actor
	return message, nil
}

// MarkRead сбрасывает счетчик непрочитанного только у вызывающего участника
func (s *MessagingService) MarkRead(ctx context.Context, actor *models.User, conversationID uint) error {
	res := s.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, actor.ID).
		Update("unread_count", 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, actor.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// UnreadTotal суммарное число непрочитанных сообщений пользователя
func (s *MessagingService) UnreadTotal(ctx context.Context, actor *models.User) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("user_id = ?", actor.ID).
		Select("COALESCE(SUM(unread_count), 0)").Scan(&total).Error
	return total, err
}

func (s *MessagingService) checkMissionAccess(ctx context.Context, actor *models.User, missionID uint) (*models.Mission, error) {
	var mission models.Mission
	if err := s.db.WithContext(ctx).First(&mission, missionID).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if !canViewMission(actor, &mission) {
		return nil, ErrForbidden
	}
	return &mission, nil
}

// MissionMessages возвращает сообщения, привязанные к миссии
func (s *MessagingService) MissionMessages(ctx context.Context, actor *models.User, missionID uint) ([]models.Message, error) {
	if _, err := s.checkMissionAccess(ctx, actor, missionID); err != nil {
		return nil, err
	}
	var messages []models.Message
	err := s.db.WithContext(ctx).Preload("Sender").
		Where("mission_id = ?", missionID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// PostMissionMessage добавляет сообщение к миссии и уведомляет других участников миссии
func (s *MessagingService) PostMissionMessage(ctx context.Context, actor *models.User, missionID uint, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, NewValidationError("content", "is required")
	}
	mission, err := s.checkMissionAccess(ctx, actor, missionID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{MissionID: &mission.ID, SenderID: actor.ID, Content: content}
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, err
	}

	entity := models.RelatedEntity{ID: mission.ID, Type: models.EntityMission}
	text := fmt.Sprintf("New message on mission %s", mission.MissionNumber)
	s.effects.Notify(ctx, []NotificationDraft{
		{RecipientID: mission.ClientID, SenderID: uintPtr(actor.ID), Type: models.NotificationNewMessage, Message: text, Entity: entity},
		{RecipientID: mission.TechnicianID, SenderID: uintPtr(actor.ID), Type: models.NotificationNewMessage, Message: text, Entity: entity},
	})

	message.Sender = actor
	return message, nil
}
