package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation представляет переписку между участниками
type Conversation struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Subject   string `json:"subject" gorm:"type:varchar(200)"`
	MissionID *uint  `json:"mission_id" gorm:"index"`

	Participants []ConversationParticipant `json:"participants" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`

	// Сводка последнего сообщения
	LastMessage   string     `json:"last_message" gorm:"type:text"`
	LastSenderID  *uint      `json:"last_sender_id"`
	LastMessageAt *time.Time `json:"last_message_at" gorm:"index"`
}

// TableName задает имя таблицы для модели Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// Participant возвращает участника по идентификатору пользователя
func (c *Conversation) Participant(userID uint) *ConversationParticipant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// ConversationParticipant участник переписки со снимком имени и роли
type ConversationParticipant struct {
	ID             uint   `json:"id" gorm:"primarykey"`
	ConversationID uint   `json:"conversation_id" gorm:"not null;uniqueIndex:idx_conversation_user"`
	UserID         uint   `json:"user_id" gorm:"not null;uniqueIndex:idx_conversation_user"`
	Name           string `json:"name" gorm:"type:varchar(200)"`
	Role           string `json:"role" gorm:"type:varchar(20)"`
	UnreadCount    int    `json:"unread_count" gorm:"default:0"`
}

// TableName задает имя таблицы для модели ConversationParticipant
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// Message сообщение в переписке и/или по миссии
type Message struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	ConversationID *uint `json:"conversation_id" gorm:"index"`
	MissionID      *uint `json:"mission_id" gorm:"index"`
	SenderID       uint  `json:"sender_id" gorm:"not null;index"`
	Sender         *User `json:"sender,omitempty" gorm:"foreignKey:SenderID"`

	Content     string       `json:"content" gorm:"type:text"`
	Attachments []Attachment `json:"attachments" gorm:"serializer:json;type:text"`
}

// TableName задает имя таблицы для модели Message
func (Message) TableName() string {
	return "messages"
}
