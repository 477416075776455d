package models

import (
	"time"

	"gorm.io/gorm"
)

// Типы уведомлений
const (
	NotificationMissionAssigned      = "mission_assigned"
	NotificationMissionStatusChanged = "mission_status_changed"
	NotificationQuoteCreated         = "quote_created"
	NotificationQuoteSent            = "quote_sent"
	NotificationQuoteStatusChanged   = "quote_status_changed"
	NotificationQuoteResponded       = "quote_responded"
	NotificationRequestCreated       = "request_created"
	NotificationRequestAssigned      = "request_assigned"
	NotificationRequestStatusChanged = "request_status_changed"
	NotificationReportCreated        = "report_created"
	NotificationReportSent           = "report_sent"
	NotificationInvoiceGenerated     = "invoice_generated"
	NotificationPaymentReceived      = "payment_received"
	NotificationNewMessage           = "new_message"
)

// Типы связанных сущностей
const (
	EntityMission      = "mission"
	EntityQuote        = "quote"
	EntityRequest      = "request"
	EntityReport       = "report"
	EntityInvoice      = "invoice"
	EntityPayment      = "payment"
	EntityConversation = "conversation"
)

// RelatedEntity ссылка на сущность, вызвавшую уведомление
type RelatedEntity struct {
	ID   uint   `json:"id"`
	Type string `json:"type"`
}

// Notification запись уведомления пользователя
type Notification struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	RecipientID uint  `json:"recipient_id" gorm:"not null;index:idx_notifications_recipient_read"`
	SenderID    *uint `json:"sender_id"`
	Sender      *User `json:"sender,omitempty" gorm:"foreignKey:SenderID"`

	Type    string `json:"type" gorm:"not null;type:varchar(50)"`
	Message string `json:"message" gorm:"type:text;not null"`

	RelatedEntityID   *uint  `json:"related_entity_id"`
	RelatedEntityType string `json:"related_entity_type" gorm:"type:varchar(30)"`

	IsRead bool       `json:"is_read" gorm:"default:false;index:idx_notifications_recipient_read"`
	ReadAt *time.Time `json:"read_at"`
}

// TableName задает имя таблицы для модели Notification
func (Notification) TableName() string {
	return "notifications"
}
