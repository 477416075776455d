package models

import (
	"time"

	"gorm.io/gorm"
)

// Attachment файл, прикрепленный к заявке или сообщению
type Attachment struct {
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type,omitempty"`
	Size         int64  `json:"size"`
}

// Request представляет заявку клиента на обслуживание
type Request struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Reference   string `json:"reference" gorm:"uniqueIndex;not null;type:varchar(50)"`
	Title       string `json:"title" gorm:"type:varchar(200)"`
	Description string `json:"description" gorm:"type:text;not null"`
	Address     string `json:"address" gorm:"type:text"`
	Priority    string `json:"priority" gorm:"default:'medium';type:varchar(20)"`

	ClientID      uint         `json:"client_id" gorm:"not null;index"`
	Client        *User        `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	ServiceTypeID *uint        `json:"service_type_id" gorm:"index"`
	ServiceType   *ServiceType `json:"service_type,omitempty" gorm:"foreignKey:ServiceTypeID"`

	Status RequestStatus `json:"status" gorm:"default:'pending';type:varchar(20);index"`

	AssignedTechnicianID *uint `json:"assigned_technician_id" gorm:"index"`
	AssignedTechnician   *User `json:"assigned_technician,omitempty" gorm:"foreignKey:AssignedTechnicianID"`

	PreferredDate *time.Time   `json:"preferred_date"`
	Attachments   []Attachment `json:"attachments" gorm:"serializer:json;type:text"`
}

// TableName задает имя таблицы для модели Request
func (Request) TableName() string {
	return "requests"
}
