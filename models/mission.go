package models

import (
	"time"

	"gorm.io/gorm"
)

// Приоритеты миссии
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidPriority проверяет значение приоритета
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Mission представляет выезд техника на объект клиента
type Mission struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	MissionNumber string `json:"mission_number" gorm:"uniqueIndex;not null;type:varchar(50)"`
	Title         string `json:"title" gorm:"type:varchar(200)"`
	Description   string `json:"description" gorm:"type:text"`

	// Связи
	ServiceTypeID uint         `json:"service_type_id" gorm:"not null;index"`
	ServiceType   *ServiceType `json:"service_type,omitempty" gorm:"foreignKey:ServiceTypeID"`
	ClientID      uint         `json:"client_id" gorm:"not null;index"`
	Client        *User        `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	TechnicianID  uint         `json:"technician_id" gorm:"not null;index"`
	Technician    *User        `json:"technician,omitempty" gorm:"foreignKey:TechnicianID"`
	QuoteID       uint         `json:"quote_id" gorm:"not null;index"`
	Quote         *Quote       `json:"quote,omitempty" gorm:"foreignKey:QuoteID"`
	InvoiceID     *uint        `json:"invoice_id" gorm:"index"`

	Status        MissionStatus `json:"status" gorm:"default:'pending';type:varchar(20);index"`
	Priority      string        `json:"priority" gorm:"default:'medium';type:varchar(20)"`
	ScheduledDate time.Time     `json:"scheduled_date" gorm:"not null;index"`
	Address       string        `json:"address" gorm:"type:text;not null"`
	Notes         string        `json:"notes" gorm:"type:text"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// TableName задает имя таблицы для модели Mission
func (Mission) TableName() string {
	return "missions"
}

// IsAssignedTo проверяет, назначена ли миссия технику
func (m *Mission) IsAssignedTo(userID uint) bool {
	return m.TechnicianID == userID
}
