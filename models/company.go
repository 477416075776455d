package models

import (
	"time"

	"gorm.io/gorm"
)

// Company представляет компанию-клиента, которой выставляются счета
type Company struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Основные поля компании
	Name    string `json:"name" gorm:"uniqueIndex;not null;type:varchar(200)"`
	TaxID   string `json:"tax_id" gorm:"type:varchar(50)"` // SIRET / ИНН
	Website string `json:"website" gorm:"type:varchar(255)"`

	// Контактная информация
	ContactEmail  string `json:"contact_email" gorm:"type:varchar(100)"`
	ContactPhone  string `json:"contact_phone" gorm:"type:varchar(50)"`
	ContactPerson string `json:"contact_person" gorm:"type:varchar(100)"`

	// Адрес
	Address    string `json:"address" gorm:"type:text"`
	City       string `json:"city" gorm:"type:varchar(100)"`
	PostalCode string `json:"postal_code" gorm:"type:varchar(20)"`
	Country    string `json:"country" gorm:"type:varchar(100)"`

	IsActive bool `json:"is_active" gorm:"default:true"`
}

// TableName задает имя таблицы для модели Company
func (Company) TableName() string {
	return "companies"
}
