package models

import (
	"time"
)

// SiteCustomization раздел контента сайта (ключ -> JSON-содержимое)
type SiteCustomization struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Key         string                 `json:"key" gorm:"uniqueIndex;not null;type:varchar(100)"`
	Content     map[string]interface{} `json:"content" gorm:"serializer:json;type:text"`
	UpdatedByID *uint                  `json:"updated_by_id"`
}

// TableName задает имя таблицы для модели SiteCustomization
func (SiteCustomization) TableName() string {
	return "site_customizations"
}
