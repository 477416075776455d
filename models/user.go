package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Роли пользователей
const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
	RoleClient     = "client"
)

// Статусы доступности техника
const (
	AvailabilityAvailable = "available"
	AvailabilityBusy      = "busy"
	AvailabilityOff       = "off"
)

// ValidRole проверяет, что роль входит в перечисление
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTechnician, RoleClient:
		return true
	}
	return false
}

// User представляет модель пользователя в системе
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Основные поля
	Email    string `json:"email" gorm:"uniqueIndex;not null;type:varchar(255)"`
	Password string `json:"-" gorm:"not null"` // Пароль не возвращается в JSON

	// Дополнительные поля
	FirstName string `json:"first_name" gorm:"type:varchar(100)"`
	LastName  string `json:"last_name" gorm:"type:varchar(100)"`
	Phone     string `json:"phone" gorm:"type:varchar(50)"`
	Role      string `json:"role" gorm:"default:'client';type:varchar(20);index"`
	IsActive  bool   `json:"is_active" gorm:"default:true"`
	Address   string `json:"address" gorm:"type:text"`

	// Доступность (актуально для техников)
	AvailabilityStatus string     `json:"availability_status" gorm:"default:'available';type:varchar(20)"`
	NextDayOff         *time.Time `json:"next_day_off"`

	// Компания клиента
	CompanyID *uint    `json:"company_id" gorm:"index"`
	Company   *Company `json:"company,omitempty" gorm:"foreignKey:CompanyID"`

	// Авторизация
	RefreshToken string     `json:"-" gorm:"type:text"`
	LastLogin    *time.Time `json:"last_login"`
}

// TableName задает имя таблицы для модели User
func (User) TableName() string {
	return "users"
}

// BeforeSave нормализует email перед записью
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return nil
}

// FullName возвращает полное имя пользователя
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsTechnician() bool {
	return u.Role == RoleTechnician
}

func (u *User) IsClient() bool {
	return u.Role == RoleClient
}
