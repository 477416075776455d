package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Категории типов услуг
const (
	CategoryInstallation = "installation"
	CategoryMaintenance  = "maintenance"
	CategoryRepair       = "repair"
	CategoryDiagnostic   = "diagnostic"
	CategoryEmergency    = "emergency"
)

// ValidServiceCategory проверяет категорию типа услуги
func ValidServiceCategory(category string) bool {
	switch category {
	case CategoryInstallation, CategoryMaintenance, CategoryRepair, CategoryDiagnostic, CategoryEmergency:
		return true
	}
	return false
}

// SubType вложенный подтип услуги
type SubType struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// ServiceType представляет тип оказываемой услуги
type ServiceType struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Name        string          `json:"name" gorm:"uniqueIndex;not null;type:varchar(200)"`
	Description string          `json:"description" gorm:"type:text"`
	Category    string          `json:"category" gorm:"not null;type:varchar(30);index"`
	BasePrice   decimal.Decimal `json:"base_price" gorm:"type:decimal(15,2);default:0"`
	Images      []string        `json:"images" gorm:"serializer:json;type:text"`
	SubTypes    []SubType       `json:"sub_types" gorm:"serializer:json;type:text"`
	IsActive    bool            `json:"is_active" gorm:"default:true"`
}

// TableName задает имя таблицы для модели ServiceType
func (ServiceType) TableName() string {
	return "service_types"
}

// Product представляет товар каталога со складским остатком
type Product struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Name        string          `json:"name" gorm:"not null;type:varchar(200);index"`
	Description string          `json:"description" gorm:"type:text"`
	SKU         string          `json:"sku" gorm:"type:varchar(100)"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(15,2);not null"`
	Quantity    int             `json:"quantity" gorm:"default:0"`
	Image       string          `json:"image" gorm:"type:varchar(500)"`
}

// TableName задает имя таблицы для модели Product
func (Product) TableName() string {
	return "products"
}

// IsInStock проверяет наличие товара на складе
func (p *Product) IsInStock() bool {
	return p.Quantity > 0
}

// Equipment представляет комплект оборудования, собранный из товаров
type Equipment struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Name        string          `json:"name" gorm:"uniqueIndex;not null;type:varchar(200)"`
	Description string          `json:"description" gorm:"type:text"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(15,2);not null"`
	Image       string          `json:"image" gorm:"type:varchar(500)"`

	// Состав комплекта (упорядоченный)
	Components []EquipmentComponent `json:"components" gorm:"foreignKey:EquipmentID;constraint:OnDelete:CASCADE"`

	// Стоимость компонентов по ценам каталога, вычисляется при чтении
	ComponentsTotal decimal.Decimal `json:"components_total" gorm:"-"`
}

// TableName задает имя таблицы для модели Equipment
func (Equipment) TableName() string {
	return "equipments"
}

// CalculateComponentsTotal считает стоимость компонентов по загруженным товарам
func (e *Equipment) CalculateComponentsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, c := range e.Components {
		if c.Product != nil {
			total = total.Add(c.Product.Price.Mul(decimal.NewFromInt(int64(c.Quantity))))
		}
	}
	e.ComponentsTotal = total.Round(2)
	return e.ComponentsTotal
}

// EquipmentComponent позиция в составе комплекта
type EquipmentComponent struct {
	ID          uint     `json:"id" gorm:"primarykey"`
	EquipmentID uint     `json:"equipment_id" gorm:"not null;index"`
	ProductID   uint     `json:"product_id" gorm:"not null;index"`
	Product     *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Quantity    int      `json:"quantity" gorm:"not null;default:1"`
	Position    int      `json:"position" gorm:"default:0"`
}

// TableName задает имя таблицы для модели EquipmentComponent
func (EquipmentComponent) TableName() string {
	return "equipment_components"
}
