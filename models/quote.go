package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Типы позиций предложения
const (
	ItemTypeService   = "service"
	ItemTypeEquipment = "equipment"
)

var hundred = decimal.NewFromInt(100)

// Quote представляет коммерческое предложение (devis) для клиента
type Quote struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Reference string `json:"reference" gorm:"uniqueIndex;not null;type:varchar(50)"`
	Title     string `json:"title" gorm:"type:varchar(200)"`

	// Участники
	ClientID     uint  `json:"client_id" gorm:"not null;index"`
	Client       *User `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	TechnicianID *uint `json:"technician_id" gorm:"index"`
	Technician   *User `json:"technician,omitempty" gorm:"foreignKey:TechnicianID"`
	CreatedByID  uint  `json:"created_by_id" gorm:"not null"`
	RequestID    *uint `json:"request_id" gorm:"index"`

	Items []QuoteItem `json:"items" gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE"`

	Status QuoteStatus `json:"status" gorm:"default:'draft';type:varchar(30);index"`

	// Финансовая информация, всегда вычисляется из позиций
	Subtotal  decimal.Decimal `json:"subtotal" gorm:"type:decimal(15,2);default:0"`
	TaxRate   decimal.Decimal `json:"tax_rate" gorm:"type:decimal(5,2);default:20"`
	TaxAmount decimal.Decimal `json:"tax_amount" gorm:"type:decimal(15,2);default:0"`
	Total     decimal.Decimal `json:"total" gorm:"type:decimal(15,2);default:0"`

	ValidUntil *time.Time `json:"valid_until"`
	Notes      string     `json:"notes" gorm:"type:text"`
	Terms      string     `json:"terms" gorm:"type:text"`

	// Ответ клиента
	SentAt         *time.Time `json:"sent_at"`
	RespondedAt    *time.Time `json:"responded_at"`
	ClientComments string     `json:"client_comments" gorm:"type:text"`
}

// TableName задает имя таблицы для модели Quote
func (Quote) TableName() string {
	return "quotes"
}

// QuoteItem позиция коммерческого предложения
type QuoteItem struct {
	ID            uint            `json:"id" gorm:"primarykey"`
	QuoteID       uint            `json:"quote_id" gorm:"not null;index"`
	Description   string          `json:"description" gorm:"not null;type:varchar(500)"`
	Quantity      int             `json:"quantity" gorm:"not null"`
	UnitPrice     decimal.Decimal `json:"unit_price" gorm:"type:decimal(15,2);not null"`
	ItemType      string          `json:"item_type" gorm:"type:varchar(20);not null"`
	EquipmentID   *uint           `json:"equipment_id"`
	ServiceTypeID *uint           `json:"service_type_id"`
	Position      int             `json:"position" gorm:"default:0"`
}

// TableName задает имя таблицы для модели QuoteItem
func (QuoteItem) TableName() string {
	return "quote_items"
}

// LineTotal возвращает сумму позиции
func (i QuoteItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CalculateTotals пересчитывает subtotal, налог и итог по позициям
func (q *Quote) CalculateTotals() {
	subtotal := decimal.Zero
	for _, item := range q.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	q.Subtotal = subtotal.Round(2)
	q.TaxAmount = q.Subtotal.Mul(q.TaxRate).Div(hundred).Round(2)
	q.Total = q.Subtotal.Add(q.TaxAmount)
}

// BeforeSave пересчитывает итоги перед каждой записью.
// Если позиции не загружены, они читаются из БД.
func (q *Quote) BeforeSave(tx *gorm.DB) error {
	if q.Items == nil && q.ID != 0 {
		if err := tx.Session(&gorm.Session{NewDB: true}).
			Where("quote_id = ?", q.ID).Order("position").Find(&q.Items).Error; err != nil {
			return err
		}
	}
	for i := range q.Items {
		q.Items[i].Position = i
	}
	q.CalculateTotals()
	return nil
}

// IsExpired проверяет, истек ли срок действия предложения
func (q *Quote) IsExpired(now time.Time) bool {
	return q.ValidUntil != nil && now.After(*q.ValidUntil)
}
