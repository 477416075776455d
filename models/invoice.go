package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice представляет счет, выставленный клиенту
type Invoice struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Основные поля счета
	InvoiceNumber string    `json:"invoice_number" gorm:"uniqueIndex;not null;type:varchar(50)"`
	IssueDate     time.Time `json:"issue_date" gorm:"not null"`
	DueDate       time.Time `json:"due_date" gorm:"not null;index"`

	// Связи
	ClientID  uint     `json:"client_id" gorm:"not null;index"`
	Client    *User    `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	CompanyID *uint    `json:"company_id" gorm:"index"`
	Company   *Company `json:"company,omitempty" gorm:"foreignKey:CompanyID"`

	Items []InvoiceItem `json:"items" gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`

	// Финансовая информация
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(15,2);not null"`
	PaidAmount  decimal.Decimal `json:"paid_amount" gorm:"type:decimal(15,2);default:0"`
	Currency    string          `json:"currency" gorm:"default:'EUR';type:varchar(3)"`

	// Статус счета
	Status        InvoiceStatus `json:"status" gorm:"default:'pending';type:varchar(20);index"`
	PaymentStatus PaymentState  `json:"payment_status" gorm:"default:'unpaid';type:varchar(20)"`
	PaidAt        *time.Time    `json:"paid_at"`

	// Документы-основания
	RelatedQuotes   []uint `json:"related_quotes" gorm:"serializer:json;type:text"`
	RelatedMissions []uint `json:"related_missions" gorm:"serializer:json;type:text"`

	Notes string `json:"notes" gorm:"type:text"`
}

// TableName задает имя таблицы для модели Invoice
func (Invoice) TableName() string {
	return "invoices"
}

// IsOverdue проверяет, просрочен ли счет
func (i *Invoice) IsOverdue(now time.Time) bool {
	return i.Status != InvoicePaid && i.Status != InvoiceCancelled && now.After(i.DueDate)
}

// GetRemainingAmount возвращает оставшуюся к доплате сумму
func (i *Invoice) GetRemainingAmount() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// IsFullyPaid проверяет, полностью ли оплачен счет
func (i *Invoice) IsFullyPaid() bool {
	return i.PaidAmount.GreaterThanOrEqual(i.TotalAmount)
}

// RefreshPaymentStatus выводит статус оплаты из оплаченной суммы
func (i *Invoice) RefreshPaymentStatus() {
	switch {
	case i.PaidAmount.LessThanOrEqual(decimal.Zero):
		i.PaidAmount = decimal.Zero
		i.PaymentStatus = PaymentStateUnpaid
	case i.IsFullyPaid():
		i.PaymentStatus = PaymentStatePaid
	default:
		i.PaymentStatus = PaymentStatePartiallyPaid
	}
}

// InvoiceItem представляет позицию в счете
type InvoiceItem struct {
	ID          uint            `json:"id" gorm:"primarykey"`
	InvoiceID   uint            `json:"invoice_id" gorm:"not null;index"`
	Description string          `json:"description" gorm:"not null;type:varchar(500)"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:decimal(10,3);not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(15,2);not null"`
	Total       decimal.Decimal `json:"total" gorm:"type:decimal(15,2);not null"`
	Position    int             `json:"position" gorm:"default:0"`
}

// TableName задает имя таблицы для модели InvoiceItem
func (InvoiceItem) TableName() string {
	return "invoice_items"
}

// CalculateTotal пересчитывает сумму позиции
func (ii *InvoiceItem) CalculateTotal() {
	ii.Total = ii.Quantity.Mul(ii.UnitPrice).Round(2)
}
