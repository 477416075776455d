package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment представляет платеж клиента по предложению
type Payment struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	QuoteID   uint   `json:"quote_id" gorm:"not null;index"`
	Quote     *Quote `json:"quote,omitempty" gorm:"foreignKey:QuoteID"`
	ClientID  uint   `json:"client_id" gorm:"not null;index"`
	InvoiceID *uint  `json:"invoice_id" gorm:"index"` // счет, к которому применен платеж
	CreatedBy uint   `json:"created_by"`

	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`
	Status        PaymentStatus   `json:"status" gorm:"default:'pending';type:varchar(20);index"`
	PaymentMethod string          `json:"payment_method" gorm:"not null;type:varchar(50)"`
	TransactionID *string         `json:"transaction_id" gorm:"uniqueIndex;type:varchar(100)"`
	PaidAt        *time.Time      `json:"paid_at"`
	Notes         string          `json:"notes" gorm:"type:text"`
}

// TableName задает имя таблицы для модели Payment
func (Payment) TableName() string {
	return "payments"
}
