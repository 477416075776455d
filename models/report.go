package models

import (
	"time"

	"gorm.io/gorm"
)

// ReportPhoto фотография, прикрепленная к отчету
type ReportPhoto struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Caption   string    `json:"caption,omitempty"`
}

// Report представляет отчет техника о выполненном вмешательстве
type Report struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	InterventionReference string `json:"intervention_reference" gorm:"uniqueIndex;not null;type:varchar(50)"`

	MissionID    uint     `json:"mission_id" gorm:"not null;index"`
	Mission      *Mission `json:"mission,omitempty" gorm:"foreignKey:MissionID"`
	TechnicianID uint     `json:"technician_id" gorm:"not null;index"`
	Technician   *User    `json:"technician,omitempty" gorm:"foreignKey:TechnicianID"`

	// Описание вмешательства
	Type              string `json:"type" gorm:"type:varchar(30);not null"` // installation, maintenance, repair, diagnostic, emergency
	StartTime         string `json:"start_time" gorm:"type:varchar(5)"`     // HH:MM
	EndTime           string `json:"end_time" gorm:"type:varchar(5)"`       // HH:MM
	Location          string `json:"location" gorm:"type:text"`
	WorkPerformed     string `json:"work_performed" gorm:"type:text"`
	Observations      string `json:"observations" gorm:"type:text"`
	Recommendations   string `json:"recommendations" gorm:"type:text"`
	SelectedEquipment []uint `json:"selected_equipment" gorm:"serializer:json;type:text"`
	SelectedProducts  []uint `json:"selected_products" gorm:"serializer:json;type:text"`

	Status ReportStatus  `json:"status" gorm:"default:'draft';type:varchar(20);index"`
	Photos []ReportPhoto `json:"photos" gorm:"serializer:json;type:text"`

	// Соответствие BATUTA
	BatutaCompliant   bool       `json:"batuta_compliant" gorm:"default:false"`
	ComplianceSentAt  *time.Time `json:"compliance_sent_at"`
	CertificateNumber string     `json:"certificate_number" gorm:"type:varchar(50)"`
	PdfURL            string     `json:"pdf_url" gorm:"type:varchar(500)"`
	SentAt            *time.Time `json:"sent_at"`
}

// TableName задает имя таблицы для модели Report
func (Report) TableName() string {
	return "reports"
}
