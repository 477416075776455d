package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Префиксы номеров документов
const (
	RequestRefPrefix     = "REQ"
	QuoteRefPrefix       = "DEV"
	MissionRefPrefix     = "MISS"
	InvoiceRefPrefix     = "INV"
	ReportRefPrefix      = "RPT"
	CertificateRefPrefix = "CERT"
)

// RequestReference формирует номер заявки REQ-<год>-####
func RequestReference(year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", RequestRefPrefix, year, seq)
}

// QuoteReference формирует номер предложения DEV-<год>-###
func QuoteReference(year, seq int) string {
	return fmt.Sprintf("%s-%d-%03d", QuoteRefPrefix, year, seq)
}

// InvoiceNumber формирует номер счета INV-<год>-#####
func InvoiceNumber(year, seq int) string {
	return fmt.Sprintf("%s-%d-%05d", InvoiceRefPrefix, year, seq)
}

// MissionNumber формирует номер миссии из метки времени в миллисекундах
func MissionNumber(t time.Time) string {
	return fmt.Sprintf("%s-%d", MissionRefPrefix, t.UnixMilli())
}

// ReportReference формирует ссылку на отчет RPT-<yyyymmddHHMMSS>-<6 hex>
func ReportReference(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%s-%s", ReportRefPrefix, t.Format("20060102150405"), suffix)
}

// CertificateNumber формирует номер сертификата соответствия
func CertificateNumber(year int, reportID uint) string {
	return fmt.Sprintf("%s-%d-%06d", CertificateRefPrefix, year, reportID)
}

// YearStart возвращает начало календарного года для момента t
func YearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}
