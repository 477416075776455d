package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestReferenceFormats(t *testing.T) {
	now := time.Date(2026, time.March, 4, 9, 5, 7, 0, time.UTC)

	assert.Equal(t, "REQ-2026-0007", RequestReference(2026, 7))
	assert.Equal(t, "DEV-2026-012", QuoteReference(2026, 12))
	assert.Equal(t, "INV-2026-00003", InvoiceNumber(2026, 3))
	assert.Equal(t, "CERT-2026-000042", CertificateNumber(2026, 42))
	assert.Regexp(t, regexp.MustCompile(`^MISS-\d{13}$`), MissionNumber(now))

	t.Run("Ссылка на отчет", func(t *testing.T) {
		ref := ReportReference(now)
		assert.Regexp(t, regexp.MustCompile(`^RPT-20260304090507-[0-9a-f]{6}$`), ref)
		assert.NotEqual(t, ref, ReportReference(now))
	})
}

func TestInvoiceRefreshPaymentStatus(t *testing.T) {
	inv := Invoice{TotalAmount: decimal.NewFromInt(60)}

	inv.RefreshPaymentStatus()
	assert.Equal(t, PaymentStateUnpaid, inv.PaymentStatus)

	inv.PaidAmount = decimal.NewFromInt(20)
	inv.RefreshPaymentStatus()
	assert.Equal(t, PaymentStatePartiallyPaid, inv.PaymentStatus)

	inv.PaidAmount = decimal.NewFromInt(60)
	inv.RefreshPaymentStatus()
	assert.Equal(t, PaymentStatePaid, inv.PaymentStatus)
	assert.True(t, inv.GetRemainingAmount().IsZero())
}
