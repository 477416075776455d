package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend_fieldservice/config"
	"backend_fieldservice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InvoiceItemInput позиция счета во входных данных
type InvoiceItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// InvoiceInput данные для ручного создания счета
type InvoiceInput struct {
	ClientID        uint
	CompanyID       *uint
	DueDate         *time.Time
	Items           []InvoiceItemInput
	Notes           string
	RelatedQuotes   []uint
	RelatedMissions []uint
}

// PaymentInput данные для регистрации платежа
type PaymentInput struct {
	QuoteID       uint
	Amount        decimal.Decimal
	PaymentMethod string
	TransactionID string
	Status        models.PaymentStatus
	Notes         string
}

// BillingService отвечает за счета и платежи
type BillingService struct {
	db      *gorm.DB
	cfg     config.BusinessConfig
	effects *SideEffects
	log     *logrus.Logger
	now     func() time.Time
}

// NewBillingService создает новый экземпляр BillingService
func NewBillingService(db *gorm.DB, cfg config.BusinessConfig, effects *SideEffects, log *logrus.Logger) *BillingService {
	return &BillingService{db: db, cfg: cfg, effects: effects, log: log, now: time.Now}
}

// createInvoiceTx присваивает номер INV-<год>-##### и сохраняет счет в транзакции
func (bs *BillingService) createInvoiceTx(tx *gorm.DB, invoice *models.Invoice) error {
	now := bs.now()
	seq, err := nextYearSequence(tx, &models.Invoice{}, now)
	if err != nil {
		return err
	}
	return createWithReference(tx, invoice, func(attempt int) {
		invoice.ID = 0
		invoice.InvoiceNumber = models.InvoiceNumber(now.Year(), seq+attempt)
	})
}

// GenerateForMissionTx создает счет по завершенной миссии в рамках переданной транзакции.
// Если у миссии уже есть счет, возвращается он.
func (bs *BillingService) GenerateForMissionTx(tx *gorm.DB, mission *models.Mission) (*models.Invoice, error) {
	if mission.InvoiceID != nil {
		var existing models.Invoice
		if err := tx.First(&existing, *mission.InvoiceID).Error; err == nil {
			return &existing, nil
		}
	}

	var quote models.Quote
	if err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Client").First(&quote, mission.QuoteID).Error; err != nil {
		return nil, fmt.Errorf("предложение %d для счета не найдено: %w", mission.QuoteID, notFoundOr(err))
	}

	invoice := &models.Invoice{
		IssueDate:       bs.now(),
		DueDate:         bs.now().AddDate(0, 0, bs.cfg.InvoiceDueDays),
		ClientID:        quote.ClientID,
		CompanyID:       bs.resolveCompany(tx, quote.Client),
		TotalAmount:     quote.Total,
		PaidAmount:      decimal.Zero,
		Currency:        bs.cfg.Currency,
		Status:          models.InvoicePending,
		PaymentStatus:   models.PaymentStateUnpaid,
		RelatedQuotes:   []uint{quote.ID},
		RelatedMissions: []uint{mission.ID},
		Notes:           fmt.Sprintf("Mission %s / quote %s", mission.MissionNumber, quote.Reference),
	}
	for i, item := range quote.Items {
		ii := models.InvoiceItem{
			Description: item.Description,
			Quantity:    decimal.NewFromInt(int64(item.Quantity)),
			UnitPrice:   item.UnitPrice,
			Position:    i,
		}
		ii.CalculateTotal()
		invoice.Items = append(invoice.Items, ii)
	}

	if err := bs.createInvoiceTx(tx, invoice); err != nil {
		return nil, fmt.Errorf("ошибка создания счета: %w", err)
	}
	if err := bs.creditUnlinkedPaymentsTx(tx, invoice); err != nil {
		return nil, err
	}

	bs.log.WithFields(logrus.Fields{
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.InvoiceNumber,
		"mission_id":     mission.ID,
		"total":          invoice.TotalAmount.String(),
	}).Info("✅ Счет по миссии создан")
	return invoice, nil
}

// resolveCompany ищет компанию клиента; при отсутствии счет создается без компании
func (bs *BillingService) resolveCompany(tx *gorm.DB, client *models.User) *uint {
	if client == nil || client.CompanyID == nil {
		bs.log.WithField("client_id", clientID(client)).Warn("⚠️ У клиента не указана компания, счет создается без компании")
		return nil
	}
	var company models.Company
	if err := tx.First(&company, *client.CompanyID).Error; err != nil {
		bs.log.WithError(err).WithField("company_id", *client.CompanyID).Warn("⚠️ Компания клиента не найдена")
		return nil
	}
	return &company.ID
}

func clientID(u *models.User) uint {
	if u == nil {
		return 0
	}
	return u.ID
}

// CreateInvoice создает счет вручную (только администратор)
func (bs *BillingService) CreateInvoice(ctx context.Context, actor *models.User, in InvoiceInput) (*models.Invoice, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	verr := &ValidationError{}
	if in.ClientID == 0 {
		verr.Add("client_id", "is required")
	}
	if in.CompanyID == nil || *in.CompanyID == 0 {
		verr.Add("company_id", "is required")
	}
	if in.DueDate == nil || in.DueDate.IsZero() {
		verr.Add("due_date", "is required")
	}
	if len(in.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, item := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.Description) == "" {
			verr.Add(field+".description", "is required")
		}
		if !item.Quantity.IsPositive() {
			verr.Add(field+".quantity", "must be positive")
		}
		if !item.UnitPrice.IsPositive() {
			verr.Add(field+".unit_price", "must be positive")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		IssueDate:       bs.now(),
		DueDate:         *in.DueDate,
		ClientID:        in.ClientID,
		CompanyID:       in.CompanyID,
		Currency:        bs.cfg.Currency,
		Status:          models.InvoicePending,
		PaymentStatus:   models.PaymentStateUnpaid,
		PaidAmount:      decimal.Zero,
		Notes:           in.Notes,
		RelatedQuotes:   in.RelatedQuotes,
		RelatedMissions: in.RelatedMissions,
	}
	total := decimal.Zero
	for i, item := range in.Items {
		ii := models.InvoiceItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Position:    i,
		}
		ii.CalculateTotal()
		total = total.Add(ii.Total)
		invoice.Items = append(invoice.Items, ii)
	}
	invoice.TotalAmount = total

	err := bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadUserWithRole(tx, in.ClientID, models.RoleClient, "client_id"); err != nil {
			return err
		}
		var company models.Company
		if err := tx.First(&company, *in.CompanyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewValidationError("company_id", "company not found")
			}
			return err
		}
		if err := bs.createInvoiceTx(tx, invoice); err != nil {
			return err
		}
		return bs.creditUnlinkedPaymentsTx(tx, invoice)
	})
	if err != nil {
		return nil, err
	}

	bs.effects.Notify(ctx, []NotificationDraft{{
		RecipientID: invoice.ClientID,
		SenderID:    uintPtr(actor.ID),
		Type:        models.NotificationInvoiceGenerated,
		Message:     fmt.Sprintf("Invoice %s for %s %s has been issued", invoice.InvoiceNumber, invoice.TotalAmount.StringFixed(2), invoice.Currency),
		Entity:      models.RelatedEntity{ID: invoice.ID, Type: models.EntityInvoice},
	}})
	return bs.loadInvoice(ctx, invoice.ID)
}

func (bs *BillingService) loadInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := bs.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Client").Preload("Company").
		First(&invoice, id).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &invoice, nil
}

// GetInvoice возвращает счет; клиент видит только счета, выставленные ему
func (bs *BillingService) GetInvoice(ctx context.Context, actor *models.User, id uint) (*models.Invoice, error) {
	invoice, err := bs.loadInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin():
	case actor.IsClient() && invoice.ClientID == actor.ID:
	default:
		return nil, ErrForbidden
	}
	return invoice, nil
}

// ListInvoices возвращает счета в пределах роли
func (bs *BillingService) ListInvoices(ctx context.Context, actor *models.User, f ListFilter) ([]models.Invoice, int64, error) {
	query := bs.db.WithContext(ctx).Model(&models.Invoice{})
	switch {
	case actor.IsAdmin():
	case actor.IsClient():
		query = query.Where("client_id = ?", actor.ID)
	default:
		return nil, 0, ErrForbidden
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		query = query.Where("LOWER(invoice_number) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var invoices []models.Invoice
	err := query.Preload("Client").Preload("Company").Preload("Items").
		Order("created_at DESC, id DESC").
		Scopes(f.paginate).Find(&invoices).Error
	return invoices, total, err
}

// UpdateInvoiceStatus меняет статус счета по таблице переходов (только администратор)
func (bs *BillingService) UpdateInvoiceStatus(ctx context.Context, actor *models.User, id uint, status models.InvoiceStatus) (*models.Invoice, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	invoice, err := bs.loadInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := invoice.Status.CanTransitionTo(status); err != nil {
		return nil, err
	}
	if status == invoice.Status {
		return invoice, nil
	}

	reopening := invoice.Status == models.InvoicePaid
	err = bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch {
		case status == models.InvoicePaid:
			now := bs.now()
			invoice.PaidAt = &now
			invoice.PaidAmount = invoice.TotalAmount
			invoice.RefreshPaymentStatus()
		case reopening:
			// Оплаченная сумма снова складывается только из завершенных платежей
			paid, err := completedPaymentsTotal(tx, invoice.ID)
			if err != nil {
				return err
			}
			if paid.GreaterThanOrEqual(invoice.TotalAmount) {
				return fmt.Errorf("%w: invoice %s is covered by completed payments, refund a payment first", ErrConflict, invoice.InvoiceNumber)
			}
			invoice.PaidAmount = paid
			invoice.PaidAt = nil
			invoice.RefreshPaymentStatus()
		}
		invoice.Status = status
		return tx.Omit("Client", "Company", "Items").Save(invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// MarkOverdue переводит неоплаченные счета с истекшим сроком в overdue
func (bs *BillingService) MarkOverdue(ctx context.Context) (int, error) {
	now := bs.now()
	var invoices []models.Invoice
	if err := bs.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", models.InvoicePending, now).
		Find(&invoices).Error; err != nil {
		return 0, fmt.Errorf("ошибка получения просроченных счетов: %w", err)
	}

	marked := 0
	for i := range invoices {
		inv := &invoices[i]
		if inv.Status.CanTransitionTo(models.InvoiceOverdue) != nil {
			continue
		}
		if err := bs.db.WithContext(ctx).Model(inv).Update("status", models.InvoiceOverdue).Error; err != nil {
			bs.log.WithError(err).WithField("invoice_id", inv.ID).Warn("⚠️ Не удалось пометить счет просроченным")
			continue
		}
		marked++
	}
	return marked, nil
}

// findInvoiceForQuote находит счет, выставленный по предложению
func findInvoiceForQuote(tx *gorm.DB, quote *models.Quote) (*models.Invoice, error) {
	var mission models.Mission
	err := tx.Where("quote_id = ? AND invoice_id IS NOT NULL", quote.ID).Order("id DESC").First(&mission).Error
	if err == nil {
		var invoice models.Invoice
		if err := tx.First(&invoice, *mission.InvoiceID).Error; err == nil {
			return &invoice, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Счета, созданные вручную, связаны с предложением только через related_quotes
	var invoices []models.Invoice
	if err := tx.Where("client_id = ? AND status <> ?", quote.ClientID, models.InvoiceCancelled).
		Order("id DESC").Find(&invoices).Error; err != nil {
		return nil, err
	}
	for i := range invoices {
		for _, qid := range invoices[i].RelatedQuotes {
			if qid == quote.ID {
				return &invoices[i], nil
			}
		}
	}
	return nil, nil
}

// settle выводит статус оплаты и статус счета из оплаченной суммы
func (bs *BillingService) settle(invoice *models.Invoice) error {
	invoice.RefreshPaymentStatus()
	switch {
	case invoice.IsFullyPaid() && invoice.Status != models.InvoicePaid:
		if err := invoice.Status.CanTransitionTo(models.InvoicePaid); err != nil {
			return err
		}
		now := bs.now()
		invoice.Status = models.InvoicePaid
		invoice.PaidAt = &now
	case !invoice.IsFullyPaid() && invoice.Status == models.InvoicePaid:
		invoice.Status = models.InvoicePending
		invoice.PaidAt = nil
	}
	return nil
}

// creditUnlinkedPaymentsTx зачисляет на только что созданный счет завершенные платежи
// по его предложениям, проведенные до выставления счета
func (bs *BillingService) creditUnlinkedPaymentsTx(tx *gorm.DB, invoice *models.Invoice) error {
	if len(invoice.RelatedQuotes) == 0 {
		return nil
	}
	var payments []models.Payment
	if err := tx.Where("quote_id IN ? AND client_id = ? AND status = ? AND invoice_id IS NULL",
		invoice.RelatedQuotes, invoice.ClientID, models.PaymentCompleted).
		Find(&payments).Error; err != nil {
		return fmt.Errorf("ошибка получения платежей без счета: %w", err)
	}
	if len(payments) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(payments))
	for _, p := range payments {
		invoice.PaidAmount = invoice.PaidAmount.Add(p.Amount)
		ids = append(ids, p.ID)
	}
	if err := bs.settle(invoice); err != nil {
		return err
	}
	if err := tx.Model(&models.Payment{}).Where("id IN ?", ids).Update("invoice_id", invoice.ID).Error; err != nil {
		return err
	}
	if err := tx.Omit("Items", "Client", "Company").Save(invoice).Error; err != nil {
		return err
	}

	bs.log.WithFields(logrus.Fields{
		"invoice_id": invoice.ID,
		"payments":   len(ids),
		"paid":       invoice.PaidAmount.String(),
	}).Info("💰 Платежи, проведенные до выставления счета, зачтены")
	return nil
}

// completedPaymentsTotal сумма завершенных платежей, зачисленных на счет
func completedPaymentsTotal(tx *gorm.DB, invoiceID uint) (decimal.Decimal, error) {
	var payments []models.Payment
	if err := tx.Where("invoice_id = ? AND status = ?", invoiceID, models.PaymentCompleted).
		Find(&payments).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total, nil
}

// applyPaymentTx применяет (или отменяет при sign=-1) платеж к счету
func (bs *BillingService) applyPaymentTx(tx *gorm.DB, payment *models.Payment, quote *models.Quote, sign int64) (*models.Invoice, error) {
	var invoice *models.Invoice
	if payment.InvoiceID != nil {
		var inv models.Invoice
		if err := tx.First(&inv, *payment.InvoiceID).Error; err != nil {
			return nil, notFoundOr(err)
		}
		invoice = &inv
	} else {
		found, err := findInvoiceForQuote(tx, quote)
		if err != nil || found == nil {
			return nil, err
		}
		invoice = found
	}
	if invoice.Status == models.InvoiceCancelled {
		return nil, fmt.Errorf("%w: invoice %s is cancelled", ErrConflict, invoice.InvoiceNumber)
	}

	invoice.PaidAmount = invoice.PaidAmount.Add(payment.Amount.Mul(decimal.NewFromInt(sign)))
	if err := bs.settle(invoice); err != nil {
		return nil, err
	}

	if err := tx.Omit("Items", "Client", "Company").Save(invoice).Error; err != nil {
		return nil, err
	}
	payment.InvoiceID = &invoice.ID
	return invoice, nil
}

// CreatePayment регистрирует платеж по предложению.
// Предложение не помечается оплаченным: завершенный платеж зачисляется на связанный счет.
func (bs *BillingService) CreatePayment(ctx context.Context, actor *models.User, in PaymentInput) (*models.Payment, error) {
	if !actor.IsAdmin() && !actor.IsClient() {
		return nil, ErrForbidden
	}

	verr := &ValidationError{}
	if in.QuoteID == 0 {
		verr.Add("quote_id", "is required")
	}
	if !in.Amount.IsPositive() {
		verr.Add("amount", "must be a positive number")
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		verr.Add("payment_method", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	status := in.Status
	switch {
	case actor.IsClient():
		// Платеж клиента подтверждает администратор
		status = models.PaymentPending
	case status == "":
		status = models.PaymentCompleted
	case !status.Valid():
		return nil, NewValidationError("status", "unknown payment status")
	case status == models.PaymentRefunded:
		return nil, NewValidationError("status", "a new payment cannot be refunded")
	}

	var quote models.Quote
	if err := bs.db.WithContext(ctx).First(&quote, in.QuoteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError("quote_id", "quote not found")
		}
		return nil, err
	}
	if actor.IsClient() && quote.ClientID != actor.ID {
		return nil, ErrForbidden
	}

	payment := &models.Payment{
		QuoteID:       quote.ID,
		ClientID:      quote.ClientID,
		CreatedBy:     actor.ID,
		Amount:        in.Amount.Round(2),
		Status:        status,
		PaymentMethod: strings.TrimSpace(in.PaymentMethod),
		Notes:         in.Notes,
	}
	if tid := strings.TrimSpace(in.TransactionID); tid != "" {
		payment.TransactionID = &tid
	}

	var invoice *models.Invoice
	err := bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if status == models.PaymentCompleted {
			now := bs.now()
			payment.PaidAt = &now
			inv, err := bs.applyPaymentTx(tx, payment, &quote, 1)
			if err != nil {
				return err
			}
			invoice = inv
		}
		if err := tx.Create(payment).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: transaction id already recorded", ErrConflict)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	bs.notifyPayment(ctx, actor, payment, &quote, invoice)
	return payment, nil
}

// UpdatePaymentStatus меняет статус платежа; зачисление на счет следует за статусом
func (bs *BillingService) UpdatePaymentStatus(ctx context.Context, actor *models.User, id uint, status models.PaymentStatus) (*models.Payment, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	var payment models.Payment
	if err := bs.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if err := payment.Status.CanTransitionTo(status); err != nil {
		return nil, err
	}
	if payment.Status == status {
		return &payment, nil
	}

	var quote models.Quote
	if err := bs.db.WithContext(ctx).First(&quote, payment.QuoteID).Error; err != nil {
		return nil, notFoundOr(err)
	}

	var invoice *models.Invoice
	err := bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		switch status {
		case models.PaymentCompleted:
			now := bs.now()
			payment.PaidAt = &now
			invoice, err = bs.applyPaymentTx(tx, &payment, &quote, 1)
		case models.PaymentRefunded:
			if payment.InvoiceID != nil {
				invoice, err = bs.applyPaymentTx(tx, &payment, &quote, -1)
			}
		}
		if err != nil {
			return err
		}
		payment.Status = status
		return tx.Save(&payment).Error
	})
	if err != nil {
		return nil, err
	}

	if status == models.PaymentCompleted {
		bs.notifyPayment(ctx, actor, &payment, &quote, invoice)
	}
	return &payment, nil
}

func (bs *BillingService) notifyPayment(ctx context.Context, actor *models.User, payment *models.Payment, quote *models.Quote, invoice *models.Invoice) {
	msg := fmt.Sprintf("Payment of %s %s recorded for quote %s (%s)", payment.Amount.StringFixed(2), bs.cfg.Currency, quote.Reference, payment.Status)
	entity := models.RelatedEntity{ID: payment.ID, Type: models.EntityPayment}
	drafts := bs.effects.AdminDrafts(ctx, uintPtr(actor.ID), models.NotificationPaymentReceived, msg, entity)
	drafts = append(drafts, NotificationDraft{
		RecipientID: quote.ClientID,
		SenderID:    uintPtr(actor.ID),
		Type:        models.NotificationPaymentReceived,
		Message:     msg,
		Entity:      entity,
	})
	bs.effects.Notify(ctx, drafts)
	if invoice != nil && invoice.Status == models.InvoicePaid {
		bs.effects.Alert("Invoice paid", fmt.Sprintf("Invoice %s is fully paid", invoice.InvoiceNumber))
	}
}

// ListPayments возвращает платежи; клиент видит только свои
func (bs *BillingService) ListPayments(ctx context.Context, actor *models.User, f ListFilter) ([]models.Payment, int64, error) {
	query := bs.db.WithContext(ctx).Model(&models.Payment{})
	switch {
	case actor.IsAdmin():
	case actor.IsClient():
		query = query.Where("client_id = ?", actor.ID)
	default:
		return nil, 0, ErrForbidden
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var payments []models.Payment
	err := query.Preload("Quote").Order("created_at DESC, id DESC").
		Scopes(f.paginate).Find(&payments).Error
	return payments, total, err
}

// GetPayment возвращает платеж с проверкой доступа
func (bs *BillingService) GetPayment(ctx context.Context, actor *models.User, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := bs.db.WithContext(ctx).Preload("Quote").First(&payment, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	if !actor.IsAdmin() && !(actor.IsClient() && payment.ClientID == actor.ID) {
		return nil, ErrForbidden
	}
	return &payment, nil
}
