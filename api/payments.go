package api

import (
	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type PaymentCreateRequest struct {
	QuoteID       uint            `json:"quote_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" binding:"required"`
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Notes         string          `json:"notes"`
}

// PaymentsAPI обработчики платежей
type PaymentsAPI struct {
	billing *services.BillingService
	log     *logrus.Logger
}

// NewPaymentsAPI создает новый экземпляр PaymentsAPI
func NewPaymentsAPI(billing *services.BillingService, log *logrus.Logger) *PaymentsAPI {
	return &PaymentsAPI{billing: billing, log: log}
}

// RegisterPaymentsRoutes регистрирует маршруты /api/payments
func (api *PaymentsAPI) RegisterPaymentsRoutes(r *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	payments := r.Group("/payments")
	{
		payments.GET("", api.GetPayments)
		payments.POST("", api.CreatePayment)
		payments.GET("/:id", api.GetPayment)
		payments.PATCH("/:id/status", adminOnly, api.UpdatePaymentStatus)
	}
}

// GetPayments возвращает платежи; клиент видит только свои
func (api *PaymentsAPI) GetPayments(c *gin.Context) {
	f := listFilter(c)
	items, total, err := api.billing.ListPayments(c.Request.Context(), currentUser(c), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, f.Page, f.Limit, total)
}

// GetPayment возвращает платеж
func (api *PaymentsAPI) GetPayment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	payment, err := api.billing.GetPayment(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, payment)
}

// CreatePayment регистрирует платеж по предложению
func (api *PaymentsAPI) CreatePayment(c *gin.Context) {
	var req PaymentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	payment, err := api.billing.CreatePayment(c.Request.Context(), currentUser(c), services.PaymentInput{
		QuoteID:       req.QuoteID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
		Status:        models.PaymentStatus(req.Status),
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, payment)
}

// UpdatePaymentStatus подтверждает, отклоняет или возвращает платеж
func (api *PaymentsAPI) UpdatePaymentStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	payment, err := api.billing.UpdatePaymentStatus(c.Request.Context(), currentUser(c), id, models.PaymentStatus(req.Status))
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, payment)
}
