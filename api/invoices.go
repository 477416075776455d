package api

import (
	"time"

	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type InvoiceCreateRequest struct {
	ClientID        uint                        `json:"client_id" binding:"required"`
	CompanyID       *uint                       `json:"company_id" binding:"required"`
	DueDate         string                      `json:"due_date" binding:"required"`
	Items           []services.InvoiceItemInput `json:"items" binding:"required"`
	Notes           string                      `json:"notes"`
	RelatedQuotes   []uint                      `json:"related_quotes"`
	RelatedMissions []uint                      `json:"related_missions"`
}

type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// InvoicesAPI обработчики счетов
type InvoicesAPI struct {
	billing *services.BillingService
	pdf     *services.PDFService
	export  *services.ExportService
	log     *logrus.Logger
}

// NewInvoicesAPI создает новый экземпляр InvoicesAPI
func NewInvoicesAPI(billing *services.BillingService, pdf *services.PDFService, export *services.ExportService, log *logrus.Logger) *InvoicesAPI {
	return &InvoicesAPI{billing: billing, pdf: pdf, export: export, log: log}
}

// RegisterInvoicesRoutes регистрирует маршруты /api/invoices
func (api *InvoicesAPI) RegisterInvoicesRoutes(r *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	invoices := r.Group("/invoices")
	{
		invoices.GET("", api.GetInvoices)
		invoices.GET("/export", adminOnly, api.ExportInvoices)
		invoices.POST("", adminOnly, api.CreateInvoice)
		invoices.GET("/:id", api.GetInvoice)
		invoices.PATCH("/:id/status", adminOnly, api.UpdateInvoiceStatus)
		invoices.GET("/:id/pdf", api.InvoicePDF)
	}
}

// GetInvoices возвращает счета; клиент видит только свои
func (api *InvoicesAPI) GetInvoices(c *gin.Context) {
	f := listFilter(c)
	items, total, err := api.billing.ListInvoices(c.Request.Context(), currentUser(c), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, f.Page, f.Limit, total)
}

// GetInvoice возвращает счет
func (api *InvoicesAPI) GetInvoice(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	invoice, err := api.billing.GetInvoice(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, invoice)
}

// CreateInvoice создает счет вручную
func (api *InvoicesAPI) CreateInvoice(c *gin.Context) {
	var req InvoiceCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		respondError(c, api.log, services.NewValidationError("due_date", "must be a date"))
		return
	}
	invoice, err := api.billing.CreateInvoice(c.Request.Context(), currentUser(c), services.InvoiceInput{
		ClientID:        req.ClientID,
		CompanyID:       req.CompanyID,
		DueDate:         dueDate,
		Items:           req.Items,
		Notes:           req.Notes,
		RelatedQuotes:   req.RelatedQuotes,
		RelatedMissions: req.RelatedMissions,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, invoice)
}

// UpdateInvoiceStatus меняет статус счета (оплачен, отменен)
func (api *InvoicesAPI) UpdateInvoiceStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	invoice, err := api.billing.UpdateInvoiceStatus(c.Request.Context(), currentUser(c), id, models.InvoiceStatus(req.Status))
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, invoice)
}

// InvoicePDF отдает счет в формате PDF
func (api *InvoicesAPI) InvoicePDF(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	invoice, err := api.billing.GetInvoice(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	data, err := api.pdf.InvoicePDF(invoice)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	sendFile(c, "application/pdf", invoice.InvoiceNumber+".pdf", data)
}

// ExportInvoices выгружает счета в Excel
func (api *InvoicesAPI) ExportInvoices(c *gin.Context) {
	f := listFilter(c)
	f.Page, f.Limit = 1, 0
	invoices, _, err := api.billing.ListInvoices(c.Request.Context(), currentUser(c), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	data, err := api.export.Invoices(invoices)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	filename := "invoices_" + time.Now().Format("20060102_150405") + ".xlsx"
	sendFile(c, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename, data)
}
