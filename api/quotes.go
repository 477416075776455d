package api

import (
	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type QuoteCreateRequest struct {
	Title        string                    `json:"title"`
	ClientID     uint                      `json:"client_id" binding:"required"`
	TechnicianID *uint                     `json:"technician_id"`
	RequestID    *uint                     `json:"request_id"`
	Items        []services.QuoteItemInput `json:"items" binding:"required"`
	TaxRate      *decimal.Decimal          `json:"tax_rate"`
	ValidUntil   string                    `json:"valid_until"`
	Notes        string                    `json:"notes"`
	Terms        string                    `json:"terms"`
}

type QuoteUpdateRequest struct {
	Title        *string                   `json:"title"`
	TechnicianID *uint                     `json:"technician_id"`
	Items        []services.QuoteItemInput `json:"items"`
	TaxRate      *decimal.Decimal          `json:"tax_rate"`
	ValidUntil   *string                   `json:"valid_until"`
	Notes        *string                   `json:"notes"`
	Terms        *string                   `json:"terms"`
	Status       *string                   `json:"status"`
}

type QuoteResponseRequest struct {
	Response string `json:"response" binding:"required,oneof=accept reject accepted rejected"`
	Comments string `json:"comments"`
}

// QuotesAPI обработчики коммерческих предложений
type QuotesAPI struct {
	quotes *services.QuoteService
	pdf    *services.PDFService
	log    *logrus.Logger
}

// NewQuotesAPI создает новый экземпляр QuotesAPI
func NewQuotesAPI(quotes *services.QuoteService, pdf *services.PDFService, log *logrus.Logger) *QuotesAPI {
	return &QuotesAPI{quotes: quotes, pdf: pdf, log: log}
}

// RegisterQuotesRoutes регистрирует маршруты /api/quotes
func (api *QuotesAPI) RegisterQuotesRoutes(r *gin.RouterGroup, staff, clientOnly gin.HandlerFunc) {
	quotes := r.Group("/quotes")
	{
		quotes.GET("", api.GetQuotes)
		quotes.POST("", staff, api.CreateQuote)
		quotes.GET("/:id", api.GetQuote)
		quotes.PUT("/:id", staff, api.UpdateQuote)
		quotes.DELETE("/:id", staff, api.DeleteQuote)
		quotes.POST("/:id/send", staff, api.SendQuote)
		quotes.POST("/:id/respond", clientOnly, api.RespondQuote)
		quotes.GET("/:id/pdf", api.QuotePDF)
	}
}

// GetQuotes возвращает предложения с учетом роли
func (api *QuotesAPI) GetQuotes(c *gin.Context) {
	f := listFilter(c)
	items, total, err := api.quotes.List(c.Request.Context(), currentUser(c), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, f.Page, f.Limit, total)
}

// GetQuote возвращает предложение
func (api *QuotesAPI) GetQuote(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	quote, err := api.quotes.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, quote)
}

// CreateQuote создает предложение
func (api *QuotesAPI) CreateQuote(c *gin.Context) {
	var req QuoteCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	validUntil, err := parseDate(req.ValidUntil)
	if err != nil {
		respondError(c, api.log, services.NewValidationError("valid_until", "must be a date"))
		return
	}
	quote, err := api.quotes.Create(c.Request.Context(), currentUser(c), services.QuoteInput{
		Title:        req.Title,
		ClientID:     req.ClientID,
		TechnicianID: req.TechnicianID,
		RequestID:    req.RequestID,
		Items:        req.Items,
		TaxRate:      req.TaxRate,
		ValidUntil:   validUntil,
		Notes:        req.Notes,
		Terms:        req.Terms,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, quote)
}

// UpdateQuote изменяет предложение; смена статуса проверяется по таблице переходов
func (api *QuotesAPI) UpdateQuote(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req QuoteUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	in := services.QuoteUpdateInput{
		Title:        req.Title,
		TechnicianID: req.TechnicianID,
		Items:        req.Items,
		TaxRate:      req.TaxRate,
		Notes:        req.Notes,
		Terms:        req.Terms,
	}
	if req.ValidUntil != nil {
		validUntil, err := parseDate(*req.ValidUntil)
		if err != nil {
			respondError(c, api.log, services.NewValidationError("valid_until", "must be a date"))
			return
		}
		in.ValidUntil = validUntil
	}
	if req.Status != nil {
		status := models.QuoteStatus(*req.Status)
		in.Status = &status
	}

	quote, err := api.quotes.Update(c.Request.Context(), currentUser(c), id, in)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, quote)
}

// DeleteQuote удаляет предложение
func (api *QuotesAPI) DeleteQuote(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := api.quotes.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Quote deleted")
}

// SendQuote отправляет черновик клиенту
func (api *QuotesAPI) SendQuote(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	quote, err := api.quotes.Send(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, quote)
}

// RespondQuote принимает или отклоняет предложение от имени клиента-владельца
func (api *QuotesAPI) RespondQuote(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req QuoteResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	accept := req.Response == "accept" || req.Response == "accepted"
	quote, err := api.quotes.Respond(c.Request.Context(), currentUser(c), id, accept, req.Comments)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, quote)
}

// QuotePDF отдает предложение в формате PDF
func (api *QuotesAPI) QuotePDF(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	quote, err := api.quotes.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	data, err := api.pdf.QuotePDF(quote)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	sendFile(c, "application/pdf", quote.Reference+".pdf", data)
}
