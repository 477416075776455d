package api

import (
	"strconv"

	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestCreateRequest поля заявки; принимается как JSON или multipart-форма с файлами attachments
type RequestCreateRequest struct {
	Title         string `json:"title" form:"title"`
	Description   string `json:"description" form:"description" binding:"required"`
	Address       string `json:"address" form:"address"`
	Priority      string `json:"priority" form:"priority"`
	ServiceTypeID *uint  `json:"service_type_id" form:"service_type_id"`
	PreferredDate string `json:"preferred_date" form:"preferred_date"`
	ClientID      uint   `json:"client_id" form:"client_id"`
}

type RequestUpdateRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Address       *string `json:"address"`
	Priority      *string `json:"priority"`
	ServiceTypeID *uint   `json:"service_type_id"`
	PreferredDate *string `json:"preferred_date"`
	Status        *string `json:"status"`
}

type AssignTechnicianRequest struct {
	TechnicianID uint `json:"technician_id" binding:"required"`
}

// RequestsAPI обработчики заявок клиентов
type RequestsAPI struct {
	requests *services.RequestService
	uploads  *services.UploadService
	log      *logrus.Logger
}

// NewRequestsAPI создает новый экземпляр RequestsAPI
func NewRequestsAPI(requests *services.RequestService, uploads *services.UploadService, log *logrus.Logger) *RequestsAPI {
	return &RequestsAPI{requests: requests, uploads: uploads, log: log}
}

// RegisterRequestsRoutes регистрирует маршруты /api/requests
func (api *RequestsAPI) RegisterRequestsRoutes(r *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	requests := r.Group("/requests")
	{
		requests.GET("", api.GetRequests)
		requests.POST("", api.CreateRequest)
		requests.GET("/:id", api.GetRequest)
		requests.PUT("/:id", api.UpdateRequest)
		requests.DELETE("/:id", api.DeleteRequest)
		requests.PUT("/:id/assign", adminOnly, api.AssignTechnician)
	}
}

// GetRequests возвращает заявки с учетом роли
func (api *RequestsAPI) GetRequests(c *gin.Context) {
	f := listFilter(c)
	items, total, err := api.requests.List(c.Request.Context(), currentUser(c), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, f.Page, f.Limit, total)
}

// GetRequest возвращает заявку
func (api *RequestsAPI) GetRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	request, err := api.requests.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, request)
}

// CreateRequest создает заявку с вложениями
func (api *RequestsAPI) CreateRequest(c *gin.Context) {
	var req RequestCreateRequest
	var attachments []models.Attachment

	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			respondBindError(c, err)
			return
		}
		saved, err := api.uploads.SaveAll(services.UploadRequests, formFiles(c, "attachments"))
		if err != nil {
			respondError(c, api.log, err)
			return
		}
		attachments = saved
	} else if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	preferred, err := parseDate(req.PreferredDate)
	if err != nil {
		api.uploads.RemoveAll(attachments)
		respondError(c, api.log, services.NewValidationError("preferred_date", "must be a date"))
		return
	}

	request, err := api.requests.Create(c.Request.Context(), currentUser(c), services.RequestInput{
		Title:         req.Title,
		Description:   req.Description,
		Address:       req.Address,
		Priority:      req.Priority,
		ServiceTypeID: req.ServiceTypeID,
		PreferredDate: preferred,
		ClientID:      req.ClientID,
	}, attachments)
	if err != nil {
		api.uploads.RemoveAll(attachments)
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, request)
}

// UpdateRequest изменяет заявку или ее статус
func (api *RequestsAPI) UpdateRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req RequestUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	in := services.RequestUpdateInput{
		Title:         req.Title,
		Description:   req.Description,
		Address:       req.Address,
		Priority:      req.Priority,
		ServiceTypeID: req.ServiceTypeID,
	}
	if req.PreferredDate != nil {
		preferred, err := parseDate(*req.PreferredDate)
		if err != nil {
			respondError(c, api.log, services.NewValidationError("preferred_date", "must be a date"))
			return
		}
		in.PreferredDate = preferred
	}
	if req.Status != nil {
		status := models.RequestStatus(*req.Status)
		in.Status = &status
	}

	request, err := api.requests.Update(c.Request.Context(), currentUser(c), id, in)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, request)
}

// AssignTechnician назначает техника на заявку
func (api *RequestsAPI) AssignTechnician(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req AssignTechnicianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	request, err := api.requests.AssignTechnician(c.Request.Context(), currentUser(c), id, req.TechnicianID)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, request)
}

// DeleteRequest удаляет заявку
func (api *RequestsAPI) DeleteRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := api.requests.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Request "+strconv.FormatUint(uint64(id), 10)+" deleted")
}
