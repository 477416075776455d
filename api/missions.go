package api

import (
	"strconv"
	"time"

	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type MissionCreateRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	ServiceTypeID uint   `json:"service_type_id" binding:"required"`
	ClientID      uint   `json:"client_id" binding:"required"`
	TechnicianID  uint   `json:"technician_id" binding:"required"`
	QuoteID       uint   `json:"quote_id" binding:"required"`
	ScheduledDate string `json:"scheduled_date" binding:"required"`
	Address       string `json:"address" binding:"required"`
	Priority      string `json:"priority"`
	Status        string `json:"status"`
	Notes         string `json:"notes"`
}

type MissionUpdateRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	TechnicianID  *uint   `json:"technician_id"`
	ScheduledDate *string `json:"scheduled_date"`
	Address       *string `json:"address"`
	Priority      *string `json:"priority"`
	Notes         *string `json:"notes"`
	Status        *string `json:"status"`
}

// MissionsAPI обработчики миссий
type MissionsAPI struct {
	missions *services.MissionService
	export   *services.ExportService
	log      *logrus.Logger
}

// NewMissionsAPI создает новый экземпляр MissionsAPI
func NewMissionsAPI(missions *services.MissionService, export *services.ExportService, log *logrus.Logger) *MissionsAPI {
	return &MissionsAPI{missions: missions, export: export, log: log}
}

// RegisterMissionsRoutes регистрирует маршруты /api/missions
func (api *MissionsAPI) RegisterMissionsRoutes(r *gin.RouterGroup, adminOnly, staff gin.HandlerFunc) {
	missions := r.Group("/missions")
	{
		missions.GET("", api.GetMissions)
		missions.GET("/export", staff, api.ExportMissions)
		missions.POST("", adminOnly, api.CreateMission)
		missions.GET("/:id", api.GetMission)
		missions.PUT("/:id", staff, api.UpdateMission)
		missions.DELETE("/:id", adminOnly, api.DeleteMission)
	}
}

// GetMissions возвращает миссии с учетом роли
func (api *MissionsAPI) GetMissions(c *gin.Context) {
	f := listFilter(c)
	items, total, err := api.missions.List(c.Request.Context(), currentUser(c), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, f.Page, f.Limit, total)
}

// GetMission возвращает миссию
func (api *MissionsAPI) GetMission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	mission, err := api.missions.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, mission)
}

// CreateMission создает миссию по принятому предложению
func (api *MissionsAPI) CreateMission(c *gin.Context) {
	var req MissionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	scheduled, err := parseDate(req.ScheduledDate)
	if err != nil {
		respondError(c, api.log, services.NewValidationError("scheduled_date", "must be a date"))
		return
	}
	mission, err := api.missions.Create(c.Request.Context(), currentUser(c), services.MissionInput{
		Title:         req.Title,
		Description:   req.Description,
		ServiceTypeID: req.ServiceTypeID,
		ClientID:      req.ClientID,
		TechnicianID:  req.TechnicianID,
		QuoteID:       req.QuoteID,
		ScheduledDate: scheduled,
		Address:       req.Address,
		Priority:      req.Priority,
		Status:        models.MissionStatus(req.Status),
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, mission)
}

// UpdateMission изменяет миссию; переход в completed выставляет счет
func (api *MissionsAPI) UpdateMission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req MissionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	in := services.MissionUpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		TechnicianID: req.TechnicianID,
		Address:      req.Address,
		Priority:     req.Priority,
		Notes:        req.Notes,
	}
	if req.ScheduledDate != nil {
		scheduled, err := parseDate(*req.ScheduledDate)
		if err != nil {
			respondError(c, api.log, services.NewValidationError("scheduled_date", "must be a date"))
			return
		}
		in.ScheduledDate = scheduled
	}
	if req.Status != nil {
		status := models.MissionStatus(*req.Status)
		in.Status = &status
	}

	mission, err := api.missions.Update(c.Request.Context(), currentUser(c), id, in)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, mission)
}

// DeleteMission удаляет миссию (?force=true при наличии отчетов или счета)
func (api *MissionsAPI) DeleteMission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(c.Query("force"))
	if err := api.missions.Delete(c.Request.Context(), currentUser(c), id, force); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Mission deleted")
}

// ExportMissions выгружает миссии в Excel с учетом фильтров
func (api *MissionsAPI) ExportMissions(c *gin.Context) {
	f := listFilter(c)
	f.Page, f.Limit = 1, 0
	missions, _, err := api.missions.List(c.Request.Context(), currentUser(c), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	data, err := api.export.Missions(missions)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	filename := "missions_" + time.Now().Format("20060102_150405") + ".xlsx"
	sendFile(c, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename, data)
}
