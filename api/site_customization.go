package api

import (
	"errors"
	"fmt"
	"strings"

	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SiteCustomizationRequest struct {
	Content map[string]interface{} `json:"content" binding:"required"`
}

// SiteCustomizationAPI управление разделами контента публичного сайта
type SiteCustomizationAPI struct {
	DB  *gorm.DB
	log *logrus.Logger
}

// NewSiteCustomizationAPI создает новый экземпляр SiteCustomizationAPI
func NewSiteCustomizationAPI(db *gorm.DB, log *logrus.Logger) *SiteCustomizationAPI {
	return &SiteCustomizationAPI{DB: db, log: log}
}

// RegisterSiteCustomizationRoutes регистрирует публичные маршруты чтения и
// маршруты изменения, защищенные цепочкой protected
func (api *SiteCustomizationAPI) RegisterSiteCustomizationRoutes(public *gin.RouterGroup, protected ...gin.HandlerFunc) {
	site := public.Group("/site-customization")
	{
		site.GET("", api.GetSections)
		site.GET("/:key", api.GetSection)
		site.PUT("/:key", append(protected, api.UpsertSection)...)
		site.DELETE("/:key", append(protected, api.DeleteSection)...)
	}
}

func sectionKey(c *gin.Context) (string, bool) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" || len(key) > 100 {
		respondError(c, nil, services.NewValidationError("key", "must be 1-100 characters"))
		return "", false
	}
	return key, true
}

// GetSections возвращает все разделы
func (api *SiteCustomizationAPI) GetSections(c *gin.Context) {
	var sections []models.SiteCustomization
	if err := api.DB.WithContext(c.Request.Context()).Order("key ASC").Find(&sections).Error; err != nil {
		respondError(c, api.log, fmt.Errorf("list site sections: %w", err))
		return
	}
	respondOK(c, sections)
}

// GetSection возвращает раздел по ключу
func (api *SiteCustomizationAPI) GetSection(c *gin.Context) {
	key, ok := sectionKey(c)
	if !ok {
		return
	}
	var section models.SiteCustomization
	if err := api.DB.WithContext(c.Request.Context()).Where("key = ?", key).First(&section).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, api.log, services.ErrNotFound)
			return
		}
		respondError(c, api.log, err)
		return
	}
	respondOK(c, section)
}

// UpsertSection создает или заменяет содержимое раздела
func (api *SiteCustomizationAPI) UpsertSection(c *gin.Context) {
	key, ok := sectionKey(c)
	if !ok {
		return
	}
	var req SiteCustomizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ctx := c.Request.Context()
	actor := currentUser(c)

	section := models.SiteCustomization{Key: key, Content: req.Content, UpdatedByID: &actor.ID}
	err := api.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_by_id", "updated_at"}),
	}).Create(&section).Error
	if err != nil {
		respondError(c, api.log, fmt.Errorf("upsert site section: %w", err))
		return
	}

	var saved models.SiteCustomization
	if err := api.DB.WithContext(ctx).Where("key = ?", key).First(&saved).Error; err != nil {
		respondError(c, api.log, err)
		return
	}
	api.log.WithFields(logrus.Fields{"key": key, "user_id": actor.ID}).Info("Раздел сайта обновлен")
	respondOK(c, saved)
}

// DeleteSection удаляет раздел
func (api *SiteCustomizationAPI) DeleteSection(c *gin.Context) {
	key, ok := sectionKey(c)
	if !ok {
		return
	}
	res := api.DB.WithContext(c.Request.Context()).Where("key = ?", key).Delete(&models.SiteCustomization{})
	if res.Error != nil {
		respondError(c, api.log, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, api.log, services.ErrNotFound)
		return
	}
	respondMessage(c, "Section deleted")
}
