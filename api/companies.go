package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CompanyRequest тело запроса создания/изменения компании
type CompanyRequest struct {
	Name          string `json:"name" binding:"required,max=200"`
	TaxID         string `json:"tax_id"`
	Website       string `json:"website"`
	ContactEmail  string `json:"contact_email" binding:"omitempty,email"`
	ContactPhone  string `json:"contact_phone"`
	ContactPerson string `json:"contact_person"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
	IsActive      *bool  `json:"is_active"`
}

// CompaniesAPI обработчики для работы с компаниями
type CompaniesAPI struct {
	DB  *gorm.DB
	log *logrus.Logger
}

// NewCompaniesAPI создает новый экземпляр CompaniesAPI
func NewCompaniesAPI(db *gorm.DB, log *logrus.Logger) *CompaniesAPI {
	return &CompaniesAPI{DB: db, log: log}
}

// RegisterCompaniesRoutes регистрирует маршруты компаний. Чтение доступно
// любому аутентифицированному пользователю, изменения только администратору.
func (api *CompaniesAPI) RegisterCompaniesRoutes(r *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	companies := r.Group("/companies")
	{
		companies.GET("", api.GetCompanies)
		companies.GET("/:id", api.GetCompany)
		companies.POST("", adminOnly, api.CreateCompany)
		companies.PUT("/:id", adminOnly, api.UpdateCompany)
		companies.DELETE("/:id", adminOnly, api.DeleteCompany)
		companies.PUT("/:id/activate", adminOnly, api.ActivateCompany)
		companies.PUT("/:id/deactivate", adminOnly, api.DeactivateCompany)
	}
}

func (req CompanyRequest) apply(company *models.Company) {
	company.Name = strings.TrimSpace(req.Name)
	company.TaxID = req.TaxID
	company.Website = req.Website
	company.ContactEmail = req.ContactEmail
	company.ContactPhone = req.ContactPhone
	company.ContactPerson = req.ContactPerson
	company.Address = req.Address
	company.City = req.City
	company.PostalCode = req.PostalCode
	company.Country = req.Country
}

// GetCompanies возвращает список компаний
func (api *CompaniesAPI) GetCompanies(c *gin.Context) {
	f := listFilter(c)
	query := api.DB.WithContext(c.Request.Context()).Model(&models.Company{})

	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(city) LIKE ? OR LOWER(contact_email) LIKE ?", like, like, like)
	}
	if v := c.Query("is_active"); v != "" {
		if active, err := strconv.ParseBool(v); err == nil {
			query = query.Where("is_active = ?", active)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, api.log, fmt.Errorf("count companies: %w", err))
		return
	}

	var companies []models.Company
	offset := (f.Page - 1) * f.Limit
	if err := query.Order("name ASC").Offset(offset).Limit(f.Limit).Find(&companies).Error; err != nil {
		respondError(c, api.log, fmt.Errorf("list companies: %w", err))
		return
	}
	respondList(c, companies, f.Page, f.Limit, total)
}

func (api *CompaniesAPI) find(ctx context.Context, id uint) (*models.Company, error) {
	var company models.Company
	if err := api.DB.WithContext(ctx).First(&company, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrNotFound
		}
		return nil, fmt.Errorf("load company: %w", err)
	}
	return &company, nil
}

// nameTaken проверяет уникальность названия среди других компаний
func (api *CompaniesAPI) nameTaken(ctx context.Context, name string, exceptID uint) (bool, error) {
	var count int64
	err := api.DB.WithContext(ctx).Model(&models.Company{}).
		Where("LOWER(name) = ? AND id <> ?", strings.ToLower(name), exceptID).
		Count(&count).Error
	return count > 0, err
}

// GetCompany возвращает компанию по ID
func (api *CompaniesAPI) GetCompany(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	company, err := api.find(c.Request.Context(), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, company)
}

// CreateCompany создает новую компанию
func (api *CompaniesAPI) CreateCompany(c *gin.Context) {
	var req CompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ctx := c.Request.Context()

	taken, err := api.nameTaken(ctx, req.Name, 0)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	if taken {
		respondError(c, api.log, fmt.Errorf("%w: company name already exists", services.ErrConflict))
		return
	}

	company := models.Company{}
	req.apply(&company)
	if err := api.DB.WithContext(ctx).Create(&company).Error; err != nil {
		respondError(c, api.log, fmt.Errorf("create company: %w", err))
		return
	}
	// default:true не дает сохранить false при вставке
	if req.IsActive != nil && !*req.IsActive {
		if err := api.DB.WithContext(ctx).Model(&company).Update("is_active", false).Error; err != nil {
			respondError(c, api.log, err)
			return
		}
	}

	api.log.WithFields(logrus.Fields{"company_id": company.ID, "name": company.Name}).Info("Компания создана")
	respondCreated(c, company)
}

// UpdateCompany обновляет компанию
func (api *CompaniesAPI) UpdateCompany(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req CompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ctx := c.Request.Context()

	company, err := api.find(ctx, id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	taken, err := api.nameTaken(ctx, req.Name, id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	if taken {
		respondError(c, api.log, fmt.Errorf("%w: company name already exists", services.ErrConflict))
		return
	}

	req.apply(company)
	if req.IsActive != nil {
		company.IsActive = *req.IsActive
	}
	if err := api.DB.WithContext(ctx).Select("*").Omit("created_at", "deleted_at").Updates(company).Error; err != nil {
		respondError(c, api.log, fmt.Errorf("update company: %w", err))
		return
	}
	respondOK(c, company)
}

// DeleteCompany удаляет компанию, если на нее не ссылаются клиенты и счета
func (api *CompaniesAPI) DeleteCompany(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := api.find(ctx, id); err != nil {
		respondError(c, api.log, err)
		return
	}

	var users, invoices int64
	if err := api.DB.WithContext(ctx).Model(&models.User{}).Where("company_id = ?", id).Count(&users).Error; err != nil {
		respondError(c, api.log, err)
		return
	}
	if err := api.DB.WithContext(ctx).Model(&models.Invoice{}).Where("company_id = ?", id).Count(&invoices).Error; err != nil {
		respondError(c, api.log, err)
		return
	}
	if users > 0 || invoices > 0 {
		respondError(c, api.log, fmt.Errorf("%w: company has %d users and %d invoices", services.ErrConflict, users, invoices))
		return
	}

	if err := api.DB.WithContext(ctx).Delete(&models.Company{}, id).Error; err != nil {
		respondError(c, api.log, fmt.Errorf("delete company: %w", err))
		return
	}
	respondMessage(c, "Company deleted")
}

// ActivateCompany активирует компанию
func (api *CompaniesAPI) ActivateCompany(c *gin.Context) {
	api.toggleCompanyStatus(c, true)
}

// DeactivateCompany деактивирует компанию
func (api *CompaniesAPI) DeactivateCompany(c *gin.Context) {
	api.toggleCompanyStatus(c, false)
}

func (api *CompaniesAPI) toggleCompanyStatus(c *gin.Context, active bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	company, err := api.find(ctx, id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	if err := api.DB.WithContext(ctx).Model(company).Update("is_active", active).Error; err != nil {
		respondError(c, api.log, fmt.Errorf("toggle company: %w", err))
		return
	}
	company.IsActive = active
	respondOK(c, company)
}
