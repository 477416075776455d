package api

import (
	"encoding/json"
	"mime/multipart"
	"strconv"

	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ServiceTypeRequest принимается как JSON или multipart-форма.
// В форме sub_types передается строкой с JSON-массивом.
type ServiceTypeRequest struct {
	Name        string           `json:"name" form:"name" binding:"required"`
	Description string           `json:"description" form:"description"`
	Category    string           `json:"category" form:"category" binding:"required"`
	BasePrice   decimal.Decimal  `json:"base_price" form:"-"`
	SubTypes    []models.SubType `json:"sub_types" form:"-"`
	IsActive    *bool            `json:"is_active" form:"is_active"`
}

type ProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	SKU         string          `json:"sku"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity" binding:"gte=0"`
	Image       string          `json:"image"`
}

type StockRequest struct {
	Delta int `json:"delta" binding:"required"`
}

type ComponentRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,gte=1"`
}

type EquipmentRequest struct {
	Name        string             `json:"name" binding:"required"`
	Description string             `json:"description"`
	Price       decimal.Decimal    `json:"price"`
	Image       string             `json:"image"`
	Components  []ComponentRequest `json:"components" binding:"dive"`
}

// CatalogAPI обработчики каталога: типы услуг, товары, комплекты оборудования
type CatalogAPI struct {
	catalog *services.CatalogService
	uploads *services.UploadService
	log     *logrus.Logger
}

// NewCatalogAPI создает новый экземпляр CatalogAPI
func NewCatalogAPI(catalog *services.CatalogService, uploads *services.UploadService, log *logrus.Logger) *CatalogAPI {
	return &CatalogAPI{catalog: catalog, uploads: uploads, log: log}
}

// RegisterCatalogRoutes регистрирует маршруты каталога
func (api *CatalogAPI) RegisterCatalogRoutes(r *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	serviceTypes := r.Group("/service-types")
	{
		serviceTypes.GET("", api.GetServiceTypes)
		serviceTypes.GET("/:id", api.GetServiceType)
		serviceTypes.POST("", adminOnly, api.CreateServiceType)
		serviceTypes.PUT("/:id", adminOnly, api.UpdateServiceType)
		serviceTypes.DELETE("/:id", adminOnly, api.DeleteServiceType)
	}

	products := r.Group("/products")
	{
		products.GET("", api.GetProducts)
		products.GET("/:id", api.GetProduct)
		products.POST("", adminOnly, api.CreateProduct)
		products.PUT("/:id", adminOnly, api.UpdateProduct)
		products.PATCH("/:id/stock", adminOnly, api.AdjustStock)
		products.DELETE("/:id", adminOnly, api.DeleteProduct)
	}

	equipments := r.Group("/equipments")
	{
		equipments.GET("", api.GetEquipments)
		equipments.GET("/:id", api.GetEquipment)
		equipments.POST("", adminOnly, api.CreateEquipment)
		equipments.PUT("/:id", adminOnly, api.UpdateEquipment)
		equipments.DELETE("/:id", adminOnly, api.DeleteEquipment)
	}
}

// bindServiceType разбирает тело и сохраняет приложенные изображения
func (api *CatalogAPI) bindServiceType(c *gin.Context) (*ServiceTypeRequest, []models.Attachment, bool) {
	var req ServiceTypeRequest
	if !isMultipart(c) {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return nil, nil, false
		}
		return &req, nil, true
	}

	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, err)
		return nil, nil, false
	}
	verr := &services.ValidationError{}
	if raw := c.PostForm("base_price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			verr.Add("base_price", "must be a number")
		}
		req.BasePrice = price
	}
	if raw := c.PostForm("sub_types"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.SubTypes); err != nil {
			verr.Add("sub_types", "must be a JSON array")
		}
	}
	if err := verr.OrNil(); err != nil {
		respondError(c, api.log, err)
		return nil, nil, false
	}

	images, err := api.uploads.SaveAll(services.UploadServiceTypes, formFiles(c, "images"))
	if err != nil {
		respondError(c, api.log, err)
		return nil, nil, false
	}
	return &req, images, true
}

// formFiles возвращает файлы multipart-поля или nil
func formFiles(c *gin.Context, field string) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	return form.File[field]
}

func attachmentURLs(attachments []models.Attachment) []string {
	urls := make([]string, 0, len(attachments))
	for _, a := range attachments {
		urls = append(urls, a.URL)
	}
	return urls
}

func (req *ServiceTypeRequest) input() services.ServiceTypeInput {
	return services.ServiceTypeInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		BasePrice:   req.BasePrice,
		SubTypes:    req.SubTypes,
		IsActive:    req.IsActive,
	}
}

// GetServiceTypes возвращает типы услуг (?category=)
func (api *CatalogAPI) GetServiceTypes(c *gin.Context) {
	f := listFilter(c)
	items, total, err := api.catalog.ListServiceTypes(c.Request.Context(), currentUser(c), c.Query("category"), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, f.Page, f.Limit, total)
}

// GetServiceType возвращает тип услуги
func (api *CatalogAPI) GetServiceType(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	st, err := api.catalog.GetServiceType(c.Request.Context(), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, st)
}

// CreateServiceType создает тип услуги
func (api *CatalogAPI) CreateServiceType(c *gin.Context) {
	req, images, ok := api.bindServiceType(c)
	if !ok {
		return
	}
	st, err := api.catalog.CreateServiceType(c.Request.Context(), req.input(), attachmentURLs(images))
	if err != nil {
		api.uploads.RemoveAll(images)
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, st)
}

// UpdateServiceType изменяет тип услуги
func (api *CatalogAPI) UpdateServiceType(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, images, ok := api.bindServiceType(c)
	if !ok {
		return
	}
	st, err := api.catalog.UpdateServiceType(c.Request.Context(), id, req.input(), attachmentURLs(images))
	if err != nil {
		api.uploads.RemoveAll(images)
		respondError(c, api.log, err)
		return
	}
	respondOK(c, st)
}

// DeleteServiceType удаляет тип услуги
func (api *CatalogAPI) DeleteServiceType(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := api.catalog.DeleteServiceType(c.Request.Context(), id); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Service type deleted")
}

func (req ProductRequest) input() services.ProductInput {
	return services.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		SKU:         req.SKU,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Image:       req.Image,
	}
}

// GetProducts возвращает товары (?in_stock=true)
func (api *CatalogAPI) GetProducts(c *gin.Context) {
	f := listFilter(c)
	inStock, _ := strconv.ParseBool(c.Query("in_stock"))
	items, total, err := api.catalog.ListProducts(c.Request.Context(), inStock, f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, f.Page, f.Limit, total)
}

// GetProduct возвращает товар
func (api *CatalogAPI) GetProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := api.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, p)
}

// CreateProduct создает товар
func (api *CatalogAPI) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	p, err := api.catalog.CreateProduct(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, p)
}

// UpdateProduct изменяет товар
func (api *CatalogAPI) UpdateProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	p, err := api.catalog.UpdateProduct(c.Request.Context(), id, req.input())
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, p)
}

// AdjustStock изменяет остаток товара на delta
func (api *CatalogAPI) AdjustStock(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	p, err := api.catalog.AdjustStock(c.Request.Context(), id, req.Delta)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, p)
}

// DeleteProduct удаляет товар
func (api *CatalogAPI) DeleteProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := api.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Product deleted")
}

func (req EquipmentRequest) input() services.EquipmentInput {
	components := make([]services.ComponentInput, 0, len(req.Components))
	for _, comp := range req.Components {
		components = append(components, services.ComponentInput{ProductID: comp.ProductID, Quantity: comp.Quantity})
	}
	return services.EquipmentInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Image:       req.Image,
		Components:  components,
	}
}

// GetEquipments возвращает комплекты оборудования
func (api *CatalogAPI) GetEquipments(c *gin.Context) {
	f := listFilter(c)
	items, total, err := api.catalog.ListEquipments(c.Request.Context(), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, f.Page, f.Limit, total)
}

// GetEquipment возвращает комплект с составом и стоимостью компонентов
func (api *CatalogAPI) GetEquipment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	e, err := api.catalog.GetEquipment(c.Request.Context(), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, e)
}

// CreateEquipment создает комплект
func (api *CatalogAPI) CreateEquipment(c *gin.Context) {
	var req EquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	e, err := api.catalog.CreateEquipment(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, e)
}

// UpdateEquipment изменяет комплект
func (api *CatalogAPI) UpdateEquipment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req EquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	e, err := api.catalog.UpdateEquipment(c.Request.Context(), id, req.input())
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, e)
}

// DeleteEquipment удаляет комплект
func (api *CatalogAPI) DeleteEquipment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := api.catalog.DeleteEquipment(c.Request.Context(), id); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Equipment deleted")
}
