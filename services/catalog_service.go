package services

import (
	"context"
	"fmt"
	"strings"

	"backend_fieldservice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LowStockThreshold остаток, при достижении которого администраторы получают оповещение
const LowStockThreshold = 3

// ServiceTypeInput данные типа услуги
type ServiceTypeInput struct {
	Name        string
	Description string
	Category    string
	BasePrice   decimal.Decimal
	SubTypes    []models.SubType
	IsActive    *bool
}

// ProductInput данные товара
type ProductInput struct {
	Name        string
	Description string
	SKU         string
	Price       decimal.Decimal
	Quantity    int
	Image       string
}

// ComponentInput позиция комплекта
type ComponentInput struct {
	ProductID uint
	Quantity  int
}

// EquipmentInput данные комплекта оборудования
type EquipmentInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Image       string
	Components  []ComponentInput
}

// CatalogService управляет типами услуг, товарами и комплектами
type CatalogService struct {
	db      *gorm.DB
	effects *SideEffects
	log     *logrus.Logger
}

// NewCatalogService создает новый экземпляр CatalogService
func NewCatalogService(db *gorm.DB, effects *SideEffects, log *logrus.Logger) *CatalogService {
	return &CatalogService{db: db, effects: effects, log: log}
}

func (in ServiceTypeInput) validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		verr.Add("name", "is required")
	}
	if !models.ValidServiceCategory(in.Category) {
		verr.Add("category", "must be one of installation, maintenance, repair, diagnostic, emergency")
	}
	if in.BasePrice.IsNegative() {
		verr.Add("base_price", "must not be negative")
	}
	for i, st := range in.SubTypes {
		if strings.TrimSpace(st.Name) == "" {
			verr.Add(fmt.Sprintf("sub_types[%d].name", i), "is required")
		}
	}
	return verr.OrNil()
}

// ListServiceTypes возвращает типы услуг; неактивные видны только администраторам
func (s *CatalogService) ListServiceTypes(ctx context.Context, actor *models.User, category string, f ListFilter) ([]models.ServiceType, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.ServiceType{})
	if actor == nil || !actor.IsAdmin() {
		query = query.Where("is_active = ?", true)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count service types: %w", err)
	}
	var items []models.ServiceType
	if err := query.Order("name ASC").Scopes(f.paginate).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("list service types: %w", err)
	}
	return items, total, nil
}

// GetServiceType возвращает тип услуги
func (s *CatalogService) GetServiceType(ctx context.Context, id uint) (*models.ServiceType, error) {
	var st models.ServiceType
	if err := s.db.WithContext(ctx).First(&st, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &st, nil
}

// CreateServiceType создает тип услуги с загруженными изображениями
func (s *CatalogService) CreateServiceType(ctx context.Context, in ServiceTypeInput, images []string) (*models.ServiceType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	st := models.ServiceType{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Category:    in.Category,
		BasePrice:   in.BasePrice.Round(2),
		Images:      images,
		SubTypes:    in.SubTypes,
		IsActive:    true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&st).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: service type name already exists", ErrConflict)
			}
			return fmt.Errorf("create service type: %w", err)
		}
		if in.IsActive != nil && !*in.IsActive {
			st.IsActive = false
			return tx.Model(&st).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateServiceType изменяет тип услуги; новые изображения добавляются к существующим
func (s *CatalogService) UpdateServiceType(ctx context.Context, id uint, in ServiceTypeInput, newImages []string) (*models.ServiceType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	st, err := s.GetServiceType(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Name = strings.TrimSpace(in.Name)
	st.Description = in.Description
	st.Category = in.Category
	st.BasePrice = in.BasePrice.Round(2)
	if in.SubTypes != nil {
		st.SubTypes = in.SubTypes
	}
	st.Images = append(st.Images, newImages...)
	if in.IsActive != nil {
		st.IsActive = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Save(st).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: service type name already exists", ErrConflict)
		}
		return nil, fmt.Errorf("update service type: %w", err)
	}
	return st, nil
}

// DeleteServiceType удаляет тип услуги, если на него не ссылаются заявки
func (s *CatalogService) DeleteServiceType(ctx context.Context, id uint) error {
	if _, err := s.GetServiceType(ctx, id); err != nil {
		return err
	}
	var used int64
	if err := s.db.WithContext(ctx).Model(&models.Request{}).Where("service_type_id = ?", id).Count(&used).Error; err != nil {
		return err
	}
	if used > 0 {
		return fmt.Errorf("%w: service type is used by %d requests", ErrConflict, used)
	}
	return s.db.WithContext(ctx).Delete(&models.ServiceType{}, id).Error
}

func (in ProductInput) validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		verr.Add("name", "is required")
	}
	if in.Price.IsNegative() {
		verr.Add("price", "must not be negative")
	}
	if in.Quantity < 0 {
		verr.Add("quantity", "must not be negative")
	}
	return verr.OrNil()
}

// ListProducts возвращает товары; inStock оставляет только товары с остатком
func (s *CatalogService) ListProducts(ctx context.Context, inStock bool, f ListFilter) ([]models.Product, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Product{})
	if inStock {
		query = query.Where("quantity > 0")
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	var products []models.Product
	if err := query.Order("name ASC").Scopes(f.paginate).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// GetProduct возвращает товар
func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &p, nil
}

// CreateProduct создает товар
func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := models.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		SKU:         in.SKU,
		Price:       in.Price.Round(2),
		Quantity:    in.Quantity,
		Image:       in.Image,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &p, nil
}

// UpdateProduct изменяет товар
func (s *CatalogService) UpdateProduct(ctx context.Context, id uint, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.SKU = in.SKU
	p.Price = in.Price.Round(2)
	p.Quantity = in.Quantity
	p.Image = in.Image
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// AdjustStock изменяет остаток на delta. Остаток не может стать отрицательным.
func (s *CatalogService) AdjustStock(ctx context.Context, id uint, delta int) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			return notFoundOr(err)
		}
		if product.Quantity+delta < 0 {
			return NewValidationError("delta", fmt.Sprintf("stock cannot go below zero (current %d)", product.Quantity))
		}
		res := tx.Model(&models.Product{}).
			Where("id = ? AND quantity + ? >= 0", id, delta).
			Update("quantity", gorm.Expr("quantity + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewValidationError("delta", "stock cannot go below zero")
		}
		return tx.First(&product, id).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"product_id": id, "delta": delta, "quantity": product.Quantity}).Info("Остаток товара изменен")
	if delta < 0 && product.Quantity <= LowStockThreshold {
		s.effects.Alert("Низкий остаток",
			fmt.Sprintf("%s: %d шт. (минимум: %d шт.)", product.Name, product.Quantity, LowStockThreshold))
	}
	return &product, nil
}

// DeleteProduct удаляет товар, если он не входит в комплекты
func (s *CatalogService) DeleteProduct(ctx context.Context, id uint) error {
	if _, err := s.GetProduct(ctx, id); err != nil {
		return err
	}
	var used int64
	if err := s.db.WithContext(ctx).Model(&models.EquipmentComponent{}).Where("product_id = ?", id).Count(&used).Error; err != nil {
		return err
	}
	if used > 0 {
		return fmt.Errorf("%w: product is a component of %d equipment kits", ErrConflict, used)
	}
	return s.db.WithContext(ctx).Delete(&models.Product{}, id).Error
}

func (s *CatalogService) validateEquipment(tx *gorm.DB, in EquipmentInput) error {
	verr := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		verr.Add("name", "is required")
	}
	if in.Price.IsNegative() {
		verr.Add("price", "must not be negative")
	}
	ids := make([]uint, 0, len(in.Components))
	for i, c := range in.Components {
		if c.Quantity < 1 {
			verr.Add(fmt.Sprintf("components[%d].quantity", i), "must be at least 1")
		}
		ids = append(ids, c.ProductID)
	}
	if len(ids) > 0 {
		var found []uint
		if err := tx.Model(&models.Product{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
			return err
		}
		exists := make(map[uint]bool, len(found))
		for _, id := range found {
			exists[id] = true
		}
		for i, c := range in.Components {
			if !exists[c.ProductID] {
				verr.Add(fmt.Sprintf("components[%d].product_id", i), "product does not exist")
			}
		}
	}
	return verr.OrNil()
}

func buildComponents(in []ComponentInput) []models.EquipmentComponent {
	components := make([]models.EquipmentComponent, 0, len(in))
	for i, c := range in {
		components = append(components, models.EquipmentComponent{
			ProductID: c.ProductID,
			Quantity:  c.Quantity,
			Position:  i,
		})
	}
	return components
}

func (s *CatalogService) loadEquipment(tx *gorm.DB, id uint) (*models.Equipment, error) {
	var e models.Equipment
	err := tx.Preload("Components", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Preload("Components.Product").First(&e, id).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	e.CalculateComponentsTotal()
	return &e, nil
}

// ListEquipments возвращает комплекты со стоимостью компонентов
func (s *CatalogService) ListEquipments(ctx context.Context, f ListFilter) ([]models.Equipment, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Equipment{})
	if f.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count equipments: %w", err)
	}
	var items []models.Equipment
	err := query.Preload("Components", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Preload("Components.Product").Order("name ASC").Scopes(f.paginate).Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list equipments: %w", err)
	}
	for i := range items {
		items[i].CalculateComponentsTotal()
	}
	return items, total, nil
}

// GetEquipment возвращает комплект
func (s *CatalogService) GetEquipment(ctx context.Context, id uint) (*models.Equipment, error) {
	return s.loadEquipment(s.db.WithContext(ctx), id)
}

// CreateEquipment создает комплект; все компоненты должны ссылаться на существующие товары
func (s *CatalogService) CreateEquipment(ctx context.Context, in EquipmentInput) (*models.Equipment, error) {
	var created *models.Equipment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.validateEquipment(tx, in); err != nil {
			return err
		}
		e := models.Equipment{
			Name:        strings.TrimSpace(in.Name),
			Description: in.Description,
			Price:       in.Price.Round(2),
			Image:       in.Image,
			Components:  buildComponents(in.Components),
		}
		if err := tx.Create(&e).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: equipment name already exists", ErrConflict)
			}
			return fmt.Errorf("create equipment: %w", err)
		}
		var err error
		created, err = s.loadEquipment(tx, e.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateEquipment изменяет комплект; состав заменяется целиком
func (s *CatalogService) UpdateEquipment(ctx context.Context, id uint, in EquipmentInput) (*models.Equipment, error) {
	var updated *models.Equipment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e models.Equipment
		if err := tx.First(&e, id).Error; err != nil {
			return notFoundOr(err)
		}
		if err := s.validateEquipment(tx, in); err != nil {
			return err
		}
		e.Name = strings.TrimSpace(in.Name)
		e.Description = in.Description
		e.Price = in.Price.Round(2)
		e.Image = in.Image
		if err := tx.Omit("Components").Save(&e).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: equipment name already exists", ErrConflict)
			}
			return fmt.Errorf("update equipment: %w", err)
		}
		if err := tx.Where("equipment_id = ?", id).Delete(&models.EquipmentComponent{}).Error; err != nil {
			return err
		}
		components := buildComponents(in.Components)
		for i := range components {
			components[i].EquipmentID = id
		}
		if len(components) > 0 {
			if err := tx.Create(&components).Error; err != nil {
				return fmt.Errorf("save components: %w", err)
			}
		}
		var err error
		updated, err = s.loadEquipment(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteEquipment удаляет комплект вместе с составом
func (s *CatalogService) DeleteEquipment(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Equipment{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("equipment_id = ?", id).Delete(&models.EquipmentComponent{}).Error
	})
}
