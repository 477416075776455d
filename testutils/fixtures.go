package testutils

import (
	"fmt"
	"sync/atomic"
	"testing"

	"backend_fieldservice/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TestPassword пароль всех пользователей, созданных фикстурами
const TestPassword = "password123"

var seq int64

func next() int64 {
	return atomic.AddInt64(&seq, 1)
}

// CreateUser создает пользователя с заданной ролью и паролем TestPassword
func CreateUser(t *testing.T, db *gorm.DB, role string, active bool) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	n := next()
	user := &models.User{
		Email:     fmt.Sprintf("%s%d@example.com", role, n),
		Password:  string(hash),
		FirstName: "Test",
		LastName:  fmt.Sprintf("%s %d", role, n),
		Role:      role,
		IsActive:  true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	// default:true в GORM не позволяет записать false при создании
	if !active {
		if err := db.Model(user).Update("is_active", false).Error; err != nil {
			t.Fatalf("Failed to deactivate test user: %v", err)
		}
		user.IsActive = false
	}
	return user
}

// CreateCompany создает активную компанию
func CreateCompany(t *testing.T, db *gorm.DB) *models.Company {
	t.Helper()

	company := &models.Company{
		Name:         fmt.Sprintf("Test Company %d", next()),
		ContactEmail: "billing@example.com",
		City:         "Paris",
		IsActive:     true,
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("Failed to create test company: %v", err)
	}
	return company
}

// CreateServiceType создает активный тип услуги
func CreateServiceType(t *testing.T, db *gorm.DB) *models.ServiceType {
	t.Helper()

	st := &models.ServiceType{
		Name:      fmt.Sprintf("Installation %d", next()),
		Category:  models.CategoryInstallation,
		BasePrice: decimal.NewFromInt(150),
		IsActive:  true,
	}
	if err := db.Create(st).Error; err != nil {
		t.Fatalf("Failed to create test service type: %v", err)
	}
	return st
}

// CreateProduct создает товар с заданным остатком
func CreateProduct(t *testing.T, db *gorm.DB, quantity int) *models.Product {
	t.Helper()

	product := &models.Product{
		Name:     fmt.Sprintf("Sensor %d", next()),
		Price:    decimal.NewFromInt(40),
		Quantity: quantity,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("Failed to create test product: %v", err)
	}
	return product
}

// CreateQuote создает предложение напрямую в базе с одной позицией на amount
func CreateQuote(t *testing.T, db *gorm.DB, client, technician *models.User, status models.QuoteStatus, amount int64) *models.Quote {
	t.Helper()

	n := next()
	quote := &models.Quote{
		Reference:   fmt.Sprintf("DEV-TEST-%04d", n),
		Title:       "Test quote",
		ClientID:    client.ID,
		CreatedByID: technician.ID,
		Status:      status,
		TaxRate:     decimal.NewFromInt(20),
		Items: []models.QuoteItem{{
			Description: "Intervention",
			Quantity:    1,
			UnitPrice:   decimal.NewFromInt(amount),
			ItemType:    models.ItemTypeService,
		}},
	}
	if technician.Role == models.RoleTechnician {
		quote.TechnicianID = &technician.ID
	}
	quote.CalculateTotals()
	if err := db.Create(quote).Error; err != nil {
		t.Fatalf("Failed to create test quote: %v", err)
	}
	return quote
}
