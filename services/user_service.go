package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backend_fieldservice/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UserInput данные пользователя, создаваемого администратором
type UserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Address   string
	Role      string
	CompanyID *uint
	IsActive  *bool
}

// UserUpdateInput изменяемые администратором поля
type UserUpdateInput struct {
	Email     *string
	Password  *string
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
	Role      *string
	CompanyID *uint
	IsActive  *bool
}

// UserFilter параметры выборки пользователей
type UserFilter struct {
	Role     string
	IsActive *bool
	Search   string
	Page     int
	Limit    int
}

// UserService административное управление пользователями
type UserService struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewUserService создает новый экземпляр UserService
func NewUserService(db *gorm.DB, log *logrus.Logger) *UserService {
	return &UserService{db: db, log: log}
}

// List возвращает пользователей с фильтрами
func (s *UserService) List(ctx context.Context, f UserFilter) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
	}
	if f.IsActive != nil {
		query = query.Where("is_active = ?", *f.IsActive)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	err := query.Preload("Company").Order("created_at DESC, id DESC").
		Scopes(ListFilter{Page: f.Page, Limit: f.Limit}.paginate).
		Find(&users).Error
	return users, total, err
}

// Get возвращает пользователя по ID
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Company").First(&user, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &user, nil
}

func (s *UserService) checkCompany(ctx context.Context, companyID *uint) error {
	if companyID == nil {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Company{}).Where("id = ?", *companyID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return NewValidationError("company_id", "company not found")
	}
	return nil
}

// Create создает пользователя с любой ролью
func (s *UserService) Create(ctx context.Context, in UserInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := ValidateCredentials(in.Email, in.Password); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleClient
	}
	if !models.ValidRole(in.Role) {
		return nil, NewValidationError("role", "must be one of admin, technician, client")
	}
	if err := s.checkCompany(ctx, in.CompanyID); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:     in.Email,
		Password:  hash,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Address:   in.Address,
		Role:      in.Role,
		CompanyID: in.CompanyID,
		IsActive:  true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: email already registered", ErrConflict)
			}
			return err
		}
		// false совпадает с нулевым значением и не попадает в INSERT при default:true
		if in.IsActive != nil && !*in.IsActive {
			user.IsActive = false
			return tx.Model(&user).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("✅ Пользователь создан")
	return &user, nil
}

// Update изменяет пользователя
func (s *UserService) Update(ctx context.Context, id uint, in UserUpdateInput) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := validate.Var(email, "required,email"); err != nil {
			return nil, NewValidationError("email", "must be a valid email address")
		}
		updates["email"] = email
	}
	if in.Password != nil {
		if len(*in.Password) < MinPasswordLength {
			return nil, NewValidationError("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
		}
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		updates["password"] = hash
	}
	if in.Role != nil {
		if !models.ValidRole(*in.Role) {
			return nil, NewValidationError("role", "must be one of admin, technician, client")
		}
		updates["role"] = *in.Role
	}
	if in.CompanyID != nil {
		if err := s.checkCompany(ctx, in.CompanyID); err != nil {
			return nil, err
		}
		updates["company_id"] = *in.CompanyID
	}
	if in.FirstName != nil {
		updates["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		updates["last_name"] = *in.LastName
	}
	if in.Phone != nil {
		updates["phone"] = *in.Phone
	}
	if in.Address != nil {
		updates["address"] = *in.Address
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete удаляет пользователя; администратор не может удалить сам себя
func (s *UserService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if actor.ID == id {
		return fmt.Errorf("%w: cannot delete your own account", ErrConflict)
	}
	res := s.db.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleActive инвертирует флаг активности; при блокировке refresh токен отзывается
func (s *UserService) ToggleActive(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	if actor.ID == id {
		return nil, fmt.Errorf("%w: cannot disable your own account", ErrConflict)
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"is_active": !user.IsActive}
	if user.IsActive {
		updates["refresh_token"] = ""
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	user.IsActive = !user.IsActive

	s.log.WithFields(logrus.Fields{"user_id": id, "is_active": user.IsActive, "by": actor.ID}).Info("Статус активности пользователя изменен")
	return user, nil
}

// AvailableTechnicians возвращает активных техников со статусом available,
// у которых нет выходного на указанную дату
func (s *UserService) AvailableTechnicians(ctx context.Context, on time.Time) ([]models.User, error) {
	var technicians []models.User
	day := time.Date(on.Year(), on.Month(), on.Day(), 0, 0, 0, 0, on.Location())
	err := s.db.WithContext(ctx).
		Where("role = ? AND is_active = ? AND availability_status = ?", models.RoleTechnician, true, models.AvailabilityAvailable).
		Where("next_day_off IS NULL OR next_day_off < ? OR next_day_off >= ?", day, day.AddDate(0, 0, 1)).
		Order("first_name, last_name").
		Find(&technicians).Error
	return technicians, err
}

// SetAvailability обновляет статус доступности техника (сам техник или администратор)
func (s *UserService) SetAvailability(ctx context.Context, actor *models.User, id uint, status string, nextDayOff *time.Time) (*models.User, error) {
	if !actor.IsAdmin() && actor.ID != id {
		return nil, ErrForbidden
	}
	switch status {
	case models.AvailabilityAvailable, models.AvailabilityBusy, models.AvailabilityOff:
	default:
		return nil, NewValidationError("availability_status", "must be one of available, busy, off")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsTechnician() {
		return nil, NewValidationError("id", "user is not a technician")
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"availability_status": status,
		"next_day_off":        nextDayOff,
	}).Error; err != nil {
		return nil, err
	}
	user.AvailabilityStatus = status
	user.NextDayOff = nextDayOff
	return user, nil
}
