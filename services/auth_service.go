package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend_fieldservice/models"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MinPasswordLength минимальная длина пароля
const MinPasswordLength = 6

var validate = validator.New()

// RegisterInput данные самостоятельной регистрации
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Address   string
	CompanyID *uint
}

// ProfileInput изменяемые поля профиля
type ProfileInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
}

// AuthResult результат входа: пользователь и пара токенов
type AuthResult struct {
	User   *models.User `json:"user"`
	Tokens *TokenPair   `json:"tokens"`
}

// AuthService отвечает за учетные записи и токены
type AuthService struct {
	db     *gorm.DB
	tokens *TokenService
	log    *logrus.Logger
}

// NewAuthService создает новый экземпляр AuthService
func NewAuthService(db *gorm.DB, tokens *TokenService, log *logrus.Logger) *AuthService {
	return &AuthService{db: db, tokens: tokens, log: log}
}

// HashPassword хеширует пароль bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("ошибка хеширования пароля: %w", err)
	}
	return string(hash), nil
}

// CheckPassword сравнивает пароль с хешем
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateCredentials проверяет формат email и длину пароля до обращения к БД
func ValidateCredentials(email, password string) error {
	verr := &ValidationError{}
	if err := validate.Var(email, "required,email"); err != nil {
		verr.Add("email", "must be a valid email address")
	}
	if len(password) < MinPasswordLength {
		verr.Add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	return verr.OrNil()
}

// Register регистрирует нового клиента
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := ValidateCredentials(in.Email, in.Password); err != nil {
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
		CompanyID: in.CompanyID,
		Role:      models.RoleClient,
		IsActive:  true,
	}

	var existing int64
	s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", user.Email).Count(&existing)
	if existing > 0 {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, fmt.Errorf("не удалось создать пользователя: %w", err)
	}

	s.logAuth("register", user.Email, user.ID, true, "")
	return s.issue(ctx, &user)
}

// Login проверяет учетные данные и выдает пару токенов
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.logAuth("login_attempt", email, 0, true, "")

	if err := ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logAuth("login_failed", email, 0, false, "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(user.Password, password) {
		s.logAuth("login_failed", email, user.ID, false, "wrong password")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logAuth("account_disabled", email, user.ID, false, "account disabled")
		return nil, ErrAccountDisabled
	}

	now := time.Now()
	user.LastLogin = &now
	result, err := s.issue(ctx, &user)
	if err != nil {
		return nil, err
	}
	s.logAuth("login_success", email, user.ID, true, "")
	return result, nil
}

// Refresh проверяет refresh токен, сверяет с сохраненным и ротирует пару
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.ValidateToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		s.logAuth("refresh", user.Email, user.ID, false, "refresh token mismatch")
		return nil, fmt.Errorf("%w: refresh token revoked", ErrTokenInvalid)
	}

	result, err := s.issue(ctx, &user)
	if err != nil {
		return nil, err
	}
	s.logAuth("refresh", user.Email, user.ID, true, "")
	return result, nil
}

// Logout очищает сохраненный refresh токен
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("refresh_token", "").Error
	if err == nil {
		s.logAuth("logout", "", userID, true, "")
	}
	return err
}

// Authenticate проверяет access токен и загружает активного пользователя
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.tokens.ValidateToken(accessToken, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return &user, nil
}

// GetProfile возвращает профиль пользователя
func (s *AuthService) GetProfile(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Company").First(&user, userID).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &user, nil
}

// UpdateProfile обновляет личные данные (роль и email не меняются)
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (*models.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Phone != nil {
		user.Phone = *in.Phone
	}
	if in.Address != nil {
		user.Address = *in.Address
	}
	if err := s.db.WithContext(ctx).Omit("Company").Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword меняет пароль после проверки текущего
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return NewValidationError("new_password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return notFoundOr(err)
	}
	if !CheckPassword(user.Password, oldPassword) {
		return NewValidationError("old_password", "current password is incorrect")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&user).Update("password", hash).Error
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	pair, err := s.tokens.GenerateTokenPair(user)
	if err != nil {
		return nil, err
	}
	user.RefreshToken = pair.RefreshToken
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"refresh_token": pair.RefreshToken,
		"last_login":    user.LastLogin,
	}).Error; err != nil {
		return nil, fmt.Errorf("не удалось сохранить refresh токен: %w", err)
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}

// logAuth пишет структурированную запись о событии аутентификации
func (s *AuthService) logAuth(event, email string, userID uint, success bool, reason string) {
	entry := s.log.WithFields(logrus.Fields{
		"event":   event,
		"email":   email,
		"user_id": userID,
		"success": success,
	})
	if reason != "" {
		entry = entry.WithField("reason", reason)
	}
	if success {
		entry.Info("auth event")
	} else {
		entry.Warn("auth event")
	}
}
