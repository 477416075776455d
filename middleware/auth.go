package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
)

// Причины отказа в аутентификации
const (
	ReasonMissing         = "missing"
	ReasonInvalid         = "invalid"
	ReasonExpired         = "expired"
	ReasonUserNotFound    = "user not found"
	ReasonAccountDisabled = "account disabled"
)

// Authenticator проверяет access токен и возвращает пользователя
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

// AuthMiddleware проверяет аутентификацию пользователя
type AuthMiddleware struct {
	auth Authenticator
}

// NewAuthMiddleware создает новый экземпляр AuthMiddleware
func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

func unauthorized(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": "Authentication required",
		"error":   reason,
	})
}

// extractToken извлекает токен из заголовка Authorization.
// Для SSE, где заголовки недоступны браузеру, допускается параметр ?token=.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return c.Query("token")
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(header)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, services.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, services.ErrUserNotFound):
		return ReasonUserNotFound
	case errors.Is(err, services.ErrAccountDisabled):
		return ReasonAccountDisabled
	default:
		return ReasonInvalid
	}
}

// RequireAuth middleware для проверки аутентификации
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			unauthorized(c, ReasonMissing)
			return
		}

		user, err := am.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			unauthorized(c, reasonFor(err))
			return
		}

		// Сохраняем информацию о пользователе в контексте
		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}

// RequireRoles пропускает только пользователей с указанными ролями
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetCurrentUser(c)
		if user == nil {
			unauthorized(c, ReasonMissing)
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"message": "Access denied",
			"error":   "insufficient role",
		})
	}
}

// GetCurrentUser возвращает текущего пользователя из контекста
func GetCurrentUser(c *gin.Context) *models.User {
	if user, exists := c.Get("user"); exists {
		if u, ok := user.(*models.User); ok {
			return u
		}
	}
	return nil
}
