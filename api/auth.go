package api

import (
	"net/http"

	"backend_fieldservice/middleware"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	CompanyID *uint  `json:"company_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type ProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// AuthAPI обработчики аутентификации и профиля
type AuthAPI struct {
	auth *services.AuthService
	log  *logrus.Logger
}

// NewAuthAPI создает новый экземпляр AuthAPI
func NewAuthAPI(auth *services.AuthService, log *logrus.Logger) *AuthAPI {
	return &AuthAPI{auth: auth, log: log}
}

// RegisterAuthRoutes регистрирует маршруты /api/auth
func (api *AuthAPI) RegisterAuthRoutes(r *gin.RouterGroup, authMW *middleware.AuthMiddleware, limiter gin.HandlerFunc) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", limiter, api.Register)
		auth.POST("/login", limiter, api.Login)
		auth.POST("/refresh", api.Refresh)

		protected := auth.Group("", authMW.RequireAuth())
		protected.POST("/logout", api.Logout)
		protected.GET("/profile", api.GetProfile)
		protected.PUT("/profile", api.UpdateProfile)
		protected.PUT("/change-password", api.ChangePassword)
	}
}

// Register регистрирует нового клиента
func (api *AuthAPI) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	result, err := api.auth.Register(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
		CompanyID: req.CompanyID,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, result)
}

// Login выполняет вход по email и паролю
func (api *AuthAPI) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	result, err := api.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, result)
}

// Refresh обменивает refresh токен на новую пару
func (api *AuthAPI) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	result, err := api.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, result)
}

// Logout отзывает refresh токен
func (api *AuthAPI) Logout(c *gin.Context) {
	if err := api.auth.Logout(c.Request.Context(), currentUser(c).ID); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Logged out")
}

// GetProfile возвращает профиль текущего пользователя
func (api *AuthAPI) GetProfile(c *gin.Context) {
	user, err := api.auth.GetProfile(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, user)
}

// UpdateProfile обновляет профиль текущего пользователя
func (api *AuthAPI) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	user, err := api.auth.UpdateProfile(c.Request.Context(), currentUser(c).ID, services.ProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, user)
}

// ChangePassword меняет пароль текущего пользователя
func (api *AuthAPI) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := api.auth.ChangePassword(c.Request.Context(), currentUser(c).ID, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, api.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed"})
}
