package api

import (
	"strconv"
	"time"

	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type UserCreateRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Role      string `json:"role"`
	CompanyID *uint  `json:"company_id"`
	IsActive  *bool  `json:"is_active"`
}

type UserUpdateRequest struct {
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	Role      *string `json:"role"`
	CompanyID *uint   `json:"company_id"`
	IsActive  *bool   `json:"is_active"`
}

type AvailabilityRequest struct {
	AvailabilityStatus string     `json:"availability_status" binding:"required"`
	NextDayOff         *time.Time `json:"next_day_off"`
}

// UsersAPI обработчики управления пользователями
type UsersAPI struct {
	users *services.UserService
	log   *logrus.Logger
}

// NewUsersAPI создает новый экземпляр UsersAPI
func NewUsersAPI(users *services.UserService, log *logrus.Logger) *UsersAPI {
	return &UsersAPI{users: users, log: log}
}

// RegisterUsersRoutes регистрирует маршруты /api/users (группа уже требует аутентификацию)
func (api *UsersAPI) RegisterUsersRoutes(r *gin.RouterGroup, adminOnly, staff gin.HandlerFunc) {
	users := r.Group("/users")
	{
		users.GET("/technicians/available", staff, api.AvailableTechnicians)
		users.PUT("/:id/availability", api.SetAvailability)

		users.GET("", adminOnly, api.GetUsers)
		users.POST("", adminOnly, api.CreateUser)
		users.GET("/:id", adminOnly, api.GetUser)
		users.PUT("/:id", adminOnly, api.UpdateUser)
		users.DELETE("/:id", adminOnly, api.DeleteUser)
		users.PATCH("/:id/toggle-active", adminOnly, api.ToggleActive)
	}
}

// GetUsers возвращает список пользователей
func (api *UsersAPI) GetUsers(c *gin.Context) {
	lf := listFilter(c)
	f := services.UserFilter{Role: c.Query("role"), Search: lf.Search, Page: lf.Page, Limit: lf.Limit}
	if v := c.Query("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err == nil {
			f.IsActive = &active
		}
	}
	users, total, err := api.users.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, users, lf.Page, lf.Limit, total)
}

// GetUser возвращает пользователя
func (api *UsersAPI) GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	user, err := api.users.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, user)
}

// CreateUser создает пользователя с любой ролью
func (api *UsersAPI) CreateUser(c *gin.Context) {
	var req UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	user, err := api.users.Create(c.Request.Context(), services.UserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
		Role:      req.Role,
		CompanyID: req.CompanyID,
		IsActive:  req.IsActive,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, user)
}

// UpdateUser изменяет пользователя
func (api *UsersAPI) UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	user, err := api.users.Update(c.Request.Context(), id, services.UserUpdateInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
		Role:      req.Role,
		CompanyID: req.CompanyID,
		IsActive:  req.IsActive,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, user)
}

// DeleteUser удаляет пользователя
func (api *UsersAPI) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := api.users.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "User deleted")
}

// ToggleActive включает или блокирует учетную запись
func (api *UsersAPI) ToggleActive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	user, err := api.users.ToggleActive(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, user)
}

// AvailableTechnicians возвращает техников, доступных на дату (?date=2006-01-02)
func (api *UsersAPI) AvailableTechnicians(c *gin.Context) {
	on := time.Now()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(c, api.log, services.NewValidationError("date", "must be YYYY-MM-DD"))
			return
		}
		on = parsed
	}
	technicians, err := api.users.AvailableTechnicians(c.Request.Context(), on)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, technicians)
}

// SetAvailability обновляет доступность техника
func (api *UsersAPI) SetAvailability(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	user, err := api.users.SetAvailability(c.Request.Context(), currentUser(c), id, req.AvailabilityStatus, req.NextDayOff)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, user)
}
