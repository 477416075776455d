package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backend_fieldservice/middleware"
	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Pagination метаданные страницы списка
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

func respondList(c *gin.Context, items interface{}, page, limit int, total int64) {
	pages := int64(1)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       items,
		"pagination": Pagination{Page: page, Limit: limit, Total: total, Pages: pages},
	})
}

func respondFail(c *gin.Context, status int, message string, detail interface{}) {
	body := gin.H{"success": false, "message": message}
	if detail != nil {
		body["error"] = detail
	}
	c.AbortWithStatusJSON(status, body)
}

// respondBindError превращает ошибку привязки Gin в список полей
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]services.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, services.FieldError{
				Field:   toSnake(fe.Field()),
				Message: describeTag(fe),
			})
		}
		respondFail(c, http.StatusBadRequest, "Validation failed", fields)
		return
	}
	respondFail(c, http.StatusBadRequest, "Invalid request body", err.Error())
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	}
	return fmt.Sprintf("failed on %s", fe.Tag())
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// respondError сопоставляет ошибку сервиса с HTTP-статусом
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		respondFail(c, http.StatusBadRequest, "Validation failed", verr.Fields)
	case errors.Is(err, services.ErrComplianceRequired):
		respondFail(c, http.StatusBadRequest, "Report is not BATUTA compliant", err.Error())
	case errors.Is(err, services.ErrValidation), errors.Is(err, models.ErrUnknownStatus):
		respondFail(c, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		respondFail(c, http.StatusUnauthorized, "Invalid credentials", nil)
	case errors.Is(err, services.ErrAccountDisabled):
		respondFail(c, http.StatusUnauthorized, "Account disabled", middleware.ReasonAccountDisabled)
	case errors.Is(err, services.ErrTokenExpired):
		respondFail(c, http.StatusUnauthorized, "Token expired", middleware.ReasonExpired)
	case errors.Is(err, services.ErrTokenInvalid):
		respondFail(c, http.StatusUnauthorized, "Invalid token", middleware.ReasonInvalid)
	case errors.Is(err, services.ErrUserNotFound):
		respondFail(c, http.StatusUnauthorized, "User not found", middleware.ReasonUserNotFound)
	case errors.Is(err, services.ErrForbidden):
		respondFail(c, http.StatusForbidden, "Access denied", nil)
	case errors.Is(err, services.ErrNotFound):
		respondFail(c, http.StatusNotFound, "Resource not found", nil)
	case errors.Is(err, services.ErrConflict):
		respondFail(c, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		respondFail(c, http.StatusConflict, "Invalid status transition", err.Error())
	default:
		if log != nil {
			log.WithError(err).WithField("path", c.FullPath()).Error("❌ Внутренняя ошибка")
		}
		respondFail(c, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// currentUser возвращает аутентифицированного пользователя
func currentUser(c *gin.Context) *models.User {
	return middleware.GetCurrentUser(c)
}

// paramID разбирает числовой параметр пути; при ошибке отвечает 400
func paramID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		respondFail(c, http.StatusBadRequest, "Invalid "+name, nil)
		return 0, false
	}
	return uint(v), true
}

// listFilter читает page/limit/status/search из query
func listFilter(c *gin.Context) services.ListFilter {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return services.ListFilter{
		Status: c.Query("status"),
		Search: strings.TrimSpace(c.Query("search")),
		Page:   page,
		Limit:  limit,
	}
}

func sendFile(c *gin.Context, contentType, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, data)
}

// parseDate принимает RFC3339 или YYYY-MM-DD; пустая строка дает nil
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", raw)
}

// isMultipart сообщает, пришло ли тело как multipart-форма
func isMultipart(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEMultipartPOSTForm
}
