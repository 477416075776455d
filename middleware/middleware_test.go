package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthenticator сопоставляет токены пользователям или ошибкам
type fakeAuthenticator struct {
	users  map[string]*models.User
	errors map[string]error
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if err, ok := f.errors[token]; ok {
		return nil, err
	}
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return nil, services.ErrTokenInvalid
}

func setupRouter(auth Authenticator, log *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(log))
	am := NewAuthMiddleware(auth)

	protected := r.Group("/api", am.RequireAuth())
	protected.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetCurrentUser(c).ID, "user_id": c.GetUint("user_id")})
	})
	protected.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/anonymous", RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func perform(r http.Handler, target, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func reason(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	s, _ := body["error"].(string)
	return s
}

func TestRequireAuth(t *testing.T) {
	admin := &models.User{ID: 1, Role: models.RoleAdmin, IsActive: true}
	tech := &models.User{ID: 2, Role: models.RoleTechnician, IsActive: true}
	auth := &fakeAuthenticator{
		users: map[string]*models.User{"admin-token": admin, "tech-token": tech},
		errors: map[string]error{
			"expired":  services.ErrTokenExpired,
			"disabled": services.ErrAccountDisabled,
			"orphan":   services.ErrUserNotFound,
		},
	}
	log, _ := logtest.NewNullLogger()
	r := setupRouter(auth, log)

	reasons := []struct {
		name   string
		header string
		want   string
	}{
		{"Без заголовка", "", ReasonMissing},
		{"Неизвестный токен", "Bearer nope", ReasonInvalid},
		{"Истекший токен", "Bearer expired", ReasonExpired},
		{"Отключенная учетная запись", "Bearer disabled", ReasonAccountDisabled},
		{"Удаленный пользователь", "Bearer orphan", ReasonUserNotFound},
	}
	for _, tt := range reasons {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(r, "/api/me", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.want, reason(t, w))
		})
	}

	t.Run("Токен в заголовке без префикса", func(t *testing.T) {
		w := perform(r, "/api/me", "tech-token")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":2,"user_id":2}`, w.Body.String())
	})

	t.Run("Токен в query для SSE", func(t *testing.T) {
		w := perform(r, "/api/me?token=admin-token", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Заголовок важнее query", func(t *testing.T) {
		w := perform(r, "/api/me?token=admin-token", "Bearer expired")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, ReasonExpired, reason(t, w))
	})
}

func TestRequireRoles(t *testing.T) {
	auth := &fakeAuthenticator{users: map[string]*models.User{
		"admin-token":  {ID: 1, Role: models.RoleAdmin},
		"client-token": {ID: 3, Role: models.RoleClient},
	}}
	log, _ := logtest.NewNullLogger()
	r := setupRouter(auth, log)

	t.Run("Администратор проходит", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, perform(r, "/api/admin", "Bearer admin-token").Code)
	})

	t.Run("Клиент получает 403", func(t *testing.T) {
		w := perform(r, "/api/admin", "Bearer client-token")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "insufficient role", reason(t, w))
	})

	t.Run("Без аутентификации 401", func(t *testing.T) {
		w := perform(r, "/anonymous", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, ReasonMissing, reason(t, w))
	})
}

func TestLogger(t *testing.T) {
	auth := &fakeAuthenticator{users: map[string]*models.User{"tech-token": {ID: 2, Role: models.RoleTechnician}}}
	log, hook := logtest.NewNullLogger()
	r := setupRouter(auth, log)

	t.Run("Успешный запрос с пользователем", func(t *testing.T) {
		hook.Reset()
		perform(r, "/api/me", "Bearer tech-token")
		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.InfoLevel, entry.Level)
		assert.Equal(t, http.StatusOK, entry.Data["status"])
		assert.Equal(t, uint(2), entry.Data["user_id"])
		assert.Equal(t, "/api/me", entry.Data["path"])
	})

	t.Run("Ошибка клиента пишется как warning", func(t *testing.T) {
		hook.Reset()
		perform(r, "/api/me", "")
		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		_, hasUser := entry.Data["user_id"]
		assert.False(t, hasUser)
	})
}

func TestRateLimitWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIRateLimit(nil, 1, time.Minute), UserRateLimit(nil, 1, time.Minute))
	r.POST("/login", AuthRateLimit(nil, 1), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestKeyGenerators(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.7:5000"

	assert.Equal(t, "10.0.0.7", DefaultKeyGenerator(c))
	assert.Equal(t, "10.0.0.7", UserKeyGenerator(c))

	c.Set("user", &models.User{ID: 9})
	assert.Equal(t, "user:9", UserKeyGenerator(c))
}

func TestUserKeyAfterAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := &fakeAuthenticator{users: map[string]*models.User{"tech-token": {ID: 2, Role: models.RoleTechnician}}}
	am := NewAuthMiddleware(auth)

	var keys []string
	capture := func(c *gin.Context) { keys = append(keys, UserKeyGenerator(c)) }

	r := gin.New()
	api := r.Group("/api", capture)
	api.GET("/me", am.RequireAuth(), capture, func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, "/api/me", "Bearer tech-token")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, keys, 2)
	assert.NotEqual(t, "user:2", keys[0], "до аутентификации пользователь неизвестен")
	assert.Equal(t, "user:2", keys[1])
}
