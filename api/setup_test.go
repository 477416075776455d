package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend_fieldservice/models"
	"backend_fieldservice/services"
	"backend_fieldservice/testutils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testServer роутер со всеми сервисами поверх in-memory SQLite, без Redis
type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	hub    *services.Hub
	deps   Dependencies
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutils.SetupTestDB(t)
	cfg := testutils.TestConfig(t.TempDir())
	log := testutils.TestLogger()
	hub := services.NewHub()

	notifications := services.NewNotificationService(db, hub, log)
	effects := &services.SideEffects{
		Notifications: notifications,
		Mailer:        services.NewLogMailer(log),
		Alerter:       services.NewAdminAlerter(cfg.External, log),
		Log:           log,
	}
	billing := services.NewBillingService(db, cfg.Business, effects, log)
	cache := services.NewCacheService(nil, log)

	deps := Dependencies{
		Config:        cfg,
		DB:            db,
		Log:           log,
		Auth:          services.NewAuthService(db, services.NewTokenService(cfg.JWT), log),
		Users:         services.NewUserService(db, log),
		Catalog:       services.NewCatalogService(db, effects, log),
		Requests:      services.NewRequestService(db, effects, log),
		Quotes:        services.NewQuoteService(db, cfg.Business, effects, log),
		Missions:      services.NewMissionService(db, billing, effects, log),
		Reports:       services.NewReportService(db, services.NewComplianceClient("", log), effects, log),
		Billing:       billing,
		Messaging:     services.NewMessagingService(db, effects, log),
		Notifications: notifications,
		Subscriber:    hub,
		Dashboard:     services.NewDashboardService(db, cache, log),
		Cache:         cache,
		Uploads:       services.NewUploadService(cfg.Uploads, log),
		PDF:           services.NewPDFService(cfg.Uploads, cfg.Business, log),
		Export:        services.NewExportService(log),
	}
	return &testServer{router: SetupRouter(deps), db: db, hub: hub, deps: deps}
}

// do выполняет запрос; body сериализуется в JSON, пустой token означает анонимный запрос
func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// login входит под пользователем фикстуры и возвращает access токен
func (ts *testServer) login(t *testing.T, user *models.User) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": user.Email, "password": testutils.TestPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data services.AuthResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Tokens)
	return resp.Data.Tokens.AccessToken
}

// decode разбирает конверт ответа
func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// dataField возвращает поле объекта data
func dataField(t *testing.T, w *httptest.ResponseRecorder, field string) interface{} {
	t.Helper()
	data, ok := decode(t, w)["data"].(map[string]interface{})
	require.True(t, ok, "data is not an object: %s", w.Body.String())
	return data[field]
}

func urlf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
