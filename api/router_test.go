package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend_fieldservice/models"
	"backend_fieldservice/services"
	"backend_fieldservice/testutils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAndNoRoute(t *testing.T) {
	ts := newTestServer(t)

	t.Run("Health без Redis", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "connected", dataField(t, w, "database"))
		assert.Equal(t, "disabled", dataField(t, w, "redis"))
		assert.Equal(t, "ok", dataField(t, w, "status"))
	})

	t.Run("Неизвестный маршрут", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/unknown", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "/api/unknown", body["error"])
	})
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	admin := testutils.CreateUser(t, ts.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, ts.db, models.RoleTechnician, true)

	t.Run("Регистрация клиента", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
			"email":      "New.Client@Example.com",
			"password":   "secret123",
			"first_name": "Marie",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		user := dataField(t, w, "user").(map[string]interface{})
		assert.Equal(t, "new.client@example.com", user["email"])
		assert.Equal(t, models.RoleClient, user["role"])
		assert.NotContains(t, w.Body.String(), "secret123")

		w = ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "new.client@example.com", "password": "secret123"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Ошибки привязки", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": tech.Email})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Validation failed", body["message"])
		fields := body["error"].([]interface{})
		require.Len(t, fields, 1)
		assert.Equal(t, "password", fields[0].(map[string]interface{})["field"])
	})

	t.Run("Причины отказа аутентификации", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/auth/profile", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "missing", decode(t, w)["error"])

		w = ts.do(t, http.MethodGet, "/api/auth/profile", "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "invalid", decode(t, w)["error"])

		w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": tech.Email, "password": "wrong-password"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Профиль по токену из query", func(t *testing.T) {
		token := ts.login(t, tech)
		w := ts.do(t, http.MethodGet, "/api/auth/profile?token="+token, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tech.Email, dataField(t, w, "email"))
	})

	t.Run("Отключение и включение учетной записи", func(t *testing.T) {
		adminToken := ts.login(t, admin)
		techToken := ts.login(t, tech)

		w := ts.do(t, http.MethodPatch, urlf("/api/users/%d/toggle-active", tech.ID), adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, false, dataField(t, w, "is_active"))

		w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": tech.Email, "password": testutils.TestPassword})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "account disabled", decode(t, w)["error"])

		w = ts.do(t, http.MethodGet, "/api/auth/profile", techToken, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "account disabled", decode(t, w)["error"])

		w = ts.do(t, http.MethodPatch, urlf("/api/users/%d/toggle-active", tech.ID), adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, dataField(t, w, "is_active"))
		ts.login(t, tech)

		w = ts.do(t, http.MethodPatch, urlf("/api/users/%d/toggle-active", admin.ID), adminToken, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestRoleGuards(t *testing.T) {
	ts := newTestServer(t)
	client := testutils.CreateUser(t, ts.db, models.RoleClient, true)
	tech := testutils.CreateUser(t, ts.db, models.RoleTechnician, true)
	clientToken := ts.login(t, client)
	techToken := ts.login(t, tech)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"Клиент не видит список пользователей", http.MethodGet, "/api/users", clientToken},
		{"Техник не создает миссии", http.MethodPost, "/api/missions", techToken},
		{"Клиент не создает предложения", http.MethodPost, "/api/quotes", clientToken},
		{"Техник не отвечает на предложения", http.MethodPost, "/api/quotes/1/respond", techToken},
		{"Клиент не меняет каталог", http.MethodPost, "/api/service-types", clientToken},
		{"Техник не видит кэш панели", http.MethodGet, "/api/dashboard/cache", techToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.token, gin.H{})
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, "insufficient role", decode(t, w)["error"])
		})
	}
}

func TestMissionAccess(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	admin := testutils.CreateUser(t, ts.db, models.RoleAdmin, true)
	client := testutils.CreateUser(t, ts.db, models.RoleClient, true)
	tech := testutils.CreateUser(t, ts.db, models.RoleTechnician, true)
	otherTech := testutils.CreateUser(t, ts.db, models.RoleTechnician, true)
	otherClient := testutils.CreateUser(t, ts.db, models.RoleClient, true)

	st := testutils.CreateServiceType(t, ts.db)
	quote := testutils.CreateQuote(t, ts.db, client, tech, models.QuoteAccepted, 250)
	adminToken := ts.login(t, admin)

	w := ts.do(t, http.MethodPost, "/api/missions", adminToken, gin.H{
		"title":           "Pose alarme",
		"service_type_id": st.ID,
		"client_id":       client.ID,
		"technician_id":   tech.ID,
		"quote_id":        quote.ID,
		"scheduled_date":  time.Now().Add(48 * time.Hour).Format("2006-01-02"),
		"address":         "1 rue de Paris",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	missionID := uint(dataField(t, w, "id").(float64))

	t.Run("Назначенный техник и владелец видят миссию", func(t *testing.T) {
		for _, u := range []*models.User{tech, client} {
			w := ts.do(t, http.MethodGet, urlf("/api/missions/%d", missionID), ts.login(t, u), nil)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("Чужие пользователи получают 403", func(t *testing.T) {
		for _, u := range []*models.User{otherTech, otherClient} {
			w := ts.do(t, http.MethodGet, urlf("/api/missions/%d", missionID), ts.login(t, u), nil)
			assert.Equal(t, http.StatusForbidden, w.Code)
		}
	})

	t.Run("Несуществующая миссия", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/missions/99999", adminToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = ts.do(t, http.MethodGet, "/api/missions/abc", adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Завершение выставляет счет", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, urlf("/api/missions/%d", missionID), ts.login(t, tech), gin.H{"status": "completed"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		invoices, total, err := ts.deps.Billing.ListInvoices(ctx, admin, services.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, invoices, 1)
		assert.Equal(t, client.ID, invoices[0].ClientID)
	})

	t.Run("Удаление с отчетами или счетом требует force", func(t *testing.T) {
		w := ts.do(t, http.MethodDelete, urlf("/api/missions/%d", missionID), adminToken, nil)
		assert.Equal(t, http.StatusConflict, w.Code)

		w = ts.do(t, http.MethodDelete, urlf("/api/missions/%d?force=true", missionID), adminToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestQuoteRespond(t *testing.T) {
	ts := newTestServer(t)
	client := testutils.CreateUser(t, ts.db, models.RoleClient, true)
	otherClient := testutils.CreateUser(t, ts.db, models.RoleClient, true)
	tech := testutils.CreateUser(t, ts.db, models.RoleTechnician, true)
	quote := testutils.CreateQuote(t, ts.db, client, tech, models.QuoteSent, 100)

	t.Run("Ответ чужого клиента", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, urlf("/api/quotes/%d/respond", quote.ID), ts.login(t, otherClient), gin.H{"response": "accept"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	clientToken := ts.login(t, client)

	t.Run("Недопустимый ответ", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, urlf("/api/quotes/%d/respond", quote.ID), clientToken, gin.H{"response": "maybe"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Клиент принимает предложение", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, urlf("/api/quotes/%d/respond", quote.ID), clientToken, gin.H{"response": "accept", "comments": "OK"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, string(models.QuoteAccepted), dataField(t, w, "status"))

		w = ts.do(t, http.MethodPost, urlf("/api/quotes/%d/respond", quote.ID), clientToken, gin.H{"response": "reject"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("PDF предложения", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, urlf("/api/quotes/%d/pdf", quote.ID), clientToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
	})
}

func TestConversationMarkRead(t *testing.T) {
	ts := newTestServer(t)
	admin := testutils.CreateUser(t, ts.db, models.RoleAdmin, true)
	client := testutils.CreateUser(t, ts.db, models.RoleClient, true)
	tech := testutils.CreateUser(t, ts.db, models.RoleTechnician, true)

	adminToken := ts.login(t, admin)
	clientToken := ts.login(t, client)
	techToken := ts.login(t, tech)

	w := ts.do(t, http.MethodPost, "/api/conversations", adminToken, gin.H{
		"subject":         "Intervention",
		"participant_ids": []uint{client.ID, tech.ID},
		"message":         "Bonjour",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	conversationID := uint(dataField(t, w, "id").(float64))

	unread := func(token string) float64 {
		w := ts.do(t, http.MethodGet, "/api/conversations/unread-count", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		return dataField(t, w, "count").(float64)
	}

	assert.Equal(t, float64(1), unread(clientToken))
	assert.Equal(t, float64(1), unread(techToken))
	assert.Equal(t, float64(0), unread(adminToken))

	t.Run("Прочтение сбрасывает только свой счетчик", func(t *testing.T) {
		w := ts.do(t, http.MethodPatch, urlf("/api/conversations/%d/read", conversationID), clientToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(0), unread(clientToken))
		assert.Equal(t, float64(1), unread(techToken))
	})

	t.Run("Посторонний не видит переписку", func(t *testing.T) {
		outsider := testutils.CreateUser(t, ts.db, models.RoleTechnician, true)
		w := ts.do(t, http.MethodGet, urlf("/api/conversations/%d", conversationID), ts.login(t, outsider), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Уведомление о сообщении", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/notifications/unread-count", techToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), dataField(t, w, "count"))

		w = ts.do(t, http.MethodPatch, "/api/notifications/read-all", techToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), dataField(t, w, "updated"))
	})
}

func TestSiteCustomization(t *testing.T) {
	ts := newTestServer(t)
	admin := testutils.CreateUser(t, ts.db, models.RoleAdmin, true)
	client := testutils.CreateUser(t, ts.db, models.RoleClient, true)
	content := gin.H{"content": gin.H{"title": "Sécurité incendie", "cta": "Devis gratuit"}}

	t.Run("Изменение требует аутентификации и роли", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/api/site-customization/hero", "", content)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = ts.do(t, http.MethodPut, "/api/site-customization/hero", ts.login(t, client), content)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Создание и публичное чтение", func(t *testing.T) {
		adminToken := ts.login(t, admin)
		w := ts.do(t, http.MethodPut, "/api/site-customization/hero", adminToken, content)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = ts.do(t, http.MethodPut, "/api/site-customization/hero", adminToken, gin.H{"content": gin.H{"title": "Nouveau"}})
		require.Equal(t, http.StatusOK, w.Code)

		w = ts.do(t, http.MethodGet, "/api/site-customization/hero", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		stored := dataField(t, w, "content").(map[string]interface{})
		assert.Equal(t, "Nouveau", stored["title"])

		w = ts.do(t, http.MethodDelete, "/api/site-customization/hero", adminToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		w = ts.do(t, http.MethodGet, "/api/site-customization/hero", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestNotificationStream(t *testing.T) {
	ts := newTestServer(t)
	user := testutils.CreateUser(t, ts.db, models.RoleClient, true)
	token := ts.login(t, user)

	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications/stream?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	require.Eventually(t, func() bool { return ts.hub.Connected(user.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = ts.deps.Notifications.Notify(context.Background(), services.NotificationDraft{
		RecipientID: user.ID,
		Type:        models.NotificationQuoteSent,
		Message:     "Quote DEV-2026-001 is waiting for your answer",
	})
	require.NoError(t, err)

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if strings.HasPrefix(line, "data:") {
			break
		}
	}
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "event:"+services.EventNewNotification)
	assert.Contains(t, joined, "DEV-2026-001")
}
