package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// heartbeatInterval период комментариев-пингов в SSE-потоке
const heartbeatInterval = 25 * time.Second

// NotificationAPI представляет API для управления уведомлениями
type NotificationAPI struct {
	service    *services.NotificationService
	subscriber services.Subscriber
	log        *logrus.Logger
}

// NewNotificationAPI создает новый экземпляр NotificationAPI
func NewNotificationAPI(service *services.NotificationService, subscriber services.Subscriber, log *logrus.Logger) *NotificationAPI {
	return &NotificationAPI{service: service, subscriber: subscriber, log: log}
}

// RegisterNotificationRoutes регистрирует маршруты /api/notifications
func (api *NotificationAPI) RegisterNotificationRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", api.GetNotifications)
		notifications.GET("/unread-count", api.GetUnreadCount)
		notifications.GET("/stream", api.Stream)
		notifications.PATCH("/read-all", api.MarkAllRead)
		notifications.PATCH("/:id/read", api.MarkRead)
		notifications.DELETE("/:id", api.DeleteNotification)
	}
}

// GetNotifications возвращает уведомления текущего пользователя
// GET /api/notifications?unread=true
func (api *NotificationAPI) GetNotifications(c *gin.Context) {
	lf := listFilter(c)
	unread, _ := strconv.ParseBool(c.Query("unread"))
	items, total, err := api.service.List(c.Request.Context(), currentUser(c).ID, services.NotificationFilter{
		UnreadOnly: unread,
		Page:       lf.Page,
		Limit:      lf.Limit,
	})
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, lf.Page, lf.Limit, total)
}

// GetUnreadCount возвращает число непрочитанных уведомлений
// GET /api/notifications/unread-count
func (api *NotificationAPI) GetUnreadCount(c *gin.Context) {
	count, err := api.service.UnreadCount(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, gin.H{"count": count})
}

// MarkRead отмечает уведомление прочитанным
// PATCH /api/notifications/:id/read
func (api *NotificationAPI) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	n, err := api.service.MarkRead(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, n)
}

// MarkAllRead отмечает все уведомления прочитанными
// PATCH /api/notifications/read-all
func (api *NotificationAPI) MarkAllRead(c *gin.Context) {
	updated, err := api.service.MarkAllRead(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, gin.H{"updated": updated})
}

// DeleteNotification удаляет уведомление
// DELETE /api/notifications/:id
func (api *NotificationAPI) DeleteNotification(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := api.service.Delete(c.Request.Context(), currentUser(c).ID, id); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Notification deleted")
}

// Stream открывает SSE-поток событий newNotification
// GET /api/notifications/stream
func (api *NotificationAPI) Stream(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	events, cancel, err := api.subscriber.Subscribe(ctx, user.ID)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	api.log.WithField("user_id", user.ID).Debug("SSE-подписка открыта")
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
	api.log.WithField("user_id", user.ID).Debug("SSE-подписка закрыта")
}
