package services

import (
	"context"
	"fmt"

	"backend_fieldservice/models"

	"github.com/sirupsen/logrus"
)

// SideEffects побочные действия рабочих процессов: уведомления, письма, оповещения.
// Все действия выполняются по принципу best-effort и не прерывают запрос.
type SideEffects struct {
	Notifications *NotificationService
	Mailer        Mailer
	Alerter       AdminAlerter
	Log           *logrus.Logger
}

// Notify рассылает пакет уведомлений
func (e *SideEffects) Notify(ctx context.Context, drafts []NotificationDraft) {
	if e == nil || e.Notifications == nil || len(drafts) == 0 {
		return
	}
	e.Notifications.Dispatch(ctx, drafts)
}

// Email отправляет письмо пользователю, ошибки только логируются
func (e *SideEffects) Email(ctx context.Context, to *models.User, subject, text string) {
	if e == nil || e.Mailer == nil || to == nil || to.Email == "" {
		return
	}
	html := fmt.Sprintf("<p>%s</p>", text)
	if err := e.Mailer.Send(ctx, to.FullName(), to.Email, subject, text, html); err != nil {
		e.Log.WithError(err).WithField("to", to.Email).Warn("⚠️ Не удалось отправить письмо")
	}
}

// Alert отправляет служебное оповещение администраторам
func (e *SideEffects) Alert(title, body string) {
	if e == nil || e.Alerter == nil {
		return
	}
	if err := e.Alerter.Alert(title, body); err != nil {
		e.Log.WithError(err).Warn("⚠️ Не удалось отправить оповещение в Telegram")
	}
}

// AdminDrafts уведомления администраторам
func (e *SideEffects) AdminDrafts(ctx context.Context, senderID *uint, notificationType, message string, entity models.RelatedEntity) []NotificationDraft {
	if e == nil || e.Notifications == nil {
		return nil
	}
	return e.Notifications.AdminDrafts(ctx, senderID, notificationType, message, entity)
}

func uintPtr(v uint) *uint {
	return &v
}
