package services

import (
	"context"
	"fmt"
	"net/http"

	"backend_fieldservice/config"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// Mailer отправляет исходящие письма
type Mailer interface {
	Send(ctx context.Context, toName, toEmail, subject, text, html string) error
}

// SendGridMailer отправляет письма через SendGrid API
type SendGridMailer struct {
	client *sendgrid.Client
	from   *sgmail.Email
	prefix string
}

// NewSendGridMailer создает новый экземпляр SendGridMailer
func NewSendGridMailer(cfg config.ExternalConfig) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   sgmail.NewEmail(cfg.MailFromName, cfg.MailFrom),
		prefix: "[" + cfg.MailFromName + "] ",
	}
}

// Send отправляет одно письмо
func (m *SendGridMailer) Send(ctx context.Context, toName, toEmail, subject, text, html string) error {
	message := sgmail.NewSingleEmail(m.from, m.prefix+subject, sgmail.NewEmail(toName, toEmail), text, html)
	res, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("ошибка отправки письма: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("SendGrid вернул статус %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// LogMailer пишет письма в лог, когда SendGrid не настроен
type LogMailer struct {
	log *logrus.Logger
}

// NewLogMailer создает новый экземпляр LogMailer
func NewLogMailer(log *logrus.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, toName, toEmail, subject, text, html string) error {
	m.log.WithFields(logrus.Fields{
		"to":      toEmail,
		"subject": subject,
	}).Info("📧 Письмо (SendGrid не настроен)")
	return nil
}

// NewMailer выбирает реализацию по конфигурации
func NewMailer(cfg config.ExternalConfig, log *logrus.Logger) Mailer {
	if cfg.SendGridAPIKey == "" {
		return NewLogMailer(log)
	}
	return NewSendGridMailer(cfg)
}
