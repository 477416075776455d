package services

import (
	"fmt"
	"html"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"backend_fieldservice/config"
)

// AdminAlerter канал служебных оповещений администраторов
type AdminAlerter interface {
	Alert(title, body string) error
}

// TelegramClient представляет клиент для работы с Telegram Bot API
type TelegramClient struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramClient создает новый экземпляр Telegram клиента
func NewTelegramClient(cfg config.ExternalConfig, log *logrus.Logger) (*TelegramClient, error) {
	if cfg.TelegramBotToken == "" || cfg.TelegramChatID == "" {
		return nil, fmt.Errorf("Telegram не настроен")
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("неверный chat ID: %s", cfg.TelegramChatID)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram бота: %w", err)
	}

	// В продакшене отключаем debug
	bot.Debug = false

	log.Infof("✅ Telegram бот авторизован: %s", bot.Self.UserName)

	return &TelegramClient{bot: bot, chatID: chatID}, nil
}

// Alert отправляет оповещение в служебный чат
func (tc *TelegramClient) Alert(title, body string) error {
	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(title), html.EscapeString(body))

	msg := tgbotapi.NewMessage(tc.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := tc.bot.Send(msg); err != nil {
		return fmt.Errorf("ошибка отправки сообщения: %w", err)
	}
	return nil
}

// noopAlerter используется, когда Telegram не настроен
type noopAlerter struct{}

func (noopAlerter) Alert(title, body string) error { return nil }

// NewAdminAlerter создает Telegram-оповещатель или пустую реализацию
func NewAdminAlerter(cfg config.ExternalConfig, log *logrus.Logger) AdminAlerter {
	if cfg.TelegramBotToken == "" {
		return noopAlerter{}
	}
	client, err := NewTelegramClient(cfg, log)
	if err != nil {
		log.WithError(err).Warn("⚠️ Telegram оповещения отключены")
		return noopAlerter{}
	}
	return client
}
