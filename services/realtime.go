package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"backend_fieldservice/database"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// EventNewNotification имя события о новом уведомлении
const EventNewNotification = "newNotification"

// Event событие реального времени, адресованное пользователю
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Publisher доставляет события в личный канал пользователя.
// Доставка без подтверждения: неподключенный получатель событие теряет.
type Publisher interface {
	Publish(ctx context.Context, userID uint, event string, payload interface{}) error
}

// Subscriber открывает поток событий пользователя
type Subscriber interface {
	Subscribe(ctx context.Context, userID uint) (<-chan Event, func(), error)
}

// Hub внутрипроцессная шина событий с подписчиками по пользователям
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint]map[chan Event]struct{}
	buffer int
}

// NewHub создает новый экземпляр Hub
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[uint]map[chan Event]struct{}),
		buffer: 16,
	}
}

// Publish отправляет событие всем подключениям пользователя, не блокируясь
func (h *Hub) Publish(ctx context.Context, userID uint, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}
	ev := Event{Name: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			// медленный подписчик, событие отбрасывается
		}
	}
	return nil
}

// Subscribe регистрирует подключение пользователя
func (h *Hub) Subscribe(ctx context.Context, userID uint) (<-chan Event, func(), error) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Connected возвращает количество активных подключений пользователя
func (h *Hub) Connected(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// RedisPublisher рассылает события через Redis PUBLISH, чтобы их получали все инстансы
type RedisPublisher struct {
	client *redis.Client
	log    *logrus.Logger
}

// NewRedisPublisher создает новый экземпляр RedisPublisher
func NewRedisPublisher(client *redis.Client, log *logrus.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

// Publish публикует событие в канал notifications:<userId>
func (rp *RedisPublisher) Publish(ctx context.Context, userID uint, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}
	msg, err := json.Marshal(Event{Name: event, Data: data})
	if err != nil {
		return err
	}
	return rp.client.Publish(ctx, database.NotificationChannel(userID), msg).Err()
}

// Subscribe подписывается на канал пользователя в Redis
func (rp *RedisPublisher) Subscribe(ctx context.Context, userID uint) (<-chan Event, func(), error) {
	pubsub := rp.client.Subscribe(ctx, database.NotificationChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("не удалось подписаться на канал: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				rp.log.WithError(err).Warn("⚠️ Некорректное событие в канале уведомлений")
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}
