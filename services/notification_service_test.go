package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"backend_fieldservice/models"
	"backend_fieldservice/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService_Dispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sender := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	recipient := testutils.CreateUser(t, env.db, models.RoleClient, true)

	t.Run("Автор и повторы пропускаются", func(t *testing.T) {
		env.notifications.Dispatch(ctx, []NotificationDraft{
			{RecipientID: recipient.ID, SenderID: &sender.ID, Type: models.NotificationQuoteSent, Message: "first"},
			{RecipientID: recipient.ID, SenderID: &sender.ID, Type: models.NotificationQuoteSent, Message: "duplicate"},
			{RecipientID: sender.ID, SenderID: &sender.ID, Type: models.NotificationQuoteSent, Message: "self"},
			{RecipientID: 0, Type: models.NotificationQuoteSent, Message: "nobody"},
		})

		items, total, err := env.notifications.List(ctx, recipient.ID, NotificationFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, "first", items[0].Message)
		require.NotNil(t, items[0].Sender)
		assert.Equal(t, sender.ID, items[0].Sender.ID)

		count, err := env.notifications.UnreadCount(ctx, sender.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("Подписчик получает событие", func(t *testing.T) {
		events, cancel, err := env.hub.Subscribe(ctx, recipient.ID)
		require.NoError(t, err)
		defer cancel()
		assert.Equal(t, 1, env.hub.Connected(recipient.ID))

		n, err := env.notifications.Notify(ctx, NotificationDraft{
			RecipientID: recipient.ID,
			Type:        models.NotificationMissionAssigned,
			Message:     "Mission assigned",
			Entity:      models.RelatedEntity{ID: 42, Type: models.EntityMission},
		})
		require.NoError(t, err)
		require.NotNil(t, n.RelatedEntityID)
		assert.Equal(t, uint(42), *n.RelatedEntityID)

		select {
		case ev := <-events:
			assert.Equal(t, EventNewNotification, ev.Name)
			var payload models.Notification
			require.NoError(t, json.Unmarshal(ev.Data, &payload))
			assert.Equal(t, n.ID, payload.ID)
			assert.Equal(t, models.EntityMission, payload.RelatedEntityType)
		case <-time.After(time.Second):
			t.Fatal("событие не доставлено")
		}
	})

	t.Run("Уведомления администраторам", func(t *testing.T) {
		second := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
		testutils.CreateUser(t, env.db, models.RoleAdmin, false)

		drafts := env.notifications.AdminDrafts(ctx, &recipient.ID, models.NotificationRequestCreated, "New request", models.RelatedEntity{ID: 1, Type: models.EntityRequest})
		ids := make([]uint, 0, len(drafts))
		for _, d := range drafts {
			ids = append(ids, d.RecipientID)
		}
		assert.ElementsMatch(t, []uint{sender.ID, second.ID}, ids)
	})
}

func TestNotificationService_ReadState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	other := testutils.CreateUser(t, env.db, models.RoleTechnician, true)

	var created []*models.Notification
	for i := 0; i < 3; i++ {
		n, err := env.notifications.Notify(ctx, NotificationDraft{RecipientID: owner.ID, Type: models.NotificationNewMessage, Message: "hello"})
		require.NoError(t, err)
		created = append(created, n)
	}

	t.Run("Чужое уведомление недоступно", func(t *testing.T) {
		_, err := env.notifications.MarkRead(ctx, other.ID, created[0].ID)
		assert.True(t, errors.Is(err, ErrForbidden))

		err = env.notifications.Delete(ctx, other.ID, created[0].ID)
		assert.True(t, errors.Is(err, ErrForbidden))

		_, err = env.notifications.MarkRead(ctx, owner.ID, 99999)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Отметка прочитанным", func(t *testing.T) {
		n, err := env.notifications.MarkRead(ctx, owner.ID, created[0].ID)
		require.NoError(t, err)
		assert.True(t, n.IsRead)
		assert.NotNil(t, n.ReadAt)

		count, err := env.notifications.UnreadCount(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		unread, total, err := env.notifications.List(ctx, owner.ID, NotificationFilter{UnreadOnly: true})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, unread, 2)
	})

	t.Run("Пагинация", func(t *testing.T) {
		page, total, err := env.notifications.List(ctx, owner.ID, NotificationFilter{Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, page, 1)
	})

	t.Run("Все прочитаны и удаление", func(t *testing.T) {
		updated, err := env.notifications.MarkAllRead(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated)

		count, err := env.notifications.UnreadCount(ctx, owner.ID)
		require.NoError(t, err)
		assert.Zero(t, count)

		require.NoError(t, env.notifications.Delete(ctx, owner.ID, created[1].ID))
		_, total, err := env.notifications.List(ctx, owner.ID, NotificationFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
	})
}

func TestHub(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	first, cancelFirst, err := hub.Subscribe(ctx, 7)
	require.NoError(t, err)
	second, cancelSecond, err := hub.Subscribe(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Connected(7))

	t.Run("Событие получают все подключения", func(t *testing.T) {
		require.NoError(t, hub.Publish(ctx, 7, "ping", map[string]int{"n": 1}))
		for _, ch := range []<-chan Event{first, second} {
			ev := <-ch
			assert.Equal(t, "ping", ev.Name)
			assert.JSONEq(t, `{"n":1}`, string(ev.Data))
		}
	})

	t.Run("Другой пользователь не получает событие", func(t *testing.T) {
		require.NoError(t, hub.Publish(ctx, 8, "ping", nil))
		select {
		case ev := <-first:
			t.Fatalf("неожиданное событие %q", ev.Name)
		default:
		}
	})

	t.Run("Отписка закрывает канал", func(t *testing.T) {
		cancelFirst()
		cancelFirst()
		_, open := <-first
		assert.False(t, open)
		assert.Equal(t, 1, hub.Connected(7))

		cancelSecond()
		assert.Zero(t, hub.Connected(7))
		require.NoError(t, hub.Publish(ctx, 7, "ping", nil))
	})

	t.Run("Переполненный буфер не блокирует", func(t *testing.T) {
		_, cancel, err := hub.Subscribe(ctx, 9)
		require.NoError(t, err)
		defer cancel()
		for i := 0; i < 100; i++ {
			require.NoError(t, hub.Publish(ctx, 9, "flood", i))
		}
	})
}
