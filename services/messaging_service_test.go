package services

import (
	"context"
	"strings"
	"testing"

	"backend_fieldservice/models"
	"backend_fieldservice/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagingService_Conversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	outsider := testutils.CreateUser(t, env.db, models.RoleClient, true)

	conversation, err := env.messaging.CreateConversation(ctx, client, ConversationInput{
		Subject:        "Question devis",
		ParticipantIDs: []uint{admin.ID, tech.ID, client.ID},
	})
	require.NoError(t, err)
	require.Len(t, conversation.Participants, 3, "создатель не дублируется")

	t.Run("клиент не пишет другому клиенту", func(t *testing.T) {
		_, err := env.messaging.CreateConversation(ctx, client, ConversationInput{ParticipantIDs: []uint{outsider.ID}})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("нужен хотя бы один собеседник", func(t *testing.T) {
		_, err := env.messaging.CreateConversation(ctx, admin, ConversationInput{ParticipantIDs: []uint{admin.ID}})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("сообщение увеличивает счетчики кроме отправителя", func(t *testing.T) {
		_, err := env.messaging.SendMessage(ctx, client, conversation.ID, "Bonjour", nil)
		require.NoError(t, err)
		_, err = env.messaging.SendMessage(ctx, client, conversation.ID, strings.Repeat("a", 200), nil)
		require.NoError(t, err)

		total, err := env.messaging.UnreadTotal(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)

		total, err = env.messaging.UnreadTotal(ctx, client)
		require.NoError(t, err)
		assert.Zero(t, total)

		var reloaded models.Conversation
		require.NoError(t, env.db.First(&reloaded, conversation.ID).Error)
		assert.Equal(t, lastMessagePreviewLength+1, len([]rune(reloaded.LastMessage)), "превью обрезается с многоточием")
	})

	t.Run("прочтение сбрасывает только свой счетчик", func(t *testing.T) {
		require.NoError(t, env.messaging.MarkRead(ctx, admin, conversation.ID))

		adminUnread, err := env.messaging.UnreadTotal(ctx, admin)
		require.NoError(t, err)
		assert.Zero(t, adminUnread)

		techUnread, err := env.messaging.UnreadTotal(ctx, tech)
		require.NoError(t, err)
		assert.Equal(t, int64(2), techUnread)
	})

	t.Run("посторонний не видит переписку", func(t *testing.T) {
		_, _, err := env.messaging.GetConversation(ctx, outsider, conversation.ID)
		assert.ErrorIs(t, err, ErrForbidden)

		assert.ErrorIs(t, env.messaging.MarkRead(ctx, outsider, conversation.ID), ErrNotFound)
	})

	t.Run("пустое сообщение без вложений", func(t *testing.T) {
		_, err := env.messaging.SendMessage(ctx, tech, conversation.ID, "  ", nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("сообщение только с вложением", func(t *testing.T) {
		msg, err := env.messaging.SendMessage(ctx, tech, conversation.ID, "", []models.Attachment{{URL: "/uploads/messages/plan.pdf", OriginalName: "plan.pdf"}})
		require.NoError(t, err)
		assert.Len(t, msg.Attachments, 1)

		_, messages, err := env.messaging.GetConversation(ctx, client, conversation.ID)
		require.NoError(t, err)
		assert.Len(t, messages, 3)
	})

	t.Run("список переписок участника", func(t *testing.T) {
		items, err := env.messaging.ListConversations(ctx, tech)
		require.NoError(t, err)
		assert.Len(t, items, 1)

		items, err = env.messaging.ListConversations(ctx, outsider)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestMessagingService_MissionMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	otherTech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	_, mission := env.acceptedQuoteMission(t, admin, client, tech, "")

	_, err := env.messaging.PostMissionMessage(ctx, tech, mission.ID, "J'arrive à 14h")
	require.NoError(t, err)

	t.Run("клиент миссии читает сообщения", func(t *testing.T) {
		messages, err := env.messaging.MissionMessages(ctx, client, mission.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		require.NotNil(t, messages[0].Sender)
		assert.Equal(t, tech.ID, messages[0].Sender.ID)
	})

	t.Run("чужой техник не имеет доступа", func(t *testing.T) {
		_, err := env.messaging.MissionMessages(ctx, otherTech, mission.ID)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = env.messaging.PostMissionMessage(ctx, otherTech, mission.ID, "?")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("переписка по чужой миссии запрещена", func(t *testing.T) {
		otherClient := testutils.CreateUser(t, env.db, models.RoleClient, true)
		_, err := env.messaging.CreateConversation(ctx, otherClient, ConversationInput{
			Subject:        "Mission",
			MissionID:      &mission.ID,
			ParticipantIDs: []uint{admin.ID},
		})
		assert.ErrorIs(t, err, ErrForbidden)

		missing := uint(999999)
		_, err = env.messaging.CreateConversation(ctx, admin, ConversationInput{
			MissionID:      &missing,
			ParticipantIDs: []uint{tech.ID},
		})
		assert.ErrorIs(t, err, ErrNotFound)

		messages, err := env.messaging.MissionMessages(ctx, client, mission.ID)
		require.NoError(t, err)
		assert.Len(t, messages, 1)
	})

	t.Run("участник миссии открывает переписку по ней", func(t *testing.T) {
		conversation, err := env.messaging.CreateConversation(ctx, client, ConversationInput{
			MissionID:      &mission.ID,
			ParticipantIDs: []uint{tech.ID},
		})
		require.NoError(t, err)
		_, err = env.messaging.SendMessage(ctx, client, conversation.ID, "Code portail 1234", nil)
		require.NoError(t, err)

		messages, err := env.messaging.MissionMessages(ctx, tech, mission.ID)
		require.NoError(t, err)
		assert.Len(t, messages, 2)
	})
}
