package services

import (
	"context"
	"testing"

	"backend_fieldservice/models"
	"backend_fieldservice/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	other := testutils.CreateUser(t, env.db, models.RoleClient, true)
	st := testutils.CreateServiceType(t, env.db)

	request, err := env.requests.Create(ctx, client, RequestInput{
		Title:         "Panne alarme",
		Description:   "La centrale ne répond plus",
		Address:       "5 place Bellecour",
		ServiceTypeID: &st.ID,
	}, []models.Attachment{{OriginalName: "photo.jpg", URL: "/uploads/requests/photo.jpg"}})
	require.NoError(t, err)

	t.Run("заявка создана от имени клиента", func(t *testing.T) {
		assert.Equal(t, client.ID, request.ClientID)
		assert.Equal(t, models.RequestPending, request.Status)
		assert.Equal(t, models.PriorityMedium, request.Priority)
		assert.Regexp(t, `^REQ-\d{4}-\d{4}$`, request.Reference)
		assert.Len(t, request.Attachments, 1)

		var notified int64
		env.db.Model(&models.Notification{}).Where("recipient_id = ? AND type = ?", admin.ID, models.NotificationRequestCreated).Count(&notified)
		assert.Equal(t, int64(1), notified)
	})

	t.Run("техник не создает заявки", func(t *testing.T) {
		_, err := env.requests.Create(ctx, tech, RequestInput{Description: "x"}, nil)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("описание обязательно", func(t *testing.T) {
		_, err := env.requests.Create(ctx, client, RequestInput{Description: "   "}, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("чужой клиент не видит заявку", func(t *testing.T) {
		_, err := env.requests.Get(ctx, other, request.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("клиент правит заявку в статусе pending", func(t *testing.T) {
		addr := "7 place Bellecour"
		updated, err := env.requests.Update(ctx, client, request.ID, RequestUpdateInput{Address: &addr})
		require.NoError(t, err)
		assert.Equal(t, addr, updated.Address)
	})

	t.Run("клиент не меняет статус кроме отмены", func(t *testing.T) {
		status := models.RequestQuoted
		_, err := env.requests.Update(ctx, client, request.ID, RequestUpdateInput{Status: &status})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("назначение техника", func(t *testing.T) {
		assigned, err := env.requests.AssignTechnician(ctx, admin, request.ID, tech.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestAssigned, assigned.Status)
		require.NotNil(t, assigned.AssignedTechnicianID)
		assert.Equal(t, tech.ID, *assigned.AssignedTechnicianID)

		_, err = env.requests.Get(ctx, tech, request.ID)
		assert.NoError(t, err, "назначенный техник видит заявку")
	})

	t.Run("после назначения клиент не правит заявку", func(t *testing.T) {
		title := "Nouveau titre"
		_, err := env.requests.Update(ctx, client, request.ID, RequestUpdateInput{Title: &title})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("клиент может отменить заявку", func(t *testing.T) {
		status := models.RequestCancelled
		cancelled, err := env.requests.Update(ctx, client, request.ID, RequestUpdateInput{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, models.RequestCancelled, cancelled.Status)
	})
}

func TestRequestService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)

	t.Run("заявку с предложением удалить нельзя", func(t *testing.T) {
		request, err := env.requests.Create(ctx, client, RequestInput{Description: "Diagnostic"}, nil)
		require.NoError(t, err)

		quote, err := env.quotes.Create(ctx, admin, QuoteInput{ClientID: client.ID, RequestID: &request.ID, Items: quoteItems()})
		require.NoError(t, err)
		require.NotNil(t, quote.RequestID)

		reloaded, err := env.requests.Get(ctx, admin, request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestQuoted, reloaded.Status)

		assert.ErrorIs(t, env.requests.Delete(ctx, admin, request.ID), ErrConflict)
	})

	t.Run("клиент удаляет свою pending заявку", func(t *testing.T) {
		request, err := env.requests.Create(ctx, client, RequestInput{Description: "Entretien"}, nil)
		require.NoError(t, err)
		require.NoError(t, env.requests.Delete(ctx, client, request.ID))

		_, err = env.requests.Get(ctx, admin, request.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
