package services

import (
	"context"
	"testing"
	"time"

	"backend_fieldservice/models"
	"backend_fieldservice/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissionService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	st := testutils.CreateServiceType(t, env.db)
	when := time.Now().Add(24 * time.Hour)

	input := func(quoteID uint) MissionInput {
		return MissionInput{
			ServiceTypeID: st.ID,
			ClientID:      client.ID,
			TechnicianID:  tech.ID,
			QuoteID:       quoteID,
			ScheduledDate: &when,
			Address:       "12 avenue Victor Hugo",
		}
	}

	t.Run("предложение переходит в mission_assigned", func(t *testing.T) {
		quote := testutils.CreateQuote(t, env.db, client, tech, models.QuoteAccepted, 100)
		mission, err := env.missions.Create(ctx, admin, input(quote.ID))
		require.NoError(t, err)

		assert.Equal(t, models.MissionPending, mission.Status)
		assert.Equal(t, models.PriorityMedium, mission.Priority)
		assert.Regexp(t, `^MISS-\d+$`, mission.MissionNumber)
		assert.Nil(t, mission.InvoiceID)

		var reloaded models.Quote
		require.NoError(t, env.db.First(&reloaded, quote.ID).Error)
		assert.Equal(t, models.QuoteMissionAssigned, reloaded.Status)

		var notified int64
		env.db.Model(&models.Notification{}).
			Where("type = ? AND recipient_id IN ?", models.NotificationMissionAssigned, []uint{tech.ID, client.ID}).
			Count(&notified)
		assert.Equal(t, int64(2), notified)
	})

	t.Run("требуется принятое предложение", func(t *testing.T) {
		quote := testutils.CreateQuote(t, env.db, client, tech, models.QuoteSent, 100)
		_, err := env.missions.Create(ctx, admin, input(quote.ID))
		assert.ErrorIs(t, err, ErrInvalidTransition)

		var count int64
		env.db.Model(&models.Mission{}).Where("quote_id = ?", quote.ID).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("предложение другого клиента", func(t *testing.T) {
		otherClient := testutils.CreateUser(t, env.db, models.RoleClient, true)
		quote := testutils.CreateQuote(t, env.db, otherClient, tech, models.QuoteAccepted, 100)
		_, err := env.missions.Create(ctx, admin, input(quote.ID))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("только администратор", func(t *testing.T) {
		quote := testutils.CreateQuote(t, env.db, client, tech, models.QuoteAccepted, 100)
		_, err := env.missions.Create(ctx, tech, input(quote.ID))
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("обязательные поля", func(t *testing.T) {
		_, err := env.missions.Create(ctx, admin, MissionInput{})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.GreaterOrEqual(t, len(verr.Fields), 5)
	})
}

func TestMissionService_CompletionGeneratesInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)

	t.Run("завершение техником создает ровно один счет", func(t *testing.T) {
		quote, mission := env.acceptedQuoteMission(t, admin, client, tech, "")

		inProgress := models.MissionInProgress
		mission, err := env.missions.Update(ctx, tech, mission.ID, MissionUpdateInput{Status: &inProgress})
		require.NoError(t, err)
		assert.NotNil(t, mission.StartedAt)

		completed := models.MissionCompleted
		mission, err = env.missions.Update(ctx, tech, mission.ID, MissionUpdateInput{Status: &completed})
		require.NoError(t, err)
		require.NotNil(t, mission.InvoiceID)
		assert.NotNil(t, mission.CompletedAt)

		// Повторное сохранение в том же статусе не порождает второй счет
		_, err = env.missions.Update(ctx, tech, mission.ID, MissionUpdateInput{Status: &completed})
		require.NoError(t, err)

		var invoices []models.Invoice
		require.NoError(t, env.db.Preload("Items").Where("client_id = ?", client.ID).Find(&invoices).Error)
		require.Len(t, invoices, 1)

		invoice := invoices[0]
		assert.Equal(t, *mission.InvoiceID, invoice.ID)
		assert.True(t, invoice.TotalAmount.Equal(quote.Total))
		assert.Equal(t, []uint{quote.ID}, invoice.RelatedQuotes)
		assert.Equal(t, []uint{mission.ID}, invoice.RelatedMissions)
		assert.Equal(t, models.InvoicePending, invoice.Status)
		assert.Len(t, invoice.Items, 1)
		assert.Regexp(t, `^INV-\d{4}-\d{5}$`, invoice.InvoiceNumber)
		assert.True(t, env.alerter.has("Invoice generated"))
	})

	t.Run("создание сразу в статусе completed", func(t *testing.T) {
		_, mission := env.acceptedQuoteMission(t, admin, client, tech, models.MissionCompleted)
		require.NotNil(t, mission.InvoiceID)

		var invoice models.Invoice
		require.NoError(t, env.db.First(&invoice, *mission.InvoiceID).Error)
		assert.Equal(t, []uint{mission.ID}, invoice.RelatedMissions)
	})

	t.Run("из completed назад нельзя", func(t *testing.T) {
		_, mission := env.acceptedQuoteMission(t, admin, client, tech, models.MissionCompleted)
		pending := models.MissionPending
		_, err := env.missions.Update(ctx, admin, mission.ID, MissionUpdateInput{Status: &pending})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestMissionService_Access(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	otherTech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	_, mission := env.acceptedQuoteMission(t, admin, client, tech, "")

	t.Run("чужой техник не видит миссию", func(t *testing.T) {
		_, err := env.missions.Get(ctx, otherTech, mission.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("чужой техник не может изменить миссию", func(t *testing.T) {
		notes := "hack"
		_, err := env.missions.Update(ctx, otherTech, mission.ID, MissionUpdateInput{Notes: &notes})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("техник не может переназначить миссию", func(t *testing.T) {
		_, err := env.missions.Update(ctx, tech, mission.ID, MissionUpdateInput{TechnicianID: &otherTech.ID})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("список ограничен ролью", func(t *testing.T) {
		items, total, err := env.missions.List(ctx, tech, ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Len(t, items, 1)

		items, total, err = env.missions.List(ctx, otherTech, ListFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, items)
	})

	t.Run("поиск по адресу", func(t *testing.T) {
		_, total, err := env.missions.List(ctx, admin, ListFilter{Search: "RUE DE PARIS"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})
}

func TestMissionService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)

	t.Run("миссия со счетом требует force", func(t *testing.T) {
		_, mission := env.acceptedQuoteMission(t, admin, client, tech, models.MissionCompleted)

		err := env.missions.Delete(ctx, admin, mission.ID, false)
		assert.ErrorIs(t, err, ErrConflict)

		require.NoError(t, env.missions.Delete(ctx, admin, mission.ID, true))
		_, err = env.missions.Get(ctx, admin, mission.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		// счет сохраняется
		var invoices int64
		env.db.Model(&models.Invoice{}).Where("id = ?", *mission.InvoiceID).Count(&invoices)
		assert.Equal(t, int64(1), invoices)
	})

	t.Run("миссия без зависимостей удаляется", func(t *testing.T) {
		_, mission := env.acceptedQuoteMission(t, admin, client, tech, "")
		assert.NoError(t, env.missions.Delete(ctx, admin, mission.ID, false))
	})
}
