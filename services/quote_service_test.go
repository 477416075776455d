package services

import (
	"context"
	"testing"
	"time"

	"backend_fieldservice/models"
	"backend_fieldservice/testutils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quoteItems() []QuoteItemInput {
	return []QuoteItemInput{
		{Description: "Caméra IP", Quantity: 2, UnitPrice: decimal.NewFromInt(100), ItemType: models.ItemTypeEquipment},
		{Description: "Main d'oeuvre", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00"), ItemType: models.ItemTypeService},
	}
}

func TestQuoteService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)

	t.Run("итоги вычисляются из позиций", func(t *testing.T) {
		quote, err := env.quotes.Create(ctx, admin, QuoteInput{
			Title:        "Vidéosurveillance",
			ClientID:     client.ID,
			TechnicianID: &tech.ID,
			Items:        quoteItems(),
		})
		require.NoError(t, err)

		assert.Equal(t, models.QuoteDraft, quote.Status)
		assert.True(t, quote.Subtotal.Equal(decimal.NewFromInt(250)))
		assert.True(t, quote.TaxAmount.Equal(decimal.NewFromInt(50)))
		assert.True(t, quote.Total.Equal(decimal.NewFromInt(300)))
		assert.Len(t, quote.Items, 2)
		assert.Regexp(t, `^DEV-\d{4}-\d{3,}$`, quote.Reference)
		require.NotNil(t, quote.ValidUntil)
		assert.True(t, quote.ValidUntil.After(time.Now().AddDate(0, 0, 29)))
	})

	t.Run("техник назначается автоматически", func(t *testing.T) {
		quote, err := env.quotes.Create(ctx, tech, QuoteInput{ClientID: client.ID, Items: quoteItems()})
		require.NoError(t, err)
		require.NotNil(t, quote.TechnicianID)
		assert.Equal(t, tech.ID, *quote.TechnicianID)
	})

	t.Run("клиент не может создать предложение", func(t *testing.T) {
		_, err := env.quotes.Create(ctx, client, QuoteInput{ClientID: client.ID, Items: quoteItems()})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("пустой список позиций отклоняется", func(t *testing.T) {
		_, err := env.quotes.Create(ctx, admin, QuoteInput{ClientID: client.ID})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("клиент должен иметь роль client", func(t *testing.T) {
		_, err := env.quotes.Create(ctx, admin, QuoteInput{ClientID: tech.ID, Items: quoteItems()})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestQuoteService_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)

	quote, err := env.quotes.Create(ctx, admin, QuoteInput{ClientID: client.ID, Items: quoteItems()})
	require.NoError(t, err)

	t.Run("замена позиций пересчитывает итоги", func(t *testing.T) {
		rate := decimal.NewFromInt(10)
		updated, err := env.quotes.Update(ctx, admin, quote.ID, QuoteUpdateInput{
			TaxRate: &rate,
			Items: []QuoteItemInput{
				{Description: "Forfait", Quantity: 1, UnitPrice: decimal.NewFromInt(400), ItemType: models.ItemTypeService},
			},
		})
		require.NoError(t, err)
		assert.Len(t, updated.Items, 1)
		assert.True(t, updated.Total.Equal(decimal.NewFromInt(440)))
	})

	t.Run("недопустимый переход статуса", func(t *testing.T) {
		status := models.QuoteAccepted
		_, err := env.quotes.Update(ctx, admin, quote.ID, QuoteUpdateInput{Status: &status})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("клиент не видит черновик", func(t *testing.T) {
		_, err := env.quotes.Get(ctx, client, quote.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestQuoteService_SendAndRespond(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	other := testutils.CreateUser(t, env.db, models.RoleClient, true)

	quote, err := env.quotes.Create(ctx, admin, QuoteInput{ClientID: client.ID, TechnicianID: &tech.ID, Items: quoteItems()})
	require.NoError(t, err)

	t.Run("ответ на неотправленное предложение", func(t *testing.T) {
		_, err := env.quotes.Respond(ctx, client, quote.ID, true, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	sent, err := env.quotes.Send(ctx, admin, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuoteSent, sent.Status)
	assert.NotNil(t, sent.SentAt)
	assert.Equal(t, 1, env.mailer.count(), "клиент получает письмо")

	t.Run("чужой клиент не может ответить", func(t *testing.T) {
		_, err := env.quotes.Respond(ctx, other, quote.ID, true, "")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("техник не может ответить", func(t *testing.T) {
		_, err := env.quotes.Respond(ctx, tech, quote.ID, true, "")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("сотрудник не выставляет ответ клиента", func(t *testing.T) {
		for _, status := range []models.QuoteStatus{models.QuoteAccepted, models.QuoteRejected} {
			s := status
			_, err := env.quotes.Update(ctx, admin, quote.ID, QuoteUpdateInput{Status: &s})
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
		reloaded, err := env.quotes.Get(ctx, admin, quote.ID)
		require.NoError(t, err)
		assert.Equal(t, models.QuoteSent, reloaded.Status)
		assert.Nil(t, reloaded.RespondedAt)
	})

	t.Run("владелец принимает предложение", func(t *testing.T) {
		accepted, err := env.quotes.Respond(ctx, client, quote.ID, true, "OK pour moi")
		require.NoError(t, err)
		assert.Equal(t, models.QuoteAccepted, accepted.Status)
		assert.Equal(t, "OK pour moi", accepted.ClientComments)
		assert.NotNil(t, accepted.RespondedAt)
		assert.True(t, env.alerter.has("Quote accepted"))

		var notified int64
		env.db.Model(&models.Notification{}).
			Where("recipient_id IN ? AND type = ?", []uint{admin.ID, tech.ID}, models.NotificationQuoteResponded).
			Count(&notified)
		assert.Equal(t, int64(2), notified)
	})

	t.Run("позиции принятого предложения неизменны", func(t *testing.T) {
		_, err := env.quotes.Update(ctx, admin, quote.ID, QuoteUpdateInput{Items: quoteItems()})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("mission_assigned ставится только созданием миссии", func(t *testing.T) {
		status := models.QuoteMissionAssigned
		_, err := env.quotes.Update(ctx, admin, quote.ID, QuoteUpdateInput{Status: &status})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		reloaded, err := env.quotes.Get(ctx, admin, quote.ID)
		require.NoError(t, err)
		assert.Equal(t, models.QuoteAccepted, reloaded.Status)
	})
}

func TestQuoteService_ExpireStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)

	stale := testutils.CreateQuote(t, env.db, client, tech, models.QuoteSent, 100)
	past := time.Now().Add(-24 * time.Hour)
	require.NoError(t, env.db.Model(stale).Update("valid_until", past).Error)
	fresh := testutils.CreateQuote(t, env.db, client, tech, models.QuoteSent, 100)
	future := time.Now().Add(24 * time.Hour)
	require.NoError(t, env.db.Model(fresh).Update("valid_until", future).Error)

	n, err := env.quotes.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var reloaded models.Quote
	require.NoError(t, env.db.First(&reloaded, stale.ID).Error)
	assert.Equal(t, models.QuoteExpired, reloaded.Status)

	t.Run("ответ на истекшее предложение", func(t *testing.T) {
		require.NoError(t, env.db.Model(fresh).Update("valid_until", past).Error)
		_, err := env.quotes.Respond(ctx, client, fresh.ID, true, "")
		assert.ErrorIs(t, err, ErrConflict)
	})
}
