package services

import (
	"context"
	"testing"

	"backend_fieldservice/models"
	"backend_fieldservice/testutils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService_ServiceTypes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	inactive := false

	active, err := env.catalog.CreateServiceType(ctx, ServiceTypeInput{
		Name:      "Installation alarme",
		Category:  models.CategoryInstallation,
		BasePrice: decimal.RequireFromString("199.999"),
		SubTypes:  []models.SubType{{Name: "Filaire"}, {Name: "Sans fil"}},
	}, []string{"/uploads/service-types/a.jpg"})
	require.NoError(t, err)
	assert.True(t, active.BasePrice.Equal(decimal.RequireFromString("200")))
	assert.Len(t, active.SubTypes, 2)

	_, err = env.catalog.CreateServiceType(ctx, ServiceTypeInput{
		Name:     "Ancien contrat",
		Category: models.CategoryMaintenance,
		IsActive: &inactive,
	}, nil)
	require.NoError(t, err)

	t.Run("клиент видит только активные", func(t *testing.T) {
		items, total, err := env.catalog.ListServiceTypes(ctx, client, "", ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, active.ID, items[0].ID)
	})

	t.Run("администратор видит все", func(t *testing.T) {
		_, total, err := env.catalog.ListServiceTypes(ctx, admin, "", ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
	})

	t.Run("дубликат имени", func(t *testing.T) {
		_, err := env.catalog.CreateServiceType(ctx, ServiceTypeInput{Name: "Installation alarme", Category: models.CategoryRepair}, nil)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("неизвестная категория", func(t *testing.T) {
		_, err := env.catalog.CreateServiceType(ctx, ServiceTypeInput{Name: "X", Category: "painting"}, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("изображения добавляются при обновлении", func(t *testing.T) {
		updated, err := env.catalog.UpdateServiceType(ctx, active.ID, ServiceTypeInput{
			Name:     active.Name,
			Category: active.Category,
		}, []string{"/uploads/service-types/b.jpg"})
		require.NoError(t, err)
		assert.Len(t, updated.Images, 2)
		assert.Len(t, updated.SubTypes, 2, "подтипы без изменений")
	})

	t.Run("используемый тип услуги не удаляется", func(t *testing.T) {
		_, err := env.requests.Create(ctx, client, RequestInput{Description: "Pose", ServiceTypeID: &active.ID}, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, env.catalog.DeleteServiceType(ctx, active.ID), ErrConflict)
	})
}

func TestCatalogService_AdjustStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := testutils.CreateProduct(t, env.db, 5)

	t.Run("списание выше остатка отклоняется", func(t *testing.T) {
		_, err := env.catalog.AdjustStock(ctx, product.ID, -6)
		assert.ErrorIs(t, err, ErrValidation)

		reloaded, err := env.catalog.GetProduct(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, reloaded.Quantity)
	})

	t.Run("пополнение без оповещения", func(t *testing.T) {
		p, err := env.catalog.AdjustStock(ctx, product.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, 7, p.Quantity)
		assert.False(t, env.alerter.has("Низкий остаток"))
	})

	t.Run("низкий остаток порождает оповещение", func(t *testing.T) {
		p, err := env.catalog.AdjustStock(ctx, product.ID, -4)
		require.NoError(t, err)
		assert.Equal(t, LowStockThreshold, p.Quantity)
		assert.True(t, env.alerter.has("Низкий остаток"))
	})

	t.Run("неизвестный товар", func(t *testing.T) {
		_, err := env.catalog.AdjustStock(ctx, 9999, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCatalogService_Equipment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	camera := testutils.CreateProduct(t, env.db, 10)
	sensor := testutils.CreateProduct(t, env.db, 10)

	kit, err := env.catalog.CreateEquipment(ctx, EquipmentInput{
		Name:  "Kit vidéo",
		Price: decimal.NewFromInt(300),
		Components: []ComponentInput{
			{ProductID: camera.ID, Quantity: 2},
			{ProductID: sensor.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)

	t.Run("стоимость компонентов по ценам каталога", func(t *testing.T) {
		require.Len(t, kit.Components, 2)
		assert.Equal(t, camera.ID, kit.Components[0].ProductID)
		assert.True(t, kit.ComponentsTotal.Equal(decimal.NewFromInt(120)))
	})

	t.Run("несуществующий товар в составе", func(t *testing.T) {
		_, err := env.catalog.CreateEquipment(ctx, EquipmentInput{
			Name:       "Kit cassé",
			Price:      decimal.NewFromInt(10),
			Components: []ComponentInput{{ProductID: 9999, Quantity: 1}},
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "components[0].product_id", verr.Fields[0].Field)
	})

	t.Run("товар из комплекта не удаляется", func(t *testing.T) {
		assert.ErrorIs(t, env.catalog.DeleteProduct(ctx, camera.ID), ErrConflict)
	})

	t.Run("обновление заменяет состав", func(t *testing.T) {
		updated, err := env.catalog.UpdateEquipment(ctx, kit.ID, EquipmentInput{
			Name:       "Kit vidéo",
			Price:      decimal.NewFromInt(280),
			Components: []ComponentInput{{ProductID: sensor.ID, Quantity: 3}},
		})
		require.NoError(t, err)
		require.Len(t, updated.Components, 1)
		assert.True(t, updated.ComponentsTotal.Equal(decimal.NewFromInt(120)))

		assert.NoError(t, env.catalog.DeleteProduct(ctx, camera.ID))
	})
}
