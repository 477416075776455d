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

func TestDashboardService_Stats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cache := NewCacheService(nil, env.log)
	dashboard := NewDashboardService(env.db, cache, env.log)

	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	otherClient := testutils.CreateUser(t, env.db, models.RoleClient, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	otherTech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)

	env.acceptedQuoteMission(t, admin, client, tech, models.MissionCompleted)
	env.acceptedQuoteMission(t, admin, otherClient, otherTech, models.MissionPending)
	testutils.CreateQuote(t, env.db, client, tech, models.QuoteSent, 100)

	t.Run("Администратор видит все", func(t *testing.T) {
		stats, err := dashboard.Stats(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, stats.Role)
		assert.Equal(t, int64(2), stats.TotalMissions)
		assert.Equal(t, int64(1), stats.MissionsByStatus[string(models.MissionCompleted)])
		assert.Equal(t, int64(1), stats.QuotesAwaiting)
		assert.Equal(t, int64(1), stats.UnpaidInvoices)
		assert.True(t, stats.Outstanding.IsPositive())
		assert.Equal(t, int64(2), stats.UsersByRole[models.RoleClient])
		assert.Equal(t, int64(2), stats.UsersByRole[models.RoleTechnician])
	})

	t.Run("Техник видит свои миссии", func(t *testing.T) {
		stats, err := dashboard.Stats(ctx, otherTech)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalMissions)
		assert.Equal(t, int64(1), stats.MissionsByStatus[string(models.MissionPending)])
		assert.Zero(t, stats.UnpaidInvoices)
		assert.Nil(t, stats.UsersByRole)
	})

	t.Run("Клиент видит свои данные", func(t *testing.T) {
		stats, err := dashboard.Stats(ctx, client)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalMissions)
		assert.Equal(t, int64(1), stats.QuotesAwaiting)
		assert.Equal(t, int64(1), stats.UnpaidInvoices)

		other, err := dashboard.Stats(ctx, otherClient)
		require.NoError(t, err)
		assert.Zero(t, other.UnpaidInvoices)
		assert.Zero(t, other.QuotesAwaiting)
	})

	t.Run("Кэш отключен без Redis", func(t *testing.T) {
		assert.False(t, cache.Enabled())
		var dest DashboardStats
		assert.ErrorIs(t, cache.GetJSON(ctx, "dashboard:admin:1", &dest), ErrCacheMiss)

		stats, err := cache.GetCacheStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, "disabled", stats["status"])
		cache.InvalidateDashboards(ctx)
	})
}

func TestDashboardService_RecentActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dashboard := NewDashboardService(env.db, NewCacheService(nil, env.log), env.log)

	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	testutils.CreateQuote(t, env.db, client, tech, models.QuoteDraft, 80)
	_, mission := env.acceptedQuoteMission(t, admin, client, tech, models.MissionPending)

	t.Run("Клиент не видит черновики", func(t *testing.T) {
		items, err := dashboard.RecentActivity(ctx, client, 10)
		require.NoError(t, err)
		for _, item := range items {
			assert.NotEqual(t, string(models.QuoteDraft), item.Status)
		}
		assert.Len(t, items, 2)
	})

	t.Run("Сортировка по времени и лимит", func(t *testing.T) {
		require.NoError(t, env.db.Model(&models.Mission{}).Where("id = ?", mission.ID).
			Update("updated_at", time.Now().Add(time.Hour)).Error)

		items, err := dashboard.RecentActivity(ctx, admin, 1)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, models.EntityMission, items[0].Type)
		assert.Equal(t, mission.ID, items[0].ID)
	})
}
