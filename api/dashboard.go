package api

import (
	"strconv"

	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// defaultActivityLimit число событий ленты активности по умолчанию
const defaultActivityLimit = 10

// DashboardAPI обработчики панели управления
type DashboardAPI struct {
	dashboard *services.DashboardService
	cache     *services.CacheService
	scheduler *services.SchedulerService
	log       *logrus.Logger
}

// NewDashboardAPI создает новый экземпляр DashboardAPI; scheduler может быть nil
func NewDashboardAPI(dashboard *services.DashboardService, cache *services.CacheService, scheduler *services.SchedulerService, log *logrus.Logger) *DashboardAPI {
	return &DashboardAPI{dashboard: dashboard, cache: cache, scheduler: scheduler, log: log}
}

// RegisterDashboardRoutes регистрирует маршруты /api/dashboard
func (api *DashboardAPI) RegisterDashboardRoutes(r *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	dashboard := r.Group("/dashboard")
	{
		dashboard.GET("/stats", api.GetDashboardStats)
		dashboard.GET("/activity", api.GetDashboardActivity)
		dashboard.GET("/cache", adminOnly, api.GetCacheStats)
		dashboard.DELETE("/cache", adminOnly, api.InvalidateCache)
		dashboard.GET("/jobs", adminOnly, api.GetJobs)
	}
}

// GetDashboardStats получает статистику с учетом роли
func (api *DashboardAPI) GetDashboardStats(c *gin.Context) {
	stats, err := api.dashboard.Stats(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, stats)
}

// GetDashboardActivity получает последнюю активность (?limit=)
func (api *DashboardAPI) GetDashboardActivity(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultActivityLimit)))
	if err != nil || limit < 1 || limit > 50 {
		limit = defaultActivityLimit
	}
	items, err := api.dashboard.RecentActivity(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, items)
}

// GetCacheStats возвращает статистику кэша
func (api *DashboardAPI) GetCacheStats(c *gin.Context) {
	stats, err := api.cache.GetCacheStats(c.Request.Context())
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, stats)
}

// InvalidateCache сбрасывает кэш статистики
func (api *DashboardAPI) InvalidateCache(c *gin.Context) {
	api.cache.InvalidateDashboards(c.Request.Context())
	respondMessage(c, "Dashboard cache invalidated")
}

// GetJobs возвращает расписание фоновых задач
func (api *DashboardAPI) GetJobs(c *gin.Context) {
	if api.scheduler == nil {
		respondOK(c, []interface{}{})
		return
	}
	respondOK(c, api.scheduler.Jobs())
}
