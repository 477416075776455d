package api

import (
	"net/http"
	"time"

	"backend_fieldservice/config"
	"backend_fieldservice/database"
	"backend_fieldservice/middleware"
	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies зависимости HTTP-слоя
type Dependencies struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Log    *logrus.Logger

	Auth          *services.AuthService
	Users         *services.UserService
	Catalog       *services.CatalogService
	Requests      *services.RequestService
	Quotes        *services.QuoteService
	Missions      *services.MissionService
	Reports       *services.ReportService
	Billing       *services.BillingService
	Messaging     *services.MessagingService
	Notifications *services.NotificationService
	Subscriber    services.Subscriber
	Dashboard     *services.DashboardService
	Cache         *services.CacheService
	Scheduler     *services.SchedulerService
	Uploads       *services.UploadService
	PDF           *services.PDFService
	Export        *services.ExportService
}

// SetupRouter собирает Gin-роутер со всеми маршрутами API
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", healthHandler(deps))
	r.Static(cfg.Uploads.PublicPath, cfg.Uploads.Dir)

	authMW := middleware.NewAuthMiddleware(deps.Auth)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTechnician)
	clientOnly := middleware.RequireRoles(models.RoleClient)

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.APIRateLimit(deps.Redis, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow))

	NewAuthAPI(deps.Auth, deps.Log).
		RegisterAuthRoutes(apiGroup, authMW, middleware.AuthRateLimit(deps.Redis, cfg.Security.AuthRateLimit))

	// Публичное чтение контента сайта, изменение только администратором
	NewSiteCustomizationAPI(deps.DB, deps.Log).
		RegisterSiteCustomizationRoutes(apiGroup, authMW.RequireAuth(), adminOnly)

	protected := apiGroup.Group("", authMW.RequireAuth(),
		middleware.UserRateLimit(deps.Redis, cfg.Security.UserRateLimit, cfg.Security.RateLimitWindow))
	NewUsersAPI(deps.Users, deps.Log).RegisterUsersRoutes(protected, adminOnly, staff)
	NewCompaniesAPI(deps.DB, deps.Log).RegisterCompaniesRoutes(protected, adminOnly)
	NewCatalogAPI(deps.Catalog, deps.Uploads, deps.Log).RegisterCatalogRoutes(protected, adminOnly)
	NewRequestsAPI(deps.Requests, deps.Uploads, deps.Log).RegisterRequestsRoutes(protected, adminOnly)
	NewQuotesAPI(deps.Quotes, deps.PDF, deps.Log).RegisterQuotesRoutes(protected, staff, clientOnly)
	NewMissionsAPI(deps.Missions, deps.Export, deps.Log).RegisterMissionsRoutes(protected, adminOnly, staff)
	NewReportsAPI(deps.Reports, deps.Uploads, deps.PDF, deps.Log).RegisterReportsRoutes(protected, staff)
	NewInvoicesAPI(deps.Billing, deps.PDF, deps.Export, deps.Log).RegisterInvoicesRoutes(protected, adminOnly)
	NewPaymentsAPI(deps.Billing, deps.Log).RegisterPaymentsRoutes(protected, adminOnly)
	NewMessagesAPI(deps.Messaging, deps.Uploads, deps.Log).RegisterMessagesRoutes(protected)
	NewNotificationAPI(deps.Notifications, deps.Subscriber, deps.Log).RegisterNotificationRoutes(protected)
	NewDashboardAPI(deps.Dashboard, deps.Cache, deps.Scheduler, deps.Log).RegisterDashboardRoutes(protected, adminOnly)

	r.NoRoute(func(c *gin.Context) {
		respondFail(c, http.StatusNotFound, "Route not found", c.Request.URL.Path)
	})
	return r
}

// healthHandler сообщает состояние БД и Redis
func healthHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		dbStatus := "connected"
		if err := database.Ping(deps.DB); err != nil {
			status = "degraded"
			dbStatus = "disconnected"
			deps.Log.WithError(err).Warn("Health: база данных недоступна")
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			redisStatus = "connected"
			if err := deps.Redis.Ping(c.Request.Context()).Err(); err != nil {
				status = "degraded"
				redisStatus = "disconnected"
			}
		}

		code := http.StatusOK
		if dbStatus != "connected" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"success": code == http.StatusOK,
			"data": gin.H{
				"status":      status,
				"environment": deps.Config.App.Env,
				"database":    dbStatus,
				"redis":       redisStatus,
				"time":        time.Now().UTC(),
			},
		})
	}
}
