package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Dalmocabral/crewcenter/awards"
	"github.com/Dalmocabral/crewcenter/config"
	"github.com/Dalmocabral/crewcenter/controllers"
	"github.com/Dalmocabral/crewcenter/events"
	"github.com/Dalmocabral/crewcenter/middleware"
	"github.com/Dalmocabral/crewcenter/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, engine *awards.Engine, bus events.Bus, cache *utils.Cache, log *zap.Logger) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if cfg.MetricsEnabled {
		r.Use(middleware.RequestMetrics())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	awardController := controllers.NewAwardController(db, bus, engine, log)
	pirepController := controllers.NewPirepController(db, bus, log)
	progressController := controllers.NewProgressController(engine)
	notificationController := controllers.NewNotificationController(engine)
	userController := controllers.NewUserController(db, cache)
	statsController := controllers.NewStatsController(db)

	api := r.Group("/api/v1")
	api.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	// Public catalog
	api.GET("/awards", awardController.ListAwards)
	api.GET("/awards/:id", awardController.GetAward)
	api.GET("/stats", statsController.GetStats)
	api.GET("/users/:id", userController.GetUser)
	api.GET("/users/:id/awards", progressController.UserProgress)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	protected.GET("/users", userController.ListUsers)
	protected.GET("/users/me/awards", progressController.MyProgress)
	protected.POST("/pireps", pirepController.CreatePirep)
	protected.GET("/pireps/me", pirepController.ListMyPireps)
	protected.GET("/notifications", notificationController.ListUnread)
	protected.PATCH("/notifications/:id/read", notificationController.MarkRead)

	admin := protected.Group("")
	admin.Use(middleware.AdminRequired())
	admin.POST("/awards", awardController.CreateAward)
	admin.POST("/admin/awards/:id/announce", awardController.AnnounceAward)
	admin.GET("/pireps", pirepController.ListPireps)
	admin.PATCH("/pireps/:id/review", pirepController.ReviewPirep)
	admin.POST("/admin/pilots/:id/reconcile", progressController.Recompute)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
