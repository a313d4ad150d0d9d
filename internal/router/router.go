package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/driveschool-api/internal/handler"
	"github.com/noah-isme/driveschool-api/internal/middleware"
	"github.com/noah-isme/driveschool-api/internal/models"
	"github.com/noah-isme/driveschool-api/internal/service"
	"github.com/noah-isme/driveschool-api/pkg/config"
	"github.com/noah-isme/driveschool-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/driveschool-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/driveschool-api/pkg/middleware/requestid"
	"go.uber.org/zap"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth        *handler.AuthHandler
	Users       *handler.UserHandler
	Instructors *handler.InstructorHandler
	Vehicles    *handler.VehicleHandler
	Sessions    *handler.SessionHandler
	Enrollments *handler.EnrollmentHandler
	Metrics     *handler.MetricsHandler
}

// New builds the gin engine with all middleware and routes mounted.
func New(cfg *config.Config, logr *zap.Logger, auth *service.AuthService, metrics *service.MetricsService, audit middleware.AuditSink, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireAuth := middleware.JWT(auth, cfg.JWT.CookieName)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)
	admin := middleware.RequireRoles(models.RoleAdmin)
	student := middleware.RequireRoles(models.RoleStudent, models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/snapshot", requireAuth, admin, h.Metrics.Snapshot)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/logout", h.Auth.Logout)
		authGroup.GET("/me", requireAuth, h.Auth.Me)
	}

	users := api.Group("/users", requireAuth, middleware.Audit(audit, "users"))
	{
		users.GET("", admin, h.Users.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Users.Get)
		users.PUT("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Users.Update)
	}

	instructors := api.Group("/instructors", requireAuth, middleware.Audit(audit, "instructors"))
	{
		instructors.GET("", admin, h.Instructors.List)
		instructors.GET("/:id", admin, h.Instructors.Get)
		instructors.POST("", admin, h.Instructors.Create)
		instructors.PUT("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Instructors.Update)
		instructors.DELETE("/:id", admin, h.Instructors.Delete)
	}

	vehicles := api.Group("/vehicles", middleware.Audit(audit, "vehicles"))
	{
		vehicles.GET("", h.Vehicles.List)
		vehicles.GET("/available", h.Vehicles.ListAvailable)
		vehicles.GET("/filter/type/:type", h.Vehicles.ListByType)
		vehicles.GET("/:id", h.Vehicles.Get)
		vehicles.POST("", requireAuth, admin, h.Vehicles.Create)
		vehicles.PUT("/:id", requireAuth, admin, h.Vehicles.Update)
		vehicles.DELETE("/:id", requireAuth, admin, h.Vehicles.Delete)
	}

	sessions := api.Group("/physical-training", middleware.Audit(audit, "training_sessions"))
	{
		sessions.GET("", h.Sessions.List)
		sessions.GET("/available", h.Sessions.ListAvailable)
		sessions.GET("/date-range", h.Sessions.ListByDateRange)
		sessions.GET("/instructor/:id", h.Sessions.ListByInstructor)
		sessions.GET("/:id", h.Sessions.Get)
		sessions.POST("", requireAuth, staff, h.Sessions.Create)
		sessions.PUT("/:id", requireAuth, staff, h.Sessions.Update)
		sessions.PATCH("/:id", requireAuth, staff, h.Sessions.UpdateStatus)
		sessions.DELETE("/:id", requireAuth, admin, h.Sessions.Delete)
	}

	enrollments := api.Group("/enroll-pts", requireAuth, middleware.Audit(audit, "session_enrollments"))
	{
		enrollments.POST("", student, h.Enrollments.Enroll)
		enrollments.GET("", admin, h.Enrollments.List)
		enrollments.GET("/stats", admin, h.Enrollments.Stats)
		enrollments.GET("/user/:userId", h.Enrollments.ListByUser)
		enrollments.GET("/session/:sessionId", staff, h.Enrollments.ListBySession)
		enrollments.GET("/session/:sessionId/export", staff, h.Enrollments.ExportRoster)
		enrollments.GET("/:id", h.Enrollments.Get)
		enrollments.PATCH("/:id", staff, h.Enrollments.UpdateStatus)
		enrollments.DELETE("/:id", h.Enrollments.Cancel)
	}

	return r
}
