package main

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"

	_ "github.com/noah-isme/driveschool-api/api/swagger"
	"github.com/noah-isme/driveschool-api/internal/handler"
	"github.com/noah-isme/driveschool-api/internal/repository"
	"github.com/noah-isme/driveschool-api/internal/router"
	"github.com/noah-isme/driveschool-api/internal/service"
	"github.com/noah-isme/driveschool-api/pkg/cache"
	"github.com/noah-isme/driveschool-api/pkg/config"
	"github.com/noah-isme/driveschool-api/pkg/database"
	"github.com/noah-isme/driveschool-api/pkg/logger"
)

// @title Driving School API
// @version 1.0.0
// @description REST backend for driving-school management: accounts, fleet, training sessions and enrollments.
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := database.Migrate(cfg.Database); err != nil {
		logr.Sugar().Fatalw("failed to apply migrations", "error", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(nil, metricsSvc, logr)
	cacheTTL := time.Duration(0)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, listing cache disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, metricsSvc, logr)
			cacheTTL = cfg.Cache.TTL
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	instructorSvc := service.NewInstructorService(instructorRepo, validate, logr)
	vehicleSvc := service.NewVehicleService(vehicleRepo, cacheRepo, cacheTTL, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, vehicleRepo, instructorRepo, cacheRepo, cacheTTL, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, sessionRepo, userRepo, validate, logr)

	cookie := handler.CookieSettings{
		Name:   cfg.JWT.CookieName,
		MaxAge: int(cfg.JWT.Expiration.Seconds()),
		Secure: cfg.Env == config.EnvProduction,
	}

	handlers := router.Handlers{
		Auth:        handler.NewAuthHandler(authSvc, cookie),
		Users:       handler.NewUserHandler(userSvc),
		Instructors: handler.NewInstructorHandler(instructorSvc),
		Vehicles:    handler.NewVehicleHandler(vehicleSvc),
		Sessions:    handler.NewSessionHandler(sessionSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc, metricsSvc, cfg.Exports.Enabled),
		Metrics:     handler.NewMetricsHandler(metricsSvc),
	}

	r := router.New(cfg, logr, authSvc, metricsSvc, userRepo, handlers)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
