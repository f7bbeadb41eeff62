package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/mhp-survey-api/internal/handler"
	"github.com/noah-isme/mhp-survey-api/internal/middleware"
	"github.com/noah-isme/mhp-survey-api/internal/repository"
	"github.com/noah-isme/mhp-survey-api/internal/service"
	"github.com/noah-isme/mhp-survey-api/pkg/cache"
	"github.com/noah-isme/mhp-survey-api/pkg/config"
	"github.com/noah-isme/mhp-survey-api/pkg/database"
	"github.com/noah-isme/mhp-survey-api/pkg/jobs"
	"github.com/noah-isme/mhp-survey-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/mhp-survey-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mhp-survey-api/pkg/middleware/requestid"
)

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	institutionRepo := repository.NewInstitutionRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, cfg.Dashboard.CacheTTL, logr)

	classifier := service.NewClassifierService(cfg.Classifier, logr, metricsSvc)

	screeningSvc := service.NewScreeningService(
		responseRepo,
		classifier,
		nil, // dispatcher attached below once the queue exists
		service.PolicyFromConfig(cfg.Screening),
		logr,
		metricsSvc,
	)

	queue := jobs.NewQueue("screening", screeningSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Screening.Workers,
		MaxRetries: cfg.Screening.MaxRetries,
		RetryDelay: cfg.Screening.RetryDelay,
		Logger:     logr,
	})
	screeningSvc.SetDispatcher(queue)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "mhp-survey-api",
	})
	institutionSvc := service.NewInstitutionService(institutionRepo, validate)
	surveySvc := service.NewSurveyService(templateRepo, responseRepo, studentRepo, screeningSvc, cacheSvc, validate, logr, metricsSvc)
	dashboardSvc := service.NewDashboardService(responseRepo, cacheSvc, cfg.Dashboard.CacheTTL, logr)

	handlers := handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Surveys:      handler.NewSurveyHandler(surveySvc),
		Dashboard:    handler.NewDashboardHandler(dashboardSvc),
		Institutions: handler.NewInstitutionHandler(institutionSvc),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	handler.RegisterRoutes(api, handlers, authSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}

	queue.Stop()
	logr.Sugar().Infow("server stopped")
}
