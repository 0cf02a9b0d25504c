package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/jromanv/portal-liceo-tecpan-sub000/api/swagger"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/handler"
	internalmiddleware "github.com/jromanv/portal-liceo-tecpan-sub000/internal/middleware"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/models"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/repository"
	"github.com/jromanv/portal-liceo-tecpan-sub000/internal/service"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/cache"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/config"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/database"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/export"
	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/logger"
	corsmiddleware "github.com/jromanv/portal-liceo-tecpan-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/jromanv/portal-liceo-tecpan-sub000/pkg/middleware/requestid"
)

// @title Portal Liceo Tecpan Bulk Provisioning API
// @version 1.0.0
// @description Validate spreadsheets of students, teachers and directors and create their accounts
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	if !cacheRepo.Enabled() {
		logr.Info("preview cache disabled, batches must submit rows")
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Provisioning.PreviewTTL, logr, cacheRepo.Enabled())
	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	cycleRepo := repository.NewCycleRepository(db)
	provisioningRepo := repository.NewProvisioningRepository(db)

	rowValidator := service.NewBulkRowValidator(userRepo, studentRepo, teacherRepo, cfg.Provisioning.AllowedDomains, validate)
	bulkSvc := service.NewBulkUserService(rowValidator, cycleRepo, cacheSvc, metrics, logr)
	provisioningSvc := service.NewProvisioningService(provisioningRepo, userRepo, cacheSvc, metrics, validate, logr, cfg.Provisioning.BcryptCost)
	exportSvc := service.NewBulkExportService(export.NewCSVExporter(), export.NewPDFExporter())

	bulkHandler := handler.NewBulkUserHandler(bulkSvc, provisioningSvc, exportSvc, cfg.Provisioning.MaxUploadBytes)
	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if cacheRepo.Enabled() {
		checks["redis"] = cacheRepo.Ping
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	bulk := api.Group("/users/bulk")
	bulk.Use(internalmiddleware.JWT(tokens), internalmiddleware.RequireRoles(models.RoleDirector))
	bulk.POST("/validate", bulkHandler.Validate)
	bulk.POST("/provision", bulkHandler.Provision)
	bulk.GET("/batches/:id", bulkHandler.Batch)
	bulk.GET("/batches/:id/report", bulkHandler.BatchReport)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
