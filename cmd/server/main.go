package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/awraqsoft/munaqasat/internal/config"
	"github.com/awraqsoft/munaqasat/internal/handler"
	"github.com/awraqsoft/munaqasat/internal/middleware"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/repository"
	"github.com/awraqsoft/munaqasat/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting munaqasat service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.User{},
		&entity.Tender{},
		&entity.Material{},
		&entity.Document{},
		&entity.ActivityEvent{},
		&entity.TrashRecord{},
	); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	rdb := initRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}

	minioClient, err := initMinIO(cfg.MinIO)
	if err != nil {
		zapLogger.Warn("MinIO unavailable, uploads disabled", zap.Error(err))
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(db, rdb, minioClient, repos, cfg, zapLogger)
	defer services.Close()
	handlers := handler.NewHandlers(services, cfg)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/sse"})))

	registerRoutes(router, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func initMinIO(cfg config.MinIOConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured")
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)
			authorized.POST("/auth/logout", h.Auth.Logout)

			tenders := authorized.Group("/tenders")
			{
				tenders.GET("", h.Tender.List)
				tenders.POST("", h.Tender.Create)
				tenders.GET("/search", h.Tender.Search)
				tenders.GET("/stats", h.Tender.Stats)
				tenders.POST("/items/stage", h.Tender.StageItems)
				tenders.GET("/:id", h.Tender.Get)
				tenders.PUT("/:id", h.Tender.Update)
				tenders.PUT("/:id/status", h.Tender.UpdateStatus)
				tenders.DELETE("/:id", h.Tender.Delete)
				tenders.POST("/:id/items/merge", h.Tender.MergeStaged)
				tenders.PUT("/:id/items/:itemId/quantity", h.Tender.UpdateItemQuantity)
				tenders.DELETE("/:id/items/:itemId", h.Tender.DeleteItem)
				tenders.POST("/:id/items/refresh-prices", h.Tender.RefreshPrices)
				tenders.POST("/:id/competitors", h.Tender.AddCompetitor)
			}

			materials := authorized.Group("/materials")
			{
				materials.GET("", h.Material.List)
				materials.POST("", h.Material.Create)
				materials.GET("/search", h.Material.Search)
				materials.GET("/:id", h.Material.Get)
				materials.PUT("/:id", h.Material.Update)
				materials.POST("/:id/quotes", h.Material.AddQuote)
				materials.DELETE("/:id", h.Material.Delete)
				materials.POST("/bulk-delete", h.Material.BulkDelete)
			}

			documents := authorized.Group("/documents")
			{
				documents.GET("", h.Document.List)
				documents.POST("", h.Document.Upload)
				documents.GET("/:id", h.Document.Get)
				documents.GET("/:id/download", h.Document.Download)
				documents.DELETE("/:id", h.Document.Delete)
			}

			trash := authorized.Group("/trash")
			{
				trash.GET("", h.Tender.ListTrash)
				trash.POST("/tenders/:trashId/restore", h.Tender.Restore)
				trash.POST("/materials/:trashId/restore", h.Material.Restore)
				trash.DELETE("/materials/:trashId", h.Material.Purge)
				trash.POST("/documents/:trashId/restore", h.Document.Restore)
				trash.DELETE("/documents/:trashId", h.Document.Purge)
			}

			authorized.GET("/activity", h.Activity.Feed)
			authorized.POST("/activity/prune", h.Activity.Prune)
			authorized.GET("/sse/events", h.Activity.Stream)

			nav := authorized.Group("/nav-state")
			{
				nav.GET("", h.Nav.Staged)
				nav.GET("/:key", h.Nav.Get)
				nav.PUT("/:key", h.Nav.Set)
				nav.DELETE("/:key", h.Nav.Clear)
			}
		}
	}
}
