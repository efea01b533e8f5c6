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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/meridianpsych/practice-api/api/swagger"
	"github.com/meridianpsych/practice-api/internal/events"
	"github.com/meridianpsych/practice-api/internal/handler"
	"github.com/meridianpsych/practice-api/internal/middleware"
	"github.com/meridianpsych/practice-api/internal/models"
	"github.com/meridianpsych/practice-api/internal/repository"
	"github.com/meridianpsych/practice-api/internal/service"
	"github.com/meridianpsych/practice-api/pkg/cache"
	"github.com/meridianpsych/practice-api/pkg/config"
	"github.com/meridianpsych/practice-api/pkg/database"
	"github.com/meridianpsych/practice-api/pkg/export"
	"github.com/meridianpsych/practice-api/pkg/jobs"
	"github.com/meridianpsych/practice-api/pkg/logger"
	corsmiddleware "github.com/meridianpsych/practice-api/pkg/middleware/cors"
	reqidmiddleware "github.com/meridianpsych/practice-api/pkg/middleware/requestid"
)

// @title Meridian Practice API
// @version 1.0.0
// @description Appointment scheduling, content and operations API for a clinical psychology practice
// @BasePath /api/v1
// @schemes http https
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	postRepo := repository.NewPostRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	subscriberRepo := repository.NewSubscriberRepository(db)
	newsletterRepo := repository.NewNewsletterRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	var feed events.Feed
	if cfg.ChangeFeed.Enabled {
		feed = events.NewRedisFeed(redisClient, cfg.ChangeFeed.ChannelPrefix, logr)
	}

	metricsService := service.NewMetricsService()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      true,
	})

	availabilityService := service.NewAvailabilityService(availabilityRepo, appointmentRepo, service.SlotDefaults{
		DurationMinutes: cfg.Booking.DefaultDurationMinutes,
		SessionType:     cfg.Booking.DefaultSessionType,
	}, validate, logr)

	appointmentService := service.NewAppointmentService(appointmentRepo, availabilityService, feed, cacheRepo, validate, logr)
	postService := service.NewPostService(postRepo, validate, logr)
	messageService := service.NewMessageService(messageRepo, feed, cacheRepo, validate, logr)
	subscriberService := service.NewSubscriberService(subscriberRepo, validate, logr)

	newsletterService := service.NewNewsletterService(newsletterRepo, subscriberRepo, nil, jobs.QueueConfig{
		Workers:    cfg.Newsletter.WorkerConcurrency,
		MaxRetries: cfg.Newsletter.WorkerRetries,
		Logger:     logr,
	}, cfg.PublicBaseURL, validate, logr)

	dashboardService := service.NewDashboardService(appointmentRepo, messageRepo, subscriberRepo, postRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)
	exportService := service.NewExportService(availabilityService, subscriberRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Newsletter.Enabled {
		newsletterService.Start(ctx)
		defer newsletterService.Stop()
	}

	authHandler := handler.NewAuthHandler(authService)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityService)
	appointmentHandler := handler.NewAppointmentHandler(appointmentService, metricsService)
	postHandler := handler.NewPostHandler(postService)
	messageHandler := handler.NewMessageHandler(messageService)
	subscriberHandler := handler.NewSubscriberHandler(subscriberService)
	newsletterHandler := handler.NewNewsletterHandler(newsletterService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, metricsService)
	feedHandler := handler.NewFeedHandler(feed, logr)
	exportHandler := handler.NewExportHandler(exportService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)

		api.GET("/posts", postHandler.ListPublished)
		api.GET("/posts/:slug", postHandler.GetBySlug)
		api.POST("/contact", messageHandler.Submit)
		api.POST("/newsletter/subscribe", subscriberHandler.Subscribe)
		api.GET("/newsletter/unsubscribe", subscriberHandler.Unsubscribe)

		api.GET("/availability/:date", availabilityHandler.OpenSlots)
		api.POST("/appointments", appointmentHandler.Book)
	}

	staff := api.Group("/staff")
	staff.Use(middleware.JWT(authService))
	staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleTherapist))
	{
		staff.POST("/auth/logout", authHandler.Logout)
		staff.PUT("/auth/password", authHandler.ChangePassword)
		staff.GET("/auth/me", authHandler.Me)

		staff.GET("/availability/:date", availabilityHandler.Resolve)
		staff.GET("/availability/recurring", availabilityHandler.ListRecurring)
		staff.PUT("/availability/recurring", availabilityHandler.BulkRecurringEdit)
		staff.PUT("/availability/overrides", availabilityHandler.DateOverrideEdit)

		staff.GET("/appointments", appointmentHandler.List)
		staff.GET("/appointments/:id", appointmentHandler.Get)
		staff.PUT("/appointments/:id", appointmentHandler.Update)
		staff.PUT("/appointments/:id/status", appointmentHandler.Transition)

		staff.GET("/posts", postHandler.ListAll)
		staff.POST("/posts", postHandler.Create)
		staff.GET("/posts/:id", postHandler.Get)
		staff.PUT("/posts/:id", postHandler.Update)
		staff.DELETE("/posts/:id", postHandler.Delete)

		staff.GET("/messages", messageHandler.List)
		staff.GET("/messages/:id", messageHandler.Get)
		staff.PUT("/messages/:id/read", messageHandler.MarkRead)
		staff.DELETE("/messages/:id", messageHandler.Delete)

		staff.GET("/subscribers", subscriberHandler.List)

		staff.GET("/newsletters", newsletterHandler.List)
		staff.POST("/newsletters", newsletterHandler.Compose)
		staff.GET("/newsletters/:id", newsletterHandler.Get)
		staff.PUT("/newsletters/:id", newsletterHandler.Update)
		staff.POST("/newsletters/:id/send", newsletterHandler.Send)

		staff.GET("/exports/day-sheet/:date", exportHandler.DaySheet)
		staff.GET("/exports/subscribers", exportHandler.Subscribers)
	}

	if cfg.Dashboard.Enabled {
		staff.GET("/dashboard", dashboardHandler.Summary)
		staff.GET("/dashboard/system", dashboardHandler.System)
		staff.GET("/dashboard/feed", feedHandler.Stream)
	}

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
