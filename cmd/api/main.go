package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/poolride/carpool/internal/bookings"
	"github.com/poolride/carpool/internal/chat"
	geoclient "github.com/poolride/carpool/internal/geo"
	"github.com/poolride/carpool/internal/notifications"
	"github.com/poolride/carpool/internal/payments"
	"github.com/poolride/carpool/internal/rides"
	"github.com/poolride/carpool/pkg/config"
	"github.com/poolride/carpool/pkg/database"
	"github.com/poolride/carpool/pkg/logger"
	"github.com/poolride/carpool/pkg/middleware"
	"github.com/poolride/carpool/pkg/websocket"
	"go.uber.org/zap"
)

const (
	serviceName = "carpool-api"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting carpool API",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	if err := database.RunMigrations(&cfg.Database); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	db, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("Connected to database")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}()

	hub := websocket.NewHub()
	go hub.Run()

	geo := geoclient.NewClient(&cfg.Geo, rdb)

	notificationsRepo := notifications.NewRepository(db)
	notificationsService := notifications.NewService(notificationsRepo)
	notificationsHandler := notifications.NewHandler(notificationsService)

	chatRepo := chat.NewRepository(db)
	chatService := chat.NewService(chatRepo, hub)
	chatHandler := chat.NewHandler(chatService)

	stripeClient := payments.NewStripeClient(cfg.Stripe.SecretKey)
	paymentsRepo := payments.NewRepository(db)
	paymentsService := payments.NewService(paymentsRepo, stripeClient, notificationsService, cfg.Fare)
	paymentsHandler := payments.NewHandler(paymentsService, cfg.Stripe.WebhookSecret)

	ridesRepo := rides.NewRepository(db)
	ridesService := rides.NewService(ridesRepo, geo, geo, notificationsService, paymentsService, cfg.Fare, cfg.Search)
	ridesHandler := rides.NewHandler(ridesService)

	bookingsRepo := bookings.NewRepository(db)
	bookingsService := bookings.NewService(bookingsRepo, chatService, notificationsService)
	bookingsHandler := bookings.NewHandler(bookingsService)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName, "version": version})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ws := router.Group("/ws")
	ws.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	ws.GET("", func(c *gin.Context) {
		websocket.Serve(c, hub)
	})

	ridesHandler.RegisterRoutes(router, cfg.JWT.Secret)
	bookingsHandler.RegisterRoutes(router, cfg.JWT.Secret)
	paymentsHandler.RegisterRoutes(router, cfg.JWT.Secret)
	chatHandler.RegisterRoutes(router, cfg.JWT.Secret)
	notificationsHandler.RegisterRoutes(router, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
