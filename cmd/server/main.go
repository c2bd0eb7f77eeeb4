package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spray-machine-monitoring/internal/accounting"
	"spray-machine-monitoring/internal/clock"
	"spray-machine-monitoring/internal/config"
	"spray-machine-monitoring/internal/database"
	"spray-machine-monitoring/internal/handler"
	"spray-machine-monitoring/internal/influx"
	"spray-machine-monitoring/internal/middleware"
	"spray-machine-monitoring/internal/models"
	"spray-machine-monitoring/internal/mqtt"
	"spray-machine-monitoring/internal/realtime"
	"spray-machine-monitoring/internal/repository"
	"spray-machine-monitoring/internal/service"
	"spray-machine-monitoring/internal/shift"
	"spray-machine-monitoring/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Load configuration
	cfg := config.LoadConfig()
	log.Println("Configuration loaded successfully")

	window, err := shift.NewWindow(
		cfg.Shift.StartHour, cfg.Shift.StartMinute,
		cfg.Shift.EndHour, cfg.Shift.EndMinute,
		cfg.Shift.HoursPerDay, cfg.Shift.UTCOffsetHours,
	)
	if err != nil {
		log.Fatalf("Invalid shift configuration: %v", err)
	}

	// 2. Initialize JWT utilities with config
	utils.InitJWT(cfg.JWT.AccessSecret)

	// 3. Initialize database connection
	db := database.Connect(cfg)
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 4. Initialize repositories
	userRepo := repository.NewUserRepo(db)
	machineRepo := repository.NewMachineRepo(db)
	recordRepo := repository.NewShiftRecordRepo(db)
	notificationRepo := repository.NewNotificationRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	// 5. Initialize services
	clk := clock.Real()
	locks := service.NewMachineLocks()
	hub := realtime.NewHub(cfg.CORS.AllowedOrigins)
	events := service.NewBroadcaster(hub)
	watchdog := service.NewWatchdogRegistry(clk, locks, cfg.Tracking.MessageTimeout, cfg.Tracking.ErrorTickInterval)
	notifier := service.NewNotificationService(notificationRepo, userRepo, events)

	limits := accounting.Limits{
		HoursPerDay:       cfg.Shift.HoursPerDay,
		MinUpdateInterval: cfg.Tracking.MinUpdateInterval,
	}
	ingest := service.NewTelemetryService(recordRepo, machineRepo, watchdog, locks, events, window, limits, clk).
		WithNotifier(notifier)

	var archive *influx.Writer
	if cfg.Influx.URL != "" {
		archive = influx.NewWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		ingest.WithArchive(archive)
		log.Printf("Archiving readings to InfluxDB bucket %s", cfg.Influx.Bucket)
	}

	scheduler := service.NewShiftScheduler(recordRepo, machineRepo, watchdog, locks, events, window, clk)
	sprayService := service.NewSprayService(recordRepo, machineRepo, window, clk)

	// 6. Resume tracking, then open today's shift and schedule the next ones
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ingest.Recover(ctx); err != nil {
		log.Printf("Warning: Failed to recover watchdogs: %v", err)
	}
	scheduler.Start(ctx)
	log.Printf("Shift window %s", window)

	// 7. Subscribe to telemetry
	broker, err := mqtt.Connect(cfg.MQTT, func(ctx context.Context, msg models.TelemetryMessage) error {
		_, err := ingest.Handle(ctx, msg)
		return err
	})
	if err != nil {
		log.Fatalf("Failed to connect to MQTT broker: %v", err)
	}
	announce(broker, cfg.MQTT.StatusTopic, "online")

	// 8. Setup Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// 9. Setup Gin router
	r := gin.Default()

	// Apply CORS middleware
	r.Use(middleware.CORS(cfg))

	// 10. Register handlers
	sprayHandler := handler.NewSprayHandler(sprayService, scheduler, auditRepo)
	realtimeHandler := handler.NewRealtimeHandler(hub)
	healthHandler := handler.NewHealthHandler(broker, hub, watchdog, window.String())
	if archive != nil {
		healthHandler.WithArchive(archive)
	}
	access := middleware.NewAccessControlMiddleware(sprayService)

	// 11. Define routes
	r.GET("/health", healthHandler.Check)
	r.GET("/ws", middleware.AuthMiddleware(), realtimeHandler.Connect)

	spray := r.Group("/api/spray")
	spray.Use(middleware.AuthMiddleware())
	sprayHandler.Register(spray, access)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// 12. Setup graceful shutdown
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop intake before the timers so no reading re-arms a watchdog
	announce(broker, cfg.MQTT.StatusTopic, "offline")
	broker.Disconnect()
	scheduler.Stop()
	watchdog.StopAll()
	cancel()

	notifier.Wait()
	hub.Close()
	if archive != nil {
		archive.Close()
	}
	log.Println("Server exited")
}

// announce tells devices and other consumers whether the backend is listening
func announce(broker *mqtt.Client, topic, status string) {
	if topic == "" {
		return
	}
	presence := map[string]interface{}{
		"status":    status,
		"clientId":  broker.Status().ClientID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := broker.Publish(topic, presence); err != nil {
		log.Printf("[MQTT] Failed to announce %s: %v", status, err)
	}
}
