package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/handlers"
	"github.com/gatewatch/backend/natsserver"
	"github.com/gatewatch/backend/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Connect to database
	if err := database.Connect(); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
	defer database.Close()

	// Start embedded NATS server for sensor intake and dashboard push
	natsPort := 4233
	if p := os.Getenv("NATS_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			natsPort = parsed
		}
	}
	natsServer, err := natsserver.New(natsserver.Config{Port: natsPort})
	if err != nil {
		log.Fatalf("❌ Failed to start NATS server: %v", err)
	}
	defer natsServer.Shutdown()

	natsConn := natsServer.Conn()

	// Build the engine
	policy := services.NewPolicyStore(database.DB)
	authorizer := services.NewAuthorizer(database.DB, policy)

	debounce := services.DefaultDebounceWindow
	if w := os.Getenv("DEBOUNCE_SECONDS"); w != "" {
		if parsed, err := strconv.Atoi(w); err == nil && parsed > 0 {
			debounce = time.Duration(parsed) * time.Second
		}
	}
	intake := services.NewIntake(database.DB, authorizer, natsConn, debounce)
	lifecycle := services.NewLifecycle(database.DB)
	handlers.SetServices(intake, lifecycle, policy)

	// Detections can arrive over the bus as well as over HTTP
	if _, err := services.StartDetectionConsumer(natsConn, intake); err != nil {
		log.Fatalf("❌ Failed to subscribe to detections: %v", err)
	}

	// Alert hub for dashboard WebSocket streaming
	alertHub := services.NewAlertHub(natsConn)
	go alertHub.Run()
	handlers.SetAlertHub(alertHub)

	// Background sweep advances event statuses between polls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepInterval := services.DefaultSweepInterval
	if s := os.Getenv("SWEEP_INTERVAL_SECONDS"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			sweepInterval = time.Duration(parsed) * time.Second
		}
	}
	sweeper := services.NewSweeper(lifecycle, sweepInterval)
	go sweeper.Run(ctx)

	// Setup Gin router
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// CORS middleware
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(config))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// WebSocket route for dashboard streaming (outside /api group)
	router.GET("/ws/stream", handlers.HandleStreamWebSocket)

	// API Routes
	api := router.Group("/api")
	{
		// Stream hub stats
		api.GET("/stream/stats", handlers.GetStreamStats)

		// Bus stats
		api.GET("/bus/stats", func(c *gin.Context) {
			c.JSON(200, natsServer.GetStats())
		})

		// Detection intake (authenticated sensors only)
		api.POST("/detections", handlers.SensorAuth(), handlers.PostDetection)

		// Dry-run authorization check
		api.GET("/authorization/check", handlers.CheckAuthorization)

		// Sensor registration and management
		sensors := api.Group("/sensors")
		{
			sensors.POST("/register", handlers.RegisterSensor)
			sensors.GET("", handlers.GetSensors)
			sensors.POST("/:id/revoke", handlers.RevokeSensor)
		}

		// Vehicle attempt routes (manual approval queue)
		attempts := api.Group("/attempts")
		{
			attempts.GET("", handlers.GetAttempts)
			attempts.GET("/pending", handlers.GetPendingAttempts)
			attempts.GET("/stats", handlers.GetAttemptStats)
			attempts.POST("/:plate/approve", handlers.ApproveAttempt)
			attempts.POST("/:plate/decline", handlers.DeclineAttempt)
			attempts.PATCH("/:plate/plate", handlers.CorrectAttemptPlate)
		}

		// Alert routes
		alerts := api.Group("/alerts")
		{
			alerts.GET("", handlers.GetAlerts)
			alerts.GET("/stats", handlers.GetAlertStats)
			alerts.GET("/:id", handlers.GetAlert)
			alerts.PATCH("/:id/dispatch", handlers.DispatchAlert)
			alerts.PATCH("/:id/acknowledge", handlers.AcknowledgeAlert)
			alerts.PATCH("/:id/resolve", handlers.ResolveAlert)
		}

		// Event routes (visitor pre-authorization windows)
		events := api.Group("/events")
		{
			events.POST("", handlers.CreateEvent)
			events.GET("", handlers.GetEvents)
			events.GET("/:id", handlers.GetEvent)
			events.PATCH("/:id/status", handlers.SetEventStatus)
			events.POST("/:id/vehicles", handlers.AddEventVehicle)
			events.GET("/:id/vehicles", handlers.GetEventVehicles)
			events.DELETE("/:id/vehicles/:plate", handlers.RemoveEventVehicle)
		}

		// Standing allow-list routes
		authorized := api.Group("/authorized-vehicles")
		{
			authorized.POST("", handlers.AddAuthorizedVehicle)
			authorized.GET("", handlers.GetAuthorizedVehicles)
			authorized.DELETE("/:plate", handlers.RemoveAuthorizedVehicle)
		}
	}

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	log.Printf("🚀 Server running on http://localhost:%s", port)
	if err := router.Run(fmt.Sprintf(":%s", port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
