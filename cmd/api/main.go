package main

import (
	"fmt"
	"net/http"
	"os"

	"brokerbridge/internal/config"
	"brokerbridge/internal/credentials"
	"brokerbridge/internal/database"
	"brokerbridge/internal/handlers"
	"brokerbridge/internal/logger"
	"brokerbridge/internal/middleware"
	"brokerbridge/internal/services"
	"brokerbridge/internal/validator"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "brokerbridge/internal/docs" // Import swagger docs
)

// @title           BrokerBridge API
// @version         1.0
// @description     BrokerBridge ingests brokerage positions from CSV exports and broker APIs, normalizes them into a canonical instrument model, and aggregates holdings across accounts.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Credential vault for encrypting broker credentials at rest
	vault, err := credentials.NewVault(appConfig.CredentialPassphrase)
	if err != nil {
		return fmt.Errorf("failed to initialize credential vault: %w", err)
	}

	// Register custom request validators
	validator.Register()

	// Initialize services
	db := dbManager.DB()
	connectionService := services.NewConnectionService(db, vault)
	syncService := services.NewSyncService(db, vault, appConfig.SyncWorkers)
	aggregationService := services.NewAggregationService(db)

	// Initialize handlers
	connectionHandler := handlers.NewConnectionHandler(connectionService, syncService)
	syncHandler := handlers.NewSyncHandler(syncService)
	portfolioHandler := handlers.NewPortfolioHandler(aggregationService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group, all routes JWT-protected
	v1 := router.Group("/api/v1")
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// Connection routes
	connections := protected.Group("/connections")
	connections.POST("/csv/preview", connectionHandler.PreviewCSV)
	connections.POST("/csv", connectionHandler.CreateCSVConnection)
	connections.GET("", connectionHandler.ListConnections)
	connections.GET("/:id", connectionHandler.GetConnection)
	connections.GET("/:id/accounts", connectionHandler.GetConnectionAccounts)
	connections.DELETE("/:id", connectionHandler.DeleteConnection)
	connections.GET("/:id/logs", connectionHandler.GetSyncLogs)
	connections.POST("/:id/sync", syncHandler.SyncConnection)

	// Portfolio routes
	portfolio := protected.Group("/portfolio")
	portfolio.GET("/positions", portfolioHandler.GetPositions)
	portfolio.GET("/summary", portfolioHandler.GetSummary)

	log.Infof("Starting BrokerBridge server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
