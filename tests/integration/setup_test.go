package integration

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"brokerbridge/internal/credentials"
	"brokerbridge/internal/handlers"
	"brokerbridge/internal/logger"
	"brokerbridge/internal/middleware"
	"brokerbridge/internal/models"
	"brokerbridge/internal/services"
	"brokerbridge/internal/validator"
)

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:integrationdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.Instrument{},
		&models.OptionDetail{},
		&models.BrokerConnection{},
		&models.BrokerAccount{},
		&models.PositionSnapshot{},
		&models.PositionLot{},
		&models.SyncLog{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)

	vault, err := credentials.NewVault("integration-test-passphrase")
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}

	// Services
	connectionService := services.NewConnectionService(db, vault)
	syncService := services.NewSyncService(db, vault, 2)
	aggregationService := services.NewAggregationService(db)

	// Handlers
	connectionHandler := handlers.NewConnectionHandler(connectionService, syncService)
	syncHandler := handlers.NewSyncHandler(syncService)
	portfolioHandler := handlers.NewPortfolioHandler(aggregationService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	connections := protected.Group("/connections")
	connections.POST("/csv/preview", connectionHandler.PreviewCSV)
	connections.POST("/csv", connectionHandler.CreateCSVConnection)
	connections.GET("", connectionHandler.ListConnections)
	connections.GET("/:id", connectionHandler.GetConnection)
	connections.GET("/:id/accounts", connectionHandler.GetConnectionAccounts)
	connections.DELETE("/:id", connectionHandler.DeleteConnection)
	connections.GET("/:id/logs", connectionHandler.GetSyncLogs)
	connections.POST("/:id/sync", syncHandler.SyncConnection)

	portfolio := protected.Group("/portfolio")
	portfolio.GET("/positions", portfolioHandler.GetPositions)
	portfolio.GET("/summary", portfolioHandler.GetSummary)

	return &testApp{DB: db, Router: router}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// authToken mints a JWT for the given user and org, as the external identity
// service would.
func authToken(t *testing.T, userID, orgID string) string {
	t.Helper()
	token, err := middleware.GenerateAccessToken(userID, orgID)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}
