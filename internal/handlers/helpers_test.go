package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"brokerbridge/internal/adapters"
	"brokerbridge/internal/models"
	"brokerbridge/internal/pagination"
	"brokerbridge/internal/services"
	"brokerbridge/internal/validator"
)

// --- mock services ---

type mockConnectionService struct {
	previewCSVFn          func(content string) (*services.CSVPreview, error)
	createCSVConnectionFn func(ctx context.Context, orgID, userID, sourceTag string, input adapters.ConnectInput) (*models.BrokerConnection, error)
	getConnectionFn       func(orgID, connectionID string) (*models.BrokerConnection, error)
	listConnectionsFn     func(orgID string, page pagination.PageRequest) (*pagination.PageResponse[models.BrokerConnection], error)
	deleteConnectionFn    func(orgID, connectionID string) error
	getSyncLogsFn         func(orgID, connectionID string, page pagination.PageRequest) (*pagination.PageResponse[models.SyncLog], error)
}

var _ services.ConnectionServicer = (*mockConnectionService)(nil)

func (m *mockConnectionService) PreviewCSV(content string) (*services.CSVPreview, error) {
	if m.previewCSVFn != nil {
		return m.previewCSVFn(content)
	}
	return &services.CSVPreview{}, nil
}

func (m *mockConnectionService) CreateCSVConnection(ctx context.Context, orgID, userID, sourceTag string, input adapters.ConnectInput) (*models.BrokerConnection, error) {
	if m.createCSVConnectionFn != nil {
		return m.createCSVConnectionFn(ctx, orgID, userID, sourceTag, input)
	}
	return &models.BrokerConnection{}, nil
}

func (m *mockConnectionService) GetConnection(orgID, connectionID string) (*models.BrokerConnection, error) {
	if m.getConnectionFn != nil {
		return m.getConnectionFn(orgID, connectionID)
	}
	return &models.BrokerConnection{}, nil
}

func (m *mockConnectionService) ListConnections(orgID string, page pagination.PageRequest) (*pagination.PageResponse[models.BrokerConnection], error) {
	if m.listConnectionsFn != nil {
		return m.listConnectionsFn(orgID, page)
	}
	resp := pagination.NewPageResponse([]models.BrokerConnection{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockConnectionService) DeleteConnection(orgID, connectionID string) error {
	if m.deleteConnectionFn != nil {
		return m.deleteConnectionFn(orgID, connectionID)
	}
	return nil
}

func (m *mockConnectionService) GetSyncLogs(orgID, connectionID string, page pagination.PageRequest) (*pagination.PageResponse[models.SyncLog], error) {
	if m.getSyncLogsFn != nil {
		return m.getSyncLogsFn(orgID, connectionID, page)
	}
	resp := pagination.NewPageResponse([]models.SyncLog{}, 1, 20, 0)
	return &resp, nil
}

type mockSyncService struct {
	syncConnectionFn func(ctx context.Context, orgID, connectionID string, opts services.SyncOptions) (*services.SyncResult, error)
}

var _ services.SyncServicer = (*mockSyncService)(nil)

func (m *mockSyncService) SyncConnection(ctx context.Context, orgID, connectionID string, opts services.SyncOptions) (*services.SyncResult, error) {
	if m.syncConnectionFn != nil {
		return m.syncConnectionFn(ctx, orgID, connectionID, opts)
	}
	return &services.SyncResult{Status: models.SyncSuccess, Connection: models.ConnectionActive}, nil
}

type mockAggregationService struct {
	aggregateFn func(orgID string, filter services.AggregationFilter) ([]services.AggregatedPosition, error)
	summaryFn   func(orgID string, filter services.AggregationFilter) (*services.PortfolioSummary, error)
}

var _ services.AggregationServicer = (*mockAggregationService)(nil)

func (m *mockAggregationService) Aggregate(orgID string, filter services.AggregationFilter) ([]services.AggregatedPosition, error) {
	if m.aggregateFn != nil {
		return m.aggregateFn(orgID, filter)
	}
	return []services.AggregatedPosition{}, nil
}

func (m *mockAggregationService) Summary(orgID string, filter services.AggregationFilter) (*services.PortfolioSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(orgID, filter)
	}
	return &services.PortfolioSummary{}, nil
}

// --- test helpers ---

const (
	testOrgID  = "0195b9f4-0000-7000-8000-000000000001"
	testUserID = "0195b9f4-0000-7000-8000-000000000002"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func injectAuth(orgID, userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("orgID", orgID)
		c.Set("userID", userID)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}
