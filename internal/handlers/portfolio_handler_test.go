package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"brokerbridge/internal/models"
	"brokerbridge/internal/services"
)

func setupPortfolioRouter(handler *PortfolioHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectAuth(testOrgID, testUserID))
	auth.GET("/portfolio/positions", handler.GetPositions)
	auth.GET("/portfolio/summary", handler.GetSummary)
	return r
}

func TestPortfolioHandler_GetPositions(t *testing.T) {
	t.Run("returns_200_with_positions", func(t *testing.T) {
		svc := &mockAggregationService{
			aggregateFn: func(orgID string, _ services.AggregationFilter) ([]services.AggregatedPosition, error) {
				if orgID != testOrgID {
					t.Errorf("expected orgID=%s, got %s", testOrgID, orgID)
				}
				return []services.AggregatedPosition{
					{
						Instrument:           models.Instrument{Symbol: "AAPL", AssetClass: models.AssetClassEquity},
						TotalQuantity:        150,
						TotalCostBasis:       2400000,
						TotalMarketValue:     2900000,
						WeightedAveragePrice: 16000,
					},
				}, nil
			},
		}
		handler := NewPortfolioHandler(svc)
		r := setupPortfolioRouter(handler)

		rec := doRequest(r, "GET", "/portfolio/positions", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		if result["count"].(float64) != 1 {
			t.Errorf("expected count=1, got %v", result["count"])
		}
		positions := result["positions"].([]interface{})
		pos := positions[0].(map[string]interface{})
		if pos["weighted_average_price"].(float64) != 16000 {
			t.Errorf("expected weighted_average_price=16000, got %v", pos["weighted_average_price"])
		}
	})

	t.Run("binds_all_filters", func(t *testing.T) {
		var captured services.AggregationFilter
		svc := &mockAggregationService{
			aggregateFn: func(_ string, filter services.AggregationFilter) ([]services.AggregatedPosition, error) {
				captured = filter
				return nil, nil
			},
		}
		handler := NewPortfolioHandler(svc)
		r := setupPortfolioRouter(handler)

		rec := doRequest(r, "GET",
			"/portfolio/positions?provider=csv_import&account_id=acct-1&asset_class=option&options_only=true&symbol=SPY&as_of=2026-06-30T00:00:00Z", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if captured.Provider == nil || *captured.Provider != models.ProviderCSVImport {
			t.Errorf("provider filter not bound: %+v", captured.Provider)
		}
		if captured.AccountID == nil || *captured.AccountID != "acct-1" {
			t.Errorf("account filter not bound: %+v", captured.AccountID)
		}
		if captured.AssetClass == nil || *captured.AssetClass != models.AssetClassOption {
			t.Errorf("asset class filter not bound: %+v", captured.AssetClass)
		}
		if !captured.OptionsOnly {
			t.Error("options_only not bound")
		}
		if captured.SymbolContains != "SPY" {
			t.Errorf("symbol filter not bound: %q", captured.SymbolContains)
		}
		want := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
		if captured.AsOf == nil || !captured.AsOf.Equal(want) {
			t.Errorf("as_of filter not bound: %v", captured.AsOf)
		}
	})

	t.Run("returns_400_on_bad_as_of", func(t *testing.T) {
		handler := NewPortfolioHandler(&mockAggregationService{})
		r := setupPortfolioRouter(handler)

		rec := doRequest(r, "GET", "/portfolio/positions?as_of=yesterday", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns_400_on_unknown_provider", func(t *testing.T) {
		handler := NewPortfolioHandler(&mockAggregationService{})
		r := setupPortfolioRouter(handler)

		rec := doRequest(r, "GET", "/portfolio/positions?provider=robinhood", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns_401_without_auth", func(t *testing.T) {
		handler := NewPortfolioHandler(&mockAggregationService{})
		r := gin.New()
		r.GET("/portfolio/positions", handler.GetPositions)

		rec := doRequest(r, "GET", "/portfolio/positions", "")

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestPortfolioHandler_GetSummary(t *testing.T) {
	t.Run("returns_200_with_summary", func(t *testing.T) {
		svc := &mockAggregationService{
			summaryFn: func(_ string, _ services.AggregationFilter) (*services.PortfolioSummary, error) {
				return &services.PortfolioSummary{
					TotalMarketValue:  2900000,
					TotalCostBasis:    2400000,
					TotalUnrealizedPL: 500000,
					TotalCash:         123456,
					PositionCount:     1,
					ByAssetClass:      map[models.AssetClass]int64{models.AssetClassEquity: 2900000},
					ByProvider:        map[models.BrokerProvider]int64{models.ProviderCSVImport: 2900000},
				}, nil
			},
		}
		handler := NewPortfolioHandler(svc)
		r := setupPortfolioRouter(handler)

		rec := doRequest(r, "GET", "/portfolio/summary", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		summary := parseJSON(t, rec)["summary"].(map[string]interface{})
		if summary["total_cash"].(float64) != 123456 {
			t.Errorf("expected total_cash=123456, got %v", summary["total_cash"])
		}
		byClass := summary["by_asset_class"].(map[string]interface{})
		if byClass["equity"].(float64) != 2900000 {
			t.Errorf("expected equity breakdown, got %v", byClass)
		}
	})

	t.Run("passes_filters_to_summary", func(t *testing.T) {
		var captured services.AggregationFilter
		svc := &mockAggregationService{
			summaryFn: func(_ string, filter services.AggregationFilter) (*services.PortfolioSummary, error) {
				captured = filter
				return &services.PortfolioSummary{}, nil
			},
		}
		handler := NewPortfolioHandler(svc)
		r := setupPortfolioRouter(handler)

		rec := doRequest(r, "GET", "/portfolio/summary?provider=etrade", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if captured.Provider == nil || *captured.Provider != models.ProviderEtrade {
			t.Errorf("provider filter not passed: %+v", captured.Provider)
		}
	})
}
