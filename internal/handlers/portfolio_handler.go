package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/models"
	"brokerbridge/internal/services"
)

// PortfolioHandler handles cross-account aggregation requests.
type PortfolioHandler struct {
	aggregationService services.AggregationServicer
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(aggregationService services.AggregationServicer) *PortfolioHandler {
	return &PortfolioHandler{aggregationService: aggregationService}
}

// PositionsQuery represents the filter query parameters for aggregation.
type PositionsQuery struct {
	Provider    string `form:"provider" binding:"omitempty,broker_provider"`
	AccountID   string `form:"account_id"`
	AssetClass  string `form:"asset_class" binding:"omitempty,asset_class"`
	OptionsOnly bool   `form:"options_only"`
	Symbol      string `form:"symbol" binding:"max=50"`
	AsOf        string `form:"as_of"`
}

// filter converts the bound query into an aggregation filter.
func (q PositionsQuery) filter() (services.AggregationFilter, error) {
	f := services.AggregationFilter{
		OptionsOnly:    q.OptionsOnly,
		SymbolContains: q.Symbol,
	}
	if q.Provider != "" {
		p := models.BrokerProvider(q.Provider)
		f.Provider = &p
	}
	if q.AccountID != "" {
		f.AccountID = &q.AccountID
	}
	if q.AssetClass != "" {
		ac := models.AssetClass(q.AssetClass)
		f.AssetClass = &ac
	}
	if q.AsOf != "" {
		asOf, err := time.Parse(time.RFC3339, q.AsOf)
		if err != nil {
			return f, apperrors.WithMessage(apperrors.ErrInvalidInput, "as_of must be an RFC 3339 timestamp")
		}
		f.AsOf = &asOf
	}
	return f, nil
}

// GetPositions handles retrieving aggregated positions across accounts.
// @Summary     Get aggregated positions
// @Description Get positions grouped by instrument across all synced accounts, with optional filters
// @Tags        portfolio
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       provider     query string false "Filter by broker provider"
// @Param       account_id   query string false "Filter by account ID"
// @Param       asset_class  query string false "Filter by asset class"
// @Param       options_only query bool   false "Only option positions"
// @Param       symbol       query string false "Case-insensitive symbol substring"
// @Param       as_of        query string false "Aggregate as of this RFC 3339 timestamp"
// @Success     200 {object} map[string]interface{} "Aggregated positions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /portfolio/positions [get]
func (h *PortfolioHandler) GetPositions(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query PositionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter, err := query.filter()
	if err != nil {
		respondWithError(c, err)
		return
	}

	positions, err := h.aggregationService.Aggregate(orgID, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

// GetSummary handles retrieving the org-wide portfolio summary.
// @Summary     Get portfolio summary
// @Description Get total market value, cost basis, unrealized P&L, cash, and breakdowns by asset class and provider
// @Tags        portfolio
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       provider    query string false "Filter by broker provider"
// @Param       account_id  query string false "Filter by account ID"
// @Param       asset_class query string false "Filter by asset class"
// @Param       as_of       query string false "Summarize as of this RFC 3339 timestamp"
// @Success     200 {object} services.PortfolioSummary "Portfolio summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /portfolio/summary [get]
func (h *PortfolioHandler) GetSummary(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query PositionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter, err := query.filter()
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.aggregationService.Summary(orgID, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
