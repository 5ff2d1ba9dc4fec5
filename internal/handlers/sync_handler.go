package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/services"
)

// SyncHandler handles sync orchestration requests.
type SyncHandler struct {
	syncService services.SyncServicer
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService services.SyncServicer) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// SyncConnectionRequest represents the request payload for triggering a sync.
// The body is optional; an empty body runs a default sync.
type SyncConnectionRequest struct {
	// ForceRefreshAccounts re-lists accounts from the broker even when the
	// connection already has some.
	ForceRefreshAccounts bool `json:"force_refresh_accounts"`
}

// SyncConnection handles triggering a sync run for a connection.
// @Summary     Sync connection
// @Description Fetch, normalize, and persist positions for every account under a connection
// @Tags        sync
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                false "Connection ID"
// @Param       request body SyncConnectionRequest false "Sync options"
// @Success     200 {object} services.SyncResult "Sync outcome, including per-account failures"
// @Failure     401 {object} ErrorResponse "Unauthorized or stored credentials rejected"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /connections/{id}/sync [post]
func (h *SyncHandler) SyncConnection(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	connectionID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SyncConnectionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}

	result, err := h.syncService.SyncConnection(c.Request.Context(), orgID, connectionID, services.SyncOptions{
		ForceRefreshAccounts: req.ForceRefreshAccounts,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sync": result})
}
