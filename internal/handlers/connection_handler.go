package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"brokerbridge/internal/adapters"
	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/pagination"
	"brokerbridge/internal/services"
	"brokerbridge/internal/tabular"
)

// ConnectionHandler handles broker connection lifecycle requests.
type ConnectionHandler struct {
	connectionService services.ConnectionServicer
	syncService       services.SyncServicer
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(connectionService services.ConnectionServicer, syncService services.SyncServicer) *ConnectionHandler {
	return &ConnectionHandler{connectionService: connectionService, syncService: syncService}
}

// PreviewCSVRequest represents the request payload for previewing a CSV import.
type PreviewCSVRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateCSVConnectionRequest represents the request payload for creating a
// CSV import connection.
type CreateCSVConnectionRequest struct {
	FileName  string                `json:"file_name" binding:"required,max=255"`
	Content   string                `json:"content" binding:"required"`
	SourceTag string                `json:"source_tag" binding:"max=100"`
	Nickname  string                `json:"nickname" binding:"max=100"`
	Columns   map[tabular.Field]int `json:"columns,omitempty"`
	// Sync runs the first sync immediately after the connection is created.
	Sync bool `json:"sync"`
}

// PreviewCSV handles dry-run parsing of a CSV export without persisting anything.
// @Summary     Preview CSV import
// @Description Parse a CSV export, infer its columns, and report per-row problems without creating a connection
// @Tags        connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body PreviewCSVRequest true "CSV content"
// @Success     200 {object} services.CSVPreview "Preview result"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     422 {object} ErrorResponse "No tabular position data found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /connections/csv/preview [post]
func (h *ConnectionHandler) PreviewCSV(c *gin.Context) {
	if _, err := getOrgID(c); err != nil {
		respondWithError(c, err)
		return
	}

	var req PreviewCSVRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	preview, err := h.connectionService.PreviewCSV(req.Content)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"preview": preview})
}

// CreateCSVConnection handles creating a CSV import connection.
// @Summary     Create CSV connection
// @Description Create a broker connection from a CSV export, optionally running the first sync
// @Tags        connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateCSVConnectionRequest true "CSV connection details"
// @Success     201 {object} models.BrokerConnection "Connection created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     422 {object} ErrorResponse "CSV could not be parsed"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /connections/csv [post]
func (h *ConnectionHandler) CreateCSVConnection(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateCSVConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	input := adapters.ConnectInput{
		FileName: req.FileName,
		Content:  req.Content,
		Nickname: req.Nickname,
		Columns:  req.Columns,
	}

	conn, err := h.connectionService.CreateCSVConnection(c.Request.Context(), orgID, userID, req.SourceTag, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if req.Sync {
		result, err := h.syncService.SyncConnection(c.Request.Context(), orgID, conn.ID, services.SyncOptions{})
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"connection": conn, "sync": result})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"connection": conn})
}

// ListConnections handles listing broker connections for the organization.
// @Summary     List connections
// @Description Get a paginated list of broker connections for the organization
// @Tags        connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.BrokerConnection] "Paginated connections"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /connections [get]
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.connectionService.ListConnections(orgID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetConnection handles retrieving a specific connection.
// @Summary     Get connection by ID
// @Description Get a specific broker connection with its accounts
// @Tags        connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Connection ID"
// @Success     200 {object} models.BrokerConnection "Connection details"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /connections/{id} [get]
func (h *ConnectionHandler) GetConnection(c *gin.Context) {
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

	conn, err := h.connectionService.GetConnection(orgID, connectionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"connection": conn})
}

// GetConnectionAccounts handles listing the sub-accounts of a connection.
// @Summary     Get connection accounts
// @Description Get the broker accounts discovered under a connection
// @Tags        connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Connection ID"
// @Success     200 {object} map[string]interface{} "Accounts"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /connections/{id}/accounts [get]
func (h *ConnectionHandler) GetConnectionAccounts(c *gin.Context) {
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

	conn, err := h.connectionService.GetConnection(orgID, connectionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": conn.Accounts})
}

// DeleteConnection handles deleting a connection and all derived data.
// @Summary     Delete connection
// @Description Delete a broker connection along with its accounts, snapshots, lots, and sync logs
// @Tags        connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Connection ID"
// @Success     200 {object} map[string]string "Deletion confirmation"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /connections/{id} [delete]
func (h *ConnectionHandler) DeleteConnection(c *gin.Context) {
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

	if err := h.connectionService.DeleteConnection(orgID, connectionID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Connection deleted"})
}

// GetSyncLogs handles listing the sync audit trail of a connection.
// @Summary     Get sync logs
// @Description Get a paginated sync audit trail for a connection, newest first
// @Tags        connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true "Connection ID"
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.SyncLog] "Paginated sync logs"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /connections/{id}/logs [get]
func (h *ConnectionHandler) GetSyncLogs(c *gin.Context) {
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

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.connectionService.GetSyncLogs(orgID, connectionID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
