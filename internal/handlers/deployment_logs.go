package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/provisioner/internal/middleware"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
)

// DeploymentLogHandler serves the read-only deployment audit trail
type DeploymentLogHandler struct {
	store repository.Store
}

// NewDeploymentLogHandler creates a new deployment log handler
func NewDeploymentLogHandler(store repository.Store) *DeploymentLogHandler {
	return &DeploymentLogHandler{store: store}
}

// List returns log entries, optionally for one instance (?instance=)
func (h *DeploymentLogHandler) List(c *gin.Context) {
	filter := repository.DeploymentLogFilter{InstanceId: c.Query("instance")}

	if !middleware.IsAdmin(c) {
		client, err := callerClient(c, h.store.Clients())
		if err != nil {
			respondError(c, err)
			return
		}
		if client == nil {
			c.JSON(http.StatusOK, models.DeploymentLogListResponse{Logs: []models.DeploymentLogResponse{}, Total: 0})
			return
		}
		filter.ClientId = client.Id
	}

	entries, err := h.store.DeploymentLogs().List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.DeploymentLogResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, entry.ToResponse())
	}

	c.JSON(http.StatusOK, models.DeploymentLogListResponse{
		Logs:  responses,
		Total: len(responses),
	})
}

// Get returns a single log entry
func (h *DeploymentLogHandler) Get(c *gin.Context) {
	entry, err := h.store.DeploymentLogs().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if !middleware.IsAdmin(c) {
		client, err := callerClient(c, h.store.Clients())
		if err != nil {
			respondError(c, err)
			return
		}
		if client == nil || client.Id != entry.ClientId {
			respondError(c, repository.ErrNotFound)
			return
		}
	}

	c.JSON(http.StatusOK, entry.ToResponse())
}
