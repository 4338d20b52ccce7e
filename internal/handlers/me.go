package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/provisioner/internal/middleware"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
)

// MeHandler describes the authenticated caller
type MeHandler struct {
	clients repository.ClientRepository
}

// NewMeHandler creates a new me handler
func NewMeHandler(clients repository.ClientRepository) *MeHandler {
	return &MeHandler{clients: clients}
}

// Get returns the caller's identity and client profile, if any
func (h *MeHandler) Get(c *gin.Context) {
	client, err := callerClient(c, h.clients)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.MeResponse{
		UserId: middleware.UserID(c),
		Role:   middleware.Role(c),
	}
	if client != nil {
		resp.Client = client.ToResponse()
	}
	c.JSON(http.StatusOK, resp)
}
