package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/middleware"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
	"github.com/imyashkale/provisioner/internal/secrets"
)

// InstanceCreator runs the instance creation flow
type InstanceCreator interface {
	RequestCreation(ctx context.Context, client *models.Client, actorId string, req *models.CreateInstanceRequest) (*models.Instance, error)
}

// InstanceHandler handles instance-related requests
type InstanceHandler struct {
	creator InstanceCreator
	store   repository.Store
	cipher  *secrets.Cipher
}

// NewInstanceHandler creates a new instance handler
func NewInstanceHandler(creator InstanceCreator, store repository.Store, cipher *secrets.Cipher) *InstanceHandler {
	return &InstanceHandler{
		creator: creator,
		store:   store,
		cipher:  cipher,
	}
}

// Create accepts a new instance request and returns before deployment starts
func (h *InstanceHandler) Create(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := c.ShouldBindBodyWith(&raw, binding.JSON); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if fields := readOnlyFields(raw); len(fields) > 0 {
		abort(c, http.StatusBadRequest, "read_only_field",
			fmt.Sprintf("Fields are assigned by the system and cannot be set: %s", strings.Join(fields, ", ")))
		return
	}

	var req models.CreateInstanceRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	client, err := callerClient(c, h.store.Clients())
	if err != nil {
		respondError(c, err)
		return
	}

	instance, err := h.creator.RequestCreation(c.Request.Context(), client, middleware.UserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, newDecorator(c.Request.Context(), h.store).response(instance))
}

// List returns the caller's instances; admins see every client and may filter by client_id
func (h *InstanceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	filter := repository.InstanceFilter{}

	if middleware.IsAdmin(c) {
		filter.ClientId = c.Query("client_id")
	} else {
		client, err := callerClient(c, h.store.Clients())
		if err != nil {
			respondError(c, err)
			return
		}
		if client == nil {
			c.JSON(http.StatusOK, models.InstanceListResponse{Instances: []models.InstanceResponse{}, Total: 0})
			return
		}
		filter.ClientId = client.Id
	}

	instances, err := h.store.Instances().List(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	if status := c.Query("status"); status != "" {
		instances = filterByStatus(instances, models.InstanceStatus(status))
	}

	d := newDecorator(ctx, h.store)
	responses := make([]models.InstanceResponse, 0, len(instances))
	for _, instance := range instances {
		responses = append(responses, d.response(instance))
	}

	c.JSON(http.StatusOK, models.InstanceListResponse{
		Instances: responses,
		Total:     len(responses),
	})
}

// Get returns one instance with its credentials to its owner or an admin
func (h *InstanceHandler) Get(c *gin.Context) {
	instance, ok := h.visibleInstance(c)
	if !ok {
		return
	}

	dbPassword, err := h.cipher.Open(instance.DbPassword)
	if err != nil {
		respondError(c, err)
		return
	}
	adminPassword, err := h.cipher.Open(instance.AdminPassword)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.InstanceDetailResponse{
		InstanceResponse: newDecorator(c.Request.Context(), h.store).response(instance),
		DbPassword:       dbPassword,
		AdminPassword:    adminPassword,
	})
}

// Stop marks a running instance stopped. Admin only.
func (h *InstanceHandler) Stop(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := h.store.Instances().TransitionStatus(ctx, id, models.InstanceStatusRunning, models.InstanceStatusStopped, ""); err != nil {
		respondError(c, err)
		return
	}

	instance, err := h.store.Instances().Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"instance_id": id,
		"user_id":     middleware.UserID(c),
	}).Info("Instance stopped")

	c.JSON(http.StatusOK, newDecorator(ctx, h.store).response(instance))
}

// visibleInstance loads the :id instance if the caller may see it.
// Instances of other clients are reported as not found.
func (h *InstanceHandler) visibleInstance(c *gin.Context) (*models.Instance, bool) {
	instance, err := h.store.Instances().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if middleware.IsAdmin(c) {
		return instance, true
	}

	client, err := callerClient(c, h.store.Clients())
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if client == nil || client.Id != instance.ClientId {
		respondError(c, repository.ErrNotFound)
		return nil, false
	}
	return instance, true
}

func readOnlyFields(raw map[string]json.RawMessage) []string {
	var fields []string
	for _, field := range models.InstanceReadOnlyFields {
		if _, ok := raw[field]; ok {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}

func filterByStatus(instances []*models.Instance, status models.InstanceStatus) []*models.Instance {
	filtered := make([]*models.Instance, 0, len(instances))
	for _, instance := range instances {
		if instance.Status == status {
			filtered = append(filtered, instance)
		}
	}
	return filtered
}
