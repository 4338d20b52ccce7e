package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/provisioner/internal/allocator"
	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/quota"
	"github.com/imyashkale/provisioner/internal/repository"
	"github.com/imyashkale/provisioner/internal/services"
)

// respondError maps domain and storage errors onto HTTP responses
func respondError(c *gin.Context, err error) {
	var limitErr *quota.LimitError

	switch {
	case errors.Is(err, services.ErrNoClientProfile):
		abort(c, http.StatusForbidden, "no_client_profile", err.Error())
	case errors.Is(err, quota.ErrNoActiveSubscription):
		abort(c, http.StatusBadRequest, "no_active_subscription", err.Error())
	case errors.Is(err, quota.ErrAmbiguousSubscription):
		abort(c, http.StatusBadRequest, "ambiguous_subscription", err.Error())
	case errors.As(err, &limitErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "instance_limit_reached",
			"message": limitErr.Error(),
			"limit":   limitErr.Limit,
		})
	case errors.Is(err, allocator.ErrInvalidName):
		abort(c, http.StatusUnprocessableEntity, "invalid_name", err.Error())
	case errors.Is(err, allocator.ErrInvalidDomain):
		abort(c, http.StatusUnprocessableEntity, "invalid_domain", err.Error())
	case errors.Is(err, repository.ErrNameTaken):
		abort(c, http.StatusConflict, "name_taken", "An instance with this name already exists")
	case errors.Is(err, repository.ErrDomainTaken):
		abort(c, http.StatusConflict, "domain_taken", "An instance with this domain already exists")
	case errors.Is(err, services.ErrAllocationExhausted):
		abort(c, http.StatusServiceUnavailable, "allocation_exhausted", err.Error())
	case errors.Is(err, repository.ErrStatusConflict):
		abort(c, http.StatusConflict, "status_conflict", err.Error())
	case errors.Is(err, repository.ErrNotFound):
		abort(c, http.StatusNotFound, "not_found", "Resource not found")
	default:
		logger.WithFields(map[string]interface{}{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		}).Error("Request failed")
		abort(c, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}
