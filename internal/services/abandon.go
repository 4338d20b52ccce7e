package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
)

// failBeforeStart closes out a deployment that never reached the action.
// The instance is walked to error through deploying (created is not allowed to jump
// straight to error) and its open log is closed as failed with message.
func failBeforeStart(
	ctx context.Context,
	instances repository.InstanceRepository,
	logs repository.DeploymentLogRepository,
	instance *models.Instance,
	entry *models.DeploymentLog,
	message string,
) error {
	var errs []error

	status := instance.Status
	if status == models.InstanceStatusCreated {
		if err := instances.TransitionStatus(ctx, instance.Id, models.InstanceStatusCreated, models.InstanceStatusDeploying, ""); err != nil {
			return fmt.Errorf("failed to mark instance %s deploying: %w", instance.Id, err)
		}
		status = models.InstanceStatusDeploying
	}
	if status == models.InstanceStatusDeploying {
		if err := instances.TransitionStatus(ctx, instance.Id, models.InstanceStatusDeploying, models.InstanceStatusError, message); err != nil {
			errs = append(errs, fmt.Errorf("failed to mark instance %s error: %w", instance.Id, err))
		} else {
			instance.Status = models.InstanceStatusError
			instance.LastError = message
		}
	}

	entry.Finish(models.DeploymentLogFailed, message, 0)
	if err := logs.Close(ctx, entry); err != nil {
		errs = append(errs, fmt.Errorf("failed to close deployment log %s: %w", entry.Id, err))
	}
	return errors.Join(errs...)
}
