package sqlstore

import (
	"context"
	"fmt"

	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
	"gorm.io/gorm"
)

type deploymentLogRepository struct {
	db *gorm.DB
}

func (r *deploymentLogRepository) Get(ctx context.Context, id string) (*models.DeploymentLog, error) {
	var entry models.DeploymentLog
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (r *deploymentLogRepository) FindOpen(ctx context.Context, instanceId string, action models.DeploymentAction) (*models.DeploymentLog, error) {
	var entry models.DeploymentLog
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND action = ? AND status = ?", instanceId, action, models.DeploymentLogInProgress).
		First(&entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (r *deploymentLogRepository) List(ctx context.Context, filter repository.DeploymentLogFilter) ([]*models.DeploymentLog, error) {
	query := r.db.WithContext(ctx).Order("timestamp DESC")
	if filter.InstanceId != "" {
		query = query.Where("instance_id = ?", filter.InstanceId)
	}
	if filter.ClientId != "" {
		query = query.Where("client_id = ?", filter.ClientId)
	}

	var logs []*models.DeploymentLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list deployment logs: %w", err)
	}
	return logs, nil
}

// Close writes the terminal state only while the row is still in progress
func (r *deploymentLogRepository) Close(ctx context.Context, entry *models.DeploymentLog) error {
	if !entry.Status.IsClosed() {
		return fmt.Errorf("deployment log must be closed with a terminal status, got %s", entry.Status)
	}

	db := r.db.WithContext(ctx)
	res := db.Model(&models.DeploymentLog{}).
		Where("id = ? AND status = ?", entry.Id, models.DeploymentLogInProgress).
		Updates(map[string]interface{}{
			"status":           entry.Status,
			"details":          entry.Details,
			"error_message":    entry.ErrorMessage,
			"duration_seconds": entry.DurationSeconds,
			"closed_at":        entry.ClosedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to close deployment log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, entry.Id); err != nil {
			return err
		}
		return repository.ErrLogClosed
	}
	return nil
}
