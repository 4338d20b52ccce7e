package repository

import (
	"context"

	"github.com/imyashkale/provisioner/internal/database"
	"github.com/imyashkale/provisioner/internal/models"
)

// DeploymentLogFilter narrows deployment log listings; empty fields match everything
type DeploymentLogFilter struct {
	InstanceId string
	ClientId   string
}

// DeploymentLogRepository defines the interface for the deployment audit trail
type DeploymentLogRepository interface {
	Get(ctx context.Context, id string) (*models.DeploymentLog, error)
	FindOpen(ctx context.Context, instanceId string, action models.DeploymentAction) (*models.DeploymentLog, error)
	// Close persists the terminal state of an in-progress entry exactly once.
	Close(ctx context.Context, entry *models.DeploymentLog) error
	List(ctx context.Context, filter DeploymentLogFilter) ([]*models.DeploymentLog, error)
}

// dynamoDeploymentLogRepository implements DeploymentLogRepository using DynamoDB
type dynamoDeploymentLogRepository struct {
	db *database.DeploymentLogOperations
}

// NewDeploymentLogRepository creates a new DynamoDB-backed deployment log repository
func NewDeploymentLogRepository(db *database.DeploymentLogOperations) DeploymentLogRepository {
	return &dynamoDeploymentLogRepository{db: db}
}

func (r *dynamoDeploymentLogRepository) Get(ctx context.Context, id string) (*models.DeploymentLog, error) {
	return r.db.GetLog(ctx, id)
}

func (r *dynamoDeploymentLogRepository) FindOpen(ctx context.Context, instanceId string, action models.DeploymentAction) (*models.DeploymentLog, error) {
	return r.db.FindOpenLog(ctx, instanceId, action)
}

func (r *dynamoDeploymentLogRepository) Close(ctx context.Context, entry *models.DeploymentLog) error {
	return r.db.CloseLog(ctx, entry)
}

func (r *dynamoDeploymentLogRepository) List(ctx context.Context, filter DeploymentLogFilter) ([]*models.DeploymentLog, error) {
	return r.db.ListLogs(ctx, filter.InstanceId, filter.ClientId)
}
