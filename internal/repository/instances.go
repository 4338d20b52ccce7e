package repository

import (
	"context"

	"github.com/imyashkale/provisioner/internal/database"
	"github.com/imyashkale/provisioner/internal/models"
)

// InstanceFilter narrows instance listings; empty fields match everything
type InstanceFilter struct {
	ClientId string
}

// InstanceRepository defines the interface for instance registry operations
type InstanceRepository interface {
	Get(ctx context.Context, id string) (*models.Instance, error)
	List(ctx context.Context, filter InstanceFilter) ([]*models.Instance, error)
	CountByClient(ctx context.Context, clientId string) (int, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	ExistsByDomain(ctx context.Context, domain string) (bool, error)
	// TransitionStatus moves an instance from one status to the next.
	// It returns ErrStatusConflict if the move is illegal or the instance no longer holds from.
	TransitionStatus(ctx context.Context, id string, from, to models.InstanceStatus, lastError string) error
}

// dynamoInstanceRepository implements InstanceRepository using DynamoDB
type dynamoInstanceRepository struct {
	db *database.InstanceOperations
}

// NewInstanceRepository creates a new DynamoDB-backed instance repository
func NewInstanceRepository(db *database.InstanceOperations) InstanceRepository {
	return &dynamoInstanceRepository{db: db}
}

func (r *dynamoInstanceRepository) Get(ctx context.Context, id string) (*models.Instance, error) {
	return r.db.GetInstance(ctx, id)
}

func (r *dynamoInstanceRepository) List(ctx context.Context, filter InstanceFilter) ([]*models.Instance, error) {
	return r.db.ListInstances(ctx, filter.ClientId)
}

func (r *dynamoInstanceRepository) CountByClient(ctx context.Context, clientId string) (int, error) {
	return r.db.CountInstancesByClient(ctx, clientId)
}

func (r *dynamoInstanceRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	return r.db.NameReserved(ctx, name)
}

func (r *dynamoInstanceRepository) ExistsByDomain(ctx context.Context, domain string) (bool, error) {
	return r.db.DomainReserved(ctx, domain)
}

func (r *dynamoInstanceRepository) TransitionStatus(ctx context.Context, id string, from, to models.InstanceStatus, lastError string) error {
	return r.db.TransitionStatus(ctx, id, from, to, lastError)
}
