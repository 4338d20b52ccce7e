package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/imyashkale/provisioner/internal/database"
	"github.com/imyashkale/provisioner/internal/models"
)

// ProvisionRequest is the unit persisted atomically when an instance is accepted
type ProvisionRequest struct {
	Instance *models.Instance
	Log      *models.DeploymentLog
}

// Provisioner persists a new instance together with its opening deployment log.
// Implementations re-check the quota and uniqueness inside the same atomic write.
type Provisioner interface {
	Provision(ctx context.Context, req *ProvisionRequest) error
}

// PortSequence leases ports from a durable monotonic counter
type PortSequence interface {
	NextPort(ctx context.Context) (int, error)
}

// dynamoProvisioner implements Provisioner and PortSequence using DynamoDB
type dynamoProvisioner struct {
	db      *database.ProvisioningOperations
	billing *database.BillingOperations
}

// newDynamoProvisioner creates a DynamoDB-backed provisioner and port sequence
func newDynamoProvisioner(db *database.ProvisioningOperations, billing *database.BillingOperations) *dynamoProvisioner {
	return &dynamoProvisioner{db: db, billing: billing}
}

func (r *dynamoProvisioner) Provision(ctx context.Context, req *ProvisionRequest) error {
	sub, err := r.billing.GetSubscription(ctx, req.Instance.SubscriptionId)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrSubscriptionInactive
		}
		return err
	}
	if sub.Plan == nil {
		return fmt.Errorf("subscription %s has no plan", sub.Id)
	}
	return r.db.Provision(ctx, req.Instance, req.Log, sub.Plan.MaxInstances)
}

func (r *dynamoProvisioner) NextPort(ctx context.Context) (int, error) {
	return r.db.NextPort(ctx)
}
