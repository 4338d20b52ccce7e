package repository

import (
	"context"

	"github.com/imyashkale/provisioner/internal/database"
	"github.com/imyashkale/provisioner/internal/models"
)

// ClientRepository resolves client profiles
type ClientRepository interface {
	Get(ctx context.Context, id string) (*models.Client, error)
	GetByUserId(ctx context.Context, userId string) (*models.Client, error)
}

// SubscriptionRepository reads subscriptions with their plan attached
type SubscriptionRepository interface {
	Get(ctx context.Context, id string) (*models.Subscription, error)
	ListActiveByClient(ctx context.Context, clientId string) ([]*models.Subscription, error)
}

// SeedRepository writes the records managed outside this service
type SeedRepository interface {
	UpsertPlan(ctx context.Context, plan *models.Plan) error
	UpsertClient(ctx context.Context, client *models.Client) error
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
}

// NewClientRepository creates a new DynamoDB-backed client repository
func NewClientRepository(db *database.BillingOperations) ClientRepository {
	return &dynamoClientRepository{db: db}
}

type dynamoClientRepository struct {
	db *database.BillingOperations
}

func (r *dynamoClientRepository) Get(ctx context.Context, id string) (*models.Client, error) {
	return r.db.GetClient(ctx, id)
}

func (r *dynamoClientRepository) GetByUserId(ctx context.Context, userId string) (*models.Client, error) {
	return r.db.GetClientByUserId(ctx, userId)
}

// NewSubscriptionRepository creates a new DynamoDB-backed subscription repository
func NewSubscriptionRepository(db *database.BillingOperations) SubscriptionRepository {
	return &dynamoSubscriptionRepository{db: db}
}

type dynamoSubscriptionRepository struct {
	db *database.BillingOperations
}

func (r *dynamoSubscriptionRepository) Get(ctx context.Context, id string) (*models.Subscription, error) {
	return r.db.GetSubscription(ctx, id)
}

func (r *dynamoSubscriptionRepository) ListActiveByClient(ctx context.Context, clientId string) ([]*models.Subscription, error) {
	return r.db.ListActiveSubscriptions(ctx, clientId)
}

// NewSeedRepository creates a new DynamoDB-backed seed repository
func NewSeedRepository(db *database.BillingOperations) SeedRepository {
	return &dynamoSeedRepository{db: db}
}

type dynamoSeedRepository struct {
	db *database.BillingOperations
}

func (r *dynamoSeedRepository) UpsertPlan(ctx context.Context, plan *models.Plan) error {
	return r.db.PutPlan(ctx, plan)
}

func (r *dynamoSeedRepository) UpsertClient(ctx context.Context, client *models.Client) error {
	return r.db.PutClient(ctx, client)
}

func (r *dynamoSeedRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.PutSubscription(ctx, sub)
}
