package sqlstore

import (
	"context"
	"fmt"

	"github.com/imyashkale/provisioner/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type clientRepository struct {
	db *gorm.DB
}

func (r *clientRepository) Get(ctx context.Context, id string) (*models.Client, error) {
	var client models.Client
	if err := r.db.WithContext(ctx).First(&client, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

func (r *clientRepository) GetByUserId(ctx context.Context, userId string) (*models.Client, error) {
	var client models.Client
	if err := r.db.WithContext(ctx).First(&client, "user_id = ?", userId).Error; err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

type subscriptionRepository struct {
	db *gorm.DB
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Preload("Plan").First(&sub, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListActiveByClient(ctx context.Context, clientId string) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("client_id = ? AND status = ?", clientId, models.SubscriptionStatusActive).
		Order("start_date ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subs, nil
}

// UpsertPlan creates or updates a plan by ID
func (s *Store) UpsertPlan(ctx context.Context, plan *models.Plan) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "max_instances", "max_users", "storage_limit_gb", "is_active", "updated_at"}),
		}).
		Create(plan).Error
}

// UpsertClient creates or updates a client profile by ID
func (s *Store) UpsertClient(ctx context.Context, client *models.Client) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "company_name", "phone", "address", "updated_at"}),
		}).
		Create(client).Error
}

// UpsertSubscription creates or updates a subscription by ID
func (s *Store) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithContext(ctx).
		Omit("Plan").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"client_id", "plan_id", "status", "start_date", "end_date", "updated_at"}),
		}).
		Create(sub).Error
}
