package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
	"gorm.io/gorm"
)

type instanceRepository struct {
	db *gorm.DB
}

func (r *instanceRepository) Get(ctx context.Context, id string) (*models.Instance, error) {
	var instance models.Instance
	if err := r.db.WithContext(ctx).First(&instance, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &instance, nil
}

func (r *instanceRepository) List(ctx context.Context, filter repository.InstanceFilter) ([]*models.Instance, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.ClientId != "" {
		query = query.Where("client_id = ?", filter.ClientId)
	}

	var instances []*models.Instance
	if err := query.Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

func (r *instanceRepository) CountByClient(ctx context.Context, clientId string) (int, error) {
	return countInstances(r.db.WithContext(ctx), clientId)
}

func (r *instanceRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	return instanceExists(r.db.WithContext(ctx), "name = ?", name)
}

func (r *instanceRepository) ExistsByDomain(ctx context.Context, domain string) (bool, error) {
	return instanceExists(r.db.WithContext(ctx), "domain = ?", domain)
}

// TransitionStatus is a compare-and-set on the status column.
// Credentials, port and identity columns are never part of the update.
func (r *instanceRepository) TransitionStatus(ctx context.Context, id string, from, to models.InstanceStatus, lastError string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrStatusConflict, from, to)
	}

	db := r.db.WithContext(ctx)
	res := db.Model(&models.Instance{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update instance status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		exists, err := instanceExists(db, "id = ?", id)
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return fmt.Errorf("%w: instance is no longer %s", repository.ErrStatusConflict, from)
	}
	return nil
}

func countInstances(db *gorm.DB, clientId string) (int, error) {
	var count int64
	if err := db.Model(&models.Instance{}).Where("client_id = ?", clientId).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return int(count), nil
}

func instanceExists(db *gorm.DB, query string, arg interface{}) (bool, error) {
	var count int64
	if err := db.Model(&models.Instance{}).Where(query, arg).Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check instance existence: %w", err)
	}
	return count > 0, nil
}
