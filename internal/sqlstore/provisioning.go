package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const portSequenceName = "instance_port"

// sequence is a named durable counter
type sequence struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// Provision inserts the instance and its opening deployment log in one transaction.
// The active subscription row is touched first so concurrent provisions for the
// same client queue behind its row lock before the count is re-read.
func (s *Store) Provision(ctx context.Context, req *repository.ProvisionRequest) error {
	instance := req.Instance

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Subscription{}).
			Where("id = ? AND client_id = ? AND status = ?", instance.SubscriptionId, instance.ClientId, models.SubscriptionStatusActive).
			Update("updated_at", time.Now().UTC())
		if res.Error != nil {
			return fmt.Errorf("failed to lock subscription: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return repository.ErrSubscriptionInactive
		}

		var sub models.Subscription
		if err := tx.Preload("Plan").First(&sub, "id = ?", instance.SubscriptionId).Error; err != nil {
			return fmt.Errorf("failed to reload subscription: %w", err)
		}
		if sub.Plan == nil {
			return fmt.Errorf("subscription %s has no plan", sub.Id)
		}

		count, err := countInstances(tx, instance.ClientId)
		if err != nil {
			return err
		}
		if count >= sub.Plan.MaxInstances {
			return repository.ErrLimitReached
		}

		checks := []struct {
			query string
			arg   interface{}
			err   error
		}{
			{"name = ?", instance.Name, repository.ErrNameTaken},
			{"domain = ?", instance.Domain, repository.ErrDomainTaken},
			{"port = ?", instance.Port, repository.ErrPortTaken},
		}
		for _, check := range checks {
			taken, err := instanceExists(tx, check.query, check.arg)
			if err != nil {
				return err
			}
			if taken {
				return check.err
			}
		}

		if err := tx.Create(instance).Error; err != nil {
			return err
		}
		return tx.Create(req.Log).Error
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	}
	return err
}

// NextPort leases the next port from the durable counter.
// The counter starts above the highest assigned port, or at the floor.
func (s *Store) NextPort(ctx context.Context) (int, error) {
	var port int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq sequence
		err := tx.Take(&seq, "name = ?", portSequenceName).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			start, err := s.initialPort(tx)
			if err != nil {
				return err
			}
			seed := sequence{Name: portSequenceName, Value: start - 1, UpdatedAt: time.Now().UTC()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
				return fmt.Errorf("failed to initialize port sequence: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to read port sequence: %w", err)
		}

		res := tx.Model(&sequence{}).
			Where("name = ?", portSequenceName).
			Updates(map[string]interface{}{
				"value":      gorm.Expr("value + ?", 1),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to advance port sequence: %w", res.Error)
		}

		if err := tx.Take(&seq, "name = ?", portSequenceName).Error; err != nil {
			return fmt.Errorf("failed to read port sequence: %w", err)
		}
		port = seq.Value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(port), nil
}

func (s *Store) initialPort(tx *gorm.DB) (int64, error) {
	var highest sql.NullInt64
	if err := tx.Model(&models.Instance{}).Select("MAX(port)").Row().Scan(&highest); err != nil {
		return 0, fmt.Errorf("failed to read highest port: %w", err)
	}

	start := int64(s.portFloor)
	if highest.Valid && highest.Int64+1 > start {
		start = highest.Int64 + 1
	}
	return start, nil
}
