package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options selects and configures the SQL backend
type Options struct {
	Driver    string
	DSN       string
	PortFloor int
}

// Store implements every repository interface on a gorm connection
type Store struct {
	db        *gorm.DB
	portFloor int
}

var (
	_ repository.Store                   = (*Store)(nil)
	_ repository.ClientRepository        = (*clientRepository)(nil)
	_ repository.SubscriptionRepository  = (*subscriptionRepository)(nil)
	_ repository.InstanceRepository      = (*instanceRepository)(nil)
	_ repository.DeploymentLogRepository = (*deploymentLogRepository)(nil)
	_ repository.Provisioner             = (*Store)(nil)
	_ repository.PortSequence            = (*Store)(nil)
	_ repository.SeedRepository          = (*Store)(nil)
)

// Open connects to the configured database and migrates the schema
func Open(opts Options) (*Store, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverPostgres:
		dialector = postgres.Open(opts.DSN)
	case DriverSQLite:
		if !strings.HasPrefix(opts.DSN, "file:") && opts.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(opts.DSN), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", opts.Driver)
	}

	// Only log errors and slow queries
	gormLogger := newGormLogger(gormlogger.Warn, time.Second)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers; one connection keeps transactions from tripping over each other
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	store := &Store{db: db, portFloor: opts.PortFloor}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.WithField("driver", opts.Driver).Info("SQL store initialized")
	return store, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&models.Plan{},
		&models.Client{},
		&models.Subscription{},
		&models.Instance{},
		&models.DeploymentLog{},
		&sequence{},
	)
}

// DB exposes the underlying connection for tests and maintenance tasks
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Clients() repository.ClientRepository {
	return &clientRepository{db: s.db}
}

func (s *Store) Subscriptions() repository.SubscriptionRepository {
	return &subscriptionRepository{db: s.db}
}

func (s *Store) Instances() repository.InstanceRepository {
	return &instanceRepository{db: s.db}
}

func (s *Store) DeploymentLogs() repository.DeploymentLogRepository {
	return &deploymentLogRepository{db: s.db}
}

func (s *Store) Provisioner() repository.Provisioner {
	return s
}

func (s *Store) Ports() repository.PortSequence {
	return s
}

func (s *Store) Seed() repository.SeedRepository {
	return s
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	return err
}
