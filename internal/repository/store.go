package repository

import (
	"context"

	"github.com/imyashkale/provisioner/internal/database"
)

// Store is the full storage surface the service runs against
type Store interface {
	Clients() ClientRepository
	Subscriptions() SubscriptionRepository
	Instances() InstanceRepository
	DeploymentLogs() DeploymentLogRepository
	Provisioner() Provisioner
	Ports() PortSequence
	Seed() SeedRepository
	Ping(ctx context.Context) error
	Close() error
}

type dynamoStore struct {
	client         *database.Client
	clients        ClientRepository
	subscriptions  SubscriptionRepository
	instances      InstanceRepository
	deploymentLogs DeploymentLogRepository
	provisioner    *dynamoProvisioner
	seed           SeedRepository
}

// NewDynamoStore wires every DynamoDB-backed repository onto one client
func NewDynamoStore(client *database.Client) Store {
	billing := database.NewBillingOperations(client)
	return &dynamoStore{
		client:         client,
		clients:        NewClientRepository(billing),
		subscriptions:  NewSubscriptionRepository(billing),
		instances:      NewInstanceRepository(database.NewInstanceOperations(client)),
		deploymentLogs: NewDeploymentLogRepository(database.NewDeploymentLogOperations(client)),
		provisioner:    newDynamoProvisioner(database.NewProvisioningOperations(client), billing),
		seed:           NewSeedRepository(billing),
	}
}

func (s *dynamoStore) Clients() ClientRepository { return s.clients }
func (s *dynamoStore) Subscriptions() SubscriptionRepository { return s.subscriptions }
func (s *dynamoStore) Instances() InstanceRepository { return s.instances }
func (s *dynamoStore) DeploymentLogs() DeploymentLogRepository { return s.deploymentLogs }
func (s *dynamoStore) Provisioner() Provisioner { return s.provisioner }
func (s *dynamoStore) Ports() PortSequence { return s.provisioner }
func (s *dynamoStore) Seed() SeedRepository { return s.seed }
func (s *dynamoStore) Ping(ctx context.Context) error { return s.client.Ping(ctx) }
func (s *dynamoStore) Close() error { return nil }
