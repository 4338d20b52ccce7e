package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imyashkale/provisioner/internal/allocator"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/queue"
	"github.com/imyashkale/provisioner/internal/quota"
	"github.com/imyashkale/provisioner/internal/repository"
	"github.com/imyashkale/provisioner/internal/secrets"
	"github.com/imyashkale/provisioner/internal/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

func setupStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	store, err := sqlstore.Open(sqlstore.Options{Driver: sqlstore.DriverSQLite, DSN: dsn, PortFloor: 8070})
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedClient(t *testing.T, store repository.Store, maxInstances int) *models.Client {
	t.Helper()
	ctx := context.Background()

	plan := &models.Plan{Id: uuid.New().String(), Name: "plan-" + uuid.New().String()[:8], MaxInstances: maxInstances, IsActive: true}
	require.NoError(t, store.Seed().UpsertPlan(ctx, plan))

	client := &models.Client{Id: uuid.New().String(), UserId: "user-" + uuid.New().String(), CompanyName: "Acme Corp"}
	require.NoError(t, store.Seed().UpsertClient(ctx, client))

	require.NoError(t, store.Seed().UpsertSubscription(ctx, &models.Subscription{
		Id:        uuid.New().String(),
		ClientId:  client.Id,
		PlanId:    plan.Id,
		Status:    models.SubscriptionStatusActive,
		StartDate: time.Now().UTC(),
	}))
	return client
}

func testCipher(t *testing.T) *secrets.Cipher {
	t.Helper()
	c, err := secrets.NewCipher(testEncryptionKey)
	require.NoError(t, err)
	return c
}

// recordingDispatcher collects jobs instead of running them
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []*queue.DeployJob
	err  error
}

func (d *recordingDispatcher) Enqueue(job *queue.DeployJob) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func newTestOrchestrator(t *testing.T, store repository.Store, dispatcher Dispatcher) *Orchestrator {
	t.Helper()
	return NewOrchestrator(store, testCipher(t), dispatcher, OrchestratorOptions{
		ContainerPrefix:    "instance_",
		AllocationAttempts: 3,
	})
}

func createRequest(name string) *models.CreateInstanceRequest {
	return &models.CreateInstanceRequest{Name: name, Domain: name + ".example.com"}
}

func TestRequestCreation(t *testing.T) {
	ctx := context.Background()

	t.Run("persists instance and open log then dispatches", func(t *testing.T) {
		store := setupStore(t)
		client := seedClient(t, store, 1)
		dispatcher := &recordingDispatcher{}

		instance, err := newTestOrchestrator(t, store, dispatcher).RequestCreation(ctx, client, client.UserId, createRequest("acme"))
		require.NoError(t, err)

		assert.Equal(t, models.InstanceStatusCreated, instance.Status)
		assert.Equal(t, 8070, instance.Port)
		assert.Equal(t, "acme", instance.DbName)
		assert.Equal(t, "instance_acme", instance.ContainerName)

		stored, err := store.Instances().Get(ctx, instance.Id)
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusCreated, stored.Status)

		entry, err := store.DeploymentLogs().FindOpen(ctx, instance.Id, models.DeploymentActionCreate)
		require.NoError(t, err)
		assert.Equal(t, "acme", entry.Details["name"])
		assert.EqualValues(t, 8070, entry.Details["port"])
		require.NotNil(t, entry.ActorId)
		assert.Equal(t, client.UserId, *entry.ActorId)

		require.Len(t, dispatcher.jobs, 1)
		assert.Equal(t, instance.Id, dispatcher.jobs[0].InstanceID)
		assert.Equal(t, entry.Id, dispatcher.jobs[0].LogID)
	})

	t.Run("credentials are sealed at rest", func(t *testing.T) {
		store := setupStore(t)
		client := seedClient(t, store, 1)

		instance, err := newTestOrchestrator(t, store, &recordingDispatcher{}).RequestCreation(ctx, client, "", createRequest("acme"))
		require.NoError(t, err)

		stored, err := store.Instances().Get(ctx, instance.Id)
		require.NoError(t, err)

		plain, err := testCipher(t).Open(stored.DbPassword)
		require.NoError(t, err)
		assert.Len(t, plain, models.CredentialLength)
		assert.NotEqual(t, plain, stored.DbPassword)

		admin, err := testCipher(t).Open(stored.AdminPassword)
		require.NoError(t, err)
		assert.NotEqual(t, plain, admin)
	})

	t.Run("missing client profile", func(t *testing.T) {
		store := setupStore(t)
		_, err := newTestOrchestrator(t, store, &recordingDispatcher{}).RequestCreation(ctx, nil, "user-1", createRequest("acme"))
		assert.ErrorIs(t, err, ErrNoClientProfile)
	})

	t.Run("no active subscription persists nothing", func(t *testing.T) {
		store := setupStore(t)
		client := &models.Client{Id: uuid.New().String(), UserId: "user-" + uuid.New().String(), CompanyName: "Lone Corp"}
		require.NoError(t, store.Seed().UpsertClient(ctx, client))

		_, err := newTestOrchestrator(t, store, &recordingDispatcher{}).RequestCreation(ctx, client, client.UserId, createRequest("acme"))
		assert.ErrorIs(t, err, quota.ErrNoActiveSubscription)

		instances, err := store.Instances().List(ctx, repository.InstanceFilter{})
		require.NoError(t, err)
		assert.Empty(t, instances)

		logs, err := store.DeploymentLogs().List(ctx, repository.DeploymentLogFilter{})
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("second request over the limit", func(t *testing.T) {
		store := setupStore(t)
		client := seedClient(t, store, 1)
		orch := newTestOrchestrator(t, store, &recordingDispatcher{})

		_, err := orch.RequestCreation(ctx, client, client.UserId, createRequest("acme"))
		require.NoError(t, err)

		_, err = orch.RequestCreation(ctx, client, client.UserId, createRequest("acme_two"))
		require.ErrorIs(t, err, quota.ErrInstanceLimitReached)

		var limitErr *quota.LimitError
		require.True(t, errors.As(err, &limitErr))
		assert.Equal(t, 1, limitErr.Limit)

		count, err := store.Instances().CountByClient(ctx, client.Id)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("duplicate name and domain", func(t *testing.T) {
		store := setupStore(t)
		client := seedClient(t, store, 5)
		orch := newTestOrchestrator(t, store, &recordingDispatcher{})

		_, err := orch.RequestCreation(ctx, client, "", createRequest("acme"))
		require.NoError(t, err)

		_, err = orch.RequestCreation(ctx, client, "", createRequest("acme"))
		assert.ErrorIs(t, err, repository.ErrNameTaken)

		_, err = orch.RequestCreation(ctx, client, "", &models.CreateInstanceRequest{Name: "other", Domain: "ACME.example.com"})
		assert.ErrorIs(t, err, repository.ErrDomainTaken)
	})

	t.Run("invalid name", func(t *testing.T) {
		store := setupStore(t)
		client := seedClient(t, store, 5)

		_, err := newTestOrchestrator(t, store, &recordingDispatcher{}).RequestCreation(ctx, client, "", createRequest("Bad-Name"))
		assert.ErrorIs(t, err, allocator.ErrInvalidName)
	})

	t.Run("dispatch failure is recorded as state", func(t *testing.T) {
		store := setupStore(t)
		client := seedClient(t, store, 1)

		instance, err := newTestOrchestrator(t, store, &recordingDispatcher{err: queue.ErrQueueFull}).
			RequestCreation(ctx, client, client.UserId, createRequest("acme"))
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusError, instance.Status)

		stored, err := store.Instances().Get(ctx, instance.Id)
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusError, stored.Status)
		assert.Equal(t, "deployment queue unavailable: queue is full", stored.LastError)

		logs, err := store.DeploymentLogs().List(ctx, repository.DeploymentLogFilter{InstanceId: instance.Id})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, models.DeploymentLogFailed, logs[0].Status)
		assert.Equal(t, "deployment queue unavailable: queue is full", logs[0].ErrorMessage)
	})
}

func TestRequestCreationConcurrentQuota(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	client := seedClient(t, store, 3)
	orch := newTestOrchestrator(t, store, &recordingDispatcher{})

	const requests = 10
	errs := make([]error, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orch.RequestCreation(ctx, client, "", createRequest(fmt.Sprintf("tenant_%d", i)))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, quota.ErrInstanceLimitReached)
	}
	assert.Equal(t, 3, accepted)

	instances, err := store.Instances().List(ctx, repository.InstanceFilter{ClientId: client.Id})
	require.NoError(t, err)
	require.Len(t, instances, 3)

	ports := make(map[int]bool)
	for _, inst := range instances {
		assert.False(t, ports[inst.Port], "port %d assigned twice", inst.Port)
		ports[inst.Port] = true
	}
}

func TestRequestCreationConcurrentUniqueness(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	client := seedClient(t, store, 20)
	orch := newTestOrchestrator(t, store, &recordingDispatcher{})

	const requests = 8
	errs := make([]error, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orch.RequestCreation(ctx, client, "", createRequest("contested"))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.True(t,
			errors.Is(err, repository.ErrNameTaken) || errors.Is(err, ErrAllocationExhausted),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, accepted)

	count, err := store.Instances().CountByClient(ctx, client.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
