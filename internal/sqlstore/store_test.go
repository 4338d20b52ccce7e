package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	store, err := Open(Options{Driver: DriverSQLite, DSN: dsn, PortFloor: 8070})
	require.NoError(t, err, "Failed to open in-memory database")

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedClient(t *testing.T, store *Store, maxInstances int) (*models.Client, *models.Subscription) {
	t.Helper()
	ctx := context.Background()

	plan := &models.Plan{Id: uuid.New().String(), Name: "plan-" + uuid.New().String()[:8], MaxInstances: maxInstances, IsActive: true}
	require.NoError(t, store.UpsertPlan(ctx, plan))

	client := &models.Client{Id: uuid.New().String(), UserId: "user-" + uuid.New().String(), CompanyName: "Acme Corp"}
	require.NoError(t, store.UpsertClient(ctx, client))

	sub := &models.Subscription{
		Id:        uuid.New().String(),
		ClientId:  client.Id,
		PlanId:    plan.Id,
		Status:    models.SubscriptionStatusActive,
		StartDate: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertSubscription(ctx, sub))

	return client, sub
}

func provisionRequest(t *testing.T, client *models.Client, sub *models.Subscription, name string, port int) *repository.ProvisionRequest {
	t.Helper()

	instance, err := models.NewInstance(models.NewInstanceParams{
		ClientId:       client.Id,
		SubscriptionId: sub.Id,
		Name:           name,
		Domain:         name + ".example.com",
		Port:           port,
		DbName:         name,
		ContainerName:  "instance_" + name,
	})
	require.NoError(t, err)

	return &repository.ProvisionRequest{
		Instance: instance,
		Log:      models.NewDeploymentLog(instance, client.UserId, models.DeploymentActionCreate),
	}
}

func TestNextPort(t *testing.T) {
	ctx := context.Background()

	t.Run("starts at the floor and never repeats", func(t *testing.T) {
		store := setupTestStore(t)

		for _, want := range []int{8070, 8071, 8072} {
			port, err := store.NextPort(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, port)
		}
	})

	t.Run("starts above existing ports", func(t *testing.T) {
		store := setupTestStore(t)
		client, sub := seedClient(t, store, 5)

		require.NoError(t, store.Provision(ctx, provisionRequest(t, client, sub, "legacy", 9000)))

		port, err := store.NextPort(ctx)
		require.NoError(t, err)
		assert.Equal(t, 9001, port)
	})

	t.Run("concurrent leases are distinct", func(t *testing.T) {
		store := setupTestStore(t)

		var mu sync.Mutex
		seen := make(map[int]bool)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				port, err := store.NextPort(ctx)
				assert.NoError(t, err)
				mu.Lock()
				defer mu.Unlock()
				assert.False(t, seen[port], "port %d leased twice", port)
				seen[port] = true
			}()
		}
		wg.Wait()
		assert.Len(t, seen, 20)
	})
}

func TestProvision(t *testing.T) {
	ctx := context.Background()

	t.Run("persists instance and open log together", func(t *testing.T) {
		store := setupTestStore(t)
		client, sub := seedClient(t, store, 1)
		req := provisionRequest(t, client, sub, "acme", 8070)

		require.NoError(t, store.Provision(ctx, req))

		instance, err := store.Instances().Get(ctx, req.Instance.Id)
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusCreated, instance.Status)
		assert.Equal(t, 8070, instance.Port)

		entry, err := store.DeploymentLogs().FindOpen(ctx, instance.Id, models.DeploymentActionCreate)
		require.NoError(t, err)
		assert.Equal(t, req.Log.Id, entry.Id)
		assert.Equal(t, "acme", entry.Details["name"])
	})

	t.Run("enforces the plan ceiling", func(t *testing.T) {
		store := setupTestStore(t)
		client, sub := seedClient(t, store, 2)

		require.NoError(t, store.Provision(ctx, provisionRequest(t, client, sub, "one", 8070)))
		require.NoError(t, store.Provision(ctx, provisionRequest(t, client, sub, "two", 8071)))

		err := store.Provision(ctx, provisionRequest(t, client, sub, "three", 8072))
		assert.ErrorIs(t, err, repository.ErrLimitReached)

		count, err := store.Instances().CountByClient(ctx, client.Id)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		logs, err := store.DeploymentLogs().List(ctx, repository.DeploymentLogFilter{ClientId: client.Id})
		require.NoError(t, err)
		assert.Len(t, logs, 2)
	})

	t.Run("rejects inactive subscription", func(t *testing.T) {
		store := setupTestStore(t)
		client, sub := seedClient(t, store, 3)

		sub.Status = models.SubscriptionStatusSuspended
		require.NoError(t, store.UpsertSubscription(ctx, sub))

		err := store.Provision(ctx, provisionRequest(t, client, sub, "acme", 8070))
		assert.ErrorIs(t, err, repository.ErrSubscriptionInactive)

		instances, err := store.Instances().List(ctx, repository.InstanceFilter{})
		require.NoError(t, err)
		assert.Empty(t, instances)
	})

	t.Run("rejects taken name, domain and port", func(t *testing.T) {
		store := setupTestStore(t)
		client, sub := seedClient(t, store, 10)
		require.NoError(t, store.Provision(ctx, provisionRequest(t, client, sub, "acme", 8070)))

		sameName := provisionRequest(t, client, sub, "acme", 8071)
		sameName.Instance.Domain = "other.example.com"
		assert.ErrorIs(t, store.Provision(ctx, sameName), repository.ErrNameTaken)

		sameDomain := provisionRequest(t, client, sub, "other", 8071)
		sameDomain.Instance.Domain = "acme.example.com"
		assert.ErrorIs(t, store.Provision(ctx, sameDomain), repository.ErrDomainTaken)

		samePort := provisionRequest(t, client, sub, "third", 8070)
		assert.ErrorIs(t, store.Provision(ctx, samePort), repository.ErrPortTaken)
	})
}

func TestProvisionConcurrentQuota(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	client, sub := seedClient(t, store, 3)

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		req := provisionRequest(t, client, sub, fmt.Sprintf("tenant%d", i), 8070+i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Provision(ctx, req)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrLimitReached)
	}
	assert.Equal(t, 3, succeeded)

	count, err := store.Instances().CountByClient(ctx, client.Id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestProvisionConcurrentUniqueness(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	const attempts = 6
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		client, sub := seedClient(t, store, 5)
		req := provisionRequest(t, client, sub, "contested", 8070+i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Provision(ctx, req)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrNameTaken)
	}
	assert.Equal(t, 1, succeeded)

	instances, err := store.Instances().List(ctx, repository.InstanceFilter{})
	require.NoError(t, err)
	assert.Len(t, instances, 1)
}

func TestTransitionStatus(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	client, sub := seedClient(t, store, 1)
	req := provisionRequest(t, client, sub, "acme", 8070)
	require.NoError(t, store.Provision(ctx, req))

	instances := store.Instances()
	id := req.Instance.Id

	require.NoError(t, instances.TransitionStatus(ctx, id, models.InstanceStatusCreated, models.InstanceStatusDeploying, ""))

	err := instances.TransitionStatus(ctx, id, models.InstanceStatusCreated, models.InstanceStatusDeploying, "")
	assert.ErrorIs(t, err, repository.ErrStatusConflict, "second worker must lose the race")

	err = instances.TransitionStatus(ctx, id, models.InstanceStatusDeploying, models.InstanceStatusCreated, "")
	assert.ErrorIs(t, err, repository.ErrStatusConflict, "status never moves backwards")

	require.NoError(t, instances.TransitionStatus(ctx, id, models.InstanceStatusDeploying, models.InstanceStatusError, "disk full"))

	err = instances.TransitionStatus(ctx, id, models.InstanceStatusError, models.InstanceStatusDeploying, "")
	assert.ErrorIs(t, err, repository.ErrStatusConflict)

	err = instances.TransitionStatus(ctx, "missing", models.InstanceStatusCreated, models.InstanceStatusDeploying, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	reloaded, err := instances.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusError, reloaded.Status)
	assert.Equal(t, "disk full", reloaded.LastError)
}

func TestCredentialStability(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	client, sub := seedClient(t, store, 1)
	req := provisionRequest(t, client, sub, "acme", 8070)
	require.NoError(t, store.Provision(ctx, req))

	first, err := store.Instances().Get(ctx, req.Instance.Id)
	require.NoError(t, err)
	assert.Equal(t, req.Instance.DbPassword, first.DbPassword)

	require.NoError(t, store.Instances().TransitionStatus(ctx, first.Id, models.InstanceStatusCreated, models.InstanceStatusDeploying, ""))
	require.NoError(t, store.Instances().TransitionStatus(ctx, first.Id, models.InstanceStatusDeploying, models.InstanceStatusRunning, ""))

	second, err := store.Instances().Get(ctx, first.Id)
	require.NoError(t, err)
	assert.Equal(t, first.DbPassword, second.DbPassword)
	assert.Equal(t, first.AdminPassword, second.AdminPassword)
	assert.Equal(t, first.Port, second.Port)
	assert.Equal(t, first.ContainerName, second.ContainerName)
}

func TestDeploymentLogClosesOnce(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	client, sub := seedClient(t, store, 1)
	req := provisionRequest(t, client, sub, "acme", 8070)
	require.NoError(t, store.Provision(ctx, req))

	logs := store.DeploymentLogs()

	entry, err := logs.FindOpen(ctx, req.Instance.Id, models.DeploymentActionCreate)
	require.NoError(t, err)

	entry.Details["output"] = "deployed"
	entry.Finish(models.DeploymentLogSuccess, "", 1500*time.Millisecond)
	require.NoError(t, logs.Close(ctx, entry))

	again := *entry
	again.Finish(models.DeploymentLogFailed, "late failure", time.Second)
	assert.ErrorIs(t, logs.Close(ctx, &again), repository.ErrLogClosed)

	_, err = logs.FindOpen(ctx, req.Instance.Id, models.DeploymentActionCreate)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	closed, err := logs.Get(ctx, entry.Id)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentLogSuccess, closed.Status)
	assert.Equal(t, "deployed", closed.Details["output"])
	assert.InDelta(t, 1.5, closed.DurationSeconds, 0.001)
	assert.NotNil(t, closed.ClosedAt)
}

func TestSingleOpenLogPerInstance(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	client, sub := seedClient(t, store, 1)
	req := provisionRequest(t, client, sub, "acme", 8070)
	require.NoError(t, store.Provision(ctx, req))

	duplicate := models.NewDeploymentLog(req.Instance, "", models.DeploymentActionCreate)
	err := store.DB().WithContext(ctx).Create(duplicate).Error
	assert.Error(t, err)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	clientA, subA := seedClient(t, store, 5)
	clientB, subB := seedClient(t, store, 5)

	reqA := provisionRequest(t, clientA, subA, "alpha", 8070)
	reqB := provisionRequest(t, clientB, subB, "bravo", 8071)
	require.NoError(t, store.Provision(ctx, reqA))
	require.NoError(t, store.Provision(ctx, reqB))

	all, err := store.Instances().List(ctx, repository.InstanceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyA, err := store.Instances().List(ctx, repository.InstanceFilter{ClientId: clientA.Id})
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, "alpha", onlyA[0].Name)

	logs, err := store.DeploymentLogs().List(ctx, repository.DeploymentLogFilter{InstanceId: reqB.Instance.Id})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, clientB.Id, logs[0].ClientId)

	crossed, err := store.DeploymentLogs().List(ctx, repository.DeploymentLogFilter{InstanceId: reqB.Instance.Id, ClientId: clientA.Id})
	require.NoError(t, err)
	assert.Empty(t, crossed)

	taken, err := store.Instances().ExistsByName(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = store.Instances().ExistsByDomain(ctx, "charlie.example.com")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestSeedUpsertsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	client, sub := seedClient(t, store, 1)

	client.CompanyName = "Acme Holdings"
	require.NoError(t, store.UpsertClient(ctx, client))

	reloaded, err := store.Clients().GetByUserId(ctx, client.UserId)
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", reloaded.CompanyName)

	subs, err := store.Subscriptions().ListActiveByClient(ctx, client.Id)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].Plan)
	assert.Equal(t, 1, subs[0].Plan.MaxInstances)

	_, err = store.Clients().GetByUserId(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := store.Subscriptions().Get(ctx, sub.Id)
	require.NoError(t, err)
	assert.Equal(t, sub.PlanId, got.Plan.Id)
}
