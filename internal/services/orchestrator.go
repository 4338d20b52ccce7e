package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imyashkale/provisioner/internal/allocator"
	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/metrics"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/queue"
	"github.com/imyashkale/provisioner/internal/quota"
	"github.com/imyashkale/provisioner/internal/repository"
	"github.com/imyashkale/provisioner/internal/secrets"
)

var (
	ErrNoClientProfile     = errors.New("no client profile is linked to this user")
	ErrAllocationExhausted = errors.New("could not allocate instance resources, please retry")
)

// request results, used as the metrics label
const (
	resultAccepted       = "accepted"
	resultRejected       = "rejected"
	resultError          = "error"
	resultDispatchFailed = "dispatch_failed"
)

// Dispatcher hands a persisted instance to the deployment workers without blocking
type Dispatcher interface {
	Enqueue(job *queue.DeployJob) error
}

// OrchestratorOptions tunes allocation
type OrchestratorOptions struct {
	ContainerPrefix    string
	AllocationAttempts int
}

// Orchestrator accepts instance creation requests: it checks quota, allocates
// resources, persists the instance with its open log, then dispatches the deployment.
type Orchestrator struct {
	quota       *quota.Evaluator
	allocator   *allocator.Allocator
	provisioner repository.Provisioner
	instances   repository.InstanceRepository
	logs        repository.DeploymentLogRepository
	cipher      *secrets.Cipher
	dispatcher  Dispatcher
	attempts    int
}

// NewOrchestrator creates a new orchestrator over store
func NewOrchestrator(store repository.Store, cipher *secrets.Cipher, dispatcher Dispatcher, opts OrchestratorOptions) *Orchestrator {
	attempts := opts.AllocationAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Orchestrator{
		quota:       quota.NewEvaluator(store.Subscriptions(), store.Instances()),
		allocator:   allocator.New(store.Instances(), store.Ports(), opts.ContainerPrefix),
		provisioner: store.Provisioner(),
		instances:   store.Instances(),
		logs:        store.DeploymentLogs(),
		cipher:      cipher,
		dispatcher:  dispatcher,
		attempts:    attempts,
	}
}

// RequestCreation runs the creation flow for client and returns the persisted instance.
// Deployment happens later; a dispatch failure is recorded on the instance, not returned.
func (o *Orchestrator) RequestCreation(ctx context.Context, client *models.Client, actorId string, req *models.CreateInstanceRequest) (*models.Instance, error) {
	if client == nil {
		o.reject(nil, req, ErrNoClientProfile)
		return nil, ErrNoClientProfile
	}

	sub, err := o.quota.Evaluate(ctx, client.Id)
	if err != nil {
		o.reject(client, req, err)
		return nil, err
	}

	instance, entry, err := o.persist(ctx, client, sub, actorId, req)
	if err != nil {
		o.reject(client, req, err)
		return nil, err
	}

	fields := map[string]interface{}{
		"instance_id": instance.Id,
		"client_id":   client.Id,
		"log_id":      entry.Id,
		"port":        instance.Port,
	}

	job := &queue.DeployJob{
		InstanceID: instance.Id,
		LogID:      entry.Id,
		ClientID:   client.Id,
	}
	if err := o.dispatcher.Enqueue(job); err != nil {
		metrics.OrchestratorRequests.WithLabelValues(resultDispatchFailed).Inc()
		logger.WithFields(fields).WithError(err).Error("Failed to dispatch deployment")
		o.recordDispatchFailure(context.WithoutCancel(ctx), instance, entry, err)
		return instance, nil
	}

	metrics.OrchestratorRequests.WithLabelValues(resultAccepted).Inc()
	logger.WithFields(fields).Info("Instance creation accepted")
	return instance, nil
}

// persist allocates and writes the instance and its log, retrying allocation conflicts
func (o *Orchestrator) persist(ctx context.Context, client *models.Client, sub *models.Subscription, actorId string, req *models.CreateInstanceRequest) (*models.Instance, *models.DeploymentLog, error) {
	for attempt := 1; attempt <= o.attempts; attempt++ {
		alloc, err := o.allocator.Allocate(ctx, req.Name, req.Domain)
		if err != nil {
			return nil, nil, err
		}

		instance, err := models.NewInstance(models.NewInstanceParams{
			ClientId:       client.Id,
			SubscriptionId: sub.Id,
			Name:           alloc.Name,
			Domain:         alloc.Domain,
			Port:           alloc.Port,
			DbName:         alloc.DbName,
			ContainerName:  alloc.ContainerName,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := o.sealCredentials(instance); err != nil {
			return nil, nil, err
		}

		entry := models.NewDeploymentLog(instance, actorId, models.DeploymentActionCreate)

		err = o.provisioner.Provision(ctx, &repository.ProvisionRequest{Instance: instance, Log: entry})
		switch {
		case err == nil:
			return instance, entry, nil
		case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrPortTaken):
			logger.WithFields(map[string]interface{}{
				"client_id": client.Id,
				"name":      req.Name,
				"port":      alloc.Port,
				"attempt":   attempt,
			}).Warn("Allocation conflict, retrying")
			continue
		case errors.Is(err, repository.ErrLimitReached):
			return nil, nil, &quota.LimitError{Limit: sub.Plan.MaxInstances}
		case errors.Is(err, repository.ErrSubscriptionInactive):
			return nil, nil, quota.ErrNoActiveSubscription
		case errors.Is(err, repository.ErrNameTaken), errors.Is(err, repository.ErrDomainTaken):
			return nil, nil, err
		default:
			return nil, nil, fmt.Errorf("failed to persist instance: %w", err)
		}
	}
	return nil, nil, ErrAllocationExhausted
}

// sealCredentials replaces the generated credentials with their sealed form
func (o *Orchestrator) sealCredentials(instance *models.Instance) error {
	dbPassword, err := o.cipher.Seal(instance.DbPassword)
	if err != nil {
		return err
	}
	adminPassword, err := o.cipher.Seal(instance.AdminPassword)
	if err != nil {
		return err
	}
	instance.DbPassword = dbPassword
	instance.AdminPassword = adminPassword
	return nil
}

// recordDispatchFailure walks the instance through deploying to error and closes its log,
// so a lost job still ends in a terminal state
func (o *Orchestrator) recordDispatchFailure(ctx context.Context, instance *models.Instance, entry *models.DeploymentLog, cause error) {
	ctx, cancel := context.WithTimeout(ctx, finalizeTimeout)
	defer cancel()

	message := fmt.Sprintf("deployment queue unavailable: %v", cause)
	fields := map[string]interface{}{
		"instance_id": instance.Id,
		"log_id":      entry.Id,
	}

	if err := failBeforeStart(ctx, o.instances, o.logs, instance, entry, message); err != nil {
		logger.WithFields(fields).WithError(err).Error("Failed to record dispatch failure")
	}
	metrics.ObserveDeployment(outcomeFault, time.Duration(0))
}

func (o *Orchestrator) reject(client *models.Client, req *models.CreateInstanceRequest, err error) {
	fields := map[string]interface{}{
		"name":   req.Name,
		"domain": req.Domain,
	}
	if client != nil {
		fields["client_id"] = client.Id
	}

	if isPrecondition(err) {
		metrics.OrchestratorRequests.WithLabelValues(resultRejected).Inc()
		logger.WithFields(fields).WithError(err).Warn("Instance creation rejected")
		return
	}
	metrics.OrchestratorRequests.WithLabelValues(resultError).Inc()
	logger.WithFields(fields).WithError(err).Error("Instance creation failed")
}

// isPrecondition reports whether err is a caller-facing rejection rather than a system failure
func isPrecondition(err error) bool {
	for _, target := range []error{
		ErrNoClientProfile,
		quota.ErrNoActiveSubscription,
		quota.ErrAmbiguousSubscription,
		quota.ErrInstanceLimitReached,
		allocator.ErrInvalidName,
		allocator.ErrInvalidDomain,
		repository.ErrNameTaken,
		repository.ErrDomainTaken,
		ErrAllocationExhausted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
