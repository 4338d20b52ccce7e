package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/metrics"
	"github.com/imyashkale/provisioner/internal/models"
	"github.com/imyashkale/provisioner/internal/queue"
	"github.com/imyashkale/provisioner/internal/repository"
)

// ErrDeployTimeout marks an attempt killed by the per-attempt timeout
var ErrDeployTimeout = errors.New("deployment timed out")

// finalizeTimeout bounds the persistence of an attempt's outcome
const finalizeTimeout = 30 * time.Second

// deployment outcomes, used as the metrics label
const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
	outcomeTimeout = "timeout"
	outcomeFault   = "fault"
)

type attemptResult struct {
	outcome  string
	message  string
	stdout   string
	exitCode int
	duration time.Duration
}

func (r attemptResult) succeeded() bool {
	return r.outcome == outcomeSuccess
}

// DeploymentExecutor runs the external deployment action for one instance
// and records the outcome on the instance and its open deployment log.
type DeploymentExecutor struct {
	instances  repository.InstanceRepository
	logs       repository.DeploymentLogRepository
	runner     CommandRunner
	scriptPath string
	timeout    time.Duration
}

// NewDeploymentExecutor creates a new deployment executor
func NewDeploymentExecutor(
	instances repository.InstanceRepository,
	logs repository.DeploymentLogRepository,
	runner CommandRunner,
	scriptPath string,
	timeout time.Duration,
) *DeploymentExecutor {
	return &DeploymentExecutor{
		instances:  instances,
		logs:       logs,
		runner:     runner,
		scriptPath: scriptPath,
		timeout:    timeout,
	}
}

// Execute handles one queued deployment job.
// Deployment failures are recorded as state and do not produce an error;
// the error return is kept for jobs that could not be started or persisted.
func (e *DeploymentExecutor) Execute(ctx context.Context, job *queue.DeployJob) error {
	if err := ctx.Err(); err != nil {
		return e.abandon(ctx, job, err)
	}

	instance, err := e.instances.Get(ctx, job.InstanceID)
	if err != nil {
		return e.abandon(ctx, job, fmt.Errorf("failed to load instance %s: %w", job.InstanceID, err))
	}

	entry, err := e.openEntry(ctx, job)
	if err != nil {
		if errors.Is(err, repository.ErrLogClosed) || errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return e.abandon(ctx, job, err)
	}

	if err := e.instances.TransitionStatus(ctx, instance.Id, models.InstanceStatusCreated, models.InstanceStatusDeploying, ""); err != nil {
		err = fmt.Errorf("failed to mark instance %s deploying: %w", instance.Id, err)
		if errors.Is(err, repository.ErrStatusConflict) || errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return e.abandon(ctx, job, err)
	}
	instance.Status = models.InstanceStatusDeploying

	fields := map[string]interface{}{
		"instance_id": instance.Id,
		"client_id":   instance.ClientId,
		"log_id":      entry.Id,
		"port":        instance.Port,
	}
	logger.WithFields(fields).Info("Deployment started")

	result := e.attempt(ctx, instance)

	// Persist the outcome even if ctx was cancelled mid-run
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := e.finalize(finalCtx, instance, entry, result); err != nil {
		return err
	}

	metrics.ObserveDeployment(result.outcome, result.duration)
	fields["duration_seconds"] = result.duration.Seconds()
	fields["outcome"] = result.outcome
	if result.succeeded() {
		logger.WithFields(fields).Info("Deployment succeeded")
	} else {
		logger.WithFields(fields).WithField("error", result.message).Error("Deployment failed")
	}
	return nil
}

// abandon records a job that could not start as a failed deployment, so the
// instance and its open log still reach a terminal state. Shutdown lands here
// when workers drain the backlog with a cancelled context.
func (e *DeploymentExecutor) abandon(ctx context.Context, job *queue.DeployJob, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	cause = fmt.Errorf("deployment of instance %s did not start: %w", job.InstanceID, cause)

	instance, err := e.instances.Get(ctx, job.InstanceID)
	if err != nil {
		return errors.Join(cause, fmt.Errorf("failed to load instance %s: %w", job.InstanceID, err))
	}
	if instance.Status != models.InstanceStatusCreated && instance.Status != models.InstanceStatusDeploying {
		return cause
	}

	entry, err := e.openEntry(ctx, job)
	if err != nil {
		return errors.Join(cause, err)
	}

	message := fmt.Sprintf("deployment interrupted: %v", errors.Unwrap(cause))
	if err := failBeforeStart(ctx, e.instances, e.logs, instance, entry, message); err != nil {
		return errors.Join(cause, err)
	}

	metrics.ObserveDeployment(outcomeFault, 0)
	logger.WithFields(map[string]interface{}{
		"instance_id": instance.Id,
		"client_id":   instance.ClientId,
		"log_id":      entry.Id,
		"error":       message,
	}).Error("Deployment abandoned before start")
	return nil
}

// openEntry loads the in-progress log the job refers to
func (e *DeploymentExecutor) openEntry(ctx context.Context, job *queue.DeployJob) (*models.DeploymentLog, error) {
	var (
		entry *models.DeploymentLog
		err   error
	)
	if job.LogID != "" {
		entry, err = e.logs.Get(ctx, job.LogID)
	} else {
		entry, err = e.logs.FindOpen(ctx, job.InstanceID, models.DeploymentActionCreate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deployment log for instance %s: %w", job.InstanceID, err)
	}
	if entry.InstanceId != job.InstanceID {
		return nil, fmt.Errorf("deployment log %s belongs to instance %s", entry.Id, entry.InstanceId)
	}
	if entry.Status.IsClosed() {
		return nil, fmt.Errorf("deployment log %s: %w", entry.Id, repository.ErrLogClosed)
	}
	return entry, nil
}

// attempt runs the deployment action and classifies what happened.
// A panic anywhere in the run is converted into a fault.
func (e *DeploymentExecutor) attempt(ctx context.Context, instance *models.Instance) (result attemptResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = attemptResult{
				outcome:  outcomeFault,
				message:  fmt.Sprintf("deployment fault: %v", r),
				exitCode: -1,
			}
		}
		result.duration = time.Since(start)
	}()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.runner.Run(runCtx, e.scriptPath, instance.Name, instance.Domain, strconv.Itoa(instance.Port))
	return e.classify(ctx, res, err)
}

func (e *DeploymentExecutor) classify(parent context.Context, res *CommandResult, err error) attemptResult {
	if res == nil {
		res = &CommandResult{ExitCode: -1}
	}

	switch {
	case err == nil && res.ExitCode == 0:
		return attemptResult{
			outcome: outcomeSuccess,
			stdout:  TruncateOutput(res.Stdout, OutputSizeLimit),
		}

	case err == nil:
		message := strings.TrimSpace(res.Stderr)
		if message == "" {
			message = fmt.Sprintf("deployment action exited with status %d", res.ExitCode)
		}
		return attemptResult{
			outcome:  outcomeFailed,
			message:  TruncateOutput(message, OutputSizeLimit),
			stdout:   TruncateOutput(res.Stdout, OutputSizeLimit),
			exitCode: res.ExitCode,
		}

	case errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil:
		return attemptResult{
			outcome:  outcomeTimeout,
			message:  fmt.Errorf("%w after %s", ErrDeployTimeout, e.timeout).Error(),
			stdout:   TruncateOutput(res.Stdout, OutputSizeLimit),
			exitCode: -1,
		}

	case parent.Err() != nil:
		return attemptResult{
			outcome:  outcomeFault,
			message:  fmt.Sprintf("deployment interrupted: %v", parent.Err()),
			exitCode: -1,
		}

	default:
		return attemptResult{
			outcome:  outcomeFault,
			message:  fmt.Sprintf("failed to run deployment action: %v", err),
			exitCode: -1,
		}
	}
}

// finalize moves the instance to its terminal status and closes the log entry
func (e *DeploymentExecutor) finalize(ctx context.Context, instance *models.Instance, entry *models.DeploymentLog, result attemptResult) error {
	status := models.InstanceStatusError
	logStatus := models.DeploymentLogFailed
	if result.succeeded() {
		status = models.InstanceStatusRunning
		logStatus = models.DeploymentLogSuccess
	}

	var errs []error
	if err := e.instances.TransitionStatus(ctx, instance.Id, models.InstanceStatusDeploying, status, result.message); err != nil {
		errs = append(errs, fmt.Errorf("failed to mark instance %s %s: %w", instance.Id, status, err))
	} else {
		instance.Status = status
		instance.LastError = result.message
	}

	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}
	if result.stdout != "" {
		entry.Details["output"] = result.stdout
	}
	entry.Details["exit_code"] = result.exitCode
	entry.Finish(logStatus, result.message, result.duration)

	if err := e.logs.Close(ctx, entry); err != nil {
		errs = append(errs, fmt.Errorf("failed to close deployment log %s: %w", entry.Id, err))
	}

	return errors.Join(errs...)
}
