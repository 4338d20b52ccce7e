package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/metrics"
)

// DeployJob asks a worker to run the deployment action for one instance
type DeployJob struct {
	InstanceID string
	LogID      string
	ClientID   string
	EnqueuedAt time.Time
}

// JobQueue is a bounded channel of deployment jobs
type JobQueue struct {
	jobs   chan *DeployJob
	mu     sync.RWMutex
	closed bool
}

// NewJobQueue creates a new job queue with the specified buffer size
func NewJobQueue(bufferSize int) *JobQueue {
	return &JobQueue{
		jobs: make(chan *DeployJob, bufferSize),
	}
}

// Enqueue adds a job without blocking the caller
func (jq *JobQueue) Enqueue(job *DeployJob) error {
	jq.mu.RLock()
	defer jq.mu.RUnlock()

	if jq.closed {
		return ErrQueueClosed
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	// counted before the send so a worker's Dec never lands first
	metrics.QueueDepth.Inc()
	select {
	case jq.jobs <- job:
		logger.WithFields(map[string]interface{}{
			"instance_id": job.InstanceID,
			"log_id":      job.LogID,
			"queue_depth": len(jq.jobs),
		}).Info("Deployment job enqueued")
		return nil
	default:
		metrics.QueueDepth.Dec()
		logger.WithFields(map[string]interface{}{
			"instance_id": job.InstanceID,
			"capacity":    cap(jq.jobs),
		}).Warn("Failed to enqueue deployment job: queue is full")
		return ErrQueueFull
	}
}

// Jobs returns the underlying channel for job consumption
func (jq *JobQueue) Jobs() <-chan *DeployJob {
	return jq.jobs
}

// Len returns the number of buffered jobs
func (jq *JobQueue) Len() int {
	return len(jq.jobs)
}

// Close stops accepting jobs. Buffered jobs are still delivered.
func (jq *JobQueue) Close() {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	if jq.closed {
		return
	}
	jq.closed = true
	close(jq.jobs)
}

// Handler processes one job
type Handler func(ctx context.Context, job *DeployJob) error

// WorkerPool runs a fixed number of workers over a JobQueue
type WorkerPool struct {
	queue   *JobQueue
	workers int
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *JobQueue, numWorkers int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		queue:   queue,
		workers: numWorkers,
	}
}

// Start starts all workers. ctx is handed to every job; cancelling it
// interrupts running deployments but workers keep draining until the queue closes.
func (wp *WorkerPool) Start(ctx context.Context, handler Handler) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i, handler)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int, handler Handler) {
	defer wp.wg.Done()

	for job := range wp.queue.Jobs() {
		metrics.QueueDepth.Dec()
		if job == nil {
			continue
		}
		wp.process(ctx, id, handler, job)
	}
	logger.Debugf("Worker %d exiting: jobs channel closed", id)
}

func (wp *WorkerPool) process(ctx context.Context, id int, handler Handler, job *DeployJob) {
	fields := map[string]interface{}{
		"worker":      id,
		"instance_id": job.InstanceID,
		"log_id":      job.LogID,
		"waited_ms":   time.Since(job.EnqueuedAt).Milliseconds(),
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanics.Inc()
			logger.WithFields(fields).
				WithField("panic", fmt.Sprint(r)).
				WithField("stack", string(debug.Stack())).
				Error("Worker recovered from panic")
		}
	}()

	logger.WithFields(fields).Info("Worker processing deployment job")

	if err := handler(ctx, job); err != nil {
		logger.WithFields(fields).WithError(err).Error("Worker failed to process deployment job")
		return
	}
	logger.WithFields(fields).Info("Worker completed deployment job")
}

// Stop closes the queue and waits for the workers to drain it
func (wp *WorkerPool) Stop() {
	wp.queue.Close()
	wp.wg.Wait()
}

// Wait waits for all workers to finish
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}
