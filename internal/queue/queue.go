package queue

import (
	"sync"

	"github.com/maverick-software/toolboxd/internal/logger"
)

// ProvisionJob represents a provisioning job in the queue
type ProvisionJob struct {
	EnvironmentID string
	UserID        string
}

// JobQueue manages the job queue with a channel-based system
type JobQueue struct {
	jobs chan *ProvisionJob
	done chan bool
	mu   sync.Mutex
}

// NewJobQueue creates a new job queue with the specified buffer size
func NewJobQueue(bufferSize int) *JobQueue {
	return &JobQueue{
		jobs: make(chan *ProvisionJob, bufferSize),
		done: make(chan bool),
	}
}

// Enqueue adds a job to the queue
func (jq *JobQueue) Enqueue(job *ProvisionJob) error {
	logger.WithFields(map[string]interface{}{
		"toolbox_id": job.EnvironmentID,
		"user_id":    job.UserID,
	}).Debug("Enqueueing provision job")

	select {
	case jq.jobs <- job:
		logger.WithFields(map[string]interface{}{
			"toolbox_id": job.EnvironmentID,
		}).Info("Provision job enqueued successfully")
		return nil
	case <-jq.done:
		logger.WithFields(map[string]interface{}{
			"toolbox_id": job.EnvironmentID,
		}).Warn("Failed to enqueue job: queue is closed")
		return ErrQueueClosed
	}
}

// Dequeue retrieves the next job from the queue
// Returns nil if the queue is closed
func (jq *JobQueue) Dequeue() *ProvisionJob {
	return <-jq.jobs
}

// Jobs returns the underlying channel for job consumption
func (jq *JobQueue) Jobs() <-chan *ProvisionJob {
	return jq.jobs
}

// Close closes the queue
func (jq *JobQueue) Close() {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	select {
	case <-jq.done:
		return // Already closed
	default:
		close(jq.done)
		close(jq.jobs)
	}
}

// WorkerPool manages multiple workers processing jobs
type WorkerPool struct {
	queue   *JobQueue
	workers int
	jobs    chan *ProvisionJob
	wg      sync.WaitGroup
	done    chan bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *JobQueue, numWorkers int) *WorkerPool {
	return &WorkerPool{
		queue:   queue,
		workers: numWorkers,
		jobs:    queue.jobs,
		done:    make(chan bool),
	}
}

// Start starts all workers
func (wp *WorkerPool) Start(handler func(*ProvisionJob) error) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(handler)
	}
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(handler func(*ProvisionJob) error) {
	defer wp.wg.Done()

	for {
		select {
		case job, ok := <-wp.jobs:
			if !ok {
				logger.Debug("Worker exiting: jobs channel closed")
				return
			}
			if job != nil {
				logger.WithFields(map[string]interface{}{
					"toolbox_id": job.EnvironmentID,
					"user_id":    job.UserID,
				}).Info("Worker processing provision job")

				err := handler(job)
				if err != nil {
					logger.WithFields(map[string]interface{}{
						"toolbox_id": job.EnvironmentID,
						"error":      err.Error(),
					}).Error("Worker failed to process provision job")
				} else {
					logger.WithFields(map[string]interface{}{
						"toolbox_id": job.EnvironmentID,
					}).Info("Worker completed provision job successfully")
				}
			}
		case <-wp.done:
			logger.Debug("Worker exiting: stop signal received")
			return
		}
	}
}

// Stop stops all workers
func (wp *WorkerPool) Stop() {
	close(wp.done)
	wp.wg.Wait()
}

// Wait waits for all workers to finish
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}
