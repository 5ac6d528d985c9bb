package downloads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Aria/internal/artifact"
	"github.com/hbomb79/Aria/internal/event"
	"github.com/hbomb79/Aria/internal/extract"
	"github.com/hbomb79/Aria/internal/job"
	"github.com/hbomb79/Aria/pkg/logger"
	"github.com/hbomb79/Aria/pkg/worker"
)

var (
	log = logger.Get("DownloadServ")

	ErrEmptyLocator = errors.New("no URL provided")
)

type Config struct {
	TTLSeconds           int  `yaml:"job_ttl_seconds" env:"JOB_TTL_SECONDS" env-default:"600"`
	SweepIntervalSeconds int  `yaml:"sweep_interval_seconds" env:"SWEEP_INTERVAL_SECONDS" env-default:"60"`
	Parallelism          int  `yaml:"extraction_parallelism" env:"EXTRACTION_PARALLELISM" env-default:"1"`
	OneTimeDelivery      bool `yaml:"one_time_delivery" env:"ONE_TIME_DELIVERY" env-default:"false"`
}

func (config *Config) TTL() time.Duration {
	return time.Duration(config.TTLSeconds) * time.Second
}

func (config *Config) SweepInterval() time.Duration {
	return time.Duration(config.SweepIntervalSeconds) * time.Second
}

type (
	// downloadService accepts extraction requests, issues capability
	// tokens for them, and sees the extraction performed out-of-band by
	// its worker pool. The pool size IS the concurrency permit: at most
	// 'Parallelism' extractions run simultaneously, and submissions
	// beyond that simply queue until a worker frees up. Submission never
	// blocks on (and never rejects because of) a saturated pool.
	downloadService struct {
		*sync.Mutex
		config    Config
		jobStore  *job.Store
		artifacts *artifact.Store
		extractor extract.Extractor
		eventBus  event.EventCoordinator

		pending    []uuid.UUID
		workerPool *worker.WorkerPool
		runCtx     context.Context
	}
)

// New creates a new downloadService with a worker pool sized to the
// configured extraction parallelism. An error is returned if the
// parallelism is not at least 1.
func New(
	config Config,
	jobStore *job.Store,
	artifacts *artifact.Store,
	extractor extract.Extractor,
	eventBus event.EventCoordinator,
) (*downloadService, error) {
	if config.Parallelism < 1 {
		return nil, fmt.Errorf("illegal extraction parallelism %d (must be >= 1)", config.Parallelism)
	}

	service := &downloadService{
		Mutex:      &sync.Mutex{},
		config:     config,
		jobStore:   jobStore,
		artifacts:  artifacts,
		extractor:  extractor,
		eventBus:   eventBus,
		pending:    make([]uuid.UUID, 0),
		workerPool: worker.NewWorkerPool(),
	}

	for i := 0; i < config.Parallelism; i++ {
		label := fmt.Sprintf("extraction-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.ExecuteTask))
	}

	return service, nil
}

// Run is the main entry point for this service. The worker pool is
// started and the method blocks until the provided context is
// cancelled, at which point the pool is drained.
// Note: cancellation will terminate in-flight engine subprocesses, and
// this method will not return until their workers have wound down.
func (service *downloadService) Run(ctx context.Context) error {
	service.runCtx = ctx
	if err := service.workerPool.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	log.Emit(logger.STOP, "Shutting down (context cancelled). Waiting for extraction workers to finish.\n")
	service.workerPool.Close()
	return nil
}

// Submit validates the locator, creates a PROCESSING job for it and
// queues the extraction. The jobs token is returned immediately; the
// caller is expected to poll it. The only validation performed is
// presence: anything further is the extraction engines concern.
func (service *downloadService) Submit(locator string) (uuid.UUID, error) {
	if strings.TrimSpace(locator) == "" {
		return uuid.Nil, ErrEmptyLocator
	}

	newJob := service.jobStore.Create(locator, service.config.TTL())

	service.Lock()
	service.pending = append(service.pending, newJob.Token)
	service.Unlock()

	log.Emit(logger.NEW, "Queued extraction of '%s' as %s\n", locator, newJob)
	service.eventBus.Dispatch(event.JobUpdateEvent, newJob.Token)
	service.workerPool.WakeupWorkers()

	return newJob.Token, nil
}

// Job returns a copy of the job known by the token provided, or nil.
func (service *downloadService) Job(token uuid.UUID) *job.Job {
	return service.jobStore.Get(token)
}

// AllJobs returns copies of every live job.
func (service *downloadService) AllJobs() []*job.Job {
	return service.jobStore.All()
}

// Consume atomically removes and returns the job for the token
// provided. Used by the fetch path when one-time delivery is enabled;
// of any number of racing consumers, exactly one receives the job.
func (service *downloadService) Consume(token uuid.UUID) *job.Job {
	return service.jobStore.Remove(token)
}

// ReleaseArtifact deletes the backing file for a consumed job. Absence
// of the file is not an error.
func (service *downloadService) ReleaseArtifact(path string) error {
	return service.artifacts.Delete(path)
}

// OneTimeDelivery reports whether a successful fetch invalidates
// the token.
func (service *downloadService) OneTimeDelivery() bool {
	return service.config.OneTimeDelivery
}

// ExecuteTask is the worker function for the downloadService, called by
// the services WorkerPool. Each invocation claims at most one pending
// job and runs its extraction to completion; a worker which finds no
// pending work reports as much and is put back to sleep by the pool.
func (service *downloadService) ExecuteTask(w worker.Worker) (bool, error) {
	claimed := service.claimPendingJob()
	if claimed == nil {
		return false, nil
	}

	service.performExtraction(claimed)
	return true, nil
}

// claimPendingJob pops tokens from the pending queue until one resolves
// to a live PROCESSING job. Tokens whose jobs were reaped while queued
// are discarded.
//
// Note: This function takes ownership of the mutex, and releases it when returning
func (service *downloadService) claimPendingJob() *job.Job {
	service.Lock()
	defer service.Unlock()

	for len(service.pending) > 0 {
		token := service.pending[0]
		service.pending = service.pending[1:]

		if claimed := service.jobStore.Get(token); claimed != nil && claimed.Status == job.PROCESSING {
			return claimed
		}

		log.Emit(logger.DEBUG, "Discarding queued token %s as its job is no longer live\n", token)
	}

	return nil
}

// performExtraction allocates an output path for the claimed job and
// invokes the extraction engine. The outcome is recorded on the job
// table; failures are captured here and never propagate. If the job
// vanished while the engine was running (reaped mid-flight) the fresh
// artifact is deleted rather than orphaned.
func (service *downloadService) performExtraction(claimed *job.Job) {
	token := claimed.Token
	_, outputPath := service.artifacts.Allocate()

	onProgress := func(pct int) {
		service.jobStore.SetProgress(token, pct)
		service.eventBus.Dispatch(event.JobProgressEvent, token)
	}

	log.Emit(logger.INFO, "Starting extraction for %s\n", claimed)
	if err := service.extractor.Extract(service.runCtx, claimed.Locator, outputPath, onProgress); err != nil {
		log.Emit(logger.ERROR, "Extraction for %s failed: %v\n", claimed, err)

		// Adapter cleans its own partials, but a half-written file
		// surviving an engine crash must not outlive the failure.
		if service.artifacts.Exists(outputPath) {
			service.artifacts.Delete(outputPath)
		}

		if service.jobStore.MarkFailed(token, err.Error()) {
			service.eventBus.Dispatch(event.JobCompleteEvent, token)
		}

		return
	}

	if service.jobStore.MarkReady(token, outputPath) {
		log.Emit(logger.SUCCESS, "Extraction for job %s complete (artifact %s)\n", token, outputPath)
		service.eventBus.Dispatch(event.JobCompleteEvent, token)
		return
	}

	log.Emit(logger.WARNING, "Job %s disappeared during extraction; deleting orphaned artifact %s\n", token, outputPath)
	if err := service.artifacts.Delete(outputPath); err != nil {
		log.Emit(logger.ERROR, "Failed to delete orphaned artifact: %v\n", err)
	}
}
