package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/Aria/internal/api"
	"github.com/hbomb79/Aria/internal/artifact"
	"github.com/hbomb79/Aria/internal/downloads"
	"github.com/hbomb79/Aria/internal/event"
	"github.com/hbomb79/Aria/internal/extract"
	"github.com/hbomb79/Aria/internal/job"
	"github.com/hbomb79/Aria/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	DownloadService interface {
		RunnableService
		Submit(locator string) (uuid.UUID, error)
		Job(token uuid.UUID) *job.Job
		AllJobs() []*job.Job
		Consume(token uuid.UUID) *job.Job
		ReleaseArtifact(path string) error
		OneTimeDelivery() bool
	}
)

// Aria represents the top-level object for the server, and is responsible
// for initialising the stores, services, event handling, et cetera...
type ariaImpl struct {
	eventBus event.EventCoordinator
	config   AriaConfig

	jobStore      *job.Store
	artifactStore *artifact.Store

	restGateway     RunnableService
	downloadService DownloadService
	reaper          RunnableService
}

func New(config AriaConfig) *ariaImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Aria services using config: %#v\n", config)
	aria := &ariaImpl{
		eventBus: event.New(),
		config:   config,
		jobStore: job.NewStore(),
	}

	store, err := artifact.NewStore(config.DownloadDir, "."+config.Extractor.AudioFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to construct artifact store due to error: %s", err.Error()))
	}
	aria.artifactStore = store

	extractor := extract.NewYtDlpExtractor(config.Extractor)
	if serv, err := downloads.New(config.Downloads, aria.jobStore, aria.artifactStore, extractor, aria.eventBus); err == nil {
		aria.downloadService = serv
	} else {
		panic(fmt.Sprintf("failed to construct download service due to error: %s", err.Error()))
	}

	aria.reaper = downloads.NewReaper(config.Downloads.SweepInterval(), aria.jobStore, aria.artifactStore, aria.eventBus)
	aria.restGateway = api.NewRestGateway(&config.RestConfig, aria.downloadService, aria.eventBus)

	return aria
}

// Run will start Aria by bringing up all of its services:
// - Download service (+ extraction worker pool)
// - Reaper
// - REST gateway (+ websocket activity feed)
//
// This function will not return until Aria is stopped.
// To stop Aria, the provided context must be cancelled. Errors from which Aria
// cannot recover will also cause Aria to stop.
func (aria *ariaImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	wg := &sync.WaitGroup{}
	aria.spawnAsyncService(ctx, wg, aria.downloadService, "download-service", crashHandler)
	aria.spawnAsyncService(ctx, wg, aria.reaper, "reaper", crashHandler)
	aria.spawnAsyncService(ctx, wg, aria.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Aria services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService runs the provided service on a fresh goroutine
// tracked by the WaitGroup provided. A non-nil error from the services
// Run method is reported to the crash handler, which will bring the
// rest of Aria down.
func (aria *ariaImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, label string, crashHandler func(string, error)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crashHandler(label, err)
		}
	}()
}
