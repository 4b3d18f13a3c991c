package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hbomb79/Trove/internal/activity"
	"github.com/hbomb79/Trove/internal/api"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/classify"
	"github.com/hbomb79/Trove/internal/database"
	"github.com/hbomb79/Trove/internal/download"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/index"
	"github.com/hbomb79/Trove/internal/media"
	"github.com/hbomb79/Trove/internal/metrics"
	"github.com/hbomb79/Trove/internal/process"
	"github.com/hbomb79/Trove/internal/progress"
	"github.com/hbomb79/Trove/internal/scan"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	progressStore interface {
		progress.Store
		RunnableService
	}

	// Trove represents the top-level object for the server, and is responsible
	// for initialising the stores, services and event handling which make
	// up the download and processing pipeline.
	troveImpl struct {
		config   TroveConfig
		eventBus event.EventCoordinator
		registry *prometheus.Registry
		metrics  *metrics.Metrics
		db       database.Manager

		fileStore     catalog.Store
		transferStore download.Store
		progressStore progressStore

		processService  *process.Service
		downloadService *download.Service
		scanService     *scan.Service
		activityService *activity.Service
		notifier        *index.Notifier
		restGateway     *api.RestGateway
	}
)

func New(config TroveConfig) *troveImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Trove services using config: %#v\n", config)

	registry := prometheus.NewRegistry()
	return &troveImpl{
		config:   config,
		eventBus: event.New(),
		registry: registry,
		metrics:  metrics.New(registry),
		db:       database.New(),
	}
}

// Run will start all of Trove by bringing up all required services and connections, such as:
// - Database connection (unless the memory storage driver is used)
// - Stores
// - Service instances
//
// This function will not return until Trove is stopped.
// To stop Trove, the provided context must be cancelled. Errors from which Trove cannot recover
// will also cause Trove to stop.
func (trove *troveImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel(fmt.Errorf("service %s crashed: %w", label, err))
	}

	if err := trove.config.ensureDirs(); err != nil {
		return err
	}

	if err := trove.initialiseStores(ctx); err != nil {
		return err
	}
	defer trove.db.Close()

	if err := trove.initialiseServices(); err != nil {
		return err
	}

	wg := &sync.WaitGroup{}
	trove.spawnAsyncService(ctx, wg, trove.progressStore, "progress-janitor", crashHandler)
	trove.spawnAsyncService(ctx, wg, trove.processService, "process-service", crashHandler)
	trove.spawnAsyncService(ctx, wg, trove.downloadService, "download-service", crashHandler)
	trove.spawnAsyncService(ctx, wg, trove.scanService, "scan-service", crashHandler)
	trove.spawnAsyncService(ctx, wg, trove.activityService, "activity-service", crashHandler)
	trove.spawnAsyncService(ctx, wg, trove.notifier, "index-notifier", crashHandler)
	trove.spawnAsyncService(ctx, wg, trove.restGateway, "rest-gateway", crashHandler)
	go trove.logIndexErrors(ctx)
	log.Emit(logger.SUCCESS, "Trove services spawned!\n")

	wg.Wait()

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// CancelSession marks the session as cancelled. Work for the session which
// has not yet started is skipped, and any running scan of the session stops
// before its next item.
func (trove *troveImpl) CancelSession(ctx context.Context, sessionID string) error {
	if err := trove.progressStore.SetCancelled(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to cancel session %s: %w", sessionID, err)
	}

	log.Emit(logger.REMOVE, "Session %s cancelled\n", sessionID)
	trove.eventBus.Dispatch(event.SessionCancelledEvent, sessionID)
	return nil
}

func (trove *troveImpl) SessionProgress(ctx context.Context, sessionID string) (progress.Counters, error) {
	return trove.progressStore.Get(ctx, sessionID)
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the Trove service waitgroup is updated correctly
func (trove *troveImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}

func (trove *troveImpl) initialiseStores(ctx context.Context) error {
	if trove.config.Storage.Driver == MemoryStorage {
		log.Emit(logger.WARNING, "Using in-memory storage, transfers will not survive a restart\n")
		trove.fileStore = catalog.NewMemoryStore()
		trove.transferStore = download.NewMemoryStore()
		trove.progressStore = progress.NewMemoryStore(trove.config.Progress)
		return nil
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	if err := trove.db.Connect(ctx, trove.config.Database); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	db := trove.db.GetSqlxDb()
	trove.fileStore = catalog.NewPostgresStore(db)
	trove.transferStore = download.NewPostgresStore(db)
	trove.progressStore = progress.NewPostgresStore(db, trove.config.Progress)
	return nil
}

// initialiseServices constructs the pipeline back to front, as each stage
// hands work to the one after it.
func (trove *troveImpl) initialiseServices() error {
	ffmpeg := media.New(trove.config.Media)
	if serv, err := process.New(trove.config.Processing, trove.fileStore, trove.progressStore, ffmpeg, ffmpeg, trove.eventBus, trove.metrics); err == nil {
		trove.processService = serv
	} else {
		return fmt.Errorf("failed to construct process service: %w", err)
	}

	classifier := classify.New(trove.fileStore, trove.progressStore, trove.processService)
	origin := download.NewHTTPOrigin(nil)
	if serv, err := download.New(trove.config.Download, trove.transferStore, origin, trove.fileStore, classifier, trove.eventBus, trove.metrics); err == nil {
		trove.downloadService = serv
	} else {
		return fmt.Errorf("failed to construct download service: %w", err)
	}

	if serv, err := scan.New(trove.config.Scan, trove.config.reservedDirs(), trove.fileStore, trove.progressStore, classifier, trove.downloadService, trove.eventBus, trove.metrics); err == nil {
		trove.scanService = serv
	} else {
		return fmt.Errorf("failed to construct scan service: %w", err)
	}

	if notifier, err := index.New(trove.config.Index, trove.metrics); err == nil {
		trove.notifier = notifier
		notifier.Subscribe(trove.eventBus)
	} else {
		return fmt.Errorf("failed to construct index notifier: %w", err)
	}

	trove.restGateway = api.NewRestGateway(&trove.config.RestConfig, trove.downloadService, trove.fileStore, trove.scanService, trove, trove.registry)
	trove.activityService = activity.New(trove.restGateway, trove.eventBus, activity.DefaultTimings())
	trove.eventBus.RegisterHandlerFunction(event.SessionCancelledEvent, func(_ event.Event, payload event.Payload) {
		_ = trove.restGateway.BroadcastSessionCancelled(payload.(string))
	})

	return nil
}

// logIndexErrors drains the index notifier's error channel. Publication
// failures never stop Trove.
func (trove *troveImpl) logIndexErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-trove.notifier.Errors():
			log.Emit(logger.WARNING, "Index notification failed: %v\n", err)
		}
	}
}
