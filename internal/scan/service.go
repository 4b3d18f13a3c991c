package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/classify"
	"github.com/hbomb79/Trove/internal/download"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/metrics"
	"github.com/hbomb79/Trove/internal/progress"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/rjeczalik/notify"
)

var log = logger.Get("ScanServ")

const watchDebounce = 500 * time.Millisecond

// Service drives scans of bulk sources. Scans started on demand belong to a
// session, which tracks their cancellation; the watch mode started by Run
// feeds new files from the configured watch path without a session.
type Service struct {
	config     Config
	files      catalog.Store
	progress   progress.Store
	classifier Classifier
	downloader Downloader
	eventBus   event.EventDispatcher
	metrics    *metrics.Metrics
	reserved   []string
	blacklist  []*regexp.Regexp

	ctxMutex sync.Mutex
	ctx      context.Context
	scans    sync.WaitGroup

	// Guards the watch path discovery and the hold timers
	watchMutex sync.Mutex
	holdTimers map[string]*time.Timer
}

type scanTally struct {
	sessionID string
	enqueued  int
	total     int
}

// New creates the scan service. The reserved paths are directories owned by
// Trove which scans must never descend in to.
//
// When a watch path is configured it is validated to be a directory, and is
// created if it does not exist.
func New(config Config, reserved []string, files catalog.Store, progress progress.Store, classifier Classifier, downloader Downloader, eventBus event.EventDispatcher, metrics *metrics.Metrics) (*Service, error) {
	blacklist := make([]*regexp.Regexp, 0, len(config.Blacklist))
	for _, expr := range config.Blacklist {
		compiled, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("scan blacklist expression %q is invalid: %w", expr, err)
		}
		blacklist = append(blacklist, compiled)
	}

	if config.WatchPath != "" {
		if info, err := os.Stat(config.WatchPath); err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("watch path '%s' is not a directory", config.WatchPath)
			}
		} else if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(config.WatchPath, os.ModeDir|os.ModePerm); err != nil {
				return nil, fmt.Errorf("watch path '%s' could not be created: %w", config.WatchPath, err)
			}
		} else {
			return nil, fmt.Errorf("watch path '%s' could not be accessed: %w", config.WatchPath, err)
		}
	}

	return &Service{
		config:     config,
		files:      files,
		progress:   progress,
		classifier: classifier,
		downloader: downloader,
		eventBus:   eventBus,
		metrics:    metrics,
		reserved:   reserved,
		blacklist:  blacklist,
		holdTimers: make(map[string]*time.Timer),
	}, nil
}

// FilesystemSource returns a source for the directory which excludes the
// reserved paths and blacklist this service was created with.
func (service *Service) FilesystemSource(root string) *FilesystemSource {
	return NewFilesystemSource(root, service.reserved, service.blacklist)
}

// Run watches the configured watch path until the context is cancelled,
// feeding any new files in to the pipeline. A forced rescan is performed
// periodically in case the watcher misses an event. Scans started with
// StartScan are waited for before Run returns.
func (service *Service) Run(ctx context.Context) error {
	service.ctxMutex.Lock()
	service.ctx = ctx
	service.ctxMutex.Unlock()

	defer service.scans.Wait()
	defer service.clearAllHoldTimers()

	if service.config.WatchPath == "" {
		log.Infof("No watch path configured, only on-demand scans will run\n")
		<-ctx.Done()
		return nil
	}

	fsNotifyChannel := make(chan notify.EventInfo, 64)
	if err := notify.Watch(filepath.Join(service.config.WatchPath, "..."), fsNotifyChannel, notify.Create, notify.Write, notify.Rename); err != nil {
		return fmt.Errorf("failed to watch %s: %w", service.config.WatchPath, err)
	}
	defer notify.Stop(fsNotifyChannel)

	forceSync := time.NewTicker(service.config.ForceSyncDuration())
	defer forceSync.Stop()

	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()
	defer debounce.Stop()

	log.Emit(logger.NEW, "Watching %s for new files\n", service.config.WatchPath)
	service.discoverWatched(ctx)

	for {
		select {
		case <-fsNotifyChannel:
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(watchDebounce)
		case <-debounce.C:
			service.discoverWatched(ctx)
		case <-forceSync.C:
			service.discoverWatched(ctx)
		case <-ctx.Done():
			log.Emit(logger.STOP, "Scan service shutting down\n")
			return nil
		}
	}
}

// Scan enumerates the source for the session, blocking until the scan ends.
// ErrScanInProgress is returned if the session is already being scanned.
func (service *Service) Scan(ctx context.Context, sessionID string, source Source) error {
	if err := service.beginScan(ctx, sessionID); err != nil {
		return err
	}

	return service.scan(ctx, sessionID, source)
}

// StartScan starts a scan of the source for the session in the background.
// The scan is bound to the lifetime of the service rather than the context
// given, which is only used to claim the session.
func (service *Service) StartScan(ctx context.Context, sessionID string, source Source) error {
	if err := service.beginScan(ctx, sessionID); err != nil {
		return err
	}

	service.scans.Add(1)
	go func() {
		defer service.scans.Done()
		if err := service.scan(service.runContext(), sessionID, source); err != nil {
			log.Errorf("Scan for session %s failed: %v\n", sessionID, err)
		}
	}()

	return nil
}

func (service *Service) beginScan(ctx context.Context, sessionID string) error {
	ok, err := service.progress.BeginScan(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to claim session %s for scanning: %w", sessionID, err)
	}
	if !ok {
		return ErrScanInProgress
	}

	return nil
}

// scan enumerates the source, checking for cancellation of the session
// before every item. A cancelled scan stops enumerating, but work already
// handed over is left to run. However the scan ends, the session's scan
// marker and cancellation flag are cleared and a final progress event sent.
func (service *Service) scan(ctx context.Context, sessionID string, source Source) (err error) {
	batchID := uuid.New()
	tally := &scanTally{sessionID: sessionID}
	state := StateFailed

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panic: %v", r)
			state = StateFailed
		}

		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if endErr := service.progress.EndScan(endCtx, sessionID); endErr != nil {
			log.Errorf("Failed to clear scan state of session %s: %v\n", sessionID, endErr)
		}

		service.publish(tally, state)
		log.Emit(logger.STOP, "Scan %s for session %s %s (%d/%d enqueued)\n", batchID, sessionID, state, tally.enqueued, tally.total)
	}()

	log.Emit(logger.NEW, "Starting scan %s for session %s\n", batchID, sessionID)
	service.publish(tally, StateRunning)

	err = source.Enumerate(ctx, func(items []Item) error {
		tally.total += len(items)
		service.publish(tally, StateRunning)

		for _, item := range items {
			cancelled, err := service.progress.IsCancelled(ctx, sessionID)
			if err != nil {
				log.Warnf("Unable to check cancellation of session %s: %v\n", sessionID, err)
			}
			if cancelled {
				return errStopEnumeration
			}

			if service.routeItem(ctx, sessionID, &batchID, item) {
				tally.enqueued++
			}
		}

		service.publish(tally, StateRunning)
		return nil
	})

	switch {
	case errors.Is(err, errStopEnumeration):
		state = StateCancelled
		return nil
	case err != nil:
		return err
	default:
		state = StateCompleted
		return nil
	}
}

// routeItem hands a new item to the pipeline, returning true if it was
// handed over. Items which already have a File record are skipped, and a
// failure to route one item never stops the scan.
func (service *Service) routeItem(ctx context.Context, sessionID string, batchID *uuid.UUID, item Item) bool {
	route := "skipped"
	defer func() { service.metrics.ScanItemsTotal.WithLabelValues(route).Inc() }()

	known, err := service.isKnown(ctx, item)
	if err != nil {
		log.Errorf("Failed to check whether %s is known: %v\n", item.location(), err)
		route = "failed"
		return false
	} else if known {
		log.Verbosef("Skipping known item %s\n", item.location())
		return false
	}

	file := catalog.NewFile()
	file.Filename = item.Name
	if item.IsRemote() {
		file.SourceURL = &item.URL
	} else {
		file.SourcePath = &item.Path
	}
	if err := service.files.CreateFile(ctx, file); err != nil {
		log.Errorf("Failed to create file record for %s: %v\n", item.location(), err)
		route = "failed"
		return false
	}

	if item.IsRemote() {
		_, err := service.downloader.StartTransfer(ctx, download.Request{URL: item.URL, FileID: file.ID, SessionID: sessionID, BatchID: batchID})
		if errors.Is(err, download.ErrProbeFailed) {
			// The failed transfer has been recorded against the file.
			log.Warnf("Transfer of %s failed to start: %v\n", item.URL, err)
		} else if err != nil {
			log.Errorf("Failed to start transfer of %s: %v\n", item.URL, err)
			route = "failed"
			return false
		}

		route = "download"
		return true
	}

	if _, err := service.classifier.Classify(ctx, classify.Request{FileID: file.ID, SessionID: sessionID}); err != nil {
		log.Errorf("Failed to classify %s: %v\n", item.Path, err)
		route = "failed"
		return false
	}

	route = "classify"
	return true
}

func (service *Service) isKnown(ctx context.Context, item Item) (bool, error) {
	var err error
	if item.IsRemote() {
		_, err = service.files.FindFileBySourceURL(ctx, item.URL)
	} else {
		_, err = service.files.FindFileBySourcePath(ctx, item.Path)
	}

	if errors.Is(err, catalog.ErrFileNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	return true, nil
}

func (service *Service) publish(tally *scanTally, state State) {
	if tally.sessionID == "" {
		return
	}

	service.eventBus.Dispatch(event.ScanProgressEvent, event.ScanProgress{
		SessionID: tally.sessionID,
		Enqueued:  tally.enqueued,
		Total:     tally.total,
		State:     string(state),
	})
}

// discoverWatched walks the watch path and routes any new files which are
// old enough. Younger files are held, and re-evaluated once they could be
// old enough.
func (service *Service) discoverWatched(ctx context.Context) {
	service.watchMutex.Lock()
	defer service.watchMutex.Unlock()

	minModtimeAge := service.config.RequiredModTimeAgeDuration()
	err := service.FilesystemSource(service.config.WatchPath).Enumerate(ctx, func(items []Item) error {
		for _, item := range items {
			if _, held := service.holdTimers[item.Path]; held {
				continue
			}

			if age := time.Since(item.ModTime); age < minModtimeAge {
				service.scheduleHoldTimer(item.Path, minModtimeAge-age)
				continue
			}

			service.routeItem(ctx, "", nil, item)
		}

		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Errorf("Discovery of %s failed: %v\n", service.config.WatchPath, err)
	}
}

// evaluateHold checks the modtime of a held file, routing it if it's now
// old enough or scheduling another evaluation if not. Files which have
// gone away are forgotten.
func (service *Service) evaluateHold(path string) {
	service.watchMutex.Lock()
	defer service.watchMutex.Unlock()

	delete(service.holdTimers, path)
	ctx := service.runContext()
	if ctx.Err() != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Debugf("Held file %s has gone away: %v\n", path, err)
		return
	}

	minModtimeAge := service.config.RequiredModTimeAgeDuration()
	if age := time.Since(info.ModTime()); age < minModtimeAge {
		service.scheduleHoldTimer(path, minModtimeAge-age)
		return
	}

	service.routeItem(ctx, "", nil, Item{Path: path, Name: filepath.Base(path), ModTime: info.ModTime()})
}

// scheduleHoldTimer evaluates the hold of the path after the delay. Caller
// must hold the watch mutex.
func (service *Service) scheduleHoldTimer(path string, delay time.Duration) {
	if timer, ok := service.holdTimers[path]; ok {
		timer.Stop()
	}

	log.Verbosef("Holding %s for %s until its modtime settles\n", path, delay)
	service.metrics.ScanItemsTotal.WithLabelValues("held").Inc()
	service.holdTimers[path] = time.AfterFunc(delay, func() { service.evaluateHold(path) })
}

func (service *Service) clearAllHoldTimers() {
	service.watchMutex.Lock()
	defer service.watchMutex.Unlock()

	for path, timer := range service.holdTimers {
		timer.Stop()
		delete(service.holdTimers, path)
	}
}

func (service *Service) runContext() context.Context {
	service.ctxMutex.Lock()
	defer service.ctxMutex.Unlock()

	if service.ctx == nil {
		return context.Background()
	}
	return service.ctx
}

func (item Item) location() string {
	if item.IsRemote() {
		return item.URL
	}
	return item.Path
}
