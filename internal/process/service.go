package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/classify"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/metrics"
	"github.com/hbomb79/Trove/internal/progress"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/hbomb79/Trove/pkg/worker"
)

var (
	log = logger.Get("ProcessServ")

	ErrNoProcessor = errors.New("no processor for media family")
)

// Service runs processing jobs on a pool of workers. Jobs are held in
// memory: a job is created only after its file has been counted in to the
// session, and is always reported exactly once.
type Service struct {
	config     Config
	files      catalog.Store
	progress   progress.Store
	processors map[classify.Family]Processor
	eventBus   event.EventDispatcher
	metrics    *metrics.Metrics

	pool *worker.WorkerPool
	ctx  context.Context

	mutex   sync.Mutex
	pending []*Job
	jobs    map[uuid.UUID]*Job
}

func New(config Config, files catalog.Store, progress progress.Store, prober Prober, extractor FrameExtractor, eventBus event.EventDispatcher, metrics *metrics.Metrics) (*Service, error) {
	scratch := filepath.Join(config.ThumbnailDir, ".scratch")
	if err := os.MkdirAll(scratch, os.ModeDir|os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail directory %s: %w", config.ThumbnailDir, err)
	}

	thumbnailer := NewThumbnailer(config.ThumbnailDir, config.ThumbnailWidth, config.JPEGQuality)
	processors := map[classify.Family]Processor{
		classify.Image: NewImageProcessor(files, thumbnailer),
		classify.Audio: NewAudioProcessor(files, prober),
		classify.Video: NewVideoProcessor(files, prober, extractor, thumbnailer, config.PosterOffset, scratch),
	}

	return newService(config, files, progress, processors, eventBus, metrics), nil
}

func newService(config Config, files catalog.Store, progress progress.Store, processors map[classify.Family]Processor, eventBus event.EventDispatcher, metrics *metrics.Metrics) *Service {
	return &Service{
		config:     config,
		files:      files,
		progress:   progress,
		processors: processors,
		eventBus:   eventBus,
		metrics:    metrics,
		pool:       worker.NewWorkerPool(),
		pending:    make([]*Job, 0),
		jobs:       make(map[uuid.UUID]*Job),
	}
}

// Run starts the processing workers and blocks until the context is
// cancelled. Jobs still pending at shutdown are not run.
func (service *Service) Run(ctx context.Context) error {
	service.ctx = ctx

	for i := 0; i < max(1, service.config.Parallelism); i++ {
		label := fmt.Sprintf("process-%d", i)
		if err := service.pool.PushWorker(worker.NewWorker(label, service.workerTick)); err != nil {
			return err
		}
	}
	if err := service.pool.Start(); err != nil {
		return err
	}
	defer service.pool.Close()

	service.wakeupWorkers()
	<-ctx.Done()

	log.Emit(logger.STOP, "Processing service shutting down\n")
	return nil
}

// Enqueue creates a pending job for the classified file. The file must
// already be counted in to the session's total.
func (service *Service) Enqueue(_ context.Context, job classify.Job) error {
	if _, ok := service.processors[job.Family]; !ok {
		return fmt.Errorf("%w: %s", ErrNoProcessor, job.Family)
	}

	j := &Job{
		ID:        uuid.New(),
		FileID:    job.FileID,
		SessionID: job.SessionID,
		Family:    job.Family,
		Status:    JobPending,
		QueuedAt:  time.Now(),
	}

	service.mutex.Lock()
	service.pending = append(service.pending, j)
	service.jobs[j.ID] = j
	service.mutex.Unlock()

	log.Emit(logger.NEW, "Queued %s processing job %s for file %s\n", job.Family, j.ID, job.FileID)
	service.wakeupWorkers()
	return nil
}

// Jobs returns a snapshot of the jobs which have not yet finished.
func (service *Service) Jobs() []Job {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	out := make([]Job, 0, len(service.jobs))
	for _, j := range service.jobs {
		out = append(out, *j)
	}

	return out
}

func (service *Service) workerTick(w worker.Worker) (bool, error) {
	if service.ctx.Err() != nil {
		return false, nil
	}

	job := service.claimJob()
	if job == nil {
		return false, nil
	}

	service.runJob(service.ctx, job)
	return true, nil
}

func (service *Service) claimJob() *Job {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	if len(service.pending) == 0 {
		return nil
	}

	job := service.pending[0]
	service.pending[0] = nil
	service.pending = service.pending[1:]
	return job
}

// runJob takes a pending job through to a finished status. A job whose
// session has been cancelled is not run, and is not counted as either
// done or failed.
func (service *Service) runJob(ctx context.Context, job *Job) {
	cancelled, err := service.progress.IsCancelled(ctx, job.SessionID)
	if err != nil {
		log.Warnf("Unable to check cancellation of session %s: %v\n", job.SessionID, err)
	}
	if cancelled {
		log.Emit(logger.REMOVE, "Skipping job %s as session %s is cancelled\n", job.ID, job.SessionID)
		service.finishJob(job, JobCancelled, nil)
		service.metrics.ProcessingJobsTotal.WithLabelValues(job.Family.String(), string(JobCancelled)).Inc()
		return
	}

	service.setStatus(job, JobRunning)
	started := time.Now()
	runErr := service.process(ctx, job)
	service.metrics.ProcessingDuration.WithLabelValues(job.Family.String()).Observe(time.Since(started).Seconds())

	// The outcome must be reported even if we're shutting down.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if runErr == nil {
		service.finishJob(job, JobDone, nil)
		service.report(reportCtx, job, false)
		service.eventBus.Dispatch(event.FileProcessedEvent, job.FileID)
		log.Emit(logger.SUCCESS, "Processed %s file %s\n", job.Family, job.FileID)
		return
	}

	log.Errorf("Processing of %s file %s failed: %v\n", job.Family, job.FileID, runErr)
	service.finishJob(job, JobFailed, runErr)
	service.report(reportCtx, job, true)
}

// process runs the processor for the job, converting a panic in to an error.
func (service *Service) process(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	processor, ok := service.processors[job.Family]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoProcessor, job.Family)
	}

	file, err := service.files.GetFile(ctx, job.FileID)
	if err != nil {
		return err
	}

	if done, err := processor.AlreadyProcessed(ctx, file); err != nil {
		return err
	} else if done {
		log.Debugf("File %s has already been processed, skipping\n", file.ID)
		return nil
	}

	return processor.Process(ctx, file)
}

// report counts the job's outcome in to its session. A failure is
// counted as done before it is counted as failed, so observers never see
// more failures than finished items.
func (service *Service) report(ctx context.Context, job *Job, failed bool) {
	outcome := string(JobDone)
	if err := service.progress.IncrementDone(ctx, job.SessionID); err != nil {
		log.Errorf("Failed to count job %s as done in session %s: %v\n", job.ID, job.SessionID, err)
	}
	if failed {
		outcome = string(JobFailed)
		if err := service.progress.IncrementFailed(ctx, job.SessionID); err != nil {
			log.Errorf("Failed to count job %s as failed in session %s: %v\n", job.ID, job.SessionID, err)
		}
	}
	service.metrics.ProcessingJobsTotal.WithLabelValues(job.Family.String(), outcome).Inc()

	if job.SessionID == "" {
		return
	}

	counters, err := service.progress.Get(ctx, job.SessionID)
	if err != nil {
		log.Warnf("Failed to read progress of session %s: %v\n", job.SessionID, err)
		return
	}

	service.eventBus.Dispatch(event.ProcessingProgressEvent, event.ProcessingProgress{
		SessionID: job.SessionID,
		Total:     counters.Total,
		Done:      counters.Done,
		Failed:    counters.Failed,
	})
}

func (service *Service) setStatus(job *Job, status JobStatus) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	now := time.Now()
	job.Status = status
	if status == JobRunning {
		job.StartedAt = &now
	}
}

func (service *Service) finishJob(job *Job, status JobStatus, cause error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	now := time.Now()
	job.Status = status
	job.FinishedAt = &now
	if cause != nil {
		msg := cause.Error()
		job.Error = &msg
	}

	delete(service.jobs, job.ID)
}

func (service *Service) wakeupWorkers() {
	if err := service.pool.WakeupWorkers(); err != nil {
		log.Debugf("Unable to wake processing workers: %v\n", err)
	}
}
