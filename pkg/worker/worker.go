package worker

import (
	"fmt"
	"sync/atomic"

	"github.com/hbomb79/Trove/pkg/logger"
)

var workerLogger = logger.Get("Worker")

type (
	WorkerWakeupChan chan int
	WorkerStatus     int32

	// WorkFunc is executed by a worker whenever it is awake. The boolean
	// return indicates whether any work was performed; a worker will keep
	// calling its WorkFunc until it reports no work was done, at which
	// point the worker sleeps until woken by the pool.
	WorkFunc func(Worker) (bool, error)

	Worker interface {
		Start()
		Status() WorkerStatus
		WakeupChan() WorkerWakeupChan
		Label() string
		Sleep() bool
		Close()
	}

	taskWorker struct {
		label         string
		work          WorkFunc
		wakeupChan    WorkerWakeupChan
		currentStatus atomic.Int32
	}
)

const (
	Sleeping WorkerStatus = iota
	Working
	Finished
)

func NewWorker(label string, work WorkFunc) *taskWorker {
	return &taskWorker{
		label:      label,
		work:       work,
		wakeupChan: make(WorkerWakeupChan, 1),
	}
}

// Start runs the worker until its wakeup channel is closed. Each time the
// worker wakes it drains all available work before sleeping again. Errors
// (and panics) from the work function are logged but do not stop the worker.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker %s\n", worker.label)
	worker.setStatus(Working)

	for {
		for worker.runOnce() {
		}

		if !worker.Sleep() {
			break
		}
	}

	worker.setStatus(Finished)
	workerLogger.Emit(logger.STOP, "Worker %s has stopped\n", worker.label)
}

func (worker *taskWorker) runOnce() (didWork bool) {
	defer func() {
		if r := recover(); r != nil {
			workerLogger.Errorf("Worker %s recovered from panic: %v\n", worker.label, r)
			didWork = true
		}
	}()

	didWork, err := worker.work(worker)
	if err != nil {
		workerLogger.Emit(logger.ERROR, "Worker %s has reported an error(%T): %v\n", worker.label, err, err)
	}

	return didWork
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	return WorkerStatus(worker.currentStatus.Load())
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

// Close closes the Worker by closing the WakeChan.
// Note that this does not interupt currently running
// work.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}

// Sleep puts a worker to sleep until it's wakeupChan is
// signalled from another goroutine. Returns a boolean that
// is 'false' if the wakeup channel was closed - indicating
// the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.setStatus(Sleeping)

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.setStatus(Working)
	} else {
		workerLogger.Emit(logger.STOP, "Wakeup channel for worker '%v' has been closed - worker is exiting\n", worker.label)
	}

	return isAlive
}

func (worker *taskWorker) setStatus(status WorkerStatus) {
	worker.currentStatus.Store(int32(status))
}

func (worker *taskWorker) String() string {
	return fmt.Sprintf("Worker{label=%s status=%d}", worker.label, worker.Status())
}
