package worker

import "github.com/hbomb79/Aria/pkg/logger"

var workerLogger = logger.Get("Worker")

type WorkerWakeupChan chan int
type WorkerStatus int

const (
	SLEEPING WorkerStatus = iota
	WORKING
	FINISHED
)

// WorkerTask is the unit of work a worker executes once awake. The
// boolean return indicates whether any work was actually performed;
// a worker which performed no work will go back to sleep until the
// pool wakes it again.
type WorkerTask func(Worker) (bool, error)

type Worker interface {
	Start()
	Status() WorkerStatus
	WakeupChan() WorkerWakeupChan
	Label() string
	Sleep() bool
	Close()
}

type taskWorker struct {
	label         string
	task          WorkerTask
	wakeupChan    WorkerWakeupChan
	currentStatus WorkerStatus
}

// NewWorker creates a worker for the task provided. The wakeup channel
// carries a single buffered slot so that a wakeup raised while the
// worker is still winding down (it has seen an empty queue but not yet
// blocked in Sleep) is retained rather than lost.
func NewWorker(label string, task WorkerTask) *taskWorker {
	return &taskWorker{
		label:         label,
		task:          task,
		wakeupChan:    make(WorkerWakeupChan, 1),
		currentStatus: SLEEPING,
	}
}

// Start runs the workers task in a loop until the task reports that
// no work was available, at which point the worker sleeps until
// woken by the pool. A closed wakeup channel causes the worker
// to return.
func (worker *taskWorker) Start() {
	worker.currentStatus = WORKING
	for {
		didWork, err := worker.task(worker)
		if err != nil {
			workerLogger.Emit(logger.ERROR, "Worker '%v' task reported an error(%T): %v\n", worker.label, err, err.Error())
		}

		if !didWork {
			if !worker.Sleep() {
				return
			}
		}
	}
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	return worker.currentStatus
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

// Close closes the Worker by closing the WakeupChan.
// Note that this does not interupt a currently running
// task.
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
	worker.currentStatus = SLEEPING

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.currentStatus = WORKING
	} else {
		workerLogger.Emit(logger.STOP, "Wakeup channel for worker '%v' has been closed - worker is exiting\n", worker.label)
		worker.currentStatus = FINISHED
	}

	return isAlive
}
