package worker_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/hbomb79/Aria/pkg/worker"
	"github.com/stretchr/testify/assert"
)

func Test_Pool_LifecycleRules(t *testing.T) {
	t.Parallel()
	pool := worker.NewWorkerPool()

	assert.NotNil(t, pool.WakeupWorkers(), "waking an unstarted pool must error")
	assert.Nil(t, pool.PushWorker(worker.NewWorker("test-worker", func(worker.Worker) (bool, error) { return false, nil })))
	assert.Equal(t, 1, pool.Size())

	assert.Nil(t, pool.Start())
	assert.NotNil(t, pool.Start(), "starting a started pool must error")
	assert.NotNil(t, pool.PushWorker(worker.NewWorker("late", nil)), "pushing to a started pool must error")

	pool.Close()
}

func Test_Pool_WakeupRunsTasks(t *testing.T) {
	t.Parallel()

	executions := atomic.Int32{}
	task := func(worker.Worker) (bool, error) {
		// Report no work performed so the worker sleeps after each wakeup.
		executions.Add(1)
		return false, nil
	}

	pool := worker.NewWorkerPool()
	assert.Nil(t, pool.PushWorker(worker.NewWorker("worker-0", task), worker.NewWorker("worker-1", task)))
	assert.Nil(t, pool.Start())
	defer pool.Close()

	// Each worker runs its task once when started.
	assert.Eventually(t, func() bool { return executions.Load() == 2 }, 5*time.Second, 5*time.Millisecond)

	assert.Nil(t, pool.WakeupWorkers())
	assert.Eventually(t, func() bool { return executions.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
}

func Test_Pool_WakeupDuringTaskIsRetained(t *testing.T) {
	t.Parallel()

	executions := atomic.Int32{}
	inTask := make(chan struct{})
	gate := make(chan struct{})
	task := func(worker.Worker) (bool, error) {
		if executions.Add(1) == 1 {
			inTask <- struct{}{}
			<-gate
		}
		return false, nil
	}

	pool := worker.NewWorkerPool()
	assert.Nil(t, pool.PushWorker(worker.NewWorker("worker-0", task)))
	assert.Nil(t, pool.Start())
	defer pool.Close()

	// Raise the wakeup while the worker is mid-task; it reports itself
	// WORKING and is not receiving. The wakeup must be retained and
	// consumed when the worker next tries to sleep, otherwise work
	// queued during that window sits unclaimed indefinitely.
	<-inTask
	assert.Nil(t, pool.WakeupWorkers())
	close(gate)

	assert.Eventually(t, func() bool { return executions.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)
}
