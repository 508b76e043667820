package executor

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/kubilitics/hqee/internal/metrics"
)

var errQueueRejected = errors.New("executor: task queue rejected submission")

// pool is a bounded worker pool with a FIFO queue and caller-runs
// back-pressure: when the queue is full, Submit runs the task on the
// calling goroutine instead of dropping it.
type pool struct {
	tasks     chan func()
	wg        sync.WaitGroup
	active    int64
	completed int64
	total     int64

	closeOnce sync.Once
	done      chan struct{}
}

// coreSize returns max(available-cores, 4) per the spec's pool sizing rule.
func coreSize() int {
	n := runtime.NumCPU()
	if n < 4 {
		return 4
	}
	return n
}

// newPool starts a worker pool with the given core size and queue capacity.
func newPool(workers, queueCapacity int) *pool {
	if workers <= 0 {
		workers = coreSize()
	}
	if queueCapacity <= 0 {
		queueCapacity = workers * 4
	}

	p := &pool{
		tasks: make(chan func(), queueCapacity),
		done:  make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		atomic.AddInt64(&p.active, 1)
		metrics.ToolPoolActiveWorkers.Inc()
		task()
		atomic.AddInt64(&p.active, -1)
		atomic.AddInt64(&p.completed, 1)
		metrics.ToolPoolActiveWorkers.Dec()
	}
}

// Capacity returns the queue's configured capacity.
func (p *pool) Capacity() int {
	return cap(p.tasks)
}

// IsSaturated reports whether every worker is busy and the queue is at
// capacity, i.e. a new submission would have nowhere to go but the calling
// goroutine. Callers use this to reject new work outright rather than
// piling more inline execution onto an already overloaded caller.
func (p *pool) IsSaturated(workers int) bool {
	return int(atomic.LoadInt64(&p.active)) >= workers && len(p.tasks) >= cap(p.tasks)
}

// Submit enqueues task for pool execution. If the queue is full, task runs
// synchronously on the calling goroutine (caller-runs back-pressure) rather
// than being dropped.
func (p *pool) Submit(task func()) {
	atomic.AddInt64(&p.total, 1)
	select {
	case p.tasks <- task:
		metrics.ToolPoolQueuedTasks.Set(float64(len(p.tasks)))
		return
	default:
	}
	// Queue full: run inline.
	task()
	atomic.AddInt64(&p.completed, 1)
}

// Metrics reports current pool observability data.
type Metrics struct {
	Active      int64
	PoolSize    int
	QueueDepth  int
	Completed   int64
	TotalTasks  int64
}

func (p *pool) Snapshot(poolSize int) Metrics {
	return Metrics{
		Active:     atomic.LoadInt64(&p.active),
		PoolSize:   poolSize,
		QueueDepth: len(p.tasks),
		Completed:  atomic.LoadInt64(&p.completed),
		TotalTasks: atomic.LoadInt64(&p.total),
	}
}

// Shutdown stops accepting new work and waits for in-flight tasks to
// finish. It does not forcibly interrupt workers; Go has no safe
// preemption primitive for arbitrary goroutines, so "force" is modeled as
// the caller giving up waiting once its own deadline elapses.
func (p *pool) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
