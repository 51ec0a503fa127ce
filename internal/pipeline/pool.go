package pipeline

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool fans stage work across a fixed set of goroutines behind a
// bounded queue. Submission blocks while the queue is full, which is the
// pipeline's backpressure mechanism; Depth exposes queued plus running
// tasks so outer callers can throttle.
type WorkerPool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	active  int64
	stopped int32
}

// NewWorkerPool starts workers immediately. Non-positive sizes fall back
// to one worker per CPU and a queue of four tasks per worker.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	p := &WorkerPool{tasks: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		atomic.AddInt64(&p.active, 1)
		task()
		atomic.AddInt64(&p.active, -1)
	}
}

// Submit enqueues a task, blocking while the queue is full. It fails only
// when the context is cancelled first or the pool is closed.
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	if atomic.LoadInt32(&p.stopped) == 1 {
		return context.Canceled
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth reports queued plus running tasks.
func (p *WorkerPool) Depth() int {
	return len(p.tasks) + int(atomic.LoadInt64(&p.active))
}

// Close stops intake and waits for in-flight tasks to drain.
func (p *WorkerPool) Close() {
	if !atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		return
	}
	close(p.tasks)
	p.wg.Wait()
}
