package workerpool

import (
	"sync"
)

// Pool is a fixed-size worker pool with a bounded task queue. When the queue
// is full, Submit runs the task on the calling goroutine instead of blocking
// or dropping it, which throttles the submitter's own pace under load.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New starts size workers sharing a queue of queueDepth pending tasks.
func New(size, queueDepth int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}

	p := &Pool{
		tasks: make(chan func(), queueDepth),
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}

	return p
}

// Submit enqueues task for execution. If the queue is saturated the task is
// executed inline on the caller's goroutine (caller-runs backpressure).
// Submit must not be called after Shutdown.
func (p *Pool) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		task()
		return
	}

	select {
	case p.tasks <- task:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		task()
	}
}

// Shutdown stops accepting work and waits for queued tasks to drain.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
