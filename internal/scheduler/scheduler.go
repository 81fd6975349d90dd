// Package scheduler provides the two execution contexts of the chat core: a
// single delivery goroutine that serializes all participant-facing work, and
// a background worker pool for best-effort persistence I/O.
package scheduler

import (
	"log"
	"sync"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 256
)

// Loop serializes tasks onto one delivery goroutine.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoop starts the delivery goroutine.
func NewLoop() *Loop {
	loop := &Loop{
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(loop.done)
		for task := range loop.tasks {
			task()
		}
	}()
	return loop
}

// Do runs the task on the delivery goroutine and waits for it to finish, so
// callers observe its effects synchronously. After Close, tasks are dropped.
func (l *Loop) Do(task func()) {
	if task == nil {
		return
	}
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		task()
	}
	select {
	case l.tasks <- wrapped:
		<-finished
	case <-l.done:
	}
}

// Close stops the delivery goroutine after in-flight work completes.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.tasks)
	})
	<-l.done
}

// Pool runs fire-and-forget tasks on a fixed set of background workers.
//
// The queue is bounded; when it is full, tasks are dropped with a logged
// warning rather than blocking the delivery context. A panicking task is
// contained to its worker iteration and never affects delivery.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPool starts a background pool. Non-positive arguments fall back to
// defaults.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	pool := &Pool{tasks: make(chan func(), queueSize)}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		runContained(task)
	}
}

func runContained(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: background task panic: %v", r)
		}
	}()
	task()
}

// Submit enqueues a task for background execution. A full queue drops the
// task; persistence here is best-effort by contract.
func (p *Pool) Submit(task func()) {
	if task == nil {
		return
	}
	select {
	case p.tasks <- task:
	default:
		log.Printf("scheduler: background queue full, dropping task")
	}
}

// Close stops accepting tasks and drains the queue before returning.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}

// Split pairs a delivery loop with a background pool behind the chat core's
// Sync/Async contract.
type Split struct {
	loop *Loop
	pool *Pool
}

// NewSplit creates the paired scheduler.
func NewSplit(loop *Loop, pool *Pool) *Split {
	return &Split{loop: loop, pool: pool}
}

// Sync runs the task on the delivery goroutine and waits for it.
func (s *Split) Sync(task func()) {
	s.loop.Do(task)
}

// Async hands the task to the background pool.
func (s *Split) Async(task func()) {
	s.pool.Submit(task)
}
