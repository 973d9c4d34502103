package concurrent

import (
	"errors"
	"time"
)

// ErrScheduleTimeout is returned by ScheduleTimeout when no worker picked
// the task up within the deadline.
var ErrScheduleTimeout = errors.New("concurrent: schedule timed out")

// Pool is a bounded goroutine pool for short-lived tasks, used by the
// websocket layer so a flood of connections cannot spawn unbounded
// goroutines. Workers above the initial spawn count are started lazily up
// to the pool size.
type Pool struct {
	sem  chan struct{}
	work chan func()
}

func NewPool(size, queue int) *Pool {
	return &Pool{
		sem:  make(chan struct{}, size),
		work: make(chan func(), queue),
	}
}

// Spawn starts n workers eagerly.
func (p *Pool) Spawn(n int) {
	for i := 0; i < n; i++ {
		p.sem <- struct{}{}
		go p.worker(func() {})
	}
}

// Schedule runs the task on the pool, blocking until a worker or a worker
// slot is available.
func (p *Pool) Schedule(task func()) {
	select {
	case p.work <- task:
	case p.sem <- struct{}{}:
		go p.worker(task)
	}
}

// ScheduleTimeout is like Schedule but gives up after the timeout.
func (p *Pool) ScheduleTimeout(timeout time.Duration, task func()) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p.work <- task:
		return nil
	case p.sem <- struct{}{}:
		go p.worker(task)
		return nil
	case <-timer.C:
		return ErrScheduleTimeout
	}
}

func (p *Pool) worker(task func()) {
	defer func() { <-p.sem }()
	task()
	for task := range p.work {
		task()
	}
}

// Close stops all idle workers. Pending tasks still run.
func (p *Pool) Close() {
	close(p.work)
}
