package concurrent

import (
	"sync"
)

// JobFunc transforms one job into one result.
type JobFunc[T any, G any] func(job T) G

// WorkerPool fans a batch of jobs out over a fixed number of workers and
// collects one result per job. Unlike KeyedDispatcher it is for short-lived
// batch work: start, feed every job, Close, Wait, then drain
// CollectResults. The result buffer holds jobQueueSize entries, so feeding
// more jobs than that without draining will block the workers.
type WorkerPool[T any, G any] struct {
	numWorkers int
	jobQueue   chan T
	results    chan G
	wg         sync.WaitGroup
}

func NewWorkerPool[T any, G any](numWorkers, jobQueueSize int) *WorkerPool[T, G] {
	return &WorkerPool[T, G]{
		numWorkers: numWorkers,
		jobQueue:   make(chan T, jobQueueSize),
		results:    make(chan G, jobQueueSize),
	}
}

func (wp *WorkerPool[T, G]) Start(jobFunc JobFunc[T, G]) {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(jobFunc)
	}
}

func (wp *WorkerPool[T, G]) worker(jobFunc JobFunc[T, G]) {
	defer wp.wg.Done()
	for job := range wp.jobQueue {
		wp.results <- jobFunc(job)
	}
}

func (wp *WorkerPool[T, G]) AddJob(job T) {
	wp.jobQueue <- job
}

// Close signals that no more jobs will be added.
func (wp *WorkerPool[T, G]) Close() {
	close(wp.jobQueue)
}

// Wait blocks until every queued job has produced its result, then closes
// the results channel so it can be ranged over. Call Close first.
func (wp *WorkerPool[T, G]) Wait() {
	wp.wg.Wait()
	close(wp.results)
}

func (wp *WorkerPool[T, G]) CollectResults() chan G {
	return wp.results
}
