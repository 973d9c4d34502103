package concurrent

import (
	"context"
	"hash/fnv"
	"sync"
)

// KeyedDispatcher fans jobs out over a fixed set of workers while keeping
// every job with the same key on the same worker, so jobs for one key run
// in arrival order. AVL reports for a vehicle must never be processed out
// of order or concurrently.
type KeyedDispatcher[T any] struct {
	queues []chan T
	wg     sync.WaitGroup
}

func NewKeyedDispatcher[T any](numWorkers, queueSize int) *KeyedDispatcher[T] {
	queues := make([]chan T, numWorkers)
	for i := range queues {
		queues[i] = make(chan T, queueSize)
	}
	return &KeyedDispatcher[T]{queues: queues}
}

// Start launches the workers. They drain their queues until Close, then
// exit; ctx cancellation stops them mid-queue.
func (d *KeyedDispatcher[T]) Start(ctx context.Context, handle func(job T)) {
	for _, queue := range d.queues {
		d.wg.Add(1)
		go func(queue chan T) {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-queue:
					if !ok {
						return
					}
					handle(job)
				}
			}
		}(queue)
	}
}

// Dispatch enqueues the job on the worker owning the key, blocking when
// that worker's queue is full.
func (d *KeyedDispatcher[T]) Dispatch(key string, job T) {
	h := fnv.New32a()
	h.Write([]byte(key))
	d.queues[int(h.Sum32())%len(d.queues)] <- job
}

// Close stops the workers once their queues drain, and waits for them.
func (d *KeyedDispatcher[T]) Close() {
	for _, queue := range d.queues {
		close(queue)
	}
	d.wg.Wait()
}
