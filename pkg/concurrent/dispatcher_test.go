package concurrent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyedJob struct {
	key string
	seq int
}

func TestKeyedDispatcherKeepsPerKeyOrder(t *testing.T) {
	const jobsPerKey = 200
	keys := []string{"bus-1", "bus-2", "bus-3", "bus-4", "bus-5"}

	var mu sync.Mutex
	received := make(map[string][]int)

	d := NewKeyedDispatcher[keyedJob](4, 16)
	d.Start(context.Background(), func(job keyedJob) {
		mu.Lock()
		received[job.key] = append(received[job.key], job.seq)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			for seq := 0; seq < jobsPerKey; seq++ {
				d.Dispatch(key, keyedJob{key: key, seq: seq})
			}
		}(key)
	}
	wg.Wait()
	d.Close()

	for _, key := range keys {
		got := received[key]
		require.Len(t, got, jobsPerKey, "key %s", key)
		for seq := 0; seq < jobsPerKey; seq++ {
			assert.Equal(t, seq, got[seq],
				"jobs for key %s arrived out of order", key)
		}
	}
}

func TestKeyedDispatcherCloseDrainsQueues(t *testing.T) {
	var mu sync.Mutex
	count := 0

	d := NewKeyedDispatcher[int](2, 64)
	d.Start(context.Background(), func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 100; i++ {
		d.Dispatch("same-key", i)
	}
	d.Close()

	assert.Equal(t, 100, count)
}
