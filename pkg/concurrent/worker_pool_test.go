package concurrent

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolProducesOneResultPerJob(t *testing.T) {
	const jobs = 50

	pool := NewWorkerPool[int, int](4, jobs)
	pool.Start(func(job int) int {
		return job * job
	})
	for i := 0; i < jobs; i++ {
		pool.AddJob(i)
	}
	pool.Close()
	pool.Wait()

	var results []int
	for res := range pool.CollectResults() {
		results = append(results, res)
	}
	require.Len(t, results, jobs)

	sort.Ints(results)
	for i := 0; i < jobs; i++ {
		assert.Equal(t, i*i, results[i])
	}
}

func TestWorkerPoolEmptyBatch(t *testing.T) {
	pool := NewWorkerPool[string, string](2, 1)
	pool.Start(func(job string) string { return job })
	pool.Close()
	pool.Wait()

	count := 0
	for range pool.CollectResults() {
		count++
	}
	assert.Zero(t, count)
}
