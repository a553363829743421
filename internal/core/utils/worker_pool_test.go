package utils_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"autolabel-backend/internal/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInPool(t *testing.T) {
	worker := func(i int) (string, error) {
		if i%4 == 3 {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return "", fmt.Errorf("error")
		}
		return fmt.Sprintf("%d-%d", i, i), nil
	}

	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	success, errors := 0, 0
	for result := range utils.RunInPool(worker, items, 5) {
		if result.Error != nil {
			errors++
			assert.Equal(t, 3, result.Index%4)
		} else {
			success++
			assert.Equal(t, fmt.Sprintf("%d-%d", result.Index, result.Index), result.Result)
		}
	}

	assert.Equal(t, 8, success)
	assert.Equal(t, 2, errors)
}

func TestRunInPoolBoundsWorkers(t *testing.T) {
	var running, peak atomic.Int32
	worker := func(i int) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return i, nil
	}

	count := 0
	for range utils.RunInPool(worker, make([]int, 20), 3) {
		count++
	}
	assert.Equal(t, 20, count)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunInPoolEmpty(t *testing.T) {
	_, open := <-utils.RunInPool(func(i int) (int, error) { return i, nil }, nil, 4)
	assert.False(t, open)
}

func TestChunk(t *testing.T) {
	chunks := utils.Chunk([]int{1, 2, 3, 4, 5}, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1, 2}, chunks[0])
	assert.Equal(t, []int{5}, chunks[2])

	assert.Equal(t, [][]int{{1, 2, 3}}, utils.Chunk([]int{1, 2, 3}, 0))
	assert.Empty(t, utils.Chunk([]int{}, 4))
}
