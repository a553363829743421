package utils

import (
	"sync"
)

type CompletedTask[T any] struct {
	Index  int
	Result T
	Error  error
}

type indexed[T any] struct {
	index int
	item  T
}

// RunInPool runs worker over every item with at most maxWorkers goroutines.
// Results arrive on the returned channel in completion order, tagged with the
// index of their input, and the channel is closed once all items are done.
func RunInPool[In any, Out any](worker func(In) (Out, error), items []In, maxWorkers int) <-chan CompletedTask[Out] {
	queue := make(chan indexed[In], len(items))
	for i, item := range items {
		queue <- indexed[In]{index: i, item: item}
	}
	close(queue)

	completed := make(chan CompletedTask[Out], len(items))
	workers := max(min(len(items), maxWorkers), 1)

	go func() {
		var wg sync.WaitGroup
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				for next := range queue {
					res, err := worker(next.item)
					completed <- CompletedTask[Out]{Index: next.index, Result: res, Error: err}
				}
			}()
		}

		wg.Wait()
		close(completed)
	}()

	return completed
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		chunks = append(chunks, items[start:min(start+size, len(items))])
	}
	return chunks
}
