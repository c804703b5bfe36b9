package testutil

import (
	"errors"
	"sync"

	"certledger/pkg/platform/sentinel"
)

// ConcurrentResult counts how racing store operations ended.
type ConcurrentResult struct {
	Successes  int32
	Conflicts  int32 // sentinel.ErrConflict: lost a compare-and-set
	Duplicates int32 // sentinel.ErrAlreadyUsed: unique key taken
	NotFounds  int32
	Errors     int32
	// Unexpected holds the errors counted in Errors, for failure messages.
	Unexpected []error
}

// Total returns the number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.Duplicates + r.NotFounds + r.Errors
}

// RunConcurrent starts n goroutines, releases them together and classifies
// each returned error.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		mu    sync.Mutex
		res   ConcurrentResult
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := range n {
		wg.Go(func() {
			<-start
			err := fn(i)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Successes++
			case errors.Is(err, sentinel.ErrConflict):
				res.Conflicts++
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				res.Duplicates++
			case errors.Is(err, sentinel.ErrNotFound):
				res.NotFounds++
			default:
				res.Errors++
				res.Unexpected = append(res.Unexpected, err)
			}
		})
	}
	close(start)
	wg.Wait()
	return &res
}
