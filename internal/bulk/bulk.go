// Package bulk runs one function over many items with a bounded number of
// workers and gathers per-item failures.
package bulk

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// Operation represents a bulk operation configuration
type Operation struct {
	Jobs            int
	ContinueOnError bool
	ShowProgress    bool
	// Progress receives the progress line; defaults to stderr when it is a terminal
	Progress io.Writer
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Skipped    int
	Errors     []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Index int
	Item  string
	Error error
}

// Execute runs fn for every item. Items whose turn comes after the context
// is cancelled, or after a failure when ContinueOnError is false, are
// counted as skipped. Errors are returned in item order.
func Execute[T any](ctx context.Context, op *Operation, items []T, label func(T) string, fn func(context.Context, T) error) *Result {
	result := &Result{TotalItems: len(items)}
	if len(items) == 0 {
		return result
	}

	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs > len(items) {
		jobs = len(items)
	}

	progress := op.progressWriter()

	type job struct {
		index int
		item  T
	}
	workQueue := make(chan job, len(items))
	for i, item := range items {
		workQueue <- job{index: i, item: item}
	}
	close(workQueue)

	var (
		completed int32
		succeeded int32
		failed    int32
		skipped   int32
		stop      atomic.Bool
		errorsMux sync.Mutex
		printMux  sync.Mutex
	)

	report := func() {
		if progress == nil {
			return
		}
		c := atomic.LoadInt32(&completed)
		pct := int(float64(c) / float64(len(items)) * 100)
		printMux.Lock()
		fmt.Fprintf(progress, "\rProcessing with %d workers... [%s] %d/%d (ok %d, failed %d)",
			jobs, progressBar(pct, 20), c, len(items), atomic.LoadInt32(&succeeded), atomic.LoadInt32(&failed))
		printMux.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := range workQueue {
				if stop.Load() || ctx.Err() != nil {
					atomic.AddInt32(&skipped, 1)
					continue
				}

				err := fn(ctx, j.item)
				atomic.AddInt32(&completed, 1)

				if err != nil {
					atomic.AddInt32(&failed, 1)
					errorsMux.Lock()
					result.Errors = append(result.Errors, ItemError{Index: j.index, Item: label(j.item), Error: err})
					errorsMux.Unlock()
					if !op.ContinueOnError {
						stop.Store(true)
					}
				} else {
					atomic.AddInt32(&succeeded, 1)
				}
				report()
			}
		}()
	}
	wg.Wait()

	if progress != nil {
		fmt.Fprint(progress, "\r\033[K")
	}

	sortErrors(result.Errors)
	result.Succeeded = int(succeeded)
	result.Failed = int(failed)
	result.Skipped = int(skipped)
	return result
}

func (op *Operation) progressWriter() io.Writer {
	if !op.ShowProgress {
		return nil
	}
	if op.Progress != nil {
		return op.Progress
	}
	if isatty(os.Stderr) {
		return os.Stderr
	}
	return nil
}

func sortErrors(errs []ItemError) {
	for i := 1; i < len(errs); i++ {
		for j := i; j > 0 && errs[j].Index < errs[j-1].Index; j-- {
			errs[j], errs[j-1] = errs[j-1], errs[j]
		}
	}
}

// Summary describes the counts in one line
func (r *Result) Summary() string {
	switch {
	case r.Failed == 0 && r.Skipped == 0:
		return fmt.Sprintf("All %d operations succeeded", r.TotalItems)
	case r.Succeeded == 0 && r.Skipped == 0:
		return fmt.Sprintf("All %d operations failed", r.TotalItems)
	default:
		return fmt.Sprintf("Partial success: %d succeeded, %d failed, %d skipped (out of %d)",
			r.Succeeded, r.Failed, r.Skipped, r.TotalItems)
	}
}

// FailedItems returns the labels of the failed items in item order
func (r *Result) FailedItems() []string {
	if len(r.Errors) == 0 {
		return nil
	}
	labels := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		labels[i] = e.Item
	}
	return labels
}

// progressBar creates a simple ASCII progress bar
func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
}

// isatty checks if the file descriptor is a terminal
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
