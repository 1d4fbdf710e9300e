package bulk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func name(s string) string { return s }

func TestSequentialExecution(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	executed := []string{}
	var mu sync.Mutex

	op := &Operation{Jobs: 1}

	fn := func(_ context.Context, item string) error {
		mu.Lock()
		executed = append(executed, item)
		mu.Unlock()
		return nil
	}

	result := Execute(context.Background(), op, items, name, fn)

	if result.TotalItems != 5 {
		t.Errorf("Expected 5 total items, got %d", result.TotalItems)
	}
	if result.Succeeded != 5 {
		t.Errorf("Expected 5 successes, got %d", result.Succeeded)
	}
	if result.Failed != 0 {
		t.Errorf("Expected 0 failures, got %d", result.Failed)
	}

	// A single worker preserves order
	for i, item := range items {
		if executed[i] != item {
			t.Errorf("Order not preserved: expected %s at index %d, got %s", item, i, executed[i])
		}
	}
}

func TestParallelExecutionRespectsJobLimit(t *testing.T) {
	items := make([]int, 16)
	for i := range items {
		items[i] = i
	}

	var inFlight, peak int32
	op := &Operation{Jobs: 3, ContinueOnError: true}
	fn := func(_ context.Context, _ int) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}

	result := Execute(context.Background(), op, items, func(i int) string { return fmt.Sprint(i) }, fn)

	if result.Succeeded != 16 {
		t.Errorf("Expected 16 successes, got %d", result.Succeeded)
	}
	if peak > 3 {
		t.Errorf("Expected at most 3 concurrent items, saw %d", peak)
	}
}

func TestContinueOnError(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	op := &Operation{Jobs: 2, ContinueOnError: true}

	fn := func(_ context.Context, item string) error {
		if item == "c" || item == "a" {
			return errors.New("simulated error")
		}
		return nil
	}

	result := Execute(context.Background(), op, items, name, fn)

	if result.Succeeded != 3 {
		t.Errorf("Expected 3 successes, got %d", result.Succeeded)
	}
	if result.Failed != 2 {
		t.Errorf("Expected 2 failures, got %d", result.Failed)
	}
	if len(result.Errors) != 2 || result.Errors[0].Item != "a" || result.Errors[1].Item != "c" {
		t.Errorf("Expected errors for a and c in order, got %+v", result.Errors)
	}
}

func TestStopOnError(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	executed := []string{}

	op := &Operation{Jobs: 1}

	fn := func(_ context.Context, item string) error {
		executed = append(executed, item)
		if item == "c" {
			return errors.New("simulated error")
		}
		return nil
	}

	result := Execute(context.Background(), op, items, name, fn)

	if result.Succeeded != 2 {
		t.Errorf("Expected 2 successes, got %d", result.Succeeded)
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failure, got %d", result.Failed)
	}
	if result.Skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", result.Skipped)
	}
	if len(executed) != 3 {
		t.Errorf("Expected execution to stop after 3 items, got %d", len(executed))
	}
}

func TestCancelledContextSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := []string{"a", "b", "c"}

	op := &Operation{Jobs: 1, ContinueOnError: true}
	fn := func(_ context.Context, item string) error {
		if item == "a" {
			cancel()
		}
		return nil
	}

	result := Execute(ctx, op, items, name, fn)

	if result.Succeeded != 1 || result.Skipped != 2 {
		t.Errorf("Expected 1 success and 2 skipped, got %+v", result)
	}
}

func TestEmptyItems(t *testing.T) {
	op := &Operation{Jobs: 4}

	result := Execute(context.Background(), op, nil, name, func(context.Context, string) error { return nil })

	if result.TotalItems != 0 {
		t.Errorf("Expected 0 total items, got %d", result.TotalItems)
	}
}

func TestAutoCPUDetection(t *testing.T) {
	items := []string{"a", "b", "c", "d"}

	op := &Operation{Jobs: 0}

	result := Execute(context.Background(), op, items, name, func(context.Context, string) error { return nil })

	if result.Succeeded != 4 {
		t.Errorf("Expected 4 successes, got %d", result.Succeeded)
	}
}

func TestProgressWriter(t *testing.T) {
	var buf bytes.Buffer
	op := &Operation{Jobs: 1, ShowProgress: true, Progress: &buf}

	Execute(context.Background(), op, []string{"a", "b"}, name, func(context.Context, string) error { return nil })

	if !strings.Contains(buf.String(), "2/2") {
		t.Errorf("Expected progress to reach 2/2, got %q", buf.String())
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   string
	}{
		{
			name:   "all succeeded",
			result: &Result{TotalItems: 3, Succeeded: 3},
			want:   "All 3 operations succeeded",
		},
		{
			name:   "all failed",
			result: &Result{TotalItems: 1, Failed: 1},
			want:   "All 1 operations failed",
		},
		{
			name:   "partial",
			result: &Result{TotalItems: 4, Succeeded: 2, Failed: 1, Skipped: 1},
			want:   "Partial success: 2 succeeded, 1 failed, 1 skipped (out of 4)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFailedItems(t *testing.T) {
	op := &Operation{Jobs: 3, ContinueOnError: true}
	result := Execute(context.Background(), op, []string{"a", "b", "c", "d"}, name, func(_ context.Context, item string) error {
		if item == "d" || item == "b" {
			return errors.New("simulated error")
		}
		return nil
	})

	got := result.FailedItems()
	if len(got) != 2 || got[0] != "b" || got[1] != "d" {
		t.Errorf("FailedItems() = %v, want [b d]", got)
	}
	if (&Result{}).FailedItems() != nil {
		t.Error("FailedItems() of an empty result should be nil")
	}
}
