package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshharrison/schedcheck/internal/analysis"
	"github.com/joshharrison/schedcheck/internal/report"
)

func fakeReport(path string, v analysis.Verdict) *report.Report {
	return &report.Report{TaskSet: path, Verdict: v}
}

func TestRun_PreservesOrderAndIsolatesFailures(t *testing.T) {
	paths := []string{"a.yaml", "bad.yaml", "c.yaml", "d.yaml"}
	analyze := func(_ context.Context, path string) (*report.Report, error) {
		if path == "bad.yaml" {
			return nil, errors.New("parse failed")
		}
		if path == "d.yaml" {
			return fakeReport(path, analysis.NotSchedulable), nil
		}
		return fakeReport(path, analysis.Schedulable), nil
	}

	outcomes := Run(context.Background(), paths, analyze, 2)
	if len(outcomes) != len(paths) {
		t.Fatalf("expected %d outcomes, got %d", len(paths), len(outcomes))
	}
	for i, o := range outcomes {
		if o.Path != paths[i] {
			t.Errorf("outcome %d: expected path %s, got %s", i, paths[i], o.Path)
		}
	}
	if outcomes[1].Err == nil || !strings.Contains(outcomes[1].Err.Error(), "bad.yaml") {
		t.Errorf("expected wrapped error for bad.yaml, got %v", outcomes[1].Err)
	}
	if outcomes[2].Report == nil || outcomes[2].Err != nil {
		t.Errorf("expected c.yaml to succeed despite earlier failure, got %+v", outcomes[2])
	}

	ok, notOK, errored := Tally(outcomes)
	if ok != 2 || notOK != 1 || errored != 1 {
		t.Errorf("expected tally 2/1/1, got %d/%d/%d", ok, notOK, errored)
	}
}

func TestRun_RespectsParallelLimit(t *testing.T) {
	var inflight, peak int32
	var mu sync.Mutex
	analyze := func(_ context.Context, path string) (*report.Report, error) {
		n := atomic.AddInt32(&inflight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return fakeReport(path, analysis.Schedulable), nil
	}

	paths := make([]string, 12)
	for i := range paths {
		paths[i] = string(rune('a'+i)) + ".yaml"
	}
	Run(context.Background(), paths, analyze, 3)
	if peak > 3 {
		t.Errorf("expected at most 3 concurrent analyses, saw %d", peak)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	analyze := func(_ context.Context, path string) (*report.Report, error) {
		called = true
		return fakeReport(path, analysis.Schedulable), nil
	}
	outcomes := Run(ctx, []string{"a.yaml"}, analyze, 1)
	if called {
		t.Error("expected analyzer not to run after cancellation")
	}
	if !errors.Is(outcomes[0].Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", outcomes[0].Err)
	}
}

func TestRun_Empty(t *testing.T) {
	outcomes := Run(context.Background(), nil, nil, 0)
	if len(outcomes) != 0 {
		t.Errorf("expected no outcomes, got %d", len(outcomes))
	}
}
