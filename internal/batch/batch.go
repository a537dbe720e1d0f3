// Package batch analyses several task-set files concurrently.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/joshharrison/schedcheck/internal/report"
)

// DefaultMaxParallel is used when Run is given a non-positive limit.
const DefaultMaxParallel = 4

// Analyzer loads and analyses a single task-set file.
type Analyzer func(ctx context.Context, path string) (*report.Report, error)

// Outcome is the result for one input file. Exactly one of Report and Err is set.
type Outcome struct {
	Path   string
	Report *report.Report
	Err    error
}

// Run analyses every path with at most maxParallel analyses in flight.
// Outcomes are returned in input order. A failing file does not stop the
// others; cancelling ctx marks files that have not started yet as failed.
func Run(ctx context.Context, paths []string, analyze Analyzer, maxParallel int) []Outcome {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	outcomes := make([]Outcome, len(paths))
	var g errgroup.Group
	g.SetLimit(maxParallel)

	for i, path := range paths {
		i, path := i, path
		outcomes[i].Path = path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = fmt.Errorf("%s: %w", path, err)
				return nil
			}
			r, err := analyze(ctx, path)
			if err != nil {
				outcomes[i].Err = fmt.Errorf("%s: %w", path, err)
				return nil
			}
			outcomes[i].Report = r
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Tally counts schedulable, not-schedulable and errored outcomes.
func Tally(outcomes []Outcome) (schedulable, notSchedulable, errored int) {
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			errored++
		case o.Report.Schedulable():
			schedulable++
		default:
			notSchedulable++
		}
	}
	return schedulable, notSchedulable, errored
}
