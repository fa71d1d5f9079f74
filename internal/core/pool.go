package core

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Summary counts what an ingestion run did.
type Summary struct {
	Written int
	Skipped int
}

func workers(jobs int) int {
	if jobs < 1 {
		return runtime.NumCPU()
	}
	return jobs
}

// parallel calls fn for every index in [0, n) on at most jobs goroutines
// and returns the first error. The context passed to fn is cancelled as
// soon as any call fails.
func parallel(ctx context.Context, jobs, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(jobs))

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}

	return g.Wait()
}
