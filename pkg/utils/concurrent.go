package utils

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEachLimit calls fn for every index in [0, n) with at most limit calls running at
// once. A panic in fn becomes a *PanicError. The first error cancels the context passed
// to the remaining calls and is returned once all started calls finish. A limit below 1
// runs the calls one at a time.
func ForEachLimit(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			return Guard(func() error { return fn(gctx, i) })
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
