package async

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/rolesync/pkg/observability"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement (none when timeout <= 0)
// - Error logging through the context logger (observability.WithLogger)
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
//
// Example:
//
//	SafeGo(ctx, 0, "redis relay", func(ctx context.Context) error {
//	    return relay.Listen(ctx, notifier)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		} else {
			ctx, cancel = context.WithCancel(parentCtx)
		}
		defer cancel()

		logger := observability.FromContext(parentCtx).WithField("task", taskName)
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).Error("background task failed")
		}
	}()
}

// Result is the settled outcome of one task in Settle.
type Result[K comparable, V any] struct {
	Key   K
	Value V
	Err   error
}

// Settle runs fn for every key concurrently, at most limit at a time (unbounded when
// limit <= 0), and waits for all of them. A failing or panicking task never cancels its
// siblings; each outcome is captured in its own Result, in input order.
func Settle[K comparable, V any](ctx context.Context, keys []K, limit int, fn func(context.Context, K) (V, error)) []Result[K, V] {
	results := make([]Result[K, V], len(keys))

	// A plain Group (not WithContext) so one failure does not cancel the others.
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			results[i] = settleOne(ctx, key, fn)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func settleOne[K comparable, V any](ctx context.Context, key K, fn func(context.Context, K) (V, error)) (res Result[K, V]) {
	res.Key = key
	defer func() {
		if err := observability.MustRecover(recover()); err != nil {
			res.Err = err
		}
	}()
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	res.Value, res.Err = fn(ctx, key)
	return res
}
