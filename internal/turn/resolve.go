package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/kindred-ai/kindred/internal/telemetry"
)

// outcome is the two-variant result of a bounded fragment resolution:
// either the fetched value, or the fallback plus the reason it was
// substituted. The orchestrator branches on fellBack, never on a
// recovered fault.
type outcome[T any] struct {
	value    T
	fellBack bool
	kind     telemetry.Kind
	reason   string
}

func resolved[T any](v T) outcome[T] {
	return outcome[T]{value: v}
}

func degraded[T any](fb T, kind telemetry.Kind, reason string) outcome[T] {
	return outcome[T]{value: fb, fellBack: true, kind: kind, reason: reason}
}

// resolveWithin races fetch against a deadline. On deadline expiry or fetch
// error the precomputed fallback is substituted and the pipeline moves on;
// the abandoned fetch keeps running until the child context cancel reaches
// it (best-effort, cooperative). The result channel is buffered so an
// abandoned fetch can always deliver and exit.
func resolveWithin[T any](ctx context.Context, timeout time.Duration, fallback T, fetch func(ctx context.Context) (T, error)) outcome[T] {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type fetched struct {
		value T
		err   error
	}
	ch := make(chan fetched, 1)
	go func() {
		v, err := fetch(fetchCtx)
		ch <- fetched{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return degraded(fallback, telemetry.KindError, r.err.Error())
		}
		return resolved(r.value)
	case <-fetchCtx.Done():
		if fetchCtx.Err() == context.DeadlineExceeded {
			return degraded(fallback, telemetry.KindTimeout, fmt.Sprintf("no result within %s", timeout))
		}
		return degraded(fallback, telemetry.KindError, fetchCtx.Err().Error())
	}
}
