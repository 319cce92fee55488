package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrSleepCancelled reports that a durable sleep was interrupted by an
// explicit cancellation signal rather than by reaching its wake instant.
var ErrSleepCancelled = errors.New("durable sleep cancelled")

// sleepDoneMarker is the memoized value recorded when a sleep completes, so a
// replayed chain skips past sleeps it already served.
var sleepDoneMarker = []byte(`"slept"`)

// Runner executes the steps of one logical chain with at-least-once
// semantics: each labeled step runs at most once per chain, and replays
// observe the memoized result of the first run. The zero clock is time.Now.
type Runner struct {
	store   StepStore
	chainID string
	cancel  <-chan struct{}
	now     func() time.Time
	logger  *slog.Logger
}

type RunnerOption func(*Runner)

// WithCancel wires an external cancellation signal into SleepUntil. Only
// sleeps observe it; running steps always finish.
func WithCancel(cancel <-chan struct{}) RunnerOption {
	return func(r *Runner) {
		r.cancel = cancel
	}
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

func NewRunner(store StepStore, chainID string, logger *slog.Logger, opts ...RunnerOption) *Runner {
	runner := &Runner{
		store:   store,
		chainID: chainID,
		now:     time.Now,
		logger:  logger.With("module", "durable", "chain_id", chainID),
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Run executes fn under the given label unless a prior run of this chain
// already completed it, in which case the memoized result is returned. The
// memoized value round-trips through JSON, so replays see generic types
// (maps, float64) rather than fn's concrete ones.
func (r *Runner) Run(ctx context.Context, label string, fn func(ctx context.Context) (any, error)) (any, error) {
	recorded, found, err := r.store.Get(ctx, r.chainID, label)
	if err != nil {
		return nil, fmt.Errorf("load step %q: %w", label, err)
	}

	if found {
		var value any
		if err := json.Unmarshal(recorded, &value); err != nil {
			return nil, fmt.Errorf("decode memoized step %q: %w", label, err)
		}

		r.logger.DebugContext(ctx, "Replaying memoized step", "label", label)

		return value, nil
	}

	value, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode step %q result: %w", label, err)
	}

	if err := r.store.Set(ctx, r.chainID, label, encoded); err != nil {
		return nil, fmt.Errorf("persist step %q: %w", label, err)
	}

	return value, nil
}

// SleepUntil blocks until the given instant, the context ends, or the
// runner's cancel signal fires. A sleep the chain already completed returns
// immediately, as does an instant that is not in the future.
func (r *Runner) SleepUntil(ctx context.Context, label string, until time.Time) error {
	_, found, err := r.store.Get(ctx, r.chainID, label)
	if err != nil {
		return fmt.Errorf("load sleep %q: %w", label, err)
	}

	if found {
		return nil
	}

	if wait := until.Sub(r.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.cancel:
			return ErrSleepCancelled
		case <-timer.C:
		}
	}

	if err := r.store.Set(ctx, r.chainID, label, sleepDoneMarker); err != nil {
		return fmt.Errorf("persist sleep %q: %w", label, err)
	}

	return nil
}

// Finish discards the chain's memoized steps once the chain link has fully
// completed and re-enqueued its successor.
func (r *Runner) Finish(ctx context.Context) error {
	return r.store.Clear(ctx, r.chainID)
}
