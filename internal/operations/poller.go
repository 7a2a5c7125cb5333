// Package operations tracks long-running server-side operations
// (room duplication, bulk deletes, version cleanup) to completion.
//
// The platform acknowledges such an operation with a tracking id and
// expects the client to poll its status until a terminal state. The
// Poller drives that loop: a fixed interval between status fetches, a
// hard deadline for the whole sequence, and cooperative cancellation
// through the context. Polling for one operation is strictly
// sequential, so progress updates can never arrive out of order.
package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/docmesh/sharekit/internal/apiclient"
	"github.com/docmesh/sharekit/internal/config"
	"github.com/docmesh/sharekit/internal/logutil"
)

var (
	// ErrOperationFailed marks an operation the server reported as
	// failed. The server's message is attached via %w wrapping.
	ErrOperationFailed = errors.New("operation failed")

	// ErrTimeout marks a poll sequence that exceeded its deadline
	// without reaching a terminal state.
	ErrTimeout = errors.New("operation timed out")
)

// errNotDone keeps the retry loop going between status fetches. Never
// escapes the package.
var errNotDone = errors.New("operation still in progress")

// State is the lifecycle state of a tracked operation.
type State int

const (
	StateSubmitted State = iota
	StatePolling
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state absorbs (no further transitions).
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Operation is the record of one tracked long-running operation. It is
// created by Submit or Track and mutated only by the Poller.
type Operation struct {
	Handle    apiclient.OperationHandle
	Kind      apiclient.OperationKind
	StartedAt time.Time

	state        State
	lastProgress int
	err          error
}

// State returns the current lifecycle state.
func (o *Operation) State() State { return o.state }

// LastProgress returns the most recent progress value (0-100).
func (o *Operation) LastProgress() int { return o.lastProgress }

// Err returns the terminal error for failed, timed out, or cancelled
// operations, nil otherwise.
func (o *Operation) Err() error { return o.err }

// StatusFetcher is the slice of the API the poller needs.
type StatusFetcher interface {
	FetchOperationStatus(ctx context.Context, handle apiclient.OperationHandle) (apiclient.OperationStatus, error)
}

// Poller drives operations to a terminal state.
type Poller struct {
	fetcher  StatusFetcher
	interval time.Duration
	deadline time.Duration
	logger   *slog.Logger

	// OnProgress, when set, is invoked after every status fetch that
	// updated progress. Called from the polling goroutine.
	OnProgress func(op *Operation)
}

// NewPoller creates a poller with the configured interval and deadline.
func NewPoller(fetcher StatusFetcher, cfg config.PollConfig, logger *slog.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		interval: time.Duration(cfg.IntervalMS) * time.Millisecond,
		deadline: time.Duration(cfg.DeadlineMS) * time.Millisecond,
		logger:   logutil.OrDiscard(logger),
	}
}

// Submit performs the triggering call and returns the tracked
// operation. If the call fails synchronously the operation is returned
// already in StateFailed, without ever entering polling.
func (p *Poller) Submit(ctx context.Context, kind apiclient.OperationKind, submit func(context.Context) (apiclient.OperationHandle, error)) (*Operation, error) {
	op := &Operation{Kind: kind, StartedAt: time.Now()}
	handle, err := submit(ctx)
	if err != nil {
		op.state = StateFailed
		op.err = err
		return op, err
	}
	op.Handle = handle
	op.state = StateSubmitted
	return op, nil
}

// Track wraps an already accepted handle for polling.
func (p *Poller) Track(handle apiclient.OperationHandle, kind apiclient.OperationKind) *Operation {
	return &Operation{Handle: handle, Kind: kind, StartedAt: time.Now(), state: StateSubmitted}
}

// Watch polls the operation until it reaches a terminal state and
// returns its terminal error (nil for success). Cancellation is
// cooperative: the context is checked before every status fetch, and a
// cancelled watch leaves the server-side operation running — the
// outcome is unknown and the caller should prefer a reload over
// assuming either result.
func (p *Poller) Watch(ctx context.Context, op *Operation) error {
	if op.state.Terminal() {
		return op.err
	}
	op.state = StatePolling

	poll := func() (apiclient.OperationStatus, error) {
		if err := ctx.Err(); err != nil {
			return apiclient.OperationStatus{}, backoff.Permanent(err)
		}

		status, err := p.fetcher.FetchOperationStatus(ctx, op.Handle)
		if err != nil {
			return apiclient.OperationStatus{}, backoff.Permanent(err)
		}

		if status.Error != "" {
			return apiclient.OperationStatus{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrOperationFailed, status.Error))
		}

		op.lastProgress = status.Progress
		if p.OnProgress != nil {
			p.OnProgress(op)
		}
		if status.Progress >= 100 {
			return status, nil
		}
		return apiclient.OperationStatus{}, errNotDone
	}

	_, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.interval)),
		backoff.WithMaxElapsedTime(p.deadline),
	)

	switch {
	case err == nil:
		op.state = StateSucceeded
	case ctx.Err() != nil:
		op.state = StateCancelled
		op.err = context.Cause(ctx)
	case errors.Is(err, errNotDone):
		op.state = StateFailed
		op.err = fmt.Errorf("%w: no terminal state after %s", ErrTimeout, p.deadline)
	default:
		op.state = StateFailed
		op.err = err
	}

	p.logger.Debug("operation finished",
		"operation", op.Handle.ID,
		"kind", op.Kind,
		"state", op.state,
		"progress", op.lastProgress,
		"error", op.err)
	return op.err
}

// Await is Submit followed by Watch for the common case where the
// caller has nothing to do between acceptance and completion.
func (p *Poller) Await(ctx context.Context, kind apiclient.OperationKind, submit func(context.Context) (apiclient.OperationHandle, error)) (*Operation, error) {
	op, err := p.Submit(ctx, kind, submit)
	if err != nil {
		return op, err
	}
	return op, p.Watch(ctx, op)
}
