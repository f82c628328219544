package chatcompletions

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// BackoffPolicy bounds retries of transient backend failures.
// The delay before retry n is InitialDelay × 2^(n-1).
type BackoffPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultBackoffPolicy returns 3 attempts starting at one second.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 3, InitialDelay: time.Second}
}

// OutcomeKind tags a dispatch result.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeError
	// OutcomeFatal means the backend denied access and the agent session must end.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the tagged result of a dispatch. Err is set unless Kind is OutcomeOK.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   *StatusError
}

// Dispatcher executes backend calls with bounded exponential backoff.
// Only 429 and 5xx responses are retried; everything else fails immediately.
type Dispatcher struct {
	backend Backend
	policy  BackoffPolicy
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil logger discards retry logs.
func NewDispatcher(backend Backend, policy BackoffPolicy, logger *slog.Logger) *Dispatcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{backend: backend, policy: policy, logger: logger}
}

// Complete dispatches a non-streaming request.
func (d *Dispatcher) Complete(ctx context.Context, req *Request) Outcome[*Response] {
	return dispatch(ctx, d, req.Model, func() (*Response, error) {
		return d.backend.Complete(ctx, req)
	})
}

// Stream dispatches a streaming request. Retries cover opening the stream only;
// once chunks flow, failures are delivered through the stream.
func (d *Dispatcher) Stream(ctx context.Context, req *Request) Outcome[*Stream] {
	return dispatch(ctx, d, req.Model, func() (*Stream, error) {
		return d.backend.Stream(ctx, req)
	})
}

func dispatch[T any](ctx context.Context, d *Dispatcher, model string, call func() (T, error)) Outcome[T] {
	var exhausted bool

	// Re-derived per call: the policy is configuration, not shared state.
	rp := retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool {
			return isRetryable(err)
		}).
		WithMaxAttempts(d.policy.MaxAttempts).
		WithBackoff(d.policy.InitialDelay, d.policy.InitialDelay<<max(d.policy.MaxAttempts, 1)).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[T]) {
			d.logger.WarnContext(ctx, "retrying backend request",
				"model", model,
				"attempt", e.Attempts(),
				"max_attempts", d.policy.MaxAttempts,
				"error", e.LastError(),
			)
		}).
		OnRetriesExceeded(func(failsafe.ExecutionEvent[T]) {
			exhausted = true
		}).
		Build()

	value, err := failsafe.With[T](rp).WithContext(ctx).Get(call)
	if err == nil {
		return Outcome[T]{Kind: OutcomeOK, Value: value}
	}

	statusErr := Classify(err)
	if exhausted {
		// Retries exhausted on a transient failure: report as an upstream failure, not the last status.
		statusErr = &StatusError{
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("backend unavailable after %d attempts: %s", d.policy.MaxAttempts, statusErr.Message),
			Err:        err,
		}
	}

	if statusErr.Fatal() {
		d.logger.ErrorContext(ctx, "backend denied access", "model", model, "status", statusErr.StatusCode)
		return Outcome[T]{Kind: OutcomeFatal, Err: statusErr}
	}
	return Outcome[T]{Kind: OutcomeError, Err: statusErr}
}
