// Package readiness blocks until a freshly launched daemon answers its
// identity probe.
//
// Wait checks the supervised process before every attempt and gives up
// immediately when it has exited. Probe errors are retried silently unless
// the Classifier marks them fatal; by default only HTTP 401 is fatal, since
// it means another daemon instance already owns the port.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"yanode/internal/logging"
)

var (
	// ErrTimeout means the attempt budget ran out.
	ErrTimeout = errors.New("readiness timed out")
	// ErrUnauthorized means the probe was rejected with 401.
	ErrUnauthorized = errors.New("readiness probe unauthorized")
	// ErrFatalStatus means the probe returned a status configured as fatal.
	ErrFatalStatus = errors.New("readiness probe returned fatal status")
	// ErrProcessDied means the daemon exited while being polled.
	ErrProcessDied = errors.New("daemon exited before becoming ready")
)

// StatusCoder is implemented by probe errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Class is the verdict on one probe error.
type Class int

const (
	// Transient errors are swallowed and retried.
	Transient Class = iota
	// Fatal errors abort the wait.
	Fatal
)

// Classifier decides whether a probe error aborts the wait.
type Classifier func(error) Class

// StatusClassifier treats errors carrying one of codes as fatal.
func StatusClassifier(codes ...int) Classifier {
	codes = slices.Clone(codes)
	return func(err error) Class {
		var sc StatusCoder
		if errors.As(err, &sc) && slices.Contains(codes, sc.StatusCode()) {
			return Fatal
		}
		return Transient
	}
}

// Options bound the wait.
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	Classify    Classifier
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 300
	}
	if o.Interval <= 0 {
		o.Interval = 300 * time.Millisecond
	}
	if o.Classify == nil {
		o.Classify = StatusClassifier(http.StatusUnauthorized)
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// Probe queries the daemon once.
type Probe[T any] func(ctx context.Context) (T, error)

// Wait polls probe until it succeeds, a fatal error occurs, exited is closed,
// the attempt budget is spent or ctx ends. The first attempt runs at once and
// failed attempts are followed by Interval of sleep. A nil exited channel
// disables the liveness check.
func Wait[T any](ctx context.Context, probe Probe[T], exited <-chan struct{}, opts Options) (T, error) {
	opts = opts.withDefaults()
	var zero T
	var lastErr error

	timer := time.NewTimer(opts.Interval)
	timer.Stop()
	defer timer.Stop()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer.Reset(opts.Interval)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-exited:
				return zero, ErrProcessDied
			case <-timer.C:
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		select {
		case <-exited:
			return zero, ErrProcessDied
		default:
		}

		value, err := probe(ctx)
		if err == nil {
			opts.Logger.Debug("readiness confirmed", logging.Int("attempt", attempt))
			return value, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if opts.Classify(err) == Fatal {
			return zero, fatalError(err)
		}
		lastErr = err
		opts.Logger.Debug("readiness probe failed; retrying",
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
	}
	if lastErr != nil {
		return zero, fmt.Errorf("%w after %d attempts: %w", ErrTimeout, opts.MaxAttempts, lastErr)
	}
	return zero, fmt.Errorf("%w after %d attempts", ErrTimeout, opts.MaxAttempts)
}

func fatalError(err error) error {
	var sc StatusCoder
	if errors.As(err, &sc) && sc.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return fmt.Errorf("%w: %w", ErrFatalStatus, err)
}
