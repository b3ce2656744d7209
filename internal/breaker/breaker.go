// Package breaker guards steady-state daemon queries so a wedged daemon is
// not hammered every polling tick.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"yanode/internal/logging"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Settings tune when the breaker trips and how long it stays open.
type Settings struct {
	Name                string
	ConsecutiveFailures int
	Cooldown            time.Duration
	Logger              *slog.Logger
	OnStateChange       func(name string, from, to State)
}

// State mirrors the gobreaker states.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a breaker that opens after ConsecutiveFailures failed calls
// and probes again after Cooldown. Context cancellation is not a failure.
func New(s Settings) *CircuitBreaker {
	if s.ConsecutiveFailures <= 0 {
		s.ConsecutiveFailures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	threshold := uint32(s.ConsecutiveFailures)
	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
			if s.OnStateChange != nil {
				s.OnStateChange(name, from, to)
			}
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := cb.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	return cb.cb.State()
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.cb.Name()
}
