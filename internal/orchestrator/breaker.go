package orchestrator

import (
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// newErrorBreaker implements the §7 burst-threshold degraded-mode
// behavior: it trips once cfg.ErrorBurstThreshold internal errors have
// accumulated within cfg.ErrorBurstWindow, at which point SubmitTask
// starts refusing new work with KindNotRunning until the window rolls
// over and the breaker half-opens again. gobreaker resets its Counts at
// the start of every Closed-state Interval, so counting TotalFailures
// (rather than ConsecutiveFailures) over that window is the direct
// translation of "N errors in W seconds".
func newErrorBreaker(cfg Config, logger *zap.Logger) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "orchestrator-errors",
		MaxRequests: 1,
		Interval:    cfg.ErrorBurstWindow,
		Timeout:     cfg.ErrorBurstWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= uint32(cfg.ErrorBurstThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// recordInternalError feeds an internal-error observation into the
// breaker without itself returning an error to the caller — dispatch
// must never block on the breaker's bookkeeping. err == nil counts as a
// success: in the half-open state it closes the breaker, while in the
// closed state it leaves TotalFailures for the current interval unchanged.
func recordInternalError(b *gobreaker.CircuitBreaker, err error) {
	_, _ = b.Execute(func() (interface{}, error) { return nil, err })
}

// guardedSave always runs fn, whatever the breaker's state, records its
// outcome with recordInternalError, and returns fn's error unchanged. A
// store failure thus counts toward the degraded-mode threshold like any
// other internal error; the breaker never skips or absorbs the call.
func guardedSave(b *gobreaker.CircuitBreaker, fn func() error) error {
	err := fn()
	recordInternalError(b, err)
	if err != nil {
		return err
	}
	return nil
}

func breakerOpen(b *gobreaker.CircuitBreaker) bool {
	return b.State() == gobreaker.StateOpen
}
