// Package interrupt routes user interrupts to whichever REPL phase is
// currently running.
//
// Only the evaluation phase is cancellable. During the input cycle the
// terminal is in raw mode and the input application turns Ctrl-C into an
// abort of its own, so a process interrupt observed there is dropped, as is
// one observed between phases.
package interrupt

import (
	"log/slog"
	"sync"
)

// Route names the phase an interrupt is delivered to.
type Route int

const (
	// RouteNone means no phase is running; interrupts are dropped.
	RouteNone Route = iota
	// RouteInputCycle means an input cycle owns the terminal.
	RouteInputCycle
	// RouteEvaluation means user code is running and may be cancelled.
	RouteEvaluation
)

// String returns the route name used in logs.
func (r Route) String() string {
	switch r {
	case RouteNone:
		return "none"
	case RouteInputCycle:
		return "input_cycle"
	case RouteEvaluation:
		return "evaluation"
	default:
		return "unknown"
	}
}

// Router holds the current route together with its cancellation target.
// Both are only read and written under mu, so an interrupt can never reach
// a phase that has already been left.
type Router struct {
	mu     sync.Mutex
	route  Route
	cancel func()
	logger *slog.Logger
}

// NewRouter creates a router in RouteNone.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Router{logger: logger}
}

// Route returns the current route.
func (r *Router) Route() Route {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.route
}

// Enter switches to route with cancel as its cancellation target and returns
// a function that restores the previous route. restore is idempotent.
func (r *Router) Enter(route Route, cancel func()) (restore func()) {
	r.mu.Lock()
	prevRoute, prevCancel := r.route, r.cancel
	r.route, r.cancel = route, cancel
	r.mu.Unlock()

	r.logger.Debug("interrupt route entered",
		slog.String("event.type", "interrupt.route"),
		slog.String("interrupt.route", route.String()),
		slog.String("interrupt.previous", prevRoute.String()),
	)

	var once sync.Once

	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.route, r.cancel = prevRoute, prevCancel
			r.mu.Unlock()
		})
	}
}

// With runs body with route entered, restoring the previous route on every
// exit path including a panic.
func (r *Router) With(route Route, cancel func(), body func() error) error {
	restore := r.Enter(route, cancel)
	defer restore()

	return body()
}

// Deliver handles one interrupt. Under RouteEvaluation it invokes the
// cancellation target and reports true; under any other route it does
// nothing.
func (r *Router) Deliver() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.route != RouteEvaluation || r.cancel == nil {
		r.logger.Debug("interrupt dropped",
			slog.String("event.type", "interrupt.drop"),
			slog.String("interrupt.route", r.route.String()),
		)

		return false
	}

	// cancel must not block: it runs under mu.
	r.cancel()

	r.logger.Debug("interrupt delivered",
		slog.String("event.type", "interrupt.deliver"),
		slog.String("interrupt.route", r.route.String()),
	)

	return true
}
