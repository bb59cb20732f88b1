// Package dispatch routes inbound webhook events to named handlers.
package dispatch

import (
	"context"
	"fmt"

	"github.com/sugarworks/sugar-agent/internal/observability"
)

// Handler consumes events. A handler decides per event type whether it
// reacts; unknown types return a nil value and no error.
type Handler interface {
	Name() string
	Handle(ctx context.Context, eventType string, data map[string]any) (any, error)
}

// Result is one handler's outcome for a dispatched event.
type Result struct {
	Value any
	Err   error
}

type Registry struct {
	order    []string
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Registering the same name twice keeps the last
// handler but the original position.
func (r *Registry) Register(h Handler) {
	if _, ok := r.handlers[h.Name()]; !ok {
		r.order = append(r.order, h.Name())
	}
	r.handlers[h.Name()] = h
}

// Dispatch delivers the event to the named handler, or to every handler when
// target is empty. A panicking handler is converted to an error result and
// does not stop delivery to the others.
func (r *Registry) Dispatch(ctx context.Context, target, eventType string, data map[string]any) map[string]Result {
	results := make(map[string]Result)
	if target != "" {
		h, ok := r.handlers[target]
		if !ok {
			results[target] = Result{Err: fmt.Errorf("no handler named %q", target)}
			return results
		}
		results[target] = r.run(ctx, h, eventType, data)
		return results
	}
	for _, name := range r.order {
		results[name] = r.run(ctx, r.handlers[name], eventType, data)
	}
	return results
}

func (r *Registry) run(ctx context.Context, h Handler, eventType string, data map[string]any) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.LoggerFromContext(ctx).Error("handler panicked",
				"handler", h.Name(), "event_type", eventType, "panic", rec)
			res = Result{Err: fmt.Errorf("handler %s panicked: %v", h.Name(), rec)}
		}
	}()
	v, err := h.Handle(ctx, eventType, data)
	return Result{Value: v, Err: err}
}
