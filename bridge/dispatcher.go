package bridge

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/goliatone/go-errors"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/runner"
)

// dispatcher delivers messages to the handlers registered for their type.
type dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]any
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[string][]any)}
}

func (d *dispatcher) register(msgType string, handler any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = append(d.handlers[msgType], handler)
}

func (d *dispatcher) unregister(msgType string, handler any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = slices.DeleteFunc(d.handlers[msgType], func(h any) bool {
		return h == handler
	})
}

func (d *dispatcher) get(msgType string) []any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]any(nil), d.handlers[msgType]...)
}

type handlerWrapper[T windowagg.Message] struct {
	runner *runner.Handler
	cmd    windowagg.Commander[T]
}

// Subscribe registers fn for every message of type T sent through c. The
// returned Subscription removes it again.
func Subscribe[T windowagg.Message](c *Context, fn windowagg.CommandFunc[T], runnerOpts ...runner.Option) Subscription {
	var msg T
	w := &handlerWrapper[T]{
		runner: runner.NewHandler(runnerOpts...),
		cmd:    fn,
	}
	msgType := msg.Type()
	c.dispatcher.register(msgType, w)
	return &subscription{remove: func() { c.dispatcher.unregister(msgType, w) }}
}

// dispatch runs every handler of T in registration order. All handlers run
// even when one fails; failures are joined.
func dispatch[T windowagg.Message](ctx context.Context, d *dispatcher, msg T) error {
	if err := windowagg.ValidateMessage(msg); err != nil {
		return err
	}

	var errs error
	for _, h := range d.get(msg.Type()) {
		w, ok := h.(*handlerWrapper[T])
		if !ok {
			continue
		}
		if err := runner.RunCommand(ctx, w.runner, w.cmd, msg); err != nil {
			errs = errors.Join(errs, errors.Wrap(err, errors.CategoryHandler,
				fmt.Sprintf("handler failed for type %s", msg.Type())).
				WithTextCode("HANDLER_EXECUTION_FAILED"))
		}
	}
	return errs
}
