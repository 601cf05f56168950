package bridge

import (
	"context"
	"fmt"
	"sync"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/flow"
)

// Context is the editor state owned by the parent coordinator and shared
// by sibling node editors. Reads return copies; writes are announced to
// subscribers as messages.
type Context struct {
	mu      sync.RWMutex
	inputs  InputsAvailable
	output  *windowagg.OutputStream
	version uint64

	ready     chan struct{}
	readyOnce sync.Once

	dispatcher *dispatcher
	logger     flow.Logger
}

type Option func(*Context)

func WithLogger(l flow.Logger) Option {
	return func(c *Context) {
		c.logger = l
	}
}

func New(opts ...Option) *Context {
	c := &Context{
		ready:      make(chan struct{}),
		dispatcher: newDispatcher(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = flow.NormalizeLogger(c.logger)
	return c
}

// SetInputs stores the upstream streams, the processor node and its edges.
// The first call closes InputsReady; every call notifies InputsAvailable
// subscribers.
func (c *Context) SetInputs(ctx context.Context, msg InputsAvailable) error {
	if err := windowagg.ValidateMessage(msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.inputs = cloneInputs(msg)
	c.mu.Unlock()

	c.readyOnce.Do(func() { close(c.ready) })
	return dispatch(ctx, c.dispatcher, cloneInputs(msg))
}

// InputsReady is closed once the upstream inputs are known.
func (c *Context) InputsReady() <-chan struct{} {
	return c.ready
}

// Inputs returns a snapshot of the upstream inputs.
func (c *Context) Inputs() InputsAvailable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneInputs(c.inputs)
}

// UpdateNode replaces the processor node, for example after it was saved.
func (c *Context) UpdateNode(node windowagg.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs.Node = node.Clone()
}

// PublishOutput stores the output stream of source and broadcasts it.
// Concurrent writers are not coordinated: the last write wins. Delivery
// failures are logged and not returned.
func (c *Context) PublishOutput(ctx context.Context, source string, out windowagg.OutputStream) uint64 {
	c.mu.Lock()
	version := c.store(out)
	c.mu.Unlock()

	c.broadcast(ctx, source, out, version)
	return version
}

// CompareAndPublish stores the output only when the current version equals
// expected, returning the new version.
func (c *Context) CompareAndPublish(ctx context.Context, source string, out windowagg.OutputStream, expected uint64) (uint64, error) {
	c.mu.Lock()
	if c.version != expected {
		current := c.version
		c.mu.Unlock()
		return current, windowagg.NewError(windowagg.ErrVersionConflict, "",
			fmt.Sprintf("output version is %d, expected %d", current, expected), nil,
			map[string]any{"source": source, "expected": expected, "current": current})
	}
	version := c.store(out)
	c.mu.Unlock()

	c.broadcast(ctx, source, out, version)
	return version, nil
}

// Output returns the last published output stream and its version.
func (c *Context) Output() (windowagg.OutputStream, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.output == nil {
		return windowagg.OutputStream{}, c.version, false
	}
	return cloneOutput(*c.output), c.version, true
}

// Version returns the version of the last published output.
func (c *Context) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Context) store(out windowagg.OutputStream) uint64 {
	cp := cloneOutput(out)
	c.output = &cp
	c.version++
	return c.version
}

func (c *Context) broadcast(ctx context.Context, source string, out windowagg.OutputStream, version uint64) {
	msg := OutputPublished{Source: source, Output: cloneOutput(out), Version: version}
	if err := dispatch(ctx, c.dispatcher, msg); err != nil {
		c.logger.Warn("output publish delivery failed: %v", err)
	}
}

func cloneOutput(o windowagg.OutputStream) windowagg.OutputStream {
	return windowagg.OutputStream{StreamID: o.StreamID, Fields: o.Fields.Clone()}
}
