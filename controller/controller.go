// Package controller owns the editable state of a window node form. It
// loads or bootstraps the rule, applies edits, keeps the output schema
// published to the parent context and saves the rule, node and edge.
package controller

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/assembler"
	"github.com/goliatone/go-windowagg/bridge"
	"github.com/goliatone/go-windowagg/catalog"
	"github.com/goliatone/go-windowagg/config"
	"github.com/goliatone/go-windowagg/expression"
	"github.com/goliatone/go-windowagg/flow"
	"github.com/goliatone/go-windowagg/gateway"
	"github.com/goliatone/go-windowagg/runner"
	"github.com/goliatone/go-windowagg/schema"
	"github.com/goliatone/go-windowagg/window"
)

const (
	ErrCodeRowOutOfRange = "FORM_ROW_OUT_OF_RANGE"
	ErrCodeLastRow       = "FORM_LAST_ROW"
	ErrCodeInvalidInput  = "FORM_INVALID_INPUT"
)

// ErrInvalidInput rejects an edit without changing the form.
var ErrInvalidInput = errors.New("invalid form input", errors.CategoryBadInput).
	WithTextCode(ErrCodeInvalidInput)

// Row is one computed field row together with its display state.
type Row struct {
	windowagg.ComputedField
	// Err is the type or validation error shown under the row.
	Err               error
	InvalidExpression bool
	InvalidName       bool
}

// View is a copy of the editable state.
type View struct {
	State       State
	Name        string
	Description string
	Parallelism int
	GroupKeys   []string
	Rows        []Row
	Window      window.Form
	Schema      windowagg.OutputSchema
	Revision    uint64
}

type Option func(*Controller)

func WithLogger(l flow.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

func WithEditorConfig(cfg config.EditorConfig) Option {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithRunnerOptions sets the retry behaviour of gateway calls.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(c *Controller) {
		c.runnerOpts = append(c.runnerOpts, opts...)
	}
}

func WithValidatorOptions(opts ...expression.Option) Option {
	return func(c *Controller) {
		c.validatorOpts = append(c.validatorOpts, opts...)
	}
}

// WithConfig applies the editor, validation and retry sections of cfg.
func WithConfig(cfg config.Config) Option {
	return func(c *Controller) {
		c.cfg = cfg.Editor
		c.runnerOpts = append(c.runnerOpts, cfg.Retry.RunnerOptions()...)
		c.validatorOpts = append(c.validatorOpts,
			expression.WithConcurrency(cfg.Validation.Concurrency),
			expression.WithCacheSize(cfg.Validation.CacheSize),
		)
	}
}

// bootAttempt is shared by the callers racing to bootstrap the form.
type bootAttempt struct {
	done chan struct{}
	err  error
}

// session is derived once from the inputs the parent supplied.
type session struct {
	streamIDs  []string
	edges      []windowagg.Edge
	keys       *schema.KeyCatalog
	keyOptions []schema.KeyOption
	timestamps []schema.KeyOption
	hints      []catalog.Hint
}

// Controller is safe for concurrent use. Gateway calls and validation run
// outside the lock.
type Controller struct {
	mu sync.Mutex

	gateway       gateway.Gateway
	bridge        *bridge.Context
	asm           *assembler.Assembler
	cfg           config.EditorConfig
	logger        flow.Logger
	runnerOpts    []runner.Option
	validatorOpts []expression.Option
	sub           bridge.Subscription

	state        State
	bootstrapped bool
	boot         *bootAttempt
	functions    *catalog.Catalog
	session      *session
	validator    *expression.Validator

	rule        windowagg.RuleNode
	node        windowagg.Node
	name        string
	description string
	parallelism int
	groupKeys   []string
	rows        []Row
	window      window.Form
	schema      windowagg.OutputSchema
	schemaErr   error
	report      *ValidationReport

	revision          uint64
	validatedRevision uint64
}

func New(gw gateway.Gateway, ctxBridge *bridge.Context, opts ...Option) *Controller {
	c := &Controller{
		gateway:  gw,
		bridge:   ctxBridge,
		cfg:      config.Defaults().Editor,
		state:    StateLoading,
		rows:     []Row{{}},
		window:   window.NewForm(),
		revision: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = flow.WithFields(flow.NormalizeLogger(c.logger), map[string]any{"component": "window_editor"})
	c.asm = assembler.New(assembler.WithStreamPrefixes(c.cfg.TransformStreamPrefix, c.cfg.NotifierStreamPrefix))
	c.parallelism = max(c.cfg.DefaultParallelism, 1)
	return c
}

// Close stops listening to the parent context.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the editable state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		State:       c.state,
		Name:        c.name,
		Description: c.description,
		Parallelism: c.parallelism,
		GroupKeys:   append([]string(nil), c.groupKeys...),
		Rows:        append([]Row(nil), c.rows...),
		Window:      c.window,
		Schema:      c.schema.Clone(),
		Revision:    c.revision,
	}
}

// OutputSchema returns the current output schema and the schema error
// that blocks saving, if any.
func (c *Controller) OutputSchema() (windowagg.OutputSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schema.Clone(), c.schemaErr
}

// RowErrors returns one message per row that has an error to show.
func (c *Controller) RowErrors() map[int]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]string)
	for i, r := range c.rows {
		switch {
		case r.Err != nil:
			out[i] = windowagg.ErrorMessage(r.Err)
		case r.InvalidExpression && !r.IsPlaceholder():
			out[i] = "expression is required"
		case r.InvalidName && !r.IsPlaceholder():
			out[i] = "output name is required"
		}
	}
	return out
}

// Hints returns the completion entries: catalog functions then key paths.
func (c *Controller) Hints() []catalog.Hint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return append([]catalog.Hint(nil), c.session.hints...)
}

func (c *Controller) TimestampOptions() []schema.KeyOption {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return append([]schema.KeyOption(nil), c.session.timestamps...)
}

func (c *Controller) KeyOptions() []schema.KeyOption {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return append([]schema.KeyOption(nil), c.session.keyOptions...)
}

// Rule returns the rule as last loaded or saved.
func (c *Controller) Rule() windowagg.RuleNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rule
}

func (c *Controller) Node() windowagg.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.node.Clone()
}

// LastReport returns the result of the last completed validation.
func (c *Controller) LastReport() (ValidationReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.report == nil {
		return ValidationReport{}, false
	}
	return c.report.clone(), true
}

// setState must be called with mu held.
func (c *Controller) setState(to State) error {
	if !CanTransition(c.state, to) {
		return transitionError(c.state, to)
	}
	if c.state != to {
		c.logger.Debug("form state %s -> %s", c.state, to)
	}
	c.state = to
	return nil
}

func (c *Controller) newRunner() *runner.Handler {
	return runner.NewHandler(c.runnerOptions()...)
}

func (c *Controller) runnerOptions() []runner.Option {
	return append([]runner.Option{
		runner.WithLogger(c.logger),
		runner.WithErrorHandler(nil),
	}, c.runnerOpts...)
}

// recompute must be called with mu held.
func (c *Controller) recompute() {
	var keys *schema.KeyCatalog
	if c.session != nil {
		keys = c.session.keys
	}
	c.schema, c.schemaErr = schema.Project(c.groupKeys, c.fields(), keys)
}

func (c *Controller) fields() []windowagg.ComputedField {
	out := make([]windowagg.ComputedField, len(c.rows))
	for i, r := range c.rows {
		out[i] = r.ComputedField
	}
	return out
}

// outputStream must be called with mu held.
func (c *Controller) outputStream() (string, windowagg.OutputStream) {
	ids := c.asm.OutputStreamIDs(c.node.ID)
	return c.node.ID, windowagg.OutputStream{StreamID: ids[0], Fields: c.schema.Clone()}
}

func (c *Controller) publish(ctx context.Context, source string, out windowagg.OutputStream) {
	c.bridge.PublishOutput(ctx, source, out)
}

func invalidInput(code, msg string, metadata map[string]any) error {
	return windowagg.NewError(ErrInvalidInput, code, msg, nil, metadata)
}
