package controller

import (
	"context"
	"regexp"
	"strings"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/bridge"
	"github.com/goliatone/go-windowagg/catalog"
	"github.com/goliatone/go-windowagg/expression"
	"github.com/goliatone/go-windowagg/flow"
	"github.com/goliatone/go-windowagg/runner"
	"github.com/goliatone/go-windowagg/schema"
	"github.com/goliatone/go-windowagg/window"
)

var asSeparator = regexp.MustCompile(`(?i)\s+AS\s+`)

// SplitProjection splits "<expr> AS <name>" on the last AS separator. Bare
// key paths report false.
func SplitProjection(projection string) (expr, name string, ok bool) {
	loc := asSeparator.FindAllStringIndex(projection, -1)
	if len(loc) == 0 {
		return "", "", false
	}
	last := loc[len(loc)-1]
	expr = strings.TrimSpace(projection[:last[0]])
	name = strings.TrimSpace(projection[last[1]:])
	if expr == "" || name == "" {
		return "", "", false
	}
	return expr, name, true
}

// Load fetches the aggregate catalog, waits for the parent to supply the
// upstream inputs and then loads or creates the rule. Calling Load on a
// form that is already loaded does nothing.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.bootstrapped {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateLoadFailed {
		_ = c.setState(StateLoading)
	}
	if c.state != StateLoading {
		err := transitionError(c.state, StateLoading)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	functions, err := runner.RunQuery(ctx, c.newRunner(), c.gateway.GetAggregateFunctions)
	if err != nil {
		return c.loadFailed(windowagg.NewError(windowagg.ErrLoad, "", "failed to load the function catalog", err, nil))
	}

	c.mu.Lock()
	c.functions = catalog.Aggregates(functions)
	if c.sub == nil {
		c.sub = bridge.Subscribe[bridge.InputsAvailable](c.bridge, c.HandleInputsAvailable,
			runner.WithLogger(c.logger), runner.WithErrorHandler(nil))
	}
	c.mu.Unlock()

	select {
	case <-c.bridge.InputsReady():
	case <-ctx.Done():
		return c.loadFailed(windowagg.NewError(windowagg.ErrLoad, "", "upstream inputs were never supplied", ctx.Err(), nil))
	}

	attempt, owner := c.claimBootstrap()
	if attempt == nil {
		return nil
	}
	if owner {
		return c.runBootstrap(ctx, attempt, c.bridge.Inputs())
	}
	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleInputsAvailable bootstraps the form from the inputs the parent
// announced. It runs at most once: notifications that arrive after the
// form was derived, or before the catalog is loaded, are ignored.
func (c *Controller) HandleInputsAvailable(ctx context.Context, msg bridge.InputsAvailable) error {
	attempt, owner := c.claimBootstrap()
	if attempt == nil || !owner {
		c.logger.Debug("ignoring inputs for node %s", msg.Node.ID)
		return nil
	}
	return c.runBootstrap(ctx, attempt, msg)
}

func (c *Controller) claimBootstrap() (*bootAttempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bootstrapped || c.functions == nil || (c.state != StateLoading && c.boot == nil) {
		return nil, false
	}
	if c.boot != nil {
		return c.boot, false
	}
	c.boot = &bootAttempt{done: make(chan struct{})}
	return c.boot, true
}

func (c *Controller) runBootstrap(ctx context.Context, attempt *bootAttempt, msg bridge.InputsAvailable) error {
	attempt.err = c.bootstrap(ctx, msg)
	c.mu.Lock()
	c.boot = nil
	c.mu.Unlock()
	close(attempt.done)
	return attempt.err
}

func (c *Controller) bootstrap(ctx context.Context, msg bridge.InputsAvailable) error {
	c.mu.Lock()
	functions := c.functions
	c.mu.Unlock()

	sess := newSession(msg, functions)
	opts := append([]expression.Option{expression.WithLogger(c.logger)}, c.validatorOpts...)
	validator := expression.NewValidator(functions, sess.keys, opts...)
	node := msg.Node.Clone()
	log := flow.WithFields(c.logger, map[string]any{"node_id": node.ID})

	var (
		rule windowagg.RuleNode
		err  error
	)
	if ruleID := firstRule(node); ruleID != "" {
		rule, err = runner.RunQuery(ctx, c.newRunner(), func(ctx context.Context) (windowagg.RuleNode, error) {
			return c.gateway.GetRule(ctx, ruleID)
		})
		if err != nil {
			return c.loadFailed(windowagg.NewError(windowagg.ErrLoad, "", "failed to load the window rule", err,
				map[string]any{"rule_id": ruleID, "node_id": node.ID}))
		}
	} else {
		c.mu.Lock()
		_ = c.setState(StateBootstrapping)
		c.mu.Unlock()

		if rule, node, err = c.createRule(ctx, node); err != nil {
			return c.loadFailed(windowagg.NewError(windowagg.ErrLoad, "", "failed to create the window rule", err,
				map[string]any{"node_id": node.ID}))
		}
		log.Info("created rule %s", rule.ID)
		c.bridge.UpdateNode(node)
	}

	c.mu.Lock()
	c.session = sess
	c.validator = validator
	c.node = node
	c.rule = rule
	c.name = node.Name
	c.description = node.Description
	if node.Config.Parallelism > 0 {
		c.parallelism = node.Config.Parallelism
	}
	if err := c.hydrate(rule); err != nil {
		c.mu.Unlock()
		return c.loadFailed(err)
	}
	if err := c.setState(StateReady); err != nil {
		c.mu.Unlock()
		return err
	}
	c.bootstrapped = true
	source, out := c.outputStream()
	c.mu.Unlock()

	c.publish(ctx, source, out)
	log.Info("form ready with rule %s", rule.ID)
	return nil
}

// createRule persists an empty rule and attaches its id to the node.
func (c *Controller) createRule(ctx context.Context, node windowagg.Node) (windowagg.RuleNode, windowagg.Node, error) {
	h := c.newRunner()
	rule, err := runner.RunQuery(ctx, h, func(ctx context.Context) (windowagg.RuleNode, error) {
		return c.gateway.CreateRule(ctx, c.emptyRule())
	})
	if err != nil {
		return rule, node, err
	}
	node.Config.Rules = []string{rule.ID}
	err = h.Run(ctx, func(ctx context.Context) error {
		return c.gateway.UpdateNode(ctx, node.ID, node)
	})
	return rule, node, err
}

func (c *Controller) emptyRule() windowagg.RuleNode {
	return windowagg.RuleNode{
		Name:          c.cfg.RuleName,
		Description:   c.cfg.RuleDescription,
		Projections:   []windowagg.Projection{},
		Streams:       []string{},
		OutputStreams: []string{},
		GroupByKeys:   []string{},
		Actions:       []any{},
	}
}

// hydrate must be called with mu held. A rule without projections leaves
// the form at its defaults.
func (c *Controller) hydrate(rule windowagg.RuleNode) error {
	c.groupKeys = nil
	c.rows = []Row{{}}
	c.window = window.NewForm()
	if len(rule.Projections) == 0 {
		c.recompute()
		return nil
	}

	var (
		keys []string
		rows []Row
	)
	for _, p := range rule.Projections {
		expr, name, ok := SplitProjection(p.Expr)
		if !ok {
			keys = append(keys, p.Expr)
			continue
		}
		row := Row{ComputedField: windowagg.ComputedField{Expression: expr, OutputName: name}}
		row.ResolvedType, row.Err = c.validator.ResolveType(expr)
		rows = append(rows, row)
	}
	c.groupKeys = schema.NormalizePaths(keys)
	if len(rows) > 0 {
		c.rows = rows
	}

	if rule.Window != nil {
		spec, err := window.FromStorage(*rule.Window)
		if err != nil {
			return windowagg.NewError(windowagg.ErrLoad, "", "the stored window is invalid", err,
				map[string]any{"rule_id": rule.ID})
		}
		c.window = window.FormFromSpec(spec)
	}
	c.recompute()
	return nil
}

func (c *Controller) loadFailed(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLoadFailed {
		_ = c.setState(StateLoadFailed)
	}
	c.logger.Error("load failed: %v", err)
	return err
}

func newSession(msg bridge.InputsAvailable, functions *catalog.Catalog) *session {
	streams := make([][]windowagg.FieldKey, 0, len(msg.Streams))
	ids := make([]string, 0, len(msg.Streams))
	for _, s := range msg.Streams {
		streams = append(streams, s.Fields)
		ids = append(ids, s.StreamID)
	}
	keys := schema.NewKeyCatalog(streams...)
	options := keys.Flatten()

	var (
		paths []string
		types []windowagg.FieldType
	)
	for _, opt := range options {
		if !opt.Group {
			paths = append(paths, opt.Path)
			types = append(types, opt.Type)
		}
	}

	return &session{
		streamIDs:  ids,
		edges:      msg.Edges,
		keys:       keys,
		keyOptions: options,
		timestamps: schema.TimestampCandidates(keys),
		hints:      append(functions.FunctionHints(), catalog.ArgumentHints(paths, types)...),
	}
}

func firstRule(node windowagg.Node) string {
	if len(node.Config.Rules) == 0 {
		return ""
	}
	return node.Config.Rules[0]
}
