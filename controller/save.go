package controller

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/assembler"
	"github.com/goliatone/go-windowagg/flow"
)

// Names of the save steps as they appear in a PersistError.
const (
	StepNode = "node"
	StepRule = "rule"
	StepEdge = "edge"
)

// ValidationReport is the outcome of ValidateForSave.
type ValidationReport struct {
	Valid      bool
	Revision   uint64
	Generation uint64
	// RowErrors holds at most one error per row index.
	RowErrors map[int]error
	// Errors holds failures that belong to no row, such as the window.
	Errors []error
}

// Err joins every error of the report.
func (r ValidationReport) Err() error {
	errs := append([]error(nil), r.Errors...)
	for _, i := range slices.Sorted(maps.Keys(r.RowErrors)) {
		errs = append(errs, r.RowErrors[i])
	}
	return errors.Join(errs...)
}

// Messages returns one message per failing row.
func (r ValidationReport) Messages() map[int]string {
	out := make(map[int]string, len(r.RowErrors))
	for i, err := range r.RowErrors {
		out[i] = windowagg.ErrorMessage(err)
	}
	return out
}

func (r ValidationReport) clone() ValidationReport {
	out := r
	out.RowErrors = maps.Clone(r.RowErrors)
	out.Errors = append([]error(nil), r.Errors...)
	return out
}

// dropRow forgets the result of row i and shifts later rows down.
func (r *ValidationReport) dropRow(i int) {
	shifted := make(map[int]error, len(r.RowErrors))
	for idx, err := range r.RowErrors {
		switch {
		case idx < i:
			shifted[idx] = err
		case idx > i:
			shifted[idx-1] = err
		}
	}
	r.RowErrors = shifted
}

// ValidateForSave checks the form the way Save does. It fails fast, without
// starting any check, on a pending row error, a schema error or an
// incomplete window. Otherwise every authored expression is checked
// concurrently together with the row structure, and the report is valid
// only when all of them pass. A call superseded by a newer one returns a
// VALIDATION_SUPERSEDED error and leaves the form untouched.
func (c *Controller) ValidateForSave(ctx context.Context) (ValidationReport, error) {
	return c.validate(ctx, false)
}

func (c *Controller) validate(ctx context.Context, forSave bool) (ValidationReport, error) {
	c.mu.Lock()
	if !c.state.Editable() && c.state != StateValidatingForSave {
		err := transitionError(c.state, StateValidatingForSave)
		c.mu.Unlock()
		return ValidationReport{}, err
	}
	if report, err := c.failFast(); err != nil {
		c.report = &report
		c.mu.Unlock()
		return report, err
	}
	_ = c.setState(StateValidatingForSave)
	fields := c.fields()
	revision := c.revision
	validator := c.validator
	form := c.window
	c.mu.Unlock()

	report := ValidationReport{Revision: revision, RowErrors: make(map[int]error)}
	for i, f := range fields {
		if !f.IsPlaceholder() && !f.IsComplete() {
			report.RowErrors[i] = assembler.IncompleteRow(i, f)
		}
	}
	if spec, err := form.Spec(); err != nil {
		report.Errors = append(report.Errors, err)
	} else if err := spec.Validate(); err != nil {
		report.Errors = append(report.Errors, err)
	}

	batch, err := validator.ValidateBatch(ctx, fields)
	if windowagg.HasCode(err, windowagg.ErrCodeValidationStale) {
		report.Generation = batch.Generation
		return report, err
	}

	c.mu.Lock()
	if err != nil {
		_ = c.setState(StateEditing)
		c.mu.Unlock()
		return report, err
	}

	report.Generation = batch.Generation
	for i, r := range batch.Rows {
		if r.Err != nil {
			if _, ok := report.RowErrors[i]; !ok {
				report.RowErrors[i] = r.Err
			}
			continue
		}
		if i < len(c.rows) {
			c.rows[i].ResolvedType = r.Type
		}
	}
	for i, e := range report.RowErrors {
		if i < len(c.rows) {
			c.rows[i].Err = e
		}
	}
	report.Valid = len(report.RowErrors) == 0 && len(report.Errors) == 0
	c.report = &report
	if report.Valid {
		c.validatedRevision = revision
	}
	if !report.Valid || !forSave {
		_ = c.setState(StateEditing)
	}
	c.recompute()
	source, out := c.outputStream()
	c.mu.Unlock()

	c.publish(ctx, source, out)
	c.logger.Debug("validation batch %d: valid=%t rows=%d", report.Generation, report.Valid, len(batch.Rows))
	if !report.Valid {
		return report, report.Err()
	}
	return report, nil
}

// failFast must be called with mu held.
func (c *Controller) failFast() (ValidationReport, error) {
	report := ValidationReport{Revision: c.revision, RowErrors: make(map[int]error)}
	for i, r := range c.rows {
		if r.Err != nil {
			report.RowErrors[i] = r.Err
			return report, windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodePendingTypeError,
				fmt.Sprintf("row %d has an unresolved error", i+1), r.Err, map[string]any{"row": i})
		}
	}
	if c.schemaErr != nil {
		report.Errors = append(report.Errors, c.schemaErr)
		return report, c.schemaErr
	}
	if err := c.window.Validate(); err != nil {
		report.Errors = append(report.Errors, err)
		return report, err
	}
	return report, nil
}

// Save validates the form when the current revision has not passed
// validation yet, assembles the rule, node and edge, and writes the three
// concurrently. The writes are independent: when any fails the others are
// kept and a PersistError lists which steps failed and which succeeded.
func (c *Controller) Save(ctx context.Context, name, description string) error {
	c.mu.Lock()
	if !c.state.Editable() {
		err := transitionError(c.state, StateValidatingForSave)
		c.mu.Unlock()
		return err
	}
	validated := c.validatedRevision == c.revision
	if validated {
		_ = c.setState(StateValidatingForSave)
	}
	c.mu.Unlock()

	if !validated {
		if _, err := c.validate(ctx, true); err != nil {
			return err
		}
	}

	c.mu.Lock()
	art, err := c.asm.Assemble(assembler.Input{
		Rule:        c.rule,
		Node:        c.node,
		Name:        name,
		Description: description,
		Parallelism: c.parallelism,
		StreamIDs:   c.session.streamIDs,
		Edges:       c.session.edges,
		Keys:        c.session.keys,
		GroupKeys:   c.groupKeys,
		Computed:    c.fields(),
		Window:      c.window,
	})
	if err != nil {
		_ = c.setState(StateEditing)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	log := flow.WithFields(c.logger, map[string]any{"node_id": art.Node.ID, "rule_id": art.Rule.ID})
	report := flow.NewParallelExecutor(c.persistSteps(), c.runnerOptions()...).
		WithLogger(c.logger).
		Run(ctx, art)

	c.mu.Lock()
	c.rule = art.Rule
	c.name = name
	c.description = description
	if slices.Contains(report.Succeeded, StepNode) {
		c.node = art.Node
	}
	if !report.OK() {
		_ = c.setState(StateSaveFailed)
		c.mu.Unlock()
		err := persistError(report)
		log.Error("save failed: %v", err)
		return err
	}
	_ = c.setState(StateSaved)
	source, out := c.outputStream()
	c.mu.Unlock()

	c.bridge.UpdateNode(art.Node)
	c.publish(ctx, source, out)
	log.Info("window configuration saved")
	return nil
}

func (c *Controller) persistSteps() []flow.Step[assembler.Artifacts] {
	return []flow.Step[assembler.Artifacts]{
		{Name: StepNode, Command: windowagg.CommandFunc[assembler.Artifacts](
			func(ctx context.Context, a assembler.Artifacts) error {
				return c.gateway.UpdateNode(ctx, a.Node.ID, a.Node)
			})},
		{Name: StepRule, Command: windowagg.CommandFunc[assembler.Artifacts](
			func(ctx context.Context, a assembler.Artifacts) error {
				return c.gateway.UpdateRule(ctx, a.Rule.ID, a.Rule)
			})},
		{Name: StepEdge, Command: windowagg.CommandFunc[assembler.Artifacts](
			func(ctx context.Context, a assembler.Artifacts) error {
				return c.gateway.UpdateEdge(ctx, a.EdgeID, a.Edge)
			})},
	}
}

func persistError(report flow.Report) error {
	var errs []error
	for _, name := range report.Failed {
		errs = append(errs, report.Errors[name])
	}
	return windowagg.NewError(windowagg.ErrPersist, "",
		fmt.Sprintf("failed to save %s", strings.Join(report.Failed, ", ")), errors.Join(errs...),
		map[string]any{
			"failed":    report.Failed,
			"succeeded": report.Succeeded,
		})
}
