package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/goliatone/go-windowagg/schema"
	"github.com/goliatone/go-windowagg/window"
)

// edit applies fn under the lock. fn reports whether it changed the form;
// a rejected edit leaves the state and revision alone. When republish is
// set the output schema is recomputed and published, and the schema error
// is returned along with fn's error.
func (c *Controller) edit(ctx context.Context, republish bool, fn func() (bool, error)) error {
	c.mu.Lock()
	if !c.state.Editable() {
		err := transitionError(c.state, StateEditing)
		c.mu.Unlock()
		return err
	}
	changed, err := fn()
	if !changed {
		c.mu.Unlock()
		return err
	}
	_ = c.setState(StateEditing)
	c.revision++
	if !republish {
		c.mu.Unlock()
		return err
	}

	c.recompute()
	err = errors.Join(err, c.schemaErr)
	source, out := c.outputStream()
	c.mu.Unlock()

	c.publish(ctx, source, out)
	return err
}

// HandleKeysChange replaces the selected group keys.
func (c *Controller) HandleKeysChange(ctx context.Context, paths []string) error {
	return c.edit(ctx, true, func() (bool, error) {
		c.groupKeys = schema.NormalizePaths(paths)
		return true, nil
	})
}

// SelectAllKeys selects every top level key with its whole subtree.
func (c *Controller) SelectAllKeys(ctx context.Context) error {
	return c.edit(ctx, true, func() (bool, error) {
		if c.session == nil {
			return false, nil
		}
		var paths []string
		for _, f := range c.session.keys.Fields() {
			paths = append(paths, f.Name)
		}
		c.groupKeys = paths
		return true, nil
	})
}

// HandleExpressionEdit sets the expression of row i and resolves its type.
// An empty expression is flagged for display but accepted.
func (c *Controller) HandleExpressionEdit(ctx context.Context, i int, expr string) error {
	return c.edit(ctx, true, func() (bool, error) {
		if err := c.checkRow(i); err != nil {
			return false, err
		}
		row := &c.rows[i]
		row.Expression = expr
		row.InvalidExpression = strings.TrimSpace(expr) == ""
		c.resolveRow(row)
		return true, row.Err
	})
}

// HandleOutputNameEdit sets the output name of row i.
func (c *Controller) HandleOutputNameEdit(ctx context.Context, i int, name string) error {
	return c.edit(ctx, true, func() (bool, error) {
		if err := c.checkRow(i); err != nil {
			return false, err
		}
		row := &c.rows[i]
		row.OutputName = name
		row.InvalidName = strings.TrimSpace(name) == ""
		c.resolveRow(row)
		return true, nil
	})
}

// AddComputedFieldRow appends an empty row.
func (c *Controller) AddComputedFieldRow(ctx context.Context) error {
	return c.edit(ctx, false, func() (bool, error) {
		c.rows = append(c.rows, Row{})
		return true, nil
	})
}

// DeleteComputedFieldRow removes row i together with its validation result
// and republishes the schema. The form always keeps one row.
func (c *Controller) DeleteComputedFieldRow(ctx context.Context, i int) error {
	return c.edit(ctx, true, func() (bool, error) {
		if err := c.checkRow(i); err != nil {
			return false, err
		}
		if len(c.rows) == 1 {
			return false, invalidInput(ErrCodeLastRow, "the last computed field cannot be deleted",
				map[string]any{"row": i})
		}
		c.rows = slices.Delete(c.rows, i, i+1)
		if c.report != nil {
			c.report.dropRow(i)
		}
		return true, nil
	})
}

func (c *Controller) SetIntervalKind(kind window.Kind) error {
	return c.windowEdit(func(f *window.Form) error {
		f.SetKind(kind)
		return nil
	})
}

// SetWindowLength sets the window magnitude. The slide follows it.
func (c *Controller) SetWindowLength(v int64) error {
	return c.windowEdit(func(f *window.Form) error {
		f.SetLength(v)
		return nil
	})
}

func (c *Controller) ClearWindowLength() error {
	return c.windowEdit(func(f *window.Form) error {
		f.ClearLength()
		return nil
	})
}

func (c *Controller) SetSlidingLength(v int64) error {
	return c.windowEdit(func(f *window.Form) error {
		f.SetSlide(v)
		return nil
	})
}

// ClearSlidingLength makes the window tumbling.
func (c *Controller) ClearSlidingLength() error {
	return c.windowEdit(func(f *window.Form) error {
		f.ClearSlide()
		return nil
	})
}

// SetDurationUnit sets the window unit and the slide unit with it.
func (c *Controller) SetDurationUnit(u window.TimeUnit) error {
	return c.windowEdit(func(f *window.Form) error {
		if !u.Valid() {
			return invalidUnit(u)
		}
		f.SetLengthUnit(u)
		return nil
	})
}

func (c *Controller) SetSlidingUnit(u window.TimeUnit) error {
	return c.windowEdit(func(f *window.Form) error {
		if !u.Valid() {
			return invalidUnit(u)
		}
		f.SetSlideUnit(u)
		return nil
	})
}

// SetTimestampField selects the event time field. An empty name clears the
// field and its lag.
func (c *Controller) SetTimestampField(name string) error {
	return c.windowEdit(func(f *window.Form) error {
		if name != "" && !c.isTimestampOption(name) {
			return invalidInput(ErrCodeInvalidInput, fmt.Sprintf("%s cannot be used as a timestamp field", name),
				map[string]any{"ts_field": name})
		}
		f.SetTsField(name)
		return nil
	})
}

// SetLag sets the allowed lateness in seconds.
func (c *Controller) SetLag(seconds int64) error {
	return c.windowEdit(func(f *window.Form) error {
		f.SetLag(seconds)
		return nil
	})
}

func (c *Controller) SetParallelism(n int) error {
	return c.edit(context.Background(), false, func() (bool, error) {
		if n < 1 {
			return false, invalidInput(ErrCodeInvalidInput, "parallelism must be at least 1",
				map[string]any{"parallelism": n})
		}
		c.parallelism = n
		return true, nil
	})
}

func (c *Controller) windowEdit(fn func(f *window.Form) error) error {
	return c.edit(context.Background(), false, func() (bool, error) {
		form := c.window
		if err := fn(&form); err != nil {
			return false, err
		}
		c.window = form
		return true, nil
	})
}

// resolveRow must be called with mu held.
func (c *Controller) resolveRow(row *Row) {
	if c.validator == nil {
		return
	}
	row.ResolvedType, row.Err = c.validator.ResolveType(row.Expression)
}

func (c *Controller) checkRow(i int) error {
	if i < 0 || i >= len(c.rows) {
		return invalidInput(ErrCodeRowOutOfRange, fmt.Sprintf("row %d does not exist", i),
			map[string]any{"row": i, "rows": len(c.rows)})
	}
	return nil
}

func (c *Controller) isTimestampOption(name string) bool {
	if window.IsProcessingTime(name) {
		return true
	}
	if c.session == nil {
		return false
	}
	for _, opt := range c.session.timestamps {
		if opt.Path == name {
			return true
		}
	}
	return false
}

func invalidUnit(u window.TimeUnit) error {
	return invalidInput(ErrCodeInvalidInput, fmt.Sprintf("unknown time unit %q", u),
		map[string]any{"unit": string(u)})
}
