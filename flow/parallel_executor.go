package flow

import (
	"context"
	"fmt"

	"github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/runner"
)

// Step is a named commander run by a ParallelExecutor.
type Step[T any] struct {
	Name    string
	Command windowagg.Commander[T]
}

// Report lists which steps of a parallel run succeeded and which failed.
type Report struct {
	Succeeded []string
	Failed    []string
	Errors    map[string]error
}

// OK reports whether every step succeeded.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// ParallelExecutor runs every step for the same message concurrently. Steps
// are independent: a failure neither cancels nor reverts the others.
type ParallelExecutor[T any] struct {
	steps   []Step[T]
	options []runner.Option
	logger  Logger
}

// NewParallelExecutor creates a new ParallelExecutor with the provided steps
func NewParallelExecutor[T any](steps []Step[T], opts ...runner.Option) *ParallelExecutor[T] {
	return &ParallelExecutor[T]{
		steps:   steps,
		options: opts,
		logger:  NewFmtLogger(nil),
	}
}

// WithLogger sets the logger used for panic reports.
func (p *ParallelExecutor[T]) WithLogger(logger Logger) *ParallelExecutor[T] {
	p.logger = NormalizeLogger(logger)
	return p
}

// Run executes all steps and reports per step outcomes in step order.
func (p *ParallelExecutor[T]) Run(ctx context.Context, msg T) Report {
	errs := make([]error, len(p.steps))
	recoverStep := windowagg.MakePanicHandler(PanicLogger(p.logger))

	var g errgroup.Group
	for i, step := range p.steps {
		g.Go(func() (err error) {
			defer func() { errs[i] = err }()
			defer recoverStep(step.Name, &err, map[string]any{"step": step.Name})

			h := runner.NewHandler(p.options...)
			if err := runner.RunCommand(ctx, h, step.Command, msg); err != nil {
				return errors.Wrap(err, errors.CategoryHandler,
					fmt.Sprintf("step %s failed in parallel execution", step.Name)).
					WithTextCode("PARALLEL_EXECUTION_FAILED").
					WithMetadata(map[string]any{
						"step":              step.Name,
						"step_index":        i,
						"message_type":      windowagg.GetMessageType(msg),
						"total_steps":       len(p.steps),
						"context_cancelled": ctx.Err() != nil,
					})
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Errors: make(map[string]error)}
	for i, step := range p.steps {
		if errs[i] != nil {
			report.Failed = append(report.Failed, step.Name)
			report.Errors[step.Name] = errs[i]
			continue
		}
		report.Succeeded = append(report.Succeeded, step.Name)
	}
	return report
}

// Execute runs all steps and joins their failures into one error.
func (p *ParallelExecutor[T]) Execute(ctx context.Context, msg T) error {
	report := p.Run(ctx, msg)
	if report.OK() {
		return nil
	}

	var joined error
	for _, name := range report.Failed {
		joined = errors.Join(joined, report.Errors[name])
	}

	return errors.Wrap(
		joined,
		errors.CategoryHandler,
		fmt.Sprintf("parallel execution completed with %d failures out of %d steps",
			len(report.Failed), len(p.steps)),
	).
		WithTextCode("PARALLEL_EXECUTION_SUMMARY").
		WithMetadata(map[string]any{
			"total_steps":      len(p.steps),
			"successful_count": len(report.Succeeded),
			"failed_count":     len(report.Failed),
			"failed":           report.Failed,
			"succeeded":        report.Succeeded,
			"message_type":     windowagg.GetMessageType(msg),
		})
}

// ParallelExecute runs named functions concurrently against msg
func ParallelExecute[T any](ctx context.Context, msg T, handlers map[string]windowagg.CommandFunc[T], order []string, opts ...runner.Option) error {
	steps := make([]Step[T], 0, len(order))
	for _, name := range order {
		if h, ok := handlers[name]; ok {
			steps = append(steps, Step[T]{Name: name, Command: h})
		}
	}
	return NewParallelExecutor(steps, opts...).Execute(ctx, msg)
}
