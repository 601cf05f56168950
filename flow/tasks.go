package flow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	windowagg "github.com/goliatone/go-windowagg"
)

// KeyedTask is one unit of a batch, identified by Key.
type KeyedTask[K comparable, R any] struct {
	Key K
	Run func(ctx context.Context) (R, error)
}

// KeyedResult is the outcome of a KeyedTask.
type KeyedResult[K comparable, R any] struct {
	Key   K
	Value R
	Err   error
}

// Pool bounds how many keyed tasks run at once.
type Pool struct {
	limit  int
	logger Logger
}

// NewPool returns a pool running at most limit tasks at a time. A limit
// below one means no bound.
func NewPool(limit int, logger Logger) *Pool {
	return &Pool{limit: limit, logger: NormalizeLogger(logger)}
}

// RunKeyed runs every task and waits for all of them. Results come back in
// task order. A failing or panicking task does not stop the others.
func RunKeyed[K comparable, R any](ctx context.Context, p *Pool, tasks []KeyedTask[K, R]) []KeyedResult[K, R] {
	if p == nil {
		p = NewPool(0, nil)
	}
	results := make([]KeyedResult[K, R], len(tasks))
	recoverTask := windowagg.MakePanicHandler(PanicLogger(p.logger))

	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, task := range tasks {
		results[i].Key = task.Key
		g.Go(func() error {
			var err error
			defer func() { results[i].Err = err }()
			defer recoverTask("keyed-task", &err, map[string]any{"key": task.Key})

			if err = ctx.Err(); err != nil {
				return nil
			}
			results[i].Value, err = task.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// PanicLogger routes recovered panics to logger.
func PanicLogger(logger Logger) windowagg.PanicLogger {
	logger = NormalizeLogger(logger)
	return func(funcName string, err any, stack []byte, fields ...map[string]any) {
		l := logger
		if len(fields) > 0 {
			l = WithFields(logger, fields[0])
		}
		l.Error(fmt.Sprintf("recovered from panic in %s: %v\n%s", funcName, err, stack))
	}
}
