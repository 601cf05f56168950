package expression

import (
	"context"
	"fmt"
	"sync"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/catalog"
	"github.com/goliatone/go-windowagg/flow"
	"github.com/goliatone/go-windowagg/schema"
)

// RowResult is the outcome of checking one authored row.
type RowResult struct {
	Index int
	Type  windowagg.FieldType
	Err   error
}

// BatchResult holds the row results of one validation batch, keyed by row
// index. Rows without an expression have no entry.
type BatchResult struct {
	Generation uint64
	Rows       map[int]RowResult
}

// Valid reports whether every checked row passed.
func (b BatchResult) Valid() bool {
	for _, r := range b.Rows {
		if r.Err != nil {
			return false
		}
	}
	return true
}

// Errors returns the failing rows by index.
func (b BatchResult) Errors() map[int]error {
	out := make(map[int]error)
	for i, r := range b.Rows {
		if r.Err != nil {
			out[i] = r.Err
		}
	}
	return out
}

type Option func(*Validator)

// WithConcurrency bounds how many rows are checked at once.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		v.concurrency = n
	}
}

// WithCacheSize sets how many parsed expressions are memoised.
func WithCacheSize(n int) Option {
	return func(v *Validator) {
		v.cacheSize = n
	}
}

func WithLogger(l flow.Logger) Option {
	return func(v *Validator) {
		v.logger = l
	}
}

// Validator checks expressions against the catalog and the upstream keys.
// A new batch supersedes the previous one: the older batch is cancelled and
// its result is reported stale.
type Validator struct {
	resolver    Resolver
	concurrency int
	cacheSize   int
	logger      flow.Logger
	pool        *flow.Pool

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

func NewValidator(functions *catalog.Catalog, keys *schema.KeyCatalog, opts ...Option) *Validator {
	v := &Validator{cacheSize: 256}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	v.logger = flow.NormalizeLogger(v.logger)
	v.resolver = Resolver{Functions: functions, Keys: keys, Parser: NewParser(v.cacheSize)}
	v.pool = flow.NewPool(v.concurrency, v.logger)
	return v
}

// Resolver returns the synchronous resolver sharing this validator's cache.
func (v *Validator) Resolver() Resolver {
	return v.resolver
}

// ResolveType is a shortcut for Resolver().ResolveType.
func (v *Validator) ResolveType(expr string) (windowagg.FieldType, error) {
	return v.resolver.ResolveType(expr)
}

// Check runs the full check of one expression: syntax, top level call,
// known function, resolvable arguments and accepted argument types. It
// returns the resolved type.
func (v *Validator) Check(ctx context.Context, expr string) (windowagg.FieldType, error) {
	if err := ctx.Err(); err != nil {
		return windowagg.TypeUnset, err
	}
	call, err := v.resolver.Parser.Parse(expr)
	if err != nil {
		return windowagg.TypeUnset, err
	}
	return v.resolver.resolveCall(expr, call, true)
}

// ValidateBatch checks every row with an expression concurrently, one task
// per row index, and waits for all of them. When a newer batch starts before
// this one finishes, the result is returned together with a
// VALIDATION_SUPERSEDED error and must be discarded.
func (v *Validator) ValidateBatch(ctx context.Context, rows []windowagg.ComputedField) (BatchResult, error) {
	batchCtx, gen := v.begin(ctx)
	defer v.finish(gen)

	tasks := make([]flow.KeyedTask[int, windowagg.FieldType], 0, len(rows))
	for i, row := range rows {
		if row.IsPlaceholder() || row.Expression == "" {
			continue
		}
		expr := row.Expression
		tasks = append(tasks, flow.KeyedTask[int, windowagg.FieldType]{
			Key: i,
			Run: func(ctx context.Context) (windowagg.FieldType, error) {
				return v.Check(ctx, expr)
			},
		})
	}

	results := flow.RunKeyed(batchCtx, v.pool, tasks)

	out := BatchResult{Generation: gen, Rows: make(map[int]RowResult, len(results))}
	for _, r := range results {
		out.Rows[r.Key] = RowResult{Index: r.Key, Type: r.Value, Err: r.Err}
	}

	if current := v.current(); current != gen {
		v.logger.Debug("discarding validation batch %d, current is %d", gen, current)
		return out, windowagg.NewError(windowagg.ErrValidationStale, "",
			fmt.Sprintf("validation batch %d superseded by %d", gen, current), nil,
			map[string]any{"generation": gen, "current": current})
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func (v *Validator) begin(ctx context.Context) (context.Context, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
	}
	batchCtx, cancel := context.WithCancel(ctx)
	v.generation++
	v.cancel = cancel
	return batchCtx, v.generation
}

func (v *Validator) finish(gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.generation == gen && v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}

func (v *Validator) current() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generation
}
