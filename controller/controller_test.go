package controller

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/bridge"
	"github.com/goliatone/go-windowagg/config"
	"github.com/goliatone/go-windowagg/gateway"
	"github.com/goliatone/go-windowagg/window"
)

type fakeGateway struct {
	mu sync.Mutex

	functions []windowagg.Function
	rules     map[string]windowagg.RuleNode
	nodes     map[string]windowagg.Node
	edges     map[string]windowagg.EdgeUpdate
	nextID    int
	calls     map[string]int

	functionsErr error
	nodeErr      error
	ruleErr      error
	edgeErr      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		functions: []windowagg.Function{
			{Name: "SUM", DisplayName: "Sum", Kind: windowagg.FunctionKindAggregate,
				ArgTypes: []windowagg.FieldType{windowagg.TypeInteger, windowagg.TypeLong, windowagg.TypeDouble}},
			{Name: "COUNT", DisplayName: "Count", Kind: windowagg.FunctionKindAggregate, ReturnType: windowagg.TypeLong},
			{Name: "UPPER", DisplayName: "Upper", Kind: windowagg.FunctionKindScalar, ReturnType: windowagg.TypeString},
		},
		rules: make(map[string]windowagg.RuleNode),
		nodes: make(map[string]windowagg.Node),
		edges: make(map[string]windowagg.EdgeUpdate),
		calls: make(map[string]int),
	}
}

func (g *fakeGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *fakeGateway) GetAggregateFunctions(ctx context.Context) ([]windowagg.Function, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["functions"]++
	if g.functionsErr != nil {
		return nil, g.functionsErr
	}
	return append([]windowagg.Function(nil), g.functions...), nil
}

func (g *fakeGateway) GetRule(ctx context.Context, ruleID string) (windowagg.RuleNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["get_rule"]++
	rule, ok := g.rules[ruleID]
	if !ok {
		return rule, windowagg.NewError(gateway.ErrNotFound, "", "rule not found", nil, nil)
	}
	return rule, nil
}

func (g *fakeGateway) CreateRule(ctx context.Context, rule windowagg.RuleNode) (windowagg.RuleNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["create_rule"]++
	g.nextID++
	rule.ID = fmt.Sprintf("r%d", g.nextID)
	g.rules[rule.ID] = rule
	return rule, nil
}

func (g *fakeGateway) UpdateRule(ctx context.Context, ruleID string, rule windowagg.RuleNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["update_rule"]++
	if g.ruleErr != nil {
		return g.ruleErr
	}
	g.rules[ruleID] = rule
	return nil
}

func (g *fakeGateway) UpdateNode(ctx context.Context, nodeID string, node windowagg.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["update_node"]++
	if g.nodeErr != nil {
		return g.nodeErr
	}
	g.nodes[nodeID] = node
	return nil
}

func (g *fakeGateway) UpdateEdge(ctx context.Context, edgeID string, edge windowagg.EdgeUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["update_edge"]++
	if g.edgeErr != nil {
		return g.edgeErr
	}
	g.edges[edgeID] = edge
	return nil
}

func testInputs(node windowagg.Node) bridge.InputsAvailable {
	return bridge.InputsAvailable{
		Streams: []bridge.StreamOption{
			{StreamID: "s1", Fields: []windowagg.FieldKey{
				{Name: "a", Type: windowagg.TypeString},
				{Name: "b", Type: windowagg.TypeNested, Fields: []windowagg.FieldKey{
					{Name: "c", Type: windowagg.TypeLong},
					{Name: "d", Type: windowagg.TypeString},
				}},
				{Name: "ts", Type: windowagg.TypeLong},
			}},
			{StreamID: "s2", Fields: []windowagg.FieldKey{
				{Name: "a", Type: windowagg.TypeLong},
				{Name: "e", Type: windowagg.TypeDouble},
			}},
		},
		Node: node,
		Edges: []windowagg.Edge{
			{ID: "e1", FromID: "3", ToID: "7", StreamGrouping: windowagg.StreamGrouping{StreamID: "s1", Grouping: windowagg.GroupingShuffle}},
		},
	}
}

func ptr[T any](v T) *T { return &v }

func storedRule() windowagg.RuleNode {
	return windowagg.RuleNode{
		ID:          "r9",
		Name:        "window_auto_generated",
		Projections: []windowagg.Projection{{Expr: "a"}, {Expr: "b['c']"}, {Expr: "SUM(b.c) AS total"}},
		Streams:     []string{"s1"},
		GroupByKeys: []string{"a", "b.c"},
		Window: &windowagg.StoredWindow{
			WindowLength: windowagg.StoredInterval{Class: windowagg.ClassDuration, DurationMs: ptr[int64](600000)},
		},
	}
}

func loadController(t *testing.T, gw *fakeGateway, node windowagg.Node) (*Controller, *bridge.Context) {
	t.Helper()
	ctx := context.Background()
	b := bridge.New()
	require.NoError(t, b.SetInputs(ctx, testInputs(node)))

	c := New(gw, b)
	t.Cleanup(c.Close)
	require.NoError(t, c.Load(ctx))
	return c, b
}

func existingRuleController(t *testing.T) (*Controller, *bridge.Context, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	gw.rules["r9"] = storedRule()
	c, b := loadController(t, gw, windowagg.Node{
		ID:     "7",
		Name:   "window",
		Config: windowagg.NodeConfig{Parallelism: 3, Rules: []string{"r9"}},
	})
	return c, b, gw
}

func TestLoadCreatesRuleWhenNodeHasNone(t *testing.T) {
	gw := newFakeGateway()
	c, b := loadController(t, gw, windowagg.Node{ID: "7"})

	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 1, gw.count("create_rule"))
	assert.Equal(t, 0, gw.count("get_rule"))

	rule := c.Rule()
	assert.Equal(t, "window_auto_generated", rule.Name)
	assert.Equal(t, "window description auto generated", rule.Description)
	assert.Empty(t, rule.Projections)

	stored := gw.nodes["7"]
	assert.Equal(t, []string{rule.ID}, stored.Config.Rules)
	assert.Equal(t, []string{rule.ID}, b.Inputs().Node.Config.Rules)

	view := c.Snapshot()
	assert.Equal(t, 1, view.Parallelism)
	require.Len(t, view.Rows, 1)
	assert.True(t, view.Rows[0].IsPlaceholder())
	assert.Equal(t, window.ProcessingTime, view.Window.TsField)
	assert.Nil(t, view.Window.Length)
}

func TestLoadHydratesExistingRule(t *testing.T) {
	c, b, gw := existingRuleController(t)

	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 0, gw.count("create_rule"))

	view := c.Snapshot()
	assert.Equal(t, 3, view.Parallelism)
	assert.Equal(t, []string{"a", "b.c"}, view.GroupKeys)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "SUM(b.c)", view.Rows[0].Expression)
	assert.Equal(t, "total", view.Rows[0].OutputName)
	assert.Equal(t, windowagg.TypeLong, view.Rows[0].ResolvedType)
	require.NotNil(t, view.Window.Length)
	assert.EqualValues(t, 10, *view.Window.Length)
	assert.Equal(t, window.Minutes, view.Window.LengthUnit)
	assert.Equal(t, window.ProcessingTime, view.Window.TsField)

	out, version, ok := b.Output()
	require.True(t, ok)
	assert.EqualValues(t, 1, version)
	assert.Equal(t, "window_transform_stream_7", out.StreamID)
	assert.Equal(t, []string{"a", "b", "total"}, out.Fields.Names())
	assert.Equal(t, []string{"c"}, windowagg.OutputSchema(out.Fields[1].Fields).Names())
}

func TestHydrateEventTimeWindow(t *testing.T) {
	gw := newFakeGateway()
	rule := storedRule()
	rule.Window = &windowagg.StoredWindow{
		WindowLength:    windowagg.StoredInterval{Class: ".Window$Count", Count: ptr[int64](100)},
		SlidingInterval: &windowagg.StoredInterval{Class: windowagg.ClassCount, Count: ptr[int64](10)},
		TsField:         "ts",
		LagMs:           ptr[int64](5000),
	}
	gw.rules["r9"] = rule
	c, _ := loadController(t, gw, windowagg.Node{ID: "7", Config: windowagg.NodeConfig{Rules: []string{"r9"}}})

	form := c.Snapshot().Window
	assert.Equal(t, window.KindCount, form.Kind)
	assert.EqualValues(t, 100, *form.Length)
	assert.EqualValues(t, 10, *form.Slide)
	assert.Equal(t, "ts", form.TsField)
	assert.EqualValues(t, 5, *form.LagSeconds)
}

func TestBootstrapRunsOnce(t *testing.T) {
	c, b, gw := existingRuleController(t)
	require.NoError(t, c.HandleKeysChange(context.Background(), []string{"a"}))

	inputs := testInputs(windowagg.Node{ID: "7", Config: windowagg.NodeConfig{Rules: []string{"r9"}}})
	require.NoError(t, b.SetInputs(context.Background(), inputs))
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, 1, gw.count("get_rule"))
	assert.Equal(t, 1, gw.count("functions"))
	assert.Equal(t, []string{"a"}, c.Snapshot().GroupKeys)
}

func TestLoadWaitsForInputs(t *testing.T) {
	gw := newFakeGateway()
	b := bridge.New()
	c := New(gw, b)
	t.Cleanup(c.Close)

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()

	require.Eventually(t, func() bool { return gw.count("functions") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateLoading, c.State())

	require.NoError(t, b.SetInputs(context.Background(), testInputs(windowagg.Node{ID: "7"})))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("load did not finish")
	}
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 1, gw.count("create_rule"))
}

func TestLoadFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.functionsErr = stderrors.New("catalog down")
	b := bridge.New()
	require.NoError(t, b.SetInputs(context.Background(), testInputs(windowagg.Node{ID: "7"})))
	c := New(gw, b)
	t.Cleanup(c.Close)

	err := c.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, windowagg.ErrCodeLoadFailed, windowagg.Code(err))
	assert.Equal(t, StateLoadFailed, c.State())

	edit := c.HandleKeysChange(context.Background(), []string{"a"})
	assert.Equal(t, windowagg.ErrCodeInvalidTransition, windowagg.Code(edit))

	gw.mu.Lock()
	gw.functionsErr = nil
	gw.mu.Unlock()
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, StateReady, c.State())
}

func TestLoadMissingRuleFails(t *testing.T) {
	gw := newFakeGateway()
	b := bridge.New()
	require.NoError(t, b.SetInputs(context.Background(),
		testInputs(windowagg.Node{ID: "7", Config: windowagg.NodeConfig{Rules: []string{"gone"}}})))
	c := New(gw, b)
	t.Cleanup(c.Close)

	err := c.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, windowagg.ErrCodeLoadFailed, windowagg.Code(err))
	assert.True(t, windowagg.HasCode(err, gateway.ErrCodeNotFound))
}

func TestSessionDerivedFromInputs(t *testing.T) {
	c, _, _ := existingRuleController(t)

	var paths []string
	for _, opt := range c.TimestampOptions() {
		paths = append(paths, opt.Path)
	}
	assert.Equal(t, []string{"b.c", "ts", window.ProcessingTime}, paths)

	keys := c.KeyOptions()
	require.NotEmpty(t, keys)
	assert.Equal(t, "a", keys[0].Path)
	// a from s1 wins over a from s2
	assert.Equal(t, windowagg.TypeString, keys[0].Type)
	assert.Equal(t, "e", keys[len(keys)-1].Path)

	hints := c.Hints()
	require.NotEmpty(t, hints)
	assert.Equal(t, "SUM(", hints[0].Text)
	for _, h := range hints {
		assert.NotEqual(t, "UPPER(", h.Text)
	}
}

func TestEditsRepublishSchema(t *testing.T) {
	ctx := context.Background()
	c, b, _ := existingRuleController(t)

	require.NoError(t, c.HandleKeysChange(ctx, []string{"e"}))
	assert.Equal(t, StateEditing, c.State())
	out, _, _ := b.Output()
	assert.Equal(t, []string{"e", "total"}, out.Fields.Names())

	require.NoError(t, c.AddComputedFieldRow(ctx))
	require.NoError(t, c.HandleExpressionEdit(ctx, 1, "COUNT(a)"))
	require.NoError(t, c.HandleOutputNameEdit(ctx, 1, "n"))

	out, version, _ := b.Output()
	assert.Equal(t, []string{"e", "total", "n"}, out.Fields.Names())
	assert.Equal(t, windowagg.TypeLong, out.Fields[2].Type)
	assert.EqualValues(t, 4, version)

	err := c.HandleOutputNameEdit(ctx, 1, "total")
	require.Error(t, err)
	assert.True(t, windowagg.HasCode(err, windowagg.ErrCodeDuplicateField))

	err = c.HandleExpressionEdit(ctx, 5, "COUNT(a)")
	assert.Equal(t, ErrCodeRowOutOfRange, windowagg.Code(err))
}

func TestExpressionEditFlagsEmptyAndTypeErrors(t *testing.T) {
	ctx := context.Background()
	c, _, _ := existingRuleController(t)

	require.NoError(t, c.HandleExpressionEdit(ctx, 0, ""))
	assert.True(t, c.Snapshot().Rows[0].InvalidExpression)
	assert.Equal(t, "expression is required", c.RowErrors()[0])

	err := c.HandleExpressionEdit(ctx, 0, "SUM(a)")
	require.Error(t, err)
	assert.Equal(t, windowagg.ErrCodeArgumentType, windowagg.Code(err))
	assert.Contains(t, c.RowErrors()[0], "STRING")
}

func TestSelectAllKeys(t *testing.T) {
	c, _, _ := existingRuleController(t)
	require.NoError(t, c.SelectAllKeys(context.Background()))

	schema, err := c.OutputSchema()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "ts", "e", "total"}, schema.Names())
	assert.Equal(t, []string{"c", "d"}, windowagg.OutputSchema(schema[1].Fields).Names())
}

func TestDeleteRowDropsItsValidationResult(t *testing.T) {
	ctx := context.Background()
	c, b, _ := existingRuleController(t)

	require.NoError(t, c.AddComputedFieldRow(ctx))
	require.NoError(t, c.HandleExpressionEdit(ctx, 1, "MISSING(a)"))
	require.NoError(t, c.HandleOutputNameEdit(ctx, 1, "bad"))
	require.NoError(t, c.AddComputedFieldRow(ctx))
	require.NoError(t, c.HandleExpressionEdit(ctx, 2, "COUNT(a)"))
	require.NoError(t, c.HandleOutputNameEdit(ctx, 2, "n"))

	report, err := c.ValidateForSave(ctx)
	require.Error(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, windowagg.ErrCodeUnknownFunction, windowagg.Code(report.RowErrors[1]))
	assert.Len(t, report.RowErrors, 1)

	require.NoError(t, c.DeleteComputedFieldRow(ctx, 1))

	view := c.Snapshot()
	require.Len(t, view.Rows, 2)
	assert.Equal(t, "total", view.Rows[0].OutputName)
	assert.Equal(t, "n", view.Rows[1].OutputName)
	assert.Empty(t, c.RowErrors())

	last, ok := c.LastReport()
	require.True(t, ok)
	assert.Empty(t, last.RowErrors)

	require.NoError(t, c.DeleteComputedFieldRow(ctx, 0))
	err = c.DeleteComputedFieldRow(ctx, 0)
	assert.Equal(t, ErrCodeLastRow, windowagg.Code(err))
	require.Len(t, c.Snapshot().Rows, 1)
	assert.Equal(t, "n", c.Snapshot().Rows[0].OutputName)

	out, _, _ := b.Output()
	assert.Equal(t, []string{"a", "b", "n"}, out.Fields.Names())
}

func TestValidateRejectsBareArgument(t *testing.T) {
	ctx := context.Background()
	c, _, _ := existingRuleController(t)

	require.NoError(t, c.HandleExpressionEdit(ctx, 0, "b.c"))
	report, err := c.ValidateForSave(ctx)
	require.Error(t, err)
	assert.Equal(t, windowagg.ErrCodeArgumentOnly, windowagg.Code(report.RowErrors[0]))
	assert.Equal(t, windowagg.ArgumentOnlyMessage, report.Messages()[0])
	assert.Equal(t, StateEditing, c.State())
}

func TestValidateRejectsHalfFilledRow(t *testing.T) {
	ctx := context.Background()
	c, _, _ := existingRuleController(t)

	require.NoError(t, c.AddComputedFieldRow(ctx))
	require.NoError(t, c.HandleOutputNameEdit(ctx, 1, "orphan"))

	report, err := c.ValidateForSave(ctx)
	require.Error(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, windowagg.ErrCodeIncompleteRow, windowagg.Code(report.RowErrors[1]))

	err = c.Save(ctx, "totals", "")
	require.Error(t, err)
	assert.True(t, windowagg.HasCode(err, windowagg.ErrCodePendingTypeError))
}

func TestValidateFailsFast(t *testing.T) {
	ctx := context.Background()
	c, _, _ := existingRuleController(t)

	require.NoError(t, c.ClearWindowLength())
	report, err := c.ValidateForSave(ctx)
	require.Error(t, err)
	assert.Equal(t, windowagg.ErrCodeMissingWindowLength, windowagg.Code(err))
	assert.Zero(t, report.Generation)

	require.NoError(t, c.SetWindowLength(5))
	require.NoError(t, c.SetTimestampField("ts"))
	_, err = c.ValidateForSave(ctx)
	assert.Equal(t, windowagg.ErrCodeMissingLag, windowagg.Code(err))

	require.NoError(t, c.SetLag(3))
	report, err = c.ValidateForSave(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.EqualValues(t, 1, report.Generation)
}

func TestWindowEditsRejectInvalidInput(t *testing.T) {
	c, _, _ := existingRuleController(t)

	assert.Equal(t, ErrCodeInvalidInput, windowagg.Code(c.SetTimestampField("a")))
	assert.Equal(t, ErrCodeInvalidInput, windowagg.Code(c.SetDurationUnit("Weeks")))
	assert.Equal(t, ErrCodeInvalidInput, windowagg.Code(c.SetParallelism(0)))
	assert.Equal(t, StateReady, c.State())

	require.NoError(t, c.SetIntervalKind(window.KindCount))
	require.NoError(t, c.SetSlidingLength(2))
	require.NoError(t, c.SetSlidingUnit(window.Hours))
	require.NoError(t, c.SetParallelism(4))

	view := c.Snapshot()
	assert.Equal(t, window.KindCount, view.Window.Kind)
	assert.EqualValues(t, 10, *view.Window.Length)
	assert.EqualValues(t, 2, *view.Window.Slide)
	assert.Equal(t, 4, view.Parallelism)
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	c, b, gw := existingRuleController(t)

	require.NoError(t, c.Save(ctx, "totals", "sum per key"))
	assert.Equal(t, StateSaved, c.State())

	rule := gw.rules["r9"]
	assert.Equal(t, []windowagg.Projection{{Expr: "a"}, {Expr: "b.c"}, {Expr: "SUM(b.c) AS total"}}, rule.Projections)
	assert.Equal(t, []string{"a", "b.c"}, rule.GroupByKeys)
	assert.Equal(t, []string{"s1"}, rule.Streams)
	assert.Equal(t, []string{"window_transform_stream_7", "window_notifier_stream_7"}, rule.OutputStreams)
	require.NotNil(t, rule.Window)
	assert.EqualValues(t, 600000, *rule.Window.WindowLength.DurationMs)
	assert.Empty(t, rule.Window.TsField)
	assert.Nil(t, rule.Window.LagMs)

	node := gw.nodes["7"]
	assert.Equal(t, "totals", node.Name)
	assert.Equal(t, 3, node.Config.Parallelism)
	require.Len(t, node.OutputStreams, 2)
	assert.Equal(t, []string{"a", "b", "total"}, node.OutputStreams[0].Fields.Names())
	assert.Equal(t, "totals", b.Inputs().Node.Name)

	edge := gw.edges["e1"]
	assert.Equal(t, []windowagg.StreamGrouping{
		{StreamID: "s1", Grouping: windowagg.GroupingFields, Fields: []string{"a", "b.c"}},
	}, edge.StreamGroupings)

	require.NoError(t, c.SetParallelism(2))
	assert.Equal(t, StateEditing, c.State())
}

func TestSavePartialFailure(t *testing.T) {
	ctx := context.Background()
	c, _, gw := existingRuleController(t)
	gw.edgeErr = stderrors.New("edge store down")

	err := c.Save(ctx, "totals", "")
	require.Error(t, err)
	assert.Equal(t, windowagg.ErrCodePersistFailed, windowagg.Code(err))
	assert.Equal(t, StateSaveFailed, c.State())

	var ge *errors.Error
	require.True(t, stderrors.As(err, &ge))
	assert.Equal(t, []string{StepEdge}, ge.Metadata["failed"])
	assert.Equal(t, []string{StepNode, StepRule}, ge.Metadata["succeeded"])

	assert.Equal(t, "totals", gw.nodes["7"].Name)
	assert.Len(t, gw.rules["r9"].Projections, 3)

	gw.mu.Lock()
	gw.edgeErr = nil
	gw.mu.Unlock()
	require.NoError(t, c.Save(ctx, "totals", ""))
	assert.Equal(t, StateSaved, c.State())
}

func TestSaveMissingEdgeWritesNothing(t *testing.T) {
	gw := newFakeGateway()
	gw.rules["r9"] = storedRule()
	inputs := testInputs(windowagg.Node{ID: "7", Config: windowagg.NodeConfig{Rules: []string{"r9"}}})
	inputs.Edges = nil

	b := bridge.New()
	require.NoError(t, b.SetInputs(context.Background(), inputs))
	c := New(gw, b)
	t.Cleanup(c.Close)
	require.NoError(t, c.Load(context.Background()))

	err := c.Save(context.Background(), "totals", "")
	require.Error(t, err)
	assert.Equal(t, windowagg.ErrCodeEdgeNotFound, windowagg.Code(err))
	assert.Equal(t, StateEditing, c.State())
	assert.Zero(t, gw.count("update_rule"))
	assert.Zero(t, gw.count("update_edge"))
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateLoading, StateBootstrapping))
	assert.True(t, CanTransition(StateSaveFailed, StateEditing))
	assert.False(t, CanTransition(StateLoadFailed, StateReady))
	assert.False(t, CanTransition(StateSaved, StateLoading))
	assert.False(t, StateValidatingForSave.Editable())
}

func TestSplitProjection(t *testing.T) {
	tests := []struct {
		in         string
		expr, name string
		ok         bool
	}{
		{"SUM(a) AS total", "SUM(a)", "total", true},
		{"sum(a) as total", "sum(a)", "total", true},
		{"CONCAT(a, b) AS x AS y", "CONCAT(a, b) AS x", "y", true},
		{"b.c", "", "", false},
		{"SUM(a) AS ", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			expr, name, ok := SplitProjection(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expr, expr)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestWithConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Editor.TransformStreamPrefix = "agg_out_"
	cfg.Editor.NotifierStreamPrefix = "agg_notify_"
	cfg.Editor.DefaultParallelism = 2
	cfg.Retry.MaxRetries = 3
	cfg.Retry.Base = 0

	gw := newFakeGateway()
	b := bridge.New()
	require.NoError(t, b.SetInputs(context.Background(),
		testInputs(windowagg.Node{ID: "7", Config: windowagg.NodeConfig{Rules: []string{"gone"}}})))
	c := New(gw, b, WithConfig(cfg))
	t.Cleanup(c.Close)

	assert.Equal(t, 2, c.Snapshot().Parallelism)
	require.Error(t, c.Load(context.Background()))
	assert.Equal(t, 1, gw.count("get_rule"))

	gw.mu.Lock()
	gw.rules["gone"] = storedRule()
	gw.mu.Unlock()
	require.NoError(t, c.Load(context.Background()))

	out, _, ok := b.Output()
	require.True(t, ok)
	assert.Equal(t, "agg_out_7", out.StreamID)
}
