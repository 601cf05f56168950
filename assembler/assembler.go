// Package assembler turns the editable state of a window node into the
// rule, node and edge bodies that are persisted on save.
package assembler

import (
	"fmt"
	"slices"
	"strings"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/schema"
	"github.com/goliatone/go-windowagg/window"
)

const (
	DefaultTransformPrefix = "window_transform_stream_"
	DefaultNotifierPrefix  = "window_notifier_stream_"
)

// Input is everything the save needs from the editor.
type Input struct {
	Rule        windowagg.RuleNode
	Node        windowagg.Node
	Name        string
	Description string
	Parallelism int

	// StreamIDs are the upstream stream ids in the order the parent offered them.
	StreamIDs []string
	Edges     []windowagg.Edge
	Keys      *schema.KeyCatalog

	GroupKeys []string
	Computed  []windowagg.ComputedField
	Window    window.Form
}

// Artifacts are the three bodies written on save.
type Artifacts struct {
	Rule   windowagg.RuleNode
	Node   windowagg.Node
	EdgeID string
	Edge   windowagg.EdgeUpdate
	Schema windowagg.OutputSchema
}

type Option func(*Assembler)

// WithStreamPrefixes overrides the prefixes of the generated output stream ids.
func WithStreamPrefixes(transform, notifier string) Option {
	return func(a *Assembler) {
		if transform != "" {
			a.transformPrefix = transform
		}
		if notifier != "" {
			a.notifierPrefix = notifier
		}
	}
}

type Assembler struct {
	transformPrefix string
	notifierPrefix  string
}

func New(opts ...Option) *Assembler {
	a := &Assembler{
		transformPrefix: DefaultTransformPrefix,
		notifierPrefix:  DefaultNotifierPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Assemble uses the default stream prefixes.
func Assemble(in Input) (Artifacts, error) {
	return New().Assemble(in)
}

// OutputStreamIDs returns the ids of the streams the node emits.
func (a *Assembler) OutputStreamIDs(nodeID string) []string {
	return []string{a.transformPrefix + nodeID, a.notifierPrefix + nodeID}
}

// Assemble builds the artifacts. Nothing is written: a missing inbound edge
// or an incomplete form fails here, before any request is made.
func (a *Assembler) Assemble(in Input) (Artifacts, error) {
	if len(in.StreamIDs) == 0 || in.StreamIDs[0] == "" {
		return Artifacts{}, windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeEdgeNotFound,
			"no upstream stream is connected", nil, map[string]any{"node_id": in.Node.ID})
	}
	streamID := in.StreamIDs[0]

	edge, ok := inboundEdge(in.Edges, streamID)
	if !ok {
		return Artifacts{}, windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeEdgeNotFound,
			fmt.Sprintf("no inbound edge carries stream %s", streamID), nil,
			map[string]any{"node_id": in.Node.ID, "stream_id": streamID})
	}

	projections, groupBy, err := Projections(in.GroupKeys, in.Computed)
	if err != nil {
		return Artifacts{}, err
	}

	spec, err := in.Window.Spec()
	if err != nil {
		return Artifacts{}, err
	}
	stored, err := spec.ToStorage()
	if err != nil {
		return Artifacts{}, err
	}

	out, err := schema.Project(groupBy, in.Computed, in.Keys)
	if err != nil {
		return Artifacts{}, err
	}

	rule := in.Rule
	rule.Projections = projections
	rule.GroupByKeys = groupBy
	rule.Streams = []string{streamID}
	rule.OutputStreams = a.OutputStreamIDs(in.Node.ID)
	rule.Window = &stored
	if rule.Actions == nil {
		rule.Actions = []any{}
	}

	return Artifacts{
		Rule:   rule,
		Node:   a.node(in, out),
		EdgeID: edge.ID,
		Edge: windowagg.EdgeUpdate{
			FromID: edge.FromID,
			ToID:   edge.ToID,
			StreamGroupings: []windowagg.StreamGrouping{{
				StreamID: streamID,
				Grouping: windowagg.GroupingFields,
				Fields:   append([]string{}, groupBy...),
			}},
		},
		Schema: out,
	}, nil
}

// Projections lists the group key paths followed by one "<expr> AS <name>"
// entry per complete computed row. Placeholder rows are skipped; a row with
// only one side filled in is an error.
func Projections(groupKeys []string, computed []windowagg.ComputedField) ([]windowagg.Projection, []string, error) {
	groupBy := schema.NormalizePaths(groupKeys)
	out := make([]windowagg.Projection, 0, len(groupBy)+len(computed))
	for _, p := range groupBy {
		out = append(out, windowagg.Projection{Expr: p})
	}
	for i, c := range computed {
		if c.IsPlaceholder() {
			continue
		}
		if !c.IsComplete() {
			return nil, nil, IncompleteRow(i, c)
		}
		out = append(out, windowagg.Projection{
			Expr: strings.TrimSpace(c.Expression) + " AS " + strings.TrimSpace(c.OutputName),
		})
	}
	return out, groupBy, nil
}

// IncompleteRow reports a row with an expression but no name, or the reverse.
func IncompleteRow(index int, c windowagg.ComputedField) error {
	missing := "output name"
	if strings.TrimSpace(c.Expression) == "" {
		missing = "expression"
	}
	return windowagg.NewError(windowagg.ErrStructural, windowagg.ErrCodeIncompleteRow,
		fmt.Sprintf("row %d is missing its %s", index+1, missing), nil,
		map[string]any{"row": index, "missing": missing})
}

func (a *Assembler) node(in Input, out windowagg.OutputSchema) windowagg.Node {
	node := in.Node.Clone()
	node.Name = in.Name
	node.Description = in.Description
	node.Config.Parallelism = max(in.Parallelism, 1)
	if in.Rule.ID != "" && !slices.Contains(node.Config.Rules, in.Rule.ID) {
		node.Config.Rules = append(node.Config.Rules, in.Rule.ID)
	}

	if len(node.OutputStreams) == 0 {
		for _, id := range a.OutputStreamIDs(node.ID) {
			node.OutputStreams = append(node.OutputStreams, windowagg.OutputStream{StreamID: id})
		}
	}
	for i := range node.OutputStreams {
		node.OutputStreams[i].Fields = out.Clone()
	}
	return node
}

func inboundEdge(edges []windowagg.Edge, streamID string) (windowagg.Edge, bool) {
	for _, e := range edges {
		if e.StreamGrouping.StreamID == streamID {
			return e, true
		}
	}
	return windowagg.Edge{}, false
}
