package windowagg

import (
	"strings"
)

// FieldType is the primitive or collection type of a stream field.
type FieldType string

const (
	TypeUnset   FieldType = ""
	TypeBoolean FieldType = "BOOLEAN"
	TypeByte    FieldType = "BYTE"
	TypeShort   FieldType = "SHORT"
	TypeInteger FieldType = "INTEGER"
	TypeLong    FieldType = "LONG"
	TypeFloat   FieldType = "FLOAT"
	TypeDouble  FieldType = "DOUBLE"
	TypeString  FieldType = "STRING"
	TypeBinary  FieldType = "BINARY"
	TypeNested  FieldType = "NESTED"
	TypeArray   FieldType = "ARRAY"
)

// IsNumeric reports whether values of t can feed numeric aggregates.
func (t FieldType) IsNumeric() bool {
	switch t {
	case TypeByte, TypeShort, TypeInteger, TypeLong, TypeFloat, TypeDouble:
		return true
	}
	return false
}

// IsIntegral reports whether t can carry an epoch timestamp.
func (t FieldType) IsIntegral() bool {
	return t == TypeInteger || t == TypeLong
}

// FieldKey is a field of an upstream stream. Nested records carry their
// children in Fields, in declaration order.
type FieldKey struct {
	Name     string     `json:"name" yaml:"name"`
	Type     FieldType  `json:"type" yaml:"type"`
	Optional bool       `json:"optional" yaml:"optional"`
	Fields   []FieldKey `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Clone returns a deep copy of the key and its subtree.
func (f FieldKey) Clone() FieldKey {
	out := f
	if len(f.Fields) > 0 {
		out.Fields = make([]FieldKey, len(f.Fields))
		for i, child := range f.Fields {
			out.Fields[i] = child.Clone()
		}
	}
	return out
}

// ComputedField is one authored aggregate row of the form.
type ComputedField struct {
	Expression   string    `json:"expression"`
	OutputName   string    `json:"outputName"`
	ResolvedType FieldType `json:"resolvedType,omitempty"`
}

// IsPlaceholder reports a row where nothing has been typed yet.
func (c ComputedField) IsPlaceholder() bool {
	return strings.TrimSpace(c.Expression) == "" && strings.TrimSpace(c.OutputName) == ""
}

// IsComplete reports a row with both the expression and the output name set.
func (c ComputedField) IsComplete() bool {
	return strings.TrimSpace(c.Expression) != "" && strings.TrimSpace(c.OutputName) != ""
}

// OutputField is one field of the derived output schema.
type OutputField struct {
	Name     string        `json:"name"`
	Type     FieldType     `json:"type"`
	Optional bool          `json:"optional"`
	Fields   []OutputField `json:"fields,omitempty"`
}

// OutputSchema is the ordered output of the aggregation node.
type OutputSchema []OutputField

// Names returns the top level field names in order.
func (s OutputSchema) Names() []string {
	names := make([]string, 0, len(s))
	for _, f := range s {
		names = append(names, f.Name)
	}
	return names
}

// Duplicates returns the dotted paths of fields that share a name with an
// earlier sibling, at any nesting level.
func (s OutputSchema) Duplicates() []string {
	return duplicateNames(s, "")
}

// Clone returns a deep copy of the schema.
func (s OutputSchema) Clone() OutputSchema {
	if s == nil {
		return nil
	}
	out := make(OutputSchema, len(s))
	for i, f := range s {
		out[i] = f
		if len(f.Fields) > 0 {
			out[i].Fields = OutputSchema(f.Fields).Clone()
		}
	}
	return out
}

func duplicateNames(fields []OutputField, prefix string) []string {
	var dups []string
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		if _, ok := seen[f.Name]; ok {
			dups = append(dups, path)
		}
		seen[f.Name] = struct{}{}
		if len(f.Fields) > 0 {
			dups = append(dups, duplicateNames(f.Fields, path)...)
		}
	}
	return dups
}

// Projection is a persisted rule expression: a bare group key path or a
// computed "<expression> AS <name>" pair.
type Projection struct {
	Expr string `json:"expr"`
}

// Interval classes as persisted by the rule store.
const (
	ClassDuration = "Duration"
	ClassCount    = "Count"
)

// StoredInterval is the persisted shape of a window length or slide.
type StoredInterval struct {
	Class      string `json:"class"`
	DurationMs *int64 `json:"durationMs,omitempty"`
	Count      *int64 `json:"count,omitempty"`
}

// StoredWindow is the persisted window definition of a rule.
type StoredWindow struct {
	WindowLength    StoredInterval  `json:"windowLength"`
	SlidingInterval *StoredInterval `json:"slidingInterval,omitempty"`
	TsField         string          `json:"tsField,omitempty"`
	LagMs           *int64          `json:"lagMs,omitempty"`
}

// RuleNode is the persisted aggregation rule bound to a topology node.
type RuleNode struct {
	ID            string        `json:"id,omitempty"`
	Name          string        `json:"name,omitempty"`
	Description   string        `json:"description,omitempty"`
	Projections   []Projection  `json:"projections"`
	Streams       []string      `json:"streams"`
	OutputStreams []string      `json:"outputStreams"`
	GroupByKeys   []string      `json:"groupByKeys"`
	Actions       []any         `json:"actions,omitempty"`
	Window        *StoredWindow `json:"window,omitempty"`
}

// NodeConfig holds the rule references and parallelism of a node.
type NodeConfig struct {
	Parallelism int      `json:"parallelism"`
	Rules       []string `json:"rules"`
}

// OutputStream is a declared output of a node, or the schema published to
// the editor context.
type OutputStream struct {
	StreamID string       `json:"streamId"`
	Fields   OutputSchema `json:"fields"`
}

// Node is the topology node wrapping the rule.
type Node struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Type          string         `json:"type,omitempty"`
	Config        NodeConfig     `json:"config"`
	OutputStreams []OutputStream `json:"outputStreams"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	out.Config.Rules = append([]string(nil), n.Config.Rules...)
	if n.OutputStreams != nil {
		out.OutputStreams = make([]OutputStream, len(n.OutputStreams))
		for i, s := range n.OutputStreams {
			out.OutputStreams[i] = OutputStream{StreamID: s.StreamID, Fields: s.Fields.Clone()}
		}
	}
	return out
}

// Stream grouping kinds.
const (
	GroupingFields  = "FIELDS"
	GroupingShuffle = "SHUFFLE"
)

// StreamGrouping associates a stream on an edge with its partitioning.
type StreamGrouping struct {
	StreamID string   `json:"streamId"`
	Grouping string   `json:"grouping"`
	Fields   []string `json:"fields,omitempty"`
}

// Edge is an edge of the topology feeding a node.
type Edge struct {
	ID             string         `json:"edgeId"`
	FromID         string         `json:"fromId"`
	ToID           string         `json:"toId"`
	StreamGrouping StreamGrouping `json:"streamGrouping"`
}

// EdgeUpdate is the persisted body of an edge.
type EdgeUpdate struct {
	FromID          string           `json:"fromId"`
	ToID            string           `json:"toId"`
	StreamGroupings []StreamGrouping `json:"streamGroupings"`
}

// Function kinds in the UDF catalog.
const (
	FunctionKindAggregate = "AGGREGATE"
	FunctionKindScalar    = "FUNCTION"
)

// Function describes a catalog function.
type Function struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"displayName"`
	Kind        string      `json:"type"`
	ArgTypes    []FieldType `json:"argTypes,omitempty"`
	ReturnType  FieldType   `json:"returnType,omitempty"`
}
