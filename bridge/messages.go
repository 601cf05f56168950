package bridge

import (
	"github.com/goliatone/go-errors"

	windowagg "github.com/goliatone/go-windowagg"
)

// StreamOption is one upstream stream offered to the node.
type StreamOption struct {
	StreamID string               `json:"streamId"`
	Fields   []windowagg.FieldKey `json:"fields"`
}

// InputsAvailable is sent once the parent knows the upstream streams of
// the node being edited.
type InputsAvailable struct {
	Streams []StreamOption
	Node    windowagg.Node
	Edges   []windowagg.Edge
}

func (InputsAvailable) Type() string { return "bridge.inputs_available" }

func (m InputsAvailable) Validate() error {
	if m.Node.ID == "" {
		return errors.New("processor node id is required", errors.CategoryValidation).
			WithTextCode("MISSING_NODE")
	}
	return nil
}

// OutputPublished is sent every time an editor publishes its output stream.
type OutputPublished struct {
	Source  string
	Output  windowagg.OutputStream
	Version uint64
}

func (OutputPublished) Type() string { return "bridge.output_published" }

func (m OutputPublished) Validate() error {
	if m.Output.StreamID == "" {
		return errors.New("output stream id is required", errors.CategoryValidation).
			WithTextCode("MISSING_STREAM")
	}
	return nil
}

func cloneInputs(m InputsAvailable) InputsAvailable {
	out := InputsAvailable{Node: m.Node.Clone()}
	if m.Streams != nil {
		out.Streams = make([]StreamOption, len(m.Streams))
		for i, s := range m.Streams {
			fields := make([]windowagg.FieldKey, len(s.Fields))
			for j, f := range s.Fields {
				fields[j] = f.Clone()
			}
			out.Streams[i] = StreamOption{StreamID: s.StreamID, Fields: fields}
		}
	}
	if m.Edges != nil {
		out.Edges = make([]windowagg.Edge, len(m.Edges))
		for i, e := range m.Edges {
			e.StreamGrouping.Fields = append([]string(nil), e.StreamGrouping.Fields...)
			out.Edges[i] = e
		}
	}
	return out
}
