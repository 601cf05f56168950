package catalog

import (
	windowagg "github.com/goliatone/go-windowagg"
)

// HintKind tells the editor how to present a completion hint.
type HintKind string

const (
	HintFunction HintKind = "FUNCTION"
	HintArgument HintKind = "ARGS"
)

// Hint is one completion entry for the expression editor.
type Hint struct {
	Text        string              `json:"text"`
	DisplayText string              `json:"displayText"`
	Kind        HintKind            `json:"kind"`
	Type        windowagg.FieldType `json:"type,omitempty"`
}

// FunctionHints returns one hint per catalog function, in catalog order.
func (c *Catalog) FunctionHints() []Hint {
	if c == nil {
		return nil
	}
	hints := make([]Hint, 0, len(c.functions))
	for _, fn := range c.functions {
		hints = append(hints, Hint{
			Text:        fn.Name + "(",
			DisplayText: fn.DisplayName,
			Kind:        HintFunction,
			Type:        fn.ReturnType,
		})
	}
	return hints
}

// ArgumentHints returns one hint per field path.
func ArgumentHints(paths []string, types []windowagg.FieldType) []Hint {
	hints := make([]Hint, 0, len(paths))
	for i, p := range paths {
		h := Hint{Text: p, DisplayText: p, Kind: HintArgument}
		if i < len(types) {
			h.Type = types[i]
		}
		hints = append(hints, h)
	}
	return hints
}
