package schema

import (
	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/window"
)

// KeyCatalog is the set of upstream fields an operator can pick from.
type KeyCatalog struct {
	fields []windowagg.FieldKey
}

// KeyOption is one row of the flattened key list. Group rows are nested
// records; their children follow at Level+1.
type KeyOption struct {
	Path  string              `json:"path"`
	Name  string              `json:"name"`
	Level int                 `json:"level"`
	Type  windowagg.FieldType `json:"type"`
	Group bool                `json:"group"`
}

// NewKeyCatalog unions the field lists of every upstream stream by name.
// When two streams declare the same top level name the first one wins.
func NewKeyCatalog(streams ...[]windowagg.FieldKey) *KeyCatalog {
	k := &KeyCatalog{}
	seen := make(map[string]struct{})
	for _, fields := range streams {
		for _, f := range fields {
			if f.Name == "" {
				continue
			}
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			k.fields = append(k.fields, f.Clone())
		}
	}
	return k
}

// Fields returns a deep copy of the top level fields.
func (k *KeyCatalog) Fields() []windowagg.FieldKey {
	if k == nil {
		return nil
	}
	out := make([]windowagg.FieldKey, len(k.fields))
	for i, f := range k.fields {
		out[i] = f.Clone()
	}
	return out
}

// Len returns the number of top level fields.
func (k *KeyCatalog) Len() int {
	if k == nil {
		return 0
	}
	return len(k.fields)
}

// Lookup resolves a dotted or bracket path.
func (k *KeyCatalog) Lookup(path string) (windowagg.FieldKey, bool) {
	chain, ok := k.resolve(path)
	if !ok {
		return windowagg.FieldKey{}, false
	}
	return chain[len(chain)-1].Clone(), true
}

// resolve returns every key along path, root first.
func (k *KeyCatalog) resolve(path string) ([]windowagg.FieldKey, bool) {
	if k == nil {
		return nil, false
	}
	parts := SplitPath(NormalizePath(path))
	if len(parts) == 0 {
		return nil, false
	}
	chain := make([]windowagg.FieldKey, 0, len(parts))
	level := k.fields
	for _, name := range parts {
		found := false
		for _, f := range level {
			if f.Name == name {
				chain = append(chain, f)
				level = f.Fields
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return chain, true
}

// Flatten lists every key depth first with its nesting level.
func (k *KeyCatalog) Flatten() []KeyOption {
	if k == nil {
		return nil
	}
	var out []KeyOption
	var walk func(fields []windowagg.FieldKey, prefix string, level int)
	walk = func(fields []windowagg.FieldKey, prefix string, level int) {
		for _, f := range fields {
			path := f.Name
			if prefix != "" {
				path = JoinPath(prefix, f.Name)
			}
			group := f.Type == windowagg.TypeNested
			out = append(out, KeyOption{Path: path, Name: f.Name, Level: level, Type: f.Type, Group: group})
			if group {
				walk(f.Fields, path, level+1)
			}
		}
	}
	walk(k.fields, "", 0)
	return out
}

// LeafPaths returns the paths of every non record key.
func (k *KeyCatalog) LeafPaths() []string {
	var out []string
	for _, opt := range k.Flatten() {
		if !opt.Group {
			out = append(out, opt.Path)
		}
	}
	return out
}

// TimestampCandidates lists integral keys that can carry event time,
// followed by the processing time option.
func TimestampCandidates(k *KeyCatalog) []KeyOption {
	var out []KeyOption
	for _, opt := range k.Flatten() {
		if !opt.Group && opt.Type.IsIntegral() {
			out = append(out, opt)
		}
	}
	return append(out, KeyOption{Path: window.ProcessingTime, Name: window.ProcessingTime})
}
