package schema

import (
	"errors"
	"fmt"
	"strings"

	windowagg "github.com/goliatone/go-windowagg"
)

type selNode struct {
	key      windowagg.FieldKey
	full     bool
	children []*selNode
}

func (n *selNode) child(name string) *selNode {
	for _, c := range n.children {
		if c.key.Name == name {
			return c
		}
	}
	return nil
}

func (n *selNode) fields() []windowagg.FieldKey {
	out := make([]windowagg.FieldKey, 0, len(n.children))
	for _, c := range n.children {
		if c.full {
			out = append(out, c.key.Clone())
			continue
		}
		k := c.key
		k.Fields = nil
		if len(c.children) > 0 {
			k.Fields = c.fields()
		}
		out = append(out, k)
	}
	return out
}

// SelectionTree rebuilds the hierarchy of the selected keys. Selecting a
// record carries its whole subtree; selecting leaves under a record keeps
// only those leaves below a shared parent. Top level order follows the
// first selection that touches each branch. Unknown paths are skipped and
// reported.
func SelectionTree(paths []string, keys *KeyCatalog) ([]windowagg.FieldKey, error) {
	root := &selNode{}
	var unresolved []string
	for _, p := range NormalizePaths(paths) {
		chain, ok := keys.resolve(p)
		if !ok {
			unresolved = append(unresolved, p)
			continue
		}
		cur := root
		for i, k := range chain {
			next := cur.child(k.Name)
			if next == nil {
				next = &selNode{key: k}
				cur.children = append(cur.children, next)
			}
			if next.full {
				break
			}
			if i == len(chain)-1 && k.Type == windowagg.TypeNested {
				next.full = true
				next.children = nil
				next.key = k.Clone()
			}
			cur = next
		}
	}

	tree := root.fields()
	if len(unresolved) > 0 {
		return tree, windowagg.NewError(windowagg.ErrSchema, windowagg.ErrCodeUnresolvedPath,
			fmt.Sprintf("unknown key path: %s", strings.Join(unresolved, ", ")), nil,
			map[string]any{"paths": unresolved})
	}
	return tree, nil
}

// ProjectKeys converts selected keys into output fields, level by level.
func ProjectKeys(keys []windowagg.FieldKey) windowagg.OutputSchema {
	out := make(windowagg.OutputSchema, 0, len(keys))
	for _, k := range keys {
		f := windowagg.OutputField{Name: k.Name, Type: k.Type, Optional: k.Optional}
		if k.Type == windowagg.TypeNested && len(k.Fields) > 0 {
			f.Fields = ProjectKeys(k.Fields)
		}
		out = append(out, f)
	}
	return out
}

// ProjectComputed converts authored rows into output fields. Placeholder
// rows and rows without an output name are left out.
func ProjectComputed(computed []windowagg.ComputedField) windowagg.OutputSchema {
	out := make(windowagg.OutputSchema, 0, len(computed))
	for _, c := range computed {
		name := strings.TrimSpace(c.OutputName)
		if c.IsPlaceholder() || name == "" {
			continue
		}
		out = append(out, windowagg.OutputField{Name: name, Type: c.ResolvedType, Optional: false})
	}
	return out
}

// Project derives the output schema: the selected group keys in selection
// order followed by the computed fields in authoring order. The schema is
// returned even when an error is, so the editor can keep showing it.
func Project(groupKeys []string, computed []windowagg.ComputedField, keys *KeyCatalog) (windowagg.OutputSchema, error) {
	tree, treeErr := SelectionTree(groupKeys, keys)
	out := append(ProjectKeys(tree), ProjectComputed(computed)...)
	return out, errors.Join(treeErr, CheckUnique(out))
}

// CheckUnique reports duplicate sibling names as a schema error.
func CheckUnique(s windowagg.OutputSchema) error {
	dups := s.Duplicates()
	if len(dups) == 0 {
		return nil
	}
	return windowagg.NewError(windowagg.ErrSchema, windowagg.ErrCodeDuplicateField,
		fmt.Sprintf("duplicate output field: %s", strings.Join(dups, ", ")), nil,
		map[string]any{"fields": dups})
}
