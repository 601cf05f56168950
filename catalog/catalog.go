package catalog

import (
	"sort"
	"strings"

	windowagg "github.com/goliatone/go-windowagg"
)

// Catalog is the immutable set of functions available to one edit session.
// Lookups are case sensitive first and fall back to a case insensitive match.
type Catalog struct {
	functions []windowagg.Function
	byName    map[string]int
	byFold    map[string]int
}

// New builds a catalog holding every function of the given kind. An empty
// kind keeps all functions. The first definition of a name wins.
func New(functions []windowagg.Function, kind string) *Catalog {
	c := &Catalog{
		byName: make(map[string]int, len(functions)),
		byFold: make(map[string]int, len(functions)),
	}
	for _, fn := range functions {
		if kind != "" && !strings.EqualFold(fn.Kind, kind) {
			continue
		}
		name := strings.TrimSpace(fn.Name)
		if name == "" {
			continue
		}
		if _, exists := c.byName[name]; exists {
			continue
		}
		fn.Name = name
		fn.ArgTypes = append([]windowagg.FieldType(nil), fn.ArgTypes...)
		if fn.DisplayName == "" {
			fn.DisplayName = name
		}
		c.byName[name] = len(c.functions)
		fold := strings.ToLower(name)
		if _, exists := c.byFold[fold]; !exists {
			c.byFold[fold] = len(c.functions)
		}
		c.functions = append(c.functions, fn)
	}
	return c
}

// Aggregates builds a catalog restricted to aggregate functions.
func Aggregates(functions []windowagg.Function) *Catalog {
	return New(functions, windowagg.FunctionKindAggregate)
}

// Lookup finds a function by name.
func (c *Catalog) Lookup(name string) (windowagg.Function, bool) {
	if c == nil {
		return windowagg.Function{}, false
	}
	if i, ok := c.byName[name]; ok {
		return c.functions[i], true
	}
	if i, ok := c.byFold[strings.ToLower(name)]; ok {
		return c.functions[i], true
	}
	return windowagg.Function{}, false
}

// DisplayName returns the display name of a function, or "" when unknown.
func (c *Catalog) DisplayName(name string) string {
	if name == "" {
		return ""
	}
	fn, ok := c.Lookup(name)
	if !ok {
		return ""
	}
	return fn.DisplayName
}

// Len returns the number of functions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.functions)
}

// Functions returns a copy of the functions in catalog order.
func (c *Catalog) Functions() []windowagg.Function {
	if c == nil {
		return nil
	}
	out := make([]windowagg.Function, len(c.functions))
	copy(out, c.functions)
	return out
}

// Names returns the function names sorted alphabetically.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.functions))
	for _, fn := range c.functions {
		names = append(names, fn.Name)
	}
	sort.Strings(names)
	return names
}

// Accepts reports whether fn takes an argument of type t. Functions that
// declare no argument types accept anything, as do unset types.
func Accepts(fn windowagg.Function, t windowagg.FieldType) bool {
	if len(fn.ArgTypes) == 0 || t == windowagg.TypeUnset {
		return true
	}
	for _, at := range fn.ArgTypes {
		if at == t {
			return true
		}
	}
	return false
}
