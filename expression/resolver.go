package expression

import (
	"fmt"
	"strings"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/catalog"
	"github.com/goliatone/go-windowagg/schema"
)

// DefaultReturnType is used when neither the function nor its arguments
// give a type.
const DefaultReturnType = windowagg.TypeDouble

// Resolver infers the return type of expressions from the function catalog
// and the upstream keys.
type Resolver struct {
	Functions *catalog.Catalog
	Keys      *schema.KeyCatalog
	Parser    *Parser
}

// ResolveType is the synchronous best effort used while typing and on
// hydrate. Expressions that do not parse resolve to an unset type with no
// error; unknown functions and unknown fields fall back to the argument
// type or DefaultReturnType. Only argument type mismatches are reported.
func (r Resolver) ResolveType(expr string) (windowagg.FieldType, error) {
	if strings.TrimSpace(expr) == "" {
		return windowagg.TypeUnset, nil
	}
	call, err := r.Parser.Parse(expr)
	if err != nil {
		return windowagg.TypeUnset, nil
	}
	return r.resolveCall(expr, call, false)
}

func (r Resolver) resolveCall(expr string, call *Call, strict bool) (windowagg.FieldType, error) {
	fn, known := r.Functions.Lookup(call.Name)
	if !known && strict {
		return windowagg.TypeUnset, windowagg.NewError(windowagg.ErrExpression, windowagg.ErrCodeUnknownFunction,
			fmt.Sprintf("unknown function %s", call.Name), nil,
			map[string]any{"expression": expr, "function": call.Name})
	}

	first := windowagg.TypeUnset
	for i, arg := range call.Args {
		var t windowagg.FieldType
		switch arg.Kind {
		case ArgLiteral:
			continue
		case ArgCall:
			nested, err := r.resolveCall(expr, arg.Call, strict)
			if err != nil {
				return windowagg.TypeUnset, err
			}
			t = nested
		case ArgField:
			key, ok := r.Keys.Lookup(arg.Path)
			if !ok {
				if strict {
					return windowagg.TypeUnset, windowagg.NewError(windowagg.ErrExpression, windowagg.ErrCodeUnresolvedArgument,
						fmt.Sprintf("unknown field %s", arg.Path), nil,
						map[string]any{"expression": expr, "argument": arg.Path})
				}
				continue
			}
			t = key.Type
		}

		if known && !catalog.Accepts(fn, t) {
			return fallback(fn, first, t), windowagg.NewError(windowagg.ErrExpression, windowagg.ErrCodeArgumentType,
				fmt.Sprintf("%s does not accept %s arguments", r.Functions.DisplayName(fn.Name), t), nil,
				map[string]any{
					"expression": expr,
					"function":   fn.Name,
					"argument":   i,
					"type":       t,
					"accepted":   fn.ArgTypes,
				})
		}
		if first == windowagg.TypeUnset {
			first = t
		}
	}
	return fallback(fn, first, windowagg.TypeUnset), nil
}

func fallback(fn windowagg.Function, first, current windowagg.FieldType) windowagg.FieldType {
	switch {
	case fn.ReturnType != windowagg.TypeUnset:
		return fn.ReturnType
	case first != windowagg.TypeUnset:
		return first
	case current != windowagg.TypeUnset:
		return current
	}
	return DefaultReturnType
}
