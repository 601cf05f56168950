package expression

import (
	"fmt"
	"strings"

	"github.com/antonmedv/expr/ast"
	"github.com/antonmedv/expr/parser"
	lru "github.com/hashicorp/golang-lru/v2"

	windowagg "github.com/goliatone/go-windowagg"
	"github.com/goliatone/go-windowagg/schema"
)

// ArgKind tells what an argument of a call refers to.
type ArgKind int

const (
	ArgField ArgKind = iota
	ArgLiteral
	ArgCall
)

// Arg is one argument of a function call.
type Arg struct {
	Kind ArgKind
	// Path is the dotted field path of an ArgField.
	Path string
	// Literal is the type of an ArgLiteral.
	Literal windowagg.FieldType
	Call    *Call
}

// Call is a parsed function invocation.
type Call struct {
	Name string
	Args []Arg
}

// Fields returns the field paths referenced by the call, nested calls
// included, in source order.
func (c *Call) Fields() []string {
	var out []string
	for _, a := range c.Args {
		switch a.Kind {
		case ArgField:
			out = append(out, a.Path)
		case ArgCall:
			out = append(out, a.Call.Fields()...)
		}
	}
	return out
}

// Parse parses an aggregate expression. The expression must be a single
// function call; bare arguments are rejected.
func Parse(expr string) (*Call, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return nil, syntaxError(expr, "expression is required", nil)
	}
	if !strings.Contains(src, "(") {
		return nil, argumentOnly(expr)
	}

	tree, err := parser.Parse(renameBuiltinCalls(src))
	if err != nil {
		return nil, syntaxError(expr, fmt.Sprintf("invalid expression: %s", firstLine(err.Error())), err)
	}

	call, ok, err := toCall(tree.Node)
	if err != nil {
		return nil, syntaxError(expr, err.Error(), nil)
	}
	if !ok {
		if _, isArg := fieldPath(tree.Node); isArg || isLiteral(tree.Node) {
			return nil, argumentOnly(expr)
		}
		return nil, syntaxError(expr, "expression must be a single function call", nil)
	}
	return call, nil
}

func toCall(n ast.Node) (*Call, bool, error) {
	var name string
	var args []ast.Node
	switch v := n.(type) {
	case *ast.FunctionNode:
		name, args = v.Name, v.Arguments
	case *ast.BuiltinNode:
		name, args = v.Name, v.Arguments
	default:
		return nil, false, nil
	}
	name = strings.TrimPrefix(name, builtinPrefix)

	call := &Call{Name: name, Args: make([]Arg, 0, len(args))}
	for _, a := range args {
		arg, err := toArg(a)
		if err != nil {
			return nil, true, err
		}
		call.Args = append(call.Args, arg)
	}
	return call, true, nil
}

func toArg(n ast.Node) (Arg, error) {
	if call, ok, err := toCall(n); ok || err != nil {
		if err != nil {
			return Arg{}, err
		}
		return Arg{Kind: ArgCall, Call: call}, nil
	}
	if path, ok := fieldPath(n); ok {
		return Arg{Kind: ArgField, Path: path}, nil
	}
	switch n.(type) {
	case *ast.StringNode:
		return Arg{Kind: ArgLiteral, Literal: windowagg.TypeString}, nil
	case *ast.IntegerNode:
		return Arg{Kind: ArgLiteral, Literal: windowagg.TypeLong}, nil
	case *ast.FloatNode:
		return Arg{Kind: ArgLiteral, Literal: windowagg.TypeDouble}, nil
	}
	return Arg{}, fmt.Errorf("unsupported argument %T", n)
}

// fieldPath renders identifiers, property access and string indexing as a
// dotted path.
func fieldPath(n ast.Node) (string, bool) {
	switch v := n.(type) {
	case *ast.IdentifierNode:
		return v.Value, true
	case *ast.PropertyNode:
		parent, ok := fieldPath(v.Node)
		if !ok {
			return "", false
		}
		return schema.JoinPath(parent, v.Property), true
	case *ast.IndexNode:
		parent, ok := fieldPath(v.Node)
		if !ok {
			return "", false
		}
		key, ok := v.Index.(*ast.StringNode)
		if !ok {
			return "", false
		}
		return schema.JoinPath(parent, key.Value), true
	}
	return "", false
}

// expr reserves these names for its own builtins, most of which take a
// predicate closure. Catalog functions may share them.
var exprBuiltins = map[string]bool{
	"len": true, "all": true, "none": true, "any": true,
	"one": true, "filter": true, "map": true, "count": true,
}

const builtinPrefix = "_wa0_"

// renameBuiltinCalls prefixes calls to expr builtins so they parse as plain
// function calls. String literals and property access are left alone.
func renameBuiltinCalls(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			end := skipString(src, i)
			b.WriteString(src[i:end])
			i = end
		case isIdentStart(c):
			end := i + 1
			for end < len(src) && isIdentPart(src[end]) {
				end++
			}
			word := src[i:end]
			if exprBuiltins[word] && !afterDot(src, i) && beforeParen(src, end) {
				b.WriteString(builtinPrefix)
			}
			b.WriteString(word)
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func skipString(src string, start int) int {
	quote := src[start]
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			if quote != '`' {
				i++
			}
		case quote:
			return i + 1
		}
	}
	return len(src)
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}

func afterDot(src string, i int) bool {
	for i--; i >= 0; i-- {
		if src[i] != ' ' && src[i] != '\t' {
			return src[i] == '.'
		}
	}
	return false
}

func beforeParen(src string, i int) bool {
	for ; i < len(src); i++ {
		if src[i] != ' ' && src[i] != '\t' {
			return src[i] == '('
		}
	}
	return false
}

func isLiteral(n ast.Node) bool {
	switch n.(type) {
	case *ast.StringNode, *ast.IntegerNode, *ast.FloatNode:
		return true
	}
	return false
}

func argumentOnly(expr string) error {
	return windowagg.NewError(windowagg.ErrExpression, windowagg.ErrCodeArgumentOnly,
		windowagg.ArgumentOnlyMessage, nil, map[string]any{"expression": expr})
}

func syntaxError(expr, msg string, source error) error {
	return windowagg.NewError(windowagg.ErrExpression, windowagg.ErrCodeExpressionSyntax,
		msg, source, map[string]any{"expression": expr})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

type parsed struct {
	call *Call
	err  error
}

// Parser memoises parse results. It is safe for concurrent use.
type Parser struct {
	cache *lru.Cache[string, parsed]
}

// NewParser returns a parser caching up to size expressions. A size below
// one disables the cache.
func NewParser(size int) *Parser {
	if size < 1 {
		return &Parser{}
	}
	cache, err := lru.New[string, parsed](size)
	if err != nil {
		return &Parser{}
	}
	return &Parser{cache: cache}
}

// Parse returns the cached result for expr or parses it.
func (p *Parser) Parse(expr string) (*Call, error) {
	if p == nil || p.cache == nil {
		return Parse(expr)
	}
	key := strings.TrimSpace(expr)
	if hit, ok := p.cache.Get(key); ok {
		return hit.call, hit.err
	}
	call, err := Parse(key)
	p.cache.Add(key, parsed{call: call, err: err})
	return call, err
}

// Len returns the number of cached expressions.
func (p *Parser) Len() int {
	if p == nil || p.cache == nil {
		return 0
	}
	return p.cache.Len()
}
