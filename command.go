package windowagg

import (
	"context"
	"reflect"
	"regexp"
	"strings"
)

// CommandFunc is an adapter that lets you use a function as a Commander[T]
type CommandFunc[T any] func(ctx context.Context, msg T) error

// Execute calls the underlying function
func (f CommandFunc[T]) Execute(ctx context.Context, msg T) error {
	return f(ctx, msg)
}

// Commander executes a side effect for msg, such as a persist request
type Commander[T any] interface {
	Execute(ctx context.Context, msg T) error
}

var snakeCaseRe = regexp.MustCompile("([a-z0-9])([A-Z])")

// GetMessageType returns the Type() of msg when implemented, otherwise a
// snake cased "pkg::type" name derived from its Go type.
func GetMessageType(msg any) string {
	if msg == nil {
		return "unknown_type"
	}

	v := reflect.ValueOf(msg)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return "unknown_type"
	}

	if msgTyper, ok := msg.(interface{ Type() string }); ok {
		return msgTyper.Type()
	}

	t := reflect.TypeOf(msg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	pkgPath := t.PkgPath()
	if pkgPath != "" {
		parts := strings.Split(pkgPath, "/")
		pkgPath = parts[len(parts)-1]
	}

	txName := strings.ToLower(snakeCaseRe.ReplaceAllString(t.Name(), "${1}_${2}"))
	if txName == "" {
		txName = strings.ToLower(t.String())
	}

	if pkgPath == "" {
		return txName
	}
	return pkgPath + "::" + txName
}
