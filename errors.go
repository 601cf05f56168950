package windowagg

import (
	stderrors "errors"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeLoadFailed          = "LOAD_FAILED"
	ErrCodeDuplicateField      = "SCHEMA_DUPLICATE_FIELD"
	ErrCodeUnresolvedPath      = "SCHEMA_UNRESOLVED_PATH"
	ErrCodeExpressionSyntax    = "EXPRESSION_SYNTAX"
	ErrCodeArgumentOnly        = "EXPRESSION_ARGUMENT_ONLY"
	ErrCodeUnknownFunction     = "EXPRESSION_UNKNOWN_FUNCTION"
	ErrCodeUnresolvedArgument  = "EXPRESSION_UNRESOLVED_ARGUMENT"
	ErrCodeArgumentType        = "EXPRESSION_ARGUMENT_TYPE"
	ErrCodeIncompleteRow       = "STRUCTURAL_INCOMPLETE_ROW"
	ErrCodeMissingWindowLength = "STRUCTURAL_MISSING_WINDOW_LENGTH"
	ErrCodeMissingLag          = "STRUCTURAL_MISSING_LAG"
	ErrCodeInvalidSlide        = "STRUCTURAL_INVALID_SLIDE"
	ErrCodeUnknownInterval     = "SCHEMA_UNKNOWN_INTERVAL"
	ErrCodeEdgeNotFound        = "STRUCTURAL_EDGE_NOT_FOUND"
	ErrCodePendingTypeError    = "STRUCTURAL_PENDING_TYPE_ERROR"
	ErrCodePersistFailed       = "PERSIST_FAILED"
	ErrCodeInvalidTransition   = "FORM_INVALID_TRANSITION"
	ErrCodeValidationStale     = "VALIDATION_SUPERSEDED"
	ErrCodeVersionConflict     = "BRIDGE_VERSION_CONFLICT"
)

// ArgumentOnlyMessage is reported for expressions without an enclosing
// function call.
const ArgumentOnlyMessage = "only arguments are not allowed; a parent function is mandatory"

var (
	// ErrLoad marks a failed catalog or rule fetch. The form cannot reach Ready.
	ErrLoad = errors.New("failed to load form data", errors.CategoryExternal).
		WithTextCode(ErrCodeLoadFailed)

	// ErrSchema marks duplicate output names or unresolved key paths.
	ErrSchema = errors.New("invalid output schema", errors.CategoryValidation).
			WithTextCode(ErrCodeDuplicateField)

	// ErrExpression marks a syntactic or semantic failure in an authored expression.
	ErrExpression = errors.New("invalid expression", errors.CategoryValidation).
			WithTextCode(ErrCodeExpressionSyntax)

	// ErrStructural marks form states that disable the save action.
	ErrStructural = errors.New("form is incomplete", errors.CategoryBadInput).
			WithTextCode(ErrCodeIncompleteRow)

	// ErrPersist marks a failed save request.
	ErrPersist = errors.New("failed to persist configuration", errors.CategoryExternal).
			WithTextCode(ErrCodePersistFailed)

	ErrInvalidTransition = errors.New("invalid form transition", errors.CategoryConflict).
				WithTextCode(ErrCodeInvalidTransition)

	ErrValidationStale = errors.New("validation batch superseded", errors.CategoryConflict).
				WithTextCode(ErrCodeValidationStale)

	ErrVersionConflict = errors.New("context version conflict", errors.CategoryConflict).
				WithTextCode(ErrCodeVersionConflict)
)

// NewError clones base, overriding its text code and message when given.
func NewError(base *errors.Error, code, message string, source error, metadata map[string]any) *errors.Error {
	if base == nil {
		base = ErrStructural
	}
	err := base.Clone()
	if code = strings.TrimSpace(code); code != "" {
		err.TextCode = code
	}
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// Code returns the text code of the first go-errors error in err's chain.
func Code(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether any error in err's tree, including joined
// errors, carries code.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if ge, ok := err.(*errors.Error); ok {
		if ge.TextCode == code {
			return true
		}
		if ge.Source != nil && HasCode(ge.Source, code) {
			return true
		}
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if HasCode(e, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		if _, ok := err.(*errors.Error); ok {
			return false
		}
		return HasCode(x.Unwrap(), code)
	}
	return false
}

// ErrorMessage returns the user facing message of err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ge *errors.Error
	if stderrors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return err.Error()
}
