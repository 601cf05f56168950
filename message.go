package windowagg

import (
	"reflect"

	"github.com/goliatone/go-errors"
)

// Message is implemented by everything sent through the editor context
type Message interface {
	Type() string
	Validate() error
}

func IsNilMessage(msg any) bool {
	if msg == nil {
		return true
	}

	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Ptr {
		return false
	}

	return v.IsNil()
}

// ValidateMessage rejects nil messages and runs Validate on the rest.
func ValidateMessage(msg any) error {
	if IsNilMessage(msg) {
		return errors.New("nil message pointer", errors.CategoryValidation).
			WithTextCode("INVALID_MESSAGE")
	}

	if m, ok := msg.(Message); ok {
		if err := m.Validate(); err != nil {
			return errors.Wrap(err, errors.CategoryValidation, "message validation failed").
				WithTextCode("VALIDATION_FAILED").
				WithMetadata(map[string]any{"message_type": m.Type()})
		}
	}

	return nil
}
