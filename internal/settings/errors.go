package settings

import "errors"

var (
	// ErrUnknownKey matches every *UnknownKeyError via errors.Is.
	ErrUnknownKey = errors.New("unknown setting key")
	// ErrInvalidValue matches every *InvalidValueError via errors.Is.
	ErrInvalidValue = errors.New("invalid setting value")
)

// UnknownKeyError reports a write to a key missing from the schema. Its
// message is localized for display.
type UnknownKeyError struct {
	Key     string
	Message string
}

func (e *UnknownKeyError) Error() string { return e.Message }

func (e *UnknownKeyError) Is(target error) bool { return target == ErrUnknownKey }

// InvalidValueError reports a raw value the schema does not accept. Allowed
// is nil when the descriptor has no enumerated values and the transform
// rejected the input instead.
type InvalidValueError struct {
	Key     string
	Value   string
	Allowed []string
	Message string
	Err     error
}

func (e *InvalidValueError) Error() string { return e.Message }

func (e *InvalidValueError) Is(target error) bool { return target == ErrInvalidValue }

func (e *InvalidValueError) Unwrap() error { return e.Err }
