package modelspec

import "fmt"

// SpecError reports a malformed model specification. It always identifies
// the offending field so the caller can surface an actionable message.
type SpecError struct {
	Field string
	Msg   string
}

// Error implements the error interface for SpecError.
func (e *SpecError) Error() string {
	return fmt.Sprintf("model spec: %s: %s", e.Field, e.Msg)
}

func specErrorf(field, format string, args ...any) *SpecError {
	return &SpecError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
