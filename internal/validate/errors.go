// Package validate turns untyped inbound payloads into typed values. Every
// parser is total and side-effect free: it returns either the accepted value
// or a single *Error naming the first offending field.
package validate

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonRequired         Reason = "required"
	ReasonType             Reason = "type"
	ReasonRange            Reason = "range"
	ReasonLength           Reason = "length"
	ReasonEnum             Reason = "enum"
	ReasonUnknownReference Reason = "unknown_reference"
	ReasonDuplicate        Reason = "duplicate"
	ReasonMalformed        Reason = "malformed"
)

// Error is a rejected payload.
type Error struct {
	Field   string
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fail(field string, reason Reason, format string, args ...any) *Error {
	return &Error{Field: field, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into a validation error if it is one.
func AsError(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
