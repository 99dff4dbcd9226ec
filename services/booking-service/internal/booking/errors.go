package booking

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindOrganizationNotFound  Kind = "organization_not_found"
	KindValidation            Kind = "validation_error"
	KindSlotNoLongerAvailable Kind = "slot_no_longer_available"
	KindProvisioningFailure   Kind = "provisioning_failure"
	KindNetwork               Kind = "network_error"
	KindNotFound              Kind = "not_found"
	KindInvalidArgument       Kind = "invalid_argument"
)

// Error is the typed failure returned by the booking operations. Field is the
// first offending field of a validation error; Fields lists all of them.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func organizationNotFound(slug string, err error) *Error {
	return &Error{Kind: KindOrganizationNotFound, Message: "organization " + slug + " not found", Err: err}
}

func slotNoLongerAvailable(err error) *Error {
	return &Error{
		Kind:    KindSlotNoLongerAvailable,
		Message: "That time is no longer available. Please pick another slot.",
		Err:     err,
	}
}

func validationError(fields []string, message string) *Error {
	e := &Error{Kind: KindValidation, Message: message, Fields: fields}
	if len(fields) > 0 {
		e.Field = fields[0]
	}
	return e
}
