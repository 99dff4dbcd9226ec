package booking

import (
	"regexp"
	"strings"
	"unicode"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	maxNameLen  = 200
	maxNotesLen = 2000
)

// normalize trims the free-text fields in place.
func (r *Request) normalize() {
	r.OrganizationSlug = strings.TrimSpace(r.OrganizationSlug)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.CustomerCompany = strings.TrimSpace(r.CustomerCompany)
	r.CustomerNotes = strings.TrimSpace(r.CustomerNotes)
	r.IdempotencyToken = strings.TrimSpace(r.IdempotencyToken)
}

// validateContact returns nil or a validation error naming every bad field.
func validateContact(r Request) *Error {
	var fields []string
	var msg string
	add := func(field, m string) {
		fields = append(fields, field)
		if msg == "" {
			msg = m
		}
	}

	switch {
	case r.CustomerName == "":
		add("name", "Please enter your name.")
	case len(r.CustomerName) > maxNameLen:
		add("name", "Name is too long.")
	case hasControl(r.CustomerName):
		add("name", "Name contains invalid characters.")
	}
	switch {
	case r.CustomerEmail == "":
		add("email", "Please enter your email address.")
	case !emailPattern.MatchString(r.CustomerEmail):
		add("email", "Please enter a valid email address.")
	}
	if hasControl(r.CustomerPhone) {
		add("phone", "Phone contains invalid characters.")
	}
	if hasControl(r.CustomerCompany) {
		add("company", "Company contains invalid characters.")
	}
	if len(r.CustomerNotes) > maxNotesLen {
		add("notes", "Notes are too long.")
	}

	if len(fields) == 0 {
		return nil
	}
	return validationError(fields, msg)
}

// hasControl reports whether a single-line field carries control characters.
func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
