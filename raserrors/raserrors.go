// Package raserrors holds the error kinds surfaced to callers of the party service.
// Each kind maps to one HTTP status and carries a stable, caller-safe message;
// the underlying cause is kept for logging only.
package raserrors

import (
	"errors"
	"net/http"
)

// Kind is the closed set of failures the service reports
type Kind int

const (
	Internal Kind = iota
	Validation
	DuplicateEmail
	EmailTaken
	UnknownRespondent
	UnknownBusiness
	InvalidEnrolmentCode
	IncompleteEnrolmentContext
	ExpiredToken
	InvalidToken
	Persistence
	RemoteService
)

var kindNames = map[Kind]string{
	Internal:                   "Internal",
	Validation:                 "ValidationError",
	DuplicateEmail:             "DuplicateEmail",
	EmailTaken:                 "EmailTaken",
	UnknownRespondent:          "UnknownRespondent",
	UnknownBusiness:            "UnknownBusiness",
	InvalidEnrolmentCode:       "InvalidEnrolmentCode",
	IncompleteEnrolmentContext: "IncompleteEnrolmentContext",
	ExpiredToken:               "ExpiredToken",
	InvalidToken:               "InvalidToken",
	Persistence:                "PersistenceError",
	RemoteService:              "RemoteServiceError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// StatusCode is the HTTP status reported for the kind
func (k Kind) StatusCode() int {
	switch k {
	case Validation, DuplicateEmail, InvalidEnrolmentCode:
		return http.StatusBadRequest
	case EmailTaken, ExpiredToken:
		return http.StatusConflict
	case UnknownRespondent, UnknownBusiness, InvalidToken:
		return http.StatusNotFound
	case RemoteService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a failure of a known kind
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind with no underlying cause
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind caused by err
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Message returns the caller-safe message for err
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}
