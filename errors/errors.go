package errors

import (
	// Go internal packages
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error defines a standard application error.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Wrapped underlying error.
	WrappedErr error `json:"-"`
}

// Error returns the string representation of the error message.
func (e *Error) Error() string {
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
		Cause   string `json:"cause,omitempty"`
	}{e.Kind, e.Message, causeOf(e.WrappedErr)})
	return buf.String()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.WrappedErr
}

func causeOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewError returns standard go error with given string
func NewError(e string) error {
	return errors.New(e)
}

// Kind defines the kind or class of an error.
type Kind uint8

// Transport agnostic error "kinds"
const (
	Other        Kind = iota // Unclassified error
	Internal                 // Internal error
	Conflict                 // Conflict when an entity already exists
	Invalid                  // Invalid input, validation error etc
	NotFound                 // Entity does not exist
	Unauthorized             // Unauthorized access
	Forbidden                // Forbidden access
	Config                   // Missing or broken configuration
	External                 // Payment provider or other upstream failure
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "unclassified error"
	case Internal:
		return "internal error"
	case Conflict:
		return "conflict"
	case Invalid:
		return "invalid input"
	case NotFound:
		return "entity not found"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case Config:
		return "configuration error"
	case External:
		return "upstream error"
	default:
		return "unknown error kind"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case error:
			e.WrappedErr = arg
		case string:
			e.Message = arg
		}
	}
	return e
}

// ProviderError is returned when the payment provider rejects a call or cannot be reached.
// StatusCode is zero for transport failures (timeouts, DNS, refused connections).
type ProviderError struct {
	StatusCode  int
	Description string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return e.Description
	}
	return fmt.Sprintf("%s (status %d)", e.Description, e.StatusCode)
}

// KindOf returns the kind of the first *Error in the chain, or Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return External
	}
	return Other
}

// Message returns the client-facing message for err. Wrapped causes are left out.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Description
	}
	return err.Error()
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Invalid:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case External:
		var pe *ProviderError
		if errors.As(err, &pe) && pe.StatusCode >= 400 {
			return pe.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewInternalServerError creates a new internal server error
func NewInternalServerError(msg string) error {
	return E(Internal, msg)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string) error {
	return E(NotFound, msg)
}

// NewInvalidParamsError creates a new invalid parameters error
func NewInvalidParamsError(msg string) error {
	return E(Invalid, msg)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(msg string) error {
	return E(Unauthorized, msg)
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(msg string) error {
	return E(Forbidden, msg)
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return E(Conflict, msg)
}

// NewConfigError creates a new configuration error
func NewConfigError(msg string) error {
	return E(Config, msg)
}

var (
	As = errors.As
	Is = errors.Is
)
