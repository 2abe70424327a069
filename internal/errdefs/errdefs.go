// Package errdefs defines the error taxonomy shared by the dispatcher, the
// capability agents and the websocket session protocol. Components raise
// these errors; only the transport boundary translates them into responses.
package errdefs

import (
	"errors"
	"fmt"
)

// Stage names the resolution step that failed when addressing a route.
type Stage string

const (
	StageService Stage = "service"
	StageDomain  Stage = "domain"
	StageAction  Stage = "action"
)

// AddressingError reports a missing protocol header on an inbound request.
type AddressingError struct {
	Header string
}

func (e *AddressingError) Error() string {
	return fmt.Sprintf("missing required header %q", e.Header)
}

// MissingHeader builds an AddressingError for the named header.
func MissingHeader(header string) *AddressingError {
	return &AddressingError{Header: header}
}

// NotFoundError reports a service/domain/action resolution miss, tagged with
// the stage that failed.
type NotFoundError struct {
	Stage Stage
	Name  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Stage, e.Name)
}

// NotFound builds a stage-tagged NotFoundError.
func NotFound(stage Stage, name string) *NotFoundError {
	return &NotFoundError{Stage: stage, Name: name}
}

// FieldError is one entry of a validation failure.
type FieldError struct {
	Message string      `json:"message"`
	Key     string      `json:"key,omitempty"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationError carries an ordered list of field errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", e.Errors[0].Message)
}

// Validation builds a ValidationError from field errors.
func Validation(fields ...FieldError) *ValidationError {
	return &ValidationError{Errors: fields}
}

// SchemaException is a business-declared failure: the handler chooses the
// status, payload and optional header/redirect directives.
type SchemaException struct {
	StatusCode    int
	Message       string
	Code          string
	Data          interface{}
	AddHeaders    map[string]string
	RemoveHeaders []string
	Redirect      string
	Silent        bool
}

func (e *SchemaException) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("schema exception %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("schema exception: %s", e.Message)
}

// TokenExpiredError distinguishes an expired or otherwise invalid token from
// a generally failed authentication, so callers can special-case expiry.
type TokenExpiredError struct {
	Cause error
}

func (e *TokenExpiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("access token expired: %v", e.Cause)
	}
	return "access token expired"
}

func (e *TokenExpiredError) Unwrap() error { return e.Cause }

// TokenExpired wraps cause as a TokenExpiredError.
func TokenExpired(cause error) *TokenExpiredError {
	return &TokenExpiredError{Cause: cause}
}

// IsTokenExpired reports whether err is (or wraps) a TokenExpiredError.
func IsTokenExpired(err error) bool {
	var te *TokenExpiredError
	return errors.As(err, &te)
}

// AsAddressing extracts an AddressingError from err.
func AsAddressing(err error) (*AddressingError, bool) {
	var ae *AddressingError
	ok := errors.As(err, &ae)
	return ae, ok
}

// AsNotFound extracts a NotFoundError from err.
func AsNotFound(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	ok := errors.As(err, &nf)
	return nf, ok
}

// AsValidation extracts a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// AsSchemaException extracts a SchemaException from err.
func AsSchemaException(err error) (*SchemaException, bool) {
	var se *SchemaException
	ok := errors.As(err, &se)
	return se, ok
}
