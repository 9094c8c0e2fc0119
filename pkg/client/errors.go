package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every error raised by the EDC runtime.
type ErrorKind string

const (
	// KindValidation covers HTTP 400 and local schema validation failures.
	KindValidation ErrorKind = "validation"

	// KindAuthentication represents HTTP 401.
	KindAuthentication ErrorKind = "authentication"

	// KindAuthorization represents HTTP 403.
	KindAuthorization ErrorKind = "authorization"

	// KindNotFound represents HTTP 404 and empty single-item lookups.
	KindNotFound ErrorKind = "not_found"

	// KindConflict represents HTTP 409.
	KindConflict ErrorKind = "conflict"

	// KindRateLimit represents HTTP 429.
	KindRateLimit ErrorKind = "rate_limit"

	// KindServer represents 5xx responses.
	KindServer ErrorKind = "server"

	// KindGeneric is any other non-success status.
	KindGeneric ErrorKind = "generic"

	// KindConfiguration is bad caller input. Never retried.
	KindConfiguration ErrorKind = "configuration"

	// KindRequestFailed is a transport failure that survived the retry policy.
	KindRequestFailed ErrorKind = "request_failed"

	// KindUnknownForm is raised when a record references a form the study does not declare.
	KindUnknownForm ErrorKind = "unknown_form"

	// KindUnknownVariableType is raised when a form declares a type the validator cannot check.
	KindUnknownVariableType ErrorKind = "unknown_variable_type"

	// KindJobFailed is a job that ended in the failed or cancelled state.
	KindJobFailed ErrorKind = "job_failed"

	// KindJobTimeout is a job that did not reach a terminal state in time.
	KindJobTimeout ErrorKind = "job_timeout"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrValidation          = errors.New("validation error")
	ErrAuthentication      = errors.New("authentication error")
	ErrAuthorization       = errors.New("authorization error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrRateLimit           = errors.New("rate limit exceeded")
	ErrServer              = errors.New("server error")
	ErrGeneric             = errors.New("unexpected response")
	ErrConfiguration       = errors.New("configuration error")
	ErrRequestFailed       = errors.New("request failed")
	ErrUnknownForm         = errors.New("unknown form")
	ErrUnknownVariableType = errors.New("unknown variable type")
	ErrJobFailed           = errors.New("job failed")
	ErrJobTimeout          = errors.New("job timed out")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:          ErrValidation,
	KindAuthentication:      ErrAuthentication,
	KindAuthorization:       ErrAuthorization,
	KindNotFound:            ErrNotFound,
	KindConflict:            ErrConflict,
	KindRateLimit:           ErrRateLimit,
	KindServer:              ErrServer,
	KindGeneric:             ErrGeneric,
	KindConfiguration:       ErrConfiguration,
	KindRequestFailed:       ErrRequestFailed,
	KindUnknownForm:         ErrUnknownForm,
	KindUnknownVariableType: ErrUnknownVariableType,
	KindJobFailed:           ErrJobFailed,
	KindJobTimeout:          ErrJobTimeout,
}

// Sentinel returns the errors.Is target for the kind.
func (k ErrorKind) Sentinel() error {
	if err, ok := kindSentinels[k]; ok {
		return err
	}
	return ErrGeneric
}

// Error is the typed error returned by every layer of the client.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Body       []byte
	Err        error
}

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Sentinel().Error()
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("EDC %s error (status %d): %s", e.Kind, e.StatusCode, msg)
	} else {
		msg = fmt.Sprintf("EDC %s error: %s", e.Kind, msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var edcErr *Error
	if errors.As(err, &edcErr) {
		return edcErr.Kind
	}
	return ""
}

// ClassifyStatus maps a non-success HTTP status to an error kind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500 && status < 600:
		return KindServer
	default:
		return KindGeneric
	}
}

// errorEnvelope is the subset of the EDC error body we surface.
type errorEnvelope struct {
	Metadata struct {
		Status string `json:"status"`
		Error  struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"metadata"`
}

// statusError builds the typed error for a non-success response.
func statusError(resp *Response) *Error {
	msg := http.StatusText(resp.StatusCode)

	var env errorEnvelope
	if err := json.Unmarshal(resp.Body, &env); err == nil {
		if d := env.Metadata.Error.Description; d != "" {
			msg = d
			if c := env.Metadata.Error.Code; c != "" {
				msg = c + ": " + d
			}
		}
	}

	return &Error{
		Kind:       ClassifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    msg,
		Body:       resp.Body,
	}
}
