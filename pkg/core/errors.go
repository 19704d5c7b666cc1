// Package core provides the error taxonomy shared by the osmnodes packages.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies a failure of the fetch pipeline
type ErrorCode string

// Error codes
const (
	// CodeInvalidArgument is an argument of the wrong shape, such as tags
	// that are not a mapping or a malformed where expression.
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// CodeTransport is a network-level failure reaching the interpreter.
	CodeTransport ErrorCode = "TRANSPORT_ERROR"

	// CodeHTTP is a non-success HTTP status from the interpreter.
	CodeHTTP ErrorCode = "HTTP_ERROR"

	// CodeParse is a response body that could not be decoded.
	CodeParse ErrorCode = "PARSE_ERROR"

	// CodeNoData means the query succeeded but matched zero elements.
	CodeNoData ErrorCode = "NO_DATA"
)

// Sentinels for errors.Is. They match any *Error with the same code.
var (
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrTransport       = &Error{Code: CodeTransport, Message: "transport failure"}
	ErrHTTP            = &Error{Code: CodeHTTP, Message: "unexpected HTTP status"}
	ErrParse           = &Error{Code: CodeParse, Message: "malformed response"}
	ErrNoData          = &Error{Code: CodeNoData, Message: "OSM query results contain no data"}
)

// Error is a classified failure with optional context for the caller
type Error struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Query    string    `json:"query,omitempty"`
	Guidance string    `json:"guidance,omitempty"`
	Status   int       `json:"status,omitempty"`
	Err      error     `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Guidance != "" {
		msg = fmt.Sprintf("%s. %s", msg, e.Guidance)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Errorf creates a new Error with a formatted message
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithQuery attaches the query that produced the error
func (e *Error) WithQuery(query string) *Error {
	e.Query = query
	return e
}

// WithGuidance adds guidance information to the error
func (e *Error) WithGuidance(guidance string) *Error {
	e.Guidance = guidance
	return e
}

// WithStatus records the HTTP status returned by the remote service
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// Wrap records the underlying cause
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPError creates an error for a non-success status from the interpreter
func HTTPError(service string, statusCode int, message string) *Error {
	var guidance string

	switch statusCode {
	case http.StatusTooManyRequests:
		guidance = "The service is rate-limited. Please try again in a few moments."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		guidance = "The request timed out. Try reducing the search area or simplifying the query."
	case http.StatusBadRequest:
		guidance = "The query was rejected. Check the tag filters for characters that break the query syntax."
	case http.StatusInternalServerError:
		guidance = "The server encountered an error. This is likely temporary, please try again later."
	case http.StatusServiceUnavailable:
		guidance = "The service is temporarily unavailable. Please try again later."
	default:
		guidance = "Please try again later or modify your request parameters."
	}

	return Errorf(CodeHTTP, "%s service returned HTTP %d: %s", service, statusCode, message).
		WithStatus(statusCode).
		WithGuidance(guidance)
}

// HTTPStatus maps an error to the status an HTTP surface should answer with
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNoData:
		return http.StatusNotFound
	case CodeHTTP, CodeTransport, CodeParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
