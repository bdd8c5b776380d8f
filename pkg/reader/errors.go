package reader

import (
	"errors"
	"fmt"
)

// Errors returned by the reader client, matched with errors.Is.
var (
	// ErrRemoteUnavailable is returned when the request could not be completed:
	// transport failures and non-2xx responses.
	ErrRemoteUnavailable = errors.New("remote reader unavailable")

	// ErrUnexpectedResponseShape is returned when the payload lacks the expected fields.
	ErrUnexpectedResponseShape = errors.New("unexpected response shape")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses, typically an expired or invalid session.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassShape represents a response that could not be interpreted.
	ErrorClassShape ErrorClass = "shape"
)

// RequestError describes a failed call against the reader API.
type RequestError struct {
	Endpoint   string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reader %s error on %s (status %d): %s: %v",
			e.Class, e.Endpoint, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("reader %s error on %s (status %d): %s",
		e.Class, e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is maps the error class onto the package sentinels.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrUnexpectedResponseShape:
		return e.Class == ErrorClassShape
	case ErrRemoteUnavailable:
		return e.Class == ErrorClassClient || e.Class == ErrorClassServer || e.Class == ErrorClassNetwork
	default:
		return false
	}
}

func shapeError(endpoint string, statusCode int, message string, err error) *RequestError {
	return &RequestError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Class:      ErrorClassShape,
		Message:    message,
		Err:        err,
	}
}
