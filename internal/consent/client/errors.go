package client

import (
	"errors"
	"fmt"
)

// Category is the normalized failure taxonomy for transport-level errors.
type Category string

const (
	// CategoryTimeout: the directory did not answer within the request deadline.
	CategoryTimeout Category = "timeout"
	// CategoryCanceled: the caller cancelled the request.
	CategoryCanceled Category = "canceled"
	// CategoryOutage: network failure or a 5xx response.
	CategoryOutage Category = "provider_outage"
	// CategoryRateLimited: the directory answered 429.
	CategoryRateLimited Category = "rate_limited"
	// CategoryRejected: any other non-2xx response.
	CategoryRejected Category = "rejected"
	// CategoryBadData: a 2xx response whose body could not be decoded or was incomplete.
	CategoryBadData Category = "bad_data"
)

// TransportError is a hard failure talking to the directory. It never carries the access key.
type TransportError struct {
	Op         string
	StatusCode int
	Category   Category
	Message    string
	Retryable  bool
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("kvkk: %s [%s]", e.Op, e.Category)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

func newTransportError(op string, category Category, status int, message string, err error) *TransportError {
	return &TransportError{
		Op:         op,
		StatusCode: status,
		Category:   category,
		Message:    message,
		Retryable:  category == CategoryTimeout || category == CategoryOutage || category == CategoryRateLimited,
		Err:        err,
	}
}

// IsRetryable reports whether err is a transport failure worth retrying.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// CategoryOf returns the transport category of err, or "" when err is not a TransportError.
func CategoryOf(err error) Category {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// BusinessError is a well-formed `status:false` answer to a write.
type BusinessError struct {
	Op          string
	Description string
	Message     string
}

func (e *BusinessError) Error() string {
	switch {
	case e.Description != "" && e.Message != "":
		return fmt.Sprintf("kvkk: %s rejected: %s (%s)", e.Op, e.Description, e.Message)
	case e.Description != "":
		return fmt.Sprintf("kvkk: %s rejected: %s", e.Op, e.Description)
	case e.Message != "":
		return fmt.Sprintf("kvkk: %s rejected: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("kvkk: %s rejected", e.Op)
	}
}

// NotFound is the typed outcome of a lookup for a phone with no record.
type NotFound struct {
	Description string
	Message     string
}
