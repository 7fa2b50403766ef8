package networks

import (
	"errors"
	"fmt"
	"net/http"

	"herald/pkg/models"
)

// Classification partitions publish failures into the two classes the worker
// cares about: transient failures are retried, permanent ones are not.
type Classification string

const (
	Transient Classification = "transient"
	Permanent Classification = "permanent"
)

// PublishError is a classified failure from a network client.
type PublishError struct {
	Network        models.Network
	StatusCode     int
	Message        string
	Classification Classification
}

func (e *PublishError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Network, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Network, e.Message)
}

// NewTransientError wraps a failure worth retrying (timeouts, 5xx, 429).
func NewTransientError(network models.Network, statusCode int, message string) *PublishError {
	return &PublishError{Network: network, StatusCode: statusCode, Message: message, Classification: Transient}
}

// NewPermanentError wraps a failure that retrying cannot fix (bad token,
// rejected content, missing required media).
func NewPermanentError(network models.Network, statusCode int, message string) *PublishError {
	return &PublishError{Network: network, StatusCode: statusCode, Message: message, Classification: Permanent}
}

// ClassifyStatus maps an HTTP response status to a failure class. Rate limits
// and server errors are transient; every other non-2xx status is permanent.
func ClassifyStatus(statusCode int) Classification {
	if statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError {
		return Transient
	}
	return Permanent
}

// IsTransient reports whether the error should be retried. Errors that carry
// no classification (connection resets, timeouts) are treated as transient.
func IsTransient(err error) bool {
	var pubErr *PublishError
	if errors.As(err, &pubErr) {
		return pubErr.Classification == Transient
	}
	return true
}
