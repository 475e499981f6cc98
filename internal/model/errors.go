package model

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")

	// ErrSandboxCreateFailed is returned when a sandbox could not be created or never became ready.
	ErrSandboxCreateFailed = errors.New("sandbox create failed")
	// ErrConnectTimeout is returned when the agent endpoint could not be reached in time.
	ErrConnectTimeout = errors.New("connect timeout")
	// ErrHandshakeProtocolViolation is returned when an init or chat response has the wrong type or status.
	ErrHandshakeProtocolViolation = errors.New("handshake protocol violation")
	// ErrHandshakeTimeout is returned when an init or chat response didn't arrive in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	// ErrTaskTimeout is returned when a task exceeded its wall-clock budget.
	ErrTaskTimeout = errors.New("task timeout")
	// ErrFatalTransport is returned when the agent channel is broken.
	ErrFatalTransport = errors.New("fatal transport")
	// ErrConcurrentDelivery is returned when the per sandbox delivery lock could not be acquired.
	ErrConcurrentDelivery = errors.New("concurrent delivery conflict")
	// ErrUserTaskLimitExceeded is returned when a user already has the maximum running tasks.
	ErrUserTaskLimitExceeded = errors.New("user task limit exceeded")
	// ErrAttachmentProcessing is returned when a single attachment could not be processed.
	ErrAttachmentProcessing = errors.New("attachment processing")
	// ErrShuttingDown is returned when new work is rejected because the service is stopping.
	ErrShuttingDown = errors.New("shutting down")
)

// IsFatal returns true if the error must end a task run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrSandboxCreateFailed),
		errors.Is(err, ErrConnectTimeout),
		errors.Is(err, ErrHandshakeProtocolViolation),
		errors.Is(err, ErrHandshakeTimeout),
		errors.Is(err, ErrTaskTimeout),
		errors.Is(err, ErrFatalTransport),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}

	return false
}
