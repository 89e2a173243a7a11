package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedJob is returned when a delivery body is not a job payload
	ErrMalformedJob = errors.New("malformed job")

	// ErrPersistence is returned when a run record cannot be stored
	ErrPersistence = errors.New("persistence failed")

	// ErrDrainTimeout is returned when shutdown interrupted an in-flight job
	ErrDrainTimeout = errors.New("shutdown drain timeout exceeded")
)

// MalformedJobError describes a poison message. It is acknowledged and
// dropped, never requeued.
type MalformedJobError struct {
	MessageID   string
	DeliveryTag uint64
	Err         error
}

func (e *MalformedJobError) Error() string {
	return fmt.Sprintf("malformed job (message_id=%q, delivery_tag=%d): %v", e.MessageID, e.DeliveryTag, e.Err)
}

func (e *MalformedJobError) Unwrap() []error {
	return []error{ErrMalformedJob, e.Err}
}

// PersistenceError wraps a result store write failure
type PersistenceError struct {
	JobName string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist run record for job %q: %v", e.JobName, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
