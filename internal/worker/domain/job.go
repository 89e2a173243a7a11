package domain

import (
	"github.com/cuongbtq/etl-dispatch/internal/etl"
	"github.com/cuongbtq/etl-dispatch/internal/payload"
)

// Outcome is how a delivery was settled with the broker
type Outcome string

const (
	OutcomeAcked     Outcome = "acked"
	OutcomeRequeued  Outcome = "requeued"
	OutcomeAbandoned Outcome = "abandoned" // left unacknowledged for broker redelivery
)

// RunRecord is the persisted result of one completed pipeline run
type RunRecord struct {
	JobName   string
	Payload   payload.Object
	Result    *etl.RunSummary
	CreatedAt int64 // epoch seconds
}

// JobMessage is a delivery accepted by the dispatcher and handed to the
// worker pool.
type JobMessage struct {
	MessageID   string
	DeliveryTag uint64
	Redelivered bool
	Request     *payload.JobRequest
}
