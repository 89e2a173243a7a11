// Package etl runs a job through the Extract, Transform and Load stages and
// reports the outcome as a RunSummary.
package etl

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/etl-dispatch/internal/payload"
)

// Stage names a pipeline step
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

// Run summary statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusOK      = "ok"
)

var (
	// ErrExtraction is returned when the source yields no usable records
	ErrExtraction = errors.New("extraction failed")
	// ErrTransformation is returned when a record cannot be enriched
	ErrTransformation = errors.New("transformation failed")
	// ErrLoad is returned when the sink rejects a write
	ErrLoad = errors.New("load failed")
)

// StageError tags a pipeline failure with the stage it originated in
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage tag carried by err, if any
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

// Pipeline processes one job request. Implementations are selected by
// configuration; the default is Processor.
type Pipeline interface {
	Run(ctx context.Context, job *payload.JobRequest) (*RunSummary, error)
}

// Job carries the identity fields every stage tags its output with
type Job struct {
	Name           string
	ProcessingDate string
}

// RawRecord is one upstream source entry. Value is nil when the source
// omitted it.
type RawRecord struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Value     *float64 `json:"value"`
	Timestamp string   `json:"timestamp"`
}

// EnrichedRecord is a RawRecord with processing metadata attached
type EnrichedRecord struct {
	RawRecord
	ProcessedAt    string  `json:"processed_at"`
	JobID          string  `json:"job_id"`
	ProcessingDate string  `json:"processing_date"`
	DerivedValue   float64 `json:"derived_value"`
}

// RunSummary is the outcome of one pipeline run
type RunSummary struct {
	Status               string  `json:"status"`
	RecordsProcessed     int     `json:"records_processed"`
	JobName              string  `json:"job_name"`
	ProcessingDate       string  `json:"processing_date"`
	CompletedAt          string  `json:"completed_at"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	Note                 string  `json:"note,omitempty"`
}

// Extractor produces the ordered raw records for a job
type Extractor interface {
	Extract(ctx context.Context, job Job) ([]RawRecord, error)
}

// Loader writes enriched records to a sink and returns how many were
// committed. On failure the count reflects records actually written.
type Loader interface {
	Load(ctx context.Context, job Job, records []EnrichedRecord) (int, error)
}

func floatPtr(f float64) *float64 {
	return &f
}
