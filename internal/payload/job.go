package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// FieldJobName carries the caller-supplied job identity
	FieldJobName = "job_name"
	// FieldProcessingDate carries the caller-supplied processing date tag
	FieldProcessingDate = "processing_date"

	// ContentType is the wire encoding of a serialized job request
	ContentType = "application/json"
)

// ErrNotObject is returned when a payload is not a top-level mapping
var ErrNotObject = errors.New("job payload must be a JSON object")

// JobRequest is a deserialized job: the opaque caller payload plus the
// identity fields read from it.
type JobRequest struct {
	Payload        Object
	JobName        string
	ProcessingDate string
}

// NewJobRequest reads identity fields from p. defaultJobName is used when
// the payload has no string job_name.
func NewJobRequest(p Object, defaultJobName string) *JobRequest {
	req := &JobRequest{Payload: p, JobName: defaultJobName}
	if p == nil {
		req.Payload = Object{}
	}

	if name, ok := p[FieldJobName].AsString(); ok && name != "" {
		req.JobName = name
	}
	if date, ok := p[FieldProcessingDate].AsString(); ok && date != "" {
		req.ProcessingDate = date
	}

	return req
}

// Encode serializes a payload for queue transport
func Encode(p Object) ([]byte, error) {
	if p == nil {
		p = Object{}
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}
	return body, nil
}

// Decode parses a queue message body into a payload. Anything other than a
// single JSON object is rejected.
func Decode(body []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode job payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode job payload: trailing data after object")
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}

	return ObjectFromMap(m)
}
