package etl

import (
	"fmt"
	"time"
)

// Transform enriches each raw record, preserving order and count. It fails
// on the first record without a numeric value.
func Transform(records []RawRecord, job Job, factor float64, now time.Time) ([]EnrichedRecord, error) {
	processedAt := now.Format(time.RFC3339Nano)

	enriched := make([]EnrichedRecord, 0, len(records))
	for i, record := range records {
		if record.Value == nil {
			return nil, fmt.Errorf("%w: record %d (id=%d) has no numeric value", ErrTransformation, i, record.ID)
		}

		enriched = append(enriched, EnrichedRecord{
			RawRecord:      record,
			ProcessedAt:    processedAt,
			JobID:          job.Name,
			ProcessingDate: job.ProcessingDate,
			DerivedValue:   *record.Value * factor,
		})
	}

	return enriched, nil
}
