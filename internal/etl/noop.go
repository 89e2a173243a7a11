package etl

import (
	"context"
	"time"

	"github.com/cuongbtq/etl-dispatch/internal/payload"
)

// NoopPipeline acknowledges jobs without processing them. It is selected
// with etl.mode=noop for deployments that only exercise the queue.
type NoopPipeline struct {
	DefaultJobName string
}

func (n NoopPipeline) Run(ctx context.Context, req *payload.JobRequest) (*RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := n.DefaultJobName
	if req != nil && req.JobName != "" {
		name = req.JobName
	}

	return &RunSummary{
		Status:      StatusOK,
		JobName:     name,
		CompletedAt: time.Now().Format(time.RFC3339Nano),
		Note:        "no etl pipeline configured",
	}, nil
}
