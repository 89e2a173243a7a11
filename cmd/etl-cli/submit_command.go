package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/etl-dispatch/internal/bootstrap"
	"github.com/cuongbtq/etl-dispatch/internal/payload"
	"github.com/cuongbtq/etl-dispatch/internal/producer"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		jobName    string
		rawPayload string
		fields     []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Publish a job to the queue",
		Example: `  etl-cli submit --job-name nightly
  etl-cli submit --payload '{"job_name":"t1","processing_date":"2024-01-01"}'
  etl-cli submit --field region=eu --field batch=7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			job, err := buildPayload(rawPayload, fields, jobName)
			if err != nil {
				return err
			}

			rabbitClient := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, ctx.logger.Logger)
			if rabbitClient != nil {
				defer rabbitClient.Close()
			}

			p := producer.New(rabbitClient, cfg.RabbitMQ.Queue.Name, ctx.logger.Logger)
			receipt, err := p.Submit(cmd.Context(), job)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, receipt)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s on queue %q (message %s)\n", receipt.Status, receipt.Queue, receipt.MessageID)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobName, "job-name", "", "Set job_name in the payload")
	cmd.Flags().StringVar(&rawPayload, "payload", "", "Job payload as a JSON object")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Add a string field key=value (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the receipt as JSON")

	return cmd
}

// buildPayload merges --payload, --field and --job-name, later sources
// overriding earlier ones.
func buildPayload(raw string, fields []string, jobName string) (payload.Object, error) {
	job := payload.Object{}
	if raw != "" {
		decoded, err := payload.Decode([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid --payload: %w", err)
		}
		job = decoded
	}

	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --field %q: expected key=value", field)
		}
		job[strings.TrimSpace(key)] = payload.String(value)
	}

	if jobName != "" {
		job[payload.FieldJobName] = payload.String(jobName)
	}
	return job, nil
}
