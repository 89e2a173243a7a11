package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/etl-dispatch/internal/etl"
	"github.com/cuongbtq/etl-dispatch/internal/payload"
	"github.com/cuongbtq/etl-dispatch/internal/worker/domain"
	"github.com/cuongbtq/etl-dispatch/internal/worker/storage"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		jobName        string
		processingDate string
		jsonOutput     bool
		persist        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ETL pipeline once in-process",
		Long: "Run executes extract, transform and load for a single job without the queue.\n" +
			"The command exits non-zero when any stage fails.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger.Logger

			db, err := ctx.database(cmd.Context())
			if err != nil {
				return err
			}

			pipeline, err := etl.New(cfg.ETL, db.GetDB(), logger)
			if err != nil {
				return err
			}

			job := payload.Object{}
			if jobName != "" {
				job[payload.FieldJobName] = payload.String(jobName)
			}
			if processingDate != "" {
				job[payload.FieldProcessingDate] = payload.String(processingDate)
			}
			req := payload.NewJobRequest(job, cfg.ETL.JobName)

			summary, runErr := pipeline.Run(cmd.Context(), req)

			if summary != nil {
				if jsonOutput {
					if err := writeJSON(cmd, summary); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), summaryTable(summary))
				}
			}

			if runErr != nil {
				return fmt.Errorf("etl job failed: %w", runErr)
			}

			if persist {
				if db == nil {
					logger.Warn("Result store not configured, skipping persist")
					return nil
				}
				store := storage.NewStorage(db.GetDB(), logger)
				if err := store.EnsureSchema(cmd.Context()); err != nil {
					return err
				}
				record := &domain.RunRecord{
					JobName:   summary.JobName,
					Payload:   req.Payload,
					Result:    summary,
					CreatedAt: time.Now().Unix(),
				}
				if err := store.Persist(cmd.Context(), record); err != nil {
					logger.Warn("Failed to persist run record", slog.Any("error", err))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&jobName, "job-name", "", "Job name (defaults to etl.job_name)")
	cmd.Flags().StringVar(&processingDate, "processing-date", "", "Processing date tag, YYYY-MM-DD (defaults to today)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")
	cmd.Flags().BoolVar(&persist, "persist", false, "Write the run record to etl_runs when a store is configured")

	return cmd
}

func summaryTable(s *etl.RunSummary) string {
	rows := [][]string{
		{"status", s.Status},
		{"job_name", s.JobName},
		{"processing_date", s.ProcessingDate},
		{"records_processed", strconv.Itoa(s.RecordsProcessed)},
		{"execution_time_seconds", strconv.FormatFloat(s.ExecutionTimeSeconds, 'f', 2, 64)},
		{"completed_at", s.CompletedAt},
	}
	if s.Note != "" {
		rows = append(rows, []string{"note", s.Note})
	}
	return renderTable([]string{"Field", "Value"}, rows)
}
