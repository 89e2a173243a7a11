package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/etl-dispatch/internal/worker/storage"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent run records from the result store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			db, err := ctx.database(cmd.Context())
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("result store not configured")
			}
			if limit <= 0 {
				limit = 20
			}

			records, err := storage.NewStorage(db.GetDB(), ctx.logger.Logger).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				type runView struct {
					JobName   string `json:"job_name"`
					Payload   any    `json:"payload"`
					Result    any    `json:"result"`
					CreatedAt int64  `json:"created_at"`
				}
				views := make([]runView, 0, len(records))
				for _, r := range records {
					views = append(views, runView{
						JobName:   r.JobName,
						Payload:   r.Payload,
						Result:    r.Result,
						CreatedAt: r.CreatedAt,
					})
				}
				return writeJSON(cmd, views)
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No run records")
				return nil
			}

			tableRows := make([][]string, 0, len(records))
			for _, r := range records {
				tableRows = append(tableRows, []string{
					time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339),
					r.JobName,
					r.Result.Status,
					strconv.Itoa(r.Result.RecordsProcessed),
					r.Result.ProcessingDate,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Created", "Job", "Status", "Records", "Processing Date"},
				tableRows,
				3,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")

	return cmd
}
