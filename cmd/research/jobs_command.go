package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"research_pipeline/internal/domain"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <article-id>",
		Short: "Show the formatting job history of an article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid article id %q: %w", args[0], err)
			}

			return ctx.withDB(cmd.Context(), func(db *sqlx.DB) error {
				jobs, err := newSubmissionService(ctx, db).History(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobs(jobs))
				return nil
			})
		},
	}
}

func renderJobs(jobs []domain.Job) string {
	headers := []string{"Job", "Status", "Retry", "Created", "Completed", "Error"}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		errText := ""
		if j.ErrorMessage != nil {
			errText = truncate(*j.ErrorMessage, 60)
		}
		rows = append(rows, []string{
			j.ID.String(),
			string(j.Status),
			strconv.Itoa(j.RetryCount),
			formatTime(&j.CreatedAt),
			formatTime(j.CompletedAt),
			errText,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
