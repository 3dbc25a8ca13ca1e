package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"research_pipeline/internal/llm"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check every known LLM provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := ctx.llmClient()
			if err != nil {
				return err
			}

			statuses := make([]llm.HealthStatus, 0, len(llm.KnownProviders()))
			for _, p := range llm.KnownProviders() {
				checkCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
				statuses = append(statuses, client.HealthCheck(checkCtx, p))
				cancel()
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderHealth(client.Primary(), statuses))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-provider check timeout")
	return cmd
}

func renderHealth(primary llm.Provider, statuses []llm.HealthStatus) string {
	headers := []string{"Provider", "Status", "Model", "Latency", "Error"}
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		name := string(st.Provider)
		if st.Provider == primary {
			name += " *"
		}
		latency := "-"
		if st.Latency > 0 {
			latency = st.Latency.Round(time.Millisecond).String()
		}
		rows = append(rows, []string{name, string(st.Status), st.Model, latency, truncate(st.Error, 60)})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
}
