package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"research_pipeline/internal/llm"
	"research_pipeline/internal/service"
	"research_pipeline/internal/storage/postgres"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		maxTokens   int
		temperature float64
		timeout     time.Duration
		file        string
	)

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Run a synchronous completion with provider failover",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := ""
			if len(args) == 1 {
				prompt = args[0]
			} else {
				content, err := readContent(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				prompt = content
			}

			opts := llm.Options{MaxTokens: maxTokens}
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = &temperature
			}

			_, failover, err := ctx.llmClient()
			if err != nil {
				return err
			}

			runCtx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, timeout)
				defer cancel()
			}

			return ctx.withDB(runCtx, func(db *sqlx.DB) error {
				gen := service.NewGenerator(failover, postgres.NewMetricStore(db), ctx.logger)
				completion, err := gen.Generate(runCtx, prompt, opts)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, strings.TrimRight(completion.Content, "\n"))
				fmt.Fprintf(cmd.ErrOrStderr(), "\n%s/%s: %d input, %d output, %d total tokens\n",
					completion.Provider, completion.Model,
					completion.Usage.InputTokens, completion.Usage.OutputTokens, completion.Usage.TotalTokens,
				)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Override the configured max tokens")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Override the configured temperature")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout, 0 disables it")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Prompt file when no argument is given, - for stdin")

	return cmd
}
