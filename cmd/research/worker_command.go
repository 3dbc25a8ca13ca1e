package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"research_pipeline/internal/service"
	"research_pipeline/internal/storage/postgres"
	"research_pipeline/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background formatting worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				sig := <-sigCh
				ctx.logger.Info("received shutdown signal", "signal", sig)
				cancel()
			}()

			return ctx.withDB(runCtx, func(db *sqlx.DB) error {
				_, failover, err := ctx.llmClient()
				if err != nil {
					return err
				}

				resultCache, closeCache, err := ctx.resultCache(runCtx, db)
				if err != nil {
					return err
				}
				defer closeCache()

				pub, err := ctx.publisher()
				if err != nil {
					return err
				}
				if pub != nil {
					defer pub.Close()
				}

				formatter := service.NewFormattingService(
					postgres.NewArticleStore(db),
					postgres.NewJobStore(db),
					resultCache,
					failover,
					postgres.NewMetricStore(db),
					pub,
					ctx.logger,
					service.FormatterConfig{MaxRetries: cfg.Worker.MaxRetries},
				)

				ctx.logger.Info("starting formatting worker",
					"provider", cfg.LLM.Provider,
					"tier", cfg.LLM.Tier,
					"fallback", failover.Candidates(),
					"poll_interval", cfg.Worker.PollInterval(),
					"max_retries", cfg.Worker.MaxRetries,
				)

				err = worker.New(formatter, cfg.Worker.PollInterval(), ctx.logger).Start(runCtx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}
