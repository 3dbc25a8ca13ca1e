package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"research_pipeline/internal/service"
	"research_pipeline/internal/storage/postgres"
)

func newSubmissionService(ctx *commandContext, db *sqlx.DB) *service.SubmissionService {
	return service.NewSubmissionService(
		postgres.NewArticleStore(db),
		postgres.NewJobStore(db),
		postgres.NewTransactionManager(db),
		ctx.logger,
	)
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		title    string
		category string
		template string
		abstract string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a research article and queue it for formatting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			in := service.ArticleInput{
				Title:      title,
				Category:   category,
				Template:   template,
				RawContent: content,
			}
			if strings.TrimSpace(abstract) != "" {
				in.Abstract = &abstract
			}

			return ctx.withDB(cmd.Context(), func(db *sqlx.DB) error {
				article, job, err := newSubmissionService(ctx, db).Submit(cmd.Context(), in)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Article: %s\n", article.ID)
				fmt.Fprintf(out, "Hash:    %s\n", article.ContentHash)
				fmt.Fprintf(out, "Job:     %s (%s)\n", job.ID, job.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Article title")
	cmd.Flags().StringVar(&category, "category", "", "Article category")
	cmd.Flags().StringVar(&template, "template", "", "Template identifier")
	cmd.Flags().StringVar(&abstract, "abstract", "", "Optional abstract")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Raw content file, - for stdin")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <article-id>",
		Short: "Queue a formatting job for an existing article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid article id %q: %w", args[0], err)
			}

			return ctx.withDB(cmd.Context(), func(db *sqlx.DB) error {
				job, err := newSubmissionService(ctx, db).Enqueue(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for article %s\n", job.ID, id)
				return nil
			})
		},
	}
}

func readContent(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("content is empty")
	}
	return string(data), nil
}
