// Command indexer crawls the configured GitHub account, summarizes each
// repository with an LLM, embeds source files, and synchronizes the vector
// collection used by the portfolio chatbot.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexus-site/indexer/internal/config"
	"github.com/nexus-site/indexer/internal/embeddings"
	"github.com/nexus-site/indexer/internal/github"
	"github.com/nexus-site/indexer/internal/logger"
	"github.com/nexus-site/indexer/internal/pipeline"
	"github.com/nexus-site/indexer/internal/store"
	"github.com/nexus-site/indexer/internal/summarizer"
	"github.com/nexus-site/indexer/internal/vectors"
)

func main() {
	var opts pipeline.Options

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index the account's repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runIndex(cmd.Context(), opts)
		},
	}
	indexCmd.Flags().BoolVar(&opts.Force, "force", false, "re-index even when the default-branch SHA is unchanged")
	indexCmd.Flags().StringVar(&opts.SingleRepo, "repo", "", "index a single repository (owner/repo); skips stale cleanup")
	indexCmd.Flags().BoolVar(&opts.SummariesOnly, "summaries-only", false, "refresh summaries without re-embedding files")
	indexCmd.Flags().BoolVar(&opts.RecreateCollection, "recreate-collection", false, "drop and rebuild the vector collection")

	rootCmd := &cobra.Command{
		Use:          "indexer",
		Short:        "Portfolio repository indexer",
		SilenceUsage: false,
	}
	rootCmd.AddCommand(indexCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndex(ctx context.Context, opts pipeline.Options) error {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	st, err := store.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	provider, err := embeddings.NewProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init embedding provider: %w", err)
	}

	summ, err := summarizer.NewGeminiSummarizer(ctx, cfg.GCPProjectID, cfg.GCPLocation)
	if err != nil {
		return fmt.Errorf("init summarizer: %w", err)
	}
	defer summ.Close()

	vec := vectors.NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey, log)
	gh := github.NewClient(cfg.GitHubPAT, cfg.GitHubUsername, log, github.WithMaxConcurrent(50))

	p := pipeline.New(gh, provider, summ, vec, st, cfg.GitHubUsername, log)
	if _, err := p.Run(ctx, opts); err != nil {
		return err
	}
	return nil
}
