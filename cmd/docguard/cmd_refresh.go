package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/todmy/docguard/internal/embeddings"
	"github.com/todmy/docguard/internal/storage"
)

var (
	refreshProject      string
	refreshMaxAge       time.Duration
	refreshGroundedOnly bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-embed owners whose embeddings are older than --max-age",
	Long: `Re-embeds every document and module of the project whose newest embedding
is older than --max-age. Owners that no longer exist have their embeddings
removed. Requires --db.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshProject, "project", "", "Project ID (required)")
	refreshCmd.Flags().DurationVar(&refreshMaxAge, "max-age", embeddings.DefaultMaxAge, "Embeddings older than this are refreshed")
	refreshCmd.Flags().BoolVar(&refreshGroundedOnly, "grounded-only", false, "Only refresh grounded modules")
	_ = refreshCmd.MarkFlagRequired("project")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if !useDB {
		return fmt.Errorf("refresh needs --db: in-memory stores start empty")
	}
	projectID, err := uuid.Parse(refreshProject)
	if err != nil {
		return fmt.Errorf("invalid --project: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	services, closeFn, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	scope := storage.EmbeddingScope{ProjectID: projectID, GroundedOnly: refreshGroundedOnly}
	result, err := services.Index.RefreshStale(ctx, scope, refreshMaxAge, services.Pipeline.LoadText)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}
