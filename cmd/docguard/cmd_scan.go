package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/todmy/docguard/internal/conflict"
	"github.com/todmy/docguard/internal/decompose"
	"github.com/todmy/docguard/internal/ingest"
)

var (
	scanProject      string
	scanGrounded     bool
	scanGroundedOnly bool
	scanMaxModules   int
	scanStore        bool
	scanOpts         decompose.Options
)

var scanCmd = &cobra.Command{
	Use:   "scan [files...]",
	Short: "Ingest markdown files and report conflicts across the project",
	Long: `Ingests each file into the project, then runs the conflict funnel for
every module. With no files the existing project is scanned, which only
makes sense together with --db.

Example:
  docguard scan --preserve docs/limits.md docs/changelog.md
  docguard scan --db --project 6f1c... --store`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanProject, "project", "", "Project ID (a new one is generated when empty)")
	scanCmd.Flags().BoolVar(&scanGrounded, "grounded", false, "Mark ingested modules as grounded")
	scanCmd.Flags().BoolVar(&scanGroundedOnly, "grounded-only", false, "Only compare against grounded modules")
	scanCmd.Flags().IntVar(&scanMaxModules, "max-modules", 0, "Cap the number of scanned modules (0 = all)")
	scanCmd.Flags().BoolVar(&scanStore, "store", false, "Persist confirmed conflicts")
	scanCmd.Flags().IntVar(&scanOpts.MinModules, "min", decompose.DefaultMinModules, "Minimum modules per document")
	scanCmd.Flags().IntVar(&scanOpts.MaxModules, "max", decompose.DefaultMaxModules, "Maximum modules per document")
	scanCmd.Flags().BoolVar(&scanOpts.PreserveStructure, "preserve", false, "Map sections to modules 1:1")
}

// scanOutput is what scan prints
type scanOutput struct {
	ProjectID uuid.UUID               `json:"project_id"`
	Documents []decompose.Summary     `json:"documents"`
	Report    *conflict.ProjectReport `json:"report"`
	Stored    *conflict.StoreResult   `json:"stored,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	projectID := uuid.New()
	if scanProject != "" {
		id, err := uuid.Parse(scanProject)
		if err != nil {
			return fmt.Errorf("invalid --project: %w", err)
		}
		projectID = id
	}

	services, closeFn, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	out := scanOutput{ProjectID: projectID, Documents: []decompose.Summary{}}
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := services.Pipeline.Ingest(ctx, ingest.Request{
			ProjectID: projectID,
			Path:      path,
			Content:   string(content),
			Options:   scanOpts,
			Grounded:  scanGrounded,
		})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		if res.Unchanged {
			logger.Info("document unchanged", zap.String("path", path))
		}
		out.Documents = append(out.Documents, res.Summary)
	}

	report, err := services.Detector.DetectProject(ctx, projectID, conflict.ProjectOptions{
		GroundedOnly: scanGroundedOnly,
		MaxModules:   scanMaxModules,
	})
	if err != nil {
		return err
	}
	out.Report = report

	if scanStore {
		stored, err := services.Detector.Store(ctx, report.Conflicts)
		if err != nil {
			return err
		}
		out.Stored = stored
	}

	return printJSON(cmd.OutOrStdout(), out)
}
