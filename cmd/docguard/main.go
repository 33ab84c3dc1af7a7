package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/todmy/docguard/internal/app"
	"github.com/todmy/docguard/internal/config"
	"github.com/todmy/docguard/internal/storage"
)

var (
	// Global flags
	verbose bool
	useDB   bool
	timeout time.Duration
	envFile string

	logger *zap.Logger
	cfg    config.Config

	// appOptions lets tests swap the oracle clients
	appOptions []app.Option
)

var rootCmd = &cobra.Command{
	Use:   "docguard",
	Short: "Decompose documentation and find contradictions between modules",
	Long: `docguard splits markdown documents into modules, indexes them and runs the
three stage conflict funnel (similarity, entity overlap, oracle confirmation).

By default documents are held in memory for the duration of one command.
Pass --db to work against the PostgreSQL database from DATABASE_URL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		loaded, err := config.Load(files...)
		if err != nil {
			return err
		}
		cfg = loaded

		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useDB, "db", false, "Use the PostgreSQL database from DATABASE_URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall command timeout")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load settings from this file instead of .env")

	rootCmd.AddCommand(decomposeCmd, scanCmd, refreshCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// commandContext bounds a command by --timeout and cancels on SIGINT/SIGTERM
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// openServices builds the services on memory or PostgreSQL stores.
// The returned func releases the database handle.
func openServices(ctx context.Context) (*app.App, func(), error) {
	stores := app.MemoryStores()
	closeFn := func() {}

	if useDB {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		if err := storage.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		stores = app.PostgresStores(db)
		closeFn = func() { db.Close() }
	}

	services, err := app.New(ctx, cfg, stores, logger, appOptions...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return services, closeFn, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
