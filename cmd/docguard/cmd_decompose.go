package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/todmy/docguard/internal/decompose"
)

var decomposeOpts decompose.Options

var decomposeCmd = &cobra.Command{
	Use:   "decompose [file]",
	Short: "Split a markdown file into modules and print them as JSON",
	Long: `Parses the file into structural sections and groups them into modules.
With --preserve every section becomes its own module when the count fits
--max; otherwise the oracle groups sections semantically.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecompose,
}

func init() {
	decomposeCmd.Flags().IntVar(&decomposeOpts.MinModules, "min", decompose.DefaultMinModules, "Minimum module count")
	decomposeCmd.Flags().IntVar(&decomposeOpts.MaxModules, "max", decompose.DefaultMaxModules, "Maximum module count")
	decomposeCmd.Flags().BoolVar(&decomposeOpts.PreserveStructure, "preserve", false, "Map sections to modules 1:1")
}

func runDecompose(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	services, closeFn, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := services.Decomposer.Decompose(ctx, string(content), args[0], decomposeOpts)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}
