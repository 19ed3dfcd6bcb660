package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RyanBlaney/sonido-specparam/specparam/config"
	"github.com/spf13/cobra"
)

const settingsFileName = "specfit.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with the default fit settings",
		Long: `Init writes every model and algorithm setting with its default value, as
YAML, so it can be edited and passed to "specfit fit --settings".

Examples:
  specfit init
  specfit init -o settings/knee.yaml -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", settingsFileName, "Output file path")
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("settings file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := config.WriteFile(outputPath, config.DefaultFile()); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created settings file: %s\n", outputPath)
	return nil
}
