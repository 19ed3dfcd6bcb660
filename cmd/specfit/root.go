package main

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-specparam/logging"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for specfit.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specfit",
		Short: "Parameterize neural power spectra",
		Long: `specfit fits a power spectrum as an aperiodic (1/f-like) component plus
a set of Gaussian peaks, and reports the parameters of both.

Input and output are JSON. Logs go to stderr.`,
		Version:           getVersion(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}

	cmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().Bool("zap", false, "Write structured JSON logs with zap")

	cmd.AddCommand(NewFitCmd())
	cmd.AddCommand(NewSimCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	levelName, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	useZap, err := cmd.Flags().GetBool("zap")
	if err != nil {
		return err
	}

	level := logging.ParseLevel(levelName)
	if useZap {
		zl, err := logging.NewZapProductionLogger(level)
		if err != nil {
			return fmt.Errorf("failed to build zap logger: %w", err)
		}
		logging.SetGlobalLogger(zl)
		return nil
	}

	// both streams go to stderr so that stdout carries only JSON
	l := logging.NewDefaultLoggerWithWriters(cmd.ErrOrStderr(), cmd.ErrOrStderr())
	l.SetLevel(level)
	logging.SetGlobalLogger(l)
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
