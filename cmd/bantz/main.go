// Package main provides the CLI entry point for the Bantz assistant
// runtime.
//
// Basic usage:
//
//	bantz serve --config bantz.yaml
//	bantz reminders add "su iç" --at 2026-02-12T09:00:00Z --every daily
//	bantz graph stats
//
// Exit codes: 0 on success, 1 on usage errors, 2 on runtime failures.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bantz: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// usageError marks errors caused by bad invocation rather than a
// runtime failure, so main can pick the right exit code.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	var usage *usageError
	if errors.As(err, &usage) {
		return 1
	}
	// Cobra reports unknown subcommands and flags as plain errors.
	msg := err.Error()
	if strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") || strings.HasPrefix(msg, "required flag") {
		return 1
	}
	return 2
}

// exactArgs mirrors cobra.ExactArgs but flags the failure as a usage
// error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s requires %d argument(s), got %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bantz",
		Short: "Bantz - Turkish-first voice assistant runtime",
		Long: `Bantz drives assistant turns through planning, policy-checked tool
execution, and reply finalization, with persistent reminders and a
lightweight entity graph.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRemindersCmd(),
		buildGraphCmd(),
	)
	return rootCmd
}
