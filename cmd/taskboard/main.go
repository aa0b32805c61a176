// Package main provides the taskboard binary: the reference task API and a
// terminal client that drives the board controller against it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "taskboard"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n", r)
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Kanban task board",
		Long: `taskboard serves a task API and manipulates the task board
through it. Settings come from the environment (TASKBOARD_API_URL,
TASKBOARD_TOKEN, DB_DRIVER, REDIS_ENABLED, JWT_SECRET, LOG_LEVEL, ...).`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		serveCmd(),
		tokenCmd(),
		boardCmd(),
		createCmd(),
		moveCmd(),
		deleteCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, Version)
			},
		},
	)
	return cmd
}
