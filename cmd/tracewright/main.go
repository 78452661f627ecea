// Package main provides the tracewright command line interface: a one-shot
// agent runner and the HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set during build.
var Version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "tracewright",
	Short: "Browser automation agent that records runs as Playwright tests",
	Long: `tracewright drives a real browser from a natural-language task,
records every executed action, and synthesizes a deterministic
Playwright test from the recorded trace.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
