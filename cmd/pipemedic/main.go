// Package main implements the pipemedic CLI: scan GitHub Actions for
// failed workflow runs, remediate what can be remediated, escalate the
// rest, and serve a dashboard over the results.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pipemedic",
	Short: "Automated remediation for failed GitHub Actions workflows",
	Long: `pipemedic watches GitHub Actions for failed workflow runs, classifies
the failures, commits safe automatic fixes on isolated branches, retries
transient failures with backoff, and escalates everything else as GitHub
issues.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/pipemedic/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(dashboardCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Scan for failed workflow runs and remediate them",
	Long: `Run one full cycle: scan the configured repositories for failed
workflow runs within the lookback window, process each failure through the
remediation pipeline, and print a summary.

Examples:
  pipemedic monitor
  pipemedic monitor --config ./pipemedic.yaml --debug`,
	RunE: runMonitor,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Detect failed workflow runs without remediating",
	Long: `Scan the configured repositories and print the failures found.
No fixes are committed, no retries triggered, no issues filed.`,
	RunE: runScan,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the results dashboard",
	Long: `Serve an HTTP read view of scan results with a scan-trigger
endpoint and Prometheus metrics. Shuts down gracefully on SIGINT/SIGTERM.`,
	RunE: runDashboard,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	app, err := newApp(configPath, debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer app.Close()
	return app.Monitor(cmd.Context())
}

func runScan(cmd *cobra.Command, args []string) error {
	app, err := newApp(configPath, debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer app.Close()
	return app.Scan(cmd.Context())
}

func runDashboard(cmd *cobra.Command, args []string) error {
	app, err := newApp(configPath, debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer app.Close()
	return app.Dashboard(cmd.Context())
}
