package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sleuthdev/sleuth/internal/ai"
	"github.com/sleuthdev/sleuth/internal/history"
	"github.com/sleuthdev/sleuth/internal/investigate"
	"github.com/sleuthdev/sleuth/internal/patterns"
)

var (
	flagWrite      bool
	flagMaxRelated int
	flagReportDir  string
)

var investigateCmd = &cobra.Command{
	Use:   "investigate <issue-id>",
	Short: "Investigate an issue and produce cited findings",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		issueID := args[0]
		ctx := context.Background()

		trackerClient, closeTracker, err := newTrackerClient()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = closeTracker() }()

		store, err := patterns.Open(resolvePath(cfg.PatternsPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		transport, err := ai.NewAnthropicTransport(ai.TransportConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.Model,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		reportDir := flagReportDir
		if reportDir == "" {
			reportDir = cfg.ReportDir
		}

		orch := investigate.NewOrchestrator(
			trackerClient,
			history.NewResearcher(trackerClient),
			ai.NewInvoker(transport, ai.DefaultRetryConfig()),
			store,
			investigate.Config{
				MaxRelated:       pickInt(flagMaxRelated, cfg.MaxRelated),
				TopKPatterns:     cfg.TopKPatterns,
				MaxAgentAttempts: cfg.MaxAgentAttempts,
				EnableWriteBack:  flagWrite || cfg.EnableWrites,
				ReportDir:        resolvePath(reportDir),
			},
		)

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Investigating "+issueID+" ==="))

		result, err := orch.Investigate(ctx, issueID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		printResult(result)
	},
}

func init() {
	investigateCmd.Flags().BoolVar(&flagWrite, "write", false, "post the summary back to the tracker")
	investigateCmd.Flags().IntVar(&flagMaxRelated, "max-related", 0, "related issues to research (0 = configured default)")
	investigateCmd.Flags().StringVar(&flagReportDir, "report-dir", "", "directory for markdown reports")
	rootCmd.AddCommand(investigateCmd)
}

func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(flagRoot, p)
}

func pickInt(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}
