package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sleuthdev/sleuth/internal/ai"
	"github.com/sleuthdev/sleuth/internal/triage"
)

var flagTriageWrite bool

var triageCmd = &cobra.Command{
	Use:   "triage <issue-id>",
	Short: "Assess an issue's validity and severity",
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

		transport, err := ai.NewAnthropicTransport(ai.TransportConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.Model,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		triager := triage.NewTriager(
			trackerClient,
			ai.NewInvoker(transport, ai.DefaultRetryConfig()),
			triage.Config{
				MaxAgentAttempts: cfg.MaxAgentAttempts,
				EnableWriteBack:  flagTriageWrite || cfg.EnableWrites,
			},
		)

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Triaging "+issueID+" ==="))

		assessment, err := triager.Triage(ctx, issueID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		printAssessment(assessment)
	},
}

func init() {
	triageCmd.Flags().BoolVar(&flagTriageWrite, "write", false, "post the assessment back to the tracker")
	rootCmd.AddCommand(triageCmd)
}

// printAssessment renders a triage assessment to stdout
func printAssessment(a *triage.Assessment) {
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	validity := red("invalid")
	if a.Valid {
		validity = green("valid")
	}
	actionable := red("not actionable")
	if a.Actionable {
		actionable = green("actionable")
	}
	fmt.Printf("%s %s, %s\n", yellow("Validity:"), validity, actionable)
	fmt.Printf("  %s\n", a.ValidityReasoning)
	if len(a.MissingContext) > 0 {
		fmt.Printf("  %s\n", gray("missing context:"))
		for _, item := range a.MissingContext {
			fmt.Printf("    - %s\n", item)
		}
	}
	fmt.Println()

	severity := green(string(a.Severity))
	if a.Severity == triage.SeverityP0 || a.Severity == triage.SeverityP1 {
		severity = red(string(a.Severity))
	}
	fmt.Printf("%s %s %s\n", yellow("Severity:"), severity, gray(fmt.Sprintf("(priority %d)", a.Priority)))
	fmt.Printf("  %s\n", a.SeverityReasoning)
	fmt.Println()

	for _, w := range a.Warnings {
		fmt.Printf("%s %s\n", red("⚠"), gray(w))
	}
	fmt.Printf("%s\n", gray(fmt.Sprintf("completed in %s", a.Duration.Round(time.Millisecond))))
}
