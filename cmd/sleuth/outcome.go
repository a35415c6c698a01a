package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sleuthdev/sleuth/internal/patterns"
	"github.com/sleuthdev/sleuth/internal/types"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome <record-id> <confirmed|rejected>",
	Short: "Report whether a recommended pattern worked",
	Long: `Record the outcome of applying a learned pattern. Confirmed outcomes
raise the pattern's confidence; rejected outcomes lower it. The pattern
log is append-only, so the history of outcomes is preserved.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		recordID := args[0]
		outcome := types.Outcome(args[1])

		store, err := patterns.Open(resolvePath(cfg.PatternsPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		updated, err := store.UpdateOutcome(recordID, outcome)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s %s\n", green("✓ Recorded"), updated.Outcome)
		fmt.Printf("  %s\n", updated.RecommendationText)
		fmt.Printf("  %s\n", gray(fmt.Sprintf("confidence %.2f, observed %dx",
			updated.Confidence, updated.ObservationCount)))
	},
}

func init() {
	rootCmd.AddCommand(outcomeCmd)
}
