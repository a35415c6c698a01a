package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sleuthdev/sleuth/internal/patterns"
	"github.com/sleuthdev/sleuth/internal/types"
)

var flagAllPatterns bool

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List learned patterns",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := patterns.Open(resolvePath(cfg.PatternsPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		records, err := store.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(records) == 0 {
			fmt.Printf("%s\n", gray("No learned patterns yet"))
			return
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		shown := 0
		for _, rec := range records {
			if !flagAllPatterns && rec.Confidence < patterns.ConfidenceFloor {
				continue
			}
			shown++

			outcomeColor := yellow
			switch rec.Outcome {
			case types.OutcomeConfirmed:
				outcomeColor = green
			case types.OutcomeRejected:
				outcomeColor = red
			}

			fmt.Printf("%s %s\n", outcomeColor("●"), rec.RecommendationText)
			fmt.Printf("  %s\n", gray(fmt.Sprintf("%s, confidence %.2f, observed %dx, updated %s",
				rec.Outcome, rec.Confidence, rec.ObservationCount,
				rec.UpdatedAt.Format("2006-01-02 15:04"))))
			fmt.Printf("  %s\n", gray("id: "+rec.RecordID))
			fmt.Printf("  %s\n", gray("signature: "+rec.Signature))
		}

		if shown < len(records) {
			fmt.Printf("\n%s\n", gray(fmt.Sprintf(
				"%d pattern(s) below the confidence floor hidden (use --all)", len(records)-shown)))
		}
	},
}

func init() {
	patternsCmd.Flags().BoolVar(&flagAllPatterns, "all", false, "include patterns below the confidence floor")
	rootCmd.AddCommand(patternsCmd)
}
