package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/sleuthdev/sleuth/internal/citation"
	"github.com/sleuthdev/sleuth/internal/types"
)

// printResult renders an investigation result to stdout
func printResult(result *types.InvestigationResult) {
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if result.Degraded {
		fmt.Printf("%s\n", red("⚠ Degraded investigation:"))
		for _, w := range result.Warnings {
			fmt.Printf("  %s\n", gray(w))
		}
		fmt.Println()
	}

	fmt.Printf("%s\n", yellow("Findings:"))
	if len(result.Findings) == 0 {
		fmt.Printf("  %s\n", gray("none"))
	}
	for i, f := range result.Findings {
		fmt.Printf("  %d. %s %s\n", i+1, f.Claim, gray(fmt.Sprintf("(%.0f%%)", f.Confidence*100)))
		for _, line := range citation.FormatForDisplay(f.Citations) {
			fmt.Printf("     %s\n", gray(line))
		}
	}
	fmt.Println()

	fmt.Printf("%s\n", yellow("Recommendations:"))
	if len(result.Recommendations) == 0 {
		fmt.Printf("  %s\n", gray("none"))
	}
	for i, r := range result.Recommendations {
		fmt.Printf("  %d. %s %s\n", i+1, green(r.Action), gray(fmt.Sprintf("(%.0f%%)", r.Confidence*100)))
		if r.Rationale != "" {
			fmt.Printf("     %s\n", r.Rationale)
		}
		for _, line := range citation.FormatForDisplay(r.Citations) {
			fmt.Printf("     %s\n", gray(line))
		}
	}
	fmt.Println()

	if len(result.PatternMatches) > 0 {
		fmt.Printf("%s\n", yellow("Matched patterns:"))
		for _, m := range result.PatternMatches {
			fmt.Printf("  %s %s\n",
				m.Record.RecommendationText,
				gray(fmt.Sprintf("(similarity %.2f, confidence %.2f, %s, id %s)",
					m.SimilarityScore, m.Record.Confidence, m.Record.Outcome, m.Record.RecordID)))
		}
		fmt.Println()
	}

	fmt.Printf("%s\n", gray(fmt.Sprintf(
		"%d related issue(s), %d citation(s), completed in %s",
		result.SimilarIssueCount, result.CitationCount,
		result.Duration.Round(time.Millisecond))))
}
