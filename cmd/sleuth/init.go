package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sleuthdev/sleuth/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example .sleuth/config.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		path := filepath.Join(flagRoot, ".sleuth", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "Error: %s already exists\n", path)
			os.Exit(1)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(path, []byte(config.Example()), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s\n", green("✓ Wrote"), path)
		fmt.Println("Edit it to pick a tracker backend, then run: sleuth investigate <issue-id>")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
