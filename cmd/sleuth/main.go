// sleuth investigates tracker issues using historical evidence and an AI
// agent, producing cited findings and recommendations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sleuthdev/sleuth/internal/config"
	"github.com/sleuthdev/sleuth/internal/tracker"
)

var (
	cfg *config.Config

	// Persistent flag values
	flagRoot    string
	flagTracker string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sleuth",
	Short: "Evidence-backed issue investigation",
	Long: `Sleuth investigates a tracker issue by researching similar historical
issues and learned patterns, then synthesizes findings and recommendations
where every claim cites its evidence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		cfg, err = config.Load(flagRoot)
		if err != nil {
			return err
		}
		if flagTracker != "" {
			cfg.Tracker.Backend = flagTracker
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "project root holding .sleuth/config.yaml")
	rootCmd.PersistentFlags().StringVar(&flagTracker, "tracker", "", "tracker backend override (linear or beads)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// newTrackerClient builds the configured tracker backend. The returned
// close function is a no-op for backends without resources to release.
func newTrackerClient() (tracker.Client, func() error, error) {
	switch cfg.Tracker.Backend {
	case config.BackendLinear:
		client, err := tracker.NewLinearClient(cfg.LinearAPIKey)
		if err != nil {
			return nil, nil, err
		}
		return client, func() error { return nil }, nil
	case config.BackendBeads:
		client, err := tracker.NewBeadsClient(context.Background(), cfg.Tracker.BeadsPath, "sleuth")
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown tracker backend %q", cfg.Tracker.Backend)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
