package main

import (
	"fmt"

	"github.com/kinolog/kinolog/internal/models"
	"github.com/spf13/cobra"
)

var scanShowType string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan pass and exit",
}

var scanHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Incrementally sync the viewing history (episodes and movies)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := runContext()
		defer stop()

		added, err := a.scanner.RunHistoryScan(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("Added %d history rows\n", added)
		return nil
	},
}

var scanEpisodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "Sync the new-episodes listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := runContext()
		defer stop()

		added, err := a.scanner.RunNewEpisodesScan(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("Added %d history rows\n", added)
		return nil
	},
}

var scanFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Walk the whole catalog, optionally one category",
	RunE: func(cmd *cobra.Command, args []string) error {
		showType, err := parseShowType(scanShowType)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := runContext()
		defer stop()

		added, err := a.scanner.RunFullScan(ctx, showType)
		if err != nil {
			return err
		}
		cmd.Printf("Discovered %d new shows\n", added)
		return nil
	},
}

var scanGapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Reconcile holes in the site-assigned ID space",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := runContext()
		defer stop()

		added, err := a.scanner.RunGapScan(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("Recovered %d shows from gaps\n", added)
		return nil
	},
}

// parseShowType validates a --type flag value; empty means all
func parseShowType(value string) (models.ShowType, error) {
	if value == "" {
		return "", nil
	}
	for _, t := range models.AllShowTypes {
		if string(t) == value {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown show type %q", value)
}

func init() {
	scanFullCmd.Flags().StringVar(&scanShowType, "type", "", "limit the walk to one category (movie, series, cartoon, documentary)")
	scanCmd.AddCommand(scanHistoryCmd, scanEpisodesCmd, scanFullCmd, scanGapsCmd)
	rootCmd.AddCommand(scanCmd)
}
