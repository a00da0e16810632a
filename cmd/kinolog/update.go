package main

import (
	"github.com/spf13/cobra"
)

var (
	updateLimit    int
	updateShowType string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh stored records against the site",
}

var updateDetailsCmd = &cobra.Command{
	Use:   "details",
	Short: "Fetch missing or stale extended detail",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := runContext()
		defer stop()

		processed, err := a.scanner.UpdateDetails(ctx, updateLimit)
		if err != nil {
			return err
		}
		cmd.Printf("Processed %d shows\n", processed)
		return nil
	},
}

var updateDurationsCmd = &cobra.Command{
	Use:   "durations",
	Short: "Fetch missing or stale runtimes",
	RunE: func(cmd *cobra.Command, args []string) error {
		showType, err := parseShowType(updateShowType)
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

		processed, err := a.scanner.UpdateDurations(ctx, updateLimit, showType)
		if err != nil {
			return err
		}
		cmd.Printf("Processed %d shows\n", processed)
		return nil
	},
}

func init() {
	updateCmd.PersistentFlags().IntVar(&updateLimit, "limit", 100, "maximum shows to process")
	updateDurationsCmd.Flags().StringVar(&updateShowType, "type", "", "limit to one category")
	updateCmd.AddCommand(updateDetailsCmd, updateDurationsCmd)
	rootCmd.AddCommand(updateCmd)
}
