package main

import (
	"context"
	"fmt"

	"github.com/kinolog/kinolog/internal/api"
	"github.com/kinolog/kinolog/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP server until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		a.logger.Info("Starting Kinolog")

		sched := scheduler.NewScheduler(a.scanner, a.db, a.cfg, a.logger)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()

		server := api.NewServer(a.cfg, a.db, a.logger)

		ctx, stop := runContext()
		defer stop()

		serverErrChan := make(chan error, 1)
		go func() {
			if err := server.Start(ctx); err != nil {
				serverErrChan <- err
			}
		}()

		a.logger.Info("Kinolog is running")

		select {
		case err := <-serverErrChan:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			a.logger.Info("Received shutdown signal")
			if err := server.Shutdown(context.Background()); err != nil {
				a.logger.WithError(err).Error("Error during server shutdown")
			}
		}

		a.logger.Info("Kinolog stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
