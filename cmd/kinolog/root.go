package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kinolog/kinolog/internal/browser"
	"github.com/kinolog/kinolog/internal/config"
	"github.com/kinolog/kinolog/internal/controllers"
	"github.com/kinolog/kinolog/internal/models"
	"github.com/kinolog/kinolog/internal/services/site"
	"github.com/kinolog/kinolog/internal/services/twofactor"
	"github.com/kinolog/kinolog/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// codePollInterval is how often a waiting login re-checks the code store
const codePollInterval = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:           "kinolog",
	Short:         "Mirrors a streaming site's catalog and viewing history into a local store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// app bundles everything a command needs after bootstrap
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *models.Database
	scanner *controllers.ScanController
	backup  *controllers.BackupTrigger
}

// newApp loads configuration and wires the full object graph
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database initialized")

	urls := site.URLs{Base: cfg.SiteBaseURL}

	cookies, err := browser.NewCookieStore(cfg.CookieDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cookie store: %w", err)
	}

	var uploader controllers.Uploader
	if cfg.BackupDir != "" {
		uploader = utils.NewSnapshotUploader(cfg.BackupDir, cfg.DatabaseFile, cfg.CookieDir, logger)
	}
	backup := controllers.NewBackupTrigger(uploader, cfg.BackupTimeout, logger)

	bridge := twofactor.NewBridge(db, cfg.CodeTTL, codePollInterval, logger)
	factory := browser.NewChromedpFactory(cfg.Headless, cfg.ChromePath)
	sessCfg := browser.Config{
		URLs: urls,
		Credentials: map[models.SessionKind]browser.Credentials{
			models.SessionMain: {Username: cfg.MainUsername, Password: cfg.MainPassword},
			models.SessionAux:  {Username: cfg.AuxUsername, Password: cfg.AuxPassword},
		},
		LoginWait: cfg.OTPWait,
	}

	sessions := func(ctx context.Context, kind models.SessionKind) (controllers.Session, error) {
		ctrl := browser.NewController(kind, sessCfg, factory, cookies, bridge, backup.Schedule, logger)
		if err := ctrl.Acquire(ctx); err != nil {
			return nil, err
		}
		return ctrl, nil
	}

	refresher := controllers.NewRefreshController(db, urls, cfg.StaleAfter, logger)
	scanner := controllers.NewScanController(db, urls, sessions, refresher, backup, controllers.ScanConfig{
		PageDelay:        cfg.PageDelay,
		CheckpointWindow: cfg.CheckpointWindow,
	}, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		scanner: scanner,
		backup:  backup,
	}, nil
}

// close waits out in-flight backups and releases the store
func (a *app) close() {
	a.backup.Flush()
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}

// runContext is cancelled by SIGINT/SIGTERM so a long crawl can stop
// at the next page boundary
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
