package scheduler

import (
	"context"
	"fmt"

	"github.com/kinolog/kinolog/internal/config"
	"github.com/kinolog/kinolog/internal/controllers"
	"github.com/kinolog/kinolog/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// detailBatchSize bounds one nightly top-up so the aux session is not
// held open for hours
const detailBatchSize = 200

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron     *cron.Cron
	scanCtrl *controllers.ScanController
	db       *models.Database
	cfg      *config.Config
	logger   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler(scanCtrl *controllers.ScanController, db *models.Database, cfg *config.Config, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(),
		scanCtrl: scanCtrl,
		db:       db,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"history scan", s.cfg.HistoryCron, s.runHistoryScan},
		{"new-episodes scan", s.cfg.EpisodesCron, s.runNewEpisodesScan},
		{"full catalog scan", s.cfg.FullScanCron, s.runFullScan},
		{"gap scan", s.cfg.GapScanCron, s.runGapScan},
		{"detail top-up", s.cfg.DetailsCron, s.runDetailTopUp},
		{"code sweep", "*/15 * * * *", s.runCodeSweep},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("failed to add %s job: %w", job.name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// Run an initial history scan immediately so a fresh deployment
	// does not wait for the first cron tick
	go s.runHistoryScan()

	return nil
}

// Stop stops the scheduler and cancels jobs in flight
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	s.cron.Stop()
}

// runHistoryScan executes the incremental history job
func (s *Scheduler) runHistoryScan() {
	s.logger.Info("Running scheduled history scan")

	added, err := s.scanCtrl.RunHistoryScan(s.ctx)
	if err != nil {
		s.logger.WithError(err).Error("History scan failed")
		return
	}
	s.logger.WithField("added", added).Info("History scan completed")
}

// runNewEpisodesScan executes the new-episodes job
func (s *Scheduler) runNewEpisodesScan() {
	s.logger.Info("Running scheduled new-episodes scan")

	added, err := s.scanCtrl.RunNewEpisodesScan(s.ctx)
	if err != nil {
		s.logger.WithError(err).Error("New-episodes scan failed")
		return
	}
	s.logger.WithField("added", added).Info("New-episodes scan completed")
}

// runFullScan executes the full catalog walk across every category
func (s *Scheduler) runFullScan() {
	s.logger.Info("Running scheduled full catalog scan")

	added, err := s.scanCtrl.RunFullScan(s.ctx, "")
	if err != nil {
		s.logger.WithError(err).Error("Full catalog scan failed")
		return
	}
	s.logger.WithField("added", added).Info("Full catalog scan completed")
}

// runGapScan executes the ID-space reconciliation job
func (s *Scheduler) runGapScan() {
	s.logger.Info("Running scheduled gap scan")

	added, err := s.scanCtrl.RunGapScan(s.ctx)
	if err != nil {
		s.logger.WithError(err).Error("Gap scan failed")
		return
	}
	s.logger.WithField("added", added).Info("Gap scan completed")
}

// runDetailTopUp refreshes missing or stale detail and durations in
// bounded batches
func (s *Scheduler) runDetailTopUp() {
	s.logger.Info("Running scheduled detail top-up")

	details, err := s.scanCtrl.UpdateDetails(s.ctx, detailBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Detail top-up failed")
		return
	}
	durations, err := s.scanCtrl.UpdateDurations(s.ctx, detailBatchSize, "")
	if err != nil {
		s.logger.WithError(err).Error("Duration top-up failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"details":   details,
		"durations": durations,
	}).Info("Detail top-up completed")
}

// runCodeSweep drops one-time codes past their lifetime
func (s *Scheduler) runCodeSweep() {
	deleted, err := s.db.DeleteExpiredCodes(s.cfg.CodeTTL)
	if err != nil {
		s.logger.WithError(err).Error("Code sweep failed")
		return
	}
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Debug("Expired codes removed")
	}
}
