package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/kinolog/kinolog/internal/faults"
	"github.com/kinolog/kinolog/internal/metrics"
	"github.com/kinolog/kinolog/internal/models"
	"github.com/kinolog/kinolog/internal/services/site"
	"github.com/sirupsen/logrus"
)

// SessionFactory acquires an authenticated session for an identity.
// Each scan owns exactly one session at a time.
type SessionFactory func(ctx context.Context, kind models.SessionKind) (Session, error)

// ScanConfig bounds the crawler's politeness and resume behavior
type ScanConfig struct {
	PageDelay        time.Duration // fixed inter-page delay
	CheckpointWindow time.Duration // how far back resume lookup reaches
}

// ScanController drives the pagination crawler over the site's
// listings: incremental history, new episodes, full catalog and the
// gap reconciliation pass
type ScanController struct {
	db        *models.Database
	urls      site.URLs
	sessions  SessionFactory
	refresher *RefreshController
	backup    *BackupTrigger
	cfg       ScanConfig
	logger    *logrus.Logger
}

// NewScanController creates a scan controller. refresher may be nil to
// skip per-item detail freshening (gap-only deployments).
func NewScanController(db *models.Database, urls site.URLs, sessions SessionFactory, refresher *RefreshController, backup *BackupTrigger, cfg ScanConfig, logger *logrus.Logger) *ScanController {
	if cfg.CheckpointWindow == 0 {
		cfg.CheckpointWindow = 24 * time.Hour
	}
	return &ScanController{
		db:        db,
		urls:      urls,
		sessions:  sessions,
		refresher: refresher,
		backup:    backup,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunHistoryScan walks the episode and movie history listings
// incrementally, stopping early once previously seen dates appear.
// Returns the number of history rows added.
func (c *ScanController) RunHistoryScan(ctx context.Context) (int, error) {
	sess, err := c.sessions(ctx, models.SessionMain)
	if err != nil {
		return 0, err
	}
	defer func() { sess.Release() }()

	added := 0
	for _, mode := range []models.HistoryMode{models.ModeEpisodes, models.ModeMovies} {
		n, stopped, err := c.crawlHistory(ctx, &sess, models.SessionMain, models.ScanTypeHistory, mode, func(page int) string {
			return c.urls.History(string(mode), page)
		})
		added += n
		if err != nil {
			return added, err
		}
		c.logger.WithFields(logrus.Fields{
			"mode":          mode,
			"added":         n,
			"stopped_early": stopped,
		}).Info("History mode scanned")
	}

	if added > 0 && c.backup != nil {
		c.backup.Schedule()
	}
	return added, nil
}

// RunNewEpisodesScan walks the new-episodes listing with the same
// early-stop rule as the history scan
func (c *ScanController) RunNewEpisodesScan(ctx context.Context) (int, error) {
	sess, err := c.sessions(ctx, models.SessionMain)
	if err != nil {
		return 0, err
	}
	defer func() { sess.Release() }()

	added, stopped, err := c.crawlHistory(ctx, &sess, models.SessionMain, models.ScanTypeEpisodes, models.ModeEpisodes, c.urls.NewEpisodes)
	if err != nil {
		return added, err
	}
	c.logger.WithFields(logrus.Fields{
		"added":         added,
		"stopped_early": stopped,
	}).Info("New-episodes scan finished")

	if added > 0 && c.backup != nil {
		c.backup.Schedule()
	}
	return added, nil
}

// RunFullScan walks every catalog category (or a single one), purely
// page-count bound, resuming from the checkpoint ledger after a crash
func (c *ScanController) RunFullScan(ctx context.Context, only models.ShowType) (int, error) {
	sess, err := c.sessions(ctx, models.SessionAux)
	if err != nil {
		return 0, err
	}
	defer func() { sess.Release() }()

	categories := models.AllShowTypes
	if only != "" {
		categories = []models.ShowType{only}
	}

	added := 0
	for _, category := range categories {
		n, err := c.crawlCatalog(ctx, &sess, category)
		added += n
		if err != nil {
			return added, err
		}
	}

	if added > 0 && c.backup != nil {
		c.backup.Schedule()
	}
	return added, nil
}

// crawlHistory walks one history-style listing. Pages are processed
// strictly in ascending order; the whole page is processed before the
// early-stop rule is applied, because dates are not strictly sorted
// within a page.
func (c *ScanController) crawlHistory(ctx context.Context, sess *Session, kind models.SessionKind, scanType models.ScanType, mode models.HistoryMode, pageURL func(int) string) (int, bool, error) {
	start := 1
	window := time.Now().Add(-c.cfg.CheckpointWindow)
	cp, err := c.db.LatestCheckpoint(scanType, string(mode), window)
	if err != nil {
		return 0, false, err
	}
	resuming := cp != nil && !cp.Done
	if resuming {
		start = cp.Page + 1
		c.logger.WithFields(logrus.Fields{
			"scan": scanType,
			"mode": mode,
			"page": start,
		}).Info("Resuming from checkpoint")
	}

	// Early-stop watermark: the newest date already stored for this
	// mode before the scan began. Intentionally a single per-mode
	// date, not per (show, season, episode). A resumed run reuses the
	// crashed run's watermark from its checkpoint; a fresh query would
	// see that run's own inserts and stop on the first resumed page.
	var watermark *time.Time
	if resuming {
		watermark = cp.Watermark
	} else if watermark, err = c.db.MaxHistoryDate(mode); err != nil {
		return 0, false, err
	}

	added := 0
	total := start

	for page := start; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return added, false, err
		}

		html, err := c.fetchPage(ctx, sess, kind, pageURL(page))
		if err != nil {
			if faults.Classify(err) == faults.Abort {
				return added, false, err
			}
			if page == start {
				// No first page means no page count; a quiet empty
				// finish would look like a completed scan
				return added, false, fmt.Errorf("failed to fetch first listing page: %w", err)
			}
			c.logger.WithError(err).WithField("page", page).Error("Page fetch failed, skipping")
			continue
		}

		if page == start {
			if total, err = site.ParsePageCount(html); err != nil {
				return added, false, err
			}
		}

		items, itemErrs := site.ParseHistoryItems(html)
		for _, ierr := range itemErrs {
			c.logger.WithError(ierr).WithField("page", page).Warn("Skipping malformed item")
		}

		rows := make([]models.ViewHistory, 0, len(items))
		stop := false
		for _, item := range items {
			showType := models.ShowTypeSeries
			if item.Season == 0 && item.Episode == 0 {
				showType = models.ShowTypeMovie
			}
			if _, err := c.db.CreateShowIfAbsent(&models.Show{
				ID:            item.ShowID,
				Title:         item.Title,
				OriginalTitle: item.OriginalTitle,
				Type:          showType,
			}); err != nil {
				c.logger.WithError(err).WithField("show_id", item.ShowID).Error("Failed to upsert show stub")
				continue
			}

			if watermark != nil && item.Date.Before(*watermark) {
				// Previously seen: finish the page, then stop
				stop = true
				continue
			}
			rows = append(rows, models.ViewHistory{
				ShowID:  item.ShowID,
				Date:    item.Date,
				Season:  item.Season,
				Episode: item.Episode,
			})
		}

		n, err := c.db.InsertHistoryBatch(rows)
		if err != nil {
			return added, false, err
		}
		added += n
		metrics.PagesScanned.WithLabelValues(string(scanType)).Inc()
		metrics.RowsAdded.WithLabelValues("history").Add(float64(n))

		c.freshenPageShows(ctx, *sess, items)

		if err := c.db.RecordCheckpoint(scanType, string(mode), page, stop || page == total, watermark); err != nil {
			c.logger.WithError(err).Warn("Failed to record checkpoint")
		}

		if stop {
			return added, true, nil
		}
		if page < total {
			if err := c.sleep(ctx); err != nil {
				return added, false, err
			}
		}
	}

	return added, false, nil
}

// crawlCatalog walks one catalog category, page-count bound only
func (c *ScanController) crawlCatalog(ctx context.Context, sess *Session, category models.ShowType) (int, error) {
	window := time.Now().Add(-c.cfg.CheckpointWindow)
	cp, err := c.db.LatestCheckpoint(models.ScanTypeFull, string(category), window)
	if err != nil {
		return 0, err
	}
	start := 1
	if cp != nil {
		if cp.Done {
			c.logger.WithField("category", category).Info("Category already completed in window, skipping")
			return 0, nil
		}
		start = cp.Page + 1
		c.logger.WithFields(logrus.Fields{
			"category": category,
			"page":     start,
		}).Info("Resuming catalog scan from checkpoint")
	}

	added := 0
	total := start

	for page := start; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		html, err := c.fetchPage(ctx, sess, models.SessionAux, c.urls.Catalog(string(category), page))
		if err != nil {
			if faults.Classify(err) == faults.Abort {
				return added, err
			}
			if page == start {
				return added, fmt.Errorf("failed to fetch first catalog page: %w", err)
			}
			c.logger.WithError(err).WithField("page", page).Error("Page fetch failed, skipping")
			continue
		}

		if page == start {
			if total, err = site.ParsePageCount(html); err != nil {
				return added, err
			}
		}

		items, itemErrs := site.ParseCatalogItems(html)
		for _, ierr := range itemErrs {
			c.logger.WithError(ierr).WithField("page", page).Warn("Skipping malformed item")
		}

		for _, item := range items {
			created, err := c.db.CreateShowIfAbsent(&models.Show{
				ID:            item.ShowID,
				Title:         item.Title,
				OriginalTitle: item.OriginalTitle,
				Type:          category,
			})
			if err != nil {
				c.logger.WithError(err).WithField("show_id", item.ShowID).Error("Failed to upsert show")
				continue
			}
			if created {
				added++
				metrics.RowsAdded.WithLabelValues("shows").Inc()
			}
		}
		metrics.PagesScanned.WithLabelValues(string(models.ScanTypeFull)).Inc()

		if err := c.db.RecordCheckpoint(models.ScanTypeFull, string(category), page, page == total, nil); err != nil {
			c.logger.WithError(err).Warn("Failed to record checkpoint")
		}

		if page < total {
			if err := c.sleep(ctx); err != nil {
				return added, err
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"category": category,
		"added":    added,
	}).Info("Catalog category scanned")
	return added, nil
}

// UpdateDetails re-fetches extended detail for up to limit shows whose
// detail is missing or stale. Returns the number of shows processed.
func (c *ScanController) UpdateDetails(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().Add(-c.refresher.staleAfter)
	shows, err := c.db.ShowsMissingDetail(limit, cutoff)
	if err != nil {
		return 0, err
	}
	if len(shows) == 0 {
		return 0, nil
	}

	sess, err := c.sessions(ctx, models.SessionAux)
	if err != nil {
		return 0, err
	}
	defer func() { sess.Release() }()

	processed := 0
	for _, show := range shows {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := c.refresher.RefreshDetail(ctx, sess, show); err != nil {
			if faults.Classify(err) != faults.Retryable {
				return processed, err
			}
			c.logger.WithError(err).WithField("show_id", show.ID).Warn("Detail refresh failed, skipping")
			continue
		}
		processed++
		if err := c.sleep(ctx); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// UpdateDurations re-fetches runtimes for up to limit shows lacking a
// fresh duration row, optionally filtered by type
func (c *ScanController) UpdateDurations(ctx context.Context, limit int, only models.ShowType) (int, error) {
	cutoff := time.Now().Add(-c.refresher.staleAfter)
	shows, err := c.db.ShowsMissingDuration(limit, only, cutoff)
	if err != nil {
		return 0, err
	}
	if len(shows) == 0 {
		return 0, nil
	}

	sess, err := c.sessions(ctx, models.SessionAux)
	if err != nil {
		return 0, err
	}
	defer func() { sess.Release() }()

	processed := 0
	for _, show := range shows {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := c.refresher.RefreshDurations(ctx, sess, show); err != nil {
			if faults.Classify(err) != faults.Retryable {
				return processed, err
			}
			c.logger.WithError(err).WithField("show_id", show.ID).Warn("Duration refresh failed, skipping")
			continue
		}
		processed++
		if err := c.sleep(ctx); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// freshenPageShows runs the staleness refresher over the shows seen on
// one listing page. Failures are item-level: logged and skipped.
func (c *ScanController) freshenPageShows(ctx context.Context, sess Session, items []site.HistoryItem) {
	if c.refresher == nil {
		return
	}
	seen := make(map[uint]bool)
	for _, item := range items {
		if seen[item.ShowID] {
			continue
		}
		seen[item.ShowID] = true
		if err := c.refresher.EnsureFresh(ctx, sess, item.ShowID); err != nil {
			c.logger.WithError(err).WithField("show_id", item.ShowID).Warn("Freshness check failed")
		}
	}
}

// fetchPage navigates to a listing page and returns its markup,
// recreating the session under the bounded session policy when the
// error classifier judges it dead
func (c *ScanController) fetchPage(ctx context.Context, sess *Session, kind models.SessionKind, url string) (string, error) {
	err := (*sess).Navigate(ctx, url)
	if err != nil {
		if faults.Classify(err) != faults.SessionDead {
			return "", &faults.PageError{URL: url, Err: err}
		}

		c.logger.WithError(err).Warn("Session judged dead, recreating")
		(*sess).Release()
		metrics.SessionRestarts.Inc()

		retryErr := faults.Retry(ctx, faults.SessionPolicy, func() error {
			ns, err := c.sessions(ctx, kind)
			if err != nil {
				return err
			}
			if err := ns.Navigate(ctx, url); err != nil {
				ns.Release()
				if faults.Classify(err) == faults.SessionDead {
					return err
				}
				return faults.Permanent(err)
			}
			*sess = ns
			return nil
		})
		if retryErr != nil {
			return "", fmt.Errorf("%w: %v", faults.ErrUnrecoverable, retryErr)
		}
	}

	return (*sess).Source(ctx)
}

// sleep waits out the inter-page politeness delay, respecting shutdown
func (c *ScanController) sleep(ctx context.Context) error {
	if c.cfg.PageDelay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.PageDelay):
		return nil
	}
}
