package controllers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kinolog/kinolog/internal/faults"
	"github.com/kinolog/kinolog/internal/metrics"
	"github.com/kinolog/kinolog/internal/models"
	"github.com/kinolog/kinolog/internal/services/site"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Session is the slice of the browser session controller the crawlers
// and refreshers drive
type Session interface {
	Navigate(ctx context.Context, url string) error
	Source(ctx context.Context) (string, error)
	Release()
}

// RefreshController decides whether a show's extended detail or cached
// durations need re-fetching and performs the targeted fetches. The
// staleness window bounds expensive page loads: a show watched daily is
// still detail-fetched at most once per window.
type RefreshController struct {
	db         *models.Database
	urls       site.URLs
	staleAfter time.Duration
	memo       *cache.Cache // shows already ensured fresh this run
	logger     *logrus.Logger
}

// NewRefreshController creates a refresh controller
func NewRefreshController(db *models.Database, urls site.URLs, staleAfter time.Duration, logger *logrus.Logger) *RefreshController {
	return &RefreshController{
		db:         db,
		urls:       urls,
		staleAfter: staleAfter,
		memo:       cache.New(12*time.Hour, time.Hour),
		logger:     logger,
	}
}

// DetailStale reports whether a show's extended detail is absent or
// older than cutoff
func DetailStale(show *models.Show, cutoff time.Time) bool {
	return !show.HasDetail() || show.UpdatedAt.Before(cutoff)
}

// durationStale reports whether a cached runtime must be re-fetched
func durationStale(d *models.ShowDuration, cutoff time.Time) bool {
	return d == nil || d.UpdatedAt.Before(cutoff)
}

// EnsureFresh re-fetches a show's detail and durations when stale.
// Cheap when fresh: one store read, and at most one per show per run
// thanks to the memo.
func (r *RefreshController) EnsureFresh(ctx context.Context, sess Session, showID uint) error {
	key := strconv.FormatUint(uint64(showID), 10)
	if _, ok := r.memo.Get(key); ok {
		return nil
	}

	show, err := r.db.GetShowByID(showID)
	if err != nil {
		return fmt.Errorf("failed to load show %d: %w", showID, err)
	}
	if show == nil {
		return fmt.Errorf("show %d not in store", showID)
	}

	cutoff := time.Now().Add(-r.staleAfter)

	if DetailStale(show, cutoff) {
		if err := r.RefreshDetail(ctx, sess, show); err != nil {
			return err
		}
	}
	if err := r.RefreshDurations(ctx, sess, show); err != nil {
		return err
	}

	r.memo.Set(key, true, cache.DefaultExpiration)
	return nil
}

// RefreshDetail fetches a show's detail page and upserts the extended
// record plus its relations. Relations are appended, never removed.
func (r *RefreshController) RefreshDetail(ctx context.Context, sess Session, show *models.Show) error {
	if err := sess.Navigate(ctx, r.urls.Show(show.ID)); err != nil {
		return err
	}
	html, err := sess.Source(ctx)
	if err != nil {
		return err
	}

	detail, err := site.ParseShowDetail(html)
	if err != nil {
		return &faults.ItemError{Err: err}
	}

	show.Title = detail.Title
	show.OriginalTitle = detail.OriginalTitle
	show.Year = &detail.Year
	show.Status = detail.Status
	show.KinopoiskURL = detail.KinopoiskURL
	show.KinopoiskRating = detail.KinopoiskRating
	show.KinopoiskVotes = detail.KinopoiskVotes
	show.IMDBURL = detail.IMDBURL
	show.IMDBRating = detail.IMDBRating
	show.IMDBVotes = detail.IMDBVotes

	if err := r.db.SaveShowDetail(show); err != nil {
		return fmt.Errorf("failed to save show %d detail: %w", show.ID, err)
	}
	if err := r.db.AttachRelations(show, detail.Countries, detail.Genres, detail.Directors, detail.Actors); err != nil {
		return fmt.Errorf("failed to attach show %d relations: %w", show.ID, err)
	}

	metrics.RowsAdded.WithLabelValues("shows").Inc()
	r.logger.WithFields(logrus.Fields{
		"show_id": show.ID,
		"title":   show.Title,
	}).Debug("Show detail refreshed")
	return nil
}

// RefreshDurations re-fetches stale runtimes: once for a movie, per
// season for a series (season tabs on the show page, defaulting to
// season 1 when none are rendered)
func (r *RefreshController) RefreshDurations(ctx context.Context, sess Session, show *models.Show) error {
	cutoff := time.Now().Add(-r.staleAfter)

	if show.Type == models.ShowTypeMovie {
		d, err := r.db.GetDuration(show.ID, 0, 0)
		if err != nil {
			return err
		}
		if !durationStale(d, cutoff) {
			return nil
		}
		if err := sess.Navigate(ctx, r.urls.Show(show.ID)); err != nil {
			return err
		}
		html, err := sess.Source(ctx)
		if err != nil {
			return err
		}
		seconds, err := site.ParseEpisodeDuration(html)
		if err != nil {
			return &faults.ItemError{Err: err}
		}
		if err := r.db.UpsertDuration(&models.ShowDuration{ShowID: show.ID, Seconds: seconds}); err != nil {
			return err
		}
		metrics.RowsAdded.WithLabelValues("durations").Inc()
		return nil
	}

	// Cheap check before loading the show page: when every cached
	// season row is fresh there is nothing to re-fetch. New seasons
	// surface once the rows age past the window.
	oldest, err := r.db.OldestDurationUpdate(show.ID)
	if err != nil {
		return err
	}
	if oldest != nil && oldest.After(cutoff) {
		return nil
	}

	if err := sess.Navigate(ctx, r.urls.Show(show.ID)); err != nil {
		return err
	}
	html, err := sess.Source(ctx)
	if err != nil {
		return err
	}
	seasons, err := site.ParseSeasons(html)
	if err != nil {
		return &faults.ItemError{Err: err}
	}

	for _, season := range seasons {
		d, err := r.db.GetDuration(show.ID, season, 0)
		if err != nil {
			return err
		}
		if !durationStale(d, cutoff) {
			continue
		}
		if err := sess.Navigate(ctx, r.urls.Season(show.ID, season)); err != nil {
			return err
		}
		seasonHTML, err := sess.Source(ctx)
		if err != nil {
			return err
		}
		seconds, err := site.ParseEpisodeDuration(seasonHTML)
		if err != nil {
			// One season without runtimes must not block the rest
			r.logger.WithError(err).WithFields(logrus.Fields{
				"show_id": show.ID,
				"season":  season,
			}).Warn("Failed to extract season duration")
			continue
		}
		if err := r.db.UpsertDuration(&models.ShowDuration{ShowID: show.ID, Season: season, Seconds: seconds}); err != nil {
			return err
		}
		metrics.RowsAdded.WithLabelValues("durations").Inc()
	}
	return nil
}
