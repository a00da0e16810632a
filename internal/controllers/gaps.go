package controllers

import (
	"context"

	"github.com/kinolog/kinolog/internal/faults"
	"github.com/kinolog/kinolog/internal/metrics"
	"github.com/kinolog/kinolog/internal/models"
	"github.com/kinolog/kinolog/internal/services/site"
	"github.com/sirupsen/logrus"
)

// RunGapScan reconciles holes in the site-assigned ID space: every ID
// between the stored watermark and the highest known ID that has no
// local row gets its detail page fetched once. The watermark only
// advances after every missing ID in the range has been attempted, so
// an interrupted pass re-covers the same range next time.
func (c *ScanController) RunGapScan(ctx context.Context) (int, error) {
	maxID, err := c.db.MaxShowID()
	if err != nil {
		return 0, err
	}
	if maxID == 0 {
		c.logger.Info("Store is empty, nothing to reconcile")
		return 0, nil
	}

	floor, err := c.db.GetGapWatermark()
	if err != nil {
		return 0, err
	}
	if floor >= maxID {
		c.logger.WithField("watermark", floor).Debug("Gap watermark already at the top of the ID space")
		return 0, nil
	}

	existing, err := c.db.ShowIDs()
	if err != nil {
		return 0, err
	}
	known := make(map[uint]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}

	var missing []uint
	for id := floor + 1; id <= maxID; id++ {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		if err := c.db.SetGapWatermark(maxID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	c.logger.WithFields(logrus.Fields{
		"missing": len(missing),
		"floor":   floor,
		"max_id":  maxID,
	}).Info("Starting gap reconciliation")

	sess, err := c.sessions(ctx, models.SessionAux)
	if err != nil {
		return 0, err
	}
	defer func() { sess.Release() }()

	added := 0
	for _, id := range missing {
		if err := ctx.Err(); err != nil {
			// Watermark stays put: the uncovered tail is retried later
			return added, err
		}

		if err := c.fetchMissingShow(ctx, &sess, id); err != nil {
			if faults.Classify(err) == faults.Abort {
				return added, err
			}
			// Deleted or region-locked IDs render error pages; a miss
			// here is permanent for this pass, not fatal
			c.logger.WithError(err).WithField("show_id", id).Debug("Gap ID not resolvable")
			continue
		}
		added++
		metrics.RowsAdded.WithLabelValues("shows").Inc()

		if err := c.sleep(ctx); err != nil {
			return added, err
		}
	}

	if err := c.db.SetGapWatermark(maxID); err != nil {
		return added, err
	}
	c.logger.WithFields(logrus.Fields{
		"added":     added,
		"watermark": maxID,
	}).Info("Gap reconciliation finished")

	if added > 0 && c.backup != nil {
		c.backup.Schedule()
	}
	return added, nil
}

// fetchMissingShow loads one unknown ID's detail page and creates the
// show when the page parses
func (c *ScanController) fetchMissingShow(ctx context.Context, sess *Session, id uint) error {
	html, err := c.fetchPage(ctx, sess, models.SessionAux, c.urls.Show(id))
	if err != nil {
		return err
	}

	detail, err := site.ParseShowDetail(html)
	if err != nil {
		return &faults.ItemError{Err: err}
	}

	showType := models.ShowTypeMovie
	if detail.HasEpisodes {
		showType = models.ShowTypeSeries
	}
	show := &models.Show{
		ID:            id,
		Title:         detail.Title,
		OriginalTitle: detail.OriginalTitle,
		Type:          showType,
		Year:          &detail.Year,
		Status:        detail.Status,

		KinopoiskURL:    detail.KinopoiskURL,
		KinopoiskRating: detail.KinopoiskRating,
		KinopoiskVotes:  detail.KinopoiskVotes,
		IMDBURL:         detail.IMDBURL,
		IMDBRating:      detail.IMDBRating,
		IMDBVotes:       detail.IMDBVotes,
	}
	if _, err := c.db.CreateShowIfAbsent(show); err != nil {
		return err
	}
	if err := c.db.AttachRelations(show, detail.Countries, detail.Genres, detail.Directors, detail.Actors); err != nil {
		return err
	}
	return nil
}
