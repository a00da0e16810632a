package controllers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kinolog/kinolog/internal/faults"
	"github.com/kinolog/kinolog/internal/models"
)

func seedShows(t *testing.T, db *models.Database, ids ...uint) {
	t.Helper()
	for _, id := range ids {
		if _, err := db.CreateShowIfAbsent(&models.Show{ID: id, Title: "seed", Type: models.ShowTypeMovie}); err != nil {
			t.Fatalf("seed show %d: %v", id, err)
		}
	}
}

func movieDetailHTML(title string, year int) string {
	return fmt.Sprintf(`<html><body>
  <h1 class="title">%s</h1>
  <span class="year">%d</span>
  <span class="duration">01:30:00</span>
</body></html>`, title, year)
}

func TestGapScanFillsMissingIDs(t *testing.T) {
	db := newTestDB(t)
	seedShows(t, db, 1, 2, 5)

	sess := &fakeSession{pages: map[string]string{
		testURLs.Show(3): movieDetailHTML("Найденный", 2020),
		// ID 4 was deleted from the site: its page has no show markup
		testURLs.Show(4): "<html><body>Страница не найдена</body></html>",
	}}
	scanner := newScanner(db, sess)

	added, err := scanner.RunGapScan(context.Background())
	if err != nil {
		t.Fatalf("RunGapScan failed: %v", err)
	}
	if added != 1 {
		t.Errorf("Expected 1 show recovered from the gap, got %d", added)
	}

	show, err := db.GetShowByID(3)
	if err != nil || show == nil {
		t.Fatalf("Show 3 should exist after the gap scan, got %v / %v", show, err)
	}
	if show.Year == nil || *show.Year != 2020 {
		t.Errorf("Recovered show should carry its detail, got year %v", show.Year)
	}
	if missing, _ := db.GetShowByID(4); missing != nil {
		t.Error("An unresolvable ID must not produce a row")
	}

	// Both IDs were attempted, so the watermark covers the whole range
	wm, err := db.GetGapWatermark()
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if wm != 5 {
		t.Errorf("Expected watermark at 5, got %d", wm)
	}

	// A second pass over the same range fetches nothing
	fetched := len(sess.visited)
	if added, err = scanner.RunGapScan(context.Background()); err != nil || added != 0 {
		t.Fatalf("second pass: added=%d err=%v", added, err)
	}
	if len(sess.visited) != fetched {
		t.Error("A covered range must not be re-fetched")
	}
}

func TestGapScanHoldsWatermarkOnAbort(t *testing.T) {
	db := newTestDB(t)
	seedShows(t, db, 1, 3)

	sess := &fakeSession{
		pages:    map[string]string{},
		failures: map[string]error{testURLs.Show(2): faults.ErrUnrecoverable},
	}
	scanner := newScanner(db, sess)

	_, err := scanner.RunGapScan(context.Background())
	if !errors.Is(err, faults.ErrUnrecoverable) {
		t.Fatalf("Expected the abort to surface, got %v", err)
	}

	wm, err := db.GetGapWatermark()
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if wm != 0 {
		t.Errorf("An interrupted pass must not advance the watermark, got %d", wm)
	}
}

func TestGapScanEmptyStore(t *testing.T) {
	db := newTestDB(t)
	sess := &fakeSession{pages: map[string]string{}}

	added, err := newScanner(db, sess).RunGapScan(context.Background())
	if err != nil || added != 0 {
		t.Fatalf("Empty store should be a no-op, got added=%d err=%v", added, err)
	}
	if len(sess.visited) != 0 {
		t.Error("Empty store must not open a session page")
	}
}
