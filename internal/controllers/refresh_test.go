package controllers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kinolog/kinolog/internal/models"
)

const staleWindow = 90 * 24 * time.Hour

func newRefresher(db *models.Database) *RefreshController {
	return NewRefreshController(db, testURLs, staleWindow, silentLogger())
}

func intPtr(n int) *int { return &n }

// seedDetailedShow creates a show whose detail was fetched at the given
// time. UpdatedAt set on create is preserved, which is what lets these
// tests age a show.
func seedDetailedShow(t *testing.T, db *models.Database, id uint, typ models.ShowType, fetchedAt time.Time) {
	t.Helper()
	show := &models.Show{
		ID:        id,
		Title:     "seed",
		Type:      typ,
		Year:      intPtr(2000),
		UpdatedAt: fetchedAt,
	}
	if _, err := db.CreateShowIfAbsent(show); err != nil {
		t.Fatalf("seed show %d: %v", id, err)
	}
}

func TestDetailStale(t *testing.T) {
	cutoff := time.Now().Add(-staleWindow)

	noDetail := &models.Show{ID: 1, Title: "x"}
	if !DetailStale(noDetail, cutoff) {
		t.Error("A show without fetched detail is always stale")
	}

	old := &models.Show{ID: 2, Title: "x", Year: intPtr(2001), UpdatedAt: time.Now().Add(-91 * 24 * time.Hour)}
	if !DetailStale(old, cutoff) {
		t.Error("Detail fetched 91 days ago is stale")
	}

	fresh := &models.Show{ID: 3, Title: "x", Year: intPtr(2001), UpdatedAt: time.Now().Add(-89 * 24 * time.Hour)}
	if DetailStale(fresh, cutoff) {
		t.Error("Detail fetched 89 days ago is not stale")
	}
}

func TestEnsureFreshRefetchesStaleMovie(t *testing.T) {
	db := newTestDB(t)
	seedDetailedShow(t, db, 7, models.ShowTypeMovie, time.Now().Add(-91*24*time.Hour))

	sess := &fakeSession{pages: map[string]string{
		testURLs.Show(7): movieDetailHTML("Обновлённый", 2005),
	}}

	if err := newRefresher(db).EnsureFresh(context.Background(), sess, 7); err != nil {
		t.Fatalf("EnsureFresh failed: %v", err)
	}

	show, err := db.GetShowByID(7)
	if err != nil || show == nil {
		t.Fatalf("load show: %v / %v", show, err)
	}
	if show.Year == nil || *show.Year != 2005 {
		t.Errorf("Stale detail should have been re-fetched, got year %v", show.Year)
	}
	if show.Title != "Обновлённый" {
		t.Errorf("Title should follow the detail page, got %q", show.Title)
	}

	d, err := db.GetDuration(7, 0, 0)
	if err != nil || d == nil {
		t.Fatalf("duration row: %v / %v", d, err)
	}
	if d.Seconds != 5400 {
		t.Errorf("Expected 5400 seconds from 01:30:00, got %d", d.Seconds)
	}
}

func TestEnsureFreshSkipsFreshShow(t *testing.T) {
	db := newTestDB(t)
	seedDetailedShow(t, db, 8, models.ShowTypeMovie, time.Now())
	if err := db.UpsertDuration(&models.ShowDuration{ShowID: 8, Seconds: 6000}); err != nil {
		t.Fatalf("seed duration: %v", err)
	}

	sess := &fakeSession{pages: map[string]string{}}
	if err := newRefresher(db).EnsureFresh(context.Background(), sess, 8); err != nil {
		t.Fatalf("EnsureFresh failed: %v", err)
	}
	if len(sess.visited) != 0 {
		t.Errorf("A fresh show must not cost a page load, visited %v", sess.visited)
	}
}

func TestEnsureFreshMemoizesPerRun(t *testing.T) {
	db := newTestDB(t)
	seedDetailedShow(t, db, 9, models.ShowTypeMovie, time.Now().Add(-91*24*time.Hour))

	sess := &fakeSession{pages: map[string]string{
		testURLs.Show(9): movieDetailHTML("Фильм", 2010),
	}}
	r := newRefresher(db)

	if err := r.EnsureFresh(context.Background(), sess, 9); err != nil {
		t.Fatalf("first EnsureFresh: %v", err)
	}
	fetched := len(sess.visited)

	if err := r.EnsureFresh(context.Background(), sess, 9); err != nil {
		t.Fatalf("second EnsureFresh: %v", err)
	}
	if len(sess.visited) != fetched {
		t.Error("A show already ensured this run must be memoized")
	}
}

func TestRefreshDurationsPerSeason(t *testing.T) {
	db := newTestDB(t)
	seedDetailedShow(t, db, 11, models.ShowTypeSeries, time.Now())

	sess := &fakeSession{pages: map[string]string{
		testURLs.Show(11): `<html><body>
  <h1 class="title">Сериал</h1>
  <ul class="seasons"><li><a>1</a></li><li><a>2</a></li></ul>
</body></html>`,
		testURLs.Season(11, 1): `<html><body>
  <table class="episodes"><tr><td class="duration">45:00</td></tr></table>
</body></html>`,
		testURLs.Season(11, 2): `<html><body>
  <table class="episodes"><tr><td class="duration">50 мин</td></tr></table>
</body></html>`,
	}}

	show, err := db.GetShowByID(11)
	if err != nil || show == nil {
		t.Fatalf("load show: %v / %v", show, err)
	}
	if err := newRefresher(db).RefreshDurations(context.Background(), sess, show); err != nil {
		t.Fatalf("RefreshDurations failed: %v", err)
	}

	for season, want := range map[int]int{1: 2700, 2: 3000} {
		d, err := db.GetDuration(11, season, 0)
		if err != nil || d == nil {
			t.Fatalf("season %d duration: %v / %v", season, d, err)
		}
		if d.Seconds != want {
			t.Errorf("Season %d: expected %d seconds, got %d", season, want, d.Seconds)
		}
	}
}

func TestRefreshDurationsSkipsFreshSeries(t *testing.T) {
	db := newTestDB(t)
	seedDetailedShow(t, db, 13, models.ShowTypeSeries, time.Now())
	for _, season := range []int{1, 2} {
		if err := db.UpsertDuration(&models.ShowDuration{ShowID: 13, Season: season, Seconds: 2700}); err != nil {
			t.Fatalf("seed season %d duration: %v", season, err)
		}
	}

	sess := &fakeSession{pages: map[string]string{}}
	show, err := db.GetShowByID(13)
	if err != nil || show == nil {
		t.Fatalf("load show: %v / %v", show, err)
	}
	if err := newRefresher(db).RefreshDurations(context.Background(), sess, show); err != nil {
		t.Fatalf("RefreshDurations failed: %v", err)
	}
	if len(sess.visited) != 0 {
		t.Errorf("A series with only fresh durations must not cost a page load, visited %v", sess.visited)
	}
}

func TestRefreshDurationsSkipsBrokenSeason(t *testing.T) {
	db := newTestDB(t)
	seedDetailedShow(t, db, 12, models.ShowTypeSeries, time.Now())

	sess := &fakeSession{pages: map[string]string{
		testURLs.Show(12): fmt.Sprintf(`<html><body>
  <h1 class="title">%s</h1>
  <ul class="seasons"><li><a>1</a></li><li><a>2</a></li></ul>
</body></html>`, "Сериал"),
		// Season 1 renders without runtimes
		testURLs.Season(12, 1): "<html><body></body></html>",
		testURLs.Season(12, 2): `<html><body>
  <table class="episodes"><tr><td class="duration">40:00</td></tr></table>
</body></html>`,
	}}

	show, _ := db.GetShowByID(12)
	if err := newRefresher(db).RefreshDurations(context.Background(), sess, show); err != nil {
		t.Fatalf("One broken season must not fail the refresh: %v", err)
	}

	if d, _ := db.GetDuration(12, 1, 0); d != nil {
		t.Error("Broken season must not get a duration row")
	}
	d, err := db.GetDuration(12, 2, 0)
	if err != nil || d == nil || d.Seconds != 2400 {
		t.Errorf("Season 2 should still be cached, got %v / %v", d, err)
	}
}
