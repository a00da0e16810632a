package controllers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kinolog/kinolog/internal/models"
	"github.com/kinolog/kinolog/internal/services/site"
)

var testURLs = site.URLs{Base: "https://fixture.example"}

// fakeSession serves canned markup keyed by URL
type fakeSession struct {
	pages    map[string]string
	failures map[string]error // returned once, on the first navigate
	visited  []string
	released bool
	cur      string
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	if err, ok := s.failures[url]; ok {
		delete(s.failures, url)
		return err
	}
	s.visited = append(s.visited, url)
	s.cur = url
	return nil
}

func (s *fakeSession) Source(context.Context) (string, error) {
	html, ok := s.pages[s.cur]
	if !ok {
		return "", fmt.Errorf("no fixture for %s", s.cur)
	}
	return html, nil
}

func (s *fakeSession) Release() { s.released = true }

func (s *fakeSession) didVisit(url string) bool {
	for _, v := range s.visited {
		if v == url {
			return true
		}
	}
	return false
}

func newTestDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newScanner(db *models.Database, sess Session) *ScanController {
	factory := func(ctx context.Context, kind models.SessionKind) (Session, error) {
		return sess, nil
	}
	return NewScanController(db, testURLs, factory, nil, nil, ScanConfig{}, silentLogger())
}

// Fixture builders

func historyItemHTML(id uint, title, date string, season, episode int) string {
	return fmt.Sprintf(`<div class="history-item" data-season="%d" data-episode="%d">
  <a class="show-link" href="/show/%d"><span class="title">%s</span></a>
  <span class="watch-date">%s</span>
</div>`, season, episode, id, title, date)
}

func catalogItemHTML(id uint, title string) string {
	return fmt.Sprintf(`<div class="catalog-item">
  <a class="show-link" href="/show/%d"><span class="title">%s</span></a>
</div>`, id, title)
}

func listingHTML(totalPages int, items ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, item := range items {
		b.WriteString(item)
	}
	if totalPages > 1 {
		b.WriteString(`<div class="pagination">`)
		for p := 1; p <= totalPages; p++ {
			fmt.Fprintf(&b, `<a class="page">%d</a>`, p)
		}
		b.WriteString("</div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func seedWatch(t *testing.T, db *models.Database, showID uint, date time.Time, season, episode int) {
	t.Helper()
	if _, err := db.CreateShowIfAbsent(&models.Show{ID: showID, Title: "seed", Type: models.ShowTypeSeries}); err != nil {
		t.Fatalf("seed show: %v", err)
	}
	if _, err := db.InsertHistoryBatch([]models.ViewHistory{{ShowID: showID, Date: date, Season: season, Episode: episode}}); err != nil {
		t.Fatalf("seed history: %v", err)
	}
}

func historyCount(t *testing.T, db *models.Database) int64 {
	t.Helper()
	counts, err := db.GetCounts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	return counts.History
}

func TestHistoryScanStopsEarly(t *testing.T) {
	db := newTestDB(t)
	// Newest stored episode watch: 1 May 2024
	seedWatch(t, db, 100, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), 1, 1)

	sess := &fakeSession{pages: map[string]string{
		testURLs.History("episodes", 1): listingHTML(3,
			historyItemHTML(101, "Новинка", "10 мая 2024", 1, 2),
			historyItemHTML(102, "Свежее", "5 мая 2024", 3, 5),
		),
		testURLs.History("episodes", 2): listingHTML(3,
			historyItemHTML(103, "Старое", "20 апреля 2024", 2, 1),
		),
		// Page 3 exists per the pagination control but must never be
		// fetched once page 2 surfaces a previously seen date
		testURLs.History("movies", 1): listingHTML(1),
	}}

	added, err := newScanner(db, sess).RunHistoryScan(context.Background())
	if err != nil {
		t.Fatalf("RunHistoryScan failed: %v", err)
	}
	if added != 2 {
		t.Errorf("Expected 2 new rows from the fresh page, got %d", added)
	}
	if sess.didVisit(testURLs.History("episodes", 3)) {
		t.Error("Crawl must stop after the page that contained a previously seen date")
	}
	if !sess.didVisit(testURLs.History("episodes", 2)) {
		t.Error("The page containing the older item must still be fetched and fully processed")
	}
	if n := historyCount(t, db); n != 3 {
		t.Errorf("Expected 3 history rows (1 seeded + 2 new), got %d", n)
	}

	// Shows referenced by the listing exist as stubs even when their
	// watch row fell behind the watermark
	for _, id := range []uint{101, 102, 103} {
		show, err := db.GetShowByID(id)
		if err != nil || show == nil {
			t.Errorf("Show %d should have been created from the listing, got %v / %v", id, show, err)
		}
	}
}

func TestHistoryScanIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	sess := &fakeSession{pages: map[string]string{
		testURLs.History("episodes", 1): listingHTML(1,
			historyItemHTML(201, "Сериал", "10 мая 2024", 1, 1),
			historyItemHTML(201, "Сериал", "9 мая 2024", 1, 2),
		),
		testURLs.History("movies", 1): listingHTML(1,
			historyItemHTML(202, "Фильм", "8 мая 2024", 0, 0),
		),
	}}
	scanner := newScanner(db, sess)

	added, err := scanner.RunHistoryScan(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if added != 3 {
		t.Fatalf("Expected 3 rows on first run, got %d", added)
	}

	added, err = scanner.RunHistoryScan(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if added != 0 {
		t.Errorf("Second run over identical listings must add nothing, got %d", added)
	}
	if n := historyCount(t, db); n != 3 {
		t.Errorf("Expected 3 rows after both runs, got %d", n)
	}
}

func TestHistoryScanResumesFromCheckpoint(t *testing.T) {
	db := newTestDB(t)
	// A crashed run got through page 1 but never finished
	if err := db.RecordCheckpoint(models.ScanTypeHistory, "episodes", 1, false, nil); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	sess := &fakeSession{pages: map[string]string{
		// Page 1 deliberately has no fixture: fetching it would fail
		testURLs.History("episodes", 2): listingHTML(2,
			historyItemHTML(301, "Продолжение", "3 мая 2024", 1, 4),
		),
		testURLs.History("movies", 1): listingHTML(1),
	}}

	added, err := newScanner(db, sess).RunHistoryScan(context.Background())
	if err != nil {
		t.Fatalf("RunHistoryScan failed: %v", err)
	}
	if added != 1 {
		t.Errorf("Expected 1 row from the resumed page, got %d", added)
	}
	if sess.didVisit(testURLs.History("episodes", 1)) {
		t.Error("Resume must skip pages already covered by the checkpoint")
	}
}

func TestHistoryScanResumeKeepsPreScanWatermark(t *testing.T) {
	db := newTestDB(t)
	// A crashed deep import inserted page 1 before dying. Its own
	// insert is now the newest stored date; the resumed run must not
	// treat it as the early-stop boundary.
	seedWatch(t, db, 100, time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC), 1, 1)
	if err := db.RecordCheckpoint(models.ScanTypeHistory, "episodes", 1, false, nil); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	sess := &fakeSession{pages: map[string]string{
		testURLs.History("episodes", 2): listingHTML(3,
			historyItemHTML(301, "Хвост", "3 мая 2024", 1, 2),
		),
		testURLs.History("episodes", 3): listingHTML(3,
			historyItemHTML(302, "Глубже", "1 мая 2024", 2, 1),
		),
		testURLs.History("movies", 1): listingHTML(1),
	}}

	added, err := newScanner(db, sess).RunHistoryScan(context.Background())
	if err != nil {
		t.Fatalf("RunHistoryScan failed: %v", err)
	}
	if added != 2 {
		t.Errorf("Resumed run must import the remaining tail, got %d rows", added)
	}
	if !sess.didVisit(testURLs.History("episodes", 3)) {
		t.Error("Resumed run must reach the last page instead of stopping on its own earlier inserts")
	}
	if n := historyCount(t, db); n != 3 {
		t.Errorf("Expected 3 history rows after resume, got %d", n)
	}
}

func TestHistoryScanFailsWhenFirstPageUnavailable(t *testing.T) {
	db := newTestDB(t)
	// No fixtures at all: the very first page fetch fails, so the page
	// count is never learned
	sess := &fakeSession{pages: map[string]string{}}

	_, err := newScanner(db, sess).RunHistoryScan(context.Background())
	if err == nil {
		t.Fatal("A failed first page must surface an error, not finish silently")
	}
	if !strings.Contains(err.Error(), "first listing page") {
		t.Errorf("Expected a first-page fetch error, got %v", err)
	}

	cp, cerr := db.LatestCheckpoint(models.ScanTypeHistory, "episodes", time.Time{})
	if cerr != nil {
		t.Fatalf("checkpoint lookup: %v", cerr)
	}
	if cp != nil {
		t.Errorf("No checkpoint may be recorded for an unfetched scan, got page %d", cp.Page)
	}
}

func TestFullScanWalksCategoryAndSkipsWhenDone(t *testing.T) {
	db := newTestDB(t)
	sess := &fakeSession{pages: map[string]string{
		testURLs.Catalog("series", 1): listingHTML(2,
			catalogItemHTML(401, "Первый"),
			catalogItemHTML(402, "Второй"),
		),
		testURLs.Catalog("series", 2): listingHTML(2,
			catalogItemHTML(403, "Третий"),
		),
	}}
	scanner := newScanner(db, sess)

	added, err := scanner.RunFullScan(context.Background(), models.ShowTypeSeries)
	if err != nil {
		t.Fatalf("RunFullScan failed: %v", err)
	}
	if added != 3 {
		t.Errorf("Expected 3 shows discovered, got %d", added)
	}

	// The completed category is skipped inside the checkpoint window
	fetched := len(sess.visited)
	added, err = scanner.RunFullScan(context.Background(), models.ShowTypeSeries)
	if err != nil {
		t.Fatalf("second RunFullScan failed: %v", err)
	}
	if added != 0 || len(sess.visited) != fetched {
		t.Errorf("Completed category must be skipped: added=%d, extra fetches=%d", added, len(sess.visited)-fetched)
	}
}

func TestScanRecreatesDeadSession(t *testing.T) {
	db := newTestDB(t)
	pages := map[string]string{
		testURLs.History("episodes", 1): listingHTML(1,
			historyItemHTML(501, "Запись", "2 мая 2024", 1, 1),
		),
		testURLs.History("movies", 1): listingHTML(1),
	}

	first := &fakeSession{
		pages:    pages,
		failures: map[string]error{testURLs.History("episodes", 1): errors.New("chrome not reachable")},
	}
	second := &fakeSession{pages: pages}

	queue := []Session{first, second}
	factory := func(ctx context.Context, kind models.SessionKind) (Session, error) {
		s := queue[0]
		queue = queue[1:]
		return s, nil
	}
	scanner := NewScanController(db, testURLs, factory, nil, nil, ScanConfig{}, silentLogger())

	added, err := scanner.RunHistoryScan(context.Background())
	if err != nil {
		t.Fatalf("RunHistoryScan failed: %v", err)
	}
	if added != 1 {
		t.Errorf("Expected the row despite the dead session, got %d", added)
	}
	if !first.released {
		t.Error("Dead session must be released before a replacement is acquired")
	}
	if len(queue) != 0 {
		t.Error("Replacement session should have been acquired from the factory")
	}
}

func TestHistoryScanHonorsCancellation(t *testing.T) {
	db := newTestDB(t)
	sess := &fakeSession{pages: map[string]string{}}
	scanner := newScanner(db, sess)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := scanner.RunHistoryScan(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(sess.visited) != 0 {
		t.Error("A cancelled scan must not fetch any pages")
	}
}
