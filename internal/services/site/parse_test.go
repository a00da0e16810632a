package site

import (
	"testing"
	"time"
)

const historyPage = `<html><body>
<div class="history-list">
  <div class="history-item" data-season="3" data-episode="5">
    <a class="show-link" href="/show/4821-dark-waters"></a>
    <span class="title">Тёмные воды</span>
    <span class="original-title">Dark Waters</span>
    <span class="watch-date">12 мая 2024</span>
  </div>
  <div class="history-item">
    <a class="show-link" href="/show/317"></a>
    <span class="title">Начало</span>
    <span class="original-title">Inception</span>
    <span class="watch-date">10 мая 2024</span>
  </div>
  <div class="history-item" data-season="1" data-episode="2">
    <a class="show-link" href="/about"></a>
    <span class="title">Broken Block</span>
    <span class="watch-date">9 мая 2024</span>
  </div>
</div>
<div class="pagination">
  <a class="page" href="?page=1">1</a>
  <a class="page" href="?page=2">2</a>
  <a class="page" href="?page=12">12</a>
</div>
</body></html>`

func TestParseHistoryItems(t *testing.T) {
	items, errs := ParseHistoryItems(historyPage)

	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if len(errs) != 1 {
		t.Fatalf("Expected 1 item error for the broken block, got %d", len(errs))
	}

	ep := items[0]
	if ep.ShowID != 4821 {
		t.Errorf("Expected show ID 4821, got %d", ep.ShowID)
	}
	if ep.Title != "Тёмные воды" || ep.OriginalTitle != "Dark Waters" {
		t.Errorf("Title mismatch: %q / %q", ep.Title, ep.OriginalTitle)
	}
	if ep.Season != 3 || ep.Episode != 5 {
		t.Errorf("Expected S3E5, got S%dE%d", ep.Season, ep.Episode)
	}
	want := time.Date(2024, time.May, 12, 0, 0, 0, 0, time.UTC)
	if !ep.Date.Equal(want) {
		t.Errorf("Expected date %v, got %v", want, ep.Date)
	}

	movie := items[1]
	if movie.ShowID != 317 {
		t.Errorf("Expected show ID 317, got %d", movie.ShowID)
	}
	if movie.Season != 0 || movie.Episode != 0 {
		t.Errorf("Movie watch should have season=0/episode=0, got S%dE%d", movie.Season, movie.Episode)
	}
}

func TestParsePageCount(t *testing.T) {
	total, err := ParsePageCount(historyPage)
	if err != nil {
		t.Fatalf("ParsePageCount failed: %v", err)
	}
	if total != 12 {
		t.Errorf("Expected 12 pages, got %d", total)
	}

	total, err = ParsePageCount("<html><body><div class=\"history-list\"></div></body></html>")
	if err != nil {
		t.Fatalf("ParsePageCount failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Listing without pagination should be 1 page, got %d", total)
	}
}

const detailPage = `<html><body>
<h1 class="title">Тёмные воды</h1>
<span class="original-title">Dark Waters</span>
<span class="year">2019 г.</span>
<span class="status">завершён</span>
<a class="rating-kinopoisk" href="https://kp.example/film/1125919/">
  <span class="value">7,4</span><span class="votes">115 320</span>
</a>
<a class="rating-imdb" href="https://imdb.example/title/tt9071322/">
  <span class="value">7.6</span><span class="votes">78104</span>
</a>
<div class="countries"><a>США</a></div>
<div class="genres"><a>драма</a><a>биография</a></div>
<div class="crew">
  <a class="director">Тодд Хейнс</a>
  <a class="actor">Марк Руффало</a>
  <a class="actor">Энн Хэтэуэй</a>
</div>
<ul class="seasons">
  <li><a href="/show/4821/season/1">1</a></li>
  <li><a href="/show/4821/season/2">2</a></li>
</ul>
</body></html>`

func TestParseShowDetail(t *testing.T) {
	detail, err := ParseShowDetail(detailPage)
	if err != nil {
		t.Fatalf("ParseShowDetail failed: %v", err)
	}

	if detail.Year != 2019 {
		t.Errorf("Expected year 2019, got %d", detail.Year)
	}
	if detail.Status != "завершён" {
		t.Errorf("Status mismatch: %q", detail.Status)
	}
	if detail.KinopoiskRating != 7.4 {
		t.Errorf("Expected KP rating 7.4, got %v", detail.KinopoiskRating)
	}
	if detail.KinopoiskVotes != 115320 {
		t.Errorf("Expected 115320 KP votes, got %d", detail.KinopoiskVotes)
	}
	if detail.IMDBRating != 7.6 || detail.IMDBVotes != 78104 {
		t.Errorf("IMDB rating mismatch: %v / %d", detail.IMDBRating, detail.IMDBVotes)
	}
	if len(detail.Genres) != 2 || detail.Genres[0] != "драма" {
		t.Errorf("Genres mismatch: %v", detail.Genres)
	}
	if len(detail.Directors) != 1 || len(detail.Actors) != 2 {
		t.Errorf("Crew mismatch: %v / %v", detail.Directors, detail.Actors)
	}
}

func TestParseShowDetailMissingYear(t *testing.T) {
	_, err := ParseShowDetail(`<html><body><h1 class="title">Stub</h1></body></html>`)
	if err == nil {
		t.Error("Detail page without a year should fail extraction")
	}
}

func TestParseSeasons(t *testing.T) {
	seasons, err := ParseSeasons(detailPage)
	if err != nil {
		t.Fatalf("ParseSeasons failed: %v", err)
	}
	if len(seasons) != 2 || seasons[0] != 1 || seasons[1] != 2 {
		t.Errorf("Expected seasons [1 2], got %v", seasons)
	}

	seasons, err = ParseSeasons("<html><body><h1 class=\"title\">Movie</h1></body></html>")
	if err != nil {
		t.Fatalf("ParseSeasons failed: %v", err)
	}
	if len(seasons) != 1 || seasons[0] != 1 {
		t.Errorf("Page without tabs should default to season 1, got %v", seasons)
	}
}

func TestParseDurationText(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"01:22:15", 4935},
		{"52:10", 3130},
		{"52 мин", 3120},
		{"45 min", 2700},
	}
	for _, c := range cases {
		got, err := ParseDurationText(c.in)
		if err != nil {
			t.Errorf("ParseDurationText(%q) failed: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseDurationText(%q) = %d, want %d", c.in, got, c.want)
		}
	}

	if _, err := ParseDurationText("soon"); err == nil {
		t.Error("Expected error for unparseable duration")
	}
}

func TestParseWatchDateErrors(t *testing.T) {
	if _, err := ParseWatchDate("12 unknownmonth 2024"); err == nil {
		t.Error("Expected error for unknown month name")
	}
	if _, err := ParseWatchDate("yesterday"); err == nil {
		t.Error("Expected error for short date")
	}
}
