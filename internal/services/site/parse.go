package site

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HistoryItem is one extracted block from a history listing page
type HistoryItem struct {
	ShowID        uint
	Title         string
	OriginalTitle string
	Date          time.Time
	Season        int // 0 for movies
	Episode       int // 0 for movies and season-level watches
}

// CatalogItem is one extracted block from a catalog listing page
type CatalogItem struct {
	ShowID        uint
	Title         string
	OriginalTitle string
}

// ShowDetail is the extended record extracted from a show's detail page
type ShowDetail struct {
	Title         string
	OriginalTitle string
	Year          int
	Status        string

	KinopoiskURL    string
	KinopoiskRating float64
	KinopoiskVotes  int
	IMDBURL         string
	IMDBRating      float64
	IMDBVotes       int

	Countries []string
	Genres    []string
	Directors []string
	Actors    []string

	// HasEpisodes is set when the page renders season tabs or an
	// episode table, distinguishing serials from feature films
	HasEpisodes bool
}

var (
	showLinkRe = regexp.MustCompile(`/show/(\d+)`)
	yearRe     = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	votesRe    = regexp.MustCompile(`\d+`)
)

func parseDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ParsePageCount reads the total page count from a listing's
// pagination control. A listing without the control is a single page.
func ParsePageCount(html string) (int, error) {
	doc, err := parseDoc(html)
	if err != nil {
		return 0, fmt.Errorf("failed to parse listing: %w", err)
	}

	total := 1
	doc.Find("div.pagination a.page").Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(s.Text())); err == nil && n > total {
			total = n
		}
	})
	return total, nil
}

// showIDFromLink extracts the site-assigned show ID from a detail link
func showIDFromLink(href string) (uint, error) {
	m := showLinkRe.FindStringSubmatch(href)
	if m == nil {
		return 0, fmt.Errorf("no show ID in link %q", href)
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad show ID in link %q: %w", href, err)
	}
	return uint(id), nil
}

// ParseHistoryItems extracts watch records from a history listing page.
// Malformed blocks are returned as per-item errors alongside the good
// ones so the caller can log and continue.
func ParseHistoryItems(html string) ([]HistoryItem, []error) {
	doc, err := parseDoc(html)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to parse history page: %w", err)}
	}

	var items []HistoryItem
	var itemErrs []error

	doc.Find("div.history-item").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Find("a.show-link").Attr("href")
		if !ok {
			itemErrs = append(itemErrs, fmt.Errorf("history block %d has no show link", i))
			return
		}
		showID, err := showIDFromLink(href)
		if err != nil {
			itemErrs = append(itemErrs, err)
			return
		}

		item := HistoryItem{
			ShowID:        showID,
			Title:         strings.TrimSpace(s.Find("span.title").Text()),
			OriginalTitle: strings.TrimSpace(s.Find("span.original-title").Text()),
		}
		if item.Title == "" {
			itemErrs = append(itemErrs, fmt.Errorf("history block %d (show %d) has no title", i, showID))
			return
		}

		date, err := ParseWatchDate(s.Find("span.watch-date").Text())
		if err != nil {
			itemErrs = append(itemErrs, fmt.Errorf("history block %d (show %d): %w", i, showID, err))
			return
		}
		item.Date = date

		if v, ok := s.Attr("data-season"); ok {
			item.Season, _ = strconv.Atoi(v)
		}
		if v, ok := s.Attr("data-episode"); ok {
			item.Episode, _ = strconv.Atoi(v)
		}

		items = append(items, item)
	})

	return items, itemErrs
}

// ParseCatalogItems extracts show stubs from a catalog listing page
func ParseCatalogItems(html string) ([]CatalogItem, []error) {
	doc, err := parseDoc(html)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to parse catalog page: %w", err)}
	}

	var items []CatalogItem
	var itemErrs []error

	doc.Find("div.catalog-item").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Find("a.show-link").Attr("href")
		if !ok {
			itemErrs = append(itemErrs, fmt.Errorf("catalog block %d has no show link", i))
			return
		}
		showID, err := showIDFromLink(href)
		if err != nil {
			itemErrs = append(itemErrs, err)
			return
		}

		title := strings.TrimSpace(s.Find("span.title").Text())
		if title == "" {
			itemErrs = append(itemErrs, fmt.Errorf("catalog block %d (show %d) has no title", i, showID))
			return
		}

		items = append(items, CatalogItem{
			ShowID:        showID,
			Title:         title,
			OriginalTitle: strings.TrimSpace(s.Find("span.original-title").Text()),
		})
	})

	return items, itemErrs
}

// ParseShowDetail extracts the extended record from a show detail page
func ParseShowDetail(html string) (*ShowDetail, error) {
	doc, err := parseDoc(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page: %w", err)
	}

	detail := &ShowDetail{
		Title:         strings.TrimSpace(doc.Find("h1.title").Text()),
		OriginalTitle: strings.TrimSpace(doc.Find("span.original-title").First().Text()),
		Status:        strings.TrimSpace(doc.Find("span.status").Text()),
	}
	if detail.Title == "" {
		return nil, fmt.Errorf("detail page has no title")
	}

	if m := yearRe.FindString(doc.Find("span.year").Text()); m != "" {
		detail.Year, _ = strconv.Atoi(m)
	}
	if detail.Year == 0 {
		return nil, fmt.Errorf("detail page for %q has no year", detail.Title)
	}

	if kp := doc.Find("a.rating-kinopoisk"); kp.Length() > 0 {
		detail.KinopoiskURL, _ = kp.Attr("href")
		detail.KinopoiskRating = parseRating(kp.Find("span.value").Text())
		detail.KinopoiskVotes = parseVotes(kp.Find("span.votes").Text())
	}
	if imdb := doc.Find("a.rating-imdb"); imdb.Length() > 0 {
		detail.IMDBURL, _ = imdb.Attr("href")
		detail.IMDBRating = parseRating(imdb.Find("span.value").Text())
		detail.IMDBVotes = parseVotes(imdb.Find("span.votes").Text())
	}

	doc.Find("div.countries a").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			detail.Countries = append(detail.Countries, name)
		}
	})
	doc.Find("div.genres a").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			detail.Genres = append(detail.Genres, name)
		}
	})
	doc.Find("div.crew a.director").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			detail.Directors = append(detail.Directors, name)
		}
	})
	doc.Find("div.crew a.actor").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			detail.Actors = append(detail.Actors, name)
		}
	})

	detail.HasEpisodes = doc.Find("ul.seasons").Length() > 0 || doc.Find("table.episodes").Length() > 0

	return detail, nil
}

func parseRating(text string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(text, ",", ".")), 64)
	return v
}

func parseVotes(text string) int {
	digits := votesRe.FindAllString(text, -1)
	v, _ := strconv.Atoi(strings.Join(digits, ""))
	return v
}

// ParseSeasons lists the season numbers found in a show page's season
// tabs. Returns [1] when the page has no tabs, matching the site's
// single-season rendering.
func ParseSeasons(html string) ([]int, error) {
	doc, err := parseDoc(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse show page: %w", err)
	}

	var seasons []int
	doc.Find("ul.seasons a").Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(s.Text())); err == nil {
			seasons = append(seasons, n)
		}
	})
	if len(seasons) == 0 {
		seasons = []int{1}
	}
	return seasons, nil
}

// ParseEpisodeDuration reads the first episode runtime on a season
// page, in seconds. The site renders every episode of a season with
// the same runtime, so the first row is representative.
func ParseEpisodeDuration(html string) (int, error) {
	doc, err := parseDoc(html)
	if err != nil {
		return 0, fmt.Errorf("failed to parse season page: %w", err)
	}

	text := strings.TrimSpace(doc.Find("table.episodes td.duration").First().Text())
	if text == "" {
		// Movie pages carry a single top-level duration block instead
		text = strings.TrimSpace(doc.Find("span.duration").First().Text())
	}
	if text == "" {
		return 0, fmt.Errorf("no duration found on page")
	}
	return ParseDurationText(text)
}

// ParseDurationText converts a rendered runtime ("01:22:15", "52:10"
// or "52 мин") to seconds
func ParseDurationText(text string) (int, error) {
	text = strings.TrimSpace(text)

	if strings.Contains(text, ":") {
		parts := strings.Split(text, ":")
		total := 0
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return 0, fmt.Errorf("bad duration %q: %w", text, err)
			}
			total = total*60 + n
		}
		return total, nil
	}

	// "52 мин" / "52 min"
	fields := strings.Fields(text)
	if len(fields) > 0 {
		if n, err := strconv.Atoi(fields[0]); err == nil {
			return n * 60, nil
		}
	}
	return 0, fmt.Errorf("bad duration %q", text)
}
