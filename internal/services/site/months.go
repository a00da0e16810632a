package site

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// monthNames maps locale month names as they appear in watch dates to
// month numbers. The site renders Russian genitive forms; English is
// kept as a fallback for the rare untranslated block.
var monthNames = map[string]time.Month{
	"января":   time.January,
	"февраля":  time.February,
	"марта":    time.March,
	"апреля":   time.April,
	"мая":      time.May,
	"июня":     time.June,
	"июля":     time.July,
	"августа":  time.August,
	"сентября": time.September,
	"октября":  time.October,
	"ноября":   time.November,
	"декабря":  time.December,

	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// ParseWatchDate parses a rendered watch date like "12 мая 2024"
func ParseWatchDate(text string) (time.Time, error) {
	fields := strings.Fields(strings.TrimSpace(strings.ToLower(text)))
	if len(fields) != 3 {
		return time.Time{}, fmt.Errorf("unexpected date format: %q", text)
	}

	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad day in %q: %w", text, err)
	}

	month, ok := monthNames[fields[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month name %q", fields[1])
	}

	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad year in %q: %w", text, err)
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}
