package models

import "time"

// ViewHistory is one watched unit on a given date. Season=0/Episode=0
// denotes a movie-type watch. The composite unique index makes repeat
// extraction of the same listing page a no-op.
type ViewHistory struct {
	ID      uint      `gorm:"primaryKey"`
	ShowID  uint      `gorm:"uniqueIndex:idx_watch_unit;not null"`
	Date    time.Time `gorm:"uniqueIndex:idx_watch_unit;not null"`
	Season  int       `gorm:"uniqueIndex:idx_watch_unit"`
	Episode int       `gorm:"uniqueIndex:idx_watch_unit"`

	CreatedAt time.Time
}

// IsMovie reports whether the row records a movie-type watch
func (v *ViewHistory) IsMovie() bool {
	return v.Season == 0 && v.Episode == 0
}
