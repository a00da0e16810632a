package models

import "time"

// Show represents one catalog entry. The ID is assigned by the origin
// site and is stable, so it doubles as the primary key. A row may exist
// with only title/type (discovered via a listing page); Year is the
// sentinel for "extended detail has been fetched".
type Show struct {
	ID            uint     `gorm:"primaryKey"`
	Title         string   `gorm:"not null"`
	OriginalTitle string
	Type          ShowType `gorm:"index"`
	Year          *int
	Status        string

	KinopoiskURL    string
	KinopoiskRating float64
	KinopoiskVotes  int
	IMDBURL         string
	IMDBRating      float64
	IMDBVotes       int

	Countries []Country `gorm:"many2many:show_countries"`
	Genres    []Genre   `gorm:"many2many:show_genres"`
	Directors []Person  `gorm:"many2many:show_directors"`
	Actors    []Person  `gorm:"many2many:show_actors"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasDetail reports whether extended detail was ever fetched for the show
func (s *Show) HasDetail() bool {
	return s.Year != nil
}

// Country is a production country, attached to shows by name
type Country struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

// Genre is attached to shows by name
type Genre struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

// Person covers both directors and actors
type Person struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

// ShowDuration caches the runtime of one watchable unit in seconds.
// Season=0/Episode=0 denotes a movie; for series the row is kept per
// season. Refreshed when older than the staleness threshold.
type ShowDuration struct {
	ID      uint `gorm:"primaryKey"`
	ShowID  uint `gorm:"uniqueIndex:idx_duration_unit;not null"`
	Season  int  `gorm:"uniqueIndex:idx_duration_unit"`
	Episode int  `gorm:"uniqueIndex:idx_duration_unit"`
	Seconds int

	CreatedAt time.Time
	UpdatedAt time.Time
}
