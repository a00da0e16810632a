package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Database wraps the gorm store. All write paths are idempotent
// upserts or conflict-ignoring inserts; Show and ViewHistory rows are
// never deleted.
type Database struct {
	gorm *gorm.DB
}

// NewDatabase opens the SQLite store and migrates the schema
func NewDatabase(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&Show{}, &Country{}, &Genre{}, &Person{},
		&ViewHistory{}, &ShowDuration{},
		&Code{}, &Checkpoint{}, &GapWatermark{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{gorm: db}, nil
}

// Close closes the underlying connection
func (db *Database) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Show operations

// CreateShowIfAbsent inserts a show discovered on a listing page.
// Existing rows are never overwritten: a listing carries less detail
// than a fetched show page, so conflicts are ignored.
func (db *Database) CreateShowIfAbsent(show *Show) (bool, error) {
	res := db.gorm.Clauses(clause.OnConflict{DoNothing: true}).Create(show)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// detailColumns are the fields a detail fetch is allowed to overwrite
var detailColumns = []string{
	"title", "original_title", "type", "year", "status",
	"kinopoisk_url", "kinopoisk_rating", "kinopoisk_votes",
	"imdb_url", "imdb_rating", "imdb_votes", "updated_at",
}

// SaveShowDetail upserts a show with its extended detail
func (db *Database) SaveShowDetail(show *Show) error {
	show.UpdatedAt = time.Now()
	return db.gorm.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(detailColumns),
	}).Create(show).Error
}

// GetShowByID retrieves a show, or nil when it is not in the store yet
func (db *Database) GetShowByID(id uint) (*Show, error) {
	var show Show
	err := db.gorm.First(&show, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &show, nil
}

// AttachRelations upserts the named relations and appends the
// associations. Existing links are never removed.
func (db *Database) AttachRelations(show *Show, countries, genres, directors, actors []string) error {
	for _, name := range countries {
		var c Country
		if err := db.gorm.Where(Country{Name: name}).FirstOrCreate(&c).Error; err != nil {
			return err
		}
		if err := db.gorm.Model(show).Association("Countries").Append(&c); err != nil {
			return err
		}
	}
	for _, name := range genres {
		var g Genre
		if err := db.gorm.Where(Genre{Name: name}).FirstOrCreate(&g).Error; err != nil {
			return err
		}
		if err := db.gorm.Model(show).Association("Genres").Append(&g); err != nil {
			return err
		}
	}
	for _, name := range directors {
		var p Person
		if err := db.gorm.Where(Person{Name: name}).FirstOrCreate(&p).Error; err != nil {
			return err
		}
		if err := db.gorm.Model(show).Association("Directors").Append(&p); err != nil {
			return err
		}
	}
	for _, name := range actors {
		var p Person
		if err := db.gorm.Where(Person{Name: name}).FirstOrCreate(&p).Error; err != nil {
			return err
		}
		if err := db.gorm.Model(show).Association("Actors").Append(&p); err != nil {
			return err
		}
	}
	return nil
}

// ShowIDs returns every known show ID in ascending order
func (db *Database) ShowIDs() ([]uint, error) {
	var ids []uint
	err := db.gorm.Model(&Show{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// MaxShowID returns the highest site-assigned ID in the store
func (db *Database) MaxShowID() (uint, error) {
	var max *uint
	err := db.gorm.Model(&Show{}).Select("MAX(id)").Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// ShowsMissingDetail returns shows whose extended detail is absent or
// older than cutoff, up to limit
func (db *Database) ShowsMissingDetail(limit int, cutoff time.Time) ([]*Show, error) {
	var shows []*Show
	err := db.gorm.
		Where("year IS NULL OR updated_at < ?", cutoff).
		Order("id").Limit(limit).Find(&shows).Error
	return shows, err
}

// ShowsMissingDuration returns shows with no duration row fresher than
// cutoff, optionally filtered by type, up to limit
func (db *Database) ShowsMissingDuration(limit int, showType ShowType, cutoff time.Time) ([]*Show, error) {
	sub := db.gorm.Model(&ShowDuration{}).Select("show_id").Where("updated_at > ?", cutoff)
	q := db.gorm.Where("id NOT IN (?)", sub)
	if showType != "" {
		q = q.Where("type = ?", showType)
	}
	var shows []*Show
	err := q.Order("id").Limit(limit).Find(&shows).Error
	return shows, err
}

// History operations

// InsertHistoryBatch bulk-inserts history rows, ignoring conflicts on
// the (show, date, season, episode) key. Returns the number of rows
// actually added; duplicates are expected and harmless.
func (db *Database) InsertHistoryBatch(rows []ViewHistory) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := db.gorm.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 100)
	return int(res.RowsAffected), res.Error
}

// MaxHistoryDate returns the newest watch date stored for a mode, or
// nil when the mode has no history yet
func (db *Database) MaxHistoryDate(mode HistoryMode) (*time.Time, error) {
	q := db.gorm.Model(&ViewHistory{})
	if mode == ModeMovies {
		q = q.Where("season = 0 AND episode = 0")
	} else {
		q = q.Where("season > 0 OR episode > 0")
	}
	var row ViewHistory
	err := q.Order("date DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row.Date, nil
}

// Duration operations

// UpsertDuration creates or refreshes the cached runtime for one
// watchable unit
func (db *Database) UpsertDuration(d *ShowDuration) error {
	d.UpdatedAt = time.Now()
	return db.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "show_id"}, {Name: "season"}, {Name: "episode"}},
		DoUpdates: clause.AssignmentColumns([]string{"seconds", "updated_at"}),
	}).Create(d).Error
}

// OldestDurationUpdate returns the oldest updated_at among a show's
// cached runtimes, or nil when it has none. A series whose oldest row
// is still fresh needs no page load at all.
func (db *Database) OldestDurationUpdate(showID uint) (*time.Time, error) {
	var d ShowDuration
	err := db.gorm.Where("show_id = ?", showID).Order("updated_at ASC").First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d.UpdatedAt, nil
}

// GetDuration retrieves a cached runtime, or nil when absent
func (db *Database) GetDuration(showID uint, season, episode int) (*ShowDuration, error) {
	var d ShowDuration
	err := db.gorm.Where("show_id = ? AND season = ? AND episode = ?", showID, season, episode).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Code operations

// CreateCode stores a one-time code received from the email channel
func (db *Database) CreateCode(code *Code) error {
	return db.gorm.Create(code).Error
}

// LatestCode returns the most recently received unused code newer than
// since, excluding the given IDs. Returns nil when nothing matches.
func (db *Database) LatestCode(exclude []uint, since time.Time) (*Code, error) {
	q := db.gorm.Where("used = ? AND received_at > ?", false, since)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var code Code
	err := q.Order("received_at DESC").First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// MarkCodeUsed flags a code so no later login attempt picks it again
func (db *Database) MarkCodeUsed(id uint) error {
	return db.gorm.Model(&Code{}).Where("id = ?", id).Update("used", true).Error
}

// DeleteExpiredCodes removes codes past their lifetime, used or not.
// Returns the number of rows deleted.
func (db *Database) DeleteExpiredCodes(ttl time.Duration) (int64, error) {
	res := db.gorm.Where("received_at < ?", time.Now().Add(-ttl)).Delete(&Code{})
	return res.RowsAffected, res.Error
}

// Checkpoint operations

// RecordCheckpoint appends a progress marker for a fully processed
// page. watermark carries the scan's pre-scan early-stop date for
// history scans, nil for catalog walks.
func (db *Database) RecordCheckpoint(scanType ScanType, category string, page int, done bool, watermark *time.Time) error {
	return db.gorm.Create(&Checkpoint{
		ScanType:  scanType,
		Category:  category,
		Page:      page,
		Done:      done,
		Watermark: watermark,
	}).Error
}

// LatestCheckpoint returns the most recent marker for a scan type and
// category written after since, or nil when there is none
func (db *Database) LatestCheckpoint(scanType ScanType, category string, since time.Time) (*Checkpoint, error) {
	var cp Checkpoint
	err := db.gorm.
		Where("scan_type = ? AND category = ? AND created_at > ?", scanType, category, since).
		Order("created_at DESC, id DESC").First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// GetGapWatermark returns the ID a previous gap scan fully covered
func (db *Database) GetGapWatermark() (uint, error) {
	var wm GapWatermark
	err := db.gorm.First(&wm, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return wm.LastID, nil
}

// SetGapWatermark advances the gap watermark. Only called after every
// ID in the scanned range has been attempted.
func (db *Database) SetGapWatermark(lastID uint) error {
	return db.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_id", "updated_at"}),
	}).Create(&GapWatermark{ID: 1, LastID: lastID, UpdatedAt: time.Now()}).Error
}

// Status queries

// Counts summarizes the store for the status endpoint
type Counts struct {
	Shows       int64            `json:"shows"`
	ShowsByType map[string]int64 `json:"shows_by_type"`
	History     int64            `json:"history"`
	Durations   int64            `json:"durations"`
	Codes       int64            `json:"codes"`
}

// GetCounts gathers row counts per table and show type
func (db *Database) GetCounts() (*Counts, error) {
	counts := &Counts{ShowsByType: make(map[string]int64)}

	if err := db.gorm.Model(&Show{}).Count(&counts.Shows).Error; err != nil {
		return nil, err
	}
	for _, t := range AllShowTypes {
		var n int64
		if err := db.gorm.Model(&Show{}).Where("type = ?", t).Count(&n).Error; err != nil {
			return nil, err
		}
		counts.ShowsByType[string(t)] = n
	}
	if err := db.gorm.Model(&ViewHistory{}).Count(&counts.History).Error; err != nil {
		return nil, err
	}
	if err := db.gorm.Model(&ShowDuration{}).Count(&counts.Durations).Error; err != nil {
		return nil, err
	}
	if err := db.gorm.Model(&Code{}).Count(&counts.Codes).Error; err != nil {
		return nil, err
	}

	return counts, nil
}
