package models

import "time"

// Checkpoint is one durable progress marker written after a listing
// page has been fully processed. Resume lookup picks the most recent
// marker for a scan type within a bounded time window.
type Checkpoint struct {
	ID       uint     `gorm:"primaryKey"`
	ScanType ScanType `gorm:"index:idx_checkpoint_scan;not null"`
	Category string   `gorm:"index:idx_checkpoint_scan"` // show type for full scans, empty otherwise
	Page     int
	Done     bool // category fully walked; later passes in the window skip it

	// Watermark freezes the newest stored watch date seen before the
	// scan began. A resumed run must compare against this, not a fresh
	// query that would include the crashed run's own inserts.
	Watermark *time.Time

	CreatedAt time.Time `gorm:"index"`
}

// GapWatermark is the single "scanned up to ID" row a gap scan advances
// only after every ID in its range has been attempted.
type GapWatermark struct {
	ID        uint `gorm:"primaryKey"`
	LastID    uint
	UpdatedAt time.Time
}
