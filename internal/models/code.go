package models

import "time"

// Code is a one-time login code captured from the email channel. Rows
// are created by the email bridge, consumed at most once by the login
// flow, and deleted by the expiry sweeper after a fixed lifetime
// whether or not they were used.
type Code struct {
	ID         uint      `gorm:"primaryKey"`
	Value      string    `gorm:"not null"` // 6-digit string
	ReceivedAt time.Time `gorm:"index;not null"`
	Used       bool

	CreatedAt time.Time
}
