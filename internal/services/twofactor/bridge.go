// Package twofactor supplies time-limited one-time login codes
// produced by the out-of-band email channel. The bridge only reads
// codes; rows are written by the email listener and deleted by the
// expiry sweeper, so codes can disappear mid-wait.
package twofactor

import (
	"context"
	"time"

	"github.com/kinolog/kinolog/internal/faults"
	"github.com/kinolog/kinolog/internal/models"
	"github.com/sirupsen/logrus"
)

// Store is the slice of the database the bridge needs
type Store interface {
	LatestCode(exclude []uint, since time.Time) (*models.Code, error)
	MarkCodeUsed(id uint) error
}

// SubmitFunc types the submission attempt: it enters the code into the
// login form and reports whether the site accepted it
type SubmitFunc func(ctx context.Context, code string) (bool, error)

// Bridge polls the store for fresh login codes and drives submission
type Bridge struct {
	store        Store
	ttl          time.Duration
	pollInterval time.Duration
	logger       *logrus.Logger
}

// NewBridge creates a code bridge. ttl bounds how old a code may be
// before it is ignored even if the sweeper has not deleted it yet.
func NewBridge(store Store, ttl, pollInterval time.Duration, logger *logrus.Logger) *Bridge {
	return &Bridge{
		store:        store,
		ttl:          ttl,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// AwaitCode polls for the newest unexpired code not yet tried and
// submits it. A rejected code is marked used and never retried, even
// if it is still the newest one: another path may have consumed it.
// Returns the accepted code, or ErrCodeTimeout at the deadline.
func (b *Bridge) AwaitCode(ctx context.Context, deadline time.Time, used map[uint]bool, submit SubmitFunc) (*models.Code, error) {
	if used == nil {
		used = make(map[uint]bool)
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil, faults.ErrCodeTimeout
			}

			exclude := make([]uint, 0, len(used))
			for id := range used {
				exclude = append(exclude, id)
			}

			code, err := b.store.LatestCode(exclude, time.Now().Add(-b.ttl))
			if err != nil {
				b.logger.WithError(err).Warn("Failed to poll for login code")
				continue
			}
			if code == nil {
				b.logger.Debug("Waiting for login code...")
				continue
			}

			accepted, err := submit(ctx, code.Value)
			if err != nil {
				b.logger.WithError(err).WithField("code_id", code.ID).Warn("Code submission failed")
				used[code.ID] = true
				if err := b.store.MarkCodeUsed(code.ID); err != nil {
					b.logger.WithError(err).Warn("Failed to mark code used")
				}
				continue
			}

			// Tried once: never reuse this ID, accepted or not
			used[code.ID] = true
			if err := b.store.MarkCodeUsed(code.ID); err != nil {
				b.logger.WithError(err).Warn("Failed to mark code used")
			}

			if accepted {
				b.logger.WithField("code_id", code.ID).Info("Login code accepted")
				return code, nil
			}
			b.logger.WithField("code_id", code.ID).Info("Login code rejected, waiting for next one")
		}
	}
}
