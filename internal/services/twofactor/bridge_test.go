package twofactor

import (
	"context"
	"testing"
	"time"

	"github.com/kinolog/kinolog/internal/faults"
	"github.com/kinolog/kinolog/internal/models"
	"github.com/sirupsen/logrus"
)

type fakeStore struct {
	codes []models.Code
	used  map[uint]bool
}

func (s *fakeStore) LatestCode(exclude []uint, since time.Time) (*models.Code, error) {
	skip := make(map[uint]bool)
	for _, id := range exclude {
		skip[id] = true
	}
	var best *models.Code
	for i := range s.codes {
		c := &s.codes[i]
		if skip[c.ID] || c.Used || !c.ReceivedAt.After(since) {
			continue
		}
		if best == nil || c.ReceivedAt.After(best.ReceivedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *fakeStore) MarkCodeUsed(id uint) error {
	if s.used == nil {
		s.used = make(map[uint]bool)
	}
	s.used[id] = true
	for i := range s.codes {
		if s.codes[i].ID == id {
			s.codes[i].Used = true
		}
	}
	return nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestBridge(store Store) *Bridge {
	return NewBridge(store, 15*time.Minute, 5*time.Millisecond, testLogger())
}

func TestAwaitCodeAccepted(t *testing.T) {
	store := &fakeStore{codes: []models.Code{
		{ID: 1, Value: "111111", ReceivedAt: time.Now().Add(-2 * time.Minute)},
		{ID: 2, Value: "222222", ReceivedAt: time.Now().Add(-1 * time.Minute)},
	}}
	bridge := newTestBridge(store)

	code, err := bridge.AwaitCode(context.Background(), time.Now().Add(time.Second), nil,
		func(ctx context.Context, code string) (bool, error) {
			return true, nil
		})
	if err != nil {
		t.Fatalf("AwaitCode failed: %v", err)
	}
	if code.ID != 2 {
		t.Errorf("Expected newest code (ID 2), got %d", code.ID)
	}
	if !store.used[2] {
		t.Error("Accepted code should be marked used")
	}
}

func TestAwaitCodeSkipsAlreadyUsed(t *testing.T) {
	store := &fakeStore{codes: []models.Code{
		{ID: 1, Value: "111111", ReceivedAt: time.Now().Add(-2 * time.Minute)},
		{ID: 2, Value: "222222", ReceivedAt: time.Now().Add(-1 * time.Minute)},
	}}
	bridge := newTestBridge(store)

	// ID 2 is the newest but the caller already tried it
	code, err := bridge.AwaitCode(context.Background(), time.Now().Add(time.Second),
		map[uint]bool{2: true},
		func(ctx context.Context, code string) (bool, error) {
			return true, nil
		})
	if err != nil {
		t.Fatalf("AwaitCode failed: %v", err)
	}
	if code.ID != 1 {
		t.Errorf("Expected fallback to code 1, got %d", code.ID)
	}
}

func TestAwaitCodeRejectionMovesOn(t *testing.T) {
	store := &fakeStore{codes: []models.Code{
		{ID: 1, Value: "111111", ReceivedAt: time.Now().Add(-2 * time.Minute)},
		{ID: 2, Value: "222222", ReceivedAt: time.Now().Add(-1 * time.Minute)},
	}}
	bridge := newTestBridge(store)

	var tried []string
	code, err := bridge.AwaitCode(context.Background(), time.Now().Add(time.Second), nil,
		func(ctx context.Context, code string) (bool, error) {
			tried = append(tried, code)
			return code == "111111", nil
		})
	if err != nil {
		t.Fatalf("AwaitCode failed: %v", err)
	}
	if code.ID != 1 {
		t.Errorf("Expected code 1 after 2 was rejected, got %d", code.ID)
	}
	if len(tried) != 2 || tried[0] != "222222" {
		t.Errorf("Expected newest-first submission order, got %v", tried)
	}
	if !store.used[1] || !store.used[2] {
		t.Error("Both tried codes should be marked used")
	}
}

func TestAwaitCodeTimeout(t *testing.T) {
	bridge := newTestBridge(&fakeStore{})

	_, err := bridge.AwaitCode(context.Background(), time.Now().Add(30*time.Millisecond), nil,
		func(ctx context.Context, code string) (bool, error) {
			t.Fatal("submit should never run without a code")
			return false, nil
		})
	if err != faults.ErrCodeTimeout {
		t.Errorf("Expected ErrCodeTimeout, got %v", err)
	}
}

func TestAwaitCodeIgnoresExpired(t *testing.T) {
	store := &fakeStore{codes: []models.Code{
		{ID: 1, Value: "111111", ReceivedAt: time.Now().Add(-20 * time.Minute)},
	}}
	bridge := newTestBridge(store)

	_, err := bridge.AwaitCode(context.Background(), time.Now().Add(30*time.Millisecond), nil,
		func(ctx context.Context, code string) (bool, error) {
			return true, nil
		})
	if err != faults.ErrCodeTimeout {
		t.Errorf("Expired code must not be submitted, got %v", err)
	}
}
