package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kinolog/kinolog/internal/models"
)

// CookieStore persists cookies per session identity as JSON files, one
// file per identity so "main" and "aux" never share a login
type CookieStore struct {
	dir string
}

// NewCookieStore creates a cookie store rooted at dir
func NewCookieStore(dir string) (*CookieStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cookie directory: %w", err)
	}
	return &CookieStore{dir: dir}, nil
}

// FileFor returns the cookie file path for an identity
func (s *CookieStore) FileFor(kind models.SessionKind) string {
	return filepath.Join(s.dir, fmt.Sprintf("cookies-%s.json", kind))
}

// Load reads saved cookies for an identity. A missing file is not an
// error: it returns an empty slice.
func (s *CookieStore) Load(kind models.SessionKind) ([]Cookie, error) {
	data, err := os.ReadFile(s.FileFor(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("corrupt cookie file for %s: %w", kind, err)
	}
	return cookies, nil
}

// Save persists cookies for an identity
func (s *CookieStore) Save(kind models.SessionKind, cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.FileFor(kind), data, 0600)
}

// Clear removes the saved cookies for an identity
func (s *CookieStore) Clear(kind models.SessionKind) error {
	err := os.Remove(s.FileFor(kind))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
