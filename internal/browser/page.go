// Package browser owns the browser-automation session lifecycle:
// cookie persistence, login, anti-bot challenge recovery and restarts.
// The Page interface is the full automation contract; any binding that
// satisfies it (chromedp here) is interchangeable.
package browser

import (
	"context"
	"time"
)

// Cookie is a browser cookie in binding-neutral form
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
}

// Page is one live browser tab. All calls block with bounded timeouts.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, text string) error
	Text(ctx context.Context, selector string) (string, error)
	Title(ctx context.Context) (string, error)
	Source(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	ClearCookies(ctx context.Context) error

	Close() error
}

// PageFactory opens a fresh browser tab. The session controller calls
// it on acquire and again after every restart.
type PageFactory func(ctx context.Context) (Page, error)
