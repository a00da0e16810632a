package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

const defaultPageLoadTimeout = 60 * time.Second

// chromedpPage implements Page on top of the Chrome DevTools Protocol
type chromedpPage struct {
	ctx         context.Context
	cancel      context.CancelFunc
	loadTimeout time.Duration
}

// NewChromedpFactory returns a PageFactory that launches a Chrome
// instance per page. execPath may be empty to use the system browser.
func NewChromedpFactory(headless bool, execPath string) PageFactory {
	return func(ctx context.Context) (Page, error) {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", headless),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(1366, 768),
		)
		if execPath != "" {
			opts = append(opts, chromedp.ExecPath(execPath))
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
		tabCtx, cancelTab := chromedp.NewContext(allocCtx)

		// Start the browser eagerly so acquire fails fast
		if err := chromedp.Run(tabCtx); err != nil {
			cancelTab()
			cancelAlloc()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}

		return &chromedpPage{
			ctx: tabCtx,
			cancel: func() {
				cancelTab()
				cancelAlloc()
			},
			loadTimeout: defaultPageLoadTimeout,
		}, nil
	}
}

func (p *chromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, actions...)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, p.loadTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (p *chromedpPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitVisible(selector))
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, p.loadTimeout, chromedp.Click(selector, chromedp.NodeVisible))
}

func (p *chromedpPage) SendKeys(ctx context.Context, selector, text string) error {
	return p.run(ctx, p.loadTimeout, chromedp.SendKeys(selector, text, chromedp.NodeVisible))
}

func (p *chromedpPage) Text(ctx context.Context, selector string) (string, error) {
	var out string
	err := p.run(ctx, p.loadTimeout, chromedp.Text(selector, &out, chromedp.NodeVisible))
	return out, err
}

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, p.loadTimeout, chromedp.Title(&title))
	return title, err
}

func (p *chromedpPage) Source(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, p.loadTimeout, chromedp.OuterHTML("html", &html))
	return html, err
}

func (p *chromedpPage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, p.loadTimeout, chromedp.Location(&url))
	return url, err
}

func (p *chromedpPage) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	err := p.run(ctx, p.loadTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range raw {
			cookies = append(cookies, Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  time.Unix(int64(c.Expires), 0),
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			})
		}
		return nil
	}))
	return cookies, err
}

func (p *chromedpPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		expires := cdp.TimeSinceEpoch(c.Expires)
		params = append(params, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  &expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return p.run(ctx, p.loadTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
}

func (p *chromedpPage) ClearCookies(ctx context.Context) error {
	return p.run(ctx, p.loadTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.ClearCookies().Do(ctx)
	}))
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}
