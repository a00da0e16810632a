package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/kinolog/kinolog/internal/faults"
	"github.com/kinolog/kinolog/internal/metrics"
	"github.com/kinolog/kinolog/internal/models"
	"github.com/kinolog/kinolog/internal/services/site"
	"github.com/kinolog/kinolog/internal/services/twofactor"
	"github.com/sirupsen/logrus"
)

// State is the session controller's lifecycle position
type State int

const (
	StateUninitialized State = iota
	StateCookiesLoaded
	StateValidating
	StateLoggingIn
	StateAuthenticated
	StateChallengeDetected
	StateRestarting
	StateUnrecoverable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCookiesLoaded:
		return "cookies_loaded"
	case StateValidating:
		return "validating"
	case StateLoggingIn:
		return "logging_in"
	case StateAuthenticated:
		return "authenticated"
	case StateChallengeDetected:
		return "challenge_detected"
	case StateRestarting:
		return "restarting"
	case StateUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Selectors for the probe, login form and OTP prompt
const (
	selUserMenu    = "div.user-menu"
	selLoginUser   = "input[name='login']"
	selLoginPass   = "input[name='password']"
	selLoginSubmit = "button[type='submit']"
	selOTPInput    = "input[name='otp']"
)

// Credentials is one identity's site login
type Credentials struct {
	Username string
	Password string
}

// Config bounds the controller's waits and restart budget
type Config struct {
	URLs              site.URLs
	Credentials       map[models.SessionKind]Credentials
	LoginWait         time.Duration // total login incl. 2FA, default 120s
	ElementWait       time.Duration // single element probe, default 10s
	ChallengeCooldown time.Duration // pause before re-acquire after a challenge
	MaxRestarts       int
}

// Controller owns one browser session for one identity. It is
// constructed per scan and never shared across workers.
type Controller struct {
	kind      models.SessionKind
	cfg       Config
	newPage   PageFactory
	cookies   *CookieStore
	codes     *twofactor.Bridge
	onLogin   func() // scheduled after every fresh login (cookie backup)
	usedCodes map[uint]bool

	page     Page
	state    State
	restarts int
	logger   *logrus.Entry
}

// NewController creates a session controller for one identity. onLogin
// may be nil when no cookie backup collaborator is wired.
func NewController(kind models.SessionKind, cfg Config, factory PageFactory, cookies *CookieStore, codes *twofactor.Bridge, onLogin func(), logger *logrus.Logger) *Controller {
	if cfg.LoginWait == 0 {
		cfg.LoginWait = 120 * time.Second
	}
	if cfg.ElementWait == 0 {
		cfg.ElementWait = 10 * time.Second
	}
	if cfg.ChallengeCooldown == 0 {
		cfg.ChallengeCooldown = 30 * time.Second
	}
	if cfg.MaxRestarts == 0 {
		cfg.MaxRestarts = 3
	}
	return &Controller{
		kind:      kind,
		cfg:       cfg,
		newPage:   factory,
		cookies:   cookies,
		codes:     codes,
		onLogin:   onLogin,
		usedCodes: make(map[uint]bool),
		state:     StateUninitialized,
		logger:    logger.WithField("session", string(kind)),
	}
}

// State returns the controller's current lifecycle position
func (c *Controller) State() State {
	return c.state
}

// Kind returns the identity the controller is bound to
func (c *Controller) Kind() models.SessionKind {
	return c.kind
}

// Acquire brings the session to Authenticated: load saved cookies,
// probe them, fall back to a fresh login. Restart attempts are bounded;
// exhaustion leaves the controller Unrecoverable.
func (c *Controller) Acquire(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRestarts; attempt++ {
		if attempt > 0 {
			c.logger.WithField("attempt", attempt+1).Warn("Retrying session acquire")
			metrics.SessionRestarts.Inc()
		}
		if err := c.start(ctx); err != nil {
			lastErr = err
			c.teardown()
			if faults.Classify(err) == faults.Abort {
				break
			}
			continue
		}
		return nil
	}

	c.state = StateUnrecoverable
	if faults.Classify(lastErr) == faults.Abort {
		// Login timeout and friends surface as themselves
		return lastErr
	}
	return fmt.Errorf("%w: %v", faults.ErrUnrecoverable, lastErr)
}

// start runs one pass of the acquire state machine
func (c *Controller) start(ctx context.Context) error {
	c.state = StateUninitialized

	page, err := c.newPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	c.page = page

	saved, err := c.cookies.Load(c.kind)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to load saved cookies, continuing without them")
		saved = nil
	}
	if len(saved) > 0 {
		if err := c.page.SetCookies(ctx, saved); err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
		c.state = StateCookiesLoaded
	}

	c.state = StateValidating
	if err := c.page.Navigate(ctx, c.cfg.URLs.Profile()); err != nil {
		return fmt.Errorf("failed to open profile page: %w", err)
	}
	if challenged, err := c.challenged(ctx); err != nil {
		return err
	} else if challenged {
		c.state = StateChallengeDetected
		return faults.ErrChallengeDetected
	}

	if err := c.page.WaitVisible(ctx, selUserMenu, c.cfg.ElementWait); err == nil {
		// Saved cookies are valid: persist nothing
		c.state = StateAuthenticated
		c.logger.Info("Session restored from saved cookies")
		return nil
	}

	c.logger.Info("Saved cookies invalid or absent, logging in")
	if err := c.page.ClearCookies(ctx); err != nil {
		c.logger.WithError(err).Warn("Failed to clear browser cookies")
	}
	if err := c.cookies.Clear(c.kind); err != nil {
		c.logger.WithError(err).Warn("Failed to clear cookie file")
	}

	return c.login(ctx)
}

// login drives the login form, the 2FA bridge and cookie persistence
func (c *Controller) login(ctx context.Context) error {
	c.state = StateLoggingIn

	creds, ok := c.cfg.Credentials[c.kind]
	if !ok {
		return faults.Permanent(fmt.Errorf("no credentials configured for identity %q", c.kind))
	}

	deadline := time.Now().Add(c.cfg.LoginWait)

	if err := c.page.Navigate(ctx, c.cfg.URLs.Login()); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := c.page.WaitVisible(ctx, selLoginUser, c.cfg.ElementWait); err != nil {
		return fmt.Errorf("login form did not appear: %w", err)
	}
	if err := c.page.SendKeys(ctx, selLoginUser, creds.Username); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}
	if err := c.page.SendKeys(ctx, selLoginPass, creds.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	if err := c.page.Click(ctx, selLoginSubmit); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	// OTP prompt appears only when the site wants a second factor
	if err := c.page.WaitVisible(ctx, selOTPInput, c.cfg.ElementWait); err == nil {
		c.logger.Info("OTP prompt detected, waiting for emailed code")
		if _, err := c.codes.AwaitCode(ctx, deadline, c.usedCodes, c.submitCode); err != nil {
			if err == faults.ErrCodeTimeout {
				return faults.ErrLoginTimeout
			}
			return err
		}
	}

	if err := c.page.WaitVisible(ctx, selUserMenu, c.cfg.ElementWait); err != nil {
		return faults.ErrLoginTimeout
	}
	c.state = StateAuthenticated
	c.logger.Info("Logged in")

	// Fresh login: persist cookies and schedule their off-box backup
	cookies, err := c.page.Cookies(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read cookies after login")
		return nil
	}
	if err := c.cookies.Save(c.kind, cookies); err != nil {
		c.logger.WithError(err).Warn("Failed to save cookies")
		return nil
	}
	if c.onLogin != nil {
		c.onLogin()
	}
	return nil
}

// submitCode enters an OTP into the prompt and reports acceptance: a
// login page still shown after submit plus a short wait is a rejection
func (c *Controller) submitCode(ctx context.Context, code string) (bool, error) {
	if err := c.page.SendKeys(ctx, selOTPInput, code); err != nil {
		return false, err
	}
	if err := c.page.Click(ctx, selLoginSubmit); err != nil {
		return false, err
	}
	if err := c.page.WaitVisible(ctx, selUserMenu, c.cfg.ElementWait); err != nil {
		return false, nil
	}
	return true, nil
}

// Navigate opens a URL through the session, recovering once from an
// anti-bot challenge by tearing the session down, cooling off and
// re-acquiring. A second consecutive challenge on the same URL is
// fatal for the call.
func (c *Controller) Navigate(ctx context.Context, url string) error {
	if c.page == nil {
		return fmt.Errorf("session not acquired")
	}

	if err := c.page.Navigate(ctx, url); err != nil {
		return err
	}
	challenged, err := c.challenged(ctx)
	if err != nil {
		return err
	}
	if !challenged {
		return nil
	}

	metrics.ChallengesDetected.Inc()
	c.state = StateChallengeDetected
	c.logger.WithField("url", url).Warn("Challenge page detected, restarting session")

	if err := c.restart(ctx); err != nil {
		return err
	}
	if err := c.page.Navigate(ctx, url); err != nil {
		return err
	}
	challenged, err = c.challenged(ctx)
	if err != nil {
		return err
	}
	if challenged {
		c.logger.WithField("url", url).Error("Challenge persists after restart")
		return faults.ErrChallengeDetected
	}
	return nil
}

// Source returns the current page markup
func (c *Controller) Source(ctx context.Context) (string, error) {
	if c.page == nil {
		return "", fmt.Errorf("session not acquired")
	}
	return c.page.Source(ctx)
}

// Page exposes the live tab for element-level operations
func (c *Controller) Page() Page {
	return c.page
}

// challenged probes the current page for anti-bot markers
func (c *Controller) challenged(ctx context.Context) (bool, error) {
	title, err := c.page.Title(ctx)
	if err != nil {
		return false, err
	}
	source, err := c.page.Source(ctx)
	if err != nil {
		return false, err
	}
	return IsChallenge(title, source), nil
}

// restart tears the session down, waits out the cooldown and acquires
// a fresh one
func (c *Controller) restart(ctx context.Context) error {
	c.teardown()
	c.state = StateRestarting
	metrics.SessionRestarts.Inc()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ChallengeCooldown):
	}

	return c.Acquire(ctx)
}

// Release closes the live page. The controller can be re-acquired.
func (c *Controller) Release() {
	c.teardown()
}

func (c *Controller) teardown() {
	if c.page != nil {
		if err := c.page.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close page")
		}
		c.page = nil
	}
	c.state = StateUninitialized
}
