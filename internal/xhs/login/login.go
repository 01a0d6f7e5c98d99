// internal/xhs/login/login.go

// Package login implements the interactive and non-interactive
// authentication flows against the platform's web login surface.
package login

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/redcrawl/internal/browser"
	"github.com/xkilldash9x/redcrawl/internal/crawlerr"
	"github.com/xkilldash9x/redcrawl/internal/xhs/session"
)

// loginURL is the page presenting the QR code to an unauthenticated visitor.
const loginURL = "https://www.xiaohongshu.com"

// cookieDomain is the domain injected cookies are scoped to.
const cookieDomain = ".xiaohongshu.com"

// verificationMarker appears in the page when the platform interposes a
// slider or similar challenge during login. Its presence is informational;
// the user completes it in the visible browser and polling continues.
const verificationMarker = "请通过验证"

// State tracks where a Flow is in its lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateFailed          State = "login_failed"
)

// Method selects the authentication mechanism.
type Method string

const (
	MethodQRCode Method = "qrcode"
	MethodCookie Method = "cookie"
	MethodPhone  Method = "phone"
)

// Strategy is a tagged union over the supported login methods.
type Strategy struct {
	Method Method
	// CookieString carries the raw "k=v; ..." cookie material for
	// MethodCookie.
	CookieString string
	// Phone is reserved; phone login is not supported.
	Phone string
}

// QRCode authenticates by waiting for a human to scan the on-page QR code.
func QRCode() Strategy { return Strategy{Method: MethodQRCode} }

// CookieImport authenticates by injecting a previously captured session
// cookie string.
func CookieImport(raw string) Strategy {
	return Strategy{Method: MethodCookie, CookieString: raw}
}

// Phone names the unsupported phone/SMS method.
func Phone(number string) Strategy {
	return Strategy{Method: MethodPhone, Phone: number}
}

// Options bounds the interactive wait of the QR flow.
type Options struct {
	// MaxPolls is the number of cookie polls before the flow gives up.
	MaxPolls int
	// PollInterval is the pause between polls.
	PollInterval time.Duration
}

// Flow drives one login attempt over a live page.
type Flow struct {
	page browser.Automator
	log  *zap.Logger

	maxPolls     int
	pollInterval time.Duration

	// sleep is swapped out by tests so the poll loop runs on a fake clock.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
}

// NewFlow builds a Flow over the given page. Zero option fields fall back
// to the production defaults of 600 polls at 1s.
func NewFlow(page browser.Automator, opts Options, logger *zap.Logger) *Flow {
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 600
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		page:         page,
		log:          logger.Named("login"),
		maxPolls:     opts.MaxPolls,
		pollInterval: opts.PollInterval,
		sleep:        sleepCtx,
		state:        StateUnauthenticated,
	}
}

// State returns the flow's current lifecycle state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Run executes the strategy to completion. On success the page's browser
// profile holds an authenticated session; the caller harvests its cookies.
func (f *Flow) Run(ctx context.Context, strategy Strategy) error {
	f.setState(StateAuthenticating)

	var err error
	switch strategy.Method {
	case MethodQRCode:
		err = f.runQRCode(ctx)
	case MethodCookie:
		err = f.runCookie(ctx, strategy.CookieString)
	case MethodPhone:
		err = crawlerr.New(crawlerr.KindLoginFailed, "phone login is not supported")
	default:
		err = crawlerr.New(crawlerr.KindLoginFailed, "unknown login method: "+string(strategy.Method))
	}

	if err != nil {
		f.setState(StateFailed)
		return err
	}
	f.setState(StateAuthenticated)
	return nil
}

// runQRCode waits for the session cookie to change, which is the only
// reliable signal that the scan completed.
func (f *Flow) runQRCode(ctx context.Context) error {
	if err := f.page.Navigate(ctx, loginURL); err != nil {
		return crawlerr.Wrap(crawlerr.KindLoginFailed, "failed to open login page", err)
	}

	before, err := f.sessionCookie(ctx)
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindLoginFailed, "failed to read pre-login cookies", err)
	}

	f.log.Info("waiting for QR code scan",
		zap.Int("max_polls", f.maxPolls),
		zap.Duration("poll_interval", f.pollInterval))

	verifySeen := false
	for i := 0; i < f.maxPolls; i++ {
		if err := f.sleep(ctx, f.pollInterval); err != nil {
			return crawlerr.Wrap(crawlerr.KindLoginFailed, "login wait aborted", err)
		}

		if !verifySeen {
			if html, err := f.page.Content(ctx); err == nil && strings.Contains(html, verificationMarker) {
				verifySeen = true
				f.log.Info("verification challenge shown; complete it in the browser window")
			}
		}

		current, err := f.sessionCookie(ctx)
		if err != nil {
			return crawlerr.Wrap(crawlerr.KindLoginFailed, "failed to poll cookies", err)
		}
		if current != "" && current != before {
			f.log.Info("login detected", zap.Int("polls", i+1))
			return nil
		}
	}

	return crawlerr.New(crawlerr.KindLoginFailed, "timed out waiting for QR code scan")
}

// runCookie injects the caller-provided session cookie. Only web_session is
// injected; everything else in the string is discarded.
func (f *Flow) runCookie(ctx context.Context, raw string) error {
	var value string
	for _, c := range session.ParseCookieString(raw) {
		if c.Name == session.SessionCookieName {
			value = c.Value
			break
		}
	}
	if value == "" {
		return crawlerr.New(crawlerr.KindLoginFailed, "cookie string does not contain "+session.SessionCookieName)
	}

	err := f.page.AddCookies(ctx, []session.Cookie{{
		Name:   session.SessionCookieName,
		Value:  value,
		Domain: cookieDomain,
		Path:   "/",
	}})
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindLoginFailed, "failed to inject session cookie", err)
	}

	// Load the site so the injected cookie is picked up and the page state
	// (a1, localStorage b1) is established for signing.
	if err := f.page.Navigate(ctx, loginURL); err != nil {
		return crawlerr.Wrap(crawlerr.KindLoginFailed, "failed to open page after cookie import", err)
	}

	f.log.Info("session cookie imported")
	return nil
}

func (f *Flow) sessionCookie(ctx context.Context) (string, error) {
	cookies, err := f.page.Cookies(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range cookies {
		if c.Name == session.SessionCookieName {
			return c.Value, nil
		}
	}
	return "", nil
}

// sleepCtx pauses for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
