// internal/browser/browsertest/fake.go

// Package browsertest provides a scriptable Automator double so the engine's
// unit tests never need a real browser.
package browsertest

import (
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/redcrawl/internal/browser"
	"github.com/xkilldash9x/redcrawl/internal/xhs/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Fake is an in-memory Automator. Behavior is scripted through the hook
// fields; unset hooks fall back to simple stateful defaults.
type Fake struct {
	mu sync.Mutex

	// NavigateFunc, when set, overrides Navigate.
	NavigateFunc func(ctx context.Context, url string) error
	// EvaluateFunc, when set, overrides Evaluate. The default unmarshals
	// EvaluateResult into out.
	EvaluateFunc func(ctx context.Context, expression string, out any) error
	// CookiesFunc, when set, overrides Cookies. The default returns the
	// cookie set accumulated through AddCookies/SetCookies.
	CookiesFunc func(ctx context.Context) ([]session.Cookie, error)

	// EvaluateResult is JSON returned by the default Evaluate.
	EvaluateResult string
	// PageHTML is returned by Content.
	PageHTML string

	cookies    []session.Cookie
	NavCount   int
	EvalCount  int
	PollCount  int
	Closed     bool
	VisitedURL string
}

var _ browser.Automator = (*Fake)(nil)

// SetCookies replaces the fake's cookie state.
func (f *Fake) SetCookies(cookies []session.Cookie) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append([]session.Cookie(nil), cookies...)
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NavCount++
	f.VisitedURL = url
	if f.NavigateFunc != nil {
		return f.NavigateFunc(ctx, url)
	}
	return nil
}

func (f *Fake) Evaluate(ctx context.Context, expression string, out any) error {
	f.mu.Lock()
	fn := f.EvaluateFunc
	res := f.EvaluateResult
	f.EvalCount++
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, expression, out)
	}
	if out == nil || res == "" {
		return nil
	}
	return json.Unmarshal([]byte(res), out)
}

func (f *Fake) Content(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PageHTML, nil
}

func (f *Fake) Cookies(ctx context.Context) ([]session.Cookie, error) {
	f.mu.Lock()
	fn := f.CookiesFunc
	f.PollCount++
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Cookie(nil), f.cookies...), nil
}

func (f *Fake) AddCookies(ctx context.Context, cookies []session.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append(f.cookies, cookies...)
	return nil
}

func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Launcher hands out a fixed sequence of pages.
type Launcher struct {
	mu       sync.Mutex
	Pages    []*Fake
	next     int
	Shutdowns int
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) NewPage(ctx context.Context) (browser.Automator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.next >= len(l.Pages) {
		p := &Fake{}
		l.Pages = append(l.Pages, p)
		l.next++
		return p, nil
	}
	p := l.Pages[l.next]
	l.next++
	return p, nil
}

func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Shutdowns++
	return nil
}
