// internal/browser/browser.go

// Package browser provides the narrow browser-automation capability the
// crawl engine consumes. The engine never reaches into page internals; it
// navigates, evaluates page-supplied scripts, and reads or injects cookies.
package browser

import (
	"context"

	"github.com/xkilldash9x/redcrawl/internal/xhs/session"
)

// Automator is one live page the engine can drive. Implementations must be
// safe for use from a single crawl operation at a time; the engine owns
// exactly one per service instance.
type Automator interface {
	// Navigate loads a URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JavaScript expression in the page's global scope and
	// unmarshals its result into out. out may be nil to discard the result.
	Evaluate(ctx context.Context, expression string, out any) error
	// Content returns the current page's serialized HTML, used only to spot
	// informational markers such as the verification prompt.
	Content(ctx context.Context) (string, error)
	// Cookies returns the full cookie set of the browser profile.
	Cookies(ctx context.Context) ([]session.Cookie, error)
	// AddCookies injects cookies into the browser profile.
	AddCookies(ctx context.Context, cookies []session.Cookie) error
	// Close releases the page.
	Close(ctx context.Context) error
}

// Launcher creates pages. The production implementation owns a Chrome
// process; tests substitute a fake.
type Launcher interface {
	NewPage(ctx context.Context) (Automator, error)
	Shutdown(ctx context.Context) error
}
