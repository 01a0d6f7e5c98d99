// internal/xhs/login/login_test.go
package login

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/redcrawl/internal/browser/browsertest"
	"github.com/xkilldash9x/redcrawl/internal/crawlerr"
	"github.com/xkilldash9x/redcrawl/internal/xhs/session"
)

// newTestFlow builds a flow with an instant sleeper so tests never wait on
// the wall clock.
func newTestFlow(page *browsertest.Fake, opts Options, logger *zap.Logger) *Flow {
	f := NewFlow(page, opts, logger)
	f.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}
	return f
}

func TestQRCodeLoginSucceedsWhenCookieChanges(t *testing.T) {
	polls := 0
	page := &browsertest.Fake{
		CookiesFunc: func(ctx context.Context) ([]session.Cookie, error) {
			polls++
			value := "pre-login"
			if polls > 5 {
				value = "fresh-session"
			}
			return []session.Cookie{
				{Name: "a1", Value: "identity"},
				{Name: session.SessionCookieName, Value: value},
			}, nil
		},
	}

	f := newTestFlow(page, Options{MaxPolls: 10, PollInterval: time.Millisecond}, nil)
	err := f.Run(context.Background(), QRCode())

	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, f.State())
	assert.Equal(t, loginURL, page.VisitedURL)
	// One pre-login read, then in-loop polls until the sixth overall read
	// returns the fresh value.
	assert.Equal(t, 6, polls)
}

func TestQRCodeLoginFailsAfterPollBudget(t *testing.T) {
	page := &browsertest.Fake{}
	page.SetCookies([]session.Cookie{{Name: session.SessionCookieName, Value: "stale"}})

	f := newTestFlow(page, Options{MaxPolls: 3, PollInterval: time.Millisecond}, nil)
	err := f.Run(context.Background(), QRCode())

	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindLoginFailed))
	assert.Equal(t, StateFailed, f.State())
}

func TestQRCodeLoginIgnoresUnchangedEmptyCookie(t *testing.T) {
	// No session cookie at all: polling must exhaust the budget, not treat
	// the absent cookie as a fresh value.
	page := &browsertest.Fake{}

	f := newTestFlow(page, Options{MaxPolls: 2, PollInterval: time.Millisecond}, nil)
	err := f.Run(context.Background(), QRCode())

	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindLoginFailed))
}

func TestQRCodeLoginLogsVerificationMarkerOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	page := &browsertest.Fake{PageHTML: "<div>请通过验证</div>"}
	page.SetCookies([]session.Cookie{{Name: session.SessionCookieName, Value: "stale"}})

	f := newTestFlow(page, Options{MaxPolls: 4, PollInterval: time.Millisecond}, zap.New(core))
	_ = f.Run(context.Background(), QRCode())

	count := 0
	for _, entry := range logs.All() {
		if entry.Message == "verification challenge shown; complete it in the browser window" {
			count++
		}
	}
	assert.Equal(t, 1, count, "marker should be logged exactly once across polls")
}

func TestQRCodeLoginAbortsOnContextCancel(t *testing.T) {
	page := &browsertest.Fake{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFlow(page, Options{MaxPolls: 100, PollInterval: time.Millisecond}, nil)
	err := f.Run(ctx, QRCode())

	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindLoginFailed))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCookieImportInjectsOnlySessionCookie(t *testing.T) {
	page := &browsertest.Fake{}

	f := newTestFlow(page, Options{}, nil)
	err := f.Run(context.Background(), CookieImport("a1=ident; web_session=sess-token; tracker=noise"))

	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, f.State())

	cookies, err := page.Cookies(context.Background())
	require.NoError(t, err)
	require.Len(t, cookies, 1, "only web_session should be injected")
	assert.Equal(t, session.Cookie{
		Name:   session.SessionCookieName,
		Value:  "sess-token",
		Domain: cookieDomain,
		Path:   "/",
	}, cookies[0])
	assert.Equal(t, loginURL, page.VisitedURL)
}

func TestCookieImportRejectsStringWithoutSession(t *testing.T) {
	page := &browsertest.Fake{}

	f := newTestFlow(page, Options{}, nil)
	err := f.Run(context.Background(), CookieImport("a1=ident; tracker=noise"))

	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindLoginFailed))
	assert.Equal(t, StateFailed, f.State())

	cookies, err := page.Cookies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cookies, "nothing should be injected on failure")
}

func TestPhoneLoginIsUnsupported(t *testing.T) {
	f := newTestFlow(&browsertest.Fake{}, Options{}, nil)
	err := f.Run(context.Background(), Phone("+10000000000"))

	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindLoginFailed))
	assert.Contains(t, err.Error(), "not supported")
}
