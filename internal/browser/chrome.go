// internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/redcrawl/internal/config"
	"github.com/xkilldash9x/redcrawl/internal/xhs/session"
)

// ChromeLauncher owns a single Chrome process (via its allocator context)
// and hands out tabs as Automator pages.
type ChromeLauncher struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromeLauncher prepares a launcher. The browser process itself starts
// lazily with the first page.
func NewChromeLauncher(cfg config.BrowserConfig, logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{
		logger: logger.Named("browser"),
		cfg:    cfg,
	}
}

func (l *ChromeLauncher) ensureAllocator(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allocCtx != nil {
		return
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	for _, arg := range l.cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	l.allocCtx, l.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	l.logger.Info("Chrome allocator prepared.", zap.Bool("headless", l.cfg.Headless))
}

// NewPage opens a fresh tab.
func (l *ChromeLauncher) NewPage(ctx context.Context) (Automator, error) {
	l.ensureAllocator(ctx)

	tabCtx, tabCancel := chromedp.NewContext(l.allocCtx)
	// Running an empty task forces the browser process (and tab) to start
	// now rather than on first use, so launch failures surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to start browser tab: %w", err)
	}

	id := uuid.New().String()
	p := &chromePage{
		id:     id,
		ctx:    tabCtx,
		cancel: tabCancel,
		logger: l.logger.With(zap.String("page_id", id[:8])),
	}
	p.logger.Info("Browser page opened.")
	return p, nil
}

// Shutdown terminates the browser process.
func (l *ChromeLauncher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allocCancel != nil {
		l.allocCancel()
		l.allocCtx = nil
		l.allocCancel = nil
		l.logger.Info("Chrome allocator shut down.")
	}
	return nil
}

// chromePage implements Automator over one chromedp tab context.
type chromePage struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
	closeOnce sync.Once
}

var _ Automator = (*chromePage)(nil)

// run executes chromedp actions under both the tab context and the caller's
// deadline.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out any) error {
	if out == nil {
		return p.run(ctx, chromedp.Evaluate(expression, nil))
	}
	return p.run(ctx, chromedp.Evaluate(expression, out))
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromePage) Cookies(ctx context.Context) ([]session.Cookie, error) {
	var out []session.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		out = make([]session.Cookie, 0, len(cookies))
		for _, c := range cookies {
			out = append(out, session.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *chromePage) AddCookies(ctx context.Context, cookies []session.Cookie) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value)
			if c.Domain != "" {
				param = param.WithDomain(c.Domain)
			}
			if c.Path != "" {
				param = param.WithPath(c.Path)
			}
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %q: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (p *chromePage) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.logger.Info("Closing browser page.")
		p.cancel()
	})
	return nil
}
