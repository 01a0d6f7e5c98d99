// internal/xhs/service/service.go

// Package service orchestrates one browser-backed crawl session: login,
// enumeration, comment walks, and detail resolution. A Service owns exactly
// one page and one session; independent instances share nothing.
package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/redcrawl/internal/browser"
	"github.com/xkilldash9x/redcrawl/internal/crawlerr"
	"github.com/xkilldash9x/redcrawl/internal/paginate"
	"github.com/xkilldash9x/redcrawl/internal/xhs/client"
	"github.com/xkilldash9x/redcrawl/internal/xhs/login"
	"github.com/xkilldash9x/redcrawl/internal/xhs/resolve"
	"github.com/xkilldash9x/redcrawl/internal/xhs/session"
)

// Options carries the crawl tuning derived from config.CrawlerConfig plus
// the browser identity. Host and transport overrides exist for tests.
type Options struct {
	UserAgent         string
	CrawlInterval     time.Duration
	ConcurrencyLimit  int
	MaxLoginPolls     int
	LoginPollInterval time.Duration
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	PageSize          int
	SubPageSize       int

	APIHost    string
	WebHost    string
	HTTPClient *http.Client
}

// Service is one crawl session over one browser page.
type Service struct {
	launcher browser.Launcher
	opts     Options
	log      *zap.Logger
	id       string

	mu     sync.Mutex
	page   browser.Automator
	store  *session.Store
	client *client.Client
}

// New builds a Service. The page is acquired lazily on first use.
func New(launcher browser.Launcher, opts Options, logger *zap.Logger) *Service {
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = 5
	}
	if opts.SubPageSize <= 0 {
		opts.SubPageSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Service{
		launcher: launcher,
		opts:     opts,
		log:      logger.Named("crawl_service").With(zap.String("session_id", id)),
		id:       id,
		store:    session.NewStore(),
	}
}

// ID returns the service's session identifier, used in logs and responses.
func (s *Service) ID() string { return s.id }

// ensureClient acquires the page and builds the signed client if that has
// not happened yet. It does not authenticate.
func (s *Service) ensureClient(ctx context.Context) (*client.Client, browser.Automator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		page, err := s.launcher.NewPage(ctx)
		if err != nil {
			return nil, nil, crawlerr.Wrap(crawlerr.KindDataFetchFailed, "failed to acquire browser page", err)
		}
		s.page = page
		s.client = nil
	}
	if s.client == nil {
		s.client = client.New(s.page, s.store, client.Options{
			UserAgent:         s.opts.UserAgent,
			Timeout:           s.opts.RequestTimeout,
			RequestsPerSecond: s.opts.RequestsPerSecond,
			APIHost:           s.opts.APIHost,
			WebHost:           s.opts.WebHost,
			HTTPClient:        s.opts.HTTPClient,
		}, s.log)
	}
	return s.client, s.page, nil
}

// Login runs a full login flow and rebuilds the session from the browser's
// cookies on success.
func (s *Service) Login(ctx context.Context, strategy login.Strategy) error {
	_, page, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	flow := login.NewFlow(page, login.Options{
		MaxPolls:     s.opts.MaxLoginPolls,
		PollInterval: s.opts.LoginPollInterval,
	}, s.log)
	if err := flow.Run(ctx, strategy); err != nil {
		return err
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindLoginFailed, "failed to read cookies after login", err)
	}
	s.store.Replace(cookies)
	s.log.Info("session established",
		zap.String("method", string(strategy.Method)),
		zap.Int("cookies", len(cookies)))
	return nil
}

// EnsureLoggedIn guarantees a live session before an operation. With a
// stored session it probes liveness and re-logs-in only on failure; without
// one it either logs in (autoLogin) or refuses with NotAuthenticated.
func (s *Service) EnsureLoggedIn(ctx context.Context, autoLogin bool, strategy login.Strategy) error {
	c, _, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	if _, ok := s.store.Get(session.SessionCookieName); ok {
		if c.Pong(ctx) {
			return nil
		}
		s.log.Warn("stored session rejected by liveness probe")
	}

	if !autoLogin {
		return crawlerr.New(crawlerr.KindNotAuthenticated, "no valid session and auto-login is disabled")
	}
	return s.Login(ctx, strategy)
}

// CrawlOptions tunes one enumeration call.
type CrawlOptions struct {
	// MaxItems caps the number of items returned; 0 means unbounded.
	MaxItems int
	// OnPage, when set, observes each fetched page after truncation.
	OnPage func(ctx context.Context, items []map[string]any) error
}

// NotesResult is the outcome of a creator enumeration. Cancelled marks
// partial data cut short by the caller's context.
type NotesResult struct {
	Notes     []map[string]any `json:"notes"`
	Cancelled bool             `json:"cancelled"`
}

// CommentsResult is the outcome of a comment walk.
type CommentsResult struct {
	Comments  []map[string]any `json:"comments"`
	Cancelled bool             `json:"cancelled"`
}

// ResolvedResult pairs resolved note details with the count that no
// strategy could answer.
type ResolvedResult struct {
	Notes      []map[string]any `json:"notes"`
	Unresolved int              `json:"unresolved"`
	Cancelled  bool             `json:"cancelled"`
}

// CreatorNotes enumerates every published note of a creator, in posting
// order, paced by the crawl interval.
func (s *Service) CreatorNotes(ctx context.Context, userID string, opts CrawlOptions) (NotesResult, error) {
	c, _, err := s.ensureClient(ctx)
	if err != nil {
		return NotesResult{}, err
	}

	fetch := func(ctx context.Context, cursor string) (paginate.Page[map[string]any], error) {
		pg, err := c.CreatorNotes(ctx, userID, cursor, s.opts.PageSize)
		if err != nil {
			return paginate.Page[map[string]any]{}, err
		}
		return paginate.Page[map[string]any]{Items: pg.Notes, HasMore: pg.HasMore, NextCursor: pg.Cursor}, nil
	}

	notes, err := paginate.Walk(ctx, fetch, paginate.Options[map[string]any]{
		OnPage:   opts.OnPage,
		MaxItems: opts.MaxItems,
		Delay:    s.opts.CrawlInterval,
	})
	result := NotesResult{Notes: notes}
	return result, s.absorbWalkError(&result.Cancelled, len(notes), "creator notes walk", err)
}

// NoteComments walks every top-level comment of a note and fills in each
// comment's remaining replies through the sub-comment endpoint.
func (s *Service) NoteComments(ctx context.Context, noteID, xsecToken string, opts CrawlOptions) (CommentsResult, error) {
	c, _, err := s.ensureClient(ctx)
	if err != nil {
		return CommentsResult{}, err
	}

	fetch := func(ctx context.Context, cursor string) (paginate.Page[map[string]any], error) {
		pg, err := c.NoteComments(ctx, noteID, xsecToken, cursor)
		if err != nil {
			return paginate.Page[map[string]any]{}, err
		}
		for _, comment := range pg.Comments {
			if err := s.fillSubComments(ctx, c, noteID, xsecToken, comment); err != nil {
				return paginate.Page[map[string]any]{}, err
			}
		}
		return paginate.Page[map[string]any]{Items: pg.Comments, HasMore: pg.HasMore, NextCursor: pg.Cursor}, nil
	}

	comments, err := paginate.Walk(ctx, fetch, paginate.Options[map[string]any]{
		OnPage:   opts.OnPage,
		MaxItems: opts.MaxItems,
		Delay:    s.opts.CrawlInterval,
	})
	result := CommentsResult{Comments: comments}
	return result, s.absorbWalkError(&result.Cancelled, len(comments), "comment walk", err)
}

// fillSubComments drains the reply pages of one comment and appends them to
// its sub_comments list in place.
func (s *Service) fillSubComments(ctx context.Context, c *client.Client, noteID, xsecToken string, comment map[string]any) error {
	hasMore, _ := comment["sub_comment_has_more"].(bool)
	if !hasMore {
		return nil
	}
	rootID, _ := comment["id"].(string)
	if rootID == "" {
		return nil
	}
	initialCursor, _ := comment["sub_comment_cursor"].(string)

	fetch := func(ctx context.Context, cursor string) (paginate.Page[map[string]any], error) {
		if cursor == "" {
			cursor = initialCursor
		}
		pg, err := c.SubComments(ctx, noteID, rootID, xsecToken, s.opts.SubPageSize, cursor)
		if err != nil {
			return paginate.Page[map[string]any]{}, err
		}
		return paginate.Page[map[string]any]{Items: pg.Comments, HasMore: pg.HasMore, NextCursor: pg.Cursor}, nil
	}

	replies, err := paginate.Walk(ctx, fetch, paginate.Options[map[string]any]{Delay: s.opts.CrawlInterval})
	if err != nil {
		return err
	}

	existing, _ := comment["sub_comments"].([]any)
	for _, reply := range replies {
		existing = append(existing, reply)
	}
	comment["sub_comments"] = existing
	comment["sub_comment_has_more"] = false
	return nil
}

// CreatorNotesResolved enumerates up to maxCount notes and resolves each to
// its full detail under the concurrency limit.
func (s *Service) CreatorNotesResolved(ctx context.Context, userID string, maxCount int, opts CrawlOptions) (ResolvedResult, error) {
	c, _, err := s.ensureClient(ctx)
	if err != nil {
		return ResolvedResult{}, err
	}

	opts.MaxItems = maxCount
	enumerated, err := s.CreatorNotes(ctx, userID, opts)
	if err != nil {
		return ResolvedResult{}, err
	}

	refs := make([]resolve.Ref, 0, len(enumerated.Notes))
	for _, note := range enumerated.Notes {
		ref := noteRef(note)
		if ref.NoteID != "" {
			refs = append(refs, ref)
		}
	}

	chain, err := resolve.DefaultChain(c)
	if err != nil {
		return ResolvedResult{}, err
	}
	resolutions := resolve.New(chain, s.log).ResolveAll(ctx, refs, s.opts.ConcurrencyLimit)
	notes := resolve.Collect(resolutions)

	return ResolvedResult{
		Notes:      notes,
		Unresolved: len(refs) - len(notes),
		Cancelled:  enumerated.Cancelled || ctx.Err() != nil,
	}, nil
}

// Close releases the page. The launcher is owned by the caller and survives.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	page := s.page
	s.page = nil
	s.client = nil
	s.mu.Unlock()

	if page == nil {
		return nil
	}
	return page.Close(ctx)
}

// absorbWalkError implements the walk failure policy: cancellation tags the
// partial result, a mid-walk fetch failure with accumulated items is logged
// and absorbed, and a failure with nothing accumulated surfaces.
func (s *Service) absorbWalkError(cancelled *bool, got int, what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		*cancelled = true
		return nil
	}
	if got > 0 {
		s.log.Warn(what+" stopped early, keeping partial results",
			zap.Int("items", got), zap.Error(err))
		return nil
	}
	return err
}

// noteRef pulls the resolution tokens out of an enumerated note stub.
func noteRef(note map[string]any) resolve.Ref {
	id, _ := note["note_id"].(string)
	source, _ := note["xsec_source"].(string)
	token, _ := note["xsec_token"].(string)
	return resolve.Ref{NoteID: id, XsecSource: source, XsecToken: token}
}
