// internal/xhs/resolve/resolve.go

// Package resolve turns enumerated note references into full note details.
// Enumeration endpoints return thin stubs; detail requires a second fetch
// per note, which this package runs under a concurrency bound.
package resolve

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/redcrawl/internal/xhs/client"
)

// Ref identifies one note to resolve, with the access tokens enumeration
// handed out for it.
type Ref struct {
	NoteID     string
	XsecSource string
	XsecToken  string
}

// Strategy is one way of obtaining a note's detail. ok=false with a nil
// error means "no answer here, try the next strategy".
type Strategy func(ctx context.Context, ref Ref) (map[string]any, bool, error)

// Resolution pairs a reference with its outcome. Unresolved items keep the
// last error seen, if any.
type Resolution struct {
	Ref      Ref
	Note     map[string]any
	Resolved bool
	Err      error
}

// Resolver runs a strategy chain over batches of references.
type Resolver struct {
	strategies []Strategy
	log        *zap.Logger
}

// New builds a resolver over an ordered strategy chain.
func New(strategies []Strategy, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{strategies: strategies, log: logger.Named("resolver")}
}

// DefaultChain is the production strategy order: the authenticated page
// scrape, then the anonymous scrape, then the signed feed API as the last
// resort.
func DefaultChain(c *client.Client) ([]Strategy, error) {
	if c == nil {
		return nil, errors.New("resolve: nil client")
	}
	scrape := func(withCookies bool) Strategy {
		return func(ctx context.Context, ref Ref) (map[string]any, bool, error) {
			note, err := c.NoteFromHTML(ctx, ref.NoteID, ref.XsecSource, ref.XsecToken, withCookies)
			if err != nil {
				return nil, false, err
			}
			if note == nil {
				return nil, false, nil
			}
			return note, true, nil
		}
	}
	api := func(ctx context.Context, ref Ref) (map[string]any, bool, error) {
		note, err := c.NoteByID(ctx, ref.NoteID, ref.XsecSource, ref.XsecToken)
		if err != nil {
			return nil, false, err
		}
		if len(note) == 0 {
			return nil, false, nil
		}
		return note, true, nil
	}
	return []Strategy{scrape(true), scrape(false), api}, nil
}

// ResolveAll resolves every reference, at most limit at a time. Results are
// written by input index, so output order always matches input order. A
// failed or unanswered item never aborts the batch.
func (r *Resolver) ResolveAll(ctx context.Context, refs []Ref, limit int) []Resolution {
	if limit <= 0 {
		limit = 1
	}
	out := make([]Resolution, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ref := range refs {
		g.Go(func() error {
			out[i] = r.resolveOne(gctx, ref)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, ref Ref) Resolution {
	res := Resolution{Ref: ref}
	for _, strategy := range r.strategies {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		note, ok, err := strategy(ctx, ref)
		if err != nil {
			res.Err = err
			r.log.Warn("resolution strategy failed",
				zap.String("note_id", ref.NoteID), zap.Error(err))
			continue
		}
		if ok {
			res.Note = note
			res.Resolved = true
			res.Err = nil
			return res
		}
	}
	if !res.Resolved && res.Err == nil {
		r.log.Debug("note unresolved by all strategies", zap.String("note_id", ref.NoteID))
	}
	return res
}

// Collect keeps the notes of resolved items, in resolution order.
func Collect(resolutions []Resolution) []map[string]any {
	out := make([]map[string]any, 0, len(resolutions))
	for _, res := range resolutions {
		if res.Resolved {
			out = append(out, res.Note)
		}
	}
	return out
}
