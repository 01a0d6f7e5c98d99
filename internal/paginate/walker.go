// internal/paginate/walker.go

// Package paginate implements cursor-driven enumeration of platform
// collections. One Walk covers one collection traversal; cursors are opaque
// and scoped to that traversal only.
package paginate

import (
	"context"
	"time"
)

// Page is one fetched slice of a collection.
type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor string
}

// FetchFunc retrieves the page at the given cursor; "" means start of the
// collection.
type FetchFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Options tune one traversal.
type Options[T any] struct {
	// OnPage, when set, is invoked with each page's items before they are
	// appended to the aggregate. An error from the callback aborts the walk
	// the same way a fetch error does.
	OnPage func(ctx context.Context, items []T) error
	// MaxItems caps the aggregate; 0 means unbounded. The final page is
	// truncated so the cap is respected exactly.
	MaxItems int
	// Delay is the inter-page pause. Platform etiquette, not correctness;
	// it suspends only this walk, never the caller's other traversals.
	Delay time.Duration
}

// Walk enumerates a collection page by page, strictly in cursor order.
//
// Partial results are valid: on a fetch error, a callback error, or context
// cancellation, the items accumulated so far are returned together with the
// error. An empty page without an error means the collection is exhausted.
func Walk[T any](ctx context.Context, fetch FetchFunc[T], opts Options[T]) ([]T, error) {
	var (
		items  []T
		cursor string
	)

	for {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		page, err := fetch(ctx, cursor)
		if err != nil {
			return items, err
		}
		if len(page.Items) == 0 {
			// The platform occasionally reports has_more with an empty
			// items list; treat it as exhaustion, not an error.
			return items, nil
		}

		pageItems := page.Items
		if opts.MaxItems > 0 && len(items)+len(pageItems) > opts.MaxItems {
			pageItems = pageItems[:opts.MaxItems-len(items)]
		}

		if opts.OnPage != nil {
			if err := opts.OnPage(ctx, pageItems); err != nil {
				return items, err
			}
		}
		items = append(items, pageItems...)

		if !page.HasMore || (opts.MaxItems > 0 && len(items) >= opts.MaxItems) {
			return items, nil
		}
		cursor = page.NextCursor

		if opts.Delay > 0 {
			if err := sleep(ctx, opts.Delay); err != nil {
				return items, err
			}
		}
	}
}

// sleep pauses for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
