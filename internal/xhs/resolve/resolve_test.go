// internal/xhs/resolve/resolve_test.go
package resolve

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prefixStrategy resolves refs whose ID starts with "<prefix>-", errors on
// IDs containing "err-<prefix>", and otherwise passes.
func prefixStrategy(prefix string) Strategy {
	return func(ctx context.Context, ref Ref) (map[string]any, bool, error) {
		if strings.Contains(ref.NoteID, "err-"+prefix) {
			return nil, false, errors.New(prefix + " exploded")
		}
		if strings.HasPrefix(ref.NoteID, prefix+"-") {
			return map[string]any{"note_id": ref.NoteID, "via": prefix}, true, nil
		}
		return nil, false, nil
	}
}

func refs(ids ...string) []Ref {
	out := make([]Ref, len(ids))
	for i, id := range ids {
		out[i] = Ref{NoteID: id}
	}
	return out
}

func TestResolveAllStrategyChain(t *testing.T) {
	r := New([]Strategy{prefixStrategy("a"), prefixStrategy("b"), prefixStrategy("c")}, nil)

	for _, limit := range []int{1, 10} {
		input := refs("a-1", "b-1", "c-1", "x-1", "a-2")
		out := r.ResolveAll(context.Background(), input, limit)
		require.Len(t, out, 5)

		// Input order is preserved regardless of completion order.
		for i, ref := range input {
			assert.Equal(t, ref, out[i].Ref, "limit=%d index=%d", limit, i)
		}

		assert.True(t, out[0].Resolved)
		assert.Equal(t, "a", out[0].Note["via"])
		assert.True(t, out[1].Resolved)
		assert.Equal(t, "b", out[1].Note["via"], "second strategy answers after first passes")
		assert.True(t, out[2].Resolved)
		assert.Equal(t, "c", out[2].Note["via"])
		assert.False(t, out[3].Resolved, "no strategy answers x-1")
		assert.NoError(t, out[3].Err)
		assert.True(t, out[4].Resolved)
	}
}

func TestResolveAllFailedStrategyFallsThrough(t *testing.T) {
	r := New([]Strategy{prefixStrategy("a"), prefixStrategy("b")}, nil)

	// The first strategy errors on "err-a-1"; the second passes on it, so
	// the item stays unresolved and keeps the error.
	out := r.ResolveAll(context.Background(), refs("err-a-1", "a-1"), 2)
	require.Len(t, out, 2)

	assert.False(t, out[0].Resolved)
	require.Error(t, out[0].Err)
	assert.Contains(t, out[0].Err.Error(), "a exploded")

	assert.True(t, out[1].Resolved, "one item's failure never taints the batch")
}

func TestResolveAllErrorThenLaterStrategyAnswers(t *testing.T) {
	failing := func(ctx context.Context, ref Ref) (map[string]any, bool, error) {
		return nil, false, errors.New("transport down")
	}
	r := New([]Strategy{failing, prefixStrategy("a")}, nil)

	out := r.ResolveAll(context.Background(), refs("a-1"), 1)
	require.Len(t, out, 1)
	assert.True(t, out[0].Resolved)
	assert.NoError(t, out[0].Err, "a later answer clears earlier strategy errors")
}

func TestResolveAllHonorsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int64
	slow := func(ctx context.Context, ref Ref) (map[string]any, bool, error) {
		now := inFlight.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		defer inFlight.Add(-1)
		time.Sleep(time.Millisecond)
		return map[string]any{"note_id": ref.NoteID}, true, nil
	}

	r := New([]Strategy{slow}, nil)
	out := r.ResolveAll(context.Background(), refs("1", "2", "3", "4", "5", "6"), 2)

	require.Len(t, out, 6)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestResolveAllCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New([]Strategy{prefixStrategy("a")}, nil)
	out := r.ResolveAll(ctx, refs("a-1", "a-2"), 2)

	require.Len(t, out, 2)
	for _, res := range out {
		assert.False(t, res.Resolved)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestCollectFiltersUnresolved(t *testing.T) {
	in := []Resolution{
		{Resolved: true, Note: map[string]any{"note_id": "1"}},
		{Resolved: false},
		{Resolved: true, Note: map[string]any{"note_id": "3"}},
	}
	notes := Collect(in)
	require.Len(t, notes, 2)
	assert.Equal(t, "1", notes[0]["note_id"])
	assert.Equal(t, "3", notes[1]["note_id"])
}

func TestDefaultChainRejectsNilClient(t *testing.T) {
	_, err := DefaultChain(nil)
	require.Error(t, err)
}
