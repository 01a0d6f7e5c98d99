// internal/xhs/session/store_test.go
package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_EmptyByDefault(t *testing.T) {
	st := NewStore()
	assert.True(t, st.Current().Empty())

	_, ok := st.Get(SessionCookieName)
	assert.False(t, ok)
}

func TestStore_ReplaceAndGet(t *testing.T) {
	st := NewStore()
	st.Replace([]Cookie{
		{Name: "a1", Value: "token-a1", Domain: ".xiaohongshu.com", Path: "/"},
		{Name: "web_session", Value: "sess-1", Domain: ".xiaohongshu.com", Path: "/"},
	})

	v, ok := st.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "token-a1", v)

	snap := st.Current()
	assert.Equal(t, "a1=token-a1; web_session=sess-1", snap.HeaderValue)
	assert.False(t, snap.Empty())
}

// Readers holding an old snapshot must keep seeing a consistent cookie set
// while Replace swaps in a new one.
func TestStore_SnapshotIsolation(t *testing.T) {
	st := NewStore()
	st.Replace([]Cookie{{Name: "web_session", Value: "old"}})
	old := st.Current()

	st.Replace([]Cookie{{Name: "web_session", Value: "new"}})

	v, _ := old.Get("web_session")
	assert.Equal(t, "old", v)
	v, _ = st.Get("web_session")
	assert.Equal(t, "new", v)
}

// Concurrent readers must never observe a half-updated set: every snapshot
// they load has a header value consistent with its cookie list.
func TestStore_ConcurrentSwap(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				st.Replace([]Cookie{{Name: "web_session", Value: fmt.Sprintf("w%d-%d", n, j)}})
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := st.Current()
				if len(snap.Cookies) == 1 {
					want := snap.Cookies[0].Name + "=" + snap.Cookies[0].Value
					assert.Equal(t, want, snap.HeaderValue)
				}
			}
		}()
	}
	wg.Wait()
}

func TestParseCookieString(t *testing.T) {
	got := ParseCookieString("a1=v1; web_session=v2;; malformed ;=empty; c=")
	want := []Cookie{
		{Name: "a1", Value: "v1"},
		{Name: "web_session", Value: "v2"},
		{Name: "c", Value: ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected cookies (-want +got):\n%s", diff)
	}
}
