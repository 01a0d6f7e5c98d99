// internal/xhs/session/store.go
package session

import (
	"strings"
	"sync/atomic"
)

// SessionCookieName is the identity cookie whose change in value is the
// proof of a completed login.
const SessionCookieName = "web_session"

// IdentityCookieName is the cookie consumed by the request signer (the a1
// signing input).
const IdentityCookieName = "a1"

// Cookie is one browser cookie as the engine cares about it.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Snapshot is an immutable view of the session at one point in time. All
// concurrent API calls within one crawl operation share a snapshot; it is
// never mutated after construction.
type Snapshot struct {
	Cookies []Cookie
	// HeaderValue is the precomputed "name=value; ..." Cookie header.
	HeaderValue string

	byName map[string]string
}

// Get returns the value of a named cookie in the snapshot.
func (s *Snapshot) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.byName[name]
	return v, ok
}

// Empty reports whether the snapshot carries no cookies at all.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Cookies) == 0
}

// Store holds the current cookie set. The one legitimate mutation point in
// the whole engine is Replace; readers take snapshots and never observe a
// half-updated cookie set.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store with an empty session.
func NewStore() *Store {
	st := &Store{}
	st.Replace(nil)
	return st
}

// Current returns the live snapshot. The returned value is read-only by
// convention; it is shared between goroutines.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Replace atomically swaps in a new cookie set. Used after login and after
// any cookie refresh.
func (st *Store) Replace(cookies []Cookie) {
	snap := &Snapshot{
		Cookies: cookies,
		byName:  make(map[string]string, len(cookies)),
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		snap.byName[c.Name] = c.Value
		parts = append(parts, c.Name+"="+c.Value)
	}
	snap.HeaderValue = strings.Join(parts, "; ")
	st.current.Store(snap)
}

// Get looks up a named cookie value in the current snapshot; absent cookies
// yield ("", false), never an error.
func (st *Store) Get(name string) (string, bool) {
	return st.Current().Get(name)
}

// ParseCookieString splits a raw "k=v; k2=v2" cookie string into cookies.
// Malformed fragments are skipped.
func ParseCookieString(raw string) []Cookie {
	var out []Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			continue
		}
		out = append(out, Cookie{Name: name, Value: value})
	}
	return out
}
