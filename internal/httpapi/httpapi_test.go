// internal/httpapi/httpapi_test.go
package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/redcrawl/internal/crawlerr"
	"github.com/xkilldash9x/redcrawl/internal/xhs/login"
	"github.com/xkilldash9x/redcrawl/internal/xhs/service"
)

// stubService scripts each service call.
type stubService struct {
	loginErr   error
	ensureErr  error
	notesRes   service.NotesResult
	notesErr   error
	resolved   service.ResolvedResult
	resolvErr  error
	lastLogin  login.Strategy
	lastUserID string
	lastMax    int
}

func (s *stubService) Login(ctx context.Context, strategy login.Strategy) error {
	s.lastLogin = strategy
	return s.loginErr
}

func (s *stubService) EnsureLoggedIn(ctx context.Context, autoLogin bool, strategy login.Strategy) error {
	return s.ensureErr
}

func (s *stubService) CreatorNotes(ctx context.Context, userID string, opts service.CrawlOptions) (service.NotesResult, error) {
	s.lastUserID = userID
	s.lastMax = opts.MaxItems
	return s.notesRes, s.notesErr
}

func (s *stubService) CreatorNotesResolved(ctx context.Context, userID string, maxCount int, opts service.CrawlOptions) (service.ResolvedResult, error) {
	s.lastUserID = userID
	s.lastMax = maxCount
	return s.resolved, s.resolvErr
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginDispatchesStrategy(t *testing.T) {
	stub := &stubService{}
	h := NewHandler(stub, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/xhs/login", `{"method":"cookie","cookie":"web_session=tok"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, login.MethodCookie, stub.lastLogin.Method)
	assert.Equal(t, "web_session=tok", stub.lastLogin.CookieString)
	assert.Contains(t, rec.Body.String(), "authenticated")
}

func TestLoginDefaultsToQRCode(t *testing.T) {
	stub := &stubService{}
	h := NewHandler(stub, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/xhs/login", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, login.MethodQRCode, stub.lastLogin.Method)
}

func TestCreatorNotesRequiresUserID(t *testing.T) {
	h := NewHandler(&stubService{}, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/xhs/creator/notes", `{"max_items":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatorNotesReturnsResult(t *testing.T) {
	stub := &stubService{notesRes: service.NotesResult{
		Notes:     []map[string]any{{"note_id": "n1"}},
		Cancelled: true,
	}}
	h := NewHandler(stub, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/xhs/creator/notes", `{"user_id":"u1","max_items":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", stub.lastUserID)
	assert.Equal(t, 7, stub.lastMax)
	assert.Contains(t, rec.Body.String(), `"cancelled":true`)
	assert.Contains(t, rec.Body.String(), `"note_id":"n1"`)
}

func TestResolvedPassesMaxCount(t *testing.T) {
	stub := &stubService{resolved: service.ResolvedResult{Unresolved: 2}}
	h := NewHandler(stub, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/xhs/creator/notes/resolved", `{"user_id":"u1","max_count":12}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, stub.lastMax)
	assert.Contains(t, rec.Body.String(), `"unresolved":2`)
}

func TestErrorKindStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{crawlerr.New(crawlerr.KindNotAuthenticated, "no session"), http.StatusUnauthorized},
		{crawlerr.New(crawlerr.KindLoginFailed, "timed out"), http.StatusUnauthorized},
		{crawlerr.Challenge("slider", "id-1"), http.StatusForbidden},
		{crawlerr.New(crawlerr.KindIPBlocked, "blocked"), http.StatusTooManyRequests},
		{crawlerr.New(crawlerr.KindMalformedResponse, "garbage"), http.StatusBadGateway},
		{crawlerr.New(crawlerr.KindDataFetchFailed, "rejected"), http.StatusBadGateway},
		{assertAnError{}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		stub := &stubService{ensureErr: tc.err}
		h := NewHandler(stub, nil)
		rec := doJSON(t, h, http.MethodPost, "/api/xhs/creator/notes", `{"user_id":"u1"}`)
		assert.Equal(t, tc.status, rec.Code, "error: %v", tc.err)
	}
}

func TestChallengeResponseCarriesMetadata(t *testing.T) {
	stub := &stubService{ensureErr: crawlerr.Challenge("slider", "verify-9")}
	h := NewHandler(stub, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/xhs/creator/notes", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"challenge_type":"slider"`)
	assert.Contains(t, rec.Body.String(), `"challenge_id":"verify-9"`)
}

func TestInvalidBodyIsBadRequest(t *testing.T) {
	h := NewHandler(&stubService{}, nil)
	rec := doJSON(t, h, http.MethodPost, "/api/xhs/login", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	h := NewHandler(&stubService{}, nil)
	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// assertAnError is a plain error with no kind.
type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }
