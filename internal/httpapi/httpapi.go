// internal/httpapi/httpapi.go

// Package httpapi is the thin request layer over the crawl service. It
// translates request bodies into service calls and error kinds into status
// codes; it holds no crawl logic of its own.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/redcrawl/internal/crawlerr"
	"github.com/xkilldash9x/redcrawl/internal/xhs/login"
	"github.com/xkilldash9x/redcrawl/internal/xhs/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CrawlService is the slice of the crawl service the handlers consume.
type CrawlService interface {
	Login(ctx context.Context, strategy login.Strategy) error
	EnsureLoggedIn(ctx context.Context, autoLogin bool, strategy login.Strategy) error
	CreatorNotes(ctx context.Context, userID string, opts service.CrawlOptions) (service.NotesResult, error)
	CreatorNotesResolved(ctx context.Context, userID string, maxCount int, opts service.CrawlOptions) (service.ResolvedResult, error)
}

// Handler routes the API.
type Handler struct {
	svc CrawlService
	log *zap.Logger
}

// NewHandler builds the API's http.Handler.
func NewHandler(svc CrawlService, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, log: logger.Named("httpapi")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("POST /api/xhs/login", h.login)
	mux.HandleFunc("POST /api/xhs/creator/notes", h.creatorNotes)
	mux.HandleFunc("POST /api/xhs/creator/notes/resolved", h.creatorNotesResolved)
	return h.withLogging(mux)
}

// withLogging records one line per request.
func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Info("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Method string `json:"method"`
	Cookie string `json:"cookie"`
	Phone  string `json:"phone"`
}

func (req loginRequest) strategy() login.Strategy {
	switch login.Method(req.Method) {
	case login.MethodCookie:
		return login.CookieImport(req.Cookie)
	case login.MethodPhone:
		return login.Phone(req.Phone)
	default:
		return login.QRCode()
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Login(r.Context(), req.strategy()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "authenticated"})
}

type crawlRequest struct {
	UserID    string `json:"user_id"`
	MaxItems  int    `json:"max_items"`
	MaxCount  int    `json:"max_count"`
	AutoLogin bool   `json:"auto_login"`
	Cookie    string `json:"cookie"`
}

func (req crawlRequest) loginStrategy() login.Strategy {
	if req.Cookie != "" {
		return login.CookieImport(req.Cookie)
	}
	return login.QRCode()
}

func (h *Handler) creatorNotes(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	if err := h.svc.EnsureLoggedIn(r.Context(), req.AutoLogin, req.loginStrategy()); err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.svc.CreatorNotes(r.Context(), req.UserID, service.CrawlOptions{MaxItems: req.MaxItems})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) creatorNotesResolved(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	if err := h.svc.EnsureLoggedIn(r.Context(), req.AutoLogin, req.loginStrategy()); err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.svc.CreatorNotesResolved(r.Context(), req.UserID, req.MaxCount, service.CrawlOptions{MaxItems: req.MaxItems})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// statusForKind maps the error taxonomy onto HTTP status codes.
func statusForKind(kind crawlerr.Kind) int {
	switch kind {
	case crawlerr.KindNotAuthenticated, crawlerr.KindLoginFailed:
		return http.StatusUnauthorized
	case crawlerr.KindChallengeRequired:
		return http.StatusForbidden
	case crawlerr.KindIPBlocked:
		return http.StatusTooManyRequests
	case crawlerr.KindMalformedResponse, crawlerr.KindDataFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	status := http.StatusInternalServerError

	var ce *crawlerr.Error
	if errors.As(err, &ce) {
		status = statusForKind(ce.Kind)
		body["kind"] = string(ce.Kind)
		if ce.ChallengeType != "" {
			body["challenge_type"] = ce.ChallengeType
		}
		if ce.ChallengeID != "" {
			body["challenge_id"] = ce.ChallengeID
		}
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("failed to encode response", zap.Error(err))
	}
}
