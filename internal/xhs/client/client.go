// internal/xhs/client/client.go

// Package client implements the signed API client and the HTML-scrape
// fallbacks. Every API call is pre-signed by the live page's own signing
// routine and then wrapped with the portable header signature.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/redcrawl/internal/browser"
	"github.com/xkilldash9x/redcrawl/internal/crawlerr"
	"github.com/xkilldash9x/redcrawl/internal/xhs/session"
	"github.com/xkilldash9x/redcrawl/internal/xhs/sign"
)

var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultAPIHost = "https://edith.xiaohongshu.com"
	defaultWebHost = "https://www.xiaohongshu.com"

	// ipBlockCode is the envelope code the platform returns when it has
	// rate-limited or blocked the caller's address.
	ipBlockCode = 300012

	// bodyPreviewLimit caps how much of an unparseable body lands in the
	// error message.
	bodyPreviewLimit = 200
)

// Options configures a Client. Host overrides exist for tests.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	APIHost           string
	WebHost           string
	HTTPClient        *http.Client
}

// Client is the signed API surface. It owns no session state of its own;
// cookies come from the store, signatures from the page.
type Client struct {
	http    *http.Client
	page    browser.Automator
	store   *session.Store
	limiter *rate.Limiter
	log     *zap.Logger

	userAgent string
	apiHost   string
	webHost   string

	// primeOnce guards the one navigation that makes window._webmsxyw and
	// localStorage b1 available in the page.
	primeOnce sync.Once
	primeErr  error
}

// New builds a Client over a live page and the shared session store.
func New(page browser.Automator, store *session.Store, opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.APIHost == "" {
		opts.APIHost = defaultAPIHost
	}
	if opts.WebHost == "" {
		opts.WebHost = defaultWebHost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		http:      httpClient,
		page:      page,
		store:     store,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		log:       logger.Named("xhs_client"),
		userAgent: opts.UserAgent,
		apiHost:   opts.APIHost,
		webHost:   opts.WebHost,
	}
}

// queryParam keeps query string ordering stable; the signature covers the
// exact URI string, so parameter order must match what was signed.
type queryParam struct {
	key   string
	value string
}

func encodeQuery(params []queryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// prime navigates the page to the site once so its signing routine and
// localStorage are populated. The login flow usually already did this;
// priming covers clients built over a fresh page.
func (c *Client) prime(ctx context.Context) error {
	c.primeOnce.Do(func() {
		c.primeErr = c.page.Navigate(ctx, c.webHost)
	})
	return c.primeErr
}

// signedHeaders runs the in-page signer over the exact URI (plus body for
// POST) and derives the portable signature headers.
func (c *Client) signedHeaders(ctx context.Context, uri string, body []byte) (sign.Headers, error) {
	if err := c.prime(ctx); err != nil {
		return sign.Headers{}, crawlerr.Wrap(crawlerr.KindDataFetchFailed, "failed to prepare signing page", err)
	}

	uriJS, err := jsonx.Marshal(uri)
	if err != nil {
		return sign.Headers{}, err
	}
	bodyJS := "null"
	if len(body) > 0 {
		bodyJS = string(body)
	}

	var enc struct {
		XS string      `json:"X-s"`
		XT json.Number `json:"X-t"`
	}
	expr := fmt.Sprintf(`(function(){
		if (typeof window._webmsxyw !== "function") { throw new Error("_webmsxyw unavailable"); }
		return window._webmsxyw(%s, %s);
	})()`, uriJS, bodyJS)
	if err := c.page.Evaluate(ctx, expr, &enc); err != nil {
		return sign.Headers{}, crawlerr.Wrap(crawlerr.KindDataFetchFailed, "in-page signing failed", err)
	}

	var b1 string
	if err := c.page.Evaluate(ctx, `window.localStorage.getItem("b1") || ""`, &b1); err != nil {
		return sign.Headers{}, crawlerr.Wrap(crawlerr.KindDataFetchFailed, "failed to read signing seed", err)
	}
	if b1 == "" {
		c.log.Warn("signing seed b1 missing from localStorage")
	}

	a1, _ := c.store.Get(session.IdentityCookieName)
	return sign.Sign(a1, b1, enc.XS, enc.XT.String()), nil
}

// get issues a signed GET. The query string is part of the signed URI.
func (c *Client) get(ctx context.Context, uri string, params []queryParam) (jsoniter.RawMessage, error) {
	finalURI := uri
	if len(params) > 0 {
		finalURI = uri + "?" + encodeQuery(params)
	}
	hdrs, err := c.signedHeaders(ctx, finalURI, nil)
	if err != nil {
		return nil, err
	}
	return c.request(ctx, http.MethodGet, c.apiHost+finalURI, nil, hdrs)
}

// post issues a signed POST with a JSON body. The body bytes fed to the
// signer and sent on the wire are identical.
func (c *Client) post(ctx context.Context, uri string, payload any) (jsoniter.RawMessage, error) {
	body, err := jsonx.Marshal(payload)
	if err != nil {
		return nil, err
	}
	hdrs, err := c.signedHeaders(ctx, uri, body)
	if err != nil {
		return nil, err
	}
	return c.request(ctx, http.MethodPost, c.apiHost+uri, body, hdrs)
}

// request sends one signed API call and unwraps the response envelope.
func (c *Client) request(ctx context.Context, method, fullURL string, body []byte, hdrs sign.Headers) (jsoniter.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-S", hdrs.XS)
	req.Header.Set("X-T", hdrs.XT)
	req.Header.Set("X-S-Common", hdrs.XSCommon)
	req.Header.Set("X-B3-Traceid", hdrs.XB3TraceID)
	if cookie := c.store.Current().HeaderValue; cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindDataFetchFailed, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 461 || resp.StatusCode == 471 {
		return nil, crawlerr.Challenge(resp.Header.Get("Verifytype"), resp.Header.Get("Verifyuuid"))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindDataFetchFailed, "failed to read response", err)
	}

	var envelope struct {
		Success bool                `json:"success"`
		Code    int                 `json:"code"`
		Data    jsoniter.RawMessage `json:"data"`
		Msg     string              `json:"msg"`
	}
	if err := jsonx.Unmarshal(raw, &envelope); err != nil {
		return nil, crawlerr.New(crawlerr.KindMalformedResponse,
			"response is not valid JSON: "+bodyPreview(raw))
	}

	if envelope.Success {
		return envelope.Data, nil
	}
	if envelope.Code == ipBlockCode {
		return nil, crawlerr.New(crawlerr.KindIPBlocked, "address blocked by platform risk control")
	}
	msg := envelope.Msg
	if msg == "" {
		msg = "platform rejected the request"
	}
	return nil, crawlerr.New(crawlerr.KindDataFetchFailed, msg)
}

// RawGet fetches a page body without envelope handling, for HTML scraping.
// withCookies controls whether the session cookie header is attached.
func (c *Client) RawGet(ctx context.Context, fullURL string, withCookies bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if withCookies {
		if cookie := c.store.Current().HeaderValue; cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", crawlerr.Wrap(crawlerr.KindDataFetchFailed, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 461 || resp.StatusCode == 471 {
		return "", crawlerr.Challenge(resp.Header.Get("Verifytype"), resp.Header.Get("Verifyuuid"))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", crawlerr.Wrap(crawlerr.KindDataFetchFailed, "failed to read response", err)
	}
	return string(raw), nil
}

func bodyPreview(raw []byte) string {
	if len(raw) > bodyPreviewLimit {
		raw = raw[:bodyPreviewLimit]
	}
	return string(raw)
}
