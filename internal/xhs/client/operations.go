// internal/xhs/client/operations.go
package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/redcrawl/internal/xhs/sign"
)

// pongKeyword is the throwaway search used as a login-state probe.
const pongKeyword = "小红书"

// SearchResult is one page of keyword search results.
type SearchResult struct {
	Items   []map[string]any `json:"items"`
	HasMore bool             `json:"has_more"`
}

// UserPostedPage is one page of a creator's published notes.
type UserPostedPage struct {
	Notes   []map[string]any `json:"notes"`
	Cursor  string           `json:"cursor"`
	HasMore bool             `json:"has_more"`
}

// CommentPage is one page of top-level comments on a note.
type CommentPage struct {
	Comments []map[string]any `json:"comments"`
	Cursor   string           `json:"cursor"`
	HasMore  bool             `json:"has_more"`
}

// SubCommentPage is one page of replies under a top-level comment.
type SubCommentPage struct {
	Comments []map[string]any `json:"comments"`
	Cursor   string           `json:"cursor"`
	HasMore  bool             `json:"has_more"`
}

// SearchNotes runs a keyword search. An empty searchID gets a fresh one;
// sort defaults to "general" and noteType to all types.
func (c *Client) SearchNotes(ctx context.Context, keyword, searchID string, page, pageSize int, sortType string, noteType int) (SearchResult, error) {
	if searchID == "" {
		searchID = sign.SearchID()
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if sortType == "" {
		sortType = "general"
	}
	payload := map[string]any{
		"keyword":   keyword,
		"page":      page,
		"page_size": pageSize,
		"search_id": searchID,
		"sort":      sortType,
		"note_type": noteType,
	}
	raw, err := c.post(ctx, "/api/sns/web/v1/search/notes", payload)
	if err != nil {
		return SearchResult{}, err
	}
	var out SearchResult
	if len(raw) > 0 {
		if err := jsonx.Unmarshal(raw, &out); err != nil {
			return SearchResult{}, err
		}
	}
	return out, nil
}

// NoteByID fetches one note's detail via the feed API. A response with no
// items yields an empty map, not an error.
func (c *Client) NoteByID(ctx context.Context, noteID, xsecSource, xsecToken string) (map[string]any, error) {
	if xsecSource == "" {
		xsecSource = "pc_search"
	}
	payload := map[string]any{
		"source_note_id": noteID,
		"image_formats":  []string{"jpg", "webp", "avif"},
		"extra":          map[string]any{"need_body_topic": 1},
		"xsec_source":    xsecSource,
		"xsec_token":     xsecToken,
	}
	raw, err := c.post(ctx, "/api/sns/web/v1/feed", payload)
	if err != nil {
		return nil, err
	}
	var out struct {
		Items []struct {
			NoteCard map[string]any `json:"note_card"`
		} `json:"items"`
	}
	if len(raw) > 0 {
		if err := jsonx.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
	}
	if len(out.Items) == 0 {
		c.log.Warn("feed returned no items", zap.String("note_id", noteID))
		return map[string]any{}, nil
	}
	return out.Items[0].NoteCard, nil
}

// NoteComments fetches one page of top-level comments.
func (c *Client) NoteComments(ctx context.Context, noteID, xsecToken, cursor string) (CommentPage, error) {
	params := []queryParam{
		{"note_id", noteID},
		{"cursor", cursor},
		{"top_comment_id", ""},
		{"image_formats", "jpg,webp,avif"},
		{"xsec_token", xsecToken},
	}
	raw, err := c.get(ctx, "/api/sns/web/v2/comment/page", params)
	if err != nil {
		return CommentPage{}, err
	}
	var out CommentPage
	if len(raw) > 0 {
		if err := jsonx.Unmarshal(raw, &out); err != nil {
			return CommentPage{}, err
		}
	}
	return out, nil
}

// SubComments fetches one page of replies under rootCommentID.
func (c *Client) SubComments(ctx context.Context, noteID, rootCommentID, xsecToken string, num int, cursor string) (SubCommentPage, error) {
	if num <= 0 {
		num = 10
	}
	params := []queryParam{
		{"note_id", noteID},
		{"root_comment_id", rootCommentID},
		{"num", strconv.Itoa(num)},
		{"cursor", cursor},
		{"image_formats", "jpg,webp,avif"},
		{"top_comment_id", ""},
		{"xsec_token", xsecToken},
	}
	raw, err := c.get(ctx, "/api/sns/web/v2/comment/sub/page", params)
	if err != nil {
		return SubCommentPage{}, err
	}
	var out SubCommentPage
	if len(raw) > 0 {
		if err := jsonx.Unmarshal(raw, &out); err != nil {
			return SubCommentPage{}, err
		}
	}
	return out, nil
}

// CreatorNotes fetches one page of a creator's published notes.
func (c *Client) CreatorNotes(ctx context.Context, userID, cursor string, pageSize int) (UserPostedPage, error) {
	if pageSize <= 0 {
		pageSize = 30
	}
	params := []queryParam{
		{"user_id", userID},
		{"cursor", cursor},
		{"num", strconv.Itoa(pageSize)},
		{"image_formats", "jpg,webp,avif"},
	}
	raw, err := c.get(ctx, "/api/sns/web/v1/user_posted", params)
	if err != nil {
		return UserPostedPage{}, err
	}
	var out UserPostedPage
	if len(raw) > 0 {
		if err := jsonx.Unmarshal(raw, &out); err != nil {
			return UserPostedPage{}, err
		}
	}
	return out, nil
}

// CreatorInfo scrapes the creator's public profile page. A profile without
// the embedded state yields an empty map.
func (c *Client) CreatorInfo(ctx context.Context, userID string) (map[string]any, error) {
	html, err := c.RawGet(ctx, c.webHost+"/user/profile/"+userID, true)
	if err != nil {
		return nil, err
	}
	state, ok := scrapeInitialState(html)
	if !ok {
		return map[string]any{}, nil
	}
	user, _ := state["user"].(map[string]any)
	pageData, _ := user["userPageData"].(map[string]any)
	if pageData == nil {
		return map[string]any{}, nil
	}
	return pageData, nil
}

// NoteFromHTML scrapes a note's detail from its explore page. withCookies
// selects the authenticated or the anonymous variant. A page without the
// note yields (nil, nil).
func (c *Client) NoteFromHTML(ctx context.Context, noteID, xsecSource, xsecToken string, withCookies bool) (map[string]any, error) {
	pageURL := fmt.Sprintf("%s/explore/%s?xsec_token=%s&xsec_source=%s", c.webHost, noteID, xsecToken, xsecSource)
	html, err := c.RawGet(ctx, pageURL, withCookies)
	if err != nil {
		return nil, err
	}
	state, ok := scrapeInitialState(html)
	if !ok {
		return nil, nil
	}
	note, _ := state["note"].(map[string]any)
	detailMap, _ := note["noteDetailMap"].(map[string]any)
	entry, _ := detailMap[noteID].(map[string]any)
	detail, _ := entry["note"].(map[string]any)
	if detail == nil {
		return nil, nil
	}
	return detail, nil
}

// Pong probes whether the current session is still accepted, by running a
// throwaway keyword search and checking the payload shape. It never errors;
// any failure means "not alive".
func (c *Client) Pong(ctx context.Context) bool {
	raw, err := c.post(ctx, "/api/sns/web/v1/search/notes", map[string]any{
		"keyword":   pongKeyword,
		"page":      1,
		"page_size": 20,
		"search_id": sign.SearchID(),
		"sort":      "general",
		"note_type": 0,
	})
	if err != nil {
		c.log.Info("session probe failed", zap.Error(err))
		return false
	}
	if len(raw) == 0 {
		return false
	}
	var payload map[string]any
	if err := jsonx.Unmarshal(raw, &payload); err != nil {
		return false
	}
	_, ok := payload["items"]
	return ok
}

const initialStateMarker = "window.__INITIAL_STATE__="

// scrapeInitialState extracts and repairs the state object the site embeds
// in its HTML. The embedded blob is JavaScript, not JSON: bare undefined
// tokens must be replaced before parsing. A missing or unparseable blob
// yields (nil, false), never an error.
func scrapeInitialState(html string) (map[string]any, bool) {
	start := strings.Index(html, initialStateMarker)
	if start < 0 {
		return nil, false
	}
	rest := html[start+len(initialStateMarker):]
	end := strings.Index(rest, "</script>")
	if end < 0 {
		return nil, false
	}
	raw := strings.TrimSpace(rest[:end])
	raw = strings.ReplaceAll(raw, ":undefined", ":null")
	raw = strings.ReplaceAll(raw, "undefined", `""`)

	var state map[string]any
	if err := jsonx.Unmarshal([]byte(raw), &state); err != nil {
		return nil, false
	}
	return state, true
}
