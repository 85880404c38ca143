package gh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("")
	require.NoError(t, c.SetBaseURL(srv.URL))
	return c
}

func writeRateHeaders(w http.ResponseWriter, remaining int) {
	w.Header().Set("X-RateLimit-Limit", "5000")
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", "2000000000")
}

func searchItem(number int, pullRequest bool) map[string]any {
	item := map[string]any{
		"number":     number,
		"title":      fmt.Sprintf("Issue %d", number),
		"body":       "details",
		"state":      "open",
		"comments":   number,
		"html_url":   fmt.Sprintf("https://github.com/acme/widgets/issues/%d", number),
		"created_at": "2026-07-01T10:00:00Z",
		"updated_at": "2026-07-20T10:00:00Z",
		"user":       map[string]any{"login": "alice"},
		"labels":     []map[string]any{{"name": "bug", "color": "d73a4a"}},
	}
	if pullRequest {
		item["pull_request"] = map[string]any{"url": "https://api.github.com/repos/acme/widgets/pulls/1"}
	}
	return item
}

func searchHandler(t *testing.T, items []map[string]any, remaining int) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/issues", r.URL.Path)
		assert.Equal(t, "comments", r.URL.Query().Get("sort"))
		assert.Equal(t, "asc", r.URL.Query().Get("order"))

		writeRateHeaders(w, remaining)
		w.Header().Set("Content-Type", "application/json")

		pageItems := items
		if page := r.URL.Query().Get("page"); page != "" && page != "1" {
			pageItems = nil
		}
		json.NewEncoder(w).Encode(map[string]any{
			"total_count":        len(items),
			"incomplete_results": false,
			"items":              pageItems,
		})
	})
}

func TestSearchOpenIssuesConvertsFields(t *testing.T) {
	c := newTestClient(t, searchHandler(t, []map[string]any{searchItem(7, false)}, 4999))

	issues, err := c.SearchOpenIssues(context.Background(), "acme", "widgets", 200, func(string, ...any) {})
	require.NoError(t, err)
	require.Len(t, issues, 1)

	is := issues[0]
	assert.Equal(t, 7, is.Number)
	assert.Equal(t, "Issue 7", is.Title)
	assert.Equal(t, "alice", is.User.Login)
	assert.Equal(t, 7, is.CommentCount)
	assert.Equal(t, "open", is.State)
	require.Len(t, is.Labels, 1)
	assert.Equal(t, "bug", is.Labels[0].Name)
	assert.Empty(t, is.Comments, "search results carry no comment bodies")
}

func TestSearchOpenIssuesFiltersPullRequests(t *testing.T) {
	items := []map[string]any{
		searchItem(1, false),
		searchItem(2, true),
		searchItem(3, false),
	}
	c := newTestClient(t, searchHandler(t, items, 4999))

	issues, err := c.SearchOpenIssues(context.Background(), "acme", "widgets", 200, func(string, ...any) {})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 1, issues[0].Number)
	assert.Equal(t, 3, issues[1].Number)
}

func TestSearchOpenIssuesTruncatesAtMax(t *testing.T) {
	var items []map[string]any
	for i := 1; i <= 50; i++ {
		items = append(items, searchItem(i, false))
	}
	c := newTestClient(t, searchHandler(t, items, 4999))

	var logs []string
	issues, err := c.SearchOpenIssues(context.Background(), "acme", "widgets", 5, func(format string, args ...any) {
		logs = append(logs, fmt.Sprintf(format, args...))
	})
	require.NoError(t, err)
	assert.Len(t, issues, 5)
	assert.Contains(t, logs, "Limited to 5 issues (found 50 total)")
}

func TestSearchOpenIssuesTracksRateHeaders(t *testing.T) {
	c := newTestClient(t, searchHandler(t, []map[string]any{searchItem(1, false)}, 42))

	_, err := c.SearchOpenIssues(context.Background(), "acme", "widgets", 200, func(string, ...any) {})
	require.NoError(t, err)

	limits := c.RateLimits()
	assert.Equal(t, 42, limits.Remaining)
	assert.Equal(t, 5000, limits.Limit)
}

func TestSearchOpenIssuesHostError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRateHeaders(w, 4999)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))

	_, err := c.SearchOpenIssues(context.Background(), "acme", "missing", 200, func(string, ...any) {})
	require.Error(t, err)

	var hostErr *HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, http.StatusNotFound, hostErr.StatusCode)
}

func TestSearchOpenIssuesRetriesOn429(t *testing.T) {
	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			writeRateHeaders(w, 4999)
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"message": "rate limited"}`)
			return
		}
		searchHandler(t, []map[string]any{searchItem(1, false)}, 4999).ServeHTTP(w, r)
	}))

	issues, err := c.SearchOpenIssues(context.Background(), "acme", "widgets", 200, func(string, ...any) {})
	require.NoError(t, err)
	assert.Len(t, issues, 1)
	assert.Equal(t, 2, attempts)
}

func TestFetchCommentsConverts(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/issues/7/comments", r.URL.Path)
		writeRateHeaders(w, 4999)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id": 100, "body": "same here", "created_at": "2026-07-02T10:00:00Z", "user": {"login": "bob"}},
			{"id": 101, "body": "+1", "created_at": "2026-07-03T10:00:00Z", "user": {"login": "carol"}}
		]`)
	}))

	comments, err := c.FetchComments(context.Background(), "acme", "widgets", 7)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, int64(100), comments[0].ID)
	assert.Equal(t, "bob", comments[0].User.Login)
	assert.Equal(t, "same here", comments[0].Body)
}

func TestFetchTimelineConverts(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/issues/7/timeline", r.URL.Path)
		writeRateHeaders(w, 4999)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"event": "labeled", "created_at": "2026-07-02T10:00:00Z", "actor": {"login": "alice"}, "label": {"name": "bug", "color": "d73a4a"}},
			{"event": "cross-referenced", "created_at": "2026-07-03T10:00:00Z", "source": {"type": "issue", "issue": {"number": 9}}}
		]`)
	}))

	events, err := c.FetchTimeline(context.Background(), "acme", "widgets", 7)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "labeled", events[0].Event)
	require.NotNil(t, events[0].Label)
	assert.Equal(t, "bug", events[0].Label.Name)

	assert.Equal(t, "cross-referenced", events[1].Event)
	require.NotNil(t, events[1].Source)
	assert.Equal(t, 9, events[1].Source.IssueNumber)
}
