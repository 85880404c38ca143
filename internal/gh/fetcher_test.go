package gh

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isscope/isscope/internal/models"
)

var detailPathRe = regexp.MustCompile(`^/repos/acme/widgets/issues/(\d+)/(comments|timeline)$`)

// detailHandler serves per-issue comments and timelines, failing every
// request for numbers in failNumbers.
func detailHandler(failNumbers map[string]bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := detailPathRe.FindStringSubmatch(r.URL.Path)
		if m == nil {
			http.NotFound(w, r)
			return
		}
		writeRateHeaders(w, 4999)
		if failNumbers[m[1]] {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message": "boom"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if m[2] == "comments" {
			fmt.Fprintf(w, `[{"id": %s00, "body": "comment on %s", "created_at": "2026-07-02T10:00:00Z", "user": {"login": "bob"}}]`, m[1], m[1])
			return
		}
		fmt.Fprint(w, `[{"event": "labeled", "created_at": "2026-07-02T10:00:00Z"}]`)
	})
}

func numberedIssues(numbers ...int) []models.Issue {
	out := make([]models.Issue, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, models.Issue{Number: n, Title: fmt.Sprintf("Issue %d", n)})
	}
	return out
}

func TestFetchDetailsFillsCollections(t *testing.T) {
	c := newTestClient(t, detailHandler(nil))

	is := c.FetchDetails(context.Background(), "acme", "widgets", models.Issue{Number: 7})
	require.Len(t, is.Comments, 1)
	assert.Equal(t, "comment on 7", is.Comments[0].Body)
	require.Len(t, is.Timeline, 1)
	assert.Equal(t, "labeled", is.Timeline[0].Event)
}

func TestFetchAllDetailsPreservesInputOrder(t *testing.T) {
	c := newTestClient(t, detailHandler(nil))
	input := numberedIssues(9, 1, 5, 30, 2)

	out := c.FetchAllDetails(context.Background(), "acme", "widgets", input, nil, nil)
	require.Len(t, out, len(input))
	for i, is := range input {
		assert.Equal(t, is.Number, out[i].Number, "position %d", i)
		assert.Len(t, out[i].Comments, 1)
	}
}

func TestFetchAllDetailsFailureKeepsIssue(t *testing.T) {
	c := newTestClient(t, detailHandler(map[string]bool{"5": true}))
	input := numberedIssues(9, 5, 2)

	out := c.FetchAllDetails(context.Background(), "acme", "widgets", input, nil, nil)
	require.Len(t, out, 3)

	assert.Equal(t, 5, out[1].Number)
	assert.Empty(t, out[1].Comments)
	assert.Empty(t, out[1].Timeline)

	assert.Len(t, out[0].Comments, 1)
	assert.Len(t, out[2].Comments, 1)
}

func TestFetchAllDetailsReportsProgress(t *testing.T) {
	c := newTestClient(t, detailHandler(nil))
	input := numberedIssues(1, 2, 3, 4)

	var mu sync.Mutex
	var seen []int
	c.FetchAllDetails(context.Background(), "acme", "widgets", input, func(current, total int, _ string) {
		assert.Equal(t, 4, total)
		mu.Lock()
		seen = append(seen, current)
		mu.Unlock()
	}, nil)

	assert.Len(t, seen, 4)
	assert.Contains(t, seen, 4)
}

func TestFetchAllDetailsCancelledReturnsInput(t *testing.T) {
	c := newTestClient(t, detailHandler(nil))
	input := numberedIssues(1, 2, 3)

	out := c.FetchAllDetails(context.Background(), "acme", "widgets", input, nil, func() bool { return true })
	require.Len(t, out, 3)
	for i, is := range input {
		assert.Equal(t, is.Number, out[i].Number)
		assert.Empty(t, out[i].Comments)
	}
}

func TestFetchAllDetailsEmptyInput(t *testing.T) {
	c := newTestClient(t, detailHandler(nil))
	out := c.FetchAllDetails(context.Background(), "acme", "widgets", nil, nil, nil)
	assert.Empty(t, out)
}
