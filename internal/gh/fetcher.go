package gh

import (
	"context"
	"sync"

	"github.com/isscope/isscope/internal/models"
)

// FetchDetails fills in one issue's comments and timeline. The two
// sub-requests run concurrently; a failed sub-request leaves that
// collection empty rather than failing the issue.
func (c *Client) FetchDetails(ctx context.Context, owner, repo string, issue models.Issue) models.Issue {
	var wg sync.WaitGroup
	var comments []models.Comment
	var timeline []models.TimelineEvent

	wg.Add(2)
	go func() {
		defer wg.Done()
		if got, err := c.FetchComments(ctx, owner, repo, issue.Number); err == nil {
			comments = got
		}
	}()
	go func() {
		defer wg.Done()
		if got, err := c.FetchTimeline(ctx, owner, repo, issue.Number); err == nil {
			timeline = got
		}
	}()
	wg.Wait()

	issue.Comments = comments
	issue.Timeline = timeline
	return issue
}

// FetchAllDetails fetches comments and timeline for every issue using a
// bounded worker pool. The returned slice preserves the input ordering
// regardless of completion order, and an issue whose detail fetch fails
// entirely is returned unchanged rather than dropped. Workers stop claiming
// new issues once cancelled reports true; in-flight fetches complete.
func (c *Client) FetchAllDetails(ctx context.Context, owner, repo string, issues []models.Issue, progress ProgressFunc, cancelled CancelFunc) []models.Issue {
	total := len(issues)
	if total == 0 {
		return nil
	}
	if progress == nil {
		progress = func(int, int, string) {}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	queue := make(chan models.Issue, total)
	for _, is := range issues {
		queue <- is
	}
	close(queue)

	var mu sync.Mutex
	results := make(map[int]models.Issue, total)
	completed := 0

	workers := c.workers
	if workers > total {
		workers = total
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for is := range queue {
				if cancelled() || ctx.Err() != nil {
					return
				}
				detailed := c.FetchDetails(ctx, owner, repo, is)

				mu.Lock()
				results[is.Number] = detailed
				completed++
				current := completed
				mu.Unlock()
				progress(current, total, "Fetched details for issue")
			}
		}()
	}
	wg.Wait()

	// Project results back over the input sequence; anything a worker never
	// reached comes back detail-less.
	out := make([]models.Issue, 0, total)
	for _, is := range issues {
		if detailed, ok := results[is.Number]; ok {
			out = append(out, detailed)
		} else {
			out = append(out, is)
		}
	}
	return out
}
