package analyze

import (
	"context"
	"sync"

	"github.com/isscope/isscope/internal/models"
)

// AnalyzeAll classifies a batch of issues concurrently with a bounded
// worker pool and returns a map keyed by issue number. Per-issue failures
// are absorbed inside Analyze, so the batch as a whole never fails. Workers
// poll cancelled before claiming each issue; analyses already dispatched
// run to completion.
func (c *Client) AnalyzeAll(ctx context.Context, issues []models.Issue, progress ProgressFunc, logf LogFunc, cancelled CancelFunc) map[int]models.AnalysisResult {
	total := len(issues)
	analyses := make(map[int]models.AnalysisResult, total)
	if total == 0 {
		return analyses
	}
	if progress == nil {
		progress = func(int, int) {}
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
				result := c.Analyze(ctx, is, logf)

				mu.Lock()
				analyses[is.Number] = result
				completed++
				current := completed
				mu.Unlock()
				progress(current, total)
			}
		}()
	}
	wg.Wait()

	if cancelled() {
		if logf != nil {
			logf("Analysis cancelled")
		}
	}
	return analyses
}
