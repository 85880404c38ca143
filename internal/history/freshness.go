package history

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/isscope/isscope/internal/models"
)

const (
	// Fixed normalization window for the comment-arrival rate.
	commentRateWindowDays = 30

	// Issues with no activity in this long keep their analysis
	// indefinitely.
	dormantAfter = 90 * 24 * time.Hour

	// Default validity of a cached analysis for an active issue.
	analysisTTL = 7 * 24 * time.Hour
)

// IssueActivity computes the issue-arrival rate from creation timestamps:
// count divided by the span in days between the oldest and newest issue,
// with a one-day floor.
func IssueActivity(issues []models.Issue, now time.Time) models.ActivityStats {
	if len(issues) == 0 {
		return models.ActivityStats{LastSeenAt: now}
	}

	sorted := make([]models.Issue, len(issues))
	copy(sorted, issues)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	oldest := sorted[0].CreatedAt
	newest := sorted[len(sorted)-1].CreatedAt
	spanDays := math.Max(1, newest.Sub(oldest).Hours()/24)

	return models.ActivityStats{
		PerDay:     float64(len(issues)) / spanDays,
		SampleSize: len(issues),
		LastSeenAt: newest,
	}
}

// CommentActivity computes the comment-arrival rate over a fixed 30-day
// window and tracks the single newest comment timestamp seen.
func CommentActivity(issues []models.Issue, now time.Time) models.ActivityStats {
	total := 0
	var latest time.Time
	for _, is := range issues {
		total += len(is.Comments)
		if at := is.LastCommentAt(); at.After(latest) {
			latest = at
		}
	}

	if total == 0 || latest.IsZero() {
		return models.ActivityStats{LastSeenAt: now}
	}
	return models.ActivityStats{
		PerDay:     float64(total) / commentRateWindowDays,
		SampleSize: total,
		LastSeenAt: latest,
	}
}

// fetchTTL maps the issue-arrival rate onto how long a whole snapshot stays
// trusted: hot repositories expire quickly, cold ones can coast for a day.
func fetchTTL(issuesPerDay float64) time.Duration {
	switch {
	case issuesPerDay > 10:
		return 30 * time.Minute
	case issuesPerDay > 5:
		return time.Hour
	case issuesPerDay > 1:
		return 4 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// UsableForFetch decides whether a cached snapshot can stand in for a fresh
// detail fetch, given the issue count a fresh search just reported. The
// snapshot is rejected when the count has drifted past twice the expected
// number of new issues for its age (minimum tolerance one), and otherwise
// must still be inside the activity-tiered TTL.
func UsableForFetch(snap *models.RepoSnapshot, freshCount int, now time.Time) (bool, string) {
	age := now.Sub(snap.FetchedAt)
	ageDays := age.Hours() / 24

	expectedNew := snap.IssueActivity.PerDay * ageDays
	tolerance := math.Max(1, expectedNew*2)
	drift := math.Abs(float64(freshCount - len(snap.Issues)))
	if drift > tolerance {
		return false, fmt.Sprintf("issue count drifted by %.0f (tolerance %.1f)", drift, tolerance)
	}

	ttl := fetchTTL(snap.IssueActivity.PerDay)
	if age >= ttl {
		return false, fmt.Sprintf("snapshot age %s exceeds TTL %s", age.Round(time.Minute), ttl)
	}
	return true, "history is fresh"
}

// commentCount prefers the fetched comment list when present and falls back
// to the count reported by search.
func commentCount(is models.Issue) int {
	if is.Comments != nil {
		return len(is.Comments)
	}
	return is.CommentCount
}

// UsableForAnalysis decides whether the cached analysis for one issue is
// still valid against a freshly observed copy of that issue. Dormant issues
// (no activity in 90 days) keep their analysis indefinitely; otherwise the
// analysis survives new-comment pressure checks and a 7-day snapshot age
// limit. Both age checks read the snapshot timestamp, so an analysis
// carried through MergeAnalyses inherits the newest save time.
func UsableForAnalysis(snap *models.RepoSnapshot, number int, fresh models.Issue, now time.Time) (bool, string) {
	cached, ok := snap.IssueByNumber(number)
	if !ok {
		return false, "issue not in history"
	}
	if _, ok := snap.Analyses[number]; !ok {
		return false, "no cached analysis"
	}

	cachedCount := commentCount(cached)
	freshCount := commentCount(fresh)
	if freshCount > cachedCount {
		if snap.CommentActivity.PerDay > 5 {
			return false, "new comments on a high-activity repository"
		}
		if freshCount-cachedCount > 2 {
			return false, fmt.Sprintf("%d new comments since analysis", freshCount-cachedCount)
		}
	}

	cachedLast := cached.LastCommentAt()
	freshLast := fresh.LastCommentAt()
	if !cachedLast.IsZero() && !freshLast.IsZero() && freshLast.Sub(cachedLast) > 3*24*time.Hour {
		return false, "more than 3 days of new discussion"
	}

	if now.Sub(fresh.LastActivity()) > dormantAfter {
		return true, "dormant issue keeps analysis"
	}

	if now.Sub(snap.FetchedAt) < analysisTTL {
		return true, "analysis history valid"
	}
	return false, "analysis older than 7 days"
}
