package models

import (
	"time"
)

// User represents a GitHub user
type User struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
	HTMLURL   string `json:"html_url,omitempty"`
}

// Label represents a GitHub label
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Comment represents a GitHub issue comment
type Comment struct {
	ID        int64     `json:"id"`
	User      User      `json:"user"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TimelineEventSource points at the issue or pull request that referenced
// this one in a cross-referenced event.
type TimelineEventSource struct {
	Type        string `json:"type,omitempty"`
	IssueNumber int    `json:"issue_number,omitempty"`
}

// TimelineEvent represents one entry of an issue's timeline. The event
// vocabulary is open; only a small allow-list is fed to the analyzer.
type TimelineEvent struct {
	Event     string               `json:"event"`
	CreatedAt time.Time            `json:"created_at"`
	Actor     *User                `json:"actor,omitempty"`
	Source    *TimelineEventSource `json:"source,omitempty"`
	CommitID  string               `json:"commit_id,omitempty"`
	Label     *Label               `json:"label,omitempty"`
}

// Issue represents a GitHub issue. Number is the identity within a
// repository. Comments and Timeline start empty and are filled once per
// fetch cycle by the detail fetcher.
type Issue struct {
	Number       int             `json:"number"`
	Title        string          `json:"title"`
	Body         string          `json:"body"`
	User         User            `json:"user"`
	Labels       []Label         `json:"labels"`
	Assignees    []User          `json:"assignees"`
	CommentCount int             `json:"comment_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	HTMLURL      string          `json:"html_url"`
	State        string          `json:"state"`
	Comments     []Comment       `json:"comments,omitempty"`
	Timeline     []TimelineEvent `json:"timeline,omitempty"`
}

// LastActivity returns the issue's most recent activity timestamp,
// preferring UpdatedAt over CreatedAt.
func (i Issue) LastActivity() time.Time {
	if !i.UpdatedAt.IsZero() {
		return i.UpdatedAt
	}
	return i.CreatedAt
}

// LastCommentAt returns the newest comment timestamp, or the zero time when
// no comments have been fetched.
func (i Issue) LastCommentAt() time.Time {
	var latest time.Time
	for _, c := range i.Comments {
		if c.CreatedAt.After(latest) {
			latest = c.CreatedAt
		}
	}
	return latest
}

// ActivityStats captures an observed arrival rate (issues or comments per
// day) together with its sample size and the newest timestamp seen.
type ActivityStats struct {
	PerDay     float64   `json:"per_day"`
	SampleSize int       `json:"sample_size"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// RepoSnapshot is the cache unit for one repository: the fetched issues,
// their analyses, and the activity metadata that drives freshness decisions.
type RepoSnapshot struct {
	Key             string                 `json:"key"`
	Issues          []Issue                `json:"issues"`
	Analyses        map[int]AnalysisResult `json:"analyses"`
	FetchedAt       time.Time              `json:"fetched_at"`
	IssueActivity   ActivityStats          `json:"issue_activity"`
	CommentActivity ActivityStats          `json:"comment_activity"`
}

// IssueByNumber returns the cached issue with the given number, if present.
func (s *RepoSnapshot) IssueByNumber(number int) (Issue, bool) {
	for _, is := range s.Issues {
		if is.Number == number {
			return is, true
		}
	}
	return Issue{}, false
}
