package gh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/isscope/isscope/internal/models"
)

const (
	searchPageSize  = 100
	commentPageSize = 100
	maxAttempts     = 3
)

// ErrRetriesExhausted is returned when a throttled request still fails
// after the full retry budget.
var ErrRetriesExhausted = errors.New("github: retries exhausted")

// HostError is a non-retriable failure reported by the GitHub API.
type HostError struct {
	StatusCode int
	Err        error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("github: API error %d: %v", e.StatusCode, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

// LogFunc receives human-readable progress messages.
type LogFunc func(format string, args ...any)

// ProgressFunc reports completion progress for a batch operation.
type ProgressFunc func(current, total int, message string)

// CancelFunc is polled by workers; once it returns true no new work is
// claimed. In-flight requests are allowed to finish.
type CancelFunc func() bool

// Client wraps the GitHub REST API with rate-limit tracking and the retry
// policy the fetch pipeline relies on.
type Client struct {
	gh      *github.Client
	limits  *rateTracker
	workers int
}

// New creates a GitHub client. An empty token means unauthenticated access
// with the lower anonymous quota.
func New(token string) *Client {
	var tc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		tc = oauth2.NewClient(context.Background(), ts)
	}
	return &Client{
		gh:      github.NewClient(tc),
		limits:  newRateTracker(),
		workers: 10,
	}
}

// SetBaseURL points the client at a different API root. Tests use this to
// target a local httptest server.
func (c *Client) SetBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	c.gh.BaseURL = u
	return nil
}

// RateLimits returns the most recently observed quota headers. Before any
// request completes it reports an optimistic placeholder.
func (c *Client) RateLimits() RateLimits {
	return c.limits.snapshot()
}

// do runs one API call under the retry policy: a 403 with exhausted quota
// sleeps until the advertised reset (minimum one second), a 429 backs off
// exponentially from one second, and any other failure is a HostError with
// no retry.
func (c *Client) do(ctx context.Context, fn func() (*github.Response, error)) error {
	backoff := time.Second
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := fn()
		c.limits.update(resp)
		if err == nil {
			return nil
		}

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		switch {
		case status == http.StatusForbidden && c.limits.snapshot().Remaining <= 0:
			wait := time.Until(c.limits.snapshot().Reset)
			if wait < time.Second {
				wait = time.Second
			}
			if serr := sleepCtx(ctx, wait); serr != nil {
				return serr
			}
		case status == http.StatusTooManyRequests:
			if serr := sleepCtx(ctx, backoff); serr != nil {
				return serr
			}
			backoff *= 2
		case status != 0:
			return &HostError{StatusCode: status, Err: err}
		default:
			return err
		}
	}
	return ErrRetriesExhausted
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SearchOpenIssues pages through the search endpoint for open issues not
// linked to a pull request, sorted by comment count ascending, and returns
// at most maxIssues of them. Pagination stops when the cap is reached, a
// page comes back empty, or the host reports no more results.
func (c *Client) SearchOpenIssues(ctx context.Context, owner, repo string, maxIssues int, logf LogFunc) ([]models.Issue, error) {
	query := fmt.Sprintf("repo:%s/%s is:issue state:open -linked:pr", owner, repo)

	var all []models.Issue
	for page := 1; ; page++ {
		var result *github.IssuesSearchResult
		err := c.do(ctx, func() (*github.Response, error) {
			var resp *github.Response
			var ferr error
			result, resp, ferr = c.gh.Search.Issues(ctx, query, &github.SearchOptions{
				Sort:  "comments",
				Order: "asc",
				ListOptions: github.ListOptions{
					PerPage: searchPageSize,
					Page:    page,
				},
			})
			return resp, ferr
		})
		if err != nil {
			return nil, err
		}

		added := 0
		for _, it := range result.Issues {
			if it.IsPullRequest() {
				continue
			}
			all = append(all, convertIssue(it))
			added++
		}

		total := result.GetTotal()
		shown := total
		if maxIssues < shown {
			shown = maxIssues
		}
		logf("Fetched page %d: %d/%d issues (rate limit: %d)", page, len(all), shown, c.limits.snapshot().Remaining)

		if added == 0 || len(all) >= total || len(all) >= maxIssues {
			break
		}
	}

	if len(all) > maxIssues {
		logf("Limited to %d issues (found %d total)", maxIssues, len(all))
		all = all[:maxIssues]
	}
	return all, nil
}

// FetchComments fetches an issue's comments. A single page is assumed
// sufficient for analysis purposes.
func (c *Client) FetchComments(ctx context.Context, owner, repo string, number int) ([]models.Comment, error) {
	var raw []*github.IssueComment
	err := c.do(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var ferr error
		raw, resp, ferr = c.gh.Issues.ListComments(ctx, owner, repo, number, &github.IssueListCommentsOptions{
			ListOptions: github.ListOptions{PerPage: commentPageSize},
		})
		return resp, ferr
	})
	if err != nil {
		return nil, err
	}

	comments := make([]models.Comment, 0, len(raw))
	for _, cm := range raw {
		comments = append(comments, convertComment(cm))
	}
	return comments, nil
}

// FetchTimeline fetches an issue's timeline events. The timeline endpoint
// is best-effort: callers treat any failure as an empty timeline.
func (c *Client) FetchTimeline(ctx context.Context, owner, repo string, number int) ([]models.TimelineEvent, error) {
	raw, resp, err := c.gh.Issues.ListIssueTimeline(ctx, owner, repo, number, &github.ListOptions{PerPage: commentPageSize})
	c.limits.update(resp)
	if err != nil {
		return nil, err
	}

	events := make([]models.TimelineEvent, 0, len(raw))
	for _, ev := range raw {
		events = append(events, convertTimelineEvent(ev))
	}
	return events, nil
}

func convertIssue(is *github.Issue) models.Issue {
	labels := make([]models.Label, 0, len(is.Labels))
	for _, l := range is.Labels {
		labels = append(labels, models.Label{Name: l.GetName(), Color: l.GetColor()})
	}
	assignees := make([]models.User, 0, len(is.Assignees))
	for _, a := range is.Assignees {
		assignees = append(assignees, convertUser(a))
	}
	return models.Issue{
		Number:       is.GetNumber(),
		Title:        is.GetTitle(),
		Body:         is.GetBody(),
		User:         convertUser(is.User),
		Labels:       labels,
		Assignees:    assignees,
		CommentCount: is.GetComments(),
		CreatedAt:    is.GetCreatedAt().Time,
		UpdatedAt:    is.GetUpdatedAt().Time,
		HTMLURL:      is.GetHTMLURL(),
		State:        is.GetState(),
	}
}

func convertUser(u *github.User) models.User {
	if u == nil {
		return models.User{}
	}
	return models.User{
		Login:     u.GetLogin(),
		AvatarURL: u.GetAvatarURL(),
		HTMLURL:   u.GetHTMLURL(),
	}
}

func convertComment(cm *github.IssueComment) models.Comment {
	return models.Comment{
		ID:        cm.GetID(),
		User:      convertUser(cm.User),
		Body:      cm.GetBody(),
		CreatedAt: cm.GetCreatedAt().Time,
		UpdatedAt: cm.GetUpdatedAt().Time,
	}
}

func convertTimelineEvent(ev *github.Timeline) models.TimelineEvent {
	out := models.TimelineEvent{
		Event:    ev.GetEvent(),
		CommitID: ev.GetCommitID(),
	}
	if ev.CreatedAt != nil {
		out.CreatedAt = ev.CreatedAt.Time
	}
	if ev.Actor != nil {
		actor := convertUser(ev.Actor)
		out.Actor = &actor
	}
	if ev.Label != nil {
		out.Label = &models.Label{Name: ev.Label.GetName(), Color: ev.Label.GetColor()}
	}
	if ev.Source != nil {
		src := &models.TimelineEventSource{Type: ev.Source.GetType()}
		if ev.Source.Issue != nil {
			src.IssueNumber = ev.Source.Issue.GetNumber()
		}
		out.Source = src
	}
	return out
}
