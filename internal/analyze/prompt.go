// Package analyze classifies issues through a structured-output LLM call
// and aggregates verdicts with a bounded worker pool.
package analyze

import (
	"fmt"
	"strings"

	"github.com/isscope/isscope/internal/models"
)

const (
	maxPromptComments  = 15
	maxCommentChars    = 500
	maxTimelineEvents  = 10
	defaultTemperature = 0.3
	maxOutputTokens    = 1024
)

// Timeline event kinds worth showing the model.
var promptTimelineEvents = map[string]bool{
	"cross-referenced": true,
	"referenced":       true,
	"labeled":          true,
	"assigned":         true,
}

const systemPrompt = `You are an expert open-source contributor analyst. Analyze the given GitHub issue and produce a JSON assessment.

Evaluate:
1. **Summary**: A concise 1-2 sentence summary of the issue
2. **Status**: One of: active, stale, discussion, external, wontfix
   - active: Needs code changes, is being worked on or ready
   - stale: No activity for 6+ months
   - discussion: Feature request or discussion, not actionable
   - external: Depends on external factors/upstream
   - wontfix: Maintainer indicated won't fix
3. **Progress Estimate**: not_started, early, midway, nearly_done
4. **Is Actionable Code Change**: true if it requires concrete code changes
5. **Not Mergeable Reason**: Why it might not be mergeable, or null
6. **Complexity**: 1 (trivial) to 5 (major rewrite)
7. **Skills Required**: Array of skill tags (e.g., ["rust", "cli", "testing"])
8. **Newcomer Friendliness**: 1 (expert only) to 5 (great first issue)
9. **Doability Score**: 1 to 100 overall score combining all factors
10. **Analysis Notes**: Brief explanation of your reasoning

Respond ONLY with valid JSON matching this exact schema:
{
  "summary": "string",
  "status": "active|stale|discussion|external|wontfix",
  "progress_estimate": "not_started|early|midway|nearly_done",
  "is_actionable_code_change": boolean,
  "not_mergeable_reason": "string|null",
  "complexity": number,
  "skills_required": ["string"],
  "newcomer_friendliness": number,
  "doability_score": number,
  "analysis_notes": "string"
}`

// formatIssue renders an issue into the bounded prompt the model sees:
// metadata, body, the 15 most recent comments truncated to 500 characters,
// and up to 10 allow-listed timeline events.
func formatIssue(is models.Issue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Issue #%d: %s\n\n", is.Number, is.Title)
	fmt.Fprintf(&b, "**Author**: %s\n", is.User.Login)
	fmt.Fprintf(&b, "**Created**: %s\n", is.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "**Updated**: %s\n", is.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "**Labels**: %s\n", joinOr(labelNames(is.Labels), "none"))
	fmt.Fprintf(&b, "**Assignees**: %s\n", joinOr(userLogins(is.Assignees), "none"))
	fmt.Fprintf(&b, "**Comment count**: %d\n\n", is.CommentCount)

	b.WriteString("## Body\n")
	if is.Body == "" {
		b.WriteString("(no description)")
	} else {
		b.WriteString(is.Body)
	}

	if len(is.Comments) > 0 {
		b.WriteString("\n\n## Comments")
		comments := is.Comments
		if len(comments) > maxPromptComments {
			comments = comments[:maxPromptComments]
		}
		for _, c := range comments {
			body := truncateRunes(c.Body, maxCommentChars)
			fmt.Fprintf(&b, "\n\n### @%s (%s)\n%s", c.User.Login, c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), body)
		}
	}

	relevant := make([]models.TimelineEvent, 0, maxTimelineEvents)
	for _, ev := range is.Timeline {
		if !promptTimelineEvents[ev.Event] {
			continue
		}
		relevant = append(relevant, ev)
		if len(relevant) == maxTimelineEvents {
			break
		}
	}
	if len(relevant) > 0 {
		b.WriteString("\n\n## Timeline Events")
		for _, ev := range relevant {
			actor := "unknown"
			if ev.Actor != nil && ev.Actor.Login != "" {
				actor = ev.Actor.Login
			}
			fmt.Fprintf(&b, "\n- %s by %s at %s", ev.Event, actor, ev.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
	}

	return b.String()
}

func labelNames(labels []models.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	return names
}

func userLogins(users []models.User) []string {
	logins := make([]string, 0, len(users))
	for _, u := range users {
		logins = append(logins, u.Login)
	}
	return logins
}

func joinOr(parts []string, fallback string) string {
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ", ")
}

// truncateRunes shortens s to at most n runes without splitting a
// multibyte character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
