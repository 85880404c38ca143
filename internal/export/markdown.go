// Package export renders scan reports into shareable formats.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/isscope/isscope/internal/models"
	"github.com/isscope/isscope/internal/scan"
)

var complexityLabels = [...]string{"—", "Trivial", "Simple", "Moderate", "Complex", "Major Rewrite"}

var friendlinessLabels = [...]string{"—", "Expert Only", "Advanced", "Intermediate", "Beginner Friendly", "Great First Issue"}

var progressLabels = map[models.ProgressEstimate]string{
	models.ProgressNotStarted: "Not Started",
	models.ProgressEarly:      "Early Stage",
	models.ProgressMidway:     "In Progress",
	models.ProgressNearlyDone: "Nearly Done",
}

var statusLabels = map[models.IssueStatus]string{
	models.StatusActive:     "Active",
	models.StatusStale:      "Stale",
	models.StatusDiscussion: "Discussion",
	models.StatusExternal:   "External Dep",
	models.StatusWontfix:    "Won't Fix",
}

// ComplexityLabel maps a 1-5 complexity score onto its display name.
func ComplexityLabel(n int) string {
	if n < 1 || n >= len(complexityLabels) {
		return "—"
	}
	return complexityLabels[n]
}

// FriendlinessLabel maps a 1-5 newcomer-friendliness score onto its display
// name.
func FriendlinessLabel(n int) string {
	if n < 1 || n >= len(friendlinessLabels) {
		return "—"
	}
	return friendlinessLabels[n]
}

// ProgressLabel maps a progress estimate onto its display name. Unknown
// values pass through as-is.
func ProgressLabel(p models.ProgressEstimate) string {
	if label, ok := progressLabels[p]; ok {
		return label
	}
	return string(p)
}

// StatusLabel maps an issue status onto its display name. Unknown values
// pass through as-is.
func StatusLabel(s models.IssueStatus) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}

func labelList(labels []models.Label) string {
	if len(labels) == 0 {
		return "none"
	}
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return strings.Join(names, ", ")
}

// Markdown renders a full report: header, ranked summary table, then one
// detail section per issue.
func Markdown(report *scan.Report, generatedAt time.Time) string {
	ranked := report.Ranked()

	var b strings.Builder
	fmt.Fprintf(&b, "# Isscope Report — %s\n\n", report.Repo)
	fmt.Fprintf(&b, "> Generated on %s\n", generatedAt.Format("Jan 2, 2006 3:04 PM"))
	fmt.Fprintf(&b, "> Total issues analyzed: %d\n\n", len(ranked))
	b.WriteString("---\n\n")

	b.WriteString("## Summary Table\n\n")
	b.WriteString("| Rank | # | Title | Score | Status | Complexity |\n")
	b.WriteString("|------|---|-------|-------|--------|------------|\n")
	for i, ri := range ranked {
		status, complexity := "—", "—"
		if ri.Analysis != nil {
			status = StatusLabel(ri.Analysis.Status)
			complexity = ComplexityLabel(ri.Analysis.Complexity)
		}
		fmt.Fprintf(&b, "| %d | #%d | %s | %d/100 | %s | %s |\n",
			i+1, ri.Number, truncate(ri.Title, 50), ri.Score, status, complexity)
	}
	b.WriteString("\n---\n\n")

	for _, ri := range ranked {
		fmt.Fprintf(&b, "## #%d — %s\n\n", ri.Number, ri.Title)
		fmt.Fprintf(&b, "- **Doability Score**: %d/100\n", ri.Score)
		fmt.Fprintf(&b, "- **URL**: %s\n", ri.HTMLURL)
		fmt.Fprintf(&b, "- **Author**: @%s\n", ri.User.Login)
		fmt.Fprintf(&b, "- **Labels**: %s\n", labelList(ri.Labels))
		fmt.Fprintf(&b, "- **Created**: %s\n\n", ri.CreatedAt.Format(time.RFC3339))

		if a := ri.Analysis; a != nil {
			b.WriteString("### Analysis\n\n")
			fmt.Fprintf(&b, "- **Status**: %s\n", StatusLabel(a.Status))
			fmt.Fprintf(&b, "- **Progress**: %s\n", ProgressLabel(a.ProgressEstimate))
			fmt.Fprintf(&b, "- **Complexity**: %s (%d/5)\n", ComplexityLabel(a.Complexity), a.Complexity)
			fmt.Fprintf(&b, "- **Newcomer Friendliness**: %s (%d/5)\n", FriendlinessLabel(a.NewcomerFriendliness), a.NewcomerFriendliness)
			skills := "none"
			if len(a.SkillsRequired) > 0 {
				skills = strings.Join(a.SkillsRequired, ", ")
			}
			fmt.Fprintf(&b, "- **Skills Required**: %s\n", skills)
			actionable := "No"
			if a.IsActionableCodeChange {
				actionable = "Yes"
			}
			fmt.Fprintf(&b, "- **Actionable Code Change**: %s\n", actionable)
			if a.NotMergeableReason != "" {
				fmt.Fprintf(&b, "- **Merge Blocker**: %s\n", a.NotMergeableReason)
			}
			fmt.Fprintf(&b, "\n> %s\n\n", a.Summary)
			fmt.Fprintf(&b, "**Notes**: %s\n\n", a.AnalysisNotes)
		}

		b.WriteString("---\n\n")
	}

	return b.String()
}
