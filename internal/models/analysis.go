package models

import "fmt"

// IssueStatus classifies where an issue stands from a contributor's point
// of view.
type IssueStatus string

const (
	StatusActive     IssueStatus = "active"
	StatusStale      IssueStatus = "stale"
	StatusDiscussion IssueStatus = "discussion"
	StatusExternal   IssueStatus = "external"
	StatusWontfix    IssueStatus = "wontfix"
)

// Valid reports whether the status is one of the known values.
func (s IssueStatus) Valid() bool {
	switch s {
	case StatusActive, StatusStale, StatusDiscussion, StatusExternal, StatusWontfix:
		return true
	}
	return false
}

// ProgressEstimate describes how far along any existing work on the issue
// appears to be.
type ProgressEstimate string

const (
	ProgressNotStarted ProgressEstimate = "not_started"
	ProgressEarly      ProgressEstimate = "early"
	ProgressMidway     ProgressEstimate = "midway"
	ProgressNearlyDone ProgressEstimate = "nearly_done"
)

// Valid reports whether the progress estimate is one of the known values.
func (p ProgressEstimate) Valid() bool {
	switch p {
	case ProgressNotStarted, ProgressEarly, ProgressMidway, ProgressNearlyDone:
		return true
	}
	return false
}

// AnalysisResult is the AI verdict for one issue. DoabilityScore is the
// read model's source of truth for ranking.
type AnalysisResult struct {
	Summary                string           `json:"summary"`
	Status                 IssueStatus      `json:"status"`
	ProgressEstimate       ProgressEstimate `json:"progress_estimate"`
	IsActionableCodeChange bool             `json:"is_actionable_code_change"`
	NotMergeableReason     string           `json:"not_mergeable_reason,omitempty"`
	Complexity             int              `json:"complexity"`
	SkillsRequired         []string         `json:"skills_required"`
	NewcomerFriendliness   int              `json:"newcomer_friendliness"`
	DoabilityScore         int              `json:"doability_score"`
	AnalysisNotes          string           `json:"analysis_notes"`
}

// Validate checks enum membership and numeric ranges.
func (r AnalysisResult) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if !r.ProgressEstimate.Valid() {
		return fmt.Errorf("invalid progress_estimate %q", r.ProgressEstimate)
	}
	if r.Complexity < 1 || r.Complexity > 5 {
		return fmt.Errorf("complexity %d out of range [1,5]", r.Complexity)
	}
	if r.NewcomerFriendliness < 1 || r.NewcomerFriendliness > 5 {
		return fmt.Errorf("newcomer_friendliness %d out of range [1,5]", r.NewcomerFriendliness)
	}
	if r.DoabilityScore < 1 || r.DoabilityScore > 100 {
		return fmt.Errorf("doability_score %d out of range [1,100]", r.DoabilityScore)
	}
	return nil
}

// DefaultAnalysis returns the fallback verdict substituted when the AI
// call fails or returns something unusable.
func DefaultAnalysis() AnalysisResult {
	return AnalysisResult{
		Summary:                "Analysis could not be completed.",
		Status:                 StatusActive,
		ProgressEstimate:       ProgressNotStarted,
		IsActionableCodeChange: true,
		Complexity:             3,
		SkillsRequired:         []string{},
		NewcomerFriendliness:   3,
		DoabilityScore:         50,
		AnalysisNotes:          "Fallback default: AI analysis failed or returned invalid data.",
	}
}
