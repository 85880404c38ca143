// Package scan orchestrates one full pipeline run: consult the history
// cache, fetch what is stale, analyze what needs it, and persist the merged
// snapshot.
package scan

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/isscope/isscope/internal/analyze"
	"github.com/isscope/isscope/internal/gh"
	"github.com/isscope/isscope/internal/history"
	"github.com/isscope/isscope/internal/models"
)

var repoRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+/[a-zA-Z0-9._-]+$`)

// ParseRepoString parses a repository reference in the format "owner/repo".
func ParseRepoString(repoStr string) (string, string, error) {
	if !repoRe.MatchString(repoStr) {
		return "", "", fmt.Errorf("invalid repository format, expected 'owner/repo', got '%s'", repoStr)
	}
	for i := 0; i < len(repoStr); i++ {
		if repoStr[i] == '/' {
			return repoStr[:i], repoStr[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid repository format: %s", repoStr)
}

// Scanner ties the fetcher, analyzer and history cache together.
type Scanner struct {
	gh    *gh.Client
	ai    *analyze.Client
	store *history.Store
	log   *log.Logger

	maxIssues int
	now       func() time.Time
}

// New creates a scanner. maxIssues caps how many issues one run considers.
func New(ghClient *gh.Client, aiClient *analyze.Client, store *history.Store, logger *log.Logger, maxIssues int) *Scanner {
	return &Scanner{
		gh:        ghClient,
		ai:        aiClient,
		store:     store,
		log:       logger,
		maxIssues: maxIssues,
		now:       time.Now,
	}
}

// Report is the outcome of one scan.
type Report struct {
	Repo      string
	Issues    []models.Issue
	Analyses  map[int]models.AnalysisResult
	FetchedAt time.Time

	// FromCache is true when the issue details came from the snapshot
	// instead of the API.
	FromCache bool
	// Reused counts analyses taken from the cache; Analyzed counts fresh
	// LLM calls.
	Reused   int
	Analyzed int
}

// RankedIssue pairs an issue with its verdict for presentation, ordered by
// doability score.
type RankedIssue struct {
	models.Issue
	Analysis *models.AnalysisResult
	Score    int
}

// Ranked returns the report's issues sorted by doability score, highest
// first. Issues without an analysis rank last with score zero.
func (r *Report) Ranked() []RankedIssue {
	out := make([]RankedIssue, 0, len(r.Issues))
	for _, is := range r.Issues {
		ranked := RankedIssue{Issue: is}
		if a, ok := r.Analyses[is.Number]; ok {
			ac := a
			ranked.Analysis = &ac
			ranked.Score = a.DoabilityScore
		}
		out = append(out, ranked)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Run executes the full pipeline for one repository. Search and analyzer
// configuration failures abort the run; per-issue failures and cache I/O
// failures are absorbed and logged.
func (s *Scanner) Run(ctx context.Context, owner, repo string, cancelled func() bool) (*Report, error) {
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	fullName := history.Key(owner, repo)
	s.log.Info("starting scan", "repo", fullName)

	fresh, err := s.gh.SearchOpenIssues(ctx, owner, repo, s.maxIssues, s.log.Infof)
	if err != nil {
		return nil, fmt.Errorf("failed to search issues for %s: %w", fullName, err)
	}
	rl := s.gh.RateLimits()
	s.log.Info("search complete", "repo", fullName, "issues", len(fresh), "rate_remaining", rl.Remaining, "rate_limit", rl.Limit)

	if cancelled() {
		s.log.Warn("scan cancelled before detail fetch")
		return nil, context.Canceled
	}

	// History read failures fail open to a full fetch.
	snap, err := s.store.Get(owner, repo)
	if err != nil {
		s.log.Warn("history read failed, treating as no history", "repo", fullName, "err", err)
		snap = nil
	}

	var issues []models.Issue
	fromCache := false
	if snap != nil {
		if ok, reason := history.UsableForFetch(snap, len(fresh), s.now()); ok {
			s.log.Info("using cached issues", "repo", fullName, "reason", reason, "age", s.now().Sub(snap.FetchedAt).Round(time.Minute))
			issues = snap.Issues
			fromCache = true
		} else {
			s.log.Info("history expired", "repo", fullName, "reason", reason)
		}
	}

	if !fromCache {
		s.log.Info("fetching issue details", "repo", fullName, "count", len(fresh))
		issues = s.gh.FetchAllDetails(ctx, owner, repo, fresh, func(current, total int, _ string) {
			s.log.Debug("detail fetch progress", "current", current, "total", total)
		}, cancelled)
	}

	if cancelled() {
		s.log.Warn("scan cancelled before analysis")
		return nil, context.Canceled
	}

	// Decide per issue whether the cached verdict still holds.
	analyses := make(map[int]models.AnalysisResult, len(issues))
	var toAnalyze []models.Issue
	for _, is := range issues {
		if snap != nil {
			if ok, reason := history.UsableForAnalysis(snap, is.Number, is, s.now()); ok {
				analyses[is.Number] = snap.Analyses[is.Number]
				continue
			} else {
				s.log.Debug("re-analyzing issue", "issue", is.Number, "reason", reason)
			}
		}
		toAnalyze = append(toAnalyze, is)
	}
	reused := len(analyses)
	if reused > 0 {
		s.log.Info("reusing cached analyses", "repo", fullName, "reused", reused, "pending", len(toAnalyze))
	}

	newResults := s.ai.AnalyzeAll(ctx, toAnalyze, func(completed, total int) {
		s.log.Debug("analysis progress", "completed", completed, "total", total)
	}, s.log.Infof, cancelled)
	for n, a := range newResults {
		analyses[n] = a
	}
	s.log.Info("analysis complete", "repo", fullName, "analyzed", len(newResults), "reused", reused)

	s.persist(owner, repo, issues, analyses, newResults, fromCache)

	return &Report{
		Repo:      fullName,
		Issues:    issues,
		Analyses:  analyses,
		FetchedAt: s.now(),
		FromCache: fromCache,
		Reused:    reused,
		Analyzed:  len(newResults),
	}, nil
}

// persist writes the run's outcome back to the cache. When the issue list
// came from the snapshot only the new analyses are merged, leaving the
// stored issues untouched. Write failures are logged, never fatal.
func (s *Scanner) persist(owner, repo string, issues []models.Issue, all, freshOnly map[int]models.AnalysisResult, fromCache bool) {
	fullName := history.Key(owner, repo)

	if fromCache {
		err := s.store.MergeAnalyses(owner, repo, freshOnly)
		if err == nil {
			return
		}
		if !errors.Is(err, history.ErrNotFound) {
			s.log.Warn("failed to merge analyses into history", "repo", fullName, "err", err)
			return
		}
		// Snapshot vanished between read and write; fall through to a
		// full save.
	}

	if err := s.store.Save(owner, repo, issues, all); err != nil {
		s.log.Warn("failed to save history", "repo", fullName, "err", err)
	}
}
