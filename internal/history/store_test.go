package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isscope/isscope/internal/models"
)

func openTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	store.now = func() time.Time { return now }
	return store
}

func testIssues(now time.Time) []models.Issue {
	return []models.Issue{
		{
			Number:    7,
			Title:     "Crash on empty input",
			Body:      "Steps to reproduce...",
			User:      models.User{Login: "alice"},
			Labels:    []models.Label{{Name: "bug", Color: "d73a4a"}},
			CreatedAt: now.Add(-72 * time.Hour).UTC(),
			UpdatedAt: now.Add(-2 * time.Hour).UTC(),
			HTMLURL:   "https://github.com/acme/widgets/issues/7",
			State:     "open",
			Comments: []models.Comment{
				{ID: 1, User: models.User{Login: "bob"}, Body: "same here", CreatedAt: now.Add(-24 * time.Hour).UTC()},
			},
		},
		{
			Number:    9,
			Title:     "Add dark mode",
			User:      models.User{Login: "carol"},
			CreatedAt: now.Add(-48 * time.Hour).UTC(),
			UpdatedAt: now.Add(-48 * time.Hour).UTC(),
			HTMLURL:   "https://github.com/acme/widgets/issues/9",
			State:     "open",
		},
	}
}

func testAnalysis(score int) models.AnalysisResult {
	return models.AnalysisResult{
		Summary:                "A reproducible crash with a clear fix path.",
		Status:                 models.StatusActive,
		ProgressEstimate:       models.ProgressNotStarted,
		IsActionableCodeChange: true,
		Complexity:             2,
		SkillsRequired:         []string{"go"},
		NewcomerFriendliness:   4,
		DoabilityScore:         score,
		AnalysisNotes:          "Good first candidate.",
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, now)

	issues := testIssues(now)
	analyses := map[int]models.AnalysisResult{
		7: testAnalysis(85),
		9: testAnalysis(40),
	}
	require.NoError(t, store.Save("acme", "widgets", issues, analyses))

	snap, err := store.Get("acme", "widgets")
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "acme/widgets", snap.Key)
	assert.WithinDuration(t, now, snap.FetchedAt, time.Second)
	assert.Equal(t, issues, snap.Issues)
	assert.Equal(t, analyses, snap.Analyses)
	assert.Greater(t, snap.IssueActivity.PerDay, 0.0)
	assert.Equal(t, 2, snap.IssueActivity.SampleSize)
	assert.Equal(t, 1, snap.CommentActivity.SampleSize)
}

func TestGetMissingRepo(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, now)

	snap, err := store.Get("acme", "nothing")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSaveOverwrites(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, now)

	issues := testIssues(now)
	require.NoError(t, store.Save("acme", "widgets", issues, nil))
	require.NoError(t, store.Save("acme", "widgets", issues[:1], map[int]models.AnalysisResult{7: testAnalysis(60)}))

	snap, err := store.Get("acme", "widgets")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Issues, 1)
	assert.Equal(t, 60, snap.Analyses[7].DoabilityScore)
}

func TestMergeAnalyses(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, now)

	issues := testIssues(now)
	require.NoError(t, store.Save("acme", "widgets", issues, map[int]models.AnalysisResult{
		7: testAnalysis(85),
		9: testAnalysis(40),
	}))

	// New result for 9 wins, 7 survives untouched.
	require.NoError(t, store.MergeAnalyses("acme", "widgets", map[int]models.AnalysisResult{
		9: testAnalysis(55),
	}))

	snap, err := store.Get("acme", "widgets")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 85, snap.Analyses[7].DoabilityScore)
	assert.Equal(t, 55, snap.Analyses[9].DoabilityScore)
	assert.Equal(t, issues, snap.Issues)
}

func TestMergeAnalysesMissingRepo(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, now)

	err := store.MergeAnalyses("acme", "nothing", map[int]models.AnalysisResult{1: testAnalysis(50)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, now.Add(-time.Hour))
	require.NoError(t, store.Save("acme", "older", testIssues(now), nil))

	store.now = func() time.Time { return now }
	require.NoError(t, store.Save("acme", "newer", testIssues(now), nil))

	infos, err := store.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "acme/newer", infos[0].Key)
	assert.Equal(t, "acme/older", infos[1].Key)
	assert.Equal(t, 2, infos[0].IssueCount)
}

func TestDelete(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, now)
	require.NoError(t, store.Save("acme", "widgets", testIssues(now), nil))
	require.NoError(t, store.Save("acme", "gadgets", testIssues(now), nil))

	require.NoError(t, store.Delete("acme", "widgets"))

	snap, err := store.Get("acme", "widgets")
	require.NoError(t, err)
	assert.Nil(t, snap)

	snap, err = store.Get("acme", "gadgets")
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

func TestClear(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := openTestStore(t, now)
	require.NoError(t, store.Save("acme", "widgets", testIssues(now), nil))
	require.NoError(t, store.Save("acme", "gadgets", testIssues(now), nil))

	require.NoError(t, store.Clear())

	infos, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}
