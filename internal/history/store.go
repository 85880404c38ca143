// Package history persists per-repository snapshots of issues and analyses
// and decides when cached data is still fresh enough to reuse.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/isscope/isscope/internal/models"
)

// ErrNotFound is returned when an operation requires a prior snapshot that
// does not exist.
var ErrNotFound = errors.New("history: repository not in history")

// Store is the durable snapshot cache, one record per owner/repo key.
// Writes are last-write-wins; there is no versioning.
type Store struct {
	db *sql.DB

	now func() time.Time
}

// Open opens (creating if needed) the history database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		repo_key TEXT PRIMARY KEY,
		fetched_at TIMESTAMP NOT NULL,
		issue_count INTEGER NOT NULL,
		issues TEXT NOT NULL,
		analyses TEXT NOT NULL,
		issue_rate REAL NOT NULL DEFAULT 0,
		issue_sample INTEGER NOT NULL DEFAULT 0,
		issue_last_seen TIMESTAMP NOT NULL,
		comment_rate REAL NOT NULL DEFAULT 0,
		comment_sample INTEGER NOT NULL DEFAULT 0,
		comment_last_seen TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Key builds the snapshot key for a repository.
func Key(owner, repo string) string {
	return owner + "/" + repo
}

// Get loads the snapshot for a repository. A missing record returns
// (nil, nil); callers treat errors as "no history" and fall back to a full
// fetch.
func (s *Store) Get(owner, repo string) (*models.RepoSnapshot, error) {
	query := `
	SELECT repo_key, fetched_at, issues, analyses,
		issue_rate, issue_sample, issue_last_seen,
		comment_rate, comment_sample, comment_last_seen
	FROM snapshots WHERE repo_key = ?`

	var snap models.RepoSnapshot
	var issuesJSON, analysesJSON []byte
	err := s.db.QueryRow(query, Key(owner, repo)).Scan(
		&snap.Key,
		&snap.FetchedAt,
		&issuesJSON,
		&analysesJSON,
		&snap.IssueActivity.PerDay,
		&snap.IssueActivity.SampleSize,
		&snap.IssueActivity.LastSeenAt,
		&snap.CommentActivity.PerDay,
		&snap.CommentActivity.SampleSize,
		&snap.CommentActivity.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := json.Unmarshal(issuesJSON, &snap.Issues); err != nil {
		return nil, fmt.Errorf("failed to decode cached issues: %w", err)
	}
	if err := json.Unmarshal(analysesJSON, &snap.Analyses); err != nil {
		return nil, fmt.Errorf("failed to decode cached analyses: %w", err)
	}
	if snap.Analyses == nil {
		snap.Analyses = map[int]models.AnalysisResult{}
	}
	return &snap, nil
}

// Save recomputes activity metadata from the given issues and overwrites
// the repository's snapshot.
func (s *Store) Save(owner, repo string, issues []models.Issue, analyses map[int]models.AnalysisResult) error {
	now := s.now()
	issueAct := IssueActivity(issues, now)
	commentAct := CommentActivity(issues, now)

	if analyses == nil {
		analyses = map[int]models.AnalysisResult{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("failed to encode issues: %w", err)
	}
	analysesJSON, err := json.Marshal(analyses)
	if err != nil {
		return fmt.Errorf("failed to encode analyses: %w", err)
	}

	query := `
	INSERT INTO snapshots (repo_key, fetched_at, issue_count, issues, analyses,
		issue_rate, issue_sample, issue_last_seen,
		comment_rate, comment_sample, comment_last_seen)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(repo_key) DO UPDATE SET
		fetched_at = excluded.fetched_at,
		issue_count = excluded.issue_count,
		issues = excluded.issues,
		analyses = excluded.analyses,
		issue_rate = excluded.issue_rate,
		issue_sample = excluded.issue_sample,
		issue_last_seen = excluded.issue_last_seen,
		comment_rate = excluded.comment_rate,
		comment_sample = excluded.comment_sample,
		comment_last_seen = excluded.comment_last_seen
	`

	_, err = s.db.Exec(query,
		Key(owner, repo), now, len(issues), issuesJSON, analysesJSON,
		issueAct.PerDay, issueAct.SampleSize, issueAct.LastSeenAt,
		commentAct.PerDay, commentAct.SampleSize, commentAct.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// MergeAnalyses unions new analyses into an existing snapshot, with new
// entries overwriting same-numbered old ones. The stored issue list is left
// untouched. Returns ErrNotFound when the repository has no snapshot.
func (s *Store) MergeAnalyses(owner, repo string, analyses map[int]models.AnalysisResult) error {
	snap, err := s.Get(owner, repo)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, Key(owner, repo))
	}

	merged := make(map[int]models.AnalysisResult, len(snap.Analyses)+len(analyses))
	for n, a := range snap.Analyses {
		merged[n] = a
	}
	for n, a := range analyses {
		merged[n] = a
	}
	return s.Save(owner, repo, snap.Issues, merged)
}

// SnapshotInfo summarizes one cached repository for listings.
type SnapshotInfo struct {
	Key             string
	FetchedAt       time.Time
	IssueCount      int
	IssueActivity   models.ActivityStats
	CommentActivity models.ActivityStats
}

// List returns summary metadata for every cached repository, newest first.
func (s *Store) List() ([]SnapshotInfo, error) {
	query := `
	SELECT repo_key, fetched_at, issue_count,
		issue_rate, issue_sample, issue_last_seen,
		comment_rate, comment_sample, comment_last_seen
	FROM snapshots ORDER BY fetched_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(
			&info.Key,
			&info.FetchedAt,
			&info.IssueCount,
			&info.IssueActivity.PerDay,
			&info.IssueActivity.SampleSize,
			&info.IssueActivity.LastSeenAt,
			&info.CommentActivity.PerDay,
			&info.CommentActivity.SampleSize,
			&info.CommentActivity.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes one repository's snapshot.
func (s *Store) Delete(owner, repo string) error {
	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE repo_key = ?`, Key(owner, repo)); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Clear removes every snapshot.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
