package store

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// SyncProgress tracks resumable pagination state for one folder.
// Invariant: NextPageToken is empty whenever Completed is true, and exactly
// one record exists per folder.
type SyncProgress struct {
	ID            string
	Folder        string
	NextPageToken string
	Completed     bool
	LastSyncedAt  time.Time
	TotalIndexed  int64
}

// ProgressID derives the deterministic sync_progress key for a folder.
func ProgressID(folder string) string {
	sum := sha1.Sum([]byte("folder:" + folder))
	return hex.EncodeToString(sum[:8])
}

// GetSyncProgress returns the sync progress for a folder, or nil if the
// folder has never been synced.
func (s *Store) GetSyncProgress(folder string) (*SyncProgress, error) {
	row := s.db.QueryRow(`
		SELECT id, folder, COALESCE(next_page_token, ''), completed, last_synced_at, total_indexed
		FROM sync_progress WHERE folder = ?
	`, folder)

	var p SyncProgress
	var lastSynced string
	err := row.Scan(&p.ID, &p.Folder, &p.NextPageToken, &p.Completed, &lastSynced, &p.TotalIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync progress %s: %w", folder, err)
	}
	if lastSynced != "" {
		p.LastSyncedAt, _ = time.Parse(time.RFC3339, lastSynced)
	}
	return &p, nil
}

// PutSyncProgress inserts or replaces the progress record for a folder.
// A completed record always stores an empty cursor.
func (s *Store) PutSyncProgress(p *SyncProgress) error {
	if p.ID == "" {
		p.ID = ProgressID(p.Folder)
	}
	token := sql.NullString{String: p.NextPageToken, Valid: p.NextPageToken != ""}
	if p.Completed {
		token = sql.NullString{}
	}

	_, err := s.db.Exec(`
		INSERT INTO sync_progress (id, folder, next_page_token, completed, last_synced_at, total_indexed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder) DO UPDATE SET
			next_page_token = excluded.next_page_token,
			completed = excluded.completed,
			last_synced_at = excluded.last_synced_at,
			total_indexed = excluded.total_indexed
	`, p.ID, p.Folder, token, p.Completed, p.LastSyncedAt.UTC().Format(time.RFC3339), p.TotalIndexed)
	if err != nil {
		return fmt.Errorf("put sync progress %s: %w", p.Folder, err)
	}
	return nil
}

// AllSyncProgress returns progress records for every synced folder.
func (s *Store) AllSyncProgress() ([]*SyncProgress, error) {
	rows, err := s.db.Query(`
		SELECT id, folder, COALESCE(next_page_token, ''), completed, last_synced_at, total_indexed
		FROM sync_progress ORDER BY folder
	`)
	if err != nil {
		return nil, fmt.Errorf("query sync progress: %w", err)
	}
	defer rows.Close()

	var all []*SyncProgress
	for rows.Next() {
		var p SyncProgress
		var lastSynced string
		if err := rows.Scan(&p.ID, &p.Folder, &p.NextPageToken, &p.Completed, &lastSynced, &p.TotalIndexed); err != nil {
			return nil, fmt.Errorf("scan sync progress: %w", err)
		}
		if lastSynced != "" {
			p.LastSyncedAt, _ = time.Parse(time.RFC3339, lastSynced)
		}
		all = append(all, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync progress: %w", err)
	}
	return all, nil
}
