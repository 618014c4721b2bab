package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Thread is one indexed email conversation. Recipient lists are stored as
// space-joined strings and labels as a comma-joined string so the full-text
// tokenizer can consume them directly.
type Thread struct {
	ID           string
	Subject      string
	Snippet      string
	SenderName   string
	SenderEmail  string
	ToEmails     string
	ToNames      string
	CcEmails     string
	ReceivedOn   string // ISO-8601, lexicographically comparable
	Labels       string
	HasUnread    bool
	IsStarred    bool
	TotalReplies int
	IndexedAt    time.Time
}

const documentColumns = `id, subject, snippet, sender_name, sender_email,
	to_emails, to_names, cc_emails, received_on, labels,
	has_unread, is_starred, total_replies, indexed_at`

// UpsertDocument inserts or replaces a thread document by id.
// Re-indexing an existing id replaces the prior record in place.
func (s *Store) UpsertDocument(t *Thread) error {
	_, err := s.db.Exec(`
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			snippet = excluded.snippet,
			sender_name = excluded.sender_name,
			sender_email = excluded.sender_email,
			to_emails = excluded.to_emails,
			to_names = excluded.to_names,
			cc_emails = excluded.cc_emails,
			received_on = excluded.received_on,
			labels = excluded.labels,
			has_unread = excluded.has_unread,
			is_starred = excluded.is_starred,
			total_replies = excluded.total_replies,
			indexed_at = excluded.indexed_at
	`, t.ID, t.Subject, t.Snippet, t.SenderName, t.SenderEmail,
		t.ToEmails, t.ToNames, t.CcEmails, t.ReceivedOn, t.Labels,
		t.HasUnread, t.IsStarred, t.TotalReplies, t.IndexedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", t.ID, err)
	}
	return nil
}

// UpsertDocumentsBatch upserts a batch of thread documents in one transaction.
func (s *Store) UpsertDocumentsBatch(threads []*Thread) error {
	if len(threads) == 0 {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO documents (` + documentColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				subject = excluded.subject,
				snippet = excluded.snippet,
				sender_name = excluded.sender_name,
				sender_email = excluded.sender_email,
				to_emails = excluded.to_emails,
				to_names = excluded.to_names,
				cc_emails = excluded.cc_emails,
				received_on = excluded.received_on,
				labels = excluded.labels,
				has_unread = excluded.has_unread,
				is_starred = excluded.is_starred,
				total_replies = excluded.total_replies,
				indexed_at = excluded.indexed_at
		`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, t := range threads {
			_, err := stmt.Exec(t.ID, t.Subject, t.Snippet, t.SenderName, t.SenderEmail,
				t.ToEmails, t.ToNames, t.CcEmails, t.ReceivedOn, t.Labels,
				t.HasUnread, t.IsStarred, t.TotalReplies, t.IndexedAt.UTC().Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("upsert document %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// GetDocument returns the thread document with the given id, or nil if absent.
func (s *Store) GetDocument(id string) (*Thread, error) {
	row := s.db.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return t, nil
}

// DeleteDocument removes a thread document by id. Missing ids are a no-op.
func (s *Store) DeleteDocument(id string) error {
	if _, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// AllDocuments returns every stored thread document. Used once at startup to
// rebuild the in-memory full-text index; not on the interactive path.
func (s *Store) AllDocuments() ([]*Thread, error) {
	rows, err := s.db.Query(`SELECT ` + documentColumns + ` FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return threads, nil
}

// DocumentsExistBatch reports which of the given thread ids already exist.
func (s *Store) DocumentsExistBatch(ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	err := queryInChunks(s.db, ids, `SELECT id FROM documents WHERE id IN (%s)`,
		func(rows *sql.Rows) error {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			existing[id] = true
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("check existing documents: %w", err)
	}
	return existing, nil
}

// CountDocuments returns the number of stored thread documents.
func (s *Store) CountDocuments() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanThread(row scanner) (*Thread, error) {
	var t Thread
	var indexedAt string
	err := row.Scan(&t.ID, &t.Subject, &t.Snippet, &t.SenderName, &t.SenderEmail,
		&t.ToEmails, &t.ToNames, &t.CcEmails, &t.ReceivedOn, &t.Labels,
		&t.HasUnread, &t.IsStarred, &t.TotalReplies, &indexedAt)
	if err != nil {
		return nil, err
	}
	if indexedAt != "" {
		t.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
	}
	return &t, nil
}
