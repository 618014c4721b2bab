package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Contact is one entry in the derived contact directory, keyed by
// lowercase email address.
type Contact struct {
	Email            string
	Name             string
	InteractionCount int64
	LastSeen         time.Time
}

// GetContact returns the contact for the given lowercase email, or nil.
func (s *Store) GetContact(email string) (*Contact, error) {
	row := s.db.QueryRow(`
		SELECT email, name, interaction_count, last_seen
		FROM contacts WHERE email = ?
	`, email)

	var c Contact
	var lastSeen string
	err := row.Scan(&c.Email, &c.Name, &c.InteractionCount, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact %s: %w", email, err)
	}
	if lastSeen != "" {
		c.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	}
	return &c, nil
}

// UpsertContact inserts or replaces a contact record.
// Merge decisions (name preference, interaction counting, last-seen max)
// belong to the contacts package; this is a plain keyed write.
func (s *Store) UpsertContact(c *Contact) error {
	_, err := s.db.Exec(`
		INSERT INTO contacts (email, name, interaction_count, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			interaction_count = excluded.interaction_count,
			last_seen = excluded.last_seen
	`, c.Email, c.Name, c.InteractionCount, c.LastSeen.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert contact %s: %w", c.Email, err)
	}
	return nil
}

// AllContacts returns the full contact directory ordered by interaction
// count descending, then email for a stable order.
func (s *Store) AllContacts() ([]*Contact, error) {
	rows, err := s.db.Query(`
		SELECT email, name, interaction_count, last_seen
		FROM contacts
		ORDER BY interaction_count DESC, email
	`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		var lastSeen string
		if err := rows.Scan(&c.Email, &c.Name, &c.InteractionCount, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if lastSeen != "" {
			c.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		}
		contacts = append(contacts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}
