// Package contacts maintains the derived contact directory: merge-on-upsert
// persistence plus an in-memory ranked cache for autocomplete.
package contacts

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maildex/maildex/internal/source"
	"github.com/maildex/maildex/internal/store"
)

// Sighting is one observed (email, name) pair from a thread.
type Sighting struct {
	Email string // lowercased
	Name  string
}

// Extract pulls contact sightings from a thread summary: sender, then
// recipients, then cc. Emails are case-normalized; entries without an email
// address are dropped.
func Extract(sum *source.ThreadSummary) []Sighting {
	var out []Sighting
	add := func(a source.Address) {
		email := strings.ToLower(strings.TrimSpace(a.Email))
		if email == "" {
			return
		}
		out = append(out, Sighting{Email: email, Name: strings.TrimSpace(a.Name)})
	}

	add(sum.Sender)
	for _, a := range sum.To {
		add(a)
	}
	for _, a := range sum.Cc {
		add(a)
	}
	return out
}

// Upsert merges sightings into the persistent contact directory.
// First sighting inserts with an interaction count of 1; later sightings
// increment the count, keep the newest non-empty name, and advance lastSeen.
func Upsert(st *store.Store, sightings []Sighting, seenAt time.Time) error {
	for _, sg := range sightings {
		existing, err := st.GetContact(sg.Email)
		if err != nil {
			return fmt.Errorf("lookup contact: %w", err)
		}

		c := &store.Contact{
			Email:            sg.Email,
			Name:             sg.Name,
			InteractionCount: 1,
			LastSeen:         seenAt,
		}
		if existing != nil {
			c.InteractionCount = existing.InteractionCount + 1
			if sg.Name == "" {
				c.Name = existing.Name
			}
			if existing.LastSeen.After(seenAt) {
				c.LastSeen = existing.LastSeen
			}
		}

		if err := st.UpsertContact(c); err != nil {
			return err
		}
	}
	return nil
}

// Cache is the in-memory contact list, ordered by interaction count
// descending so autocomplete surfaces frequent correspondents first.
type Cache struct {
	mu       sync.RWMutex
	contacts []*store.Contact
}

// NewCache creates an empty contact cache.
func NewCache() *Cache {
	return &Cache{}
}

// LoadFromStore replaces the cached contact list with the store's current
// directory. The store returns contacts already ranked.
func (c *Cache) LoadFromStore(st *store.Store) error {
	contacts, err := st.AllContacts()
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}

	c.mu.Lock()
	c.contacts = contacts
	c.mu.Unlock()
	return nil
}

// Clear empties the cache. Used on connection switch.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.contacts = nil
	c.mu.Unlock()
}

// Size returns the number of cached contacts.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.contacts)
}

// Search scans the ranked list for contacts whose email or name contains the
// query, case-insensitively, early-exiting at limit matches. Linear scan is
// fine here: contact sets are thousands of entries, not millions.
func (c *Cache) Search(query string, limit int) []*store.Contact {
	query = strings.ToLower(strings.TrimSpace(query))
	if limit <= 0 {
		limit = 10
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []*store.Contact
	for _, contact := range c.contacts {
		if query == "" ||
			strings.Contains(contact.Email, query) ||
			strings.Contains(strings.ToLower(contact.Name), query) {
			matches = append(matches, contact)
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches
}
