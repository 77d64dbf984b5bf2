// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/mileage/internal/domain"
	"example.com/mileage/internal/mileage"
	"example.com/mileage/internal/persistence"
)

type record struct {
	activity mileage.Activity
	at       time.Time
}

// Store keeps users and activities per tenant in memory.
type Store struct {
	mu         sync.RWMutex
	loc        *time.Location
	users      map[string]map[string]mileage.User
	activities map[string]map[string]record
}

// NewStore constructs an empty Store. Zone-less activity dates are read in loc.
func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		loc:        loc,
		users:      make(map[string]map[string]mileage.User),
		activities: make(map[string]map[string]record),
	}
}

// UpsertUser inserts or replaces a roster entry.
func (s *Store) UpsertUser(_ context.Context, tenantID string, user mileage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users[tenantID] == nil {
		s.users[tenantID] = make(map[string]mileage.User)
	}
	s.users[tenantID][user.ID] = user
	return nil
}

// UpsertActivity inserts or replaces an activity, assigning an ID when missing.
func (s *Store) UpsertActivity(_ context.Context, tenantID string, activity mileage.Activity) (string, error) {
	at, ok := activity.Timestamp.Instant(s.loc)
	if !ok {
		return "", persistence.ErrInvalidTimestamp
	}
	if strings.TrimSpace(activity.ID) == "" {
		activity.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activities[tenantID] == nil {
		s.activities[tenantID] = make(map[string]record)
	}
	s.activities[tenantID][activity.ID] = record{activity: activity, at: at.UTC()}
	return activity.ID, nil
}

// ListUsers implements domain.Repository.
func (s *Store) ListUsers(_ context.Context, tenantID string) ([]mileage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]mileage.User, 0, len(s.users[tenantID]))
	for _, u := range s.users[tenantID] {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListActivitiesInRange implements domain.Repository.
func (s *Store) ListActivitiesInRange(_ context.Context, tenantID string, from, to time.Time, cursor *domain.Cursor, limit int) ([]mileage.Activity, *domain.Cursor, error) {
	return s.page(tenantID, limit, false, func(r record) bool {
		if r.at.Before(from) || !r.at.Before(to) {
			return false
		}
		return cursor == nil || after(r, cursor)
	})
}

// ListActivitiesByUser implements domain.Repository. Newest activities come first.
func (s *Store) ListActivitiesByUser(_ context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]mileage.Activity, *domain.Cursor, error) {
	return s.page(tenantID, limit, true, func(r record) bool {
		if r.activity.OwnerID != userID {
			return false
		}
		return cursor == nil || before(r, cursor)
	})
}

func (s *Store) page(tenantID string, limit int, newestFirst bool, keep func(record) bool) ([]mileage.Activity, *domain.Cursor, error) {
	s.mu.RLock()
	matched := make([]record, 0)
	for _, r := range s.activities[tenantID] {
		if keep(r) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if newestFirst {
			return before(matched[j], cursorOf(matched[i]))
		}
		return before(matched[i], cursorOf(matched[j]))
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]mileage.Activity, 0, len(matched))
	for _, r := range matched {
		// Listings carry the instant the record was filed under, matching
		// range filtering and cursor keys.
		a := r.activity
		a.Timestamp = mileage.At(r.at)
		out = append(out, a)
	}

	var next *domain.Cursor
	if limit > 0 && len(matched) == limit {
		next = cursorOf(matched[len(matched)-1])
	}
	return out, next, nil
}

func cursorOf(r record) *domain.Cursor {
	return &domain.Cursor{StartedAt: r.at, ID: r.activity.ID}
}

// before reports whether r sorts strictly before c by (time, id).
func before(r record, c *domain.Cursor) bool {
	if !r.at.Equal(c.StartedAt) {
		return r.at.Before(c.StartedAt)
	}
	return r.activity.ID < c.ID
}

func after(r record, c *domain.Cursor) bool {
	if !r.at.Equal(c.StartedAt) {
		return r.at.After(c.StartedAt)
	}
	return r.activity.ID > c.ID
}
