package domain

import (
	"time"

	"example.com/mileage/internal/mileage"
)

// Cursor models the pagination token.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// Snapshot is the roster plus every activity in [From, To) for one tenant,
// fetched as a whole before any aggregation runs. Snapshots are shared
// between callers and must not be modified.
type Snapshot struct {
	TenantID   string
	From       time.Time
	To         time.Time
	Users      []mileage.User
	Activities []mileage.Activity
	FetchedAt  time.Time
}

// CardSpec describes one monthly breakdown.
type CardSpec struct {
	Title  string
	Window mileage.MonthWindow
	Goals  mileage.GoalConfig
}

// DisplayTitle returns Title or, when empty, the window's month name.
func (c CardSpec) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Window.Title()
}

// ClassifiedRow is an aggregate row with the tier it reached.
type ClassifiedRow struct {
	mileage.AggregateRow
	Tier mileage.Tier
}

// Breakdown is one rendered monthly card.
type Breakdown struct {
	Title  string
	Window mileage.MonthWindow
	Goals  mileage.GoalConfig
	Legend string
	Rows   []ClassifiedRow
	Stats  mileage.Stats
}

// Dashboard groups the breakdowns computed from one snapshot.
type Dashboard struct {
	From       time.Time
	To         time.Time
	FetchedAt  time.Time
	Breakdowns []Breakdown
}
