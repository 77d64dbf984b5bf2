package mileage

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SkipReason explains why an activity did not count towards any total.
type SkipReason string

const (
	SkipMissingOwner      SkipReason = "missing_owner"
	SkipMissingTimestamp  SkipReason = "missing_timestamp"
	SkipInvalidTimestamp  SkipReason = "invalid_timestamp"
	SkipOutsideWindow     SkipReason = "outside_window"
	SkipUnknownDiscipline SkipReason = "unknown_discipline"
)

// Stats summarises one aggregation pass.
type Stats struct {
	Considered  int
	Counted     int
	Synthesized int
	Skipped     map[SkipReason]int
}

func (s *Stats) skip(reason SkipReason) {
	if s.Skipped == nil {
		s.Skipped = make(map[SkipReason]int)
	}
	s.Skipped[reason]++
}

// Option tunes an aggregation pass.
type Option func(*options)

type options struct {
	lang language.Tag
}

// WithLanguage selects the collation used to order rows by display name.
func WithLanguage(tag language.Tag) Option {
	return func(o *options) {
		o.lang = tag
	}
}

// Aggregate builds one row per known user plus one per unknown owner of an
// activity inside window, sorted by display name.
func Aggregate(users []User, activities []Activity, window MonthWindow, opts ...Option) []AggregateRow {
	rows, _ := AggregateWithStats(users, activities, window, opts...)
	return rows
}

// AggregateWithStats is Aggregate plus counters describing what was skipped.
func AggregateWithStats(users []User, activities []Activity, window MonthWindow, opts ...Option) ([]AggregateRow, Stats) {
	o := options{lang: language.English}
	for _, opt := range opts {
		opt(&o)
	}

	rows := make([]AggregateRow, 0, len(users))
	index := make(map[string]int, len(users))

	for _, u := range users {
		if u.ID == "" {
			continue
		}
		name := u.DisplayName
		if name == "" {
			name = NoNamePlaceholder
		}
		if i, ok := index[u.ID]; ok {
			rows[i].DisplayName = name
			continue
		}
		index[u.ID] = len(rows)
		rows = append(rows, AggregateRow{UserID: u.ID, DisplayName: name})
	}

	var stats Stats
	loc := window.location()
	for _, a := range activities {
		stats.Considered++

		if a.OwnerID == "" {
			stats.skip(SkipMissingOwner)
			continue
		}
		if a.Timestamp.IsZero() {
			stats.skip(SkipMissingTimestamp)
			continue
		}
		at, ok := a.Timestamp.Instant(loc)
		if !ok {
			stats.skip(SkipInvalidTimestamp)
			continue
		}
		if !window.Contains(at) {
			stats.skip(SkipOutsideWindow)
			continue
		}

		i, ok := index[a.OwnerID]
		if !ok {
			name := a.DisplayName
			if name == "" {
				name = UnknownPlaceholder
			}
			i = len(rows)
			index[a.OwnerID] = i
			rows = append(rows, AggregateRow{UserID: a.OwnerID, DisplayName: name})
			stats.Synthesized++
		}

		discipline, ok := ParseDiscipline(a.DisciplineType)
		if !ok {
			stats.skip(SkipUnknownDiscipline)
			continue
		}
		rows[i].add(discipline, a.Miles())
		stats.Counted++
	}

	sortRows(rows, o.lang)
	return rows, stats
}

// sortRows orders rows by display name under the collation for lang, then by
// user ID so equal names still have a fixed order.
func sortRows(rows []AggregateRow, lang language.Tag) {
	col := collate.New(lang)
	slices.SortFunc(rows, func(a, b AggregateRow) int {
		if c := col.CompareString(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
}
