// Package domain defines the business logic for the mileage service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"example.com/mileage/internal/mileage"
	"example.com/mileage/internal/observability"
)

var (
	// ErrInvalidWindow is returned when a card names a month outside 0-11.
	ErrInvalidWindow = errors.New("invalid month window")
	// ErrNoCards is returned when a dashboard is requested without cards.
	ErrNoCards = errors.New("no dashboard cards configured")
)

const defaultPageSize = 500

// FetchError reports a failed upstream read. Its message is the upstream
// message unchanged so it can be shown to the user as is.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return e.Err.Error() }

func (e *FetchError) Unwrap() error { return e.Err }

// Repository captures the reads needed to build a snapshot.
type Repository interface {
	ListUsers(ctx context.Context, tenantID string) ([]mileage.User, error)
	// ListActivitiesInRange returns activities dated in [from, to), oldest first.
	ListActivitiesInRange(ctx context.Context, tenantID string, from, to time.Time, cursor *Cursor, limit int) ([]mileage.Activity, *Cursor, error)
	ListActivitiesByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]mileage.Activity, *Cursor, error)
}

// SnapshotCache keeps recently fetched snapshots.
type SnapshotCache interface {
	Get(tenantID string, from, to time.Time) (Snapshot, bool)
	Put(snapshot Snapshot)
	Invalidate(tenantID string)
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithCache enables snapshot caching.
func WithCache(cache SnapshotCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithPageSize sets how many activities are requested per page.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithLogger overrides the logger used to report fetch failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service orchestrates snapshot loading, aggregation and classification.
type Service struct {
	repo     Repository
	cache    SnapshotCache
	pageSize int
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		pageSize: defaultPageSize,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadSnapshot fetches the full roster and every activity in [from, to).
// Either the whole snapshot is returned or a *FetchError; partial data never
// escapes.
func (s *Service) LoadSnapshot(ctx context.Context, tenantID string, from, to time.Time) (Snapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(tenantID, from, to); ok {
			observability.RecordCacheLookup(true)
			return snap, nil
		}
		observability.RecordCacheLookup(false)
	}

	users, err := s.repo.ListUsers(ctx, tenantID)
	if err != nil {
		return Snapshot{}, s.fetchFailed(tenantID, "list users", err)
	}

	var (
		activities []mileage.Activity
		cursor     *Cursor
	)
	for {
		page, next, err := s.repo.ListActivitiesInRange(ctx, tenantID, from, to, cursor, s.pageSize)
		if err != nil {
			return Snapshot{}, s.fetchFailed(tenantID, "list activities", err)
		}
		activities = append(activities, page...)
		if next == nil || len(page) == 0 {
			break
		}
		cursor = next
	}

	snap := Snapshot{
		TenantID:   tenantID,
		From:       from,
		To:         to,
		Users:      users,
		Activities: activities,
		FetchedAt:  s.now().UTC(),
	}
	observability.RecordSnapshotLoaded(snap.FetchedAt, len(users), len(activities))
	if s.cache != nil {
		s.cache.Put(snap)
	}
	return snap, nil
}

func (s *Service) fetchFailed(tenantID, op string, err error) error {
	observability.RecordFetchFailure(op)
	s.logger.Warn().Stack().Err(err).Str("tenant_id", tenantID).Str("op", op).Msg("snapshot fetch failed")
	return &FetchError{Op: op, Err: err}
}

// MonthlyBreakdown builds a single card from a snapshot of its own month.
func (s *Service) MonthlyBreakdown(ctx context.Context, tenantID string, card CardSpec, opts ...mileage.Option) (Breakdown, error) {
	if !card.Window.Valid() {
		return Breakdown{}, fmt.Errorf("%w: month index %d", ErrInvalidWindow, card.Window.MonthIndex)
	}

	from, to := card.Window.Bounds()
	snap, err := s.LoadSnapshot(ctx, tenantID, from, to)
	if err != nil {
		return Breakdown{}, err
	}
	return BuildBreakdown(snap, card, opts...), nil
}

// Dashboard fetches one snapshot covering every card and builds the cards in
// the order given.
func (s *Service) Dashboard(ctx context.Context, tenantID string, cards []CardSpec, opts ...mileage.Option) (Dashboard, error) {
	if len(cards) == 0 {
		return Dashboard{}, ErrNoCards
	}

	var from, to time.Time
	for i, card := range cards {
		if !card.Window.Valid() {
			return Dashboard{}, fmt.Errorf("%w: card %d month index %d", ErrInvalidWindow, i, card.Window.MonthIndex)
		}
		start, end := card.Window.Bounds()
		if i == 0 || start.Before(from) {
			from = start
		}
		if i == 0 || end.After(to) {
			to = end
		}
	}

	snap, err := s.LoadSnapshot(ctx, tenantID, from, to)
	if err != nil {
		return Dashboard{}, err
	}

	dash := Dashboard{
		From:       from,
		To:         to,
		FetchedAt:  snap.FetchedAt,
		Breakdowns: make([]Breakdown, 0, len(cards)),
	}
	for _, card := range cards {
		dash.Breakdowns = append(dash.Breakdowns, BuildBreakdown(snap, card, opts...))
	}
	return dash, nil
}

// BuildBreakdown aggregates a snapshot into the card's month and classifies
// every row.
func BuildBreakdown(snap Snapshot, card CardSpec, opts ...mileage.Option) Breakdown {
	started := time.Now()
	rows, stats := mileage.AggregateWithStats(snap.Users, snap.Activities, card.Window, opts...)
	observability.RecordAggregation(time.Since(started), stats)

	classified := make([]ClassifiedRow, 0, len(rows))
	for _, row := range rows {
		tier := mileage.Classify(row, card.Goals)
		observability.RecordTier(tier)
		classified = append(classified, ClassifiedRow{AggregateRow: row, Tier: tier})
	}

	return Breakdown{
		Title:  card.DisplayTitle(),
		Window: card.Window,
		Goals:  card.Goals,
		Legend: Legend(card.Goals),
		Rows:   classified,
		Stats:  stats,
	}
}

// Legend renders the caption explaining the row colours.
func Legend(goals mileage.GoalConfig) string {
	return fmt.Sprintf("Green = %s ≥ %s mi. Yellow = Swim ≥ %s, Bike ≥ %s, Run ≥ %s (same month).",
		goals.MonthGoal.Discipline,
		formatGoal(goals.MonthGoal.Miles),
		formatGoal(goals.AllThree.Swim),
		formatGoal(goals.AllThree.Bike),
		formatGoal(goals.AllThree.Run),
	)
}

func formatGoal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ListActivitiesByUser fetches one athlete's activities with cursor pagination.
func (s *Service) ListActivitiesByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]mileage.Activity, *Cursor, error) {
	activities, next, err := s.repo.ListActivitiesByUser(ctx, tenantID, userID, cursor, limit)
	if err != nil {
		return nil, nil, &FetchError{Op: "list activities by user", Err: err}
	}
	return activities, next, nil
}

// Invalidate drops cached snapshots for the tenant.
func (s *Service) Invalidate(tenantID string) {
	if s.cache != nil {
		s.cache.Invalidate(tenantID)
	}
}
