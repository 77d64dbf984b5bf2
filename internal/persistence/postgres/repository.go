package postgres

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/mileage/internal/domain"
	"example.com/mileage/internal/mileage"
	"example.com/mileage/internal/persistence"
)

const defaultLimit = 100

// Repository provides Postgres-backed persistence for the roster and activities.
type Repository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewRepository constructs a Repository. Zone-less activity dates are stored
// as read in loc.
func NewRepository(pool *pgxpool.Pool, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.Local
	}
	return &Repository{pool: pool, loc: loc}
}

// withTenant runs fn inside a transaction scoped to tenantID for row level security.
func (r *Repository) withTenant(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertUser inserts or renames a roster entry.
func (r *Repository) UpsertUser(ctx context.Context, tenantID string, user mileage.User) error {
	const stmt = `INSERT INTO athletes (tenant_id, user_id, display_name, updated_at)
        VALUES ($1,$2,$3,NOW())
        ON CONFLICT (tenant_id, user_id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = NOW()`

	return r.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt, tenantID, user.ID, user.DisplayName)
		return err
	})
}

// UpsertActivity stores an activity under its normalized instant and returns its ID.
func (r *Repository) UpsertActivity(ctx context.Context, tenantID string, activity mileage.Activity) (string, error) {
	at, ok := activity.Timestamp.Instant(r.loc)
	if !ok {
		return "", persistence.ErrInvalidTimestamp
	}
	if strings.TrimSpace(activity.ID) == "" {
		activity.ID = uuid.NewString()
	}

	const stmt = `INSERT INTO mileage_activities (tenant_id, activity_id, user_id, display_name, activity_at, activity_type, distance, distance_units, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
        ON CONFLICT (tenant_id, activity_id) DO UPDATE SET
            user_id = EXCLUDED.user_id,
            display_name = EXCLUDED.display_name,
            activity_at = EXCLUDED.activity_at,
            activity_type = EXCLUDED.activity_type,
            distance = EXCLUDED.distance,
            distance_units = EXCLUDED.distance_units,
            updated_at = NOW()`

	err := r.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			tenantID,
			activity.ID,
			activity.OwnerID,
			activity.DisplayName,
			at.UTC(),
			activity.DisciplineType,
			storedDistance(activity.Distance),
			string(activity.DistanceUnit),
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return activity.ID, nil
}

// storedDistance keeps the logged unit but drops values no total could use.
func storedDistance(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

// ListUsers returns the tenant's full roster.
func (r *Repository) ListUsers(ctx context.Context, tenantID string) ([]mileage.User, error) {
	const query = `SELECT user_id, display_name FROM athletes WHERE tenant_id=$1 ORDER BY user_id`

	var users []mileage.User
	err := r.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u mileage.User
			if err := rows.Scan(&u.ID, &u.DisplayName); err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

const activityColumns = `activity_id, user_id, display_name, activity_at, activity_type, distance, distance_units`

// ListActivitiesInRange returns activities dated in [from, to), oldest first.
func (r *Repository) ListActivitiesInRange(ctx context.Context, tenantID string, from, to time.Time, cursor *domain.Cursor, limit int) ([]mileage.Activity, *domain.Cursor, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	args := []interface{}{tenantID, from, to, limit}
	query := `SELECT ` + activityColumns + `
        FROM mileage_activities WHERE tenant_id=$1 AND activity_at >= $2 AND activity_at < $3`

	if cursor != nil {
		query += ` AND (activity_at, activity_id) > ($5, $6)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}

	query += ` ORDER BY activity_at ASC, activity_id ASC LIMIT $4`

	return r.listActivities(ctx, tenantID, query, args, limit)
}

// ListActivitiesByUser returns one athlete's activities, newest first.
func (r *Repository) ListActivitiesByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]mileage.Activity, *domain.Cursor, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT ` + activityColumns + `
        FROM mileage_activities WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (activity_at, activity_id) < ($4, $5)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}

	query += ` ORDER BY activity_at DESC, activity_id DESC LIMIT $3`

	return r.listActivities(ctx, tenantID, query, args, limit)
}

func (r *Repository) listActivities(ctx context.Context, tenantID, query string, args []interface{}, limit int) ([]mileage.Activity, *domain.Cursor, error) {
	results := make([]mileage.Activity, 0, limit)
	var last time.Time

	err := r.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				a    mileage.Activity
				at   time.Time
				unit string
			)
			if err := rows.Scan(&a.ID, &a.OwnerID, &a.DisplayName, &at, &a.DisciplineType, &a.Distance, &unit); err != nil {
				return err
			}
			a.Timestamp = mileage.At(at)
			a.DistanceUnit = mileage.DistanceUnit(unit)
			results = append(results, a)
			last = at
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		nextCursor = &domain.Cursor{StartedAt: last, ID: results[len(results)-1].ID}
	}
	return results, nextCursor, nil
}
