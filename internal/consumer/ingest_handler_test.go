package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/mileage/internal/mileage"
	"example.com/mileage/internal/persistence/memory"
)

func TestIngestHandlerStoresActivityAndInvalidates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(time.UTC)
	inv := &recordingInvalidator{}
	handler := NewIngestHandler(store, WithInvalidator(inv))

	msg := Message{
		EventType: "activity.logged",
		TenantID:  "t1",
		Payload: json.RawMessage(`{
			"activity_id": "a1",
			"user_id": "u1",
			"activity_date_time": {"seconds": 1768471200, "nanoseconds": 0},
			"activity_type": "Swim",
			"distance": 3520,
			"distance_units": "Yards"
		}`),
	}
	require.NoError(t, handler.Handle(ctx, msg))

	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	page, _, err := store.ListActivitiesInRange(ctx, "t1", from, from.AddDate(0, 1, 0), nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.InDelta(t, 2.0, page[0].Miles(), 1e-9)
	require.Equal(t, []string{"t1"}, inv.tenants)
}

func TestIngestHandlerResolvesProfileName(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(time.UTC)
	handler := NewIngestHandler(store)

	msg := Message{
		EventType: "user.profile_updated",
		Payload:   json.RawMessage(`{"user_id":"u1","tenant_id":"t9","name":"Ann","full_name":"Ann Lee"}`),
	}
	require.NoError(t, handler.Handle(ctx, msg))

	users, err := store.ListUsers(ctx, "t9")
	require.NoError(t, err)
	require.Equal(t, []mileage.User{{ID: "u1", DisplayName: "Ann"}}, users)
}

func TestIngestHandlerSkipsUnusableEvents(t *testing.T) {
	cases := []struct {
		name   string
		msg    Message
		reason string
	}{
		{
			name:   "bad timestamp",
			msg:    Message{EventType: "activity.logged", TenantID: "t1", Payload: json.RawMessage(`{"user_id":"u1","activity_date_time":"someday"}`)},
			reason: skipInvalidTimestamp,
		},
		{
			name:   "no tenant",
			msg:    Message{EventType: "activity.logged", Payload: json.RawMessage(`{"user_id":"u1","activity_date_time":"2026-01-02"}`)},
			reason: skipMissingTenant,
		},
		{
			name:   "malformed",
			msg:    Message{EventType: "user.profile_updated", TenantID: "t1", Payload: json.RawMessage(`[1,2]`)},
			reason: skipMalformedPayload,
		},
		{
			name:   "profile without user",
			msg:    Message{EventType: "user.profile_updated", TenantID: "t1", Payload: json.RawMessage(`{"name":"Ann"}`)},
			reason: skipMissingUser,
		},
		{
			name:   "unknown type",
			msg:    Message{EventType: "activity.deleted", TenantID: "t1", Payload: json.RawMessage(`{}`)},
			reason: skipUnknownEventType,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := &recordingInvalidator{}
			handler := NewIngestHandler(memory.NewStore(time.UTC), WithInvalidator(inv))
			err := handler.Handle(context.Background(), tc.msg)

			var skipped *SkipError
			require.ErrorAs(t, err, &skipped)
			require.Equal(t, tc.reason, skipped.Reason)
			require.Empty(t, inv.tenants)
		})
	}
}

func TestIngestHandlerReturnsStoreErrors(t *testing.T) {
	handler := NewIngestHandler(failingStore{err: errors.New("connection reset")})

	err := handler.Handle(context.Background(), Message{
		EventType: "user.profile_updated",
		TenantID:  "t1",
		Payload:   json.RawMessage(`{"user_id":"u1","display_name":"Ann"}`),
	})

	require.ErrorContains(t, err, "connection reset")
}

func TestIngestHandlerToleratesInvalidationFailure(t *testing.T) {
	inv := &recordingInvalidator{err: errors.New("api down")}
	handler := NewIngestHandler(memory.NewStore(time.UTC), WithInvalidator(inv))

	err := handler.Handle(context.Background(), Message{
		EventType: "user.profile_updated",
		TenantID:  "t1",
		Payload:   json.RawMessage(`{"user_id":"u1","display_name":"Ann"}`),
	})

	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, inv.tenants)
}

type recordingInvalidator struct {
	tenants []string
	err     error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tenantID string) error {
	r.tenants = append(r.tenants, tenantID)
	return r.err
}

type failingStore struct {
	err error
}

func (f failingStore) UpsertUser(context.Context, string, mileage.User) error { return f.err }

func (f failingStore) UpsertActivity(context.Context, string, mileage.Activity) (string, error) {
	return "", f.err
}
