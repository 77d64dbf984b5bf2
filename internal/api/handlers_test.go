package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/mileage/internal/auth"
	"example.com/mileage/internal/domain"
	"example.com/mileage/internal/mileage"
	"example.com/mileage/internal/persistence"
	"example.com/mileage/internal/persistence/memory"
)

const tenant = "tenant-1"

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(time.UTC)

	require.NoError(t, store.UpsertUser(ctx, tenant, mileage.User{ID: "u1", DisplayName: "Ann"}))
	require.NoError(t, store.UpsertUser(ctx, tenant, mileage.User{ID: "u2", DisplayName: "Bob"}))

	activities := []mileage.Activity{
		{ID: "a1", OwnerID: "u1", Timestamp: mileage.FromString("2026-01-05T08:00:00Z"), DisciplineType: "Bike", Distance: 120, DistanceUnit: mileage.Miles},
		{ID: "a2", OwnerID: "u1", Timestamp: mileage.FromString("2026-01-20T08:00:00Z"), DisciplineType: "Bike", Distance: 100, DistanceUnit: mileage.Miles},
		{ID: "a3", OwnerID: "u1", Timestamp: mileage.FromString("2026-01-21T08:00:00Z"), DisciplineType: "Swim", Distance: 3520, DistanceUnit: mileage.Yards},
		{ID: "a4", OwnerID: "u2", Timestamp: mileage.FromString("2025-12-03T08:00:00Z"), DisciplineType: "Swim", Distance: 12, DistanceUnit: mileage.Miles},
		{ID: "a5", OwnerID: "u3", Timestamp: mileage.FromString("2026-02-10T08:00:00Z"), DisciplineType: "Run", Distance: 80, DistanceUnit: mileage.Miles},
	}
	for _, a := range activities {
		_, err := store.UpsertActivity(ctx, tenant, a)
		require.NoError(t, err)
	}
	return store
}

func winterCards() []domain.CardSpec {
	goals := func(d mileage.Discipline, miles float64) mileage.GoalConfig {
		return mileage.GoalConfig{
			MonthGoal: mileage.MonthGoal{Discipline: d, Miles: miles},
			AllThree:  mileage.DefaultAllThreeGoal,
		}
	}
	return []domain.CardSpec{
		{Window: mileage.NewMonthWindow(2025, time.December, time.UTC), Goals: goals(mileage.Swim, 10)},
		{Window: mileage.NewMonthWindow(2026, time.January, time.UTC), Goals: goals(mileage.Bike, 200)},
		{Window: mileage.NewMonthWindow(2026, time.February, time.UTC), Goals: goals(mileage.Run, 75)},
	}
}

func newTestMux(repo domain.Repository) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(domain.NewService(repo), winterCards(), WithLocation(time.UTC)).RegisterRoutes(mux)
	return mux
}

func withClaims(req *http.Request, scopes ...string) *http.Request {
	claims := &auth.Claims{
		Subject:   "coach",
		TenantID:  tenant,
		Scopes:    map[string]struct{}{},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	for _, s := range scopes {
		claims.Scopes[s] = struct{}{}
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func serve(mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestDashboardClassifiesEachCard(t *testing.T) {
	mux := newTestMux(seededStore(t))
	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil), auth.ScopeDashboardRead)

	rr := serve(mux, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp DashboardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "en", resp.Language)
	require.Len(t, resp.Cards, 3)
	require.True(t, resp.From.Equal(time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, resp.To.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))

	dec := resp.Cards[0]
	require.Equal(t, "December 2025", dec.Title)
	require.Equal(t, "2025-12", dec.Month)
	require.Equal(t, "month_goal", dec.Rows[1].Tier)
	require.Equal(t, "Bob", dec.Rows[1].DisplayName)
	require.Equal(t, "12.0", dec.Rows[1].Swim)

	jan := resp.Cards[1]
	require.Equal(t, "Green = Bike ≥ 200 mi. Yellow = Swim ≥ 10, Bike ≥ 200, Run ≥ 75 (same month).", jan.Legend)
	require.Equal(t, "Ann", jan.Rows[0].DisplayName)
	require.Equal(t, "220.0", jan.Rows[0].Bike)
	require.Equal(t, "2.0", jan.Rows[0].Swim)
	require.Equal(t, "month_goal", jan.Rows[0].Tier)
	require.Equal(t, mileage.ColorMonthGoal, jan.Rows[0].Color)
	require.Equal(t, "none", jan.Rows[1].Tier)
	require.Empty(t, jan.Rows[1].Color)

	feb := resp.Cards[2]
	require.Len(t, feb.Rows, 3)
	require.Equal(t, 1, feb.Stats.Synthesized)
	require.Equal(t, mileage.UnknownPlaceholder, feb.Rows[0].DisplayName)
	require.Equal(t, "u3", feb.Rows[0].UserID)
	require.Equal(t, "month_goal", feb.Rows[0].Tier)
}

func TestBreakdownAdHocCard(t *testing.T) {
	mux := newTestMux(seededStore(t))
	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/dashboard/breakdown?year=2026&month=1&goal=Bike&miles=200&swim=2&run=0", nil), auth.ScopeDashboardRead)

	rr := serve(mux, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp BreakdownView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "January 2026", resp.Title)
	require.Equal(t, AllThreeView{Swim: 2, Bike: 200, Run: 0}, resp.Goals.AllThree)
	require.Equal(t, "all_three", resp.Rows[0].Tier)
	require.Equal(t, mileage.ColorAllThree, resp.Rows[0].Color)
}

func TestBreakdownUsesConfiguredLocation(t *testing.T) {
	ctx := context.Background()
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	store := memory.NewStore(time.UTC)
	require.NoError(t, store.UpsertUser(ctx, tenant, mileage.User{ID: "u1", DisplayName: "Ann"}))
	// Late evening on January 31 in Chicago, already February in UTC.
	_, err = store.UpsertActivity(ctx, tenant, mileage.Activity{ID: "a1", OwnerID: "u1", Timestamp: mileage.FromString("2026-02-01T03:00:00Z"), DisciplineType: "Run", Distance: 80, DistanceUnit: mileage.Miles})
	require.NoError(t, err)

	january := func(loc *time.Location) RowView {
		mux := http.NewServeMux()
		NewHandler(domain.NewService(store), nil, WithLocation(loc)).RegisterRoutes(mux)
		req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/dashboard/breakdown?year=2026&month=1&goal=Run&miles=75", nil), auth.ScopeDashboardRead)

		rr := serve(mux, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var resp BreakdownView
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Rows, 1)
		return resp.Rows[0]
	}

	local := january(chicago)
	require.InDelta(t, 80.0, local.RunMiles, 1e-9)
	require.Equal(t, "month_goal", local.Tier)

	utc := january(time.UTC)
	require.Zero(t, utc.RunMiles)
	require.Equal(t, "none", utc.Tier)
}

func TestBreakdownValidation(t *testing.T) {
	mux := newTestMux(seededStore(t))

	for _, query := range []string{
		"year=2026&month=0&goal=Bike&miles=200",
		"year=2026&month=13&goal=Bike&miles=200",
		"year=soon&month=1&goal=Bike&miles=200",
		"year=2026&month=1&goal=Yoga&miles=200",
		"year=2026&month=1&goal=Bike&miles=-5",
		"year=2026&month=1&goal=Bike&miles=200&swim=lots",
	} {
		t.Run(query, func(t *testing.T) {
			req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/dashboard/breakdown?"+query, nil), auth.ScopeDashboardRead)
			rr := serve(mux, req)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Contains(t, rr.Body.String(), "validation_failed")
		})
	}
}

func TestDashboardFetchFailureIsVerbatim(t *testing.T) {
	mux := newTestMux(failingRepo{err: errors.New("permission denied on collection users")})
	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil), auth.ScopeDashboardRead)

	rr := serve(mux, req)

	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.JSONEq(t, `{"type":"fetch_failed","detail":"permission denied on collection users"}`, rr.Body.String())
}

func TestDashboardAuthorization(t *testing.T) {
	mux := newTestMux(seededStore(t))

	rr := serve(mux, httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(mux, withClaims(httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil), auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(mux, withClaims(httptest.NewRequest(http.MethodPost, "/v1/dashboard", nil), auth.ScopeDashboardRead))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestDashboardCollationLanguage(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(time.UTC)
	require.NoError(t, store.UpsertUser(ctx, tenant, mileage.User{ID: "u1", DisplayName: "Zoe"}))
	require.NoError(t, store.UpsertUser(ctx, tenant, mileage.User{ID: "u2", DisplayName: "Åsa"}))
	mux := newTestMux(store)

	names := func(req *http.Request) []string {
		rr := serve(mux, withClaims(req, auth.ScopeDashboardRead))
		require.Equal(t, http.StatusOK, rr.Code)
		var resp DashboardResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		var out []string
		for _, row := range resp.Cards[0].Rows {
			out = append(out, row.DisplayName)
		}
		return out
	}

	require.Equal(t, []string{"Åsa", "Zoe"}, names(httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil)))

	req := httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil)
	req.Header.Set("Accept-Language", "sv-SE,sv;q=0.9")
	require.Equal(t, []string{"Zoe", "Åsa"}, names(req))

	require.Equal(t, []string{"Zoe", "Åsa"}, names(httptest.NewRequest(http.MethodGet, "/v1/dashboard?lang=sv", nil)))
}

func TestListActivitiesPaginates(t *testing.T) {
	mux := newTestMux(seededStore(t))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/activities?user_id=u1&limit=2", nil), auth.ScopeActivitiesRead)
	rr := serve(mux, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var first ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	require.Len(t, first.Items, 2)
	require.Equal(t, "a3", first.Items[0].ActivityID)
	require.Equal(t, "2.0", first.Items[0].Miles)
	require.NotEmpty(t, first.NextCursor)

	cursor, err := persistence.DecodeCursor(first.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "a2", cursor.ID)

	req = withClaims(httptest.NewRequest(http.MethodGet, "/v1/activities?user_id=u1&limit=2&cursor="+first.NextCursor, nil), auth.ScopeActivitiesRead)
	rr = serve(mux, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var second ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	require.Len(t, second.Items, 1)
	require.Equal(t, "a1", second.Items[0].ActivityID)
	require.Empty(t, second.NextCursor)
}

func TestListActivitiesValidation(t *testing.T) {
	mux := newTestMux(seededStore(t))

	rr := serve(mux, withClaims(httptest.NewRequest(http.MethodGet, "/v1/activities", nil), auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(mux, withClaims(httptest.NewRequest(http.MethodGet, "/v1/activities?user_id=u1&cursor=not-a-cursor!", nil), auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInvalidateCache(t *testing.T) {
	cache := &recordingCache{}
	mux := http.NewServeMux()
	NewHandler(domain.NewService(seededStore(t), domain.WithCache(cache)), winterCards()).RegisterRoutes(mux)

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/cache/invalidate", strings.NewReader(`{"tenant_id":"tenant-9"}`)), auth.ScopeCacheInvalidate)
	rr := serve(mux, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = withClaims(httptest.NewRequest(http.MethodPost, "/v1/cache/invalidate", nil), auth.ScopeCacheInvalidate)
	rr = serve(mux, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	require.Equal(t, []string{"tenant-9", tenant}, cache.invalidated)

	req = withClaims(httptest.NewRequest(http.MethodPost, "/v1/cache/invalidate", nil), auth.ScopeDashboardRead)
	require.Equal(t, http.StatusForbidden, serve(mux, req).Code)
}

func TestHealthz(t *testing.T) {
	rr := serve(newTestMux(seededStore(t)), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

type failingRepo struct {
	err error
}

func (f failingRepo) ListUsers(context.Context, string) ([]mileage.User, error) { return nil, f.err }

func (f failingRepo) ListActivitiesInRange(context.Context, string, time.Time, time.Time, *domain.Cursor, int) ([]mileage.Activity, *domain.Cursor, error) {
	return nil, nil, f.err
}

func (f failingRepo) ListActivitiesByUser(context.Context, string, string, *domain.Cursor, int) ([]mileage.Activity, *domain.Cursor, error) {
	return nil, nil, f.err
}

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Get(string, time.Time, time.Time) (domain.Snapshot, bool) {
	return domain.Snapshot{}, false
}

func (c *recordingCache) Put(domain.Snapshot) {}

func (c *recordingCache) Invalidate(tenantID string) {
	c.invalidated = append(c.invalidated, tenantID)
}
