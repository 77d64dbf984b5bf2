// Package api exposes HTTP handlers for the mileage service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"example.com/mileage/internal/auth"
	"example.com/mileage/internal/cache"
	"example.com/mileage/internal/domain"
	"example.com/mileage/internal/mileage"
	"example.com/mileage/internal/persistence"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service   *domain.Service
	cards     []domain.CardSpec
	allThree  mileage.AllThreeGoal
	location  *time.Location
	languages *languageResolver
	logger    zerolog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAllThreeGoal sets the all-three thresholds used by ad-hoc breakdowns
// when the request does not override them.
func WithAllThreeGoal(goal mileage.AllThreeGoal) HandlerOption {
	return func(h *Handler) {
		h.allThree = goal
	}
}

// WithLocation sets the zone ad-hoc breakdown windows are evaluated in.
func WithLocation(loc *time.Location) HandlerOption {
	return func(h *Handler) {
		if loc != nil {
			h.location = loc
		}
	}
}

// WithDefaultLanguage sets the collation used when the request names none.
func WithDefaultLanguage(tag language.Tag) HandlerOption {
	return func(h *Handler) {
		h.languages = newLanguageResolver(tag)
	}
}

// WithHandlerLogger overrides the handler logger.
func WithHandlerLogger(logger zerolog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler builds a Handler serving the given dashboard cards.
func NewHandler(service *domain.Service, cards []domain.CardSpec, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:   service,
		cards:     cards,
		allThree:  mileage.DefaultAllThreeGoal,
		location:  time.Local,
		languages: newLanguageResolver(language.English),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/dashboard", h.dashboard)
	mux.HandleFunc("/v1/dashboard/breakdown", h.breakdown)
	mux.HandleFunc("/v1/activities", h.listActivities)
	mux.HandleFunc("/v1/cache/invalidate", h.invalidateCache)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize returns the request claims when they carry scope, writing the
// error response otherwise.
func authorize(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeDashboardRead)
	if !ok {
		return
	}

	tag := h.languages.resolve(r)
	dash, err := h.service.Dashboard(r.Context(), claims.TenantID, h.cards, mileage.WithLanguage(tag))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := DashboardResponse{
		From:      dash.From,
		To:        dash.To,
		FetchedAt: dash.FetchedAt,
		Language:  tag.String(),
		Cards:     make([]BreakdownView, 0, len(dash.Breakdowns)),
	}
	for _, b := range dash.Breakdowns {
		resp.Cards = append(resp.Cards, toBreakdownView(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) breakdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeDashboardRead)
	if !ok {
		return
	}

	card, err := h.parseCard(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	b, err := h.service.MonthlyBreakdown(r.Context(), claims.TenantID, card, mileage.WithLanguage(h.languages.resolve(r)))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownView(b))
}

// parseCard reads an ad-hoc card from the query. Months are 1-12 on the wire.
func (h *Handler) parseCard(r *http.Request) (domain.CardSpec, error) {
	q := r.URL.Query()

	year, err := strconv.Atoi(strings.TrimSpace(q.Get("year")))
	if err != nil {
		return domain.CardSpec{}, errors.New("year must be an integer")
	}
	month, err := strconv.Atoi(strings.TrimSpace(q.Get("month")))
	if err != nil || month < 1 || month > 12 {
		return domain.CardSpec{}, errors.New("month must be between 1 and 12")
	}
	discipline, ok := mileage.ParseDiscipline(q.Get("goal"))
	if !ok {
		return domain.CardSpec{}, errors.New("goal must be one of Swim, Bike, Run")
	}
	miles, err := parseMiles(q.Get("miles"))
	if err != nil {
		return domain.CardSpec{}, errors.New("miles " + err.Error())
	}

	allThree := h.allThree
	for name, target := range map[string]*float64{"swim": &allThree.Swim, "bike": &allThree.Bike, "run": &allThree.Run} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := parseMiles(raw)
		if err != nil {
			return domain.CardSpec{}, errors.New(name + " " + err.Error())
		}
		*target = v
	}

	return domain.CardSpec{
		Title:  q.Get("title"),
		Window: mileage.MonthWindow{MonthIndex: month - 1, Year: year, Location: h.location},
		Goals: mileage.GoalConfig{
			MonthGoal: mileage.MonthGoal{Discipline: discipline, Miles: miles},
			AllThree:  allThree,
		},
	}, nil
}

func parseMiles(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.New("must be a non-negative number")
	}
	return v, nil
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxListLimit)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivitiesByUser(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) invalidateCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeCacheInvalidate)
	if !ok {
		return
	}

	var req cache.InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		tenantID = claims.TenantID
	}

	h.service.Invalidate(tenantID)
	h.logger.Debug().Str("tenant_id", tenantID).Str("subject", claims.Subject).Msg("snapshot cache invalidated")
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps domain errors to responses. Fetch failures surface
// the upstream message unchanged.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var fetchErr *domain.FetchError
	switch {
	case errors.As(err, &fetchErr):
		writeError(w, http.StatusBadGateway, "fetch_failed", fetchErr.Error())
	case errors.Is(err, domain.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNoCards):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error().Stack().Err(err).Msg("unexpected service error")
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
