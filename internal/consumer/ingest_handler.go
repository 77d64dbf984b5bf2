package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"example.com/mileage/internal/cache"
	"example.com/mileage/internal/events"
	"example.com/mileage/internal/mileage"
	"example.com/mileage/internal/persistence"
)

// Skip reasons carried by SkipError.
const (
	skipMalformedPayload = "malformed_payload"
	skipMissingTenant    = "missing_tenant"
	skipMissingUser      = "missing_user"
	skipInvalidTimestamp = "invalid_timestamp"
	skipUnknownEventType = "unknown_event_type"
)

// Store is the write side the ingest handler needs.
type Store interface {
	UpsertUser(ctx context.Context, tenantID string, user mileage.User) error
	UpsertActivity(ctx context.Context, tenantID string, activity mileage.Activity) (string, error)
}

// IngestHandler applies activity and profile events to the store and
// invalidates the tenant's cached snapshots afterwards.
type IngestHandler struct {
	store       Store
	invalidator cache.Invalidator
	logger      zerolog.Logger
}

// IngestOption configures an IngestHandler.
type IngestOption func(*IngestHandler)

// WithInvalidator sets where cache invalidations are sent.
func WithInvalidator(inv cache.Invalidator) IngestOption {
	return func(h *IngestHandler) {
		if inv != nil {
			h.invalidator = inv
		}
	}
}

// WithIngestLogger overrides the handler logger.
func WithIngestLogger(logger zerolog.Logger) IngestOption {
	return func(h *IngestHandler) {
		h.logger = logger
	}
}

// NewIngestHandler constructs a handler writing to store.
func NewIngestHandler(store Store, opts ...IngestOption) *IngestHandler {
	h := &IngestHandler{
		store:       store,
		invalidator: cache.NoopInvalidator{},
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle implements Handler. Events that can never be applied return a
// *SkipError so the processor commits them instead of retrying.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeActivityLogged:
		return h.handleActivity(ctx, msg)
	case events.TypeUserProfileUpdated:
		return h.handleProfile(ctx, msg)
	default:
		return skip(skipUnknownEventType)
	}
}

func (h *IngestHandler) handleActivity(ctx context.Context, msg Message) error {
	var evt events.ActivityLogged
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return skip(skipMalformedPayload)
	}
	tenantID := tenantOf(msg, evt.TenantID)
	if tenantID == "" {
		return skip(skipMissingTenant)
	}

	id, err := h.store.UpsertActivity(ctx, tenantID, evt.Activity())
	if errors.Is(err, persistence.ErrInvalidTimestamp) {
		return skip(skipInvalidTimestamp)
	}
	if err != nil {
		return fmt.Errorf("upsert activity: %w", err)
	}

	h.logger.Debug().Str("tenant_id", tenantID).Str("activity_id", id).Msg("activity stored")
	h.invalidate(ctx, tenantID)
	return nil
}

func (h *IngestHandler) handleProfile(ctx context.Context, msg Message) error {
	var evt events.UserProfileUpdated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return skip(skipMalformedPayload)
	}
	tenantID := tenantOf(msg, evt.TenantID)
	if tenantID == "" {
		return skip(skipMissingTenant)
	}
	if strings.TrimSpace(evt.UserID) == "" {
		return skip(skipMissingUser)
	}

	if err := h.store.UpsertUser(ctx, tenantID, evt.User()); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	h.invalidate(ctx, tenantID)
	return nil
}

// invalidate failures are logged only; the cache TTL bounds staleness.
func (h *IngestHandler) invalidate(ctx context.Context, tenantID string) {
	if err := h.invalidator.Invalidate(ctx, tenantID); err != nil {
		h.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("invalidate snapshot cache")
	}
}

func skip(reason string) error {
	return &SkipError{Reason: reason}
}

// tenantOf prefers the tenant_id header over the payload field.
func tenantOf(msg Message, payloadTenant string) string {
	if t := strings.TrimSpace(msg.TenantID); t != "" {
		return t
	}
	return strings.TrimSpace(payloadTenant)
}
