package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Invalidator drops cached snapshots for a tenant, possibly in another process.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// NoopInvalidator is used when no API process needs to be told.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, string) error { return nil }

// LocalInvalidator forwards to a cache living in the same process.
type LocalInvalidator struct {
	Target interface{ Invalidate(tenantID string) }
}

// Invalidate drops the tenant's entries from Target.
func (l LocalInvalidator) Invalidate(_ context.Context, tenantID string) error {
	if l.Target != nil {
		l.Target.Invalidate(tenantID)
	}
	return nil
}

// InvalidateRequest is the body accepted by the API invalidation endpoint.
type InvalidateRequest struct {
	TenantID string `json:"tenant_id"`
}

// HTTPInvalidator calls the API's invalidation endpoint.
type HTTPInvalidator struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTPInvalidator constructs an HTTPInvalidator. The token is sent as a
// bearer credential and needs the cache:invalidate scope.
func NewHTTPInvalidator(endpoint, token string, timeout time.Duration) *HTTPInvalidator {
	return &HTTPInvalidator{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(endpoint, "/"),
		token:  token,
	}
}

// Invalidate POSTs the tenant as JSON and expects a 2xx answer.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, tenantID string) error {
	body, err := json.Marshal(InvalidateRequest{TenantID: tenantID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &InvalidationError{TenantID: tenantID, Status: resp.StatusCode}
	}
	return nil
}

// InvalidationError is returned for a non-2xx invalidation response.
type InvalidationError struct {
	TenantID string
	Status   int
}

func (e *InvalidationError) Error() string {
	return fmt.Sprintf("cache invalidation for tenant %s failed: %d %s", e.TenantID, e.Status, http.StatusText(e.Status))
}
