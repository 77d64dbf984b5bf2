// Package events defines the payloads published by the activity logging and profile services.
package events

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"example.com/mileage/internal/mileage"
)

// Event types carried in the event_type Kafka header.
const (
	TypeActivityLogged     = "activity.logged"
	TypeUserProfileUpdated = "user.profile_updated"
)

// ActivityLogged is emitted whenever an athlete logs or edits an activity.
type ActivityLogged struct {
	ActivityID       string            `json:"activity_id"`
	TenantID         string            `json:"tenant_id"`
	UserID           string            `json:"user_id"`
	DisplayName      string            `json:"display_name,omitempty"`
	ActivityDateTime mileage.Timestamp `json:"activity_date_time"`
	ActivityType     string            `json:"activity_type"`
	Distance         Distance          `json:"distance"`
	DistanceUnits    string            `json:"distance_units"`
}

// Activity converts the payload into the aggregation input shape.
func (e ActivityLogged) Activity() mileage.Activity {
	return mileage.Activity{
		ID:             e.ActivityID,
		OwnerID:        e.UserID,
		DisplayName:    e.DisplayName,
		Timestamp:      e.ActivityDateTime,
		DisciplineType: e.ActivityType,
		Distance:       float64(e.Distance),
		DistanceUnit:   mileage.DistanceUnit(e.DistanceUnits),
	}
}

// UserProfileUpdated is emitted when an athlete changes their profile.
type UserProfileUpdated struct {
	UserID      string `json:"user_id"`
	TenantID    string `json:"tenant_id"`
	DisplayName string `json:"display_name,omitempty"`
	Name        string `json:"name,omitempty"`
	FullName    string `json:"full_name,omitempty"`
}

// ResolvedName picks the first non-blank of display name, name and full name.
func (e UserProfileUpdated) ResolvedName() string {
	for _, candidate := range []string{e.DisplayName, e.Name, e.FullName} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// User converts the payload into a roster entry.
func (e UserProfileUpdated) User() mileage.User {
	return mileage.User{ID: e.UserID, DisplayName: e.ResolvedName()}
}

// Distance accepts a JSON number or a numeric string. Anything else decodes as 0.
type Distance float64

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (d *Distance) UnmarshalJSON(data []byte) error {
	*d = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	} else {
		raw = string(data)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	*d = Distance(v)
	return nil
}
