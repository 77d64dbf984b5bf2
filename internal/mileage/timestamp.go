package mileage

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"time"
)

// TimeSource is a wrapped timestamp that knows how to produce a time.Time,
// for example a protobuf Timestamp.
type TimeSource interface {
	AsTime() time.Time
}

type timestampKind uint8

const (
	kindAbsent timestampKind = iota
	kindTime
	kindText
	kindEpochMillis
	kindSeconds
	kindSource
	kindUnrecognized
)

// maxEpochMillis is the largest magnitude a browser Date accepts.
const maxEpochMillis = 8.64e15

// Timestamp is an activity date in whichever shape the upstream store handed
// it over: a parsed time, a string, epoch milliseconds, an epoch-seconds
// object or a wrapped TimeSource. The zero value is an absent timestamp.
type Timestamp struct {
	kind    timestampKind
	at      time.Time
	text    string
	millis  float64
	seconds int64
	nanos   int64
	source  TimeSource
}

// At wraps an already parsed time. The zero time is treated as absent.
func At(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{kind: kindTime, at: t}
}

// FromString wraps a textual date. Blank strings are treated as absent.
func FromString(s string) Timestamp {
	if strings.TrimSpace(s) == "" {
		return Timestamp{}
	}
	return Timestamp{kind: kindText, text: s}
}

// FromEpochMillis wraps a numeric epoch in milliseconds. Zero is treated as
// absent.
func FromEpochMillis(ms float64) Timestamp {
	if ms == 0 {
		return Timestamp{}
	}
	return Timestamp{kind: kindEpochMillis, millis: ms}
}

// FromSeconds wraps a serialized seconds/nanoseconds pair.
func FromSeconds(seconds, nanos int64) Timestamp {
	return Timestamp{kind: kindSeconds, seconds: seconds, nanos: nanos}
}

// FromSource wraps a value exposing AsTime. A nil source, including a typed
// nil pointer, is absent.
func FromSource(src TimeSource) Timestamp {
	if isNil(src) {
		return Timestamp{}
	}
	return Timestamp{kind: kindSource, source: src}
}

func isNil(src TimeSource) bool {
	if src == nil {
		return true
	}
	v := reflect.ValueOf(src)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// IsZero reports whether no timestamp was supplied at all.
func (ts Timestamp) IsZero() bool {
	return ts.kind == kindAbsent
}

// Instant normalizes the timestamp. Strings without a zone are read in loc
// (time.Local when nil); ISO date-only strings are read as UTC. The second
// return value is false when no valid instant can be produced.
func (ts Timestamp) Instant(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	switch ts.kind {
	case kindTime:
		return ts.at, true
	case kindSource:
		t := ts.source.AsTime()
		return t, !t.IsZero()
	case kindSeconds:
		if ts.seconds == 0 {
			return time.Time{}, false
		}
		return time.Unix(ts.seconds, ts.nanos), true
	case kindEpochMillis:
		return fromMillis(ts.millis)
	case kindText:
		return parseText(ts.text, loc)
	default:
		return time.Time{}, false
	}
}

func fromMillis(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms) > maxEpochMillis {
		return time.Time{}, false
	}
	whole := math.Trunc(ms)
	return time.UnixMilli(int64(whole)), true
}

var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RubyDate,
		time.UnixDate,
	}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04",
		time.ANSIC,
		"January 2, 2006",
		"Jan 2, 2006",
		"January 2 2006",
		"Jan 2 2006",
		"01/02/2006",
	}
)

func parseText(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// UnmarshalJSON accepts null, strings, numbers (epoch milliseconds) and
// objects carrying seconds/nanoseconds under the usual document-store keys.
// Any other JSON value decodes into a timestamp that never normalizes.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*ts = Timestamp{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			ts.kind = kindUnrecognized
			return nil
		}
		*ts = FromString(s)
	case '{':
		var obj struct {
			Seconds      *json.Number `json:"seconds"`
			Nanoseconds  *json.Number `json:"nanoseconds"`
			Nanos        *json.Number `json:"nanos"`
			USeconds     *json.Number `json:"_seconds"`
			UNanoseconds *json.Number `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			ts.kind = kindUnrecognized
			return nil
		}
		seconds := firstNumber(obj.Seconds, obj.USeconds)
		if seconds == nil {
			ts.kind = kindUnrecognized
			return nil
		}
		secs, err := seconds.Float64()
		if err != nil {
			ts.kind = kindUnrecognized
			return nil
		}
		var nanos int64
		if n := firstNumber(obj.Nanoseconds, obj.Nanos, obj.UNanoseconds); n != nil {
			if v, err := n.Int64(); err == nil {
				nanos = v
			}
		}
		*ts = FromSeconds(int64(secs), nanos)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			ts.kind = kindUnrecognized
			return nil
		}
		*ts = FromEpochMillis(n)
	}
	return nil
}

func firstNumber(candidates ...*json.Number) *json.Number {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}
