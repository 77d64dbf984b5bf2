// Package mileage aggregates athlete activities into monthly per-discipline
// mileage rows and classifies each row against goal thresholds.
//
// Everything in this package is pure: inputs are never mutated, nothing is
// retained between calls and malformed records are skipped instead of failing
// the whole pass.
package mileage

import (
	"math"
	"strings"
)

// YardsPerMile converts pool distances logged in yards.
const YardsPerMile = 1760.0

// Placeholders used when a row has no usable display name.
const (
	NoNamePlaceholder  = "(no name)"
	UnknownPlaceholder = "(unknown)"
)

// Discipline names one of the three tracked activity categories.
type Discipline string

const (
	Swim Discipline = "Swim"
	Bike Discipline = "Bike"
	Run  Discipline = "Run"
)

// Disciplines lists the tracked disciplines in display order.
var Disciplines = []Discipline{Swim, Bike, Run}

// ParseDiscipline matches a raw activity type after trimming surrounding
// whitespace. Matching is exact and case-sensitive.
func ParseDiscipline(raw string) (Discipline, bool) {
	switch d := Discipline(strings.TrimSpace(raw)); d {
	case Swim, Bike, Run:
		return d, true
	default:
		return "", false
	}
}

// DistanceUnit is the unit an activity distance was logged in.
type DistanceUnit string

const (
	Miles DistanceUnit = "Miles"
	Yards DistanceUnit = "Yards"
)

// User is a roster entry.
type User struct {
	ID          string
	DisplayName string
}

// Activity is a single logged workout.
type Activity struct {
	ID             string
	OwnerID        string
	DisplayName    string
	Timestamp      Timestamp
	DisciplineType string
	Distance       float64
	DistanceUnit   DistanceUnit
}

// Miles returns the activity distance in miles. Yards are divided by 1760,
// every other unit is taken as miles already. Non-finite and negative
// distances count as zero.
func (a Activity) Miles() float64 {
	d := a.Distance
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0
	}
	if a.DistanceUnit == Yards {
		return d / YardsPerMile
	}
	return d
}

// AggregateRow holds one athlete's totals for a month.
type AggregateRow struct {
	UserID      string
	DisplayName string
	SwimMiles   float64
	BikeMiles   float64
	RunMiles    float64
}

// Total returns the row total for the named discipline. The name must match
// exactly; anything else reports false.
func (r AggregateRow) Total(d Discipline) (float64, bool) {
	switch d {
	case Swim:
		return r.SwimMiles, true
	case Bike:
		return r.BikeMiles, true
	case Run:
		return r.RunMiles, true
	default:
		return 0, false
	}
}

func (r *AggregateRow) add(d Discipline, miles float64) {
	switch d {
	case Swim:
		r.SwimMiles += miles
	case Bike:
		r.BikeMiles += miles
	case Run:
		r.RunMiles += miles
	}
}
