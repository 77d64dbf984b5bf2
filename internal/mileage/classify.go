package mileage

import (
	"math"
	"strconv"
)

// Tier is the goal level a monthly row reached.
type Tier int

const (
	TierNone Tier = iota
	TierMonthGoal
	TierAllThree
)

// Row highlight colours.
const (
	ColorAllThree  = "#fff59d"
	ColorMonthGoal = "#c8e6c9"
)

func (t Tier) String() string {
	switch t {
	case TierAllThree:
		return "all_three"
	case TierMonthGoal:
		return "month_goal"
	default:
		return "none"
	}
}

// Color returns the row background for the tier; TierNone is unstyled.
func (t Tier) Color() string {
	switch t {
	case TierAllThree:
		return ColorAllThree
	case TierMonthGoal:
		return ColorMonthGoal
	default:
		return ""
	}
}

// MonthGoal is the single-discipline target for one month.
type MonthGoal struct {
	Discipline Discipline
	Miles      float64
}

// MetBy reports whether the row reached the goal in the named discipline.
func (g MonthGoal) MetBy(row AggregateRow) bool {
	total, ok := row.Total(g.Discipline)
	return ok && total >= g.Miles
}

// AllThreeGoal holds the per-discipline thresholds that must all be met in
// the same month.
type AllThreeGoal struct {
	Swim float64
	Bike float64
	Run  float64
}

// DefaultAllThreeGoal is the season's grand threshold.
var DefaultAllThreeGoal = AllThreeGoal{Swim: 10, Bike: 200, Run: 75}

// MetBy reports whether every discipline reached its threshold.
func (g AllThreeGoal) MetBy(row AggregateRow) bool {
	return row.SwimMiles >= g.Swim && row.BikeMiles >= g.Bike && row.RunMiles >= g.Run
}

// GoalConfig is the goal pair a monthly breakdown is classified against.
type GoalConfig struct {
	MonthGoal MonthGoal
	AllThree  AllThreeGoal
}

// Classify returns the highest tier the row reached. AllThree wins over
// MonthGoal.
func Classify(row AggregateRow, goals GoalConfig) Tier {
	switch {
	case goals.AllThree.MetBy(row):
		return TierAllThree
	case goals.MonthGoal.MetBy(row):
		return TierMonthGoal
	default:
		return TierNone
	}
}

// FormatMiles renders a total with one decimal, rounding half away from zero.
func FormatMiles(v float64) string {
	r := math.Round(v*10) / 10
	if r == 0 {
		r = 0
	}
	return strconv.FormatFloat(r, 'f', 1, 64)
}
