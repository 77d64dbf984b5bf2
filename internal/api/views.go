package api

import (
	"time"

	"example.com/mileage/internal/domain"
	"example.com/mileage/internal/mileage"
)

// DashboardResponse is the body of GET /v1/dashboard.
type DashboardResponse struct {
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	FetchedAt time.Time       `json:"fetched_at"`
	Language  string          `json:"language"`
	Cards     []BreakdownView `json:"cards"`
}

// BreakdownView is one monthly card.
type BreakdownView struct {
	Title  string    `json:"title"`
	Month  string    `json:"month"`
	Legend string    `json:"legend"`
	Goals  GoalsView `json:"goals"`
	Rows   []RowView `json:"rows"`
	Stats  StatsView `json:"stats"`
}

// GoalsView describes what a card is classified against.
type GoalsView struct {
	MonthGoal MonthGoalView `json:"month_goal"`
	AllThree  AllThreeView  `json:"all_three"`
}

// MonthGoalView is the single-discipline goal.
type MonthGoalView struct {
	Discipline string  `json:"discipline"`
	Miles      float64 `json:"miles"`
}

// AllThreeView holds the per-discipline thresholds.
type AllThreeView struct {
	Swim float64 `json:"swim"`
	Bike float64 `json:"bike"`
	Run  float64 `json:"run"`
}

// RowView is one athlete's month. Swim, Bike and Run are display strings with
// one decimal; the *Miles fields carry the raw totals.
type RowView struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Swim        string  `json:"swim"`
	Bike        string  `json:"bike"`
	Run         string  `json:"run"`
	SwimMiles   float64 `json:"swim_miles"`
	BikeMiles   float64 `json:"bike_miles"`
	RunMiles    float64 `json:"run_miles"`
	Tier        string  `json:"tier"`
	Color       string  `json:"color,omitempty"`
}

// StatsView reports how the card's activities were used.
type StatsView struct {
	Considered  int            `json:"considered"`
	Counted     int            `json:"counted"`
	Synthesized int            `json:"synthesized"`
	Skipped     map[string]int `json:"skipped,omitempty"`
}

// ActivityView is one logged activity in the drill-down list.
type ActivityView struct {
	ActivityID    string     `json:"activity_id"`
	UserID        string     `json:"user_id"`
	ActivityType  string     `json:"activity_type"`
	ActivityAt    *time.Time `json:"activity_at,omitempty"`
	Distance      float64    `json:"distance"`
	DistanceUnits string     `json:"distance_units"`
	Miles         string     `json:"miles"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func toBreakdownView(b domain.Breakdown) BreakdownView {
	view := BreakdownView{
		Title:  b.Title,
		Month:  b.Window.String(),
		Legend: b.Legend,
		Goals: GoalsView{
			MonthGoal: MonthGoalView{
				Discipline: string(b.Goals.MonthGoal.Discipline),
				Miles:      b.Goals.MonthGoal.Miles,
			},
			AllThree: AllThreeView{
				Swim: b.Goals.AllThree.Swim,
				Bike: b.Goals.AllThree.Bike,
				Run:  b.Goals.AllThree.Run,
			},
		},
		Rows: make([]RowView, 0, len(b.Rows)),
		Stats: StatsView{
			Considered:  b.Stats.Considered,
			Counted:     b.Stats.Counted,
			Synthesized: b.Stats.Synthesized,
		},
	}
	if len(b.Stats.Skipped) > 0 {
		view.Stats.Skipped = make(map[string]int, len(b.Stats.Skipped))
		for reason, n := range b.Stats.Skipped {
			view.Stats.Skipped[string(reason)] = n
		}
	}
	for _, row := range b.Rows {
		view.Rows = append(view.Rows, RowView{
			UserID:      row.UserID,
			DisplayName: row.DisplayName,
			Swim:        mileage.FormatMiles(row.SwimMiles),
			Bike:        mileage.FormatMiles(row.BikeMiles),
			Run:         mileage.FormatMiles(row.RunMiles),
			SwimMiles:   row.SwimMiles,
			BikeMiles:   row.BikeMiles,
			RunMiles:    row.RunMiles,
			Tier:        row.Tier.String(),
			Color:       row.Tier.Color(),
		})
	}
	return view
}

func toActivityView(a mileage.Activity) ActivityView {
	view := ActivityView{
		ActivityID:    a.ID,
		UserID:        a.OwnerID,
		ActivityType:  a.DisciplineType,
		Distance:      a.Distance,
		DistanceUnits: string(a.DistanceUnit),
		Miles:         mileage.FormatMiles(a.Miles()),
	}
	if at, ok := a.Timestamp.Instant(time.UTC); ok {
		at = at.UTC()
		view.ActivityAt = &at
	}
	return view
}
