package garmin

import (
	"sort"
	"time"
)

const (
	// statsDefaultWindowDays is the trailing window when none is requested.
	statsDefaultWindowDays = 30

	// weeklyActivityGoal is the fixed goal the progress percentage is
	// measured against.
	weeklyActivityGoal = 5
)

// TrendDirection classifies week-over-week activity volume.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Stats is the full aggregation result for a user's trailing window.
type Stats struct {
	WindowDays int                `json:"windowDays"`
	Summary    StatsSummary       `json:"summary"`
	Daily      []DailyRollup      `json:"daily"`
	ByType     []TypeRollup       `json:"byType"`
	Trend      Trend              `json:"trend"`
	WeeklyGoal WeeklyGoalProgress `json:"weeklyGoal"`
}

// StatsSummary totals the window's activities. AvgHeartRate averages only
// activities that report a heart rate.
type StatsSummary struct {
	TotalActivities      int     `json:"totalActivities"`
	TotalDurationSeconds int     `json:"totalDurationSeconds"`
	TotalDistanceMeters  float64 `json:"totalDistanceMeters"`
	TotalCalories        int     `json:"totalCalories"`
	TotalSteps           int     `json:"totalSteps"`
	AvgHeartRate         float64 `json:"avgHeartRate"`
}

// DailyRollup buckets activities by the calendar date of their start time.
type DailyRollup struct {
	Date            string  `json:"date"`
	Count           int     `json:"count"`
	DurationSeconds int     `json:"durationSeconds"`
	DistanceMeters  float64 `json:"distanceMeters"`
	Calories        int     `json:"calories"`
	Steps           int     `json:"steps"`
}

// TypeRollup aggregates per activity type.
type TypeRollup struct {
	Type            string  `json:"type"`
	Count           int     `json:"count"`
	DurationSeconds int     `json:"durationSeconds"`
	DistanceMeters  float64 `json:"distanceMeters"`
	Calories        int     `json:"calories"`
}

// Trend compares the most recent 7 days against the preceding 7.
type Trend struct {
	Direction               TrendDirection `json:"direction"`
	RecentCount             int            `json:"recentCount"`
	PreviousCount           int            `json:"previousCount"`
	RecentAvgDurationSecs   float64        `json:"recentAvgDurationSeconds"`
	PreviousAvgDurationSecs float64        `json:"previousAvgDurationSeconds"`
	NotEnoughData           bool           `json:"notEnoughData"`
}

// WeeklyGoalProgress measures the current week against the fixed goal.
type WeeklyGoalProgress struct {
	Goal      int     `json:"goal"`
	Completed int     `json:"completed"`
	Percent   float64 `json:"percent"`
}

// Aggregate summarizes a window of activities. It is deterministic for
// the same inputs: no I/O, no side effects.
func Aggregate(activities []*Activity, windowDays int, now time.Time) *Stats {
	stats := &Stats{
		WindowDays: windowDays,
		Daily:      []DailyRollup{},
		ByType:     []TypeRollup{},
	}

	var hrSum, hrCount int
	dailyIndex := make(map[string]*DailyRollup)
	typeIndex := make(map[string]*TypeRollup)

	for _, a := range activities {
		stats.Summary.TotalActivities++
		stats.Summary.TotalDurationSeconds += a.DurationSeconds
		stats.Summary.TotalDistanceMeters += a.DistanceMeters
		stats.Summary.TotalCalories += a.Calories
		stats.Summary.TotalSteps += a.Steps
		if a.AvgHeartRate != nil {
			hrSum += *a.AvgHeartRate
			hrCount++
		}

		date := a.StartTime.UTC().Format(time.DateOnly)
		day, ok := dailyIndex[date]
		if !ok {
			day = &DailyRollup{Date: date}
			dailyIndex[date] = day
		}
		day.Count++
		day.DurationSeconds += a.DurationSeconds
		day.DistanceMeters += a.DistanceMeters
		day.Calories += a.Calories
		day.Steps += a.Steps

		kind, ok := typeIndex[a.ActivityType]
		if !ok {
			kind = &TypeRollup{Type: a.ActivityType}
			typeIndex[a.ActivityType] = kind
		}
		kind.Count++
		kind.DurationSeconds += a.DurationSeconds
		kind.DistanceMeters += a.DistanceMeters
		kind.Calories += a.Calories
	}

	if hrCount > 0 {
		stats.Summary.AvgHeartRate = float64(hrSum) / float64(hrCount)
	}

	for _, day := range dailyIndex {
		stats.Daily = append(stats.Daily, *day)
	}
	sort.Slice(stats.Daily, func(i, j int) bool { return stats.Daily[i].Date < stats.Daily[j].Date })

	for _, kind := range typeIndex {
		stats.ByType = append(stats.ByType, *kind)
	}
	sort.Slice(stats.ByType, func(i, j int) bool { return stats.ByType[i].Type < stats.ByType[j].Type })

	stats.Trend = computeTrend(activities, now)
	stats.WeeklyGoal = computeWeeklyGoal(stats.Trend.RecentCount)

	return stats
}

// computeTrend compares the most recent 7 days against the 7 before them.
func computeTrend(activities []*Activity, now time.Time) Trend {
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	var recentCount, previousCount int
	var recentDuration, previousDuration int

	for _, a := range activities {
		switch {
		case !a.StartTime.Before(weekAgo):
			recentCount++
			recentDuration += a.DurationSeconds
		case !a.StartTime.Before(twoWeeksAgo):
			previousCount++
			previousDuration += a.DurationSeconds
		}
	}

	trend := Trend{
		Direction:     TrendStable,
		RecentCount:   recentCount,
		PreviousCount: previousCount,
	}
	if recentCount > 0 {
		trend.RecentAvgDurationSecs = float64(recentDuration) / float64(recentCount)
	}
	if previousCount > 0 {
		trend.PreviousAvgDurationSecs = float64(previousDuration) / float64(previousCount)
	}

	if recentCount == 0 && previousCount == 0 {
		trend.NotEnoughData = true
		return trend
	}

	switch {
	case recentCount > previousCount:
		trend.Direction = TrendIncreasing
	case recentCount < previousCount:
		trend.Direction = TrendDecreasing
	}
	return trend
}

// computeWeeklyGoal measures the current week's count against the fixed
// goal, capped at 100 percent.
func computeWeeklyGoal(completed int) WeeklyGoalProgress {
	percent := float64(completed) / float64(weeklyActivityGoal) * 100
	if percent > 100 {
		percent = 100
	}
	return WeeklyGoalProgress{
		Goal:      weeklyActivityGoal,
		Completed: completed,
		Percent:   percent,
	}
}
