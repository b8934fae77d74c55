package garmin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil, 30, time.Now())

	assert.Equal(t, 30, stats.WindowDays)
	assert.Zero(t, stats.Summary.TotalActivities)
	assert.Zero(t, stats.Summary.AvgHeartRate)
	assert.Empty(t, stats.Daily)
	assert.Empty(t, stats.ByType)
	assert.Equal(t, TrendStable, stats.Trend.Direction)
	assert.True(t, stats.Trend.NotEnoughData)
	assert.Equal(t, weeklyActivityGoal, stats.WeeklyGoal.Goal)
	assert.Zero(t, stats.WeeklyGoal.Completed)
	assert.Zero(t, stats.WeeklyGoal.Percent)
}

func TestAggregateTotalsAndBuckets(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	day1 := time.Date(2026, 8, 29, 7, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 30, 18, 30, 0, 0, time.UTC)

	activities := []*Activity{
		{ActivityType: "RUNNING", StartTime: day1, DurationSeconds: 1800, DistanceMeters: 5000, Calories: 400, Steps: 6000, AvgHeartRate: intPtr(150)},
		{ActivityType: "RUNNING", StartTime: day1.Add(6 * time.Hour), DurationSeconds: 1200, DistanceMeters: 3000, Calories: 250, Steps: 4000, AvgHeartRate: intPtr(140)},
		{ActivityType: "CYCLING", StartTime: day2, DurationSeconds: 3600, DistanceMeters: 20000, Calories: 600, Steps: 0},
	}

	stats := Aggregate(activities, 7, now)

	assert.Equal(t, 3, stats.Summary.TotalActivities)
	assert.Equal(t, 6600, stats.Summary.TotalDurationSeconds)
	assert.Equal(t, 28000.0, stats.Summary.TotalDistanceMeters)
	assert.Equal(t, 1250, stats.Summary.TotalCalories)
	assert.Equal(t, 10000, stats.Summary.TotalSteps)
	// Only the two activities that report a heart rate contribute.
	assert.InDelta(t, 145.0, stats.Summary.AvgHeartRate, 0.001)

	require.Len(t, stats.Daily, 2)
	assert.Equal(t, "2026-08-29", stats.Daily[0].Date)
	assert.Equal(t, 2, stats.Daily[0].Count)
	assert.Equal(t, 3000, stats.Daily[0].DurationSeconds)
	assert.Equal(t, "2026-08-30", stats.Daily[1].Date)
	assert.Equal(t, 1, stats.Daily[1].Count)

	require.Len(t, stats.ByType, 2)
	assert.Equal(t, "CYCLING", stats.ByType[0].Type)
	assert.Equal(t, 1, stats.ByType[0].Count)
	assert.Equal(t, "RUNNING", stats.ByType[1].Type)
	assert.Equal(t, 2, stats.ByType[1].Count)
}

func TestAggregateTrendIncreasing(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	activities := []*Activity{
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -1), DurationSeconds: 600},
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -2), DurationSeconds: 1200},
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -3), DurationSeconds: 1800},
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -10), DurationSeconds: 900},
	}

	stats := Aggregate(activities, 30, now)

	assert.Equal(t, TrendIncreasing, stats.Trend.Direction)
	assert.Equal(t, 3, stats.Trend.RecentCount)
	assert.Equal(t, 1, stats.Trend.PreviousCount)
	assert.InDelta(t, 1200.0, stats.Trend.RecentAvgDurationSecs, 0.001)
	assert.InDelta(t, 900.0, stats.Trend.PreviousAvgDurationSecs, 0.001)
	assert.False(t, stats.Trend.NotEnoughData)
}

func TestAggregateTrendDecreasing(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	activities := []*Activity{
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -1), DurationSeconds: 600},
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -8), DurationSeconds: 600},
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -9), DurationSeconds: 600},
	}

	stats := Aggregate(activities, 30, now)
	assert.Equal(t, TrendDecreasing, stats.Trend.Direction)
}

func TestAggregateTrendStableWithActivity(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	activities := []*Activity{
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -1), DurationSeconds: 600},
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -8), DurationSeconds: 600},
	}

	stats := Aggregate(activities, 30, now)
	assert.Equal(t, TrendStable, stats.Trend.Direction)
	assert.False(t, stats.Trend.NotEnoughData)
}

func TestAggregateWeeklyGoal(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	two := []*Activity{
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -1)},
		{ActivityType: "RUNNING", StartTime: now.AddDate(0, 0, -2)},
	}
	stats := Aggregate(two, 30, now)
	assert.Equal(t, 2, stats.WeeklyGoal.Completed)
	assert.InDelta(t, 40.0, stats.WeeklyGoal.Percent, 0.001)

	var many []*Activity
	for i := 0; i < 8; i++ {
		many = append(many, &Activity{ActivityType: "RUNNING", StartTime: now.Add(-time.Duration(i) * time.Hour)})
	}
	stats = Aggregate(many, 30, now)
	assert.Equal(t, 8, stats.WeeklyGoal.Completed)
	assert.InDelta(t, 100.0, stats.WeeklyGoal.Percent, 0.001, "progress is capped at 100 percent")
}
