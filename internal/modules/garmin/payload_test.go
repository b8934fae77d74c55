package garmin

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecognizedPayload(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    bool
	}{
		{"activities array", `{"activities": []}`, true},
		{"deregistrations array", `{"deregistrations": [{"userId": "g-1"}]}`, true},
		{"permissions change", `{"userPermissionsChange": []}`, true},
		{"ping fields", `{"userId": "g-1", "summaryId": "s-1"}`, true},
		{"dailies", `{"dailies": []}`, true},
		{"unknown keys", `{"something": 1, "else": 2}`, false},
		{"empty object", `{}`, false},
		{"array body", `[{"userId": "g-1"}]`, false},
		{"not json", `hello`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, recognizedPayload(json.RawMessage(tc.payload)))
		})
	}
}

func TestActivitySummaryRemoteID(t *testing.T) {
	assert.Equal(t, "sum-1", (&ActivitySummaryPayload{SummaryID: "sum-1", ActivityID: 42}).remoteID())
	assert.Equal(t, "42", (&ActivitySummaryPayload{ActivityID: 42}).remoteID())
	assert.Empty(t, (&ActivitySummaryPayload{}).remoteID())
}

func TestActivitySummaryToActivity(t *testing.T) {
	hr := 150
	p := &ActivitySummaryPayload{
		SummaryID:          "sum-1",
		ActivityType:       "RUNNING",
		StartTimeInSeconds: 1700000000,
		DurationInSeconds:  1800,
		DistanceInMeters:   5000,
		ActiveKilocalories: 400,
		AverageHeartRate:   &hr,
		Steps:              6000,
		Manual:             true,
	}

	raw := json.RawMessage(`{"summaryId":"sum-1"}`)
	activity, err := p.toActivity("user-1", "garmin-1", raw)
	require.NoError(t, err)

	assert.NotEmpty(t, activity.ID)
	assert.Equal(t, "user-1", activity.UserID)
	assert.Equal(t, "sum-1", activity.GarminActivityID)
	assert.Equal(t, "garmin-1", activity.GarminUserID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), activity.StartTime)
	require.NotNil(t, activity.EndTime)
	assert.Equal(t, activity.StartTime.Add(30*time.Minute), *activity.EndTime)
	assert.Equal(t, 1800, activity.DurationSeconds)
	assert.Equal(t, 5000.0, activity.DistanceMeters)
	assert.Equal(t, 400, activity.Calories)
	require.NotNil(t, activity.AvgHeartRate)
	assert.Equal(t, 150, *activity.AvgHeartRate)
	assert.True(t, activity.IsManual)
	assert.Equal(t, raw, activity.RawPayload)
}

func TestActivitySummaryToActivityNoDuration(t *testing.T) {
	p := &ActivitySummaryPayload{SummaryID: "sum-1", StartTimeInSeconds: 1700000000}

	activity, err := p.toActivity("user-1", "garmin-1", nil)
	require.NoError(t, err)
	assert.Nil(t, activity.EndTime)
}

func TestDailySummaryRepresentsActivity(t *testing.T) {
	assert.True(t, (&DailySummaryPayload{Steps: 1}).representsActivity())
	assert.True(t, (&DailySummaryPayload{ActiveKilocalories: 1}).representsActivity())
	assert.False(t, (&DailySummaryPayload{}).representsActivity())
}

func TestDailySummaryToActivity(t *testing.T) {
	d := &DailySummaryPayload{
		SummaryID:            "daily-1",
		StartTimeInSeconds:   1700000000,
		DurationInSeconds:    86400,
		Steps:                8000,
		ActiveKilocalories:   350,
		ModerateIntensitySec: 1200,
		VigorousIntensitySec: 600,
	}

	activity, err := d.toActivity("user-1", "garmin-1")
	require.NoError(t, err)

	assert.Equal(t, "daily-1", activity.GarminActivityID)
	assert.Equal(t, "DAILY_SUMMARY", activity.ActivityType, "missing type falls back to the daily marker")
	assert.Equal(t, 30, activity.IntensityMinutes)
	assert.Equal(t, 8000, activity.Steps)
	assert.NotEmpty(t, activity.RawPayload)
}

func TestDailySummaryToActivityKeepsExplicitType(t *testing.T) {
	d := &DailySummaryPayload{SummaryID: "daily-1", ActivityType: "WALKING", Steps: 100}

	activity, err := d.toActivity("user-1", "garmin-1")
	require.NoError(t, err)
	assert.Equal(t, "WALKING", activity.ActivityType)
}
