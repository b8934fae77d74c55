package garmin

import (
	"context"
	"testing"
	"time"

	"github.com/pulsefit/backend/internal/contextx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authedContext(userID string) context.Context {
	return context.WithValue(context.Background(), contextx.UserIDKey, userID)
}

func TestActivitiesHandlerInclusiveDateRange(t *testing.T) {
	repo := newFakeRepo()
	seed := func(id string, start time.Time) {
		require.NoError(t, repo.UpsertActivity(context.Background(), &Activity{
			ID: id, UserID: "user-1", GarminActivityID: id,
			ActivityType: "RUNNING", StartTime: start,
		}))
	}
	// On the start date at midnight, late on the end date, and one on
	// either side of the range.
	seed("on-start", time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC))
	seed("on-end", time.Date(2026, 8, 12, 23, 59, 59, 0, time.UTC))
	seed("before", time.Date(2026, 8, 9, 23, 59, 59, 0, time.UTC))
	seed("after", time.Date(2026, 8, 13, 0, 0, 0, 0, time.UTC))

	h := newTestHandler(repo, &fakeClient{})

	resp, err := h.ActivitiesHandler(authedContext("user-1"), &ActivitiesRequest{
		StartDate: "2026-08-10",
		EndDate:   "2026-08-12",
	})
	require.NoError(t, err)

	require.Len(t, resp.Body.Activities, 2)
	assert.Equal(t, 2, resp.Body.Total)
	// Newest first, both boundary days included.
	assert.Equal(t, "on-end", resp.Body.Activities[0].GarminActivityID)
	assert.Equal(t, "on-start", resp.Body.Activities[1].GarminActivityID)
}

func TestActivitiesHandlerRejectsBadDate(t *testing.T) {
	h := newTestHandler(newFakeRepo(), &fakeClient{})

	_, err := h.ActivitiesHandler(authedContext("user-1"), &ActivitiesRequest{
		StartDate: "10-08-2026",
	})
	require.Error(t, err)
}
