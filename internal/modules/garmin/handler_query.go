package garmin

import (
	"context"
	"time"

	"github.com/pulsefit/backend/internal/httpx"
	"github.com/pulsefit/backend/internal/validation"
)

// --- DTOs ---

type ConnectionStatusResponse struct {
	Body ConnectionStatus
}

type DisconnectResponse struct {
	Body struct {
		Message string `json:"message"`
	}
}

// ActivitiesRequest filters and paginates the activity listing. Date
// bounds are inclusive calendar dates compared against the activity start
// time.
type ActivitiesRequest struct {
	StartDate string `query:"start_date" validate:"omitempty,datetime=2006-01-02" json:"start_date"`
	EndDate   string `query:"end_date" validate:"omitempty,datetime=2006-01-02" json:"end_date"`
	Type      string `query:"type" json:"type"`
	Page      int    `query:"page" validate:"omitempty,min=1" json:"page"`
	PerPage   int    `query:"per_page" validate:"omitempty,min=1,max=100" json:"per_page"`
}

// ActivityItem is the JSON projection of one stored activity.
type ActivityItem struct {
	ID               string     `json:"id"`
	GarminActivityID string     `json:"garminActivityId"`
	Type             string     `json:"type"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	DurationSeconds  int        `json:"durationSeconds"`
	DistanceMeters   float64    `json:"distanceMeters"`
	Calories         int        `json:"calories"`
	AvgHeartRate     *int       `json:"avgHeartRate,omitempty"`
	MaxHeartRate     *int       `json:"maxHeartRate,omitempty"`
	MinHeartRate     *int       `json:"minHeartRate,omitempty"`
	Steps            int        `json:"steps"`
	FloorsClimbed    int        `json:"floorsClimbed"`
	IntensityMinutes int        `json:"intensityMinutes"`
	IsManual         bool       `json:"isManual"`
	IsAutoDetected   bool       `json:"isAutoDetected"`
}

type ActivitiesResponse struct {
	Body struct {
		Activities []ActivityItem `json:"activities"`
		Total      int            `json:"total"`
		Page       int            `json:"page"`
		PerPage    int            `json:"perPage"`
	}
}

type SyncRequest struct {
	Force bool `query:"force" json:"force"`
}

type SyncResponse struct {
	Body SyncResult
}

type StatsRequest struct {
	Days int `query:"days" validate:"omitempty,min=1,max=365" json:"days"`
}

type StatsResponse struct {
	Body Stats
}

type PermissionsResponse struct {
	Body struct {
		Permissions []string `json:"permissions"`
	}
}

// --- Handlers ---

// ConnectionStatusHandler reports whether the user has a live Garmin link.
func (h *Handler) ConnectionStatusHandler(ctx context.Context, _ *struct{}) (*ConnectionStatusResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	status, err := h.service.ConnectionStatus(ctx, userID)
	if err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	return &ConnectionStatusResponse{Body: *status}, nil
}

// DisconnectHandler unlinks the integration and purges the user's data.
func (h *Handler) DisconnectHandler(ctx context.Context, _ *struct{}) (*DisconnectResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.service.Disconnect(ctx, userID); err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	resp := &DisconnectResponse{}
	resp.Body.Message = "Garmin connection removed."
	return resp, nil
}

// ActivitiesHandler lists stored activities newest-first with inclusive
// date-range and type filters.
func (h *Handler) ActivitiesHandler(ctx context.Context, input *ActivitiesRequest) (*ActivitiesResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(input); err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	page := input.Page
	if page < 1 {
		page = 1
	}
	perPage := input.PerPage
	if perPage < 1 {
		perPage = 20
	}

	filter := ActivityFilter{
		Type:   input.Type,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if input.StartDate != "" {
		start, _ := time.Parse(time.DateOnly, input.StartDate)
		filter.StartDate = &start
	}
	if input.EndDate != "" {
		// The bound is inclusive: extend the parsed date to the end of day.
		end, _ := time.Parse(time.DateOnly, input.EndDate)
		end = end.Add(24*time.Hour - time.Nanosecond)
		filter.EndDate = &end
	}

	activities, total, err := h.service.ListActivities(ctx, userID, filter)
	if err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	resp := &ActivitiesResponse{}
	resp.Body.Activities = make([]ActivityItem, 0, len(activities))
	for _, a := range activities {
		resp.Body.Activities = append(resp.Body.Activities, ActivityItem{
			ID:               a.ID,
			GarminActivityID: a.GarminActivityID,
			Type:             a.ActivityType,
			StartTime:        a.StartTime,
			EndTime:          a.EndTime,
			DurationSeconds:  a.DurationSeconds,
			DistanceMeters:   a.DistanceMeters,
			Calories:         a.Calories,
			AvgHeartRate:     a.AvgHeartRate,
			MaxHeartRate:     a.MaxHeartRate,
			MinHeartRate:     a.MinHeartRate,
			Steps:            a.Steps,
			FloorsClimbed:    a.FloorsClimbed,
			IntensityMinutes: a.IntensityMinutes,
			IsManual:         a.IsManual,
			IsAutoDetected:   a.IsAutoDetected,
		})
	}
	resp.Body.Total = total
	resp.Body.Page = page
	resp.Body.PerPage = perPage
	return resp, nil
}

// SyncHandler triggers a freshness check and possibly a background sync.
func (h *Handler) SyncHandler(ctx context.Context, input *SyncRequest) (*SyncResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	result, err := h.service.SyncIfNeeded(ctx, userID, input.Force)
	if err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	return &SyncResponse{Body: *result}, nil
}

// StatsHandler aggregates the trailing activity window.
func (h *Handler) StatsHandler(ctx context.Context, input *StatsRequest) (*StatsResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(input); err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	stats, err := h.service.Statistics(ctx, userID, input.Days)
	if err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	return &StatsResponse{Body: *stats}, nil
}

// PermissionsHandler lists granted scopes, cache-first.
func (h *Handler) PermissionsHandler(ctx context.Context, _ *struct{}) (*PermissionsResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	permissions, err := h.service.Permissions(ctx, userID)
	if err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	resp := &PermissionsResponse{}
	resp.Body.Permissions = permissions
	return resp, nil
}
