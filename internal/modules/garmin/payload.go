package garmin

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// recognizedPayloadKeys are the top-level fields that mark an inbound
// webhook body as a plausible Garmin push. Anything else is logged as
// invalid and acknowledged without processing.
var recognizedPayloadKeys = map[string]struct{}{
	"userId":          {},
	"userAccessToken": {},
	"summaryId":       {},
	"fileType":        {},
	"callbackURL":     {},
	// category-specific array fields
	"activities":                {},
	"activityDetails":           {},
	"activityFiles":             {},
	"manuallyUpdatedActivities": {},
	"moveIQActivities":          {},
	"deregistrations":           {},
	"userPermissionsChange":     {},
	"dailies":                   {},
	"epochs":                    {},
	"sleeps":                    {},
	"bodyComps":                 {},
	"stressDetails":             {},
	"userMetrics":               {},
	"pulseOx":                   {},
	"respiration":               {},
	"thirdPartyDailies":         {},
}

// recognizedPayload reports whether raw is a JSON object carrying at least
// one known Garmin webhook field.
func recognizedPayload(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	for key := range obj {
		if _, ok := recognizedPayloadKeys[key]; ok {
			return true
		}
	}
	return false
}

// webhookEnvelope is the union of the shapes Garmin pushes. Each delivery
// populates one of the category arrays (push style) or just the
// id/token/summary fields (ping style).
type webhookEnvelope struct {
	UserID          string `json:"userId"`
	UserAccessToken string `json:"userAccessToken"`
	SummaryID       string `json:"summaryId"`

	Activities        []activityEvent         `json:"activities"`
	ActivityDetails   []activityDetailEvent   `json:"activityDetails"`
	ActivityFiles     []activityFileEvent     `json:"activityFiles"`
	ManualActivities  []activityEvent         `json:"manuallyUpdatedActivities"`
	MoveIQActivities  []activityEvent         `json:"moveIQActivities"`
	Deregistrations   []userEvent             `json:"deregistrations"`
	PermissionChanges []permissionChangeEvent `json:"userPermissionsChange"`
}

// activityEvent is one entry of a push-delivered activity array: the
// summary fields inline, plus the owning user and (for ping deliveries)
// the token to fetch with.
type activityEvent struct {
	ActivitySummaryPayload
	UserID          string `json:"userId"`
	UserAccessToken string `json:"userAccessToken"`
	CallbackURL     string `json:"callbackURL"`
}

// activityDetailEvent nests the summary one level deeper; a ping delivery
// omits it and carries only summaryId + token.
type activityDetailEvent struct {
	UserID          string                  `json:"userId"`
	UserAccessToken string                  `json:"userAccessToken"`
	SummaryID       string                  `json:"summaryId"`
	CallbackURL     string                  `json:"callbackURL"`
	Summary         *ActivitySummaryPayload `json:"summary"`
}

type activityFileEvent struct {
	UserID          string `json:"userId"`
	UserAccessToken string `json:"userAccessToken"`
	SummaryID       string `json:"summaryId"`
	FileType        string `json:"fileType"`
	CallbackURL     string `json:"callbackURL"`
}

type userEvent struct {
	UserID string `json:"userId"`
}

type permissionChangeEvent struct {
	UserID      string   `json:"userId"`
	Permissions []string `json:"permissions"`
}

// ActivitySummaryPayload is the upstream activity-summary shape shared by
// push deliveries and the activity-details fetch path.
type ActivitySummaryPayload struct {
	SummaryID            string   `json:"summaryId"`
	ActivityID           int64    `json:"activityId"`
	ActivityName         string   `json:"activityName"`
	ActivityType         string   `json:"activityType"`
	StartTimeInSeconds   int64    `json:"startTimeInSeconds"`
	DurationInSeconds    int      `json:"durationInSeconds"`
	DistanceInMeters     float64  `json:"distanceInMeters"`
	ActiveKilocalories   int      `json:"activeKilocalories"`
	AverageHeartRate     *int     `json:"averageHeartRateInBeatsPerMinute"`
	MaxHeartRate         *int     `json:"maxHeartRateInBeatsPerMinute"`
	MinHeartRate         *int     `json:"minHeartRateInBeatsPerMinute"`
	Steps                int      `json:"steps"`
	FloorsClimbed        int      `json:"floorsClimbed"`
	Manual               bool     `json:"manual"`
}

// remoteID returns the globally unique activity id for upsert keying:
// the summary id when present, otherwise the numeric activity id.
func (p *ActivitySummaryPayload) remoteID() string {
	if p.SummaryID != "" {
		return p.SummaryID
	}
	if p.ActivityID != 0 {
		return strconv.FormatInt(p.ActivityID, 10)
	}
	return ""
}

// toActivity normalizes the upstream summary into the internal Activity
// representation, isolating the rest of the system from schema drift.
func (p *ActivitySummaryPayload) toActivity(userID, garminUserID string, raw json.RawMessage) (*Activity, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	start := time.Unix(p.StartTimeInSeconds, 0).UTC()
	var end *time.Time
	if p.DurationInSeconds > 0 {
		e := start.Add(time.Duration(p.DurationInSeconds) * time.Second)
		end = &e
	}

	return &Activity{
		ID:               id.String(),
		UserID:           userID,
		GarminActivityID: p.remoteID(),
		GarminUserID:     garminUserID,
		ActivityType:     p.ActivityType,
		StartTime:        start,
		EndTime:          end,
		DurationSeconds:  p.DurationInSeconds,
		DistanceMeters:   p.DistanceInMeters,
		Calories:         p.ActiveKilocalories,
		AvgHeartRate:     p.AverageHeartRate,
		MaxHeartRate:     p.MaxHeartRate,
		MinHeartRate:     p.MinHeartRate,
		Steps:            p.Steps,
		FloorsClimbed:    p.FloorsClimbed,
		IsManual:         p.Manual,
		RawPayload:       raw,
	}, nil
}

// DailySummaryPayload is the upstream daily-summary shape returned by the
// dailies endpoint during a sync backfill.
type DailySummaryPayload struct {
	SummaryID            string  `json:"summaryId"`
	CalendarDate         string  `json:"calendarDate"`
	ActivityType         string  `json:"activityType"`
	StartTimeInSeconds   int64   `json:"startTimeInSeconds"`
	DurationInSeconds    int     `json:"durationInSeconds"`
	Steps                int     `json:"steps"`
	DistanceInMeters     float64 `json:"distanceInMeters"`
	ActiveKilocalories   int     `json:"activeKilocalories"`
	FloorsClimbed        int     `json:"floorsClimbed"`
	AverageHeartRate     *int    `json:"averageHeartRateInBeatsPerMinute"`
	MaxHeartRate         *int    `json:"maxHeartRateInBeatsPerMinute"`
	MinHeartRate         *int    `json:"minHeartRateInBeatsPerMinute"`
	ModerateIntensitySec int     `json:"moderateIntensityDurationInSeconds"`
	VigorousIntensitySec int     `json:"vigorousIntensityDurationInSeconds"`
}

// representsActivity filters dailies down to days with actual movement.
func (d *DailySummaryPayload) representsActivity() bool {
	return d.Steps > 0 || d.ActiveKilocalories > 0
}

// toActivity normalizes a daily summary into the internal Activity shape.
func (d *DailySummaryPayload) toActivity(userID, garminUserID string) (*Activity, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	activityType := d.ActivityType
	if activityType == "" {
		activityType = "DAILY_SUMMARY"
	}

	start := time.Unix(d.StartTimeInSeconds, 0).UTC()
	var end *time.Time
	if d.DurationInSeconds > 0 {
		e := start.Add(time.Duration(d.DurationInSeconds) * time.Second)
		end = &e
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	return &Activity{
		ID:               id.String(),
		UserID:           userID,
		GarminActivityID: d.SummaryID,
		GarminUserID:     garminUserID,
		ActivityType:     activityType,
		StartTime:        start,
		EndTime:          end,
		DurationSeconds:  d.DurationInSeconds,
		DistanceMeters:   d.DistanceInMeters,
		Calories:         d.ActiveKilocalories,
		AvgHeartRate:     d.AverageHeartRate,
		MaxHeartRate:     d.MaxHeartRate,
		MinHeartRate:     d.MinHeartRate,
		Steps:            d.Steps,
		FloorsClimbed:    d.FloorsClimbed,
		IntensityMinutes: (d.ModerateIntensitySec + d.VigorousIntensitySec) / 60,
		RawPayload:       raw,
	}, nil
}
