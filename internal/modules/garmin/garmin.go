package garmin

import (
	"encoding/json"
	"time"
)

// Connection represents a live link between a local user and a Garmin
// account. At most one Connection exists per local user; re-authorization
// updates the row in place.
type Connection struct {
	ID             string     `db:"id"`
	UserID         string     `db:"user_id"`
	GarminUserID   string     `db:"garmin_user_id"`
	AccessToken    string     `db:"access_token"`
	RefreshToken   string     `db:"refresh_token"`
	TokenExpiresAt time.Time  `db:"token_expires_at"`
	Scopes         []string   `db:"scopes"`
	NeedsReauth    bool       `db:"needs_reauth"`
	LastSyncedAt   *time.Time `db:"last_synced_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// TokenValid reports whether the stored access token can still be used:
// not flagged for re-auth and not past its (safety-adjusted) expiry.
func (c *Connection) TokenValid() bool {
	return !c.NeedsReauth && time.Now().Before(c.TokenExpiresAt)
}

// AuthStateStatus is the lifecycle state of an authorization attempt.
type AuthStateStatus string

const (
	AuthStatePending AuthStateStatus = "pending"
	AuthStateSuccess AuthStateStatus = "success"
	AuthStateFailed  AuthStateStatus = "failed"
)

// AuthorizationState is an ephemeral record correlating a CSRF state token
// with its PKCE code verifier and the initiating local user. It is
// consumed exactly once during callback handling and expires after
// authStateTTL.
type AuthorizationState struct {
	State        string          `db:"state"`
	CodeVerifier string          `db:"code_verifier"`
	UserID       string          `db:"user_id"`
	Status       AuthStateStatus `db:"status"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// WebhookEventType identifies one of the Garmin push notification
// categories.
type WebhookEventType string

const (
	EventActivities       WebhookEventType = "activities"
	EventActivityDetails  WebhookEventType = "activity-details"
	EventActivityFiles    WebhookEventType = "activity-files"
	EventManualActivities WebhookEventType = "manual-activities"
	EventMoveIQ           WebhookEventType = "moveiq"
	EventDeregistrations  WebhookEventType = "deregistrations"
	EventPermissions      WebhookEventType = "permissions"
)

// WebhookEventTypes lists every recognized inbound category.
var WebhookEventTypes = []WebhookEventType{
	EventActivities,
	EventActivityDetails,
	EventActivityFiles,
	EventManualActivities,
	EventMoveIQ,
	EventDeregistrations,
	EventPermissions,
}

// WebhookStatus is the processing state of a webhook log row.
// Transitions are monotonic forward (pending → processing → success|failed)
// except failed → processing on an administrative retry.
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "pending"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusSuccess    WebhookStatus = "success"
	WebhookStatusFailed     WebhookStatus = "failed"
	WebhookStatusInvalid    WebhookStatus = "invalid"
)

// maxWebhookRetries bounds administrative reprocessing of failed logs.
const maxWebhookRetries = 3

// WebhookLog records a single inbound webhook delivery and its processing
// outcome. Rows are append-only except for status transitions owned by
// the processor.
type WebhookLog struct {
	ID           string           `db:"id"`
	EventType    WebhookEventType `db:"event_type"`
	Payload      json.RawMessage  `db:"payload"`
	GarminUserID string           `db:"garmin_user_id"`
	SummaryID    string           `db:"summary_id"`
	Status       WebhookStatus    `db:"status"`
	ErrorMessage *string          `db:"error_message"`
	RetryCount   int              `db:"retry_count"`
	ProcessedAt  *time.Time       `db:"processed_at"`
	CreatedAt    time.Time        `db:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at"`
}

// Activity is one remote activity or daily summary, keyed globally by
// GarminActivityID. Re-delivery of the same id updates the row.
type Activity struct {
	ID               string          `db:"id"`
	UserID           string          `db:"user_id"`
	GarminActivityID string          `db:"garmin_activity_id"`
	GarminUserID     string          `db:"garmin_user_id"`
	ActivityType     string          `db:"activity_type"`
	StartTime        time.Time       `db:"start_time"`
	EndTime          *time.Time      `db:"end_time"`
	DurationSeconds  int             `db:"duration_seconds"`
	DistanceMeters   float64         `db:"distance_meters"`
	Calories         int             `db:"calories"`
	AvgHeartRate     *int            `db:"avg_heart_rate"`
	MaxHeartRate     *int            `db:"max_heart_rate"`
	MinHeartRate     *int            `db:"min_heart_rate"`
	Steps            int             `db:"steps"`
	FloorsClimbed    int             `db:"floors_climbed"`
	IntensityMinutes int             `db:"intensity_minutes"`
	IsManual         bool            `db:"is_manual"`
	IsAutoDetected   bool            `db:"is_auto_detected"`
	RawPayload       json.RawMessage `db:"raw_payload"`
	SyncedAt         time.Time       `db:"synced_at"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// SyncStatus is the terminal status reported by a sync request.
type SyncStatus string

const (
	SyncStatusFresh      SyncStatus = "fresh"
	SyncStatusInitiated  SyncStatus = "sync_initiated"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusSuccess    SyncStatus = "success"
	SyncStatusNoData     SyncStatus = "no_data"
	SyncStatusError      SyncStatus = "error"
)

// SyncResult summarizes a completed (or refused) sync cycle. Synced is
// the number of activities written; Total is the number of daily
// summaries the upstream returned for the window, including rest days.
type SyncResult struct {
	Status SyncStatus `json:"status"`
	Synced int        `json:"synced"`
	Total  int        `json:"total"`
}
