package garmin

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pulsefit/backend/internal/database"
)

// ActivityFilter narrows activity listings. Date bounds are inclusive and
// compared against start_time.
type ActivityFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Type      string
	Limit     int
	Offset    int
}

// Repository defines the interface for database operations for the garmin
// module. This abstraction allows the service layer to be independent of
// the database implementation.
type Repository interface {
	// Authorization states
	InsertAuthState(ctx context.Context, state *AuthorizationState) error
	GetAuthState(ctx context.Context, state string) (*AuthorizationState, error)
	UpdateAuthStateStatus(ctx context.Context, state string, status AuthStateStatus) error
	DeleteExpiredAuthStates(ctx context.Context, before time.Time) error

	// Connections
	UpsertConnection(ctx context.Context, conn *Connection) error
	FindConnectionByUserID(ctx context.Context, userID string) (*Connection, error)
	FindConnectionByGarminUserID(ctx context.Context, garminUserID string) (*Connection, error)
	UpdateConnectionTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
	MarkNeedsReauthByUserID(ctx context.Context, userID string) error
	MarkNeedsReauthByGarminUserID(ctx context.Context, garminUserID string) error
	TouchLastSynced(ctx context.Context, userID string, at time.Time) error
	DeleteConnectionByUserID(ctx context.Context, userID string) error
	DeleteConnectionByGarminUserID(ctx context.Context, garminUserID string) error

	// Webhook logs
	InsertWebhookLog(ctx context.Context, log *WebhookLog) error
	GetWebhookLog(ctx context.Context, id string) (*WebhookLog, error)
	MarkWebhookProcessing(ctx context.Context, id string) error
	MarkWebhookSuccess(ctx context.Context, id string, processedAt time.Time) error
	MarkWebhookFailed(ctx context.Context, id string, errorMessage string) error
	ListRetryableWebhookLogs(ctx context.Context, maxRetries int) ([]*WebhookLog, error)
	CountWebhookLogsByStatus(ctx context.Context, since time.Time) (map[WebhookStatus]int, error)
	ListRecentWebhookLogs(ctx context.Context, limit int) ([]*WebhookLog, error)
	ListFailedWebhookLogs(ctx context.Context, limit int) ([]*WebhookLog, error)
	DeleteWebhookLogsByGarminUserID(ctx context.Context, garminUserID, exceptLogID string) error

	// Activities
	UpsertActivity(ctx context.Context, activity *Activity) error
	LatestActivitySyncedAt(ctx context.Context, userID string) (*time.Time, error)
	ListActivities(ctx context.Context, userID string, filter ActivityFilter) ([]*Activity, error)
	CountActivities(ctx context.Context, userID string, filter ActivityFilter) (int, error)
	ListActivitiesSince(ctx context.Context, userID string, since time.Time) ([]*Activity, error)
	DeleteActivitiesByUserID(ctx context.Context, userID string) error
}

// repository implements the Repository interface using pgx and squirrel.
type repository struct {
	db   database.DBTX
	psql squirrel.StatementBuilderType
}

// NewRepository creates a new garmin repository with the given database connection.
func NewRepository(db database.DBTX) Repository {
	return &repository{
		db:   db,
		psql: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}
