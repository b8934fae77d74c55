package garmin

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pulsefit/backend/internal/config"
	"github.com/pulsefit/backend/internal/synclock"
	"github.com/redis/go-redis/v9"
)

// ConnectionStatus is the read-model returned by the connection endpoint.
type ConnectionStatus struct {
	Connected    bool       `json:"connected"`
	NeedsReauth  bool       `json:"needsReauth"`
	GarminUserID string     `json:"garminUserId,omitempty"`
	Scopes       []string   `json:"scopes,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

// RetryOutcome reports the result of reprocessing one failed webhook log.
type RetryOutcome struct {
	LogID  string `json:"logId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StatusReport aggregates webhook outcomes for the admin status endpoint.
type StatusReport struct {
	Counts      map[WebhookStatus]int `json:"counts"`
	RecentLogs  []*WebhookLog         `json:"recentLogs"`
	FailedLogs  []*WebhookLog         `json:"failedLogs"`
	WindowHours int                   `json:"windowHours"`
}

// Service defines the interface for the garmin module's business logic.
// It orchestrates the flow of data between the handlers, the repository,
// and the upstream Garmin API.
type Service interface {
	// Authorization flow
	BeginAuthorization(ctx context.Context, userID string) (redirectURL string, err error)
	ResolveAuthorization(ctx context.Context, state string) (*AuthorizationState, error)
	CompleteAuthorization(ctx context.Context, state, code string) error

	// Connection
	ConnectionStatus(ctx context.Context, userID string) (*ConnectionStatus, error)
	Disconnect(ctx context.Context, userID string) error
	Permissions(ctx context.Context, userID string) ([]string, error)

	// Webhook ingestion
	IngestWebhook(ctx context.Context, eventType WebhookEventType, payload json.RawMessage) error

	// Sync/cache reconciliation
	ValidateConnection(ctx context.Context, userID string) (*Connection, error)
	IsStale(ctx context.Context, userID string) (bool, error)
	SyncIfNeeded(ctx context.Context, userID string, force bool) (*SyncResult, error)
	SyncActivities(ctx context.Context, userID, accessToken string, start, end time.Time) (*SyncResult, error)

	// Queries
	ListActivities(ctx context.Context, userID string, filter ActivityFilter) ([]*Activity, int, error)
	Statistics(ctx context.Context, userID string, days int) (*Stats, error)

	// Administration
	RetryFailedWebhooks(ctx context.Context) ([]RetryOutcome, error)
	WebhookStatusReport(ctx context.Context) (*StatusReport, error)
}

// service implements the Service interface.
type service struct {
	repo      Repository
	client    Client
	processor *Processor
	locker    synclock.Locker
	cache     redis.Cmdable
	logger    *slog.Logger
	config    *config.Config

	// now is swappable so tests can drive expiry windows with a fake clock.
	now func() time.Time
}

// Config holds the dependencies for the garmin service.
type Config struct {
	Repo   Repository
	Client Client
	Locker synclock.Locker
	Cache  redis.Cmdable
	Logger *slog.Logger
	Config *config.Config
}

// NewService creates a new garmin service with the given dependencies.
func NewService(cfg *Config) Service {
	return &service{
		repo:      cfg.Repo,
		client:    cfg.Client,
		processor: NewProcessor(cfg.Repo, cfg.Client, cfg.Logger),
		locker:    cfg.Locker,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		config:    cfg.Config,
		now:       time.Now,
	}
}
