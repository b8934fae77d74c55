package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// permissionsCacheTTL bounds how long cached permission lookups are served
// before falling back to a live upstream fetch.
const permissionsCacheTTL = 10 * time.Minute

func permissionsCacheKey(userID string) string {
	return "garmin:permissions:" + userID
}

// ConnectionStatus returns the read-model for the connection endpoint. An
// unconnected user gets a zero status, not an error.
func (s *service) ConnectionStatus(ctx context.Context, userID string) (*ConnectionStatus, error) {
	conn, err := s.repo.FindConnectionByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return &ConnectionStatus{Connected: false}, nil
		}
		return nil, err
	}

	return &ConnectionStatus{
		Connected:    true,
		NeedsReauth:  conn.NeedsReauth,
		GarminUserID: conn.GarminUserID,
		Scopes:       conn.Scopes,
		LastSyncedAt: conn.LastSyncedAt,
	}, nil
}

// Disconnect unlinks the integration locally: the connection, the user's
// activities, and their webhook logs are all removed.
func (s *service) Disconnect(ctx context.Context, userID string) error {
	conn, err := s.repo.FindConnectionByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteActivitiesByUserID(ctx, userID); err != nil {
		return ErrInternal.WithCause(err)
	}
	if err := s.repo.DeleteWebhookLogsByGarminUserID(ctx, conn.GarminUserID, ""); err != nil {
		return ErrInternal.WithCause(err)
	}
	if err := s.repo.DeleteConnectionByUserID(ctx, userID); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, permissionsCacheKey(userID)).Err(); err != nil {
			s.logger.Warn("failed to drop cached permissions", "user_id", userID, "error", err)
		}
	}

	s.logger.Info("garmin connection removed", "user_id", userID, "garmin_user_id", conn.GarminUserID)
	return nil
}

// Permissions returns the user's granted scopes, served from the cache
// and falling back to a live upstream fetch that is then cached.
func (s *service) Permissions(ctx context.Context, userID string) ([]string, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, permissionsCacheKey(userID)).Result()
		if err == nil {
			var scopes []string
			if err := json.Unmarshal([]byte(cached), &scopes); err == nil {
				return scopes, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("permissions cache read failed", "user_id", userID, "error", err)
		}
	}

	conn, err := s.ValidateConnection(ctx, userID)
	if err != nil {
		return nil, err
	}

	scopes, err := s.client.FetchPermissions(ctx, conn.AccessToken)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(scopes); err == nil {
			if err := s.cache.Set(ctx, permissionsCacheKey(userID), encoded, permissionsCacheTTL).Err(); err != nil {
				s.logger.Warn("permissions cache write failed", "user_id", userID, "error", err)
			}
		}
	}

	return scopes, nil
}

// ListActivities returns a page of the user's activities (newest first)
// plus the total matching count for pagination.
func (s *service) ListActivities(ctx context.Context, userID string, filter ActivityFilter) ([]*Activity, int, error) {
	activities, err := s.repo.ListActivities(ctx, userID, filter)
	if err != nil {
		return nil, 0, ErrInternal.WithCause(err)
	}

	total, err := s.repo.CountActivities(ctx, userID, filter)
	if err != nil {
		return nil, 0, ErrInternal.WithCause(err)
	}

	return activities, total, nil
}

// Statistics aggregates the trailing N-day activity window.
func (s *service) Statistics(ctx context.Context, userID string, days int) (*Stats, error) {
	if days <= 0 {
		days = statsDefaultWindowDays
	}

	since := s.now().AddDate(0, 0, -days)
	activities, err := s.repo.ListActivitiesSince(ctx, userID, since)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	return Aggregate(activities, days, s.now()), nil
}

// RetryFailedWebhooks reprocesses every failed log still under the retry
// budget. Each log fails or succeeds independently.
func (s *service) RetryFailedWebhooks(ctx context.Context) ([]RetryOutcome, error) {
	logs, err := s.repo.ListRetryableWebhookLogs(ctx, maxWebhookRetries)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	outcomes := make([]RetryOutcome, 0, len(logs))
	for _, entry := range logs {
		outcome := RetryOutcome{LogID: entry.ID, Status: string(WebhookStatusSuccess)}
		if err := s.processor.Reprocess(ctx, entry.ID); err != nil {
			outcome.Status = string(WebhookStatusFailed)
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}

	s.logger.Info("webhook retry pass complete", "candidates", len(logs))
	return outcomes, nil
}

// WebhookStatusReport aggregates outcomes over the trailing 24 hours plus
// recent and failed log samples for diagnosis.
func (s *service) WebhookStatusReport(ctx context.Context) (*StatusReport, error) {
	const windowHours = 24
	const sampleSize = 20

	counts, err := s.repo.CountWebhookLogsByStatus(ctx, s.now().Add(-windowHours*time.Hour))
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	recent, err := s.repo.ListRecentWebhookLogs(ctx, sampleSize)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	failed, err := s.repo.ListFailedWebhookLogs(ctx, sampleSize)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	return &StatusReport{
		Counts:      counts,
		RecentLogs:  recent,
		FailedLogs:  failed,
		WindowHours: windowHours,
	}, nil
}
