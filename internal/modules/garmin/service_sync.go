package garmin

import (
	"context"
	"errors"
	"time"
)

const (
	// activityCacheTTL is how long locally stored activity data is
	// considered fresh.
	activityCacheTTL = 10 * time.Minute

	// syncLockTTL bounds the duplicate-sync guard: even if a sync never
	// releases its lock, re-entry opens after this window.
	syncLockTTL = 30 * time.Second

	// syncBackfillDays is the default trailing window for a backfill.
	syncBackfillDays = 30

	syncMaxAttempts   = 3
	syncAttemptPause  = time.Second
	syncBatchSize     = 10
	syncBatchInterval = 100 * time.Millisecond
)

func syncLockKey(userID string) string {
	return "garmin:sync:" + userID
}

// ValidateConnection checks that the stored connection can make
// authenticated calls, refreshing an expired token in place. It is the
// precondition gate before any sync.
func (s *service) ValidateConnection(ctx context.Context, userID string) (*Connection, error) {
	conn, err := s.repo.FindConnectionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if conn.NeedsReauth {
		return nil, ErrReauthRequired
	}

	if !s.now().Before(conn.TokenExpiresAt) {
		return s.refreshConnectionToken(ctx, conn)
	}

	return conn, nil
}

// IsStale reports whether the user's locally stored activity data is due
// for a re-fetch: no activities at all, or the newest one stored longer
// ago than the cache TTL.
func (s *service) IsStale(ctx context.Context, userID string) (bool, error) {
	latest, err := s.repo.LatestActivitySyncedAt(ctx, userID)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	return s.now().Sub(*latest) > activityCacheTTL, nil
}

// SyncIfNeeded triggers a background backfill when the cache is stale (or
// force is set) and returns immediately; callers never block on the
// upstream fetch. A sync already in flight reports in_progress without
// starting a duplicate.
func (s *service) SyncIfNeeded(ctx context.Context, userID string, force bool) (*SyncResult, error) {
	conn, err := s.ValidateConnection(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !force {
		stale, err := s.IsStale(ctx, userID)
		if err != nil {
			return nil, ErrInternal.WithCause(err)
		}
		if !stale {
			return &SyncResult{Status: SyncStatusFresh}, nil
		}
	}

	// The lock is taken here, not in the goroutine, so a second caller
	// arriving before the fetch starts still observes in_progress.
	if !s.locker.TryAcquire(syncLockKey(userID), syncLockTTL) {
		return &SyncResult{Status: SyncStatusInProgress}, nil
	}

	end := s.now()
	start := end.AddDate(0, 0, -syncBackfillDays)

	// Fire-and-forget: the sync outlives this request. Its failure is
	// invisible to the caller and only logged.
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.locker.Release(syncLockKey(userID))
		result, err := s.syncLocked(bgCtx, userID, conn.AccessToken, start, end)
		if err != nil {
			s.logger.Error("background sync failed", "user_id", userID, "error", err)
			return
		}
		s.logger.Info("background sync finished",
			"user_id", userID, "status", result.Status, "synced", result.Synced)
	}()

	return &SyncResult{Status: SyncStatusInitiated}, nil
}

// SyncActivities runs the fetch-and-upsert cycle for a date range. The
// per-user lock de-duplicates concurrent syncs; fetches retry with linear
// backoff except on auth failures, which flag the connection instead.
func (s *service) SyncActivities(ctx context.Context, userID, accessToken string, start, end time.Time) (*SyncResult, error) {
	if !s.locker.TryAcquire(syncLockKey(userID), syncLockTTL) {
		return &SyncResult{Status: SyncStatusInProgress}, nil
	}
	defer s.locker.Release(syncLockKey(userID))

	return s.syncLocked(ctx, userID, accessToken, start, end)
}

// syncLocked is the fetch-and-upsert cycle proper. The caller holds the
// per-user sync lock for the whole call.
func (s *service) syncLocked(ctx context.Context, userID, accessToken string, start, end time.Time) (*SyncResult, error) {
	dailies, err := s.fetchDailiesWithRetry(ctx, userID, accessToken, start, end)
	if err != nil {
		return &SyncResult{Status: SyncStatusError}, err
	}

	conn, err := s.repo.FindConnectionByUserID(ctx, userID)
	if err != nil {
		return &SyncResult{Status: SyncStatusError}, err
	}

	activities := make([]*Activity, 0, len(dailies))
	for i := range dailies {
		daily := &dailies[i]
		if !daily.representsActivity() {
			continue
		}
		activity, err := daily.toActivity(userID, conn.GarminUserID)
		if err != nil {
			return &SyncResult{Status: SyncStatusError}, err
		}
		activities = append(activities, activity)
	}

	if len(activities) == 0 {
		if err := s.repo.TouchLastSynced(ctx, userID, s.now()); err != nil {
			s.logger.Warn("failed to stamp last sync", "user_id", userID, "error", err)
		}
		return &SyncResult{Status: SyncStatusNoData, Total: len(dailies)}, nil
	}

	// Upsert in small batches with a pause between them to bound database
	// load during large backfills.
	synced := 0
	for batchStart := 0; batchStart < len(activities); batchStart += syncBatchSize {
		batchEnd := batchStart + syncBatchSize
		if batchEnd > len(activities) {
			batchEnd = len(activities)
		}
		for _, activity := range activities[batchStart:batchEnd] {
			if err := s.repo.UpsertActivity(ctx, activity); err != nil {
				s.logger.Error("failed to upsert synced activity",
					"user_id", userID, "garmin_activity_id", activity.GarminActivityID, "error", err)
				continue
			}
			synced++
		}
		if batchEnd < len(activities) {
			time.Sleep(syncBatchInterval)
		}
	}

	if err := s.repo.TouchLastSynced(ctx, userID, s.now()); err != nil {
		s.logger.Warn("failed to stamp last sync", "user_id", userID, "error", err)
	}

	s.logger.Info("activity sync complete", "user_id", userID, "synced", synced, "total", len(dailies))
	return &SyncResult{Status: SyncStatusSuccess, Synced: synced, Total: len(dailies)}, nil
}

// fetchDailiesWithRetry calls the dailies endpoint with up to
// syncMaxAttempts tries. 401/403 is fatal for the token (the connection
// is flagged for re-auth and no retry happens); 5xx and transport errors
// back off linearly (attempt × 1s) and retry.
func (s *service) fetchDailiesWithRetry(ctx context.Context, userID, accessToken string, start, end time.Time) ([]DailySummaryPayload, error) {
	var lastErr error
	for attempt := 1; attempt <= syncMaxAttempts; attempt++ {
		dailies, err := s.client.FetchDailies(ctx, accessToken, start, end)
		if err == nil {
			return dailies, nil
		}
		lastErr = err

		if errors.Is(err, ErrUpstreamAuth) {
			if markErr := s.repo.MarkNeedsReauthByUserID(ctx, userID); markErr != nil {
				s.logger.Warn("failed to flag connection for reauth", "user_id", userID, "error", markErr)
			}
			return nil, ErrReauthRequired.WithCause(err)
		}

		if !retryableUpstream(err) || attempt == syncMaxAttempts {
			break
		}

		s.logger.Warn("dailies fetch failed, retrying",
			"user_id", userID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * syncAttemptPause):
		}
	}
	return nil, lastErr
}

// retryableUpstream reports whether an upstream failure is worth another
// attempt: a 5xx response or a transport-level error without a status.
func retryableUpstream(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if status, ok := de.Context.(int); ok {
			return isRetryableStatus(status)
		}
		// No status attached: transport error, likely transient.
		return de.Code == ErrUpstream.Code
	}
	return false
}
