package garmin

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pulsefit/backend/internal/config"
	"github.com/pulsefit/backend/internal/synclock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Garmin: config.GarminConfig{
			ClientID:        "test-client",
			ClientSecret:    "test-secret",
			AuthURL:         "https://connect.garmin.test/oauth2Confirm",
			TokenURL:        "https://diauth.garmin.test/di-oauth2-service/oauth/token",
			APIBaseURL:      "https://apis.garmin.test",
			CallbackBaseURL: "https://api.pulsefit.test",
			AppScheme:       "pulsefit",
		},
	}
}

// newTestService wires a service over the in-memory fakes and exposes the
// concrete struct so tests can pin the clock.
func newTestService(repo Repository, client Client) (Service, *service) {
	svc := NewService(&Config{
		Repo:   repo,
		Client: client,
		Locker: synclock.NewMemoryLocker(),
		Logger: testLogger(),
		Config: testConfig(),
	})
	return svc, svc.(*service)
}

// --- In-memory Repository ---

type fakeRepo struct {
	mu         sync.Mutex
	states     map[string]*AuthorizationState
	conns      map[string]*Connection // keyed by user id
	logs       map[string]*WebhookLog
	activities map[string]*Activity // keyed by garmin activity id
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		states:     make(map[string]*AuthorizationState),
		conns:      make(map[string]*Connection),
		logs:       make(map[string]*WebhookLog),
		activities: make(map[string]*Activity),
	}
}

func (f *fakeRepo) InsertAuthState(_ context.Context, state *AuthorizationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now()
	}
	state.UpdatedAt = state.CreatedAt
	f.states[state.State] = state
	return nil
}

func (f *fakeRepo) GetAuthState(_ context.Context, state string) (*AuthorizationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[state]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) UpdateAuthStateStatus(_ context.Context, state string, status AuthStateStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[state]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) DeleteExpiredAuthStates(_ context.Context, before time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, s := range f.states {
		if s.CreatedAt.Before(before) {
			delete(f.states, key)
		}
	}
	return nil
}

func (f *fakeRepo) UpsertConnection(_ context.Context, conn *Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	existing, ok := f.conns[conn.UserID]
	if ok {
		existing.GarminUserID = conn.GarminUserID
		existing.AccessToken = conn.AccessToken
		existing.RefreshToken = conn.RefreshToken
		existing.TokenExpiresAt = conn.TokenExpiresAt
		existing.Scopes = conn.Scopes
		existing.NeedsReauth = false
		existing.UpdatedAt = now
		return nil
	}
	conn.NeedsReauth = false
	conn.CreatedAt = now
	conn.UpdatedAt = now
	f.conns[conn.UserID] = conn
	return nil
}

func (f *fakeRepo) FindConnectionByUserID(_ context.Context, userID string) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[userID]
	if !ok {
		return nil, ErrNotConnected
	}
	cp := *conn
	return &cp, nil
}

func (f *fakeRepo) FindConnectionByGarminUserID(_ context.Context, garminUserID string) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		if conn.GarminUserID == garminUserID {
			cp := *conn
			return &cp, nil
		}
	}
	return nil, ErrNotConnected
}

func (f *fakeRepo) UpdateConnectionTokens(_ context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[userID]
	if !ok {
		return ErrNotConnected
	}
	conn.AccessToken = accessToken
	conn.RefreshToken = refreshToken
	conn.TokenExpiresAt = expiresAt
	conn.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) MarkNeedsReauthByUserID(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[userID]
	if !ok {
		return ErrNotConnected
	}
	conn.NeedsReauth = true
	return nil
}

func (f *fakeRepo) MarkNeedsReauthByGarminUserID(_ context.Context, garminUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		if conn.GarminUserID == garminUserID {
			conn.NeedsReauth = true
			return nil
		}
	}
	return ErrNotConnected
}

func (f *fakeRepo) TouchLastSynced(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[userID]
	if !ok {
		return ErrNotConnected
	}
	conn.LastSyncedAt = &at
	return nil
}

func (f *fakeRepo) DeleteConnectionByUserID(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conns[userID]; !ok {
		return ErrNotConnected
	}
	delete(f.conns, userID)
	return nil
}

func (f *fakeRepo) DeleteConnectionByGarminUserID(_ context.Context, garminUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for userID, conn := range f.conns {
		if conn.GarminUserID == garminUserID {
			delete(f.conns, userID)
			return nil
		}
	}
	return ErrNotConnected
}

func (f *fakeRepo) InsertWebhookLog(_ context.Context, entry *WebhookLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.UpdatedAt = entry.CreatedAt
	f.logs[entry.ID] = entry
	return nil
}

func (f *fakeRepo) GetWebhookLog(_ context.Context, id string) (*WebhookLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.logs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (f *fakeRepo) MarkWebhookProcessing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.logs[id]
	if !ok {
		return ErrNotFound
	}
	entry.Status = WebhookStatusProcessing
	entry.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) MarkWebhookSuccess(_ context.Context, id string, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.logs[id]
	if !ok {
		return ErrNotFound
	}
	entry.Status = WebhookStatusSuccess
	entry.ErrorMessage = nil
	entry.ProcessedAt = &processedAt
	entry.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) MarkWebhookFailed(_ context.Context, id string, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.logs[id]
	if !ok {
		return ErrNotFound
	}
	entry.Status = WebhookStatusFailed
	entry.ErrorMessage = &errorMessage
	entry.RetryCount++
	entry.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) ListRetryableWebhookLogs(_ context.Context, maxRetries int) ([]*WebhookLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*WebhookLog
	for _, entry := range f.logs {
		if entry.Status == WebhookStatusFailed && entry.RetryCount < maxRetries {
			cp := *entry
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) CountWebhookLogsByStatus(_ context.Context, since time.Time) (map[WebhookStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[WebhookStatus]int)
	for _, entry := range f.logs {
		if !entry.CreatedAt.Before(since) {
			counts[entry.Status]++
		}
	}
	return counts, nil
}

func (f *fakeRepo) ListRecentWebhookLogs(_ context.Context, limit int) ([]*WebhookLog, error) {
	return f.listLogs(nil, limit), nil
}

func (f *fakeRepo) ListFailedWebhookLogs(_ context.Context, limit int) ([]*WebhookLog, error) {
	failed := WebhookStatusFailed
	return f.listLogs(&failed, limit), nil
}

func (f *fakeRepo) listLogs(status *WebhookStatus, limit int) []*WebhookLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*WebhookLog
	for _, entry := range f.logs {
		if status != nil && entry.Status != *status {
			continue
		}
		cp := *entry
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeRepo) DeleteWebhookLogsByGarminUserID(_ context.Context, garminUserID, exceptLogID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, entry := range f.logs {
		if entry.GarminUserID == garminUserID && id != exceptLogID {
			delete(f.logs, id)
		}
	}
	return nil
}

func (f *fakeRepo) UpsertActivity(_ context.Context, activity *Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	if activity.SyncedAt.IsZero() {
		activity.SyncedAt = now
	}
	if existing, ok := f.activities[activity.GarminActivityID]; ok {
		activity.ID = existing.ID
		activity.CreatedAt = existing.CreatedAt
	} else {
		activity.CreatedAt = now
	}
	activity.UpdatedAt = now
	f.activities[activity.GarminActivityID] = activity
	return nil
}

func (f *fakeRepo) LatestActivitySyncedAt(_ context.Context, userID string) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *time.Time
	for _, a := range f.activities {
		if a.UserID != userID {
			continue
		}
		if latest == nil || a.SyncedAt.After(*latest) {
			at := a.SyncedAt
			latest = &at
		}
	}
	return latest, nil
}

func (f *fakeRepo) ListActivities(_ context.Context, userID string, filter ActivityFilter) ([]*Activity, error) {
	matched := f.matchActivities(userID, filter)
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartTime.After(matched[j].StartTime) })
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (f *fakeRepo) CountActivities(_ context.Context, userID string, filter ActivityFilter) (int, error) {
	return len(f.matchActivities(userID, filter)), nil
}

func (f *fakeRepo) matchActivities(userID string, filter ActivityFilter) []*Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Activity
	for _, a := range f.activities {
		if a.UserID != userID {
			continue
		}
		if filter.StartDate != nil && a.StartTime.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && a.StartTime.After(*filter.EndDate) {
			continue
		}
		if filter.Type != "" && a.ActivityType != filter.Type {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out
}

func (f *fakeRepo) ListActivitiesSince(_ context.Context, userID string, since time.Time) ([]*Activity, error) {
	matched := f.matchActivities(userID, ActivityFilter{StartDate: &since})
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartTime.Before(matched[j].StartTime) })
	return matched, nil
}

func (f *fakeRepo) DeleteActivitiesByUserID(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range f.activities {
		if a.UserID == userID {
			delete(f.activities, id)
		}
	}
	return nil
}

// --- Fake upstream client ---

type fakeClient struct {
	exchangeFn    func(ctx context.Context, code, verifier, redirect string) (*TokenSet, error)
	refreshFn     func(ctx context.Context, refreshToken string) (*TokenSet, error)
	userIDFn      func(ctx context.Context, accessToken string) (string, error)
	permissionsFn func(ctx context.Context, accessToken string) ([]string, error)
	dailiesFn     func(ctx context.Context, accessToken string, start, end time.Time) ([]DailySummaryPayload, error)
	detailsFn     func(ctx context.Context, accessToken, summaryID string) (*ActivitySummaryPayload, error)
}

func (c *fakeClient) ExchangeCode(ctx context.Context, code, verifier, redirect string) (*TokenSet, error) {
	if c.exchangeFn == nil {
		return nil, ErrTokenExchangeFailed
	}
	return c.exchangeFn(ctx, code, verifier, redirect)
}

func (c *fakeClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if c.refreshFn == nil {
		return nil, ErrTokenExchangeFailed
	}
	return c.refreshFn(ctx, refreshToken)
}

func (c *fakeClient) FetchUserID(ctx context.Context, accessToken string) (string, error) {
	if c.userIDFn == nil {
		return "", ErrUpstream
	}
	return c.userIDFn(ctx, accessToken)
}

func (c *fakeClient) FetchPermissions(ctx context.Context, accessToken string) ([]string, error) {
	if c.permissionsFn == nil {
		return nil, nil
	}
	return c.permissionsFn(ctx, accessToken)
}

func (c *fakeClient) FetchDailies(ctx context.Context, accessToken string, start, end time.Time) ([]DailySummaryPayload, error) {
	if c.dailiesFn == nil {
		return nil, nil
	}
	return c.dailiesFn(ctx, accessToken, start, end)
}

func (c *fakeClient) FetchActivityDetails(ctx context.Context, accessToken, summaryID string) (*ActivitySummaryPayload, error) {
	if c.detailsFn == nil {
		return nil, ErrUpstream
	}
	return c.detailsFn(ctx, accessToken, summaryID)
}
