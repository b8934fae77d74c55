package garmin

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(repo *fakeRepo, client Client) *Handler {
	svc, _ := newTestService(repo, client)
	return NewHandler(svc, testLogger(), "pulsefit")
}

func assertDeepLinkError(t *testing.T, resp *AuthCallbackResponse, wantMessage string) {
	t.Helper()
	assert.Equal(t, 302, resp.Status)
	parsed, err := url.Parse(resp.Location)
	require.NoError(t, err)
	assert.Equal(t, "pulsefit", parsed.Scheme)
	assert.Equal(t, "garmin-error", parsed.Host)
	assert.Equal(t, wantMessage, parsed.Query().Get("message"))
}

func TestAuthCallbackDenied(t *testing.T) {
	h := newTestHandler(newFakeRepo(), &fakeClient{})

	resp, err := h.AuthCallbackHandler(context.Background(), &AuthCallbackRequest{Error: "access_denied"})
	require.NoError(t, err)
	assertDeepLinkError(t, resp, "Authorization was denied")
}

func TestAuthCallbackMissingParams(t *testing.T) {
	h := newTestHandler(newFakeRepo(), &fakeClient{})

	resp, err := h.AuthCallbackHandler(context.Background(), &AuthCallbackRequest{State: "state-1"})
	require.NoError(t, err)
	assertDeepLinkError(t, resp, "Missing authorization code")

	resp, err = h.AuthCallbackHandler(context.Background(), &AuthCallbackRequest{Code: "code-1"})
	require.NoError(t, err)
	assertDeepLinkError(t, resp, "Missing authorization state")
}

func TestAuthCallbackUnknownState(t *testing.T) {
	h := newTestHandler(newFakeRepo(), &fakeClient{})

	resp, err := h.AuthCallbackHandler(context.Background(), &AuthCallbackRequest{Code: "code-1", State: "missing"})
	require.NoError(t, err)
	assertDeepLinkError(t, resp, "Invalid authorization state")
}

func TestAuthCallbackExpiredState(t *testing.T) {
	repo := newFakeRepo()
	svc, s := newTestService(repo, &fakeClient{})
	h := NewHandler(svc, testLogger(), "pulsefit")

	created := time.Now()
	require.NoError(t, repo.InsertAuthState(context.Background(), &AuthorizationState{
		State:     "state-1",
		UserID:    "user-1",
		Status:    AuthStatePending,
		CreatedAt: created,
	}))
	s.now = func() time.Time { return created.Add(authStateTTL + time.Minute) }

	resp, err := h.AuthCallbackHandler(context.Background(), &AuthCallbackRequest{Code: "code-1", State: "state-1"})
	require.NoError(t, err)
	assertDeepLinkError(t, resp, "Authorization expired, please try again")
}

func TestAuthCallbackExchangeRejected(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.InsertAuthState(context.Background(), &AuthorizationState{
		State:        "state-1",
		CodeVerifier: "verifier",
		UserID:       "user-1",
		Status:       AuthStatePending,
	}))
	h := newTestHandler(repo, &fakeClient{
		exchangeFn: func(context.Context, string, string, string) (*TokenSet, error) {
			return nil, ErrTokenExchangeFailed
		},
	})

	resp, err := h.AuthCallbackHandler(context.Background(), &AuthCallbackRequest{Code: "bad", State: "state-1"})
	require.NoError(t, err)
	assertDeepLinkError(t, resp, "Garmin rejected the authorization")
}

func TestAuthCallbackSuccessDeepLink(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.InsertAuthState(context.Background(), &AuthorizationState{
		State:        "state-1",
		CodeVerifier: "verifier",
		UserID:       "user-1",
		Status:       AuthStatePending,
	}))
	h := newTestHandler(repo, &fakeClient{
		exchangeFn: func(context.Context, string, string, string) (*TokenSet, error) {
			return &TokenSet{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}, nil
		},
		userIDFn: func(context.Context, string) (string, error) { return "garmin-1", nil },
	})

	resp, err := h.AuthCallbackHandler(context.Background(), &AuthCallbackRequest{Code: "code-1", State: "state-1"})
	require.NoError(t, err)
	assert.Equal(t, 302, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Location, "pulsefit://garmin-success"))
	assert.Contains(t, resp.Location, "status=connected")
}
