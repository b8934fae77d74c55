package garmin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// authStateTTL is how long an authorization attempt stays resolvable.
const authStateTTL = 10 * time.Minute

// tokenExpirySafetyMargin is subtracted from the upstream expiry so
// freshness checks never pass a token that would expire mid-request.
const tokenExpirySafetyMargin = 600 * time.Second

// generateState produces the CSRF state token: 32 random bytes, hex encoded.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// BeginAuthorization starts a PKCE authorization attempt for a local user.
// It persists the state/verifier pair and returns the full Garmin
// authorization URL to redirect the user to.
func (s *service) BeginAuthorization(ctx context.Context, userID string) (string, error) {
	if s.config.Garmin.ClientID == "" {
		return "", ErrConfig.WithDetail("garmin client id is not configured")
	}
	if s.config.Garmin.CallbackBaseURL == "" {
		return "", ErrConfig.WithDetail("garmin callback base url is not configured")
	}

	state, err := generateState()
	if err != nil {
		return "", ErrInternal.WithCause(fmt.Errorf("failed to generate oauth state: %w", err))
	}
	verifier := oauth2.GenerateVerifier()

	// Opportunistic sweep of stale attempts; failure is non-fatal.
	if err := s.repo.DeleteExpiredAuthStates(ctx, s.now().Add(-authStateTTL)); err != nil {
		s.logger.Warn("failed to sweep expired oauth states", "error", err)
	}

	err = s.repo.InsertAuthState(ctx, &AuthorizationState{
		State:        state,
		CodeVerifier: verifier,
		UserID:       userID,
		Status:       AuthStatePending,
	})
	if err != nil {
		return "", ErrInternal.WithCause(fmt.Errorf("failed to persist oauth state: %w", err))
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", s.config.Garmin.ClientID)
	params.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	params.Set("code_challenge_method", "S256")
	params.Set("state", state)
	params.Set("redirect_uri", s.callbackURL())

	return s.config.Garmin.AuthURL + "?" + params.Encode(), nil
}

func (s *service) callbackURL() string {
	return s.config.Garmin.CallbackBaseURL + "/garmin/auth/callback"
}

// ResolveAuthorization consumes a pending authorization state. Each state
// resolves at most once: a replayed state finds status already advanced
// and is rejected, and a state older than authStateTTL is marked failed.
func (s *service) ResolveAuthorization(ctx context.Context, state string) (*AuthorizationState, error) {
	authState, err := s.repo.GetAuthState(ctx, state)
	if err != nil {
		return nil, err
	}

	if authState.Status != AuthStatePending {
		s.logger.Warn("oauth state replay rejected", "state", state, "status", authState.Status)
		return nil, ErrStateInvalid
	}

	if s.now().Sub(authState.CreatedAt) > authStateTTL {
		if err := s.repo.UpdateAuthStateStatus(ctx, state, AuthStateFailed); err != nil {
			s.logger.Warn("failed to mark expired oauth state", "state", state, "error", err)
		}
		return nil, ErrStateExpired
	}

	if err := s.repo.UpdateAuthStateStatus(ctx, state, AuthStateSuccess); err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	return authState, nil
}

// CompleteAuthorization finishes the callback leg: it resolves the state,
// exchanges the code using the stored verifier, looks up the Garmin user
// id and granted permissions, and upserts the connection.
func (s *service) CompleteAuthorization(ctx context.Context, state, code string) error {
	authState, err := s.ResolveAuthorization(ctx, state)
	if err != nil {
		return err
	}

	tokens, err := s.client.ExchangeCode(ctx, code, authState.CodeVerifier, s.callbackURL())
	if err != nil {
		s.logger.Error("garmin token exchange failed", "error", err)
		return err
	}

	garminUserID, err := s.client.FetchUserID(ctx, tokens.AccessToken)
	if err != nil {
		s.logger.Error("failed to fetch garmin user id", "error", err)
		return err
	}

	scopes, err := s.client.FetchPermissions(ctx, tokens.AccessToken)
	if err != nil {
		// Permissions are refreshable later; don't fail the whole link.
		s.logger.Warn("failed to fetch garmin permissions", "error", err)
	}
	if len(scopes) == 0 && tokens.Scope != "" {
		scopes = splitScopes(tokens.Scope)
	}

	err = s.upsertConnection(ctx, authState.UserID, garminUserID, tokens, scopes)
	if err != nil {
		s.logger.Error("failed to persist garmin connection", "error", err)
		return ErrInternal.WithCause(err)
	}

	s.logger.Info("garmin connection established", "user_id", authState.UserID, "garmin_user_id", garminUserID)
	return nil
}

// upsertConnection stores a token set with the expiry safety margin applied.
func (s *service) upsertConnection(ctx context.Context, userID, garminUserID string, tokens *TokenSet, scopes []string) error {
	id, err := newRowID()
	if err != nil {
		return err
	}
	return s.repo.UpsertConnection(ctx, &Connection{
		ID:             id,
		UserID:         userID,
		GarminUserID:   garminUserID,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.Expiry.Add(-tokenExpirySafetyMargin),
		Scopes:         scopes,
	})
}

// refreshConnectionToken refreshes an expired token pair in place. Only a
// 401/403 from the token endpoint flags the connection for
// re-authorization; a 5xx or transport error leaves the stored refresh
// token usable and surfaces as a retryable upstream failure.
func (s *service) refreshConnectionToken(ctx context.Context, conn *Connection) (*Connection, error) {
	tokens, err := s.client.RefreshToken(ctx, conn.RefreshToken)
	if err != nil {
		if !tokenEndpointAuthFailure(err) {
			return nil, ErrUpstream.WithCause(err)
		}
		if markErr := s.repo.MarkNeedsReauthByUserID(ctx, conn.UserID); markErr != nil {
			s.logger.Warn("failed to flag connection for reauth", "user_id", conn.UserID, "error", markErr)
		}
		return nil, ErrReauthRequired.WithCause(err)
	}

	expiresAt := tokens.Expiry.Add(-tokenExpirySafetyMargin)
	if err := s.repo.UpdateConnectionTokens(ctx, conn.UserID, tokens.AccessToken, tokens.RefreshToken, expiresAt); err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	conn.AccessToken = tokens.AccessToken
	conn.RefreshToken = tokens.RefreshToken
	conn.TokenExpiresAt = expiresAt
	return conn, nil
}

// tokenEndpointAuthFailure reports whether the token endpoint rejected
// the grant itself, as opposed to failing transiently. The status comes
// from the Context the client attaches on non-2xx token responses.
func tokenEndpointAuthFailure(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if status, ok := de.Context.(int); ok {
			return isAuthStatus(status)
		}
	}
	return false
}
