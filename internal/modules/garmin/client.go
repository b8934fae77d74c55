package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pulsefit/backend/internal/config"
	"golang.org/x/oauth2"
)

// upstreamTimeout bounds every call against the Garmin API.
const upstreamTimeout = 15 * time.Second

// TokenSet is the result of a code exchange or token refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// Client talks to the Garmin OAuth and wellness API endpoints. All calls
// are synchronous; retry policy belongs to the callers (sync reconciler,
// webhook processor), not here.
type Client interface {
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)
	FetchUserID(ctx context.Context, accessToken string) (string, error)
	FetchPermissions(ctx context.Context, accessToken string) ([]string, error)
	FetchDailies(ctx context.Context, accessToken string, start, end time.Time) ([]DailySummaryPayload, error)
	FetchActivityDetails(ctx context.Context, accessToken, summaryID string) (*ActivitySummaryPayload, error)
}

type apiClient struct {
	cfg  config.GarminConfig
	http *http.Client
}

// NewClient creates a Garmin API client from the integration config.
func NewClient(cfg config.GarminConfig) Client {
	return &apiClient{
		cfg:  cfg,
		http: &http.Client{Timeout: upstreamTimeout},
	}
}

// oauthConfig builds the oauth2 config for the token endpoint. Credentials
// are checked at the point of use and never defaulted.
func (c *apiClient) oauthConfig(redirectURI string) (*oauth2.Config, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, ErrConfig.WithDetail("garmin client id/secret are not configured")
	}
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.cfg.AuthURL,
			TokenURL: c.cfg.TokenURL,
		},
	}, nil
}

// ExchangeCode swaps an authorization code (plus its PKCE verifier) for a
// token set. Upstream failures surface the status and body so callers can
// log exactly what the authorization server rejected.
func (c *apiClient) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*TokenSet, error) {
	conf, err := c.oauthConfig(redirectURI)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, exchangeError(err)
	}

	return tokenSetFrom(token), nil
}

// RefreshToken performs a refresh-token grant with the same failure
// contract as ExchangeCode.
func (c *apiClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	conf, err := c.oauthConfig("")
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, exchangeError(err)
	}

	return tokenSetFrom(token), nil
}

func tokenSetFrom(token *oauth2.Token) *TokenSet {
	scope, _ := token.Extra("scope").(string)
	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Scope:        scope,
	}
}

// exchangeError maps oauth2 retrieval failures to ErrTokenExchangeFailed,
// carrying the upstream status and response body. The status rides along
// as Context so callers can tell a rejected grant from a transient outage.
func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		detail := fmt.Sprintf("garmin token endpoint returned %d: %s", re.Response.StatusCode, string(re.Body))
		return ErrTokenExchangeFailed.WithDetail(detail).WithCause(err).WithContext(re.Response.StatusCode)
	}
	return ErrTokenExchangeFailed.WithCause(err)
}

// FetchUserID returns the Garmin user id owning the access token.
func (c *apiClient) FetchUserID(ctx context.Context, accessToken string) (string, error) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := c.getJSON(ctx, accessToken, "/wellness-api/rest/user/id", nil, &body); err != nil {
		return "", err
	}
	return body.UserID, nil
}

// FetchPermissions returns the permission scopes the user granted.
func (c *apiClient) FetchPermissions(ctx context.Context, accessToken string) ([]string, error) {
	var body struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.getJSON(ctx, accessToken, "/wellness-api/rest/user/permissions", nil, &body); err != nil {
		return nil, err
	}
	return body.Permissions, nil
}

// FetchDailies returns daily summaries whose upload time falls in
// [start, end]. The upstream API takes epoch-second bounds.
func (c *apiClient) FetchDailies(ctx context.Context, accessToken string, start, end time.Time) ([]DailySummaryPayload, error) {
	params := url.Values{}
	params.Set("uploadStartTimeInSeconds", strconv.FormatInt(start.Unix(), 10))
	params.Set("uploadEndTimeInSeconds", strconv.FormatInt(end.Unix(), 10))

	var dailies []DailySummaryPayload
	if err := c.getJSON(ctx, accessToken, "/wellness-api/rest/dailies", params, &dailies); err != nil {
		return nil, err
	}
	return dailies, nil
}

// FetchActivityDetails loads the full summary for a ping-delivered
// activity identified by its summary id.
func (c *apiClient) FetchActivityDetails(ctx context.Context, accessToken, summaryID string) (*ActivitySummaryPayload, error) {
	params := url.Values{}
	params.Set("summaryId", summaryID)

	// The details endpoint responds with a one-element array for a single
	// summary id.
	var details []struct {
		Summary ActivitySummaryPayload `json:"summary"`
	}
	if err := c.getJSON(ctx, accessToken, "/wellness-api/rest/activityDetails", params, &details); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, ErrUpstream.WithDetail(fmt.Sprintf("no activity details for summary %s", summaryID))
	}
	summary := details[0].Summary
	if summary.SummaryID == "" {
		summary.SummaryID = summaryID
	}
	return &summary, nil
}

// getJSON performs an authenticated GET against the wellness API and
// decodes the JSON response. Non-2xx responses map to UpstreamAuth for
// 401/403 and Upstream otherwise.
func (c *apiClient) getJSON(ctx context.Context, accessToken, path string, params url.Values, out any) error {
	if c.cfg.APIBaseURL == "" {
		return ErrConfig.WithDetail("garmin api base url is not configured")
	}

	endpoint := c.cfg.APIBaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ErrInternal.WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ErrUpstream.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := fmt.Sprintf("garmin api %s returned %d: %s", path, resp.StatusCode, string(body))
		if isAuthStatus(resp.StatusCode) {
			return ErrUpstreamAuth.WithDetail(detail).WithContext(resp.StatusCode)
		}
		return ErrUpstream.WithDetail(detail).WithContext(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrUpstream.WithCause(fmt.Errorf("failed to decode garmin response: %w", err))
	}
	return nil
}

// isAuthStatus reports whether an upstream status is fatal for the token.
func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// isRetryableStatus reports whether an upstream status is worth retrying.
func isRetryableStatus(code int) bool {
	return code >= 500
}
