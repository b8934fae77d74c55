package garmin

import (
	"context"
	"errors"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
)

// --- DTOs ---

// AuthStartResponse redirects the user agent to the Garmin authorization URL.
type AuthStartResponse struct {
	Status   int
	Location string `header:"Location"`
}

// AuthCallbackRequest carries the query parameters Garmin appends to the
// configured redirect URI.
type AuthCallbackRequest struct {
	Code  string `query:"code"`
	State string `query:"state"`
	Error string `query:"error"`
}

// AuthCallbackResponse redirects to the mobile app deep link. Every
// branch, success or failure, lands on a deep link, never a server error.
type AuthCallbackResponse struct {
	Status   int
	Location string `header:"Location"`
}

// --- Handlers ---

// AuthStartHandler begins the PKCE authorization flow and redirects to Garmin.
func (h *Handler) AuthStartHandler(ctx context.Context, _ *struct{}) (*AuthStartResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	h.logger.Info("starting garmin authorization", "user_id", userID)

	redirectURL, err := h.service.BeginAuthorization(ctx, userID)
	if err != nil {
		h.logger.Error("failed to start garmin authorization", "error", err)
		return nil, huma.Error500InternalServerError("Could not start Garmin authorization.")
	}

	return &AuthStartResponse{Status: 302, Location: redirectURL}, nil
}

// AuthCallbackHandler completes the authorization flow. The user agent is
// always redirected to the mobile app: garmin-success on a completed
// exchange, garmin-error with a short human-readable message otherwise.
func (h *Handler) AuthCallbackHandler(ctx context.Context, input *AuthCallbackRequest) (*AuthCallbackResponse, error) {
	if input.Error != "" {
		h.logger.Warn("garmin authorization denied", "error", input.Error)
		return h.deepLinkError("Authorization was denied"), nil
	}
	if input.Code == "" {
		return h.deepLinkError("Missing authorization code"), nil
	}
	if input.State == "" {
		return h.deepLinkError("Missing authorization state"), nil
	}

	if err := h.service.CompleteAuthorization(ctx, input.State, input.Code); err != nil {
		h.logger.Error("garmin authorization callback failed", "error", err)
		switch {
		case errors.Is(err, ErrStateExpired):
			return h.deepLinkError("Authorization expired, please try again"), nil
		case errors.Is(err, ErrStateInvalid), errors.Is(err, ErrNotFound):
			return h.deepLinkError("Invalid authorization state"), nil
		case errors.Is(err, ErrTokenExchangeFailed):
			return h.deepLinkError("Garmin rejected the authorization"), nil
		default:
			return h.deepLinkError("Could not complete Garmin authorization"), nil
		}
	}

	return h.deepLink("garmin-success", url.Values{"status": {"connected"}}), nil
}

func (h *Handler) deepLink(host string, params url.Values) *AuthCallbackResponse {
	location := h.appScheme + "://" + host
	if len(params) > 0 {
		location += "?" + params.Encode()
	}
	return &AuthCallbackResponse{Status: 302, Location: location}
}

func (h *Handler) deepLinkError(message string) *AuthCallbackResponse {
	return h.deepLink("garmin-error", url.Values{"message": {message}})
}
