package garmin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/pulsefit/backend/internal/contextx"
)

// Handler holds the dependencies for the garmin module's HTTP handlers.
type Handler struct {
	service   Service
	logger    *slog.Logger
	appScheme string
}

// NewHandler creates a new handler for the garmin module. appScheme is the
// mobile deep-link scheme used by the authorization callback redirects.
func NewHandler(service Service, logger *slog.Logger, appScheme string) *Handler {
	if appScheme == "" {
		appScheme = "pulsefit"
	}
	return &Handler{
		service:   service,
		logger:    logger,
		appScheme: appScheme,
	}
}

// RegisterRoutes sets up the routing for the garmin module. Session- and
// admin-protected operations receive their middleware per operation.
func (h *Handler) RegisterRoutes(api huma.API, sessionAuth, adminAuth func(huma.Context, func(huma.Context))) {
	// --- Authorization flow ---
	huma.Register(api, huma.Operation{
		OperationID: "garmin-auth-start",
		Method:      http.MethodGet,
		Path:        "/garmin/auth/start",
		Summary:     "Start Garmin authorization",
		Middlewares: huma.Middlewares{sessionAuth},
	}, h.AuthStartHandler)

	huma.Register(api, huma.Operation{
		OperationID: "garmin-auth-callback",
		Method:      http.MethodGet,
		Path:        "/garmin/auth/callback",
		Summary:     "Handle Garmin authorization callback",
	}, h.AuthCallbackHandler)

	// --- Webhook endpoints, one per push category ---
	for _, eventType := range WebhookEventTypes {
		eventType := eventType
		huma.Register(api, huma.Operation{
			OperationID: "garmin-webhook-" + string(eventType),
			Method:      http.MethodPost,
			Path:        "/garmin/webhook/" + string(eventType),
			Summary:     "Receive Garmin " + string(eventType) + " webhook",
		}, h.webhookHandler(eventType))
	}

	// --- Query endpoints ---
	huma.Register(api, huma.Operation{
		OperationID: "garmin-connection-status",
		Method:      http.MethodGet,
		Path:        "/garmin/connection",
		Summary:     "Get Garmin connection status",
		Middlewares: huma.Middlewares{sessionAuth},
	}, h.ConnectionStatusHandler)

	huma.Register(api, huma.Operation{
		OperationID: "garmin-disconnect",
		Method:      http.MethodDelete,
		Path:        "/garmin/connection",
		Summary:     "Disconnect the Garmin integration",
		Middlewares: huma.Middlewares{sessionAuth},
	}, h.DisconnectHandler)

	huma.Register(api, huma.Operation{
		OperationID: "garmin-activities",
		Method:      http.MethodGet,
		Path:        "/garmin/activities",
		Summary:     "List synced Garmin activities",
		Middlewares: huma.Middlewares{sessionAuth},
	}, h.ActivitiesHandler)

	huma.Register(api, huma.Operation{
		OperationID: "garmin-activities-sync",
		Method:      http.MethodGet,
		Path:        "/garmin/activities/sync",
		Summary:     "Trigger an activity sync if the cache is stale",
		Middlewares: huma.Middlewares{sessionAuth},
	}, h.SyncHandler)

	huma.Register(api, huma.Operation{
		OperationID: "garmin-stats",
		Method:      http.MethodGet,
		Path:        "/garmin/stats",
		Summary:     "Aggregate activity statistics",
		Middlewares: huma.Middlewares{sessionAuth},
	}, h.StatsHandler)

	huma.Register(api, huma.Operation{
		OperationID: "garmin-permissions",
		Method:      http.MethodGet,
		Path:        "/garmin/permissions",
		Summary:     "List granted Garmin permissions",
		Middlewares: huma.Middlewares{sessionAuth},
	}, h.PermissionsHandler)

	// --- Administrative endpoints ---
	huma.Register(api, huma.Operation{
		OperationID: "garmin-admin-retry",
		Method:      http.MethodPost,
		Path:        "/garmin/admin/retry",
		Summary:     "Reprocess failed webhook logs",
		Middlewares: huma.Middlewares{adminAuth},
	}, h.AdminRetryHandler)

	huma.Register(api, huma.Operation{
		OperationID: "garmin-admin-status",
		Method:      http.MethodGet,
		Path:        "/garmin/admin/status",
		Summary:     "Webhook processing status report",
		Middlewares: huma.Middlewares{adminAuth},
	}, h.AdminStatusHandler)
}

// userIDFrom extracts the authenticated user id injected by the session
// middleware.
func userIDFrom(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(contextx.UserIDKey).(string)
	if !ok || userID == "" {
		return "", huma.Error401Unauthorized("missing authenticated user")
	}
	return userID, nil
}
