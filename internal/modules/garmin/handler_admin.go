package garmin

import (
	"context"

	"github.com/pulsefit/backend/internal/httpx"
)

// --- DTOs ---

type AdminRetryResponse struct {
	Body struct {
		Retried  int            `json:"retried"`
		Outcomes []RetryOutcome `json:"outcomes"`
	}
}

type AdminStatusResponse struct {
	Body StatusReport
}

// --- Handlers ---

// AdminRetryHandler reprocesses failed webhook logs that have retry
// budget left.
func (h *Handler) AdminRetryHandler(ctx context.Context, _ *struct{}) (*AdminRetryResponse, error) {
	outcomes, err := h.service.RetryFailedWebhooks(ctx)
	if err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	resp := &AdminRetryResponse{}
	resp.Body.Retried = len(outcomes)
	resp.Body.Outcomes = outcomes
	return resp, nil
}

// AdminStatusHandler reports webhook processing counts and recent samples.
func (h *Handler) AdminStatusHandler(ctx context.Context, _ *struct{}) (*AdminStatusResponse, error) {
	report, err := h.service.WebhookStatusReport(ctx)
	if err != nil {
		return nil, httpx.ToProblem(ctx, err)
	}

	return &AdminStatusResponse{Body: *report}, nil
}
