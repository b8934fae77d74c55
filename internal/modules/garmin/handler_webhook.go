package garmin

import (
	"context"
	"time"
)

// --- DTOs ---

// WebhookRequest accepts an arbitrary JSON body; shape validation happens
// in the service so malformed pushes can still be acknowledged.
type WebhookRequest struct {
	RawBody []byte `contentType:"application/json"`
}

// WebhookResponse is the acknowledgement Garmin expects. The status code
// is always 200: the upstream platform retries aggressively on anything
// else, so internal failures are absorbed and recorded in the log table.
type WebhookResponse struct {
	AllowOrigin  string `header:"Access-Control-Allow-Origin"`
	AllowMethods string `header:"Access-Control-Allow-Methods"`
	AllowHeaders string `header:"Access-Control-Allow-Headers"`
	Body         struct {
		Status           string `json:"status"`
		ProcessedAt      string `json:"processed_at"`
		ProcessingTimeMS int64  `json:"processing_time_ms"`
	}
}

// --- Handlers ---

// webhookHandler builds the handler for one push category. Every delivery
// is acknowledged with 200 regardless of processing outcome.
func (h *Handler) webhookHandler(eventType WebhookEventType) func(context.Context, *WebhookRequest) (*WebhookResponse, error) {
	return func(ctx context.Context, input *WebhookRequest) (*WebhookResponse, error) {
		started := time.Now()

		if err := h.service.IngestWebhook(ctx, eventType, input.RawBody); err != nil {
			// Absorbed: the failure lives in the webhook log, the sender
			// still gets its acknowledgement.
			h.logger.Error("webhook ingestion error", "event_type", eventType, "error", err)
		}

		resp := &WebhookResponse{
			AllowOrigin:  "*",
			AllowMethods: "POST, OPTIONS",
			AllowHeaders: "Content-Type",
		}
		resp.Body.Status = "ok"
		resp.Body.ProcessedAt = time.Now().UTC().Format(time.RFC3339)
		resp.Body.ProcessingTimeMS = time.Since(started).Milliseconds()
		return resp, nil
	}
}
