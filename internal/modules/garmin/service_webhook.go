package garmin

import (
	"context"
	"encoding/json"
)

// IngestWebhook validates an inbound delivery, persists its log row, and
// synchronously runs the processor. Processing errors are returned so the
// handler can log them, but the handler always acknowledges with 200;
// Garmin retries aggressively on anything else, so failures are absorbed
// here and surface only in the persisted log.
func (s *service) IngestWebhook(ctx context.Context, eventType WebhookEventType, payload json.RawMessage) error {
	logID, err := newRowID()
	if err != nil {
		return err
	}

	var envelope webhookEnvelope
	// Envelope decoding is best-effort; unrecognized shapes are still logged.
	_ = json.Unmarshal(payload, &envelope)

	entry := &WebhookLog{
		ID:           logID,
		EventType:    eventType,
		Payload:      payload,
		GarminUserID: envelopeUserID(&envelope),
		SummaryID:    envelopeSummaryID(&envelope),
		Status:       WebhookStatusPending,
	}

	if !recognizedPayload(payload) {
		// Rejected before processing, but never silently: the delivery is
		// recorded as invalid and the sender still gets its 200.
		entry.Status = WebhookStatusInvalid
		if err := s.repo.InsertWebhookLog(ctx, entry); err != nil {
			s.logger.Error("failed to log invalid webhook", "event_type", eventType, "error", err)
			return ErrInternal.WithCause(err)
		}
		s.logger.Warn("unrecognized webhook payload", "event_type", eventType, "log_id", logID)
		return nil
	}

	if err := s.repo.InsertWebhookLog(ctx, entry); err != nil {
		s.logger.Error("failed to log webhook", "event_type", eventType, "error", err)
		return ErrInternal.WithCause(err)
	}

	// Synchronous processing: the ack must not outlive the work in
	// short-lived deployments. The processor owns the log's status
	// transitions; errors here are already recorded on the log.
	if err := s.processor.Process(ctx, logID); err != nil {
		s.logger.Error("webhook processing failed",
			"event_type", eventType, "log_id", logID, "error", err)
		return err
	}
	return nil
}

// envelopeUserID extracts the Garmin user id from whichever variant of the
// payload carries it.
func envelopeUserID(e *webhookEnvelope) string {
	if e.UserID != "" {
		return e.UserID
	}
	for _, a := range e.Activities {
		if a.UserID != "" {
			return a.UserID
		}
	}
	for _, d := range e.ActivityDetails {
		if d.UserID != "" {
			return d.UserID
		}
	}
	for _, m := range e.ManualActivities {
		if m.UserID != "" {
			return m.UserID
		}
	}
	for _, m := range e.MoveIQActivities {
		if m.UserID != "" {
			return m.UserID
		}
	}
	for _, f := range e.ActivityFiles {
		if f.UserID != "" {
			return f.UserID
		}
	}
	for _, d := range e.Deregistrations {
		if d.UserID != "" {
			return d.UserID
		}
	}
	for _, p := range e.PermissionChanges {
		if p.UserID != "" {
			return p.UserID
		}
	}
	return ""
}

func envelopeSummaryID(e *webhookEnvelope) string {
	if e.SummaryID != "" {
		return e.SummaryID
	}
	for _, d := range e.ActivityDetails {
		if d.SummaryID != "" {
			return d.SummaryID
		}
	}
	for _, a := range e.Activities {
		if a.SummaryID != "" {
			return a.SummaryID
		}
	}
	return ""
}
