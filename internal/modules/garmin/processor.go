package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Processor interprets logged webhook events: it dispatches on the event
// category, fetches or transforms payload data, and upserts activity
// records. It is the only writer of a log's status transitions.
type Processor struct {
	repo   Repository
	client Client
	logger *slog.Logger
}

// NewProcessor creates a webhook processor.
func NewProcessor(repo Repository, client Client, logger *slog.Logger) *Processor {
	return &Processor{repo: repo, client: client, logger: logger}
}

// Process runs a pending webhook log to completion. A log that is no
// longer pending is skipped; the reload-and-check guards against two
// concurrent dispatches of the same log id.
func (p *Processor) Process(ctx context.Context, logID string) error {
	return p.run(ctx, logID, false)
}

// Reprocess retries a failed log. Only failed logs under the retry budget
// are eligible.
func (p *Processor) Reprocess(ctx context.Context, logID string) error {
	return p.run(ctx, logID, true)
}

func (p *Processor) run(ctx context.Context, logID string, retry bool) error {
	entry, err := p.repo.GetWebhookLog(ctx, logID)
	if err != nil {
		return err
	}

	// Idempotency guard: status transitions are strictly forward, so a
	// second dispatch observes a non-pending status and no-ops.
	if retry {
		if entry.Status != WebhookStatusFailed || entry.RetryCount >= maxWebhookRetries {
			return ErrLogNotRetryable.WithDetail(
				fmt.Sprintf("log %s has status %s with %d retries", logID, entry.Status, entry.RetryCount))
		}
	} else if entry.Status != WebhookStatusPending {
		p.logger.Info("skipping webhook log in non-pending state", "log_id", logID, "status", entry.Status)
		return nil
	}

	if err := p.repo.MarkWebhookProcessing(ctx, logID); err != nil {
		return err
	}

	if err := p.dispatch(ctx, entry); err != nil {
		if failErr := p.repo.MarkWebhookFailed(ctx, logID, err.Error()); failErr != nil {
			p.logger.Error("failed to record webhook failure", "log_id", logID, "error", failErr)
		}
		return err
	}

	if err := p.repo.MarkWebhookSuccess(ctx, logID, nowUTC()); err != nil {
		p.logger.Error("failed to finalize webhook log", "log_id", logID, "error", err)
		return err
	}
	return nil
}

// dispatch routes an event to its category handler.
func (p *Processor) dispatch(ctx context.Context, entry *WebhookLog) error {
	var envelope webhookEnvelope
	if err := json.Unmarshal(entry.Payload, &envelope); err != nil {
		return fmt.Errorf("malformed webhook payload: %w", err)
	}

	switch entry.EventType {
	case EventActivities:
		return p.processActivities(ctx, envelope.Activities, false, false)
	case EventActivityDetails:
		return p.processActivityDetails(ctx, envelope.ActivityDetails)
	case EventManualActivities:
		return p.processActivities(ctx, envelope.ManualActivities, true, false)
	case EventMoveIQ:
		return p.processActivities(ctx, envelope.MoveIQActivities, false, true)
	case EventActivityFiles:
		// File retrieval is not implemented; the delivery is logged only.
		p.logger.Info("activity-files event acknowledged without processing",
			"log_id", entry.ID, "files", len(envelope.ActivityFiles))
		return nil
	case EventDeregistrations:
		return p.processDeregistrations(ctx, entry.ID, envelope.Deregistrations)
	case EventPermissions:
		return p.processPermissionChanges(ctx, envelope.PermissionChanges)
	default:
		return fmt.Errorf("unknown webhook event type %q", entry.EventType)
	}
}

// processActivities handles push-delivered activity arrays. Entries
// carrying an embedded summary upsert directly; ping-style entries
// (summary id + access token only) fetch the full detail first.
func (p *Processor) processActivities(ctx context.Context, events []activityEvent, manual, autoDetected bool) error {
	for i := range events {
		event := &events[i]
		summary := &event.ActivitySummaryPayload

		if summary.remoteID() == "" {
			return fmt.Errorf("activity event missing summary and activity ids")
		}

		// Ping delivery: no inline data, fetch by summary id.
		if summary.StartTimeInSeconds == 0 && event.UserAccessToken != "" && summary.SummaryID != "" {
			fetched, err := p.client.FetchActivityDetails(ctx, event.UserAccessToken, summary.SummaryID)
			if err != nil {
				return err
			}
			summary = fetched
		}

		if err := p.upsertFromSummary(ctx, summary, event.UserID, manual, autoDetected); err != nil {
			return err
		}
	}
	return nil
}

// processActivityDetails handles the activity-details category, where the
// summary is nested one level deeper (push) or absent (ping).
func (p *Processor) processActivityDetails(ctx context.Context, events []activityDetailEvent) error {
	for i := range events {
		event := &events[i]
		summary := event.Summary

		if summary == nil {
			if event.SummaryID == "" || event.UserAccessToken == "" {
				return fmt.Errorf("activity-details event carries neither summary nor fetchable summary id")
			}
			fetched, err := p.client.FetchActivityDetails(ctx, event.UserAccessToken, event.SummaryID)
			if err != nil {
				return err
			}
			summary = fetched
		}

		if err := p.upsertFromSummary(ctx, summary, event.UserID, false, false); err != nil {
			return err
		}
	}
	return nil
}

// upsertFromSummary is the shared upsert contract: resolve the owning
// local user via the connection table, normalize the upstream summary, and
// upsert keyed by the remote activity id.
func (p *Processor) upsertFromSummary(ctx context.Context, summary *ActivitySummaryPayload, garminUserID string, manual, autoDetected bool) error {
	conn, err := p.repo.FindConnectionByGarminUserID(ctx, garminUserID)
	if err != nil {
		// A race or stale registration: fail this log only.
		return ErrOrphanActivity.WithDetail(
			fmt.Sprintf("no connection for garmin user %s", garminUserID)).WithCause(err)
	}

	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to re-encode activity summary: %w", err)
	}

	activity, err := summary.toActivity(conn.UserID, garminUserID, raw)
	if err != nil {
		return err
	}
	if manual {
		activity.IsManual = true
	}
	if autoDetected {
		activity.IsAutoDetected = true
	}

	if err := p.repo.UpsertActivity(ctx, activity); err != nil {
		return fmt.Errorf("failed to upsert activity %s: %w", activity.GarminActivityID, err)
	}

	p.logger.Info("activity upserted",
		"garmin_activity_id", activity.GarminActivityID,
		"user_id", activity.UserID,
		"manual", activity.IsManual,
		"auto_detected", activity.IsAutoDetected)
	return nil
}

// processDeregistrations removes the connection (and dependent data) for
// users who unlinked the integration from the Garmin side. The purge
// spares logID: the deregistration delivery itself must keep its outcome
// row so it can be finalized after the cleanup.
func (p *Processor) processDeregistrations(ctx context.Context, logID string, events []userEvent) error {
	for _, event := range events {
		if event.UserID == "" {
			return fmt.Errorf("deregistration event missing user id")
		}

		conn, err := p.repo.FindConnectionByGarminUserID(ctx, event.UserID)
		if err != nil {
			// Already gone: deregistration is idempotent.
			p.logger.Info("deregistration for unknown garmin user", "garmin_user_id", event.UserID)
			continue
		}

		if err := p.repo.DeleteActivitiesByUserID(ctx, conn.UserID); err != nil {
			return fmt.Errorf("failed to purge activities for %s: %w", conn.UserID, err)
		}
		if err := p.repo.DeleteWebhookLogsByGarminUserID(ctx, event.UserID, logID); err != nil {
			return fmt.Errorf("failed to purge webhook logs for %s: %w", event.UserID, err)
		}
		if err := p.repo.DeleteConnectionByUserID(ctx, conn.UserID); err != nil {
			return fmt.Errorf("failed to delete connection for %s: %w", conn.UserID, err)
		}

		p.logger.Info("garmin account deregistered", "user_id", conn.UserID, "garmin_user_id", event.UserID)
	}
	return nil
}

// processPermissionChanges flags connections whose scopes changed; the
// user must re-grant before the stored token is used again.
func (p *Processor) processPermissionChanges(ctx context.Context, events []permissionChangeEvent) error {
	for _, event := range events {
		if event.UserID == "" {
			return fmt.Errorf("permissions event missing user id")
		}

		if err := p.repo.MarkNeedsReauthByGarminUserID(ctx, event.UserID); err != nil {
			return fmt.Errorf("failed to flag reauth for garmin user %s: %w", event.UserID, err)
		}

		p.logger.Info("garmin permissions changed, reauth required",
			"garmin_user_id", event.UserID, "permissions", event.Permissions)
	}
	return nil
}
