package garmin

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

// InsertWebhookLog records an inbound webhook delivery.
func (r *repository) InsertWebhookLog(ctx context.Context, log *WebhookLog) error {
	log.CreatedAt = time.Now()
	log.UpdatedAt = time.Now()

	query, args, err := r.psql.Insert("garmin_webhook_logs").
		Columns("id", "event_type", "payload", "garmin_user_id", "summary_id",
			"status", "retry_count", "created_at", "updated_at").
		Values(log.ID, log.EventType, log.Payload, log.GarminUserID, log.SummaryID,
			log.Status, log.RetryCount, log.CreatedAt, log.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// GetWebhookLog retrieves a webhook log by id.
func (r *repository) GetWebhookLog(ctx context.Context, id string) (*WebhookLog, error) {
	query, args, err := r.psql.Select("*").
		From("garmin_webhook_logs").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var log WebhookLog
	err = pgxscan.Get(ctx, r.db, &log, query, args...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound.WithCause(err)
		}
		return nil, err
	}

	return &log, nil
}

// MarkWebhookProcessing transitions a log to the processing state.
func (r *repository) MarkWebhookProcessing(ctx context.Context, id string) error {
	query, args, err := r.psql.Update("garmin_webhook_logs").
		Set("status", WebhookStatusProcessing).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkWebhookSuccess finalizes a log after successful processing.
func (r *repository) MarkWebhookSuccess(ctx context.Context, id string, processedAt time.Time) error {
	query, args, err := r.psql.Update("garmin_webhook_logs").
		Set("status", WebhookStatusSuccess).
		Set("error_message", nil).
		Set("processed_at", processedAt).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkWebhookFailed records a processing failure and increments the retry
// counter. retry_count only ever moves forward on failure.
func (r *repository) MarkWebhookFailed(ctx context.Context, id string, errorMessage string) error {
	query, args, err := r.psql.Update("garmin_webhook_logs").
		Set("status", WebhookStatusFailed).
		Set("error_message", errorMessage).
		Set("retry_count", squirrel.Expr("retry_count + 1")).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRetryableWebhookLogs returns failed logs still under the retry budget.
func (r *repository) ListRetryableWebhookLogs(ctx context.Context, maxRetries int) ([]*WebhookLog, error) {
	query, args, err := r.psql.Select("*").
		From("garmin_webhook_logs").
		Where(squirrel.Eq{"status": WebhookStatusFailed}).
		Where(squirrel.Lt{"retry_count": maxRetries}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var logs []*WebhookLog
	if err := pgxscan.Select(ctx, r.db, &logs, query, args...); err != nil {
		return nil, err
	}
	return logs, nil
}

// CountWebhookLogsByStatus aggregates log counts per status since the cutoff.
func (r *repository) CountWebhookLogsByStatus(ctx context.Context, since time.Time) (map[WebhookStatus]int, error) {
	query, args, err := r.psql.Select("status", "COUNT(*) AS count").
		From("garmin_webhook_logs").
		Where(squirrel.GtOrEq{"created_at": since}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[WebhookStatus]int)
	for rows.Next() {
		var status WebhookStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ListRecentWebhookLogs returns the newest logs regardless of status.
func (r *repository) ListRecentWebhookLogs(ctx context.Context, limit int) ([]*WebhookLog, error) {
	return r.listWebhookLogs(ctx, nil, limit)
}

// ListFailedWebhookLogs returns the newest failed logs.
func (r *repository) ListFailedWebhookLogs(ctx context.Context, limit int) ([]*WebhookLog, error) {
	return r.listWebhookLogs(ctx, squirrel.Eq{"status": WebhookStatusFailed}, limit)
}

func (r *repository) listWebhookLogs(ctx context.Context, condition squirrel.Sqlizer, limit int) ([]*WebhookLog, error) {
	builder := r.psql.Select("*").
		From("garmin_webhook_logs").
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	if condition != nil {
		builder = builder.Where(condition)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var logs []*WebhookLog
	if err := pgxscan.Select(ctx, r.db, &logs, query, args...); err != nil {
		return nil, err
	}
	return logs, nil
}

// DeleteWebhookLogsByGarminUserID removes all logs for a Garmin user.
// Part of deregistration/disconnect cleanup. exceptLogID, when non-empty,
// spares one log so an in-flight deregistration keeps its own outcome row.
func (r *repository) DeleteWebhookLogsByGarminUserID(ctx context.Context, garminUserID, exceptLogID string) error {
	builder := r.psql.Delete("garmin_webhook_logs").
		Where(squirrel.Eq{"garmin_user_id": garminUserID})
	if exceptLogID != "" {
		builder = builder.Where(squirrel.NotEq{"id": exceptLogID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}
