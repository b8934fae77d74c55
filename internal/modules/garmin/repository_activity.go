package garmin

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

// UpsertActivity inserts or updates an activity keyed by its globally
// unique garmin_activity_id. Re-delivery of the same id updates the row,
// so duplicate and out-of-order webhook deliveries are safe.
func (r *repository) UpsertActivity(ctx context.Context, activity *Activity) error {
	now := time.Now()
	activity.CreatedAt = now
	activity.UpdatedAt = now
	if activity.SyncedAt.IsZero() {
		activity.SyncedAt = now
	}

	query, args, err := r.psql.Insert("garmin_activities").
		Columns("id", "user_id", "garmin_activity_id", "garmin_user_id", "activity_type",
			"start_time", "end_time", "duration_seconds", "distance_meters", "calories",
			"avg_heart_rate", "max_heart_rate", "min_heart_rate", "steps", "floors_climbed",
			"intensity_minutes", "is_manual", "is_auto_detected", "raw_payload",
			"synced_at", "created_at", "updated_at").
		Values(activity.ID, activity.UserID, activity.GarminActivityID, activity.GarminUserID,
			activity.ActivityType, activity.StartTime, activity.EndTime, activity.DurationSeconds,
			activity.DistanceMeters, activity.Calories, activity.AvgHeartRate, activity.MaxHeartRate,
			activity.MinHeartRate, activity.Steps, activity.FloorsClimbed, activity.IntensityMinutes,
			activity.IsManual, activity.IsAutoDetected, activity.RawPayload,
			activity.SyncedAt, activity.CreatedAt, activity.UpdatedAt).
		Suffix(`ON CONFLICT (garmin_activity_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			activity_type = EXCLUDED.activity_type,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			duration_seconds = EXCLUDED.duration_seconds,
			distance_meters = EXCLUDED.distance_meters,
			calories = EXCLUDED.calories,
			avg_heart_rate = EXCLUDED.avg_heart_rate,
			max_heart_rate = EXCLUDED.max_heart_rate,
			min_heart_rate = EXCLUDED.min_heart_rate,
			steps = EXCLUDED.steps,
			floors_climbed = EXCLUDED.floors_climbed,
			intensity_minutes = EXCLUDED.intensity_minutes,
			is_manual = EXCLUDED.is_manual,
			is_auto_detected = EXCLUDED.is_auto_detected,
			raw_payload = EXCLUDED.raw_payload,
			synced_at = EXCLUDED.synced_at,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// LatestActivitySyncedAt returns the newest synced_at for a user, or nil
// when the user has no stored activities.
func (r *repository) LatestActivitySyncedAt(ctx context.Context, userID string) (*time.Time, error) {
	query, args, err := r.psql.Select("synced_at").
		From("garmin_activities").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("synced_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var syncedAt time.Time
	if err := r.db.QueryRow(ctx, query, args...).Scan(&syncedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &syncedAt, nil
}

// ListActivities returns a user's activities newest-first, narrowed by the
// filter. Date bounds are inclusive against start_time.
func (r *repository) ListActivities(ctx context.Context, userID string, filter ActivityFilter) ([]*Activity, error) {
	builder := r.psql.Select("*").
		From("garmin_activities").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("start_time DESC")
	builder = applyActivityFilter(builder, filter)
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var activities []*Activity
	if err := pgxscan.Select(ctx, r.db, &activities, query, args...); err != nil {
		return nil, err
	}
	return activities, nil
}

// CountActivities returns the total matching rows for pagination.
func (r *repository) CountActivities(ctx context.Context, userID string, filter ActivityFilter) (int, error) {
	builder := r.psql.Select("COUNT(*)").
		From("garmin_activities").
		Where(squirrel.Eq{"user_id": userID})
	builder = applyActivityFilter(builder, filter)

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func applyActivityFilter(builder squirrel.SelectBuilder, filter ActivityFilter) squirrel.SelectBuilder {
	if filter.StartDate != nil {
		builder = builder.Where(squirrel.GtOrEq{"start_time": *filter.StartDate})
	}
	if filter.EndDate != nil {
		builder = builder.Where(squirrel.LtOrEq{"start_time": *filter.EndDate})
	}
	if filter.Type != "" {
		builder = builder.Where(squirrel.Eq{"activity_type": filter.Type})
	}
	return builder
}

// ListActivitiesSince returns all activities whose start_time falls on or
// after the cutoff, oldest first. Used by the statistics aggregator.
func (r *repository) ListActivitiesSince(ctx context.Context, userID string, since time.Time) ([]*Activity, error) {
	query, args, err := r.psql.Select("*").
		From("garmin_activities").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.GtOrEq{"start_time": since}).
		OrderBy("start_time ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var activities []*Activity
	if err := pgxscan.Select(ctx, r.db, &activities, query, args...); err != nil {
		return nil, err
	}
	return activities, nil
}

// DeleteActivitiesByUserID removes all of a user's activities. Part of the
// disconnect/deregistration cleanup contract.
func (r *repository) DeleteActivitiesByUserID(ctx context.Context, userID string) error {
	query, args, err := r.psql.Delete("garmin_activities").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}
