package garmin

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

// UpsertConnection creates the connection on first authorization and, on
// re-authorization, replaces tokens and scopes and clears needs_reauth.
// Uniqueness on user_id enforces at most one connection per local user.
func (r *repository) UpsertConnection(ctx context.Context, conn *Connection) error {
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	query, args, err := r.psql.Insert("garmin_connections").
		Columns("id", "user_id", "garmin_user_id", "access_token", "refresh_token",
			"token_expires_at", "scopes", "needs_reauth", "created_at", "updated_at").
		Values(conn.ID, conn.UserID, conn.GarminUserID, conn.AccessToken, conn.RefreshToken,
			conn.TokenExpiresAt, conn.Scopes, false, conn.CreatedAt, conn.UpdatedAt).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			garmin_user_id = EXCLUDED.garmin_user_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			scopes = EXCLUDED.scopes,
			needs_reauth = FALSE,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// FindConnectionByUserID retrieves the connection for a local user.
func (r *repository) FindConnectionByUserID(ctx context.Context, userID string) (*Connection, error) {
	return r.findConnection(ctx, squirrel.Eq{"user_id": userID})
}

// FindConnectionByGarminUserID retrieves the connection for a Garmin user id.
func (r *repository) FindConnectionByGarminUserID(ctx context.Context, garminUserID string) (*Connection, error) {
	return r.findConnection(ctx, squirrel.Eq{"garmin_user_id": garminUserID})
}

func (r *repository) findConnection(ctx context.Context, condition squirrel.Sqlizer) (*Connection, error) {
	query, args, err := r.psql.Select("*").
		From("garmin_connections").
		Where(condition).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var conn Connection
	err = pgxscan.Get(ctx, r.db, &conn, query, args...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConnected.WithCause(err)
		}
		return nil, err
	}

	return &conn, nil
}

// UpdateConnectionTokens stores a refreshed token pair without touching
// scopes or the needs_reauth flag.
func (r *repository) UpdateConnectionTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	query, args, err := r.psql.Update("garmin_connections").
		Set("access_token", accessToken).
		Set("refresh_token", refreshToken).
		Set("token_expires_at", expiresAt).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotConnected
	}
	return nil
}

// MarkNeedsReauthByUserID flags the connection of a local user for re-authorization.
func (r *repository) MarkNeedsReauthByUserID(ctx context.Context, userID string) error {
	return r.markNeedsReauth(ctx, squirrel.Eq{"user_id": userID})
}

// MarkNeedsReauthByGarminUserID flags the connection matching a Garmin user id.
// Used when a permissions webhook or an upstream 401/403 arrives.
func (r *repository) MarkNeedsReauthByGarminUserID(ctx context.Context, garminUserID string) error {
	return r.markNeedsReauth(ctx, squirrel.Eq{"garmin_user_id": garminUserID})
}

func (r *repository) markNeedsReauth(ctx context.Context, condition squirrel.Sqlizer) error {
	query, args, err := r.psql.Update("garmin_connections").
		Set("needs_reauth", true).
		Set("updated_at", time.Now()).
		Where(condition).
		ToSql()
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotConnected
	}
	return nil
}

// TouchLastSynced stamps the time of the most recent successful sync.
func (r *repository) TouchLastSynced(ctx context.Context, userID string, at time.Time) error {
	query, args, err := r.psql.Update("garmin_connections").
		Set("last_synced_at", at).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// DeleteConnectionByUserID removes a local user's connection.
func (r *repository) DeleteConnectionByUserID(ctx context.Context, userID string) error {
	return r.deleteConnection(ctx, squirrel.Eq{"user_id": userID})
}

// DeleteConnectionByGarminUserID removes the connection matching a Garmin
// user id. Used by deregistration webhooks.
func (r *repository) DeleteConnectionByGarminUserID(ctx context.Context, garminUserID string) error {
	return r.deleteConnection(ctx, squirrel.Eq{"garmin_user_id": garminUserID})
}

func (r *repository) deleteConnection(ctx context.Context, condition squirrel.Sqlizer) error {
	query, args, err := r.psql.Delete("garmin_connections").
		Where(condition).
		ToSql()
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotConnected
	}
	return nil
}
