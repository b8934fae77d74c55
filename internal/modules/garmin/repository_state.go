package garmin

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

// InsertAuthState inserts a new authorization state record.
func (r *repository) InsertAuthState(ctx context.Context, state *AuthorizationState) error {
	state.CreatedAt = time.Now()
	state.UpdatedAt = time.Now()

	query, args, err := r.psql.Insert("garmin_oauth_states").
		Columns("state", "code_verifier", "user_id", "status", "created_at", "updated_at").
		Values(state.State, state.CodeVerifier, state.UserID, state.Status, state.CreatedAt, state.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// GetAuthState retrieves an authorization state record by its state token.
func (r *repository) GetAuthState(ctx context.Context, state string) (*AuthorizationState, error) {
	query, args, err := r.psql.Select("*").
		From("garmin_oauth_states").
		Where(squirrel.Eq{"state": state}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var authState AuthorizationState
	err = pgxscan.Get(ctx, r.db, &authState, query, args...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound.WithCause(err)
		}
		return nil, err
	}

	return &authState, nil
}

// UpdateAuthStateStatus advances the lifecycle of an authorization state.
func (r *repository) UpdateAuthStateStatus(ctx context.Context, state string, status AuthStateStatus) error {
	query, args, err := r.psql.Update("garmin_oauth_states").
		Set("status", status).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"state": state}).
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

// DeleteExpiredAuthStates removes authorization states created before the
// given cutoff. Called opportunistically as a cleanup sweep.
func (r *repository) DeleteExpiredAuthStates(ctx context.Context, before time.Time) error {
	query, args, err := r.psql.Delete("garmin_oauth_states").
		Where(squirrel.Lt{"created_at": before}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	// No error when nothing matched; an empty sweep is the normal case.
	return err
}
