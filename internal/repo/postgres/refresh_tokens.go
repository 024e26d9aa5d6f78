package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	// ErrRefreshTokenReused means a rotated token was presented again. The
	// whole session family has been revoked by the time it is returned.
	ErrRefreshTokenReused = errors.New("refresh token reused")
)

type RefreshTokenRow struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

type RefreshTokensRepo struct {
	base
}

func NewRefreshTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *RefreshTokensRepo {
	return &RefreshTokensRepo{base{pool: pool, prom: prom}}
}

// Issue stores a token minted at login.
func (r *RefreshTokensRepo) Issue(ctx context.Context, row RefreshTokenRow) error {
	return r.Create(ctx, r.pool, row)
}

func (r *RefreshTokensRepo) Create(ctx context.Context, db DBTX, row RefreshTokenRow) error {
	return r.observe("refresh_tokens.create", func() error {
		_, err := db.Exec(ctx,
			`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.RevokedAt, row.ReplacedBy, row.CreatedAt)
		return err
	})
}

// GetForUpdate locks the row so two refreshes with the same token serialize.
func (r *RefreshTokensRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (RefreshTokenRow, error) {
	var row RefreshTokenRow

	err := r.observe("refresh_tokens.get_for_update", func() error {
		return tx.QueryRow(ctx, `
			SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
			FROM refresh_tokens
			WHERE id = $1
			FOR UPDATE`, id).Scan(
			&row.ID, &row.UserID, &row.TokenHash, &row.ExpiresAt,
			&row.RevokedAt, &row.ReplacedBy, &row.CreatedAt,
		)
	})
	if err != nil {
		return RefreshTokenRow{}, mapNoRows(err, ErrRefreshTokenNotFound)
	}

	return row, nil
}

func (r *RefreshTokensRepo) Revoke(ctx context.Context, db DBTX, id string, replacedBy *string) error {
	return r.observe("refresh_tokens.revoke", func() error {
		_, err := db.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = COALESCE(revoked_at, NOW()), replaced_by = COALESCE($2, replaced_by)
			WHERE id = $1`, id, replacedBy)
		return err
	})
}

func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	return r.observe("refresh_tokens.revoke_all", func() error {
		return revokeAllForUser(ctx, r.pool, userID)
	})
}

// RevokeByID revokes one token; revoking twice is a no-op.
func (r *RefreshTokensRepo) RevokeByID(ctx context.Context, id string) error {
	return r.Revoke(ctx, r.pool, id, nil)
}

// Rotate swaps the token oldID for next under a row lock so two refreshes
// racing with the same token cannot both succeed. presentedHash must match
// the stored hash.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, oldID, presentedHash string, next RefreshTokenRow) error {
	reused := false

	err := r.inTx(ctx, "refresh_tokens.rotate", func(tx pgx.Tx) error {
		row, err := r.GetForUpdate(ctx, tx, oldID)
		if err != nil {
			return err
		}
		if row.TokenHash != presentedHash || row.UserID != next.UserID {
			return ErrRefreshTokenNotFound
		}

		if row.RevokedAt != nil {
			// commit the family revocation, then report the reuse
			reused = true
			return revokeAllForUser(ctx, tx, row.UserID)
		}

		if time.Now().After(row.ExpiresAt) {
			return ErrRefreshTokenExpired
		}

		if err := r.Revoke(ctx, tx, row.ID, &next.ID); err != nil {
			return err
		}
		return r.Create(ctx, tx, next)
	})
	if err != nil {
		return err
	}
	if reused {
		return ErrRefreshTokenReused
	}
	return nil
}

func revokeAllForUser(ctx context.Context, db DBTX, userID string) error {
	_, err := db.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	return err
}

// DeleteStale prunes tokens that expired or were revoked before cutoff.
func (r *RefreshTokensRepo) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.observe("refresh_tokens.delete_stale", func() error {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM refresh_tokens WHERE expires_at < $1 OR revoked_at < $1`, cutoff)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}
