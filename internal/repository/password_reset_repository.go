package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/wellness-service/internal/domain"
)

// PasswordResetToken represents stored reset tokens. Unlike verification
// tokens these survive a process restart, so the expiry is absolute and
// consumption is a durable flag rather than an in-memory removal.
type PasswordResetToken struct {
	ID          string
	SubjectType domain.SubjectType
	SubjectID   string
	Token       string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// PasswordResetRepository manages password reset token persistence.
type PasswordResetRepository interface {
	Create(ctx context.Context, token *PasswordResetToken) error
	// GetValid returns the token row only when it is unused and unexpired;
	// otherwise pgx.ErrNoRows.
	GetValid(ctx context.Context, token string) (*PasswordResetToken, error)
	// Consume marks the token used and writes the new credential hash in one
	// transaction. Returns false when the token was already used, expired, or
	// unknown by the time the row lock was acquired.
	Consume(ctx context.Context, token, newPasswordHash string) (bool, error)
}

type passwordResetRepository struct {
	pool *pgxpool.Pool
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(pool *pgxpool.Pool) PasswordResetRepository {
	return &passwordResetRepository{pool: pool}
}

func (r *passwordResetRepository) Create(ctx context.Context, token *PasswordResetToken) error {
	const query = `
        INSERT INTO password_reset_tokens (subject_type, subject_id, token, expires_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		token.SubjectType,
		token.SubjectID,
		token.Token,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
}

func (r *passwordResetRepository) GetValid(ctx context.Context, tokenStr string) (*PasswordResetToken, error) {
	const query = `
        SELECT id, subject_type, subject_id, token, expires_at, used_at, created_at
        FROM password_reset_tokens
        WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()`
	var token PasswordResetToken
	if err := r.pool.QueryRow(ctx, query, tokenStr).Scan(
		&token.ID,
		&token.SubjectType,
		&token.SubjectID,
		&token.Token,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *passwordResetRepository) Consume(ctx context.Context, tokenStr, newPasswordHash string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Row lock so two concurrent redemption attempts serialize here; the
	// loser re-reads used_at IS NULL as false and gets no row.
	const lockQuery = `
        SELECT id, subject_type, subject_id
        FROM password_reset_tokens
        WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
        FOR UPDATE`

	var (
		id          string
		subjectType domain.SubjectType
		subjectID   string
	)
	if err := tx.QueryRow(ctx, lockQuery, tokenStr).Scan(&id, &subjectType, &subjectID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	var credentialQuery string
	switch subjectType {
	case domain.SubjectTypeUser:
		credentialQuery = `UPDATE users SET password_hash=$1, updated_at=NOW() WHERE id=$2`
	case domain.SubjectTypeKeeper:
		credentialQuery = `UPDATE keepers SET password_hash=$1, updated_at=NOW() WHERE id=$2`
	default:
		return false, fmt.Errorf("unknown subject type %q on reset token %s", subjectType, id)
	}

	cmd, err := tx.Exec(ctx, credentialQuery, newPasswordHash, subjectID)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx, `UPDATE password_reset_tokens SET used_at=NOW() WHERE id=$1`, id); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
