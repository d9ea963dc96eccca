package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/wellness-service/internal/domain"
)

// KeeperRepository defines persistence access for staff accounts.
type KeeperRepository interface {
	Create(ctx context.Context, keeper *domain.Keeper) error
	GetByID(ctx context.Context, id string) (*domain.Keeper, error)
	GetByEmail(ctx context.Context, email string) (*domain.Keeper, error)
	MarkVerified(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type keeperRepository struct {
	pool *pgxpool.Pool
}

// NewKeeperRepository returns a Postgres-backed implementation.
func NewKeeperRepository(pool *pgxpool.Pool) KeeperRepository {
	return &keeperRepository{pool: pool}
}

func (r *keeperRepository) Create(ctx context.Context, keeper *domain.Keeper) error {
	const query = `
        INSERT INTO keepers (name, email, password_hash, active)
        VALUES ($1, $2, $3, $4)
        RETURNING id, verified, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		keeper.Name,
		keeper.Email,
		keeper.PasswordHash,
		keeper.Active,
	).Scan(&keeper.ID, &keeper.Verified, &keeper.CreatedAt, &keeper.UpdatedAt)
}

func (r *keeperRepository) GetByID(ctx context.Context, id string) (*domain.Keeper, error) {
	const query = `
        SELECT id, name, email, password_hash, verified, active, created_at, updated_at
        FROM keepers WHERE id=$1`
	return r.scanOne(ctx, query, id)
}

func (r *keeperRepository) GetByEmail(ctx context.Context, email string) (*domain.Keeper, error) {
	const query = `
        SELECT id, name, email, password_hash, verified, active, created_at, updated_at
        FROM keepers WHERE email=$1`
	return r.scanOne(ctx, query, email)
}

func (r *keeperRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `
        UPDATE keepers SET verified=TRUE, updated_at=NOW()
        WHERE id=$1`

	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *keeperRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
        UPDATE keepers SET password_hash=$1, updated_at=NOW()
        WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *keeperRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Keeper, error) {
	var keeper domain.Keeper
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&keeper.ID,
		&keeper.Name,
		&keeper.Email,
		&keeper.PasswordHash,
		&keeper.Verified,
		&keeper.Active,
		&keeper.CreatedAt,
		&keeper.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &keeper, nil
}
