package profile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Profile{}, ErrNotFound
	}
	return r.getOne(ctx, `SELECT id, COALESCE(full_name, ''), email, updated_at FROM profiles WHERE id = $1`, id)
}

func (r *PostgresRepo) GetByEmail(ctx context.Context, email string) (Profile, error) {
	return r.getOne(ctx, `SELECT id, COALESCE(full_name, ''), email, updated_at FROM profiles WHERE lower(email) = lower($1) LIMIT 1`, email)
}

func (r *PostgresRepo) getOne(ctx context.Context, sql string, arg any) (Profile, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var p Profile
	err := r.db.QueryRow(timeoutCtx, sql, arg).Scan(&p.ID, &p.FullName, &p.Email, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// Upsert inserts or refreshes a profile. An empty ID is generated.
func (r *PostgresRepo) Upsert(ctx context.Context, p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const sql = `
		INSERT INTO profiles (id, full_name, email, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			updated_at = NOW()
		RETURNING updated_at`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.QueryRow(timeoutCtx, sql, p.ID, p.FullName, p.Email).Scan(&p.UpdatedAt)
}
