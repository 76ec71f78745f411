package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectColumns = `
	SELECT id, title, COALESCE(description, ''), price, COALESCE(subject, ''), COALESCE(edition, ''),
	       condition, seller_name, contact_number, COALESCE(payment_method, ''),
	       image_url, COALESCE(seller_image, ''), COALESCE(qr_code_url, ''), user_id, created_at
	FROM books`

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

func (r *PostgresRepo) Insert(ctx context.Context, l *Listing) (string, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(l.OwnerID) == "" {
		verr.add("user_id", "owner is required")
	} else if _, err := uuid.Parse(l.OwnerID); err != nil {
		verr.add("user_id", "owner must be a UUID")
	}
	if strings.TrimSpace(l.ImageURL) == "" {
		verr.add("image_url", "cover image is required")
	}
	if err := verr.orNil(); err != nil {
		return "", err
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	const sql = `
		INSERT INTO books (title, description, price, subject, edition, condition, seller_name,
		                   contact_number, payment_method, image_url, seller_image, qr_code_url,
		                   user_id, created_at)
		VALUES ($1, NULLIF($2, ''), $3::numeric, NULLIF($4, ''), NULLIF($5, ''), $6, $7,
		        $8, NULLIF($9, ''), $10, NULLIF($11, ''), NULLIF($12, ''), $13, $14)
		RETURNING id, created_at`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, sql,
		l.Title, l.Description, l.Price.StringFixed(2), l.Subject, l.Edition, l.Condition, l.SellerName,
		l.ContactNumber, string(l.PaymentMethod), l.ImageURL, l.SellerImageURL, l.QRCodeURL,
		l.OwnerID, l.CreatedAt,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert listing: %w", err)
	}
	return l.ID, nil
}

func (r *PostgresRepo) QueryAll(ctx context.Context, f Filter) ([]Listing, error) {
	clauses := []string{"1=1"}
	args := []any{}
	argn := 1

	if q := NormalizeQuery(f.TitleContains); q != "" {
		clauses = append(clauses, fmt.Sprintf(`title ILIKE '%%' || $%d || '%%' ESCAPE '\'`, argn))
		args = append(args, escapeLike(q))
		argn++
	}

	sql := fmt.Sprintf("%s WHERE %s ORDER BY created_at DESC, id DESC", selectColumns, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argn, argn+1)
		args = append(args, f.Limit, f.Offset)
	}

	return r.query(ctx, sql, args...)
}

func (r *PostgresRepo) QueryByOwner(ctx context.Context, ownerID string) ([]Listing, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return []Listing{}, nil
	}
	return r.query(ctx, selectColumns+" WHERE user_id = $1 ORDER BY created_at DESC, id DESC", ownerID)
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Listing, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Listing{}, ErrNotFound
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	l, err := scanListing(r.db.QueryRow(timeoutCtx, selectColumns+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, err
	}
	return l, nil
}

// DeleteByID locks the row, checks ownership and deletes it in one transaction.
func (r *PostgresRepo) DeleteByID(ctx context.Context, id, requestingOwnerID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(timeoutCtx)

	var ownerID string
	err = tx.QueryRow(timeoutCtx, `SELECT user_id FROM books WHERE id = $1 FOR UPDATE`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !sameOwner(ownerID, requestingOwnerID) {
		return ErrPermission
	}

	if _, err := tx.Exec(timeoutCtx, `DELETE FROM books WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(timeoutCtx)
}

// sameOwner compares owner ids as UUIDs so spelling differences such as case
// or braces do not matter. An id that is not a UUID matches nothing.
func sameOwner(stored, requesting string) bool {
	a, err := uuid.Parse(stored)
	if err != nil {
		return false
	}
	b, err := uuid.Parse(strings.TrimSpace(requesting))
	if err != nil {
		return false
	}
	return a == b
}

func (r *PostgresRepo) query(ctx context.Context, sql string, args ...any) ([]Listing, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	var payment string
	err := row.Scan(
		&l.ID, &l.Title, &l.Description, &l.Price, &l.Subject, &l.Edition,
		&l.Condition, &l.SellerName, &l.ContactNumber, &payment,
		&l.ImageURL, &l.SellerImageURL, &l.QRCodeURL, &l.OwnerID, &l.CreatedAt,
	)
	l.PaymentMethod = PaymentMethod(payment)
	return l, err
}
