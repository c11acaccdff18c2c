package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/oh-queue/internal/domain"
)

// UserRepository defines persistence access for queue participants.
type UserRepository interface {
	// Upsert provisions the identity by email, refreshing name and role.
	// CreditBalance is only applied to newly inserted rows.
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// LockByID loads the user and holds a row lock until the enclosing
	// transaction ends.
	LockByID(ctx context.Context, id int64) (*domain.User, error)
	// AdjustCreditBalance adds delta and returns the new balance. It fails
	// with ErrInsufficientCredit instead of going negative.
	AdjustCreditBalance(ctx context.Context, id int64, delta int) (int, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `SELECT id, email, name, is_staff, credit_balance, created_at, updated_at FROM users`

func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (email, name, is_staff, credit_balance)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (email) DO UPDATE SET name=EXCLUDED.name, is_staff=EXCLUDED.is_staff, updated_at=NOW()
        RETURNING id, credit_balance, created_at, updated_at`

	if err := conn(ctx, r.pool).QueryRow(ctx, query,
		user.Email,
		user.Name,
		user.IsStaff,
		user.CreditBalance,
	).Scan(&user.ID, &user.CreditBalance, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("upsert user %s: %w", user.Email, err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.fetchSingle(ctx, userColumns+` WHERE id=$1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, userColumns+` WHERE email=$1`, email)
}

func (r *userRepository) LockByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.fetchSingle(ctx, userColumns+` WHERE id=$1 FOR UPDATE`, id)
}

func (r *userRepository) AdjustCreditBalance(ctx context.Context, id int64, delta int) (int, error) {
	const query = `
        UPDATE users SET credit_balance = credit_balance + $2, updated_at=NOW()
        WHERE id=$1 AND credit_balance + $2 >= 0
        RETURNING credit_balance`

	var balance int
	if err := conn(ctx, r.pool).QueryRow(ctx, query, id, delta).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return 0, getErr
			}
			return 0, ErrInsufficientCredit
		}
		return 0, fmt.Errorf("adjust credit for user %d: %w", id, err)
	}
	return balance, nil
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := conn(ctx, r.pool).QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.IsStaff,
		&user.CreditBalance,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return &user, nil
}
