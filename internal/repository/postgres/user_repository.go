package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gocomet/carpool/internal/domain/user"
	"github.com/google/uuid"
)

const userColumns = `id, name, email, phone, password_hash, role, created_at`

// UserRepository implements user.Repository
type UserRepository struct {
	q querier
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{q: db}
}

// Create inserts a user. Emails are stored lower-cased.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (id, name, email, phone, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	u.Email = strings.ToLower(u.Email)
	_, err := r.q.ExecContext(ctx, query, u.ID, u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, strings.ToLower(email))
}

func (r *UserRepository) CountByRole(ctx context.Context) (map[user.Role]int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	defer rows.Close()

	counts := make(map[user.Role]int)
	for rows.Next() {
		var (
			role user.Role
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan user count: %w", err)
		}
		counts[role] = n
	}
	return counts, rows.Err()
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...interface{}) (*user.User, error) {
	var u user.User
	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
