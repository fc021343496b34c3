package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	apperrors "github.com/target/cyano-batch/internal/errors"
)

// UserRepo reads account records. Accounts are created by the account service;
// Ensure exists for seeding and tests.
type UserRepo struct {
	DB *sql.DB
}

var _ core.UserRepository = (*UserRepo)(nil)

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

// GetByUsername resolves a username to its account record.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, model.ErrUserNotFound
	}
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, username, email FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", apperrors.MapDBError(err))
	}
	return &u, nil
}

// Ensure inserts the user when absent and updates the email otherwise.
func (r *UserRepo) Ensure(ctx context.Context, username, email string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, `
    INSERT INTO users (username, email) VALUES ($1, $2)
    ON CONFLICT (username) DO UPDATE SET email = EXCLUDED.email
    RETURNING id, username, email`, strings.TrimSpace(username), email,
	).Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", apperrors.MapDBError(err))
	}
	return &u, nil
}
