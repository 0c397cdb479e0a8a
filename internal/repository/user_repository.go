package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/talkabout/talkabout/internal/model"
	"github.com/talkabout/talkabout/internal/utils"
)

// UserRepo provides data access to the users table.
type UserRepo struct{ DB *sql.DB }

// NewUserRepo returns a new UserRepo bound to the provided database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns its ID.  The password is hashed
// with bcrypt at the given cost before storage.  Duplicate user codes
// or emails surface as ErrUserCodeExists.
func (r *UserRepo) Create(ctx context.Context, userCode, email, password, role string, cost int) (uint64, error) {
	userCode = strings.ToUpper(strings.TrimSpace(userCode))
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (user_code, email, password_hash, role) VALUES (?,?,?,?)",
		userCode, sql.NullString{String: email, Valid: email != ""}, hash, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrUserCodeExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

const userColumns = "id, user_code, COALESCE(email, ''), password_hash, role, is_active, created_at, updated_at"

// GetByCode fetches a user by their public code.
func (r *UserRepo) GetByCode(ctx context.Context, userCode string) (model.User, error) {
	userCode = strings.ToUpper(strings.TrimSpace(userCode))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE user_code=? LIMIT 1", userCode).
		Scan(&u.ID, &u.UserCode, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id).
		Scan(&u.ID, &u.UserCode, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
