package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/codecanvas/internal/apperror"
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, login, email, first_name, avatar_url, password_hash, created_at, updated_at`

// Upsert inserts or updates a user based on their GitHub ID.
//
// Lookup order:
//  1. an account already linked to this GitHub ID → refresh login/avatar
//  2. an account with the same email → link the GitHub ID to it
//  3. otherwise → insert a new account
//
// After the call, user holds the canonical stored record.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	user.Email = normalizeEmail(user.Email)

	existing, err := db.getUserBy(ctx, "github_id", user.GitHubID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}
	if existing == nil && user.Email != "" {
		existing, err = db.getUserBy(ctx, "email", user.Email)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("sqlite: looking up user by email: %w", err)
		}
	}

	now := time.Now()
	if existing != nil {
		existing.GitHubID = user.GitHubID
		existing.Login = user.Login
		existing.AvatarURL = user.AvatarURL
		if existing.Email == "" {
			existing.Email = user.Email
		}
		if existing.FirstName == "" {
			existing.FirstName = user.FirstName
		}
		existing.UpdatedAt = now

		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET github_id = ?, login = ?, email = ?, first_name = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			nullInt64(existing.GitHubID),
			existing.Login,
			nullString(existing.Email),
			existing.FirstName,
			existing.AvatarURL,
			existing.UpdatedAt,
			existing.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", existing.ID, err)
		}
		*user = *existing
		return nil
	}

	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := db.insertUser(ctx, user); err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}
	return nil
}

// CreateUser inserts an email/password account.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.Email = normalizeEmail(user.Email)

	var count int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ?`, user.Email,
	).Scan(&count); err != nil {
		return fmt.Errorf("sqlite: checking email: %w", err)
	}
	if count > 0 {
		return apperror.Conflict("user", user.Email)
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := db.insertUser(ctx, user); err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserBy(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email (case-insensitive).
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUserBy(ctx, "email", normalizeEmail(email))
}

// SetPasswordHash stores a new bcrypt hash for the user.
func (db *DB) SetPasswordHash(ctx context.Context, id, hash string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting password for %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (db *DB) insertUser(ctx context.Context, user *model.User) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullInt64(user.GitHubID),
		user.Login,
		nullString(user.Email),
		user.FirstName,
		user.AvatarURL,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

// getUserBy loads one user by a trusted column name. column is never user
// input; it is one of the literals used in this file.
func (db *DB) getUserBy(ctx context.Context, column string, value any) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
		email    sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
	).Scan(
		&u.ID,
		&githubID,
		&u.Login,
		&email,
		&u.FirstName,
		&u.AvatarURL,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(value))
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}

	u.GitHubID = githubID.Int64
	u.Email = email.String
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
