// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in sub-packages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/codecanvas/internal/model"
)

// UserRepository stores user accounts.
//
// Pens are not behind a repository interface: they live in the
// backend-as-a-service and are reached through records.Client.
type UserRepository interface {
	// Upsert creates or refreshes the account linked to user.GitHubID.
	// A new GitHub login whose email matches an existing account is linked
	// to that account instead of creating a second one.
	Upsert(ctx context.Context, user *model.User) error
	// CreateUser inserts an email/password account. It returns an
	// apperror.ErrConflict error when the email is already registered.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
}
