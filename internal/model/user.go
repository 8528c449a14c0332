// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// An account is created either by email/password signup or by the first
// GitHub login. GitHubID is 0 for accounts that never linked GitHub, and
// PasswordHash is empty for accounts that only ever used GitHub (those users
// are sent through the prompt-password flow before they can use a password).
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"emailAddress,omitempty"`
	FirstName    string    `json:"firstName,omitempty"`
	Login        string    `json:"login,omitempty"`     // GitHub username, e.g. "sakif"
	AvatarURL    string    `json:"avatarUrl,omitempty"` // Profile picture URL
	GitHubID     int64     `json:"githubId,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DisplayName is what the header greets the user with.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Login != "":
		return u.Login
	default:
		return u.Email
	}
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
