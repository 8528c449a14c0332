package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/sakif/codecanvas/internal/apperror"
	"github.com/sakif/codecanvas/internal/auth"
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/repository"
)

// ResetTokenTTL is how long a password reset link stays valid.
const ResetTokenTTL = time.Hour

const MaxFirstNameLength = 100

// errBadCredentials is deliberately vague: it does not say whether the email
// exists.
var errBadCredentials = apperror.Unauthorized("invalid email or password")

// AuthService handles account and session rules.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT), PasswordService (bcrypt)
//
// Unlike PenService it returns apperror values; the handlers translate them
// to HTTP statuses.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued session token so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignupInput is the signup form.
type SignupInput struct {
	Email     string `json:"emailAddress"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
}

// Signup creates an email/password account and signs it in.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.Password, validation.Required, passwordLength()),
		validation.Field(&in.FirstName, validation.RuneLength(0, MaxFirstNameLength)),
	)
	if err != nil {
		return nil, apperror.FromValidation(err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Email:        in.Email,
		FirstName:    in.FirstName,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("emailAddress", "an account with this email already exists")
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed up", slog.String("userID", user.ID))
	return s.issue(user)
}

// Login checks email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	if !user.HasPassword() {
		return nil, apperror.Unauthorized("this account signs in with GitHub")
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.InfoContext(ctx, "failed login", slog.String("userID", user.ID))
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: it upserts the
// account for the GitHub profile and issues a session.
//
// The repository links the GitHub ID to an existing signup with the same
// email, so one person never ends up with two accounts.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		FirstName: ghUser.FirstName(),
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.InfoContext(ctx, "user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)
	return s.issue(user)
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken validates a session JWT and returns the user ID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// SetPassword sets the password of a signed-in user. GitHub-only accounts
// go through this from the prompt-password page.
func (s *AuthService) SetPassword(ctx context.Context, userID, password string) error {
	if err := validation.Validate(password, validation.Required, passwordLength()); err != nil {
		return apperror.ValidationFailed("password", "password: "+err.Error())
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	if err := s.users.SetPasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("service/auth: setting password: %w", err)
	}
	s.logger.InfoContext(ctx, "password set", slog.String("userID", userID))
	return nil
}

// RequestPasswordReset returns a reset token for the account with email.
// An unknown email returns ("", nil) so callers cannot reveal which
// addresses are registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.InfoContext(ctx, "password reset for unknown email")
			return "", nil
		}
		return "", fmt.Errorf("service/auth: looking up user: %w", err)
	}

	token, err := s.tokens.GenerateBoundPurpose(user.ID, auth.PurposePasswordReset, user.PasswordHash, ResetTokenTTL)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	s.logger.InfoContext(ctx, "password reset requested", slog.String("userID", user.ID))
	return token, nil
}

// ResetPassword sets a new password using a reset token and signs the user
// in. The token is bound to the password hash it was issued against, so it
// stops working once the password changes.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) (*AuthResult, error) {
	userID, err := s.tokens.ValidateBoundPurpose(token, auth.PurposePasswordReset, func(id string) (string, error) {
		user, err := s.users.GetUserByID(ctx, id)
		if err != nil {
			return "", err
		}
		return user.PasswordHash, nil
	})
	if err != nil {
		return nil, apperror.Unauthorized("this reset link is invalid or has expired")
	}
	if err := s.SetPassword(ctx, userID, password); err != nil {
		return nil, err
	}
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func passwordLength() validation.Rule {
	return validation.Length(auth.MinPasswordLength, auth.MaxPasswordLength)
}
