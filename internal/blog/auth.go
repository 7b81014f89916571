package blog

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	apperr "github.com/hanpama/blogql/internal/apperr"
	auth "github.com/hanpama/blogql/internal/auth"
	store "github.com/hanpama/blogql/internal/store"
)

// AuthPayload is returned by register, login and refreshToken.
type AuthPayload struct {
	AccessToken  string
	RefreshToken string
	User         *store.User
}

type RegisterInput struct {
	Nickname string `json:"nickname" validate:"min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6,max=72"`
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6"`
}

type passwordChange struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"min=6,max=72"`
}

var errAuthFailed = apperr.New(apperr.Unauthenticated, "Authentication failed")

func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthPayload, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if _, err := s.store.UserByEmail(ctx, in.Email); err == nil {
		return nil, emailTaken(store.ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, storeError(err, "User", 0)
	}

	hash, err := s.issuer.HashPassword(in.Password)
	if err != nil {
		return nil, hashFailure(err, "password")
	}
	u, err := s.store.CreateUser(ctx, store.NewUser{Nickname: in.Nickname, Email: in.Email, PasswordHash: hash})
	if errors.Is(err, store.ErrConflict) {
		return nil, emailTaken(err)
	}
	if err != nil {
		return nil, storeError(err, "User", 0)
	}
	return s.issue(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthPayload, error) {
	if err := s.check(credentials{Email: email, Password: password}); err != nil {
		return nil, err
	}
	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errAuthFailed
	}
	if err != nil {
		return nil, storeError(err, "User", 0)
	}
	if err := auth.ComparePassword(u.PasswordHash, password); err != nil {
		return nil, errAuthFailed
	}
	return s.issue(u)
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, token string) (*AuthPayload, error) {
	claims, err := s.issuer.VerifyRefresh(token)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Unauthenticated, "Invalid refresh token")
	}
	u, err := s.store.UserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, errAuthFailed
	}
	if err != nil {
		return nil, storeError(err, "User", claims.UserID())
	}
	return s.issue(u)
}

// ChangePassword replaces the password of the authenticated user after
// checking the old one.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	claims, ok := auth.UserFrom(ctx)
	if !ok {
		return apperr.New(apperr.Unauthenticated, "Authentication required")
	}
	if err := s.check(passwordChange{OldPassword: oldPassword, NewPassword: newPassword}); err != nil {
		return err
	}
	u, err := s.store.UserByID(ctx, claims.UserID())
	if err != nil {
		return storeError(err, "User", claims.UserID())
	}
	if err := auth.ComparePassword(u.PasswordHash, oldPassword); err != nil {
		return &apperr.Error{
			Code:        apperr.BadUserInput,
			Message:     "Invalid input",
			FieldErrors: map[string][]string{"oldPassword": {"does not match"}},
		}
	}
	hash, err := s.issuer.HashPassword(newPassword)
	if err != nil {
		return hashFailure(err, "newPassword")
	}
	return storeError(s.store.SetPasswordHash(ctx, u.ID, hash), "User", u.ID)
}

// Me returns the authenticated user, or nil for anonymous requests.
func (s *Service) Me(ctx context.Context) (*store.User, error) {
	claims, ok := auth.UserFrom(ctx)
	if !ok {
		return nil, nil
	}
	u, err := s.store.UserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return u, storeError(err, "User", claims.UserID())
}

// hashFailure reports passwords bcrypt refuses as invalid input on field.
// Multi-byte passwords can pass the max rule and still exceed 72 bytes.
func hashFailure(err error, field string) error {
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return apperr.Validation(map[string][]string{field: {"must be at most 72 bytes"}})
	}
	return apperr.Wrap(err, apperr.Internal, "Internal server error")
}

func (s *Service) issue(u *store.User) (*AuthPayload, error) {
	pair, err := s.issuer.Issue(u.ID, u.Email)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "Internal server error")
	}
	return &AuthPayload{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: u}, nil
}
