package blog

import (
	"context"
	"errors"

	apperr "github.com/hanpama/blogql/internal/apperr"
	store "github.com/hanpama/blogql/internal/store"
)

type CreateUserInput struct {
	Nickname string `json:"nickname" mapstructure:"nickname" validate:"min=2,max=100"`
	Email    string `json:"email" mapstructure:"email" validate:"required,email"`
}

type UpdateUserInput struct {
	Nickname *string `json:"nickname" mapstructure:"nickname" validate:"omitempty,min=2,max=100"`
	Email    *string `json:"email" mapstructure:"email" validate:"omitempty,email"`
}

func (s *Service) User(ctx context.Context, id int64) (*store.User, error) {
	u, err := s.store.UserByID(ctx, id)
	return u, storeError(err, "User", id)
}

func (s *Service) ListUsers(ctx context.Context, skip, take *int) ([]*store.User, error) {
	p, ok, err := page(skip, take)
	if !ok {
		return []*store.User{}, err
	}
	users, err := s.store.ListUsers(ctx, p)
	return users, storeError(err, "User", 0)
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*store.User, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	u, err := s.store.CreateUser(ctx, store.NewUser{Nickname: in.Nickname, Email: in.Email})
	if errors.Is(err, store.ErrConflict) {
		return nil, emailTaken(err)
	}
	return u, storeError(err, "User", 0)
}

func (s *Service) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*store.User, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	u, err := s.store.UpdateUser(ctx, id, store.UserPatch{Nickname: in.Nickname, Email: in.Email})
	if errors.Is(err, store.ErrConflict) {
		return nil, emailTaken(err)
	}
	return u, storeError(err, "User", id)
}

// DeleteUser removes the user together with their posts and comments.
func (s *Service) DeleteUser(ctx context.Context, id int64) (*store.User, error) {
	u, err := s.store.DeleteUser(ctx, id)
	return u, storeError(err, "User", id)
}

func emailTaken(err error) error {
	return &apperr.Error{
		Code:        apperr.Conflict,
		Message:     "Email already exists",
		FieldErrors: map[string][]string{"email": {"is already registered"}},
		Err:         err,
	}
}
