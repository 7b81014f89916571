package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

type User struct {
	ID           int64
	Nickname     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUser holds the columns of a user to insert.
type NewUser struct {
	Nickname     string
	Email        string
	PasswordHash string
}

// UserPatch holds the columns to change; nil fields are left alone.
type UserPatch struct {
	Nickname *string
	Email    *string
}

var userColumns = []string{"id", "nickname", "email", "password_hash", "created_at"}

func scanUser(row scanner) (*User, error) {
	var (
		u       User
		hash    sql.NullString
		created int64
	)
	if err := row.Scan(&u.ID, &u.Nickname, &u.Email, &hash, &created); err != nil {
		return nil, err
	}
	u.PasswordHash = hash.String
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

func selectUsers() sq.SelectBuilder {
	return sq.Select(userColumns...).From("users")
}

// UsersByIDs returns the users with the given ids in no particular order.
func (s *Store) UsersByIDs(ctx context.Context, ids []int64) ([]*User, error) {
	return selectAll(ctx, s, selectUsers().Where(sq.Eq{"id": ids}), scanUser)
}

func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	return selectOne(ctx, s, selectUsers().Where(sq.Eq{"id": id}), scanUser)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	return selectOne(ctx, s, selectUsers().Where(sq.Eq{"email": email}), scanUser)
}

// ListUsers returns users ordered by id.
func (s *Store) ListUsers(ctx context.Context, page Page) ([]*User, error) {
	return selectAll(ctx, s, page.apply(selectUsers().OrderBy("id")), scanUser)
}

func (s *Store) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	now := s.now()
	var hash any
	if in.PasswordHash != "" {
		hash = in.PasswordHash
	}
	res, err := s.exec(ctx, sq.Insert("users").
		Columns("nickname", "email", "password_hash", "created_at").
		Values(in.Nickname, in.Email, hash, toMillis(now)))
	if err != nil {
		return nil, errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "insert user")
	}
	return &User{
		ID:           id,
		Nickname:     in.Nickname,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		CreatedAt:    fromMillis(toMillis(now)),
	}, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, patch UserPatch) (*User, error) {
	b := sq.Update("users").Where(sq.Eq{"id": id})
	changed := false
	if patch.Nickname != nil {
		b = b.Set("nickname", *patch.Nickname)
		changed = true
	}
	if patch.Email != nil {
		b = b.Set("email", *patch.Email)
		changed = true
	}
	if changed {
		if _, err := s.execOne(ctx, b); err != nil {
			return nil, errors.Wrapf(err, "update user %d", id)
		}
	}
	return s.UserByID(ctx, id)
}

func (s *Store) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	_, err := s.execOne(ctx, sq.Update("users").Set("password_hash", hash).Where(sq.Eq{"id": id}))
	return errors.Wrapf(err, "set password of user %d", id)
}

// DeleteUser removes the user with its posts and comments and returns the
// removed row.
func (s *Store) DeleteUser(ctx context.Context, id int64) (*User, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.execOne(ctx, sq.Delete("users").Where(sq.Eq{"id": id})); err != nil {
		return nil, errors.Wrapf(err, "delete user %d", id)
	}
	return u, nil
}
