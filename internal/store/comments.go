package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

type Comment struct {
	ID        int64
	Content   string
	PostID    int64
	AuthorID  int64
	CreatedAt time.Time
}

type NewComment struct {
	Content  string
	PostID   int64
	AuthorID int64
}

var commentColumns = []string{"id", "content", "post_id", "author_id", "created_at"}

func scanComment(row scanner) (*Comment, error) {
	var (
		c       Comment
		created int64
	)
	if err := row.Scan(&c.ID, &c.Content, &c.PostID, &c.AuthorID, &created); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

func selectComments() sq.SelectBuilder {
	return sq.Select(commentColumns...).From("comments")
}

func (s *Store) CommentsByIDs(ctx context.Context, ids []int64) ([]*Comment, error) {
	return selectAll(ctx, s, selectComments().Where(sq.Eq{"id": ids}), scanComment)
}

func (s *Store) CommentByID(ctx context.Context, id int64) (*Comment, error) {
	return selectOne(ctx, s, selectComments().Where(sq.Eq{"id": id}), scanComment)
}

// CommentsByPostIDs returns the comments on every given post, oldest first.
func (s *Store) CommentsByPostIDs(ctx context.Context, postIDs []int64) ([]*Comment, error) {
	return selectAll(ctx, s, selectComments().Where(sq.Eq{"post_id": postIDs}).OrderBy("created_at", "id"), scanComment)
}

// CommentsByAuthorIDs returns the comments written by every given user, oldest first.
func (s *Store) CommentsByAuthorIDs(ctx context.Context, authorIDs []int64) ([]*Comment, error) {
	return selectAll(ctx, s, selectComments().Where(sq.Eq{"author_id": authorIDs}).OrderBy("created_at", "id"), scanComment)
}

func (s *Store) ListComments(ctx context.Context, page Page) ([]*Comment, error) {
	return selectAll(ctx, s, page.apply(selectComments().OrderBy("id")), scanComment)
}

func (s *Store) CreateComment(ctx context.Context, in NewComment) (*Comment, error) {
	now := fromMillis(toMillis(s.now()))
	res, err := s.exec(ctx, sq.Insert("comments").
		Columns("content", "post_id", "author_id", "created_at").
		Values(in.Content, in.PostID, in.AuthorID, toMillis(now)))
	if err != nil {
		return nil, errors.Wrap(err, "insert comment")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "insert comment")
	}
	return &Comment{ID: id, Content: in.Content, PostID: in.PostID, AuthorID: in.AuthorID, CreatedAt: now}, nil
}

func (s *Store) UpdateComment(ctx context.Context, id int64, content string) (*Comment, error) {
	if _, err := s.execOne(ctx, sq.Update("comments").Set("content", content).Where(sq.Eq{"id": id})); err != nil {
		return nil, errors.Wrapf(err, "update comment %d", id)
	}
	return s.CommentByID(ctx, id)
}

func (s *Store) DeleteComment(ctx context.Context, id int64) (*Comment, error) {
	c, err := s.CommentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.execOne(ctx, sq.Delete("comments").Where(sq.Eq{"id": id})); err != nil {
		return nil, errors.Wrapf(err, "delete comment %d", id)
	}
	return c, nil
}
