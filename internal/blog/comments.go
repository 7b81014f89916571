package blog

import (
	"context"

	store "github.com/hanpama/blogql/internal/store"
)

type CreateCommentInput struct {
	PostID   int64  `json:"postId" mapstructure:"postId" validate:"gt=0"`
	AuthorID int64  `json:"authorId" mapstructure:"authorId" validate:"gt=0"`
	Content  string `json:"content" mapstructure:"content" validate:"min=1"`
}

type UpdateCommentInput struct {
	ID      int64  `json:"id" mapstructure:"id" validate:"gt=0"`
	Content string `json:"content" mapstructure:"content" validate:"min=1"`
}

func (s *Service) Comment(ctx context.Context, id int64) (*store.Comment, error) {
	c, err := s.store.CommentByID(ctx, id)
	return c, storeError(err, "Comment", id)
}

func (s *Service) ListComments(ctx context.Context, skip, take *int) ([]*store.Comment, error) {
	p, ok, err := page(skip, take)
	if !ok {
		return []*store.Comment{}, err
	}
	comments, err := s.store.ListComments(ctx, p)
	return comments, storeError(err, "Comment", 0)
}

func (s *Service) CreateComment(ctx context.Context, in CreateCommentInput) (*store.Comment, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	c, err := s.store.CreateComment(ctx, store.NewComment{Content: in.Content, PostID: in.PostID, AuthorID: in.AuthorID})
	return c, storeError(err, "Comment", 0)
}

func (s *Service) UpdateComment(ctx context.Context, in UpdateCommentInput) (*store.Comment, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	c, err := s.store.UpdateComment(ctx, in.ID, in.Content)
	return c, storeError(err, "Comment", in.ID)
}

func (s *Service) DeleteComment(ctx context.Context, id int64) (*store.Comment, error) {
	c, err := s.store.DeleteComment(ctx, id)
	return c, storeError(err, "Comment", id)
}
