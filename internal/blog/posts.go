package blog

import (
	"context"
	"errors"

	apperr "github.com/hanpama/blogql/internal/apperr"
	filter "github.com/hanpama/blogql/internal/filter"
	store "github.com/hanpama/blogql/internal/store"
)

type CreatePostInput struct {
	Title     string `json:"title" mapstructure:"title" validate:"min=1,max=100"`
	Content   string `json:"content" mapstructure:"content" validate:"min=1"`
	Published bool   `json:"published" mapstructure:"published"`
	AuthorID  int64  `json:"authorId" mapstructure:"authorId" validate:"gt=0"`
}

type UpdatePostInput struct {
	Title     *string `json:"title" mapstructure:"title" validate:"omitempty,min=1,max=100"`
	Content   *string `json:"content" mapstructure:"content" validate:"omitempty,min=1"`
	Published *bool   `json:"published" mapstructure:"published"`
}

type PostSortInput struct {
	Field string `json:"field" mapstructure:"field" validate:"oneof=title createdAt likeCount"`
	Order string `json:"order" mapstructure:"order" validate:"oneof=asc desc"`
}

// PostsArgs are the arguments of the posts query. Filter is the coerced
// PostFilterInput object.
type PostsArgs struct {
	Filter map[string]any `json:"filter" mapstructure:"filter"`
	Sort   *PostSortInput `json:"sort" mapstructure:"sort"`
	Skip   *int           `json:"skip" mapstructure:"skip"`
	Take   *int           `json:"take" mapstructure:"take"`
}

var sortColumns = map[string]string{
	"title":     "title",
	"createdAt": "created_at",
	"likeCount": "like_count",
}

func (s *Service) Post(ctx context.Context, id int64) (*store.Post, error) {
	p, err := s.store.PostByID(ctx, id)
	return p, storeError(err, "Post", id)
}

// FindPosts lists posts matching args.Filter, newest first unless args.Sort
// says otherwise.
func (s *Service) FindPosts(ctx context.Context, args PostsArgs) ([]*store.Post, error) {
	q, ok, err := s.postQuery(args)
	if !ok {
		return []*store.Post{}, err
	}
	posts, err := s.store.FindPosts(ctx, q)
	return posts, storeError(err, "Post", 0)
}

func (s *Service) postQuery(args PostsArgs) (store.PostQuery, bool, error) {
	var q store.PostQuery
	if args.Sort != nil {
		if err := s.check(args.Sort); err != nil {
			return q, false, err
		}
		q.Sort = store.PostSort{Column: sortColumns[args.Sort.Field], Desc: args.Sort.Order == "desc"}
	}

	node, err := s.filters.Decode(args.Filter)
	if err != nil {
		return q, false, filterError(err)
	}
	where, err := s.compiler.Compile(node)
	if err != nil {
		return q, false, filterError(err)
	}
	q.Where = where

	p, ok, err := page(args.Skip, args.Take)
	q.Page = p
	return q, ok, err
}

func filterError(err error) error {
	var in *filter.InputError
	if errors.As(err, &in) {
		return &apperr.Error{
			Code:        apperr.BadUserInput,
			Message:     "Invalid input",
			FieldErrors: map[string][]string{in.Path: {in.Message}},
			Err:         err,
		}
	}
	return apperr.Wrap(err, apperr.Internal, "Internal server error")
}

func (s *Service) CreatePost(ctx context.Context, in CreatePostInput) (*store.Post, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	p, err := s.store.CreatePost(ctx, store.NewPost{
		Title:     in.Title,
		Content:   in.Content,
		Published: in.Published,
		AuthorID:  in.AuthorID,
	})
	return p, storeError(err, "Post", 0)
}

func (s *Service) UpdatePost(ctx context.Context, id int64, in UpdatePostInput) (*store.Post, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	p, err := s.store.UpdatePost(ctx, id, store.PostPatch{Title: in.Title, Content: in.Content, Published: in.Published})
	return p, storeError(err, "Post", id)
}

func (s *Service) LikePost(ctx context.Context, id int64) (*store.Post, error) {
	p, err := s.store.LikePost(ctx, id)
	return p, storeError(err, "Post", id)
}

func (s *Service) DeletePost(ctx context.Context, id int64) (*store.Post, error) {
	p, err := s.store.DeletePost(ctx, id)
	return p, storeError(err, "Post", id)
}
