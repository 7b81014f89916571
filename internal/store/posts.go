package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

type Post struct {
	ID        int64
	Title     string
	Content   string
	Published bool
	LikeCount int64
	AuthorID  int64
	CreatedAt time.Time
}

type NewPost struct {
	Title     string
	Content   string
	Published bool
	AuthorID  int64
}

type PostPatch struct {
	Title     *string
	Content   *string
	Published *bool
}

// PostSort orders a post query by one column. Column must be one of the
// PostSortColumns.
type PostSort struct {
	Column string
	Desc   bool
}

// PostSortColumns lists the columns posts can be ordered by.
var PostSortColumns = map[string]bool{"title": true, "created_at": true, "like_count": true}

// PostQuery selects posts. A nil Where matches every post.
type PostQuery struct {
	Where sq.Sqlizer
	Sort  PostSort
	Page  Page
}

var postColumns = []string{"id", "title", "content", "published", "like_count", "author_id", "created_at"}

func scanPost(row scanner) (*Post, error) {
	var (
		p       Post
		created int64
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Published, &p.LikeCount, &p.AuthorID, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(created)
	return &p, nil
}

func selectPosts() sq.SelectBuilder {
	return sq.Select(postColumns...).From("posts")
}

func (s *Store) PostsByIDs(ctx context.Context, ids []int64) ([]*Post, error) {
	return selectAll(ctx, s, selectPosts().Where(sq.Eq{"id": ids}), scanPost)
}

// PostsByAuthorIDs returns the posts of every given author, oldest first.
func (s *Store) PostsByAuthorIDs(ctx context.Context, authorIDs []int64) ([]*Post, error) {
	return selectAll(ctx, s, selectPosts().Where(sq.Eq{"author_id": authorIDs}).OrderBy("created_at", "id"), scanPost)
}

func (s *Store) PostByID(ctx context.Context, id int64) (*Post, error) {
	return selectOne(ctx, s, selectPosts().Where(sq.Eq{"id": id}), scanPost)
}

// FindPosts runs q. Without a sort column posts come newest first.
func (s *Store) FindPosts(ctx context.Context, q PostQuery) ([]*Post, error) {
	b := selectPosts()
	if q.Where != nil {
		b = b.Where(q.Where)
	}
	column, dir := "created_at", "DESC"
	if q.Sort.Column != "" {
		if !PostSortColumns[q.Sort.Column] {
			return nil, errors.Errorf("cannot sort posts by %q", q.Sort.Column)
		}
		column, dir = q.Sort.Column, "ASC"
		if q.Sort.Desc {
			dir = "DESC"
		}
	}
	b = b.OrderBy(column+" "+dir, "id "+dir)
	return selectAll(ctx, s, q.Page.apply(b), scanPost)
}

func (s *Store) CreatePost(ctx context.Context, in NewPost) (*Post, error) {
	now := fromMillis(toMillis(s.now()))
	res, err := s.exec(ctx, sq.Insert("posts").
		Columns("title", "content", "published", "like_count", "author_id", "created_at").
		Values(in.Title, in.Content, in.Published, 0, in.AuthorID, toMillis(now)))
	if err != nil {
		return nil, errors.Wrap(err, "insert post")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "insert post")
	}
	return &Post{
		ID:        id,
		Title:     in.Title,
		Content:   in.Content,
		Published: in.Published,
		AuthorID:  in.AuthorID,
		CreatedAt: now,
	}, nil
}

func (s *Store) UpdatePost(ctx context.Context, id int64, patch PostPatch) (*Post, error) {
	b := sq.Update("posts").Where(sq.Eq{"id": id})
	changed := false
	if patch.Title != nil {
		b = b.Set("title", *patch.Title)
		changed = true
	}
	if patch.Content != nil {
		b = b.Set("content", *patch.Content)
		changed = true
	}
	if patch.Published != nil {
		b = b.Set("published", *patch.Published)
		changed = true
	}
	if changed {
		if _, err := s.execOne(ctx, b); err != nil {
			return nil, errors.Wrapf(err, "update post %d", id)
		}
	}
	return s.PostByID(ctx, id)
}

// LikePost increments the like counter and returns the updated post.
func (s *Store) LikePost(ctx context.Context, id int64) (*Post, error) {
	_, err := s.execOne(ctx, sq.Update("posts").
		Set("like_count", sq.Expr("like_count + 1")).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, errors.Wrapf(err, "like post %d", id)
	}
	return s.PostByID(ctx, id)
}

func (s *Store) DeletePost(ctx context.Context, id int64) (*Post, error) {
	p, err := s.PostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.execOne(ctx, sq.Delete("posts").Where(sq.Eq{"id": id})); err != nil {
		return nil, errors.Wrapf(err, "delete post %d", id)
	}
	return p, nil
}
