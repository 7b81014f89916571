package blogrt

import (
	"context"
	"errors"
	"fmt"

	blog "github.com/hanpama/blogql/internal/blog"
	loader "github.com/hanpama/blogql/internal/loader"
	store "github.com/hanpama/blogql/internal/store"
)

// NewBlogRegistry returns the resolvers of the blog schema backed by svc.
func NewBlogRegistry(svc *blog.Service) *Registry {
	r := &resolvers{svc: svc}
	reg := NewRegistry()

	reg.Register("Query", "user", r.user).
		Register("Query", "users", r.users).
		Register("Query", "post", r.post).
		Register("Query", "posts", r.posts).
		Register("Query", "comment", r.comment).
		Register("Query", "comments", r.comments).
		Register("Query", "commentsByPost", r.commentsByPost).
		Register("Query", "commentsByUser", r.commentsByUser).
		Register("Query", "me", r.me)

	reg.Register("User", "posts", r.userPosts).
		Register("User", "comments", r.userComments).
		Register("Post", "author", r.postAuthor).
		Register("Post", "comments", r.postComments).
		Register("Comment", "post", r.commentPost).
		Register("Comment", "author", r.commentAuthor)

	reg.Register("Mutation", "createUser", r.createUser).
		Register("Mutation", "updateUser", r.updateUser).
		Register("Mutation", "deleteUser", r.deleteUser).
		Register("Mutation", "createPost", r.createPost).
		Register("Mutation", "updatePost", r.updatePost).
		Register("Mutation", "deletePost", r.deletePost).
		Register("Mutation", "likePost", r.likePost).
		Register("Mutation", "createComment", r.createComment).
		Register("Mutation", "updateComment", r.updateComment).
		Register("Mutation", "deleteComment", r.deleteComment).
		Register("Mutation", "register", r.register).
		Register("Mutation", "login", r.login).
		Register("Mutation", "refreshToken", r.refreshToken).
		Register("Mutation", "changePassword", r.changePassword).
		Register("Mutation", "logout", r.logout)

	return reg
}

type resolvers struct {
	svc *blog.Service
}

var errNoLoaders = errors.New("blogrt: request context has no loaders")

func loadersOf(ctx context.Context) (*Loaders, error) {
	if l := LoadersFrom(ctx); l != nil {
		return l, nil
	}
	return nil, errNoLoaders
}

func sourceAs[T any](source any) (T, error) {
	v, ok := source.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("blogrt: unexpected source %T, want %T", source, zero)
	}
	return v, nil
}

// optional turns a missing entity into null.
func optional[V any](f *loader.Future[V]) Thunk {
	return func(ctx context.Context) (any, error) {
		v, err := f.Wait(ctx)
		if errors.Is(err, loader.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func required[V any](f *loader.Future[V]) Thunk {
	return func(ctx context.Context) (any, error) {
		v, err := f.Wait(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// ---- Query ----

func (r *resolvers) user(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	id, err := intArg(args, "id")
	if err != nil {
		return nil, err
	}
	return optional(l.UserByID.Load(ctx, id)), nil
}

func (r *resolvers) users(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	skip, take, err := pageArgs(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		users, err := r.svc.ListUsers(ctx, skip, take)
		if err != nil {
			return nil, err
		}
		l.primeUsers(users)
		return users, nil
	}, nil
}

func (r *resolvers) post(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	id, err := intArg(args, "id")
	if err != nil {
		return nil, err
	}
	return optional(l.PostByID.Load(ctx, id)), nil
}

func (r *resolvers) posts(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	var in blog.PostsArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		posts, err := r.svc.FindPosts(ctx, in)
		if err != nil {
			return nil, err
		}
		l.primePosts(posts)
		return posts, nil
	}, nil
}

func (r *resolvers) comment(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	id, err := intArg(args, "id")
	if err != nil {
		return nil, err
	}
	return optional(l.CommentByID.Load(ctx, id)), nil
}

func (r *resolvers) comments(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	skip, take, err := pageArgs(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		comments, err := r.svc.ListComments(ctx, skip, take)
		if err != nil {
			return nil, err
		}
		l.primeComments(comments)
		return comments, nil
	}, nil
}

func (r *resolvers) commentsByPost(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	id, err := intArg(args, "postId")
	if err != nil {
		return nil, err
	}
	return required(l.CommentsByPost.Load(ctx, id)), nil
}

func (r *resolvers) commentsByUser(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	id, err := intArg(args, "userId")
	if err != nil {
		return nil, err
	}
	return required(l.CommentsByAuthor.Load(ctx, id)), nil
}

func (r *resolvers) me(ctx context.Context, _ any, _ map[string]any) (Thunk, error) {
	return func(ctx context.Context) (any, error) {
		u, err := r.svc.Me(ctx)
		if err != nil || u == nil {
			return nil, err
		}
		return u, nil
	}, nil
}

func pageArgs(args map[string]any) (skip, take *int, err error) {
	if skip, err = optInt(args, "skip"); err != nil {
		return nil, nil, err
	}
	if take, err = optInt(args, "take"); err != nil {
		return nil, nil, err
	}
	return skip, take, nil
}

// ---- relations ----

func (r *resolvers) userPosts(ctx context.Context, source any, _ map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	u, err := sourceAs[*store.User](source)
	if err != nil {
		return nil, err
	}
	f := l.PostsByAuthor.Load(ctx, u.ID)
	return func(ctx context.Context) (any, error) {
		posts, err := f.Wait(ctx)
		if err != nil {
			return nil, err
		}
		l.primePosts(posts)
		return posts, nil
	}, nil
}

func (r *resolvers) userComments(ctx context.Context, source any, _ map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	u, err := sourceAs[*store.User](source)
	if err != nil {
		return nil, err
	}
	return required(l.CommentsByAuthor.Load(ctx, u.ID)), nil
}

func (r *resolvers) postAuthor(ctx context.Context, source any, _ map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	p, err := sourceAs[*store.Post](source)
	if err != nil {
		return nil, err
	}
	return required(l.UserByID.Load(ctx, p.AuthorID)), nil
}

func (r *resolvers) postComments(ctx context.Context, source any, _ map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	p, err := sourceAs[*store.Post](source)
	if err != nil {
		return nil, err
	}
	return required(l.CommentsByPost.Load(ctx, p.ID)), nil
}

func (r *resolvers) commentPost(ctx context.Context, source any, _ map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	c, err := sourceAs[*store.Comment](source)
	if err != nil {
		return nil, err
	}
	return required(l.PostByID.Load(ctx, c.PostID)), nil
}

func (r *resolvers) commentAuthor(ctx context.Context, source any, _ map[string]any) (Thunk, error) {
	l, err := loadersOf(ctx)
	if err != nil {
		return nil, err
	}
	c, err := sourceAs[*store.Comment](source)
	if err != nil {
		return nil, err
	}
	return required(l.UserByID.Load(ctx, c.AuthorID)), nil
}

// ---- Mutation ----
//
// Mutation resolvers run inside ResolveSync. They keep the request's loaders
// consistent with what they wrote.

func (r *resolvers) createUser(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	var in blog.CreateUserInput
	if err := decodeInput(args, "input", &in); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		u, err := r.svc.CreateUser(ctx, in)
		if err != nil {
			return nil, err
		}
		if l := LoadersFrom(ctx); l != nil {
			l.primeUsers([]*store.User{u})
		}
		return u, nil
	}, nil
}

func (r *resolvers) updateUser(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	id, err := intArg(args, "id")
	if err != nil {
		return nil, err
	}
	var in blog.UpdateUserInput
	if err := decodeInput(args, "input", &in); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		u, err := r.svc.UpdateUser(ctx, id, in)
		if err != nil {
			return nil, err
		}
		if l := LoadersFrom(ctx); l != nil {
			l.forgetUser(u.ID)
			l.primeUsers([]*store.User{u})
		}
		return u, nil
	}, nil
}

func (r *resolvers) deleteUser(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	id, err := intArg(args, "id")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		if _, err := r.svc.DeleteUser(ctx, id); err != nil {
			return nil, err
		}
		if l := LoadersFrom(ctx); l != nil {
			l.forgetAll()
		}
		return true, nil
	}, nil
}

func (r *resolvers) createPost(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	var in blog.CreatePostInput
	if err := decodeInput(args, "input", &in); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		p, err := r.svc.CreatePost(ctx, in)
		if err != nil {
			return nil, err
		}
		if l := LoadersFrom(ctx); l != nil {
			l.forgetPost(p)
			l.primePosts([]*store.Post{p})
		}
		return p, nil
	}, nil
}

func (r *resolvers) updatePost(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	id, err := intArg(args, "id")
	if err != nil {
		return nil, err
	}
	var in blog.UpdatePostInput
	if err := decodeInput(args, "input", &in); err != nil {
		return nil, err
	}
	return r.postMutation(func(ctx context.Context) (*store.Post, error) {
		return r.svc.UpdatePost(ctx, id, in)
	}), nil
}

func (r *resolvers) likePost(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	id, err := intArg(args, "id")
	if err != nil {
		return nil, err
	}
	return r.postMutation(func(ctx context.Context) (*store.Post, error) {
		return r.svc.LikePost(ctx, id)
	}), nil
}

func (r *resolvers) postMutation(do func(context.Context) (*store.Post, error)) Thunk {
	return func(ctx context.Context) (any, error) {
		p, err := do(ctx)
		if err != nil {
			return nil, err
		}
		if l := LoadersFrom(ctx); l != nil {
			l.forgetPost(p)
			l.primePosts([]*store.Post{p})
		}
		return p, nil
	}
}

func (r *resolvers) deletePost(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	id, err := intArg(args, "id")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		p, err := r.svc.DeletePost(ctx, id)
		if err != nil {
			return nil, err
		}
		if l := LoadersFrom(ctx); l != nil {
			l.forgetPost(p)
		}
		return true, nil
	}, nil
}

func (r *resolvers) createComment(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	var in blog.CreateCommentInput
	if err := decodeInput(args, "input", &in); err != nil {
		return nil, err
	}
	return r.commentMutation(func(ctx context.Context) (*store.Comment, error) {
		return r.svc.CreateComment(ctx, in)
	}), nil
}

func (r *resolvers) updateComment(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	var in blog.UpdateCommentInput
	if err := decodeInput(args, "input", &in); err != nil {
		return nil, err
	}
	return r.commentMutation(func(ctx context.Context) (*store.Comment, error) {
		return r.svc.UpdateComment(ctx, in)
	}), nil
}

func (r *resolvers) commentMutation(do func(context.Context) (*store.Comment, error)) Thunk {
	return func(ctx context.Context) (any, error) {
		c, err := do(ctx)
		if err != nil {
			return nil, err
		}
		if l := LoadersFrom(ctx); l != nil {
			l.forgetComment(c)
			l.primeComments([]*store.Comment{c})
		}
		return c, nil
	}
}

func (r *resolvers) deleteComment(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	id, err := intArg(args, "id")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		c, err := r.svc.DeleteComment(ctx, id)
		if err != nil {
			return nil, err
		}
		if l := LoadersFrom(ctx); l != nil {
			l.forgetComment(c)
		}
		return true, nil
	}, nil
}

func (r *resolvers) register(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	var in blog.RegisterInput
	if err := decodeInput(args, "input", &in); err != nil {
		return nil, err
	}
	return r.authMutation(func(ctx context.Context) (*blog.AuthPayload, error) {
		return r.svc.Register(ctx, in)
	}), nil
}

func (r *resolvers) login(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	email, password := stringArg(args, "email"), stringArg(args, "password")
	return r.authMutation(func(ctx context.Context) (*blog.AuthPayload, error) {
		return r.svc.Login(ctx, email, password)
	}), nil
}

func (r *resolvers) refreshToken(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	token := stringArg(args, "token")
	return r.authMutation(func(ctx context.Context) (*blog.AuthPayload, error) {
		return r.svc.Refresh(ctx, token)
	}), nil
}

func (r *resolvers) authMutation(do func(context.Context) (*blog.AuthPayload, error)) Thunk {
	return func(ctx context.Context) (any, error) {
		p, err := do(ctx)
		if err != nil {
			return nil, err
		}
		if l := LoadersFrom(ctx); l != nil {
			l.primeUsers([]*store.User{p.User})
		}
		return p, nil
	}
}

func (r *resolvers) changePassword(ctx context.Context, _ any, args map[string]any) (Thunk, error) {
	oldPassword, newPassword := stringArg(args, "oldPassword"), stringArg(args, "newPassword")
	return func(ctx context.Context) (any, error) {
		if err := r.svc.ChangePassword(ctx, oldPassword, newPassword); err != nil {
			return nil, err
		}
		return true, nil
	}, nil
}

// logout always succeeds; tokens are stateless and expire on their own.
func (r *resolvers) logout(context.Context, any, map[string]any) (Thunk, error) {
	return Value(true), nil
}
