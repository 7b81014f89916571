package blogrt

import (
	"context"
	"time"

	auth "github.com/hanpama/blogql/internal/auth"
	loader "github.com/hanpama/blogql/internal/loader"
	reqid "github.com/hanpama/blogql/internal/reqid"
	store "github.com/hanpama/blogql/internal/store"
)

// Loaders are the per-request entity loaders.
type Loaders struct {
	UserByID         *loader.Loader[int64, *store.User]
	PostByID         *loader.Loader[int64, *store.Post]
	CommentByID      *loader.Loader[int64, *store.Comment]
	PostsByAuthor    *loader.Loader[int64, []*store.Post]
	CommentsByPost   *loader.Loader[int64, []*store.Comment]
	CommentsByAuthor *loader.Loader[int64, []*store.Comment]
}

// LoaderConfig tunes the loaders of every request.
type LoaderConfig struct {
	MaxBatch int           `mapstructure:"max_batch"`
	Wait     time.Duration `mapstructure:"wait"`
}

func (c LoaderConfig) options() []loader.Option {
	return []loader.Option{loader.WithMaxBatch(c.MaxBatch), loader.WithWait(c.Wait)}
}

// NewLoaders returns a fresh set of loaders reading from st.
func NewLoaders(st *store.Store, cfg LoaderConfig) *Loaders {
	opts := cfg.options()
	userID := func(u *store.User) int64 { return u.ID }
	postID := func(p *store.Post) int64 { return p.ID }
	commentID := func(c *store.Comment) int64 { return c.ID }
	return &Loaders{
		UserByID:         loader.New("User", st.UsersByIDs, userID, opts...),
		PostByID:         loader.New("Post", st.PostsByIDs, postID, opts...),
		CommentByID:      loader.New("Comment", st.CommentsByIDs, commentID, opts...),
		PostsByAuthor:    loader.NewGrouped("PostsByAuthor", st.PostsByAuthorIDs, func(p *store.Post) int64 { return p.AuthorID }, opts...),
		CommentsByPost:   loader.NewGrouped("CommentsByPost", st.CommentsByPostIDs, func(c *store.Comment) int64 { return c.PostID }, opts...),
		CommentsByAuthor: loader.NewGrouped("CommentsByAuthor", st.CommentsByAuthorIDs, func(c *store.Comment) int64 { return c.AuthorID }, opts...),
	}
}

// primeUsers, primePosts and primeComments seed the id loaders with rows a
// list query already fetched.
func (l *Loaders) primeUsers(users []*store.User) {
	for _, u := range users {
		l.UserByID.Prime(u.ID, u)
	}
}

func (l *Loaders) primePosts(posts []*store.Post) {
	for _, p := range posts {
		l.PostByID.Prime(p.ID, p)
	}
}

func (l *Loaders) primeComments(comments []*store.Comment) {
	for _, c := range comments {
		l.CommentByID.Prime(c.ID, c)
	}
}

// forgetAll empties every cache. Deleting a user also deletes their posts and
// every comment on them, which no per-key clear can track.
func (l *Loaders) forgetAll() {
	l.UserByID.ClearAll()
	l.PostByID.ClearAll()
	l.CommentByID.ClearAll()
	l.PostsByAuthor.ClearAll()
	l.CommentsByPost.ClearAll()
	l.CommentsByAuthor.ClearAll()
}

// forgetUser, forgetPost and forgetComment drop cache entries a mutation
// made stale.
func (l *Loaders) forgetUser(id int64) {
	l.UserByID.Clear(id)
	l.PostsByAuthor.Clear(id)
	l.CommentsByAuthor.Clear(id)
}

func (l *Loaders) forgetPost(p *store.Post) {
	l.PostByID.Clear(p.ID)
	l.PostsByAuthor.Clear(p.AuthorID)
	l.CommentsByPost.Clear(p.ID)
}

func (l *Loaders) forgetComment(c *store.Comment) {
	l.CommentByID.Clear(c.ID)
	l.CommentsByPost.Clear(c.PostID)
	l.CommentsByAuthor.Clear(c.AuthorID)
}

type loadersKey struct{}

// WithLoaders attaches l to ctx.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey{}, l)
}

// LoadersFrom returns the loaders attached to ctx, or nil.
func LoadersFrom(ctx context.Context) *Loaders {
	l, _ := ctx.Value(loadersKey{}).(*Loaders)
	return l
}

// RequestContext prepares the context of one GraphQL operation: it attaches
// fresh loaders and, when authorization carries a valid bearer access token,
// the caller's claims. Invalid tokens leave the request anonymous.
func RequestContext(ctx context.Context, st *store.Store, issuer *auth.Issuer, cfg LoaderConfig, authorization string) context.Context {
	ctx = WithLoaders(ctx, NewLoaders(st, cfg))
	if token := auth.BearerToken(authorization); token != "" {
		if claims, err := issuer.VerifyAccess(token); err == nil {
			ctx = auth.WithUser(ctx, claims)
		}
	}
	return ctx
}

func requestID(ctx context.Context) string {
	id, _ := reqid.FromContext(ctx)
	return id
}
