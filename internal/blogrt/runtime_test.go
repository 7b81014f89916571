package blogrt

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperr "github.com/hanpama/blogql/internal/apperr"
	auth "github.com/hanpama/blogql/internal/auth"
	blog "github.com/hanpama/blogql/internal/blog"
	eventbus "github.com/hanpama/blogql/internal/eventbus"
	events "github.com/hanpama/blogql/internal/events"
	executor "github.com/hanpama/blogql/internal/executor"
	language "github.com/hanpama/blogql/internal/language"
	store "github.com/hanpama/blogql/internal/store"
)

type harness struct {
	st   *store.Store
	svc  *blog.Service
	exec *executor.Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	issuer, err := auth.NewIssuer(auth.Config{AccessSecret: "access", RefreshSecret: "refresh", BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	svc := blog.NewService(st, issuer)
	_, err = svc.Seed(ctx)
	require.NoError(t, err)

	sch, err := Schema()
	require.NoError(t, err)
	rt := NewRuntime(NewBlogRegistry(svc), WithConcurrency(4))
	return &harness{st: st, svc: svc, exec: executor.NewExecutor(rt, sch)}
}

func (h *harness) do(t *testing.T, authorization, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	ctx := RequestContext(context.Background(), h.st, h.svc.Issuer(), LoaderConfig{}, authorization)
	return h.exec.ExecuteRequest(ctx, doc, "", vars, nil)
}

func requireNoErrors(t *testing.T, res *executor.ExecutionResult) map[string]any {
	t.Helper()
	require.Empty(t, res.Errors)
	return res.Data.(map[string]any)
}

type recorder struct {
	mu      sync.Mutex
	batches []events.LoaderBatch
	queries int
}

func record(t *testing.T) *recorder {
	t.Helper()
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	r := &recorder{}
	eventbus.Subscribe(func(_ context.Context, e events.LoaderBatch) {
		r.mu.Lock()
		r.batches = append(r.batches, e)
		r.mu.Unlock()
	})
	eventbus.Subscribe(func(_ context.Context, e events.Query) {
		r.mu.Lock()
		r.queries++
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) keysByLoader() map[string][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string][]int{}
	for _, b := range r.batches {
		out[b.Loader] = append(out[b.Loader], b.Keys)
	}
	return out
}

func TestOneBatchPerLoaderPerDepth(t *testing.T) {
	h := newHarness(t)
	rec := record(t)

	res := h.do(t, "", `{
  posts(sort: {field: title, order: asc}) {
    title
    author { nickname posts { title } }
    comments { content author { nickname } }
  }
}`, nil)
	data := requireNoErrors(t, res)

	posts := data["posts"].([]any)
	require.Len(t, posts, 4)
	first := posts[0].(map[string]any)
	require.Equal(t, "Another GraphQL post", first["title"])
	require.Equal(t, "bob", first["author"].(map[string]any)["nickname"])

	// depth 2 loads both authors at once; depth 3 only misses the commenter
	// who has not been seen yet.
	want := map[string][]int{
		"User":           {2, 1},
		"CommentsByPost": {4},
		"PostsByAuthor":  {2},
	}
	if diff := cmp.Diff(want, rec.keysByLoader()); diff != "" {
		t.Fatalf("loader batches mismatch (-want +got):\n%s", diff)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, 5, rec.queries)
}

func TestListQueriesPrimeLoaders(t *testing.T) {
	h := newHarness(t)
	rec := record(t)

	res := h.do(t, "", `{ posts { title comments { post { title } } } }`, nil)
	data := requireNoErrors(t, res)
	require.Len(t, data["posts"].([]any), 4)

	res = h.do(t, "", `{ users { nickname comments { author { nickname } } } }`, nil)
	data = requireNoErrors(t, res)
	require.Len(t, data["users"].([]any), 3)

	want := map[string][]int{
		"CommentsByPost":   {4},
		"CommentsByAuthor": {3},
	}
	if diff := cmp.Diff(want, rec.keysByLoader()); diff != "" {
		t.Fatalf("loader batches mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingEntities(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, "", `{ user(id: 999) { id } post(id: 999) { id } comment(id: 999) { id } }`, nil)
	data := requireNoErrors(t, res)
	require.Nil(t, data["user"])
	require.Nil(t, data["post"])
	require.Nil(t, data["comment"])

	res = h.do(t, "", `{ commentsByPost(postId: 999) { id } commentsByUser(userId: 3) { content } }`, nil)
	data = requireNoErrors(t, res)
	require.Empty(t, data["commentsByPost"])
	require.Len(t, data["commentsByUser"], 3)
}

func TestPostsFilterAndErrors(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, "", `query($f: PostFilterInput) { posts(filter: $f, sort: {field: title, order: asc}) { title published } }`,
		map[string]any{"f": map[string]any{
			"OR": []any{
				map[string]any{"title": "Draft"},
				map[string]any{"title": "Batching"},
			},
		}})
	data := requireNoErrors(t, res)
	titles := []string{}
	for _, p := range data["posts"].([]any) {
		titles = append(titles, p.(map[string]any)["title"].(string))
	}
	require.Equal(t, []string{"Batching with loaders", "Draft: filters"}, titles)

	res = h.do(t, "", `{ posts(filter: {title: ""}) { id } }`, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "BAD_USER_INPUT", res.Errors[0].Extensions["code"])
	validation := res.Errors[0].Extensions["validationErrors"].(map[string]any)
	require.Contains(t, validation["fieldErrors"], "filter.title")

	res = h.do(t, "", `{ posts(take: -1) { id } }`, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "BAD_USER_INPUT", res.Errors[0].Extensions["code"])
}

func TestMutationsRunInOrder(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, "", `mutation {
  first: createPost(input: {title: "one", content: "c", authorId: 3}) { id title author { nickname posts { title } } }
  liked: likePost(id: 1) { likeCount }
  again: likePost(id: 1) { likeCount }
  gone: deleteComment(id: 1)
}`, nil)
	data := requireNoErrors(t, res)

	first := data["first"].(map[string]any)
	require.Equal(t, "one", first["title"])
	author := first["author"].(map[string]any)
	require.Equal(t, "carol", author["nickname"])
	require.Equal(t, []any{map[string]any{"title": "one"}}, author["posts"])

	require.EqualValues(t, 1, data["liked"].(map[string]any)["likeCount"])
	require.EqualValues(t, 2, data["again"].(map[string]any)["likeCount"])
	require.Equal(t, true, data["gone"])

	res = h.do(t, "", `mutation { createUser(input: {nickname: "x", email: "bad"}) { id } }`, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "BAD_USER_INPUT", res.Errors[0].Extensions["code"])
	require.Nil(t, res.Data.(map[string]any)["createUser"])

	res = h.do(t, "", `mutation { deletePost(id: 999) }`, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "NOT_FOUND", res.Errors[0].Extensions["code"])
	require.Equal(t, "Post not found for id=999", res.Errors[0].Message)
}

func TestAuthOverGraphQL(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, "", `{ me { id } }`, nil)
	require.Nil(t, requireNoErrors(t, res)["me"])

	res = h.do(t, "", `mutation($e: String!, $p: String!) { login(email: $e, password: $p) { accessToken refreshToken user { nickname } } }`,
		map[string]any{"e": "alice@example.com", "p": blog.SeedPassword})
	login := requireNoErrors(t, res)["login"].(map[string]any)
	require.Equal(t, "alice", login["user"].(map[string]any)["nickname"])
	access := login["accessToken"].(string)

	res = h.do(t, "Bearer "+access, `{ me { nickname email createdAt } }`, nil)
	me := requireNoErrors(t, res)["me"].(map[string]any)
	require.Equal(t, "alice", me["nickname"])
	require.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`, me["createdAt"])

	res = h.do(t, "Bearer not-a-token", `{ me { id } }`, nil)
	require.Nil(t, requireNoErrors(t, res)["me"])

	res = h.do(t, "", `mutation { changePassword(oldPassword: "x", newPassword: "yyyyyy") }`, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "UNAUTHENTICATED", res.Errors[0].Extensions["code"])

	res = h.do(t, "Bearer "+access, `mutation { changePassword(oldPassword: "password123", newPassword: "secret99") logout }`, nil)
	data := requireNoErrors(t, res)
	require.Equal(t, true, data["changePassword"])
	require.Equal(t, true, data["logout"])

	res = h.do(t, "", `mutation { login(email: "alice@example.com", password: "password123") { accessToken } }`, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "UNAUTHENTICATED", res.Errors[0].Extensions["code"])
}

func TestInternalErrorsAreRedacted(t *testing.T) {
	reg := NewRegistry().Register("Query", "posts", func(context.Context, any, map[string]any) (Thunk, error) {
		return func(context.Context) (any, error) {
			return nil, errors.New("disk on fire")
		}, nil
	})
	rt := NewRuntime(reg)
	res := rt.BatchResolveAsync(context.Background(), []executor.AsyncResolveTask{
		{ObjectType: "Query", Field: "posts"},
		{ObjectType: "Query", Field: "missing"},
	})
	require.Len(t, res, 2)
	for _, r := range res {
		require.Equal(t, apperr.Internal, apperr.CodeOf(r.Error))
		require.Equal(t, "Internal server error", r.Error.Error())
	}
}

func TestResolverPanicsBecomeErrors(t *testing.T) {
	reg := NewRegistry().
		Register("Query", "a", func(context.Context, any, map[string]any) (Thunk, error) { panic("boom") }).
		Register("Query", "b", func(context.Context, any, map[string]any) (Thunk, error) { return Value(42), nil })
	rt := NewRuntime(reg)
	res := rt.BatchResolveAsync(context.Background(), []executor.AsyncResolveTask{
		{ObjectType: "Query", Field: "a"},
		{ObjectType: "Query", Field: "b"},
	})
	require.Error(t, res[0].Error)
	require.NoError(t, res[1].Error)
	require.Equal(t, 42, res[1].Value)
}

func TestSerializeLeaf(t *testing.T) {
	v, err := serializeLeaf("EmailAddress", "a@example.com")
	require.NoError(t, err)
	require.Equal(t, "a@example.com", v)

	_, err = serializeLeaf("EmailAddress", "nope")
	require.Error(t, err)

	_, err = serializeLeaf("Int", "1")
	require.Error(t, err)
}
