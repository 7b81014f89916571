package executor_test

import (
	"context"
	"maps"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/blogql/internal/executor"
	language "github.com/hanpama/blogql/internal/language"
	schema "github.com/hanpama/blogql/internal/schema"
)

const blogSDL = `
directive @resolver on FIELD_DEFINITION

scalar DateTime

enum Role { ADMIN AUTHOR }

type User {
  id: Int!
  nickname: String!
  role: Role!
  joined: DateTime
  posts: [Post!]! @resolver
}

type Post {
  id: Int!
  title: String!
  draft: Boolean
  tags: [String]
  author: User! @resolver
  editor: User @resolver
}

type Comment {
  id: Int!
  content: String!
}

union SearchResult = Post | Comment

input PostFilter {
  title: String
  published: Boolean = true
  authorId: Int!
}

type Query {
  user(id: Int!): User
  posts(first: Int = 10, filter: PostFilter): [Post!]!
  search(text: String!): [SearchResult!]!
  featured: Post!
}

type Mutation {
  likePost(id: Int!): Post!
  publish(id: Int!): Post
}
`

var (
	alice = map[string]any{"id": 1, "nickname": "alice", "role": "ADMIN"}
	bob   = map[string]any{"id": 2, "nickname": "bob", "role": "AUTHOR"}
	post1 = map[string]any{"id": 1, "title": "GraphQL basics", "authorId": 1}
	post2 = map[string]any{"id": 2, "title": "Batching with loaders", "authorId": 1}
	post3 = map[string]any{"id": 3, "title": "Another GraphQL post", "authorId": 2}

	usersByID = map[int]map[string]any{1: alice, 2: bob}
	postsByID = map[int]map[string]any{1: post1, 2: post2, 3: post3}
)

func blogSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(blogSDL)
	require.NoError(t, err)
	return sch
}

func prop(name string) executor.MockResolver {
	return func(_ context.Context, src any, _ map[string]any) (any, error) {
		return src.(map[string]any)[name], nil
	}
}

// newBlogRuntime projects every scalar field from map sources and resolves
// relations from the fixtures above; extra overrides or adds resolvers.
func newBlogRuntime(extra map[string]executor.MockResolver) *executor.MockRuntime {
	rs := map[string]executor.MockResolver{
		"Query.user": func(_ context.Context, _ any, args map[string]any) (any, error) {
			id, _ := args["id"].(int)
			return usersByID[id], nil
		},
		"Post.author": func(_ context.Context, src any, _ map[string]any) (any, error) {
			return usersByID[src.(map[string]any)["authorId"].(int)], nil
		},
		"User.posts": func(_ context.Context, src any, _ map[string]any) (any, error) {
			var out []any
			for id := 1; id <= len(postsByID); id++ {
				if postsByID[id]["authorId"] == src.(map[string]any)["id"] {
					out = append(out, postsByID[id])
				}
			}
			return out, nil
		},
	}
	for _, f := range []string{
		"User.id", "User.nickname", "User.role", "User.joined",
		"Post.id", "Post.title", "Post.draft", "Post.tags",
		"Comment.id", "Comment.content",
	} {
		_, name, _ := strings.Cut(f, ".")
		rs[f] = prop(name)
	}
	maps.Copy(rs, extra)
	return executor.NewMockRuntime(rs)
}

func run(t *testing.T, rt executor.Runtime, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	return runOp(t, rt, query, "", vars)
}

func runOp(t *testing.T, rt executor.Runtime, query, operation string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return executor.NewExecutor(rt, blogSchema(t)).ExecuteRequest(context.Background(), doc, operation, vars, nil)
}

func asyncCalls(rt *executor.MockRuntime) []executor.Call {
	var out []executor.Call
	for _, c := range rt.GetCalls() {
		if c.Kind == executor.CallKindAsync {
			out = append(out, c)
		}
	}
	return out
}

func requireData(t *testing.T, want any, res *executor.ExecutionResult) {
	t.Helper()
	require.Empty(t, res.Errors)
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestOneBatchPerDepth(t *testing.T) {
	rt := newBlogRuntime(map[string]executor.MockResolver{
		"Query.posts": executor.NewMockValueResolver([]any{post1, post3}),
	})

	res := run(t, rt, `{ posts { title author { nickname posts { id } } } }`, nil)
	requireData(t, map[string]any{
		"posts": []any{
			map[string]any{
				"title": "GraphQL basics",
				"author": map[string]any{
					"nickname": "alice",
					"posts":    []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
				},
			},
			map[string]any{
				"title": "Another GraphQL post",
				"author": map[string]any{
					"nickname": "bob",
					"posts":    []any{map[string]any{"id": 3}},
				},
			},
		},
	}, res)

	want := []executor.Call{
		{Kind: "async", ObjectType: "Query", Field: "posts", Args: map[string]any{"first": 10}, BatchID: 1},
		{Kind: "async", ObjectType: "Post", Field: "author", Source: post1, Args: map[string]any{}, BatchID: 2},
		{Kind: "async", ObjectType: "Post", Field: "author", Source: post3, Args: map[string]any{}, BatchID: 2},
		{Kind: "async", ObjectType: "User", Field: "posts", Source: alice, Args: map[string]any{}, BatchID: 3},
		{Kind: "async", ObjectType: "User", Field: "posts", Source: bob, Args: map[string]any{}, BatchID: 3},
	}
	if diff := cmp.Diff(want, asyncCalls(rt)); diff != "" {
		t.Fatalf("async calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncFieldsResolveInline(t *testing.T) {
	rt := newBlogRuntime(map[string]executor.MockResolver{
		"Mutation.likePost": func(_ context.Context, _ any, args map[string]any) (any, error) {
			return postsByID[args["id"].(int)], nil
		},
	})

	res := run(t, rt, `mutation { likePost(id: 3) { title author { nickname } } }`, nil)
	requireData(t, map[string]any{
		"likePost": map[string]any{
			"title":  "Another GraphQL post",
			"author": map[string]any{"nickname": "bob"},
		},
	}, res)

	want := []executor.Call{
		{Kind: "sync", ObjectType: "Mutation", Field: "likePost", Args: map[string]any{"id": 3}},
		{Kind: "sync", ObjectType: "Post", Field: "title", Source: post3, Args: map[string]any{}},
		{Kind: "async", ObjectType: "Post", Field: "author", Source: post3, Args: map[string]any{}, BatchID: 1},
		{Kind: "sync", ObjectType: "User", Field: "nickname", Source: bob, Args: map[string]any{}},
	}
	if diff := cmp.Diff(want, rt.GetCalls()); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestMutationsRunInDocumentOrder(t *testing.T) {
	var order []string
	record := func(name string) executor.MockResolver {
		return func(_ context.Context, _ any, args map[string]any) (any, error) {
			id := args["id"].(int)
			order = append(order, name+" "+postsByID[id]["title"].(string))
			return postsByID[id], nil
		}
	}
	rt := newBlogRuntime(map[string]executor.MockResolver{
		"Mutation.likePost": record("like"),
		"Mutation.publish":  record("publish"),
	})

	res := run(t, rt, `mutation {
  a: likePost(id: 1) { id }
  b: publish(id: 2) { id }
  c: likePost(id: 3) { id }
}`, nil)
	requireData(t, map[string]any{
		"a": map[string]any{"id": 1},
		"b": map[string]any{"id": 2},
		"c": map[string]any{"id": 3},
	}, res)
	require.Equal(t, []string{
		"like GraphQL basics",
		"publish Batching with loaders",
		"like Another GraphQL post",
	}, order)
	require.Empty(t, asyncCalls(rt))
}

func TestAliasesShareOneBatch(t *testing.T) {
	rt := newBlogRuntime(nil)

	res := run(t, rt, `{ first: user(id: 1) { nickname } second: user(id: 2) { name: nickname } }`, nil)
	requireData(t, map[string]any{
		"first":  map[string]any{"nickname": "alice"},
		"second": map[string]any{"name": "bob"},
	}, res)

	calls := asyncCalls(rt)
	require.Len(t, calls, 2)
	require.Equal(t, 1, calls[0].BatchID)
	require.Equal(t, 1, calls[1].BatchID)
	require.Equal(t, map[string]any{"id": 2}, calls[1].Args)
}
