package introspection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/blogql/internal/executor"
	language "github.com/hanpama/blogql/internal/language"
	schema "github.com/hanpama/blogql/internal/schema"
)

const blogSDL = `
directive @resolver on FIELD_DEFINITION

interface Node { id: ID! }

type User implements Node { id: ID!, nickname: String! }

type Post implements Node {
  id: ID!
  title: String!
  headline: String @deprecated(reason: "use title")
  tags: [String!]
  author: User! @resolver
}

union SearchResult = User | Post

enum PostOrder { NEWEST, OLDEST, POPULAR @deprecated }

input PostFilter { title: String, published: Boolean = true }

type Query {
  posts(take: Int = 10, order: PostOrder = NEWEST, filter: PostFilter): [Post!]!
  search(text: String!): [SearchResult!]!
}
`

func introspect(t *testing.T, query string) map[string]any {
	t.Helper()
	sch, err := schema.BuildFromSDL(blogSDL)
	require.NoError(t, err)

	base := executor.NewMockRuntime(nil)
	rt, extended, err := Wrap(base, sch)
	require.NoError(t, err)
	require.NotContains(t, sch.Types, "__Type", "the source schema is left untouched")

	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	res := executor.NewExecutor(rt, extended).ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	require.Empty(t, base.GetCalls(), "introspection never reaches the base runtime")
	return res.Data.(map[string]any)
}

func names(items any) []any {
	var out []any
	for _, item := range items.([]any) {
		out = append(out, item.(map[string]any)["name"])
	}
	return out
}

func TestSchemaRoots(t *testing.T) {
	data := introspect(t, `{ __schema { queryType { name } mutationType { name } types { name } directives { name } } }`)
	s := data["__schema"].(map[string]any)
	require.Equal(t, map[string]any{"name": "Query"}, s["queryType"])
	require.Nil(t, s["mutationType"])

	types := names(s["types"])
	require.Contains(t, types, "Post")
	require.Contains(t, types, "String")
	require.NotContains(t, types, "__Type")
	require.Equal(t, []any{"deprecated", "include", "skip"}, names(s["directives"]))
}

func TestTypenameWithoutWrapper(t *testing.T) {
	sch, err := schema.BuildFromSDL(blogSDL)
	require.NoError(t, err)
	doc, err := language.ParseQuery("{ __typename }")
	require.NoError(t, err)

	res := executor.NewExecutor(executor.NewMockRuntime(nil), sch).ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"__typename": "Query"}, res.Data)
}

func TestFieldTypesUnwrap(t *testing.T) {
	data := introspect(t, `{
  __type(name: "Query") {
    kind
    fields { name args { name defaultValue } type { kind name ofType { kind name ofType { kind name ofType { kind name } } } } }
  }
}`)
	typ := data["__type"].(map[string]any)
	require.Equal(t, "OBJECT", typ["kind"])

	fields := typ["fields"].([]any)
	require.Equal(t, []any{"posts", "search"}, names(fields), "__schema and __type stay hidden")

	posts := fields[0].(map[string]any)
	var defaults []any
	for _, a := range posts["args"].([]any) {
		defaults = append(defaults, a.(map[string]any)["defaultValue"])
	}
	require.Equal(t, []any{"10", "NEWEST", nil}, defaults)

	var kinds []any
	ref := posts["type"].(map[string]any)
	for {
		kinds = append(kinds, ref["kind"])
		next, _ := ref["ofType"].(map[string]any)
		if next == nil {
			require.Equal(t, "Post", ref["name"])
			break
		}
		require.Nil(t, ref["name"])
		ref = next
	}
	require.Equal(t, []any{"NON_NULL", "LIST", "NON_NULL", "OBJECT"}, kinds)
}

func TestDeprecatedMembers(t *testing.T) {
	data := introspect(t, `{
  post: __type(name: "Post") {
    fields { name }
    all: fields(includeDeprecated: true) { name isDeprecated deprecationReason }
  }
  order: __type(name: "PostOrder") {
    enumValues { name }
    all: enumValues(includeDeprecated: true) { name deprecationReason }
  }
}`)
	post := data["post"].(map[string]any)
	require.Equal(t, []any{"id", "title", "tags", "author"}, names(post["fields"]))
	all := post["all"].([]any)
	require.Len(t, all, 5)
	require.Equal(t, map[string]any{"name": "headline", "isDeprecated": true, "deprecationReason": "use title"}, all[2])

	order := data["order"].(map[string]any)
	require.Equal(t, []any{"NEWEST", "OLDEST"}, names(order["enumValues"]))
	require.Equal(t, map[string]any{"name": "POPULAR", "deprecationReason": "No longer supported"}, order["all"].([]any)[2])
}

func TestAbstractAndInputTypes(t *testing.T) {
	data := introspect(t, `{
  node: __type(name: "Node") { kind possibleTypes { name } }
  search: __type(name: "SearchResult") { kind possibleTypes { name } fields { name } }
  post: __type(name: "Post") { interfaces { name } }
  filter: __type(name: "PostFilter") { kind inputFields { name defaultValue } }
  missing: __type(name: "Comment") { name }
}`)
	require.Equal(t, "INTERFACE", data["node"].(map[string]any)["kind"])
	require.Equal(t, []any{"Post", "User"}, names(data["node"].(map[string]any)["possibleTypes"]))

	search := data["search"].(map[string]any)
	require.Equal(t, "UNION", search["kind"])
	require.Equal(t, []any{"Post", "User"}, names(search["possibleTypes"]))
	require.Nil(t, search["fields"])

	require.Equal(t, []any{"Node"}, names(data["post"].(map[string]any)["interfaces"]))

	filter := data["filter"].(map[string]any)
	require.Equal(t, "INPUT_OBJECT", filter["kind"])
	require.Equal(t, []any{
		map[string]any{"name": "title", "defaultValue": nil},
		map[string]any{"name": "published", "defaultValue": "true"},
	}, filter["inputFields"])

	require.Nil(t, data["missing"])
}
