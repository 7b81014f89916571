package filter

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type fixturePost struct {
	ID        int64
	Title     string
	Content   string
	Published bool
	AuthorID  int64
}

var fixture = []fixturePost{
	{1, "Intro to GraphQL", "schemas and types", true, 1},
	{2, "GraphQL loaders", "batching with a loader", false, 1},
	{3, "Go generics", "type parameters", true, 2},
	{4, "graphql lowercase", "case matters", true, 2},
	{5, "Draft: filters", "AND OR NOT", false, 3},
	{6, "Filters in Go", "squirrel and loader", true, 3},
}

// matches evaluates n in memory with the same semantics the compiler targets.
func matches(n *Node, p fixturePost) bool {
	if n == nil {
		return true
	}
	for _, pr := range n.Predicates {
		switch pr.Field {
		case "title":
			if !strings.Contains(p.Title, pr.Value.(string)) {
				return false
			}
		case "content":
			if !strings.Contains(p.Content, pr.Value.(string)) {
				return false
			}
		case "published":
			if p.Published != pr.Value.(bool) {
				return false
			}
		case "authorId":
			if p.AuthorID != pr.Value.(int64) {
				return false
			}
		}
	}
	for _, c := range n.And {
		if !matches(c, p) {
			return false
		}
	}
	if len(n.Or) > 0 {
		hit := false
		for _, c := range n.Or {
			if matches(c, p) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, c := range n.Not {
		if matches(c, p) {
			return false
		}
	}
	return true
}

func openFixture(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE posts (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		published INTEGER NOT NULL,
		author_id INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	for _, p := range fixture {
		_, err := db.Exec(`INSERT INTO posts (id, title, content, published, author_id) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Title, p.Content, p.Published, p.AuthorID)
		require.NoError(t, err)
	}
	return db
}

func TestCompiledFilterMatchesInMemoryEvaluation(t *testing.T) {
	db := openFixture(t)
	c := NewCompiler(postFields)
	d := NewDecoder(postFields, 16, nil)

	inputs := map[string]map[string]any{
		"empty":         {},
		"title":         {"title": "GraphQL"},
		"case":          {"title": "graphql"},
		"published":     {"published": false},
		"and":           {"AND": []any{map[string]any{"title": "GraphQL"}, map[string]any{"published": true}}},
		"or":            {"OR": []any{map[string]any{"title": "Go"}, map[string]any{"authorId": 3}}},
		"empty or":      {"OR": []any{}, "published": true},
		"not":           {"NOT": []any{map[string]any{"title": "Draft"}}},
		"not per item":  {"NOT": []any{map[string]any{"title": "GraphQL"}, map[string]any{"published": false}}},
		"mixed":         {"content": "loader", "OR": []any{map[string]any{"authorId": 1}, map[string]any{"NOT": map[string]any{"published": false}}}},
		"nested":        {"AND": []any{map[string]any{"OR": []any{map[string]any{"title": "Go"}, map[string]any{"title": "GraphQL"}}}, map[string]any{"NOT": []any{map[string]any{"authorId": 2}}}}},
		"matches none":  {"title": "nothing like this"},
		"or with empty": {"OR": []any{map[string]any{}, map[string]any{"title": "nope"}}},
	}

	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			node, err := d.Decode(raw)
			require.NoError(t, err)
			cond, err := c.Compile(node)
			require.NoError(t, err)

			got, query := selectIDs(t, db, cond)

			var want []int64
			for _, p := range fixture {
				if matches(node, p) {
					want = append(want, p.ID)
				}
			}
			require.Equal(t, want, got, query)
		})
	}
}

func TestCompiledFilterSelectsExpectedPosts(t *testing.T) {
	db := openFixture(t)
	c := NewCompiler(postFields)
	d := NewDecoder(postFields, 16, nil)

	cases := []struct {
		name string
		raw  map[string]any
		want []int64
	}{
		{
			// post 4 is published but its title only matches case-insensitively
			name: "every AND item must match",
			raw:  map[string]any{"AND": []any{map[string]any{"title": "GraphQL"}, map[string]any{"published": true}}},
			want: []int64{1},
		},
		{
			name: "sibling predicates combine with AND",
			raw:  map[string]any{"title": "GraphQL", "published": true},
			want: []int64{1},
		},
		{
			name: "four levels",
			raw: map[string]any{"AND": []any{
				map[string]any{"OR": []any{
					map[string]any{"NOT": []any{
						map[string]any{"AND": []any{map[string]any{"title": "Go"}, map[string]any{"authorId": 2}}},
					}},
					map[string]any{"authorId": 1},
				}},
				map[string]any{"published": true},
			}},
			want: []int64{1, 4, 6},
		},
		{
			name: "NOT of OR",
			raw:  map[string]any{"NOT": []any{map[string]any{"OR": []any{map[string]any{"title": "GraphQL"}, map[string]any{"content": "loader"}}}}},
			want: []int64{3, 4, 5},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node, err := d.Decode(tc.raw)
			require.NoError(t, err)
			cond, err := c.Compile(node)
			require.NoError(t, err)

			got, query := selectIDs(t, db, cond)
			require.Equal(t, tc.want, got, query)
		})
	}
}

func selectIDs(t *testing.T, db *sql.DB, cond sq.Sqlizer) ([]int64, string) {
	t.Helper()
	query, args, err := sq.Select("id").From("posts").Where(cond).OrderBy("id").ToSql()
	require.NoError(t, err)
	rows, err := db.QueryContext(context.Background(), query, args...)
	require.NoError(t, err)
	defer rows.Close()

	var got []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		got = append(got, id)
	}
	require.NoError(t, rows.Err())
	return got, query
}
