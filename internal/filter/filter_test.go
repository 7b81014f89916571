package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var postFields = NewFields(
	Field{Name: "title", Column: "title", Kind: KindText, Rule: "min=1,max=100"},
	Field{Name: "content", Column: "content", Kind: KindText},
	Field{Name: "published", Column: "published", Kind: KindBool},
	Field{Name: "authorId", Column: "author_id", Kind: KindInt},
)

func title(s string) *Node {
	return &Node{Predicates: []Predicate{{Field: "title", Op: OpContains, Value: s}}}
}

func published(b bool) *Node {
	return &Node{Predicates: []Predicate{{Field: "published", Op: OpEquals, Value: b}}}
}

func TestCompile(t *testing.T) {
	c := NewCompiler(postFields)

	tests := []struct {
		name string
		node *Node
		sql  string
		args []any
	}{
		{name: "nil", node: nil, sql: "1=1"},
		{name: "empty", node: &Node{}, sql: "1=1"},
		{name: "contains", node: title("GraphQL"), sql: "instr(title, ?) > 0", args: []any{"GraphQL"}},
		{name: "equals", node: published(true), sql: "published = ?", args: []any{true}},
		{
			name: "predicates on one level are conjoined",
			node: &Node{Predicates: []Predicate{
				{Field: "title", Op: OpContains, Value: "Go"},
				{Field: "published", Op: OpEquals, Value: false},
			}},
			sql:  "(instr(title, ?) > 0 AND published = ?)",
			args: []any{"Go", false},
		},
		{
			name: "and",
			node: &Node{And: []*Node{title("GraphQL"), published(true)}},
			sql:  "(instr(title, ?) > 0 AND published = ?)",
			args: []any{"GraphQL", true},
		},
		{
			name: "or",
			node: &Node{Or: []*Node{title("a"), title("b")}},
			sql:  "(instr(title, ?) > 0 OR instr(title, ?) > 0)",
			args: []any{"a", "b"},
		},
		{
			name: "single or",
			node: &Node{Or: []*Node{title("a")}},
			sql:  "instr(title, ?) > 0",
			args: []any{"a"},
		},
		{
			name: "not",
			node: &Node{Not: []*Node{title("draft")}},
			sql:  "NOT (instr(title, ?) > 0)",
			args: []any{"draft"},
		},
		{
			name: "not applies to each element",
			node: &Node{Not: []*Node{title("a"), published(false)}},
			sql:  "(NOT (instr(title, ?) > 0) AND NOT (published = ?))",
			args: []any{"a", false},
		},
		{name: "empty lists are identity", node: &Node{And: []*Node{}, Or: []*Node{}, Not: []*Node{}}, sql: "1=1"},
		{
			name: "empty or next to a predicate",
			node: &Node{Predicates: []Predicate{{Field: "published", Op: OpEquals, Value: true}}, Or: []*Node{}},
			sql:  "published = ?",
			args: []any{true},
		},
		{
			name: "nested",
			node: &Node{
				And: []*Node{
					{Or: []*Node{title("GraphQL"), title("Go")}},
					{Not: []*Node{published(false)}},
				},
			},
			sql:  "((instr(title, ?) > 0 OR instr(title, ?) > 0) AND NOT (published = ?))",
			args: []any{"GraphQL", "Go", false},
		},
		{
			name: "order is predicates, and, or, not",
			node: &Node{
				Not:        []*Node{title("x")},
				Or:         []*Node{title("y"), title("z")},
				And:        []*Node{published(true)},
				Predicates: []Predicate{{Field: "authorId", Op: OpEquals, Value: int64(3)}},
			},
			sql:  "(author_id = ? AND published = ? AND (instr(title, ?) > 0 OR instr(title, ?) > 0) AND NOT (instr(title, ?) > 0))",
			args: []any{int64(3), true, "y", "z", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := c.Compile(tt.node)
			require.NoError(t, err)
			sql, args, err := cond.ToSql()
			require.NoError(t, err)
			require.Equal(t, tt.sql, sql)
			if len(tt.args) == 0 {
				require.Empty(t, args)
			} else {
				require.Equal(t, tt.args, args)
			}
		})
	}
}

func TestCompileRejectsUnknownFieldOrOperator(t *testing.T) {
	c := NewCompiler(postFields)

	_, err := c.Compile(&Node{And: []*Node{{Predicates: []Predicate{{Field: "rating", Op: OpEquals, Value: 5}}}}})
	require.ErrorIs(t, err, ErrInvalidFilter)
	var ife *InvalidFilterError
	require.True(t, errors.As(err, &ife))
	require.Equal(t, "rating", ife.Field)

	_, err = c.Compile(&Node{Predicates: []Predicate{{Field: "published", Op: OpContains, Value: "t"}}})
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompileDeepTree(t *testing.T) {
	c := NewCompiler(postFields)

	root := title("leaf")
	for i := 0; i < 2000; i++ {
		root = &Node{Not: []*Node{root}}
	}
	cond, err := c.Compile(root)
	require.NoError(t, err)
	_, args, err := cond.ToSql()
	require.NoError(t, err)
	require.Equal(t, []any{"leaf"}, args)
}
