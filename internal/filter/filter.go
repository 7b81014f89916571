// Package filter compiles recursive boolean filter trees, as received in
// GraphQL `where`-style input objects, into SQL conditions.
//
// A Node conjoins everything it holds: its own predicates, every AND child,
// the disjunction of its OR children and the negation of each NOT child.
// Empty AND, OR and NOT lists are ignored, so the empty tree matches every row.
package filter

import (
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Op is a comparison operator.
type Op string

const (
	OpEquals   Op = "equals"
	OpContains Op = "contains"
)

// Kind is the value type of a filterable field.
type Kind int

const (
	KindText Kind = iota
	KindBool
	KindInt
)

// Field maps one filterable input field to its column.
type Field struct {
	// Name is the key used in the input object.
	Name   string
	Column string
	Kind   Kind
	// Rule is an optional go-playground/validator tag applied to values.
	Rule string
}

// Op returns the only operator the field supports. Text fields match by
// case-sensitive substring, everything else by equality.
func (f Field) Op() Op {
	if f.Kind == KindText {
		return OpContains
	}
	return OpEquals
}

// Fields is the registry of filterable fields keyed by input name.
type Fields map[string]Field

// NewFields builds a registry from fs.
func NewFields(fs ...Field) Fields {
	out := make(Fields, len(fs))
	for _, f := range fs {
		out[f.Name] = f
	}
	return out
}

// Predicate constrains a single field.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Node is one level of a filter tree.
type Node struct {
	Predicates []Predicate
	And        []*Node
	Or         []*Node
	Not        []*Node
}

// IsEmpty reports whether n constrains nothing.
func (n *Node) IsEmpty() bool {
	return n == nil || len(n.Predicates) == 0 && len(n.And) == 0 && len(n.Or) == 0 && len(n.Not) == 0
}

// ErrInvalidFilter matches every *InvalidFilterError.
var ErrInvalidFilter = errors.New("invalid filter")

// InvalidFilterError reports a tree referencing a field or operator the
// registry does not allow. Trees produced by Decode never trigger it.
type InvalidFilterError struct {
	Field  string
	Op     Op
	Reason string
}

func (e *InvalidFilterError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("invalid filter on %q (%s): %s", e.Field, e.Op, e.Reason)
	}
	return fmt.Sprintf("invalid filter on %q: %s", e.Field, e.Reason)
}

func (e *InvalidFilterError) Is(target error) bool { return target == ErrInvalidFilter }

// MatchAll is the condition the empty tree compiles to.
var MatchAll sq.Sqlizer = sq.Expr("1=1")

// Compiler turns Nodes into squirrel conditions. It holds no mutable state
// and may be shared.
type Compiler struct {
	fields Fields
}

func NewCompiler(fields Fields) *Compiler {
	return &Compiler{fields: fields}
}

// Compile translates n. A nil or empty tree yields MatchAll.
func (c *Compiler) Compile(n *Node) (sq.Sqlizer, error) {
	if n.IsEmpty() {
		return MatchAll, nil
	}

	var parts sq.And
	for _, p := range n.Predicates {
		cond, err := c.predicate(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, cond)
	}

	for _, child := range n.And {
		cond, err := c.Compile(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, cond)
	}

	if len(n.Or) > 0 {
		alts := make(sq.Or, 0, len(n.Or))
		for _, child := range n.Or {
			cond, err := c.Compile(child)
			if err != nil {
				return nil, err
			}
			alts = append(alts, cond)
		}
		if len(alts) == 1 {
			parts = append(parts, alts[0])
		} else {
			parts = append(parts, alts)
		}
	}

	for _, child := range n.Not {
		cond, err := c.Compile(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, not{cond})
	}

	switch len(parts) {
	case 0:
		return MatchAll, nil
	case 1:
		return parts[0], nil
	default:
		return parts, nil
	}
}

func (c *Compiler) predicate(p Predicate) (sq.Sqlizer, error) {
	f, ok := c.fields[p.Field]
	if !ok {
		return nil, &InvalidFilterError{Field: p.Field, Op: p.Op, Reason: "unknown field"}
	}
	if p.Op != f.Op() {
		return nil, &InvalidFilterError{Field: p.Field, Op: p.Op, Reason: "operator not supported"}
	}
	switch p.Op {
	case OpContains:
		return sq.Expr("instr("+f.Column+", ?) > 0", p.Value), nil
	default:
		return sq.Expr(f.Column+" = ?", p.Value), nil
	}
}

type not struct {
	inner sq.Sqlizer
}

func (n not) ToSql() (string, []any, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}
