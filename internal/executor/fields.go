package executor

import (
	language "github.com/hanpama/blogql/internal/language"
	schema "github.com/hanpama/blogql/internal/schema"
)

// collectedFields groups field nodes by response name in first-seen order.
type collectedFields struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func (c *collectedFields) add(responseName string, field *language.Field) {
	if i, ok := c.index[responseName]; ok {
		c.fields[i].Fields = append(c.fields[i].Fields, field)
		return
	}
	c.index[responseName] = len(c.fields)
	c.fields = append(c.fields, collectedField{ResponseName: responseName, Fields: []*language.Field{field}})
}

func (c *collectedFields) orderedFields() []collectedField { return c.fields }

// collectFields flattens fragments and applies @skip and @include.
func collectFields(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet) *collectedFields {
	c := &collectedFields{index: make(map[string]int)}
	collectInto(state, objectType, selectionSet, c, make(map[string]bool))
	return c
}

func collectInto(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet, c *collectedFields, visited map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			name := sel.Alias
			if name == "" {
				name = sel.Name
			}
			c.add(name, sel)

		case *language.InlineFragment:
			if !shouldIncludeNode(state, sel.Directives) || !doesFragmentTypeApply(state, objectType, sel.TypeCondition) {
				continue
			}
			collectInto(state, objectType, sel.SelectionSet, c, visited)

		case *language.FragmentSpread:
			if !shouldIncludeNode(state, sel.Directives) || visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true
			def := state.document.Fragments.ForName(sel.Name)
			if def == nil || !doesFragmentTypeApply(state, objectType, def.TypeCondition) || !shouldIncludeNode(state, def.Directives) {
				continue
			}
			collectInto(state, objectType, def.SelectionSet, c, visited)
		}
	}
}

// doesFragmentTypeApply reports whether a fragment with the given type
// condition applies to objectType, directly or through an interface or union.
func doesFragmentTypeApply(state *executionState, objectType *schema.Type, typeCondition string) bool {
	return typeCondition == "" || state.schema.IsPossibleType(typeCondition, objectType.Name)
}

func shouldIncludeNode(state *executionState, directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && directiveIf(state, d) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !directiveIf(state, d) {
		return false
	}
	return true
}

// directiveIf evaluates the "if" argument of @skip or @include. A missing or
// non-boolean value counts as false for @skip and true for @include, as the
// node is then kept.
func directiveIf(state *executionState, d *language.Directive) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return d.Name == "include"
	}
	var v any
	if arg.Value != nil && arg.Value.Kind == language.Variable {
		v = state.variableValues[arg.Value.Raw]
	} else {
		v = astValueToGo(arg.Value)
	}
	b, ok := v.(bool)
	if !ok {
		return d.Name == "include"
	}
	return b
}

func getFieldDefinition(objectType *schema.Type, fieldName string) *schema.Field {
	return objectType.GetField(fieldName)
}
