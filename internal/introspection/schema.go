package introspection

import (
	"fmt"

	language "github.com/hanpama/blogql/internal/language"
	schema "github.com/hanpama/blogql/internal/schema"
)

// extendSchema returns a copy of original that also carries the __ types and
// the __schema and __type query fields. original is left untouched.
func extendSchema(original *schema.Schema) (*schema.Schema, error) {
	doc := original.Validation
	if doc == nil {
		var err error
		if doc, err = language.LoadSchema("prelude.graphql", ""); err != nil {
			return nil, fmt.Errorf("load prelude: %w", err)
		}
	}
	types, err := schema.IntrospectionTypes(doc)
	if err != nil {
		return nil, err
	}

	extended := *original
	extended.Types = make(map[string]*schema.Type, len(original.Types)+len(types))
	for name, t := range original.Types {
		extended.Types[name] = t
	}
	for _, t := range types {
		extended.Types[t.Name] = t
	}

	if query := original.GetQueryType(); query != nil {
		q := *query
		q.Fields = append(append([]*schema.Field(nil), query.Fields...),
			schema.NewField("__schema", "Access the current type schema of this server.",
				schema.NonNullType(schema.NamedType("__Schema"))),
			schema.NewField("__type", "Request the type information of a single type.",
				schema.NamedType("__Type")).
				AddArgument(schema.NewInputValue("name", "", schema.NonNullType(schema.NamedType("String")))),
		)
		extended.Types[q.Name] = &q
	}
	return &extended, nil
}
