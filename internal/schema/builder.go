package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	language "github.com/hanpama/blogql/internal/language"
)

// ResolverDirective marks an object field as resolver-backed. Such fields are
// resolved through Runtime.BatchResolveAsync; unmarked fields are projections
// of their source value.
const ResolverDirective = "resolver"

// BuildFromSDL validates sdl and returns the corresponding Schema.
//
// Query and subscription root fields, and fields carrying @resolver, are
// async. Mutation root fields are sync so that they run serially. The
// validated document is kept in Schema.Validation for query validation.
func BuildFromSDL(sdl string) (*Schema, error) {
	doc, err := language.LoadSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}
	return BuildFromAST(doc)
}

// BuildFromAST converts a validated gqlparser schema.
func BuildFromAST(doc *language.Schema) (*Schema, error) {
	if doc.Query == nil {
		return nil, fmt.Errorf("schema has no query type")
	}
	s := NewSchema("")
	s.Validation = doc
	s.SetQueryType(doc.Query.Name)
	if doc.Mutation != nil {
		s.SetMutationType(doc.Mutation.Name)
	}
	if doc.Subscription != nil {
		s.SetSubscriptionType(doc.Subscription.Name)
	}

	for _, name := range sortedNames(doc.Types) {
		def := doc.Types[name]
		if def.BuiltIn && !builtinScalars[name] {
			continue
		}
		rootAsync := name == s.QueryType || name == s.SubscriptionType
		t, err := buildType(def, doc.PossibleTypes[name], rootAsync)
		if err != nil {
			return nil, err
		}
		if t != nil {
			s.AddType(t)
		}
	}

	for name, dir := range doc.Directives {
		prelude := dir.Position != nil && dir.Position.Src != nil && dir.Position.Src.BuiltIn
		if (prelude && !builtinDirectives[name]) || name == ResolverDirective {
			continue
		}
		d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
		for _, loc := range dir.Locations {
			d.Locations = append(d.Locations, string(loc))
		}
		for _, a := range dir.Arguments {
			in, err := buildInputValue(a.Name, a.Description, a.Type, a.DefaultValue, a.Directives)
			if err != nil {
				return nil, fmt.Errorf("@%s(%s): %w", dir.Name, a.Name, err)
			}
			d.AddArgument(in)
		}
		s.AddDirective(d)
	}

	return s, nil
}

// IntrospectionTypes converts the __Schema family of types that gqlparser
// declares in its prelude.
func IntrospectionTypes(doc *language.Schema) ([]*Type, error) {
	var out []*Type
	for _, name := range sortedNames(doc.Types) {
		if !strings.HasPrefix(name, "__") {
			continue
		}
		t, err := buildType(doc.Types[name], doc.PossibleTypes[name], false)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func sortedNames(types map[string]*ast.Definition) []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildType converts one named definition. Object fields are async when they
// carry @resolver or when rootAsync is set.
func buildType(def *ast.Definition, possible []*ast.Definition, rootAsync bool) (*Type, error) {
	switch def.Kind {
	case ast.Object:
		return buildObject(def, TypeKindObject, func(f *ast.FieldDefinition) bool {
			return rootAsync || f.Directives.ForName(ResolverDirective) != nil
		}), nil
	case ast.Interface:
		t := buildObject(def, TypeKindInterface, func(f *ast.FieldDefinition) bool {
			return f.Directives.ForName(ResolverDirective) != nil
		})
		for _, impl := range possible {
			t.AddPossibleType(impl.Name)
		}
		sort.Strings(t.PossibleTypes)
		return t, nil
	case ast.Union:
		t := NewType(def.Name, TypeKindUnion, def.Description)
		for _, member := range def.Types {
			t.AddPossibleType(member)
		}
		return t, nil
	case ast.Enum:
		t := NewType(def.Name, TypeKindEnum, def.Description)
		for _, v := range def.EnumValues {
			ev := NewEnumValue(v.Name, v.Description)
			if reason, ok := deprecation(v.Directives); ok {
				ev.Deprecate(reason)
			}
			t.AddEnumValue(ev)
		}
		return t, nil
	case ast.InputObject:
		t := NewType(def.Name, TypeKindInputObject, def.Description).
			SetOneOf(def.Directives.ForName("oneOf") != nil)
		for _, f := range def.Fields {
			in, err := buildInputValue(f.Name, f.Description, f.Type, f.DefaultValue, f.Directives)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", def.Name, f.Name, err)
			}
			t.AddInputField(in)
		}
		return t, nil
	case ast.Scalar:
		t := NewType(def.Name, TypeKindScalar, def.Description)
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if url := d.Arguments.ForName("url"); url != nil {
				raw := url.Value.Raw
				t.SpecifiedByURL = &raw
			}
		}
		return t, nil
	}
	return nil, nil
}

func buildObject(def *ast.Definition, kind TypeKind, async func(*ast.FieldDefinition) bool) *Type {
	t := NewType(def.Name, kind, def.Description)
	for _, iface := range def.Interfaces {
		t.AddInterface(iface)
	}
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		field := NewField(f.Name, f.Description, buildTypeRef(f.Type)).SetAsync(async(f))
		if reason, ok := deprecation(f.Directives); ok {
			field.Deprecate(reason)
		}
		for _, a := range f.Arguments {
			in, _ := buildInputValue(a.Name, a.Description, a.Type, a.DefaultValue, a.Directives)
			field.AddArgument(in)
		}
		t.AddField(field)
	}
	return t
}

func buildTypeRef(t *ast.Type) *TypeRef {
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		ref = NonNullType(ref)
	}
	return ref
}

func buildInputValue(name, description string, typ *ast.Type, def *ast.Value, directives ast.DirectiveList) (*InputValue, error) {
	in := NewInputValue(name, description, buildTypeRef(typ))
	if def != nil {
		v, err := literal(def)
		if err != nil {
			return nil, err
		}
		in.SetDefault(v)
	}
	if reason, ok := deprecation(directives); ok {
		in.Deprecate(reason)
	}
	return in, nil
}

// literal converts a constant default value. Enum values become EnumLiteral
// so they render unquoted.
func literal(v *ast.Value) (any, error) {
	switch v.Kind {
	case ast.EnumValue:
		return EnumLiteral(v.Raw), nil
	case ast.ListValue:
		out := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			item, err := literal(c.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case ast.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			item, err := literal(c.Value)
			if err != nil {
				return nil, err
			}
			out[c.Name] = item
		}
		return out, nil
	case ast.Variable:
		return nil, fmt.Errorf("default value cannot reference $%s", v.Raw)
	}
	return v.Value(nil)
}

func deprecation(directives ast.DirectiveList) (string, bool) {
	d := directives.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if reason := d.Arguments.ForName("reason"); reason != nil && reason.Value != nil {
		return reason.Value.Raw, true
	}
	return "No longer supported", true
}
