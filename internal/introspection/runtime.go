// Package introspection answers __schema and __type queries in front of
// another executor.Runtime.
package introspection

import (
	"context"
	"sort"
	"strings"

	executor "github.com/hanpama/blogql/internal/executor"
	schema "github.com/hanpama/blogql/internal/schema"
)

// Wrap returns a runtime that serves introspection fields of sch itself and
// delegates everything else to base, together with the schema the executor
// has to run against.
func Wrap(base executor.Runtime, sch *schema.Schema) (executor.Runtime, *schema.Schema, error) {
	extended, err := extendSchema(sch)
	if err != nil {
		return nil, nil, err
	}
	return &runtime{base: base, schema: sch}, extended, nil
}

type runtime struct {
	base   executor.Runtime
	schema *schema.Schema
}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if objectType == r.schema.QueryType {
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := args["name"].(string)
			if t, ok := r.schema.Types[name]; ok {
				return t, nil
			}
			return nil, nil
		}
	}

	var (
		v  any
		ok bool
	)
	switch src := source.(type) {
	case *schema.Schema:
		v, ok = schemaField(src, field)
	case *schema.Type:
		v, ok = r.typeField(src, field, args)
	case *schema.TypeRef:
		v, ok = r.typeRefField(src, field, args)
	case *schema.Field:
		v, ok = fieldField(src, field, args)
	case *schema.InputValue:
		v, ok = inputValueField(src, field)
	case *schema.EnumValue:
		v, ok = memberField(field, src.Name, src.Description, src.IsDeprecated, src.DeprecationReason)
	case *schema.Directive:
		v, ok = directiveField(src, field, args)
	}
	if ok {
		return v, nil
	}
	return r.base.ResolveSync(ctx, objectType, field, source, args)
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

// SerializeLeafValue passes __TypeKind and __DirectiveLocation values through;
// they are plain strings already.
func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	if strings.HasPrefix(typ, "__") {
		return value, nil
	}
	return r.base.SerializeLeafValue(ctx, typ, value)
}

func schemaField(sch *schema.Schema, field string) (any, bool) {
	switch field {
	case "description":
		return sch.Description, true
	case "types":
		return sortedByName(sch.Types, func(t *schema.Type) string { return t.Name }), true
	case "queryType":
		return sch.GetQueryType(), true
	case "mutationType":
		return sch.GetMutationType(), true
	case "subscriptionType":
		return sch.GetSubscriptionType(), true
	case "directives":
		return sortedByName(sch.Directives, func(d *schema.Directive) string { return d.Name }), true
	}
	return nil, false
}

func (r *runtime) typeField(t *schema.Type, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return t.Description, true
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, true
		}
		return *t.SpecifiedByURL, true
	case "isOneOf":
		return t.OneOf, true
	case "ofType":
		// wrappers are TypeRefs, so a named type never has one
		return nil, true
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		return visible(t.Fields, args, func(f *schema.Field) bool { return f.IsDeprecated }), true
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		return r.lookup(t.Interfaces), true
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil, true
		}
		return r.lookup(t.PossibleTypes), true
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, true
		}
		return visible(t.EnumValues, args, func(v *schema.EnumValue) bool { return v.IsDeprecated }), true
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		return visible(t.InputFields, args, func(v *schema.InputValue) bool { return v.IsDeprecated }), true
	}
	return nil, false
}

// typeRefField answers LIST and NON_NULL wrappers directly and defers named
// references to their definition.
func (r *runtime) typeRefField(ref *schema.TypeRef, field string, args map[string]any) (any, bool) {
	if ref.Kind == schema.TypeRefKindNamed {
		if def := r.schema.Types[ref.Named]; def != nil {
			return r.typeField(def, field, args)
		}
		return nil, true
	}
	switch field {
	case "kind":
		return string(ref.Kind), true
	case "ofType":
		return ref.OfType, true
	}
	return nil, true
}

func (r *runtime) lookup(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if t := r.schema.Types[name]; t != nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func fieldField(f *schema.Field, field string, args map[string]any) (any, bool) {
	switch field {
	case "args":
		return visible(f.Arguments, args, func(v *schema.InputValue) bool { return v.IsDeprecated }), true
	case "type":
		return f.Type, true
	}
	return memberField(field, f.Name, f.Description, f.IsDeprecated, f.DeprecationReason)
}

func inputValueField(v *schema.InputValue, field string) (any, bool) {
	switch field {
	case "type":
		return v.Type, true
	case "defaultValue":
		if v.DefaultValue == nil {
			return nil, true
		}
		return schema.FormatValue(v.DefaultValue), true
	}
	return memberField(field, v.Name, v.Description, v.IsDeprecated, v.DeprecationReason)
}

func directiveField(d *schema.Directive, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return d.Description, true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		locs := append([]string(nil), d.Locations...)
		sort.Strings(locs)
		return locs, true
	case "args":
		return visible(d.Arguments, args, func(v *schema.InputValue) bool { return v.IsDeprecated }), true
	}
	return nil, false
}

// memberField answers the fields __Field, __InputValue and __EnumValue have
// in common.
func memberField(field, name, description string, deprecated bool, reason string) (any, bool) {
	switch field {
	case "name":
		return name, true
	case "description":
		return description, true
	case "isDeprecated":
		return deprecated, true
	case "deprecationReason":
		if !deprecated {
			return nil, true
		}
		return reason, true
	}
	return nil, false
}

// visible drops deprecated items unless includeDeprecated is true and keeps
// declaration order.
func visible[T any](items []T, args map[string]any, deprecated func(T) bool) []T {
	include, _ := args["includeDeprecated"].(bool)
	out := make([]T, 0, len(items))
	for _, item := range items {
		if include || !deprecated(item) {
			out = append(out, item)
		}
	}
	return out
}

func sortedByName[T any](m map[string]T, name func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return name(out[i]) < name(out[j]) })
	return out
}
