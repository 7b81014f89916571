package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render prints s as SDL with types and directives sorted by name. Builtin
// scalars and directives are omitted, as is @resolver.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder

	for _, name := range sortedKeys(s.Types) {
		t := s.Types[name]
		if t.Kind == TypeKindScalar && builtinScalars[name] {
			continue
		}
		writeDescription(&b, t.Description, "")
		switch t.Kind {
		case TypeKindScalar:
			b.WriteString("scalar " + t.Name)
			if t.SpecifiedByURL != nil {
				fmt.Fprintf(&b, " @specifiedBy(url: %s)", strconv.Quote(*t.SpecifiedByURL))
			}
			b.WriteString("\n")
		case TypeKindEnum:
			b.WriteString("enum " + t.Name + " {\n")
			for _, v := range t.EnumValues {
				writeDescription(&b, v.Description, "  ")
				b.WriteString("  " + v.Name)
				writeDeprecated(&b, v.IsDeprecated, v.DeprecationReason)
				b.WriteString("\n")
			}
			b.WriteString("}\n")
		case TypeKindInputObject:
			b.WriteString("input " + t.Name)
			if t.OneOf {
				b.WriteString(" @oneOf")
			}
			b.WriteString(" {\n")
			for _, f := range t.InputFields {
				writeDescription(&b, f.Description, "  ")
				b.WriteString("  " + inputValue(f))
				writeDeprecated(&b, f.IsDeprecated, f.DeprecationReason)
				b.WriteString("\n")
			}
			b.WriteString("}\n")
		case TypeKindObject, TypeKindInterface:
			keyword := "type "
			if t.Kind == TypeKindInterface {
				keyword = "interface "
			}
			b.WriteString(keyword + t.Name)
			if len(t.Interfaces) > 0 {
				b.WriteString(" implements " + strings.Join(t.Interfaces, " & "))
			}
			b.WriteString(" {\n")
			for _, f := range t.Fields {
				writeDescription(&b, f.Description, "  ")
				b.WriteString("  " + f.Name + arguments(f.Arguments) + ": " + renderTypeRef(f.Type))
				writeDeprecated(&b, f.IsDeprecated, f.DeprecationReason)
				b.WriteString("\n")
			}
			b.WriteString("}\n")
		case TypeKindUnion:
			b.WriteString("union " + t.Name + " = " + strings.Join(t.PossibleTypes, " | ") + "\n")
		}
		b.WriteString("\n")
	}

	for _, name := range sortedKeys(s.Directives) {
		if builtinDirectives[name] {
			continue
		}
		d := s.Directives[name]
		writeDescription(&b, d.Description, "")
		b.WriteString("directive @" + d.Name + arguments(d.Arguments))
		if d.IsRepeatable {
			b.WriteString(" repeatable")
		}
		b.WriteString(" on " + strings.Join(d.Locations, " | ") + "\n\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeDescription(b *strings.Builder, desc, indent string) {
	if desc == "" {
		return
	}
	b.WriteString(indent + `"""` + "\n")
	b.WriteString(indent + strings.ReplaceAll(desc, `"""`, `\"""`) + "\n")
	b.WriteString(indent + `"""` + "\n")
}

func writeDeprecated(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" {
		b.WriteString("(reason: " + strconv.Quote(reason) + ")")
	}
}

func arguments(args []*InputValue) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = inputValue(a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func inputValue(v *InputValue) string {
	s := v.Name + ": " + renderTypeRef(v.Type)
	if v.DefaultValue != nil {
		s += " = " + renderValue(v.DefaultValue)
	}
	return s
}

func renderTypeRef(t *TypeRef) string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindList:
		return "[" + renderTypeRef(t.OfType) + "]"
	case TypeRefKindNonNull:
		return renderTypeRef(t.OfType) + "!"
	}
	return t.Named
}

// FormatValue renders v as a GraphQL literal.
func FormatValue(v any) string { return renderValue(v) }

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case EnumLiteral:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = renderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := sortedKeys(v)
		for i, k := range keys {
			keys[i] = k + ": " + renderValue(v[k])
		}
		return "{" + strings.Join(keys, ", ") + "}"
	}
	return fmt.Sprint(value)
}
