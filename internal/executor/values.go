package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	language "github.com/hanpama/blogql/internal/language"
	schema "github.com/hanpama/blogql/internal/schema"
)

// coerceVariableValues applies defaults and coerces the provided variables
// to their declared types. Variable names are accepted with or without "$".
func coerceVariableValues(sch *schema.Schema, operation *language.OperationDefinition, provided map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(operation.VariableDefinitions))
	for _, def := range operation.VariableDefinitions {
		name, typ := def.Variable, def.Type
		val, ok := lookupVariable(provided, name)
		if !ok {
			switch {
			case def.DefaultValue != nil:
				val = astValueToGo(def.DefaultValue)
			case typ.NonNull:
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, typ)
			default:
				continue
			}
		}
		if val == nil && typ.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, typ)
		}
		cv, err := coerceValue(sch, val, typeRefFromAST(typ))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %v", name, typ, err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

func lookupVariable(vars map[string]any, name string) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	v, ok := vars[strings.TrimPrefix(name, "$")]
	return v, ok
}

// coerceArgumentValues builds the argument map of one field. Arguments bound
// to unset variables fall back to their default. Problems are reported as
// field errors at path.
func coerceArgumentValues(fieldDef *schema.Field, arguments language.ArgumentList, variableValues map[string]any, state *executionState, path Path) map[string]any {
	coerced := make(map[string]any, len(fieldDef.Arguments))
	for _, def := range fieldDef.Arguments {
		arg := arguments.ForName(def.Name)
		if arg != nil && arg.Value != nil && arg.Value.Kind == language.Variable {
			if _, set := lookupVariable(variableValues, arg.Value.Raw); !set {
				arg = nil
			}
		}
		if arg == nil {
			switch {
			case def.DefaultValue != nil:
				cv, err := coerceValue(state.schema, def.DefaultValue, def.Type)
				if err != nil {
					state.addError(fmt.Sprintf("default value of argument '%s' cannot be coerced: %v", def.Name, err), path)
					continue
				}
				coerced[def.Name] = cv
			case schema.IsNonNull(def.Type):
				state.addError(fmt.Sprintf("argument '%s' of required type was not provided", def.Name), path)
			}
			continue
		}
		cv, err := coerceValue(state.schema, valueFromAST(arg.Value, variableValues), def.Type)
		if err != nil {
			state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", def.Name, err), path)
			continue
		}
		coerced[def.Name] = cv
	}
	return coerced
}

// valueFromAST converts a literal, substituting variables. Object fields bound
// to unset variables are left out.
func valueFromAST(value *language.Value, vars map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		v, _ := lookupVariable(vars, value.Raw)
		return v
	case language.IntValue:
		if n, err := strconv.ParseInt(value.Raw, 10, 64); err == nil {
			return int(n)
		}
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case language.FloatValue:
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = valueFromAST(c.Value, vars)
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(value.Children))
		for _, c := range value.Children {
			if c.Value != nil && c.Value.Kind == language.Variable {
				if _, set := lookupVariable(vars, c.Value.Raw); !set {
					continue
				}
			}
			out[c.Name] = valueFromAST(c.Value, vars)
		}
		return out
	}
	return nil
}

func astValueToGo(value *language.Value) any { return valueFromAST(value, nil) }

// coerceValue coerces an input value to t. A single value given for a list
// type becomes a list of one. Unknown scalars pass through.
func coerceValue(sch *schema.Schema, value any, t *schema.TypeRef) (any, error) {
	switch {
	case t.Kind == schema.TypeRefKindNonNull:
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return coerceValue(sch, value, t.OfType)
	case value == nil:
		return nil, nil
	case t.Kind == schema.TypeRefKindList:
		items, ok := value.([]any)
		if !ok {
			items = []any{value}
		}
		out := make([]any, len(items))
		for i, item := range items {
			cv, err := coerceValue(sch, item, t.OfType)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}

	switch t.Named {
	case "Int":
		return coerceToInt(value)
	case "Float":
		return coerceToFloat(value)
	case "String":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(value), nil
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", value, value)
	case "ID":
		return coerceToID(value), nil
	}

	var typ *schema.Type
	if sch != nil {
		typ = sch.Types[t.Named]
	}
	if typ == nil {
		return value, nil
	}
	switch typ.Kind {
	case schema.TypeKindEnum:
		return coerceToEnum(value, typ)
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, value, typ)
	}
	return value, nil
}

// coerceInputObject rejects unknown fields, applies defaults and coerces each
// field. A oneOf input must end up with exactly one field.
func coerceInputObject(sch *schema.Schema, value any, typ *schema.Type) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object for input type %s, got %T", typ.Name, value)
	}
	for name := range obj {
		if typ.GetInputField(name) == nil {
			return nil, fmt.Errorf("field '%s' is not defined by input type %s", name, typ.Name)
		}
	}

	out := make(map[string]any, len(typ.InputFields))
	for _, f := range typ.InputFields {
		v, ok := obj[f.Name]
		if !ok {
			if f.DefaultValue == nil {
				if schema.IsNonNull(f.Type) {
					return nil, fmt.Errorf("required field '%s' of input type %s was not provided", f.Name, typ.Name)
				}
				continue
			}
			v = f.DefaultValue
		}
		cv, err := coerceValue(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", f.Name, err)
		}
		out[f.Name] = cv
	}
	if typ.OneOf && len(out) != 1 {
		return nil, fmt.Errorf("exactly one field of input type %s must be set", typ.Name)
	}
	return out, nil
}

func coerceToEnum(value any, typ *schema.Type) (any, error) {
	if lit, ok := value.(schema.EnumLiteral); ok {
		value = string(lit)
	}
	if name, ok := value.(string); ok {
		for _, v := range typ.EnumValues {
			if v.Name == name {
				return name, nil
			}
		}
	}
	return nil, fmt.Errorf("%v is not a value of enum %s", value, typ.Name)
}

// coerceToInt accepts whole numbers in the signed 32-bit range. Whole floats
// count, as JSON variables decode to float64.
func coerceToInt(value any) (any, error) {
	var n float64
	switch v := value.(type) {
	case int:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case float32:
		n = float64(v)
	case float64:
		n = v
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
		}
		n = float64(i)
	default:
		return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
	}
	if n != math.Trunc(n) {
		return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("cannot coerce %v to int: out of 32-bit range", value)
	}
	return int(n), nil
}

func coerceToFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}

func coerceToID(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return fmt.Sprint(value)
}
