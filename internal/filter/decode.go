package filter

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"
)

// InputError reports a filter value the client got wrong: a bad type, a value
// failing its field rule, or a tree nested too deeply.
type InputError struct {
	Path    string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid filter at %s: %s", e.Path, e.Message)
}

// Decoder turns coerced GraphQL input objects into Nodes.
type Decoder struct {
	fields   Fields
	maxDepth int
	validate *validator.Validate
}

// NewDecoder returns a decoder for fields. maxDepth bounds the nesting of
// AND/OR/NOT lists; 0 disables the bound.
func NewDecoder(fields Fields, maxDepth int, validate *validator.Validate) *Decoder {
	if validate == nil {
		validate = validator.New()
	}
	return &Decoder{fields: fields, maxDepth: maxDepth, validate: validate}
}

// Decode converts raw. A nil map decodes to a nil Node.
func (d *Decoder) Decode(raw map[string]any) (*Node, error) {
	if raw == nil {
		return nil, nil
	}
	return d.decode(raw, "filter", 0)
}

func (d *Decoder) decode(raw map[string]any, path string, depth int) (*Node, error) {
	if d.maxDepth > 0 && depth > d.maxDepth {
		return nil, &InputError{Path: path, Message: fmt.Sprintf("nesting exceeds %d levels", d.maxDepth)}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := &Node{}
	for _, key := range keys {
		value := raw[key]
		at := path + "." + key
		switch key {
		case "AND", "OR", "NOT":
			children, err := d.decodeList(value, at, depth+1)
			if err != nil {
				return nil, err
			}
			switch key {
			case "AND":
				n.And = children
			case "OR":
				n.Or = children
			default:
				n.Not = children
			}
		default:
			f, ok := d.fields[key]
			if !ok {
				return nil, &InvalidFilterError{Field: key, Reason: "unknown field"}
			}
			if value == nil {
				continue
			}
			v, err := coerce(f.Kind, value)
			if err != nil {
				return nil, &InputError{Path: at, Message: err.Error()}
			}
			if f.Rule != "" {
				if err := d.validate.Var(v, f.Rule); err != nil {
					return nil, &InputError{Path: at, Message: ruleMessage(err)}
				}
			}
			n.Predicates = append(n.Predicates, Predicate{Field: key, Op: f.Op(), Value: v})
		}
	}
	return n, nil
}

func (d *Decoder) decodeList(value any, path string, depth int) ([]*Node, error) {
	var items []any
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, &InputError{Path: path, Message: fmt.Sprintf("expected a list of filters, got %T", value)}
	}

	out := make([]*Node, 0, len(items))
	for i, item := range items {
		at := fmt.Sprintf("%s[%d]", path, i)
		m, ok := item.(map[string]any)
		if !ok {
			if item == nil {
				continue
			}
			return nil, &InputError{Path: at, Message: fmt.Sprintf("expected a filter object, got %T", item)}
		}
		child, err := d.decode(m, at, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

func coerce(kind Kind, value any) (any, error) {
	switch kind {
	case KindText:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected a string, got %T", value)
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected a boolean, got %T", value)
	case KindInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == math.Trunc(v) {
				return int64(v), nil
			}
		}
		return nil, fmt.Errorf("expected an integer, got %v", value)
	}
	return nil, fmt.Errorf("unsupported field kind %d", kind)
}

func ruleMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("failed the %s=%s rule", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed the %s rule", fe.Tag())
	}
	return err.Error()
}
