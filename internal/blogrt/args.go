package blogrt

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	apperr "github.com/hanpama/blogql/internal/apperr"
)

// decodeArgs copies coerced GraphQL arguments into out.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return &apperr.Error{Code: apperr.BadUserInput, Message: "Invalid input", FormErrors: []string{err.Error()}, Err: err}
	}
	return nil
}

// decodeInput decodes the input object argument named name.
func decodeInput(args map[string]any, name string, out any) error {
	raw, ok := args[name].(map[string]any)
	if !ok {
		return apperr.New(apperr.BadUserInput, "argument %q is required", name)
	}
	return decodeArgs(raw, out)
}

// intArg reads an Int argument as an int64 id.
func intArg(args map[string]any, name string) (int64, error) {
	switch v := args[name].(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case nil:
		return 0, apperr.New(apperr.BadUserInput, "argument %q is required", name)
	default:
		return 0, fmt.Errorf("argument %q: unexpected %T", name, v)
	}
}

// optInt reads an optional Int argument.
func optInt(args map[string]any, name string) (*int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	n, err := intArg(args, name)
	if err != nil {
		return nil, err
	}
	i := int(n)
	return &i, nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}
