package schema

// Scalars and directives every schema carries. BuildFromAST takes their
// definitions from the gqlparser prelude; Render leaves them out.
var (
	builtinScalars = map[string]bool{
		"String": true, "Int": true, "Float": true, "Boolean": true, "ID": true,
	}
	builtinDirectives = map[string]bool{
		"include": true, "skip": true, "deprecated": true,
	}
)

