package executor

import (
	"context"
)

// Runtime is the host side of execution: it produces field values, resolves
// abstract types and serializes leaves.
//
// BatchResolveAsync receives every async task of one depth at once and must
// return one result per task, in task order. A failure in one result does not
// affect the others. ResolveSync is only called for sync fields.
//
// Errors from any method become located GraphQL errors; an error with an
// Extensions() map[string]any method contributes the "extensions" entry.
// Implementations must be safe for concurrent operations and must not mutate
// source or args.
type Runtime interface {
	// ResolveSync returns the raw value of a sync field. (nil, nil) is null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves the async tasks of one depth. results[i]
	// belongs to tasks[i]; missing results are reported as errors.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType names the object type of a value of an interface or union.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue converts a scalar or enum value into its JSON form.
	// Enums serialize to their name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// AsyncResolveTask is one async field instance. Source is nil for root
// fields; Args are already coerced.
type AsyncResolveTask struct {
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
}

// AsyncResolveResult is the raw value of a task, or its error.
type AsyncResolveResult struct {
	Value any
	Error error
}
