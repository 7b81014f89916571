// Package executor runs GraphQL operations breadth first so that a host can
// resolve every relation of one depth with a single round trip.
//
// # Sync and async fields
//
// Each schema field is either sync or async (schema.Field.Async). Sync fields
// are projections of the parent value: the executor calls Runtime.ResolveSync
// and completes the result on the spot, descending into object values without
// adding depth. Async fields are queued as AsyncResolveTasks.
//
// schema.BuildFromSDL marks query root fields and fields carrying @resolver as
// async. Mutation root fields stay sync, so they run one after another in
// document order.
//
// # Depth loop
//
// After the root selection set has been expanded the executor repeats:
//
//  1. Drop queued tasks whose response path lies under a field that was
//     already nulled.
//  2. Hand the remaining tasks to Runtime.BatchResolveAsync in one call.
//  3. Complete every result in task order. Sync children are expanded
//     immediately; async children are queued for the next iteration.
//
// An operation whose async fields nest d levels deep therefore costs exactly
// d calls to BatchResolveAsync. Once the request context is done, pending
// tasks fail with ctx.Err() without reaching the runtime.
//
// # Completion and errors
//
// Lists are completed element by element with index paths, leaves through
// Runtime.SerializeLeafValue, and interface or union values through
// Runtime.ResolveType. Errors are collected with their response path; errors
// implementing Extensions() map[string]any keep those extensions.
//
// A null or error in a non-null position inside a sync subtree nulls the
// enclosing object. For async fields the null propagates to the top-level
// response field. Root fields are always present in Data, as null when they
// failed. Fields unknown to the schema are reported and left out.
package executor
