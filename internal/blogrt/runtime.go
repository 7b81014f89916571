// Package blogrt implements executor.Runtime for the blog schema.
//
// Fields marked @resolver in schema.graphql are resolved in two phases per
// execution depth. First every task's resolver is called in task order; a
// resolver that needs a loader issues its Load calls and returns a Thunk
// without waiting. Then the thunks are evaluated concurrently. Every Load of a
// depth is therefore registered before the first Wait dispatches the batch,
// and each loader fetches once per depth.
package blogrt

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	executor "github.com/hanpama/blogql/internal/executor"
	schema "github.com/hanpama/blogql/internal/schema"
)

//go:embed schema.graphql
var SDL string

// Schema builds the executable schema from the embedded SDL.
func Schema() (*schema.Schema, error) {
	return schema.BuildFromSDL(SDL)
}

// Thunk finishes a resolver. It may block on loader futures.
type Thunk func(ctx context.Context) (any, error)

// ResolverFunc starts resolving one field. It must not wait on loader futures;
// work that waits belongs in the returned Thunk.
type ResolverFunc func(ctx context.Context, source any, args map[string]any) (Thunk, error)

// Value returns a Thunk yielding v.
func Value(v any) Thunk {
	return func(context.Context) (any, error) { return v, nil }
}

type fieldKey struct {
	objectType string
	field      string
}

// Registry maps (objectType, field) to resolvers.
type Registry struct {
	resolvers map[fieldKey]ResolverFunc
}

func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[fieldKey]ResolverFunc)}
}

// Register installs fn for objectType.field, replacing any previous resolver.
func (r *Registry) Register(objectType, field string, fn ResolverFunc) *Registry {
	r.resolvers[fieldKey{objectType, field}] = fn
	return r
}

// Lookup returns the resolver for objectType.field, or nil.
func (r *Registry) Lookup(objectType, field string) ResolverFunc {
	return r.resolvers[fieldKey{objectType, field}]
}

// Runtime resolves blog fields.
// Invariants and boundaries:
//   - ResolveSync never performs I/O for object types; it projects fields of
//     the store structs. Root mutation fields are the exception: they are sync
//     so that the executor runs them one after another, and their resolver is
//     evaluated to completion inside ResolveSync.
//   - BatchResolveAsync groups tasks by (objectType, field) in order of first
//     appearance and calls every resolver before evaluating any thunk.
//   - Results preserve input ordering; one failing task does not affect the
//     others.
type Runtime struct {
	reg         *Registry
	logger      *zap.Logger
	concurrency int
}

var _ executor.Runtime = (*Runtime)(nil)

type Option func(*Runtime)

// WithLogger sets the logger internal errors are reported to.
func WithLogger(l *zap.Logger) Option { return func(r *Runtime) { r.logger = l } }

// WithConcurrency bounds the number of thunks evaluated at once. n <= 0 means
// unbounded.
func WithConcurrency(n int) Option { return func(r *Runtime) { r.concurrency = n } }

func NewRuntime(reg *Registry, opts ...Option) *Runtime {
	r := &Runtime{reg: reg, logger: zap.NewNop(), concurrency: 8}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	if fn := r.reg.Lookup(objectType, field); fn != nil {
		v, err := r.run(ctx, fn, source, args)
		return v, r.present(ctx, objectType, field, err)
	}
	v, err := project(objectType, field, source)
	return v, r.present(ctx, objectType, field, err)
}

func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	type group struct {
		key  fieldKey
		idxs []int
	}
	groups := []group{}
	idxByKey := map[fieldKey]int{}
	for i, t := range tasks {
		k := fieldKey{t.ObjectType, t.Field}
		if gi, ok := idxByKey[k]; ok {
			groups[gi].idxs = append(groups[gi].idxs, i)
		} else {
			idxByKey[k] = len(groups)
			groups = append(groups, group{key: k, idxs: []int{i}})
		}
	}

	// phase 1: issue loads
	thunks := make([]Thunk, len(tasks))
	for _, g := range groups {
		fn := r.reg.Lookup(g.key.objectType, g.key.field)
		for _, i := range g.idxs {
			t := tasks[i]
			if fn == nil {
				results[i].Error = r.present(ctx, t.ObjectType, t.Field,
					fmt.Errorf("no resolver registered for %s.%s", t.ObjectType, t.Field))
				continue
			}
			th, err := r.start(ctx, fn, t.Source, t.Args)
			if err != nil {
				results[i].Error = r.present(ctx, t.ObjectType, t.Field, err)
				continue
			}
			thunks[i] = th
		}
	}

	// phase 2: wait
	var eg errgroup.Group
	if r.concurrency > 0 {
		eg.SetLimit(r.concurrency)
	}
	for i, th := range thunks {
		if th == nil {
			continue
		}
		t := tasks[i]
		eg.Go(func() error {
			v, err := r.finish(ctx, th)
			if err != nil {
				results[i].Error = r.present(ctx, t.ObjectType, t.Field, err)
				return nil
			}
			results[i].Value = v
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if name := typeNameOf(value); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("cannot resolve %s for %T", abstractType, value)
}

func (r *Runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	return serializeLeaf(typ, value)
}

func (r *Runtime) run(ctx context.Context, fn ResolverFunc, source any, args map[string]any) (any, error) {
	th, err := r.start(ctx, fn, source, args)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, th)
}

func (r *Runtime) start(ctx context.Context, fn ResolverFunc, source any, args map[string]any) (th Thunk, err error) {
	defer func() {
		if p := recover(); p != nil {
			th, err = nil, fmt.Errorf("resolver panic: %v", p)
		}
	}()
	th, err = fn(ctx, source, args)
	if err == nil && th == nil {
		th = Value(nil)
	}
	return th, err
}

func (r *Runtime) finish(ctx context.Context, th Thunk) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, err = nil, fmt.Errorf("resolver panic: %v", p)
		}
	}()
	return th(ctx)
}

// present turns err into the error clients see. Anything that is not already
// a client-facing error is logged and replaced by a redacted one.
func (r *Runtime) present(ctx context.Context, objectType, field string, err error) error {
	if err == nil {
		return nil
	}
	pe := presentError(err)
	if pe.redacted {
		r.logger.Error("resolver failed",
			zap.String("field", objectType+"."+field),
			zap.Error(err),
			zap.String("request_id", requestID(ctx)),
		)
	}
	return pe.err
}
