package executor

import (
	"context"
	"errors"
	"sync"

	schema "github.com/hanpama/blogql/internal/schema"
)

// MockResolver resolves one field instance for MockRuntime.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

const (
	CallKindSync  = "sync"
	CallKindAsync = "async"
)

func NewMockValueResolver(val any) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return val, nil }
}

func NewMockErrorResolver(err error) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

// Call records one field instance passed to MockRuntime. BatchID is 0 for
// sync calls and numbers the BatchResolveAsync invocations from 1.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	BatchID    int
}

// MockRuntime is a Runtime backed by resolvers keyed "Type.field". Fields
// without a resolver resolve to null. It records every call.
type MockRuntime struct {
	mu        sync.Mutex
	resolvers map[string]MockResolver
	calls     []Call
	batches   int

	typeResolver func(value any) (string, error)
	serializer   func(val any, t schema.TypeRef) (any, error)
}

// NewMockRuntime returns a MockRuntime whose type resolver reads the
// "__typename" key of map values and whose serializer returns leaves as is.
func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{
		resolvers: make(map[string]MockResolver, len(resolvers)),
		typeResolver: func(value any) (string, error) {
			if obj, ok := value.(map[string]any); ok {
				if name, ok := obj["__typename"].(string); ok {
					return name, nil
				}
			}
			return "", errors.New("cannot resolve type")
		},
		serializer: func(val any, _ schema.TypeRef) (any, error) { return val, nil },
	}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

func (m *MockRuntime) SetResolver(objectType, field string, resolver MockResolver) {
	m.mu.Lock()
	m.resolvers[objectType+"."+field] = resolver
	m.mu.Unlock()
}

// SetTypeResolver replaces the type resolver of r if it is a *MockRuntime.
func SetTypeResolver(r Runtime, f func(value any) (string, error)) {
	if m, ok := r.(*MockRuntime); ok {
		m.mu.Lock()
		m.typeResolver = f
		m.mu.Unlock()
	}
}

// SetSerializer replaces the leaf serializer of r if it is a *MockRuntime.
func SetSerializer(r Runtime, f func(val any, t schema.TypeRef) (any, error)) {
	if m, ok := r.(*MockRuntime); ok {
		m.mu.Lock()
		m.serializer = f
		m.mu.Unlock()
	}
}

func (m *MockRuntime) resolve(ctx context.Context, call Call) (any, error) {
	m.mu.Lock()
	r := m.resolvers[call.ObjectType+"."+call.Field]
	m.mu.Unlock()

	var (
		val any
		err error
	)
	if r != nil {
		val, err = r(ctx, call.Source, call.Args)
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	return val, err
}

func (m *MockRuntime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	val, err := m.resolve(ctx, Call{Kind: CallKindSync, ObjectType: objectType, Field: field, Source: source, Args: args})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// BatchResolveAsync resolves tasks grouped by "Type.field" in first-seen
// order, the way a loader-backed runtime would, and records them in that
// order.
func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	if len(tasks) == 0 {
		return nil
	}
	m.mu.Lock()
	m.batches++
	batchID := m.batches
	m.mu.Unlock()

	var order []string
	groups := make(map[string][]int)
	for i, t := range tasks {
		key := t.ObjectType + "." + t.Field
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	results := make([]AsyncResolveResult, len(tasks))
	for _, key := range order {
		for _, i := range groups[key] {
			t := tasks[i]
			val, err := m.resolve(ctx, Call{
				Kind:       CallKindAsync,
				ObjectType: t.ObjectType,
				Field:      t.Field,
				Source:     t.Source,
				Args:       t.Args,
				BatchID:    batchID,
			})
			results[i] = AsyncResolveResult{Value: val, Error: err}
		}
	}
	return results
}

func (m *MockRuntime) ResolveType(_ context.Context, _ string, value any) (string, error) {
	m.mu.Lock()
	f := m.typeResolver
	m.mu.Unlock()
	return f(value)
}

func (m *MockRuntime) SerializeLeafValue(_ context.Context, name string, value any) (any, error) {
	m.mu.Lock()
	f := m.serializer
	m.mu.Unlock()
	return f(value, *schema.NamedType(name))
}

// GetCalls returns a copy of the recorded calls.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
