// Package loader coalesces the point lookups issued while resolving one
// request into batched fetches.
//
// A Loader is created per request and owns a cache of futures keyed by entity
// key. Load never blocks: it registers the key with the pending batch and
// returns a Future. The pending batch is handed to the fetch function when
//
//   - the first Future of the batch is waited on (the default), or
//   - the optional wait window elapses (WithWait), or
//   - it reaches the configured size (WithMaxBatch), or
//   - Dispatch is called.
//
// Resolvers that issue every Load of an execution depth before waiting on any
// of them therefore see a single fetch per loader per depth.
package loader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	eventbus "github.com/hanpama/blogql/internal/eventbus"
	events "github.com/hanpama/blogql/internal/events"
)

// FetchFunc loads the entities for keys. The returned slice may be in any
// order and may omit keys that have no entity.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

type options struct {
	maxBatch int
	wait     time.Duration
}

type Option func(*options)

// WithMaxBatch seals a batch once it holds n keys. 0 means unbounded.
func WithMaxBatch(n int) Option { return func(o *options) { o.maxBatch = n } }

// WithWait dispatches a batch d after its first key was enqueued instead of on
// the first Wait. 0 keeps the wait-driven behaviour.
func WithWait(d time.Duration) Option { return func(o *options) { o.wait = d } }

// Loader batches and caches lookups of V by K. It is safe for concurrent use
// but must not be shared between requests.
type Loader[K comparable, V any] struct {
	name    string
	fetch   func(ctx context.Context, keys []K) (map[K]V, error)
	missing func(key K) (V, error)
	opt     options

	mu      sync.Mutex
	cache   map[K]*Future[V]
	pending *batch[K, V]
}

type batch[K comparable, V any] struct {
	ctx     context.Context
	keys    []K
	futures []*Future[V]
	timer   *time.Timer
	started atomic.Bool
}

// New returns a loader for one-to-one lookups. keyOf extracts the key an
// entity answers for; keys without an entity resolve to a *NotFoundError.
func New[K comparable, V any](name string, fetch FetchFunc[K, V], keyOf func(V) K, opts ...Option) *Loader[K, V] {
	byKey := func(ctx context.Context, keys []K) (map[K]V, error) {
		items, err := fetch(ctx, keys)
		if err != nil {
			return nil, err
		}
		found := make(map[K]V, len(items))
		for _, item := range items {
			found[keyOf(item)] = item
		}
		return found, nil
	}
	notFound := func(key K) (V, error) {
		var zero V
		return zero, &NotFoundError{Loader: name, Key: key}
	}
	return newLoader(name, byKey, notFound, opts)
}

// NewGrouped returns a loader for one-to-many lookups. groupOf extracts the
// key an entity belongs to; keys without entities resolve to an empty slice.
func NewGrouped[K comparable, V any](name string, fetch FetchFunc[K, V], groupOf func(V) K, opts ...Option) *Loader[K, []V] {
	grouped := func(ctx context.Context, keys []K) (map[K][]V, error) {
		items, err := fetch(ctx, keys)
		if err != nil {
			return nil, err
		}
		found := make(map[K][]V, len(keys))
		for _, item := range items {
			k := groupOf(item)
			found[k] = append(found[k], item)
		}
		return found, nil
	}
	empty := func(K) ([]V, error) { return []V{}, nil }
	return newLoader(name, grouped, empty, opts)
}

func newLoader[K comparable, V any](
	name string,
	fetch func(context.Context, []K) (map[K]V, error),
	missing func(K) (V, error),
	opts []Option,
) *Loader[K, V] {
	l := &Loader[K, V]{
		name:    name,
		fetch:   fetch,
		missing: missing,
		cache:   make(map[K]*Future[V]),
	}
	for _, f := range opts {
		f(&l.opt)
	}
	return l
}

// Name returns the name the loader reports in errors and events.
func (l *Loader[K, V]) Name() string { return l.name }

// Load returns the future for key, enqueueing the key into the pending batch
// unless an earlier call already did. Equal keys yield the same *Future until
// Clear is called.
func (l *Loader[K, V]) Load(ctx context.Context, key K) *Future[V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.cache[key]; ok {
		return f
	}

	b := l.pending
	if b == nil {
		b = &batch[K, V]{ctx: context.WithoutCancel(ctx)}
		if l.opt.wait > 0 {
			b.timer = time.AfterFunc(l.opt.wait, func() { l.dispatch(b) })
		}
		l.pending = b
	}

	f := &Future[V]{done: make(chan struct{})}
	if l.opt.wait <= 0 {
		f.kick = func() { l.start(b) }
	}
	b.keys = append(b.keys, key)
	b.futures = append(b.futures, f)
	l.cache[key] = f

	if l.opt.maxBatch > 0 && len(b.keys) >= l.opt.maxBatch {
		l.pending = nil
		l.start(b)
	}
	return f
}

// LoadMany calls Load for every key and returns the futures in key order.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) Futures[V] {
	out := make(Futures[V], len(keys))
	for i, key := range keys {
		out[i] = l.Load(ctx, key)
	}
	return out
}

// Prime stores value for key unless the key is already cached.
func (l *Loader[K, V]) Prime(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[key]; ok {
		return
	}
	f := &Future[V]{done: make(chan struct{})}
	f.resolve(value, nil)
	l.cache[key] = f
}

// Clear drops key from the cache so the next Load fetches it again.
func (l *Loader[K, V]) Clear(key K) {
	l.mu.Lock()
	delete(l.cache, key)
	l.mu.Unlock()
}

// ClearAll empties the cache.
func (l *Loader[K, V]) ClearAll() {
	l.mu.Lock()
	l.cache = make(map[K]*Future[V])
	l.mu.Unlock()
}

// Dispatch starts fetching the pending batch, if any, without waiting for it.
func (l *Loader[K, V]) Dispatch() {
	l.mu.Lock()
	b := l.pending
	l.mu.Unlock()
	if b != nil {
		l.start(b)
	}
}

func (l *Loader[K, V]) start(b *batch[K, V]) {
	if b.started.Load() {
		return
	}
	go l.dispatch(b)
}

func (l *Loader[K, V]) dispatch(b *batch[K, V]) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}

	// b.timer is written under l.mu, possibly after the timer has fired
	l.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	if l.pending == b {
		l.pending = nil
	}
	keys, futures := b.keys, b.futures
	l.mu.Unlock()

	unique := make([]K, 0, len(keys))
	seen := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}

	start := time.Now()
	found, err := l.safeFetch(b.ctx, unique)
	if err != nil {
		err = &BatchError{Loader: l.name, Keys: len(unique), Err: err}
	}

	missing := 0
	for _, k := range unique {
		if _, ok := found[k]; !ok {
			missing++
		}
	}
	if err != nil {
		missing = 0
	}

	// the event precedes resolution of the batch's futures
	eventbus.Publish(b.ctx, events.LoaderBatch{
		Loader:   l.name,
		Keys:     len(unique),
		Missing:  missing,
		Duration: time.Since(start),
		Err:      err,
	})

	for i, f := range futures {
		if err != nil {
			var zero V
			f.resolve(zero, err)
			continue
		}
		if v, ok := found[keys[i]]; ok {
			f.resolve(v, nil)
			continue
		}
		f.resolve(l.missing(keys[i]))
	}
}

func (l *Loader[K, V]) safeFetch(ctx context.Context, keys []K) (found map[K]V, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("panic in fetch: %v", r)
		}
	}()
	return l.fetch(ctx, keys)
}

// Future is the eventual result of one Load.
type Future[V any] struct {
	done  chan struct{}
	value V
	err   error
	kick  func()
}

func (f *Future[V]) resolve(value V, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx is done. Cancelling ctx only
// abandons this wait; the batch keeps running for the other callers.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	if f.kick != nil {
		f.kick()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Futures is the result of LoadMany.
type Futures[V any] []*Future[V]

// Wait waits for every future. errs is nil when all of them succeeded,
// otherwise it has one entry per future.
func (fs Futures[V]) Wait(ctx context.Context) (values []V, errs []error) {
	values = make([]V, len(fs))
	for i, f := range fs {
		v, err := f.Wait(ctx)
		values[i] = v
		if err != nil {
			if errs == nil {
				errs = make([]error, len(fs))
			}
			errs[i] = err
		}
	}
	return values, errs
}
