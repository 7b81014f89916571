// Package eventbus delivers typed events to in-process subscribers. A
// process-wide bus is installed with Use; without one, Publish is a no-op.
package eventbus

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

type subscription struct {
	deliver func(context.Context, any)
}

// Bus routes each event to the subscribers of its static type, in
// subscription order, on the publishing goroutine.
type Bus struct {
	mu   sync.RWMutex
	subs map[reflect.Type][]*subscription
}

func New() *Bus { return &Bus{subs: make(map[reflect.Type][]*subscription)} }

func (b *Bus) add(t reflect.Type, deliver func(context.Context, any)) func() {
	s := &subscription{deliver: deliver}
	b.mu.Lock()
	b.subs[t] = append(b.subs[t], s)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// copy on removal so in-flight deliveries keep their snapshot
		remaining := slices.DeleteFunc(slices.Clone(b.subs[t]), func(x *subscription) bool { return x == s })
		if len(remaining) == 0 {
			delete(b.subs, t)
			return
		}
		b.subs[t] = remaining
	}
}

func (b *Bus) deliver(ctx context.Context, t reflect.Type, e any) {
	b.mu.RLock()
	subs := b.subs[t]
	b.mu.RUnlock()
	for _, s := range subs {
		s.deliver(ctx, e)
	}
}

var global atomic.Pointer[Bus]

// Use installs b as the process-wide bus. nil disables publishing.
func Use(b *Bus) { global.Store(b) }

// Subscribe registers fn for events of type T on the current bus and returns
// a function that removes it. Without a bus it registers nothing.
func Subscribe[T any](fn func(context.Context, T)) (unsubscribe func()) {
	b := global.Load()
	if b == nil {
		return func() {}
	}
	return b.add(reflect.TypeFor[T](), func(ctx context.Context, e any) { fn(ctx, e.(T)) })
}

// Publish delivers e to the subscribers of T.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.deliver(ctx, reflect.TypeFor[T](), e)
	}
}
