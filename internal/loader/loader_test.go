package loader

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	eventbus "github.com/hanpama/blogql/internal/eventbus"
	events "github.com/hanpama/blogql/internal/events"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID   int
	Name string
}

type comment struct {
	ID     int
	PostID int
}

// recorder is a fetch function backed by a fixed table that logs every batch.
type recorder struct {
	mu      sync.Mutex
	rows    map[int]user
	batches [][]int
	err     error
}

func newRecorder(ids ...int) *recorder {
	r := &recorder{rows: map[int]user{}}
	for _, id := range ids {
		r.rows[id] = user{ID: id, Name: "user"}
	}
	return r
}

func (r *recorder) fetch(ctx context.Context, keys []int) ([]user, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]int(nil), keys...))
	if r.err != nil {
		return nil, r.err
	}
	out := make([]user, 0, len(keys))
	// reverse order: the loader must not rely on positions
	for i := len(keys) - 1; i >= 0; i-- {
		if u, ok := r.rows[keys[i]]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *recorder) calls() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int(nil), r.batches...)
}

func userID(u user) int { return u.ID }

func TestLoadsBeforeFirstWaitShareOneBatch(t *testing.T) {
	rec := newRecorder(1, 2, 3)
	l := New("users", rec.fetch, userID)
	ctx := context.Background()

	f1 := l.Load(ctx, 1)
	f2 := l.Load(ctx, 2)
	f3 := l.Load(ctx, 3)

	for id, f := range map[int]*Future[user]{1: f1, 2: f2, 3: f3} {
		u, err := f.Wait(ctx)
		require.NoError(t, err)
		require.Equal(t, id, u.ID)
	}
	if diff := cmp.Diff([][]int{{1, 2, 3}}, rec.calls()); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
}

func TestEqualKeysShareFuture(t *testing.T) {
	rec := newRecorder(7)
	l := New("users", rec.fetch, userID)
	ctx := context.Background()

	a := l.Load(ctx, 7)
	b := l.Load(ctx, 7)
	require.Same(t, a, b)

	_, err := a.Wait(ctx)
	require.NoError(t, err)
	require.Same(t, a, l.Load(ctx, 7))
	require.Equal(t, [][]int{{7}}, rec.calls())
}

func TestMissingKeyIsNotFound(t *testing.T) {
	rec := newRecorder(1, 3)
	l := New("users", rec.fetch, userID)
	ctx := context.Background()

	fs := l.LoadMany(ctx, []int{1, 2, 3})
	values, errs := fs.Wait(ctx)
	require.Len(t, errs, 3)
	require.NoError(t, errs[0])
	require.NoError(t, errs[2])
	require.Equal(t, 1, values[0].ID)
	require.Equal(t, 3, values[2].ID)

	require.ErrorIs(t, errs[1], ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, errs[1], &nf)
	require.Equal(t, 2, nf.Key)
	require.Equal(t, "users", nf.Loader)

	var be *BatchError
	require.False(t, errors.As(errs[1], &be))
}

func TestFetchFailureRejectsWholeBatch(t *testing.T) {
	rec := newRecorder(1, 2)
	boom := errors.New("db down")
	rec.err = boom
	l := New("users", rec.fetch, userID)
	ctx := context.Background()

	_, errs := l.LoadMany(ctx, []int{1, 2}).Wait(ctx)
	require.Len(t, errs, 2)
	for _, err := range errs {
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, ErrNotFound)
	}
	require.Same(t, errs[0], errs[1])
}

func TestPanicInFetchIsBatchError(t *testing.T) {
	l := New("users", func(ctx context.Context, keys []int) ([]user, error) {
		panic("nil map")
	}, userID)
	ctx := context.Background()

	_, err := l.Load(ctx, 1).Wait(ctx)
	var be *BatchError
	require.ErrorAs(t, err, &be)
	require.Contains(t, be.Error(), "nil map")
}

func TestCacheSpansBatches(t *testing.T) {
	rec := newRecorder(1, 2)
	l := New("users", rec.fetch, userID)
	ctx := context.Background()

	_, err := l.Load(ctx, 1).Wait(ctx)
	require.NoError(t, err)

	_, errs := l.LoadMany(ctx, []int{1, 2}).Wait(ctx)
	require.Nil(t, errs)
	require.Equal(t, [][]int{{1}, {2}}, rec.calls())
}

func TestErrorsAreCachedUntilCleared(t *testing.T) {
	rec := newRecorder()
	l := New("users", rec.fetch, userID)
	ctx := context.Background()

	_, err := l.Load(ctx, 5).Wait(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = l.Load(ctx, 5).Wait(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, rec.calls(), 1)

	rec.mu.Lock()
	rec.rows[5] = user{ID: 5}
	rec.mu.Unlock()
	l.Clear(5)

	u, err := l.Load(ctx, 5).Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, u.ID)
	require.Len(t, rec.calls(), 2)
}

func TestPrimeSkipsFetch(t *testing.T) {
	rec := newRecorder()
	l := New("users", rec.fetch, userID)
	ctx := context.Background()

	l.Prime(9, user{ID: 9, Name: "primed"})
	l.Prime(9, user{ID: 9, Name: "ignored"})

	u, err := l.Load(ctx, 9).Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "primed", u.Name)
	require.Empty(t, rec.calls())

	l.ClearAll()
	_, err = l.Load(ctx, 9).Wait(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, rec.calls(), 1)
}

func TestCancelledWaiterDoesNotCancelBatch(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var fetchCtxErr error
	l := New("users", func(ctx context.Context, keys []int) ([]user, error) {
		close(entered)
		<-release
		fetchCtxErr = ctx.Err()
		out := make([]user, len(keys))
		for i, k := range keys {
			out[i] = user{ID: k}
		}
		return out, nil
	}, userID)

	callerCtx, cancel := context.WithCancel(context.Background())
	a := l.Load(callerCtx, 1)
	b := l.Load(context.Background(), 2)

	errc := make(chan error, 1)
	go func() {
		_, err := a.Wait(callerCtx)
		errc <- err
	}()
	<-entered
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	u, err := b.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, u.ID)
	require.NoError(t, fetchCtxErr)

	// the abandoned future still resolved
	u, err = a.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, u.ID)
}

func TestLoadDuringInFlightBatchStartsNewBatch(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	var mu sync.Mutex
	var batches [][]int
	l := New("users", func(ctx context.Context, keys []int) ([]user, error) {
		mu.Lock()
		batches = append(batches, append([]int(nil), keys...))
		first := len(batches) == 1
		mu.Unlock()
		entered <- struct{}{}
		if first {
			<-release
		}
		out := make([]user, len(keys))
		for i, k := range keys {
			out[i] = user{ID: k}
		}
		return out, nil
	}, userID)
	ctx := context.Background()

	first := l.Load(ctx, 1)
	l.Dispatch()
	<-entered

	second := l.Load(ctx, 2)
	again := l.Load(ctx, 1)
	require.Same(t, first, again)

	_, err := second.Wait(ctx)
	require.NoError(t, err)
	close(release)
	_, err = first.Wait(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, [][]int{{1}, {2}}, batches)
}

func TestMaxBatchSplitsBatches(t *testing.T) {
	rec := newRecorder(1, 2, 3, 4, 5)
	l := New("users", rec.fetch, userID, WithMaxBatch(2))
	ctx := context.Background()

	_, errs := l.LoadMany(ctx, []int{1, 2, 3, 4, 5}).Wait(ctx)
	require.Nil(t, errs)

	calls := rec.calls()
	require.Len(t, calls, 3)
	var all []int
	for _, c := range calls {
		require.LessOrEqual(t, len(c), 2)
		all = append(all, c...)
	}
	sort.Ints(all)
	require.Equal(t, []int{1, 2, 3, 4, 5}, all)
}

func TestWaitWindowDispatchesOnTimer(t *testing.T) {
	rec := newRecorder(1, 2)
	l := New("users", rec.fetch, userID, WithWait(5*time.Millisecond))
	ctx := context.Background()

	a := l.Load(ctx, 1)
	b := l.Load(ctx, 2)
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("batch was not dispatched by the wait window")
	}
	_, err := b.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, [][]int{{1, 2}}, rec.calls())
}

// The timer may fire before Load has stored it on the batch.
func TestNanosecondWaitWindowDispatches(t *testing.T) {
	rec := newRecorder(1)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		l := New("users", rec.fetch, userID, WithWait(time.Nanosecond))
		got, err := l.Load(ctx, 1).Wait(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, got.ID)
	}
}

func TestDuplicateKeyAfterClearReachesFetchOnce(t *testing.T) {
	rec := newRecorder(4)
	l := New("users", rec.fetch, userID)
	ctx := context.Background()

	a := l.Load(ctx, 4)
	l.Clear(4)
	b := l.Load(ctx, 4)
	require.NotSame(t, a, b)

	_, err := b.Wait(ctx)
	require.NoError(t, err)
	_, err = a.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, [][]int{{4}}, rec.calls())
}

func TestGroupedLoader(t *testing.T) {
	var got [][]int
	l := NewGrouped("commentsByPost", func(ctx context.Context, postIDs []int) ([]comment, error) {
		got = append(got, postIDs)
		return []comment{{ID: 1, PostID: 10}, {ID: 2, PostID: 10}, {ID: 3, PostID: 11}}, nil
	}, func(c comment) int { return c.PostID })
	ctx := context.Background()

	values, errs := l.LoadMany(ctx, []int{10, 11, 12}).Wait(ctx)
	require.Nil(t, errs)
	require.Equal(t, []comment{{ID: 1, PostID: 10}, {ID: 2, PostID: 10}}, values[0])
	require.Equal(t, []comment{{ID: 3, PostID: 11}}, values[1])
	require.NotNil(t, values[2])
	require.Empty(t, values[2])
	require.Equal(t, [][]int{{10, 11, 12}}, got)
}

func TestBatchEventPublished(t *testing.T) {
	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	var mu sync.Mutex
	var seen []events.LoaderBatch
	unsubscribe := eventbus.Subscribe(func(ctx context.Context, e events.LoaderBatch) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	})
	defer unsubscribe()

	rec := newRecorder(1)
	l := New("users", rec.fetch, userID)
	ctx := context.Background()
	_, errs := l.LoadMany(ctx, []int{1, 2}).Wait(ctx)
	require.Len(t, errs, 2)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "users", seen[0].Loader)
	require.Equal(t, 2, seen[0].Keys)
	require.Equal(t, 1, seen[0].Missing)
	require.NoError(t, seen[0].Err)
}
