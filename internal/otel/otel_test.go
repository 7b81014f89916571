package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	eventbus "github.com/hanpama/blogql/internal/eventbus"
	events "github.com/hanpama/blogql/internal/events"
	reqid "github.com/hanpama/blogql/internal/reqid"
)

func TestSpansFollowRequest(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	unsubscribe := newSubscriber(tp.Tracer("test")).register()
	defer unsubscribe()

	ctx, _ := reqid.NewContext(context.Background(), "req-1")
	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Publish(ctx, events.HTTPStart{Request: req})
	eventbus.Publish(ctx, events.GraphQLStart{OperationType: "query"})
	eventbus.Publish(ctx, events.LoaderBatch{Loader: "User", Keys: 2, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.Query{SQL: "SELECT 1", Err: errors.New("locked")})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "query"})
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 200})

	spans := rec.Ended()
	require.Len(t, spans, 4)
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}
	root := byName["http.request"]
	op := byName["graphql.operation"]
	require.NotNil(t, root)
	require.NotNil(t, op)
	require.Equal(t, root.SpanContext().SpanID(), op.Parent().SpanID())
	require.Equal(t, op.SpanContext().SpanID(), byName["loader.batch"].Parent().SpanID())
	require.Equal(t, op.SpanContext().SpanID(), byName["db.query"].Parent().SpanID())
	require.Equal(t, "Error", byName["db.query"].Status().Code.String())
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "blogql")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
