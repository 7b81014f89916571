// Package server exposes an executor over HTTP: GET and POST requests,
// batched arrays, CORS, GraphiQL and request IDs.
package server

import (
	"context"
	"net/http"
	"time"

	eventbus "github.com/hanpama/blogql/internal/eventbus"
	events "github.com/hanpama/blogql/internal/events"
	executor "github.com/hanpama/blogql/internal/executor"
	language "github.com/hanpama/blogql/internal/language"
	reqid "github.com/hanpama/blogql/internal/reqid"
	schema "github.com/hanpama/blogql/internal/schema"
)

// Handler serves one schema at a single endpoint.
type Handler struct {
	exec   *executor.Executor
	schema *schema.Schema
	opt    Options
}

type Options struct {
	// Timeout bounds requests whose context has no deadline. Zero disables it.
	Timeout time.Duration
	// Pretty indents JSON responses.
	Pretty bool
	// MaxBodyBytes caps POST bodies. Zero means unlimited.
	MaxBodyBytes int64
	// AllowedOrigins enables CORS for the listed origins; "*" allows any.
	AllowedOrigins []string
	// RequestContext prepares the context of every operation, batched ones
	// included.
	RequestContext func(ctx context.Context, r *http.Request) context.Context
	// Validate checks documents against the schema's gqlparser definition
	// before execution.
	Validate bool
	// GraphiQL serves the IDE to browsers on GET without a query.
	GraphiQL bool
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option  { return func(o *Options) { o.AllowedOrigins = origins } }
func WithValidation(enable bool) Option  { return func(o *Options) { o.Validate = enable } }
func WithGraphiQL(enable bool) Option    { return func(o *Options) { o.GraphiQL = enable } }

func WithRequestContext(fn func(context.Context, *http.Request) context.Context) Option {
	return func(o *Options) { o.RequestContext = fn }
}

// New returns a handler executing against runtime and sch. Validation and
// GraphiQL are on and requests time out after 10s unless options say otherwise.
func New(runtime executor.Runtime, sch *schema.Schema, opts ...Option) (*Handler, error) {
	o := Options{Timeout: 10 * time.Second, GraphiQL: true, Validate: true}
	for _, apply := range opts {
		apply(&o)
	}
	return &Handler{exec: executor.NewExecutor(runtime, sch), schema: sch, opt: o}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	ctx, rid := reqid.NewContext(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)

	finish := events.HTTPFinish{Request: r, Status: http.StatusOK}
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		finish.Duration = time.Since(start)
		eventbus.Publish(ctx, finish)
	}()

	allowCORS(w, r, h.opt.AllowedOrigins)

	switch {
	case r.Method == http.MethodOptions:
		finish.Status = http.StatusNoContent
		w.WriteHeader(finish.Status)
		return
	case r.Method != http.MethodGet && r.Method != http.MethodPost:
		finish.Status = http.StatusMethodNotAllowed
		h.write(w, finish.Status, failure("method not allowed"))
		return
	case r.Method == http.MethodGet && h.opt.GraphiQL && r.URL.Query().Get("query") == "" && acceptsHTML(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	reqs, batched, rerr := decodeRequest(w, r, h.opt.MaxBodyBytes)
	if rerr != nil {
		finish.Status = rerr.status
		h.write(w, rerr.status, failure(rerr.message))
		return
	}

	finish.Operations = len(reqs)
	results := make([]response, len(reqs))
	for i, req := range reqs {
		results[i] = h.execute(ctx, r, req)
	}
	if batched {
		h.write(w, finish.Status, results)
		return
	}
	h.write(w, finish.Status, results[0])
}

// execute runs one operation and publishes its GraphQL events.
func (h *Handler) execute(ctx context.Context, r *http.Request, req Request) response {
	doc, errs := h.parse(req.Query)
	if len(errs) > 0 {
		return documentErrors(errs)
	}
	if h.opt.RequestContext != nil {
		ctx = h.opt.RequestContext(ctx, r)
	}

	var opType string
	if op := doc.Operations.ForName(req.OperationName); op != nil {
		opType = string(op.Operation)
	} else if len(doc.Operations) == 1 {
		opType = string(doc.Operations[0].Operation)
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	result := h.exec.ExecuteRequest(ctx, doc, req.OperationName, req.Variables, nil)

	finish := events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        make([]error, len(result.Errors)),
		Codes:         make([]string, len(result.Errors)),
	}
	for i, e := range result.Errors {
		finish.Errors[i] = e
		finish.Codes[i], _ = e.Extensions["code"].(string)
	}
	finish.Duration = time.Since(start)
	eventbus.Publish(ctx, finish)

	return executionResponse(result)
}

// parse parses source and, with validation on, checks it against the schema.
func (h *Handler) parse(source string) (*language.QueryDocument, language.ErrorList) {
	if h.opt.Validate && h.schema.Validation != nil {
		return language.LoadQuery(h.schema.Validation, source)
	}
	doc, err := language.ParseQuery(source)
	if err != nil {
		if ge, ok := err.(*language.Error); ok {
			return nil, language.ErrorList{ge}
		}
		return nil, language.ErrorList{{Message: err.Error()}}
	}
	return doc, nil
}
