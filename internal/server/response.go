package server

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	executor "github.com/hanpama/blogql/internal/executor"
	language "github.com/hanpama/blogql/internal/language"
)

type location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type responseError struct {
	Message    string         `json:"message"`
	Locations  []location     `json:"locations,omitempty"`
	Path       executor.Path  `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// response is the JSON body of one operation. Data is always present, null
// when nothing was executed.
type response struct {
	Data   any             `json:"data"`
	Errors []responseError `json:"errors,omitempty"`
}

func failure(message string) response {
	return response{Errors: []responseError{{Message: message}}}
}

// documentErrors reports parse and validation errors. Errors without a code
// are marked GRAPHQL_VALIDATION_FAILED.
func documentErrors(errs language.ErrorList) response {
	out := response{Errors: make([]responseError, len(errs))}
	for i, e := range errs {
		re := responseError{Message: e.Message, Extensions: e.Extensions}
		for _, loc := range e.Locations {
			re.Locations = append(re.Locations, location{Line: loc.Line, Column: loc.Column})
		}
		if re.Extensions == nil {
			re.Extensions = map[string]any{"code": "GRAPHQL_VALIDATION_FAILED"}
		}
		out.Errors[i] = re
	}
	return out
}

func executionResponse(res *executor.ExecutionResult) response {
	out := response{Data: res.Data}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, responseError{Message: e.Message, Path: e.Path, Extensions: e.Extensions})
	}
	return out
}

func (h *Handler) write(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v, h.opt.Pretty)
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

// allowCORS sets the CORS headers when the request's Origin is allowed. An
// allow list containing "*" answers with a wildcard.
func allowCORS(w http.ResponseWriter, r *http.Request, allowed []string) {
	origin := r.Header.Get("Origin")
	if origin == "" || len(allowed) == 0 {
		return
	}
	switch {
	case slices.Contains(allowed, "*"):
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case slices.Contains(allowed, origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	default:
		return
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func acceptsHTML(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "text/html") || part == "*/*" {
			return true
		}
	}
	return false
}
