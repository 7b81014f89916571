package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
)

// Request is one GraphQL operation as sent by a client.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type requestError struct {
	status  int
	message string
}

func badRequest(message string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message}
}

// decodeRequest reads the operations of r. GET takes query, variables and
// operationName from the URL; POST takes a JSON object or a non-empty array
// of them, in which case batched is true.
func decodeRequest(w http.ResponseWriter, r *http.Request, maxBody int64) (reqs []Request, batched bool, rerr *requestError) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req := Request{Query: q.Get("query"), OperationName: q.Get("operationName")}
		if req.Query == "" {
			return nil, false, badRequest("missing 'query'")
		}
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				return nil, false, badRequest("invalid 'variables' JSON")
			}
		}
		return []Request{req}, false, nil
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			return nil, false, badRequest("unsupported Content-Type")
		}
	}
	body := io.Reader(r.Body)
	if maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBody)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, false, &requestError{status: http.StatusRequestEntityTooLarge, message: "body too large"}
		}
		return nil, false, badRequest("failed to read body")
	}

	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &reqs); err != nil {
			return nil, false, badRequest("invalid JSON")
		}
		if len(reqs) == 0 {
			return nil, false, badRequest("empty batch")
		}
		return reqs, true, nil
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, false, badRequest("invalid JSON")
	}
	if req.Query == "" {
		return nil, false, badRequest("missing 'query'")
	}
	return []Request{req}, false, nil
}
