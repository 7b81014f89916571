package events

import (
	"net/http"
	"time"
)

// HTTPStart is published when the GraphQL endpoint receives a request.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is published once the response has been written. Operations
// counts the GraphQL operations the request carried; it is 0 when the request
// was rejected before execution.
type HTTPFinish struct {
	Request    *http.Request
	Status     int
	Operations int
	Duration   time.Duration
}

// GraphQLStart is published before an operation executes.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish is published after an operation executed. Codes holds the
// "code" extension of each error in Errors, "" for errors without one.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Codes         []string
	Duration      time.Duration
}
