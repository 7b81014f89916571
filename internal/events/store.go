package events

import "time"

// Query is emitted after every SQL statement the store executes.
type Query struct {
	SQL      string
	Args     []any
	Rows     int64
	Duration time.Duration
	Err      error
}
