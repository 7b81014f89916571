package events

import "time"

// LoaderBatch is emitted after a loader flushes one batch to its fetch function.
type LoaderBatch struct {
	Loader   string
	Keys     int
	Missing  int
	Duration time.Duration
	Err      error
}
