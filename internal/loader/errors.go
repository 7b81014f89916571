package loader

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every *NotFoundError.
var ErrNotFound = errors.New("loader: entity not found")

// NotFoundError reports a key the fetch function did not return an entity for.
type NotFoundError struct {
	Loader string
	Key    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no entity for key %v", e.Loader, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// BatchError reports that the fetch function itself failed. Every future of
// the failed batch receives the same *BatchError.
type BatchError struct {
	Loader string
	Keys   int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: batch of %d keys failed: %v", e.Loader, e.Keys, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
