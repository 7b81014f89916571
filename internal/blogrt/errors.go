package blogrt

import (
	"errors"
	"fmt"

	apperr "github.com/hanpama/blogql/internal/apperr"
	filter "github.com/hanpama/blogql/internal/filter"
	loader "github.com/hanpama/blogql/internal/loader"
)

type presented struct {
	err error
	// redacted is set when the client sees less than err says and the
	// original has to be logged.
	redacted bool
}

func presentError(err error) presented {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return presented{err: ae, redacted: ae.Code == apperr.Internal}
	}
	var nf *loader.NotFoundError
	if errors.As(err, &nf) {
		return presented{err: &apperr.Error{
			Code:    apperr.NotFound,
			Message: fmt.Sprintf("%s not found for id=%v", nf.Loader, nf.Key),
			Err:     err,
		}}
	}
	var in *filter.InputError
	if errors.As(err, &in) {
		return presented{err: &apperr.Error{
			Code:        apperr.BadUserInput,
			Message:     "Invalid input",
			FieldErrors: map[string][]string{in.Path: {in.Message}},
			Err:         err,
		}}
	}
	return presented{err: apperr.Wrap(err, apperr.Internal, "Internal server error"), redacted: true}
}
