// Package blog holds the use cases of the blog API. Every method validates its
// input, calls the store and reports failures as *apperr.Error values the
// GraphQL layer can show to clients.
package blog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperr "github.com/hanpama/blogql/internal/apperr"
	auth "github.com/hanpama/blogql/internal/auth"
	filter "github.com/hanpama/blogql/internal/filter"
	store "github.com/hanpama/blogql/internal/store"
)

// MaxTake caps the page size of list queries.
const MaxTake = 100

// PostFields are the filterable fields of posts.
var PostFields = filter.NewFields(
	filter.Field{Name: "title", Column: "title", Kind: filter.KindText, Rule: "min=1,max=100"},
	filter.Field{Name: "content", Column: "content", Kind: filter.KindText},
	filter.Field{Name: "published", Column: "published", Kind: filter.KindBool},
	filter.Field{Name: "authorId", Column: "author_id", Kind: filter.KindInt},
)

type Service struct {
	store    *store.Store
	issuer   *auth.Issuer
	validate *validator.Validate
	filters  *filter.Decoder
	compiler *filter.Compiler
}

type Option func(*options)

type options struct {
	filterMaxDepth int
}

// WithFilterMaxDepth bounds the nesting of post filters. 0 disables the bound.
func WithFilterMaxDepth(n int) Option { return func(o *options) { o.filterMaxDepth = n } }

func NewService(st *store.Store, issuer *auth.Issuer, opts ...Option) *Service {
	o := options{filterMaxDepth: 32}
	for _, opt := range opts {
		opt(&o)
	}
	v := newValidator()
	return &Service{
		store:    st,
		issuer:   issuer,
		validate: v,
		filters:  filter.NewDecoder(PostFields, o.filterMaxDepth, v),
		compiler: filter.NewCompiler(PostFields),
	}
}

// Store returns the underlying store, used by the resolver runtime to build
// its loaders.
func (s *Service) Store() *store.Store { return s.store }

func (s *Service) Issuer() *auth.Issuer { return s.issuer }

// newValidator reports field errors under their GraphQL argument names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(err, apperr.Internal, "Internal server error")
	}
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
	}
	return apperr.Validation(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return fmt.Sprintf("failed the %s rule", fe.Tag())
}

// storeError turns a store failure on the named entity into a client error.
func storeError(err error, entity string, id int64) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.New(apperr.NotFound, "%s not found for id=%d", entity, id)
	case errors.Is(err, store.ErrConflict):
		return &apperr.Error{
			Code:       apperr.Conflict,
			Message:    "Invalid input",
			FormErrors: []string{"A record with this value already exists"},
			Err:        err,
		}
	case errors.Is(err, store.ErrInvalidReference):
		return &apperr.Error{
			Code:       apperr.BadUserInput,
			Message:    "Invalid input",
			FormErrors: []string{"A referenced record does not exist"},
			Err:        err,
		}
	}
	return apperr.Wrap(err, apperr.Internal, "Internal server error")
}

// page validates skip/take arguments. A nil take means the MaxTake default;
// ok is false when take is 0 and the query can be skipped.
func page(skip, take *int) (p store.Page, ok bool, err error) {
	fields := map[string][]string{}
	if skip != nil {
		if *skip < 0 {
			fields["skip"] = []string{"must be at least 0"}
		} else {
			p.Skip = uint64(*skip)
		}
	}
	p.Take = MaxTake
	if take != nil {
		switch {
		case *take < 0:
			fields["take"] = []string{"must be at least 0"}
		case *take < MaxTake:
			p.Take = uint64(*take)
		}
	}
	if len(fields) > 0 {
		return store.Page{}, false, apperr.Validation(fields)
	}
	return p, p.Take > 0, nil
}
