package language

import "github.com/vektah/gqlparser/v2/gqlerror"

type (
	Error     = gqlerror.Error
	ErrorList = gqlerror.List
)
