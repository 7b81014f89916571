package blogrt

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	blog "github.com/hanpama/blogql/internal/blog"
	store "github.com/hanpama/blogql/internal/store"
)

// project reads a physical field of a store value.
func project(objectType, field string, source any) (any, error) {
	switch src := source.(type) {
	case *store.User:
		switch field {
		case "id":
			return src.ID, nil
		case "nickname":
			return src.Nickname, nil
		case "email":
			return src.Email, nil
		case "createdAt":
			return src.CreatedAt, nil
		}
	case *store.Post:
		switch field {
		case "id":
			return src.ID, nil
		case "title":
			return src.Title, nil
		case "content":
			return src.Content, nil
		case "published":
			return src.Published, nil
		case "likeCount":
			return src.LikeCount, nil
		case "createdAt":
			return src.CreatedAt, nil
		case "authorId":
			return src.AuthorID, nil
		}
	case *store.Comment:
		switch field {
		case "id":
			return src.ID, nil
		case "content":
			return src.Content, nil
		case "createdAt":
			return src.CreatedAt, nil
		case "postId":
			return src.PostID, nil
		case "authorId":
			return src.AuthorID, nil
		}
	case *blog.AuthPayload:
		switch field {
		case "accessToken":
			return src.AccessToken, nil
		case "refreshToken":
			return src.RefreshToken, nil
		case "user":
			return src.User, nil
		}
	}
	return nil, fmt.Errorf("cannot project %s.%s from %T", objectType, field, source)
}

func typeNameOf(v any) string {
	switch v.(type) {
	case *store.User:
		return "User"
	case *store.Post:
		return "Post"
	case *store.Comment:
		return "Comment"
	case *blog.AuthPayload:
		return "AuthPayload"
	}
	return ""
}

func serializeLeaf(typ string, value any) (any, error) {
	switch typ {
	case "Int":
		switch v := value.(type) {
		case int:
			return v, nil
		case int32:
			return v, nil
		case int64:
			return v, nil
		}
	case "String", "ID":
		if s, ok := value.(string); ok {
			return s, nil
		}
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case "Float":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		}
	case "DateTime":
		if t, ok := value.(time.Time); ok {
			return t.UTC().Format(time.RFC3339), nil
		}
	case "EmailAddress":
		if s, ok := value.(string); ok {
			if err := checkEmail(s); err != nil {
				return nil, err
			}
			return s, nil
		}
	case "SortOrder", "PostSortField":
		if s, ok := value.(string); ok {
			return s, nil
		}
	default:
		return value, nil
	}
	return nil, fmt.Errorf("cannot serialize %T as %s", value, typ)
}

var validate = validator.New()

func checkEmail(s string) error {
	if err := validate.Var(s, "required,email"); err != nil {
		return fmt.Errorf("%q is not a valid email address", s)
	}
	return nil
}
