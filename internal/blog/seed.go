package blog

import (
	"context"
	"errors"
	"fmt"

	store "github.com/hanpama/blogql/internal/store"
)

// SeedPassword is the password of every seeded user.
const SeedPassword = "password123"

// SeedResult counts the rows Seed inserted.
type SeedResult struct {
	Users, Posts, Comments int
}

// Seed inserts a small demo data set. Users whose email is already present are
// left alone, so seeding twice adds nothing.
func (s *Service) Seed(ctx context.Context) (SeedResult, error) {
	var res SeedResult
	hash, err := s.issuer.HashPassword(SeedPassword)
	if err != nil {
		return res, err
	}

	type post struct {
		title, content string
		published      bool
		comments       []string
	}
	demo := []struct {
		nickname, email string
		posts           []post
	}{
		{"alice", "alice@example.com", []post{
			{"GraphQL basics", "Types, fields and resolvers.", true, []string{"Great intro!", "Thanks for writing this."}},
			{"Batching with loaders", "Solving the N+1 problem one depth at a time.", true, []string{"Finally it clicks."}},
			{"Draft: filters", "AND, OR and NOT all the way down.", false, nil},
		}},
		{"bob", "bob@example.com", []post{
			{"Another GraphQL post", "Schema first or code first?", true, []string{"Schema first."}},
		}},
		{"carol", "carol@example.com", nil},
	}

	var authors []*store.User
	for _, d := range demo {
		u, err := s.store.CreateUser(ctx, store.NewUser{Nickname: d.nickname, Email: d.email, PasswordHash: hash})
		if errors.Is(err, store.ErrConflict) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", d.email, err)
		}
		res.Users++
		authors = append(authors, u)
	}

	for i, d := range demo {
		for j, p := range d.posts {
			created, err := s.store.CreatePost(ctx, store.NewPost{
				Title:     p.title,
				Content:   p.content,
				Published: p.published,
				AuthorID:  authors[i].ID,
			})
			if err != nil {
				return res, fmt.Errorf("seed post %q: %w", p.title, err)
			}
			res.Posts++
			for k, text := range p.comments {
				commenter := authors[(i+j+k+1)%len(authors)]
				if _, err := s.store.CreateComment(ctx, store.NewComment{Content: text, PostID: created.ID, AuthorID: commenter.ID}); err != nil {
					return res, fmt.Errorf("seed comment: %w", err)
				}
				res.Comments++
			}
		}
	}
	return res, nil
}
