package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"hardcover_rss/config"
	"hardcover_rss/internal/model"
	"hardcover_rss/utils"

	"github.com/codeGROOVE-dev/retry"
)

// The structured-query endpoint exposes the list through two schema
// variants: a user-level user_books relation and a shelf-scoped
// bookshelf_books relation. Both are tried, in that order.
const userBooksQuery = `
query GetUserWantToRead($username: citext!) {
    users(where: {username: {_eq: $username}}, limit: 1) {
        id
        username
        user_books(order_by: {created_at: desc}) {
            id
            created_at
            rating
            review_raw
            book {
                id
                title
                description
            }
        }
    }
}`

const shelfBooksQuery = `
query GetUserShelfBooks($username: citext!) {
    users(where: {username: {_eq: $username}}, limit: 1) {
        id
        username
        bookshelves {
            name
            bookshelf_books(order_by: {created_at: desc}) {
                id
                created_at
                rating
                review_raw
                book {
                    id
                    title
                    description
                }
            }
        }
    }
}`

// graphqlStrategy is the degraded fallback: it guarantees id, title and
// description but cannot supply covers, isbn or publish years.
type graphqlStrategy struct {
	cfg    *config.Config
	client *http.Client
}

func (s *graphqlStrategy) name() string {
	return "structured-query"
}

func (s *graphqlStrategy) confirmsAbsence() bool {
	return true
}

type gqlUserBook struct {
	Id        json.RawMessage `json:"id"`
	CreatedAt string          `json:"created_at"`
	Rating    json.RawMessage `json:"rating"`
	ReviewRaw string          `json:"review_raw"`
	Book      struct {
		Id          json.RawMessage `json:"id"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
	} `json:"book"`
}

type gqlUser struct {
	Id          json.RawMessage `json:"id"`
	Username    string          `json:"username"`
	UserBooks   []gqlUserBook   `json:"user_books"`
	Bookshelves []struct {
		Name           string        `json:"name"`
		BookshelfBooks []gqlUserBook `json:"bookshelf_books"`
	} `json:"bookshelves"`
}

type gqlResponse struct {
	Data *struct {
		Users []gqlUser `json:"users"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (s *graphqlStrategy) fetch(ctx context.Context, handle string) (rawList, error) {
	op := "graphqlStrategy.fetch"
	rqID := utils.GetRequestIDFromCtx(ctx)

	var lastErr error
	sawUser := false
	var userID string

	for _, doc := range []string{userBooksQuery, shelfBooksQuery} {
		user, err := s.queryUser(ctx, doc, handle)
		if err != nil {
			slog.Warn(
				"graphql query variant failed",
				slog.String("op", op),
				slog.String("rqID", rqID),
				slog.String("handle", handle),
				slog.String("err", err.Error()),
			)
			lastErr = err
			continue
		}
		if user == nil {
			return rawList{}, fmt.Errorf("%s: user %s: %w", op, handle, ErrIdentityNotFound)
		}

		sawUser = true
		userID = stringifyId(user.Id)

		books := collectUserBooks(user)
		if len(books) > 0 {
			return rawList{userID: userID, books: books}, nil
		}
	}

	if !sawUser && lastErr != nil {
		return rawList{}, lastErr
	}

	// Both relation shapes resolved the user but yielded zero books.
	return rawList{userID: userID}, nil
}

func (s *graphqlStrategy) queryUser(ctx context.Context, doc string, handle string) (*gqlUser, error) {
	op := "graphqlStrategy.queryUser"
	rqID := utils.GetRequestIDFromCtx(ctx)

	payload, err := json.Marshal(map[string]any{
		"query":     doc,
		"variables": map[string]string{"username": handle},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal query: %w", op, err)
	}

	var body []byte
	err = retry.Do(
		func() error {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Hardcover.GraphqlUrl, bytes.NewReader(payload))
			if reqErr != nil {
				return reqErr
			}
			req.Header.Set("Content-Type", "application/json")
			if s.cfg.Hardcover.ApiToken != "" {
				req.Header.Set("Authorization", "Bearer "+s.cfg.Hardcover.ApiToken)
			}

			resp, doErr := s.client.Do(req)
			if doErr != nil {
				return doErr
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
				if resp.StatusCode >= http.StatusInternalServerError {
					return statusErr
				}
				// 4xx is deterministic; retrying only burns attempts.
				return retry.Unrecoverable(statusErr)
			}

			body, reqErr = io.ReadAll(resp.Body)
			return reqErr
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		slog.Error(
			"graphql request failed",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %s: %w", op, err.Error(), ErrUpstreamUnreachable)
	}

	var decoded gqlResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, ErrUpstreamMalformed)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("%s: graphql errors: %s: %w", op, decoded.Errors[0].Message, ErrUpstreamMalformed)
	}
	if decoded.Data == nil {
		return nil, fmt.Errorf("%s: empty data: %w", op, ErrUpstreamMalformed)
	}
	if len(decoded.Data.Users) == 0 {
		return nil, nil
	}

	return &decoded.Data.Users[0], nil
}

func collectUserBooks(user *gqlUser) []rawBook {
	var entries []gqlUserBook
	entries = append(entries, user.UserBooks...)
	for _, shelf := range user.Bookshelves {
		entries = append(entries, shelf.BookshelfBooks...)
	}

	books := make([]rawBook, 0, len(entries))
	for _, entry := range entries {
		books = append(books, rawBook{
			id:          stringifyId(entry.Book.Id),
			title:       entry.Book.Title,
			description: entry.Book.Description,
			dateAdded:   model.ParseTime(entry.CreatedAt),
			userRating:  parseUserRating(entry.Rating),
			userReview:  entry.ReviewRaw,
		})
	}

	return books
}

func parseUserRating(raw json.RawMessage) *int {
	f := parseRating(raw)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}
