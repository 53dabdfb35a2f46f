package fetcher

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"hardcover_rss/internal/model"
)

// rawBook is the strict intermediate representation every strategy
// parser produces. Reconciliation into the canonical model happens in
// exactly one place so upstream shape variance stays behind this seam.
type rawBook struct {
	id           string
	title        string
	authorNames  []string
	authorLegacy string
	coverUrl     string
	description  string
	isbn         string
	releaseYear  *int
	pages        *int
	rating       *float64
	dateAdded    *time.Time
	userRating   *int
	userReview   string
}

type rawList struct {
	userID string
	books  []rawBook
}

func reconcileBooks(raw []rawBook) []model.Book {
	books := make([]model.Book, 0, len(raw))
	for _, rb := range raw {
		if rb.id == "" || rb.title == "" {
			continue
		}
		books = append(books, model.Book{
			Id:            rb.id,
			Title:         rb.title,
			Author:        reconcileAuthor(rb),
			CoverImageUrl: optString(rb.coverUrl),
			Description:   optString(rb.description),
			Isbn:          optString(rb.isbn),
			PublishedYear: rb.releaseYear,
			PageCount:     rb.pages,
			AverageRating: rb.rating,
			DateAdded:     rb.dateAdded,
			UserRating:    rb.userRating,
			UserReview:    optString(rb.userReview),
		})
	}

	// Upstream orders by added time descending when it supplies the
	// timestamps at all; otherwise keep source order untouched.
	if len(books) > 1 && allDated(books) {
		sort.SliceStable(books, func(i, j int) bool {
			return books[i].DateAdded.After(*books[j].DateAdded)
		})
	}

	return books
}

func reconcileAuthor(rb rawBook) string {
	if len(rb.authorNames) > 0 {
		return strings.Join(rb.authorNames, ", ")
	}
	return rb.authorLegacy
}

func allDated(books []model.Book) bool {
	for i := range books {
		if books[i].DateAdded == nil {
			return false
		}
	}
	return true
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// stringifyId accepts upstream ids serialized as numbers or strings.
func stringifyId(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}

// parseRating is deliberately forgiving: ratings arrive as numbers,
// numeric strings or junk like "N/A". Anything non-numeric is an absent
// rating, which is not the same thing as a rating of zero.
func parseRating(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
