package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Book is the canonical record every fetch strategy reconciles into.
// Id and Title are always present; the rest depends on which strategy
// produced the raw record, so absent values stay nil instead of zero.
type Book struct {
	Id            string     `json:"id"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	CoverImageUrl *string    `json:"cover_image_url,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Isbn          *string    `json:"isbn,omitempty"`
	PublishedYear *int       `json:"published_year,omitempty"`
	PageCount     *int       `json:"page_count,omitempty"`
	AverageRating *float64   `json:"average_rating,omitempty"`
	DateAdded     *time.Time `json:"date_added,omitempty"`
	UserRating    *int       `json:"user_rating,omitempty"`
	UserReview    *string    `json:"user_review,omitempty"`
}

type Person struct {
	Id          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// BookList is an immutable snapshot of one person's want-to-read list.
// FetchedAt is set once by the fetcher and never mutated; a refresh
// produces a whole new list.
type BookList struct {
	Owner     Person    `json:"owner"`
	Books     []Book    `json:"books"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Registration is the durable record for a tracked identity.
type Registration struct {
	Person    Person    `json:"person"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// timeLayouts covers the observed wire formats for stored and upstream
// timestamps. Values without an explicit offset are treated as UTC,
// never local time.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a timestamp in any accepted wire layout, normalized
// to UTC. Empty or unparsable values read as absent.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// UnmarshalJSON tolerates date_added values stored without a timezone.
func (b *Book) UnmarshalJSON(data []byte) error {
	type bookAlias Book
	aux := struct {
		DateAdded string `json:"date_added"`
		*bookAlias
	}{bookAlias: (*bookAlias)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.DateAdded = ParseTime(aux.DateAdded)
	return nil
}

// UnmarshalJSON tolerates fetched_at values stored without a timezone.
func (l *BookList) UnmarshalJSON(data []byte) error {
	type listAlias BookList
	aux := struct {
		FetchedAt string `json:"fetched_at"`
		*listAlias
	}{listAlias: (*listAlias)(l)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if t := ParseTime(aux.FetchedAt); t != nil {
		l.FetchedAt = *t
	} else {
		l.FetchedAt = time.Time{}
	}
	return nil
}

// NormalizeUTC rewrites every timestamp in the list to UTC. Snapshot
// values read back from storage may carry any offset; a missing offset
// has already been treated as UTC by the decoder.
func (l *BookList) NormalizeUTC() {
	l.FetchedAt = l.FetchedAt.UTC()
	for i := range l.Books {
		if l.Books[i].DateAdded != nil {
			utc := l.Books[i].DateAdded.UTC()
			l.Books[i].DateAdded = &utc
		}
	}
}
