package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"hardcover_rss/config"
	"hardcover_rss/internal/model"
	"hardcover_rss/utils"

	"github.com/gocolly/colly/v2"
)

// pageStateStrategy scrapes the want-to-read page and decodes the
// serialized page state embedded in the data-page attribute. It is the
// richest source (covers, isbn, ratings, publish year) and runs first.
type pageStateStrategy struct {
	cfg *config.Config
}

func (s *pageStateStrategy) name() string {
	return "page-state"
}

func (s *pageStateStrategy) confirmsAbsence() bool {
	return false
}

func (s *pageStateStrategy) getCollector() (*colly.Collector, error) {
	op := "pageStateStrategy.getCollector"
	c := colly.NewCollector()
	c.SetRequestTimeout(s.cfg.Hardcover.RequestTimeout)

	if s.cfg.Hardcover.ProxyUrl != "" {
		err := c.SetProxy(s.cfg.Hardcover.ProxyUrl)
		if err != nil {
			slog.Error(
				"Failed to set proxy",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, err
		}
	}

	return c, nil
}

func (s *pageStateStrategy) fetch(ctx context.Context, handle string) (rawList, error) {
	op := "pageStateStrategy.fetch"
	rqID := utils.GetRequestIDFromCtx(ctx)

	c, err := s.getCollector()
	if err != nil {
		return rawList{}, fmt.Errorf("%s: %w", op, ErrUpstreamUnreachable)
	}

	var dataPage string
	c.OnHTML("div#app", func(e *colly.HTMLElement) {
		dataPage = e.Attr("data-page")
	})

	var httpStatus int
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			httpStatus = r.StatusCode
		}
	})

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (compatible; HardcoverRSS/1.0)")
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Referer", fmt.Sprintf("%s/@%s", s.cfg.Hardcover.SiteUrl, handle))
		slog.Info("Visiting", slog.String("op", op), slog.String("rqID", rqID), slog.String("url", r.URL.String()))
	})

	listURL := fmt.Sprintf("%s/@%s/books/want-to-read", s.cfg.Hardcover.SiteUrl, handle)
	if err := c.Visit(listURL); err != nil {
		slog.Error(
			"Error while visiting url",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("url", listURL),
			slog.String("err", err.Error()),
		)
		if httpStatus == http.StatusNotFound {
			return rawList{}, fmt.Errorf("%s: status 404: %w", op, ErrIdentityNotFound)
		}
		return rawList{}, fmt.Errorf("%s: %s: %w", op, err.Error(), ErrUpstreamUnreachable)
	}

	if dataPage == "" {
		return rawList{}, fmt.Errorf("%s: data-page attribute missing: %w", op, ErrUpstreamMalformed)
	}

	entries, err := extractPageEntries([]byte(dataPage))
	if err != nil {
		return rawList{}, fmt.Errorf("%s: %s: %w", op, err.Error(), ErrUpstreamMalformed)
	}

	books := make([]rawBook, 0, len(entries))
	for _, entry := range entries {
		if rb, ok := parsePageEntry(entry); ok {
			books = append(books, rb)
		}
	}

	return rawList{books: books}, nil
}

// extractPageEntries probes the known key paths for the book collection.
// The page has been observed to place it under props.letterbooks as well
// as at the top level, either as a bare array or wrapped once more. A
// collection that decodes to zero entries is an empty list, not a
// malformed page.
func extractPageEntries(data []byte) ([]json.RawMessage, error) {
	var root struct {
		Props struct {
			Letterbooks json.RawMessage `json:"letterbooks"`
		} `json:"props"`
		Letterbooks json.RawMessage `json:"letterbooks"`
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode page state: %w", err)
	}

	for _, candidate := range []json.RawMessage{root.Props.Letterbooks, root.Letterbooks} {
		if entries, ok := decodeEntryCollection(candidate); ok {
			return entries, nil
		}
	}

	return nil, errors.New("no book collection under known key paths")
}

func decodeEntryCollection(raw json.RawMessage) ([]json.RawMessage, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}

	var wrapper struct {
		Letterbooks *[]json.RawMessage `json:"letterbooks"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Letterbooks != nil {
		return *wrapper.Letterbooks, true
	}

	return nil, false
}

type pageBook struct {
	Id          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	AuthorNames []string        `json:"author_names"`
	Cover       *struct {
		Url string `json:"url"`
	} `json:"cover"`
	Description string          `json:"description"`
	Isbn        string          `json:"isbn"`
	ReleaseYear *int            `json:"release_year"`
	Pages       *int            `json:"pages"`
	Rating      json.RawMessage `json:"rating"`
}

// parsePageEntry decodes one collection entry. Entries are either the
// book object itself or an {book, created_at} wrapper around it.
func parsePageEntry(raw json.RawMessage) (rawBook, bool) {
	body := raw
	createdAt := ""

	var wrapper struct {
		Book      json.RawMessage `json:"book"`
		CreatedAt string          `json:"created_at"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Book) > 0 && !bytes.Equal(wrapper.Book, []byte("null")) {
		body = wrapper.Book
		createdAt = wrapper.CreatedAt
	}

	var pb pageBook
	if err := json.Unmarshal(body, &pb); err != nil {
		return rawBook{}, false
	}

	rb := rawBook{
		id:           stringifyId(pb.Id),
		title:        pb.Title,
		authorNames:  pb.AuthorNames,
		authorLegacy: pb.Author,
		description:  pb.Description,
		isbn:         pb.Isbn,
		releaseYear:  pb.ReleaseYear,
		pages:        pb.Pages,
		rating:       parseRating(pb.Rating),
		dateAdded:    model.ParseTime(createdAt),
	}
	if pb.Cover != nil {
		rb.coverUrl = pb.Cover.Url
	}

	return rb, true
}
