package feed

import (
	"fmt"
	"strings"
	"time"

	"hardcover_rss/config"
	"hardcover_rss/internal/model"

	"github.com/gorilla/feeds"
)

// Generator renders a BookList as a Goodreads-style RSS document, the
// shape feed readers already understand for "bookshelf: to-read" feeds.
type Generator struct {
	cfg *config.Config
}

func NewGenerator(cfg *config.Config) *Generator {
	return &Generator{cfg: cfg}
}

func (g *Generator) Generate(list model.BookList) (string, error) {
	title := fmt.Sprintf("%s's bookshelf: to-read", list.Owner.DisplayName)
	feedLink := fmt.Sprintf("%s/feed/%s", g.cfg.Http.BaseUrl, list.Owner.Handle)

	f := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: feedLink},
		Description: title,
		Created:     list.FetchedAt.UTC(),
	}

	for _, book := range list.Books {
		published := list.FetchedAt
		if book.DateAdded != nil {
			published = *book.DateAdded
		}

		item := &feeds.Item{
			Id:          book.Id,
			Title:       book.Title,
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/books/%s", g.cfg.Hardcover.SiteUrl, book.Id)},
			Description: bookDescription(book),
			Created:     published.UTC(),
			Updated:     time.Now().UTC(),
		}
		if book.Author != "" {
			item.Author = &feeds.Author{Name: book.Author}
		}

		f.Items = append(f.Items, item)
	}

	rss, err := f.ToRss()
	if err != nil {
		return "", fmt.Errorf("render rss: %w", err)
	}

	return rss, nil
}

func bookDescription(book model.Book) string {
	var parts []string

	if book.CoverImageUrl != nil {
		parts = append(parts, fmt.Sprintf(`<img src="%s" alt="%s"/><br/>`, *book.CoverImageUrl, book.Title))
	}
	if book.Author != "" {
		parts = append(parts, fmt.Sprintf("author: %s<br/>", book.Author))
	}
	if book.PublishedYear != nil {
		parts = append(parts, fmt.Sprintf("book published: %d<br/>", *book.PublishedYear))
	}
	if book.PageCount != nil {
		parts = append(parts, fmt.Sprintf("pages: %d<br/>", *book.PageCount))
	}
	if book.AverageRating != nil {
		parts = append(parts, fmt.Sprintf("average rating: %.2f<br/>", *book.AverageRating))
	}
	if book.UserRating != nil {
		parts = append(parts, fmt.Sprintf("rating: %d<br/>", *book.UserRating))
	}
	if book.UserReview != nil {
		parts = append(parts, fmt.Sprintf("review: %s<br/>", *book.UserReview))
	}
	if book.Description != nil {
		parts = append(parts, *book.Description)
	}

	if len(parts) == 0 {
		return book.Title
	}

	return strings.Join(parts, "\n")
}
