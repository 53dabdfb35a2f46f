package fetcher

import (
	"fmt"
	"html"
)

// pageHTML wraps a page-state JSON document the way the upstream site
// embeds it: escaped into the data-page attribute of div#app.
func pageHTML(stateJSON string) string {
	return fmt.Sprintf(
		`<!DOCTYPE html><html><head><title>want to read</title></head><body><div id="app" data-page="%s"></div></body></html>`,
		html.EscapeString(stateJSON),
	)
}

const pageStateNested = `{
  "props": {
    "letterbooks": {
      "letterbooks": [
        {
          "created_at": "2024-05-02T10:00:00Z",
          "book": {
            "id": 123,
            "title": "Dune",
            "author": "Frank Herbert",
            "author_names": ["Frank Herbert"],
            "cover": {"url": "https://img.test/dune.jpg"},
            "description": "Desert planet.",
            "isbn": "9780441172719",
            "release_year": 1965,
            "pages": 412,
            "rating": "4.25"
          }
        },
        {
          "created_at": "2024-06-01T08:30:00Z",
          "book": {
            "id": "456",
            "title": "Hyperion",
            "author": "Dan Simmons",
            "rating": "N/A"
          }
        }
      ]
    }
  }
}`

const pageStateTopLevelArray = `{
  "letterbooks": [
    {
      "book": {
        "id": 789,
        "title": "Neuromancer",
        "author": "William Gibson"
      }
    }
  ]
}`

const pageStateEmpty = `{
  "props": {
    "letterbooks": {
      "letterbooks": []
    }
  }
}`

const gqlUserBooksResponse = `{
  "data": {
    "users": [
      {
        "id": 42,
        "username": "alice",
        "user_books": [
          {
            "id": 1,
            "created_at": "2024-06-01T08:30:00",
            "rating": 5,
            "review_raw": "Loved it.",
            "book": {"id": 456, "title": "Hyperion", "description": "Shrike."}
          },
          {
            "id": 2,
            "created_at": "2024-05-02T10:00:00",
            "book": {"id": 123, "title": "Dune", "description": "Desert planet."}
          }
        ]
      }
    ]
  }
}`

const gqlUserNoBooksResponse = `{
  "data": {
    "users": [
      {
        "id": 42,
        "username": "alice",
        "user_books": []
      }
    ]
  }
}`

const gqlShelfBooksResponse = `{
  "data": {
    "users": [
      {
        "id": 42,
        "username": "alice",
        "bookshelves": [
          {
            "name": "want-to-read",
            "bookshelf_books": [
              {
                "id": 9,
                "created_at": "2024-04-01T12:00:00",
                "book": {"id": 321, "title": "Solaris", "description": "Ocean."}
              }
            ]
          }
        ]
      }
    ]
  }
}`

const gqlNoUserResponse = `{
  "data": {
    "users": []
  }
}`
