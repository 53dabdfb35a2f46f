package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"hardcover_rss/config"
	"hardcover_rss/internal/model"
	"hardcover_rss/utils"
)

type strategy interface {
	name() string
	// confirmsAbsence reports whether a not-found result from this
	// strategy is an authoritative answer about the identity. A page
	// 404 may be a routing artifact; the structured-query endpoint
	// resolving the username to zero users is definitive.
	confirmsAbsence() bool
	fetch(ctx context.Context, handle string) (rawList, error)
}

// HardcoverFetcher hides upstream shape variance behind one contract:
// given a handle it returns a canonical BookList or a typed failure. The
// strategy list is the explicit fallback policy, iterated in priority
// order; the first strategy producing a non-empty well-formed result
// wins. It never writes to the cache.
type HardcoverFetcher struct {
	cfg        *config.Config
	strategies []strategy
}

func New(cfg *config.Config) *HardcoverFetcher {
	client := &http.Client{Timeout: cfg.Hardcover.RequestTimeout}

	return &HardcoverFetcher{
		cfg: cfg,
		strategies: []strategy{
			&pageStateStrategy{cfg: cfg},
			&graphqlStrategy{cfg: cfg, client: client},
		},
	}
}

func (f *HardcoverFetcher) Fetch(ctx context.Context, handle string) (model.BookList, error) {
	op := "HardcoverFetcher.Fetch"
	rqID := utils.GetRequestIDFromCtx(ctx)

	var lastErr error
	notFound := false
	confirmedAbsent := false
	var ownerID string

	for _, st := range f.strategies {
		raw, err := st.fetch(ctx, handle)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				notFound = true
				if st.confirmsAbsence() {
					confirmedAbsent = true
				}
			} else {
				lastErr = err
			}
			slog.Warn(
				"fetch strategy failed",
				slog.String("op", op),
				slog.String("rqID", rqID),
				slog.String("strategy", st.name()),
				slog.String("handle", handle),
				slog.String("err", err.Error()),
			)
			continue
		}

		if raw.userID != "" {
			ownerID = raw.userID
		}

		books := reconcileBooks(raw.books)
		if len(books) == 0 {
			slog.Info(
				"fetch strategy returned zero books, falling through",
				slog.String("op", op),
				slog.String("rqID", rqID),
				slog.String("strategy", st.name()),
				slog.String("handle", handle),
			)
			continue
		}

		slog.Info(
			"fetched book list",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("strategy", st.name()),
			slog.String("handle", handle),
			slog.Int("books", len(books)),
		)

		return f.assemble(handle, ownerID, books), nil
	}

	// A transient failure outranks a weak not-found signal: a page 404
	// alongside an unreachable fallback stays retryable rather than being
	// reported as a missing identity.
	if confirmedAbsent {
		return model.BookList{}, ErrIdentityNotFound
	}
	if lastErr != nil {
		return model.BookList{}, lastErr
	}
	if notFound {
		return model.BookList{}, ErrIdentityNotFound
	}

	// Every strategy resolved the page or user but none produced books;
	// an empty feed is never presented as success.
	return model.BookList{}, ErrIdentityNotFound
}

func (f *HardcoverFetcher) assemble(handle, ownerID string, books []model.Book) model.BookList {
	if ownerID == "" {
		ownerID = handle
	}

	return model.BookList{
		Owner: model.Person{
			Id:          ownerID,
			Handle:      handle,
			DisplayName: handle,
		},
		Books:     books,
		FetchedAt: time.Now().UTC(),
	}
}
