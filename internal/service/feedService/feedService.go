package feedService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hardcover_rss/config"
	"hardcover_rss/internal/model"
	"hardcover_rss/internal/store"
	"hardcover_rss/utils"

	"golang.org/x/sync/singleflight"
)

type Fetcher interface {
	Fetch(ctx context.Context, handle string) (model.BookList, error)
}

type Store interface {
	GetRegistration(ctx context.Context, handle string) (model.Registration, error)
	PutRegistration(ctx context.Context, handle string, reg model.Registration) error
	DeleteRegistration(ctx context.Context, handle string) error
	GetSnapshot(ctx context.Context, handle string) (*model.BookList, error)
	PutSnapshot(ctx context.Context, handle string, list model.BookList, ttl time.Duration) error
	DeleteSnapshot(ctx context.Context, handle string) error
	ListRegisteredHandles(ctx context.Context) ([]string, error)
}

// FeedService is the freshness decision point. All reads funnel through
// EnsureFresh; concurrent requests for the same handle are coalesced
// into a single upstream fetch.
type FeedService struct {
	cfg     *config.Config
	store   Store
	fetcher Fetcher
	group   singleflight.Group
}

func New(cfg *config.Config, st Store, fetcher Fetcher) *FeedService {
	return &FeedService{
		cfg:     cfg,
		store:   st,
		fetcher: fetcher,
	}
}

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

func (s *FeedService) isFresh(list model.BookList) bool {
	return time.Since(list.FetchedAt) < s.cfg.Cache.FreshnessWindow
}

// EnsureFresh returns a book list no staler than the freshness window
// when the upstream cooperates. When a refresh fails and a stale
// snapshot is still at hand, the stale copy is served and the failure
// only logged: availability wins over freshness, bounded by the
// snapshot TTL.
func (s *FeedService) EnsureFresh(ctx context.Context, handle string) (model.BookList, error) {
	op := "FeedService.EnsureFresh"
	rqID := utils.GetRequestIDFromCtx(ctx)
	handle = normalizeHandle(handle)

	reg, err := s.store.GetRegistration(ctx, handle)
	switch {
	case err == nil:
		if !reg.Enabled {
			return model.BookList{}, ErrDisabled
		}
	case errors.Is(err, store.ErrNotRegistered):
		return model.BookList{}, ErrNotRegistered
	default:
		// Store down: degrade to always-fetch rather than refusing to serve.
		slog.Warn(
			"registration check degraded, store unavailable",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("handle", handle),
			slog.String("err", err.Error()),
		)
	}

	snap, err := s.store.GetSnapshot(ctx, handle)
	if err != nil {
		slog.Warn(
			"snapshot read failed, refetching",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("handle", handle),
			slog.String("err", err.Error()),
		)
	}
	if snap != nil && s.isFresh(*snap) {
		return *snap, nil
	}

	return s.refresh(ctx, handle, false)
}

// refresh holds the per-handle fetch lock. Callers arriving while a
// fetch for the same handle is in flight wait for that fetch's result
// instead of issuing a duplicate upstream call.
func (s *FeedService) refresh(ctx context.Context, handle string, force bool) (model.BookList, error) {
	op := "FeedService.refresh"
	rqID := utils.GetRequestIDFromCtx(ctx)

	v, err, _ := s.group.Do(handle, func() (any, error) {
		snap, snapErr := s.store.GetSnapshot(ctx, handle)
		if snapErr != nil {
			snap = nil
		}
		// Another waiter may have refreshed it just before we got the lock.
		if !force && snap != nil && s.isFresh(*snap) {
			return *snap, nil
		}

		list, fetchErr := s.fetcher.Fetch(ctx, handle)
		if fetchErr != nil {
			if snap != nil {
				slog.Warn(
					"refresh failed, serving stale snapshot",
					slog.String("op", op),
					slog.String("rqID", rqID),
					slog.String("handle", handle),
					slog.Time("fetched_at", snap.FetchedAt),
					slog.String("err", fetchErr.Error()),
				)
				return *snap, nil
			}
			return nil, fmt.Errorf("%s: %w", op, fetchErr)
		}

		// The snapshot TTL is the max-staleness bound, not the freshness
		// window; freshness is judged from fetched_at.
		if putErr := s.store.PutSnapshot(ctx, handle, list, s.cfg.Cache.MaxStaleness); putErr != nil {
			slog.Warn(
				"snapshot write dropped",
				slog.String("op", op),
				slog.String("rqID", rqID),
				slog.String("handle", handle),
				slog.String("err", putErr.Error()),
			)
		}

		return list, nil
	})
	if err != nil {
		return model.BookList{}, err
	}

	return v.(model.BookList), nil
}

// Register validates the identity upstream before anything is stored:
// a handle the fetcher cannot resolve at least once is never tracked.
func (s *FeedService) Register(ctx context.Context, handle, displayName string) (model.Registration, error) {
	op := "FeedService.Register"
	rqID := utils.GetRequestIDFromCtx(ctx)
	handle = normalizeHandle(handle)

	_, err := s.store.GetRegistration(ctx, handle)
	if err == nil {
		return model.Registration{}, ErrAlreadyRegistered
	}
	if !errors.Is(err, store.ErrNotRegistered) {
		return model.Registration{}, err
	}

	list, err := s.fetcher.Fetch(ctx, handle)
	if err != nil {
		return model.Registration{}, err
	}

	person := list.Owner
	if displayName != "" {
		person.DisplayName = displayName
	}
	reg := model.Registration{
		Person:    person,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.PutRegistration(ctx, handle, reg); err != nil {
		return model.Registration{}, err
	}

	// Warm the snapshot with the list we already paid for. Registration
	// must land first or the store refuses the write.
	if err := s.store.PutSnapshot(ctx, handle, list, s.cfg.Cache.MaxStaleness); err != nil {
		slog.Warn(
			"warm snapshot write dropped",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("handle", handle),
			slog.String("err", err.Error()),
		)
	}

	slog.Info(
		"registered identity",
		slog.String("op", op),
		slog.String("rqID", rqID),
		slog.String("handle", handle),
		slog.Int("books", len(list.Books)),
	)

	return reg, nil
}

func (s *FeedService) Unregister(ctx context.Context, handle string) error {
	op := "FeedService.Unregister"
	rqID := utils.GetRequestIDFromCtx(ctx)
	handle = normalizeHandle(handle)

	if _, err := s.store.GetRegistration(ctx, handle); err != nil {
		if errors.Is(err, store.ErrNotRegistered) {
			return ErrNotRegistered
		}
		return err
	}

	if err := s.store.DeleteRegistration(ctx, handle); err != nil {
		return err
	}

	slog.Info(
		"unregistered identity",
		slog.String("op", op),
		slog.String("rqID", rqID),
		slog.String("handle", handle),
	)

	return nil
}

// RefreshNow bypasses the cache-hit short-circuit: the current snapshot
// is dropped before fetching so the manual trigger always hits upstream.
func (s *FeedService) RefreshNow(ctx context.Context, handle string) (model.BookList, error) {
	op := "FeedService.RefreshNow"
	rqID := utils.GetRequestIDFromCtx(ctx)
	handle = normalizeHandle(handle)

	if _, err := s.store.GetRegistration(ctx, handle); err != nil {
		if errors.Is(err, store.ErrNotRegistered) {
			return model.BookList{}, ErrNotRegistered
		}
		return model.BookList{}, err
	}

	if err := s.store.DeleteSnapshot(ctx, handle); err != nil {
		slog.Warn(
			"snapshot delete failed before manual refresh",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("handle", handle),
			slog.String("err", err.Error()),
		)
	}

	return s.refresh(ctx, handle, true)
}

func (s *FeedService) ListRegistered(ctx context.Context) ([]model.Registration, error) {
	op := "FeedService.ListRegistered"
	rqID := utils.GetRequestIDFromCtx(ctx)

	handles, err := s.store.ListRegisteredHandles(ctx)
	if err != nil {
		return nil, err
	}

	regs := make([]model.Registration, 0, len(handles))
	for _, handle := range handles {
		reg, err := s.store.GetRegistration(ctx, handle)
		if err != nil {
			slog.Warn(
				"skipping unreadable registration",
				slog.String("op", op),
				slog.String("rqID", rqID),
				slog.String("handle", handle),
				slog.String("err", err.Error()),
			)
			continue
		}
		regs = append(regs, reg)
	}

	return regs, nil
}

func (s *FeedService) RegisteredHandles(ctx context.Context) ([]string, error) {
	return s.store.ListRegisteredHandles(ctx)
}
