package feedService

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hardcover_rss/config"
	"hardcover_rss/internal/fetcher"
	"hardcover_rss/internal/model"
	"hardcover_rss/internal/service/feedService/mocks"
	"hardcover_rss/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type feedServiceSuite struct {
	suite.Suite

	mockCtrl *gomock.Controller
	service  *FeedService
	cfg      *config.Config
	store    *mocks.MockStore
	fetcher  *mocks.MockFetcher
}

func TestFeedServiceSuite(t *testing.T) {
	suite.Run(t, new(feedServiceSuite))
}

func (s *feedServiceSuite) SetupSuite() {
	s.cfg = &config.Config{
		Cache: config.Cache{
			FreshnessWindow: 30 * time.Minute,
			MaxStaleness:    24 * time.Hour,
		},
	}
	s.mockCtrl = gomock.NewController(s.T())
}

func (s *feedServiceSuite) SetupTest() {
	s.store = mocks.NewMockStore(s.mockCtrl)
	s.fetcher = mocks.NewMockFetcher(s.mockCtrl)

	s.service = New(s.cfg, s.store, s.fetcher)
}

func registration(handle string) model.Registration {
	return model.Registration{
		Person: model.Person{
			Id:          "42",
			Handle:      handle,
			DisplayName: handle,
		},
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
}

func bookList(handle string, fetchedAt time.Time, titles ...string) model.BookList {
	books := make([]model.Book, 0, len(titles))
	for i, title := range titles {
		books = append(books, model.Book{Id: string(rune('a' + i)), Title: title})
	}
	return model.BookList{
		Owner:     model.Person{Id: "42", Handle: handle, DisplayName: handle},
		Books:     books,
		FetchedAt: fetchedAt,
	}
}

func (s *feedServiceSuite) Test_EnsureFresh_CacheHit_NoFetch() {
	ctx := context.Background()
	snap := bookList("alice", time.Now().UTC(), "Dune")

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(registration("alice"), nil)
	s.store.EXPECT().
		GetSnapshot(ctx, "alice").
		Return(&snap, nil)

	res, err := s.service.EnsureFresh(ctx, "alice")

	assert.Nil(s.T(), err)
	assert.Equal(s.T(), snap, res)
}

func (s *feedServiceSuite) Test_EnsureFresh_ExpiredSnapshot_RefetchesOnce() {
	ctx := context.Background()
	stale := bookList("alice", time.Now().UTC().Add(-time.Hour), "Dune")
	fresh := bookList("alice", time.Now().UTC(), "Dune", "Hyperion")

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(registration("alice"), nil)
	s.store.EXPECT().
		GetSnapshot(ctx, "alice").
		Return(&stale, nil).
		Times(2)
	s.fetcher.EXPECT().
		Fetch(ctx, "alice").
		Return(fresh, nil)
	s.store.EXPECT().
		PutSnapshot(ctx, "alice", fresh, s.cfg.Cache.MaxStaleness).
		Return(nil)

	res, err := s.service.EnsureFresh(ctx, "alice")

	assert.Nil(s.T(), err)
	assert.Equal(s.T(), fresh, res)
}

func (s *feedServiceSuite) Test_EnsureFresh_ConcurrentCallsCoalesced() {
	const callers = 8
	fresh := bookList("alice", time.Now().UTC(), "Dune")

	var mu sync.Mutex
	var cached *model.BookList

	s.store.EXPECT().
		GetRegistration(gomock.Any(), "alice").
		Return(registration("alice"), nil).
		Times(callers)
	s.store.EXPECT().
		GetSnapshot(gomock.Any(), "alice").
		DoAndReturn(func(context.Context, string) (*model.BookList, error) {
			mu.Lock()
			defer mu.Unlock()
			return cached, nil
		}).
		AnyTimes()
	s.fetcher.EXPECT().
		Fetch(gomock.Any(), "alice").
		DoAndReturn(func(context.Context, string) (model.BookList, error) {
			time.Sleep(100 * time.Millisecond)
			return fresh, nil
		}).
		Times(1)
	s.store.EXPECT().
		PutSnapshot(gomock.Any(), "alice", fresh, s.cfg.Cache.MaxStaleness).
		DoAndReturn(func(_ context.Context, _ string, list model.BookList, _ time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			cached = &list
			return nil
		}).
		Times(1)

	var wg sync.WaitGroup
	results := make([]model.BookList, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.service.EnsureFresh(context.Background(), "alice")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.Nil(s.T(), errs[i])
		assert.Equal(s.T(), fresh, results[i])
	}
}

func (s *feedServiceSuite) Test_EnsureFresh_FetchFails_ServesStale() {
	ctx := context.Background()
	stale := bookList("alice", time.Now().UTC().Add(-2*time.Hour), "Dune")

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(registration("alice"), nil)
	s.store.EXPECT().
		GetSnapshot(ctx, "alice").
		Return(&stale, nil).
		Times(2)
	s.fetcher.EXPECT().
		Fetch(ctx, "alice").
		Return(model.BookList{}, fetcher.ErrUpstreamUnreachable)

	res, err := s.service.EnsureFresh(ctx, "alice")

	assert.Nil(s.T(), err)
	assert.Equal(s.T(), stale, res)
}

func (s *feedServiceSuite) Test_EnsureFresh_FetchFails_NoSnapshot_ReturnsErr() {
	ctx := context.Background()

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(registration("alice"), nil)
	s.store.EXPECT().
		GetSnapshot(ctx, "alice").
		Return(nil, nil).
		Times(2)
	s.fetcher.EXPECT().
		Fetch(ctx, "alice").
		Return(model.BookList{}, fetcher.ErrUpstreamUnreachable)

	_, err := s.service.EnsureFresh(ctx, "alice")

	assert.ErrorIs(s.T(), err, fetcher.ErrUpstreamUnreachable)
}

func (s *feedServiceSuite) Test_EnsureFresh_DisabledIdentity() {
	ctx := context.Background()
	disabled := registration("alice")
	disabled.Enabled = false

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(disabled, nil)

	_, err := s.service.EnsureFresh(ctx, "alice")

	assert.Equal(s.T(), ErrDisabled, err)
}

func (s *feedServiceSuite) Test_EnsureFresh_NotRegistered() {
	ctx := context.Background()

	s.store.EXPECT().
		GetRegistration(ctx, "ghost").
		Return(model.Registration{}, store.ErrNotRegistered)

	_, err := s.service.EnsureFresh(ctx, "ghost")

	assert.Equal(s.T(), ErrNotRegistered, err)
}

func (s *feedServiceSuite) Test_Register_Success_NormalizesHandle() {
	ctx := context.Background()
	fresh := bookList("alice", time.Now().UTC(), "Dune")

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(model.Registration{}, store.ErrNotRegistered)
	s.fetcher.EXPECT().
		Fetch(ctx, "alice").
		Return(fresh, nil)
	s.store.EXPECT().
		PutRegistration(ctx, "alice", gomock.Any()).
		Return(nil)
	s.store.EXPECT().
		PutSnapshot(ctx, "alice", fresh, s.cfg.Cache.MaxStaleness).
		Return(nil)

	reg, err := s.service.Register(ctx, "  Alice ", "")

	assert.Nil(s.T(), err)
	assert.Equal(s.T(), "alice", reg.Person.Handle)
	assert.Equal(s.T(), "alice", reg.Person.DisplayName)
	assert.True(s.T(), reg.Enabled)
}

func (s *feedServiceSuite) Test_Register_CustomDisplayName() {
	ctx := context.Background()
	fresh := bookList("alice", time.Now().UTC(), "Dune")

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(model.Registration{}, store.ErrNotRegistered)
	s.fetcher.EXPECT().
		Fetch(ctx, "alice").
		Return(fresh, nil)
	s.store.EXPECT().
		PutRegistration(ctx, "alice", gomock.Any()).
		Return(nil)
	s.store.EXPECT().
		PutSnapshot(ctx, "alice", fresh, s.cfg.Cache.MaxStaleness).
		Return(nil)

	reg, err := s.service.Register(ctx, "alice", "Alice L.")

	assert.Nil(s.T(), err)
	assert.Equal(s.T(), "Alice L.", reg.Person.DisplayName)
}

func (s *feedServiceSuite) Test_Register_IdentityNotFound() {
	ctx := context.Background()

	s.store.EXPECT().
		GetRegistration(ctx, "ghost").
		Return(model.Registration{}, store.ErrNotRegistered)
	s.fetcher.EXPECT().
		Fetch(ctx, "ghost").
		Return(model.BookList{}, fetcher.ErrIdentityNotFound)

	_, err := s.service.Register(ctx, "ghost", "")

	assert.ErrorIs(s.T(), err, fetcher.ErrIdentityNotFound)
}

func (s *feedServiceSuite) Test_Register_AlreadyRegistered() {
	ctx := context.Background()

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(registration("alice"), nil)

	_, err := s.service.Register(ctx, "alice", "")

	assert.Equal(s.T(), ErrAlreadyRegistered, err)
}

func (s *feedServiceSuite) Test_Unregister_Success() {
	ctx := context.Background()

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(registration("alice"), nil)
	s.store.EXPECT().
		DeleteRegistration(ctx, "alice").
		Return(nil)

	err := s.service.Unregister(ctx, "alice")

	assert.Nil(s.T(), err)
}

func (s *feedServiceSuite) Test_Unregister_NotRegistered() {
	ctx := context.Background()

	s.store.EXPECT().
		GetRegistration(ctx, "ghost").
		Return(model.Registration{}, store.ErrNotRegistered)

	err := s.service.Unregister(ctx, "ghost")

	assert.Equal(s.T(), ErrNotRegistered, err)
}

func (s *feedServiceSuite) Test_RefreshNow_BypassesFreshSnapshot() {
	ctx := context.Background()
	cachedFresh := bookList("alice", time.Now().UTC(), "Dune")
	refetched := bookList("alice", time.Now().UTC(), "Dune", "Hyperion")

	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(registration("alice"), nil)
	s.store.EXPECT().
		DeleteSnapshot(ctx, "alice").
		Return(nil)
	// Snapshot is still fresh inside the flight but force bypasses it.
	s.store.EXPECT().
		GetSnapshot(ctx, "alice").
		Return(&cachedFresh, nil)
	s.fetcher.EXPECT().
		Fetch(ctx, "alice").
		Return(refetched, nil)
	s.store.EXPECT().
		PutSnapshot(ctx, "alice", refetched, s.cfg.Cache.MaxStaleness).
		Return(nil)

	res, err := s.service.RefreshNow(ctx, "alice")

	assert.Nil(s.T(), err)
	assert.Equal(s.T(), refetched, res)
}

func (s *feedServiceSuite) Test_ListRegistered_SkipsUnreadable() {
	ctx := context.Background()

	s.store.EXPECT().
		ListRegisteredHandles(ctx).
		Return([]string{"alice", "bob"}, nil)
	s.store.EXPECT().
		GetRegistration(ctx, "alice").
		Return(registration("alice"), nil)
	s.store.EXPECT().
		GetRegistration(ctx, "bob").
		Return(model.Registration{}, errors.New("corrupt"))

	regs, err := s.service.ListRegistered(ctx)

	assert.Nil(s.T(), err)
	assert.Len(s.T(), regs, 1)
	assert.Equal(s.T(), "alice", regs[0].Person.Handle)
}
