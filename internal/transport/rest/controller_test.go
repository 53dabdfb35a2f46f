package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hardcover_rss/config"
	"hardcover_rss/internal/fetcher"
	"hardcover_rss/internal/model"
	"hardcover_rss/internal/service/feedService"

	"github.com/stretchr/testify/assert"
)

type stubService struct {
	ensureFresh    func(handle string) (model.BookList, error)
	register       func(handle, displayName string) (model.Registration, error)
	unregister     func(handle string) error
	refreshNow     func(handle string) (model.BookList, error)
	listRegistered func() ([]model.Registration, error)
}

func (s *stubService) EnsureFresh(_ context.Context, handle string) (model.BookList, error) {
	return s.ensureFresh(handle)
}

func (s *stubService) Register(_ context.Context, handle, displayName string) (model.Registration, error) {
	return s.register(handle, displayName)
}

func (s *stubService) Unregister(_ context.Context, handle string) error {
	return s.unregister(handle)
}

func (s *stubService) RefreshNow(_ context.Context, handle string) (model.BookList, error) {
	return s.refreshNow(handle)
}

func (s *stubService) ListRegistered(context.Context) ([]model.Registration, error) {
	return s.listRegistered()
}

type stubGenerator struct{}

func (stubGenerator) Generate(list model.BookList) (string, error) {
	return "<?xml version=\"1.0\"?><rss>" + list.Owner.Handle + "</rss>", nil
}

type stubSweeper struct {
	triggered bool
}

func (s *stubSweeper) TriggerSweep() {
	s.triggered = true
}

func newTestController(svc FeedService) (*Controller, *stubSweeper) {
	sweeper := &stubSweeper{}
	cfg := &config.Config{}
	return NewController(cfg, svc, stubGenerator{}, sweeper), sweeper
}

func testList(handle string) model.BookList {
	return model.BookList{
		Owner:     model.Person{Id: "42", Handle: handle, DisplayName: handle},
		Books:     []model.Book{{Id: "1", Title: "Dune"}},
		FetchedAt: time.Now().UTC(),
	}
}

func TestFeedEndpoint(t *testing.T) {
	t.Run("serves rss", func(t *testing.T) {
		svc := &stubService{
			ensureFresh: func(handle string) (model.BookList, error) {
				assert.Equal(t, "alice", handle)
				return testList("alice"), nil
			},
		}
		controller, _ := newTestController(svc)

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed/alice", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/rss+xml")
		assert.Contains(t, rec.Body.String(), "<rss>alice</rss>")
	})

	t.Run("goodreads alias routes to the same handler", func(t *testing.T) {
		svc := &stubService{
			ensureFresh: func(string) (model.BookList, error) {
				return testList("alice"), nil
			},
		}
		controller, _ := newTestController(svc)

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/list_rss/alice", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		svc := &stubService{
			ensureFresh: func(string) (model.BookList, error) {
				return model.BookList{}, feedService.ErrNotRegistered
			},
		}
		controller, _ := newTestController(svc)

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed/ghost", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("disabled user is 400", func(t *testing.T) {
		svc := &stubService{
			ensureFresh: func(string) (model.BookList, error) {
				return model.BookList{}, feedService.ErrDisabled
			},
		}
		controller, _ := newTestController(svc)

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed/alice", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("upstream outage with no fallback is 503, never an empty feed", func(t *testing.T) {
		svc := &stubService{
			ensureFresh: func(string) (model.BookList, error) {
				return model.BookList{}, fetcher.ErrUpstreamUnreachable
			},
		}
		controller, _ := newTestController(svc)

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed/alice", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "<rss>")
	})
}

func TestCreateUser(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &stubService{
			register: func(handle, displayName string) (model.Registration, error) {
				assert.Equal(t, "alice", handle)
				assert.Equal(t, "Alice L.", displayName)
				return model.Registration{
					Person:    model.Person{Id: "42", Handle: "alice", DisplayName: "Alice L."},
					Enabled:   true,
					CreatedAt: time.Now().UTC(),
				}, nil
			},
		}
		controller, _ := newTestController(svc)

		body := strings.NewReader(`{"username": "alice", "display_name": "Alice L."}`)
		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", body))

		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp userResponse
		assert.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "alice", resp.Username)
		assert.Equal(t, "/feed/alice", resp.FeedUrl)
		assert.True(t, resp.Enabled)
	})

	t.Run("missing username is 400", func(t *testing.T) {
		controller, _ := newTestController(&stubService{})

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown upstream identity is 404", func(t *testing.T) {
		svc := &stubService{
			register: func(string, string) (model.Registration, error) {
				return model.Registration{}, fetcher.ErrIdentityNotFound
			},
		}
		controller, _ := newTestController(svc)

		body := strings.NewReader(`{"username": "ghost"}`)
		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", body))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("duplicate is 400", func(t *testing.T) {
		svc := &stubService{
			register: func(string, string) (model.Registration, error) {
				return model.Registration{}, feedService.ErrAlreadyRegistered
			},
		}
		controller, _ := newTestController(svc)

		body := strings.NewReader(`{"username": "alice"}`)
		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", body))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		deleted := ""
		svc := &stubService{
			unregister: func(handle string) error {
				deleted = handle
				return nil
			},
		}
		controller, _ := newTestController(svc)

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/users/alice", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", deleted)
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		svc := &stubService{
			unregister: func(string) error {
				return feedService.ErrNotRegistered
			},
		}
		controller, _ := newTestController(svc)

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/users/ghost", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListUsers(t *testing.T) {
	svc := &stubService{
		listRegistered: func() ([]model.Registration, error) {
			return []model.Registration{
				{Person: model.Person{Handle: "alice", DisplayName: "alice"}, Enabled: true},
			}, nil
		},
	}
	controller, _ := newTestController(svc)

	rec := httptest.NewRecorder()
	controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var users []userResponse
	assert.Nil(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}

func TestRefreshEndpoints(t *testing.T) {
	t.Run("refresh one is synchronous", func(t *testing.T) {
		svc := &stubService{
			refreshNow: func(handle string) (model.BookList, error) {
				return testList(handle), nil
			},
		}
		controller, _ := newTestController(svc)

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh/alice", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "alice")
	})

	t.Run("refresh all triggers a sweep", func(t *testing.T) {
		controller, sweeper := newTestController(&stubService{})

		rec := httptest.NewRecorder()
		controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.True(t, sweeper.triggered)
	})
}

func TestRequestIDHeader(t *testing.T) {
	svc := &stubService{
		listRegistered: func() ([]model.Registration, error) {
			return nil, nil
		},
	}
	controller, _ := newTestController(svc)

	rec := httptest.NewRecorder()
	controller.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("X-Request-Id", "fixed-id")
	rec = httptest.NewRecorder()
	controller.Router().ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-Id"))
}
