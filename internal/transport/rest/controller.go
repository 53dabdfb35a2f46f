package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"hardcover_rss/config"
	"hardcover_rss/internal/fetcher"
	"hardcover_rss/internal/model"
	"hardcover_rss/internal/service/feedService"
	"hardcover_rss/utils"

	"github.com/go-chi/chi/v5"
)

type FeedService interface {
	EnsureFresh(ctx context.Context, handle string) (model.BookList, error)
	Register(ctx context.Context, handle, displayName string) (model.Registration, error)
	Unregister(ctx context.Context, handle string) error
	RefreshNow(ctx context.Context, handle string) (model.BookList, error)
	ListRegistered(ctx context.Context) ([]model.Registration, error)
}

type FeedGenerator interface {
	Generate(list model.BookList) (string, error)
}

type Sweeper interface {
	TriggerSweep()
}

// Controller is the thin CRUD wrapper around the core: every read goes
// through FeedService.EnsureFresh, nothing here touches the cache or
// the upstream directly.
type Controller struct {
	cfg   *config.Config
	svc   FeedService
	gen   FeedGenerator
	sched Sweeper
}

func NewController(cfg *config.Config, svc FeedService, gen FeedGenerator, sched Sweeper) *Controller {
	return &Controller{cfg: cfg, svc: svc, gen: gen, sched: sched}
}

func (c *Controller) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)

	r.Get("/", c.root)
	r.Get("/health", c.health)
	r.Get("/users", c.listUsers)
	r.Post("/users", c.createUser)
	r.Delete("/users/{username}", c.deleteUser)
	r.Get("/feed/{username}", c.feed)
	r.Get("/list_rss/{username}", c.feed) // Goodreads-compatible alias
	r.Post("/refresh/{username}", c.refreshOne)
	r.Post("/refresh", c.refreshAll)

	return r
}

func (c *Controller) root(w http.ResponseWriter, r *http.Request) {
	regs, err := c.svc.ListRegistered(r.Context())
	users := 0
	if err == nil {
		users = len(regs)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"service": "Hardcover RSS",
		"users":   users,
	})
}

func (c *Controller) health(w http.ResponseWriter, r *http.Request) {
	regs, err := c.svc.ListRegistered(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"users":  len(regs),
	})
}

func (c *Controller) listUsers(w http.ResponseWriter, r *http.Request) {
	regs, err := c.svc.ListRegistered(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	users := make([]userResponse, 0, len(regs))
	for _, reg := range regs {
		users = append(users, c.toUserResponse(reg))
	}

	respondJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func (c *Controller) createUser(w http.ResponseWriter, r *http.Request) {
	op := "Controller.createUser"
	rqID := utils.GetRequestIDFromCtx(r.Context())

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		respondError(w, http.StatusBadRequest, "username is required")
		return
	}

	reg, err := c.svc.Register(r.Context(), req.Username, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, feedService.ErrAlreadyRegistered):
			respondError(w, http.StatusBadRequest, "user already registered")
		case errors.Is(err, fetcher.ErrIdentityNotFound):
			respondError(w, http.StatusNotFound, "user not found on Hardcover")
		case errors.Is(err, fetcher.ErrUpstreamUnreachable), errors.Is(err, fetcher.ErrUpstreamMalformed):
			respondError(w, http.StatusServiceUnavailable, "upstream unavailable")
		default:
			slog.Error("register failed", slog.String("op", op), slog.String("rqID", rqID), slog.String("err", err.Error()))
			respondError(w, http.StatusInternalServerError, "failed to register user")
		}
		return
	}

	respondJSON(w, http.StatusCreated, c.toUserResponse(reg))
}

func (c *Controller) deleteUser(w http.ResponseWriter, r *http.Request) {
	err := c.svc.Unregister(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		if errors.Is(err, feedService.ErrNotRegistered) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to remove user")
		return
	}

	respondJSON(w, http.StatusOK, messageResponse{Message: "User removed"})
}

// feed is the single read path for feed content. A failed fetch with no
// cached fallback yields an explicit error status, never a blank feed.
func (c *Controller) feed(w http.ResponseWriter, r *http.Request) {
	op := "Controller.feed"
	rqID := utils.GetRequestIDFromCtx(r.Context())

	list, err := c.svc.EnsureFresh(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		c.respondFetchError(w, op, rqID, err)
		return
	}

	content, err := c.gen.Generate(list)
	if err != nil {
		slog.Error("feed render failed", slog.String("op", op), slog.String("rqID", rqID), slog.String("err", err.Error()))
		respondError(w, http.StatusInternalServerError, "failed to render feed")
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, content)
}

func (c *Controller) refreshOne(w http.ResponseWriter, r *http.Request) {
	op := "Controller.refreshOne"
	rqID := utils.GetRequestIDFromCtx(r.Context())

	list, err := c.svc.RefreshNow(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		c.respondFetchError(w, op, rqID, err)
		return
	}

	respondJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Refreshed %s (%d books)", list.Owner.Handle, len(list.Books)),
	})
}

func (c *Controller) refreshAll(w http.ResponseWriter, _ *http.Request) {
	c.sched.TriggerSweep()
	respondJSON(w, http.StatusAccepted, messageResponse{Message: "Refresh initiated"})
}

func (c *Controller) respondFetchError(w http.ResponseWriter, op, rqID string, err error) {
	switch {
	case errors.Is(err, feedService.ErrNotRegistered), errors.Is(err, fetcher.ErrIdentityNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, feedService.ErrDisabled):
		respondError(w, http.StatusBadRequest, "user is disabled")
	case errors.Is(err, fetcher.ErrUpstreamUnreachable), errors.Is(err, fetcher.ErrUpstreamMalformed):
		respondError(w, http.StatusServiceUnavailable, "upstream unavailable")
	default:
		slog.Error("feed request failed", slog.String("op", op), slog.String("rqID", rqID), slog.String("err", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (c *Controller) toUserResponse(reg model.Registration) userResponse {
	return userResponse{
		Username:    reg.Person.Handle,
		DisplayName: reg.Person.DisplayName,
		Enabled:     reg.Enabled,
		FeedUrl:     fmt.Sprintf("/feed/%s", reg.Person.Handle),
	}
}
