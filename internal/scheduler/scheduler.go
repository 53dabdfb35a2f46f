package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hardcover_rss/config"
	"hardcover_rss/internal/model"
)

type FeedService interface {
	EnsureFresh(ctx context.Context, handle string) (model.BookList, error)
	RefreshNow(ctx context.Context, handle string) (model.BookList, error)
	RegisteredHandles(ctx context.Context) ([]string, error)
}

type jobKind int

// The job set is closed: the scheduler dispatches exactly these two
// kinds, there is no open-ended callback registration.
const (
	jobSweepAll jobKind = iota
	jobRefreshOne
)

type job struct {
	kind   jobKind
	handle string
}

// Scheduler keeps the registered identity set warm. It is either
// Stopped or Running; Start begins interval ticking, Stop cancels
// pending ticks while letting the job in flight run to completion.
type Scheduler struct {
	cfg  *config.Config
	svc  FeedService
	jobs chan job

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(cfg *config.Config, svc FeedService) *Scheduler {
	return &Scheduler{
		cfg:  cfg,
		svc:  svc,
		jobs: make(chan job, 16),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stop, s.done)

	slog.Info("scheduler started", slog.Duration("interval", s.cfg.Scheduler.RefreshInterval))
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	slog.Info("scheduler stopped")
}

// TriggerSweep runs a full sweep outside the normal interval.
func (s *Scheduler) TriggerSweep() {
	s.enqueue(job{kind: jobSweepAll})
}

// TriggerRefresh refreshes a single identity regardless of expiry.
func (s *Scheduler) TriggerRefresh(handle string) {
	s.enqueue(job{kind: jobRefreshOne, handle: handle})
}

func (s *Scheduler) enqueue(j job) {
	select {
	case s.jobs <- j:
	default:
		slog.Warn("scheduler job queue full, dropping trigger", slog.Int("kind", int(j.kind)))
	}
}

func (s *Scheduler) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Scheduler.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.dispatch(job{kind: jobSweepAll}, stop)
		case j := <-s.jobs:
			s.dispatch(j, stop)
		}
	}
}

func (s *Scheduler) dispatch(j job, stop chan struct{}) {
	op := "Scheduler.dispatch"
	ctx := context.Background()

	switch j.kind {
	case jobSweepAll:
		s.sweep(ctx, stop)
	case jobRefreshOne:
		if _, err := s.svc.RefreshNow(ctx, j.handle); err != nil {
			slog.Warn(
				"manual refresh failed",
				slog.String("op", op),
				slog.String("handle", j.handle),
				slog.String("err", err.Error()),
			)
		}
	}
}

// sweep refreshes every registered identity one at a time, paced to
// bound the request rate against the upstream source. One identity
// failing never halts the sweep over the rest.
func (s *Scheduler) sweep(ctx context.Context, stop chan struct{}) {
	op := "Scheduler.sweep"

	handles, err := s.svc.RegisteredHandles(ctx)
	if err != nil {
		slog.Error("sweep aborted, cannot enumerate identities", slog.String("op", op), slog.String("err", err.Error()))
		return
	}

	slog.Info("sweep started", slog.String("op", op), slog.Int("identities", len(handles)))

	var failures int
	for i, handle := range handles {
		if i > 0 {
			select {
			case <-stop:
				slog.Info("sweep interrupted by stop", slog.String("op", op), slog.Int("done", i))
				return
			case <-time.After(s.cfg.Scheduler.SweepPacing):
			}
		}

		if _, err := s.svc.EnsureFresh(ctx, handle); err != nil {
			failures++
			slog.Warn(
				"sweep refresh failed",
				slog.String("op", op),
				slog.String("handle", handle),
				slog.String("err", err.Error()),
			)
		}
	}

	slog.Info("sweep completed", slog.String("op", op), slog.Int("identities", len(handles)), slog.Int("failures", failures))
}
