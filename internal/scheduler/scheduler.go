// ABOUTME: Proactive scheduler emitting daily triggers and an idle-check heartbeat
// ABOUTME: Sends impulses without blocking and stops all timers as a unit
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/metrics"
	"github.com/harper/duet/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRunning is returned by Start on a scheduler that is already running
var ErrRunning = errors.New("scheduler already running")

// Schedule is the firing plan
type Schedule struct {
	// ReflectionAt and BriefingAt are local "HH:MM" times of day
	ReflectionAt string
	BriefingAt   string
	Heartbeat    time.Duration
	Location     *time.Location
}

// FromConfig builds a schedule from loaded configuration
func FromConfig(cfg *config.Config) Schedule {
	return Schedule{
		ReflectionAt: cfg.ReflectionAt,
		BriefingAt:   cfg.BriefingAt,
		Heartbeat:    cfg.Heartbeat,
	}
}

type daily struct {
	kind         models.ImpulseType
	hour, minute int
}

// Scheduler owns the timers
type Scheduler struct {
	out       chan<- models.Impulse
	triggers  []daily
	heartbeat time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics counts dropped impulses
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock sets the time source used to compute daily firings
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New validates sched and returns a stopped scheduler writing to out
func New(out chan<- models.Impulse, sched Schedule, opts ...Option) (*Scheduler, error) {
	if out == nil {
		return nil, errors.New("impulse channel is required")
	}
	if sched.Heartbeat <= 0 {
		return nil, fmt.Errorf("heartbeat must be positive, got %v", sched.Heartbeat)
	}

	s := &Scheduler{
		out:       out,
		heartbeat: sched.Heartbeat,
		loc:       sched.Location,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	for _, t := range []struct {
		kind models.ImpulseType
		at   string
	}{
		{models.TriggerSelfReflection, sched.ReflectionAt},
		{models.TriggerMorningBriefing, sched.BriefingAt},
	} {
		h, m, err := config.ParseClock(t.at)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.kind, err)
		}
		s.triggers = append(s.triggers, daily{kind: t.kind, hour: h, minute: m})
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "scheduler"))
	return s, nil
}

// Start arms every timer. The timers run until Stop or until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.triggers {
		g.Go(func() error { return s.runDaily(ctx, t) })
	}
	g.Go(func() error { return s.runHeartbeat(ctx) })

	s.cancel = cancel
	s.group = g
	s.logger.Info("scheduler started",
		zap.Duration("heartbeat", s.heartbeat),
		zap.Int("daily_triggers", len(s.triggers)))
	return nil
}

// Stop cancels every timer and waits for the loops to exit. It is safe to
// call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	_ = g.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runDaily(ctx context.Context, t daily) error {
	next := NextAt(s.now().In(s.loc), t.hour, t.minute)
	for {
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		s.emit(t.kind)

		// never fire the same slot twice, even if the clock has not moved past it
		from := s.now().In(s.loc)
		if from.Before(next) {
			from = next
		}
		next = NextAt(from, t.hour, t.minute)
	}
}

func (s *Scheduler) runHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.emit(models.IdleCheck)
		}
	}
}

// emit never blocks: a consumer that is not ready loses the impulse
func (s *Scheduler) emit(kind models.ImpulseType) {
	imp := models.Impulse{Type: kind, Timestamp: s.now().UTC()}
	select {
	case s.out <- imp:
		s.logger.Debug("impulse emitted", zap.String("impulse", string(kind)))
	default:
		s.metrics.RecordImpulse(string(kind), metrics.StatusDropped)
		s.logger.Debug("impulse dropped, consumer not ready", zap.String("impulse", string(kind)))
	}
}

// NextAt returns the first hour:minute strictly after from, in from's location
func NextAt(from time.Time, hour, minute int) time.Time {
	y, m, d := from.Date()
	next := time.Date(y, m, d, hour, minute, 0, 0, from.Location())
	if !next.After(from) {
		next = time.Date(y, m, d+1, hour, minute, 0, 0, from.Location())
	}
	return next
}
