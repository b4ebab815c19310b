// ABOUTME: Shared construction options for the core engines
// ABOUTME: Injects randomness, time, logging, metrics, and the background task runner
package core

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/harper/duet/internal/metrics"
	"go.uber.org/zap"
)

// Random is the randomness the engines draw from. *rand.Rand satisfies it
// but is not safe for concurrent use; wrap it with NewLockedRand.
type Random interface {
	IntN(n int) int
	Float64() float64
}

type systemRand struct{}

func (systemRand) IntN(n int) int   { return rand.IntN(n) }
func (systemRand) Float64() float64 { return rand.Float64() }

// SystemRand draws from the runtime's global source
func SystemRand() Random { return systemRand{} }

type lockedRand struct {
	mu sync.Mutex
	r  Random
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// NewLockedRand serializes access to r
func NewLockedRand(r Random) Random {
	return &lockedRand{r: r}
}

// NewSeededRand returns a deterministic, concurrency-safe source
func NewSeededRand(seed uint64) Random {
	return NewLockedRand(rand.New(rand.NewPCG(seed, seed)))
}

// base carries the dependencies every engine shares
type base struct {
	rng     Random
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Collector
	tasks   *Tasks
}

// Option configures an engine
type Option func(*base)

// WithRand sets the random source
func WithRand(r Random) Option {
	return func(b *base) {
		if r != nil {
			b.rng = r
		}
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(b *base) { b.metrics = m }
}

// WithTasks shares a background task runner
func WithTasks(t *Tasks) Option {
	return func(b *base) {
		if t != nil {
			b.tasks = t
		}
	}
}

func newBase(component string, opts []Option) base {
	b := base{
		rng:    SystemRand(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.tasks == nil {
		b.tasks = NewTasks(b.logger, b.metrics)
	}
	b.logger = b.logger.With(zap.String("component", component))
	return b
}
