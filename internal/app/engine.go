// ABOUTME: Wires configuration, storage, model clients, and the orchestrator into one engine
// ABOUTME: Shared by the CLI commands and the standalone MCP server
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/harper/duet/internal/agent"
	"github.com/harper/duet/internal/charm"
	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/core"
	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/logging"
	"github.com/harper/duet/internal/metrics"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/scheduler"
	"github.com/harper/duet/internal/storage"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/harper/duet/internal/tools"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrNoAPIKey is returned when the engine needs a model but none is configured
var ErrNoAPIKey = errors.New("OPENAI_API_KEY is not set")

// Overrides replace collaborators Open would otherwise build from config.
// A supplied Repo is owned by the engine and closed with it.
type Overrides struct {
	Client   llm.ChatCompleter
	Embedder llm.Embedder
	Repo     *sqlite.Repository
	Clock    func() time.Time
	Rand     core.Random
	Outbox   agent.Outbox
}

// Engine is a fully wired duet brain
type Engine struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *metrics.Collector
	Repo         *sqlite.Repository
	Vectors      *core.VectorBridge
	LTM          *core.LongTermMemory
	Emotions     *core.EmotionEngine
	Memory       *core.PersonaMemory
	Orchestrator *agent.Orchestrator
	Scheduler    *scheduler.Scheduler

	charm      *charm.Client
	impulses   chan models.Impulse
	metricsSrv *http.Server
	cancel     context.CancelFunc
	runDone    chan struct{}
}

// OpenRepository opens the configured storage without any model wiring
func OpenRepository(cfg *config.Config, logger *zap.Logger) (*sqlite.Repository, *charm.Client, error) {
	opts := []sqlite.Option{sqlite.WithLogger(logger), sqlite.WithHistoryCap(cfg.HistoryCap)}

	var (
		cc *charm.Client
		bh *storage.BoltHistory
	)
	switch cfg.HistoryBackend {
	case config.BackendCharm:
		var err error
		cc, err = charm.NewClient(&charm.Config{Host: cfg.CharmHost, DBName: cfg.CharmDBName, AutoSync: cfg.AutoSync})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open charm history: %w", err)
		}
		opts = append(opts, sqlite.WithHistoryBackend(storage.NewCharmHistory(cc, cfg.HistoryCap, logger)))
	case config.BackendBolt:
		path := cfg.BoltPath
		if path == "" {
			path = filepath.Join(sqlite.DefaultDataDir(), "history.bolt")
		}
		// the repository closes it
		var err error
		bh, err = storage.OpenBoltHistory(path, cfg.HistoryCap, logger)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, sqlite.WithHistoryBackend(bh))
	}

	path := cfg.DBPath
	if path == "" {
		path = sqlite.DefaultDBPath()
	}
	repo, err := sqlite.NewRepositoryWithPath(path, opts...)
	if err != nil {
		if cc != nil {
			_ = cc.Close()
		}
		if bh != nil {
			_ = bh.Close()
		}
		return nil, nil, err
	}
	return repo, cc, nil
}

// NewClient builds the OpenAI client from config
func NewClient(cfg *config.Config) (*llm.OpenAIClient, error) {
	if cfg.OpenAIKey == "" {
		return nil, ErrNoAPIKey
	}
	return llm.NewOpenAIClientWithConfig(&llm.ClientConfig{
		APIKey:         cfg.OpenAIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		EmbeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		Timeout:        cfg.Timeout,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
	})
}

// Open wires an engine. Nothing runs until Start.
func Open(cfg *config.Config, logger *zap.Logger, ov Overrides) (*Engine, error) {
	logger = logging.OrNop(logger)
	e := &Engine{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.NewCollector("duet"),
		impulses: make(chan models.Impulse),
	}

	client, embedder := ov.Client, ov.Embedder
	if client == nil {
		oc, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		client = oc
		if embedder == nil {
			embedder = oc
		}
	}

	e.Repo = ov.Repo
	if e.Repo == nil {
		repo, cc, err := OpenRepository(cfg, logger)
		if err != nil {
			return nil, err
		}
		e.Repo, e.charm = repo, cc
	}

	tasks := core.NewTasks(logger, e.Metrics)
	rng := ov.Rand
	if rng == nil {
		rng = core.NewLockedRand(core.SystemRand())
	}
	shared := []core.Option{
		core.WithLogger(logger),
		core.WithMetrics(e.Metrics),
		core.WithTasks(tasks),
		core.WithRand(rng),
		core.WithClock(ov.Clock),
	}

	var memorizer core.Memorizer
	var recaller tools.Recaller
	if embedder != nil {
		e.Vectors = core.NewVectorBridge(embedder, e.Repo, shared...)
		memorizer, recaller = e.Vectors, e.Vectors
	}
	e.LTM = core.NewLongTermMemory(e.Repo, memorizer, core.LTMConfig{
		Threshold: cfg.VectorThreshold,
		Scorer:    client,
		Model:     cfg.FastModel,
	}, shared...)
	e.Emotions = core.NewEmotionEngine(e.Repo, client, cfg.FastModel, shared...)
	e.Memory = core.NewPersonaMemory(e.Repo, client, cfg.FastModel, shared...)

	now := ov.Clock
	if now == nil {
		now = func() time.Time { return time.Now() }
	}
	idle, err := agent.NewIdleSelector(cfg.IdleStrategy, e.Repo, rng, now, cfg.IdleAfter)
	if err != nil {
		return nil, e.closeStores(err)
	}

	orch, err := agent.New(agent.Config{
		ChatModel:                cfg.ChatModel,
		FastModel:                cfg.FastModel,
		MaxToolSteps:             cfg.MaxToolSteps,
		HistoryCap:               cfg.HistoryCap,
		IdleAfter:                cfg.IdleAfter,
		IdleProbabilityThreshold: cfg.IdleProbabilityThreshold,
		RestartMarker:            cfg.RestartMarker,
	}, agent.Deps{
		History:   e.Repo,
		Client:    client,
		Emotions:  e.Emotions,
		Memory:    e.Memory,
		LTM:       e.LTM,
		Hydrator:  core.NewContextHydrator(cfg.ContextWindow, 0),
		Vectors:   e.Vectors,
		Reflector: core.NewReflector(e.LTM, client, cfg.FastModel, shared...),
		Tools:     tools.NewRegistry(tools.Builtins(e.Repo, recaller, e.LTM, now)...),
		Idle:      idle,
		Outbox:    ov.Outbox,
	},
		agent.WithLogger(logger),
		agent.WithMetrics(e.Metrics),
		agent.WithTasks(tasks),
		agent.WithRand(rng),
		agent.WithClock(ov.Clock),
	)
	if err != nil {
		return nil, e.closeStores(err)
	}
	e.Orchestrator = orch

	e.Scheduler, err = scheduler.New(e.impulses, scheduler.FromConfig(cfg),
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(e.Metrics))
	if err != nil {
		return nil, e.closeStores(err)
	}
	return e, nil
}

// Start runs the impulse consumer, the scheduler and, when configured, the
// metrics endpoint
func (e *Engine) Start(ctx context.Context) error {
	if e.cancel != nil {
		return errors.New("engine already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.runDone = make(chan struct{})

	go func() {
		defer close(e.runDone)
		if err := e.Orchestrator.Run(ctx, e.impulses); err != nil && !errors.Is(err, context.Canceled) {
			e.Logger.Warn("impulse consumer stopped", zap.Error(err))
		}
	}()

	if err := e.Scheduler.Start(ctx); err != nil {
		cancel()
		<-e.runDone
		return err
	}

	if addr := e.Config.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", e.Metrics.Handler())
		e.metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := e.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.Logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
		e.Logger.Info("metrics endpoint listening", zap.String("addr", addr))
	}
	return nil
}

// Close stops the scheduler and the consumer, waits for background writes,
// and closes storage
func (e *Engine) Close(ctx context.Context) error {
	e.Scheduler.Stop()
	if e.cancel != nil {
		e.cancel()
		<-e.runDone
		e.cancel = nil
	}

	var errs []error
	if e.metricsSrv != nil {
		errs = append(errs, e.metricsSrv.Shutdown(ctx))
	}
	if err := e.Orchestrator.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("background tasks: %w", err))
	}
	return e.closeStores(errors.Join(errs...))
}

func (e *Engine) closeStores(cause error) error {
	errs := []error{cause}
	if e.Repo != nil {
		errs = append(errs, e.Repo.Close())
	}
	if e.charm != nil {
		errs = append(errs, e.charm.Close())
	}
	return errors.Join(errs...)
}
