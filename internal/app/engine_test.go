// ABOUTME: Tests for engine wiring
// ABOUTME: Runs a turn through a fully wired engine and checks clean start and close
package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/llm/llmtest"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage"
	"github.com/harper/duet/internal/storage/sqlite"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testConfig() *config.Config {
	return &config.Config{
		ChatModel:                "chat",
		FastModel:                "fast",
		MaxToolSteps:             5,
		HistoryCap:               60,
		ContextWindow:            20,
		VectorThreshold:          0.8,
		RestartMarker:            "[[SYSTEM_RESTART]]",
		IdleAfter:                time.Hour,
		IdleProbabilityThreshold: 0.7,
		IdleStrategy:             config.StrategyRecency,
		ReflectionAt:             "03:00",
		BriefingAt:               "08:00",
		Heartbeat:                time.Hour,
		HistoryBackend:           config.BackendSQLite,
	}
}

func openTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	repo, err := sqlite.NewRepositoryInMemory()
	require.NoError(t, err)

	fake := llmtest.New(func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return llmtest.Text("hello from the engine"), nil
	})
	e, err := Open(cfg, nil, Overrides{Client: fake, Repo: repo})
	require.NoError(t, err)
	return e
}

func TestOpen_RequiresAPIKeyWithoutClient(t *testing.T) {
	_, err := Open(testConfig(), nil, Overrides{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestOpen_RejectsUnknownIdleStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.IdleStrategy = "loudest"
	repo, err := sqlite.NewRepositoryInMemory()
	require.NoError(t, err)

	_, err = Open(cfg, nil, Overrides{Client: llmtest.New(nil), Repo: repo})
	assert.Error(t, err)
}

func TestEngine_ProcessTurn(t *testing.T) {
	e := openTestEngine(t, testConfig())
	ctx := context.Background()

	res, err := e.Orchestrator.ProcessTurn(ctx, "conv-1", "hi", nil, models.ModeDemon)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello from the engine"}, res.Messages)
	assert.False(t, e.Vectors.Enabled(), "no embedder means an inert vector bridge")

	require.NoError(t, e.Close(ctx))
	assert.Error(t, e.Repo.DB().Conn().PingContext(ctx), "close releases the database")
}

func TestEngine_StartClose(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsAddr = freeAddr(t)
	e := openTestEngine(t, cfg)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	assert.Error(t, e.Start(ctx))

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", cfg.MetricsAddr))
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, e.Close(closeCtx))
	http.DefaultClient.CloseIdleConnections()
}

func TestEngine_ImpulsesAreNotQueued(t *testing.T) {
	e := openTestEngine(t, testConfig())
	defer func() { _ = e.Close(context.Background()) }()

	assert.Zero(t, cap(e.impulses))
	select {
	case e.impulses <- models.Impulse{Type: models.IdleCheck, Timestamp: time.Now()}:
		t.Fatal("impulse queued with no consumer waiting")
	default:
	}
}

func TestEngine_CloseWithoutStart(t *testing.T) {
	e := openTestEngine(t, testConfig())
	assert.NoError(t, e.Close(context.Background()))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestOpenRepository_BoltHistory(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.HistoryBackend = config.BackendBolt
	cfg.DBPath = filepath.Join(dir, "duet.db")
	cfg.BoltPath = filepath.Join(dir, "history.bolt")
	ctx := context.Background()

	repo, cc, err := OpenRepository(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, cc)
	require.NoError(t, repo.SaveHistory(ctx, "c1", []models.HistoryEntry{{Role: models.RoleUser, Content: "kept in bolt"}}))
	require.NoError(t, repo.Close())

	// closing the repository released the bolt lock
	bh, err := storage.OpenBoltHistory(cfg.BoltPath, 0, nil)
	require.NoError(t, err)
	defer func() { _ = bh.Close() }()
	got := bh.GetHistory(ctx, "c1")
	require.Len(t, got, 1)
	assert.Equal(t, "kept in bolt", got[0].Content)
}
