// ABOUTME: Shared fixtures for orchestrator tests
// ABOUTME: Routes fake model calls by purpose and wires a full in-memory engine
package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harper/duet/internal/core"
	"github.com/harper/duet/internal/llm/llmtest"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/harper/duet/internal/tools"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// Prompt markers identifying each kind of model call
const (
	emotionMarker  = "You track how the"
	memoryMarker   = "persona's memory"
	scoringMarker  = "Rate how important"
	directorMarker = "You direct a conversation"
	reactionMarker = "React to what the"
)

// router answers analysis calls with defaults and sends persona replies to reply
type router struct {
	delta   string
	fact    string
	score   string
	plan    string
	reply   llmtest.HandlerFunc
	react   llmtest.HandlerFunc
	emotion llmtest.HandlerFunc
}

func (r *router) handle(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	sys := llmtest.SystemPrompt(req)
	switch {
	case strings.Contains(sys, emotionMarker):
		if r.emotion != nil {
			return r.emotion(req)
		}
		return llmtest.Text(orDefault(r.delta, `{"affection_delta": 1, "trust_delta": 1, "mood_delta": 0}`)), nil
	case strings.Contains(sys, memoryMarker):
		return llmtest.Text(orDefault(r.fact, `{}`)), nil
	case strings.Contains(sys, scoringMarker):
		return llmtest.Text(orDefault(r.score, `{"importance_score": 0.2, "summary": "small talk"}`)), nil
	case strings.Contains(sys, directorMarker):
		return llmtest.Text(orDefault(r.plan, `not a plan`)), nil
	case strings.Contains(sys, reactionMarker) && r.react != nil:
		return r.react(req)
	}
	if r.reply != nil {
		return r.reply(req)
	}
	return llmtest.Text("ok"), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// personaOf reports which persona a reply request is for
func personaOf(req openai.ChatCompletionRequest) models.Persona {
	if strings.HasPrefix(llmtest.SystemPrompt(req), "You are the Angel") {
		return models.Angel
	}
	return models.Demon
}

type delivery struct {
	conversationID string
	replies        []models.Reply
}

type fixture struct {
	repo   *sqlite.Repository
	fake   *llmtest.Fake
	tasks  *core.Tasks
	orch   *Orchestrator
	mu     sync.Mutex
	outbox []delivery
}

type fixtureOption func(*fixtureSettings)

type fixtureSettings struct {
	cfg  Config
	rng  core.Random
	idle func(repo *sqlite.Repository) IdleSelector
}

func withConfig(fn func(*Config)) fixtureOption {
	return func(s *fixtureSettings) { fn(&s.cfg) }
}

func withSeed(seed uint64) fixtureOption {
	return func(s *fixtureSettings) { s.rng = core.NewSeededRand(seed) }
}

func newFixture(t *testing.T, r *router, opts ...fixtureOption) *fixture {
	t.Helper()

	settings := fixtureSettings{cfg: DefaultConfig(), rng: core.NewSeededRand(1)}
	for _, opt := range opts {
		opt(&settings)
	}

	repo, err := sqlite.NewRepositoryInMemory(sqlite.WithClock(fixedClock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	fake := llmtest.New(r.handle)
	tasks := core.NewTasks(nil, nil)
	shared := []core.Option{core.WithClock(fixedClock), core.WithTasks(tasks), core.WithRand(settings.rng)}

	ltm := core.NewLongTermMemory(repo, nil, core.LTMConfig{Scorer: fake, Model: "fast"}, shared...)
	f := &fixture{repo: repo, fake: fake, tasks: tasks}

	idle := IdleSelector(NewRecencySelector(repo))
	if settings.idle != nil {
		idle = settings.idle(repo)
	}

	orch, err := New(settings.cfg, Deps{
		History:   repo,
		Client:    fake,
		Emotions:  core.NewEmotionEngine(repo, fake, "fast", shared...),
		Memory:    core.NewPersonaMemory(repo, fake, "fast", shared...),
		LTM:       ltm,
		Hydrator:  core.NewContextHydrator(models.DefaultContextWindow, 0),
		Reflector: core.NewReflector(ltm, fake, "fast", shared...),
		Tools:     tools.NewRegistry(tools.Builtins(repo, nil, ltm, fixedClock)...),
		Idle:      idle,
		Outbox: func(ctx context.Context, conversationID string, replies []models.Reply) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.outbox = append(f.outbox, delivery{conversationID: conversationID, replies: replies})
		},
	}, WithClock(fixedClock), WithTasks(tasks), WithRand(settings.rng))
	require.NoError(t, err)
	f.orch = orch

	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })
	return f
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.tasks.Wait(context.Background()))
}

func (f *fixture) deliveries() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]delivery, len(f.outbox))
	copy(out, f.outbox)
	return out
}
