// ABOUTME: Tests for the emotion engine
// ABOUTME: Checks defaults, drift, failure nudges, clamping, and persistence
package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/harper/duet/internal/llm/llmtest"
	"github.com/harper/duet/internal/models"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deltaReply(a, t, m int) llmtest.HandlerFunc {
	return func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return llmtest.Text(fmt.Sprintf(`{"affection_delta": %d, "trust_delta": %d, "mood_delta": %d}`, a, t, m)), nil
	}
}

func TestEmotion_GetStateCreatesDefaults(t *testing.T) {
	repo := newTestRepo(t)
	engine := NewEmotionEngine(repo, llmtest.New(deltaReply(0, 0, 0)), "test-model", WithClock(fixedClock))

	snap, err := engine.GetState(context.Background(), "conv-1")
	require.NoError(t, err)

	for _, p := range models.Personas {
		e := snap.State.For(p)
		assert.Equal(t, 20, e.Affection)
		assert.Equal(t, 10, e.Trust)
		assert.Equal(t, 0, e.Mood)
		assert.Equal(t, e.Rules(), snap.Rules[p])
	}

	stored := repo.GetRelationship(context.Background(), "conv-1")
	require.NotNil(t, stored, "first access persists the defaults")
}

func TestEmotion_PerceiveEndToEnd(t *testing.T) {
	repo := newTestRepo(t)
	engine := NewEmotionEngine(repo, llmtest.New(deltaReply(5, 0, 2)), "test-model",
		WithClock(fixedClock), WithRand(NewSeededRand(7)))
	ctx := context.Background()

	_, err := engine.GetState(ctx, "conv-1")
	require.NoError(t, err)

	state, err := engine.Perceive(ctx, "conv-1", "you're wonderful", []models.Persona{models.Demon})
	require.NoError(t, err)

	assert.Equal(t, 25, state.Demon.Affection)
	assert.Equal(t, 10, state.Demon.Trust)
	assert.Contains(t, []int{1, 2, 3}, state.Demon.Mood)
	assert.Equal(t, models.DefaultEmotion(), state.Angel, "inactive persona is untouched")
	assert.True(t, state.LastUserActivity.Equal(testNow))

	stored := repo.GetRelationship(ctx, "conv-1")
	require.NotNil(t, stored)
	assert.Equal(t, state.Demon, stored.Demon)
}

func TestEmotion_DriftMatchesInjectedSource(t *testing.T) {
	const seed = 99
	engine := NewEmotionEngine(newTestRepo(t), llmtest.New(deltaReply(0, 0, 0)), "test-model",
		WithClock(fixedClock), WithRand(NewSeededRand(seed)))

	expected := rand.New(rand.NewPCG(seed, seed))
	state, err := engine.Perceive(context.Background(), "conv-1", "hi", []models.Persona{models.Demon, models.Angel})
	require.NoError(t, err)

	assert.Equal(t, expected.IntN(3)-1, state.Demon.Mood)
	assert.Equal(t, expected.IntN(3)-1, state.Angel.Mood)
}

func TestEmotion_FailureNudgesMoodOnly(t *testing.T) {
	fake := &llmtest.Fake{}
	fake.QueueError(errors.New("model unavailable"))
	engine := NewEmotionEngine(newTestRepo(t), fake, "test-model", WithClock(fixedClock))

	state, err := engine.Perceive(context.Background(), "conv-1", "hello", []models.Persona{models.Angel})
	require.NoError(t, err)

	assert.Equal(t, models.DefaultAffection, state.Angel.Affection)
	assert.Equal(t, models.DefaultTrust, state.Angel.Trust)
	assert.Contains(t, []int{-1, 1}, state.Angel.Mood)
}

func TestEmotion_MalformedReplyNudges(t *testing.T) {
	fake := llmtest.New(func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return llmtest.Text("I feel great about this!"), nil
	})
	engine := NewEmotionEngine(newTestRepo(t), fake, "test-model")

	state, err := engine.Perceive(context.Background(), "conv-1", "hello", []models.Persona{models.Demon})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultAffection, state.Demon.Affection)
	assert.Contains(t, []int{-1, 1}, state.Demon.Mood)
}

func TestEmotion_ValuesStayInBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	fake := llmtest.New(func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if rng.IntN(5) == 0 {
			return openai.ChatCompletionResponse{}, errors.New("flaky")
		}
		return llmtest.Text(fmt.Sprintf(`{"affection_delta": %d, "trust_delta": %d, "mood_delta": %d}`,
			rng.IntN(81)-40, rng.IntN(81)-40, rng.IntN(81)-40)), nil
	})
	engine := NewEmotionEngine(newTestRepo(t), fake, "test-model", WithRand(NewSeededRand(3)))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		state, err := engine.Perceive(ctx, "conv-bounds", "message", models.Personas)
		require.NoError(t, err)
		for _, p := range models.Personas {
			e := state.For(p)
			require.GreaterOrEqual(t, e.Affection, models.MinAffection)
			require.LessOrEqual(t, e.Affection, models.MaxAffection)
			require.GreaterOrEqual(t, e.Trust, models.MinTrust)
			require.LessOrEqual(t, e.Trust, models.MaxTrust)
			require.GreaterOrEqual(t, e.Mood, models.MinMood)
			require.LessOrEqual(t, e.Mood, models.MaxMood)
		}
	}
}

func TestEmotion_OneAnalysisPerPersona(t *testing.T) {
	fake := llmtest.New(deltaReply(1, 1, 0))
	engine := NewEmotionEngine(newTestRepo(t), fake, "test-model")

	_, err := engine.Perceive(context.Background(), "conv-1", "hey", models.ModeGroup.ActivePersonas())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls())

	reqs := fake.Requests()
	assert.Contains(t, llmtest.SystemPrompt(reqs[0]), "demon")
	assert.Contains(t, llmtest.SystemPrompt(reqs[1]), "angel")
}
