// ABOUTME: Single-flight orchestrator driving user turns and scheduler impulses
// ABOUTME: Fans out perception, routes by mode, persists history once, and writes memory in the background
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harper/duet/internal/core"
	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/metrics"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage"
	"github.com/harper/duet/internal/tools"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fixed user-visible replies
const (
	BusyMessage          = "Still thinking about the last message. Give us a moment and try again."
	InternalErrorMessage = "Something went wrong on our side. Please try again."
)

// ErrBusy marks a rejected entry while another turn holds the brain
var ErrBusy = errors.New("brain is busy")

// recallLimit is how many vector memories are injected into a turn
const recallLimit = 3

// directorHistory is how many history entries the director sees
const directorHistory = 10

var idleTopics = []string{
	"something that happened to one of you today",
	"a harmless argument about taste",
	"what the user might be up to right now",
	"a memory the two of you share",
	"a question you have always wanted to ask the user",
	"a small plan for tomorrow",
}

// ImpulseOutcome reports how an impulse was handled
type ImpulseOutcome string

const (
	OutcomeDropped   ImpulseOutcome = "dropped"
	OutcomeSkipped   ImpulseOutcome = "skipped"
	OutcomeReflected ImpulseOutcome = "reflected"
	OutcomeIdleChat  ImpulseOutcome = "idle_chat"
	OutcomeFailed    ImpulseOutcome = "failed"
)

// Outbox receives unsolicited replies from idle background chats
type Outbox func(ctx context.Context, conversationID string, replies []models.Reply)

// Config tunes the orchestrator
type Config struct {
	ChatModel                string
	FastModel                string
	MaxToolSteps             int
	HistoryCap               int
	IdleAfter                time.Duration
	IdleProbabilityThreshold float64
	RestartMarker            string
}

// DefaultConfig returns the stock tuning
func DefaultConfig() Config {
	return Config{
		ChatModel:                llm.DefaultChatModel,
		FastModel:                llm.DefaultChatModel,
		MaxToolSteps:             DefaultMaxSteps,
		HistoryCap:               models.DefaultHistoryCap,
		IdleAfter:                60 * time.Minute,
		IdleProbabilityThreshold: 0.7,
		RestartMarker:            "[[SYSTEM_RESTART]]",
	}
}

// Deps are the collaborators the orchestrator drives
type Deps struct {
	History  storage.HistoryStore
	Client   llm.ChatCompleter
	Emotions *core.EmotionEngine
	Memory   *core.PersonaMemory
	LTM      *core.LongTermMemory
	Hydrator *core.ContextHydrator

	// Optional collaborators
	Vectors   *core.VectorBridge
	Reflector *core.Reflector
	Tools     *tools.Registry
	Idle      IdleSelector
	Outbox    Outbox
}

// TurnResult is what a caller gets back from one entry
type TurnResult struct {
	ConversationID string                `json:"conversation_id"`
	Mode           models.Mode           `json:"mode"`
	Messages       []string              `json:"messages"`
	Replies        []models.Reply        `json:"replies"`
	Emotion        *core.EmotionSnapshot `json:"emotion,omitempty"`
	ShouldRestart  bool                  `json:"should_restart"`
	Busy           bool                  `json:"busy"`
}

// Err returns ErrBusy for a rejected turn
func (r *TurnResult) Err() error {
	if r != nil && r.Busy {
		return ErrBusy
	}
	return nil
}

// Orchestrator owns the single brain of the process
type Orchestrator struct {
	mu sync.Mutex

	cfg       Config
	history   storage.HistoryStore
	client    llm.ChatCompleter
	emotions  *core.EmotionEngine
	memory    *core.PersonaMemory
	ltm       *core.LongTermMemory
	hydrator  *core.ContextHydrator
	vectors   *core.VectorBridge
	reflector *core.Reflector
	idle      IdleSelector
	outbox    Outbox
	director  *Director
	loop      *ToolLoop

	logger  *zap.Logger
	metrics *metrics.Collector
	rng     core.Random
	now     func() time.Time
	tasks   *core.Tasks
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRand sets the random source used for idle draws and topics
func WithRand(r core.Random) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.rng = r
		}
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTasks shares the background task runner
func WithTasks(t *core.Tasks) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tasks = t
		}
	}
}

// New creates an orchestrator
func New(cfg Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.History == nil:
		return nil, errors.New("history store is required")
	case deps.Client == nil:
		return nil, errors.New("chat client is required")
	case deps.Emotions == nil || deps.Memory == nil || deps.LTM == nil:
		return nil, errors.New("emotion, persona memory and long-term memory engines are required")
	}
	if deps.Hydrator == nil {
		deps.Hydrator = core.NewContextHydrator(0, 0)
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = llm.DefaultChatModel
	}
	if cfg.FastModel == "" {
		cfg.FastModel = cfg.ChatModel
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = models.DefaultHistoryCap
	}

	o := &Orchestrator{
		cfg:       cfg,
		history:   deps.History,
		client:    deps.Client,
		emotions:  deps.Emotions,
		memory:    deps.Memory,
		ltm:       deps.LTM,
		hydrator:  deps.Hydrator,
		vectors:   deps.Vectors,
		reflector: deps.Reflector,
		idle:      deps.Idle,
		outbox:    deps.Outbox,
		logger:    zap.NewNop(),
		rng:       core.SystemRand(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tasks == nil {
		o.tasks = core.NewTasks(o.logger, o.metrics)
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	o.director = NewDirector(deps.Client, cfg.FastModel, o.logger, o.metrics)
	o.loop = NewToolLoop(deps.Client, cfg.ChatModel, deps.Tools, deps.LTM, cfg.MaxToolSteps, o.logger, o.metrics)
	return o, nil
}

// turnContext is the transient working memory of one entry
type turnContext struct {
	conversationID string
	mode           models.Mode
	text           string
	images         []openai.ChatMessagePart
	history        []models.HistoryEntry
	state          *models.RelationshipState
	facts          string
	recall         string
	selfTriggered  bool
	topic          string
}

// ProcessTurn handles one user turn. While another entry is running it
// returns the busy placeholder immediately and touches nothing. Failures
// inside the turn become InternalErrorMessage; only invalid input is an error.
func (o *Orchestrator) ProcessTurn(ctx context.Context, conversationID, userText string, attachments []models.Attachment, mode models.Mode) (*TurnResult, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("conversation id is required")
	}
	mode, err := models.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}

	if !o.mu.TryLock() {
		o.metrics.RecordBusy("turn")
		return &TurnResult{
			ConversationID: conversationID,
			Mode:           mode,
			Messages:       []string{BusyMessage},
			Busy:           true,
		}, nil
	}
	defer o.mu.Unlock()

	start := time.Now()
	result, err := o.guardedTurn(ctx, conversationID, userText, attachments, mode)
	if err != nil {
		o.logger.Error("turn failed",
			zap.String("conversation_id", conversationID),
			zap.String("mode", string(mode)),
			zap.Error(err))
		o.metrics.RecordTurn(string(mode), metrics.StatusError, time.Since(start))
		return &TurnResult{
			ConversationID: conversationID,
			Mode:           mode,
			Messages:       []string{InternalErrorMessage},
		}, nil
	}
	o.metrics.RecordTurn(string(mode), metrics.StatusOK, time.Since(start))
	return result, nil
}

func (o *Orchestrator) guardedTurn(ctx context.Context, conversationID, userText string, attachments []models.Attachment, mode models.Mode) (result *TurnResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.turn(ctx, conversationID, userText, attachments, mode)
}

func (o *Orchestrator) turn(ctx context.Context, conversationID, userText string, attachments []models.Attachment, mode models.Mode) (*TurnResult, error) {
	text, images := SplitAttachments(userText, attachments)
	perception := PerceptionText(text, images)

	tc := &turnContext{
		conversationID: conversationID,
		mode:           mode,
		text:           text,
		images:         images,
		history:        o.history.GetHistory(ctx, conversationID),
	}

	var g errgroup.Group
	g.Go(func() error {
		state, err := o.emotions.Perceive(ctx, conversationID, perception, mode.ActivePersonas())
		if err != nil {
			o.logger.Warn("emotion state not persisted", zap.String("conversation_id", conversationID), zap.Error(err))
		}
		tc.state = state
		return nil
	})
	g.Go(func() error {
		tc.facts = o.memory.Recall(ctx, conversationID).Text
		return nil
	})
	_ = g.Wait()
	tc.recall = o.vectors.Recall(ctx, perception, conversationID, recallLimit)

	replies, err := o.route(ctx, tc)
	if err != nil {
		return nil, err
	}
	replies, restart := o.stripRestart(replies)

	now := o.now()
	entries := make([]models.HistoryEntry, 0, len(tc.history)+1+len(replies))
	entries = append(entries, tc.history...)
	entries = append(entries, models.HistoryEntry{
		Role:      models.RoleUser,
		Content:   perception,
		Timestamp: now,
		Meta:      models.EntryMeta{Target: mode},
	})
	entries = appendReplies(entries, replies, now)
	if err := o.history.SaveHistory(ctx, conversationID, models.TrimHistory(entries, o.cfg.HistoryCap)); err != nil {
		o.logger.Warn("history not saved", zap.String("conversation_id", conversationID), zap.Error(err))
	}

	joined := joinReplies(replies)
	o.background(ctx, "memorize", func(ctx context.Context) error {
		_, err := o.memory.Memorize(ctx, conversationID, perception, joined, mode)
		return err
	})
	o.background(ctx, "record_interaction", func(ctx context.Context) error {
		_, err := o.ltm.RecordInteraction(ctx, conversationID, perception, joined)
		return err
	})

	return &TurnResult{
		ConversationID: conversationID,
		Mode:           mode,
		Messages:       messagesOf(replies),
		Replies:        replies,
		Emotion:        core.NewSnapshot(tc.state),
		ShouldRestart:  restart,
	}, nil
}

// route dispatches on the turn's mode
func (o *Orchestrator) route(ctx context.Context, tc *turnContext) ([]models.Reply, error) {
	switch {
	case tc.mode.IsGroup():
		return o.orchestrateGroup(ctx, tc)
	case tc.mode.IsReactive():
		primary := tc.mode.Primary()
		answer, err := o.speak(ctx, tc, primary, nil, "")
		if err != nil {
			return nil, err
		}
		replies := []models.Reply{{Speaker: primary, Content: answer}}
		if reaction := o.react(ctx, tc, tc.mode.Reactor(), replies); reaction != "" {
			replies = append(replies, models.Reply{Speaker: tc.mode.Reactor(), Content: reaction})
		}
		return replies, nil
	default:
		persona := tc.mode.Primary()
		answer, err := o.speak(ctx, tc, persona, nil, "")
		if err != nil {
			return nil, err
		}
		return []models.Reply{{Speaker: persona, Content: answer}}, nil
	}
}

// speak runs persona through the tool loop
func (o *Orchestrator) speak(ctx context.Context, tc *turnContext, persona models.Persona, transcript []models.Reply, instruction string) (string, error) {
	msgs := o.hydrator.Messages(o.scene(tc, persona, transcript, instruction), tc.text, tc.images)
	res, err := o.loop.Run(ctx, tc.conversationID, persona, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// react is a single tool-free call; any failure yields silence
func (o *Orchestrator) react(ctx context.Context, tc *turnContext, reactor models.Persona, transcript []models.Reply) string {
	instruction := fmt.Sprintf("React to what the %s just said in one or two short sentences. Do not repeat their answer.", transcript[len(transcript)-1].Speaker)
	msgs := o.hydrator.Messages(o.scene(tc, reactor, transcript, instruction), tc.text, tc.images)

	reaction, err := llm.CompleteText(ctx, o.client, o.cfg.ChatModel, 0.9, msgs...)
	if err != nil {
		o.metrics.RecordModelCall("reaction", metrics.StatusError)
		o.logger.Warn("reaction failed, staying silent",
			zap.String("conversation_id", tc.conversationID),
			zap.String("persona", string(reactor)),
			zap.Error(err))
		return ""
	}
	o.metrics.RecordModelCall("reaction", metrics.StatusOK)
	return reaction
}

// orchestrateGroup plans the speakers and runs them in order, each seeing
// what the earlier ones said in this turn
func (o *Orchestrator) orchestrateGroup(ctx context.Context, tc *turnContext) ([]models.Reply, error) {
	req := PlanRequest{
		SelfTriggered: tc.selfTriggered,
		UserText:      tc.text,
		Topic:         tc.topic,
		State:         *tc.state,
	}
	if !tc.selfTriggered {
		req.History = core.FormatHistory(tail(tc.history, directorHistory))
		req.Facts = tc.facts
	}
	plan := o.director.Plan(ctx, req)

	chain := make([]models.Reply, 0, len(plan))
	for _, speaker := range plan {
		instruction := "Speak only as yourself. If someone already spoke this turn, respond to them as well as the user."
		text, err := o.speak(ctx, tc, speaker, chain, instruction)
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			o.logger.Warn("group speaker failed, ending plan early",
				zap.String("persona", string(speaker)), zap.Error(err))
			break
		}
		chain = append(chain, models.Reply{Speaker: speaker, Content: text})
	}
	return chain, nil
}

func (o *Orchestrator) scene(tc *turnContext, persona models.Persona, transcript []models.Reply, instruction string) core.Scene {
	return core.Scene{
		Persona:     persona,
		Mode:        tc.mode,
		Emotion:     tc.state.For(persona),
		Facts:       tc.facts,
		Recall:      tc.recall,
		History:     tc.history,
		Transcript:  transcript,
		Instruction: instruction,
	}
}

// HandleImpulse consumes one scheduler event. A busy brain drops it.
func (o *Orchestrator) HandleImpulse(ctx context.Context, imp models.Impulse) (outcome ImpulseOutcome, err error) {
	if !o.mu.TryLock() {
		o.metrics.RecordBusy("impulse")
		o.metrics.RecordImpulse(string(imp.Type), string(OutcomeDropped))
		return OutcomeDropped, nil
	}
	defer o.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			outcome = OutcomeFailed
			o.logger.Error("impulse failed", zap.String("impulse", string(imp.Type)), zap.Error(err))
		}
		o.metrics.RecordImpulse(string(imp.Type), string(outcome))
	}()

	if imp.Type == models.TriggerSelfReflection {
		if o.reflector == nil {
			return OutcomeSkipped, nil
		}
		if _, err := o.reflector.Reflect(ctx); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeReflected, nil
	}
	return o.idleCheck(ctx)
}

func (o *Orchestrator) idleCheck(ctx context.Context) (ImpulseOutcome, error) {
	if o.idle == nil {
		return OutcomeSkipped, nil
	}
	conversationID, last, ok := o.idle.Select(ctx)
	if !ok {
		return OutcomeSkipped, nil
	}
	idleFor := o.now().Sub(last)
	if idleFor <= o.cfg.IdleAfter {
		return OutcomeSkipped, nil
	}
	if o.rng.Float64() <= o.cfg.IdleProbabilityThreshold {
		return OutcomeSkipped, nil
	}

	if err := o.backgroundChat(ctx, conversationID, idleFor); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeIdleChat, nil
}

// backgroundChat runs a self-triggered group turn. It does not perceive, so
// last_user_activity is left alone.
func (o *Orchestrator) backgroundChat(ctx context.Context, conversationID string, idleFor time.Duration) error {
	snap, err := o.emotions.GetState(ctx, conversationID)
	if err != nil {
		o.logger.Warn("emotion state unavailable for idle chat", zap.Error(err))
	}
	topic := idleTopics[o.rng.IntN(len(idleTopics))]

	tc := &turnContext{
		conversationID: conversationID,
		mode:           models.ModeGroup,
		text: fmt.Sprintf("(The user has been quiet for %d minutes. Start chatting between yourselves about %s.)",
			int(idleFor.Minutes()), topic),
		history:       o.history.GetHistory(ctx, conversationID),
		state:         &snap.State,
		facts:         o.memory.Recall(ctx, conversationID).Text,
		selfTriggered: true,
		topic:         topic,
	}

	replies, err := o.orchestrateGroup(ctx, tc)
	if err != nil {
		return err
	}
	replies, _ = o.stripRestart(replies)
	if len(replies) == 0 {
		return nil
	}

	entries := appendReplies(append([]models.HistoryEntry(nil), tc.history...), replies, o.now())
	if err := o.history.SaveHistory(ctx, conversationID, models.TrimHistory(entries, o.cfg.HistoryCap)); err != nil {
		o.logger.Warn("history not saved", zap.String("conversation_id", conversationID), zap.Error(err))
	}

	o.logger.Info("idle chat delivered",
		zap.String("conversation_id", conversationID),
		zap.String("topic", topic),
		zap.Int("replies", len(replies)))
	if o.outbox != nil {
		o.outbox(ctx, conversationID, replies)
	}
	return nil
}

// Run consumes impulses until ctx is done or the channel closes
func (o *Orchestrator) Run(ctx context.Context, impulses <-chan models.Impulse) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case imp, ok := <-impulses:
			if !ok {
				return nil
			}
			outcome, err := o.HandleImpulse(ctx, imp)
			o.logger.Debug("impulse handled",
				zap.String("impulse", string(imp.Type)),
				zap.String("outcome", string(outcome)),
				zap.Error(err))
		}
	}
}

// Shutdown stops accepting background work and waits for in-flight tasks
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.tasks.Close(ctx)
}

func (o *Orchestrator) background(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if err := o.tasks.Go(ctx, name, fn); err != nil {
		o.logger.Warn("background task not started", zap.String("task", name), zap.Error(err))
	}
}

// stripRestart removes the restart marker from replies and reports whether it was present
func (o *Orchestrator) stripRestart(replies []models.Reply) ([]models.Reply, bool) {
	marker := o.cfg.RestartMarker
	if marker == "" {
		return replies, false
	}
	found := false
	for i := range replies {
		if strings.Contains(replies[i].Content, marker) {
			found = true
			replies[i].Content = strings.TrimSpace(strings.ReplaceAll(replies[i].Content, marker, ""))
		}
	}
	return replies, found
}

func appendReplies(entries []models.HistoryEntry, replies []models.Reply, now time.Time) []models.HistoryEntry {
	for _, r := range replies {
		entries = append(entries, models.HistoryEntry{
			Role:      models.RoleAssistant,
			Content:   r.Content,
			Timestamp: now,
			Meta:      models.EntryMeta{Speaker: r.Speaker},
		})
	}
	return entries
}

func joinReplies(replies []models.Reply) string {
	parts := make([]string, 0, len(replies))
	for _, r := range replies {
		parts = append(parts, r.Speaker.Signature()+" "+r.Content)
	}
	return strings.Join(parts, "\n")
}

func messagesOf(replies []models.Reply) []string {
	out := make([]string, 0, len(replies))
	for _, r := range replies {
		out = append(out, r.Content)
	}
	return out
}

func tail(entries []models.HistoryEntry, n int) []models.HistoryEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
