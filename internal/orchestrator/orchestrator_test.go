package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nalahealth/coach/internal/events"
	"github.com/nalahealth/coach/internal/logging"
	"github.com/nalahealth/coach/internal/metrics"
	"github.com/nalahealth/coach/internal/progress"
	"github.com/nalahealth/coach/internal/prompt"
	"github.com/nalahealth/coach/internal/provider"
	"github.com/nalahealth/coach/pkg/models"
)

var errMissing = errors.New("missing")

// fakeStore is an in-memory ConversationStore.
type fakeStore struct {
	conversations map[string]*models.Conversation
	turns         map[string][]models.Turn
	failAppend    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*models.Conversation),
		turns:         make(map[string][]models.Turn),
	}
}

func (s *fakeStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	clone := *conv
	s.conversations[conv.ID] = &clone
	return nil
}

func (s *fakeStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, errMissing)
	}
	clone := *conv
	return &clone, nil
}

func (s *fakeStore) GetHistory(_ context.Context, conversationID string, limit int) ([]models.Turn, error) {
	turns := s.turns[conversationID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]models.Turn(nil), turns...), nil
}

func (s *fakeStore) AppendExchange(_ context.Context, conversationID string, userTurn, assistantTurn *models.Turn, title string) error {
	if s.failAppend != nil {
		return s.failAppend
	}
	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, errMissing)
	}
	for _, turn := range []*models.Turn{userTurn, assistantTurn} {
		if turn == nil {
			continue
		}
		s.turns[conversationID] = append(s.turns[conversationID], *turn)
		conv.TurnCount++
	}
	if conv.Title == "" && title != "" {
		conv.Title = title
	}
	return nil
}

// fakeProgressStore backs a real progress.Tracker.
type fakeProgressStore struct {
	records map[string]map[int]*models.StageProgress
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{records: make(map[string]map[int]*models.StageProgress)}
}

func (s *fakeProgressStore) GetStageProgress(_ context.Context, userID string, stage int) (*models.StageProgress, error) {
	if record, ok := s.records[userID][stage]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, errMissing
}

func (s *fakeProgressStore) ListStageProgress(_ context.Context, userID string) ([]*models.StageProgress, error) {
	var out []*models.StageProgress
	for stage := 1; stage <= 8; stage++ {
		if record, ok := s.records[userID][stage]; ok {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *fakeProgressStore) UpsertStageProgress(_ context.Context, record *models.StageProgress) error {
	if s.records[record.UserID] == nil {
		s.records[record.UserID] = make(map[int]*models.StageProgress)
	}
	clone := *record
	s.records[record.UserID][record.StageNumber] = &clone
	return nil
}

// fakeIndex returns canned retrieval results.
type fakeIndex struct {
	results []models.RetrievedExample
	err     error
}

func (f *fakeIndex) Retrieve(_ context.Context, _ string, _ int, _ float64) ([]models.RetrievedExample, error) {
	return f.results, f.err
}

// fakeGateway returns canned replies.
type fakeGateway struct {
	reply *provider.Reply
	err   error
}

func (f *fakeGateway) Generate(_ context.Context, _ string, _ []models.ChatMessage, _ string) (*provider.Reply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

type fixture struct {
	orch    *Orchestrator
	store   *fakeStore
	tracker *progress.Tracker
	clock   *time.Time
}

func newFixture(index *fakeIndex, gateway *fakeGateway) *fixture {
	store := newFakeStore()
	isNotFound := func(err error) bool { return errors.Is(err, errMissing) }
	tracker := progress.NewTracker(newFakeProgressStore(), 4, 7*24*time.Hour, isNotFound)

	orch := New(Options{
		Store:         store,
		Index:         index,
		Assembler:     prompt.NewAssembler(10),
		Gateway:       gateway,
		Tracker:       tracker,
		Metrics:       metrics.NewMetrics(),
		HistoryWindow: 10,
		TopK:          3,
		MinSimilarity: 0.4,
		IsNotFound:    isNotFound,
	})

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	orch.now = func() time.Time { return clock }
	return &fixture{orch: orch, store: store, tracker: tracker, clock: &clock}
}

func TestSessionStartCreatesConversationWithGreeting(t *testing.T) {
	gateway := &fakeGateway{reply: &provider.Reply{
		Text:     "Welcome! Let's talk about what brought you here.",
		Provider: provider.NameAnthropic,
		Model:    "claude-sonnet-4",
	}}
	f := newFixture(&fakeIndex{}, gateway)
	ctx := context.Background()

	resp, err := f.orch.HandleMessage(ctx, &Request{Message: StartSentinel, UserID: "u1", StageNumber: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "Welcome! Let's talk about what brought you here.", resp.Response)
	assert.False(t, resp.StageComplete)
	assert.Equal(t, 0, resp.Metadata.SourceCount)

	// Only the assistant greeting is persisted.
	turns := f.store.turns[resp.ConversationID]
	require.Len(t, turns, 1)
	assert.Equal(t, models.RoleAssistant, turns[0].Role)
	assert.Equal(t, 1, f.store.conversations[resp.ConversationID].TurnCount)

	unlocked, err := f.tracker.IsUnlocked(ctx, "u1", 1)
	require.NoError(t, err)
	assert.True(t, unlocked)
	unlocked, err = f.tracker.IsUnlocked(ctx, "u1", 2)
	require.NoError(t, err)
	assert.False(t, unlocked)
}

func TestCompletionMarkerTriggersStageTransition(t *testing.T) {
	gateway := &fakeGateway{reply: &provider.Reply{
		Text:     "You have done great work this session. " + CompletionMarker,
		Provider: provider.NameAnthropic,
		Model:    "claude-sonnet-4",
	}}
	f := newFixture(&fakeIndex{}, gateway)
	ctx := context.Background()

	resp, err := f.orch.HandleMessage(ctx, &Request{Message: "I feel ready to move on", UserID: "u1", StageNumber: 1})
	require.NoError(t, err)
	assert.True(t, resp.StageComplete)
	assert.Equal(t, "You have done great work this session.", resp.Response, "marker is stripped")

	// Persisted reply does not carry the marker either.
	turns := f.store.turns[resp.ConversationID]
	require.Len(t, turns, 2)
	assert.NotContains(t, turns[1].Content, CompletionMarker)

	completed, err := f.tracker.IsCompleted(ctx, "u1", 1)
	require.NoError(t, err)
	assert.True(t, completed)

	// Stage 2 stays locked until the delay elapses.
	unlocked, err := f.tracker.IsUnlocked(ctx, "u1", 2)
	require.NoError(t, err)
	assert.False(t, unlocked)

	*f.clock = f.clock.Add(7*24*time.Hour + time.Minute)
	unlocked, err = f.tracker.IsUnlocked(ctx, "u1", 2)
	require.NoError(t, err)
	assert.True(t, unlocked)
}

func TestEmptyRetrievalStillProducesReply(t *testing.T) {
	gateway := &fakeGateway{reply: &provider.Reply{Text: "Tell me more.", Provider: provider.NameOpenAI, Model: "gpt-4o-mini"}}
	f := newFixture(&fakeIndex{results: nil}, gateway)

	resp, err := f.orch.HandleMessage(context.Background(), &Request{Message: "hello", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Tell me more.", resp.Response)
	assert.Equal(t, 0, resp.Metadata.SourceCount)
}

func TestRetrievalFailureDegradesGracefully(t *testing.T) {
	gateway := &fakeGateway{reply: &provider.Reply{Text: "Still here for you.", Provider: provider.NameAnthropic, Model: "claude-sonnet-4"}}
	f := newFixture(&fakeIndex{err: errors.New("index unreachable")}, gateway)

	resp, err := f.orch.HandleMessage(context.Background(), &Request{Message: "rough week", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Metadata.SourceCount)
}

func TestGenerationFailureLeavesTurnCountUnchanged(t *testing.T) {
	gateway := &fakeGateway{err: &provider.GenerationError{Provider: provider.NameAnthropic, Err: errors.New("boom")}}
	f := newFixture(&fakeIndex{}, gateway)
	ctx := context.Background()

	// Seed an existing conversation with history.
	conv := models.NewConversation("c1", "u1", 1, time.Now().UTC())
	require.NoError(t, f.store.CreateConversation(ctx, conv))

	_, err := f.orch.HandleMessage(ctx, &Request{Message: "hello", UserID: "u1", ConversationID: "c1"})
	require.Error(t, err)
	assert.Equal(t, CodeGenerationFailed, CodeOf(err))
	assert.Equal(t, 0, f.store.conversations["c1"].TurnCount)
	assert.Empty(t, f.store.turns["c1"])
}

func TestPersistenceFailureSurfaced(t *testing.T) {
	gateway := &fakeGateway{reply: &provider.Reply{Text: "ok", Provider: provider.NameAnthropic, Model: "m"}}
	f := newFixture(&fakeIndex{}, gateway)
	f.store.failAppend = errors.New("disk full")

	_, err := f.orch.HandleMessage(context.Background(), &Request{Message: "hello", UserID: "u1"})
	require.Error(t, err)
	assert.Equal(t, CodePersistenceFailed, CodeOf(err))
}

func TestInvalidStageRejected(t *testing.T) {
	gateway := &fakeGateway{reply: &provider.Reply{Text: "ok", Provider: provider.NameAnthropic, Model: "m"}}
	f := newFixture(&fakeIndex{}, gateway)

	for _, stage := range []int{-1, 5, 42} {
		_, err := f.orch.HandleMessage(context.Background(), &Request{Message: "hi", StageNumber: stage})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidStage, CodeOf(err), "stage %d", stage)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	f := newFixture(&fakeIndex{}, &fakeGateway{})

	_, err := f.orch.HandleMessage(context.Background(), &Request{Message: "   "})
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
}

func TestUnknownConversationRejected(t *testing.T) {
	f := newFixture(&fakeIndex{}, &fakeGateway{reply: &provider.Reply{Text: "ok"}})

	_, err := f.orch.HandleMessage(context.Background(), &Request{Message: "hi", ConversationID: "nope"})
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestTitleSetFromFirstUserMessage(t *testing.T) {
	gateway := &fakeGateway{reply: &provider.Reply{Text: "Welcome.", Provider: provider.NameAnthropic, Model: "m"}}
	f := newFixture(&fakeIndex{}, gateway)

	resp, err := f.orch.HandleMessage(context.Background(), &Request{Message: "I want to sleep better", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "I want to sleep better", f.store.conversations[resp.ConversationID].Title)
}

// fakePublisher records published events.
type fakePublisher struct {
	turnEvents  []*events.TurnPersisted
	stageEvents []*events.StageCompleted
}

func (p *fakePublisher) PublishTurnPersisted(event *events.TurnPersisted) error {
	p.turnEvents = append(p.turnEvents, event)
	return nil
}

func (p *fakePublisher) PublishStageCompleted(event *events.StageCompleted) error {
	p.stageEvents = append(p.stageEvents, event)
	return nil
}

func TestMessageMetricsRecorded(t *testing.T) {
	m := metrics.NewMetrics()
	handled := m.MessagesTotal.WithLabelValues("1", "ok")
	failed := m.MessagesTotal.WithLabelValues("1", "generation_failed")
	handledBefore := testutil.ToFloat64(handled)
	failedBefore := testutil.ToFloat64(failed)

	gateway := &fakeGateway{reply: &provider.Reply{Text: "ok", Provider: provider.NameAnthropic, Model: "m"}}
	f := newFixture(&fakeIndex{}, gateway)

	_, err := f.orch.HandleMessage(context.Background(), &Request{Message: "hello", UserID: "u1", StageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(handled)-handledBefore)

	gateway.err = errors.New("provider down")
	_, err = f.orch.HandleMessage(context.Background(), &Request{Message: "hello again", UserID: "u1", StageNumber: 1})
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(failed)-failedBefore)
}

func TestEventsPublishedForPersistAndCompletion(t *testing.T) {
	m := metrics.NewMetrics()
	turnEvents := m.EventsPublished.WithLabelValues("turn_persisted")
	stageEvents := m.EventsPublished.WithLabelValues("stage_completed")
	turnBefore := testutil.ToFloat64(turnEvents)
	stageBefore := testutil.ToFloat64(stageEvents)

	gateway := &fakeGateway{reply: &provider.Reply{
		Text:     "Well done. " + CompletionMarker,
		Provider: provider.NameAnthropic,
		Model:    "m",
	}}
	f := newFixture(&fakeIndex{}, gateway)
	pub := &fakePublisher{}
	f.orch.publisher = pub

	_, err := f.orch.HandleMessage(context.Background(), &Request{Message: "I am ready", UserID: "u1", StageNumber: 1})
	require.NoError(t, err)

	require.Len(t, pub.turnEvents, 1)
	require.Len(t, pub.stageEvents, 1)
	assert.Equal(t, 2, pub.stageEvents[0].NextStage)
	assert.Equal(t, float64(1), testutil.ToFloat64(turnEvents)-turnBefore)
	assert.Equal(t, float64(1), testutil.ToFloat64(stageEvents)-stageBefore)
}

func TestRetrievalFailureReachesLogManager(t *testing.T) {
	logs := logging.NewManager(nil)
	gateway := &fakeGateway{reply: &provider.Reply{Text: "ok", Provider: provider.NameAnthropic, Model: "m"}}
	f := newFixture(&fakeIndex{err: errors.New("vector index down")}, gateway)
	f.orch.logs = logs

	_, err := f.orch.HandleMessage(context.Background(), &Request{Message: "hello", UserID: "u1", StageNumber: 1})
	require.NoError(t, err)

	entries := logs.GetRecent(10, logging.LogLevelWarn, "orchestrator", time.Time{}, time.Time{})
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0].Message, "retrieval unavailable")
}

func TestDetectCompletion(t *testing.T) {
	text, done := detectCompletion("Great progress today! " + CompletionMarker)
	assert.True(t, done)
	assert.Equal(t, "Great progress today!", text)

	text, done = detectCompletion("Keep going.")
	assert.False(t, done)
	assert.Equal(t, "Keep going.", text)
}
