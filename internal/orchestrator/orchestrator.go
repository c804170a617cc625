// Package orchestrator runs the message pipeline: load history, retrieve
// grounding examples, assemble the prompt, generate a reply, persist both
// turns, and record stage completion when the reply signals it.
package orchestrator

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nalahealth/coach/internal/events"
	"github.com/nalahealth/coach/internal/logging"
	"github.com/nalahealth/coach/internal/metrics"
	"github.com/nalahealth/coach/internal/progress"
	"github.com/nalahealth/coach/internal/prompt"
	"github.com/nalahealth/coach/internal/provider"
	"github.com/nalahealth/coach/internal/retrieval"
	"github.com/nalahealth/coach/internal/telemetry"
	"github.com/nalahealth/coach/pkg/models"
)

const (
	// StartSentinel requests the opening greeting for a stage instead of
	// replying to organic user text.
	StartSentinel = "[START_SESSION]"

	// CompletionMarker is appended by the model when the stage's goals are
	// met. It is stripped before the reply is persisted or returned.
	CompletionMarker = "[SESSION_COMPLETE]"

	greetingInstruction = "The participant is opening a new coaching session for this stage. Greet them warmly, briefly frame what this stage is about, and invite them to share where they are right now."
)

// ConversationStore is the persistence surface the orchestrator needs.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetHistory(ctx context.Context, conversationID string, limit int) ([]models.Turn, error)
	AppendExchange(ctx context.Context, conversationID string, userTurn, assistantTurn *models.Turn, title string) error
}

// Generator produces a reply for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, system string, messages []models.ChatMessage, providerHint string) (*provider.Reply, error)
}

// Publisher emits lifecycle events. It may be nil when no bus is configured.
type Publisher interface {
	PublishTurnPersisted(event *events.TurnPersisted) error
	PublishStageCompleted(event *events.StageCompleted) error
}

// Request is one inbound user message.
type Request struct {
	Message        string
	UserID         string
	StageNumber    int
	ConversationID string
	ProviderHint   string
}

// Metadata describes how a reply was produced.
type Metadata struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	SourceCount int    `json:"source_count"`
}

// Response is the outcome of one handled message.
type Response struct {
	Response       string   `json:"response"`
	ConversationID string   `json:"conversation_id"`
	StageComplete  bool     `json:"stage_complete"`
	Metadata       Metadata `json:"metadata"`
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	store         ConversationStore
	index         retrieval.Index
	assembler     *prompt.Assembler
	gateway       Generator
	tracker       *progress.Tracker
	publisher     Publisher
	metrics       *metrics.Metrics
	logs          *logging.Manager
	historyWindow int
	topK          int
	minSimilarity float64
	isNotFound    func(error) bool

	newID func() string
	now   func() time.Time
}

// Options configures a new Orchestrator.
type Options struct {
	Store         ConversationStore
	Index         retrieval.Index
	Assembler     *prompt.Assembler
	Gateway       Generator
	Tracker       *progress.Tracker
	Publisher     Publisher
	Metrics       *metrics.Metrics
	Logs          *logging.Manager
	HistoryWindow int
	TopK          int
	MinSimilarity float64

	// IsNotFound reports whether a store error means "no such row".
	IsNotFound func(error) bool
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.IsNotFound == nil {
		opts.IsNotFound = func(error) bool { return false }
	}
	return &Orchestrator{
		store:         opts.Store,
		index:         opts.Index,
		assembler:     opts.Assembler,
		gateway:       opts.Gateway,
		tracker:       opts.Tracker,
		publisher:     opts.Publisher,
		metrics:       opts.Metrics,
		logs:          opts.Logs,
		historyWindow: opts.HistoryWindow,
		topK:          opts.TopK,
		minSimilarity: opts.MinSimilarity,
		isNotFound:    opts.IsNotFound,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// HandleMessage runs the full pipeline for one user message.
func (o *Orchestrator) HandleMessage(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "coach.handle_message")
	defer span.End()

	start := time.Now()
	resp, err := o.handle(ctx, req)

	stage := req.StageNumber
	if stage == 0 {
		stage = 1
	}
	outcome := "ok"
	if err != nil {
		span.RecordError(err)
		outcome = strings.ToLower(string(CodeOf(err)))
		if outcome == "" {
			outcome = "error"
		}
	}
	if o.metrics != nil {
		label := strconv.Itoa(stage)
		o.metrics.MessagesTotal.WithLabelValues(label, outcome).Inc()
		o.metrics.MessageDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func (o *Orchestrator) handle(ctx context.Context, req *Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, newError(CodeInvalidInput, "message must not be empty", nil)
	}

	stage := req.StageNumber
	if stage == 0 {
		stage = 1
	}
	if stage < 1 || stage > o.tracker.StageCount() {
		return nil, newError(CodeInvalidStage, "stage number outside the program", progress.ErrInvalidStage)
	}

	conv, err := o.ensureConversation(ctx, req, stage)
	if err != nil {
		return nil, err
	}

	if message == StartSentinel {
		return o.handleSessionStart(ctx, conv, req.ProviderHint)
	}

	history, err := o.store.GetHistory(ctx, conv.ID, o.historyWindow)
	if err != nil {
		return nil, newError(CodePersistenceFailed, "failed to load history", err)
	}

	examples := o.retrieve(ctx, message)

	system := o.assembler.BuildSystemPrompt(examples)
	messages := o.assembler.BuildMessages(history, message)

	reply, err := o.generate(ctx, system, messages, req.ProviderHint)
	if err != nil {
		return nil, newError(CodeGenerationFailed, "completion provider failed", err)
	}

	replyText, stageComplete := detectCompletion(reply.Text)

	now := o.now().UTC()
	userTurn := &models.Turn{
		ID:             o.newID(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        message,
		CreatedAt:      now,
	}
	assistantTurn := &models.Turn{
		ID:             o.newID(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        replyText,
		Metadata: map[string]interface{}{
			"provider":     string(reply.Provider),
			"model":        reply.Model,
			"source_count": len(examples),
		},
		CreatedAt: now.Add(time.Millisecond),
	}

	title := models.TitleFromMessage(message)
	if err := o.persistExchange(ctx, conv.ID, userTurn, assistantTurn, title); err != nil {
		return nil, newError(CodePersistenceFailed, "failed to persist exchange", err)
	}
	o.publishTurnPersisted(conv, reply, len(examples))

	// Completion is only recorded after the exchange has committed, so a
	// crash between generation and completion never loses the reply.
	if stageComplete {
		o.markStageComplete(ctx, conv.UserID, conv.StageNumber)
	}

	return &Response{
		Response:       replyText,
		ConversationID: conv.ID,
		StageComplete:  stageComplete,
		Metadata: Metadata{
			Provider:    string(reply.Provider),
			Model:       reply.Model,
			SourceCount: len(examples),
		},
	}, nil
}

// ensureConversation loads the referenced conversation or creates one when
// no identifier was supplied.
func (o *Orchestrator) ensureConversation(ctx context.Context, req *Request, stage int) (*models.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := o.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			if o.isNotFound(err) {
				return nil, newError(CodeNotFound, "conversation not found", err)
			}
			return nil, newError(CodePersistenceFailed, "failed to load conversation", err)
		}
		return conv, nil
	}

	conv := models.NewConversation(o.newID(), req.UserID, stage, o.now().UTC())
	if err := o.store.CreateConversation(ctx, conv); err != nil {
		return nil, newError(CodePersistenceFailed, "failed to create conversation", err)
	}
	return conv, nil
}

// handleSessionStart produces the stage's opening greeting. No retrieval is
// performed and only the assistant turn is persisted.
func (o *Orchestrator) handleSessionStart(ctx context.Context, conv *models.Conversation, providerHint string) (*Response, error) {
	system := o.assembler.BuildSystemPrompt(nil)
	messages := []models.ChatMessage{{Role: string(models.RoleUser), Content: greetingInstruction}}

	reply, err := o.generate(ctx, system, messages, providerHint)
	if err != nil {
		return nil, newError(CodeGenerationFailed, "completion provider failed", err)
	}

	replyText, _ := detectCompletion(reply.Text)
	assistantTurn := &models.Turn{
		ID:             o.newID(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        replyText,
		Metadata: map[string]interface{}{
			"provider": string(reply.Provider),
			"model":    reply.Model,
			"greeting": true,
		},
		CreatedAt: o.now().UTC(),
	}

	if err := o.persistExchange(ctx, conv.ID, nil, assistantTurn, ""); err != nil {
		return nil, newError(CodePersistenceFailed, "failed to persist greeting", err)
	}
	o.publishTurnPersisted(conv, reply, 0)

	return &Response{
		Response:       replyText,
		ConversationID: conv.ID,
		Metadata: Metadata{
			Provider:    string(reply.Provider),
			Model:       reply.Model,
			SourceCount: 0,
		},
	}, nil
}

// retrieve fetches grounding examples for the message. Retrieval failures
// degrade to an empty result set: grounding improves quality but is not
// required for correctness.
func (o *Orchestrator) retrieve(ctx context.Context, message string) []models.RetrievedExample {
	ctx, span := telemetry.Tracer.Start(ctx, "coach.retrieve")
	defer span.End()

	if o.metrics != nil {
		o.metrics.RetrievalRequests.Inc()
	}
	examples, err := o.index.Retrieve(ctx, message, o.topK, o.minSimilarity)
	if err != nil {
		span.RecordError(err)
		o.logWarn("retrieval unavailable, generating ungrounded", map[string]interface{}{"error": err.Error()})
		if o.metrics != nil {
			o.metrics.RetrievalFailures.Inc()
		}
		return nil
	}
	if o.metrics != nil {
		o.metrics.RetrievedExamples.Observe(float64(len(examples)))
	}
	return examples
}

// generate calls the completion gateway inside its own span.
func (o *Orchestrator) generate(ctx context.Context, system string, messages []models.ChatMessage, providerHint string) (*provider.Reply, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "coach.generate")
	defer span.End()

	reply, err := o.gateway.Generate(ctx, system, messages, providerHint)
	if err != nil {
		span.RecordError(err)
	}
	return reply, err
}

// persistExchange commits the turns inside its own span.
func (o *Orchestrator) persistExchange(ctx context.Context, conversationID string, userTurn, assistantTurn *models.Turn, title string) error {
	ctx, span := telemetry.Tracer.Start(ctx, "coach.persist")
	defer span.End()

	err := o.store.AppendExchange(ctx, conversationID, userTurn, assistantTurn, title)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// markStageComplete records the completion transition. Failures here are
// logged, not surfaced: the reply is already persisted and the mark-complete
// interface can be called independently for recovery.
func (o *Orchestrator) markStageComplete(ctx context.Context, userID string, stage int) {
	completed, next, err := o.tracker.MarkComplete(ctx, userID, stage)
	if err != nil {
		o.logError("failed to mark stage complete", map[string]interface{}{
			"user_id":      userID,
			"stage_number": stage,
			"error":        err.Error(),
		})
		return
	}
	if o.metrics != nil {
		o.metrics.StageCompletions.WithLabelValues(strconv.Itoa(stage)).Inc()
	}
	if o.publisher != nil && completed.CompletedAt != nil {
		event := &events.StageCompleted{
			UserID:      userID,
			StageNumber: stage,
			CompletedAt: *completed.CompletedAt,
		}
		if next != nil {
			event.NextStage = next.StageNumber
			event.NextUnlockAt = next.UnlockedAt
		}
		if err := o.publisher.PublishStageCompleted(event); err != nil {
			o.logWarn("failed to publish stage completion event", map[string]interface{}{
				"user_id":      userID,
				"stage_number": stage,
				"error":        err.Error(),
			})
		} else if o.metrics != nil {
			o.metrics.EventsPublished.WithLabelValues("stage_completed").Inc()
		}
	}
}

func (o *Orchestrator) publishTurnPersisted(conv *models.Conversation, reply *provider.Reply, sourceCount int) {
	if o.publisher == nil {
		return
	}
	err := o.publisher.PublishTurnPersisted(&events.TurnPersisted{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		StageNumber:    conv.StageNumber,
		Provider:       string(reply.Provider),
		Model:          reply.Model,
		SourceCount:    sourceCount,
		Timestamp:      o.now().UTC(),
	})
	if err != nil {
		o.logWarn("failed to publish turn event", map[string]interface{}{
			"conversation_id": conv.ID,
			"error":           err.Error(),
		})
		return
	}
	if o.metrics != nil {
		o.metrics.EventsPublished.WithLabelValues("turn_persisted").Inc()
	}
}

// logWarn and logError route through the log manager when one is wired so
// degradations show up on the logs endpoint; otherwise they fall back to
// the process log.
func (o *Orchestrator) logWarn(message string, metadata map[string]interface{}) {
	if o.logs != nil {
		o.logs.Warn("orchestrator", message, metadata)
		return
	}
	log.Printf("[Orchestrator] %s: %v", message, metadata)
}

func (o *Orchestrator) logError(message string, metadata map[string]interface{}) {
	if o.logs != nil {
		o.logs.Error("orchestrator", message, metadata)
		return
	}
	log.Printf("[Orchestrator] %s: %v", message, metadata)
}

// detectCompletion strips the completion marker from a reply and reports
// whether it was present.
func detectCompletion(text string) (string, bool) {
	if !strings.Contains(text, CompletionMarker) {
		return strings.TrimSpace(text), false
	}
	cleaned := strings.ReplaceAll(text, CompletionMarker, "")
	return strings.TrimSpace(cleaned), true
}
