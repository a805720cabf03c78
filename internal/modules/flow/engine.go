package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/careline-backend/internal/config"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/modules/consent"
	"github.com/yungbote/careline-backend/internal/modules/contact"
	"github.com/yungbote/careline-backend/internal/modules/crisis"
	"github.com/yungbote/careline-backend/internal/modules/escalation"
	"github.com/yungbote/careline-backend/internal/modules/statestore"
	"github.com/yungbote/careline-backend/internal/observability"
	pkgerrors "github.com/yungbote/careline-backend/internal/pkg/errors"
	"github.com/yungbote/careline-backend/internal/platform/envutil"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

// Context keys owned by the engine.
const (
	ctxEscalationID       = "escalation_id"
	ctxPendingAssessment  = "pending_assessment"
	ctxCrisisCount        = "crisis_count"
	ctxVulnerabilityFlags = "vulnerability_flags"
	ctxLastCrisisCategory = "last_crisis_category"
	ctxContactsCollected  = "contacts_collected"
	ctxFollowUpRequired   = "follow_up_required"
)

type Config struct {
	SearchTimeout     time.Duration
	CompletionTimeout time.Duration
	// CollectEmail adds email to the chat callback dialogue.
	CollectEmail bool
}

func ConfigFromEnv() Config {
	return Config{
		SearchTimeout:     envutil.Duration("FLOW_SEARCH_TIMEOUT", 5*time.Second),
		CompletionTimeout: envutil.Duration("FLOW_COMPLETION_TIMEOUT", 15*time.Second),
		CollectEmail:      envutil.Bool("FLOW_COLLECT_EMAIL", false),
	}
}

type TurnInput struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type StateView struct {
	Topic        types.Topic `json:"topic"`
	Stage        string      `json:"stage"`
	MessageCount int64       `json:"messageCount"`
}

type TopicTransition struct {
	From   types.Topic `json:"from"`
	To     types.Topic `json:"to"`
	Reason string      `json:"reason"`
}

type TurnOutput struct {
	Text                string           `json:"text"`
	SuggestedActions    []string         `json:"suggestedActions"`
	EscalationTriggered bool             `json:"escalationTriggered"`
	ConversationEnded   bool             `json:"conversationEnded"`
	NewState            StateView        `json:"newState"`
	TopicTransition     *TopicTransition `json:"topicTransition,omitempty"`
}

type Deps struct {
	Store       statestore.Store
	Locker      statestore.Locker
	Classifier  crisis.Classifier
	Coordinator *escalation.Coordinator
	Workflow    *contact.Workflow
	Ledger      consent.Ledger
	Search      ContentSearch
	Completion  Completion
	Triage      *config.Triage
	Metrics     *observability.Metrics
}

// Engine turns one inbound message into one response. Turns on the same
// conversation are serialized by Locker.
type Engine struct {
	log     *logger.Logger
	cfg     Config
	deps    Deps
	intents *Intents
}

func NewEngine(baseLog *logger.Logger, cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil || deps.Coordinator == nil || deps.Workflow == nil || deps.Ledger == nil || deps.Triage == nil {
		return nil, errors.New("flow engine: missing dependency")
	}
	if deps.Locker == nil {
		deps.Locker = statestore.NewKeyedMutex()
	}
	intents, err := NewIntents(deps.Triage.Intents)
	if err != nil {
		return nil, err
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 5 * time.Second
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 15 * time.Second
	}
	return &Engine{
		log:     baseLog.With("service", "ConversationFlowEngine"),
		cfg:     cfg,
		deps:    deps,
		intents: intents,
	}, nil
}

// result is what a handler decided. It becomes exactly one StatePatch.
type result struct {
	text       string
	actions    []string
	topic      types.Topic
	stage      string
	escalation bool
	ended      bool
	reason     string
	consent    statestore.OptionalConsent
	contact    statestore.OptionalContact
	context    map[string]any
}

func (r *result) set(key string, v any) {
	if r.context == nil {
		r.context = map[string]any{}
	}
	r.context[key] = v
}

func (e *Engine) ProcessTurn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	in.Message = strings.TrimSpace(in.Message)
	if in.ConversationID == "" || in.UserID == "" {
		return TurnOutput{}, fmt.Errorf("%w: conversationId and userId are required", pkgerrors.ErrInvalidArgument)
	}
	if in.Message == "" {
		return TurnOutput{}, fmt.Errorf("%w: message is required", pkgerrors.ErrInvalidArgument)
	}

	ctx, span := observability.Tracer().Start(ctx, "flow.ProcessTurn")
	defer span.End()
	start := time.Now()

	unlock, err := e.deps.Locker.Lock(ctx, in.ConversationID)
	if err != nil {
		span.RecordError(err)
		return TurnOutput{}, fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()

	state, stateErr := e.deps.Store.GetOrCreate(ctx, in.ConversationID, in.UserID)

	// Crisis classification runs before anything else looks at the message.
	verdict := crisis.Safe(ctx, e.deps.Classifier, in.Message, classifyContext(state), e.log, e.deps.Metrics)
	span.SetAttributes(
		attribute.String("crisis.severity", string(verdict.Severity)),
		attribute.Bool("crisis.degraded", verdict.Degraded),
	)

	if stateErr != nil {
		span.RecordError(stateErr)
		span.SetStatus(codes.Error, "state unavailable")
		if verdict.Triggered() {
			e.log.Error("state unavailable during crisis turn; answering without persistence",
				"conversation_id", in.ConversationID, "error", stateErr)
			return TurnOutput{
				Text:                crisisResponse(verdict, e.deps.Triage.Emergency.Lines),
				SuggestedActions:    crisisActions,
				EscalationTriggered: true,
				NewState:            StateView{Topic: types.TopicCrisisSupport, Stage: types.StageCrisisResponse},
			}, nil
		}
		return TurnOutput{}, stateErr
	}

	var r result
	if verdict.Triggered() {
		r = e.handleCrisis(ctx, state, verdict)
	} else {
		r, err = e.route(ctx, state, in.Message)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return TurnOutput{}, err
		}
	}

	patch := statestore.StatePatch{
		Topic:   statestore.Topic(r.topic),
		Stage:   statestore.String(r.stage),
		Consent: r.consent,
		Contact: r.contact,
		Context: r.context,
	}
	next, err := e.deps.Store.Update(ctx, in.ConversationID, patch)
	if err != nil {
		span.RecordError(err)
		return TurnOutput{}, fmt.Errorf("persist turn: %w", err)
	}

	out := TurnOutput{
		Text:                r.text,
		SuggestedActions:    r.actions,
		EscalationTriggered: r.escalation,
		ConversationEnded:   r.ended,
		NewState:            StateView{Topic: next.CurrentTopic, Stage: next.CurrentStage, MessageCount: next.MessageCount},
	}
	if out.SuggestedActions == nil {
		out.SuggestedActions = []string{}
	}
	if state.CurrentTopic != next.CurrentTopic {
		reason := r.reason
		if reason == "" {
			reason = "routing"
		}
		out.TopicTransition = &TopicTransition{From: state.CurrentTopic, To: next.CurrentTopic, Reason: reason}
	}

	span.SetAttributes(
		attribute.String("flow.topic", string(next.CurrentTopic)),
		attribute.String("flow.stage", next.CurrentStage),
		attribute.Bool("flow.escalation", out.EscalationTriggered),
	)
	e.deps.Metrics.ObserveTurn(string(next.CurrentTopic), time.Since(start))
	e.log.Debug("turn processed",
		"conversation_id", in.ConversationID,
		"topic", next.CurrentTopic,
		"stage", next.CurrentStage,
		"message_count", next.MessageCount,
		"escalation", out.EscalationTriggered,
	)
	return out, nil
}

// route dispatches a non-crisis message by topic and stage.
func (e *Engine) route(ctx context.Context, s *types.ConversationState, msg string) (result, error) {
	if sess, ok := activeSession(s); ok {
		return e.handleCollection(ctx, s, sess, msg)
	}
	switch s.CurrentTopic {
	case types.TopicConversationStart:
		return e.handleStart(ctx, s, msg)
	case types.TopicNurseEscalation:
		if s.CurrentStage == types.StageConsentCapture {
			return e.handleConsentCapture(ctx, s, msg)
		}
		return e.handleHealth(ctx, s, msg)
	case types.TopicCrisisSupport:
		return e.handleCrisisSupport(ctx, s, msg)
	default:
		return e.handleHealth(ctx, s, msg)
	}
}

func classifyContext(s *types.ConversationState) crisis.ClassifyContext {
	if s == nil {
		return crisis.ClassifyContext{}
	}
	var cc crisis.ClassifyContext
	_, _ = statestore.Decode(s, ctxVulnerabilityFlags, &cc.VulnerabilityFlags)
	_, _ = statestore.Decode(s, ctxCrisisCount, &cc.PriorCrisisCount)
	return cc
}

func activeSession(s *types.ConversationState) (*contact.Session, bool) {
	var sess contact.Session
	ok, err := statestore.Decode(s, contact.ContextKey, &sess)
	if err != nil || !ok || sess.Stage == "" || sess.Stage.Terminal() {
		return nil, false
	}
	return &sess, true
}
