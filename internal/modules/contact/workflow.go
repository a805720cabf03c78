package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/data/repos"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/modules/consent"
	"github.com/yungbote/careline-backend/internal/observability"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/careline-backend/internal/pkg/errors"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

// AuditStore receives one append-only record per finalized session.
type AuditStore interface {
	Append(ctx context.Context, row *types.ContactAudit) error
}

type repoAuditStore struct {
	repo repos.ContactAuditRepo
}

func NewAuditStore(repo repos.ContactAuditRepo) AuditStore {
	return &repoAuditStore{repo: repo}
}

func (a *repoAuditStore) Append(ctx context.Context, row *types.ContactAudit) error {
	return a.repo.Create(dbctx.From(ctx), row)
}

type StartInput struct {
	UserID         string
	ConversationID string
	Purpose        string
	EscalationID   string
	// Prefill seeds already known details; invalid or out-of-purpose values are ignored.
	Prefill *types.ContactDetails
}

// Step is what the caller shows after Start or Handle.
type Step struct {
	Prompt      string
	Stage       Stage
	Field       types.ContactField
	Error       *ValidationError
	Suggestions []string
	Finished    bool
}

type Workflow struct {
	log      *logger.Logger
	ledger   consent.Ledger
	audit    AuditStore
	cfg      *config.Triage
	metrics  *observability.Metrics
	purposes map[string]Purpose
	now      func() time.Time
}

func NewWorkflow(baseLog *logger.Logger, ledger consent.Ledger, audit AuditStore, cfg *config.Triage, metrics *observability.Metrics) (*Workflow, error) {
	purposes, err := PurposesFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Workflow{
		log:      baseLog.With("service", "ContactCollectionWorkflow"),
		ledger:   ledger,
		audit:    audit,
		cfg:      cfg,
		metrics:  metrics,
		purposes: purposes,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (w *Workflow) Purpose(name string) (Purpose, bool) {
	p, ok := w.purposes[name]
	return p, ok
}

// Start opens a session. Consent is checked before any prompt is produced;
// without it a *ConsentRequiredError is returned and nothing is collected.
func (w *Workflow) Start(ctx context.Context, in StartInput) (*Session, Step, error) {
	p, ok := w.purposes[in.Purpose]
	if !ok {
		return nil, Step{}, fmt.Errorf("%w: unknown purpose %q", pkgerrors.ErrInvalidArgument, in.Purpose)
	}
	if err := w.ensureConsent(ctx, in.UserID, p); err != nil {
		return nil, Step{}, err
	}

	s := &Session{
		Purpose:        p.Name,
		ConsentType:    p.ConsentType,
		UserID:         in.UserID,
		ConversationID: in.ConversationID,
		EscalationID:   in.EscalationID,
		Stage:          StageCollecting,
		StartedAt:      w.now(),
	}
	if in.Prefill != nil {
		for _, f := range p.Fields() {
			if v := in.Prefill.Get(f); v != "" {
				if res := validate(f, v, p.Lenient); res.IsValid {
					s.Collected.Set(f, res.Normalized)
				}
			}
		}
	}
	w.metrics.IncContactCollection(p.Name, "started")
	w.log.Debug("contact collection started", "conversation_id", in.ConversationID, "purpose", p.Name)
	return s, w.advance(s, p, ""), nil
}

// Handle feeds one user message into a live session.
func (w *Workflow) Handle(ctx context.Context, s *Session, input string) (Step, error) {
	if s == nil || s.Stage.Terminal() {
		return Step{}, fmt.Errorf("%w: no active collection session", pkgerrors.ErrInvalidArgument)
	}
	p, ok := w.purposes[s.Purpose]
	if !ok {
		return Step{}, fmt.Errorf("%w: unknown purpose %q", pkgerrors.ErrInvalidArgument, s.Purpose)
	}
	switch s.Stage {
	case StageConfirmation:
		return w.confirm(ctx, s, p, input)
	default:
		return w.collect(s, p, input), nil
	}
}

func (w *Workflow) collect(s *Session, p Purpose, input string) Step {
	f := s.CurrentField
	if f == "" {
		var ok bool
		if f, ok = s.nextMissing(p); !ok {
			return w.advance(s, p, "")
		}
		s.CurrentField = f
	}

	if isSkip(input) && (!p.IsRequired(f) || s.SkipOffered) {
		w.skip(s, p, f)
		return w.advance(s, p, "No problem, we'll leave that out.")
	}

	res := validate(f, input, p.Lenient)
	if res.IsValid {
		s.Collected.Set(f, res.Normalized)
		return w.advance(s, p, "")
	}

	s.Attempts++
	verr := &ValidationError{Field: f, Message: res.Error, Suggestions: res.Suggestions}
	w.metrics.IncContactCollection(p.Name, "validation_failed")

	if s.SkipOffered {
		w.skip(s, p, f)
		step := w.advance(s, p, fmt.Sprintf("Let's carry on without your %s.", f.Label()))
		step.Error = verr
		return step
	}
	if s.Attempts >= p.MaxAttempts {
		switch {
		case !p.IsRequired(f):
			w.skip(s, p, f)
			step := w.advance(s, p, "Let's skip that one.")
			step.Error = verr
			return step
		case p.AllowSkip:
			s.SkipOffered = true
			w.metrics.IncContactCollection(p.Name, "skip_offered")
			return Step{Prompt: skipOffer(f), Stage: StageCollecting, Field: f, Error: verr, Suggestions: []string{"Skip"}}
		default:
			step := w.escalate(s, p)
			step.Field = f
			step.Error = verr
			return step
		}
	}
	return Step{Prompt: retryPrompt(res), Stage: StageCollecting, Field: f, Error: verr, Suggestions: res.Suggestions}
}

func (w *Workflow) confirm(ctx context.Context, s *Session, p Purpose, input string) (Step, error) {
	action, field := parseConfirmation(input)
	switch action {
	case "edit":
		s.Stage = StageCollecting
		if field == "" || !p.Allows(field) {
			s.Collected = types.ContactDetails{}
			s.Skipped = nil
			return w.advance(s, p, "Okay, let's start again."), nil
		}
		s.Collected.Set(field, "")
		s.unskip(field)
		return w.advance(s, p, "Okay, let's update that."), nil
	case "cancel":
		s.Stage = StageCancelled
		w.metrics.IncContactCollection(p.Name, "cancelled")
		return Step{
			Prompt:   "Okay, I've cancelled that and won't keep those details.",
			Stage:    StageCancelled,
			Finished: true,
		}, nil
	case "confirm":
		if err := w.Finalize(ctx, s); err != nil {
			return Step{}, err
		}
		return Step{Stage: StageFinalized, Finished: true}, nil
	}
	return Step{
		Prompt:      summary(s, p),
		Stage:       StageConfirmation,
		Suggestions: confirmationSuggestions(),
	}, nil
}

// Finalize writes the audit record and marks the session finalized. It is a
// no-op for an already finalized session.
func (w *Workflow) Finalize(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	if s.Stage == StageFinalized {
		return nil
	}
	if s.Stage != StageConfirmation {
		return fmt.Errorf("%w: session in stage %s cannot be finalized", pkgerrors.ErrInvalidArgument, s.Stage)
	}
	p, ok := w.purposes[s.Purpose]
	if !ok {
		return fmt.Errorf("%w: unknown purpose %q", pkgerrors.ErrInvalidArgument, s.Purpose)
	}
	// Consent may have been withdrawn while the dialogue was running.
	if err := w.ensureConsent(ctx, s.UserID, p); err != nil {
		return err
	}
	b, err := json.Marshal(s.Collected)
	if err != nil {
		return err
	}
	if err := w.audit.Append(ctx, &types.ContactAudit{
		UserID:         s.UserID,
		ConversationID: s.ConversationID,
		Purpose:        s.Purpose,
		ConsentType:    s.ConsentType,
		Contacts:       datatypes.JSON(b),
		CollectedAt:    w.now(),
	}); err != nil {
		return fmt.Errorf("append contact audit: %w", err)
	}
	s.Stage = StageFinalized
	s.CurrentField = ""
	w.metrics.IncContactCollection(p.Name, "finalized")
	w.log.Info("contact collection finalized", "conversation_id", s.ConversationID, "purpose", s.Purpose)
	return nil
}

// advance moves to the next missing field, to confirmation, or gives up when
// nothing reachable was collected.
func (w *Workflow) advance(s *Session, p Purpose, lead string) Step {
	s.Attempts = 0
	s.SkipOffered = false
	if f, ok := s.nextMissing(p); ok {
		s.Stage = StageCollecting
		s.CurrentField = f
		step := Step{Prompt: joinPrompt(lead, fieldPrompt(f, p, s)), Stage: StageCollecting, Field: f}
		if !p.IsRequired(f) {
			step.Suggestions = []string{"Skip"}
		}
		return step
	}
	s.CurrentField = ""
	for _, f := range p.Required {
		if !s.Collected.Has(f) && !s.Collected.Reachable() {
			return w.escalate(s, p)
		}
	}
	s.Stage = StageConfirmation
	return Step{
		Prompt:      joinPrompt(lead, summary(s, p)),
		Stage:       StageConfirmation,
		Suggestions: confirmationSuggestions(),
	}
}

func (w *Workflow) escalate(s *Session, p Purpose) Step {
	s.Stage = StageEscalated
	w.metrics.IncContactCollection(p.Name, "escalated")
	w.log.Warn("contact collection escalated to direct contact", "conversation_id", s.ConversationID, "purpose", p.Name, "field", s.CurrentField)
	return Step{
		Prompt:   DirectContactGuidance(w.cfg.Escalation.DirectContactNumber),
		Stage:    StageEscalated,
		Finished: true,
	}
}

func (w *Workflow) skip(s *Session, p Purpose, f types.ContactField) {
	if !s.skipped(f) {
		s.Skipped = append(s.Skipped, f)
	}
	w.metrics.IncContactCollection(p.Name, "skipped")
}

func (w *Workflow) ensureConsent(ctx context.Context, userID string, p Purpose) error {
	policy := w.cfg.Policy(p.ConsentType)
	if !policy.RequiresConsent {
		return nil
	}
	st, err := w.ledger.GetConsentStatus(ctx, userID, p.ConsentType)
	if err != nil {
		return fmt.Errorf("check consent: %w", err)
	}
	if st.Granted {
		return nil
	}
	if !policy.AutomaticConsentCapture {
		return &ConsentRequiredError{ConsentType: p.ConsentType, Purpose: p.Name}
	}
	if _, err := w.ledger.RecordConsent(ctx, userID, p.ConsentType, consent.Metadata{}); err != nil {
		return fmt.Errorf("capture consent: %w", err)
	}
	w.log.Info("consent captured automatically", "user_id", userID, "consent_type", p.ConsentType, "legal_basis", policy.LegalBasis)
	return nil
}
