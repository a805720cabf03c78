package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/data/repos"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/modules/consent"
	"github.com/yungbote/careline-backend/internal/modules/contact"
	"github.com/yungbote/careline-backend/internal/observability"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/careline-backend/internal/pkg/errors"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

const (
	ReasonEmergencyReferral = "emergency_referral"
	ReasonDirectContact     = "direct_contact"
	ReasonInformational     = "informational"
	ReasonCancelled         = "cancelled"
)

type ExecuteInput struct {
	// EscalationID resumes an existing record; empty creates one from Assessment.
	EscalationID   string
	ConversationID string
	UserID         string
	Assessment     Assessment
	Contact        *types.ContactDetails
	// Purpose is the contact purpose for callbacks. Defaults to nurse_callback.
	Purpose          string
	CollectionFailed bool
	// Notify sends informational escalations to the team as well.
	Notify bool
}

type Outcome struct {
	Record        *types.EscalationRecord
	Text          string
	Session       *contact.Session
	Step          contact.Step
	GDPRCompliant bool
	Notified      bool
	// NotifyErr is informational; delivery problems never fail the turn.
	NotifyErr error
}

type Coordinator struct {
	log      *logger.Logger
	repo     repos.EscalationRepo
	assessor *Assessor
	workflow *contact.Workflow
	ledger   consent.Ledger
	notifier *Notifier
	cfg      *config.Triage
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewCoordinator(baseLog *logger.Logger, repo repos.EscalationRepo, workflow *contact.Workflow, ledger consent.Ledger, notifier *Notifier, cfg *config.Triage, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		log:      baseLog.With("service", "EscalationCoordinator"),
		repo:     repo,
		assessor: NewAssessor(cfg.Assessment),
		workflow: workflow,
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (c *Coordinator) Assess(message string, hint types.EscalationType, ac AssessContext) Assessment {
	return c.assessor.Assess(message, hint, ac)
}

func (c *Coordinator) Execute(ctx context.Context, in ExecuteInput) (Outcome, error) {
	rec, err := c.record(ctx, in)
	if err != nil {
		return Outcome{}, err
	}
	if rec.Status == types.EscalationCompleted {
		if !lostCallback(rec, in) {
			return Outcome{Record: rec, Text: c.completedText(rec), GDPRCompliant: true}, nil
		}
		if rec, err = c.reopen(ctx, rec); err != nil {
			return Outcome{}, err
		}
	}

	switch rec.Type {
	case types.EscalationEmergencyReferral:
		return c.emergency(ctx, rec)
	case types.EscalationGPReferral, types.EscalationSupportResources:
		return c.informational(ctx, rec, in.Notify)
	default:
		return c.nurseCallback(ctx, rec, in)
	}
}

// lostCallback reports whether a callback request reached a record that was
// closed before any contact was stored on it, usually by the stale sweep.
func lostCallback(rec *types.EscalationRecord, in ExecuteInput) bool {
	if rec.Type != types.EscalationNurseCallback || rec.ContactDetails != nil {
		return false
	}
	if in.Contact != nil && in.Contact.Reachable() {
		return true
	}
	return in.CollectionFailed && rec.CompletionReason != ReasonDirectContact
}

// reopen replaces a closed callback escalation with a fresh one carrying the
// same type, priority and reasoning.
func (c *Coordinator) reopen(ctx context.Context, closed *types.EscalationRecord) (*types.EscalationRecord, error) {
	c.log.Error("callback request arrived for a closed escalation; reopening",
		"severity", "critical",
		"escalation_id", closed.EscalationID,
		"conversation_id", closed.ConversationID,
		"completion_reason", closed.CompletionReason,
	)
	rec, err := c.record(ctx, ExecuteInput{
		ConversationID: closed.ConversationID,
		UserID:         closed.UserID,
		Assessment: Assessment{
			Type:      closed.Type,
			Priority:  closed.Priority,
			Reasoning: closed.Reasoning,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reopen escalation %s: %w", closed.EscalationID, err)
	}
	return rec, nil
}

func (c *Coordinator) record(ctx context.Context, in ExecuteInput) (*types.EscalationRecord, error) {
	dbc := dbctx.From(ctx)
	if in.EscalationID != "" {
		rec, err := c.repo.GetByID(dbc, in.EscalationID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: escalation %s", pkgerrors.ErrNotFound, in.EscalationID)
		}
		return rec, nil
	}

	a := in.Assessment
	if a.Type == "" {
		a.Type = types.EscalationNurseCallback
	}
	if a.Priority == "" {
		a.Priority = types.PriorityStandard
	}
	rec := &types.EscalationRecord{
		ConversationID: in.ConversationID,
		UserID:         in.UserID,
		Type:           a.Type,
		Priority:       a.Priority,
		Reasoning:      a.Reasoning,
		StartTime:      c.now(),
	}
	if err := c.repo.Create(dbc, rec); err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}
	c.metrics.IncEscalation(string(rec.Type), string(rec.Priority))
	c.log.Info("escalation created",
		"escalation_id", rec.EscalationID,
		"conversation_id", rec.ConversationID,
		"type", rec.Type,
		"priority", rec.Priority,
	)
	return rec, nil
}

func (c *Coordinator) emergency(ctx context.Context, rec *types.EscalationRecord) (Outcome, error) {
	out := Outcome{Record: rec, Text: EmergencyGuidance(c.cfg.Emergency.Lines), GDPRCompliant: true}
	out.Notified, out.NotifyErr = c.notify(ctx, notificationFor(rec))
	if err := c.complete(ctx, rec, ReasonEmergencyReferral); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Coordinator) informational(ctx context.Context, rec *types.EscalationRecord, notify bool) (Outcome, error) {
	out := Outcome{Record: rec, Text: informationalText(rec.Type, c.cfg.Emergency.Lines), GDPRCompliant: true}
	if notify {
		out.Notified, out.NotifyErr = c.notify(ctx, notificationFor(rec))
	}
	if err := c.complete(ctx, rec, ReasonInformational); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Coordinator) nurseCallback(ctx context.Context, rec *types.EscalationRecord, in ExecuteInput) (Outcome, error) {
	purposeName := in.Purpose
	if purposeName == "" {
		purposeName = contact.PurposeNurseCallback
	}
	p, ok := c.workflow.Purpose(purposeName)
	if !ok {
		return Outcome{Record: rec}, fmt.Errorf("%w: unknown purpose %q", pkgerrors.ErrInvalidArgument, purposeName)
	}
	dbc := dbctx.From(ctx)

	switch {
	case in.CollectionFailed:
		out := Outcome{
			Record:        rec,
			Text:          contact.DirectContactGuidance(c.cfg.Escalation.DirectContactNumber),
			GDPRCompliant: true,
		}
		note := notificationFor(rec)
		note.FollowUp = true
		out.Notified, out.NotifyErr = c.notify(ctx, note)
		if err := c.complete(ctx, rec, ReasonDirectContact); err != nil {
			return out, err
		}
		return out, nil

	case in.Contact == nil || !in.Contact.Reachable():
		session, step, err := c.workflow.Start(ctx, contact.StartInput{
			UserID:         rec.UserID,
			ConversationID: rec.ConversationID,
			Purpose:        p.Name,
			EscalationID:   rec.EscalationID,
			Prefill:        in.Contact,
		})
		if err != nil {
			return Outcome{Record: rec}, err
		}
		if _, err := c.repo.AdvanceStatus(dbc, rec.EscalationID, types.EscalationContactCollecting, nil); err != nil {
			return Outcome{Record: rec}, err
		}
		rec.Status = types.EscalationContactCollecting
		return Outcome{Record: rec, Session: session, Step: step, Text: step.Prompt, GDPRCompliant: true}, nil
	}

	compliant, err := c.verifyConsent(ctx, rec.UserID, p)
	if err != nil {
		return Outcome{Record: rec}, err
	}

	eta, within := c.callbackWindow(rec.Priority)
	due := c.now().Add(within)
	if _, err := c.repo.ScheduleCallback(dbc, rec.EscalationID, in.Contact, eta, due); err != nil {
		return Outcome{Record: rec}, fmt.Errorf("schedule callback: %w", err)
	}
	rec.Status = types.EscalationCallbackScheduled
	rec.ContactDetails = in.Contact.Clone()
	rec.CallbackETA = eta
	rec.CallbackDueAt = &due

	out := Outcome{Record: rec, Text: CallbackConfirmation(eta, in.Contact), GDPRCompliant: compliant}
	note := notificationFor(rec)
	note.ContactSummary = ContactSummary(in.Contact)
	out.Notified, out.NotifyErr = c.notify(ctx, note)
	c.log.Info("callback scheduled", "escalation_id", rec.EscalationID, "priority", rec.Priority, "callback_eta", eta)
	return out, nil
}

// verifyConsent is true only when the ledger shows active consent, or when
// the purpose needs none.
func (c *Coordinator) verifyConsent(ctx context.Context, userID string, p contact.Purpose) (bool, error) {
	policy := c.cfg.Policy(p.ConsentType)
	if !policy.RequiresConsent {
		return true, nil
	}
	st, err := c.ledger.GetConsentStatus(ctx, userID, p.ConsentType)
	if err != nil {
		return false, fmt.Errorf("check consent: %w", err)
	}
	if !st.Granted {
		return false, &contact.ConsentRequiredError{ConsentType: p.ConsentType, Purpose: p.Name}
	}
	return true, nil
}

func (c *Coordinator) callbackWindow(p types.Priority) (string, time.Duration) {
	e := c.cfg.Escalation
	if p.Rank() >= types.PriorityUrgent.Rank() {
		return e.UrgentCallbackETA, e.UrgentCallbackWithin
	}
	return e.StandardCallbackETA, e.StandardCallbackWithin
}

func (c *Coordinator) complete(ctx context.Context, rec *types.EscalationRecord, reason string) error {
	if _, err := c.repo.AdvanceStatus(dbctx.From(ctx), rec.EscalationID, types.EscalationCompleted, map[string]any{
		"completion_reason": reason,
	}); err != nil {
		return fmt.Errorf("complete escalation: %w", err)
	}
	now := c.now()
	rec.Status = types.EscalationCompleted
	rec.CompletedAt = &now
	rec.CompletionReason = reason
	return nil
}

func (c *Coordinator) notify(ctx context.Context, note Notification) (bool, error) {
	if c.notifier == nil {
		return false, nil
	}
	ok, err := c.notifier.Notify(ctx, note)
	if err != nil && !errors.Is(err, ErrNotificationDelivery) {
		c.log.Warn("escalation notify error", "escalation_id", note.EscalationID, "error", err)
	}
	return ok, err
}

func (c *Coordinator) completedText(rec *types.EscalationRecord) string {
	switch rec.CompletionReason {
	case ReasonEmergencyReferral:
		return EmergencyGuidance(c.cfg.Emergency.Lines)
	case ReasonDirectContact:
		return contact.DirectContactGuidance(c.cfg.Escalation.DirectContactNumber)
	}
	if rec.ContactDetails != nil && rec.CallbackETA != "" {
		return CallbackConfirmation(rec.CallbackETA, rec.ContactDetails)
	}
	return informationalText(rec.Type, c.cfg.Emergency.Lines)
}

// Cancel closes an escalation whose contact collection the person cancelled.
func (c *Coordinator) Cancel(ctx context.Context, escalationID string) error {
	if escalationID == "" {
		return nil
	}
	rec, err := c.repo.GetByID(dbctx.From(ctx), escalationID)
	if err != nil || rec == nil {
		return err
	}
	return c.complete(ctx, rec, ReasonCancelled)
}

// Touch marks an open escalation as active so the stale sweep leaves it alone
// while its contact collection is still going.
func (c *Coordinator) Touch(ctx context.Context, escalationID string) error {
	return c.repo.Touch(dbctx.From(ctx), escalationID)
}

// ListActive returns escalations that are not completed, oldest first.
func (c *Coordinator) ListActive(ctx context.Context, limit int) ([]*types.EscalationRecord, error) {
	return c.repo.ListActive(dbctx.From(ctx), limit)
}
