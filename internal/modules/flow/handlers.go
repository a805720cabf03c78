package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/modules/consent"
	"github.com/yungbote/careline-backend/internal/modules/contact"
	"github.com/yungbote/careline-backend/internal/modules/crisis"
	"github.com/yungbote/careline-backend/internal/modules/escalation"
	"github.com/yungbote/careline-backend/internal/modules/statestore"
	pkgerrors "github.com/yungbote/careline-backend/internal/pkg/errors"
)

// Topic transition reasons.
const (
	reasonGreeting         = "greeting"
	reasonHealthQuery      = "health_query"
	reasonNurseRequested   = "nurse_requested"
	reasonConsentRefused   = "consent_refused"
	reasonConsentWithdrawn = "consent_withdrawn"
	reasonCancelled        = "collection_cancelled"
	reasonCrisisDetected   = "crisis_detected"
	reasonSupport          = "support_transition"
	reasonFarewell         = "farewell"
)

func (e *Engine) handleStart(ctx context.Context, s *types.ConversationState, msg string) (result, error) {
	switch e.intents.Classify(msg) {
	case IntentGreeting:
		return result{
			text:    introduction,
			actions: introActions,
			topic:   types.TopicHealthInformation,
			stage:   types.StageReadyForQuestions,
			reason:  reasonGreeting,
		}, nil
	case IntentNurse, IntentCallback:
		return e.startNurse(ctx, s, msg)
	case IntentFarewell:
		return e.farewell(), nil
	}
	return e.answer(ctx, s, msg), nil
}

func (e *Engine) handleHealth(ctx context.Context, s *types.ConversationState, msg string) (result, error) {
	switch e.intents.Classify(msg) {
	case IntentFarewell:
		return e.farewell(), nil
	case IntentNurse, IntentCallback:
		return e.startNurse(ctx, s, msg)
	case IntentGreeting:
		return result{
			text:    greetingAgain,
			actions: introActions,
			topic:   types.TopicHealthInformation,
			stage:   types.StageReadyForQuestions,
			reason:  reasonGreeting,
		}, nil
	}
	return e.answer(ctx, s, msg), nil
}

func (e *Engine) farewell() result {
	return result{
		text:   farewell,
		topic:  types.TopicHealthInformation,
		stage:  types.StageConversationClosed,
		ended:  true,
		reason: reasonFarewell,
	}
}

// answer runs a health query through search and completion. Neither
// collaborator can fail the turn.
func (e *Engine) answer(ctx context.Context, s *types.ConversationState, msg string) result {
	res := e.search(ctx, msg, string(s.CurrentTopic))
	if !res.Usable() {
		return result{
			text:    noContentFound,
			actions: noContentActions,
			topic:   types.TopicHealthInformation,
			stage:   types.StageNoContentFound,
			reason:  reasonHealthQuery,
		}
	}
	return result{
		text:    e.compose(ctx, msg, res),
		actions: healthActions,
		topic:   types.TopicHealthInformation,
		stage:   types.StageInformationProvided,
		reason:  reasonHealthQuery,
	}
}

func (e *Engine) search(ctx context.Context, msg, hint string) SearchResult {
	if e.deps.Search == nil {
		return SearchResult{}
	}
	sctx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()
	res, err := e.deps.Search.Search(sctx, msg, hint)
	if err != nil {
		e.deps.Metrics.IncCollaboratorFailure("content_search")
		e.log.Warn("content search failed", "error", err)
		return SearchResult{}
	}
	if res.Found && strings.TrimSpace(res.SourceURL) == "" {
		e.log.Warn("content search result without source url discarded", "source", res.Source)
	}
	return res
}

const answerSystemPrompt = "You are a careful health information assistant for a UK nurse helpline. " +
	"Answer only from the reference text provided. Do not diagnose or prescribe. " +
	"Keep the answer short and plain, and end by citing the source by name and URL."

func (e *Engine) compose(ctx context.Context, msg string, res SearchResult) string {
	fallback := strings.TrimSpace(res.Content) + "\n\n" + sourceLine(res)
	if e.deps.Completion == nil {
		return fallback
	}
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CompletionTimeout)
	defer cancel()
	user := fmt.Sprintf("Question: %s\n\nReference (%s, %s):\n%s", msg, res.Source, res.SourceURL, res.Content)
	out, err := e.deps.Completion.Generate(cctx, answerSystemPrompt, user)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		e.deps.Metrics.IncCollaboratorFailure("completion")
		e.log.Warn("completion failed; using template answer", "error", err)
		return fallback
	}
	if !strings.Contains(out, res.SourceURL) {
		out += "\n\n" + sourceLine(res)
	}
	return out
}

func sourceLine(res SearchResult) string {
	if res.Source == "" {
		return "Source: " + res.SourceURL
	}
	return fmt.Sprintf("Source: %s (%s)", res.Source, res.SourceURL)
}

func (e *Engine) callbackPurpose() string {
	if e.cfg.CollectEmail {
		return contact.PurposeCallbackChatEmail
	}
	return contact.PurposeCallbackChat
}

func (e *Engine) consentTypeFor(purpose string) string {
	if p, ok := e.deps.Workflow.Purpose(purpose); ok {
		return p.ConsentType
	}
	return purpose
}

// startNurse assesses a nurse request. Emergencies are referred at once;
// otherwise collection starts, behind consent capture when needed.
func (e *Engine) startNurse(ctx context.Context, s *types.ConversationState, msg string) (result, error) {
	var flags []string
	_, _ = statestore.Decode(s, ctxVulnerabilityFlags, &flags)
	a := e.deps.Coordinator.Assess(msg, "", escalation.AssessContext{VulnerabilityFlags: flags})

	switch a.Type {
	case types.EscalationEmergencyReferral:
		out, err := e.deps.Coordinator.Execute(ctx, escalation.ExecuteInput{
			ConversationID: s.ConversationID,
			UserID:         s.UserID,
			Assessment:     a,
		})
		text := out.Text
		if err != nil {
			e.log.Error("emergency referral failed", "conversation_id", s.ConversationID, "error", err)
			text = escalation.EmergencyGuidance(e.deps.Triage.Emergency.Lines)
		}
		return result{
			text:       text,
			actions:    emergencyActions,
			topic:      types.TopicNurseEscalation,
			stage:      types.StageEmergencyReferral,
			escalation: true,
			reason:     reasonNurseRequested,
		}, nil
	case types.EscalationGPReferral, types.EscalationSupportResources:
		out, err := e.deps.Coordinator.Execute(ctx, escalation.ExecuteInput{
			ConversationID: s.ConversationID,
			UserID:         s.UserID,
			Assessment:     a,
		})
		if err != nil {
			return result{}, err
		}
		return result{
			text:    out.Text,
			actions: healthActions,
			topic:   types.TopicHealthInformation,
			stage:   types.StageReadyForQuestions,
			reason:  reasonHealthQuery,
		}, nil
	}

	purpose := e.callbackPurpose()
	consentType := e.consentTypeFor(purpose)
	st, err := e.deps.Ledger.GetConsentStatus(ctx, s.UserID, consentType)
	if err != nil {
		return result{}, fmt.Errorf("consent status: %w", err)
	}
	if st.Granted {
		return e.beginCollection(ctx, s, a, purpose, types.TopicNurseEscalation)
	}
	r := result{
		text:    consentPrompt(e.deps.Triage.Policy(consentType)),
		actions: consentActions,
		topic:   types.TopicNurseEscalation,
		stage:   types.StageConsentCapture,
		reason:  reasonNurseRequested,
	}
	r.set(ctxPendingAssessment, a)
	return r, nil
}

func (e *Engine) handleConsentCapture(ctx context.Context, s *types.ConversationState, msg string) (result, error) {
	purpose := e.callbackPurpose()
	consentType := e.consentTypeFor(purpose)

	switch {
	case e.intents.Is(IntentRefusal, msg):
		r := result{
			text:    consentRefused,
			actions: introActions,
			topic:   types.TopicHealthInformation,
			stage:   types.StageReadyForQuestions,
			consent: statestore.Consent(types.ConsentRefused),
			reason:  reasonConsentRefused,
		}
		r.set(ctxPendingAssessment, nil)
		return r, nil

	case e.intents.Is(IntentAffirmative, msg):
		if _, err := e.deps.Ledger.RecordConsent(ctx, s.UserID, consentType, consent.Metadata{}); err != nil {
			return result{}, fmt.Errorf("record consent: %w", err)
		}
		var a escalation.Assessment
		if ok, _ := statestore.Decode(s, ctxPendingAssessment, &a); !ok {
			a = e.deps.Coordinator.Assess("", "", escalation.AssessContext{})
		}
		r, err := e.beginCollection(ctx, s, a, purpose, types.TopicNurseEscalation)
		if err != nil {
			return result{}, err
		}
		if !r.consent.Set {
			r.consent = statestore.Consent(types.ConsentGranted)
		}
		return r, nil
	}

	return result{
		text:    consentReask(e.deps.Triage.Policy(consentType)),
		actions: consentActions,
		topic:   types.TopicNurseEscalation,
		stage:   types.StageConsentCapture,
	}, nil
}

// beginCollection opens an escalation and its contact collection session.
func (e *Engine) beginCollection(ctx context.Context, s *types.ConversationState, a escalation.Assessment, purpose string, topic types.Topic) (result, error) {
	a.Type = types.EscalationNurseCallback
	out, err := e.deps.Coordinator.Execute(ctx, escalation.ExecuteInput{
		ConversationID: s.ConversationID,
		UserID:         s.UserID,
		Assessment:     a,
		Purpose:        purpose,
	})
	if err != nil {
		var cre *contact.ConsentRequiredError
		if errors.As(err, &cre) {
			if out.Record != nil {
				e.cancel(ctx, out.Record.EscalationID)
			}
			consentType := e.consentTypeFor(purpose)
			r := result{
				text:    consentPrompt(e.deps.Triage.Policy(consentType)),
				actions: consentActions,
				topic:   types.TopicNurseEscalation,
				stage:   types.StageConsentCapture,
				reason:  reasonNurseRequested,
			}
			r.set(ctxPendingAssessment, a)
			return r, nil
		}
		return result{}, fmt.Errorf("start escalation: %w", err)
	}

	r := result{
		text:       out.Text,
		topic:      topic,
		escalation: true,
		reason:     reasonNurseRequested,
	}
	r.set(ctxPendingAssessment, nil)
	if out.Record != nil {
		r.set(ctxEscalationID, out.Record.EscalationID)
	}
	if out.Session == nil {
		r.stage = types.StageDirectContact
		r.actions = transitionActions
		return r, nil
	}
	r.set(contact.ContextKey, out.Session)
	r.stage = out.Session.ConversationStage()
	r.actions = out.Step.Suggestions
	return r, nil
}

// handleCollection feeds a message into the live contact session and acts
// on where it ends up.
func (e *Engine) handleCollection(ctx context.Context, s *types.ConversationState, sess *contact.Session, msg string) (result, error) {
	step, err := e.deps.Workflow.Handle(ctx, sess, msg)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrConsentRequired) {
			return e.consentLost(ctx, sess), nil
		}
		return result{}, err
	}

	topic := s.CurrentTopic
	if topic != types.TopicCrisisSupport {
		topic = types.TopicNurseEscalation
	}

	switch sess.Stage {
	case contact.StageFinalized:
		details := sess.Collected
		out, err := e.deps.Coordinator.Execute(ctx, escalation.ExecuteInput{
			EscalationID:   sess.EscalationID,
			ConversationID: s.ConversationID,
			UserID:         s.UserID,
			Contact:        &details,
			Purpose:        sess.Purpose,
		})
		if err != nil {
			if errors.Is(err, pkgerrors.ErrConsentRequired) {
				return e.consentLost(ctx, sess), nil
			}
			return result{}, fmt.Errorf("schedule callback: %w", err)
		}
		if out.Record == nil || out.Record.ContactDetails == nil {
			e.log.Error("callback not scheduled after confirmation", "severity", "critical", "escalation_id", sess.EscalationID)
			r := result{
				text:       contact.DirectContactGuidance(e.deps.Triage.Escalation.DirectContactNumber),
				actions:    transitionActions,
				topic:      topic,
				stage:      types.StageDirectContact,
				escalation: true,
			}
			r.set(contact.ContextKey, nil)
			r.set(ctxFollowUpRequired, true)
			return r, nil
		}
		if out.NotifyErr != nil {
			e.log.Warn("callback scheduled but team not notified", "escalation_id", out.Record.EscalationID, "error", out.NotifyErr)
		}
		r := result{
			text:       out.Text,
			actions:    afterCallbackActions,
			topic:      topic,
			stage:      types.StageCallbackScheduled,
			escalation: true,
			contact:    statestore.Contact(&details),
		}
		r.set(contact.ContextKey, nil)
		r.set(ctxContactsCollected, true)
		r.set(ctxEscalationID, out.Record.EscalationID)
		return r, nil

	case contact.StageEscalated:
		if _, err := e.deps.Coordinator.Execute(ctx, escalation.ExecuteInput{
			EscalationID:     sess.EscalationID,
			ConversationID:   s.ConversationID,
			UserID:           s.UserID,
			Purpose:          sess.Purpose,
			CollectionFailed: true,
		}); err != nil {
			e.log.Error("direct contact follow-up failed", "escalation_id", sess.EscalationID, "error", err)
		}
		r := result{
			text:       step.Prompt,
			actions:    transitionActions,
			topic:      topic,
			stage:      types.StageDirectContact,
			escalation: true,
		}
		r.set(contact.ContextKey, nil)
		r.set(ctxFollowUpRequired, true)
		return r, nil

	case contact.StageCancelled:
		e.cancel(ctx, sess.EscalationID)
		r := result{
			text:    step.Prompt + " " + collectionCancelled,
			actions: introActions,
			topic:   types.TopicHealthInformation,
			stage:   types.StageReadyForQuestions,
			reason:  reasonCancelled,
		}
		r.set(contact.ContextKey, nil)
		return r, nil
	}

	if err := e.deps.Coordinator.Touch(ctx, sess.EscalationID); err != nil {
		e.log.Warn("touch escalation failed", "escalation_id", sess.EscalationID, "error", err)
	}
	r := result{
		text:    step.Prompt,
		actions: step.Suggestions,
		topic:   topic,
		stage:   sess.ConversationStage(),
	}
	r.set(contact.ContextKey, sess)
	return r, nil
}

func (e *Engine) consentLost(ctx context.Context, sess *contact.Session) result {
	e.cancel(ctx, sess.EscalationID)
	r := result{
		text:    consentWithdrawn,
		actions: introActions,
		topic:   types.TopicHealthInformation,
		stage:   types.StageReadyForQuestions,
		consent: statestore.Consent(types.ConsentWithdrawn),
		reason:  reasonConsentWithdrawn,
	}
	r.set(contact.ContextKey, nil)
	return r
}

func (e *Engine) cancel(ctx context.Context, escalationID string) {
	if err := e.deps.Coordinator.Cancel(ctx, escalationID); err != nil {
		e.log.Warn("cancel escalation failed", "escalation_id", escalationID, "error", err)
	}
}

// handleCrisis pre-empts routing. Any open collection is dropped and the
// person gets emergency contacts in the same turn.
func (e *Engine) handleCrisis(ctx context.Context, s *types.ConversationState, v crisis.Verdict) result {
	var count int
	var flags []string
	_, _ = statestore.Decode(s, ctxCrisisCount, &count)
	_, _ = statestore.Decode(s, ctxVulnerabilityFlags, &flags)

	r := result{
		text:       crisisResponse(v, e.deps.Triage.Emergency.Lines),
		actions:    crisisActions,
		topic:      types.TopicCrisisSupport,
		stage:      types.StageCrisisResponse,
		escalation: true,
		reason:     reasonCrisisDetected,
	}
	if sess, ok := activeSession(s); ok {
		e.cancel(ctx, sess.EscalationID)
		r.set(contact.ContextKey, nil)
	}
	if v.Severity == crisis.SeverityCrisis && v.Category != "" && !contains(flags, v.Category) {
		flags = append(flags, v.Category)
	}
	r.set(ctxCrisisCount, count+1)
	r.set(ctxLastCrisisCategory, v.Category)
	if len(flags) > 0 {
		r.set(ctxVulnerabilityFlags, flags)
	}

	if v.Severity == crisis.SeverityCrisis && s.CurrentTopic != types.TopicCrisisSupport {
		out, err := e.deps.Coordinator.Execute(ctx, escalation.ExecuteInput{
			ConversationID: s.ConversationID,
			UserID:         s.UserID,
			Assessment: escalation.Assessment{
				Type:      types.EscalationEmergencyReferral,
				Priority:  types.PriorityImmediate,
				Reasoning: "crisis detected: " + v.Category,
			},
		})
		if err != nil {
			e.log.Error("crisis escalation failed", "conversation_id", s.ConversationID, "error", err)
		} else if out.NotifyErr != nil {
			e.log.Error("crisis escalation not delivered", "conversation_id", s.ConversationID, "severity", "critical", "error", out.NotifyErr)
		}
	}
	e.log.Warn("crisis response sent",
		"conversation_id", s.ConversationID,
		"severity", v.Severity,
		"category", v.Category,
		"crisis_count", count+1,
	)
	return r
}

func (e *Engine) handleCrisisSupport(ctx context.Context, s *types.ConversationState, msg string) (result, error) {
	if s.CurrentStage == types.StageCrisisResponse {
		switch {
		case e.intents.wantsNurse(msg):
			var flags []string
			_, _ = statestore.Decode(s, ctxVulnerabilityFlags, &flags)
			a := e.deps.Coordinator.Assess(msg, types.EscalationNurseCallback, escalation.AssessContext{
				CrisisSeverity:     string(crisis.SeverityHigh),
				VulnerabilityFlags: flags,
			})
			return e.beginCollection(ctx, s, a, contact.PurposeCrisis, types.TopicCrisisSupport)
		case e.intents.Is(IntentContinue, msg):
			return result{
				text:    supportTransition,
				actions: transitionActions,
				topic:   types.TopicCrisisSupport,
				stage:   types.StageSupportTransition,
				reason:  reasonSupport,
			}, nil
		}
		return result{
			text:    crisisStillHere(e.deps.Triage.Emergency.Lines),
			actions: crisisActions,
			topic:   types.TopicCrisisSupport,
			stage:   types.StageCrisisResponse,
		}, nil
	}

	switch e.intents.Classify(msg) {
	case IntentNurse, IntentCallback:
		return e.startNurse(ctx, s, msg)
	case IntentFarewell:
		return e.farewell(), nil
	}
	return e.answer(ctx, s, msg), nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
