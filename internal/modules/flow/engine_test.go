package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/data/repos"
	"github.com/yungbote/careline-backend/internal/data/repos/testutil"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/modules/consent"
	"github.com/yungbote/careline-backend/internal/modules/contact"
	"github.com/yungbote/careline-backend/internal/modules/crisis"
	"github.com/yungbote/careline-backend/internal/modules/escalation"
	"github.com/yungbote/careline-backend/internal/modules/statestore"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/careline-backend/internal/pkg/errors"
)

type fakeSearch struct {
	res   SearchResult
	err   error
	delay time.Duration
	calls int
	mu    sync.Mutex
}

func (f *fakeSearch) Search(ctx context.Context, query, hint string) (SearchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return SearchResult{}, ctx.Err()
		}
	}
	return f.res, f.err
}

type recordingGateway struct {
	mu   sync.Mutex
	sent []escalation.Notification
}

func (g *recordingGateway) Send(ctx context.Context, n escalation.Notification) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, n)
	return true, nil
}

func (g *recordingGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type engineHarness struct {
	engine *Engine
	store  statestore.Store
	ledger consent.Ledger
	repos  repos.Repos
	gw     *recordingGateway
	search *fakeSearch
	db     *gorm.DB
}

var headacheResult = SearchResult{
	Found:          true,
	Content:        "Most headaches go away on their own. Rest, drink fluids and take paracetamol if needed.",
	Source:         "NHS",
	SourceURL:      "https://www.nhs.uk/conditions/headaches/",
	RelevanceScore: 0.9,
}

func newEngineHarness(t *testing.T, completion Completion, mutate func(*Config)) *engineHarness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cfg, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	r := repos.New(db, log)
	ledger := consent.New(db, log, r.ConsentRecord, cfg)
	wf, err := contact.NewWorkflow(log, ledger, contact.NewAuditStore(r.ContactAudit), cfg, nil)
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	gw := &recordingGateway{}
	notifier := escalation.NewNotifier(gw, r.Escalation, log, nil, cfg.Escalation.Notify)
	coord := escalation.NewCoordinator(log, r.Escalation, wf, ledger, notifier, cfg, nil)
	classifier, err := crisis.New(cfg.Crisis, log, nil)
	if err != nil {
		t.Fatalf("crisis.New: %v", err)
	}
	store := statestore.New(db, log, r.ConversationState)
	search := &fakeSearch{res: headacheResult}

	fc := Config{SearchTimeout: time.Second, CompletionTimeout: time.Second}
	if mutate != nil {
		mutate(&fc)
	}
	engine, err := NewEngine(log, fc, Deps{
		Store:       store,
		Locker:      statestore.NewKeyedMutex(),
		Classifier:  classifier,
		Coordinator: coord,
		Workflow:    wf,
		Ledger:      ledger,
		Search:      search,
		Completion:  completion,
		Triage:      cfg,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &engineHarness{engine: engine, store: store, ledger: ledger, repos: r, gw: gw, search: search, db: db}
}

func (h *engineHarness) say(t *testing.T, conv, msg string) TurnOutput {
	t.Helper()
	out, err := h.engine.ProcessTurn(context.Background(), TurnInput{Message: msg, ConversationID: conv, UserID: "user-" + conv})
	if err != nil {
		t.Fatalf("ProcessTurn(%q): %v", msg, err)
	}
	return out
}

func (h *engineHarness) session(t *testing.T, conv string) (contact.Session, bool) {
	t.Helper()
	s, err := h.store.GetOrCreate(context.Background(), conv, "user-"+conv)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	var sess contact.Session
	ok, err := statestore.Decode(s, contact.ContextKey, &sess)
	if err != nil {
		t.Fatalf("Decode session: %v", err)
	}
	return sess, ok
}

func expectState(t *testing.T, out TurnOutput, topic types.Topic, stage string) {
	t.Helper()
	if out.NewState.Topic != topic || out.NewState.Stage != stage {
		t.Fatalf("state: want=%s/%s got=%s/%s (text=%q)", topic, stage, out.NewState.Topic, out.NewState.Stage, out.Text)
	}
}

func TestGreetingIntroducesAssistant(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	out := h.say(t, "c1", "Hello")
	expectState(t, out, types.TopicHealthInformation, types.StageReadyForQuestions)
	if !strings.Contains(out.Text, "Careline assistant") {
		t.Fatalf("introduction missing: %q", out.Text)
	}
	if out.NewState.MessageCount != 1 {
		t.Fatalf("message count: want=1 got=%d", out.NewState.MessageCount)
	}
	if out.TopicTransition == nil || out.TopicTransition.From != types.TopicConversationStart || out.TopicTransition.To != types.TopicHealthInformation {
		t.Fatalf("topic transition: got=%+v", out.TopicTransition)
	}
	if out.EscalationTriggered || out.ConversationEnded {
		t.Fatalf("flags: escalation=%v ended=%v", out.EscalationTriggered, out.ConversationEnded)
	}
}

func TestCrisisPreemptsEveryTopic(t *testing.T) {
	cases := []struct {
		name  string
		setup []string
	}{
		{name: "fresh", setup: nil},
		{name: "health", setup: []string{"Hello"}},
		{name: "consent_capture", setup: []string{"I want to speak to a nurse"}},
		{name: "collecting", setup: []string{"I want to speak to a nurse", "Yes", "Sarah"}},
		{name: "crisis_support", setup: []string{"I feel hopeless"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newEngineHarness(t, nil, nil)
			for _, m := range tc.setup {
				h.say(t, "c1", m)
			}
			out := h.say(t, "c1", "I want to kill myself")
			expectState(t, out, types.TopicCrisisSupport, types.StageCrisisResponse)
			if !out.EscalationTriggered {
				t.Fatalf("escalationTriggered: want=true")
			}
			if !strings.Contains(out.Text, "116 123") || !strings.Contains(out.Text, "999") {
				t.Fatalf("emergency numbers missing: %q", out.Text)
			}
			if _, ok := h.session(t, "c1"); ok {
				t.Fatalf("collection session should be cleared by a crisis turn")
			}
		})
	}
}

func TestInflectedCrisisWordsPreemptHealthRouting(t *testing.T) {
	for _, msg := range []string{
		"I think I overdosed on paracetamol",
		"My son is having seizures",
		"I feel suicidally low tonight",
	} {
		t.Run(msg, func(t *testing.T) {
			h := newEngineHarness(t, nil, nil)
			h.say(t, "c1", "Hello")
			out := h.say(t, "c1", msg)
			expectState(t, out, types.TopicCrisisSupport, types.StageCrisisResponse)
			if !out.EscalationTriggered {
				t.Fatalf("escalationTriggered: want=true")
			}
			if h.search.calls != 0 {
				t.Fatalf("search should not run for a crisis turn: calls=%d", h.search.calls)
			}
		})
	}
}

func TestCrisisCreatesImmediateEscalation(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	h.say(t, "c1", "Hello")
	h.say(t, "c1", "I want to end my life")
	if h.gw.count() != 1 {
		t.Fatalf("notifications: want=1 got=%d", h.gw.count())
	}
	if h.gw.sent[0].Priority != types.PriorityImmediate {
		t.Fatalf("priority: want=immediate got=%s", h.gw.sent[0].Priority)
	}
	// A second crisis message in the same episode does not page the team again.
	h.say(t, "c1", "I want to kill myself")
	if h.gw.count() != 1 {
		t.Fatalf("notifications after repeat: want=1 got=%d", h.gw.count())
	}
	s, _ := h.store.GetOrCreate(context.Background(), "c1", "user-c1")
	var count int
	if _, err := statestore.Decode(s, ctxCrisisCount, &count); err != nil || count != 2 {
		t.Fatalf("crisis count: want=2 got=%d err=%v", count, err)
	}
}

func TestCrisisContinueAndCallMe(t *testing.T) {
	t.Run("continue", func(t *testing.T) {
		h := newEngineHarness(t, nil, nil)
		h.say(t, "c1", "I can't cope anymore")
		out := h.say(t, "c1", "I'm okay, continue")
		expectState(t, out, types.TopicCrisisSupport, types.StageSupportTransition)
		out = h.say(t, "c1", "What helps with a headache?")
		expectState(t, out, types.TopicHealthInformation, types.StageInformationProvided)
	})
	t.Run("unclear stays in crisis", func(t *testing.T) {
		h := newEngineHarness(t, nil, nil)
		h.say(t, "c1", "I can't cope anymore")
		out := h.say(t, "c1", "bye")
		expectState(t, out, types.TopicCrisisSupport, types.StageCrisisResponse)
		if out.ConversationEnded {
			t.Fatalf("farewell must not end a crisis conversation")
		}
	})
	t.Run("call me", func(t *testing.T) {
		h := newEngineHarness(t, nil, nil)
		h.say(t, "c1", "I feel hopeless")
		out := h.say(t, "c1", "Call me back")
		expectState(t, out, types.TopicCrisisSupport, "collect_name")
		st, err := h.ledger.GetConsentStatus(context.Background(), "user-c1", "crisis")
		if err != nil || !st.Granted {
			t.Fatalf("crisis consent: want granted got=%+v err=%v", st, err)
		}
		h.say(t, "c1", "Sam")
		out = h.say(t, "c1", "01632 960123")
		if out.NewState.Stage == types.StageCallbackScheduled {
			return
		}
		for i := 0; i < 4 && out.NewState.Stage != types.StageConfirmation; i++ {
			out = h.say(t, "c1", "skip")
		}
		expectState(t, out, types.TopicCrisisSupport, types.StageConfirmation)
		out = h.say(t, "c1", "Yes")
		expectState(t, out, types.TopicCrisisSupport, types.StageCallbackScheduled)
		if !strings.Contains(out.Text, "within 2-4 hours") {
			t.Fatalf("urgent callback eta missing: %q", out.Text)
		}
	})
}

func TestNurseFlowSchedulesCallback(t *testing.T) {
	h := newEngineHarness(t, nil, nil)

	out := h.say(t, "c1", "I want to speak to a nurse")
	expectState(t, out, types.TopicNurseEscalation, types.StageConsentCapture)

	out = h.say(t, "c1", "Yes")
	expectState(t, out, types.TopicNurseEscalation, "collect_name")
	if !out.EscalationTriggered {
		t.Fatalf("escalationTriggered: want=true once collection starts")
	}

	out = h.say(t, "c1", "Sarah")
	expectState(t, out, types.TopicNurseEscalation, "collect_phone")

	out = h.say(t, "c1", "07123 456789")
	expectState(t, out, types.TopicNurseEscalation, types.StageConfirmation)

	out = h.say(t, "c1", "Yes, confirm details")
	expectState(t, out, types.TopicNurseEscalation, types.StageCallbackScheduled)
	if !strings.Contains(out.Text, "within 24 hours") {
		t.Fatalf("callback eta missing: %q", out.Text)
	}

	s, _ := h.store.GetOrCreate(context.Background(), "c1", "user-c1")
	if s.ConsentStatus != types.ConsentGranted {
		t.Fatalf("consent status: want=granted got=%s", s.ConsentStatus)
	}
	if s.ContactInfo == nil || s.ContactInfo.Name != "Sarah" || s.ContactInfo.Phone == "" {
		t.Fatalf("contact info: got=%+v", s.ContactInfo)
	}
	if h.gw.count() != 1 || !strings.Contains(h.gw.sent[0].ContactSummary, "Sarah") {
		t.Fatalf("team notification: got=%+v", h.gw.sent)
	}
	audits, err := h.repos.ContactAudit.ListByUser(dbctx.Context{Ctx: context.Background()}, "user-c1")
	if err != nil || len(audits) != 1 {
		t.Fatalf("audit rows: want=1 got=%d err=%v", len(audits), err)
	}
}

func TestSweptEscalationStillSchedulesConfirmedCallback(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	h.say(t, "c1", "I want to speak to a nurse")
	h.say(t, "c1", "Yes")
	h.say(t, "c1", "Sarah")
	out := h.say(t, "c1", "07123 456789")
	expectState(t, out, types.TopicNurseEscalation, types.StageConfirmation)
	sess, ok := h.session(t, "c1")
	if !ok || sess.EscalationID == "" {
		t.Fatalf("session: want open with escalation id, got=%+v", sess)
	}

	swept, err := h.repos.Escalation.CompleteStale(dbc, time.Now().UTC().Add(time.Hour), escalation.StaleSweepReason)
	if err != nil || swept != 1 {
		t.Fatalf("CompleteStale: swept=%d err=%v", swept, err)
	}

	out = h.say(t, "c1", "Yes, confirm details")
	expectState(t, out, types.TopicNurseEscalation, types.StageCallbackScheduled)
	if !strings.Contains(out.Text, "within 24 hours") {
		t.Fatalf("callback eta missing: %q", out.Text)
	}
	if h.gw.count() != 1 {
		t.Fatalf("notifications: want=1 got=%d", h.gw.count())
	}

	s, _ := h.store.GetOrCreate(ctx, "c1", "user-c1")
	var id string
	if _, err := statestore.Decode(s, ctxEscalationID, &id); err != nil || id == "" || id == sess.EscalationID {
		t.Fatalf("escalation id: want a fresh one, old=%s got=%s err=%v", sess.EscalationID, id, err)
	}
	fresh, _ := h.repos.Escalation.GetByID(dbc, id)
	if fresh == nil || fresh.Status != types.EscalationCallbackScheduled || fresh.NotifiedAt == nil {
		t.Fatalf("fresh escalation: got=%+v", fresh)
	}
	old, _ := h.repos.Escalation.GetByID(dbc, sess.EscalationID)
	if old.Status != types.EscalationCompleted || old.CompletionReason != escalation.StaleSweepReason {
		t.Fatalf("swept escalation: status=%s reason=%s", old.Status, old.CompletionReason)
	}
}

func TestCollectionTurnsKeepEscalationOutOfSweep(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	h.say(t, "c1", "I want to speak to a nurse")
	h.say(t, "c1", "Yes")
	sess, _ := h.session(t, "c1")
	if err := h.db.Model(&types.EscalationRecord{}).
		Where("escalation_id = ?", sess.EscalationID).
		Update("updated_at", time.Now().UTC().Add(-2*time.Hour)).Error; err != nil {
		t.Fatalf("age escalation: %v", err)
	}

	h.say(t, "c1", "Sarah")

	swept, err := h.repos.Escalation.CompleteStale(dbc, time.Now().UTC().Add(-30*time.Minute), escalation.StaleSweepReason)
	if err != nil || swept != 0 {
		t.Fatalf("CompleteStale: want=0 swept=%d err=%v", swept, err)
	}
}

func TestNurseFlowCollectsEmailWhenConfigured(t *testing.T) {
	h := newEngineHarness(t, nil, func(c *Config) { c.CollectEmail = true })
	h.say(t, "c1", "I want to speak to a nurse")
	h.say(t, "c1", "Yes")
	h.say(t, "c1", "Sarah")
	out := h.say(t, "c1", "07123 456789")
	expectState(t, out, types.TopicNurseEscalation, "collect_email")
	out = h.say(t, "c1", "sarah@example.com")
	expectState(t, out, types.TopicNurseEscalation, types.StageConfirmation)
}

func TestInvalidPhoneKeepsStage(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	h.say(t, "c1", "I want to speak to a nurse")
	h.say(t, "c1", "Yes")
	h.say(t, "c1", "Sarah")

	out := h.say(t, "c1", "123-invalid")
	expectState(t, out, types.TopicNurseEscalation, "collect_phone")
	if !strings.Contains(out.Text, "07") {
		t.Fatalf("suggested format missing: %q", out.Text)
	}
	sess, ok := h.session(t, "c1")
	if !ok || sess.Attempts != 1 {
		t.Fatalf("attempts: want=1 got=%d (session=%v)", sess.Attempts, ok)
	}
}

func TestRepeatedInvalidPhoneGivesDirectContact(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	h.say(t, "c1", "I want to speak to a nurse")
	h.say(t, "c1", "Yes")
	h.say(t, "c1", "Sarah")

	var out TurnOutput
	for i := 0; i < 3; i++ {
		out = h.say(t, "c1", "123-invalid")
	}
	expectState(t, out, types.TopicNurseEscalation, types.StageDirectContact)
	if !strings.Contains(out.Text, "0300 123 4567") {
		t.Fatalf("direct contact number missing: %q", out.Text)
	}
	if _, ok := h.session(t, "c1"); ok {
		t.Fatalf("session should be closed after escalation")
	}
	s, _ := h.store.GetOrCreate(context.Background(), "c1", "user-c1")
	var followUp bool
	if _, err := statestore.Decode(s, ctxFollowUpRequired, &followUp); err != nil || !followUp {
		t.Fatalf("follow_up_required: want=true got=%v err=%v", followUp, err)
	}
	if h.gw.count() != 1 || !h.gw.sent[0].FollowUp {
		t.Fatalf("follow-up notification: got=%+v", h.gw.sent)
	}
}

func TestConsentRefusalAndReask(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	h.say(t, "c1", "Hello")
	h.say(t, "c1", "Can I talk to a nurse?")

	out := h.say(t, "c1", "what do you mean")
	expectState(t, out, types.TopicNurseEscalation, types.StageConsentCapture)
	if !strings.Contains(out.Text, "Do you agree?") {
		t.Fatalf("consent re-ask: %q", out.Text)
	}

	out = h.say(t, "c1", "No thanks")
	expectState(t, out, types.TopicHealthInformation, types.StageReadyForQuestions)
	st, err := h.ledger.GetConsentStatus(context.Background(), "user-c1", "nurse_callback")
	if err != nil || st.Granted {
		t.Fatalf("consent must not be recorded on refusal: %+v err=%v", st, err)
	}
}

func TestGrantedConsentSkipsCapture(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	if _, err := h.ledger.RecordConsent(context.Background(), "user-c1", "nurse_callback", consent.Metadata{}); err != nil {
		t.Fatalf("RecordConsent: %v", err)
	}
	out := h.say(t, "c1", "I'd like to speak to a nurse")
	expectState(t, out, types.TopicNurseEscalation, "collect_name")
}

func TestConsentWithdrawnMidCollection(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	h.say(t, "c1", "I want to speak to a nurse")
	h.say(t, "c1", "Yes")
	h.say(t, "c1", "Sarah")
	h.say(t, "c1", "07123 456789")

	if _, err := h.ledger.Withdraw(context.Background(), "user-c1", "nurse_callback"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	out := h.say(t, "c1", "Yes")
	expectState(t, out, types.TopicHealthInformation, types.StageReadyForQuestions)
	s, _ := h.store.GetOrCreate(context.Background(), "c1", "user-c1")
	if s.ConsentStatus != types.ConsentWithdrawn {
		t.Fatalf("consent status: want=withdrawn got=%s", s.ConsentStatus)
	}
	if s.ContactInfo != nil {
		t.Fatalf("contact info must not be stored without consent: %+v", s.ContactInfo)
	}
}

func TestCancelAtConfirmation(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	h.say(t, "c1", "I want to speak to a nurse")
	h.say(t, "c1", "Yes")
	h.say(t, "c1", "Sarah")
	h.say(t, "c1", "07123 456789")
	out := h.say(t, "c1", "cancel")
	expectState(t, out, types.TopicHealthInformation, types.StageReadyForQuestions)

	active, err := h.repos.Escalation.ListActive(dbctx.Context{Ctx: context.Background()}, 10)
	if err != nil || len(active) != 0 {
		t.Fatalf("active escalations: want=0 got=%d err=%v", len(active), err)
	}
}

func TestEmergencyNurseRequestIsReferred(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	h.say(t, "c1", "Hello")
	out := h.say(t, "c1", "I need to speak to a nurse urgent")
	expectState(t, out, types.TopicNurseEscalation, types.StageEmergencyReferral)
	if !out.EscalationTriggered || !strings.Contains(out.Text, "999") {
		t.Fatalf("emergency referral: escalation=%v text=%q", out.EscalationTriggered, out.Text)
	}
}

func TestHealthQuery(t *testing.T) {
	t.Run("completion answer keeps attribution", func(t *testing.T) {
		h := newEngineHarness(t, CompletionFunc(func(ctx context.Context, sys, user string) (string, error) {
			return "Rest and fluids usually help.", nil
		}), nil)
		out := h.say(t, "c1", "What helps with a headache?")
		expectState(t, out, types.TopicHealthInformation, types.StageInformationProvided)
		if !strings.Contains(out.Text, "Rest and fluids") || !strings.Contains(out.Text, headacheResult.SourceURL) {
			t.Fatalf("answer: %q", out.Text)
		}
		if len(out.SuggestedActions) == 0 {
			t.Fatalf("suggested actions missing")
		}
	})
	t.Run("completion failure falls back to template", func(t *testing.T) {
		h := newEngineHarness(t, CompletionFunc(func(ctx context.Context, sys, user string) (string, error) {
			return "", errors.New("upstream 500")
		}), nil)
		out := h.say(t, "c1", "What helps with a headache?")
		expectState(t, out, types.TopicHealthInformation, types.StageInformationProvided)
		if !strings.Contains(out.Text, "Most headaches") || !strings.Contains(out.Text, "Source: NHS") {
			t.Fatalf("template answer: %q", out.Text)
		}
	})
	t.Run("completion timeout falls back to template", func(t *testing.T) {
		h := newEngineHarness(t, CompletionFunc(func(ctx context.Context, sys, user string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}), func(c *Config) { c.CompletionTimeout = 20 * time.Millisecond })
		out := h.say(t, "c1", "What helps with a headache?")
		if !strings.Contains(out.Text, "Most headaches") {
			t.Fatalf("template answer: %q", out.Text)
		}
	})
	t.Run("result without source url is not found", func(t *testing.T) {
		h := newEngineHarness(t, nil, nil)
		h.search.res = SearchResult{Found: true, Content: "unattributed"}
		out := h.say(t, "c1", "What helps with a headache?")
		expectState(t, out, types.TopicHealthInformation, types.StageNoContentFound)
		if strings.Contains(out.Text, "unattributed") {
			t.Fatalf("unattributed content leaked: %q", out.Text)
		}
	})
	t.Run("search error is not found", func(t *testing.T) {
		h := newEngineHarness(t, nil, nil)
		h.search.err = errors.New("index offline")
		out := h.say(t, "c1", "What helps with a headache?")
		expectState(t, out, types.TopicHealthInformation, types.StageNoContentFound)
	})
	t.Run("search timeout is not found", func(t *testing.T) {
		h := newEngineHarness(t, nil, func(c *Config) { c.SearchTimeout = 20 * time.Millisecond })
		h.search.delay = time.Second
		out := h.say(t, "c1", "What helps with a headache?")
		expectState(t, out, types.TopicHealthInformation, types.StageNoContentFound)
	})
}

func TestFarewellEndsConversation(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	h.say(t, "c1", "Hello")
	out := h.say(t, "c1", "bye")
	if !out.ConversationEnded {
		t.Fatalf("conversationEnded: want=true")
	}
	expectState(t, out, types.TopicHealthInformation, types.StageConversationClosed)
	out = h.say(t, "c1", "Hello")
	expectState(t, out, types.TopicHealthInformation, types.StageReadyForQuestions)
	if out.NewState.MessageCount != 3 {
		t.Fatalf("message count: want=3 got=%d", out.NewState.MessageCount)
	}
}

func TestProcessTurnValidatesInput(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	cases := []TurnInput{
		{Message: "", ConversationID: "c1", UserID: "u1"},
		{Message: "   ", ConversationID: "c1", UserID: "u1"},
		{Message: "hi", ConversationID: "", UserID: "u1"},
		{Message: "hi", ConversationID: "c1", UserID: ""},
	}
	for i, in := range cases {
		if _, err := h.engine.ProcessTurn(context.Background(), in); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("case %d: want ErrInvalidArgument got=%v", i, err)
		}
	}
}

func TestTurnsOnOneConversationAreSerialized(t *testing.T) {
	h := newEngineHarness(t, nil, nil)
	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.ProcessTurn(context.Background(), TurnInput{
				Message:        fmt.Sprintf("hello %d", i),
				ConversationID: "c1",
				UserID:         "user-c1",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ProcessTurn: %v", err)
		}
	}
	s, _ := h.store.GetOrCreate(context.Background(), "c1", "user-c1")
	if s.MessageCount != n {
		t.Fatalf("message count: want=%d got=%d", n, s.MessageCount)
	}
}
