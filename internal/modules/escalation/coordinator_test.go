package escalation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/modules/consent"
	"github.com/yungbote/careline-backend/internal/modules/contact"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/careline-backend/internal/pkg/errors"
)

func TestExecuteEmergencyReferral(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.coord.Assess("I can't breathe properly", "", AssessContext{})

	out, err := h.coord.Execute(ctx, ExecuteInput{ConversationID: "c1", UserID: "u1", Assessment: a})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Record.Status != types.EscalationCompleted || out.Record.CompletionReason != ReasonEmergencyReferral {
		t.Fatalf("record: %+v", out.Record)
	}
	if !strings.Contains(out.Text, "999") || out.Session != nil {
		t.Fatalf("emergency outcome: text=%q session=%v", out.Text, out.Session)
	}
	if !out.Notified || !out.GDPRCompliant {
		t.Fatalf("notified=%v compliant=%v", out.Notified, out.GDPRCompliant)
	}
	stored, _ := h.repos.Escalation.GetByID(dbctx.From(ctx), out.Record.EscalationID)
	if stored.Status != types.EscalationCompleted || stored.NotifiedAt == nil {
		t.Fatalf("stored: %+v", stored)
	}

	again, err := h.coord.Execute(ctx, ExecuteInput{EscalationID: out.Record.EscalationID})
	if err != nil {
		t.Fatalf("re-execute: %v", err)
	}
	if h.gw.Calls() != 1 || again.Text != out.Text {
		t.Fatalf("re-execution must not resend: calls=%d", h.gw.Calls())
	}
}

func TestExecuteNurseCallbackStartsCollection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.ledger.RecordConsent(ctx, "u1", "nurse_callback", consent.Metadata{}); err != nil {
		t.Fatalf("RecordConsent: %v", err)
	}

	out, err := h.coord.Execute(ctx, ExecuteInput{
		ConversationID: "c1",
		UserID:         "u1",
		Assessment:     h.coord.Assess("can I speak to a nurse", "", AssessContext{}),
		Purpose:        contact.PurposeCallbackChat,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Session == nil || out.Step.Field != types.FieldName || out.Text == "" {
		t.Fatalf("want collection session: %+v", out)
	}
	if out.Session.EscalationID != out.Record.EscalationID {
		t.Fatalf("session escalation id: want=%s got=%s", out.Record.EscalationID, out.Session.EscalationID)
	}
	stored, _ := h.repos.Escalation.GetByID(dbctx.From(ctx), out.Record.EscalationID)
	if stored.Status != types.EscalationContactCollecting {
		t.Fatalf("status: want=%s got=%s", types.EscalationContactCollecting, stored.Status)
	}
	if h.gw.Calls() != 0 {
		t.Fatalf("no notification before contact is known")
	}
}

func TestExecuteNurseCallbackWithoutConsent(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Execute(context.Background(), ExecuteInput{
		ConversationID: "c1",
		UserID:         "u1",
		Assessment:     Assessment{Type: types.EscalationNurseCallback, Priority: types.PriorityStandard},
		Contact:        &types.ContactDetails{Name: "Sarah", Phone: "07123456789"},
	})
	if !errors.Is(err, pkgerrors.ErrConsentRequired) {
		t.Fatalf("want ErrConsentRequired got=%v", err)
	}
	if h.gw.Calls() != 0 {
		t.Fatalf("no notification without consent")
	}
}

func TestExecuteSchedulesCallback(t *testing.T) {
	cases := []struct {
		name     string
		priority types.Priority
		wantETA  string
	}{
		{"urgent", types.PriorityUrgent, "within 2-4 hours"},
		{"standard", types.PriorityStandard, "within 24 hours"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			if _, err := h.ledger.RecordConsent(ctx, "u1", "nurse_callback", consent.Metadata{}); err != nil {
				t.Fatalf("RecordConsent: %v", err)
			}
			in := ExecuteInput{
				ConversationID: "c1",
				UserID:         "u1",
				Assessment:     Assessment{Type: types.EscalationNurseCallback, Priority: tc.priority, Reasoning: "test"},
				Contact:        &types.ContactDetails{Name: "Sarah", Phone: "07123456789"},
				Purpose:        contact.PurposeCallbackChat,
			}
			out, err := h.coord.Execute(ctx, in)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !out.GDPRCompliant || !out.Notified {
				t.Fatalf("compliant=%v notified=%v", out.GDPRCompliant, out.Notified)
			}
			if !strings.Contains(out.Text, tc.wantETA) || !strings.Contains(out.Text, "07123456789") {
				t.Fatalf("text: %q", out.Text)
			}
			stored, _ := h.repos.Escalation.GetByID(dbctx.From(ctx), out.Record.EscalationID)
			if stored.Status != types.EscalationCallbackScheduled || stored.CallbackETA != tc.wantETA {
				t.Fatalf("stored: %+v", stored)
			}
			if len(h.gw.sent) != 1 || !strings.Contains(h.gw.sent[0].ContactSummary, "Sarah") {
				t.Fatalf("notification: %+v", h.gw.sent)
			}

			in.EscalationID = out.Record.EscalationID
			if _, err := h.coord.Execute(ctx, in); err != nil {
				t.Fatalf("re-execute: %v", err)
			}
			if h.gw.Calls() != 1 {
				t.Fatalf("re-execution must not resend: calls=%d", h.gw.Calls())
			}
		})
	}
}

func TestExecuteReopensSweptCallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbc := dbctx.From(ctx)
	if _, err := h.ledger.RecordConsent(ctx, "u1", "nurse_callback", consent.Metadata{}); err != nil {
		t.Fatalf("RecordConsent: %v", err)
	}
	started, err := h.coord.Execute(ctx, ExecuteInput{
		ConversationID: "c1",
		UserID:         "u1",
		Assessment:     Assessment{Type: types.EscalationNurseCallback, Priority: types.PriorityUrgent, Reasoning: "concern"},
		Purpose:        contact.PurposeCallbackChat,
	})
	if err != nil || started.Session == nil {
		t.Fatalf("start: session=%v err=%v", started.Session, err)
	}
	if _, err := h.repos.Escalation.CompleteStale(dbc, time.Now().UTC().Add(time.Hour), StaleSweepReason); err != nil {
		t.Fatalf("CompleteStale: %v", err)
	}

	out, err := h.coord.Execute(ctx, ExecuteInput{
		EscalationID:   started.Record.EscalationID,
		ConversationID: "c1",
		UserID:         "u1",
		Contact:        &types.ContactDetails{Name: "Sarah", Phone: "07123456789"},
		Purpose:        contact.PurposeCallbackChat,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Record.EscalationID == started.Record.EscalationID {
		t.Fatalf("want a fresh escalation, got the swept one")
	}
	if out.Record.Status != types.EscalationCallbackScheduled || out.Record.Priority != types.PriorityUrgent {
		t.Fatalf("fresh record: %+v", out.Record)
	}
	if !out.Notified || len(h.gw.sent) != 1 || !strings.Contains(out.Text, "within 2-4 hours") {
		t.Fatalf("notified=%v sent=%d text=%q", out.Notified, len(h.gw.sent), out.Text)
	}
	swept, _ := h.repos.Escalation.GetByID(dbc, started.Record.EscalationID)
	if swept.Status != types.EscalationCompleted || swept.CompletionReason != StaleSweepReason {
		t.Fatalf("swept record: %+v", swept)
	}

	// A record closed as direct contact is not reopened by a replay.
	failed, err := h.coord.Execute(ctx, ExecuteInput{
		ConversationID:   "c2",
		UserID:           "u1",
		Assessment:       Assessment{Type: types.EscalationNurseCallback, Priority: types.PriorityStandard},
		CollectionFailed: true,
	})
	if err != nil {
		t.Fatalf("collection failed: %v", err)
	}
	replay, err := h.coord.Execute(ctx, ExecuteInput{EscalationID: failed.Record.EscalationID, CollectionFailed: true})
	if err != nil || replay.Record.EscalationID != failed.Record.EscalationID {
		t.Fatalf("replay: id=%s err=%v", replay.Record.EscalationID, err)
	}
	if len(h.gw.sent) != 2 {
		t.Fatalf("replay must not notify again: sent=%d", len(h.gw.sent))
	}
}

func TestExecuteCollectionFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out, err := h.coord.Execute(ctx, ExecuteInput{
		ConversationID:   "c1",
		UserID:           "u1",
		Assessment:       Assessment{Type: types.EscalationNurseCallback, Priority: types.PriorityStandard},
		CollectionFailed: true,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Record.Status != types.EscalationCompleted || out.Record.CompletionReason != ReasonDirectContact {
		t.Fatalf("record: %+v", out.Record)
	}
	if !strings.Contains(out.Text, h.cfg.Escalation.DirectContactNumber) {
		t.Fatalf("text: %q", out.Text)
	}
	if len(h.gw.sent) != 1 || !h.gw.sent[0].FollowUp {
		t.Fatalf("follow-up notification: %+v", h.gw.sent)
	}
}

func TestExecuteNotificationFailureKeepsTurn(t *testing.T) {
	h := newHarness(t)
	h.gw.fails = 100
	out, err := h.coord.Execute(context.Background(), ExecuteInput{
		ConversationID: "c1",
		UserID:         "u1",
		Assessment:     Assessment{Type: types.EscalationEmergencyReferral, Priority: types.PriorityImmediate},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Notified || !errors.Is(out.NotifyErr, ErrNotificationDelivery) {
		t.Fatalf("notify outcome: notified=%v err=%v", out.Notified, out.NotifyErr)
	}
	if out.Text == "" {
		t.Fatalf("guidance still returned")
	}
}

func TestExecuteInformational(t *testing.T) {
	h := newHarness(t)
	out, err := h.coord.Execute(context.Background(), ExecuteInput{
		ConversationID: "c1",
		UserID:         "u1",
		Assessment:     h.coord.Assess("my knee is stiff", types.EscalationGPReferral, AssessContext{}),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.Text, "GP") || out.Notified || !out.GDPRCompliant {
		t.Fatalf("gp outcome: %+v", out)
	}
}

func TestExecuteUnknownEscalation(t *testing.T) {
	h := newHarness(t)
	if _, err := h.coord.Execute(context.Background(), ExecuteInput{EscalationID: "missing"}); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("want ErrNotFound got=%v", err)
	}
}
