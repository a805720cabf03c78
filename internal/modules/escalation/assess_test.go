package escalation

import (
	"testing"

	"github.com/yungbote/careline-backend/internal/config"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
)

func TestAssess(t *testing.T) {
	cfg, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	a := NewAssessor(cfg.Assessment)

	cases := []struct {
		name     string
		msg      string
		hint     types.EscalationType
		ac       AssessContext
		wantType types.EscalationType
		wantPrio types.Priority
		wantRule string
	}{
		{"danger phrase", "I have severe pain in my side", "", AssessContext{}, types.EscalationEmergencyReferral, types.PriorityImmediate, "immediate_danger"},
		{"concern phrase", "I'm worried about this rash", "", AssessContext{}, types.EscalationNurseCallback, types.PriorityUrgent, "concern"},
		{"default", "can I speak to a nurse", "", AssessContext{}, types.EscalationNurseCallback, types.PriorityStandard, "default"},
		{"gp hint without danger", "my knee has been stiff", types.EscalationGPReferral, AssessContext{}, types.EscalationGPReferral, types.PriorityStandard, "default"},
		{"danger beats gp hint", "I can't breathe", types.EscalationGPReferral, AssessContext{}, types.EscalationEmergencyReferral, types.PriorityImmediate, "immediate_danger"},
		{"support hint", "I just need someone", types.EscalationSupportResources, AssessContext{}, types.EscalationSupportResources, types.PriorityStandard, "default"},
		{"crisis raises priority", "please call me", "", AssessContext{CrisisSeverity: "high"}, types.EscalationNurseCallback, types.PriorityUrgent, "default"},
		{"crisis never lowers", "this is an emergency", "", AssessContext{CrisisSeverity: "high"}, types.EscalationEmergencyReferral, types.PriorityImmediate, "immediate_danger"},
		{"vulnerability raises priority", "please call me", "", AssessContext{VulnerabilityFlags: []string{"lives_alone"}}, types.EscalationNurseCallback, types.PriorityUrgent, "default"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := a.Assess(tc.msg, tc.hint, tc.ac)
			if got.Type != tc.wantType || got.Priority != tc.wantPrio || got.MatchedRule != tc.wantRule {
				t.Fatalf("assess: want=%s/%s/%s got=%s/%s/%s", tc.wantType, tc.wantPrio, tc.wantRule, got.Type, got.Priority, got.MatchedRule)
			}
			if got.Reasoning == "" {
				t.Fatalf("reasoning must be set")
			}
		})
	}
}
