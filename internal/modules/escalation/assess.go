package escalation

import (
	"fmt"

	"github.com/yungbote/careline-backend/internal/config"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/pkg/phrase"
)

type Assessment struct {
	Type        types.EscalationType `json:"type"`
	Priority    types.Priority       `json:"priority"`
	Reasoning   string               `json:"reasoning"`
	MatchedRule string               `json:"matchedRule"`
}

type AssessContext struct {
	// CrisisSeverity is the classifier severity for the same message, if any.
	CrisisSeverity     string
	VulnerabilityFlags []string
}

// Assessor applies the ordered assessment rule table. The first rule with a
// matching phrase wins; nothing matching falls through to the default.
type Assessor struct {
	matcher *phrase.Matcher
	rules   map[string]config.AssessmentRule
	def     config.AssessmentRule
}

func NewAssessor(cfg config.Assessment) *Assessor {
	rules := make([]phrase.Rule, 0, len(cfg.Rules))
	byName := make(map[string]config.AssessmentRule, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, phrase.Rule{Name: r.Name, Mode: phrase.Contains, Phrases: r.Phrases})
		byName[r.Name] = r
	}
	return &Assessor{matcher: phrase.NewMatcher(rules), rules: byName, def: cfg.Default}
}

func (a *Assessor) Assess(message string, hint types.EscalationType, ac AssessContext) Assessment {
	out := Assessment{
		Type:        types.EscalationType(a.def.Type),
		Priority:    types.Priority(a.def.Priority),
		MatchedRule: a.def.Name,
		Reasoning:   "no urgency indicators found",
	}
	if hits := a.matcher.Matches(message); len(hits) > 0 {
		h := hits[0]
		r := a.rules[h.Rule]
		out = Assessment{
			Type:        types.EscalationType(r.Type),
			Priority:    types.Priority(r.Priority),
			MatchedRule: r.Name,
			Reasoning:   fmt.Sprintf("matched %s indicator %q", r.Name, h.Phrase),
		}
	}

	danger := out.Type == types.EscalationEmergencyReferral
	switch hint {
	case types.EscalationGPReferral, types.EscalationSupportResources:
		if !danger {
			out.Type = hint
		}
	case types.EscalationEmergencyReferral:
		out.Type = types.EscalationEmergencyReferral
		out.Priority = types.PriorityImmediate
		if !danger {
			out.Reasoning = "emergency referral requested"
		}
	}

	if (ac.CrisisSeverity == "crisis" || ac.CrisisSeverity == "high") && out.Priority.Rank() < types.PriorityUrgent.Rank() {
		out.Priority = types.PriorityUrgent
		out.Reasoning += "; raised to urgent after crisis indicators"
	}
	if len(ac.VulnerabilityFlags) > 0 && out.Priority.Rank() < types.PriorityUrgent.Rank() {
		out.Priority = types.PriorityUrgent
		out.Reasoning += "; raised to urgent for vulnerability flags"
	}
	return out
}
