package flow

import (
	"fmt"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/pkg/phrase"
)

const (
	IntentFarewell    = "farewell"
	IntentNurse       = "nurse"
	IntentCallback    = "callback"
	IntentGreeting    = "greeting"
	IntentContinue    = "continue"
	IntentAffirmative = "affirmative"
	IntentRefusal     = "refusal"
)

// Intents is the ordered intent table. Classify gives the first match in
// table order; Is checks a single intent, for stages where only a couple of
// answers make sense.
type Intents struct {
	m *phrase.Matcher
}

func NewIntents(rules []config.IntentRule) (*Intents, error) {
	out := make([]phrase.Rule, 0, len(rules))
	for _, r := range rules {
		mode := phrase.Mode(r.Match)
		switch mode {
		case phrase.Exact, phrase.Prefix, phrase.Contains:
		default:
			return nil, fmt.Errorf("intent %s: unknown match mode %q", r.Name, r.Match)
		}
		out = append(out, phrase.Rule{Name: r.Name, Mode: mode, Phrases: r.Phrases})
	}
	return &Intents{m: phrase.NewMatcher(out)}, nil
}

func (i *Intents) Classify(msg string) string {
	name, _ := i.m.Classify(msg)
	return name
}

func (i *Intents) Is(intent, msg string) bool {
	return i.m.Is(intent, msg)
}

// wantsNurse covers both explicit nurse requests and "call me".
func (i *Intents) wantsNurse(msg string) bool {
	return i.Is(IntentNurse, msg) || i.Is(IntentCallback, msg)
}
