package contact

import (
	"fmt"
	"strings"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/pkg/phrase"
)

var confirmationRules = phrase.NewMatcher([]phrase.Rule{
	{Name: "edit", Mode: phrase.Contains, Phrases: []string{"edit", "change", "update", "wrong", "fix", "correct my", "not right"}},
	{Name: "cancel", Mode: phrase.Prefix, Phrases: []string{"cancel", "no", "nope", "stop", "don't", "do not", "forget it"}},
	{Name: "confirm", Mode: phrase.Prefix, Phrases: []string{"yes", "yeah", "yep", "y", "confirm", "correct", "that's right", "thats right", "looks good", "all good", "ok", "okay", "sure"}},
})

var skipRules = phrase.NewMatcher([]phrase.Rule{
	{Name: "skip", Mode: phrase.Prefix, Phrases: []string{"skip", "pass", "no thanks", "rather not", "i'd rather not", "prefer not to say", "none", "n/a", "i don't have one", "don't have one", "not needed"}},
})

func isSkip(input string) bool { return skipRules.Is("skip", input) }

// parseConfirmation returns confirm, edit or cancel, or "" when unclear.
// For edit the named field is returned when one is mentioned.
func parseConfirmation(input string) (string, types.ContactField) {
	name, ok := confirmationRules.Classify(input)
	if !ok {
		return "", ""
	}
	if name == "edit" {
		f, _ := types.ParseContactField(phrase.Normalize(input))
		return name, f
	}
	return name, ""
}

const skipHint = " You can also say 'skip'."

func fieldPrompt(f types.ContactField, p Purpose, s *Session) string {
	var out string
	switch f {
	case types.FieldName:
		if p.Lenient {
			out = "What name should we use when we get in touch?"
		} else {
			out = "Could I take your name, please?"
		}
	case types.FieldPhone:
		number := "UK mobile number"
		if p.Lenient {
			number = "phone number"
		}
		if s.Collected.Name != "" {
			out = fmt.Sprintf("Thanks, %s. What's the best %s to reach you on?", firstName(s.Collected.Name), number)
		} else {
			out = fmt.Sprintf("What's the best %s to reach you on?", number)
		}
	case types.FieldEmail:
		out = "What email address can we use to send you a confirmation?"
	case types.FieldPreferredContact:
		out = "How would you prefer to be contacted: phone, email or both?"
	case types.FieldBestTimeToCall:
		out = "Is there a best time for us to call?"
	case types.FieldAlternativeContact:
		out = "Is there another number or email we could try if we can't reach you?"
	default:
		out = fmt.Sprintf("Please share your %s.", f.Label())
	}
	if !p.IsRequired(f) {
		out += skipHint
	}
	return out
}

func retryPrompt(res Result) string {
	msg := res.Error
	if len(res.Suggestions) > 0 {
		msg += " " + strings.TrimSuffix(res.Suggestions[0], ".") + "."
	}
	return msg + " Please try again."
}

func skipOffer(f types.ContactField) string {
	return fmt.Sprintf("I'm still not able to accept that %s. Reply 'skip' to carry on without it, or send it once more.", f.Label())
}

func summary(s *Session, p Purpose) string {
	var b strings.Builder
	b.WriteString("Here's what I have:\n")
	for _, f := range p.Fields() {
		if v := s.Collected.Get(f); v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", displayLabel(f), v)
		}
	}
	b.WriteString("\nIs that correct? Reply 'yes' to confirm, 'edit' and the detail to change, or 'cancel'.")
	return b.String()
}

func confirmationSuggestions() []string {
	return []string{"Yes, confirm details", "Edit details", "Cancel"}
}

// DirectContactGuidance is shown whenever contact collection cannot complete.
func DirectContactGuidance(number string) string {
	return fmt.Sprintf("I'm sorry, I haven't been able to take your details. Please call our nurse team directly on %s and they will help you. I've also flagged your conversation so someone can follow up.", number)
}

func displayLabel(f types.ContactField) string {
	l := f.Label()
	return strings.ToUpper(l[:1]) + l[1:]
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

func joinPrompt(lead, prompt string) string {
	lead = strings.TrimSpace(lead)
	if lead == "" {
		return prompt
	}
	return lead + " " + prompt
}
