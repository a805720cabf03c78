package flow

import (
	"fmt"
	"strings"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/modules/crisis"
	"github.com/yungbote/careline-backend/internal/modules/escalation"
)

const introduction = "Hello, I'm the Careline assistant. I can share trusted health information, " +
	"help you arrange a callback from a registered nurse, and point you to urgent support if you need it. " +
	"I'm not a doctor and can't diagnose. What would you like to know?"

const greetingAgain = "Hello again. What would you like to know?"

const farewell = "Take care. If anything changes or you have more questions, just send a message. " +
	"In an emergency, call 999."

const noContentFound = "I'm sorry, I couldn't find trusted information about that. " +
	"You could try asking in a different way, speak to one of our nurses, or call NHS 111 for advice."

const consentRefused = "No problem, I won't take any of your details. Is there anything else I can help you with?"

const collectionCancelled = "Is there anything else I can help you with?"

const consentWithdrawn = "Your consent to share contact details is no longer active, so I've stopped collecting them. " +
	"Is there anything else I can help you with?"

var (
	healthActions        = []string{"Ask another question", "Speak to a nurse", "That's all, thanks"}
	noContentActions     = []string{"Ask another question", "Speak to a nurse", "Call NHS 111"}
	introActions         = []string{"Ask a health question", "Speak to a nurse"}
	consentActions       = []string{"Yes, I agree", "No thanks"}
	crisisActions        = []string{"Call me back", "I'm okay, continue"}
	transitionActions    = []string{"Speak to a nurse", "Ask a health question"}
	emergencyActions     = []string{"Call 999", "Find my nearest A&E"}
	afterCallbackActions = []string{"Ask a health question", "That's all, thanks"}
)

func consentPrompt(p config.ConsentPolicy) string {
	var b strings.Builder
	b.WriteString("I can arrange for a registered nurse to call you back. To do that I need your permission to collect some contact details.\n\n")
	if len(p.DataCategories) > 0 {
		cats := make([]string, 0, len(p.DataCategories))
		for _, c := range p.DataCategories {
			cats = append(cats, strings.ReplaceAll(c, "_", " "))
		}
		fmt.Fprintf(&b, "We'll ask for: %s. ", strings.Join(cats, ", "))
	}
	if p.Purpose != "" {
		fmt.Fprintf(&b, "They're used only to %s.", lowerFirst(p.Purpose))
	}
	if p.ConsentText != "" {
		fmt.Fprintf(&b, "\n\n\"%s\"", p.ConsentText)
	}
	b.WriteString("\n\nDo you agree?")
	return b.String()
}

func consentReask(p config.ConsentPolicy) string {
	return "Sorry, I didn't catch that. Please reply 'yes' if you agree to share your contact details for a callback, or 'no' if you'd rather not.\n\n" + consentPrompt(p)
}

func crisisResponse(v crisis.Verdict, lines []string) string {
	var lead string
	switch v.Category {
	case crisis.CategoryMedicalEmergency:
		lead = "This sounds like a medical emergency. Please call 999 now or go to your nearest A&E."
	case crisis.CategorySelfHarm:
		lead = "I'm really sorry you're feeling like this. You don't have to go through it alone, and there are people who want to help right now."
	default:
		lead = "It sounds like things are really difficult at the moment. Support is available whenever you need it."
	}
	return lead + "\n\n" + escalation.BulletList(lines) +
		"\n\nIf you'd like, I can arrange for someone to call you back. Just say \"call me\"."
}

func crisisStillHere(lines []string) string {
	return "I'm still here with you. If you're in danger or feel unable to keep yourself safe, please reach out now:\n\n" +
		escalation.BulletList(lines) +
		"\n\nSay \"call me\" if you'd like someone to contact you, or \"I'm okay\" when you're ready to carry on."
}

const supportTransition = "I'm glad you're feeling able to carry on. If things feel difficult again, you can call Samaritans on 116 123 at any time, or 999 in an emergency.\n\n" +
	"I can arrange for a nurse to call you, or you can ask me a health question."

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
