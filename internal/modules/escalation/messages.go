package escalation

import (
	"fmt"
	"strings"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
)

// BulletList renders lines as "- line" rows.
func BulletList(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(l)
	}
	return b.String()
}

func EmergencyGuidance(lines []string) string {
	return "This sounds like it needs urgent medical attention, so please don't wait for a callback.\n\n" + BulletList(lines)
}

func CallbackConfirmation(eta string, c *types.ContactDetails) string {
	var b strings.Builder
	if c.Has(types.FieldName) {
		fmt.Fprintf(&b, "Thank you, %s. ", c.Name)
	} else {
		b.WriteString("Thank you. ")
	}
	switch {
	case c.Has(types.FieldPhone):
		fmt.Fprintf(&b, "A registered nurse will call you on %s %s.", c.Phone, eta)
	case c.Has(types.FieldAlternativeContact):
		fmt.Fprintf(&b, "A registered nurse will contact you on %s %s.", c.AlternativeContact, eta)
	default:
		fmt.Fprintf(&b, "A registered nurse will be in touch %s.", eta)
	}
	if c.Has(types.FieldEmail) {
		fmt.Fprintf(&b, " We'll also send a confirmation to %s.", c.Email)
	}
	if c.Has(types.FieldBestTimeToCall) {
		fmt.Fprintf(&b, " We've noted that %s works best for you.", c.BestTimeToCall)
	}
	b.WriteString(" If things get worse before then, call 999 or go to A&E.")
	return b.String()
}

// ContactSummary is the staff-facing rendering of collected details.
func ContactSummary(c *types.ContactDetails) string {
	fields := []types.ContactField{
		types.FieldName, types.FieldPhone, types.FieldEmail,
		types.FieldPreferredContact, types.FieldBestTimeToCall, types.FieldAlternativeContact,
	}
	var rows []string
	for _, f := range fields {
		if v := c.Get(f); v != "" {
			rows = append(rows, fmt.Sprintf("%s: %s", f.Label(), v))
		}
	}
	return strings.Join(rows, "\n")
}

func informationalText(t types.EscalationType, emergencyLines []string) string {
	if t == types.EscalationGPReferral {
		return "This is best looked at by your GP. Please book an appointment with your GP surgery, or call NHS 111 if you need advice sooner."
	}
	return "Here are some places where you can get support right now:\n\n" + BulletList(emergencyLines)
}
