package triage

import "strings"

type ContactField string

const (
	FieldName               ContactField = "name"
	FieldPhone              ContactField = "phone"
	FieldEmail              ContactField = "email"
	FieldPreferredContact   ContactField = "preferredContact"
	FieldBestTimeToCall     ContactField = "bestTimeToCall"
	FieldAlternativeContact ContactField = "alternativeContact"
)

func (f ContactField) Label() string {
	switch f {
	case FieldName:
		return "name"
	case FieldPhone:
		return "phone number"
	case FieldEmail:
		return "email address"
	case FieldPreferredContact:
		return "preferred contact method"
	case FieldBestTimeToCall:
		return "best time to call"
	case FieldAlternativeContact:
		return "alternative contact"
	default:
		return string(f)
	}
}

// ParseContactField accepts the canonical name or a loose spoken form
// ("phone number", "best time").
func ParseContactField(s string) (ContactField, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return "", false
	case strings.Contains(s, "alternative"):
		return FieldAlternativeContact, true
	case strings.Contains(s, "prefer"):
		return FieldPreferredContact, true
	case strings.Contains(s, "time"):
		return FieldBestTimeToCall, true
	case strings.Contains(s, "phone"), strings.Contains(s, "number"), strings.Contains(s, "mobile"):
		return FieldPhone, true
	case strings.Contains(s, "mail"):
		return FieldEmail, true
	case strings.Contains(s, "name"):
		return FieldName, true
	}
	return "", false
}

const (
	PreferPhone = "phone"
	PreferEmail = "email"
	PreferBoth  = "both"
)

// ContactDetails only ever holds values that already passed validation.
type ContactDetails struct {
	Name               string `json:"name,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Email              string `json:"email,omitempty"`
	PreferredContact   string `json:"preferredContact,omitempty"`
	BestTimeToCall     string `json:"bestTimeToCall,omitempty"`
	AlternativeContact string `json:"alternativeContact,omitempty"`
}

func (c *ContactDetails) Get(f ContactField) string {
	if c == nil {
		return ""
	}
	switch f {
	case FieldName:
		return c.Name
	case FieldPhone:
		return c.Phone
	case FieldEmail:
		return c.Email
	case FieldPreferredContact:
		return c.PreferredContact
	case FieldBestTimeToCall:
		return c.BestTimeToCall
	case FieldAlternativeContact:
		return c.AlternativeContact
	}
	return ""
}

func (c *ContactDetails) Set(f ContactField, v string) {
	switch f {
	case FieldName:
		c.Name = v
	case FieldPhone:
		c.Phone = v
	case FieldEmail:
		c.Email = v
	case FieldPreferredContact:
		c.PreferredContact = v
	case FieldBestTimeToCall:
		c.BestTimeToCall = v
	case FieldAlternativeContact:
		c.AlternativeContact = v
	}
}

func (c *ContactDetails) Has(f ContactField) bool {
	return strings.TrimSpace(c.Get(f)) != ""
}

// Reachable reports whether a human could get back to this person.
func (c *ContactDetails) Reachable() bool {
	return c.Has(FieldPhone) || c.Has(FieldEmail) || c.Has(FieldAlternativeContact)
}

func (c *ContactDetails) Clone() *ContactDetails {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
